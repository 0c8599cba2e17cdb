package core

import (
	"context"
	"slices"

	"escala/pkg/domain"
)

// ServiceInput describes a new service. The current global catalog is copied
// unless CustomSlots is set, in which case SlotNames is used as given.
type ServiceInput struct {
	Date        string   `json:"date"`
	Time        string   `json:"time"`
	Description string   `json:"description"`
	CustomSlots bool     `json:"custom_slots,omitempty"`
	SlotNames   []string `json:"slot_names,omitempty"`
}

// ServicePatch carries optional field updates for UpdateService. Slot names
// and open state have dedicated commands.
type ServicePatch struct {
	Date        *string `json:"date,omitempty"`
	Time        *string `json:"time,omitempty"`
	Description *string `json:"description,omitempty"`
}

// CreateService validates the input, derives the day of week and stores an
// open service.
func (s *Service) CreateService(ctx context.Context, in ServiceInput) (domain.Service, Result, error) {
	var created domain.Service
	var res Result
	err := s.run(ctx, "create_service", func(ctx context.Context) (string, error) {
		date, day, err := domain.NormalizeServiceDate(in.Date)
		if err != nil {
			return "", err
		}
		clock, err := domain.NormalizeServiceTime(in.Time)
		if err != nil {
			return "", err
		}
		var explicit []string
		if in.CustomSlots {
			if explicit, err = normalizeSlotList(in.SlotNames); err != nil {
				return "", err
			}
		}
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			slots := explicit
			if !in.CustomSlots {
				slots = tx.Snapshot().Catalog()
			}
			var err error
			created, err = tx.CreateService(domain.Service{
				Date:        date,
				Time:        clock,
				DayOfWeek:   day,
				IsOpen:      true,
				Description: s.sanitizeText(in.Description),
				SlotNames:   slots,
			})
			return err
		})
		return created.ID, err
	})
	s.logWarnings("create_service", res)
	return created, res, err
}

// UpdateService applies a patch. A date change recomputes the day of week.
func (s *Service) UpdateService(ctx context.Context, id string, patch ServicePatch) (domain.Service, Result, error) {
	var updated domain.Service
	var res Result
	err := s.run(ctx, "update_service", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateService(id, func(svc *domain.Service) error {
				if patch.Date != nil {
					date, day, err := domain.NormalizeServiceDate(*patch.Date)
					if err != nil {
						return err
					}
					svc.Date = date
					svc.DayOfWeek = day
				}
				if patch.Time != nil {
					clock, err := domain.NormalizeServiceTime(*patch.Time)
					if err != nil {
						return err
					}
					svc.Time = clock
				}
				if patch.Description != nil {
					svc.Description = s.sanitizeText(*patch.Description)
				}
				return nil
			})
			return err
		})
		return id, err
	})
	s.logWarnings("update_service", res)
	return updated, res, err
}

// DeleteService removes the service and every assignment on it.
func (s *Service) DeleteService(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.run(ctx, "delete_service", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindService(id); !ok {
				return domain.NotFoundError{Entity: EntityService, ID: id}
			}
			for _, a := range assignmentsForService(tx.Snapshot(), id) {
				if err := tx.DeleteAssignment(a.ID); err != nil {
					return err
				}
			}
			return tx.DeleteService(id)
		})
		return id, err
	})
	return res, err
}

// SetServiceOpen toggles the registration gate.
func (s *Service) SetServiceOpen(ctx context.Context, id string, open bool) (domain.Service, Result, error) {
	var updated domain.Service
	var res Result
	err := s.run(ctx, "set_service_open", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateService(id, func(svc *domain.Service) error {
				svc.IsOpen = open
				return nil
			})
			return err
		})
		return id, err
	})
	return updated, res, err
}

// AddServiceSlot appends a slot to one service only.
func (s *Service) AddServiceSlot(ctx context.Context, id, slotName string) (domain.Service, Result, error) {
	var updated domain.Service
	var res Result
	err := s.run(ctx, "add_service_slot", func(ctx context.Context) (string, error) {
		name, err := domain.ValidateSlotName(slotName)
		if err != nil {
			return id, err
		}
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateService(id, func(svc *domain.Service) error {
				if svc.HasSlot(name) {
					return domain.DuplicateError{Entity: EntitySlot, Name: name, Scope: "service " + id}
				}
				svc.SlotNames = append(svc.SlotNames, name)
				return nil
			})
			return err
		})
		return id, err
	})
	return updated, res, err
}

// RemoveServiceSlot removes a slot from one service and deletes the
// assignments holding it. Callers confirm with the user beforehand.
func (s *Service) RemoveServiceSlot(ctx context.Context, id, slotName string) (domain.Service, Result, error) {
	var updated domain.Service
	var res Result
	err := s.run(ctx, "remove_service_slot", func(ctx context.Context) (string, error) {
		name := domain.NormalizeSlotName(slotName)
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			svc, ok := tx.FindService(id)
			if !ok {
				return domain.NotFoundError{Entity: EntityService, ID: id}
			}
			if !svc.HasSlot(name) {
				return domain.NotFoundError{Entity: EntitySlot, ID: name}
			}
			for _, a := range assignmentsForService(tx.Snapshot(), id) {
				if a.SlotName == name {
					if err := tx.DeleteAssignment(a.ID); err != nil {
						return err
					}
				}
			}
			var err error
			updated, err = tx.UpdateService(id, func(svc *domain.Service) error {
				svc.SlotNames = slices.DeleteFunc(svc.SlotNames, func(n string) bool { return n == name })
				return nil
			})
			return err
		})
		return id, err
	})
	return updated, res, err
}

func normalizeSlotList(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, raw := range names {
		name, err := domain.ValidateSlotName(raw)
		if err != nil {
			return nil, err
		}
		if slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

func assignmentsForService(view domain.RuleView, serviceID string) []Assignment {
	var out []Assignment
	for _, a := range view.ListAssignments() {
		if a.ServiceID == serviceID {
			out = append(out, a)
		}
	}
	return out
}

func assignmentsForVolunteer(view domain.RuleView, volunteerID string) []Assignment {
	var out []Assignment
	for _, a := range view.ListAssignments() {
		if a.VolunteerID == volunteerID {
			out = append(out, a)
		}
	}
	return out
}
