package core

import (
	"context"

	"escala/pkg/domain"
)

// RegisterVolunteer places a volunteer in a slot of an open service. Checks
// run in a fixed order: unknown service, unknown volunteer, closed service,
// slot not offered, volunteer already serving, slot taken.
func (s *Service) RegisterVolunteer(ctx context.Context, serviceID, volunteerID, slotName string) (Assignment, Result, error) {
	var created Assignment
	var res Result
	err := s.run(ctx, "register_volunteer", func(ctx context.Context) (string, error) {
		name := domain.NormalizeSlotName(slotName)
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			svc, ok := tx.FindService(serviceID)
			if !ok {
				return domain.NotFoundError{Entity: EntityService, ID: serviceID}
			}
			vol, ok := tx.FindVolunteer(volunteerID)
			if !ok {
				return domain.NotFoundError{Entity: EntityVolunteer, ID: volunteerID}
			}
			if !svc.IsOpen {
				return domain.ClosedError{ServiceID: serviceID}
			}
			if !svc.HasSlot(name) {
				return domain.InvalidSlotError{ServiceID: serviceID, SlotName: name}
			}
			existing := assignmentsForService(tx.Snapshot(), serviceID)
			for _, a := range existing {
				if a.VolunteerID == volunteerID {
					return domain.AlreadyAssignedError{ServiceID: serviceID, VolunteerID: volunteerID, AssignmentID: a.ID}
				}
			}
			for _, a := range existing {
				if a.SlotName == name {
					return domain.SlotOccupiedError{ServiceID: serviceID, SlotName: name, AssignmentID: a.ID}
				}
			}
			var err error
			created, err = tx.CreateAssignment(Assignment{
				ServiceID:     serviceID,
				VolunteerID:   volunteerID,
				VolunteerName: vol.Name,
				SlotName:      name,
			})
			return err
		})
		return created.ID, err
	})
	s.logWarnings("register_volunteer", res)
	return created, res, err
}

// Unregister removes a single assignment.
func (s *Service) Unregister(ctx context.Context, assignmentID string) (Result, error) {
	var res Result
	err := s.run(ctx, "unregister", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteAssignment(assignmentID)
		})
		return assignmentID, err
	})
	return res, err
}

// ReassignSlot moves an assignment to another slot of the same service. It
// is an administrator edit and works on closed services too.
func (s *Service) ReassignSlot(ctx context.Context, assignmentID, slotName string) (Assignment, Result, error) {
	var updated Assignment
	var res Result
	err := s.run(ctx, "reassign_slot", func(ctx context.Context) (string, error) {
		name := domain.NormalizeSlotName(slotName)
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			current, ok := tx.FindAssignment(assignmentID)
			if !ok {
				return domain.NotFoundError{Entity: EntityAssignment, ID: assignmentID}
			}
			svc, ok := tx.FindService(current.ServiceID)
			if !ok {
				return domain.NotFoundError{Entity: EntityService, ID: current.ServiceID}
			}
			if !svc.HasSlot(name) {
				return domain.InvalidSlotError{ServiceID: svc.ID, SlotName: name}
			}
			for _, a := range assignmentsForService(tx.Snapshot(), svc.ID) {
				if a.ID != assignmentID && a.SlotName == name {
					return domain.SlotOccupiedError{ServiceID: svc.ID, SlotName: name, AssignmentID: a.ID}
				}
			}
			var err error
			updated, err = tx.UpdateAssignment(assignmentID, func(a *Assignment) error {
				a.SlotName = name
				return nil
			})
			return err
		})
		return assignmentID, err
	})
	return updated, res, err
}
