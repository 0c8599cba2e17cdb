package core

import (
	"context"
	"slices"

	"escala/pkg/domain"
)

const catalogScope = "global catalog"

// Catalog returns the global slot catalog in order.
func (s *Service) Catalog() []string {
	return s.store.Catalog()
}

// AddGlobalSlot appends name to the catalog and to every open service that
// lacks it. Closed services keep their slot lists.
func (s *Service) AddGlobalSlot(ctx context.Context, slotName string) (PropagationReport, Result, error) {
	var report PropagationReport
	var res Result
	err := s.run(ctx, "add_global_slot", func(ctx context.Context) (string, error) {
		name, err := domain.ValidateSlotName(slotName)
		if err != nil {
			return slotName, err
		}
		report = PropagationReport{Slot: name, UpdatedServiceIDs: []string{}}
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			catalog := view.Catalog()
			if slices.Contains(catalog, name) {
				return domain.DuplicateError{Entity: EntitySlot, Name: name, Scope: catalogScope}
			}
			if err := tx.SetCatalog(append(catalog, name)); err != nil {
				return err
			}
			for _, svc := range view.ListServices() {
				if !svc.IsOpen || svc.HasSlot(name) {
					continue
				}
				if _, err := tx.UpdateService(svc.ID, func(svc *domain.Service) error {
					svc.SlotNames = append(svc.SlotNames, name)
					return nil
				}); err != nil {
					return err
				}
				report.UpdatedServiceIDs = append(report.UpdatedServiceIDs, svc.ID)
			}
			return nil
		})
		return name, err
	})
	return report, res, err
}

// RenameGlobalSlot renames a catalog entry and, on open services, the slot
// and the assignments holding it. Assignments are kept, not recreated.
func (s *Service) RenameGlobalSlot(ctx context.Context, oldName, newName string) (PropagationReport, Result, error) {
	var report PropagationReport
	var res Result
	err := s.run(ctx, "rename_global_slot", func(ctx context.Context) (string, error) {
		from := domain.NormalizeSlotName(oldName)
		to, err := domain.ValidateSlotName(newName)
		if err != nil {
			return from, err
		}
		report = PropagationReport{Slot: to, PreviousName: from, UpdatedServiceIDs: []string{}}
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			catalog := view.Catalog()
			idx := slices.Index(catalog, from)
			if idx < 0 {
				return domain.NotFoundError{Entity: EntitySlot, ID: from}
			}
			if from == to {
				return nil
			}
			if slices.Contains(catalog, to) {
				return domain.DuplicateError{Entity: EntitySlot, Name: to, Scope: catalogScope}
			}
			var targets []string
			for _, svc := range view.ListServices() {
				if !svc.IsOpen || !svc.HasSlot(from) {
					continue
				}
				if svc.HasSlot(to) {
					return domain.DuplicateError{Entity: EntitySlot, Name: to, Scope: "service " + svc.ID}
				}
				targets = append(targets, svc.ID)
			}
			catalog[idx] = to
			if err := tx.SetCatalog(catalog); err != nil {
				return err
			}
			for _, id := range targets {
				if _, err := tx.UpdateService(id, func(svc *domain.Service) error {
					svc.SlotNames[slices.Index(svc.SlotNames, from)] = to
					return nil
				}); err != nil {
					return err
				}
				report.UpdatedServiceIDs = append(report.UpdatedServiceIDs, id)
				for _, a := range assignmentsForService(view, id) {
					if a.SlotName != from {
						continue
					}
					if _, err := tx.UpdateAssignment(a.ID, func(a *Assignment) error {
						a.SlotName = to
						return nil
					}); err != nil {
						return err
					}
					report.RenamedAssignmentIDs = append(report.RenamedAssignmentIDs, a.ID)
				}
			}
			return nil
		})
		return from, err
	})
	return report, res, err
}

// RemoveGlobalSlot drops a catalog entry, removes the slot from open services
// and deletes the assignments holding it there. Callers confirm with the user
// beforehand.
func (s *Service) RemoveGlobalSlot(ctx context.Context, slotName string) (PropagationReport, Result, error) {
	var report PropagationReport
	var res Result
	err := s.run(ctx, "remove_global_slot", func(ctx context.Context) (string, error) {
		name := domain.NormalizeSlotName(slotName)
		report = PropagationReport{Slot: name, UpdatedServiceIDs: []string{}}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			catalog := view.Catalog()
			if !slices.Contains(catalog, name) {
				return domain.NotFoundError{Entity: EntitySlot, ID: name}
			}
			if err := tx.SetCatalog(slices.DeleteFunc(catalog, func(n string) bool { return n == name })); err != nil {
				return err
			}
			for _, svc := range view.ListServices() {
				if !svc.IsOpen || !svc.HasSlot(name) {
					continue
				}
				for _, a := range assignmentsForService(view, svc.ID) {
					if a.SlotName != name {
						continue
					}
					if err := tx.DeleteAssignment(a.ID); err != nil {
						return err
					}
					report.RemovedAssignmentIDs = append(report.RemovedAssignmentIDs, a.ID)
				}
				if _, err := tx.UpdateService(svc.ID, func(svc *domain.Service) error {
					svc.SlotNames = slices.DeleteFunc(svc.SlotNames, func(n string) bool { return n == name })
					return nil
				}); err != nil {
					return err
				}
				report.UpdatedServiceIDs = append(report.UpdatedServiceIDs, svc.ID)
			}
			return nil
		})
		return name, err
	})
	return report, res, err
}
