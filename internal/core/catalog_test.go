package core

import (
	"context"
	"slices"
	"testing"

	"escala/pkg/domain"
)

func TestRenameGlobalSlotPreservesAssignments(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	mustCatalog(t, svc, "Recepção", "Café")
	open := mustService(t, svc, "2023-11-23", "20:00")
	closed := mustService(t, svc, "2023-11-26", "09:30")
	v1 := mustVolunteer(t, svc, "Lucas", "11999990001")
	v2 := mustVolunteer(t, svc, "Ana", "11999990002")
	onOpen := mustRegister(t, svc, open, v1, "Café")
	onClosed := mustRegister(t, svc, closed, v2, "Café")
	if _, _, err := svc.SetServiceOpen(ctx, closed, false); err != nil {
		t.Fatalf("close: %v", err)
	}

	report, _, err := svc.RenameGlobalSlot(ctx, "Café", "Cafezinho")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if report.PreviousName != "Café" || !slices.Equal(report.RenamedAssignmentIDs, []string{onOpen}) {
		t.Fatalf("unexpected report %+v", report)
	}
	if !slices.Equal(svc.Catalog(), []string{"Recepção", "Cafezinho"}) {
		t.Fatalf("catalog order not kept: %v", svc.Catalog())
	}
	a, _ := svc.Store().GetAssignment(onOpen)
	if a.SlotName != "Cafezinho" || a.VolunteerID != v1 {
		t.Fatalf("assignment should be renamed in place: %+v", a)
	}
	c, _ := svc.Store().GetAssignment(onClosed)
	if c.SlotName != "Café" {
		t.Fatalf("closed service assignment must be untouched: %+v", c)
	}
	svcOpen, _ := svc.GetService(open)
	if !slices.Equal(svcOpen.SlotNames, []string{"Recepção", "Cafezinho"}) {
		t.Fatalf("slot position not kept: %v", svcOpen.SlotNames)
	}
}

func TestRenameGlobalSlotRejectsCollisions(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	mustCatalog(t, svc, "A", "B")
	s := mustService(t, svc, "2023-11-23", "20:00")
	if _, _, err := svc.AddServiceSlot(ctx, s, "Som"); err != nil {
		t.Fatalf("add service slot: %v", err)
	}

	if _, _, err := svc.RenameGlobalSlot(ctx, "Z", "Y"); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := svc.RenameGlobalSlot(ctx, "A", "B"); domain.KindOf(err) != domain.KindDuplicate {
		t.Fatalf("expected catalog duplicate, got %v", err)
	}
	if _, _, err := svc.RenameGlobalSlot(ctx, "A", "Som"); domain.KindOf(err) != domain.KindDuplicate {
		t.Fatalf("expected service duplicate, got %v", err)
	}
	if !slices.Equal(svc.Catalog(), []string{"A", "B"}) {
		t.Fatalf("rejected rename must leave catalog intact: %v", svc.Catalog())
	}
	if _, _, err := svc.RenameGlobalSlot(ctx, "A", ""); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, _, err := svc.RenameGlobalSlot(ctx, "A", "A"); err != nil {
		t.Fatalf("renaming to the same name should be a no-op, got %v", err)
	}
}

func TestGlobalSlotNamesAreNormalized(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	if _, _, err := svc.AddGlobalSlot(ctx, " Café "); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, _, err := svc.AddGlobalSlot(ctx, "Cafe\u0301"); domain.KindOf(err) != domain.KindDuplicate {
		t.Fatalf("composed and decomposed names must collide, got %v", err)
	}
	if _, _, err := svc.AddGlobalSlot(ctx, "   "); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
