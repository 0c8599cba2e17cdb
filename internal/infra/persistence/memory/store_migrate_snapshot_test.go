package memory

import (
	"testing"
	"time"

	"escala/pkg/domain"
)

func TestMigrateSnapshotInitialisesAndFilters(t *testing.T) {
	snapshot := Snapshot{
		Services: map[string]Service{
			"s1": {Date: "2023-11-23", Time: "20:00"},
		},
		Assignments: map[string]Assignment{
			"orphan-service":   {ServiceID: "missing", VolunteerID: "v1", SlotName: "Café"},
			"orphan-volunteer": {ServiceID: "s1", VolunteerID: "missing", SlotName: "Café"},
		},
		ActiveVolunteerID: "ghost",
	}

	migrated := migrateSnapshot(snapshot)

	if migrated.Volunteers == nil || migrated.Catalog == nil {
		t.Fatalf("expected migrateSnapshot to initialise nil collections")
	}
	if len(migrated.Assignments) != 0 {
		t.Fatalf("expected dangling assignments to be dropped, got %d", len(migrated.Assignments))
	}
	svc := migrated.Services["s1"]
	if svc.ID != "s1" || svc.DayOfWeek != "Quinta-feira" || svc.SlotNames == nil {
		t.Fatalf("expected service normalised, got %+v", svc)
	}
	if migrated.ActiveVolunteerID != "" {
		t.Fatalf("expected unknown active volunteer to be cleared")
	}
}

func TestDefaultSnapshotSeedsCatalogAndServices(t *testing.T) {
	now := time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)
	snapshot := DefaultSnapshot(now)
	if len(snapshot.Catalog) != len(domain.DefaultSlotCatalog()) {
		t.Fatalf("expected default catalog, got %v", snapshot.Catalog)
	}
	if len(snapshot.Services) != 3 {
		t.Fatalf("expected three seed services, got %d", len(snapshot.Services))
	}
	var closed int
	for _, svc := range snapshot.Services {
		if len(svc.SlotNames) != len(snapshot.Catalog) {
			t.Fatalf("expected seed service to copy catalog, got %v", svc.SlotNames)
		}
		if !svc.IsOpen {
			closed++
			if svc.Description != "EBD" || svc.DayOfWeek != "Domingo" {
				t.Fatalf("unexpected closed seed %+v", svc)
			}
		}
	}
	if closed != 1 {
		t.Fatalf("expected exactly one closed seed service, got %d", closed)
	}
}
