package core

import (
	"context"
	"testing"
)

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	return NewInMemoryService(nil, opts...)
}

func mustCatalog(t *testing.T, svc *Service, names ...string) {
	t.Helper()
	for _, n := range names {
		if _, _, err := svc.AddGlobalSlot(context.Background(), n); err != nil {
			t.Fatalf("add global slot %q: %v", n, err)
		}
	}
}

func mustService(t *testing.T, svc *Service, date, clock string, slots ...string) string {
	t.Helper()
	in := ServiceInput{Date: date, Time: clock, CustomSlots: len(slots) > 0, SlotNames: slots}
	created, _, err := svc.CreateService(context.Background(), in)
	if err != nil {
		t.Fatalf("create service %s %s: %v", date, clock, err)
	}
	return created.ID
}

func mustVolunteer(t *testing.T, svc *Service, name, phone string) string {
	t.Helper()
	v, _, err := svc.CreateVolunteer(context.Background(), VolunteerInput{Name: name, PhoneNumber: phone})
	if err != nil {
		t.Fatalf("create volunteer %s: %v", name, err)
	}
	return v.ID
}

func mustRegister(t *testing.T, svc *Service, serviceID, volunteerID, slot string) string {
	t.Helper()
	a, _, err := svc.RegisterVolunteer(context.Background(), serviceID, volunteerID, slot)
	if err != nil {
		t.Fatalf("register %s into %s: %v", volunteerID, slot, err)
	}
	return a.ID
}
