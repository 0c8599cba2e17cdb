package core

import (
	"context"
	"fmt"

	"escala/pkg/domain"
)

// SlotMembershipRule warns when an assignment touched by the transaction holds
// a slot its service no longer offers. Only services affected by the changes
// are inspected.
func SlotMembershipRule() domain.Rule {
	return slotMembershipRule{}
}

type slotMembershipRule struct{}

func (slotMembershipRule) Name() string { return "slot_membership" }

func (r slotMembershipRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	touched := make(map[string]struct{})
	for _, change := range changes {
		switch after := change.After.(type) {
		case domain.Assignment:
			touched[after.ServiceID] = struct{}{}
		case domain.Service:
			touched[after.ID] = struct{}{}
		}
	}
	if len(touched) == 0 {
		return res, nil
	}
	for _, a := range view.ListAssignments() {
		if _, ok := touched[a.ServiceID]; !ok {
			continue
		}
		svc, ok := view.FindService(a.ServiceID)
		if !ok || svc.HasSlot(a.SlotName) {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("assignment %s holds slot %q not offered by service %s", a.ID, a.SlotName, a.ServiceID),
			Entity:   domain.EntityAssignment,
			EntityID: a.ID,
		})
	}
	return res, nil
}
