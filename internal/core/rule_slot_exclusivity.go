package core

import (
	"context"
	"fmt"

	"escala/pkg/domain"
)

// SlotExclusivityRule blocks a second assignment to the same slot of a service.
func SlotExclusivityRule() domain.Rule {
	return slotExclusivityRule{}
}

type slotExclusivityRule struct{}

func (slotExclusivityRule) Name() string { return "slot_exclusivity" }

func (r slotExclusivityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	holders := make(map[[2]string]string)
	for _, a := range view.ListAssignments() {
		k := [2]string{a.ServiceID, a.SlotName}
		if first, taken := holders[k]; taken {
			res.Violations = append(res.Violations, assignmentViolation(r.Name(), a.ID,
				fmt.Sprintf("slot %q of service %s already held by assignment %s", a.SlotName, a.ServiceID, first)))
			continue
		}
		holders[k] = a.ID
	}
	return res, nil
}
