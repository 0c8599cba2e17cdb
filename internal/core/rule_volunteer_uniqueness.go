package core

import (
	"context"
	"fmt"

	"escala/pkg/domain"
)

// VolunteerUniquenessRule blocks a volunteer from holding two slots of the
// same service.
func VolunteerUniquenessRule() domain.Rule {
	return volunteerUniquenessRule{}
}

type volunteerUniquenessRule struct{}

func (volunteerUniquenessRule) Name() string { return "volunteer_uniqueness" }

func (r volunteerUniquenessRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	seen := make(map[[2]string]string)
	for _, a := range view.ListAssignments() {
		k := [2]string{a.ServiceID, a.VolunteerID}
		if first, dup := seen[k]; dup {
			res.Violations = append(res.Violations, assignmentViolation(r.Name(), a.ID,
				fmt.Sprintf("volunteer %s already serves service %s through assignment %s", a.VolunteerID, a.ServiceID, first)))
			continue
		}
		seen[k] = a.ID
	}
	return res, nil
}
