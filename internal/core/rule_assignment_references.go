package core

import (
	"context"
	"fmt"

	"escala/pkg/domain"
)

// AssignmentReferencesRule blocks assignments whose service or volunteer does
// not exist.
func AssignmentReferencesRule() domain.Rule {
	return assignmentReferencesRule{}
}

type assignmentReferencesRule struct{}

func (assignmentReferencesRule) Name() string { return "assignment_references" }

func (r assignmentReferencesRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, a := range view.ListAssignments() {
		if _, ok := view.FindService(a.ServiceID); !ok {
			res.Violations = append(res.Violations, assignmentViolation(r.Name(), a.ID, fmt.Sprintf("assignment %s references missing service %s", a.ID, a.ServiceID)))
		}
		if _, ok := view.FindVolunteer(a.VolunteerID); !ok {
			res.Violations = append(res.Violations, assignmentViolation(r.Name(), a.ID, fmt.Sprintf("assignment %s references missing volunteer %s", a.ID, a.VolunteerID)))
		}
	}
	return res, nil
}

func assignmentViolation(rule, assignmentID, message string) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityAssignment,
		EntityID: assignmentID,
	}
}
