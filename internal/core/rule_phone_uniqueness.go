package core

import (
	"context"
	"fmt"

	"escala/pkg/domain"
)

// PhoneUniquenessRule blocks two volunteers sharing a normalized phone number,
// since the phone identifies a volunteer at sign-in.
func PhoneUniquenessRule() domain.Rule {
	return phoneUniquenessRule{}
}

type phoneUniquenessRule struct{}

func (phoneUniquenessRule) Name() string { return "phone_uniqueness" }

func (r phoneUniquenessRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	owners := make(map[string]string)
	for _, v := range view.ListVolunteers() {
		phone := domain.NormalizePhone(v.PhoneNumber)
		if phone == "" {
			continue
		}
		if first, dup := owners[phone]; dup {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("volunteer %s shares phone number with volunteer %s", v.ID, first),
				Entity:   domain.EntityVolunteer,
				EntityID: v.ID,
			})
			continue
		}
		owners[phone] = v.ID
	}
	return res, nil
}
