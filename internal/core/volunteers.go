package core

import (
	"context"
	"sort"
	"strings"

	"escala/pkg/domain"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// VolunteerInput describes an administrator-registered volunteer. An empty
// Role defaults to SERVO.
type VolunteerInput struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Role        Role   `json:"role,omitempty"`
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.ValidationError{Field: "name", Reason: "required"}
	}
	return name, nil
}

func validatePhone(phone string) (string, error) {
	digits := domain.NormalizePhone(phone)
	if digits == "" {
		return "", domain.ValidationError{Field: "phone_number", Reason: "required"}
	}
	return digits, nil
}

func findByPhone(view domain.RuleView, phone string) (Volunteer, bool) {
	for _, v := range view.ListVolunteers() {
		if v.PhoneNumber == phone {
			return v, true
		}
	}
	return Volunteer{}, false
}

// adminByConvention applies the informal ADMIN convention: a name containing
// "admin" or the configured sentinel phone.
func (s *Service) adminByConvention(name, phone string) bool {
	if strings.Contains(strings.ToLower(name), "admin") {
		return true
	}
	return s.adminPhone != "" && phone == s.adminPhone
}

// CreateVolunteer registers a volunteer on behalf of an administrator.
func (s *Service) CreateVolunteer(ctx context.Context, in VolunteerInput) (Volunteer, Result, error) {
	var created Volunteer
	var res Result
	err := s.run(ctx, "create_volunteer", func(ctx context.Context) (string, error) {
		name, err := validateName(in.Name)
		if err != nil {
			return "", err
		}
		phone, err := validatePhone(in.PhoneNumber)
		if err != nil {
			return "", err
		}
		role := in.Role
		if role == "" {
			role = RoleServo
		}
		if !role.Valid() {
			return "", domain.ValidationError{Field: "role", Reason: "must be ADMIN or SERVO"}
		}
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if existing, ok := findByPhone(tx.Snapshot(), phone); ok {
				return domain.DuplicateError{Entity: EntityVolunteer, Name: existing.PhoneNumber, Scope: "phone numbers"}
			}
			var err error
			created, err = tx.CreateVolunteer(Volunteer{Name: name, PhoneNumber: phone, Role: role})
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// Identify looks up the volunteer by phone, creating one on first sight, and
// marks it as the active session identity. Existing records keep their name
// and role.
func (s *Service) Identify(ctx context.Context, name, phone string) (Volunteer, Result, error) {
	var identified Volunteer
	var res Result
	err := s.run(ctx, "identify_volunteer", func(ctx context.Context) (string, error) {
		name, err := validateName(name)
		if err != nil {
			return "", err
		}
		phone, err := validatePhone(phone)
		if err != nil {
			return "", err
		}
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			existing, ok := findByPhone(tx.Snapshot(), phone)
			if ok {
				identified = existing
			} else {
				role := RoleServo
				if s.adminByConvention(name, phone) {
					role = RoleAdmin
				}
				var err error
				if identified, err = tx.CreateVolunteer(Volunteer{Name: name, PhoneNumber: phone, Role: role}); err != nil {
					return err
				}
			}
			return tx.SetActiveVolunteer(identified.ID)
		})
		return identified.ID, err
	})
	return identified, res, err
}

// SignOut clears the active session identity.
func (s *Service) SignOut(ctx context.Context) error {
	return s.run(ctx, "sign_out", func(ctx context.Context) (string, error) {
		active := s.store.ActiveVolunteerID()
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.SetActiveVolunteer("")
		})
		return active, err
	})
}

// ActiveVolunteer returns the volunteer of the active session, if any.
func (s *Service) ActiveVolunteer() (Volunteer, bool) {
	id := s.store.ActiveVolunteerID()
	if id == "" {
		return Volunteer{}, false
	}
	return s.store.GetVolunteer(id)
}

// GetVolunteer returns a volunteer by ID.
func (s *Service) GetVolunteer(id string) (Volunteer, bool) {
	return s.store.GetVolunteer(id)
}

// ListVolunteers returns volunteers in Portuguese collation order.
func (s *Service) ListVolunteers() []Volunteer {
	vols := s.store.ListVolunteers()
	c := collate.New(language.BrazilianPortuguese, collate.IgnoreCase)
	sort.SliceStable(vols, func(i, j int) bool {
		return c.CompareString(vols[i].Name, vols[j].Name) < 0
	})
	return vols
}

// RenameVolunteer updates the name and rewrites the name snapshot of every
// assignment held by the volunteer.
func (s *Service) RenameVolunteer(ctx context.Context, id, newName string) (Volunteer, Result, error) {
	var updated Volunteer
	var res Result
	err := s.run(ctx, "rename_volunteer", func(ctx context.Context) (string, error) {
		name, err := validateName(newName)
		if err != nil {
			return id, err
		}
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateVolunteer(id, func(v *Volunteer) error {
				v.Name = name
				return nil
			})
			if err != nil {
				return err
			}
			for _, a := range assignmentsForVolunteer(tx.Snapshot(), id) {
				if _, err := tx.UpdateAssignment(a.ID, func(a *Assignment) error {
					a.VolunteerName = name
					return nil
				}); err != nil {
					return err
				}
			}
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// UpdateVolunteerPhone changes the identifying phone number.
func (s *Service) UpdateVolunteerPhone(ctx context.Context, id, phone string) (Volunteer, Result, error) {
	var updated Volunteer
	var res Result
	err := s.run(ctx, "update_volunteer_phone", func(ctx context.Context) (string, error) {
		digits, err := validatePhone(phone)
		if err != nil {
			return id, err
		}
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if other, ok := findByPhone(tx.Snapshot(), digits); ok && other.ID != id {
				return domain.DuplicateError{Entity: EntityVolunteer, Name: digits, Scope: "phone numbers"}
			}
			var err error
			updated, err = tx.UpdateVolunteer(id, func(v *Volunteer) error {
				v.PhoneNumber = digits
				return nil
			})
			return err
		})
		return id, err
	})
	return updated, res, err
}

// SetVolunteerRole assigns a role explicitly.
func (s *Service) SetVolunteerRole(ctx context.Context, id string, role Role) (Volunteer, Result, error) {
	var updated Volunteer
	var res Result
	err := s.run(ctx, "set_volunteer_role", func(ctx context.Context) (string, error) {
		if !role.Valid() {
			return id, domain.ValidationError{Field: "role", Reason: "must be ADMIN or SERVO"}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateVolunteer(id, func(v *Volunteer) error {
				v.Role = role
				return nil
			})
			return err
		})
		return id, err
	})
	return updated, res, err
}

// DeleteVolunteer removes the volunteer and every assignment it holds.
func (s *Service) DeleteVolunteer(ctx context.Context, id string) (Result, error) {
	var res Result
	var avatarKey string
	err := s.run(ctx, "delete_volunteer", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			vol, ok := tx.FindVolunteer(id)
			if !ok {
				return domain.NotFoundError{Entity: EntityVolunteer, ID: id}
			}
			avatarKey = vol.AvatarKey
			for _, a := range assignmentsForVolunteer(tx.Snapshot(), id) {
				if err := tx.DeleteAssignment(a.ID); err != nil {
					return err
				}
			}
			return tx.DeleteVolunteer(id)
		})
		return id, err
	})
	if err == nil || isPersistFailure(err) {
		s.discardBlob(ctx, avatarKey)
	}
	return res, err
}
