// Package domain defines the persistent scheduling entities, value types,
// typed command errors and rule evaluation primitives used by escala.
package domain

import (
	"slices"
	"time"
)

// EntityType identifies the type of record stored in the scheduling domain.
type EntityType string

// Supported entity type identifiers used in Change records and errors.
const (
	// EntityVolunteer identifies a volunteer (user) record.
	EntityVolunteer EntityType = "volunteer"
	// EntityService identifies a scheduled meeting instance.
	EntityService EntityType = "service"
	// EntityAssignment identifies the binding of a volunteer to a slot.
	EntityAssignment EntityType = "assignment"
	// EntitySlot identifies a slot name, either in the catalog or on a service.
	EntitySlot EntityType = "slot"
	// EntityCatalog identifies the global slot catalog.
	EntityCatalog EntityType = "slot_catalog"
)

// Role is the closed set of volunteer privileges.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleServo Role = "SERVO"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleServo
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Volunteer is a person who can fill slots. Identity persists across
// sessions keyed by the normalized phone number.
type Volunteer struct {
	Base
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Role        Role   `json:"role"`
	AvatarKey   string `json:"avatar_key,omitempty"`
}

// IsAdmin reports whether the volunteer carries the ADMIN role.
func (v Volunteer) IsAdmin() bool { return v.Role == RoleAdmin }

// Service is one scheduled meeting requiring volunteer coverage.
// SlotNames is owned by the service; it is copied from the catalog at
// creation and only changes through explicit commands.
type Service struct {
	Base
	Date        string   `json:"date"`
	Time        string   `json:"time"`
	DayOfWeek   string   `json:"day_of_week"`
	IsOpen      bool     `json:"is_open"`
	Description string   `json:"description,omitempty"`
	SlotNames   []string `json:"slot_names"`
}

// HasSlot reports whether name is one of the service's slots.
func (s Service) HasSlot(name string) bool {
	return slices.Contains(s.SlotNames, name)
}

// Assignment binds one volunteer to one slot on one service.
type Assignment struct {
	Base
	ServiceID     string `json:"service_id"`
	VolunteerID   string `json:"volunteer_id"`
	VolunteerName string `json:"volunteer_name"`
	SlotName      string `json:"slot_name"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the non-blocking violations.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity != SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}

// PropagationReport summarizes the cascade of a global catalog edit.
type PropagationReport struct {
	Slot                 string   `json:"slot"`
	PreviousName         string   `json:"previous_name,omitempty"`
	UpdatedServiceIDs    []string `json:"updated_service_ids"`
	RenamedAssignmentIDs []string `json:"renamed_assignment_ids,omitempty"`
	RemovedAssignmentIDs []string `json:"removed_assignment_ids,omitempty"`
}

// CloneService returns a deep copy of s.
func CloneService(s Service) Service {
	cp := s
	cp.SlotNames = make([]string, len(s.SlotNames))
	copy(cp.SlotNames, s.SlotNames)
	return cp
}
