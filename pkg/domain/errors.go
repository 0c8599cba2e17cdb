package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a rejected command so callers can map it to a
// user-facing message or transport status.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindNotFound        ErrorKind = "not_found"
	KindDuplicate       ErrorKind = "duplicate"
	KindClosed          ErrorKind = "closed"
	KindSlotOccupied    ErrorKind = "slot_occupied"
	KindAlreadyAssigned ErrorKind = "already_assigned"
	KindInvalidSlot     ErrorKind = "invalid_slot"
	KindRuleViolation   ErrorKind = "rule_violation"
	KindInternal        ErrorKind = "internal"
)

// ErrPersist wraps write-through failures. The in-memory commit has already
// happened when it is returned.
var ErrPersist = errors.New("persist snapshot")

// ValidationError reports a missing or malformed field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Kind implements kinded.
func (ValidationError) Kind() ErrorKind { return KindValidation }

// NotFoundError is returned when a referenced record does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Kind implements kinded.
func (NotFoundError) Kind() ErrorKind { return KindNotFound }

// DuplicateError is returned on a name collision in a uniqueness-constrained set.
type DuplicateError struct {
	Entity EntityType
	Name   string
	Scope  string
}

func (e DuplicateError) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("%s %q already exists in %s", e.Entity, e.Name, e.Scope)
	}
	return fmt.Sprintf("%s %q already exists", e.Entity, e.Name)
}

// Kind implements kinded.
func (DuplicateError) Kind() ErrorKind { return KindDuplicate }

// ClosedError is returned when registering on a closed service.
type ClosedError struct {
	ServiceID string
}

func (e ClosedError) Error() string {
	return fmt.Sprintf("service %s is closed for registration", e.ServiceID)
}

// Kind implements kinded.
func (ClosedError) Kind() ErrorKind { return KindClosed }

// SlotOccupiedError is returned when another assignment already holds the slot.
type SlotOccupiedError struct {
	ServiceID    string
	SlotName     string
	AssignmentID string
}

func (e SlotOccupiedError) Error() string {
	return fmt.Sprintf("slot %q on service %s is already taken", e.SlotName, e.ServiceID)
}

// Kind implements kinded.
func (SlotOccupiedError) Kind() ErrorKind { return KindSlotOccupied }

// AlreadyAssignedError is returned when the volunteer already serves on the service.
type AlreadyAssignedError struct {
	ServiceID    string
	VolunteerID  string
	AssignmentID string
}

func (e AlreadyAssignedError) Error() string {
	return fmt.Sprintf("volunteer %s is already registered on service %s", e.VolunteerID, e.ServiceID)
}

// Kind implements kinded.
func (AlreadyAssignedError) Kind() ErrorKind { return KindAlreadyAssigned }

// InvalidSlotError is returned when the slot is not offered by the service.
type InvalidSlotError struct {
	ServiceID string
	SlotName  string
}

func (e InvalidSlotError) Error() string {
	return fmt.Sprintf("service %s has no slot %q", e.ServiceID, e.SlotName)
}

// Kind implements kinded.
func (InvalidSlotError) Kind() ErrorKind { return KindInvalidSlot }

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}

// Kind implements kinded.
func (RuleViolationError) Kind() ErrorKind { return KindRuleViolation }

type kinded interface {
	Kind() ErrorKind
}

// KindOf returns the classification of err, walking wrapped errors.
// Unclassified errors are reported as KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}
