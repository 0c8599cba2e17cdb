package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateVolunteer(Volunteer) (Volunteer, error)
	UpdateVolunteer(id string, mutator func(*Volunteer) error) (Volunteer, error)
	DeleteVolunteer(id string) error
	CreateService(Service) (Service, error)
	UpdateService(id string, mutator func(*Service) error) (Service, error)
	DeleteService(id string) error
	CreateAssignment(Assignment) (Assignment, error)
	UpdateAssignment(id string, mutator func(*Assignment) error) (Assignment, error)
	DeleteAssignment(id string) error
	SetCatalog(names []string) error
	SetActiveVolunteer(id string) error
	FindVolunteer(id string) (Volunteer, bool)
	FindService(id string) (Service, bool)
	FindAssignment(id string) (Assignment, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// query paths.
type TransactionView interface {
	RuleView
	Catalog() []string
	ActiveVolunteerID() string
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetVolunteer(id string) (Volunteer, bool)
	ListVolunteers() []Volunteer
	GetService(id string) (Service, bool)
	ListServices() []Service
	GetAssignment(id string) (Assignment, bool)
	ListAssignments() []Assignment
	Catalog() []string
	ActiveVolunteerID() string
}

// KeyValueStore is the durable backend contract for snapshot persistence.
// Get reports ok=false when the key has never been written.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}
