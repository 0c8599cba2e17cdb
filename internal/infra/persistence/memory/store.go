// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"escala/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Volunteer aliases domain.Volunteer for in-memory persistence operations.
	Volunteer = domain.Volunteer
	// Service aliases domain.Service.
	Service = domain.Service
	// Assignment aliases domain.Assignment.
	Assignment = domain.Assignment
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	volunteers  map[string]Volunteer
	services    map[string]Service
	assignments map[string]Assignment
	catalog     []string
	active      string
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Volunteers        map[string]Volunteer  `json:"volunteers"`
	Services          map[string]Service    `json:"services"`
	Assignments       map[string]Assignment `json:"assignments"`
	Catalog           []string              `json:"slot_catalog"`
	ActiveVolunteerID string                `json:"active_volunteer_id,omitempty"`
}

func newMemoryState() memoryState {
	return memoryState{
		volunteers:  make(map[string]Volunteer),
		services:    make(map[string]Service),
		assignments: make(map[string]Assignment),
		catalog:     []string{},
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Volunteers:        make(map[string]Volunteer, len(state.volunteers)),
		Services:          make(map[string]Service, len(state.services)),
		Assignments:       make(map[string]Assignment, len(state.assignments)),
		Catalog:           append([]string{}, state.catalog...),
		ActiveVolunteerID: state.active,
	}
	for k, v := range state.volunteers {
		s.Volunteers[k] = v
	}
	for k, v := range state.services {
		s.Services[k] = domain.CloneService(v)
	}
	for k, v := range state.assignments {
		s.Assignments[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Volunteers {
		state.volunteers[k] = v
	}
	for k, v := range s.Services {
		state.services[k] = domain.CloneService(v)
	}
	for k, v := range s.Assignments {
		state.assignments[k] = v
	}
	state.catalog = append(state.catalog, s.Catalog...)
	state.active = s.ActiveVolunteerID
	return state
}

// migrateSnapshot fills nil collections and drops dangling references so
// snapshots written by older builds load cleanly.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Volunteers == nil {
		snapshot.Volunteers = map[string]Volunteer{}
	}
	if snapshot.Services == nil {
		snapshot.Services = map[string]Service{}
	}
	if snapshot.Assignments == nil {
		snapshot.Assignments = map[string]Assignment{}
	}
	if snapshot.Catalog == nil {
		snapshot.Catalog = []string{}
	}
	for id, v := range snapshot.Volunteers {
		if v.Role == "" {
			v.Role = domain.RoleServo
		}
		v.ID = id
		snapshot.Volunteers[id] = v
	}
	for id, svc := range snapshot.Services {
		if svc.SlotNames == nil {
			svc.SlotNames = []string{}
		}
		if svc.DayOfWeek == "" {
			if day, err := domain.DayOfWeek(svc.Date); err == nil {
				svc.DayOfWeek = day
			}
		}
		svc.ID = id
		snapshot.Services[id] = svc
	}
	for id, a := range snapshot.Assignments {
		if _, ok := snapshot.Services[a.ServiceID]; !ok {
			delete(snapshot.Assignments, id)
			continue
		}
		if _, ok := snapshot.Volunteers[a.VolunteerID]; !ok {
			delete(snapshot.Assignments, id)
		}
	}
	if _, ok := snapshot.Volunteers[snapshot.ActiveVolunteerID]; !ok {
		snapshot.ActiveVolunteerID = ""
	}
	return snapshot
}

// DefaultSnapshot returns the first-run state: the default slot catalog and
// the initial service list, each service copying the catalog.
func DefaultSnapshot(now time.Time) Snapshot {
	snapshot := migrateSnapshot(Snapshot{Catalog: domain.DefaultSlotCatalog()})
	for _, seed := range domain.DefaultSeedServices() {
		day, err := domain.DayOfWeek(seed.Date)
		if err != nil {
			panic(fmt.Errorf("memory: invalid seed date %q: %w", seed.Date, err))
		}
		id := uuid.NewString()
		snapshot.Services[id] = Service{
			Base:        domain.Base{ID: id, CreatedAt: now, UpdatedAt: now},
			Date:        seed.Date,
			Time:        seed.Time,
			DayOfWeek:   day,
			IsOpen:      seed.Open,
			Description: seed.Description,
			SlotNames:   append([]string{}, snapshot.Catalog...),
		}
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	return memoryStateFromSnapshot(snapshotFromMemoryState(s))
}

// Store provides an in-memory transactional store for the scheduling domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithNow overrides the clock used to stamp CreatedAt/UpdatedAt.
func WithNow(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListVolunteers returns all volunteers within the snapshot ordered by name.
func (v transactionView) ListVolunteers() []Volunteer {
	return sortedVolunteers(v.state.volunteers)
}

// ListServices returns all services ordered by date then time.
func (v transactionView) ListServices() []Service {
	return sortedServices(v.state.services)
}

// ListAssignments returns all assignments within the snapshot.
func (v transactionView) ListAssignments() []Assignment {
	return sortedAssignments(v.state.assignments)
}

// FindVolunteer retrieves a volunteer by ID from the snapshot.
func (v transactionView) FindVolunteer(id string) (Volunteer, bool) {
	vol, ok := v.state.volunteers[id]
	return vol, ok
}

// FindService retrieves a service by ID from the snapshot.
func (v transactionView) FindService(id string) (Service, bool) {
	svc, ok := v.state.services[id]
	if !ok {
		return Service{}, false
	}
	return domain.CloneService(svc), true
}

// FindAssignment retrieves an assignment by ID from the snapshot.
func (v transactionView) FindAssignment(id string) (Assignment, bool) {
	a, ok := v.state.assignments[id]
	return a, ok
}

// Catalog returns a copy of the global slot catalog.
func (v transactionView) Catalog() []string {
	return append([]string{}, v.state.catalog...)
}

// ActiveVolunteerID returns the identity of the active session, if any.
func (v transactionView) ActiveVolunteerID() string {
	return v.state.active
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// helper to record and append change entries.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindVolunteer exposes volunteer lookup within the transaction scope.
func (tx *transaction) FindVolunteer(id string) (Volunteer, bool) {
	v, ok := tx.state.volunteers[id]
	return v, ok
}

// FindService exposes service lookup within the transaction scope.
func (tx *transaction) FindService(id string) (Service, bool) {
	svc, ok := tx.state.services[id]
	if !ok {
		return Service{}, false
	}
	return domain.CloneService(svc), true
}

// FindAssignment exposes assignment lookup within the transaction scope.
func (tx *transaction) FindAssignment(id string) (Assignment, bool) {
	a, ok := tx.state.assignments[id]
	return a, ok
}

// CreateVolunteer stores a new volunteer within the transaction.
func (tx *transaction) CreateVolunteer(v Volunteer) (Volunteer, error) {
	if v.ID == "" {
		v.ID = tx.store.newID()
	}
	if _, exists := tx.state.volunteers[v.ID]; exists {
		return Volunteer{}, fmt.Errorf("volunteer %q already exists", v.ID)
	}
	if v.Role == "" {
		v.Role = domain.RoleServo
	}
	v.CreatedAt = tx.now
	v.UpdatedAt = tx.now
	tx.state.volunteers[v.ID] = v
	tx.recordChange(Change{Entity: domain.EntityVolunteer, Action: domain.ActionCreate, After: v})
	return v, nil
}

// UpdateVolunteer mutates a volunteer using the provided mutator function.
func (tx *transaction) UpdateVolunteer(id string, mutator func(*Volunteer) error) (Volunteer, error) {
	current, ok := tx.state.volunteers[id]
	if !ok {
		return Volunteer{}, domain.NotFoundError{Entity: domain.EntityVolunteer, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Volunteer{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.volunteers[id] = current
	tx.recordChange(Change{Entity: domain.EntityVolunteer, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteVolunteer removes a volunteer. Assignments must be removed first.
func (tx *transaction) DeleteVolunteer(id string) error {
	current, ok := tx.state.volunteers[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityVolunteer, ID: id}
	}
	for _, a := range tx.state.assignments {
		if a.VolunteerID == id {
			return fmt.Errorf("volunteer %q still referenced by assignment %q", id, a.ID)
		}
	}
	delete(tx.state.volunteers, id)
	if tx.state.active == id {
		tx.state.active = ""
	}
	tx.recordChange(Change{Entity: domain.EntityVolunteer, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateService stores a new service.
func (tx *transaction) CreateService(svc Service) (Service, error) {
	if svc.ID == "" {
		svc.ID = tx.store.newID()
	}
	if _, exists := tx.state.services[svc.ID]; exists {
		return Service{}, fmt.Errorf("service %q already exists", svc.ID)
	}
	if svc.SlotNames == nil {
		svc.SlotNames = []string{}
	}
	svc.CreatedAt = tx.now
	svc.UpdatedAt = tx.now
	tx.state.services[svc.ID] = domain.CloneService(svc)
	tx.recordChange(Change{Entity: domain.EntityService, Action: domain.ActionCreate, After: domain.CloneService(svc)})
	return domain.CloneService(svc), nil
}

// UpdateService mutates a service using the provided mutator function.
func (tx *transaction) UpdateService(id string, mutator func(*Service) error) (Service, error) {
	stored, ok := tx.state.services[id]
	if !ok {
		return Service{}, domain.NotFoundError{Entity: domain.EntityService, ID: id}
	}
	before := domain.CloneService(stored)
	current := domain.CloneService(stored)
	if err := mutator(&current); err != nil {
		return Service{}, err
	}
	if current.SlotNames == nil {
		current.SlotNames = []string{}
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.services[id] = domain.CloneService(current)
	tx.recordChange(Change{Entity: domain.EntityService, Action: domain.ActionUpdate, Before: before, After: domain.CloneService(current)})
	return domain.CloneService(current), nil
}

// DeleteService removes a service. Assignments must be removed first.
func (tx *transaction) DeleteService(id string) error {
	current, ok := tx.state.services[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityService, ID: id}
	}
	for _, a := range tx.state.assignments {
		if a.ServiceID == id {
			return fmt.Errorf("service %q still referenced by assignment %q", id, a.ID)
		}
	}
	delete(tx.state.services, id)
	tx.recordChange(Change{Entity: domain.EntityService, Action: domain.ActionDelete, Before: domain.CloneService(current)})
	return nil
}

// CreateAssignment stores a new assignment after checking its references.
func (tx *transaction) CreateAssignment(a Assignment) (Assignment, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.assignments[a.ID]; exists {
		return Assignment{}, fmt.Errorf("assignment %q already exists", a.ID)
	}
	if _, ok := tx.state.services[a.ServiceID]; !ok {
		return Assignment{}, domain.NotFoundError{Entity: domain.EntityService, ID: a.ServiceID}
	}
	if _, ok := tx.state.volunteers[a.VolunteerID]; !ok {
		return Assignment{}, domain.NotFoundError{Entity: domain.EntityVolunteer, ID: a.VolunteerID}
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.assignments[a.ID] = a
	tx.recordChange(Change{Entity: domain.EntityAssignment, Action: domain.ActionCreate, After: a})
	return a, nil
}

// UpdateAssignment mutates an assignment using the provided mutator function.
func (tx *transaction) UpdateAssignment(id string, mutator func(*Assignment) error) (Assignment, error) {
	current, ok := tx.state.assignments[id]
	if !ok {
		return Assignment{}, domain.NotFoundError{Entity: domain.EntityAssignment, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Assignment{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.assignments[id] = current
	tx.recordChange(Change{Entity: domain.EntityAssignment, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteAssignment removes an assignment from the transaction state.
func (tx *transaction) DeleteAssignment(id string) error {
	current, ok := tx.state.assignments[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityAssignment, ID: id}
	}
	delete(tx.state.assignments, id)
	tx.recordChange(Change{Entity: domain.EntityAssignment, Action: domain.ActionDelete, Before: current})
	return nil
}

// SetCatalog replaces the global slot catalog.
func (tx *transaction) SetCatalog(names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			return domain.DuplicateError{Entity: domain.EntitySlot, Name: name, Scope: "catalog"}
		}
		seen[name] = struct{}{}
	}
	before := append([]string{}, tx.state.catalog...)
	tx.state.catalog = append([]string{}, names...)
	tx.recordChange(Change{Entity: domain.EntityCatalog, Action: domain.ActionUpdate, Before: before, After: append([]string{}, names...)})
	return nil
}

// SetActiveVolunteer marks id as the active session identity; an empty id
// clears the session.
func (tx *transaction) SetActiveVolunteer(id string) error {
	if id != "" {
		if _, ok := tx.state.volunteers[id]; !ok {
			return domain.NotFoundError{Entity: domain.EntityVolunteer, ID: id}
		}
	}
	tx.state.active = id
	return nil
}

// Read helpers ---------------------------------------------------------------

// GetVolunteer retrieves a volunteer by ID from committed state.
func (s *Store) GetVolunteer(id string) (Volunteer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state.volunteers[id]
	return v, ok
}

// ListVolunteers returns all volunteers from committed state.
func (s *Store) ListVolunteers() []Volunteer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedVolunteers(s.state.volunteers)
}

// GetService retrieves a service by ID.
func (s *Store) GetService(id string) (Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.state.services[id]
	if !ok {
		return Service{}, false
	}
	return domain.CloneService(svc), true
}

// ListServices returns all services ordered by date then time.
func (s *Store) ListServices() []Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedServices(s.state.services)
}

// GetAssignment retrieves an assignment by ID.
func (s *Store) GetAssignment(id string) (Assignment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.assignments[id]
	return a, ok
}

// ListAssignments returns all assignments from committed state.
func (s *Store) ListAssignments() []Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedAssignments(s.state.assignments)
}

// Catalog returns the committed global slot catalog.
func (s *Store) Catalog() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.state.catalog...)
}

// ActiveVolunteerID returns the committed active session identity.
func (s *Store) ActiveVolunteerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.active
}

func sortedVolunteers(in map[string]Volunteer) []Volunteer {
	out := make([]Volunteer, 0, len(in))
	for _, v := range in {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortedServices(in map[string]Service) []Service {
	out := make([]Service, 0, len(in))
	for _, svc := range in {
		out = append(out, domain.CloneService(svc))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortedAssignments(in map[string]Assignment) []Assignment {
	out := make([]Assignment, 0, len(in))
	for _, a := range in {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ServiceID != out[j].ServiceID {
			return out[i].ServiceID < out[j].ServiceID
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
