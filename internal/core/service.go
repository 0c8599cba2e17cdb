package core

import (
	"context"
	"errors"
	"html"
	"strings"
	"time"

	"escala/internal/blob"
	"escala/internal/infra/persistence/memory"
	"escala/pkg/domain"

	"github.com/microcosm-cc/bluemonday"
)

// Service exposes the scheduling commands and queries. Every command runs in a
// single store transaction so cascades are applied atomically.
type Service struct {
	store      PersistentStore
	clock      Clock
	logger     Logger
	audit      AuditRecorder
	metrics    MetricsRecorder
	tracer     Tracer
	blobs      blob.Store
	adminPhone string
	policy     *bluemonday.Policy
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service{
		store:      store,
		clock:      cfg.clock,
		logger:     cfg.logger,
		audit:      cfg.audit,
		metrics:    cfg.metrics,
		tracer:     cfg.tracer,
		blobs:      cfg.blobs,
		adminPhone: domain.NormalizePhone(cfg.adminPhone),
		policy:     bluemonday.StrictPolicy(),
	}
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

type operationMeta struct {
	entity EntityType
	action Action
}

var operationCatalog = map[string]operationMeta{
	"create_service":          {EntityService, ActionCreate},
	"update_service":          {EntityService, ActionUpdate},
	"delete_service":          {EntityService, ActionDelete},
	"set_service_open":        {EntityService, ActionUpdate},
	"add_service_slot":        {EntityService, ActionUpdate},
	"remove_service_slot":     {EntityService, ActionUpdate},
	"register_volunteer":      {EntityAssignment, ActionCreate},
	"unregister":              {EntityAssignment, ActionDelete},
	"reassign_slot":           {EntityAssignment, ActionUpdate},
	"create_volunteer":        {EntityVolunteer, ActionCreate},
	"identify_volunteer":      {EntityVolunteer, ActionUpdate},
	"sign_out":                {EntityVolunteer, ActionUpdate},
	"rename_volunteer":        {EntityVolunteer, ActionUpdate},
	"update_volunteer_phone":  {EntityVolunteer, ActionUpdate},
	"set_volunteer_role":      {EntityVolunteer, ActionUpdate},
	"set_volunteer_avatar":    {EntityVolunteer, ActionUpdate},
	"remove_volunteer_avatar": {EntityVolunteer, ActionUpdate},
	"delete_volunteer":        {EntityVolunteer, ActionDelete},
	"add_global_slot":         {EntityCatalog, ActionUpdate},
	"rename_global_slot":      {EntityCatalog, ActionUpdate},
	"remove_global_slot":      {EntityCatalog, ActionUpdate},
}

// run wraps an operation with tracing, metrics, logging and audit. fn returns
// the affected entity ID for the audit trail.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) (string, error)) error {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	entityID, err := fn(ctx)
	duration := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		if errors.Is(err, domain.ErrPersist) {
			s.logger.Error("snapshot write-through failed", "operation", op, "entity_id", entityID, "error", err)
		} else {
			s.logger.Error("operation rejected", "operation", op, "entity_id", entityID, "kind", string(domain.KindOf(err)), "error", err)
		}
		s.recordAuditError(ctx, op, entityID, duration, err)
		return err
	}
	s.logger.Debug("operation committed", "operation", op, "entity_id", entityID, "duration", duration)
	s.recordAuditSuccess(ctx, op, entityID, duration)
	return nil
}

func (s *Service) recordAuditSuccess(ctx context.Context, op, entityID string, duration time.Duration) {
	s.recordAudit(ctx, op, entityID, duration, nil)
}

func (s *Service) recordAuditError(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	s.recordAudit(ctx, op, entityID, duration, err)
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	meta, ok := operationCatalog[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// logWarnings surfaces non-blocking rule violations.
func (s *Service) logWarnings(op string, res Result) {
	for _, v := range res.Warnings() {
		s.logger.Warn("rule warning", "operation", op, "rule", v.Rule, "entity", string(v.Entity), "entity_id", v.EntityID, "message", v.Message)
	}
}

// sanitizeText strips markup from free text and trims it.
func (s *Service) sanitizeText(in string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(in)))
}
