package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"sync"
	"testing"
	"time"

	"escala/internal/infra/persistence/kvstore"
	"escala/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type logEntry struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) find(level, msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

func TestRunRecordsAuditMetricsAndTraces(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2023, 11, 20, 10, 0, 0, 0, time.UTC)
	audit := NewMemoryAuditLog(0)
	metrics := NewExpvarMetricsRecorder("")
	var traceOut bytes.Buffer
	tracer := NewJSONTracer(&traceOut)
	logger := &captureLogger{}
	svc := newTestService(t,
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithLogger(logger),
		WithClock(ClockFunc(func() time.Time { return fixed })),
	)

	created, _, err := svc.CreateService(ctx, ServiceInput{Date: "2023-11-23", Time: "20:00", CustomSlots: true, SlotNames: []string{"A"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := svc.RegisterVolunteer(ctx, created.ID, "ghost", "A"); err == nil {
		t.Fatalf("expected failure")
	}

	entries := audit.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected two audit entries, got %d", len(entries))
	}
	ok, failed := entries[0], entries[1]
	if ok.Operation != "create_service" || ok.Entity != EntityService || ok.Action != ActionCreate || ok.EntityID != created.ID || ok.Status != AuditStatusSuccess || !ok.Timestamp.Equal(fixed) {
		t.Fatalf("unexpected success entry %+v", ok)
	}
	if failed.Operation != "register_volunteer" || failed.Status != AuditStatusError || failed.Error == "" {
		t.Fatalf("unexpected error entry %+v", failed)
	}

	snap := metrics.Snapshot()
	if snap.Results["create_service"]["success"] != 1 || snap.Results["register_volunteer"]["error"] != 1 {
		t.Fatalf("unexpected metrics %+v", snap.Results)
	}
	if expvar.Get(metrics.Name()) == nil {
		t.Fatalf("expected expvar publication under %s", metrics.Name())
	}

	spans := tracer.Entries()
	if len(spans) != 2 || spans[1].Status != "error" {
		t.Fatalf("unexpected spans %+v", spans)
	}
	var decoded JSONTraceEntry
	if err := json.NewDecoder(&traceOut).Decode(&decoded); err != nil || decoded.Operation != "create_service" {
		t.Fatalf("expected JSON span line, got %+v %v", decoded, err)
	}

	entry, found := logger.find("error", "operation rejected")
	if !found {
		t.Fatalf("expected rejection log, got %+v", logger.entries)
	}
	if !containsArg(entry.args, "kind", string(domain.KindNotFound)) {
		t.Fatalf("expected kind in log args, got %v", entry.args)
	}
}

func containsArg(args []any, key, value string) bool {
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == key && fmt.Sprint(args[i+1]) == value {
			return true
		}
	}
	return false
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	svc := newTestService(t, WithMetricsRecorder(MultiMetricsRecorder{rec, NewExpvarMetricsRecorder("")}))
	mustCatalog(t, svc, "A")
	_, _, _ = svc.AddGlobalSlot(context.Background(), "A")

	if got := testutil.ToFloat64(rec.total.WithLabelValues("add_global_slot", "success")); got != 1 {
		t.Fatalf("expected one success, got %v", got)
	}
	if got := testutil.ToFloat64(rec.total.WithLabelValues("add_global_slot", "error")); got != 1 {
		t.Fatalf("expected one error, got %v", got)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestMemoryAuditLogBounded(t *testing.T) {
	log := NewMemoryAuditLog(2)
	for i := 0; i < 3; i++ {
		log.Record(context.Background(), AuditEntry{Operation: fmt.Sprintf("op%d", i)})
	}
	entries := log.Entries()
	if len(entries) != 2 || entries[0].Operation != "op1" || entries[1].Operation != "op2" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

type failingSetKV struct {
	*kvstore.MemoryKV
	fail bool
}

func (f *failingSetKV) Set(ctx context.Context, key string, value []byte) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.MemoryKV.Set(ctx, key, value)
}

func TestPersistFailureIsSurfacedAndLogged(t *testing.T) {
	ctx := context.Background()
	kv := &failingSetKV{MemoryKV: kvstore.NewMemoryKV()}
	store, err := kvstore.Open(ctx, kv, NewDefaultRulesEngine(), kvstore.WithSeed(false))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	logger := &captureLogger{}
	svc := NewService(store, WithLogger(logger))
	kv.fail = true

	created, _, err := svc.CreateService(ctx, ServiceInput{Date: "2023-11-23", Time: "20:00", CustomSlots: true, SlotNames: []string{"A"}})
	if !errors.Is(err, domain.ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
	if _, ok := svc.GetService(created.ID); !ok {
		t.Fatalf("in-memory commit should stand after a write-through failure")
	}
	if _, found := logger.find("error", "snapshot write-through failed"); !found {
		t.Fatalf("expected write-through log entry")
	}
}

func TestOptionsIgnoreNil(t *testing.T) {
	svc := NewInMemoryService(nil, WithLogger(nil), WithClock(nil), WithAuditRecorder(nil), WithMetricsRecorder(nil), WithTracer(nil))
	if _, _, err := svc.AddGlobalSlot(context.Background(), "A"); err != nil {
		t.Fatalf("noop defaults should work: %v", err)
	}
	if svc.Store() == nil {
		t.Fatalf("expected store")
	}
}
