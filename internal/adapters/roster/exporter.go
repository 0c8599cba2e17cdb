package roster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"escala/internal/blob"
	"escala/internal/core"
	"escala/pkg/domain"
)

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ExportArtifact captures a stored roster file.
type ExportArtifact struct {
	Key         string            `json:"key"`
	Filename    string            `json:"filename"`
	ContentType string            `json:"content_type"`
	SizeBytes   int64             `json:"size_bytes"`
	URL         string            `json:"url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ExportRecord tracks an export request and its artifact.
type ExportRecord struct {
	ID          string          `json:"id"`
	ServiceID   string          `json:"service_id,omitempty"`
	Status      ExportStatus    `json:"status"`
	Error       string          `json:"error,omitempty"`
	Artifact    *ExportArtifact `json:"artifact,omitempty"`
	RequestedBy string          `json:"requested_by"`
	Reason      string          `json:"reason,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// ExportInput is an enqueue request. An empty ServiceID exports the full
// roster of every service.
type ExportInput struct {
	ServiceID   string
	RequestedBy string
	Reason      string
}

// ExportScheduler queues roster exports and exposes their status.
type ExportScheduler interface {
	EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error)
	GetExport(id string) (ExportRecord, bool)
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for exports.
type AuditEntry struct {
	ID         string       `json:"id"`
	ExportID   string       `json:"export_id"`
	Action     string       `json:"action"`
	Actor      string       `json:"actor"`
	ServiceID  string       `json:"service_id,omitempty"`
	Status     ExportStatus `json:"status"`
	Note       string       `json:"note,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// ErrQueueFull is returned when the worker cannot accept more jobs.
var ErrQueueFull = errors.New("export queue full")

const (
	exportAction     = "roster_export"
	exportKeyPrefix  = "exports"
	defaultQueue     = 32
	defaultRetention = 256
	urlExpiry        = time.Hour
)

// Worker renders roster exports asynchronously and stores them as blobs.
type Worker struct {
	source Source
	store  blob.Store
	audit  AuditLogger
	logger core.Logger

	queue    chan string
	mu       sync.RWMutex
	jobs     map[string]*ExportRecord
	finished []string
	retain   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithAuditLogger attaches an audit sink.
func WithAuditLogger(a AuditLogger) WorkerOption {
	return func(w *Worker) { w.audit = a }
}

// WithWorkerLogger sets the logger used for export failures.
func WithWorkerLogger(l core.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithQueueSize overrides the pending job capacity.
func WithQueueSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.queue = make(chan string, n)
		}
	}
}

// WithRetention caps how many finished export records stay queryable. The
// oldest finished record is evicted first; its stored artifact is kept.
func WithRetention(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.retain = n
		}
	}
}

// NewWorker constructs an export worker.
func NewWorker(src Source, store blob.Store, opts ...WorkerOption) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		source: src,
		store:  store,
		logger: discardLogger{},
		queue:  make(chan string, defaultQueue),
		jobs:   make(map[string]*ExportRecord),
		retain: defaultRetention,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(id)
		}
	}
}

// EnqueueExport schedules an export job and returns the queued record.
func (w *Worker) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	if w.store == nil {
		return ExportRecord{}, fmt.Errorf("export store not configured")
	}
	if input.ServiceID != "" {
		if _, ok := w.source.GetService(input.ServiceID); !ok {
			return ExportRecord{}, domain.NotFoundError{Entity: domain.EntityService, ID: input.ServiceID}
		}
	}

	now := time.Now().UTC()
	record := ExportRecord{
		ID:          uuid.NewString(),
		ServiceID:   input.ServiceID,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// The lock is held until the queued entry is audited so the worker
	// cannot report the job as running first.
	w.mu.Lock()
	defer w.mu.Unlock()
	w.jobs[record.ID] = &record
	select {
	case w.queue <- record.ID:
	default:
		delete(w.jobs, record.ID)
		return ExportRecord{}, ErrQueueFull
	}
	queued := record.copy()
	w.record(ctx, queued, "")
	return queued, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

// OpenArtifact streams the stored file of a finished export.
func (w *Worker) OpenArtifact(ctx context.Context, id string) (ExportArtifact, *bytes.Reader, error) {
	record, ok := w.GetExport(id)
	if !ok || record.Artifact == nil {
		return ExportArtifact{}, nil, blob.ErrNotFound
	}
	_, rc, err := w.store.Get(ctx, record.Artifact.Key)
	if err != nil {
		return ExportArtifact{}, nil, err
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return ExportArtifact{}, nil, fmt.Errorf("read artifact: %w", err)
	}
	return *record.Artifact, bytes.NewReader(buf.Bytes()), nil
}

func (w *Worker) process(id string) {
	record, ok := w.GetExport(id)
	if !ok {
		return
	}
	w.updateStatus(id, ExportStatusRunning, "")

	var table core.RosterTable
	var err error
	if record.ServiceID == "" {
		table, err = w.source.FullRoster(w.ctx)
	} else {
		table, err = w.source.ServiceRoster(w.ctx, record.ServiceID)
	}
	if err != nil {
		w.fail(id, fmt.Sprintf("build roster: %v", err))
		return
	}
	payload, err := EncodeCSV(table)
	if err != nil {
		w.fail(id, fmt.Sprintf("render csv: %v", err))
		return
	}

	key := path.Join(exportKeyPrefix, id, table.Filename)
	meta := map[string]string{"export_id": id}
	if record.ServiceID != "" {
		meta["service_id"] = record.ServiceID
	}
	info, err := w.store.Put(w.ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: CSVContentType,
		Metadata:    meta,
	})
	if err != nil {
		w.fail(id, fmt.Sprintf("store artifact failed: %v", err))
		return
	}

	artifact := ExportArtifact{
		Key:         info.Key,
		Filename:    table.Filename,
		ContentType: CSVContentType,
		SizeBytes:   info.Size,
		Metadata:    meta,
		CreatedAt:   info.LastModified,
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}
	if u, err := w.store.PresignURL(w.ctx, info.Key, blob.SignedURLOptions{Method: "GET", Expiry: urlExpiry}); err == nil {
		artifact.URL = u
	} else if !errors.Is(err, blob.ErrUnsupported) {
		w.logger.Warn("presign export failed", "export_id", id, "error", err)
	}
	w.complete(id, artifact)
}

func (w *Worker) updateStatus(id string, status ExportStatus, note string) {
	now := time.Now().UTC()
	w.mu.Lock()
	record, ok := w.jobs[id]
	if ok {
		record.Status = status
		record.Error = note
		record.UpdatedAt = now
	}
	snap := record.copy()
	w.mu.Unlock()
	if ok {
		w.record(w.ctx, snap, note)
	}
}

func (w *Worker) complete(id string, artifact ExportArtifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	record, ok := w.jobs[id]
	if ok {
		record.Status = ExportStatusSucceeded
		record.Error = ""
		record.Artifact = &artifact
		record.UpdatedAt = now
		record.CompletedAt = &now
		w.retire(id)
	}
	snap := record.copy()
	w.mu.Unlock()
	if ok {
		w.record(w.ctx, snap, "")
	}
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	record, ok := w.jobs[id]
	if ok {
		record.Status = ExportStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
		w.retire(id)
	}
	snap := record.copy()
	w.mu.Unlock()
	if ok {
		w.logger.Error("roster export failed", "export_id", id, "error", reason)
		w.record(w.ctx, snap, reason)
	}
}

// retire marks id finished and evicts the oldest finished records beyond the
// retention cap. Callers hold w.mu.
func (w *Worker) retire(id string) {
	w.finished = append(w.finished, id)
	for len(w.finished) > w.retain {
		delete(w.jobs, w.finished[0])
		w.finished = w.finished[1:]
	}
}

func (w *Worker) record(ctx context.Context, r ExportRecord, note string) {
	if w.audit == nil {
		return
	}
	w.audit.Record(ctx, AuditEntry{
		ID:         uuid.NewString(),
		ExportID:   r.ID,
		Action:     exportAction,
		Actor:      r.RequestedBy,
		ServiceID:  r.ServiceID,
		Status:     r.Status,
		Note:       note,
		OccurredAt: r.UpdatedAt,
	})
}

func (r *ExportRecord) copy() ExportRecord {
	if r == nil {
		return ExportRecord{}
	}
	out := *r
	if r.Artifact != nil {
		a := *r.Artifact
		a.Metadata = maps.Clone(r.Artifact.Metadata)
		out.Artifact = &a
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}
