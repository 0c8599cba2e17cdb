// Package kvstore persists the in-memory scheduling state as a single JSON
// snapshot held under one key of a key-value backend. The snapshot is
// written through after every committed transaction.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"escala/internal/infra/persistence/memory"
	"escala/pkg/domain"
)

// StateKey is the key holding the serialized snapshot.
const StateKey = "escala/state"

// persistTimeout bounds the write-through after a commit. The write is
// detached from the caller's cancellation so an acknowledged change is not
// dropped when the caller goes away.
const persistTimeout = 30 * time.Second

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Store wraps memory.Store and writes the full state to a KeyValueStore after
// each successful transaction.
type Store struct {
	*memory.Store
	kv     domain.KeyValueStore
	mu     sync.Mutex
	seeded bool
}

// Option customizes Open.
type Option func(*options)

type options struct {
	seed    bool
	memOpts []memory.Option
}

// WithSeed toggles first-run seeding of the default catalog and services.
func WithSeed(enabled bool) Option {
	return func(o *options) { o.seed = enabled }
}

// WithMemoryOptions forwards options to the wrapped memory store.
func WithMemoryOptions(opts ...memory.Option) Option {
	return func(o *options) { o.memOpts = append(o.memOpts, opts...) }
}

// Open hydrates a store from kv. An absent key is treated as first run: the
// default snapshot is seeded (unless disabled) and written back.
func Open(ctx context.Context, kv domain.KeyValueStore, engine *domain.RulesEngine, opts ...Option) (*Store, error) {
	if kv == nil {
		return nil, fmt.Errorf("kvstore: nil backend")
	}
	cfg := options{seed: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Store{Store: memory.NewStore(engine, cfg.memOpts...), kv: kv}
	payload, ok, err := kv.Get(ctx, StateKey)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", StateKey, err)
	}
	if ok {
		var snapshot memory.Snapshot
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			return nil, fmt.Errorf("decode %s: %w", StateKey, err)
		}
		s.ImportState(snapshot)
		return s, nil
	}
	if !cfg.seed {
		return s, nil
	}
	s.ImportState(memory.DefaultSnapshot(s.NowFunc()()))
	s.seeded = true
	if err := s.persist(ctx); err != nil {
		return nil, fmt.Errorf("seed %s: %w", StateKey, err)
	}
	return s, nil
}

// Seeded reports whether Open found no stored state and seeded defaults.
func (s *Store) Seeded() bool { return s.seeded }

// RunInTransaction applies fn to the in-memory store, then writes the
// snapshot through. A write failure is returned wrapped in domain.ErrPersist;
// the in-memory commit is kept.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.persist(writeCtx); err != nil {
		return res, fmt.Errorf("%w: %w", domain.ErrPersist, err)
	}
	return res, nil
}

// Flush writes the current state to the backend.
func (s *Store) Flush(ctx context.Context) error {
	return s.persist(ctx)
}

// Reset removes the stored snapshot and clears the in-memory state. The next
// Open against the same backend seeds again.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Remove(ctx, StateKey); err != nil {
		return fmt.Errorf("remove %s: %w", StateKey, err)
	}
	s.ImportState(memory.Snapshot{})
	return nil
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(s.ExportState())
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.kv.Set(ctx, StateKey, data); err != nil {
		return fmt.Errorf("write %s: %w", StateKey, err)
	}
	return nil
}
