package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"escala/internal/infra/persistence/memory"
	"escala/pkg/domain"
)

func TestOpenSeedsOnFirstRun(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	store, err := Open(ctx, kv, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !store.Seeded() {
		t.Fatalf("expected first run to seed")
	}
	if len(store.ListServices()) != 3 || len(store.Catalog()) != 6 {
		t.Fatalf("unexpected seed state: %d services, catalog %v", len(store.ListServices()), store.Catalog())
	}
	raw, ok, err := kv.Get(ctx, StateKey)
	if err != nil || !ok {
		t.Fatalf("expected seeded snapshot to be written, ok=%v err=%v", ok, err)
	}
	var snapshot memory.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snapshot.Services) != 3 {
		t.Fatalf("expected 3 persisted services, got %d", len(snapshot.Services))
	}
}

func TestOpenWithoutSeed(t *testing.T) {
	store, err := Open(context.Background(), NewMemoryKV(), nil, WithSeed(false))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store.Seeded() || len(store.ListServices()) != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestWriteThroughRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	store, err := Open(ctx, kv, nil, WithSeed(false))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		v, err := tx.CreateVolunteer(domain.Volunteer{Name: "Lucas", PhoneNumber: "11988887777"})
		if err != nil {
			return err
		}
		if err := tx.SetActiveVolunteer(v.ID); err != nil {
			return err
		}
		return tx.SetCatalog([]string{"A", "B"})
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}

	reopened, err := Open(ctx, kv, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Seeded() {
		t.Fatalf("existing state must not be reseeded")
	}
	vols := reopened.ListVolunteers()
	if len(vols) != 1 || vols[0].Name != "Lucas" {
		t.Fatalf("expected volunteer restored, got %+v", vols)
	}
	if reopened.ActiveVolunteerID() != vols[0].ID {
		t.Fatalf("expected active session restored")
	}
	if got := reopened.Catalog(); len(got) != 2 || got[1] != "B" {
		t.Fatalf("unexpected catalog %v", got)
	}
}

type failingKV struct {
	*MemoryKV
	failSet bool
	failGet bool
}

func (f *failingKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failGet {
		return nil, false, errors.New("read failed")
	}
	return f.MemoryKV.Get(ctx, key)
}

func (f *failingKV) Set(ctx context.Context, key string, value []byte) error {
	if f.failSet {
		return errors.New("disk full")
	}
	return f.MemoryKV.Set(ctx, key, value)
}

// cancelAwareKV refuses writes on a cancelled context, as network and SQL
// backends do.
type cancelAwareKV struct {
	*MemoryKV
}

func (c cancelAwareKV) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.MemoryKV.Set(ctx, key, value)
}

func TestWriteThroughSurvivesCancelledCaller(t *testing.T) {
	kv := cancelAwareKV{MemoryKV: NewMemoryKV()}
	store, err := Open(context.Background(), kv, nil, WithSeed(false))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.SetCatalog([]string{"Mídia"})
	}); err != nil {
		t.Fatalf("RunInTransaction with cancelled caller: %v", err)
	}
	reopened, err := Open(context.Background(), kv, nil, WithSeed(false))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.Catalog(); len(got) != 1 || got[0] != "Mídia" {
		t.Fatalf("committed change lost on reopen: %v", got)
	}
}

func TestPersistFailureKeepsMemoryCommit(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{MemoryKV: NewMemoryKV()}
	store, err := Open(ctx, kv, nil, WithSeed(false))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	kv.failSet = true
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateVolunteer(domain.Volunteer{Name: "Ana"})
		return err
	})
	if !errors.Is(err, domain.ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
	if len(store.ListVolunteers()) != 1 {
		t.Fatalf("expected in-memory commit to stand")
	}
	kv.failSet = false
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, StateKey); !ok {
		t.Fatalf("expected flush to write snapshot")
	}
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, nil, nil); err == nil {
		t.Fatalf("expected nil backend error")
	}
	if _, err := Open(ctx, &failingKV{MemoryKV: NewMemoryKV(), failGet: true}, nil); err == nil {
		t.Fatalf("expected load error")
	}
	kv := NewMemoryKV()
	_ = kv.Set(ctx, StateKey, []byte("{not json"))
	if _, err := Open(ctx, kv, nil); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestResetRemovesKey(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	store, err := Open(ctx, kv, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, StateKey); ok {
		t.Fatalf("expected key removed")
	}
	if len(store.ListServices()) != 0 {
		t.Fatalf("expected in-memory state cleared")
	}
}
