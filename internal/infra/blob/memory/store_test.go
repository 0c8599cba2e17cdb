package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"escala/internal/blob/core"
)

func TestPutGetDeleteList(t *testing.T) {
	ctx := context.Background()
	s := New()
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	info, err := s.Put(ctx, "avatars/v1/a.png", strings.NewReader("png"), core.PutOptions{ContentType: "image/png", Metadata: map[string]string{"volunteer": "v1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 3 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "avatars/v1/a.png", strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	got, rc, err := s.Get(ctx, "avatars/v1/a.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "png" || got.ContentType != "image/png" || got.Metadata["volunteer"] != "v1" {
		t.Fatalf("unexpected get result %+v %q", got, body)
	}
	got.Metadata["volunteer"] = "mutated"
	if head, _ := s.Head(ctx, "avatars/v1/a.png"); head.Metadata["volunteer"] != "v1" {
		t.Fatalf("metadata leaked out of store")
	}
	if _, err := s.Put(ctx, "exports/x.csv", strings.NewReader("a"), core.PutOptions{}); err != nil {
		t.Fatalf("put export: %v", err)
	}
	list, _ := s.List(ctx, "avatars/")
	if len(list) != 1 || list[0].Key != "avatars/v1/a.png" {
		t.Fatalf("unexpected list %+v", list)
	}
	if ok, _ := s.Delete(ctx, "avatars/v1/a.png"); !ok {
		t.Fatalf("expected delete to report existing blob")
	}
	if ok, _ := s.Delete(ctx, "avatars/v1/a.png"); ok {
		t.Fatalf("expected second delete to report missing blob")
	}
	if _, err := s.Head(ctx, "avatars/v1/a.png"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.PresignURL(ctx, "exports/x.csv", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported presign, got %v", err)
	}
	if _, err := s.Put(ctx, "../escape", strings.NewReader(""), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected invalid key, got %v", err)
	}
}
