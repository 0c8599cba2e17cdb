package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"escala/internal/core"
)

var _ core.Logger = (*Logger)(nil)

func TestLoggerForwardsFields(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(obs))

	l.Warn("avatar cleanup failed", "key", "avatars/v1/a.png", "attempt", 2)
	l.Debug("noise")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	first := entries[0]
	if first.Level != zapcore.WarnLevel || first.Message != "avatar cleanup failed" {
		t.Fatalf("unexpected entry %+v", first)
	}
	fields := first.ContextMap()
	if fields["key"] != "avatars/v1/a.png" || fields["attempt"] != int64(2) {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":      zapcore.InfoLevel,
		"DEBUG": zapcore.DebugLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	l := New(nil)
	l.Info("ignored", "k", "v")
	if l.Zap() == nil {
		t.Fatalf("expected nop logger")
	}
}
