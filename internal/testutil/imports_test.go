package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordingFatal struct {
	msg string
}

func (r *recordingFatal) Fatalf(format string, args ...any) {
	r.msg = fmt.Sprintf(format, args...)
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package x\n\nimport (\n\t\"fmt\"\n\t\"escala/internal/httpapi\"\n)\n\nvar _ = fmt.Sprint\n")
	writeFile(t, dir, "a_test.go", "package x\n\nimport \"escala/internal/core\"\n")
	writeFile(t, dir, "notes.txt", "ignored")

	viols, err := directImportViolations(dir, InternalImport)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "escala/internal/httpapi (in a.go)") {
		t.Fatalf("unexpected violations %v", viols)
	}

	rec := &recordingFatal{}
	failIfViolations(rec, "layering", viols)
	if !strings.Contains(rec.msg, "layering") {
		t.Fatalf("expected failure message, got %q", rec.msg)
	}
	rec = &recordingFatal{}
	failIfViolations(rec, "layering", nil)
	if rec.msg != "" {
		t.Fatalf("unexpected failure %q", rec.msg)
	}
}

func TestDirectImportViolationsErrors(t *testing.T) {
	if _, err := directImportViolations(filepath.Join(t.TempDir(), "missing"), InternalImport); err == nil {
		t.Fatalf("expected error for missing dir")
	}
	dir := t.TempDir()
	writeFile(t, dir, "bad.go", "package x\nimport (\n")
	if _, err := directImportViolations(dir, InternalImport); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestImportsUnder(t *testing.T) {
	match := ImportsUnder("escala/internal/httpapi", "escala/cmd")
	cases := map[string]bool{
		"escala/internal/httpapi":      true,
		"escala/internal/httpapi/sub":  true,
		"escala/internal/httpapiextra": false,
		"escala/cmd/escala":            true,
		"escala/internal/core":         false,
	}
	for path, want := range cases {
		if got := match(path); got != want {
			t.Fatalf("ImportsUnder(%q) = %v, want %v", path, got, want)
		}
	}
}
