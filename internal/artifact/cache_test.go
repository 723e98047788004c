package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func sampleProgram() *Program {
	return &Program{
		Name:         "vendor-program",
		Kind:         "vendor",
		Version:      "1",
		MaxIters:     50,
		Instructions: "Find vendors with verifiable websites.",
		Demos: []Demo{
			{Input: `{"category":"crm"}`, Output: `{"vendors":[]}`, Score: 0.75},
		},
		Metadata:   map[string]string{"optimizer": "bootstrap"},
		CompiledAt: time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
	}
}

func assertSameProgram(t *testing.T, got, want *Program) {
	t.Helper()
	if got == nil {
		t.Fatalf("program is nil")
	}
	if !got.CompiledAt.Equal(want.CompiledAt) {
		t.Fatalf("compiled at %v, want %v", got.CompiledAt, want.CompiledAt)
	}
	a, b := *got, *want
	a.CompiledAt, b.CompiledAt = time.Time{}, time.Time{}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("program mismatch:\n got %+v\nwant %+v", a, b)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	for _, name := range []string{"vendor", "vendor.json", "vendor.yaml", "vendor.dspy"} {
		dir := t.TempDir()
		cache := NewCache()
		logical := filepath.Join(dir, "programs", name)
		saved, err := cache.Save(sampleProgram(), logical)
		if err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
		if saved != CanonicalPath(logical) {
			t.Fatalf("saved to %s, want %s", saved, CanonicalPath(logical))
		}
		loaded, ok := cache.Load(logical)
		if !ok {
			t.Fatalf("load %s missed", name)
		}
		assertSameProgram(t, loaded, sampleProgram())
	}
}

func TestCacheMissIsNotAnError(t *testing.T) {
	cache := NewCache()
	program, ok := cache.Load(filepath.Join(t.TempDir(), "never-saved"))
	if ok || program != nil {
		t.Fatalf("expected miss, got %v %v", program, ok)
	}
	if program, ok := cache.Load("   "); ok || program != nil {
		t.Fatalf("expected miss for blank path")
	}
}

func TestCacheLoadFindsLegacySuffix(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, "swot.pkl")
	data, err := encodeProgram(sampleProgram(), legacy)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(legacy, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, ok := NewCache().Load(filepath.Join(dir, "swot"))
	if !ok {
		t.Fatalf("expected legacy .pkl to be found")
	}
	assertSameProgram(t, loaded, sampleProgram())
}

func TestCacheLoadSkipsCorruptCandidate(t *testing.T) {
	dir := t.TempDir()
	logical := filepath.Join(dir, "vendor")
	if err := os.WriteFile(logical, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}
	if _, err := NewCache().Save(sampleProgram(), logical); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, ok := NewCache().Load(logical)
	if !ok {
		t.Fatalf("expected canonical candidate after corrupt one")
	}
	assertSameProgram(t, loaded, sampleProgram())
}

func TestCacheSaveRemovesLegacyDuplicate(t *testing.T) {
	dir := t.TempDir()
	logical := filepath.Join(dir, "vendor.json")
	legacy := logical + ".json"
	if err := os.WriteFile(legacy, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write legacy: %v", err)
	}
	if _, err := NewCache().Save(sampleProgram(), logical); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(legacy); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected legacy duplicate removed, stat err = %v", err)
	}
	if _, err := os.Stat(logical); err != nil {
		t.Fatalf("canonical missing: %v", err)
	}
}

func TestCacheSaveFailureWrapsErrCacheWrite(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	_, err := NewCache().Save(sampleProgram(), filepath.Join(blocker, "programs", "vendor"))
	if !errors.Is(err, ErrCacheWrite) {
		t.Fatalf("expected ErrCacheWrite, got %v", err)
	}
	if _, err := NewCache().Save(nil, filepath.Join(dir, "vendor")); !errors.Is(err, ErrCacheWrite) {
		t.Fatalf("expected ErrCacheWrite for nil program, got %v", err)
	}
}

func TestCacheSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewCache().Save(sampleProgram(), filepath.Join(dir, "vendor")); err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "vendor.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("unexpected files %v", names)
	}
}

func TestCacheEntry(t *testing.T) {
	entry := NewCache().Entry("vendor-program", "data/vendor")
	if entry.Canonical != "data/vendor.json" {
		t.Fatalf("canonical = %s", entry.Canonical)
	}
	if len(entry.Candidates) != 3 || entry.Candidates[0] != "data/vendor" {
		t.Fatalf("candidates = %v", entry.Candidates)
	}
}
