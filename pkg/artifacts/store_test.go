package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeArtifact(t *testing.T, dir, name, content string) {
	t.Helper()
	full := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestFSStore_LoadsArtifacts(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "models/m.json",
		`{"layers":[{"weights":[[2]],"biases":[1]}]}`)
	writeArtifact(t, dir, "scalers/s.json",
		`{"fuel":{"kind":"standard","mean":1,"scale":2}}`)
	writeArtifact(t, dir, "meta/m.json",
		`{"input_features":["fuel"],"output_features":["temp"]}`)

	store, err := NewFSStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	model, err := store.GetModel(context.Background(), "models/m.json")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	out, err := model.Forward([]float64{3})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out[0] != 7 {
		t.Errorf("Expected 7, got %v", out[0])
	}

	scalers, err := store.GetScaler(context.Background(), "scalers/s.json")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := scalers["fuel"].Transform(5); got != 2 {
		t.Errorf("Expected 2, got %v", got)
	}

	meta, err := store.GetMetadata(context.Background(), "meta/m.json")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(meta.InputFeatures) != 1 || meta.InputFeatures[0] != "fuel" {
		t.Errorf("Unexpected metadata: %+v", meta)
	}
}

func TestFSStore_MissingArtifactIsNotFound(t *testing.T) {
	store, err := NewFSStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	_, err = store.GetModel(context.Background(), "no/such.json")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestFSStore_CorruptArtifactIsStale(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "m.json", `{"layers": not json`)
	writeArtifact(t, dir, "empty.json", `{"layers":[]}`)

	store, err := NewFSStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, err := store.GetModel(context.Background(), "m.json"); !errors.Is(err, ErrStale) {
		t.Errorf("Expected ErrStale for corrupt model, got: %v", err)
	}
	if _, err := store.GetModel(context.Background(), "empty.json"); !errors.Is(err, ErrStale) {
		t.Errorf("Expected ErrStale for layerless model, got: %v", err)
	}
}

func TestFSStore_RejectsNonDirectoryRoot(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "file.json", `{}`)

	if _, err := NewFSStore(filepath.Join(dir, "file.json"), zerolog.Nop()); err == nil {
		t.Error("Expected error for file root")
	}
	if _, err := NewFSStore(filepath.Join(dir, "missing"), zerolog.Nop()); err == nil {
		t.Error("Expected error for missing root")
	}
}

func TestCachedStore_CachesAndInvalidates(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "m.json", `{"layers":[{"weights":[[2]],"biases":[0]}]}`)

	inner, err := NewFSStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	store, err := NewCachedStore(inner, 8, zerolog.Nop())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	first, err := store.GetModel(context.Background(), "m.json")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, err := store.GetModel(context.Background(), "m.json")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if first != second {
		t.Error("Expected the cached pointer on a repeat fetch")
	}

	stats := store.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %+v", stats)
	}

	store.Invalidate("m.json")
	third, err := store.GetModel(context.Background(), "m.json")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if third == second {
		t.Error("Expected a fresh fetch after invalidation")
	}
}

func TestCachedStore_ErrorsAreNotCached(t *testing.T) {
	dir := t.TempDir()
	inner, err := NewFSStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	store, err := NewCachedStore(inner, 8, zerolog.Nop())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, err := store.GetModel(context.Background(), "m.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got: %v", err)
	}

	// The artifact appears later; the earlier failure must not stick.
	writeArtifact(t, dir, "m.json", `{"layers":[{"weights":[[2]],"biases":[0]}]}`)
	if _, err := store.GetModel(context.Background(), "m.json"); err != nil {
		t.Errorf("Expected fetch to succeed once the artifact exists, got: %v", err)
	}
}
