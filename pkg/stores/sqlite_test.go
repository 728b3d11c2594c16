package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("Expected error for empty path")
	}
}

func TestSQLiteStore_MigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	if err := store.Migrate(context.Background()); err != nil {
		t.Errorf("Expected repeated migration to be a no-op, got: %v", err)
	}
}

func TestSQLiteStore_LatestReturnsNewestPerVariable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	samples := []Sample{
		{VariableID: "fuel_rate", Value: 10.0, ObservedAt: base},
		{VariableID: "fuel_rate", Value: 12.5, ObservedAt: base.Add(time.Minute)},
		{VariableID: "kiln_temp", Value: 1440.0, ObservedAt: base},
	}
	for _, s := range samples {
		if err := store.InsertSample(ctx, s); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	data, err := store.Latest(ctx, []string{"fuel_rate", "kiln_temp", "absent"}, time.Time{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if data["fuel_rate"] != 12.5 {
		t.Errorf("Expected newest fuel_rate 12.5, got %v", data["fuel_rate"])
	}
	if data["kiln_temp"] != 1440.0 {
		t.Errorf("Expected kiln_temp 1440.0, got %v", data["kiln_temp"])
	}
	if _, ok := data["absent"]; ok {
		t.Error("Expected no entry for a variable with no samples")
	}
}

func TestSQLiteStore_LatestHonorsWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	if err := store.InsertSample(ctx, Sample{VariableID: "fuel_rate", Value: 10.0, ObservedAt: base}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	data, err := store.Latest(ctx, []string{"fuel_rate"}, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := data["fuel_rate"]; ok {
		t.Error("Expected stale sample to be excluded by the window")
	}
}

func TestSQLiteStore_Recommendations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	first := []Recommendation{
		{Cycle: 1, VariableID: "fuel_rate", Current: 10, Recommended: 11, Delta: 1, CreatedAt: now},
	}
	second := []Recommendation{
		{Cycle: 2, VariableID: "fuel_rate", Current: 11, Recommended: 12.5, Delta: 1.5, CreatedAt: now.Add(time.Minute)},
		{Cycle: 2, VariableID: "air_flow", Current: 3, Recommended: 2.5, Delta: -0.5, CreatedAt: now.Add(time.Minute)},
	}
	if err := store.SaveRecommendations(ctx, first); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := store.SaveRecommendations(ctx, second); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	recs, err := store.LatestRecommendations(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Expected 2 recommendations from the latest cycle, got %d", len(recs))
	}
	if recs[0].VariableID != "air_flow" || recs[1].VariableID != "fuel_rate" {
		t.Errorf("Expected variable-ordered rows, got %v, %v", recs[0].VariableID, recs[1].VariableID)
	}
	if recs[1].Recommended != 12.5 || recs[1].Cycle != 2 {
		t.Errorf("Unexpected recommendation: %+v", recs[1])
	}
}

func TestSQLiteStore_SaveEmptySetIsNoop(t *testing.T) {
	store := newTestStore(t)
	if err := store.SaveRecommendations(context.Background(), nil); err != nil {
		t.Errorf("Expected empty save to succeed, got: %v", err)
	}
}

func TestSQLiteStore_LastRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	at, err := store.LastRun(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !at.IsZero() {
		t.Errorf("Expected zero time before any run, got %v", at)
	}

	want := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	if err := store.SetLastRun(ctx, want); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := store.SetLastRun(ctx, want.Add(time.Minute)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	at, err = store.LastRun(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !at.Equal(want.Add(time.Minute)) {
		t.Errorf("Expected %v, got %v", want.Add(time.Minute), at)
	}
}
