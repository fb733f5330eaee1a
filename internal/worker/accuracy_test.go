package worker

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/a1betting/prop-engine/internal/models"
)

func TestAccuracyScore(t *testing.T) {
	tests := []struct {
		actual, line, want float64
	}{
		{20, 20, 1},
		{25, 20, 0.75},
		{15, 20, 0.75},
		{50, 20, 0},
		{10, 0, 0},
	}
	for _, tt := range tests {
		if got := AccuracyScore(tt.actual, tt.line); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("AccuracyScore(%v, %v) = %v, want %v", tt.actual, tt.line, got, tt.want)
		}
	}
}

func TestReconciler_RunOnce(t *testing.T) {
	start := time.Date(2024, 3, 1, 19, 0, 0, 0, time.UTC)
	hist := &MockHistory{
		Pending: []models.HistoricalProjection{
			{ProjectionID: "a", PlayerID: "p1", StatType: "Points", LineScore: 20, StartTime: start},
			{ProjectionID: "b", PlayerID: "p2", StatType: "Points", LineScore: 10, StartTime: start},
		},
		Results: map[string]models.PerformanceRecord{
			models.TrendKey("p1", "Points"): {PlayerID: "p1", StatType: "Points", ActualValue: 25},
		},
	}
	r := NewReconciler(ReconcilerConfig{
		Durable: hist,
		Logger:  zap.NewNop(),
		Now:     func() time.Time { return start.Add(6 * time.Hour) },
	})

	n, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if n != 1 || len(hist.Resolved) != 1 {
		t.Fatalf("resolved %d, want 1 (p2 has no result yet)", n)
	}
	got := hist.Resolved[0]
	if got.ProjectionID != "a" || !got.HitOver || got.ActualResult != 25 || got.AccuracyScore != 0.75 {
		t.Errorf("resolved = %+v", got)
	}

	acc, ok := r.Tracker().Accuracy(models.TrendKey("p1", "Points"))
	if !ok || acc != 0.75 {
		t.Errorf("Accuracy() = %v, %v", acc, ok)
	}
	if _, ok := r.Tracker().Accuracy(models.TrendKey("p2", "Points")); ok {
		t.Errorf("p2 should have no accuracy yet")
	}
}

func TestReconciler_UnresolvableRowsDoNotStarveNewer(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	base := now.Add(-5 * 24 * time.Hour)

	hist := &MockHistory{Results: map[string]models.PerformanceRecord{
		models.TrendKey("p1", "Points"): {PlayerID: "p1", StatType: "Points", ActualValue: 21},
	}}
	for i := 0; i < 120; i++ {
		hist.Pending = append(hist.Pending, models.HistoricalProjection{
			ProjectionID: fmt.Sprintf("old-%03d", i), PlayerID: "unknown", StatType: "Points",
			LineScore: 10, StartTime: base.Add(time.Duration(i) * time.Minute),
		})
	}
	for i := 0; i < 30; i++ {
		hist.Pending = append(hist.Pending, models.HistoricalProjection{
			ProjectionID: fmt.Sprintf("new-%03d", i), PlayerID: "p1", StatType: "Points",
			LineScore: 20, StartTime: base.Add(48*time.Hour + time.Duration(i)*time.Minute),
		})
	}

	r := NewReconciler(ReconcilerConfig{
		BatchSize: 50,
		Durable:   hist,
		Logger:    zap.NewNop(),
		Now:       func() time.Time { return now },
	})
	for i := 0; i < 5; i++ {
		if _, err := r.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce() error = %v", err)
		}
	}
	if len(hist.Resolved) != 30 {
		t.Errorf("resolved %d of 30 rows with results", len(hist.Resolved))
	}
}

func TestReconciler_ScanWrapsAndHonorsLookback(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	hist := &MockHistory{Pending: []models.HistoricalProjection{
		{ProjectionID: "stale", PlayerID: "x", StatType: "Points", LineScore: 5, StartTime: now.Add(-20 * 24 * time.Hour)},
		{ProjectionID: "a", PlayerID: "x", StatType: "Points", LineScore: 5, StartTime: now.Add(-3 * time.Hour)},
		{ProjectionID: "b", PlayerID: "x", StatType: "Points", LineScore: 5, StartTime: now.Add(-2 * time.Hour)},
		{ProjectionID: "c", PlayerID: "x", StatType: "Points", LineScore: 5, StartTime: now.Add(-time.Hour)},
	}}
	r := NewReconciler(ReconcilerConfig{
		BatchSize: 2,
		Lookback:  7 * 24 * time.Hour,
		Durable:   hist,
		Logger:    zap.NewNop(),
		Now:       func() time.Time { return now },
	})

	for i := 0; i < 3; i++ {
		if _, err := r.RunOnce(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	since := now.Add(-7 * 24 * time.Hour)
	f := hist.Filters
	if len(f) != 3 {
		t.Fatalf("got %d scans, want 3", len(f))
	}
	if !f[0].Since.Equal(since) || !f[0].Before.Equal(now) || !f[0].AfterStart.Equal(since) || f[0].AfterID != "" {
		t.Errorf("first scan = %+v", f[0])
	}
	if f[1].AfterID != "b" {
		t.Errorf("second scan resumes after %q, want b", f[1].AfterID)
	}
	if !f[2].AfterStart.Equal(since) || f[2].AfterID != "" {
		t.Errorf("third scan should wrap to the window start, got %+v", f[2])
	}
}

func TestReconciler_GameDateInResultsTimezone(t *testing.T) {
	kickoff := time.Date(2024, 3, 2, 1, 0, 0, 0, time.UTC)
	hist := &MockHistory{Pending: []models.HistoricalProjection{
		{ProjectionID: "a", PlayerID: "p1", StatType: "Points", LineScore: 20, StartTime: kickoff},
	}}
	r := NewReconciler(ReconcilerConfig{
		Location: time.FixedZone("EST", -5*3600),
		Durable:  hist,
		Logger:   zap.NewNop(),
		Now:      func() time.Time { return kickoff.Add(4 * time.Hour) },
	})
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(hist.GameDates) != 1 {
		t.Fatalf("FindResult calls = %d", len(hist.GameDates))
	}
	if got := hist.GameDates[0].Format(time.DateOnly); got != "2024-03-01" {
		t.Errorf("game date = %s, want 2024-03-01", got)
	}
}

func TestReconciler_RejectsBadSchedule(t *testing.T) {
	r := NewReconciler(ReconcilerConfig{Schedule: "not a schedule", Durable: &MockHistory{}})
	if err := r.Run(context.Background()); err == nil {
		t.Error("Run() should fail on an invalid schedule")
	}
}

func TestAccuracyTracker_Mean(t *testing.T) {
	tr := NewAccuracyTracker()
	tr.Record("k", 1)
	tr.Record("k", 0.5)
	if acc, _ := tr.Accuracy("k"); acc != 0.75 {
		t.Errorf("Accuracy() = %v, want 0.75", acc)
	}
}
