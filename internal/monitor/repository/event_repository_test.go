package repository

import (
	"context"
	"testing"
	"time"

	"proctorhub/internal/common/cache"
	"proctorhub/internal/monitor/model"

	"github.com/alicebob/miniredis/v2"
)

func newTestRepository(t *testing.T) *EventRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(mr.Addr())
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return NewEventRepository(c)
}

func TestEventRepositoryAppendAndRecent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e := &model.Event{
			ID:        "evt-" + string(rune('a'+i)),
			AttemptID: "attempt-1",
			Type:      "tab_switch",
			CreatedAt: time.Now(),
		}
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("append event %d: %v", i, err)
		}
	}

	events, err := repo.Recent(ctx, "attempt-1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	// LPush ordering puts the latest event first.
	if events[0].ID != "evt-c" {
		t.Fatalf("expected newest first, got %q", events[0].ID)
	}
}

func TestEventRepositoryRecentLimit(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := &model.Event{ID: "e", AttemptID: "attempt-1", Type: "tab_switch", CreatedAt: time.Now()}
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	events, err := repo.Recent(ctx, "attempt-1", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

func TestEventRepositoryIsolationBetweenAttempts(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.Append(ctx, &model.Event{ID: "e1", AttemptID: "attempt-1", Type: "tab_switch"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	events, err := repo.Recent(ctx, "attempt-2", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events for other attempt, got %d", len(events))
	}
}

func TestEventRepositoryDeltas(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	d := &model.ScoreDelta{
		AttemptID: "attempt-1",
		EventType: "devtools_open",
		Dimension: model.EnvironmentIntegrity,
		Amount:    -15,
		Overall:   85,
		RiskLevel: model.RiskLow,
		AppliedAt: time.Now(),
	}
	if err := repo.AppendDelta(ctx, d); err != nil {
		t.Fatalf("append delta: %v", err)
	}

	deltas, err := repo.Deltas(ctx, "attempt-1")
	if err != nil {
		t.Fatalf("deltas: %v", err)
	}
	if len(deltas) != 1 {
		t.Fatalf("expected 1 delta, got %d", len(deltas))
	}
	if deltas[0].Dimension != model.EnvironmentIntegrity {
		t.Fatalf("unexpected dimension %q", deltas[0].Dimension)
	}
}

func TestEventRepositoryPurge(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.Append(ctx, &model.Event{ID: "e1", AttemptID: "attempt-1", Type: "tab_switch"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.Purge(ctx, "attempt-1"); err != nil {
		t.Fatalf("purge: %v", err)
	}

	events, err := repo.Recent(ctx, "attempt-1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected empty window after purge, got %d", len(events))
	}
}
