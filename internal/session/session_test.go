package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/RoutineTimer/internal/clock"
	"github.com/BTreeMap/RoutineTimer/internal/models"
	"github.com/BTreeMap/RoutineTimer/internal/routine"
	"github.com/BTreeMap/RoutineTimer/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *clock.Manual, string) {
	t.Helper()
	st := store.NewInMemoryStore()
	saved, err := st.AddRoutine(context.Background(), "u1", models.Routine{ID: "night", Name: "Night"}, []models.RoutineStep{
		{ID: "s1", Index: 1, Title: "Breathe", DurationMinutes: 1},
		{ID: "s2", Index: 2, Title: "Stretch", DurationMinutes: 2},
	})
	if err != nil {
		t.Fatalf("AddRoutine: %v", err)
	}
	mc := clock.NewManual()
	return NewManager(st, mc), mc, saved.ID
}

func TestSelectAndWalkRoutine(t *testing.T) {
	m, mc, routineID := newTestManager(t)
	ctx := context.Background()

	snap, err := m.Select(ctx, "u1", routineID)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if snap.RoutineID != routineID || snap.State.RemainingSeconds != 60 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	if _, err := m.Start("u1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	mc.Advance(60)
	if s := m.State("u1"); s.State.TimerRunning || s.State.RemainingSeconds != 0 {
		t.Fatalf("countdown did not finish: %+v", s.State)
	}

	snap, err = m.CompleteStep("u1")
	if err != nil {
		t.Fatalf("CompleteStep: %v", err)
	}
	if snap.State.CurrentStepIndex != 1 || snap.State.RemainingSeconds != 120 || !snap.State.Steps[0].IsCompleted {
		t.Fatalf("unexpected state after completing step: %+v", snap.State)
	}

	snap, err = m.CompleteStep("u1")
	if err != nil {
		t.Fatalf("CompleteStep: %v", err)
	}
	if !snap.State.Finished() || snap.State.CompletedCount() != 2 {
		t.Fatalf("expected finished routine, got %+v", snap.State)
	}
	if _, err := m.CompleteStep("u1"); !errors.Is(err, routine.ErrRoutineComplete) {
		t.Errorf("CompleteStep after finish: got %v, want ErrRoutineComplete", err)
	}

	snap, err = m.Restart(ctx, "u1")
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if snap.State.CurrentStepIndex != 0 || snap.State.CompletedCount() != 0 || snap.State.RemainingSeconds != 60 {
		t.Errorf("restart did not reset progress: %+v", snap.State)
	}
}

func TestSelectMissingRoutineLeavesEngineUntouched(t *testing.T) {
	m, _, routineID := newTestManager(t)
	ctx := context.Background()
	if _, err := m.Select(ctx, "u1", routineID); err != nil {
		t.Fatal(err)
	}

	_, err := m.Select(ctx, "u1", "missing")
	var loadErr *store.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected LoadError, got %v", err)
	}
	if s := m.State("u1"); s.RoutineID != routineID || s.State.Phase != routine.PhaseStepActive {
		t.Errorf("failed select changed the session: %+v", s)
	}
}

func TestRestartWithoutSelection(t *testing.T) {
	m, _, _ := newTestManager(t)
	if _, err := m.Restart(context.Background(), "u1"); !errors.Is(err, routine.ErrNoRoutineSelected) {
		t.Errorf("got %v, want ErrNoRoutineSelected", err)
	}
}

func TestEditCurrentStepReseedsAndStops(t *testing.T) {
	m, mc, routineID := newTestManager(t)
	ctx := context.Background()
	_, _ = m.Select(ctx, "u1", routineID)
	_, _ = m.Start("u1")
	mc.Advance(10)

	snap, err := m.EditStep(ctx, "u1", routineID, "s1", models.EditStepRequest{Title: "Deep breath", DurationMinutes: 3})
	if err != nil {
		t.Fatalf("EditStep: %v", err)
	}
	if snap.State.TimerRunning || snap.State.RemainingSeconds != 180 || snap.State.Steps[0].Title != "Deep breath" {
		t.Errorf("unexpected state after edit: %+v", snap.State)
	}
}

func TestEditOtherStepKeepsCountdown(t *testing.T) {
	m, mc, routineID := newTestManager(t)
	ctx := context.Background()
	_, _ = m.Select(ctx, "u1", routineID)
	_, _ = m.Start("u1")
	mc.Advance(10)

	snap, err := m.EditStep(ctx, "u1", routineID, "s2", models.EditStepRequest{Title: "Yoga", DurationMinutes: 5})
	if err != nil {
		t.Fatalf("EditStep: %v", err)
	}
	if !snap.State.TimerRunning || snap.State.RemainingSeconds != 50 {
		t.Errorf("editing another step must not touch the countdown: %+v", snap.State)
	}
	if snap.State.Steps[1].DurationMinutes != 5 {
		t.Errorf("cached step not refreshed: %+v", snap.State.Steps[1])
	}
}

func TestEditStepValidationAndStoreErrors(t *testing.T) {
	m, _, routineID := newTestManager(t)
	ctx := context.Background()

	if _, err := m.EditStep(ctx, "u1", routineID, "s1", models.EditStepRequest{DurationMinutes: 1}); !errors.Is(err, models.ErrEmptyStepTitle) {
		t.Errorf("got %v, want ErrEmptyStepTitle", err)
	}
	_, err := m.EditStep(ctx, "u1", routineID, "nope", models.EditStepRequest{Title: "x"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestDeselectAndForget(t *testing.T) {
	m, mc, routineID := newTestManager(t)
	ctx := context.Background()
	_, _ = m.Select(ctx, "u1", routineID)
	_, _ = m.Start("u1")

	m.Forget("u1", "other")
	if s := m.State("u1"); s.RoutineID != routineID {
		t.Fatalf("Forget with another routine id dropped the session")
	}
	m.Forget("u1", routineID)
	if s := m.State("u1"); s.State.Phase != routine.PhaseIdle || mc.Active() != 0 {
		t.Errorf("Forget did not deselect: %+v active=%d", s, mc.Active())
	}

	_, _ = m.Select(ctx, "u1", routineID)
	if s := m.Deselect("u1"); s.State.Phase != routine.PhaseIdle || s.RoutineID != "" {
		t.Errorf("unexpected state after deselect: %+v", s)
	}
}

func TestUsersAreIndependent(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()
	steps := []models.RoutineStep{{ID: "a", Index: 1, Title: "Sit", DurationMinutes: 1}}
	r1, _ := st.AddRoutine(ctx, "u1", models.Routine{Name: "One"}, steps)
	r2, _ := st.AddRoutine(ctx, "u2", models.Routine{Name: "Two"}, steps)

	var mu sync.Mutex
	seen := map[string]int{}
	mc := clock.NewManual()
	m := NewManager(st, mc, WithEventHook(func(userID string, ev routine.Event) {
		if ev.Type == routine.EventTick {
			mu.Lock()
			seen[userID]++
			mu.Unlock()
		}
	}))
	defer m.Close()

	_, _ = m.Select(ctx, "u1", r1.ID)
	_, _ = m.Select(ctx, "u2", r2.ID)
	_, _ = m.Start("u1")
	mc.Advance(5)
	m.Stop("u1")
	_, _ = m.Start("u2")
	mc.Advance(2)

	if got := m.State("u1").State.RemainingSeconds; got != 55 {
		t.Errorf("u1 remaining = %d, want 55", got)
	}
	if got := m.State("u2").State.RemainingSeconds; got != 58 {
		t.Errorf("u2 remaining = %d, want 58", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if seen["u1"] != 5 || seen["u2"] != 2 {
		t.Errorf("tick events per user = %v", seen)
	}
}

func TestResetAndAdvance(t *testing.T) {
	m, _, routineID := newTestManager(t)
	_, _ = m.Select(context.Background(), "u1", routineID)

	if s := m.Reset("u1"); s.State.RemainingSeconds != 0 {
		t.Errorf("Reset: %+v", s.State)
	}
	s, err := m.Advance("u1")
	if err != nil {
		t.Fatal(err)
	}
	if s.State.CurrentStepIndex != 1 || s.State.Steps[0].IsCompleted {
		t.Errorf("Advance should not mark completion: %+v", s.State)
	}
}

func TestEvictIdle(t *testing.T) {
	st := store.NewInMemoryStore()
	if _, err := st.AddRoutine(context.Background(), "u1", models.Routine{ID: "night", Name: "Night"}, []models.RoutineStep{
		{ID: "s1", Index: 1, Title: "Breathe", DurationMinutes: 1},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.AddRoutine(context.Background(), "u2", models.Routine{ID: "night", Name: "Night"}, []models.RoutineStep{
		{ID: "s1", Index: 1, Title: "Breathe", DurationMinutes: 1},
	}); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	mc := clock.NewManual()
	m := NewManager(st, mc, WithNow(func() time.Time { return now }))
	ctx := context.Background()

	if _, err := m.Select(ctx, "u1", "night"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Select(ctx, "u2", "night"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Start("u2"); err != nil {
		t.Fatal(err)
	}
	m.State("idle-viewer")

	now = now.Add(30 * time.Minute)
	if n := m.EvictIdle(time.Hour); n != 0 {
		t.Fatalf("EvictIdle evicted %d fresh sessions", n)
	}

	now = now.Add(2 * time.Hour)
	if n := m.EvictIdle(time.Hour); n != 2 {
		t.Fatalf("EvictIdle = %d, want 2 (running timer kept)", n)
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d, want 1", m.Len())
	}
	if s := m.State("u2"); !s.State.TimerRunning {
		t.Errorf("running session should survive eviction: %+v", s.State)
	}
	if s := m.State("u1"); s.RoutineID != "" || s.State.Phase != routine.PhaseIdle {
		t.Errorf("evicted user should start fresh: %+v", s)
	}

	m.Stop("u2")
	now = now.Add(2 * time.Hour)
	if n := m.EvictIdle(time.Hour); n != 2 {
		t.Errorf("EvictIdle after stop = %d, want 2", n)
	}
	if mc.Active() != 0 {
		t.Errorf("evicted sessions left %d tickers", mc.Active())
	}
}

func TestEvictIdleIgnoresNonPositiveTTL(t *testing.T) {
	st := store.NewInMemoryStore()
	if _, err := st.AddRoutine(context.Background(), "u1", models.Routine{ID: "night", Name: "Night"}, []models.RoutineStep{
		{ID: "s1", Index: 1, Title: "Breathe", DurationMinutes: 1},
	}); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	m := NewManager(st, clock.NewManual(), WithNow(func() time.Time { return now }))
	if _, err := m.Select(context.Background(), "u1", "night"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(time.Minute)

	for _, ttl := range []time.Duration{0, -time.Hour} {
		if n := m.EvictIdle(ttl); n != 0 {
			t.Errorf("EvictIdle(%v) = %d, want 0", ttl, n)
		}
	}
	if s := m.State("u1"); s.RoutineID != "night" {
		t.Errorf("paused session was dropped: %+v", s)
	}
}
