package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/BTreeMap/RoutineTimer/internal/models"
)

type memRoutine struct {
	routine models.Routine
	steps   []models.RoutineStep
}

// InMemoryStore is a simple in-memory store for routines, keyed by user.
type InMemoryStore struct {
	mu       sync.RWMutex
	routines map[string]map[string]*memRoutine
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{routines: make(map[string]map[string]*memRoutine)}
}

func (s *InMemoryStore) FetchRoutines(_ context.Context, userID string) ([]models.Routine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Routine, 0, len(s.routines[userID]))
	for _, r := range s.routines[userID] {
		out = append(out, r.routine)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemoryStore) FetchSteps(_ context.Context, userID, routineID string) ([]models.RoutineStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.routines[userID][routineID]
	if !ok {
		return nil, &LoadError{Op: "steps", UserID: userID, RoutineID: routineID, Err: ErrNotFound}
	}
	out := append([]models.RoutineStep{}, r.steps...)
	models.SortSteps(out)
	return out, nil
}

func (s *InMemoryStore) AddRoutine(_ context.Context, userID string, routine models.Routine, steps []models.RoutineStep) (models.Routine, error) {
	routine, steps, err := prepareRoutine(routine, steps)
	if err != nil {
		return models.Routine{}, &SaveError{Op: "add routine", UserID: userID, RoutineID: routine.ID, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.routines[userID] == nil {
		s.routines[userID] = make(map[string]*memRoutine)
	}
	if _, exists := s.routines[userID][routine.ID]; exists {
		return models.Routine{}, &SaveError{Op: "add routine", UserID: userID, RoutineID: routine.ID, Err: ErrAlreadyExists}
	}
	s.routines[userID][routine.ID] = &memRoutine{routine: routine, steps: steps}
	slog.Debug("InMemoryStore AddRoutine succeeded", "userID", userID, "routineID", routine.ID, "steps", len(steps))
	return routine, nil
}

func (s *InMemoryStore) DeleteRoutine(_ context.Context, userID, routineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routines[userID][routineID]; !ok {
		return &SaveError{Op: "delete routine", UserID: userID, RoutineID: routineID, Err: ErrNotFound}
	}
	delete(s.routines[userID], routineID)
	return nil
}

func (s *InMemoryStore) PersistStepEdit(_ context.Context, userID, routineID, stepID, title, description string, durationMinutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.routines[userID][routineID]
	if !ok {
		return &SaveError{Op: "edit step", UserID: userID, RoutineID: routineID, Err: ErrNotFound}
	}
	for i := range r.steps {
		if r.steps[i].ID == stepID {
			r.steps[i].Title = title
			r.steps[i].Description = description
			r.steps[i].DurationMinutes = durationMinutes
			return nil
		}
	}
	return &SaveError{Op: "edit step", UserID: userID, RoutineID: routineID, Err: ErrNotFound}
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
