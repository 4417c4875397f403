package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/RoutineTimer/internal/models"
)

// CachedStore keeps each user's routine list in memory after the first fetch.
// Adding or deleting a routine drops that user's entry. Steps are never cached.
type CachedStore struct {
	RoutineStore

	mu       sync.Mutex
	routines map[string][]models.Routine
	// gen counts invalidations per user; a fetch that straddles one is not cached.
	gen map[string]uint64
}

// NewCachedStore wraps inner with a routine-list cache.
func NewCachedStore(inner RoutineStore) *CachedStore {
	return &CachedStore{
		RoutineStore: inner,
		routines:     make(map[string][]models.Routine),
		gen:          make(map[string]uint64),
	}
}

func (c *CachedStore) FetchRoutines(ctx context.Context, userID string) ([]models.Routine, error) {
	c.mu.Lock()
	cached, ok := c.routines[userID]
	gen := c.gen[userID]
	c.mu.Unlock()
	if ok {
		slog.Debug("CachedStore FetchRoutines hit", "userID", userID, "count", len(cached))
		return append([]models.Routine{}, cached...), nil
	}

	routines, err := c.RoutineStore.FetchRoutines(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.gen[userID] == gen {
		c.routines[userID] = append([]models.Routine{}, routines...)
	} else {
		slog.Debug("CachedStore FetchRoutines result superseded by a write", "userID", userID)
	}
	c.mu.Unlock()
	return routines, nil
}

func (c *CachedStore) AddRoutine(ctx context.Context, userID string, routine models.Routine, steps []models.RoutineStep) (models.Routine, error) {
	saved, err := c.RoutineStore.AddRoutine(ctx, userID, routine, steps)
	c.invalidate(userID)
	return saved, err
}

func (c *CachedStore) DeleteRoutine(ctx context.Context, userID, routineID string) error {
	err := c.RoutineStore.DeleteRoutine(ctx, userID, routineID)
	c.invalidate(userID)
	return err
}

func (c *CachedStore) invalidate(userID string) {
	c.mu.Lock()
	delete(c.routines, userID)
	c.gen[userID]++
	c.mu.Unlock()
}
