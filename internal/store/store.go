// Package store provides storage backends for RoutineTimer.
//
// It includes an in-memory store plus SQLite and PostgreSQL backends for routines and their steps.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/RoutineTimer/internal/models"
)

var (
	// ErrNotFound is wrapped by LoadError/SaveError when a routine or step does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is wrapped by SaveError when AddRoutine is given an id the user already has.
	ErrAlreadyExists = errors.New("already exists")
)

// RoutineStore persists routines and their ordered steps per user.
type RoutineStore interface {
	// FetchRoutines lists the user's routines.
	FetchRoutines(ctx context.Context, userID string) ([]models.Routine, error)
	// FetchSteps returns the routine's steps sorted ascending by index.
	FetchSteps(ctx context.Context, userID, routineID string) ([]models.RoutineStep, error)
	// AddRoutine stores a routine with its steps; StepCount is set to len(steps).
	AddRoutine(ctx context.Context, userID string, routine models.Routine, steps []models.RoutineStep) (models.Routine, error)
	// DeleteRoutine removes a routine and all of its steps.
	DeleteRoutine(ctx context.Context, userID, routineID string) error
	// PersistStepEdit updates the editable fields of one step.
	PersistStepEdit(ctx context.Context, userID, routineID, stepID, title, description string, durationMinutes int) error
	// Close releases backend resources.
	Close() error
}

// LoadError reports a failed read.
type LoadError struct {
	Op        string
	UserID    string
	RoutineID string
	Err       error
}

func (e *LoadError) Error() string {
	if e.RoutineID != "" {
		return fmt.Sprintf("load %s (user %s, routine %s): %v", e.Op, e.UserID, e.RoutineID, e.Err)
	}
	return fmt.Sprintf("load %s (user %s): %v", e.Op, e.UserID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SaveError reports a failed write.
type SaveError struct {
	Op        string
	UserID    string
	RoutineID string
	Err       error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save %s (user %s, routine %s): %v", e.Op, e.UserID, e.RoutineID, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN  string // database connection string or SQLite file path
	Type string // "sqlite" or "postgres"; detected from DSN when empty
}

// Option defines a functional option for configuring stores.
type Option func(*Opts)

// WithSQLiteDSN selects the SQLite backend with the given file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Type = "sqlite"
	}
}

// WithPostgresDSN selects the PostgreSQL backend with the given connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Type = "postgres"
	}
}

// WithDSN sets the DSN and leaves backend detection to DetectDSNType.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL URLs or keyword DSNs and "sqlite" otherwise.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// NewStore opens the backend described by opts. Without a DSN it returns an in-memory store.
func NewStore(opts ...Option) (RoutineStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("No database DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	if cfg.Type == "" {
		cfg.Type = DetectDSNType(cfg.DSN)
	}
	slog.Debug("NewStore: selecting backend", "type", cfg.Type)
	switch cfg.Type {
	case "postgres":
		return NewPostgresStore(WithPostgresDSN(cfg.DSN))
	case "sqlite":
		return NewSQLiteStore(WithSQLiteDSN(cfg.DSN))
	default:
		return nil, fmt.Errorf("unsupported store type %q", cfg.Type)
	}
}
