package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/RoutineTimer/internal/models"
)

// sqlStore holds the queries shared by the SQLite and PostgreSQL backends.
// Queries are written with '?' placeholders and rewritten by rebind.
type sqlStore struct {
	db      *sql.DB
	name    string
	dollars bool // PostgreSQL uses $1..$n placeholders
}

func (s *sqlStore) rebind(query string) string {
	if !s.dollars {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) FetchRoutines(ctx context.Context, userID string) ([]models.Routine, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, name, step_count FROM routines WHERE user_id = ? ORDER BY name, id`), userID)
	if err != nil {
		slog.Error(s.name+" FetchRoutines query failed", "error", err, "userID", userID)
		return nil, &LoadError{Op: "routines", UserID: userID, Err: err}
	}
	defer rows.Close()

	routines := []models.Routine{}
	for rows.Next() {
		var r models.Routine
		if err := rows.Scan(&r.ID, &r.Name, &r.StepCount); err != nil {
			slog.Error(s.name+" FetchRoutines scan failed", "error", err)
			return nil, &LoadError{Op: "routines", UserID: userID, Err: fmt.Errorf("failed to scan routine row: %w", err)}
		}
		routines = append(routines, r)
	}
	if err := rows.Err(); err != nil {
		slog.Error(s.name+" FetchRoutines rows iteration failed", "error", err)
		return nil, &LoadError{Op: "routines", UserID: userID, Err: err}
	}
	slog.Debug(s.name+" FetchRoutines succeeded", "userID", userID, "count", len(routines))
	return routines, nil
}

func (s *sqlStore) FetchSteps(ctx context.Context, userID, routineID string) ([]models.RoutineStep, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM routines WHERE user_id = ? AND id = ?`), userID, routineID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, &LoadError{Op: "steps", UserID: userID, RoutineID: routineID, Err: ErrNotFound}
	}
	if err != nil {
		slog.Error(s.name+" FetchSteps routine lookup failed", "error", err, "routineID", routineID)
		return nil, &LoadError{Op: "steps", UserID: userID, RoutineID: routineID, Err: err}
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, step_index, title, description, duration_minutes, is_completed
		FROM routine_steps WHERE user_id = ? AND routine_id = ?
		ORDER BY step_index ASC`), userID, routineID)
	if err != nil {
		slog.Error(s.name+" FetchSteps query failed", "error", err, "routineID", routineID)
		return nil, &LoadError{Op: "steps", UserID: userID, RoutineID: routineID, Err: err}
	}
	defer rows.Close()

	steps := []models.RoutineStep{}
	for rows.Next() {
		var st models.RoutineStep
		if err := rows.Scan(&st.ID, &st.Index, &st.Title, &st.Description, &st.DurationMinutes, &st.IsCompleted); err != nil {
			slog.Error(s.name+" FetchSteps scan failed", "error", err)
			return nil, &LoadError{Op: "steps", UserID: userID, RoutineID: routineID, Err: fmt.Errorf("failed to scan step row: %w", err)}
		}
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, &LoadError{Op: "steps", UserID: userID, RoutineID: routineID, Err: err}
	}
	slog.Debug(s.name+" FetchSteps succeeded", "routineID", routineID, "count", len(steps))
	return steps, nil
}

func (s *sqlStore) AddRoutine(ctx context.Context, userID string, routine models.Routine, steps []models.RoutineStep) (models.Routine, error) {
	routine, steps, err := prepareRoutine(routine, steps)
	saveErr := func(err error) error {
		return &SaveError{Op: "add routine", UserID: userID, RoutineID: routine.ID, Err: err}
	}
	if err != nil {
		return models.Routine{}, saveErr(err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Routine{}, saveErr(err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM routines WHERE user_id = ? AND id = ?`), userID, routine.ID).Scan(&exists)
	if err != nil {
		return models.Routine{}, saveErr(err)
	}
	if exists > 0 {
		return models.Routine{}, saveErr(ErrAlreadyExists)
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO routines (user_id, id, name, step_count) VALUES (?, ?, ?, ?)`),
		userID, routine.ID, routine.Name, routine.StepCount); err != nil {
		slog.Error(s.name+" AddRoutine insert failed", "error", err, "routineID", routine.ID)
		return models.Routine{}, saveErr(err)
	}
	for _, st := range steps {
		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO routine_steps (user_id, routine_id, id, step_index, title, description, duration_minutes, is_completed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			userID, routine.ID, st.ID, st.Index, st.Title, st.Description, st.DurationMinutes, st.IsCompleted); err != nil {
			slog.Error(s.name+" AddRoutine step insert failed", "error", err, "stepID", st.ID)
			return models.Routine{}, saveErr(fmt.Errorf("insert step %q: %w", st.Title, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Routine{}, saveErr(err)
	}
	slog.Debug(s.name+" AddRoutine succeeded", "userID", userID, "routineID", routine.ID, "steps", len(steps))
	return routine, nil
}

func (s *sqlStore) DeleteRoutine(ctx context.Context, userID, routineID string) error {
	saveErr := func(err error) error {
		return &SaveError{Op: "delete routine", UserID: userID, RoutineID: routineID, Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return saveErr(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM routine_steps WHERE user_id = ? AND routine_id = ?`), userID, routineID); err != nil {
		return saveErr(err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM routines WHERE user_id = ? AND id = ?`), userID, routineID)
	if err != nil {
		return saveErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return saveErr(ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return saveErr(err)
	}
	slog.Debug(s.name+" DeleteRoutine succeeded", "userID", userID, "routineID", routineID)
	return nil
}

func (s *sqlStore) PersistStepEdit(ctx context.Context, userID, routineID, stepID, title, description string, durationMinutes int) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE routine_steps SET title = ?, description = ?, duration_minutes = ?
		WHERE user_id = ? AND routine_id = ? AND id = ?`),
		title, description, durationMinutes, userID, routineID, stepID)
	if err != nil {
		slog.Error(s.name+" PersistStepEdit failed", "error", err, "stepID", stepID)
		return &SaveError{Op: "edit step", UserID: userID, RoutineID: routineID, Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &SaveError{Op: "edit step", UserID: userID, RoutineID: routineID, Err: ErrNotFound}
	}
	slog.Debug(s.name+" PersistStepEdit succeeded", "routineID", routineID, "stepID", stepID)
	return nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug("Closing database connection", "store", s.name)
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close database", "store", s.name, "error", err)
	}
	return err
}
