package store

import (
	"github.com/BTreeMap/RoutineTimer/internal/models"
	"github.com/google/uuid"
)

// prepareRoutine mints missing ids, sorts a copy of the steps and fixes StepCount.
// Steps sharing an index or an id are rejected before anything is written.
func prepareRoutine(routine models.Routine, steps []models.RoutineStep) (models.Routine, []models.RoutineStep, error) {
	if err := models.CheckStepKeys(steps); err != nil {
		return routine, nil, err
	}
	if routine.ID == "" {
		routine.ID = uuid.NewString()
	}
	out := make([]models.RoutineStep, len(steps))
	copy(out, steps)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
	}
	models.SortSteps(out)
	routine.StepCount = len(out)
	return routine, out, nil
}
