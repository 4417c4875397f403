package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/RoutineTimer/internal/clock"
	"github.com/BTreeMap/RoutineTimer/internal/models"
	"github.com/BTreeMap/RoutineTimer/internal/routine"
	"github.com/BTreeMap/RoutineTimer/internal/session"
	"github.com/BTreeMap/RoutineTimer/internal/store"
	"github.com/BTreeMap/RoutineTimer/internal/testutil"
)

type testEnv struct {
	server *Server
	store  *store.InMemoryStore
	clock  *clock.Manual
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewInMemoryStore()
	mc := clock.NewManual()
	mgr := session.NewManager(st, mc)
	t.Cleanup(mgr.Close)
	return &testEnv{server: NewServer(st, mgr), store: st, clock: mc}
}

func (e *testEnv) do(t *testing.T, method, url string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, testutil.CreateHTTPRequest(t, method, url, body))
	return rr
}

func decodeSnapshot(t *testing.T, rr *httptest.ResponseRecorder) session.Snapshot {
	t.Helper()
	var snap session.Snapshot
	testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, models.APIStatusOK), &snap)
	return snap
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/health", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health")
	testutil.AssertJSONResponse(t, rr, models.APIStatusOK)
}

func TestRoutineCRUD(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/users/u1/routines", models.CreateRoutineRequest{
		Name: "Night",
		Steps: []models.RoutineStep{
			{Index: 2, Title: "Stretch", DurationMinutes: 2},
			{Index: 1, Title: "Breathe", DurationMinutes: 1},
		},
	})
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "create routine")
	var created models.Routine
	testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, models.APIStatusOK), &created)
	if created.ID == "" || created.StepCount != 2 {
		t.Fatalf("unexpected created routine: %+v", created)
	}

	rr = env.do(t, http.MethodGet, "/users/u1/routines", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "list routines")
	var routines []models.Routine
	testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, models.APIStatusOK), &routines)
	if len(routines) != 1 || routines[0].ID != created.ID {
		t.Fatalf("unexpected routines: %+v", routines)
	}

	rr = env.do(t, http.MethodGet, "/users/u1/routines/"+created.ID+"/steps", nil)
	var steps []models.RoutineStep
	testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, models.APIStatusOK), &steps)
	if len(steps) != 2 || steps[0].Title != "Breathe" {
		t.Fatalf("steps not ordered by index: %+v", steps)
	}

	rr = env.do(t, http.MethodPut, "/users/u1/routines/"+created.ID+"/steps/"+steps[1].ID,
		models.EditStepRequest{Title: "Long stretch", DurationMinutes: 6})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "edit step")

	rr = env.do(t, http.MethodDelete, "/users/u1/routines/"+created.ID, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "delete routine")

	rr = env.do(t, http.MethodDelete, "/users/u1/routines/"+created.ID, nil)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "delete missing routine")
	testutil.AssertJSONResponse(t, rr, models.APIStatusError)
}

func TestCreateRoutineValidation(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/users/u1/routines", models.CreateRoutineRequest{Name: ""})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "empty name")

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/users/u1/routines", nil)
	req.Body = http.NoBody
	rr = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "missing body")

	rr = env.do(t, http.MethodPut, "/users/u1/routines/x/steps/y", models.EditStepRequest{Title: "t", DurationMinutes: -3})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "negative duration")

	rr = env.do(t, http.MethodPost, "/users/u1/routines", models.CreateRoutineRequest{
		Name: "Twins",
		Steps: []models.RoutineStep{
			{ID: "s1", Index: 1, Title: "Breathe", DurationMinutes: 1},
			{ID: "s1", Index: 2, Title: "Stretch", DurationMinutes: 1},
		},
	})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "duplicate step id")
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPatch, "/users/u1/routines", nil)
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "PATCH routines")
}

func TestSessionFlow(t *testing.T) {
	env := newTestEnv(t)
	testutil.SeedRoutine(t, env.store, "u1", "night", "Night", 1, 2)

	rr := env.do(t, http.MethodPost, "/users/u1/session/select", models.SelectRoutineRequest{RoutineID: "night"})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "select")
	snap := decodeSnapshot(t, rr)
	if snap.State.RemainingSeconds != 60 || snap.State.Phase != routine.PhaseStepActive {
		t.Fatalf("unexpected snapshot after select: %+v", snap)
	}

	rr = env.do(t, http.MethodPost, "/users/u1/session/start", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "start")
	env.clock.Advance(15)

	rr = env.do(t, http.MethodPost, "/users/u1/session/stop", nil)
	snap = decodeSnapshot(t, rr)
	if snap.State.TimerRunning || snap.State.RemainingSeconds != 45 {
		t.Fatalf("unexpected snapshot after stop: %+v", snap.State)
	}

	rr = env.do(t, http.MethodPost, "/users/u1/session/complete", nil)
	snap = decodeSnapshot(t, rr)
	if snap.State.CurrentStepIndex != 1 || snap.State.RemainingSeconds != 120 {
		t.Fatalf("unexpected snapshot after complete: %+v", snap.State)
	}

	rr = env.do(t, http.MethodPost, "/users/u1/session/advance", nil)
	snap = decodeSnapshot(t, rr)
	if snap.State.Phase != routine.PhaseRoutineComplete {
		t.Fatalf("expected routine complete, got %+v", snap.State)
	}

	rr = env.do(t, http.MethodPost, "/users/u1/session/start", nil)
	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "start after completion")

	rr = env.do(t, http.MethodPost, "/users/u1/session/restart", nil)
	snap = decodeSnapshot(t, rr)
	if snap.State.CurrentStepIndex != 0 || snap.State.RemainingSeconds != 60 {
		t.Fatalf("unexpected snapshot after restart: %+v", snap.State)
	}

	rr = env.do(t, http.MethodPost, "/users/u1/session/deselect", nil)
	snap = decodeSnapshot(t, rr)
	if snap.State.Phase != routine.PhaseIdle {
		t.Fatalf("unexpected snapshot after deselect: %+v", snap.State)
	}

	rr = env.do(t, http.MethodGet, "/users/u1/session", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "state")
}

func TestSessionErrors(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/users/u1/session/select", models.SelectRoutineRequest{})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "select without id")

	rr = env.do(t, http.MethodPost, "/users/u1/session/select", models.SelectRoutineRequest{RoutineID: "missing"})
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "select missing routine")

	rr = env.do(t, http.MethodPost, "/users/u1/session/start", nil)
	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "start while idle")

	rr = env.do(t, http.MethodPost, "/users/u1/session/restart", nil)
	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "restart while idle")

	rr = env.do(t, http.MethodPost, "/users/u1/session/fly", nil)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown action")
}

func TestDeleteRoutineDeselectsSession(t *testing.T) {
	env := newTestEnv(t)
	testutil.SeedRoutine(t, env.store, "u1", "night", "Night", 1)

	env.do(t, http.MethodPost, "/users/u1/session/select", models.SelectRoutineRequest{RoutineID: "night"})
	env.do(t, http.MethodPost, "/users/u1/session/start", nil)

	rr := env.do(t, http.MethodDelete, "/users/u1/routines/night", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "delete")
	if env.clock.Active() != 0 {
		t.Errorf("deleting the selected routine left its timer running")
	}

	snap := decodeSnapshot(t, env.do(t, http.MethodGet, "/users/u1/session", nil))
	if snap.State.Phase != routine.PhaseIdle {
		t.Errorf("expected idle session, got %+v", snap.State)
	}
}
