// Package testutil provides common test utilities and helpers for RoutineTimer tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/BTreeMap/RoutineTimer/internal/models"
	"github.com/BTreeMap/RoutineTimer/internal/store"
)

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes the JSON envelope, checks its status field and returns it.
// The result payload is left as raw JSON for DecodeResult.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus) map[string]json.RawMessage {
	t.Helper()
	var response map[string]json.RawMessage
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	var status string
	if err := json.Unmarshal(response["status"], &status); err != nil {
		t.Fatalf("response missing or invalid 'status' field: %v", err)
	}
	if status != string(expectedStatus) {
		t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
	}
	return response
}

// DecodeResult unmarshals the envelope's result into v.
func DecodeResult(t *testing.T, response map[string]json.RawMessage, v interface{}) {
	t.Helper()
	raw, ok := response["result"]
	if !ok {
		t.Fatal("response has no 'result' field")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// SeedRoutine stores a routine with the given step durations (in minutes) and returns it.
// Steps are titled "step N" and get ids "<routineID>-N".
func SeedRoutine(t *testing.T, st store.RoutineStore, userID, routineID, name string, minutes ...int) models.Routine {
	t.Helper()
	steps := make([]models.RoutineStep, len(minutes))
	for i, m := range minutes {
		steps[i] = models.RoutineStep{
			ID:              routineID + "-" + strconv.Itoa(i+1),
			Index:           i + 1,
			Title:           "step " + strconv.Itoa(i+1),
			DurationMinutes: m,
		}
	}
	saved, err := st.AddRoutine(context.Background(), userID, models.Routine{ID: routineID, Name: name}, steps)
	if err != nil {
		t.Fatalf("failed to seed routine: %v", err)
	}
	return saved
}
