// Package seed installs default routines from a YAML file.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/RoutineTimer/internal/models"
	"github.com/BTreeMap/RoutineTimer/internal/store"
)

// Routine is one routine entry of a seed file.
type Routine struct {
	ID    string               `yaml:"id,omitempty"`
	Name  string               `yaml:"name"`
	Steps []models.RoutineStep `yaml:"steps"`
}

// File models the seed document.
type File struct {
	Version  int       `yaml:"version"`
	Routines []Routine `yaml:"routines"`
}

// Parse decodes and validates a seed document. Steps without an index are numbered
// by their position.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("seed: decode: %w", err)
	}
	for i := range f.Routines {
		r := &f.Routines[i]
		for j := range r.Steps {
			if r.Steps[j].Index == 0 {
				r.Steps[j].Index = j + 1
			}
		}
		if err := models.ValidateRoutine(r.Name, r.Steps); err != nil {
			return nil, fmt.Errorf("seed: routine %q: %w", r.Name, err)
		}
	}
	return &f, nil
}

// Load reads and parses the seed file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	return Parse(data)
}

// Apply adds every seeded routine the user does not already have (matched by name
// or by explicit id). It returns how many routines were added.
func Apply(ctx context.Context, st store.RoutineStore, userID string, f *File) (int, error) {
	existing, err := st.FetchRoutines(ctx, userID)
	if err != nil {
		return 0, err
	}
	have := make(map[string]struct{}, len(existing))
	haveID := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		have[r.Name] = struct{}{}
		haveID[r.ID] = struct{}{}
	}

	added := 0
	for _, r := range f.Routines {
		_, sameName := have[r.Name]
		_, sameID := haveID[r.ID]
		if sameName || (r.ID != "" && sameID) {
			slog.Debug("seed: routine already present", "userID", userID, "name", r.Name, "routineID", r.ID)
			continue
		}
		saved, err := st.AddRoutine(ctx, userID, models.Routine{ID: r.ID, Name: r.Name}, r.Steps)
		if err != nil {
			return added, err
		}
		have[r.Name] = struct{}{}
		haveID[saved.ID] = struct{}{}
		added++
		slog.Info("seed: routine added", "userID", userID, "routineID", saved.ID, "name", saved.Name, "steps", saved.StepCount)
	}
	return added, nil
}
