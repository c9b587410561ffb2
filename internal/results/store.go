// Package results keeps named foci result sets so that later runs, or the
// matching tool, can compare against them.
package results

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/findfoci/internal/findfoci"
)

var (
	// ErrNotFound is returned when no result set has the requested name.
	ErrNotFound = errors.New("result set not found")
	// ErrInvalidName is returned for an empty or blank name.
	ErrInvalidName = errors.New("invalid result set name")
)

// Run is one stored result set.
type Run struct {
	// ID identifies the run that produced the set. Save assigns a new UUID
	// when it is empty.
	ID         string
	Params     findfoci.Params
	Foci       findfoci.FociList
	Background float64
	Truncated  bool
	CreatedAt  time.Time
}

// Store is a name to result set registry. Saving under an existing name
// replaces the previous set.
type Store interface {
	Save(ctx context.Context, name string, run Run) (Run, error)
	Load(ctx context.Context, name string) (Run, error)
	Names(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return nil
}

// prepare fills in the generated fields and detaches the foci slice from
// the caller.
func prepare(run Run, now time.Time) Run {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.CreatedAt = run.CreatedAt.UTC()
	run.Foci = slices.Clone(run.Foci)
	return run
}
