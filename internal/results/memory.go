package results

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryStore is a Store held in a map. It is safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]Run
	now  func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]Run), now: time.Now}
}

func (s *MemoryStore) Save(ctx context.Context, name string, run Run) (Run, error) {
	if err := checkName(name); err != nil {
		return Run{}, err
	}
	if err := ctx.Err(); err != nil {
		return Run{}, err
	}
	run = prepare(run, s.now())
	s.mu.Lock()
	s.runs[name] = run
	s.mu.Unlock()
	diagf("saved %d foci as %q (run %s)", len(run.Foci), name, run.ID)

	out := run
	out.Foci = slices.Clone(run.Foci)
	return out, nil
}

func (s *MemoryStore) Load(ctx context.Context, name string) (Run, error) {
	if err := ctx.Err(); err != nil {
		return Run{}, err
	}
	s.mu.RLock()
	run, ok := s.runs[name]
	s.mu.RUnlock()
	if !ok {
		return Run{}, fmt.Errorf("load %q: %w", name, ErrNotFound)
	}
	run.Foci = slices.Clone(run.Foci)
	return run, nil
}

// Names returns the stored names in ascending order.
func (s *MemoryStore) Names(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.runs)), nil
}

func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[name]; !ok {
		return fmt.Errorf("delete %q: %w", name, ErrNotFound)
	}
	delete(s.runs, name)
	return nil
}
