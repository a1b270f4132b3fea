// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/linnemanlabs/sift/internal/triage"
)

// Store holds tasks and runs in memory. Suitable for dev/testing.
type Store struct {
	mu    sync.RWMutex
	tasks []triage.ExistingTask  // insertion order
	byID  map[string]int         // task ID -> index into tasks
	runs  map[string]*triage.Run // run ID -> run
}

// New initializes a new in-memory Store seeded with tasks.
func New(tasks ...triage.ExistingTask) *Store {
	s := &Store{
		byID: make(map[string]int),
		runs: make(map[string]*triage.Run),
	}
	for _, t := range tasks {
		s.byID[t.ID] = len(s.tasks)
		s.tasks = append(s.tasks, copyTask(t))
	}
	return s
}

// ListTasks returns a copy of every task in insertion order.
func (s *Store) ListTasks(_ context.Context) ([]triage.ExistingTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]triage.ExistingTask, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = copyTask(t)
	}
	return out, nil
}

// CreateTasks appends tasks. Nothing is written if any ID already exists.
func (s *Store) CreateTasks(_ context.Context, tasks []triage.ExistingTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(tasks)
}

func (s *Store) createLocked(tasks []triage.ExistingTask) error {
	seen := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		if _, ok := s.byID[t.ID]; ok {
			return fmt.Errorf("task %s already exists", t.ID)
		}
		if _, ok := seen[t.ID]; ok {
			return fmt.Errorf("task %s given twice", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	for _, t := range tasks {
		s.byID[t.ID] = len(s.tasks)
		s.tasks = append(s.tasks, copyTask(t))
	}
	return nil
}

// UpdateTaskStatus sets the status of a task. Returns false if it does not exist.
func (s *Store) UpdateTaskStatus(_ context.Context, id string, status triage.Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	s.tasks[i].Status = status
	s.tasks[i].UpdatedAt = at
	return true, nil
}

// DeleteDoneTasks removes done tasks last changed before cutoff.
func (s *Store) DeleteDoneTasks(_ context.Context, cutoff time.Time) ([]triage.ExistingTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted []triage.ExistingTask
	kept := s.tasks[:0]
	for _, t := range s.tasks {
		changed := t.LastChanged()
		if t.Status == triage.StatusDone && !changed.IsZero() && changed.Before(cutoff) {
			deleted = append(deleted, t)
			continue
		}
		kept = append(kept, t)
	}
	if len(deleted) == 0 {
		return nil, nil
	}
	clear(s.tasks[len(kept):])
	s.tasks = kept
	clear(s.byID)
	for i, t := range s.tasks {
		s.byID[t.ID] = i
	}
	return deleted, nil
}

// GetRun retrieves a run by its ID. Returns a copy.
func (s *Store) GetRun(_ context.Context, id string) (*triage.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, false, nil
	}
	return copyRun(r), true, nil
}

// PutRun stores a copy of the run.
func (s *Store) PutRun(_ context.Context, r *triage.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = copyRun(r)
	return nil
}

// ConfirmRun stores the confirmed run and its tasks under one lock.
func (s *Store) ConfirmRun(_ context.Context, r *triage.Run, tasks []triage.ExistingTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.runs[r.ID]
	if !ok {
		return triage.ErrRunNotFound
	}
	if cur.Status != triage.RunPending {
		return triage.ErrAlreadyConfirmed
	}
	if err := s.createLocked(tasks); err != nil {
		return err
	}
	s.runs[r.ID] = copyRun(r)
	return nil
}

func copyTask(t triage.ExistingTask) triage.ExistingTask {
	t.Tags = slices.Clone(t.Tags)
	return t
}

// copyRun copies the mutable parts of a run. Reports are never modified
// after a pass and are shared.
func copyRun(r *triage.Run) *triage.Run {
	cp := *r
	cp.Items = slices.Clone(r.Items)
	cp.CreatedTaskIDs = slices.Clone(r.CreatedTaskIDs)
	return &cp
}
