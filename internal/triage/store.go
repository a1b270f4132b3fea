package triage

import (
	"context"
	"time"
)

// RunStatus is the lifecycle state of a submitted backlog run.
type RunStatus string

const (
	// RunPending means the report awaits caller confirmation
	RunPending RunStatus = "pending"

	// RunConfirmed means accepted decisions were materialized as tasks
	RunConfirmed RunStatus = "confirmed"
)

// Run is one submitted backlog with its triage report. Runs are the only
// write path from triage to the task corpus.
type Run struct {
	ID             string    `json:"id"`
	Status         RunStatus `json:"status"`
	Items          []string  `json:"items"`
	Report         *Report   `json:"report"`
	CreatedAt      time.Time `json:"created_at"`
	ConfirmedAt    time.Time `json:"confirmed_at,omitzero"`
	CreatedTaskIDs []string  `json:"created_task_ids,omitempty"`
}

// Store is the persistence interface for tasks and runs.
type Store interface {
	ListTasks(ctx context.Context) ([]ExistingTask, error)
	CreateTasks(ctx context.Context, tasks []ExistingTask) error
	UpdateTaskStatus(ctx context.Context, id string, status Status, at time.Time) (bool, error)

	// DeleteDoneTasks removes done tasks whose LastChanged is before cutoff
	// and returns them in insertion order. Tasks with no timestamps are kept.
	DeleteDoneTasks(ctx context.Context, cutoff time.Time) ([]ExistingTask, error)
	GetRun(ctx context.Context, id string) (*Run, bool, error)
	PutRun(ctx context.Context, run *Run) error

	// ConfirmRun stores run and creates tasks atomically. It returns
	// ErrAlreadyConfirmed when the stored run is no longer pending.
	ConfirmRun(ctx context.Context, run *Run, tasks []ExistingTask) error
}
