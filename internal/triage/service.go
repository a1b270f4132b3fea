package triage

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

var (
	ErrRunNotFound         = errors.New("run not found")
	ErrTaskNotFound        = errors.New("task not found")
	ErrAlreadyConfirmed    = errors.New("run already confirmed")
	ErrNotConfirmable      = errors.New("decision is not confirmable")
	ErrP0NeedsConfirmation = errors.New("top priority requires explicit confirmation")
)

// Notifier is told about every new run. Failures are logged, never surfaced.
type Notifier interface {
	NotifyRun(ctx context.Context, run *Run) error
}

// Acceptance is the caller's confirmation of one NEW decision. Empty fields
// keep the suggested values. The top priority level is only assigned when
// Priority names it and AllowP0 is set.
type Acceptance struct {
	Index    int    `json:"index"`
	Title    string `json:"title,omitempty"`
	Category string `json:"category,omitempty"`
	Priority string `json:"priority,omitempty"`
	AllowP0  bool   `json:"allow_p0,omitempty"`
}

// TaskInput is a directly created task.
type TaskInput struct {
	Title    string `json:"title"`
	Category string `json:"category,omitempty"`
	Priority string `json:"priority,omitempty"`
	AllowP0  bool   `json:"allow_p0,omitempty"`
}

// TaskFilter selects tasks for ListTasks. Empty slices match everything.
type TaskFilter struct {
	Categories  []string
	Priorities  []string
	Statuses    []Status
	IncludeDone bool
}

func (f TaskFilter) match(t ExistingTask) bool {
	if t.Status == StatusDone && !f.IncludeDone && !slices.Contains(f.Statuses, StatusDone) {
		return false
	}
	if len(f.Categories) > 0 && !slices.Contains(f.Categories, t.Category) {
		return false
	}
	if len(f.Priorities) > 0 && !slices.Contains(f.Priorities, t.Priority) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
		return false
	}
	return true
}

// DefaultPruneAge is how long a done task is kept when a prune names no age.
const DefaultPruneAge = 30 * 24 * time.Hour

// maxPruneDays bounds a prune age given in days so it fits a time.Duration.
const maxPruneDays = 36500

// PruneAgeDays converts a prune age in whole days.
func PruneAgeDays(days int) (time.Duration, error) {
	if days < 0 || days > maxPruneDays {
		return 0, invalidField("older_than_days", "%d is outside [0, %d]", days, maxPruneDays)
	}
	return time.Duration(days) * 24 * time.Hour, nil
}

// PruneResult lists the done tasks a prune removed.
type PruneResult struct {
	Cutoff  time.Time      `json:"cutoff"`
	Count   int            `json:"deleted_count"`
	Deleted []ExistingTask `json:"deleted"`
}

// Stats is a count breakdown of the task corpus. Done tasks are excluded
// from the priority and category counts.
type Stats struct {
	Total      int            `json:"total_tasks"`
	Open       int            `json:"active_tasks"`
	ByPriority map[string]int `json:"by_priority"`
	ByCategory map[string]int `json:"by_category"`
	ByStatus   map[Status]int `json:"by_status"`
}

// Service is the business boundary for backlog triage.
type Service struct {
	store    Store
	engine   *Engine
	cfg      *Config
	logger   log.Logger
	metrics  *Metrics
	notifier Notifier
	now      func() time.Time
}

// NewService creates a new triage service. metrics and notifier may be nil.
func NewService(store Store, engine *Engine, cfg *Config, logger log.Logger, metrics *Metrics, notifier Notifier) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		engine:   engine,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		notifier: notifier,
		now:      time.Now,
	}
}

// Config returns the triage configuration the service runs with.
func (s *Service) Config() *Config { return s.cfg }

// Submit triages items against a snapshot of the stored tasks and records
// the report as a pending run. Nothing is written to the task corpus.
func (s *Service) Submit(ctx context.Context, items []string) (*Run, error) {
	if len(items) == 0 {
		s.metrics.submit("invalid")
		return nil, invalidField("items", "no items provided")
	}

	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		s.metrics.submit("error")
		return nil, fmt.Errorf("snapshot tasks: %w", err)
	}

	now := s.now().UTC()
	report, err := s.engine.Triage(ctx, items, tasks, s.cfg.At(now))
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			s.metrics.submit("invalid")
		} else {
			s.metrics.submit("error")
		}
		return nil, err
	}

	run := &Run{
		ID:        ulid.Make().String(),
		Status:    RunPending,
		Items:     slices.Clone(items),
		Report:    report,
		CreatedAt: now,
	}
	if err := s.store.PutRun(ctx, run); err != nil {
		s.metrics.submit("error")
		return nil, fmt.Errorf("store run: %w", err)
	}
	s.metrics.submit("accepted")

	if s.notifier != nil {
		go s.notify(context.WithoutCancel(ctx), run)
	}
	return run, nil
}

func (s *Service) notify(ctx context.Context, run *Run) {
	if err := s.notifier.NotifyRun(ctx, run); err != nil {
		s.logger.Error(ctx, err, "run notification failed", "run_id", run.ID)
	}
}

// Get retrieves a run by ID.
func (s *Service) Get(ctx context.Context, id string) (*Run, bool, error) {
	return s.store.GetRun(ctx, id)
}

// Confirm materializes accepted NEW decisions of a pending run as todo
// tasks. A nil acc accepts every NEW decision as suggested; an empty,
// non-nil acc closes the run without creating tasks. A run can be confirmed
// once.
func (s *Service) Confirm(ctx context.Context, id string, acc []Acceptance) (*Run, error) {
	run, ok, err := s.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRunNotFound
	}
	if run.Status != RunPending {
		s.metrics.confirm("conflict", 0)
		return nil, ErrAlreadyConfirmed
	}

	if acc == nil {
		for _, d := range run.Report.Decisions {
			if d.Kind == KindNew {
				acc = append(acc, Acceptance{Index: d.Index})
			}
		}
	}

	now := s.now().UTC()
	seen := make(map[int]struct{}, len(acc))
	tasks := make([]ExistingTask, 0, len(acc))
	for _, a := range acc {
		if a.Index < 0 || a.Index >= len(run.Report.Decisions) {
			s.metrics.confirm("invalid", 0)
			return nil, fmt.Errorf("index %d: %w", a.Index, ErrNotConfirmable)
		}
		if _, dup := seen[a.Index]; dup {
			s.metrics.confirm("invalid", 0)
			return nil, fmt.Errorf("index %d accepted twice: %w", a.Index, ErrNotConfirmable)
		}
		seen[a.Index] = struct{}{}

		d := run.Report.Decisions[a.Index]
		if d.Kind != KindNew {
			s.metrics.confirm("invalid", 0)
			return nil, fmt.Errorf("index %d is %s: %w", a.Index, d.Kind, ErrNotConfirmable)
		}

		t, err := s.newTask(TaskInput{
			Title:    cmp.Or(strings.TrimSpace(a.Title), strings.TrimSpace(d.Item)),
			Category: cmp.Or(a.Category, d.Category),
			Priority: cmp.Or(a.Priority, d.Priority),
			AllowP0:  a.AllowP0,
		}, now)
		if err != nil {
			s.metrics.confirm("invalid", 0)
			return nil, fmt.Errorf("index %d: %w", a.Index, err)
		}
		tasks = append(tasks, t)
	}

	run.Status = RunConfirmed
	run.ConfirmedAt = now
	run.CreatedTaskIDs = make([]string, 0, len(tasks))
	for _, t := range tasks {
		run.CreatedTaskIDs = append(run.CreatedTaskIDs, t.ID)
	}

	if err := s.store.ConfirmRun(ctx, run, tasks); err != nil {
		if errors.Is(err, ErrAlreadyConfirmed) {
			s.metrics.confirm("conflict", 0)
			return nil, err
		}
		s.metrics.confirm("error", 0)
		return nil, fmt.Errorf("confirm run: %w", err)
	}
	s.metrics.confirm("confirmed", len(tasks))

	s.logger.Info(ctx, "run confirmed",
		"run_id", run.ID,
		"tasks_created", len(tasks),
	)
	return run, nil
}

// CreateTask adds a single todo task without a triage pass.
func (s *Service) CreateTask(ctx context.Context, in TaskInput) (*ExistingTask, error) {
	t, err := s.newTask(in, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateTasks(ctx, []ExistingTask{t}); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &t, nil
}

func (s *Service) newTask(in TaskInput, now time.Time) (ExistingTask, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return ExistingTask{}, invalidField("title", "empty")
	}
	category := cmp.Or(in.Category, s.cfg.FallbackCategory())
	if !s.cfg.HasCategory(category) {
		return ExistingTask{}, invalidField("category", "%q is not a configured category", category)
	}
	priority := cmp.Or(in.Priority, s.cfg.DefaultPriority())
	if !s.cfg.HasLevel(priority) {
		return ExistingTask{}, invalidField("priority", "%q is not a configured level", priority)
	}
	if priority == s.cfg.TopPriority() && !in.AllowP0 {
		return ExistingTask{}, ErrP0NeedsConfirmation
	}
	return ExistingTask{
		ID:        ulid.Make().String(),
		Title:     title,
		Category:  category,
		Priority:  priority,
		Status:    StatusTodo,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// SetTaskStatus moves a task to a new lifecycle state.
func (s *Service) SetTaskStatus(ctx context.Context, id string, status Status) error {
	ok, err := s.store.UpdateTaskStatus(ctx, id, status, s.now().UTC())
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if !ok {
		return ErrTaskNotFound
	}
	return nil
}

// PruneDone deletes done tasks that have not changed for olderThan. Zero
// prunes every done task.
func (s *Service) PruneDone(ctx context.Context, olderThan time.Duration) (*PruneResult, error) {
	if olderThan < 0 {
		return nil, invalidField("older_than", "%s is negative", olderThan)
	}
	cutoff := s.now().UTC().Add(-olderThan)
	deleted, err := s.store.DeleteDoneTasks(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("prune done tasks: %w", err)
	}
	if deleted == nil {
		deleted = []ExistingTask{}
	}
	s.logger.Info(ctx, "pruned done tasks",
		"cutoff", cutoff,
		"deleted", len(deleted),
	)
	return &PruneResult{Cutoff: cutoff, Count: len(deleted), Deleted: deleted}, nil
}

// ListTasks returns stored tasks matching f, most urgent level first, then
// oldest first.
func (s *Service) ListTasks(ctx context.Context, f TaskFilter) ([]ExistingTask, error) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	rank := make(map[string]int)
	for i, l := range s.cfg.Levels() {
		rank[l.Name] = i
	}
	unranked := len(rank)
	level := func(p string) int {
		if r, ok := rank[p]; ok {
			return r
		}
		return unranked
	}

	out := make([]ExistingTask, 0, len(tasks))
	for _, t := range tasks {
		if f.match(t) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b ExistingTask) int {
		return cmp.Or(
			cmp.Compare(level(a.Priority), level(b.Priority)),
			a.CreatedAt.Compare(b.CreatedAt),
		)
	})
	return out, nil
}

// Budget reports priority-budget health over the stored tasks alone.
func (s *Service) Budget(ctx context.Context) (*Budget, error) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	b := ComputeBudget(tasks, nil, s.cfg)
	return &b, nil
}

// Stats summarizes the stored tasks.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{
		Total:      len(tasks),
		ByPriority: map[string]int{},
		ByCategory: map[string]int{},
		ByStatus:   map[Status]int{},
	}
	for _, t := range tasks {
		st.ByStatus[t.Status]++
		if t.Status == StatusDone {
			continue
		}
		st.Open++
		st.ByPriority[t.Priority]++
		st.ByCategory[cmp.Or(t.Category, s.cfg.FallbackCategory())]++
	}
	return st, nil
}
