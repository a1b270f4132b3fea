package triage

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/go-core/log"
)

// mockStore implements Store for testing.
type mockStore struct {
	mu      sync.Mutex
	tasks   []ExistingTask
	runs    map[string]*Run
	listErr   error
	putErr    error
	deleteErr error
}

func newMockStore(tasks ...ExistingTask) *mockStore {
	return &mockStore{tasks: tasks, runs: make(map[string]*Run)}
}

func (m *mockStore) ListTasks(_ context.Context) ([]ExistingTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return slices.Clone(m.tasks), nil
}

func (m *mockStore) CreateTasks(_ context.Context, tasks []ExistingTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, tasks...)
	return nil
}

func (m *mockStore) UpdateTaskStatus(_ context.Context, id string, status Status, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			m.tasks[i].Status = status
			m.tasks[i].UpdatedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) DeleteDoneTasks(_ context.Context, cutoff time.Time) ([]ExistingTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	var gone []ExistingTask
	m.tasks = slices.DeleteFunc(m.tasks, func(t ExistingTask) bool {
		changed := t.LastChanged()
		if t.Status == StatusDone && !changed.IsZero() && changed.Before(cutoff) {
			gone = append(gone, t)
			return true
		}
		return false
	})
	return gone, nil
}

func (m *mockStore) GetRun(_ context.Context, id string) (*Run, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

func (m *mockStore) PutRun(_ context.Context, r *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	cp := *r
	m.runs[r.ID] = &cp
	return nil
}

func (m *mockStore) ConfirmRun(_ context.Context, r *Run, tasks []ExistingTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.runs[r.ID]; ok && cur.Status != RunPending {
		return ErrAlreadyConfirmed
	}
	cp := *r
	m.runs[r.ID] = &cp
	m.tasks = append(m.tasks, tasks...)
	return nil
}

// mockNotifier records notified run IDs.
type mockNotifier struct {
	ch chan string
}

func (n *mockNotifier) NotifyRun(_ context.Context, r *Run) error {
	n.ch <- r.ID
	return nil
}

var fixedNow = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, store Store, n Notifier) *Service {
	t.Helper()
	cfg := mustConfig(t, DefaultOptions())
	svc := NewService(store, NewEngine(log.Nop(), EngineHooks{}, 2), cfg, log.Nop(), nil, n)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestSubmit_CreatesPendingRun(t *testing.T) {
	t.Parallel()

	store := newMockStore(ExistingTask{ID: "t-1", Title: "Fix authentication issue", Category: "technical", Priority: "P2", Status: StatusTodo})
	n := &mockNotifier{ch: make(chan string, 1)}
	svc := newTestService(t, store, n)

	run, err := svc.Submit(context.Background(), []string{
		"Fix the login bug that Sarah reported - urgent!",
		"Research competitors pricing models",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if run.ID == "" || run.Status != RunPending {
		t.Fatalf("run = %+v", run)
	}
	if !run.CreatedAt.Equal(fixedNow) {
		t.Errorf("created_at = %v, want %v", run.CreatedAt, fixedNow)
	}
	if run.Report.Summary.Duplicates != 1 || run.Report.Summary.New != 1 {
		t.Errorf("summary = %+v", run.Report.Summary)
	}

	if _, ok, _ := store.GetRun(context.Background(), run.ID); !ok {
		t.Error("run was not persisted")
	}
	if tasks, _ := store.ListTasks(context.Background()); len(tasks) != 1 {
		t.Errorf("submit must not write tasks, have %d", len(tasks))
	}

	select {
	case id := <-n.ch:
		if id != run.ID {
			t.Errorf("notified %q, want %q", id, run.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was not called")
	}
}

func TestSubmit_NoItems(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, newMockStore(), nil)
	if _, err := svc.Submit(context.Background(), nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestSubmit_StoreErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	store := newMockStore()
	store.listErr = boom
	if _, err := newTestService(t, store, nil).Submit(context.Background(), []string{"Call the bank"}); !errors.Is(err, boom) {
		t.Errorf("list error = %v, want boom", err)
	}

	store = newMockStore()
	store.putErr = boom
	if _, err := newTestService(t, store, nil).Submit(context.Background(), []string{"Call the bank"}); !errors.Is(err, boom) {
		t.Errorf("put error = %v, want boom", err)
	}
}

func TestSubmit_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	cfg := mustConfig(t, DefaultOptions())
	svc := NewService(newMockStore(), NewEngine(log.Nop(), m.Hooks(), 1), cfg, log.Nop(), m, nil)

	if _, err := svc.Submit(context.Background(), []string{"Research competitors pricing models", ""}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.Submit(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}

	if got := counterValue(t, reg, "sift_submits_total", "accepted"); got != 1 {
		t.Errorf("accepted submits = %v, want 1", got)
	}
	if got := counterValue(t, reg, "sift_submits_total", "invalid"); got != 1 {
		t.Errorf("invalid submits = %v, want 1", got)
	}
	if got := counterValue(t, reg, "sift_triage_decisions_total", string(KindNew)); got != 1 {
		t.Errorf("new decisions = %v, want 1", got)
	}
	if got := counterValue(t, reg, "sift_triage_passes_total", ""); got != 1 {
		t.Errorf("passes = %v, want 1", got)
	}
}

// counterValue returns the counter sample whose single label has value label,
// or the unlabelled sample when label is empty.
func counterValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := m.GetLabel()
			if (label == "" && len(labels) == 0) || (len(labels) == 1 && labels[0].GetValue() == label) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func submitted(t *testing.T, svc *Service, items ...string) *Run {
	t.Helper()
	run, err := svc.Submit(context.Background(), items)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return run
}

func TestConfirm_AllNew(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(t, store, nil)
	run := submitted(t, svc, "Research competitors pricing models", "", "Deploy the api fix tomorrow")

	got, err := svc.Confirm(context.Background(), run.ID, nil)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if got.Status != RunConfirmed || len(got.CreatedTaskIDs) != 2 {
		t.Fatalf("run = %+v", got)
	}

	tasks, _ := store.ListTasks(context.Background())
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(tasks))
	}
	if tasks[0].Title != "Research competitors pricing models" || tasks[0].Category != "research" || tasks[0].Priority != "P2" {
		t.Errorf("task[0] = %+v", tasks[0])
	}
	if tasks[1].Priority != "P1" || tasks[1].Status != StatusTodo {
		t.Errorf("task[1] = %+v", tasks[1])
	}

	if _, err := svc.Confirm(context.Background(), run.ID, nil); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Errorf("second confirm err = %v, want ErrAlreadyConfirmed", err)
	}
}

func TestConfirm_EmptyAcceptanceClosesRun(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(t, store, nil)
	run := submitted(t, svc, "Research competitors pricing models", "Deploy the api fix tomorrow")

	got, err := svc.Confirm(context.Background(), run.ID, []Acceptance{})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if got.Status != RunConfirmed || len(got.CreatedTaskIDs) != 0 {
		t.Errorf("run = %+v, want confirmed with no tasks", got)
	}
	if tasks, _ := store.ListTasks(context.Background()); len(tasks) != 0 {
		t.Errorf("tasks = %+v, want none", tasks)
	}
	if _, err := svc.Confirm(context.Background(), run.ID, nil); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Errorf("confirm after close err = %v, want ErrAlreadyConfirmed", err)
	}
}

func TestConfirm_Overrides(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(t, store, nil)
	run := submitted(t, svc, "Research competitors pricing models")

	got, err := svc.Confirm(context.Background(), run.ID, []Acceptance{{Index: 0, Title: "Pricing teardown", Category: "writing", Priority: "P3"}})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	tasks, _ := store.ListTasks(context.Background())
	if len(tasks) != 1 || tasks[0].ID != got.CreatedTaskIDs[0] {
		t.Fatalf("tasks = %+v", tasks)
	}
	if tasks[0].Title != "Pricing teardown" || tasks[0].Category != "writing" || tasks[0].Priority != "P3" {
		t.Errorf("task = %+v", tasks[0])
	}
}

func TestConfirm_TopPriorityNeedsExplicitFlag(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(t, store, nil)
	run := submitted(t, svc, "Research competitors pricing models")

	_, err := svc.Confirm(context.Background(), run.ID, []Acceptance{{Index: 0, Priority: "P0"}})
	if !errors.Is(err, ErrP0NeedsConfirmation) {
		t.Fatalf("err = %v, want ErrP0NeedsConfirmation", err)
	}
	if r, _, _ := store.GetRun(context.Background(), run.ID); r.Status != RunPending {
		t.Error("failed confirm must leave the run pending")
	}

	if _, err := svc.Confirm(context.Background(), run.ID, []Acceptance{{Index: 0, Priority: "P0", AllowP0: true}}); err != nil {
		t.Fatalf("Confirm with AllowP0: %v", err)
	}
	tasks, _ := store.ListTasks(context.Background())
	if len(tasks) != 1 || tasks[0].Priority != "P0" {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestConfirm_Rejections(t *testing.T) {
	t.Parallel()

	store := newMockStore(ExistingTask{ID: "t-1", Title: "Fix authentication issue", Category: "technical", Priority: "P2", Status: StatusTodo})
	svc := newTestService(t, store, nil)
	run := submitted(t, svc, "Fix the login bug that Sarah reported - urgent!", "", "Research competitors pricing models")

	tests := []struct {
		name string
		id   string
		acc  []Acceptance
		want error
	}{
		{"unknown run", "nope", nil, ErrRunNotFound},
		{"duplicate decision", run.ID, []Acceptance{{Index: 0}}, ErrNotConfirmable},
		{"ambiguous decision", run.ID, []Acceptance{{Index: 1}}, ErrNotConfirmable},
		{"out of range", run.ID, []Acceptance{{Index: 7}}, ErrNotConfirmable},
		{"accepted twice", run.ID, []Acceptance{{Index: 2}, {Index: 2}}, ErrNotConfirmable},
		{"unknown priority", run.ID, []Acceptance{{Index: 2, Priority: "P9"}}, ErrInvalidInput},
		{"unknown category", run.ID, []Acceptance{{Index: 2, Category: "gardening"}}, ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Confirm(context.Background(), tt.id, tt.acc); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if tasks, _ := store.ListTasks(context.Background()); len(tasks) != 1 {
		t.Errorf("rejected confirms wrote tasks: %d", len(tasks))
	}
}

func TestCreateTask(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(t, store, nil)

	task, err := svc.CreateTask(context.Background(), TaskInput{Title: "  Renew passport  ", Category: "admin"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Title != "Renew passport" || task.Priority != "P2" || task.Status != StatusTodo || task.ID == "" {
		t.Errorf("task = %+v", task)
	}
	if _, err := svc.CreateTask(context.Background(), TaskInput{Title: " "}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty title err = %v", err)
	}
	if _, err := svc.CreateTask(context.Background(), TaskInput{Title: "x", Priority: "P0"}); !errors.Is(err, ErrP0NeedsConfirmation) {
		t.Errorf("P0 err = %v", err)
	}
}

func TestSetTaskStatus(t *testing.T) {
	t.Parallel()

	store := newMockStore(ExistingTask{ID: "t-1", Title: "x", Priority: "P2", Status: StatusTodo})
	svc := newTestService(t, store, nil)

	if err := svc.SetTaskStatus(context.Background(), "t-1", StatusDone); err != nil {
		t.Fatalf("SetTaskStatus: %v", err)
	}
	tasks, _ := store.ListTasks(context.Background())
	if tasks[0].Status != StatusDone {
		t.Errorf("status = %s, want done", tasks[0].Status)
	}
	if !tasks[0].UpdatedAt.Equal(fixedNow) {
		t.Errorf("updated_at = %v, want %v", tasks[0].UpdatedAt, fixedNow)
	}
	if err := svc.SetTaskStatus(context.Background(), "missing", StatusDone); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestPruneDone(t *testing.T) {
	t.Parallel()

	daysAgo := func(d int) time.Time { return fixedNow.AddDate(0, 0, -d) }
	seed := func() *mockStore {
		return newMockStore(
			ExistingTask{ID: "stale", Title: "Book flights", Status: StatusDone, CreatedAt: daysAgo(90), UpdatedAt: daysAgo(45)},
			ExistingTask{ID: "fresh", Title: "File expenses", Status: StatusDone, CreatedAt: daysAgo(90), UpdatedAt: daysAgo(3)},
			ExistingTask{ID: "open", Title: "Renew domain", Status: StatusTodo, CreatedAt: daysAgo(90)},
		)
	}

	tests := []struct {
		name      string
		olderThan time.Duration
		deleted   []string
		remaining []string
	}{
		{"thirty days", 30 * 24 * time.Hour, []string{"stale"}, []string{"fresh", "open"}},
		{"zero prunes all done", 0, []string{"stale", "fresh"}, []string{"open"}},
		{"nothing old enough", 365 * 24 * time.Hour, []string{}, []string{"stale", "fresh", "open"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := seed()
			svc := newTestService(t, store, nil)

			res, err := svc.PruneDone(context.Background(), tt.olderThan)
			if err != nil {
				t.Fatalf("PruneDone: %v", err)
			}
			if !res.Cutoff.Equal(fixedNow.Add(-tt.olderThan)) {
				t.Errorf("cutoff = %v", res.Cutoff)
			}
			got := []string{}
			for _, d := range res.Deleted {
				got = append(got, d.ID)
			}
			if !slices.Equal(got, tt.deleted) || res.Count != len(tt.deleted) {
				t.Errorf("deleted = %v (count %d), want %v", got, res.Count, tt.deleted)
			}
			tasks, _ := store.ListTasks(context.Background())
			left := []string{}
			for _, task := range tasks {
				left = append(left, task.ID)
			}
			if !slices.Equal(left, tt.remaining) {
				t.Errorf("remaining = %v, want %v", left, tt.remaining)
			}
		})
	}
}

func TestPruneDone_Errors(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(t, store, nil)
	if _, err := svc.PruneDone(context.Background(), -time.Hour); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative age err = %v, want ErrInvalidInput", err)
	}

	for _, days := range []int{-1, maxPruneDays + 1} {
		if _, err := PruneAgeDays(days); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("PruneAgeDays(%d) err = %v, want ErrInvalidInput", days, err)
		}
	}
	if d, err := PruneAgeDays(30); err != nil || d != DefaultPruneAge {
		t.Errorf("PruneAgeDays(30) = %v, %v; want %v", d, err, DefaultPruneAge)
	}

	boom := errors.New("disk full")
	store.deleteErr = boom
	if _, err := svc.PruneDone(context.Background(), time.Hour); !errors.Is(err, boom) {
		t.Errorf("store err = %v, want wrapped %v", err, boom)
	}
}

func TestListTasks_FilterAndOrder(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newMockStore(
		ExistingTask{ID: "a", Category: "admin", Priority: "P2", Status: StatusTodo, CreatedAt: base.Add(2 * time.Hour)},
		ExistingTask{ID: "b", Category: "technical", Priority: "P0", Status: StatusActive, CreatedAt: base},
		ExistingTask{ID: "c", Category: "admin", Priority: "P2", Status: StatusTodo, CreatedAt: base.Add(time.Hour)},
		ExistingTask{ID: "d", Category: "admin", Priority: "P1", Status: StatusDone, CreatedAt: base},
		ExistingTask{ID: "e", Category: "admin", Priority: "PX", Status: StatusBlocked, CreatedAt: base},
	)
	svc := newTestService(t, store, nil)

	ids := func(f TaskFilter) []string {
		t.Helper()
		tasks, err := svc.ListTasks(context.Background(), f)
		if err != nil {
			t.Fatalf("ListTasks: %v", err)
		}
		var out []string
		for _, task := range tasks {
			out = append(out, task.ID)
		}
		return out
	}

	tests := []struct {
		name string
		f    TaskFilter
		want []string
	}{
		{"open tasks by priority", TaskFilter{}, []string{"b", "c", "a", "e"}},
		{"include done", TaskFilter{IncludeDone: true}, []string{"b", "d", "c", "a", "e"}},
		{"category", TaskFilter{Categories: []string{"technical"}}, []string{"b"}},
		{"priority", TaskFilter{Priorities: []string{"P2"}}, []string{"c", "a"}},
		{"explicit done status", TaskFilter{Statuses: []Status{StatusDone}}, []string{"d"}},
	}
	for _, tt := range tests {
		if got := ids(tt.f); !slices.Equal(got, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestBudgetAndStats(t *testing.T) {
	t.Parallel()

	store := newMockStore(
		ExistingTask{ID: "a", Category: "admin", Priority: "P0", Status: StatusTodo},
		ExistingTask{ID: "b", Category: "admin", Priority: "P0", Status: StatusTodo},
		ExistingTask{ID: "c", Category: "", Priority: "P0", Status: StatusActive},
		ExistingTask{ID: "d", Category: "technical", Priority: "P1", Status: StatusDone},
	)
	svc := newTestService(t, store, nil)

	b, err := svc.Budget(context.Background())
	if err != nil {
		t.Fatalf("Budget: %v", err)
	}
	if p0, _ := b.Line("P0"); !p0.OverLimit || p0.Count != 3 {
		t.Errorf("P0 = %+v", p0)
	}
	if b.Balanced {
		t.Error("budget should not be balanced")
	}

	st, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 4 || st.Open != 3 {
		t.Errorf("total/open = %d/%d", st.Total, st.Open)
	}
	if st.ByCategory["admin"] != 2 || st.ByCategory["other"] != 1 || st.ByStatus[StatusDone] != 1 {
		t.Errorf("stats = %+v", st)
	}
}
