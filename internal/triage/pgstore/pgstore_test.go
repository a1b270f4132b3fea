package pgstore_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/sift/internal/triage"
	"github.com/linnemanlabs/sift/internal/triage/pgstore"
)

var _ triage.Store = (*pgstore.Store)(nil)

func openStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("SIFT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SIFT_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)

	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	return s
}

func newID() string { return ulid.Make().String() }

func findTask(tasks []triage.ExistingTask, id string) (triage.ExistingTask, bool) {
	for _, t := range tasks {
		if t.ID == id {
			return t, true
		}
	}
	return triage.ExistingTask{}, false
}

func TestCreateAndListTasks(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Microsecond).UTC()
	a := triage.ExistingTask{ID: newID(), Title: "Email investor update", Category: "outreach", Priority: "P1", Status: triage.StatusTodo, Tags: []string{"q3"}, CreatedAt: now}
	b := triage.ExistingTask{ID: newID(), Title: "Fix login bug", Category: "technical", Priority: "P2", Status: triage.StatusBlocked}

	if err := s.CreateTasks(ctx, []triage.ExistingTask{a, b}); err != nil {
		t.Fatalf("CreateTasks: %v", err)
	}

	tasks, err := s.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	got, ok := findTask(tasks, a.ID)
	if !ok {
		t.Fatal("created task not listed")
	}
	assertEqual(t, "Title", a.Title, got.Title)
	assertEqual(t, "Category", a.Category, got.Category)
	assertEqual(t, "Priority", a.Priority, got.Priority)
	assertEqual(t, "Status", a.Status, got.Status)
	assertEqual(t, "CreatedAt", a.CreatedAt, got.CreatedAt)
	if len(got.Tags) != 1 || got.Tags[0] != "q3" {
		t.Errorf("Tags mismatch: got %v", got.Tags)
	}

	gotB, _ := findTask(tasks, b.ID)
	if !gotB.CreatedAt.IsZero() {
		t.Errorf("CreatedAt = %v, want zero", gotB.CreatedAt)
	}

	ia, ib := -1, -1
	for i, task := range tasks {
		switch task.ID {
		case a.ID:
			ia = i
		case b.ID:
			ib = i
		}
	}
	if ia > ib {
		t.Errorf("insertion order lost: %d > %d", ia, ib)
	}
}

func TestCreateTasksDuplicateRollsBack(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	existing := triage.ExistingTask{ID: newID(), Title: "x", Status: triage.StatusTodo}
	if err := s.CreateTasks(ctx, []triage.ExistingTask{existing}); err != nil {
		t.Fatalf("CreateTasks: %v", err)
	}

	fresh := triage.ExistingTask{ID: newID(), Title: "y", Status: triage.StatusTodo}
	if err := s.CreateTasks(ctx, []triage.ExistingTask{fresh, existing}); err == nil {
		t.Fatal("expected error for duplicate ID")
	}

	tasks, _ := s.ListTasks(ctx)
	if _, ok := findTask(tasks, fresh.ID); ok {
		t.Error("failed batch left a partial write")
	}
}

func TestUpdateTaskStatus(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	task := triage.ExistingTask{ID: newID(), Title: "x", Status: triage.StatusTodo}
	if err := s.CreateTasks(ctx, []triage.ExistingTask{task}); err != nil {
		t.Fatalf("CreateTasks: %v", err)
	}

	at := time.Now().Truncate(time.Microsecond).UTC()
	ok, err := s.UpdateTaskStatus(ctx, task.ID, triage.StatusDone, at)
	if err != nil || !ok {
		t.Fatalf("UpdateTaskStatus = %v, %v", ok, err)
	}
	tasks, _ := s.ListTasks(ctx)
	got, _ := findTask(tasks, task.ID)
	assertEqual(t, "Status", triage.StatusDone, got.Status)
	if !got.UpdatedAt.Equal(at) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, at)
	}

	ok, err = s.UpdateTaskStatus(ctx, newID(), triage.StatusDone, at)
	if err != nil || ok {
		t.Errorf("missing task = %v, %v; want false, nil", ok, err)
	}
}

func TestDeleteDoneTasks(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	// the table is shared with other tests, so the cutoff sits far in the
	// past and only these rows can match
	base := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	oldDone := triage.ExistingTask{ID: newID(), Title: "old done", Status: triage.StatusDone, CreatedAt: base}
	oldTodo := triage.ExistingTask{ID: newID(), Title: "old todo", Status: triage.StatusTodo, CreatedAt: base}
	reopened := triage.ExistingTask{ID: newID(), Title: "recently finished", Status: triage.StatusDone, CreatedAt: base, UpdatedAt: base.AddDate(0, 1, 0)}
	if err := s.CreateTasks(ctx, []triage.ExistingTask{oldDone, oldTodo, reopened}); err != nil {
		t.Fatalf("CreateTasks: %v", err)
	}

	deleted, err := s.DeleteDoneTasks(ctx, base.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("DeleteDoneTasks: %v", err)
	}
	if _, ok := findTask(deleted, oldDone.ID); !ok {
		t.Errorf("deleted = %+v, want %s", deleted, oldDone.ID)
	}
	for _, id := range []string{oldTodo.ID, reopened.ID} {
		if _, ok := findTask(deleted, id); ok {
			t.Errorf("task %s should have been kept", id)
		}
	}

	tasks, _ := s.ListTasks(ctx)
	if _, ok := findTask(tasks, oldDone.ID); ok {
		t.Error("pruned task still listed")
	}
	if _, ok := findTask(tasks, reopened.ID); !ok {
		t.Error("task changed after the cutoff was removed")
	}
}

func TestPutAndGetRun(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Microsecond).UTC()
	r := &triage.Run{
		ID:     newID(),
		Status: triage.RunPending,
		Items:  []string{"Email Sarah about the Q3 investor update", "Book flights"},
		Report: &triage.Report{
			Decisions: []triage.Decision{
				{Index: 0, Item: "Email Sarah about the Q3 investor update", Kind: triage.KindNew, Category: "outreach", Priority: "P2"},
			},
			Summary: triage.Summary{Total: 1, New: 1},
		},
		CreatedAt: now,
	}
	if err := s.PutRun(ctx, r); err != nil {
		t.Fatalf("PutRun: %v", err)
	}

	got, ok, err := s.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !ok {
		t.Fatal("GetRun returned ok=false, want true")
	}
	assertEqual(t, "Status", r.Status, got.Status)
	assertEqual(t, "CreatedAt", r.CreatedAt, got.CreatedAt)
	assertEqual(t, "Items", len(r.Items), len(got.Items))
	if got.Report == nil || len(got.Report.Decisions) != 1 {
		t.Fatalf("Report mismatch: got %+v", got.Report)
	}
	assertEqual(t, "Decision.Category", "outreach", got.Report.Decisions[0].Category)
	assertEqual(t, "Summary.New", 1, got.Report.Summary.New)
	if !got.ConfirmedAt.IsZero() {
		t.Errorf("ConfirmedAt = %v, want zero", got.ConfirmedAt)
	}
}

func TestGetRunMissing(t *testing.T) {
	s := openStore(t)

	_, ok, err := s.GetRun(context.Background(), "nonexistent-id")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if ok {
		t.Error("GetRun returned ok=true for nonexistent ID")
	}
}

func TestConfirmRun(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Microsecond).UTC()
	r := &triage.Run{ID: newID(), Status: triage.RunPending, Items: []string{"a"}, CreatedAt: now}
	if err := s.PutRun(ctx, r); err != nil {
		t.Fatalf("PutRun: %v", err)
	}

	task := triage.ExistingTask{ID: newID(), Title: "a", Status: triage.StatusTodo, CreatedAt: now}
	confirmed := *r
	confirmed.Status = triage.RunConfirmed
	confirmed.ConfirmedAt = now
	confirmed.CreatedTaskIDs = []string{task.ID}

	if err := s.ConfirmRun(ctx, &confirmed, []triage.ExistingTask{task}); err != nil {
		t.Fatalf("ConfirmRun: %v", err)
	}

	got, _, _ := s.GetRun(ctx, r.ID)
	assertEqual(t, "Status", triage.RunConfirmed, got.Status)
	assertEqual(t, "ConfirmedAt", now, got.ConfirmedAt)
	if len(got.CreatedTaskIDs) != 1 || got.CreatedTaskIDs[0] != task.ID {
		t.Errorf("CreatedTaskIDs = %v", got.CreatedTaskIDs)
	}

	again := triage.ExistingTask{ID: newID(), Title: "b", Status: triage.StatusTodo}
	if err := s.ConfirmRun(ctx, &confirmed, []triage.ExistingTask{again}); !errors.Is(err, triage.ErrAlreadyConfirmed) {
		t.Errorf("second confirm err = %v, want ErrAlreadyConfirmed", err)
	}
	tasks, _ := s.ListTasks(ctx)
	if _, ok := findTask(tasks, again.ID); ok {
		t.Error("rejected confirm created a task")
	}

	if err := s.ConfirmRun(ctx, &triage.Run{ID: newID(), Status: triage.RunConfirmed}, nil); !errors.Is(err, triage.ErrRunNotFound) {
		t.Errorf("missing run err = %v, want ErrRunNotFound", err)
	}
}

func TestConfirmRunConcurrent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	r := &triage.Run{ID: newID(), Status: triage.RunPending, Items: []string{"a"}, CreatedAt: time.Now().UTC()}
	if err := s.PutRun(ctx, r); err != nil {
		t.Fatalf("PutRun: %v", err)
	}

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			task := triage.ExistingTask{ID: newID(), Title: "a", Status: triage.StatusTodo}
			run := &triage.Run{ID: r.ID, Status: triage.RunConfirmed, CreatedTaskIDs: []string{task.ID}}
			if err := s.ConfirmRun(ctx, run, []triage.ExistingTask{task}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("confirm succeeded %d times, want 1", wins)
	}
}

func assertEqual[T comparable](t *testing.T, field string, want, got T) {
	t.Helper()
	if want != got {
		t.Errorf("%s: got %v, want %v", field, got, want)
	}
}
