package backend

import (
	"context"
	"errors"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func newTestMemStore() *MemStore {
	s := NewMemStore()
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestMemStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	s := newTestMemStore()
	ctx := context.Background()

	task := &Task{Name: "Buy milk", Project: "Home"}
	if err := s.Create(ctx, task); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if task.ID == "" {
		t.Fatal("Create() did not assign an ID")
	}
	if !task.CreatedAt.Equal(fixedNow) || !task.UpdatedAt.Equal(fixedNow) {
		t.Errorf("Create() timestamps = %v/%v, want %v", task.CreatedAt, task.UpdatedAt, fixedNow)
	}

	got, err := s.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() = nil, want task")
	}
	if got.Name != "Buy milk" || got.Project != "Home" {
		t.Errorf("Get() = %+v, want the created task", got)
	}
}

func TestMemStore_GetMissing(t *testing.T) {
	t.Parallel()

	s := newTestMemStore()
	got, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %+v, want nil for missing task", got)
	}
}

func TestMemStore_CreateDuplicateID(t *testing.T) {
	t.Parallel()

	s := newTestMemStore()
	ctx := context.Background()

	if err := s.Create(ctx, &Task{ID: "t1", Name: "first"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err := s.Create(ctx, &Task{ID: "t1", Name: "second"})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("Create() error = %v, want ErrDuplicateID", err)
	}
}

func TestMemStore_CreateInvalid(t *testing.T) {
	t.Parallel()

	s := newTestMemStore()
	if err := s.Create(context.Background(), &Task{}); err == nil {
		t.Fatal("Create() = nil, want validation error for empty name")
	}
}

func TestMemStore_Complete(t *testing.T) {
	t.Parallel()

	s := newTestMemStore()
	ctx := context.Background()

	if err := s.Create(ctx, &Task{ID: "t1", Name: "task"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := s.Complete(ctx, "t1")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !got.Completed {
		t.Error("Complete() returned task with Completed = false")
	}

	// Completing twice is not an error.
	if _, err := s.Complete(ctx, "t1"); err != nil {
		t.Fatalf("Complete() second call error = %v", err)
	}

	_, err = s.Complete(ctx, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Complete() error = %v, want ErrNotFound", err)
	}
}

func TestMemStore_ListFiltersAndOrder(t *testing.T) {
	t.Parallel()

	s := newTestMemStore()
	ctx := context.Background()

	seed := []Task{
		{ID: "a", Name: "charlie", Project: "Work"},
		{ID: "b", Name: "alpha", Project: "Home", Flagged: true},
		{ID: "c", Name: "bravo"},
		{ID: "d", Name: "delta", Completed: true},
		{ID: "e", Name: "echo", Defer: "2026-09-15"},
	}
	for i := range seed {
		task := seed[i]
		if err := s.Create(ctx, &task); err != nil {
			t.Fatalf("Create(%q) error = %v", task.Name, err)
		}
	}

	tests := []struct {
		filter Filter
		want   []string // names, in order
	}{
		{FilterAvailable, []string{"alpha", "bravo", "charlie"}},
		{FilterAll, []string{"alpha", "bravo", "charlie", "echo"}},
		{FilterFlagged, []string{"alpha"}},
		{FilterInbox, []string{"bravo", "echo"}},
		{FilterCompleted, []string{"delta"}},
		{FilterDeferred, []string{"echo"}},
		{FilterDueSoon, []string{}},
	}

	for _, tt := range tests {
		tasks, err := s.List(ctx, tt.filter)
		if err != nil {
			t.Fatalf("List(%q) error = %v", tt.filter, err)
		}
		var names []string
		for _, task := range tasks {
			names = append(names, task.Name)
		}
		if len(names) != len(tt.want) {
			t.Errorf("List(%q) = %v, want %v", tt.filter, names, tt.want)
			continue
		}
		for i := range tt.want {
			if names[i] != tt.want[i] {
				t.Errorf("List(%q)[%d] = %q, want %q", tt.filter, i, names[i], tt.want[i])
			}
		}
	}
}

func TestMemStore_Projects(t *testing.T) {
	t.Parallel()

	s := newTestMemStore()
	ctx := context.Background()

	for _, task := range []Task{
		{ID: "a", Name: "one", Project: "Work"},
		{ID: "b", Name: "two", Project: "Home"},
		{ID: "c", Name: "three", Project: "Work"},
		{ID: "d", Name: "four"},
	} {
		task := task
		if err := s.Create(ctx, &task); err != nil {
			t.Fatalf("Create(%q) error = %v", task.Name, err)
		}
	}

	projects, err := s.Projects(ctx)
	if err != nil {
		t.Fatalf("Projects() error = %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("Projects() returned %d entries, want 2: %+v", len(projects), projects)
	}
	if projects[0].Name != "Home" || projects[1].Name != "Work" {
		t.Errorf("Projects() order = [%s %s], want [Home Work]", projects[0].Name, projects[1].Name)
	}
	for _, p := range projects {
		if p.ID != p.Name {
			t.Errorf("project %q has ID %q, want ID == Name", p.Name, p.ID)
		}
		if p.Status != "active" {
			t.Errorf("project %q status = %q, want active", p.Name, p.Status)
		}
	}
}

func TestMemStore_CreateDoesNotAliasStoredTask(t *testing.T) {
	t.Parallel()

	s := newTestMemStore()
	ctx := context.Background()

	task := &Task{ID: "t1", Name: "original"}
	if err := s.Create(ctx, task); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	task.Name = "mutated"

	got, err := s.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "original" {
		t.Errorf("stored task name = %q, caller mutation leaked into the store", got.Name)
	}
}
