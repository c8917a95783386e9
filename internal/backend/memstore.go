package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory [Store]. Contents are lost on restart; it is the
// default for development and the unit of comparison in tests.
type MemStore struct {
	mu    sync.RWMutex
	tasks map[string]Task

	// now is swappable for tests.
	now func() time.Time
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty, ready-to-use MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		tasks: make(map[string]Task),
		now:   time.Now,
	}
}

// Create implements [Store].
func (s *MemStore) Create(_ context.Context, t *Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateID, t.ID)
	}

	now := s.now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.tasks[t.ID] = *t
	return nil
}

// Get implements [Store].
func (s *MemStore) Get(_ context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// Complete implements [Store].
func (s *MemStore) Complete(_ context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	t.Completed = true
	t.UpdatedAt = s.now().UTC()
	s.tasks[id] = t
	return &t, nil
}

// List implements [Store].
func (s *MemStore) List(_ context.Context, f Filter) ([]Task, error) {
	now := s.now().UTC()

	s.mu.RLock()
	tasks := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if f.Matches(&t, now) {
			tasks = append(tasks, t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	return tasks, nil
}

// Projects implements [Store].
func (s *MemStore) Projects(_ context.Context) ([]Project, error) {
	s.mu.RLock()
	seen := make(map[string]struct{})
	for _, t := range s.tasks {
		if t.Project != "" {
			seen[t.Project] = struct{}{}
		}
	}
	s.mu.RUnlock()

	projects := make([]Project, 0, len(seen))
	for name := range seen {
		projects = append(projects, Project{ID: name, Name: name, Status: "active"})
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, nil
}
