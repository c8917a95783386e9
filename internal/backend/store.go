package backend

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no task with the requested ID exists.
var ErrNotFound = errors.New("backend: task not found")

// ErrDuplicateID is returned by Create when the task ID is already taken.
var ErrDuplicateID = errors.New("backend: task id already exists")

// Store provides task persistence. Implementations must be safe for
// concurrent use.
type Store interface {
	// Create inserts a new task. The task is validated before insertion and
	// receives a generated ID when it has none. Returns [ErrDuplicateID] if
	// a task with the same ID already exists.
	Create(ctx context.Context, t *Task) error

	// Get retrieves a task by ID. Returns (nil, nil) if not found.
	Get(ctx context.Context, id string) (*Task, error)

	// Complete marks a task as completed and returns its updated state.
	// Returns [ErrNotFound] when no such task exists. Completing an already
	// completed task is not an error.
	Complete(ctx context.Context, id string) (*Task, error)

	// List returns the tasks matching the filter, ordered by name.
	List(ctx context.Context, f Filter) ([]Task, error)

	// Projects returns the distinct projects named by stored tasks, ordered
	// by name. The unnamed inbox project is excluded.
	Projects(ctx context.Context) ([]Project, error)
}
