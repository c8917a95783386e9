package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the tasks table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
//
// Due and defer timestamps stay TEXT: they are opaque ISO strings on the
// wire and parsing is the filter's concern, not the database's.
const Schema = `
CREATE TABLE IF NOT EXISTS tasks (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    project     TEXT NOT NULL DEFAULT '',
    due         TEXT NOT NULL DEFAULT '',
    defer_until TEXT NOT NULL DEFAULT '',
    flagged     BOOLEAN NOT NULL DEFAULT FALSE,
    completed   BOOLEAN NOT NULL DEFAULT FALSE,
    note        TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project);
CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(completed);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB

	// now is swappable for tests; filter evaluation happens in Go.
	now func() time.Time
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Migrate executes the [Schema] DDL against the database, creating the tasks
// table and indexes if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("backend: migrate: %w", err)
	}
	return nil
}

// Create implements [Store].
func (s *PostgresStore) Create(ctx context.Context, t *Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	const query = `
		INSERT INTO tasks (id, name, project, due, defer_until, flagged, completed, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`

	err := s.db.QueryRow(ctx, query,
		t.ID, t.Name, t.Project, t.Due, t.Defer, t.Flagged, t.Completed, t.Note,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: %q", ErrDuplicateID, t.ID)
		}
		return fmt.Errorf("backend: create: %w", err)
	}
	return nil
}

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, id string) (*Task, error) {
	const query = `
		SELECT id, name, project, due, defer_until, flagged, completed, note,
		       created_at, updated_at
		FROM tasks
		WHERE id = $1`

	var t Task
	err := s.db.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.Project, &t.Due, &t.Defer, &t.Flagged, &t.Completed,
		&t.Note, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("backend: get %q: %w", id, err)
	}
	return &t, nil
}

// Complete implements [Store].
func (s *PostgresStore) Complete(ctx context.Context, id string) (*Task, error) {
	const query = `
		UPDATE tasks SET completed = TRUE, updated_at = now()
		WHERE id = $1
		RETURNING id, name, project, due, defer_until, flagged, completed, note,
		          created_at, updated_at`

	var t Task
	err := s.db.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.Project, &t.Due, &t.Defer, &t.Flagged, &t.Completed,
		&t.Note, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("backend: complete %q: %w", id, err)
	}
	return &t, nil
}

// List implements [Store]. Rows are fetched ordered by name and filtered in
// Go so that filter semantics match [MemStore] exactly.
func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Task, error) {
	const query = `
		SELECT id, name, project, due, defer_until, flagged, completed, note,
		       created_at, updated_at
		FROM tasks
		ORDER BY name`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("backend: list: %w", err)
	}
	defer rows.Close()

	now := s.now().UTC()
	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(
			&t.ID, &t.Name, &t.Project, &t.Due, &t.Defer, &t.Flagged,
			&t.Completed, &t.Note, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("backend: list scan: %w", err)
		}
		if f.Matches(&t, now) {
			tasks = append(tasks, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("backend: list: %w", err)
	}
	if tasks == nil {
		tasks = []Task{}
	}
	return tasks, nil
}

// Projects implements [Store].
func (s *PostgresStore) Projects(ctx context.Context) ([]Project, error) {
	const query = `
		SELECT DISTINCT project FROM tasks
		WHERE project <> ''
		ORDER BY project`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("backend: projects: %w", err)
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("backend: projects scan: %w", err)
		}
		projects = append(projects, Project{ID: name, Name: name, Status: "active"})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("backend: projects: %w", err)
	}
	return projects, nil
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
