package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joescharf/teambot/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes every statement and transaction, so readers never see an
	// idea without its karma increment.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Users ---

// EnsureUser creates the user with the default role and zero karma. An
// existing row is left untouched, display name included.
func (s *SQLiteStore) EnsureUser(ctx context.Context, id int64, displayName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, display_name, role, karma, created_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(user_id) DO NOTHING`,
		id, displayName, string(models.RoleMember), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u := &models.User{}
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, display_name, role, karma, created_at FROM users WHERE user_id = ?`, id,
	).Scan(&u.ID, &u.DisplayName, &role, &u.Karma, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = models.Role(role)
	return u, nil
}

// KarmaOf returns the user's karma, or 0 for an unknown user. It never
// creates a row.
func (s *SQLiteStore) KarmaOf(ctx context.Context, userID int64) (int, error) {
	var karma int
	err := s.db.QueryRowContext(ctx, `SELECT karma FROM users WHERE user_id = ?`, userID).Scan(&karma)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get karma: %w", err)
	}
	return karma, nil
}

// TopByKarma returns up to n users with the highest karma. Ties go to the
// lower user ID.
func (s *SQLiteStore) TopByKarma(ctx context.Context, n int) ([]*models.User, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, display_name, role, karma, created_at FROM users
		ORDER BY karma DESC, user_id LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("top users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		var role string
		if err := rows.Scan(&u.ID, &u.DisplayName, &role, &u.Karma, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = models.Role(role)
		users = append(users, u)
	}
	return users, rows.Err()
}

// --- Ideas ---

// RecordIdea inserts the idea and credits its author with models.IdeaKarma in
// one transaction. The author must already exist.
func (s *SQLiteStore) RecordIdea(ctx context.Context, idea *models.Idea) error {
	if strings.TrimSpace(idea.Title) == "" {
		return fmt.Errorf("record idea: title is required")
	}
	if !idea.Priority.Valid() {
		return fmt.Errorf("record idea: invalid priority %q", idea.Priority)
	}
	idea.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO ideas (title, description, author_id, priority, votes, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		idea.Title, idea.Description, idea.AuthorID, string(idea.Priority), idea.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert idea: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("idea id: %w", err)
	}

	result, err = tx.ExecContext(ctx,
		`UPDATE users SET karma = karma + ? WHERE user_id = ?`, models.IdeaKarma, idea.AuthorID)
	if err != nil {
		return fmt.Errorf("increment karma: %w", err)
	}
	if n, _ := result.RowsAffected(); n != 1 {
		return fmt.Errorf("increment karma: author %d: %w", idea.AuthorID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	idea.ID = id
	idea.Votes = 0
	return nil
}

// AllIdeas returns every idea with its author's display name, newest first.
func (s *SQLiteStore) AllIdeas(ctx context.Context) ([]*models.Idea, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.id, i.title, i.description, i.author_id, u.display_name, i.priority, i.votes, i.created_at
		FROM ideas i JOIN users u ON i.author_id = u.user_id
		ORDER BY i.created_at DESC, i.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ideas []*models.Idea
	for rows.Next() {
		idea := &models.Idea{}
		var priority string
		if err := rows.Scan(&idea.ID, &idea.Title, &idea.Description, &idea.AuthorID, &idea.AuthorName, &priority, &idea.Votes, &idea.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan idea: %w", err)
		}
		idea.Priority = models.Priority(priority)
		ideas = append(ideas, idea)
	}
	return ideas, rows.Err()
}

// --- Tasks ---

func (s *SQLiteStore) RecordTask(ctx context.Context, task *models.Task) error {
	if strings.TrimSpace(task.Title) == "" {
		return fmt.Errorf("record task: title is required")
	}
	if task.Status == "" {
		task.Status = models.TaskStatusToDo
	}
	task.CreatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (title, description, assignee_id, creator_id, status, due_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.Title, task.Description, task.AssigneeID, task.CreatorID, string(task.Status), task.DueDate, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("task id: %w", err)
	}
	task.ID = id
	return nil
}

// TasksFor returns the tasks assigned to userID in creation order.
func (s *SQLiteStore) TasksFor(ctx context.Context, userID int64) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, assignee_id, creator_id, status, due_date, created_at
		FROM tasks WHERE assignee_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*models.Task
	for rows.Next() {
		t := &models.Task{}
		var status string
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.AssigneeID, &t.CreatorID, &status, &t.DueDate, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Status = models.TaskStatus(status)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// --- Stats ---

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM ideas),
			(SELECT COUNT(*) FROM tasks),
			(SELECT COALESCE(SUM(karma), 0) FROM users)`,
	).Scan(&st.Users, &st.Ideas, &st.Tasks, &st.TotalKarma)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}
