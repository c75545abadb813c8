// Package store provides the persisted profile and chat-history records
// backed by SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ndelage/parlor/internal/domain"
)

// Store wraps the SQLite database holding user profiles and the append-only
// message log. All methods are safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}

	ctx := context.Background()

	// WAL keeps readers off the writers' back; busy_timeout avoids
	// "database is locked" under concurrent event handling.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id          TEXT PRIMARY KEY,
		username    TEXT NOT NULL CHECK(length(username) > 0),
		avatar_url  TEXT NOT NULL DEFAULT '',
		theme_color TEXT NOT NULL DEFAULT '#6366f1'
	);

	CREATE TABLE IF NOT EXISTS messages (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id   TEXT NOT NULL,
		username  TEXT NOT NULL,
		text      TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// UpsertUser creates or refreshes the profile record for id. An empty theme
// keeps whatever theme is already persisted (or the baseline default).
func (s *Store) UpsertUser(ctx context.Context, u *domain.User) error {
	theme := u.ThemeColor
	if theme == "" {
		theme = domain.DefaultTheme
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, avatar_url, theme_color)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username   = excluded.username,
			avatar_url = excluded.avatar_url`,
		u.ID, u.Username, u.AvatarURL, theme)
	if err != nil {
		return fmt.Errorf("store: upsert user %s: %w", u.ID, err)
	}
	return nil
}

// GetUser returns the profile for id, or (nil, nil) when absent.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, avatar_url, theme_color FROM users WHERE id = ?`, id)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.AvatarURL, &u.ThemeColor); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get user %s: %w", id, err)
	}
	return &u, nil
}

// ListUsersByID resolves the given ids to full profile records. Unknown ids
// are skipped; order follows the ids argument.
func (s *Store) ListUsersByID(ctx context.Context, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return []domain.User{}, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, avatar_url, theme_color FROM users
		WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.User, len(ids))
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.AvatarURL, &u.ThemeColor); err != nil {
			return nil, fmt.Errorf("store: scan user: %w", err)
		}
		byID[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}

	out := make([]domain.User, 0, len(byID))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// UpdateTheme persists the theme for an existing user. Unknown ids are a
// silent no-op.
func (s *Store) UpdateTheme(ctx context.Context, id, theme string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET theme_color = ? WHERE id = ?`, theme, id)
	if err != nil {
		return fmt.Errorf("store: update theme for %s: %w", id, err)
	}
	return nil
}

// GetTheme returns the persisted theme for id, or "" when the user is unknown.
func (s *Store) GetTheme(ctx context.Context, id string) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT theme_color FROM users WHERE id = ?`, id)
	var theme string
	if err := row.Scan(&theme); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("store: get theme for %s: %w", id, err)
	}
	return theme, nil
}

// AppendMessage appends one entry to the message log and returns its sequence id.
func (s *Store) AppendMessage(ctx context.Context, m *domain.Message) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (user_id, username, text, timestamp)
		VALUES (?, ?, ?, ?)`,
		m.UserID, m.Username, m.Text, m.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("store: append message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: append message id: %w", err)
	}
	return id, nil
}

// ListLastMessages returns up to n most recent messages in ascending
// timestamp order. Older entries stay in the log, they just fall out of the
// window.
func (s *Store) ListLastMessages(ctx context.Context, n int) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, username, text, timestamp FROM messages
		ORDER BY timestamp DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0, n)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Username, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}

	// Query runs newest-first; history is delivered in chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CountMessages reports the total size of the persisted log.
func (s *Store) CountMessages(ctx context.Context) (int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count messages: %w", err)
	}
	return n, nil
}
