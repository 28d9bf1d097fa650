package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "todoapp/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	// foreign_keys is per-connection; set it in the DSN so every connection gets it.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- users ----

const userCols = `id, name, email, password_hash, verified, created_at`

func (s *sqliteStore) CreateUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(`+userCols+`) VALUES(?,?,?,?,?,?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Verified, formatTime(u.CreatedAt),
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *sqliteStore) UserByID(ctx context.Context, id string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id))
}

func (s *sqliteStore) UserByEmail(ctx context.Context, email string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = ?`, email))
}

func (s *sqliteStore) scanUser(row *sql.Row) (User, error) {
	var (
		u       User
		created string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Verified, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.CreatedAt = parseTime(created)
	return u, nil
}

func (s *sqliteStore) UpdateUser(ctx context.Context, u User) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, password_hash = ?, verified = ? WHERE id = ?`,
		u.Name, u.Email, u.PasswordHash, u.Verified, u.ID,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return affected(res, err)
}

func (s *sqliteStore) DeleteUser(ctx context.Context, id string) error {
	return affected(s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id))
}

// ---- todos ----

const todoCols = `id, user_id, text, completed, created_at`

func (s *sqliteStore) CreateTodo(ctx context.Context, t Todo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO todos(`+todoCols+`) VALUES(?,?,?,?,?)`,
		t.ID, t.UserID, t.Text, t.Completed, formatTime(t.CreatedAt),
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *sqliteStore) TodosByUser(ctx context.Context, userID string) ([]Todo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+todoCols+` FROM todos WHERE user_id = ? ORDER BY seq`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Todo, 0)
	for rows.Next() {
		var (
			t       Todo
			created string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Text, &t.Completed, &created); err != nil {
			return nil, err
		}
		t.CreatedAt = parseTime(created)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) TodoByID(ctx context.Context, userID, id string) (Todo, error) {
	var (
		t       Todo
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT `+todoCols+` FROM todos WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&t.ID, &t.UserID, &t.Text, &t.Completed, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Todo{}, ErrNotFound
	}
	if err != nil {
		return Todo{}, err
	}
	t.CreatedAt = parseTime(created)
	return t, nil
}

func (s *sqliteStore) UpdateTodo(ctx context.Context, t Todo) error {
	return affected(s.db.ExecContext(ctx,
		`UPDATE todos SET text = ?, completed = ? WHERE id = ? AND user_id = ?`,
		t.Text, t.Completed, t.ID, t.UserID,
	))
}

func (s *sqliteStore) DeleteTodo(ctx context.Context, userID, id string) error {
	return affected(s.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ? AND user_id = ?`, id, userID))
}

// ---- verification codes ----

func (s *sqliteStore) PutCode(ctx context.Context, c VerificationCode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verification_codes(user_id, code, expires) VALUES(?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET code=excluded.code, expires=excluded.expires`,
		c.UserID, c.Code, c.Expires.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) GetCode(ctx context.Context, userID string) (VerificationCode, error) {
	var (
		c  = VerificationCode{UserID: userID}
		ms int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT code, expires FROM verification_codes WHERE user_id = ?`, userID).Scan(&c.Code, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return VerificationCode{}, ErrNotFound
	}
	if err != nil {
		return VerificationCode{}, err
	}
	c.Expires = time.UnixMilli(ms)
	return c, nil
}

func (s *sqliteStore) DeleteCode(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE user_id = ?`, userID)
	return err
}

func (s *sqliteStore) PurgeExpiredCodes(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE expires < ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
