package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Config configures storage.
//
// Driver values:
//   - "memory": in-process only, lost on restart
//   - "file":   journal + snapshot next to Path
//   - "sqlite": SQLite database file at Path
//
// An empty Driver means "memory".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Todo struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
}

// VerificationCode is the pending e-mail code for one user.
// A user has at most one; PutCode replaces it.
type VerificationCode struct {
	UserID  string    `json:"userId"`
	Code    string    `json:"code"`
	Expires time.Time `json:"expires"`
}

type UserRepo interface {
	// CreateUser fails with ErrConflict when the e-mail is taken.
	CreateUser(ctx context.Context, u User) error
	UserByID(ctx context.Context, id string) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	UpdateUser(ctx context.Context, u User) error
	// DeleteUser also removes the user's todos and pending code.
	DeleteUser(ctx context.Context, id string) error
}

type TodoRepo interface {
	CreateTodo(ctx context.Context, t Todo) error
	// TodosByUser returns the user's todos in creation order.
	TodosByUser(ctx context.Context, userID string) ([]Todo, error)
	TodoByID(ctx context.Context, userID, id string) (Todo, error)
	UpdateTodo(ctx context.Context, t Todo) error
	DeleteTodo(ctx context.Context, userID, id string) error
}

type CodeRepo interface {
	PutCode(ctx context.Context, c VerificationCode) error
	GetCode(ctx context.Context, userID string) (VerificationCode, error)
	DeleteCode(ctx context.Context, userID string) error
	// PurgeExpiredCodes deletes codes that expired before now.
	PurgeExpiredCodes(ctx context.Context, now time.Time) (int, error)
}

// Store is the persistence API used by services.
type Store interface {
	UserRepo
	TodoRepo
	CodeRepo
	Close() error
}

// Compactor is implemented by drivers that keep an append-only journal.
type Compactor interface {
	Compact(ctx context.Context) error
}
