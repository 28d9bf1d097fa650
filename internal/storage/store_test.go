package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "todoapp/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for _, cfg := range []Config{
		{Driver: "memory"},
		{Driver: "file", Path: filepath.Join(dir, "file", "todoapp.db")},
		{Driver: "sqlite", Path: filepath.Join(dir, "sqlite", "todoapp.db"), BusyTimeout: time.Second},
	} {
		st, err := Open(cfg, logx.Nop())
		require.NoError(t, err, cfg.Driver)
		t.Cleanup(func() { _ = st.Close() })
		out[cfg.Driver] = st
	}
	return out
}

func TestStoreConformance(t *testing.T) {
	for name, st := range openDrivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Millisecond)

			alice := User{ID: "u1", Name: "Alice", Email: "alice@example.com", PasswordHash: "h", CreatedAt: now}
			require.NoError(t, st.CreateUser(ctx, alice))
			require.ErrorIs(t, st.CreateUser(ctx, User{ID: "u2", Email: "alice@example.com", CreatedAt: now}), ErrConflict)
			require.NoError(t, st.CreateUser(ctx, User{ID: "u3", Name: "Bob", Email: "bob@example.com", PasswordHash: "h", CreatedAt: now}))

			got, err := st.UserByEmail(ctx, "alice@example.com")
			require.NoError(t, err)
			assert.Equal(t, "u1", got.ID)
			assert.False(t, got.Verified)
			assert.True(t, got.CreatedAt.Equal(now))

			_, err = st.UserByID(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)

			got.Verified = true
			require.NoError(t, st.UpdateUser(ctx, got))
			got, err = st.UserByID(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, got.Verified)

			for i, text := range []string{"one", "two", "three"} {
				require.NoError(t, st.CreateTodo(ctx, Todo{ID: text, UserID: "u1", Text: text, CreatedAt: now.Add(time.Duration(i))}))
			}
			require.NoError(t, st.CreateTodo(ctx, Todo{ID: "bobs", UserID: "u3", Text: "bob", CreatedAt: now}))

			todos, err := st.TodosByUser(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, todos, 3)
			assert.Equal(t, []string{"one", "two", "three"}, []string{todos[0].Text, todos[1].Text, todos[2].Text})

			_, err = st.TodoByID(ctx, "u3", "one")
			require.ErrorIs(t, err, ErrNotFound, "todos are scoped to their owner")

			td := todos[1]
			td.Completed = true
			require.NoError(t, st.UpdateTodo(ctx, td))
			td, err = st.TodoByID(ctx, "u1", "two")
			require.NoError(t, err)
			assert.True(t, td.Completed)

			require.ErrorIs(t, st.DeleteTodo(ctx, "u3", "two"), ErrNotFound)
			require.NoError(t, st.DeleteTodo(ctx, "u1", "two"))
			todos, err = st.TodosByUser(ctx, "u1")
			require.NoError(t, err)
			assert.Len(t, todos, 2)

			require.NoError(t, st.PutCode(ctx, VerificationCode{UserID: "u1", Code: "111111", Expires: now.Add(-time.Minute)}))
			require.NoError(t, st.PutCode(ctx, VerificationCode{UserID: "u3", Code: "222222", Expires: now.Add(time.Hour)}))
			require.NoError(t, st.PutCode(ctx, VerificationCode{UserID: "u3", Code: "333333", Expires: now.Add(time.Hour)}))
			c, err := st.GetCode(ctx, "u3")
			require.NoError(t, err)
			assert.Equal(t, "333333", c.Code)

			n, err := st.PurgeExpiredCodes(ctx, now)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			_, err = st.GetCode(ctx, "u1")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, st.DeleteUser(ctx, "u3"))
			_, err = st.GetCode(ctx, "u3")
			require.ErrorIs(t, err, ErrNotFound)
			todos, err = st.TodosByUser(ctx, "u3")
			require.NoError(t, err)
			assert.Empty(t, todos)
			_, err = st.UserByEmail(ctx, "bob@example.com")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFileStoreReplayAndCompact(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "todoapp.db")
	cfg := Config{Driver: "file", Path: path}

	st, err := Open(cfg, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.CreateUser(ctx, User{ID: "u1", Email: "a@example.com"}))
	require.NoError(t, st.CreateTodo(ctx, Todo{ID: "t1", UserID: "u1", Text: "first"}))
	require.NoError(t, st.CreateTodo(ctx, Todo{ID: "t2", UserID: "u1", Text: "second"}))
	require.NoError(t, st.Close())

	// journal only
	st, err = Open(cfg, logx.Nop())
	require.NoError(t, err)
	todos, err := st.TodosByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, todos, 2)

	c, ok := st.(Compactor)
	require.True(t, ok)
	require.NoError(t, c.Compact(ctx))
	require.NoError(t, st.DeleteTodo(ctx, "u1", "t1"))
	require.NoError(t, st.Close())

	// snapshot + journal
	st, err = Open(cfg, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	todos, err = st.TodosByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, todos, 1)
	assert.Equal(t, "second", todos[0].Text)
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "postgres"}, logx.Nop())
	require.Error(t, err)
	_, err = Open(Config{Driver: "file"}, logx.Nop())
	require.Error(t, err)
}
