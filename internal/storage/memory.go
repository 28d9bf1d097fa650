package storage

import (
	"context"
	"sync"
	"time"
)

// memStore keeps everything in maps guarded by one lock.
// todoOrder preserves creation order for TodosByUser.
type memStore struct {
	mu sync.RWMutex

	users   map[string]User
	byEmail map[string]string

	todos     map[string]Todo
	todoOrder []string

	codes map[string]VerificationCode
}

// NewMemory returns an empty in-process store.
func NewMemory() Store { return newMemStore() }

func newMemStore() *memStore {
	return &memStore{
		users:   map[string]User{},
		byEmail: map[string]string{},
		todos:   map[string]Todo{},
		codes:   map[string]VerificationCode{},
	}
}

func (s *memStore) Close() error { return nil }

// ---- users ----

func (s *memStore) CreateUser(ctx context.Context, u User) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUserLocked(u)
}

func (s *memStore) createUserLocked(u User) error {
	if _, ok := s.byEmail[u.Email]; ok {
		return ErrConflict
	}
	if _, ok := s.users[u.ID]; ok {
		return ErrConflict
	}
	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *memStore) UserByID(ctx context.Context, id string) (User, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *memStore) UserByEmail(ctx context.Context, email string) (User, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return User{}, ErrNotFound
	}
	return s.users[id], nil
}

func (s *memStore) UpdateUser(ctx context.Context, u User) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateUserLocked(u)
}

func (s *memStore) updateUserLocked(u User) error {
	prev, ok := s.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	if prev.Email != u.Email {
		if _, taken := s.byEmail[u.Email]; taken {
			return ErrConflict
		}
		delete(s.byEmail, prev.Email)
		s.byEmail[u.Email] = u.ID
	}
	s.users[u.ID] = u
	return nil
}

func (s *memStore) DeleteUser(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteUserLocked(id)
}

func (s *memStore) deleteUserLocked(id string) error {
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	delete(s.byEmail, u.Email)
	delete(s.codes, id)

	kept := s.todoOrder[:0]
	for _, tid := range s.todoOrder {
		if s.todos[tid].UserID == id {
			delete(s.todos, tid)
			continue
		}
		kept = append(kept, tid)
	}
	s.todoOrder = kept
	return nil
}

// ---- todos ----

func (s *memStore) CreateTodo(ctx context.Context, t Todo) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createTodoLocked(t)
}

func (s *memStore) createTodoLocked(t Todo) error {
	if _, ok := s.todos[t.ID]; ok {
		return ErrConflict
	}
	s.todos[t.ID] = t
	s.todoOrder = append(s.todoOrder, t.ID)
	return nil
}

func (s *memStore) TodosByUser(ctx context.Context, userID string) ([]Todo, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Todo, 0)
	for _, id := range s.todoOrder {
		if t := s.todos[id]; t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) TodoByID(ctx context.Context, userID, id string) (Todo, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.todos[id]
	if !ok || t.UserID != userID {
		return Todo{}, ErrNotFound
	}
	return t, nil
}

func (s *memStore) UpdateTodo(ctx context.Context, t Todo) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateTodoLocked(t)
}

func (s *memStore) updateTodoLocked(t Todo) error {
	prev, ok := s.todos[t.ID]
	if !ok || prev.UserID != t.UserID {
		return ErrNotFound
	}
	s.todos[t.ID] = t
	return nil
}

func (s *memStore) DeleteTodo(ctx context.Context, userID, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteTodoLocked(userID, id)
}

func (s *memStore) deleteTodoLocked(userID, id string) error {
	t, ok := s.todos[id]
	if !ok || t.UserID != userID {
		return ErrNotFound
	}
	delete(s.todos, id)
	for i, tid := range s.todoOrder {
		if tid == id {
			s.todoOrder = append(s.todoOrder[:i], s.todoOrder[i+1:]...)
			break
		}
	}
	return nil
}

// ---- verification codes ----

func (s *memStore) PutCode(ctx context.Context, c VerificationCode) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[c.UserID] = c
	return nil
}

func (s *memStore) GetCode(ctx context.Context, userID string) (VerificationCode, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.codes[userID]
	if !ok {
		return VerificationCode{}, ErrNotFound
	}
	return c, nil
}

func (s *memStore) DeleteCode(ctx context.Context, userID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, userID)
	return nil
}

func (s *memStore) PurgeExpiredCodes(ctx context.Context, now time.Time) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeCodesLocked(now), nil
}

func (s *memStore) purgeCodesLocked(now time.Time) int {
	n := 0
	for k, c := range s.codes {
		if c.Expires.Before(now) {
			delete(s.codes, k)
			n++
		}
	}
	return n
}
