package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "todoapp/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot)
//   - <prefix>.journal.jsonl (append-only journal of mutations)
//
// Reads are served from memory. Every mutation is applied in memory first
// and then journaled; the journal is periodically compacted into the snapshot.
type fileStore struct {
	*memStore

	log logx.Logger

	jmu          sync.Mutex
	snapshotPath string
	journal      *os.File
	writes       int
}

const compactEvery = 1000

type journalRecord struct {
	Op     string            `json:"op"`
	User   *User             `json:"user,omitempty"`
	Todo   *Todo             `json:"todo,omitempty"`
	Code   *VerificationCode `json:"code,omitempty"`
	ID     string            `json:"id,omitempty"`
	UserID string            `json:"userId,omitempty"`
	At     time.Time         `json:"at,omitzero"`
}

type snapshot struct {
	Users []User             `json:"users"`
	Todos []Todo             `json:"todos"`
	Codes []VerificationCode `json:"codes"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	mem := newMemStore()
	if err := loadSnapshot(snapPath, mem); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	n, err := replayJournal(journalPath, mem)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("replay journal: %w", err)
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("file store opened",
		logx.String("snapshot", snapPath),
		logx.Int("replayed", n),
		logx.Int("users", len(mem.users)),
		logx.Int("todos", len(mem.todos)),
	)

	return &fileStore{
		memStore:     mem,
		log:          log,
		snapshotPath: snapPath,
		journal:      jf,
		writes:       n,
	}, nil
}

func (s *fileStore) Close() error {
	s.jmu.Lock()
	defer s.jmu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

// mutate runs fn against memory and journals rec if fn succeeded.
func (s *fileStore) mutate(rec journalRecord, fn func() error) error {
	s.jmu.Lock()
	defer s.jmu.Unlock()
	if s.journal == nil {
		return errors.New("journal closed")
	}
	if err := fn(); err != nil {
		return err
	}
	if err := json.NewEncoder(s.journal).Encode(rec); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Any("err", err))
		}
	}
	return nil
}

func (s *fileStore) CreateUser(ctx context.Context, u User) error {
	return s.mutate(journalRecord{Op: "user.create", User: &u}, func() error { return s.memStore.CreateUser(ctx, u) })
}

func (s *fileStore) UpdateUser(ctx context.Context, u User) error {
	return s.mutate(journalRecord{Op: "user.update", User: &u}, func() error { return s.memStore.UpdateUser(ctx, u) })
}

func (s *fileStore) DeleteUser(ctx context.Context, id string) error {
	return s.mutate(journalRecord{Op: "user.delete", ID: id}, func() error { return s.memStore.DeleteUser(ctx, id) })
}

func (s *fileStore) CreateTodo(ctx context.Context, t Todo) error {
	return s.mutate(journalRecord{Op: "todo.create", Todo: &t}, func() error { return s.memStore.CreateTodo(ctx, t) })
}

func (s *fileStore) UpdateTodo(ctx context.Context, t Todo) error {
	return s.mutate(journalRecord{Op: "todo.update", Todo: &t}, func() error { return s.memStore.UpdateTodo(ctx, t) })
}

func (s *fileStore) DeleteTodo(ctx context.Context, userID, id string) error {
	return s.mutate(journalRecord{Op: "todo.delete", UserID: userID, ID: id}, func() error { return s.memStore.DeleteTodo(ctx, userID, id) })
}

func (s *fileStore) PutCode(ctx context.Context, c VerificationCode) error {
	return s.mutate(journalRecord{Op: "code.put", Code: &c}, func() error { return s.memStore.PutCode(ctx, c) })
}

func (s *fileStore) DeleteCode(ctx context.Context, userID string) error {
	return s.mutate(journalRecord{Op: "code.delete", UserID: userID}, func() error { return s.memStore.DeleteCode(ctx, userID) })
}

func (s *fileStore) PurgeExpiredCodes(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := s.mutate(journalRecord{Op: "code.purge", At: now}, func() error {
		var err error
		n, err = s.memStore.PurgeExpiredCodes(ctx, now)
		return err
	})
	return n, err
}

// Compact writes a snapshot of the current state and truncates the journal.
func (s *fileStore) Compact(ctx context.Context) error {
	_ = ctx
	s.jmu.Lock()
	defer s.jmu.Unlock()
	if s.journal == nil {
		return errors.New("journal closed")
	}
	return s.compactLocked()
}

func (s *fileStore) compactLocked() error {
	snap := s.memStore.snapshot()

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func (s *memStore) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := snapshot{
		Users: make([]User, 0, len(s.users)),
		Todos: make([]Todo, 0, len(s.todoOrder)),
		Codes: make([]VerificationCode, 0, len(s.codes)),
	}
	for _, u := range s.users {
		snap.Users = append(snap.Users, u)
	}
	for _, id := range s.todoOrder {
		snap.Todos = append(snap.Todos, s.todos[id])
	}
	for _, c := range s.codes {
		snap.Codes = append(snap.Codes, c)
	}
	return snap
}

func loadSnapshot(path string, mem *memStore) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	for _, u := range snap.Users {
		_ = mem.createUserLocked(u)
	}
	for _, t := range snap.Todos {
		_ = mem.createTodoLocked(t)
	}
	for _, c := range snap.Codes {
		mem.codes[c.UserID] = c
	}
	return nil
}

// replayJournal applies journal records on top of the snapshot state.
// Undecodable lines (e.g. a torn final write) are skipped.
func replayJournal(path string, mem *memStore) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	mem.mu.Lock()
	defer mem.mu.Unlock()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		mem.applyLocked(r)
		n++
	}
	return n, sc.Err()
}

func (s *memStore) applyLocked(r journalRecord) {
	switch r.Op {
	case "user.create":
		if r.User != nil {
			_ = s.createUserLocked(*r.User)
		}
	case "user.update":
		if r.User != nil {
			_ = s.updateUserLocked(*r.User)
		}
	case "user.delete":
		_ = s.deleteUserLocked(r.ID)
	case "todo.create":
		if r.Todo != nil {
			_ = s.createTodoLocked(*r.Todo)
		}
	case "todo.update":
		if r.Todo != nil {
			_ = s.updateTodoLocked(*r.Todo)
		}
	case "todo.delete":
		_ = s.deleteTodoLocked(r.UserID, r.ID)
	case "code.put":
		if r.Code != nil {
			s.codes[r.Code.UserID] = *r.Code
		}
	case "code.delete":
		delete(s.codes, r.UserID)
	case "code.purge":
		s.purgeCodesLocked(r.At)
	}
}
