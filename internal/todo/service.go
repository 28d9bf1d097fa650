// Package todo manages per-user todo items.
package todo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"todoapp/internal/eventbus"
	"todoapp/internal/storage"
	logx "todoapp/pkg/logx"
)

var (
	ErrTextRequired = errors.New("Todo text is required")
	ErrNotFound     = errors.New("Todo not found")
)

type Todo = storage.Todo

type Service struct {
	repo storage.TodoRepo
	bus  eventbus.Bus
	log  logx.Logger
	now  func() time.Time
}

func New(repo storage.TodoRepo, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{repo: repo, bus: bus, log: log, now: time.Now}
}

// List returns the user's todos in creation order. Never nil.
func (s *Service) List(ctx context.Context, userID string) ([]Todo, error) {
	out, err := s.repo.TodosByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	if out == nil {
		out = []Todo{}
	}
	return out, nil
}

func (s *Service) Create(ctx context.Context, userID, text string) (Todo, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Todo{}, ErrTextRequired
	}
	t := Todo{
		ID:        uuid.NewString(),
		UserID:    userID,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateTodo(ctx, t); err != nil {
		return Todo{}, fmt.Errorf("create todo: %w", err)
	}
	s.log.Debug("todo created", logx.String("user_id", userID), logx.String("todo_id", t.ID))
	eventbus.Publish(s.bus, eventbus.TodoCreated, t)
	return t, nil
}

func (s *Service) SetCompleted(ctx context.Context, userID, id string, completed bool) (Todo, error) {
	t, err := s.repo.TodoByID(ctx, userID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return Todo{}, ErrNotFound
	}
	if err != nil {
		return Todo{}, fmt.Errorf("load todo: %w", err)
	}
	t.Completed = completed
	if err := s.repo.UpdateTodo(ctx, t); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Todo{}, ErrNotFound
		}
		return Todo{}, fmt.Errorf("update todo: %w", err)
	}
	eventbus.Publish(s.bus, eventbus.TodoUpdated, t)
	return t, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	err := s.repo.DeleteTodo(ctx, userID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	s.log.Debug("todo deleted", logx.String("user_id", userID), logx.String("todo_id", id))
	eventbus.Publish(s.bus, eventbus.TodoDeleted, map[string]string{"id": id, "userId": userID})
	return nil
}
