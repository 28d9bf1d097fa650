package config

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "todoapp/pkg/logx"
)

const (
	reloadDebounce  = 250 * time.Millisecond
	watchBackoffMin = 250 * time.Millisecond
	watchBackoffMax = 5 * time.Second
)

// Watch reloads the config whenever its file changes until ctx is done.
// Editors often write in several steps, so events are debounced. A broken
// watcher is recreated with jittered exponential backoff.
func (m *ConfigManager) Watch(ctx context.Context) error {
	backoff := watchBackoffMin
	for {
		err := m.watchOnce(ctx, func() { backoff = watchBackoffMin })
		if ctx.Err() != nil {
			return nil
		}

		wait := backoff + time.Duration(rand.Int63n(int64(backoff/2)+1))
		backoff = min(backoff*2, watchBackoffMax)
		m.log.Warn("config watcher stopped; restarting",
			logx.String("path", m.path),
			logx.Err(err),
			logx.Duration("backoff", wait),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// watchOnce runs one fsnotify watcher on the config directory. It returns
// when ctx is done or the watcher breaks; ready is called once the watch is
// registered.
func (m *ConfigManager) watchOnce(ctx context.Context, ready func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	dir, name := filepath.Dir(m.path), filepath.Base(m.path)
	if err := w.Add(dir); err != nil {
		return err
	}
	ready()
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", name))

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	schedule := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.NewTimer(reloadDebounce)
		fire = timer.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("watcher events closed")
			}
			// Basename match survives relative paths and atomic-rename saves.
			if strings.EqualFold(filepath.Base(ev.Name), name) {
				schedule()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("watcher errors closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow; forcing reload", logx.String("dir", dir))
				schedule()
				continue
			}
			m.log.Warn("config watch error", logx.String("dir", dir), logx.Err(err))

		case <-fire:
			fire = nil
			m.reloadLogged(ctx)
		}
	}
}

func (m *ConfigManager) reloadLogged(ctx context.Context) {
	_, err := m.Reload(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnchanged):
		m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
	default:
		m.log.Warn("config reload failed", logx.String("path", m.path), logx.Err(err))
	}
}
