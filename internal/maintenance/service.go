package maintenance

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"todoapp/internal/eventbus"
	logx "todoapp/pkg/logx"
)

var (
	ErrUnknownJob = errors.New("maintenance: unknown job")
	ErrJobRunning = errors.New("maintenance: job already running")
)

// Config controls the maintenance service.
type Config struct {
	Enabled     bool
	Timezone    string // IANA TZ, e.g. "Europe/Berlin"
	JobTimeout  time.Duration
	HistorySize int
	// Schedules maps job name to schedule string. Jobs without a schedule
	// are registered but never triggered (RunNow still works).
	Schedules map[string]string
}

// JobFunc runs one job invocation. The returned detail is recorded in history.
type JobFunc func(ctx context.Context) (detail string, err error)

type RunRecord struct {
	Job      string        `json:"job"`
	Started  time.Time     `json:"started"`
	Took     time.Duration `json:"took"`
	Detail   string        `json:"detail,omitempty"`
	Error    string        `json:"error,omitempty"`
	Skipped  bool          `json:"skipped,omitempty"`
	Manually bool          `json:"manual,omitempty"`
}

type JobInfo struct {
	Name string    `json:"name"`
	Spec string    `json:"spec,omitempty"`
	Next time.Time `json:"next,omitempty"`
	Prev time.Time `json:"prev,omitempty"`
}

type job struct {
	name    string
	run     JobFunc
	spec    string
	entryID cron.EntryID
	running atomic.Bool
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	bus eventbus.Bus
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	runCtx context.Context
	cancel context.CancelFunc

	jobs map[string]*job

	hmu     sync.Mutex
	history []RunRecord
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: normalize(cfg),
		log: log,
		bus: bus,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		jobs:   map[string]*job{},
	}
}

func normalize(cfg Config) Config {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Minute
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	return cfg
}

// Validate checks schedules and timezone without touching running state.
func (s *Service) Validate(cfg Config) error {
	var errs []error
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("maintenance.timezone: %w", err))
		}
	}
	for name, raw := range cfg.Schedules {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		ps, err := ParseSchedule(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("maintenance %s: %w", name, err))
			continue
		}
		if ps.Kind == KindCron {
			if _, err := s.parser.Parse(ps.Cron); err != nil {
				errs = append(errs, fmt.Errorf("maintenance %s: cron %q: %w", name, ps.Cron, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Register adds (or replaces) a job by name.
func (s *Service) Register(name string, run JobFunc) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("job name required")
	}
	if run == nil {
		return errors.New("job func required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.jobs[name]; ok && s.c != nil && old.entryID != 0 {
		s.c.Remove(old.entryID)
	}
	j := &job{name: name, run: run}
	s.jobs[name] = j
	if s.c != nil {
		s.scheduleLocked(j)
	}
	return nil
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply swaps config and re-registers schedules when running.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	cfg = normalize(cfg)
	s.mu.Lock()
	wasRunning := s.c != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case wasRunning && !cfg.Enabled:
		s.Stop(ctx)
	case wasRunning:
		s.mu.Lock()
		s.restartLocked()
		s.mu.Unlock()
	case cfg.Enabled:
		s.Start(ctx)
	}
}

// Start begins cron triggering. Jobs run on a context derived from ctx.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.startCronLocked()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

// Stop stops triggering and cancels in-flight jobs, waiting for them until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.cancel = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("service stopped")
}

func (s *Service) startCronLocked() {
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.scheduleLocked(s.jobs[name])
	}
	s.c.Start()
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	for _, j := range s.jobs {
		j.entryID = 0
	}
	s.startCronLocked()
	s.log.Info("service restarted", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

func (s *Service) scheduleLocked(j *job) {
	j.entryID = 0
	j.spec = ""
	raw := strings.TrimSpace(s.cfg.Schedules[j.name])
	if raw == "" {
		s.log.Debug("job has no schedule", logx.String("job", j.name))
		return
	}
	ps, err := ParseSchedule(raw)
	if err != nil {
		s.log.Error("job schedule invalid", logx.String("job", j.name), logx.String("schedule", raw), logx.Err(err))
		return
	}
	j.spec = ps.Spec()
	runCtx := s.runCtx
	fn := cron.FuncJob(func() { _ = s.execute(runCtx, j, false) })

	if ps.Kind == KindInterval {
		sched, spread := intervalWithSpread(ps.Every, time.Now().In(s.loc), j.name)
		j.entryID = s.c.Schedule(sched, fn)
		s.log.Debug("job scheduled", logx.String("job", j.name), logx.String("spec", j.spec), logx.Duration("startup_spread", spread))
		return
	}
	id, err := s.c.AddJob(ps.Cron, fn)
	if err != nil {
		s.log.Error("job register failed", logx.String("job", j.name), logx.String("spec", ps.Cron), logx.Err(err))
		return
	}
	j.entryID = id
	s.log.Debug("job scheduled", logx.String("job", j.name), logx.String("spec", j.spec))
}

// RunNow executes a job synchronously, honoring the overlap guard.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j := s.jobs[name]
	s.mu.Unlock()
	if j == nil {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, j, true)
}

func (s *Service) execute(ctx context.Context, j *job, manual bool) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rec := RunRecord{Job: j.name, Started: time.Now(), Manually: manual}
	if !j.running.CompareAndSwap(false, true) {
		rec.Skipped = true
		s.log.Debug("job skipped (still running)", logx.String("job", j.name))
		s.record(rec)
		return ErrJobRunning
	}
	defer j.running.Store(false)

	s.mu.Lock()
	timeout := s.cfg.JobTimeout
	s.mu.Unlock()
	jctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", logx.String("job", j.name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
		rec.Took = time.Since(rec.Started)
		if err != nil {
			rec.Error = err.Error()
			s.log.Warn("job failed", logx.String("job", j.name), logx.Duration("took", rec.Took), logx.Err(err))
		} else {
			s.log.Info("job finished", logx.String("job", j.name), logx.Duration("took", rec.Took), logx.String("detail", rec.Detail))
		}
		s.record(rec)
	}()

	rec.Detail, err = j.run(jctx)
	return err
}

func (s *Service) record(rec RunRecord) {
	s.mu.Lock()
	max := s.cfg.HistorySize
	s.mu.Unlock()
	s.hmu.Lock()
	s.history = append(s.history, rec)
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
	s.hmu.Unlock()
	eventbus.Publish(s.bus, eventbus.JobFinished, rec)
}

// History returns recent runs, oldest first.
func (s *Service) History() []RunRecord {
	s.hmu.Lock()
	out := append([]RunRecord(nil), s.history...)
	s.hmu.Unlock()
	return out
}

// Jobs lists registered jobs with their next/previous trigger times.
func (s *Service) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		info := JobInfo{Name: j.name, Spec: j.spec}
		if s.c != nil && j.entryID != 0 {
			e := s.c.Entry(j.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		out = append(out, info)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
