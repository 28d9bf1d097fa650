package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todoapp/internal/eventbus"
	"todoapp/internal/storage"
	logx "todoapp/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		kind    Kind
		spec    string
		source  string
		wantErr bool
	}{
		{in: "*/5 * * * *", kind: KindCron, spec: "*/5 * * * *", source: "cron"},
		{in: "@hourly", kind: KindCron, spec: "@hourly", source: "cron"},
		{in: "cron:0 3 * * *", kind: KindCron, spec: "0 3 * * *", source: "cron"},
		{in: "55m", kind: KindInterval, spec: "@every 55m0s", source: "duration"},
		{in: "every:5m", kind: KindInterval, spec: "@every 5m0s", source: "duration"},
		{in: "interval:02:30", kind: KindInterval, spec: "@every 2h30m0s", source: "hhmm"},
		{in: "00:50", kind: KindInterval, spec: "@every 50m0s", source: "hhmm"},
		{in: "", wantErr: true},
		{in: "cron:", wantErr: true},
		{in: "every:0s", wantErr: true},
		{in: "00:00", wantErr: true},
		{in: "01:75", wantErr: true},
		{in: "tomorrow", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSchedule(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.kind, got.Kind)
			assert.Equal(t, tc.spec, got.Spec())
			assert.Equal(t, tc.source, got.Source)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	require.NoError(t, s.Validate(Config{Schedules: map[string]string{"a": "every:5m", "b": "cron:0 3 * * *", "c": ""}}))
	assert.Error(t, s.Validate(Config{Timezone: "Mars/Olympus"}))
	assert.Error(t, s.Validate(Config{Schedules: map[string]string{"a": "cron:99 * * * *"}}))
	assert.Error(t, s.Validate(Config{Schedules: map[string]string{"a": "soonish"}}))
}

func TestRunNowPurgesExpiredCodes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.PutCode(ctx, storage.VerificationCode{UserID: "u1", Code: "111111", Expires: now.Add(-time.Minute)}))
	require.NoError(t, st.PutCode(ctx, storage.VerificationCode{UserID: "u2", Code: "222222", Expires: now.Add(time.Minute)}))

	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(Config{}, logx.Nop(), bus)
	require.NoError(t, s.Register(JobPurgeCodes, PurgeCodes(st, func() time.Time { return now })))
	require.NoError(t, s.RunNow(ctx, JobPurgeCodes))

	_, err := st.GetCode(ctx, "u1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = st.GetCode(ctx, "u2")
	assert.NoError(t, err)

	hist := s.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "purged=1", hist[0].Detail)
	assert.True(t, hist[0].Manually)

	ev := <-events
	assert.Equal(t, eventbus.JobFinished, ev.Type)
}

func TestRunNowErrors(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	assert.ErrorIs(t, s.RunNow(context.Background(), "missing"), ErrUnknownJob)

	require.NoError(t, s.Register("panics", func(ctx context.Context) (string, error) { panic("boom") }))
	err := s.RunNow(context.Background(), "panics")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: boom")

	require.NoError(t, s.Register("fails", func(ctx context.Context) (string, error) { return "", errors.New("nope") }))
	assert.EqualError(t, s.RunNow(context.Background(), "fails"), "nope")

	hist := s.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "nope", hist[1].Error)
}

func TestOverlapIsSkipped(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Register("slow", func(ctx context.Context) (string, error) {
		close(started)
		<-release
		return "", nil
	}))

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "slow") }()
	<-started
	assert.ErrorIs(t, s.RunNow(context.Background(), "slow"), ErrJobRunning)
	close(release)
	require.NoError(t, <-done)

	hist := s.History()
	require.Len(t, hist, 2)
	assert.True(t, hist[0].Skipped)
}

func TestJobTimeout(t *testing.T) {
	t.Parallel()
	s := New(Config{JobTimeout: 20 * time.Millisecond}, logx.Nop(), nil)
	require.NoError(t, s.Register("hang", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}))
	assert.ErrorIs(t, s.RunNow(context.Background(), "hang"), context.DeadlineExceeded)
}

func TestScheduledJobFires(t *testing.T) {
	t.Parallel()
	var runs atomic.Int32
	s := New(Config{
		Enabled:   true,
		Schedules: map[string]string{"tick": "cron:* * * * * *"},
	}, logx.Nop(), nil)
	require.NoError(t, s.Register("tick", func(ctx context.Context) (string, error) {
		runs.Add(1)
		return "", nil
	}))
	require.NoError(t, s.Register("idle", func(ctx context.Context) (string, error) { return "", nil }))

	s.Start(context.Background())
	defer s.Stop(context.Background())

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "idle", jobs[0].Name)
	assert.Empty(t, jobs[0].Spec)
	assert.Equal(t, "* * * * * *", jobs[1].Spec)
	assert.False(t, jobs[1].Next.IsZero())

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
}

func TestApplyDisableStops(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, logx.Nop(), nil)
	s.Start(context.Background())
	assert.True(t, s.Enabled())
	s.Apply(context.Background(), Config{Enabled: false})
	assert.False(t, s.Enabled())
	s.mu.Lock()
	running := s.c != nil
	s.mu.Unlock()
	assert.False(t, running)
}
