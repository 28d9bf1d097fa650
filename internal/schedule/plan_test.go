package schedule

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func window(start, end string) Window {
	return Window{Start: mustClock(start), End: mustClock(end)}
}

func names(out []ScheduledTask) []string {
	ns := make([]string, 0, len(out))
	for _, st := range out {
		ns = append(ns, st.Name)
	}
	return ns
}

func TestPlanPriorityOrder(t *testing.T) {
	t.Parallel()
	out, err := Plan([]TaskInput{
		{Name: "B", Duration: "30", Priority: PriorityLow},
		{Name: "A", Duration: "60", Priority: PriorityHigh},
	}, window("09:00", "17:00"))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].Name)
	assert.Equal(t, "09:00", out[0].Start.String())
	assert.Equal(t, "10:00", out[0].End.String())
	assert.Equal(t, "B", out[1].Name)
	assert.Equal(t, "10:00", out[1].Start.String())
	assert.Equal(t, "10:30", out[1].End.String())
}

func TestPlanWindowExhausted(t *testing.T) {
	t.Parallel()
	_, err := Plan([]TaskInput{{Name: "A", Duration: "90", Priority: 1}}, window("09:00", "10:00"))
	require.ErrorIs(t, err, ErrWindowExhausted)
	assert.Equal(t, "Not enough time in the window for all tasks.", err.Error())
}

func TestPlanDeadlineUnmet(t *testing.T) {
	t.Parallel()
	_, err := Plan([]TaskInput{
		{Name: "A", Duration: "60", Deadline: "2024-01-15T09:30", Priority: 1},
	}, window("09:00", "17:00"))
	require.ErrorIs(t, err, ErrDeadlineUnmet)

	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, "A", f.Task)
	assert.Equal(t, `Task "A" cannot be scheduled before its deadline.`, err.Error())
}

func TestPlanDeadlineCheckedBeforeWindow(t *testing.T) {
	t.Parallel()
	// Both constraints are violated; the deadline is reported.
	_, err := Plan([]TaskInput{
		{Name: "A", Duration: "120", Deadline: "2024-01-15T09:30", Priority: 1},
	}, window("09:00", "10:00"))
	require.ErrorIs(t, err, ErrDeadlineUnmet)
}

func TestPlanNoValidTasks(t *testing.T) {
	t.Parallel()
	for _, tasks := range [][]TaskInput{
		nil,
		{},
		{{Name: "", Duration: "30"}},
		{{Name: "A", Duration: ""}},
		{{Name: "A", Duration: "abc"}},
		{{Name: "A", Duration: "0"}},
		{{Name: "A", Duration: "-15"}},
		{{Name: "A", Duration: "Inf"}},
		{{Name: "A", Duration: "NaN"}},
	} {
		_, err := Plan(tasks, window("09:00", "17:00"))
		require.ErrorIs(t, err, ErrNoValidTasks, "%v", tasks)
		assert.Equal(t, "Please add at least one valid task.", err.Error())
	}
}

func TestPlanDurationRounding(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw  string
		want int
		err  error
	}{
		{raw: "1.5", want: 2},
		{raw: "30.5", want: 31},
		{raw: "0.0001", want: 1},
		{raw: "45.0", want: 45},
		{raw: "1e2", want: 100},
		{raw: "3000000000", err: ErrWindowExhausted},
		{raw: "1e10", err: ErrWindowExhausted},
		{raw: "1e300", err: ErrWindowExhausted},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			t.Parallel()
			out, err := Plan([]TaskInput{{Name: "A", Duration: tc.raw, Priority: PriorityMedium}}, window("09:00", "17:00"))
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Equal(t, tc.want, out[0].Duration)
			assert.Equal(t, window("09:00", "09:00").Start.Add(tc.want), out[0].End)
		})
	}
}

func TestPlanHugeDurationMissesDeadline(t *testing.T) {
	t.Parallel()
	_, err := Plan([]TaskInput{
		{Name: "A", Duration: "3000000000", Deadline: "2024-01-15T12:00", Priority: PriorityMedium},
	}, window("09:00", "17:00"))
	require.ErrorIs(t, err, ErrDeadlineUnmet)
}

func TestDeadlineMessageKeepsTaskNameVerbatim(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		`a"b`:    `Task "a"b" cannot be scheduled before its deadline.`,
		"tab\tx": "Task \"tab\tx\" cannot be scheduled before its deadline.",
		`café`:   `Task "café" cannot be scheduled before its deadline.`,
	}
	for name, want := range cases {
		_, err := Plan([]TaskInput{
			{Name: name, Duration: "60", Deadline: "2024-01-15T09:30", Priority: PriorityLow},
		}, window("09:00", "17:00"))
		require.ErrorIs(t, err, ErrDeadlineUnmet)
		assert.Equal(t, want, err.Error())
	}
}

func TestPlanInvalidWindow(t *testing.T) {
	t.Parallel()
	tasks := []TaskInput{{Name: "A", Duration: "10"}}
	_, err := Plan(tasks, window("17:00", "09:00"))
	require.ErrorIs(t, err, ErrInvalidWindow)
	_, err = Plan(tasks, window("09:00", "09:00"))
	require.ErrorIs(t, err, ErrInvalidWindow)
	assert.Equal(t, "End time must be after start time.", err.Error())
}

func TestPlanWindowCheckedBeforeTasks(t *testing.T) {
	t.Parallel()
	_, err := Plan(nil, window("17:00", "09:00"))
	require.ErrorIs(t, err, ErrInvalidWindow)
}

func TestPlanDropsInvalidTasksSilently(t *testing.T) {
	t.Parallel()
	out, err := Plan([]TaskInput{
		{Name: "", Duration: "30", Priority: 3},
		{Name: "keep", Duration: " 45 ", Priority: 1},
		{Name: "bad", Duration: "x", Priority: 3},
	}, window("08:00", "09:00"))
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, names(out))
	assert.Equal(t, "08:45", out[0].End.String())
}

func TestPlanDeadlineTieBreak(t *testing.T) {
	t.Parallel()
	out, err := Plan([]TaskInput{
		{Name: "late", Duration: "10", Deadline: "2024-01-15T16:00", Priority: 2},
		{Name: "early", Duration: "10", Deadline: "2024-01-15T12:00", Priority: 2},
		{Name: "urgent", Duration: "10", Priority: 3},
	}, window("09:00", "17:00"))
	require.NoError(t, err)
	assert.Equal(t, []string{"urgent", "early", "late"}, names(out))
}

func TestPlanTieWithoutDeadlineKeepsInputOrder(t *testing.T) {
	t.Parallel()
	out, err := Plan([]TaskInput{
		{Name: "first", Duration: "10", Priority: 2},
		{Name: "second", Duration: "10", Deadline: "2024-01-15T12:00", Priority: 2},
		{Name: "third", Duration: "10", Priority: 2},
	}, window("09:00", "17:00"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, names(out))
}

func TestPlanDeadlineIgnoresDate(t *testing.T) {
	t.Parallel()
	// A deadline days in the future still only counts as 09:30.
	_, err := Plan([]TaskInput{
		{Name: "A", Duration: "60", Deadline: "2099-12-31T09:30", Priority: 1},
	}, window("09:00", "17:00"))
	require.ErrorIs(t, err, ErrDeadlineUnmet)

	// And a deadline in the past passes when its time-of-day is late enough.
	out, err := Plan([]TaskInput{
		{Name: "A", Duration: "60", Deadline: "2000-01-01T11:00", Priority: 1},
	}, window("09:00", "17:00"))
	require.NoError(t, err)
	assert.Equal(t, "2000-01-01T11:00", out[0].Deadline)
}

func TestPlanExactFit(t *testing.T) {
	t.Parallel()
	out, err := Plan([]TaskInput{
		{Name: "A", Duration: "30", Deadline: "2024-01-15T09:30", Priority: 1},
		{Name: "B", Duration: "30", Priority: 1},
	}, window("09:00", "10:00"))
	require.NoError(t, err)
	assert.Equal(t, "10:00", out[1].End.String())
}

func TestPlanUnreadableDeadlineIsIgnored(t *testing.T) {
	t.Parallel()
	out, err := Plan([]TaskInput{{Name: "A", Duration: "60", Deadline: "soon", Priority: 1}}, window("09:00", "17:00"))
	require.NoError(t, err)
	assert.Empty(t, out[0].Deadline)
}

func TestPlanNoPartialResult(t *testing.T) {
	t.Parallel()
	out, err := Plan([]TaskInput{
		{Name: "fits", Duration: "30", Priority: 3},
		{Name: "overflows", Duration: "60", Priority: 1},
	}, window("09:00", "10:00"))
	require.ErrorIs(t, err, ErrWindowExhausted)
	assert.Nil(t, out)
}

func TestPlanRaw(t *testing.T) {
	t.Parallel()
	_, err := PlanRaw([]TaskInput{{Name: "A", Duration: "10"}}, "", "17:00")
	require.ErrorIs(t, err, ErrWindowUnset)
	assert.Equal(t, "Please set the available time window.", err.Error())

	_, err = PlanRaw([]TaskInput{{Name: "A", Duration: "10"}}, "17:00", "09:00")
	require.ErrorIs(t, err, ErrInvalidWindow)

	out, err := PlanRaw([]TaskInput{{Name: "A", Duration: "10"}}, "09:00", "09:10")
	require.NoError(t, err)
	assert.Equal(t, "09:10", out[0].End.String())
}

func TestPlanProperties(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(42))
	successes := 0
	for i := 0; i < 500; i++ {
		start := Clock(rng.Intn(20 * 60))
		w := Window{Start: start, End: start.Add(30 + rng.Intn(240))}
		n := 1 + rng.Intn(6)
		tasks := make([]TaskInput, 0, n)
		for j := 0; j < n; j++ {
			in := TaskInput{
				Name:     fmt.Sprintf("t%d", j),
				Duration: fmt.Sprint(1 + rng.Intn(60)),
				Priority: 1 + rng.Intn(3),
			}
			if rng.Intn(3) == 0 {
				dl := w.Start.Add(rng.Intn(int(w.End-w.Start) + 60))
				if dl > 23*60+59 {
					dl = 23*60 + 59
				}
				in.Deadline = "2024-01-15T" + dl.String()
			}
			tasks = append(tasks, in)
		}

		out, err := Plan(tasks, w)
		again, err2 := Plan(tasks, w)
		require.Equal(t, out, again, "idempotence")
		require.Equal(t, err, err2, "idempotence")
		if err != nil {
			require.Nil(t, out)
			continue
		}
		successes++

		require.Len(t, out, n)
		require.Equal(t, w.Start, out[0].Start)
		require.LessOrEqual(t, out[len(out)-1].End, w.End)
		total := 0
		for k, st := range out {
			total += st.Duration
			require.Equal(t, st.Start.Add(st.Duration), st.End)
			if k > 0 {
				require.Equal(t, out[k-1].End, st.Start, "contiguous")
				require.GreaterOrEqual(t, out[k-1].Priority, st.Priority, "priority order")
			}
			if st.Deadline != "" {
				dl, err := ParseDeadline(st.Deadline)
				require.NoError(t, err)
				require.LessOrEqual(t, st.End, ClockOf(dl))
			}
		}
		require.LessOrEqual(t, total, int(w.End-w.Start))
	}
	require.Positive(t, successes)
}
