package schedule

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Priority levels offered by the task form. Higher runs first; other
// integers are accepted and compared the same way.
const (
	PriorityLow    = 1
	PriorityMedium = 2
	PriorityHigh   = 3
)

// TaskInput is a task as collected from a form: duration is numeric text and
// deadline is date-time text or empty.
type TaskInput struct {
	Name     string `json:"name"`
	Duration string `json:"duration"`
	Deadline string `json:"deadline,omitempty"`
	Priority int    `json:"priority"`
}

// Task is a validated TaskInput.
type Task struct {
	Name     string
	Duration int // minutes, > 0
	Deadline *time.Time
	Priority int
}

// Window is the interval tasks may be placed in. End must be after Start.
type Window struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

// ScheduledTask is a placed task.
type ScheduledTask struct {
	Name     string `json:"name"`
	Duration int    `json:"duration"`
	Deadline string `json:"deadline,omitempty"`
	Priority int    `json:"priority"`
	Start    Clock  `json:"start"`
	End      Clock  `json:"end"`
}

// PlanRaw is Plan for HH:MM text at the form boundary.
func PlanRaw(tasks []TaskInput, start, end string) ([]ScheduledTask, error) {
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return nil, fail(ErrWindowUnset)
	}
	s, err := ParseClock(start)
	if err != nil {
		return nil, fail(ErrWindowUnset)
	}
	e, err := ParseClock(end)
	if err != nil {
		return nil, fail(ErrWindowUnset)
	}
	return Plan(tasks, Window{Start: s, End: e})
}

// Plan assigns every valid task a contiguous slot inside w, or fails.
//
// Invalid tasks (empty name, non-positive or non-numeric duration) are
// dropped without being reported. No partial schedule is ever returned.
func Plan(tasks []TaskInput, w Window) ([]ScheduledTask, error) {
	if w.End <= w.Start {
		return nil, fail(ErrInvalidWindow)
	}

	valid := Validate(tasks)
	if len(valid) == 0 {
		return nil, fail(ErrNoValidTasks)
	}

	Order(valid)

	cursor := w.Start
	out := make([]ScheduledTask, 0, len(valid))
	for _, t := range valid {
		// int64 so huge durations cannot wrap past the window.
		reach := int64(cursor) + int64(t.Duration)
		if t.Deadline != nil && reach > int64(ClockOf(*t.Deadline)) {
			return nil, &Failure{Kind: ErrDeadlineUnmet, Task: t.Name}
		}
		if reach > int64(w.End) {
			return nil, fail(ErrWindowExhausted)
		}
		end := cursor.Add(t.Duration)
		st := ScheduledTask{
			Name:     t.Name,
			Duration: t.Duration,
			Priority: t.Priority,
			Start:    cursor,
			End:      end,
		}
		if t.Deadline != nil {
			st.Deadline = t.Deadline.Format("2006-01-02T15:04")
		}
		out = append(out, st)
		cursor = end
	}
	return out, nil
}

// Validate keeps the tasks that have a name and a finite positive
// duration, in input order. Fractional minutes round up, so "1.5" takes
// two minutes.
func Validate(tasks []TaskInput) []Task {
	out := make([]Task, 0, len(tasks))
	for _, in := range tasks {
		if in.Name == "" {
			continue
		}
		dur, ok := parseDuration(in.Duration)
		if !ok {
			continue
		}
		t := Task{Name: in.Name, Duration: dur, Priority: in.Priority}
		if strings.TrimSpace(in.Deadline) != "" {
			// An unreadable deadline is treated as absent.
			if dl, err := ParseDeadline(in.Deadline); err == nil {
				t.Deadline = &dl
			}
		}
		out = append(out, t)
	}
	return out
}

func parseDuration(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f <= 0 {
		return 0, false
	}
	// Anything this long cannot fit a single day; clamping keeps it
	// representable and still exhausts the window.
	return int(min(math.Ceil(f), math.MaxInt32)), true
}

// Order sorts tasks in place: priority descending, then deadline ascending
// when both tasks have one. Any other pair keeps its input order.
func Order(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Deadline != nil && b.Deadline != nil {
			return a.Deadline.Before(*b.Deadline)
		}
		return false
	})
}
