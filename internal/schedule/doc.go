// Package schedule packs tasks into a time-of-day window.
//
// Plan is greedy and single-pass: tasks are ordered by priority (then by
// deadline), laid back-to-back from the window start, and the whole request
// fails on the first task that cannot be placed. Nothing is stored between
// calls.
//
// Deadlines carry a full date-time, but only their time-of-day is compared
// against the window. The calendar date is ignored when checking
// feasibility (it still participates in ordering).
package schedule
