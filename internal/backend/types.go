// Package backend implements the task backend the taskrelay agent's tools
// talk to: a small HTTP server over a pluggable task store.
package backend

import (
	"errors"
	"fmt"
	"time"
)

// Task is a single tracked task. Due and Defer are ISO 8601 timestamps kept
// as strings on the wire; empty means unset. Parsing is deliberately lenient,
// see [parseWhen].
type Task struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Project   string `json:"project"`
	Due       string `json:"due"`
	Defer     string `json:"defer"`
	Flagged   bool   `json:"flagged"`
	Completed bool   `json:"completed"`
	Note      string `json:"note"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Validate checks the fields a task must carry before persistence.
func (t *Task) Validate() error {
	var errs []error
	if t.Name == "" {
		errs = append(errs, errors.New("backend: task name is required"))
	}
	if t.Due != "" {
		if _, ok := parseWhen(t.Due); !ok {
			errs = append(errs, fmt.Errorf("backend: task due %q is not a recognised timestamp", t.Due))
		}
	}
	if t.Defer != "" {
		if _, ok := parseWhen(t.Defer); !ok {
			errs = append(errs, fmt.Errorf("backend: task defer %q is not a recognised timestamp", t.Defer))
		}
	}
	return errors.Join(errs...)
}

// Project is a grouping of tasks. Projects exist implicitly: a project is
// alive as long as a task names it, so its ID is simply its name.
type Project struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Summary is the per-project aggregate produced by [Summarize].
type Summary struct {
	Project  string `json:"project"`
	Active   int    `json:"active"`
	Flagged  int    `json:"flagged"`
	DueToday int    `json:"due_today"`
	Overdue  int    `json:"overdue"`
}

// Filter selects a task subset. The zero value means "available": not
// completed and not deferred to the future.
type Filter string

const (
	FilterAvailable Filter = ""
	FilterAll       Filter = "all"
	FilterFlagged   Filter = "flagged"
	FilterDueSoon   Filter = "due_soon"
	FilterInbox     Filter = "inbox"
	FilterCompleted Filter = "completed"
	FilterDeferred  Filter = "deferred"
)

// ValidFilters lists every non-empty filter name, for error messages.
var ValidFilters = []Filter{
	FilterDueSoon, FilterFlagged, FilterInbox,
	FilterAll, FilterCompleted, FilterDeferred,
}

// IsValid reports whether f is a recognised filter.
func (f Filter) IsValid() bool {
	if f == FilterAvailable {
		return true
	}
	for _, v := range ValidFilters {
		if f == v {
			return true
		}
	}
	return false
}

// dueSoonWindow is how far ahead "due_soon" looks.
const dueSoonWindow = 24 * time.Hour

// Matches reports whether the task belongs to the subset f selects, judged
// as of now. Shared by every store implementation so filters behave
// identically regardless of backing.
func (f Filter) Matches(t *Task, now time.Time) bool {
	deferred := false
	if when, ok := parseWhen(t.Defer); ok {
		deferred = when.After(now)
	}
	available := !t.Completed && !deferred

	switch f {
	case FilterAvailable:
		return available
	case FilterAll:
		return !t.Completed
	case FilterFlagged:
		return available && t.Flagged
	case FilterDueSoon:
		when, ok := parseWhen(t.Due)
		return available && ok && when.Before(now.Add(dueSoonWindow))
	case FilterInbox:
		return t.Project == ""
	case FilterCompleted:
		return t.Completed
	case FilterDeferred:
		return deferred
	default:
		return false
	}
}

// whenLayouts are the timestamp layouts accepted for due/defer fields, most
// specific first.
var whenLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseWhen parses a due/defer string. Empty or unparseable values report
// false rather than failing, mirroring how these fields are treated
// everywhere: a bad timestamp reads as "no timestamp".
func parseWhen(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range whenLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
