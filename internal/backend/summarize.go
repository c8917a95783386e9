package backend

import "time"

// Summarize aggregates tasks into per-project counts as of now. Projects
// appear in first-seen task order; the unnamed inbox project groups under
// the empty string like any other.
//
// Counting rules: active counts incomplete tasks; flagged counts flagged
// tasks regardless of completion; due_today counts tasks whose due date
// falls on today's UTC date; overdue counts tasks already past due. A task
// with a bad or missing due timestamp contributes to neither due count.
func Summarize(tasks []Task, now time.Time) []Summary {
	now = now.UTC()
	today := now.Truncate(24 * time.Hour)

	index := make(map[string]int)
	var summaries []Summary

	for _, t := range tasks {
		i, ok := index[t.Project]
		if !ok {
			i = len(summaries)
			index[t.Project] = i
			summaries = append(summaries, Summary{Project: t.Project})
		}
		entry := &summaries[i]

		if !t.Completed {
			entry.Active++
		}
		if t.Flagged {
			entry.Flagged++
		}

		if due, ok := parseWhen(t.Due); ok {
			due = due.UTC()
			if due.Truncate(24 * time.Hour).Equal(today) {
				entry.DueToday++
			}
			if due.Before(now) {
				entry.Overdue++
			}
		}
	}

	if summaries == nil {
		summaries = []Summary{}
	}
	return summaries
}
