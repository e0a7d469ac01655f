package model

import (
	"sort"
	"strings"
	"time"
)

// EventKind distinguishes recorded episodes from confirmed pauses.
type EventKind string

const (
	// EventEpisode is a completed elevated/critical tier excursion.
	EventEpisode EventKind = "episode"
	// EventPause is a confirmed sampling-loop starvation.
	EventPause EventKind = "pause"
)

// Event is a persisted tier episode or confirmed pause.
type Event struct {
	ID        string         `json:"id"`
	Kind      EventKind      `json:"kind"`
	StartTime time.Time      `json:"start_time"`
	Duration  time.Duration  `json:"duration_ns"`
	Tier      Tier           `json:"tier"`
	PeakScore int            `json:"peak_score"`
	Rogues    []ProcessScore `json:"rogues,omitempty"`
	Reviewed  bool           `json:"reviewed"`
	CreatedAt time.Time      `json:"created_at"`
}

// CategorySummary returns the distinct selection categories across the
// event's rogue snapshot, sorted and comma-joined. Empty when there are
// no rogues.
func (e Event) CategorySummary() string {
	seen := map[Category]bool{}
	for _, r := range e.Rogues {
		for _, c := range r.Categories {
			seen[c] = true
		}
	}
	if len(seen) == 0 {
		return ""
	}
	cats := make([]string, 0, len(seen))
	for c := range seen {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	return strings.Join(cats, ",")
}
