package model

import "time"

// Sample is one tick's full scored output.
type Sample struct {
	Timestamp       time.Time      `json:"ts"`
	CollectDuration time.Duration  `json:"collect_ns"`
	TotalProcs      int            `json:"total_procs"`
	MaxScore        int            `json:"max_score"`
	Rogues          []ProcessScore `json:"rogues,omitempty"`
}

// NewSample builds a sample and derives MaxScore from the rogue list, so
// the max-score invariant holds by construction. Rogue order is selection
// order and is preserved.
func NewSample(ts time.Time, collect time.Duration, totalProcs int, rogues []ProcessScore) Sample {
	return Sample{
		Timestamp:       ts,
		CollectDuration: collect,
		TotalProcs:      totalProcs,
		MaxScore:        RogueMax(rogues),
		Rogues:          rogues,
	}
}

// RogueMax returns the maximum score in the list, 0 when empty.
func RogueMax(rogues []ProcessScore) int {
	max := 0
	for _, r := range rogues {
		if r.Score > max {
			max = r.Score
		}
	}
	return max
}

// Clone returns an independent copy of the sample.
func (s Sample) Clone() Sample {
	out := s
	out.Rogues = CloneScores(s.Rogues)
	return out
}

// RingSample is a sample plus the tier that was active when it arrived.
type RingSample struct {
	Timestamp time.Time `json:"ts"`
	Sample    Sample    `json:"sample"`
	Tier      Tier      `json:"tier"`
}

// Clone returns an independent copy.
func (r RingSample) Clone() RingSample {
	out := r
	out.Sample = r.Sample.Clone()
	return out
}

// BufferContents is an immutable point-in-time copy of the ring buffer.
// Once returned it is never mutated; later pushes to the live buffer
// cannot be observed through it.
type BufferContents struct {
	Samples []RingSample `json:"samples"`
}
