package model

import "strings"

// ProcState is the scheduling state reported by the process table.
type ProcState string

const (
	StateRunning  ProcState = "running"
	StateSleeping ProcState = "sleeping"
	StateIdle     ProcState = "idle"
	StateStuck    ProcState = "stuck"
	StateZombie   ProcState = "zombie"
	StateHalted   ProcState = "halted"
	StateStopped  ProcState = "stopped"
	StateUnknown  ProcState = "unknown"
)

// ParseState normalizes a STATE column value. top prints lowercase state
// names; anything unrecognized maps to StateUnknown rather than failing
// the row.
func ParseState(s string) ProcState {
	switch ProcState(strings.ToLower(strings.TrimSpace(s))) {
	case StateRunning:
		return StateRunning
	case StateSleeping:
		return StateSleeping
	case StateIdle:
		return StateIdle
	case StateStuck:
		return StateStuck
	case StateZombie:
		return StateZombie
	case StateHalted:
		return StateHalted
	case StateStopped:
		return StateStopped
	}
	return StateUnknown
}

// Category names a rogue-selection dimension.
type Category string

const (
	CategoryCPU        Category = "cpu"
	CategoryMem        Category = "mem"
	CategoryCompressed Category = "cmprs"
	CategoryPageins    Category = "pageins"
	CategoryCSW        Category = "csw"
	CategorySyscalls   Category = "syscalls"
	CategoryThreads    Category = "threads"
	CategoryState      Category = "state"
)

// ProcessRecord is one process's raw metrics for a single tick.
// Counter-style columns (pageins, context switches, syscalls) are already
// converted to per-second rates by the collector.
type ProcessRecord struct {
	PID         int       `json:"pid"`
	Command     string    `json:"command"`
	CPUPct      float64   `json:"cpu_pct"`
	State       ProcState `json:"state"`
	RSS         uint64    `json:"rss_bytes"`
	Compressed  uint64    `json:"cmprs_bytes"`
	PageinRate  float64   `json:"pagein_rate"`
	CSWRate     float64   `json:"csw_rate"`
	SyscallRate float64   `json:"syscall_rate"`
	Threads     int       `json:"threads"`
}

// ProcessScore is a rogue: a record that passed selection, with its
// composite score and the categories that flagged it.
type ProcessScore struct {
	ProcessRecord
	Score      int        `json:"score"`
	Categories []Category `json:"categories"`
}

// HasCategory reports whether c is among the selection categories.
func (p ProcessScore) HasCategory(c Category) bool {
	for _, have := range p.Categories {
		if have == c {
			return true
		}
	}
	return false
}

// Clone returns an independent copy (Categories slice included).
func (p ProcessScore) Clone() ProcessScore {
	out := p
	out.Categories = append([]Category(nil), p.Categories...)
	return out
}

// CloneScores deep-copies a rogue list.
func CloneScores(in []ProcessScore) []ProcessScore {
	if in == nil {
		return nil
	}
	out := make([]ProcessScore, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}
