package collector

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	wakeProbeTTL     = 30 * time.Second
	wakeProbeTimeout = 3 * time.Second
	pmsetTimeLayout  = "2006-01-02 15:04:05 -0700"
)

// WakeProbe reports the machine's most recent wake from sleep by parsing
// the power-management log. Results are cached briefly; the probe runs a
// subprocess and is not on the per-tick hot path.
type WakeProbe struct {
	mu       sync.Mutex
	cachedAt time.Time
	lastWake time.Time
	haveWake bool

	// runner is swapped in tests.
	runner func(name string, args ...string) (string, error)
}

// NewWakeProbe creates a pmset-backed probe.
func NewWakeProbe() *WakeProbe {
	return &WakeProbe{runner: runCmd}
}

// LastWake returns the most recent wake time, if one is known.
func (p *WakeProbe) LastWake() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.cachedAt) < wakeProbeTTL {
		return p.lastWake, p.haveWake
	}
	p.cachedAt = time.Now()

	out, err := p.runner("pmset", "-g", "log")
	if err != nil {
		// Keep whatever we knew; pmset may be unavailable.
		return p.lastWake, p.haveWake
	}
	if wake, ok := parseLastWake(out); ok {
		p.lastWake = wake
		p.haveWake = true
	}
	return p.lastWake, p.haveWake
}

// parseLastWake scans pmset log output for the latest wake entry. Lines
// look like:
//
//	2026-08-30 09:15:23 -0700 Wake       Wake from Deep Idle [CDNVA] ...
//	2026-08-30 07:02:11 -0700 DarkWake   DarkWake from Normal Sleep ...
func parseLastWake(out string) (time.Time, bool) {
	var last time.Time
	found := false
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "Wake from") && !strings.Contains(line, "DarkWake from") {
			continue
		}
		if len(line) < len(pmsetTimeLayout) {
			continue
		}
		ts, err := time.Parse(pmsetTimeLayout, line[:len(pmsetTimeLayout)])
		if err != nil {
			continue
		}
		if ts.After(last) {
			last = ts
			found = true
		}
	}
	return last, found
}

// runCmd executes a command with a short timeout and returns stdout.
func runCmd(name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), wakeProbeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return string(out), err
}
