package engine

import "time"

// SleepWaker reports the machine's most recent wake from sleep. The pause
// detector uses it to tell genuine OS stalls apart from sleep/wake cycles.
type SleepWaker interface {
	LastWake() (time.Time, bool)
}

// PauseVerdict classifies an inter-tick gap.
type PauseVerdict int

const (
	// VerdictNormal: the loop ran close enough to schedule.
	VerdictNormal PauseVerdict = iota
	// VerdictPause: the loop was starved; the OS was unresponsive.
	VerdictPause
	// VerdictSleepWake: the gap is covered by a sleep/wake cycle.
	VerdictSleepWake
)

// PauseDetector detects when the sampling loop itself could not run on
// schedule. A gap is suspicious when actual/expected exceeds the ratio;
// it is a confirmed pause only if no wake from sleep falls inside the
// gap window (plus slack).
type PauseDetector struct {
	ratio float64
	slack time.Duration
	sleep SleepWaker
}

// NewPauseDetector creates a detector. sleep may be nil, in which case no
// suppression happens.
func NewPauseDetector(ratio float64, slack time.Duration, sleep SleepWaker) *PauseDetector {
	return &PauseDetector{ratio: ratio, slack: slack, sleep: sleep}
}

// Check reports whether the raw timing alone looks like a pause.
func (d *PauseDetector) Check(actual, expected time.Duration) bool {
	if expected <= 0 {
		return false
	}
	return float64(actual)/float64(expected) > d.ratio
}

// Evaluate classifies the gap ending at now. Timing anomalies that a
// recent wake explains are reclassified as sleep/wake, not pauses.
func (d *PauseDetector) Evaluate(now time.Time, actual, expected time.Duration) PauseVerdict {
	if !d.Check(actual, expected) {
		return VerdictNormal
	}
	if d.sleep != nil {
		if wake, ok := d.sleep.LastWake(); ok {
			windowStart := now.Add(-actual - d.slack)
			if wake.After(windowStart) && !wake.After(now) {
				return VerdictSleepWake
			}
		}
	}
	return VerdictPause
}
