package engine

import (
	"testing"
	"time"
)

type fakeWaker struct {
	wake time.Time
	ok   bool
}

func (f fakeWaker) LastWake() (time.Time, bool) { return f.wake, f.ok }

func TestPauseDetectorCheck(t *testing.T) {
	d := NewPauseDetector(3.0, 0, nil)
	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
		want     bool
	}{
		{"on schedule", time.Second, time.Second, false},
		{"double", 2 * time.Second, time.Second, false},
		{"exactly at ratio", 3 * time.Second, time.Second, false},
		{"past ratio", 3500 * time.Millisecond, time.Second, true},
		{"huge gap", time.Minute, time.Second, true},
		{"zero expected", 10 * time.Second, 0, false},
	}
	for _, tt := range tests {
		if got := d.Check(tt.actual, tt.expected); got != tt.want {
			t.Errorf("%s: Check(%s, %s) = %v, want %v",
				tt.name, tt.actual, tt.expected, got, tt.want)
		}
	}
}

func TestPauseDetectorEvaluate(t *testing.T) {
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	gap := 10 * time.Second
	interval := time.Second
	slack := 60 * time.Second

	tests := []struct {
		name  string
		sleep SleepWaker
		want  PauseVerdict
	}{
		{"no wake source", nil, VerdictPause},
		{"no wake known", fakeWaker{}, VerdictPause},
		{"wake inside gap", fakeWaker{wake: now.Add(-5 * time.Second), ok: true}, VerdictSleepWake},
		{"wake within slack before gap", fakeWaker{wake: now.Add(-gap - 30*time.Second), ok: true}, VerdictSleepWake},
		{"wake long before gap", fakeWaker{wake: now.Add(-time.Hour), ok: true}, VerdictPause},
		{"wake in the future", fakeWaker{wake: now.Add(time.Minute), ok: true}, VerdictPause},
	}
	for _, tt := range tests {
		d := NewPauseDetector(3.0, slack, tt.sleep)
		if got := d.Evaluate(now, gap, interval); got != tt.want {
			t.Errorf("%s: verdict = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPauseDetectorNormalGapNeverConsultsWake(t *testing.T) {
	// A wake inside the window must not turn a normal gap into anything.
	now := time.Now()
	d := NewPauseDetector(3.0, time.Minute, fakeWaker{wake: now, ok: true})
	if got := d.Evaluate(now, time.Second, time.Second); got != VerdictNormal {
		t.Errorf("verdict = %v, want normal", got)
	}
}
