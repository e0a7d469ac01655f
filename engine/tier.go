package engine

import (
	"time"

	"github.com/hluisi/pausemon/model"
)

// ActionKind is the closed set of escalation signals the tier machine can
// emit. Call sites switch over it exhaustively; there is no string
// comparison anywhere in the escalation path.
type ActionKind int

const (
	ActionEnteredTier2 ActionKind = iota + 1
	ActionTier2NewPeak
	ActionExitedTier2
	ActionEnteredTier3
	ActionExitedTier3
)

func (k ActionKind) String() string {
	switch k {
	case ActionEnteredTier2:
		return "entered-tier2"
	case ActionTier2NewPeak:
		return "tier2-new-peak"
	case ActionExitedTier2:
		return "exited-tier2"
	case ActionEnteredTier3:
		return "entered-tier3"
	case ActionExitedTier3:
		return "exited-tier3"
	}
	return "unknown"
}

// Action is one escalation/de-escalation signal. Exits carry the elapsed
// dwell in the departed tier and the recorded peak with its rogue
// snapshot; entries carry the entering score.
type Action struct {
	Kind       ActionKind
	Score      int
	Peak       int
	PeakRogues []model.ProcessScore
	Elapsed    time.Duration
}

// TierMachine drives the Normal/Elevated/Critical escalation state with
// hysteresis. Escalation is instantaneous but single-step: Critical is
// only reachable from Elevated. De-escalation requires the score to stay
// below the departed tier's lower boundary for the dwell period, so a
// brief dip never closes an episode. The machine is the single owner of
// tier-entry timestamps.
type TierMachine struct {
	elevated int
	critical int
	dwell    time.Duration

	tier       model.Tier
	enteredAt  time.Time
	peak       int
	peakRogues []model.ProcessScore
	peakCheck  time.Time

	belowSince time.Time // zero while the score is at or above the lower bound
}

// NewTierMachine creates a machine starting in Normal.
func NewTierMachine(elevated, critical int, dwell time.Duration) *TierMachine {
	return &TierMachine{
		elevated: elevated,
		critical: critical,
		dwell:    dwell,
		tier:     model.TierNormal,
	}
}

// Tier returns the current escalation level.
func (m *TierMachine) Tier() model.Tier { return m.tier }

// Peak returns the peak score recorded in the current tier.
func (m *TierMachine) Peak() int { return m.peak }

// enter moves to a tier and resets peak tracking to the entering sample.
func (m *TierMachine) enter(tier model.Tier, now time.Time, score int, rogues []model.ProcessScore) {
	m.tier = tier
	m.enteredAt = now
	m.peak = score
	m.peakRogues = model.CloneScores(rogues)
	m.peakCheck = now
	m.belowSince = time.Time{}
}

// Update consumes one tick's max score and returns at most one action.
// now must be monotonic across calls; tests drive it directly.
func (m *TierMachine) Update(now time.Time, score int, rogues []model.ProcessScore) (Action, bool) {
	switch m.tier {
	case model.TierNormal:
		if score >= m.elevated {
			m.enter(model.TierElevated, now, score, rogues)
			return Action{Kind: ActionEnteredTier2, Score: score, Peak: score,
				PeakRogues: model.CloneScores(rogues)}, true
		}
		return Action{}, false

	case model.TierElevated:
		if score >= m.critical {
			m.enter(model.TierCritical, now, score, rogues)
			return Action{Kind: ActionEnteredTier3, Score: score, Peak: score,
				PeakRogues: model.CloneScores(rogues)}, true
		}
		if score >= m.elevated {
			m.belowSince = time.Time{}
			m.peakCheck = now
			if score > m.peak {
				m.peak = score
				m.peakRogues = model.CloneScores(rogues)
				return Action{Kind: ActionTier2NewPeak, Score: score, Peak: score,
					PeakRogues: model.CloneScores(rogues)}, true
			}
			return Action{}, false
		}
		return m.deescalate(model.TierNormal, ActionExitedTier2, now, score, rogues)

	case model.TierCritical:
		if score >= m.critical {
			m.belowSince = time.Time{}
			m.peakCheck = now
			if score > m.peak {
				// Peak keeps tracking in Critical; the exit action
				// carries it, no per-tick signal fires.
				m.peak = score
				m.peakRogues = model.CloneScores(rogues)
			}
			return Action{}, false
		}
		return m.deescalate(model.TierElevated, ActionExitedTier3, now, score, rogues)
	}
	return Action{}, false
}

// deescalate applies dwell hysteresis below the current tier's lower
// boundary and commits the downward transition once it has held.
func (m *TierMachine) deescalate(to model.Tier, kind ActionKind, now time.Time, score int, rogues []model.ProcessScore) (Action, bool) {
	if m.belowSince.IsZero() {
		m.belowSince = now
	}
	if now.Sub(m.belowSince) < m.dwell {
		return Action{}, false
	}
	act := Action{
		Kind:       kind,
		Score:      score,
		Peak:       m.peak,
		PeakRogues: m.peakRogues,
		Elapsed:    now.Sub(m.enteredAt),
	}
	if to == model.TierNormal {
		m.tier = model.TierNormal
		m.enteredAt = now
		m.peak = 0
		m.peakRogues = nil
		m.peakCheck = now
		m.belowSince = time.Time{}
	} else {
		m.enter(to, now, score, rogues)
	}
	return act, true
}
