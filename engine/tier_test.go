package engine

import (
	"testing"
	"time"

	"github.com/hluisi/pausemon/model"
)

var tierBase = time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return tierBase.Add(time.Duration(sec) * time.Second)
}

func rogueList(score int) []model.ProcessScore {
	return []model.ProcessScore{{
		ProcessRecord: model.ProcessRecord{PID: 42, Command: "offender"},
		Score:         score,
		Categories:    []model.Category{model.CategoryCPU},
	}}
}

// Drives the canonical escalation arc with no dwell: each phase fires
// exactly one action.
func TestTierMachineFullCycle(t *testing.T) {
	m := NewTierMachine(35, 65, 0)

	steps := []struct {
		score    int
		wantKind ActionKind // 0 means no action
		wantTier model.Tier
	}{
		{10, 0, model.TierNormal},
		{40, ActionEnteredTier2, model.TierElevated},
		{70, ActionEnteredTier3, model.TierCritical},
		{40, ActionExitedTier3, model.TierElevated},
		{20, ActionExitedTier2, model.TierNormal},
	}
	for i, st := range steps {
		act, fired := m.Update(at(i), st.score, rogueList(st.score))
		if st.wantKind == 0 {
			if fired {
				t.Errorf("step %d (score %d): unexpected action %s", i, st.score, act.Kind)
			}
		} else if !fired || act.Kind != st.wantKind {
			t.Errorf("step %d (score %d): action = %v fired=%v, want %s",
				i, st.score, act.Kind, fired, st.wantKind)
		}
		if m.Tier() != st.wantTier {
			t.Errorf("step %d: tier = %s, want %s", i, m.Tier(), st.wantTier)
		}
	}
}

// A score jumping straight past the critical threshold still lands in
// Elevated first.
func TestTierMachineSingleStepEscalation(t *testing.T) {
	m := NewTierMachine(35, 65, 0)

	act, fired := m.Update(at(0), 90, rogueList(90))
	if !fired || act.Kind != ActionEnteredTier2 {
		t.Fatalf("from Normal with score 90: got %v, want entered-tier2", act.Kind)
	}
	if m.Tier() != model.TierElevated {
		t.Fatalf("tier = %s, want elevated", m.Tier())
	}

	act, fired = m.Update(at(1), 90, rogueList(90))
	if !fired || act.Kind != ActionEnteredTier3 {
		t.Fatalf("second tick at 90: got %v, want entered-tier3", act.Kind)
	}
}

func TestTierMachinePeakTracking(t *testing.T) {
	m := NewTierMachine(35, 65, 0)

	m.Update(at(0), 40, rogueList(40))

	act, fired := m.Update(at(1), 55, rogueList(55))
	if !fired || act.Kind != ActionTier2NewPeak || act.Score != 55 {
		t.Fatalf("new peak: got %v score=%d fired=%v", act.Kind, act.Score, fired)
	}

	// Same or lower score is not a new peak.
	if _, fired := m.Update(at(2), 55, rogueList(55)); fired {
		t.Error("equal score fired a peak action")
	}
	if _, fired := m.Update(at(3), 45, rogueList(45)); fired {
		t.Error("lower score fired a peak action")
	}

	act, fired = m.Update(at(4), 10, rogueList(10))
	if !fired || act.Kind != ActionExitedTier2 {
		t.Fatalf("exit: got %v fired=%v", act.Kind, fired)
	}
	if act.Peak != 55 {
		t.Errorf("exit peak = %d, want 55", act.Peak)
	}
	if len(act.PeakRogues) != 1 || act.PeakRogues[0].Score != 55 {
		t.Errorf("exit rogues = %v, want snapshot from the peak tick", act.PeakRogues)
	}
	if act.Elapsed != 4*time.Second {
		t.Errorf("elapsed = %s, want 4s", act.Elapsed)
	}
}

// De-escalation only commits after the score has stayed below the
// boundary for the dwell period; a dip that recovers resets the clock.
func TestTierMachineDwell(t *testing.T) {
	m := NewTierMachine(35, 65, 5*time.Second)

	m.Update(at(0), 40, rogueList(40))

	// Dip below, recover, dip again: the first dip must not count.
	if _, fired := m.Update(at(1), 10, nil); fired {
		t.Error("dip fired an exit before dwell elapsed")
	}
	if _, fired := m.Update(at(3), 40, rogueList(40)); fired {
		t.Error("recovery fired an action")
	}
	if _, fired := m.Update(at(4), 10, nil); fired {
		t.Error("second dip fired immediately")
	}
	if _, fired := m.Update(at(7), 10, nil); fired {
		t.Error("exit fired 3s into a 5s dwell")
	}

	act, fired := m.Update(at(9), 10, nil)
	if !fired || act.Kind != ActionExitedTier2 {
		t.Fatalf("after dwell: got %v fired=%v, want exited-tier2", act.Kind, fired)
	}
	if m.Tier() != model.TierNormal {
		t.Errorf("tier = %s, want normal", m.Tier())
	}
}

// Critical's peak keeps updating silently; the exit action carries it.
func TestTierMachineCriticalPeakOnExit(t *testing.T) {
	m := NewTierMachine(35, 65, 0)

	m.Update(at(0), 40, rogueList(40))
	m.Update(at(1), 70, rogueList(70))
	if _, fired := m.Update(at(2), 85, rogueList(85)); fired {
		t.Error("critical peak fired a per-tick action")
	}

	act, fired := m.Update(at(3), 50, rogueList(50))
	if !fired || act.Kind != ActionExitedTier3 {
		t.Fatalf("got %v fired=%v, want exited-tier3", act.Kind, fired)
	}
	if act.Peak != 85 {
		t.Errorf("peak = %d, want 85", act.Peak)
	}
	if m.Tier() != model.TierElevated {
		t.Errorf("tier = %s, want elevated after leaving critical", m.Tier())
	}
}

// The peak snapshot is a copy; mutating the caller's slice afterwards
// must not change what the exit action reports.
func TestTierMachineSnapshotsRogues(t *testing.T) {
	m := NewTierMachine(35, 65, 0)

	rogues := rogueList(50)
	m.Update(at(0), 50, rogues)
	rogues[0].Command = "mutated"

	act, fired := m.Update(at(1), 0, nil)
	if !fired {
		t.Fatal("expected exit action")
	}
	if act.PeakRogues[0].Command != "offender" {
		t.Errorf("peak rogues observed caller mutation: %q", act.PeakRogues[0].Command)
	}
}
