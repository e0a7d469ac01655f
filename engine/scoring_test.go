package engine

import (
	"testing"

	"github.com/hluisi/pausemon/collector"
	"github.com/hluisi/pausemon/config"
	"github.com/hluisi/pausemon/model"
)

func testWeights() config.Weights {
	return config.Weights{
		CPU: 25, State: 20, Pageins: 15, Memory: 15,
		Compressed: 10, CSW: 10, Syscalls: 5, Threads: 0,
	}
}

func testSaturation() config.Saturation {
	return config.Saturation{
		PageinRate:      100,
		MemoryBytes:     4 << 30,
		CompressedBytes: 1 << 30,
		CSWRate:         10000,
		SyscallRate:     20000,
		Threads:         500,
	}
}

func candidate(r model.ProcessRecord) collector.Candidate {
	return collector.Candidate{Record: r, Categories: []model.Category{model.CategoryCPU}}
}

func TestScoreIdleProcessIsZero(t *testing.T) {
	s := NewScorer(testWeights(), testSaturation())
	got := s.Score(candidate(model.ProcessRecord{PID: 1, State: model.StateSleeping}))
	if got.Score != 0 {
		t.Errorf("idle process score = %d, want 0", got.Score)
	}
}

func TestScoreSaturatedEverythingClampsTo100(t *testing.T) {
	s := NewScorer(testWeights(), testSaturation())
	got := s.Score(candidate(model.ProcessRecord{
		PID: 1, CPUPct: 100, State: model.StateStuck,
		RSS: 64 << 30, Compressed: 8 << 30,
		PageinRate: 1e6, CSWRate: 1e6, SyscallRate: 1e6, Threads: 5000,
	}))
	if got.Score != 100 {
		t.Errorf("fully saturated score = %d, want 100", got.Score)
	}
}

func TestScoreSingleFactors(t *testing.T) {
	s := NewScorer(testWeights(), testSaturation())
	tests := []struct {
		name string
		rec  model.ProcessRecord
		want int
	}{
		{"cpu pegged", model.ProcessRecord{CPUPct: 100}, 25},
		{"cpu half", model.ProcessRecord{CPUPct: 50}, 13},
		{"stuck", model.ProcessRecord{State: model.StateStuck}, 20},
		{"zombie", model.ProcessRecord{State: model.StateZombie}, 16},
		{"halted", model.ProcessRecord{State: model.StateHalted}, 12},
		{"stopped", model.ProcessRecord{State: model.StateStopped}, 8},
		{"memory half", model.ProcessRecord{RSS: 2 << 30}, 8},
		{"pageins over ceiling", model.ProcessRecord{PageinRate: 500}, 15},
		{"csw at ceiling", model.ProcessRecord{CSWRate: 10000}, 10},
	}
	for _, tt := range tests {
		got := s.Score(candidate(tt.rec))
		if got.Score != tt.want {
			t.Errorf("%s: score = %d, want %d", tt.name, got.Score, tt.want)
		}
	}
}

func TestScoreZeroWeightIgnoresFactor(t *testing.T) {
	s := NewScorer(testWeights(), testSaturation())
	got := s.Score(candidate(model.ProcessRecord{Threads: 5000}))
	if got.Score != 0 {
		t.Errorf("zero-weight factor contributed: score = %d", got.Score)
	}
}

func TestScoreAllPreservesOrder(t *testing.T) {
	s := NewScorer(testWeights(), testSaturation())
	cands := []collector.Candidate{
		candidate(model.ProcessRecord{PID: 3, CPUPct: 10}),
		candidate(model.ProcessRecord{PID: 1, CPUPct: 90}),
		candidate(model.ProcessRecord{PID: 2, CPUPct: 50}),
	}
	got := s.ScoreAll(cands)
	if len(got) != 3 {
		t.Fatalf("got %d scores, want 3", len(got))
	}
	for i, want := range []int{3, 1, 2} {
		if got[i].PID != want {
			t.Errorf("position %d: pid = %d, want %d (selection order preserved)", i, got[i].PID, want)
		}
	}
	if s.ScoreAll(nil) != nil {
		t.Error("ScoreAll(nil) should be nil")
	}
}
