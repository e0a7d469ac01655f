package engine

import (
	"math"

	"github.com/hluisi/pausemon/collector"
	"github.com/hluisi/pausemon/config"
	"github.com/hluisi/pausemon/model"
)

// stateOrdinal maps scheduling states onto fixed stress ordinals.
func stateOrdinal(st model.ProcState) float64 {
	switch st {
	case model.StateStuck:
		return 1.0
	case model.StateZombie:
		return 0.8
	case model.StateHalted:
		return 0.6
	case model.StateStopped:
		return 0.4
	}
	return 0
}

// satLinear normalizes v against a saturation ceiling into [0,1].
func satLinear(v, ceiling float64) float64 {
	if ceiling <= 0 || v <= 0 {
		return 0
	}
	if v >= ceiling {
		return 1
	}
	return v / ceiling
}

// Scorer turns selected records into composite 0–100 scores. No single
// metric is a reliable stress indicator on a multi-core machine, so each
// of eight factors saturates independently and contributes its configured
// integer weight. The sum is clamped; weights need not total 100.
type Scorer struct {
	w   config.Weights
	sat config.Saturation
}

// NewScorer builds a scorer from validated configuration.
func NewScorer(w config.Weights, sat config.Saturation) *Scorer {
	return &Scorer{w: w, sat: sat}
}

// Score computes the composite score for one rogue candidate.
func (s *Scorer) Score(c collector.Candidate) model.ProcessScore {
	r := c.Record
	sum := float64(s.w.CPU)*satLinear(r.CPUPct, 100) +
		float64(s.w.State)*stateOrdinal(r.State) +
		float64(s.w.Pageins)*satLinear(r.PageinRate, s.sat.PageinRate) +
		float64(s.w.Memory)*satLinear(float64(r.RSS), s.sat.MemoryBytes) +
		float64(s.w.Compressed)*satLinear(float64(r.Compressed), s.sat.CompressedBytes) +
		float64(s.w.CSW)*satLinear(r.CSWRate, s.sat.CSWRate) +
		float64(s.w.Syscalls)*satLinear(r.SyscallRate, s.sat.SyscallRate) +
		float64(s.w.Threads)*satLinear(float64(r.Threads), s.sat.Threads)

	score := int(math.Round(sum))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return model.ProcessScore{
		ProcessRecord: r,
		Score:         score,
		Categories:    c.Categories,
	}
}

// ScoreAll scores candidates preserving selection order.
func (s *Scorer) ScoreAll(cands []collector.Candidate) []model.ProcessScore {
	if len(cands) == 0 {
		return nil
	}
	out := make([]model.ProcessScore, len(cands))
	for i, c := range cands {
		out[i] = s.Score(c)
	}
	return out
}
