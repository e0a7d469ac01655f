package collector

import (
	"sort"

	"github.com/hluisi/pausemon/config"
	"github.com/hluisi/pausemon/model"
)

// Candidate is a record selected by the rogue policy, with the categories
// that flagged it, in the order they fired.
type Candidate struct {
	Record     model.ProcessRecord
	Categories []model.Category
}

// Selector applies the rogue-selection policy: per-category top-N above a
// threshold, plus an always-flag scheduling-state set. A process selected
// by several categories appears once with the union of its categories.
type Selector struct {
	cats       []config.CategorySpec
	alwaysFlag map[model.ProcState]bool
}

// NewSelector builds a selector from validated configuration.
func NewSelector(cats []config.CategorySpec, states []string) *Selector {
	flag := make(map[model.ProcState]bool, len(states))
	for _, st := range states {
		flag[model.ParseState(st)] = true
	}
	return &Selector{cats: cats, alwaysFlag: flag}
}

// metricValue reads the category's metric from a record.
func metricValue(name model.Category, r model.ProcessRecord) float64 {
	switch name {
	case model.CategoryCPU:
		return r.CPUPct
	case model.CategoryMem:
		return float64(r.RSS)
	case model.CategoryCompressed:
		return float64(r.Compressed)
	case model.CategoryPageins:
		return r.PageinRate
	case model.CategoryCSW:
		return r.CSWRate
	case model.CategorySyscalls:
		return r.SyscallRate
	case model.CategoryThreads:
		return float64(r.Threads)
	}
	return 0
}

// Select returns the rogues for one tick. Order is selection order: the
// category descriptors in configured order, then the always-flag pass.
func (s *Selector) Select(records []model.ProcessRecord) []Candidate {
	var out []Candidate
	byPID := map[int]int{} // pid -> index in out

	add := func(r model.ProcessRecord, cat model.Category) {
		if i, ok := byPID[r.PID]; ok {
			c := &out[i]
			for _, have := range c.Categories {
				if have == cat {
					return
				}
			}
			c.Categories = append(c.Categories, cat)
			return
		}
		byPID[r.PID] = len(out)
		out = append(out, Candidate{Record: r, Categories: []model.Category{cat}})
	}

	for _, spec := range s.cats {
		if !spec.Enabled {
			continue
		}
		cat := model.Category(spec.Name)

		over := make([]model.ProcessRecord, 0, spec.TopN)
		for _, r := range records {
			if metricValue(cat, r) > spec.Threshold {
				over = append(over, r)
			}
		}
		sort.SliceStable(over, func(i, j int) bool {
			return metricValue(cat, over[i]) > metricValue(cat, over[j])
		})
		if len(over) > spec.TopN {
			over = over[:spec.TopN]
		}
		for _, r := range over {
			add(r, cat)
		}
	}

	// Always-flag pass: scheduling states that matter regardless of load.
	for _, r := range records {
		if s.alwaysFlag[r.State] {
			add(r, model.CategoryState)
		}
	}
	return out
}
