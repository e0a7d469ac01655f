package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire message types for the streaming socket. Messages are
// newline-delimited JSON; "type" discriminates the two shapes.
const (
	MsgTypeBootstrap = "bootstrap"
	MsgTypeTick      = "tick"
)

// BootstrapMsg is sent once per new connection so a client can render
// state without waiting a full tick.
type BootstrapMsg struct {
	Type         string       `json:"type"`
	Samples      []RingSample `json:"samples"`
	Tier         Tier         `json:"tier"`
	MaxScore     int          `json:"max_score"`
	TotalSamples int          `json:"total_samples"`
}

// TickMsg is the per-tick broadcast.
type TickMsg struct {
	Type            string         `json:"type"`
	Timestamp       time.Time      `json:"ts"`
	Tier            Tier           `json:"tier"`
	CollectDuration time.Duration  `json:"collect_ns"`
	TotalProcs      int            `json:"total_procs"`
	MaxScore        int            `json:"max_score"`
	Rogues          []ProcessScore `json:"rogues,omitempty"`
}

// NewTickMsg flattens a sample and the tier it was observed under.
func NewTickMsg(s Sample, tier Tier) TickMsg {
	return TickMsg{
		Type:            MsgTypeTick,
		Timestamp:       s.Timestamp,
		Tier:            tier,
		CollectDuration: s.CollectDuration,
		TotalProcs:      s.TotalProcs,
		MaxScore:        s.MaxScore,
		Rogues:          s.Rogues,
	}
}

// Sample reconstructs the sample carried by a tick message.
func (m TickMsg) Sample() Sample {
	return Sample{
		Timestamp:       m.Timestamp,
		CollectDuration: m.CollectDuration,
		TotalProcs:      m.TotalProcs,
		MaxScore:        m.MaxScore,
		Rogues:          m.Rogues,
	}
}

// ParseMessage decodes one wire line into *TickMsg or *BootstrapMsg.
func ParseMessage(line []byte) (interface{}, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Type {
	case MsgTypeTick:
		var m TickMsg
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("decode tick: %w", err)
		}
		return &m, nil
	case MsgTypeBootstrap:
		var m BootstrapMsg
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("decode bootstrap: %w", err)
		}
		return &m, nil
	}
	return nil, fmt.Errorf("unknown message type %q", env.Type)
}
