package model

import (
	"encoding/json"
	"testing"
	"time"
)

func testSample() Sample {
	return NewSample(
		time.Date(2026, 8, 30, 9, 15, 23, 0, time.UTC),
		12*time.Millisecond,
		423,
		[]ProcessScore{{
			ProcessRecord: ProcessRecord{
				PID: 4821, Command: "Google Chrome Helper",
				CPUPct: 97.3, State: StateRunning, RSS: 1536 << 20,
				PageinRate: 42.5, CSWRate: 1800, Threads: 31,
			},
			Score:      72,
			Categories: []Category{CategoryCPU, CategoryMem},
		}},
	)
}

func TestTickMsgRoundTrip(t *testing.T) {
	sample := testSample()
	line, err := json.Marshal(NewTickMsg(sample, TierElevated))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	parsed, err := ParseMessage(line)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	tick, ok := parsed.(*TickMsg)
	if !ok {
		t.Fatalf("parsed as %T, want *TickMsg", parsed)
	}
	if tick.Tier != TierElevated {
		t.Errorf("tier = %s, want elevated", tick.Tier)
	}

	got := tick.Sample()
	if !got.Timestamp.Equal(sample.Timestamp) {
		t.Errorf("timestamp = %s, want %s", got.Timestamp, sample.Timestamp)
	}
	if got.MaxScore != 72 || got.TotalProcs != 423 {
		t.Errorf("max/total = %d/%d, want 72/423", got.MaxScore, got.TotalProcs)
	}
	if len(got.Rogues) != 1 || got.Rogues[0].Command != "Google Chrome Helper" {
		t.Errorf("rogues did not survive the round trip: %+v", got.Rogues)
	}
	if !got.Rogues[0].HasCategory(CategoryMem) {
		t.Error("rogue categories lost")
	}
}

func TestBootstrapMsgRoundTrip(t *testing.T) {
	sample := testSample()
	msg := BootstrapMsg{
		Type:         MsgTypeBootstrap,
		Samples:      []RingSample{{Timestamp: sample.Timestamp, Sample: sample, Tier: TierNormal}},
		Tier:         TierNormal,
		MaxScore:     72,
		TotalSamples: 30,
	}
	line, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	parsed, err := ParseMessage(line)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	boot, ok := parsed.(*BootstrapMsg)
	if !ok {
		t.Fatalf("parsed as %T, want *BootstrapMsg", parsed)
	}
	if boot.TotalSamples != 30 || len(boot.Samples) != 1 {
		t.Errorf("bootstrap = %d samples / total %d, want 1 / 30",
			len(boot.Samples), boot.TotalSamples)
	}
}

func TestParseMessageRejectsUnknownType(t *testing.T) {
	if _, err := ParseMessage([]byte(`{"type":"mystery"}`)); err == nil {
		t.Error("expected error for unknown message type")
	}
	if _, err := ParseMessage([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestNewSampleDerivesMaxScore(t *testing.T) {
	s := NewSample(time.Now(), 0, 10, []ProcessScore{{Score: 30}, {Score: 80}, {Score: 55}})
	if s.MaxScore != 80 {
		t.Errorf("max score = %d, want 80", s.MaxScore)
	}
	empty := NewSample(time.Now(), 0, 10, nil)
	if empty.MaxScore != 0 {
		t.Errorf("empty sample max = %d, want 0", empty.MaxScore)
	}
}

func TestCategorySummary(t *testing.T) {
	e := Event{Rogues: []ProcessScore{
		{Categories: []Category{CategoryMem, CategoryCPU}},
		{Categories: []Category{CategoryCPU, CategoryState}},
	}}
	if got := e.CategorySummary(); got != "cpu,mem,state" {
		t.Errorf("summary = %q, want sorted distinct categories", got)
	}
	if got := (Event{}).CategorySummary(); got != "" {
		t.Errorf("empty event summary = %q, want empty", got)
	}
}
