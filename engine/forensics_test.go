package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/hluisi/pausemon/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bufferWith(scores map[string]int) model.BufferContents {
	var rogues []model.ProcessScore
	for name, sc := range scores {
		rogues = append(rogues, model.ProcessScore{
			ProcessRecord: model.ProcessRecord{PID: 1, Command: name},
			Score:         sc,
		})
	}
	s := model.NewSample(time.Now(), time.Millisecond, 100, rogues)
	return model.BufferContents{Samples: []model.RingSample{{Timestamp: s.Timestamp, Sample: s}}}
}

func TestCulpritsRankedAndDeduped(t *testing.T) {
	contents := bufferWith(map[string]int{
		"chrome": 80, "mds_stores": 60, "kernel_task": 95,
	})
	// A second sample with a lower chrome score must not demote it.
	second := bufferWith(map[string]int{"chrome": 40})
	contents.Samples = append(contents.Samples, second.Samples...)

	got := Culprits(contents)
	want := []string{"kernel_task", "chrome", "mds_stores"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("culprits = %v, want %v", got, want)
	}
}

func TestCulpritsCapped(t *testing.T) {
	contents := bufferWith(map[string]int{
		"a": 10, "b": 20, "c": 30, "d": 40, "e": 50, "f": 60, "g": 70,
	})
	if got := Culprits(contents); len(got) != maxCulprits {
		t.Errorf("got %d culprits, want cap of %d", len(got), maxCulprits)
	}
}

func TestCulpritsEmptyBuffer(t *testing.T) {
	if got := Culprits(model.BufferContents{}); len(got) != 0 {
		t.Errorf("culprits of empty buffer = %v, want none", got)
	}
}

type memCaptureStore struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func (m *memCaptureStore) SaveCapture(_ context.Context, eventID string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = map[string][]byte{}
	}
	m.saved[eventID] = blob
	return nil
}

func (m *memCaptureStore) get(eventID string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.saved[eventID]
	return b, ok
}

func TestCaptureBundleKeepsPartialResults(t *testing.T) {
	st := &memCaptureStore{}
	c := NewCapturer(st, discardLogger())
	c.run = func(ctx context.Context, argv []string) (string, error) {
		if argv[0] == "/usr/sbin/spindump" {
			return "", errors.New("must be run as root")
		}
		return "output of " + argv[0], nil
	}

	contents := bufferWith(map[string]int{"chrome": 80})
	c.capture("evt-1", contents, []string{"chrome"})

	blob, ok := st.get("evt-1")
	if !ok {
		t.Fatal("no bundle saved")
	}
	var bundle captureBundle
	if err := json.Unmarshal(blob, &bundle); err != nil {
		t.Fatalf("bundle is not valid JSON: %v", err)
	}
	if len(bundle.Outputs) != 2 {
		t.Errorf("got %d outputs, want 2 successful commands", len(bundle.Outputs))
	}
	if _, ok := bundle.Errors["/usr/sbin/spindump"]; !ok {
		t.Error("spindump failure missing from the bundle")
	}
	if len(bundle.Buffer.Samples) != 1 {
		t.Error("frozen buffer missing from the bundle")
	}
	if len(bundle.Culprits) != 1 || bundle.Culprits[0] != "chrome" {
		t.Errorf("culprits = %v, want [chrome]", bundle.Culprits)
	}
}

func TestCaptureAsyncThrottles(t *testing.T) {
	st := &memCaptureStore{}
	c := NewCapturer(st, discardLogger())
	c.run = func(ctx context.Context, argv []string) (string, error) { return "", nil }

	contents := bufferWith(map[string]int{"x": 50})
	// Burst of 2 allowed, then throttled for a minute.
	for i := 0; i < 5; i++ {
		c.CaptureAsync("evt", contents, nil)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := st.get("evt"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no capture stored within deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if c.limiter.Allow() {
		t.Error("limiter still had tokens after the burst")
	}
}
