package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"os/exec"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/hluisi/pausemon/model"
)

const (
	captureCmdTimeout  = 10 * time.Second
	captureSaveTimeout = 15 * time.Second
	maxCulprits        = 5
)

// captureCommands is the fixed diagnostic set run on capture. spindump
// needs root and simply fails without it; the bundle keeps whatever
// succeeded.
var captureCommands = [][]string{
	{"/usr/bin/vm_stat"},
	{"/bin/ps", "axo", "pid,state,%cpu,%mem,wq,comm"},
	{"/usr/sbin/spindump", "-notarget", "3", "10", "-stdout"},
}

// CaptureStore persists forensic bundles keyed by event id.
type CaptureStore interface {
	SaveCapture(ctx context.Context, eventID string, blob []byte) error
}

// captureBundle is the stored blob: the frozen ring contents plus the
// output of each diagnostic command.
type captureBundle struct {
	CapturedAt time.Time            `json:"captured_at"`
	Culprits   []string             `json:"culprits,omitempty"`
	Buffer     model.BufferContents `json:"buffer"`
	Outputs    map[string]string    `json:"outputs,omitempty"`
	Errors     map[string]string    `json:"errors,omitempty"`
}

// Capturer runs deeper OS-level diagnostics when a pause is confirmed or
// the machine goes critical. Captures are fire-and-forget, throttled, and
// never affect daemon liveness.
type Capturer struct {
	store   CaptureStore
	log     *slog.Logger
	limiter *rate.Limiter

	// run is swapped in tests.
	run func(ctx context.Context, argv []string) (string, error)
}

// NewCapturer creates a capturer allowing a small burst, then one capture
// per minute.
func NewCapturer(store CaptureStore, log *slog.Logger) *Capturer {
	return &Capturer{
		store:   store,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(time.Minute), 2),
		run:     runCapture,
	}
}

// Culprits derives likely-culprit process names from the highest-scoring
// rogues in the frozen buffer, deduplicated, best first.
func Culprits(contents model.BufferContents) []string {
	type scored struct {
		name  string
		score int
	}
	best := map[string]int{}
	for _, rs := range contents.Samples {
		for _, r := range rs.Sample.Rogues {
			if r.Score > best[r.Command] {
				best[r.Command] = r.Score
			}
		}
	}
	ranked := make([]scored, 0, len(best))
	for name, sc := range best {
		ranked = append(ranked, scored{name, sc})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].name < ranked[j].name
	})
	if len(ranked) > maxCulprits {
		ranked = ranked[:maxCulprits]
	}
	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = s.name
	}
	return out
}

// CaptureAsync schedules a capture for the given event. It returns
// immediately; failure is logged, never propagated.
func (c *Capturer) CaptureAsync(eventID string, contents model.BufferContents, culprits []string) {
	if !c.limiter.Allow() {
		c.log.Debug("forensic capture throttled", "event_id", eventID)
		return
	}
	go c.capture(eventID, contents, culprits)
}

func (c *Capturer) capture(eventID string, contents model.BufferContents, culprits []string) {
	bundle := captureBundle{
		CapturedAt: time.Now(),
		Culprits:   culprits,
		Buffer:     contents,
		Outputs:    map[string]string{},
		Errors:     map[string]string{},
	}
	for _, argv := range captureCommands {
		ctx, cancel := context.WithTimeout(context.Background(), captureCmdTimeout)
		out, err := c.run(ctx, argv)
		cancel()
		if err != nil {
			bundle.Errors[argv[0]] = err.Error()
			continue
		}
		bundle.Outputs[argv[0]] = out
	}

	blob, err := json.Marshal(bundle)
	if err != nil {
		c.log.Error("marshal forensic bundle", "event_id", eventID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), captureSaveTimeout)
	defer cancel()
	if err := c.store.SaveCapture(ctx, eventID, blob); err != nil {
		c.log.Error("save forensic bundle", "event_id", eventID, "error", err)
		return
	}
	c.log.Info("forensic capture stored", "event_id", eventID,
		"culprits", culprits, "bytes", len(blob))
}

func runCapture(ctx context.Context, argv []string) (string, error) {
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).Output()
	return string(out), err
}
