package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hluisi/pausemon/collector"
	"github.com/hluisi/pausemon/config"
	"github.com/hluisi/pausemon/model"
	"github.com/hluisi/pausemon/server"
	"github.com/hluisi/pausemon/store"
)

const (
	persistTimeout = 10 * time.Second
	flushTimeout   = 5 * time.Second
)

// Daemon owns the sampling cadence and wires the pipeline together:
// collect, score, ring-push, pause-check, tier-update, broadcast, react.
// The ring buffer and tier machine are mutated only here; everything else
// sees immutable snapshots or read-only queries.
type Daemon struct {
	cfg config.Config
	log *slog.Logger

	source   *collector.Source
	selector *collector.Selector
	scorer   *Scorer
	ring     *Ring
	pause    *PauseDetector
	tiers    *TierMachine
	srv      *server.Server
	store    *store.Store
	capturer *Capturer

	// curTier mirrors the machine's tier for the server goroutine.
	curTier atomic.Int32

	episodeID string
	lastTick  time.Time
	bg        sync.WaitGroup
}

// New assembles a daemon from validated configuration and an open store.
func New(cfg config.Config, st *store.Store, log *slog.Logger) *Daemon {
	ringCap := int(cfg.RingWindow / cfg.Interval)
	if ringCap < 1 {
		ringCap = 1
	}

	d := &Daemon{
		cfg:      cfg,
		log:      log,
		selector: collector.NewSelector(cfg.Categories, cfg.AlwaysFlagStates),
		scorer:   NewScorer(cfg.Weights, cfg.Saturation),
		ring:     NewRing(ringCap),
		tiers:    NewTierMachine(cfg.ElevatedThreshold, cfg.CriticalThreshold, cfg.DeescalateDwell),
		store:    st,
		capturer: NewCapturer(st, log),
	}
	d.source = collector.NewSource(collector.SourceConfig{
		TopPath:  cfg.TopPath,
		Interval: cfg.Interval,
		Timeout:  cfg.CollectTimeout,
	}, log)
	d.pause = NewPauseDetector(cfg.PauseRatio, cfg.WakeSlack, collector.NewWakeProbe())
	d.srv = server.New(cfg.SocketPath, cfg.ClientWriteTimeout, d.bootstrapMsg, log)
	d.curTier.Store(int32(model.TierNormal))
	return d
}

// Run blocks until ctx is canceled. The current tick always completes
// before shutdown; in-flight event writes are flushed, then the socket
// server closes and clients observe EOF.
func (d *Daemon) Run(ctx context.Context) error {
	if err := os.MkdirAll(d.cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	pidPath := filepath.Join(d.cfg.DataDir, "pausemon.pid")
	if err := writePIDFile(pidPath); err != nil {
		return err
	}
	defer os.Remove(pidPath)

	if err := d.srv.Start(); err != nil {
		return err // inability to bind the socket is startup-fatal
	}
	d.source.Start(ctx)

	d.log.Info("daemon started",
		"pid", os.Getpid(),
		"interval", d.cfg.Interval,
		"socket", d.cfg.SocketPath,
		"ring_capacity", d.ring.Cap())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.tickLoop(gctx)
		return nil
	})
	g.Go(func() error {
		d.maintenanceLoop(gctx)
		return nil
	})
	err := g.Wait()

	d.source.Wait()
	d.flushBackground()
	d.srv.Stop()
	d.log.Info("daemon stopped")
	return err
}

func (d *Daemon) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// tick runs one full pipeline pass. Everything after Collect is
// non-blocking and bounded.
func (d *Daemon) tick(ctx context.Context) {
	col, err := d.source.Collect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// Skip the tick; the supervisor handles subprocess restarts.
		d.log.Warn("tick skipped", "error", err)
		return
	}

	now := col.Timestamp
	scores := d.scorer.ScoreAll(d.selector.Select(col.Records))
	sample := model.NewSample(now, col.Duration, col.TotalProcs, scores)

	d.ring.Push(sample, d.tiers.Tier())

	if !d.lastTick.IsZero() {
		actual := now.Sub(d.lastTick)
		switch d.pause.Evaluate(now, actual, d.cfg.Interval) {
		case VerdictPause:
			d.handlePause(now, actual, sample)
		case VerdictSleepWake:
			d.log.Info("tick gap attributed to sleep/wake", "gap", actual)
		}
	}
	d.lastTick = now

	act, fired := d.tiers.Update(now, sample.MaxScore, sample.Rogues)
	d.curTier.Store(int32(d.tiers.Tier()))

	if d.srv.HasClients() {
		d.srv.Broadcast(model.NewTickMsg(sample, d.tiers.Tier()))
	}
	if fired {
		d.handleAction(now, act)
	}
}

// bootstrapMsg is called from the server's accept path; it touches only
// snapshot copies and the tier mirror.
func (d *Daemon) bootstrapMsg() model.BootstrapMsg {
	tail := d.ring.Tail(d.cfg.BootstrapCount)
	maxScore := 0
	if latest, ok := d.ring.Latest(); ok {
		maxScore = latest.Sample.MaxScore
	}
	return model.BootstrapMsg{
		Type:         model.MsgTypeBootstrap,
		Samples:      tail,
		Tier:         model.Tier(d.curTier.Load()),
		MaxScore:     maxScore,
		TotalSamples: d.ring.Len(),
	}
}

func (d *Daemon) handleAction(now time.Time, act Action) {
	switch act.Kind {
	case ActionEnteredTier2:
		d.episodeID = uuid.NewString()
		d.log.Info("entered elevated tier", "score", act.Score, "episode", d.episodeID)

	case ActionTier2NewPeak:
		d.log.Info("new elevated peak", "score", act.Score, "episode", d.episodeID)

	case ActionEnteredTier3:
		d.log.Warn("entered critical tier", "score", act.Score, "episode", d.episodeID)
		contents := d.ring.Snapshot()
		d.capturer.CaptureAsync(d.episodeID, contents, Culprits(contents))

	case ActionExitedTier3:
		d.log.Info("left critical tier", "peak", act.Peak, "held", act.Elapsed)
		d.persistAsync(model.Event{
			ID:        uuid.NewString(),
			Kind:      model.EventEpisode,
			StartTime: now.Add(-act.Elapsed),
			Duration:  act.Elapsed,
			Tier:      model.TierCritical,
			PeakScore: act.Peak,
			Rogues:    act.PeakRogues,
		})

	case ActionExitedTier2:
		// The whole episode closes under the id minted on entry, so
		// any critical-phase capture joins up with it.
		id := d.episodeID
		if id == "" {
			id = uuid.NewString()
		}
		d.episodeID = ""
		d.log.Info("episode closed", "peak", act.Peak, "duration", act.Elapsed, "episode", id)
		d.persistAsync(model.Event{
			ID:        id,
			Kind:      model.EventEpisode,
			StartTime: now.Add(-act.Elapsed),
			Duration:  act.Elapsed,
			Tier:      model.TierElevated,
			PeakScore: act.Peak,
			Rogues:    act.PeakRogues,
		})
	}
}

// handlePause freezes the ring and hands the immutable snapshot to the
// forensics path, regardless of current tier.
func (d *Daemon) handlePause(now time.Time, actual time.Duration, sample model.Sample) {
	id := uuid.NewString()
	d.log.Warn("pause detected",
		"gap", actual, "expected", d.cfg.Interval, "event_id", id)

	contents := d.ring.Snapshot()
	d.persistAsync(model.Event{
		ID:        id,
		Kind:      model.EventPause,
		StartTime: now.Add(-actual),
		Duration:  actual,
		Tier:      d.tiers.Tier(),
		PeakScore: sample.MaxScore,
		Rogues:    model.CloneScores(sample.Rogues),
	})
	d.capturer.CaptureAsync(id, contents, Culprits(contents))
}

// persistAsync writes an event off the tick path. Event loss is
// acceptable; failure is logged and the loop keeps running.
func (d *Daemon) persistAsync(evt model.Event) {
	d.bg.Add(1)
	go func() {
		defer d.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := d.store.InsertEvent(ctx, evt); err != nil {
			d.log.Error("persist event", "event_id", evt.ID, "error", err)
		}
	}()
}

// maintenanceLoop prunes old events on its own timer, decoupled from the
// sampling tick.
func (d *Daemon) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.MaintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			age := time.Duration(d.cfg.RetentionDays) * 24 * time.Hour
			cctx, cancel := context.WithTimeout(ctx, persistTimeout)
			n, err := d.store.PruneOlderThan(cctx, age)
			cancel()
			if err != nil {
				d.log.Error("retention prune failed", "error", err)
				continue
			}
			if n > 0 {
				d.log.Info("pruned old events", "removed", n, "older_than", age)
			}
		}
	}
}

// flushBackground waits briefly for in-flight persistence goroutines.
func (d *Daemon) flushBackground() {
	done := make(chan struct{})
	go func() {
		d.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(flushTimeout):
		d.log.Warn("shutdown flush timed out")
	}
}

// writePIDFile refuses to start when another live daemon owns the file.
func writePIDFile(path string) error {
	if data, err := os.ReadFile(path); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid > 0 {
			if proc, err := os.FindProcess(pid); err == nil {
				if proc.Signal(syscall.Signal(0)) == nil {
					return fmt.Errorf("daemon already running (pid %d)", pid)
				}
			}
		}
		// Stale file from an unclean exit.
		os.Remove(path)
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o600)
}
