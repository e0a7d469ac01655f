package collector

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/hluisi/pausemon/model"
	"github.com/hluisi/pausemon/util"
)

const (
	blockChanSize      = 4
	restartBackoffMin  = 1 * time.Second
	restartBackoffMax  = 30 * time.Second
	healthyRunDuration = 30 * time.Second
	scanBufSize        = 1 << 20
)

// Collection is the raw outcome of one tick, before selection and scoring.
type Collection struct {
	Timestamp  time.Time
	Duration   time.Duration
	TotalProcs int
	Records    []model.ProcessRecord
}

// SourceConfig configures the top subprocess.
type SourceConfig struct {
	TopPath  string
	Interval time.Duration
	Timeout  time.Duration
}

// Source supervises a long-lived `top -l 0` subprocess and converts its
// per-interval output blocks into Collections. The subprocess is the only
// blocking boundary in the producer path; if it dies, the supervisor
// respawns it with exponential backoff and counter baselines are reset.
type Source struct {
	cfg SourceConfig
	log *slog.Logger

	blocks chan Collection

	// previous block's cumulative counters, for rate derivation
	prev   map[int]rawRecord
	prevAt time.Time

	wg sync.WaitGroup
}

// NewSource creates a source; Start must be called before Collect.
func NewSource(cfg SourceConfig, log *slog.Logger) *Source {
	if cfg.TopPath == "" {
		cfg.TopPath = "/usr/bin/top"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Source{
		cfg:    cfg,
		log:    log,
		blocks: make(chan Collection, blockChanSize),
	}
}

// Start launches the supervisor goroutine. It returns immediately; the
// first Collection arrives after roughly one interval.
func (s *Source) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.supervise(ctx)
	}()
}

// Wait blocks until the supervisor has exited (after ctx cancellation).
func (s *Source) Wait() {
	s.wg.Wait()
}

// Collect returns the next collection, or a CollectionError when none
// arrives within the configured timeout. It never fabricates an empty
// sample.
func (s *Source) Collect(ctx context.Context) (Collection, error) {
	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()
	select {
	case col := <-s.blocks:
		return col, nil
	case <-timer.C:
		return Collection{}, &CollectionError{Op: "wait", Err: ErrTimeout}
	case <-ctx.Done():
		return Collection{}, ctx.Err()
	}
}

func (s *Source) supervise(ctx context.Context) {
	backoff := restartBackoffMin
	for {
		started := time.Now()
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) >= healthyRunDuration {
			backoff = restartBackoffMin
		}
		s.log.Warn("collector subprocess exited, restarting",
			"error", err, "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > restartBackoffMax {
			backoff = restartBackoffMax
		}
	}
}

func (s *Source) args() []string {
	secs := int(s.cfg.Interval.Seconds())
	if secs < 1 {
		secs = 1
	}
	return []string{
		"-l", "0",
		"-s", fmt.Sprintf("%d", secs),
		"-n", "0",
		"-stats", strings.Join(topStats, ","),
	}
}

// runOnce spawns top and consumes its output until exit or cancellation.
func (s *Source) runOnce(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.cfg.TopPath, s.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.cfg.TopPath, err)
	}

	// New subprocess, new counter baselines.
	s.prev = nil
	s.prevAt = time.Time{}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, scanBufSize), scanBufSize)

	var cur []string
	var blockStart time.Time
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "Processes:") {
			if len(cur) > 0 {
				s.emit(cur, blockStart)
			}
			cur = cur[:0]
			blockStart = time.Now()
		}
		cur = append(cur, line)
	}
	// A trailing partial block is dropped; the next spawn starts clean.

	waitErr := cmd.Wait()
	if scanErr := scanner.Err(); scanErr != nil {
		return fmt.Errorf("read output: %w", scanErr)
	}
	if waitErr != nil {
		return fmt.Errorf("subprocess: %w", waitErr)
	}
	return fmt.Errorf("subprocess exited")
}

// emit parses a finished block and publishes the derived Collection.
// Unparsable blocks are logged and skipped; the consumer observes the gap
// as a collection timeout.
func (s *Source) emit(lines []string, startedAt time.Time) {
	b, err := parseBlock(lines)
	if err != nil {
		s.log.Warn("discarding unparsable block", "error", err, "lines", len(lines))
		return
	}

	now := time.Now()
	col := Collection{
		Timestamp:  now,
		Duration:   now.Sub(startedAt),
		TotalProcs: b.TotalProcs,
		Records:    s.toRecords(b.Records, now),
	}

	select {
	case s.blocks <- col:
	default:
		// Consumer is behind; drop the oldest so fresh data wins.
		select {
		case <-s.blocks:
		default:
		}
		select {
		case s.blocks <- col:
		default:
		}
		s.log.Warn("block channel full, dropped oldest sample")
	}
}

// toRecords converts raw rows into ProcessRecords, turning cumulative
// pagein/csw/syscall counters into per-second rates against the previous
// block. The first block after a (re)spawn has no baseline and reports
// zero rates.
func (s *Source) toRecords(raws []rawRecord, at time.Time) []model.ProcessRecord {
	dt := time.Duration(0)
	if !s.prevAt.IsZero() {
		dt = at.Sub(s.prevAt)
	}

	records := make([]model.ProcessRecord, 0, len(raws))
	next := make(map[int]rawRecord, len(raws))
	for _, r := range raws {
		rec := model.ProcessRecord{
			PID:        r.PID,
			Command:    r.Command,
			CPUPct:     r.CPUPct,
			State:      r.State,
			RSS:        r.RSS,
			Compressed: r.Compressed,
			Threads:    r.Threads,
		}
		if prev, ok := s.prev[r.PID]; ok && dt > 0 {
			rec.PageinRate = util.Rate(prev.Pageins, r.Pageins, dt)
			rec.CSWRate = util.Rate(prev.CSW, r.CSW, dt)
			rec.SyscallRate = util.Rate(prev.Syscalls, r.Syscalls, dt)
		}
		records = append(records, rec)
		next[r.PID] = r
	}
	s.prev = next
	s.prevAt = at
	return records
}
