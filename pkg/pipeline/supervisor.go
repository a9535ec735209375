package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbianchi/photarc/internal/logger"
	"github.com/mbianchi/photarc/pkg/catalog"
	"github.com/mbianchi/photarc/pkg/discovery"
	"github.com/mbianchi/photarc/pkg/events"
)

// ErrScanActive is returned by operations that require an idle pipeline.
var ErrScanActive = errors.New("pipeline: a scan is already running")

// Supervisor owns scan lifecycle: it starts scans, stops them, clears the
// index, and answers snapshot queries. There is at most one scan at a time.
type Supervisor struct {
	pipeline  *Pipeline
	startedAt time.Time

	// Counters for the current (or most recent) scan.
	discovered atomic.Int64
	completed  atomic.Int64

	mu         sync.Mutex
	scanCancel context.CancelFunc
	activeRun  string
}

// NewSupervisor wraps a pipeline.
func NewSupervisor(p *Pipeline) *Supervisor {
	return &Supervisor{pipeline: p, startedAt: time.Now()}
}

// Startup reconciles persisted state with reality before any work runs:
// interrupted ledger rows go back to pending, stale scan runs are closed,
// and photos whose files vanished are flagged. No scan is started.
func (s *Supervisor) Startup() error {
	if _, err := s.pipeline.store.StartupSweep(); err != nil {
		return err
	}
	if _, err := s.pipeline.store.AbortStaleScanRuns(); err != nil {
		return err
	}
	if _, err := s.pipeline.store.Reconcile(s.pipeline.cfg.PhotosRoot); err != nil {
		return err
	}
	return nil
}

// TriggerScan starts a scan unless one is active. Returns the run ID and
// whether this call started it; a concurrent trigger gets the active run's
// ID with started=false.
func (s *Supervisor) TriggerScan(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	if s.scanCancel != nil {
		runID := s.activeRun
		s.mu.Unlock()
		return runID, false, nil
	}

	runID, err := s.pipeline.store.CreateScanRun()
	if err != nil {
		s.mu.Unlock()
		return "", false, err
	}
	// The scan must outlive its trigger: an HTTP request context dies as
	// soon as the handler returns. Only StopScan and process shutdown end
	// a run.
	scanCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.scanCancel = cancel
	s.activeRun = runID
	s.mu.Unlock()

	go s.runScan(scanCtx, runID)
	return runID, true, nil
}

// StopScan cancels the active scan. Returns false when nothing is running.
func (s *Supervisor) StopScan() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanCancel == nil {
		return false
	}
	s.scanCancel()
	return true
}

// ActiveRun returns the running scan's ID, or "".
func (s *Supervisor) ActiveRun() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRun
}

func (s *Supervisor) finishScan() {
	s.mu.Lock()
	if s.scanCancel != nil {
		s.scanCancel()
	}
	s.scanCancel = nil
	s.activeRun = ""
	s.mu.Unlock()
}

// runScan walks the library, feeds the flow, waits for it to drain, and
// runs the batch barrier (duplicates and events).
func (s *Supervisor) runScan(ctx context.Context, runID string) {
	p := s.pipeline

	logger.Info("scan started", "scan_run", runID, "root", p.cfg.PhotosRoot)
	p.publish(Event{Type: EventScanStarted, RunID: runID})
	s.discovered.Store(0)
	s.completed.Store(0)

	var discovered, newFiles, hashed, errCount int
	var wg sync.WaitGroup

	walkErr := discovery.Walk(ctx, p.cfg.PhotosRoot, func(f discovery.FoundFile) error {
		info, err := os.Stat(f.AbsPath)
		if err != nil {
			errCount++
			return nil
		}
		discovered++
		s.discovered.Add(1)

		res, err := p.store.UpsertFile(f.RelPath, info.Size(), info.ModTime(), func() (string, error) {
			p.metrics.RecordFileHashed()
			return discovery.HashFile(f.AbsPath)
		})
		if err != nil {
			errCount++
			logger.Warn("failed to ingest file", "path", f.RelPath, "error", err)
			return nil
		}
		if res.Created {
			newFiles++
		}
		if res.Hashed {
			hashed++
		}

		// Settled photos skip the queue entirely; this is what keeps
		// repeat scans of an unchanged library cheap.
		done, err := p.store.AllStagesDone(res.FileID, FlowNames())
		if err == nil && done {
			if stale, verr := s.anyStageStale(res.FileID); verr != nil || !stale {
				s.completed.Add(1)
				return nil
			}
		}

		wg.Add(1)
		p.Enqueue(ctx, res.FileID, func() {
			s.completed.Add(1)
			wg.Done()
		})

		if discovered%500 == 0 {
			p.publish(Event{
				Type: EventScanProgress, RunID: runID,
				Discovered: discovered, NewFiles: newFiles, Hashed: hashed, Errors: errCount,
			})
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, context.Canceled) {
		errCount++
		logger.Error("walk failed", "scan_run", runID, "error", walkErr)
	}

	// Wait for the per-photo flow to drain (or the scan to be stopped).
	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		<-drained // items are abandoned quickly once their ctx is cancelled
	}

	cancelled := ctx.Err() != nil
	if !cancelled {
		if err := s.runBarrier(); err != nil {
			errCount++
			logger.Error("batch barrier failed", "scan_run", runID, "error", err)
		}
	}

	if err := p.store.FinishScanRun(runID, cancelled, discovered, newFiles, hashed, errCount); err != nil {
		logger.Error("failed to finish scan run", "scan_run", runID, "error", err)
	}

	outcome := "completed"
	if cancelled {
		outcome = "cancelled"
	}
	p.metrics.RecordScan(outcome)
	if stats, err := p.store.Stats(); err == nil {
		p.metrics.SetPhotosTotal(stats.TotalPhotos)
	}

	// Release the run before announcing it so a subscriber reacting to the
	// finish event sees the pipeline idle.
	s.finishScan()

	logger.Info("scan finished", "scan_run", runID,
		"discovered", discovered, "new", newFiles, "hashed", hashed,
		"errors", errCount, "cancelled", cancelled)
	p.publish(Event{
		Type: EventScanFinished, RunID: runID,
		Discovered: discovered, NewFiles: newFiles, Hashed: hashed,
		Errors: errCount, Cancelled: cancelled,
	})
}

// anyStageStale reports whether a version bump makes any stage runnable
// again for a photo whose ledger looks settled.
func (s *Supervisor) anyStageStale(fileID string) (bool, error) {
	for _, stage := range Flow {
		row, err := s.pipeline.store.LedgerRow(fileID, string(stage))
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return true, nil
			}
			return false, err
		}
		if row.StageVersion < Versions[stage] {
			return true, nil
		}
	}
	return false, nil
}

// runBarrier persists the whole-library derivations that need every
// photo's per-stage results: duplicate groups (accumulated incrementally by
// the phash stage) and events.
func (s *Supervisor) runBarrier() error {
	p := s.pipeline

	groups, err := p.duplicateGroups()
	if err != nil {
		return err
	}
	if err := p.store.ReplaceDuplicateGroups(groups); err != nil {
		return fmt.Errorf("failed to store duplicate groups: %w", err)
	}

	photos, err := p.store.PhotosWithCaptureTime()
	if err != nil {
		return fmt.Errorf("failed to load photos for event detection: %w", err)
	}
	drafts := events.Detect(photos)
	if err := p.store.ReplaceEvents(drafts); err != nil {
		return fmt.Errorf("failed to store events: %w", err)
	}

	logger.Info("batch barrier done", "duplicate_groups", len(groups), "events", len(drafts))
	p.publish(Event{Type: EventEventsUpdated})
	return nil
}

// ClearIndex wipes all derived state: catalog tables and artifacts. The
// photo files themselves are never touched. Fails while a scan is active.
func (s *Supervisor) ClearIndex() error {
	s.mu.Lock()
	if s.scanCancel != nil {
		s.mu.Unlock()
		return ErrScanActive
	}
	s.mu.Unlock()

	if err := s.pipeline.store.ClearIndex(); err != nil {
		return err
	}
	if err := s.pipeline.artifacts.Clear(); err != nil {
		return err
	}
	s.pipeline.resetDuplicateIndex()
	s.pipeline.metrics.SetPhotosTotal(0)
	logger.Info("index cleared")
	s.pipeline.publish(Event{Type: EventIndexCleared})
	return nil
}

// StageSnapshot is one stage's ledger and queue state.
type StageSnapshot struct {
	Stage    string           `json:"stage"`
	Statuses map[string]int64 `json:"statuses"`
	QueueLen int              `json:"queue_len"`
	Backlog  int64            `json:"backlog"`
}

// Snapshot is the pipeline's point-in-time state for the status endpoint.
type Snapshot struct {
	ActiveRun     string            `json:"active_run,omitempty"`
	Scanning      bool              `json:"scanning"`
	Discovered    int64             `json:"discovered"`
	Completed     int64             `json:"completed"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Stages        []StageSnapshot   `json:"stages"`
	Bottleneck    string            `json:"bottleneck,omitempty"`
	CurrentWork   map[string]string `json:"current_work,omitempty"`
}

// Snapshot reports per-stage progress and names the bottleneck stage: the
// one with the worst backlog relative to its throughput, with throughput
// proxied by how many items the stage has already finished. Discovered and
// Completed count the current scan, or the last one when idle.
func (s *Supervisor) Snapshot() (*Snapshot, error) {
	depths := s.pipeline.QueueDepths()

	snap := &Snapshot{
		ActiveRun:     s.ActiveRun(),
		Discovered:    s.discovered.Load(),
		Completed:     s.completed.Load(),
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		CurrentWork:   s.pipeline.CurrentWork(),
	}
	snap.Scanning = snap.ActiveRun != ""

	var worst float64
	for _, stage := range Flow {
		counts, err := s.pipeline.store.StageCounts(string(stage))
		if err != nil {
			return nil, err
		}
		statuses := make(map[string]int64, len(counts))
		for status, n := range counts {
			statuses[string(status)] = n
		}
		backlog := counts[catalog.StatusPending] + counts[catalog.StatusInFlight] + int64(depths[stage])
		snap.Stages = append(snap.Stages, StageSnapshot{
			Stage:    string(stage),
			Statuses: statuses,
			QueueLen: depths[stage],
			Backlog:  backlog,
		})
		if backlog > 0 {
			finished := counts[catalog.StatusDone] + counts[catalog.StatusFailed] + counts[catalog.StatusSkipped]
			ratio := float64(backlog) / float64(finished+1)
			if ratio > worst {
				worst = ratio
				snap.Bottleneck = string(stage)
			}
		}
	}
	return snap, nil
}

// WatchTriggers consumes watcher scan requests until ctx ends.
func (s *Supervisor) WatchTriggers(ctx context.Context, triggers <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-triggers:
			if _, started, err := s.TriggerScan(ctx); err != nil {
				logger.Error("watcher-triggered scan failed to start", "error", err)
			} else if started {
				logger.Info("watcher triggered scan")
			}
		}
	}
}
