package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbianchi/photarc/internal/logger"
	"github.com/mbianchi/photarc/pkg/artifacts"
	"github.com/mbianchi/photarc/pkg/catalog"
	"github.com/mbianchi/photarc/pkg/dedupe"
	"github.com/mbianchi/photarc/pkg/faces"
	"github.com/mbianchi/photarc/pkg/geo"
	"github.com/mbianchi/photarc/pkg/metrics"
	"github.com/mbianchi/photarc/pkg/vision"
)

// Config sizes the pipeline.
type Config struct {
	// PhotosRoot is the library root all relative paths resolve against.
	PhotosRoot string
	// QueueSize bounds each stage queue.
	QueueSize int
	// MaxAttempts is the per-stage retry budget for transient failures.
	MaxAttempts int
	// ThumbnailSizes are the bounding-box edges to render, in pixels.
	ThumbnailSizes []int
	// Workers overrides the per-stage worker count. Zero entries use the
	// stage default.
	Workers map[Stage]int
}

// defaultWorkers reflects each stage's cost profile: decode-heavy stages get
// parallelism, the rate-limited vision stages stay serial.
var defaultWorkers = map[Stage]int{
	StageExif:    4,
	StageGeocode: 2,
	StageThumbs:  4,
	StageMotion:  2,
	StagePhash:   2,
	StageFaces:   1,
	StageTags:    1,
	StageCaption: 1,
}

// tracker counts a photo's outstanding tokens across the stage graph and
// fires done once when the last one settles.
type tracker struct {
	n    atomic.Int64
	done func()
}

func (t *tracker) add(k int64) { t.n.Add(k) }

func (t *tracker) finish() {
	if t.n.Add(-1) == 0 {
		t.done()
	}
}

// item is one photo's token in one stage queue. ctx is the owning scan's
// context so stopping a scan abandons queued work without killing workers.
type item struct {
	fileID string
	ctx    context.Context
	tr     *tracker
}

// Pipeline owns the stage queues and worker pools.
type Pipeline struct {
	cfg       Config
	store     *catalog.Store
	artifacts *artifacts.Store
	resolver  *geo.Resolver
	vision    *vision.Client
	detector  faces.Detector
	metrics   *metrics.Metrics
	notifier  Notifier

	clusterMu sync.Mutex
	clusterer *faces.Clusterer

	dedupeMu sync.Mutex
	dupes    *dedupe.Index

	activeMu sync.Mutex
	active   map[string]string // fileID -> stage currently executing

	queues map[Stage]chan item
}

// New assembles a pipeline. resolver, visionClient, detector, m, and
// notifier may each be nil; the corresponding stages degrade to skipped (or
// the concern becomes a no-op).
func New(cfg Config, store *catalog.Store, art *artifacts.Store, resolver *geo.Resolver,
	visionClient *vision.Client, detector faces.Detector, m *metrics.Metrics, notifier Notifier) *Pipeline {

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if len(cfg.ThumbnailSizes) == 0 {
		cfg.ThumbnailSizes = []int{200, 600, 1200}
	}
	if detector == nil {
		detector = faces.NoopDetector{}
	}
	if visionClient == nil {
		visionClient = vision.New(vision.Config{})
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}

	queues := make(map[Stage]chan item, len(Flow))
	for _, stage := range Flow {
		queues[stage] = make(chan item, cfg.QueueSize)
	}

	return &Pipeline{
		cfg:       cfg,
		store:     store,
		artifacts: art,
		resolver:  resolver,
		vision:    visionClient,
		detector:  detector,
		metrics:   m,
		notifier:  notifier,
		active:    make(map[string]string),
		queues:    queues,
	}
}

// Run starts every stage's worker pool and blocks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, stage := range Flow {
		workers := p.cfg.Workers[stage]
		if workers <= 0 {
			workers = defaultWorkers[stage]
		}
		for i := 0; i < workers; i++ {
			stage := stage
			g.Go(func() error {
				p.worker(ctx, stage)
				return nil
			})
		}
	}
	logger.Info("pipeline started", "stages", len(Flow))
	return g.Wait()
}

// Enqueue submits a photo to every entry stage of the graph. done is
// invoked exactly once when the photo has left every reachable stage (or
// its remaining work is abandoned by scanCtx).
func (p *Pipeline) Enqueue(scanCtx context.Context, fileID string, done func()) {
	if done == nil {
		done = func() {}
	}
	tr := &tracker{done: done}
	tr.add(int64(len(Entry)))
	for _, stage := range Entry {
		select {
		case p.queues[stage] <- item{fileID: fileID, ctx: scanCtx, tr: tr}:
		case <-scanCtx.Done():
			tr.finish()
		}
	}
}

// CurrentWork reports which stage each in-flight photo is executing.
func (p *Pipeline) CurrentWork() map[string]string {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	out := make(map[string]string, len(p.active))
	for id, stage := range p.active {
		out[id] = stage
	}
	return out
}

func (p *Pipeline) setActive(fileID, stage string) {
	p.activeMu.Lock()
	p.active[fileID] = stage
	p.activeMu.Unlock()
}

func (p *Pipeline) clearActive(fileID string) {
	p.activeMu.Lock()
	delete(p.active, fileID)
	p.activeMu.Unlock()
}

// QueueDepths reports the current backlog per stage.
func (p *Pipeline) QueueDepths() map[Stage]int {
	depths := make(map[Stage]int, len(p.queues))
	for stage, q := range p.queues {
		depths[stage] = len(q)
	}
	return depths
}

func (p *Pipeline) worker(ctx context.Context, stage Stage) {
	q := p.queues[stage]
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-q:
			p.metrics.SetQueueDepth(string(stage), len(q))
			p.process(ctx, stage, it)
		}
	}
}

// process gates one item through one stage, records the outcome, and
// forwards it down the flow.
func (p *Pipeline) process(ctx context.Context, stage Stage, it item) {
	// A stopped scan abandons its queued items without touching the ledger.
	if it.ctx.Err() != nil {
		it.tr.finish()
		return
	}

	version := Versions[stage]
	needed, err := p.store.StageNeeded(it.fileID, string(stage), version, p.cfg.MaxAttempts)
	if err != nil {
		logger.Error("ledger check failed", "file_id", it.fileID, "stage", stage, "error", err)
		p.forward(stage, it)
		return
	}
	if !needed {
		p.forward(stage, it)
		return
	}

	if err := p.store.MarkStageInFlight(it.fileID, string(stage), version); err != nil {
		logger.Error("failed to mark stage in flight", "file_id", it.fileID, "stage", stage, "error", err)
		p.forward(stage, it)
		return
	}

	p.setActive(it.fileID, string(stage))
	start := time.Now()
	execErr := p.execute(it.ctx, stage, it.fileID)
	for attempt := 1; execErr != nil && Classify(execErr) == Transient && attempt < p.cfg.MaxAttempts; attempt++ {
		select {
		case <-time.After(retryBackoff(attempt)):
		case <-it.ctx.Done():
		}
		if it.ctx.Err() != nil {
			execErr = it.ctx.Err()
			break
		}
		if err := p.store.MarkStageInFlight(it.fileID, string(stage), version); err != nil {
			logger.Error("failed to mark stage in flight", "file_id", it.fileID, "stage", stage, "error", err)
			break
		}
		execErr = p.execute(it.ctx, stage, it.fileID)
	}
	elapsed := time.Since(start)
	p.clearActive(it.fileID)

	status := p.settle(stage, it.fileID, execErr)
	p.metrics.RecordStage(string(stage), string(status), elapsed.Seconds())
	p.publish(Event{
		Type:   EventStageResult,
		Stage:  string(stage),
		FileID: it.fileID,
		Status: string(status),
		Error:  errString(execErr),
	})

	p.forward(stage, it)
}

// settle translates an executor result into the ledger write the outcome
// demands. Success is already committed by the executor's result writer.
func (p *Pipeline) settle(stage Stage, fileID string, execErr error) catalog.StageStatus {
	if execErr == nil {
		return catalog.StatusDone
	}
	switch Classify(execErr) {
	case Cancelled:
		// The scan stopped mid-stage; the row returns to pending so the
		// next scan picks it up.
		if err := p.store.MarkStage(fileID, string(stage), catalog.StatusPending, ""); err != nil {
			logger.Error("failed to reset cancelled stage", "file_id", fileID, "stage", stage, "error", err)
		}
		return catalog.StatusPending
	case Unavailable:
		if err := p.store.MarkStage(fileID, string(stage), catalog.StatusSkipped, execErr.Error()); err != nil {
			logger.Error("failed to mark stage skipped", "file_id", fileID, "stage", stage, "error", err)
		}
		return catalog.StatusSkipped
	case Permanent:
		// Deterministic failure: retrying cannot change the outcome, so the
		// row is skipped rather than left in the retry budget.
		if err := p.store.MarkStage(fileID, string(stage), catalog.StatusSkipped, execErr.Error()); err != nil {
			logger.Error("failed to mark stage skipped", "file_id", fileID, "stage", stage, "error", err)
		}
		logger.Warn("stage skipped, input not processable", "file_id", fileID, "stage", stage, "error", execErr)
		return catalog.StatusSkipped
	default:
		// Transient with the retry budget spent. The row stays failed until
		// a stage version bump or a clear-index.
		if err := p.store.MarkStage(fileID, string(stage), catalog.StatusFailed, execErr.Error()); err != nil {
			logger.Error("failed to mark stage failed", "file_id", fileID, "stage", stage, "error", err)
		}
		logger.Warn("stage failed after retries", "file_id", fileID, "stage", stage, "error", execErr)
		return catalog.StatusFailed
	}
}

// retryBackoff returns the delay before retry number attempt, doubling from
// 500ms and capped at 10s.
func retryBackoff(attempt int) time.Duration {
	d := 500 * time.Millisecond << uint(attempt-1)
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	return d
}

// forward fans the item out to every downstream queue, or settles its token
// at a graph leaf.
func (p *Pipeline) forward(stage Stage, it item) {
	ds := Downstream[stage]
	if len(ds) == 0 {
		it.tr.finish()
		return
	}
	it.tr.add(int64(len(ds) - 1))
	for _, nxt := range ds {
		select {
		case p.queues[nxt] <- it:
		case <-it.ctx.Done():
			it.tr.finish()
		}
	}
}

// execute dispatches to the stage's executor.
func (p *Pipeline) execute(ctx context.Context, stage Stage, fileID string) error {
	switch stage {
	case StageExif:
		return p.runExif(ctx, fileID)
	case StageGeocode:
		return p.runGeocode(ctx, fileID)
	case StageThumbs:
		return p.runThumbs(ctx, fileID)
	case StageMotion:
		return p.runMotion(ctx, fileID)
	case StagePhash:
		return p.runPhash(ctx, fileID)
	case StageFaces:
		return p.runFaces(ctx, fileID)
	case StageTags:
		return p.runTags(ctx, fileID)
	case StageCaption:
		return p.runCaption(ctx, fileID)
	default:
		return PermanentStageError("unknown stage %q", stage)
	}
}

// absPath resolves a photo's primary path against the library root.
func (p *Pipeline) absPath(photo *catalog.Photo) string {
	return filepath.Join(p.cfg.PhotosRoot, filepath.FromSlash(photo.FilePath))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
