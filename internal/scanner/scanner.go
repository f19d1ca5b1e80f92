// Package scanner implements C5, the scanner supervisor: a process-wide
// singleton state machine that sequences reconcile -> discover -> ingest with
// pause/resume/cancel and progress reporting.
//
// Grounded on the teacher's daemon supervisor (cmd/bd/daemon.go, bus.go):
// one mutex-guarded state struct, a background goroutine doing the real work,
// and a channel-based signal for cancellation, adapted here from the
// daemon's single-shot lifecycle to the scanner's richer
// IDLE/RUNNING/PAUSED/CANCELLING state machine.
package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/djhieudonald74-stack/asset-registry/internal/eventsink"
	"github.com/djhieudonald74-stack/asset-registry/internal/folders"
	"github.com/djhieudonald74-stack/asset-registry/internal/hashing"
	"github.com/djhieudonald74-stack/asset-registry/internal/ingest"
	"github.com/djhieudonald74-stack/asset-registry/internal/metaproject"
	"github.com/djhieudonald74-stack/asset-registry/internal/model"
	"github.com/djhieudonald74-stack/asset-registry/internal/reconcile"
	"github.com/djhieudonald74-stack/asset-registry/internal/store"
	"github.com/djhieudonald74-stack/asset-registry/internal/telemetry"
	"github.com/djhieudonald74-stack/asset-registry/internal/workerpool"
)

// State is the supervisor's closed state set (spec §4.5).
type State string

const (
	StateIdle       State = "IDLE"
	StateRunning    State = "RUNNING"
	StatePaused     State = "PAUSED"
	StateCancelling State = "CANCELLING"
)

// Phase is the requested scan depth.
type Phase string

const (
	PhaseFast  Phase = "FAST"
	PhaseFull  Phase = "FULL"
	PhaseEnrich Phase = "ENRICH"
)

// Progress is the four monotone counters plus the bounded error list (spec
// §4.5 "Progress").
type Progress struct {
	Scanned int64
	Total   int64
	Created int64
	Skipped int64
	Errors  []string
}

const maxErrors = 100

// Options configures a start() call.
type Options struct {
	Phase             Phase
	Roots             []model.Root
	EnrichTargetLevel model.EnrichmentLevel
	IngestBatchSize   int
	EnrichBatchSize   int
	OwnerID           string
	ProgressFn        func(Progress)
}

// Supervisor is the process-wide scanner singleton (spec §4.5).
type Supervisor struct {
	mu        sync.Mutex
	state     State
	progress  Progress
	cancel    chan struct{}
	pauseGate chan struct{} // closed while running, replaced while paused
	done      chan struct{}
	runCtx    context.Context // the ctx Start was called with; used for event sends from Pause/Resume

	store               store.Store
	resolver            *folders.Resolver
	sink                eventsink.Sink
	pool                *workerpool.Pool
	metrics             *telemetry.Metrics
	progressThrottle    time.Duration
	lastProgressEventAt time.Time
	lastProgressFn      func(Progress)
}

// New constructs an idle Supervisor. workerCap bounds concurrent hashing work
// during enrichment (spec §5); progressThrottle is the minimum interval
// between seed.progress events (spec §4.5), defaulting to one second.
func New(st store.Store, resolver *folders.Resolver, sink eventsink.Sink, workerCap int, progressThrottle time.Duration, metrics *telemetry.Metrics) *Supervisor {
	if sink == nil {
		sink = eventsink.Noop{}
	}
	if progressThrottle <= 0 {
		progressThrottle = time.Second
	}
	return &Supervisor{
		state:            StateIdle,
		store:            st,
		resolver:         resolver,
		sink:             sink,
		pool:             workerpool.New(workerCap),
		metrics:          metrics,
		progressThrottle: progressThrottle,
	}
}

// State reports the current state (spec §4.5 get_state / status endpoint).
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the current state and a copy of the progress counters, the
// shape GET /api/assets/seed/status returns.
func (s *Supervisor) Status() (State, Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.progress
	p.Errors = append([]string(nil), s.progress.Errors...)
	return s.state, p
}

// Start transitions IDLE -> RUNNING and launches the scan body in a
// background goroutine. Returns false if the supervisor was not IDLE.
func (s *Supervisor) Start(ctx context.Context, opts Options) bool {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return false
	}
	s.state = StateRunning
	s.progress = Progress{}
	s.cancel = make(chan struct{})
	s.pauseGate = closedGate()
	s.done = make(chan struct{})
	s.runCtx = ctx
	s.lastProgressEventAt = time.Time{}
	s.mu.Unlock()

	s.sink.Send(ctx, "seed.started", map[string]any{"roots": opts.Roots})
	go s.run(ctx, opts)
	return true
}

// Pause transitions RUNNING -> PAUSED, publishing seed.paused (spec §4.5). No-op
// (returns false) otherwise.
func (s *Supervisor) Pause() bool {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return false
	}
	s.state = StatePaused
	s.pauseGate = make(chan struct{})
	ctx := s.runCtx
	s.mu.Unlock()
	s.sink.Send(ctx, "seed.paused", nil)
	return true
}

// Resume transitions PAUSED -> RUNNING, publishing seed.resumed (spec §4.5).
// No-op (returns false) otherwise.
func (s *Supervisor) Resume() bool {
	s.mu.Lock()
	if s.state != StatePaused {
		s.mu.Unlock()
		return false
	}
	s.state = StateRunning
	close(s.pauseGate)
	ctx := s.runCtx
	s.mu.Unlock()
	s.sink.Send(ctx, "seed.resumed", nil)
	return true
}

// Cancel transitions RUNNING or PAUSED -> CANCELLING, releasing the pause
// gate immediately so a paused worker observes cancellation without waiting
// for resume (spec §4.5: "cancellation from paused is honored immediately").
func (s *Supervisor) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning && s.state != StatePaused {
		return false
	}
	wasPaused := s.state == StatePaused
	s.state = StateCancelling
	close(s.cancel)
	if wasPaused {
		close(s.pauseGate)
	}
	return true
}

// Wait blocks until the worker finishes or timeout elapses, returning true if
// the worker finished.
func (s *Supervisor) Wait(timeout time.Duration) bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func closedGate() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// checkpoint blocks while paused and reports whether cancellation was
// requested, per spec §4.5's checkpoint contract (between phases, between
// roots, between batches; never inside a batch).
func (s *Supervisor) checkpoint(ctx context.Context) (cancelled bool) {
	s.mu.Lock()
	gate := s.pauseGate
	cancelCh := s.cancel
	s.mu.Unlock()
	select {
	case <-gate:
	case <-cancelCh:
		return true
	case <-ctx.Done():
		return true
	}
	select {
	case <-cancelCh:
		return true
	default:
		return false
	}
}

func (s *Supervisor) addError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.progress.Errors) < maxErrors {
		s.progress.Errors = append(s.progress.Errors, msg)
	}
}

// addCounts updates the progress counters and, at most once per
// progressThrottle, publishes seed.progress (spec §4.5: "at most once per
// second during a phase").
func (s *Supervisor) addCounts(scanned, created, skipped int64) {
	s.mu.Lock()
	s.progress.Scanned += scanned
	s.progress.Created += created
	s.progress.Skipped += skipped
	p := s.progress
	fn := s.lastProgressFn
	ctx := s.runCtx
	emit := false
	if now := time.Now(); now.Sub(s.lastProgressEventAt) >= s.progressThrottle {
		s.lastProgressEventAt = now
		emit = true
	}
	s.mu.Unlock()
	if fn != nil {
		safeCallback(func() { fn(p) })
	}
	if emit {
		s.sink.Send(ctx, "seed.progress", p)
	}
}

func safeCallback(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

func (s *Supervisor) run(ctx context.Context, opts Options) {
	defer close(s.done)
	defer func() {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
	}()

	s.mu.Lock()
	s.lastProgressFn = opts.ProgressFn
	s.mu.Unlock()

	run := model.ScannerRun{ID: uuid.New(), Phase: string(opts.Phase), State: model.ScannerRunRunning, StartedAt: time.Now().UTC()}
	if err := s.recordRunStart(ctx, run); err != nil {
		telemetry.L(ctx).Error().Err(err).Msg("scanner: failed to record run start")
	}

	var finalErr error
	if opts.Phase == PhaseFast || opts.Phase == PhaseFull {
		if cancelled, err := s.runFast(ctx, opts); err != nil {
			finalErr = err
		} else if cancelled {
			s.finish(ctx, run, model.ScannerRunCancelled, nil)
			s.sink.Send(ctx, "seed.cancelled", nil)
			return
		} else {
			s.sink.Send(ctx, "seed.fast_complete", s.snapshotProgress())
		}
	}
	if finalErr == nil && (opts.Phase == PhaseEnrich || opts.Phase == PhaseFull) {
		if cancelled, err := s.runEnrich(ctx, opts); err != nil {
			finalErr = err
		} else if cancelled {
			s.finish(ctx, run, model.ScannerRunCancelled, nil)
			s.sink.Send(ctx, "seed.cancelled", nil)
			return
		} else {
			s.sink.Send(ctx, "seed.enrich_complete", s.snapshotProgress())
		}
	}

	if finalErr != nil {
		s.addError(finalErr.Error())
		s.finish(ctx, run, model.ScannerRunFailed, finalErr)
		s.sink.Send(ctx, "seed.error", map[string]any{"error": finalErr.Error()})
		return
	}
	s.finish(ctx, run, model.ScannerRunCompleted, nil)
	s.sink.Send(ctx, "seed.completed", s.snapshotProgress())
}

func (s *Supervisor) snapshotProgress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.progress
	p.Errors = append([]string(nil), s.progress.Errors...)
	return p
}

func (s *Supervisor) recordRunStart(ctx context.Context, run model.ScannerRun) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.InsertScannerRun(ctx, run); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Supervisor) finish(ctx context.Context, run model.ScannerRun, state model.ScannerRunState, runErr error) {
	now := time.Now().UTC()
	run.FinishedAt = &now
	run.State = state
	p := s.snapshotProgress()
	run.Scanned, run.Created, run.Skipped, run.ErrorCount = p.Scanned, p.Created, p.Skipped, int64(len(p.Errors))
	tx, err := s.store.Begin(ctx)
	if err != nil {
		telemetry.L(ctx).Error().Err(err).Msg("scanner: failed to open tx for run completion")
		return
	}
	if err := tx.UpdateScannerRun(ctx, run); err != nil {
		_ = tx.Rollback()
		telemetry.L(ctx).Error().Err(err).Msg("scanner: failed to record run completion")
		return
	}
	if err := tx.Commit(); err != nil {
		telemetry.L(ctx).Error().Err(err).Msg("scanner: failed to commit run completion")
	}
}

// runFast implements spec §4.5's FAST phase: reconcile every requested root,
// walk the filesystem, subtract survivors, and ingest the remainder as stub
// specs in batches of ~500.
func (s *Supervisor) runFast(ctx context.Context, opts Options) (cancelled bool, err error) {
	batchSize := opts.IngestBatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	for _, root := range opts.Roots {
		if s.checkpoint(ctx) {
			return true, nil
		}
		prefixes := s.resolver.Prefixes(root)
		if len(prefixes) == 0 {
			continue
		}
		var survivors []string
		tx, err := s.store.Begin(ctx)
		if err != nil {
			return false, fmt.Errorf("runFast: begin reconcile tx: %w", err)
		}
		res, err := reconcile.Run(ctx, tx, prefixes, true)
		if err != nil {
			_ = tx.Rollback()
			return false, fmt.Errorf("runFast: reconcile root %s: %w", root, err)
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("runFast: commit reconcile: %w", err)
		}
		survivors = res.SurvivingPaths
		survivorSet := make(map[string]bool, len(survivors))
		for _, p := range survivors {
			survivorSet[p] = true
		}

		discovered, err := walkPrefixes(prefixes)
		if err != nil {
			return false, fmt.Errorf("runFast: walking root %s: %w", root, err)
		}

		var batch []ingest.Spec
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			tx, err := s.store.Begin(ctx)
			if err != nil {
				return err
			}
			res, err := ingest.Run(ctx, tx, s.metrics, batch)
			if err != nil {
				_ = tx.Rollback()
				s.addError(err.Error())
				batch = batch[:0]
				return nil
			}
			if err := tx.Commit(); err != nil {
				return err
			}
			s.addCounts(int64(len(batch)), int64(res.InsertedReferences), int64(res.LostPaths))
			batch = batch[:0]
			return nil
		}

		for _, path := range discovered {
			if survivorSet[path] {
				continue
			}
			if s.checkpoint(ctx) {
				return true, nil
			}
			info, statErr := os.Stat(path)
			if statErr != nil {
				continue
			}
			mtimeNs := info.ModTime().UnixNano()
			batch = append(batch, ingest.Spec{
				AbsPath:   path,
				SizeBytes: info.Size(),
				MtimeNs:   &mtimeNs,
				Name:      filepath.Base(path),
				Tags:      []string{string(root)},
				TagOrigin: model.TagOriginAutomatic,
				OwnerID:   opts.OwnerID,
			})
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return false, err
				}
				if s.checkpoint(ctx) {
					return true, nil
				}
			}
		}
		if err := flush(); err != nil {
			return false, err
		}
	}
	return false, nil
}

// runEnrich implements spec §4.5's ENRICH phase: select references below the
// target enrichment level, batched <= 100, and for each asset optionally
// compute the hash and write back hash/enrichment_level/metadata.
func (s *Supervisor) runEnrich(ctx context.Context, opts Options) (cancelled bool, err error) {
	batchSize := opts.EnrichBatchSize
	if batchSize <= 0 || batchSize > 100 {
		batchSize = 100
	}
	const maxPages = 10000 // defensive bound: never loop forever on a stuck enrichment query
	target := opts.EnrichTargetLevel
	for page := 0; page < maxPages; page++ {
		if s.checkpoint(ctx) {
			return true, nil
		}
		tx, err := s.store.Begin(ctx)
		if err != nil {
			return false, fmt.Errorf("runEnrich: begin tx: %w", err)
		}
		// Every enriched reference's level is set to EnrichmentHashed, which
		// is not below any target level, so a fresh,
		// un-offset page always surfaces the next batch still needing work.
		listing, err := tx.ListAssetsPage(ctx, store.ListFilter{
			Limit:         batchSize,
			Sort:          store.SortCreatedAt,
			Order:         store.OrderAsc,
			EnrichmentMax: &target,
		})
		if err != nil {
			_ = tx.Rollback()
			return false, fmt.Errorf("runEnrich: listing candidates: %w", err)
		}
		if len(listing.Items) == 0 {
			_ = tx.Rollback()
			return false, nil
		}
		for _, item := range listing.Items {
			if err := enrichOne(ctx, tx, item, s.pool); err != nil {
				s.addError(err.Error())
				continue
			}
			s.addCounts(1, 0, 0)
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("runEnrich: commit batch: %w", err)
		}
	}
	return false, nil
}

func enrichOne(ctx context.Context, tx store.Tx, item model.AssetListItem, pool *workerpool.Pool) error {
	states, err := tx.GetCacheStatesByAsset(ctx, item.Asset.ID)
	if err != nil {
		return err
	}
	var path string
	for _, st := range states {
		if !st.IsMissing {
			path = st.FilePath
			break
		}
	}
	if path == "" {
		// No live path to read a header or hash from; nothing to enrich yet.
		return nil
	}
	mime, meta := sniffHeader(path)
	if item.Asset.IsStub() {
		var hash string
		var size int64
		err := pool.Do(ctx, func() error {
			var hashErr error
			hash, size, hashErr = hashing.HashFile(path)
			return hashErr
		})
		if err != nil {
			return fmt.Errorf("hashing %s: %w", path, err)
		}
		if err := tx.PromoteAssetToHashed(ctx, item.Asset.ID, hash, size, mime); err != nil {
			return err
		}
	} else if mime != nil {
		if err := tx.SetAssetMimeType(ctx, item.Asset.ID, *mime); err != nil {
			return err
		}
	}
	if err := tx.SetReferenceEnrichmentLevel(ctx, item.Reference.ID, model.EnrichmentHashed); err != nil {
		return err
	}
	if meta != nil {
		merged := mergeMetadata(item.Reference.UserMetadata, meta)
		rows, err := metaproject.Project(item.Reference.ID, merged)
		if err != nil {
			return err
		}
		if err := tx.ReplaceReferenceMeta(ctx, item.Reference.ID, rows); err != nil {
			return err
		}
		return tx.UpdateReference(ctx, item.Reference.ID, store.UpdateReferenceFields{UserMetadata: merged, HasMetadata: true})
	}
	return nil
}
