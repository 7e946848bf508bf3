package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jerry-samek/tick-frame-space-sub001/internal/clock"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/commit"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/config"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/entity"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/field"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/logging"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/model"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/render"
)

// Publisher receives immutable per-tick snapshots. Implementations must not
// block: a slow consumer drops frames, the substrate never waits.
type Publisher interface {
	PublishTick(snapshot model.TickSnapshot)
}

// Engine drives the fixed per-tick pipeline:
//
//	field update -> commit check -> entity update -> bucket render
//
// Each stage consumes only the previous stage's output for the current tick.
// The whole pipeline is single-threaded and deterministic for a fixed config.
type Engine struct {
	cfg       config.Config
	clk       *clock.Clock
	lattice   *field.Field
	emitter   *field.Emitter
	detector  *commit.Detector
	tracker   *entity.Tracker
	renderer  *render.BucketRenderer
	logger    *slog.Logger
	publisher Publisher

	// Staging between stages within one tick.
	snapshot []float64
	prev     []model.EntitySnapshot

	timeline   []model.TickSnapshot
	clampHits  uint64
	entityPeak int
}

// Option tweaks engine construction.
type Option func(*Engine)

// WithLogger attaches a structured logger. Defaults to a discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithPublisher attaches a read-only snapshot consumer.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	lattice, err := field.New(cfg)
	if err != nil {
		return nil, err
	}
	emitter, err := field.NewEmitter(lattice, cfg.Sources)
	if err != nil {
		return nil, err
	}
	detector, err := commit.NewDetector(commit.Options{
		Omega:    cfg.Omega,
		Delta:    cfg.Delta,
		DriveMin: cfg.DriveMin,
		DriveMax: cfg.DriveMax,
	})
	if err != nil {
		return nil, err
	}
	tracker, err := entity.NewTracker(entity.Options{
		Dims:            cfg.Dims,
		SearchRadius:    cfg.SearchRadius,
		DetectThreshold: cfg.DetectThreshold,
		DissolveLimit:   cfg.DissolveThreshold,
		LostTickLimit:   cfg.LostTickLimit,
		MaxDisplacement: cfg.MaxDisplacement,
	})
	if err != nil {
		return nil, err
	}
	renderer, err := render.NewBucketRenderer(cfg.MaxLag)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		clk:      clock.New(),
		lattice:  lattice,
		emitter:  emitter,
		detector: detector,
		tracker:  tracker,
		renderer: renderer,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, stage := range []clock.Stage{
		{Name: "field", Run: e.stageField},
		{Name: "commit", Run: e.stageCommit},
		{Name: "entity", Run: e.stageEntity},
		{Name: "render", Run: e.stageRender},
	} {
		if err := e.clk.Register(stage.Name, stage.Run); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Tick returns the current tick index.
func (e *Engine) Tick() uint64 {
	return e.clk.Tick()
}

// Step advances exactly one tick.
func (e *Engine) Step(ctx context.Context) (uint64, error) {
	return e.clk.Advance(ctx)
}

// Run advances n ticks or until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, n uint64) error {
	for i := uint64(0); i < n; i++ {
		if _, err := e.clk.Advance(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) stageField(_ context.Context, tick uint64) error {
	hits := e.lattice.Step(e.emitter.ForTick(tick))
	for _, hit := range hits {
		e.clampHits++
		e.logger.Warn("numeric divergence clamped",
			"tick", tick,
			"cell", fmt.Sprint(hit.Cell),
			"raw", hit.Raw,
		)
	}
	e.snapshot = e.lattice.Snapshot()
	return nil
}

// stageCommit integrates the accumulator of every unit tracked as of the
// previous tick against the freshly updated field. Units unobserved last tick
// integrate their carried drive and their crossings are tagged interpolated.
func (e *Engine) stageCommit(_ context.Context, tick uint64) error {
	for _, ent := range e.prev {
		cell := make([]int, len(ent.Position))
		for i, v := range ent.Position {
			cell[i] = int(v)
		}
		idx, err := e.lattice.Index(cell)
		if err != nil {
			return fmt.Errorf("unit %s position: %w", ent.ID, err)
		}
		drive := e.snapshot[idx] / e.cfg.PsiMax
		e.detector.Sample(ent.ID, drive, ent.Lag > 0)
	}
	if batch, ok := e.detector.Check(tick); ok {
		e.logger.Debug("commit batch",
			"tick", tick,
			"units", len(batch.UnitIDs),
			"records", len(batch.Records),
		)
	}
	return nil
}

func (e *Engine) stageEntity(_ context.Context, tick uint64) error {
	maxima := e.tracker.DetectMaxima(e.snapshot)
	live, ambiguities := e.tracker.Update(maxima)
	for _, amb := range ambiguities {
		e.logger.Debug("entity match ambiguity",
			"tick", tick,
			"entity", amb.EntityID,
			"won", fmt.Sprint(amb.WonCell),
			"lost", fmt.Sprint(amb.LostCell),
		)
	}

	// Dissolved entities release their accumulator residue.
	liveIDs := make(map[string]bool, len(live))
	for _, ent := range live {
		liveIDs[ent.ID] = true
	}
	for _, ent := range e.prev {
		if !liveIDs[ent.ID] {
			e.detector.Drop(ent.ID)
		}
	}

	e.prev = live
	if len(live) > e.entityPeak {
		e.entityPeak = len(live)
	}
	return nil
}

func (e *Engine) stageRender(_ context.Context, tick uint64) error {
	snap := model.TickSnapshot{
		Tick:        tick,
		Entities:    e.prev,
		RenderOrder: e.renderer.OrderIDs(e.prev),
	}
	e.timeline = append(e.timeline, snap)
	if e.publisher != nil {
		e.publisher.PublishTick(snap)
	}
	return nil
}

// CommitLog returns the append-only batch history.
func (e *Engine) CommitLog() []model.CommitBatch {
	return e.detector.Log()
}

// Timeline returns the per-tick entity snapshots in tick order.
func (e *Engine) Timeline() []model.TickSnapshot {
	out := make([]model.TickSnapshot, len(e.timeline))
	copy(out, e.timeline)
	return out
}

// Checkpoint captures the lattice for run continuation.
func (e *Engine) Checkpoint(runID string) model.FieldCheckpoint {
	return model.FieldCheckpoint{
		RunID: runID,
		Tick:  e.clk.Tick(),
		Dims:  e.lattice.Dims(),
		Cells: e.lattice.Snapshot(),
	}
}

// RestoreField overwrites the lattice from a checkpoint.
func (e *Engine) RestoreField(cp model.FieldCheckpoint) error {
	return e.lattice.Restore(cp.Cells)
}

// ClampHits counts recovered divergences since construction.
func (e *Engine) ClampHits() uint64 {
	return e.clampHits
}

// EntityPeak is the largest live entity count seen so far.
func (e *Engine) EntityPeak() int {
	return e.entityPeak
}
