// Package tickspace is the embedding API for the discrete tick-frame
// simulator. It wires the engine, persistence, and artifact layers behind a
// single client so hosts do not have to assemble them by hand.
package tickspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jerry-samek/tick-frame-space-sub001/internal/config"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/engine"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/model"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/stats"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/storage"
)

const (
	defaultArtifactsDir = "artifacts"
	defaultExportsDir   = "exports"
	defaultDBPath       = "tickspace.db"
	defaultTicks        = 100
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       *slog.Logger
}

type Client struct {
	store  storage.Store
	logger *slog.Logger

	artifactsDir string
	exportsDir   string
}

type RunRequest struct {
	// RunID names the run; empty generates one.
	RunID string
	// ConfigPath loads the run configuration from disk. Config takes
	// precedence when both are set.
	ConfigPath string
	Config     *config.Config
	Ticks      uint64
	// Seed overrides the configured RNG seed when non-zero.
	Seed int64
	// ContinueFrom restores the lattice from a stored checkpoint before
	// stepping.
	ContinueFrom string
	// SkipArtifacts suppresses the on-disk artifact bundle.
	SkipArtifacts bool
	// Publisher receives every tick snapshot as it is produced; nil means
	// no streaming.
	Publisher engine.Publisher
}

type RunSummary struct {
	RunID        string
	Ticks        uint64
	CommitCount  int
	EntityPeak   int
	ClampHits    uint64
	ArtifactsDir string
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Ticks        uint64
	Seed         int64
	CommitCount  int
	EntityPeak   int
	ClampHits    uint64
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		logger:       logger,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

// Run executes a simulation to completion and persists its outputs.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	cfg, err := c.resolveConfig(req)
	if err != nil {
		return RunSummary{}, err
	}
	if req.Seed != 0 {
		cfg.Seed = req.Seed
	}
	ticks := req.Ticks
	if ticks == 0 {
		ticks = defaultTicks
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	if err := c.store.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	opts := []engine.Option{engine.WithLogger(c.logger.With("run_id", runID))}
	if req.Publisher != nil {
		opts = append(opts, engine.WithPublisher(req.Publisher))
	}
	eng, err := engine.New(cfg, opts...)
	if err != nil {
		return RunSummary{}, err
	}

	if req.ContinueFrom != "" {
		checkpoint, ok, err := c.store.GetCheckpoint(ctx, req.ContinueFrom)
		if err != nil {
			return RunSummary{}, err
		}
		if !ok {
			return RunSummary{}, fmt.Errorf("no checkpoint for run %s", req.ContinueFrom)
		}
		if err := eng.RestoreField(checkpoint); err != nil {
			return RunSummary{}, err
		}
	}

	if err := eng.Run(ctx, ticks); err != nil {
		return RunSummary{}, err
	}

	commitLog := eng.CommitLog()
	timeline := eng.Timeline()
	commitCount := 0
	for _, batch := range commitLog {
		commitCount += len(batch.Records)
	}

	record := model.RunRecord{
		ID:           runID,
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339),
		Ticks:        eng.Tick(),
		Seed:         cfg.Seed,
		CommitCount:  commitCount,
		EntityPeak:   eng.EntityPeak(),
		ClampHits:    eng.ClampHits(),
	}
	storage.Stamp(&record.VersionedRecord)

	if err := c.store.SaveRun(ctx, record); err != nil {
		return RunSummary{}, err
	}
	if err := c.store.AppendCommits(ctx, runID, commitLog); err != nil {
		return RunSummary{}, err
	}
	if err := c.store.SaveTimeline(ctx, runID, timeline); err != nil {
		return RunSummary{}, err
	}
	if err := c.store.SaveCheckpoint(ctx, eng.Checkpoint(runID)); err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{
		RunID:       runID,
		Ticks:       record.Ticks,
		CommitCount: commitCount,
		EntityPeak:  record.EntityPeak,
		ClampHits:   record.ClampHits,
	}

	if !req.SkipArtifacts {
		runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
			RunID:     runID,
			Config:    cfg,
			Summary:   record,
			CommitLog: commitLog,
			Timeline:  timeline,
		})
		if err != nil {
			return RunSummary{}, err
		}
		if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
			RunID:        runID,
			Ticks:        record.Ticks,
			Seed:         record.Seed,
			CommitCount:  record.CommitCount,
			EntityPeak:   record.EntityPeak,
			ClampHits:    record.ClampHits,
			CreatedAtUTC: record.CreatedAtUTC,
		}); err != nil {
			return RunSummary{}, err
		}
		summary.ArtifactsDir = runDir
	}

	return summary, nil
}

func (c *Client) resolveConfig(req RunRequest) (config.Config, error) {
	if req.Config != nil {
		cfg := *req.Config
		return cfg, cfg.Validate()
	}
	if req.ConfigPath != "" {
		return config.Load(req.ConfigPath)
	}
	return config.Default(), nil
}

// Runs lists stored runs, newest first.
func (c *Client) Runs(ctx context.Context, limit int) ([]RunItem, error) {
	if err := c.store.Init(ctx); err != nil {
		return nil, err
	}
	records, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	items := make([]RunItem, 0, len(records))
	for _, record := range records {
		items = append(items, RunItem{
			RunID:        record.ID,
			CreatedAtUTC: record.CreatedAtUTC,
			Ticks:        record.Ticks,
			Seed:         record.Seed,
			CommitCount:  record.CommitCount,
			EntityPeak:   record.EntityPeak,
			ClampHits:    record.ClampHits,
		})
	}
	return items, nil
}

// Commits returns the append-only commit log for a run.
func (c *Client) Commits(ctx context.Context, runID string, latest bool) ([]model.CommitBatch, error) {
	id, err := c.resolveRunID(ctx, runID, latest)
	if err != nil {
		return nil, err
	}
	batches, ok, err := c.store.GetCommits(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []model.CommitBatch{}, nil
	}
	return batches, nil
}

// Entities returns the per-tick entity timeline for a run.
func (c *Client) Entities(ctx context.Context, runID string, latest bool) ([]model.TickSnapshot, error) {
	id, err := c.resolveRunID(ctx, runID, latest)
	if err != nil {
		return nil, err
	}
	timeline, ok, err := c.store.GetTimeline(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []model.TickSnapshot{}, nil
	}
	return timeline, nil
}

// Export copies a run's artifact bundle into the exports directory.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	id, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	outDir := req.OutDir
	if outDir == "" {
		outDir = c.exportsDir
	}
	dst, err := stats.ExportRunArtifacts(c.artifactsDir, id, outDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: id, Directory: dst}, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", errors.New("run id is required unless latest is requested")
	}
	if err := c.store.Init(ctx); err != nil {
		return "", err
	}
	records, err := c.store.ListRuns(ctx)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", errors.New("no stored runs")
	}
	return records[0].ID, nil
}
