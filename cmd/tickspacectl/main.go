package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jerry-samek/tick-frame-space-sub001/internal/config"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/engine"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/logging"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/model"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/observer"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/platform"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/storage"
	"github.com/jerry-samek/tick-frame-space-sub001/pkg/tickspace"
)

const (
	artifactsDir = "artifacts"
	exportsDir   = "exports"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "validate":
		return runValidate(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "commits":
		return runCommits(ctx, args[1:])
	case "entities":
		return runEntities(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "serve":
		return runServe(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func newClient(storeKind, dbPath, artifacts, logDir, runID string, debug bool) (*tickspace.Client, func() error, error) {
	logger, closeLog, err := logging.New(logging.Options{
		Dir:   logDir,
		RunID: runID,
		Debug: debug,
	})
	if err != nil {
		return nil, nil, err
	}

	client, err := tickspace.New(tickspace.Options{
		StoreKind:    storeKind,
		DBPath:       dbPath,
		ArtifactsDir: artifacts,
		ExportsDir:   exportsDir,
		Logger:       logger,
	})
	if err != nil {
		_ = closeLog()
		return nil, nil, err
	}

	closer := func() error {
		err := client.Close()
		if logErr := closeLog(); err == nil {
			err = logErr
		}
		return err
	}
	return client, closer, nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "run configuration JSON path; defaults built in")
	ticks := fs.Uint64("ticks", 100, "tick count to simulate")
	seed := fs.Int64("seed", 0, "override RNG seed when non-zero")
	runID := fs.String("run-id", "", "run identifier; generated when empty")
	continueFrom := fs.String("continue-from", "", "restore the lattice from this run's checkpoint")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "tickspace.db", "sqlite database path")
	artifacts := fs.String("artifacts-dir", artifactsDir, "artifact output directory")
	noArtifacts := fs.Bool("no-artifacts", false, "skip writing the artifact bundle")
	logDir := fs.String("log-dir", "", "write a per-run JSON log file into this directory")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, closer, err := newClient(*storeKind, *dbPath, *artifacts, *logDir, *runID, *debug)
	if err != nil {
		return err
	}
	defer func() {
		_ = closer()
	}()

	req := tickspace.RunRequest{
		RunID:         *runID,
		ConfigPath:    *configPath,
		Ticks:         *ticks,
		Seed:          *seed,
		ContinueFrom:  *continueFrom,
		SkipArtifacts: *noArtifacts,
	}
	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("run completed run_id=%s ticks=%s commits=%s entity_peak=%d clamp_hits=%d\n",
		summary.RunID, humanize.Comma(int64(summary.Ticks)), humanize.Comma(int64(summary.CommitCount)),
		summary.EntityPeak, summary.ClampHits)
	if summary.ArtifactsDir != "" {
		fmt.Printf("artifacts_dir=%s\n", filepath.Clean(summary.ArtifactsDir))
	}
	return nil
}

func runValidate(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	configPath := fs.String("config", "", "run configuration JSON path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return errors.New("config path is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	fmt.Printf("config valid dims=%v boundary=%s seed=%d sources=%d\n",
		cfg.Dims, cfg.Boundary, cfg.Seed, len(cfg.Sources))
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "tickspace.db", "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, closer, err := newClient(*storeKind, *dbPath, artifactsDir, "", "", false)
	if err != nil {
		return err
	}
	defer func() {
		_ = closer()
	}()

	items, err := client.Runs(ctx, *limit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	if *jsonOut {
		return printJSON(items)
	}
	for _, item := range items {
		fmt.Printf("run_id=%s created_at=%s ticks=%d seed=%d commits=%d entity_peak=%d clamp_hits=%d\n",
			item.RunID, item.CreatedAtUTC, item.Ticks, item.Seed, item.CommitCount, item.EntityPeak, item.ClampHits)
	}
	return nil
}

func runCommits(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("commits", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run identifier")
	latest := fs.Bool("latest", false, "use the most recent run")
	limit := fs.Int("limit", 0, "max commit records to print; 0 means all")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "tickspace.db", "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit commit log as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, closer, err := newClient(*storeKind, *dbPath, artifactsDir, "", "", false)
	if err != nil {
		return err
	}
	defer func() {
		_ = closer()
	}()

	batches, err := client.Commits(ctx, *runID, *latest)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		fmt.Println("no commits found")
		return nil
	}

	if *jsonOut {
		return printJSON(batches)
	}
	printed := 0
	for _, batch := range batches {
		for _, record := range batch.Records {
			if *limit > 0 && printed >= *limit {
				return nil
			}
			fmt.Printf("tick=%d unit_id=%s crossing=%d theta=%.6f tag=%s\n",
				record.Tick, record.UnitID, record.Crossing, record.Theta, record.Tag)
			printed++
		}
	}
	return nil
}

func runEntities(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("entities", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run identifier")
	latest := fs.Bool("latest", false, "use the most recent run")
	tick := fs.Uint64("tick", 0, "print a single tick; 0 means the final tick")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "tickspace.db", "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit the timeline as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, closer, err := newClient(*storeKind, *dbPath, artifactsDir, "", "", false)
	if err != nil {
		return err
	}
	defer func() {
		_ = closer()
	}()

	timeline, err := client.Entities(ctx, *runID, *latest)
	if err != nil {
		return err
	}
	if len(timeline) == 0 {
		fmt.Println("no entity timeline found")
		return nil
	}

	if *jsonOut {
		return printJSON(timeline)
	}

	snapshot := timeline[len(timeline)-1]
	if *tick > 0 {
		found := false
		for _, candidate := range timeline {
			if candidate.Tick == *tick {
				snapshot = candidate
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("no snapshot for tick %d", *tick)
		}
	}

	fmt.Printf("tick=%d entities=%d\n", snapshot.Tick, len(snapshot.Entities))
	for _, entity := range snapshot.Entities {
		fmt.Printf("entity_id=%s position=%v salience=%.6f age=%d lag=%d\n",
			entity.ID, entity.Position, entity.Salience, entity.Age, entity.Lag)
	}
	fmt.Printf("render_order=%v\n", snapshot.RenderOrder)
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run identifier")
	latest := fs.Bool("latest", false, "use the most recent run")
	outDir := fs.String("out", exportsDir, "export destination directory")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "tickspace.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, closer, err := newClient(*storeKind, *dbPath, artifactsDir, "", "", false)
	if err != nil {
		return err
	}
	defer func() {
		_ = closer()
	}()

	summary, err := client.Export(ctx, tickspace.ExportRequest{
		RunID:  *runID,
		Latest: *latest,
		OutDir: *outDir,
	})
	if err != nil {
		return err
	}

	fmt.Printf("exported run_id=%s dir=%s\n", summary.RunID, filepath.Clean(summary.Directory))
	return nil
}

// pacedPublisher slows tick fan-out so live observers can follow along.
type pacedPublisher struct {
	next     engine.Publisher
	interval time.Duration
}

func (p *pacedPublisher) PublishTick(snapshot model.TickSnapshot) {
	p.next.PublishTick(snapshot)
	if p.interval > 0 {
		time.Sleep(p.interval)
	}
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", ":8080", "listen address for the observer stream")
	configPath := fs.String("config", "", "run configuration JSON path; defaults built in")
	ticks := fs.Uint64("ticks", 1000, "tick count to simulate")
	seed := fs.Int64("seed", 0, "override RNG seed when non-zero")
	interval := fs.Duration("interval", 50*time.Millisecond, "delay between streamed ticks")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "tickspace.db", "sqlite database path")
	logDir := fs.String("log-dir", "", "write a per-run JSON log file into this directory")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger, closeLog, err := logging.New(logging.Options{Dir: *logDir, Debug: *debug})
	if err != nil {
		return err
	}
	defer func() {
		_ = closeLog()
	}()

	client, err := tickspace.New(tickspace.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	hub := observer.NewHub(logger)
	defer func() {
		_ = hub.Close()
	}()

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	server := &http.Server{Addr: *addr, Handler: mux}

	supervisor := platform.NewSupervisorWithHooks(platform.Policy{}, platform.Hooks{
		OnRestart: func(name string, err error, restartCount int) {
			logger.Warn("supervised task restarted", "task", name, "restarts", restartCount, "err", err)
		},
	})
	defer supervisor.StopAll()

	if err := supervisor.StartSpec(platform.ChildSpec{Name: "observer-http", Restart: platform.RestartOnFailure}, func(taskCtx context.Context) error {
		go func() {
			<-taskCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}); err != nil {
		return err
	}

	logger.Info("observer stream listening", "addr", *addr)

	summary, err := client.Run(ctx, tickspace.RunRequest{
		ConfigPath: *configPath,
		Ticks:      *ticks,
		Seed:       *seed,
		Publisher:  &pacedPublisher{next: hub, interval: *interval},
	})
	if err != nil {
		return err
	}

	fmt.Printf("run completed run_id=%s ticks=%d commits=%d dropped_frames=%d\n",
		summary.RunID, summary.Ticks, summary.CommitCount, hub.DroppedFrames())
	return nil
}

func printJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: tickspacectl <run|validate|runs|commits|entities|export|serve> [flags]", msg)
}
