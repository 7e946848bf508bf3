package storage

import (
	"context"
	"testing"

	"github.com/jerry-samek/tick-frame-space-sub001/internal/model"
)

func TestMemoryStoreRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := model.RunRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		ID:              "run-1",
		CreatedAtUTC:    "2026-08-30T12:00:00Z",
		Ticks:           100,
		Seed:            42,
		CommitCount:     7,
	}
	if err := store.SaveRun(ctx, input); err != nil {
		t.Fatalf("save run: %v", err)
	}

	output, ok, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted run")
	}
	if output.Ticks != 100 || output.CommitCount != 7 {
		t.Fatalf("unexpected run: %+v", output)
	}
}

func TestMemoryStoreListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, run := range []model.RunRecord{
		{ID: "run-old", CreatedAtUTC: "2026-08-29T00:00:00Z"},
		{ID: "run-new", CreatedAtUTC: "2026-08-30T00:00:00Z"},
		{ID: "run-also-new", CreatedAtUTC: "2026-08-30T00:00:00Z"},
	} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", run.ID, err)
		}
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("unexpected run count: %d", len(runs))
	}
	if runs[0].ID != "run-also-new" || runs[1].ID != "run-new" || runs[2].ID != "run-old" {
		t.Fatalf("unexpected order: %s %s %s", runs[0].ID, runs[1].ID, runs[2].ID)
	}
}

func TestMemoryStoreCommitsAppendOnly(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	first := []model.CommitBatch{{
		Tick:    3,
		UnitIDs: []string{"ent-000001"},
		Records: []model.CommitRecord{{Tick: 3, UnitID: "ent-000001", Crossing: 1, Tag: model.TagCommit}},
	}}
	second := []model.CommitBatch{{
		Tick:    5,
		UnitIDs: []string{"ent-000002"},
		Records: []model.CommitRecord{{Tick: 5, UnitID: "ent-000002", Crossing: 1, Tag: model.TagCommit}},
	}}

	if err := store.AppendCommits(ctx, "run-1", first); err != nil {
		t.Fatalf("append first: %v", err)
	}
	if err := store.AppendCommits(ctx, "run-1", second); err != nil {
		t.Fatalf("append second: %v", err)
	}

	batches, ok, err := store.GetCommits(ctx, "run-1")
	if err != nil {
		t.Fatalf("get commits: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted commits")
	}
	if len(batches) != 2 || batches[0].Tick != 3 || batches[1].Tick != 5 {
		t.Fatalf("unexpected batches: %+v", batches)
	}
}

func TestMemoryStoreTimelineRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := []model.TickSnapshot{{
		Tick: 1,
		Entities: []model.EntitySnapshot{{
			ID:       "ent-000001",
			Position: []float64{2, 3},
			Salience: 0.8,
		}},
		RenderOrder: []string{"ent-000001"},
	}}
	if err := store.SaveTimeline(ctx, "run-1", input); err != nil {
		t.Fatalf("save timeline: %v", err)
	}

	output, ok, err := store.GetTimeline(ctx, "run-1")
	if err != nil {
		t.Fatalf("get timeline: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted timeline")
	}
	if len(output) != 1 || output[0].Entities[0].ID != "ent-000001" {
		t.Fatalf("unexpected timeline: %+v", output)
	}

	// Mutating the caller's slice must not touch the stored copy.
	input[0].Tick = 99
	output, _, _ = store.GetTimeline(ctx, "run-1")
	if output[0].Tick != 1 {
		t.Fatalf("stored timeline aliased caller slice: %+v", output)
	}
}

func TestMemoryStoreCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := model.FieldCheckpoint{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		RunID:           "run-1",
		Tick:            40,
		Dims:            []int{4, 4},
		Cells:           make([]float64, 16),
	}
	if err := store.SaveCheckpoint(ctx, input); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	output, ok, err := store.GetCheckpoint(ctx, "run-1")
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted checkpoint")
	}
	if output.Tick != 40 || len(output.Cells) != 16 {
		t.Fatalf("unexpected checkpoint: %+v", output)
	}
}

func TestMemoryStoreMissingRun(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	_, ok, err := store.GetRun(ctx, "missing")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if ok {
		t.Fatal("expected missing run")
	}
}
