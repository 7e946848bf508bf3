package storage

import (
	"context"

	"github.com/jerry-samek/tick-frame-space-sub001/internal/model"
)

// Store defines persistence operations for simulation runs. The commit log is
// append-only: AppendCommits never rewrites previously stored batches.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	AppendCommits(ctx context.Context, runID string, batches []model.CommitBatch) error
	GetCommits(ctx context.Context, runID string) ([]model.CommitBatch, bool, error)
	SaveTimeline(ctx context.Context, runID string, timeline []model.TickSnapshot) error
	GetTimeline(ctx context.Context, runID string) ([]model.TickSnapshot, bool, error)
	SaveCheckpoint(ctx context.Context, checkpoint model.FieldCheckpoint) error
	GetCheckpoint(ctx context.Context, runID string) (model.FieldCheckpoint, bool, error)
}
