package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/jerry-samek/tick-frame-space-sub001/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	commits     map[string][]model.CommitBatch
	timelines   map[string][]model.TickSnapshot
	checkpoints map[string]model.FieldCheckpoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.commits = make(map[string][]model.CommitBatch)
	s.timelines = make(map[string][]model.TickSnapshot)
	s.checkpoints = make(map[string]model.FieldCheckpoint)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAtUTC != out[b].CreatedAtUTC {
			return out[a].CreatedAtUTC > out[b].CreatedAtUTC
		}
		return out[a].ID < out[b].ID
	})
	return out, nil
}

func (s *MemoryStore) AppendCommits(_ context.Context, runID string, batches []model.CommitBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commits[runID] = append(s.commits[runID], batches...)
	return nil
}

func (s *MemoryStore) GetCommits(_ context.Context, runID string) ([]model.CommitBatch, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batches, ok := s.commits[runID]
	if !ok {
		return nil, false, nil
	}
	out := make([]model.CommitBatch, len(batches))
	copy(out, batches)
	return out, true, nil
}

func (s *MemoryStore) SaveTimeline(_ context.Context, runID string, timeline []model.TickSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]model.TickSnapshot, len(timeline))
	copy(stored, timeline)
	s.timelines[runID] = stored
	return nil
}

func (s *MemoryStore) GetTimeline(_ context.Context, runID string) ([]model.TickSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	timeline, ok := s.timelines[runID]
	if !ok {
		return nil, false, nil
	}
	out := make([]model.TickSnapshot, len(timeline))
	copy(out, timeline)
	return out, true, nil
}

func (s *MemoryStore) SaveCheckpoint(_ context.Context, checkpoint model.FieldCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[checkpoint.RunID] = checkpoint
	return nil
}

func (s *MemoryStore) GetCheckpoint(_ context.Context, runID string) (model.FieldCheckpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	checkpoint, ok := s.checkpoints[runID]
	return checkpoint, ok, nil
}
