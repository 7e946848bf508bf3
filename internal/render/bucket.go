package render

import (
	"errors"

	"github.com/jerry-samek/tick-frame-space-sub001/internal/model"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/num"
)

// BucketRenderer orders entities back-to-front by integer lag without a
// comparison sort: entities are binned into [0, maxLag] buckets and drained
// from maxLag down to 0. Within a bucket insertion order is preserved.
//
// Entities with lag beyond maxLag are clipped to maxLag rather than dropped:
// the temporal horizon keeps stale entities visible at the far plane instead
// of making them vanish.
type BucketRenderer struct {
	maxLag  int
	buckets [][]model.EntitySnapshot
}

func NewBucketRenderer(maxLag int) (*BucketRenderer, error) {
	if maxLag < 0 {
		return nil, errors.New("max lag must be >= 0")
	}
	return &BucketRenderer{
		maxLag:  maxLag,
		buckets: make([][]model.EntitySnapshot, maxLag+1),
	}, nil
}

// Order returns the render sequence for one frame. Total work is
// O(n + maxLag): one fill pass, one drain pass.
func (r *BucketRenderer) Order(entities []model.EntitySnapshot) []model.EntitySnapshot {
	for i := range r.buckets {
		r.buckets[i] = r.buckets[i][:0]
	}
	for _, e := range entities {
		lag := num.Clamp(e.Lag, 0, r.maxLag)
		r.buckets[lag] = append(r.buckets[lag], e)
	}

	out := make([]model.EntitySnapshot, 0, len(entities))
	for lag := r.maxLag; lag >= 0; lag-- {
		out = append(out, r.buckets[lag]...)
	}
	return out
}

// OrderIDs is Order reduced to entity IDs, the form exported per tick.
func (r *BucketRenderer) OrderIDs(entities []model.EntitySnapshot) []string {
	ordered := r.Order(entities)
	ids := make([]string, len(ordered))
	for i, e := range ordered {
		ids[i] = e.ID
	}
	return ids
}
