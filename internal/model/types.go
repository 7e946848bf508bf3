package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// CommitTag classifies a point-of-fact record.
type CommitTag string

const (
	// TagCommit marks the first threshold crossing of a unit within a tick.
	TagCommit CommitTag = "commit"
	// TagRepeat marks additional crossings of the same unit within one tick.
	TagRepeat CommitTag = "repeat"
	// TagInterpolated marks a crossing integrated from carried-forward drive
	// while the unit was unobserved.
	TagInterpolated CommitTag = "interpolated"
)

// CommitRecord is one point-of-fact entry. Records are append-only and never
// mutated after creation.
//
// Theta is the accumulator value when the tick's check ran, before the
// carry-over reset. Crossings emitted in the same tick share it: the
// accumulator holds a single value per tick, so per-rung intermediate values
// do not exist.
type CommitRecord struct {
	Tick     uint64    `json:"tick"`
	UnitID   string    `json:"unit_id"`
	Crossing int       `json:"crossing"`
	Theta    float64   `json:"theta_at_commit"`
	Tag      CommitTag `json:"tag"`
}

// CommitBatch groups every commit emitted during a single tick. Crossings that
// land on the same tick are merged here, never split across ticks.
type CommitBatch struct {
	Tick    uint64         `json:"tick"`
	UnitIDs []string       `json:"unit_ids"`
	Records []CommitRecord `json:"records"`
}

// EntitySnapshot is the per-tick exported view of one tracked entity.
type EntitySnapshot struct {
	ID       string    `json:"entity_id"`
	Position []float64 `json:"position"`
	Salience float64   `json:"salience"`
	Age      uint64    `json:"age"`
	Lag      int       `json:"lag"`
}

// TickSnapshot is the exported state of one tick: the live entities in
// registry order plus the derived back-to-front render order.
type TickSnapshot struct {
	Tick        uint64           `json:"tick"`
	Entities    []EntitySnapshot `json:"entities"`
	RenderOrder []string         `json:"render_order,omitempty"`
}

// FieldCheckpoint stores a full lattice snapshot for run continuation.
type FieldCheckpoint struct {
	VersionedRecord
	RunID string    `json:"run_id"`
	Tick  uint64    `json:"tick"`
	Dims  []int     `json:"dims"`
	Cells []float64 `json:"cells"`
}

// RunRecord summarises a completed or in-progress simulation run.
type RunRecord struct {
	VersionedRecord
	ID           string `json:"id"`
	CreatedAtUTC string `json:"created_at_utc"`
	Ticks        uint64 `json:"ticks"`
	Seed         int64  `json:"seed"`
	CommitCount  int    `json:"commit_count"`
	EntityPeak   int    `json:"entity_peak"`
	ClampHits    uint64 `json:"clamp_hits"`
}
