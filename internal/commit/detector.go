package commit

import (
	"errors"
	"sort"

	"github.com/jerry-samek/tick-frame-space-sub001/internal/model"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/num"
)

// Detector integrates per-unit progress accumulators and emits point-of-fact
// records when an accumulator crosses the threshold ladder n + delta.
//
// The reset is a carry-over, not a zeroing: after emitting crossings 1..n the
// accumulator keeps Theta - (n + delta), so sub-threshold residue survives and
// the hysteresis margin delta prevents immediate re-triggering.
type Detector struct {
	omega    float64
	delta    float64
	driveMin float64
	driveMax float64

	units map[string]*unit
	order []string

	log []model.CommitBatch
}

type unit struct {
	theta               float64
	lastDrive           float64
	pendingInterpolated bool
}

// Options bound the detector. Drive bounds are configuration knobs because
// the functional form of F is deliberately left tunable.
type Options struct {
	Omega    float64
	Delta    float64
	DriveMin float64
	DriveMax float64
}

func NewDetector(opts Options) (*Detector, error) {
	if opts.Omega <= 0 {
		return nil, errors.New("omega must be > 0")
	}
	if opts.Delta <= 0 || opts.Delta >= 1 {
		return nil, errors.New("delta must be in (0, 1)")
	}
	if opts.DriveMin <= 0 || opts.DriveMax < opts.DriveMin {
		return nil, errors.New("drive bounds require 0 < min <= max")
	}
	return &Detector{
		omega:    opts.Omega,
		delta:    opts.Delta,
		driveMin: opts.DriveMin,
		driveMax: opts.DriveMax,
		units:    make(map[string]*unit),
	}, nil
}

// Theta returns the current accumulator for a unit.
func (d *Detector) Theta(unitID string) (float64, bool) {
	u, ok := d.units[unitID]
	if !ok {
		return 0, false
	}
	return u.theta, true
}

// Drop removes a unit and its residue, used when its entity dissolves.
func (d *Detector) Drop(unitID string) {
	if _, ok := d.units[unitID]; !ok {
		return
	}
	delete(d.units, unitID)
	for i, id := range d.order {
		if id == unitID {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Sample feeds one unit's drive for the current tick. Interpolated samples
// reuse the unit's last observed drive; pass drive < 0 to request that.
func (d *Detector) Sample(unitID string, drive float64, interpolated bool) {
	u, ok := d.units[unitID]
	if !ok {
		u = &unit{}
		d.units[unitID] = u
		d.order = append(d.order, unitID)
	}
	if interpolated {
		drive = u.lastDrive
	} else {
		drive = num.Clamp(drive, d.driveMin, d.driveMax)
		u.lastDrive = drive
	}
	u.theta += d.omega * drive
	u.pendingInterpolated = interpolated
}

// Check sweeps every sampled unit and merges all crossings for this tick into
// one batch. A large spike crossing several rungs emits one record per rung,
// in ascending order, on the same tick; the overflow is never dropped.
func (d *Detector) Check(tick uint64) (model.CommitBatch, bool) {
	batch := model.CommitBatch{Tick: tick}

	for _, unitID := range d.order {
		u := d.units[unitID]
		crossed := 0
		for u.theta >= float64(crossed+1)+d.delta {
			crossed++
		}
		if crossed == 0 {
			continue
		}

		for n := 1; n <= crossed; n++ {
			tag := model.TagCommit
			if u.pendingInterpolated {
				tag = model.TagInterpolated
			} else if n > 1 {
				tag = model.TagRepeat
			}
			batch.Records = append(batch.Records, model.CommitRecord{
				Tick:     tick,
				UnitID:   unitID,
				Crossing: n,
				Theta:    u.theta,
				Tag:      tag,
			})
		}
		u.theta -= float64(crossed) + d.delta
		batch.UnitIDs = append(batch.UnitIDs, unitID)
	}

	if len(batch.Records) == 0 {
		return model.CommitBatch{}, false
	}
	sort.Strings(batch.UnitIDs)
	d.log = append(d.log, batch)
	return batch, true
}

// Log returns the append-only batch history. The slice is a copy; records are
// immutable once emitted.
func (d *Detector) Log() []model.CommitBatch {
	out := make([]model.CommitBatch, len(d.log))
	copy(out, d.log)
	return out
}
