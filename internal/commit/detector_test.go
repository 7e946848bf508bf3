package commit

import (
	"math"
	"testing"

	"github.com/jerry-samek/tick-frame-space-sub001/internal/model"
)

func newTestDetector(t *testing.T, omega, delta float64) *Detector {
	t.Helper()
	d, err := NewDetector(Options{Omega: omega, Delta: delta, DriveMin: 1e-9, DriveMax: 100})
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	return d
}

func TestNewDetectorValidation(t *testing.T) {
	cases := []Options{
		{Omega: 0, Delta: 0.1, DriveMin: 0.1, DriveMax: 1},
		{Omega: 1, Delta: 0, DriveMin: 0.1, DriveMax: 1},
		{Omega: 1, Delta: 1, DriveMin: 0.1, DriveMax: 1},
		{Omega: 1, Delta: 0.1, DriveMin: 0, DriveMax: 1},
		{Omega: 1, Delta: 0.1, DriveMin: 1, DriveMax: 0.5},
	}
	for i, opts := range cases {
		if _, err := NewDetector(opts); err == nil {
			t.Fatalf("case %d: expected validation error for %+v", i, opts)
		}
	}
}

func TestCommitRequiresHysteresisMargin(t *testing.T) {
	d := newTestDetector(t, 1.0, 0.05)

	// Theta reaches exactly 1.0: crossed the integer but not the margin.
	d.Sample("u1", 1.0, false)
	if _, ok := d.Check(1); ok {
		t.Fatal("theta=1.0 must not commit below 1+delta")
	}

	// Push past 1+delta.
	d.Sample("u1", 0.1, false)
	batch, ok := d.Check(2)
	if !ok {
		t.Fatal("theta=1.1 should commit past 1+delta")
	}
	if len(batch.Records) != 1 || batch.Records[0].Crossing != 1 {
		t.Fatalf("unexpected batch: %+v", batch)
	}
}

func TestThetaCarryOverConservation(t *testing.T) {
	delta := 0.05
	d := newTestDetector(t, 1.0, delta)

	// Increments of 0.04 < delta keep the slow-regime residue bound.
	inc := 0.04
	var before float64
	for tick := uint64(1); tick <= 100; tick++ {
		d.Sample("u1", inc, false)
		before, _ = d.Theta("u1")
		batch, ok := d.Check(tick)
		if !ok {
			continue
		}
		after, _ := d.Theta("u1")
		n := batch.Records[len(batch.Records)-1].Crossing
		want := before - (float64(n) + delta)
		if math.Abs(after-want) > 1e-12 {
			t.Fatalf("tick %d: theta_after=%g, want before-(n+delta)=%g", tick, after, want)
		}
		if after < 0 || after >= delta {
			t.Fatalf("tick %d: residue %g outside [0, delta)", tick, after)
		}
	}
}

func TestCommitOverflowEmitsAllCrossingsSameTick(t *testing.T) {
	d := newTestDetector(t, 1.0, 0.1)

	// One spike worth 3.5: crossings at 1.1, 2.1 and 3.1 all in one tick.
	d.Sample("spike", 3.5, false)
	batch, ok := d.Check(7)
	if !ok {
		t.Fatal("expected commit batch")
	}
	if len(batch.Records) != 3 {
		t.Fatalf("expected 3 records for triple crossing, got %d", len(batch.Records))
	}
	for i, rec := range batch.Records {
		if rec.Tick != 7 {
			t.Fatalf("record %d on tick %d, crossings must not split across ticks", i, rec.Tick)
		}
		if rec.Crossing != i+1 {
			t.Fatalf("record %d has crossing %d, want ascending order", i, rec.Crossing)
		}
	}
	if batch.Records[0].Tag != model.TagCommit {
		t.Fatalf("first crossing tagged %s, want commit", batch.Records[0].Tag)
	}
	for _, rec := range batch.Records[1:] {
		if rec.Tag != model.TagRepeat {
			t.Fatalf("overflow crossing tagged %s, want repeat", rec.Tag)
		}
	}

	// All crossings of one tick share the pre-reset accumulator value; the
	// accumulator has no per-rung intermediate states.
	for i, rec := range batch.Records {
		if math.Abs(rec.Theta-3.5) > 1e-12 {
			t.Fatalf("record %d theta %g, want shared pre-reset value 3.5", i, rec.Theta)
		}
	}

	after, _ := d.Theta("spike")
	want := 3.5 - (3 + 0.1)
	if math.Abs(after-want) > 1e-12 {
		t.Fatalf("residue %g, want %g", after, want)
	}
}

func TestSameTickCrossingsMergeIntoOneBatch(t *testing.T) {
	d := newTestDetector(t, 1.0, 0.05)
	d.Sample("b", 1.2, false)
	d.Sample("a", 1.3, false)

	batch, ok := d.Check(3)
	if !ok {
		t.Fatal("expected commit batch")
	}
	if len(batch.UnitIDs) != 2 {
		t.Fatalf("expected both units in one batch, got %v", batch.UnitIDs)
	}
	if batch.UnitIDs[0] != "a" || batch.UnitIDs[1] != "b" {
		t.Fatalf("unit ids not in stable sorted order: %v", batch.UnitIDs)
	}
}

func TestInterpolatedSampleReusesLastDrive(t *testing.T) {
	d := newTestDetector(t, 1.0, 0.05)
	d.Sample("u1", 0.6, false)
	if _, ok := d.Check(1); ok {
		t.Fatal("unexpected early commit")
	}

	// Unit unobserved this tick: integrate the carried drive.
	d.Sample("u1", -1, true)
	batch, ok := d.Check(2)
	if !ok {
		t.Fatal("interpolated drive should reach 1.2 and commit")
	}
	if batch.Records[0].Tag != model.TagInterpolated {
		t.Fatalf("tag %s, want interpolated", batch.Records[0].Tag)
	}
}

func TestLogIsAppendOnlyAndMonotonic(t *testing.T) {
	d := newTestDetector(t, 1.0, 0.05)
	for tick := uint64(1); tick <= 30; tick++ {
		d.Sample("u1", 0.4, false)
		d.Check(tick)
	}

	log := d.Log()
	if len(log) == 0 {
		t.Fatal("expected commits in log")
	}
	var last uint64
	for _, batch := range log {
		if batch.Tick < last {
			t.Fatalf("batch tick %d precedes %d, log must be non-decreasing", batch.Tick, last)
		}
		last = batch.Tick
	}
}

func TestDropClearsResidue(t *testing.T) {
	d := newTestDetector(t, 1.0, 0.05)
	d.Sample("u1", 0.5, false)
	d.Drop("u1")
	if _, ok := d.Theta("u1"); ok {
		t.Fatal("dropped unit should have no accumulator")
	}
	d.Sample("u1", 0.5, false)
	theta, _ := d.Theta("u1")
	if theta != 0.5 {
		t.Fatalf("re-created unit theta %g, want fresh 0.5", theta)
	}
}
