package field

import (
	"math"
	"testing"

	"github.com/jerry-samek/tick-frame-space-sub001/internal/config"
)

func testConfig(dims ...int) config.Config {
	cfg := config.Default()
	cfg.Dims = dims
	return cfg
}

func TestNewInitialisesToEpsilon(t *testing.T) {
	f, err := New(testConfig(4, 4))
	if err != nil {
		t.Fatalf("new field: %v", err)
	}
	for idx, v := range f.Snapshot() {
		if v != config.Default().Epsilon {
			t.Fatalf("cell %d initialised to %g, expected epsilon", idx, v)
		}
	}
}

func TestStepClampsSeededSpike(t *testing.T) {
	// Scenario: psi_max=100, one cell seeded at 1000. After one tick no cell
	// may exceed the clamp bound.
	cfg := testConfig(8, 8)
	cfg.PsiMax = 100
	cfg.Seeds = []config.Seed{{Cell: []int{4, 4}, Value: 1000}}

	f, err := New(cfg)
	if err != nil {
		t.Fatalf("new field: %v", err)
	}

	hits := f.Step(nil)
	if len(hits) == 0 {
		t.Fatal("expected clamp hits from seeded spike")
	}
	for idx, v := range f.Snapshot() {
		if v > cfg.PsiMax {
			t.Fatalf("cell %d holds %g, exceeds psi_max %g", idx, v, cfg.PsiMax)
		}
		if v < cfg.Epsilon {
			t.Fatalf("cell %d holds %g, below epsilon %g", idx, v, cfg.Epsilon)
		}
	}
}

func TestStepIsDeterministic(t *testing.T) {
	cfg := testConfig(6, 6)
	cfg.Seeds = []config.Seed{{Cell: []int{2, 3}, Value: 10}}

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new field: %v", err)
	}
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("new field: %v", err)
	}

	for i := 0; i < 20; i++ {
		a.Step(nil)
		b.Step(nil)
	}

	sa, sb := a.Snapshot(), b.Snapshot()
	for i := range sa {
		if sa[i] != sb[i] {
			t.Fatalf("tick 20 cell %d diverged: %g vs %g", i, sa[i], sb[i])
		}
	}
}

func TestStepDiffusesTowardNeighbors(t *testing.T) {
	cfg := testConfig(5, 5)
	cfg.Seeds = []config.Seed{{Cell: []int{2, 2}, Value: 10}}

	f, err := New(cfg)
	if err != nil {
		t.Fatalf("new field: %v", err)
	}
	f.Step(nil)

	center, _ := f.At([]int{2, 2})
	side, _ := f.At([]int{2, 3})
	far, _ := f.At([]int{0, 0})
	if center >= 10 {
		t.Fatalf("center should damp below seed value, got %g", center)
	}
	if side <= cfg.Epsilon {
		t.Fatalf("adjacent cell should gain mass, got %g", side)
	}
	if far > 2*cfg.Epsilon {
		t.Fatalf("distant cell should stay near epsilon after one tick, got %g", far)
	}
}

func TestBoundaryPolicies(t *testing.T) {
	for _, policy := range []config.BoundaryPolicy{
		config.BoundaryReflective,
		config.BoundaryPeriodic,
		config.BoundaryAbsorbing,
	} {
		t.Run(string(policy), func(t *testing.T) {
			cfg := testConfig(4)
			cfg.Boundary = policy
			cfg.Seeds = []config.Seed{{Cell: []int{0}, Value: 8}}

			f, err := New(cfg)
			if err != nil {
				t.Fatalf("new field: %v", err)
			}
			f.Step(nil)
			edge, _ := f.At([]int{0})

			// gamma=0.25: (1-g)*8 + g*mean(left, right).
			var wantMean float64
			switch policy {
			case config.BoundaryReflective:
				wantMean = (8 + cfg.Epsilon) / 2
			case config.BoundaryPeriodic:
				wantMean = (cfg.Epsilon + cfg.Epsilon) / 2
			case config.BoundaryAbsorbing:
				wantMean = (0 + cfg.Epsilon) / 2
			}
			want := (1-cfg.Gamma)*8 + cfg.Gamma*wantMean
			if math.Abs(edge-want) > 1e-12 {
				t.Fatalf("edge value %g, want %g", edge, want)
			}
		})
	}
}

func TestEmitterWindow(t *testing.T) {
	cfg := testConfig(4, 4)
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("new field: %v", err)
	}
	em, err := NewEmitter(f, []config.Source{
		{Cell: []int{1, 1}, Strength: 2, FromTick: 5, UntilTick: 7},
	})
	if err != nil {
		t.Fatalf("new emitter: %v", err)
	}

	if em.ForTick(4) != nil {
		t.Fatal("source should be inactive before from_tick")
	}
	emit := em.ForTick(5)
	if emit == nil {
		t.Fatal("source should be active at from_tick")
	}
	idx, _ := f.Index([]int{1, 1})
	if got := emit(idx); got != 2 {
		t.Fatalf("emission at source cell = %g, want 2", got)
	}
	if got := emit(idx + 1); got != 0 {
		t.Fatalf("emission off source cell = %g, want 0", got)
	}
	if em.ForTick(8) != nil {
		t.Fatal("source should expire after until_tick")
	}
}

func TestIndexRejectsOutOfRange(t *testing.T) {
	f, err := New(testConfig(4, 4))
	if err != nil {
		t.Fatalf("new field: %v", err)
	}
	if _, err := f.Index([]int{4, 0}); err == nil {
		t.Fatal("expected out-of-range error")
	}
	if _, err := f.Index([]int{0}); err == nil {
		t.Fatal("expected rank mismatch error")
	}
}
