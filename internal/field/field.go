package field

import (
	"errors"
	"fmt"

	"github.com/jerry-samek/tick-frame-space-sub001/internal/config"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/num"
)

// ClampHit reports a cell whose raw update escaped the configured bounds and
// was pulled back. Divergence is recovered locally, never fatal.
type ClampHit struct {
	Cell []int
	Raw  float64
}

// Field owns the scalar lattice. The update is double-buffered: one buffer is
// read while the other is written, swapped after each step, so a step is a
// pure function of the previous snapshot.
type Field struct {
	dims    []int
	strides []int
	cells   []float64
	scratch []float64

	gamma    float64
	alpha    float64
	epsilon  float64
	psiMax   float64
	boundary config.BoundaryPolicy
}

// New builds a lattice initialised to epsilon everywhere, then applies the
// configured seeds as raw values. Raw seeds may exceed psi_max; the first
// step clamps them.
func New(cfg config.Config) (*Field, error) {
	if len(cfg.Dims) == 0 {
		return nil, errors.New("field requires at least one dimension")
	}
	total := 1
	strides := make([]int, len(cfg.Dims))
	for axis := len(cfg.Dims) - 1; axis >= 0; axis-- {
		strides[axis] = total
		total *= cfg.Dims[axis]
	}

	f := &Field{
		dims:     append([]int(nil), cfg.Dims...),
		strides:  strides,
		cells:    make([]float64, total),
		scratch:  make([]float64, total),
		gamma:    cfg.Gamma,
		alpha:    cfg.Alpha,
		epsilon:  cfg.Epsilon,
		psiMax:   cfg.PsiMax,
		boundary: cfg.Boundary,
	}
	for i := range f.cells {
		f.cells[i] = cfg.Epsilon
	}
	for _, seed := range cfg.Seeds {
		idx, err := f.index(seed.Cell)
		if err != nil {
			return nil, err
		}
		f.cells[idx] = seed.Value
	}
	return f, nil
}

// Dims returns the per-axis sizes.
func (f *Field) Dims() []int {
	return append([]int(nil), f.dims...)
}

// Len returns the total cell count.
func (f *Field) Len() int {
	return len(f.cells)
}

// At reads one cell by coordinates.
func (f *Field) At(cell []int) (float64, error) {
	idx, err := f.index(cell)
	if err != nil {
		return 0, err
	}
	return f.cells[idx], nil
}

// Set writes one raw cell value. Only meant for seeding and tests; the next
// step clamps whatever was written.
func (f *Field) Set(cell []int, v float64) error {
	idx, err := f.index(cell)
	if err != nil {
		return err
	}
	f.cells[idx] = v
	return nil
}

// Snapshot copies the current lattice. Consumers own the returned slice.
func (f *Field) Snapshot() []float64 {
	out := make([]float64, len(f.cells))
	copy(out, f.cells)
	return out
}

// Restore overwrites the lattice from a checkpoint snapshot.
func (f *Field) Restore(cells []float64) error {
	if len(cells) != len(f.cells) {
		return fmt.Errorf("checkpoint size %d does not match lattice size %d", len(cells), len(f.cells))
	}
	copy(f.cells, cells)
	return nil
}

// Step applies one tick of the update rule:
//
//	psi(x,t+1) = clip((1-gamma)*psi(x,t) + gamma*mean(neighbors) + alpha*emit(x), epsilon, psi_max)
//
// emit may be nil when no source is active. The returned hits list the cells
// whose raw value escaped [epsilon, psi_max] before clipping.
func (f *Field) Step(emit func(idx int) float64) []ClampHit {
	var hits []ClampHit
	coord := make([]int, len(f.dims))

	for idx := range f.cells {
		mean := f.neighborMean(idx, coord)
		next := (1-f.gamma)*f.cells[idx] + f.gamma*mean
		if emit != nil {
			next += f.alpha * emit(idx)
		}
		if next < f.epsilon || next > f.psiMax {
			hits = append(hits, ClampHit{Cell: f.Coords(idx), Raw: next})
			next = num.Clamp(next, f.epsilon, f.psiMax)
		}
		f.scratch[idx] = next
	}

	f.cells, f.scratch = f.scratch, f.cells
	return hits
}

// neighborMean averages the 2d axis neighbors of idx under the boundary
// policy. Absorbing boundaries contribute zero while still counting toward
// the divisor, so mass leaks off-grid.
func (f *Field) neighborMean(idx int, coord []int) float64 {
	f.coordsInto(idx, coord)
	var sum float64
	count := 0
	for axis := range f.dims {
		for _, dir := range [2]int{-1, 1} {
			pos := coord[axis] + dir
			switch {
			case pos >= 0 && pos < f.dims[axis]:
				sum += f.cells[idx+dir*f.strides[axis]]
			case f.boundary == config.BoundaryPeriodic:
				wrapped := (pos + f.dims[axis]) % f.dims[axis]
				sum += f.cells[idx+(wrapped-coord[axis])*f.strides[axis]]
			case f.boundary == config.BoundaryReflective:
				// Mirror back onto the edge cell.
				sum += f.cells[idx]
			case f.boundary == config.BoundaryAbsorbing:
				// Contributes zero.
			}
			count++
		}
	}
	if count == 0 {
		return f.cells[idx]
	}
	return sum / float64(count)
}

// Coords expands a flat index into per-axis coordinates.
func (f *Field) Coords(idx int) []int {
	out := make([]int, len(f.dims))
	f.coordsInto(idx, out)
	return out
}

func (f *Field) coordsInto(idx int, out []int) {
	for axis := range f.dims {
		out[axis] = idx / f.strides[axis]
		idx %= f.strides[axis]
	}
}

// Index flattens per-axis coordinates, validating range.
func (f *Field) Index(cell []int) (int, error) {
	return f.index(cell)
}

func (f *Field) index(cell []int) (int, error) {
	if len(cell) != len(f.dims) {
		return 0, fmt.Errorf("cell rank %d does not match lattice rank %d", len(cell), len(f.dims))
	}
	idx := 0
	for axis, v := range cell {
		if v < 0 || v >= f.dims[axis] {
			return 0, fmt.Errorf("cell coordinate %d out of range [0, %d) on axis %d", v, f.dims[axis], axis)
		}
		idx += v * f.strides[axis]
	}
	return idx, nil
}
