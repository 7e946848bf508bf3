package entity

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/jerry-samek/tick-frame-space-sub001/internal/model"
)

// Ambiguity reports two candidate maxima that competed for the same entity.
// Resolution is deterministic (nearer wins, scan order breaks exact ties) and
// only surfaced for debug logging.
type Ambiguity struct {
	EntityID string
	WonCell  []int
	LostCell []int
}

// Tracker owns the entity registry exclusively. Identity is continuity of a
// matched trajectory: an entity keeps its ID as long as some maximum matches
// within the displacement bound, with up to lostLimit consecutive misses
// tolerated before deletion.
type Tracker struct {
	dims            []int
	radius          int
	detectThreshold float64
	dissolveLimit   float64
	lostLimit       int
	maxDisplacement float64

	entities map[string]*tracked
	order    []string
	nextSeq  uint64
}

type tracked struct {
	id       string
	pos      []int
	salience float64
	age      uint64
	lag      int
	missed   int
	weak     int
	matched  bool
}

// Options configure detection and lifecycle bounds.
type Options struct {
	Dims            []int
	SearchRadius    int
	DetectThreshold float64
	DissolveLimit   float64
	LostTickLimit   int
	MaxDisplacement float64
}

func NewTracker(opts Options) (*Tracker, error) {
	if len(opts.Dims) == 0 {
		return nil, errors.New("tracker requires lattice dims")
	}
	if opts.SearchRadius < 1 {
		return nil, errors.New("search radius must be >= 1")
	}
	if opts.DetectThreshold <= 0 {
		return nil, errors.New("detect threshold must be > 0")
	}
	if opts.LostTickLimit < 1 {
		return nil, errors.New("lost tick limit must be >= 1")
	}
	if opts.MaxDisplacement <= 0 {
		return nil, errors.New("max displacement must be > 0")
	}
	return &Tracker{
		dims:            append([]int(nil), opts.Dims...),
		radius:          opts.SearchRadius,
		detectThreshold: opts.DetectThreshold,
		dissolveLimit:   opts.DissolveLimit,
		lostLimit:       opts.LostTickLimit,
		maxDisplacement: opts.MaxDisplacement,
		entities:        make(map[string]*tracked),
	}, nil
}

// Maximum is one detected local maximum of the field snapshot.
type Maximum struct {
	Cell  []int
	Value float64
}

// DetectMaxima scans a flat snapshot for cells that dominate their Chebyshev
// neighborhood of the configured radius and reach the detect threshold.
// Scan order (ascending flat index) makes plateau ties deterministic: the
// first plateau cell wins, later equal cells are suppressed.
func (t *Tracker) DetectMaxima(cells []float64) []Maximum {
	var maxima []Maximum
	coord := make([]int, len(t.dims))
	neighbor := make([]int, len(t.dims))

	for idx, v := range cells {
		if v < t.detectThreshold {
			continue
		}
		t.coordsInto(idx, coord)
		if t.dominates(cells, idx, v, coord, neighbor) {
			maxima = append(maxima, Maximum{Cell: append([]int(nil), coord...), Value: v})
		}
	}
	return maxima
}

// dominates walks the Chebyshev box of radius r around coord. Cells before
// the center in scan order must be strictly smaller for the center to win a
// plateau; cells after it only need to be <=.
func (t *Tracker) dominates(cells []float64, idx int, v float64, coord, neighbor []int) bool {
	copy(neighbor, coord)
	return t.walkBox(cells, idx, v, coord, neighbor, 0)
}

func (t *Tracker) walkBox(cells []float64, idx int, v float64, coord, neighbor []int, axis int) bool {
	if axis == len(t.dims) {
		nIdx := t.flatten(neighbor)
		if nIdx == idx {
			return true
		}
		nv := cells[nIdx]
		if nv > v {
			return false
		}
		if nv == v && nIdx < idx {
			return false
		}
		return true
	}
	lo := coord[axis] - t.radius
	hi := coord[axis] + t.radius
	if lo < 0 {
		lo = 0
	}
	if hi > t.dims[axis]-1 {
		hi = t.dims[axis] - 1
	}
	for pos := lo; pos <= hi; pos++ {
		neighbor[axis] = pos
		if !t.walkBox(cells, idx, v, coord, neighbor, axis+1) {
			return false
		}
	}
	neighbor[axis] = coord[axis]
	return true
}

// Update re-fits the registry against this tick's maxima and applies the
// lifecycle rules. It returns the ordered live snapshot plus any tie-break
// ambiguities resolved along the way.
func (t *Tracker) Update(maxima []Maximum) ([]model.EntitySnapshot, []Ambiguity) {
	for _, e := range t.entities {
		e.matched = false
	}

	assignments, ambiguities := t.assign(maxima)

	claimed := make([]bool, len(maxima))
	for entityID, maxIdx := range assignments {
		e := t.entities[entityID]
		m := maxima[maxIdx]
		e.pos = append(e.pos[:0], m.Cell...)
		e.salience = m.Value
		e.matched = true
		e.missed = 0
		e.lag = 0
		claimed[maxIdx] = true
	}

	// Unclaimed maxima above the detect threshold become new entities.
	for i, m := range maxima {
		if claimed[i] {
			continue
		}
		t.nextSeq++
		id := fmt.Sprintf("ent-%06d", t.nextSeq)
		t.entities[id] = &tracked{
			id:       id,
			pos:      append([]int(nil), m.Cell...),
			salience: m.Value,
			matched:  true,
		}
		t.order = append(t.order, id)
	}

	// Age, lag and lifecycle pass over the whole registry.
	var dead []string
	for _, id := range t.order {
		e := t.entities[id]
		e.age++
		if !e.matched {
			e.missed++
			e.lag++
			// A gap of up to lostLimit ticks is tolerated; delete only
			// once the gap exceeds it.
			if e.missed > t.lostLimit {
				dead = append(dead, id)
				continue
			}
		}
		if e.salience < t.dissolveLimit {
			e.weak++
			if e.weak >= t.lostLimit {
				dead = append(dead, id)
			}
		} else {
			e.weak = 0
		}
	}
	for _, id := range dead {
		t.remove(id)
	}

	return t.snapshot(), ambiguities
}

// assign greedily matches maxima to existing entities, nearest pair first.
// Pair order is fully deterministic: distance, then entity ID, then maximum
// scan index.
func (t *Tracker) assign(maxima []Maximum) (map[string]int, []Ambiguity) {
	type pair struct {
		entityID string
		maxIdx   int
		dist     float64
	}
	var pairs []pair
	for _, id := range t.order {
		e := t.entities[id]
		for i, m := range maxima {
			d := euclidean(e.pos, m.Cell)
			if d <= t.maxDisplacement {
				pairs = append(pairs, pair{entityID: id, maxIdx: i, dist: d})
			}
		}
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].dist != pairs[b].dist {
			return pairs[a].dist < pairs[b].dist
		}
		if pairs[a].entityID != pairs[b].entityID {
			return pairs[a].entityID < pairs[b].entityID
		}
		return pairs[a].maxIdx < pairs[b].maxIdx
	})

	assignments := make(map[string]int)
	usedMax := make(map[int]bool)
	var ambiguities []Ambiguity
	for _, p := range pairs {
		if _, taken := assignments[p.entityID]; taken {
			if !usedMax[p.maxIdx] {
				ambiguities = append(ambiguities, Ambiguity{
					EntityID: p.entityID,
					WonCell:  maxima[assignments[p.entityID]].Cell,
					LostCell: maxima[p.maxIdx].Cell,
				})
			}
			continue
		}
		if usedMax[p.maxIdx] {
			continue
		}
		assignments[p.entityID] = p.maxIdx
		usedMax[p.maxIdx] = true
	}
	return assignments, ambiguities
}

// Live returns the ordered live snapshot without mutating the registry.
func (t *Tracker) Live() []model.EntitySnapshot {
	return t.snapshot()
}

func (t *Tracker) snapshot() []model.EntitySnapshot {
	out := make([]model.EntitySnapshot, 0, len(t.order))
	for _, id := range t.order {
		e := t.entities[id]
		pos := make([]float64, len(e.pos))
		for i, v := range e.pos {
			pos[i] = float64(v)
		}
		out = append(out, model.EntitySnapshot{
			ID:       e.id,
			Position: pos,
			Salience: e.salience,
			Age:      e.age,
			Lag:      e.lag,
		})
	}
	return out
}

func (t *Tracker) remove(id string) {
	delete(t.entities, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}

func (t *Tracker) flatten(cell []int) int {
	idx := 0
	stride := 1
	for axis := len(t.dims) - 1; axis >= 0; axis-- {
		idx += cell[axis] * stride
		stride *= t.dims[axis]
	}
	return idx
}

func (t *Tracker) coordsInto(idx int, out []int) {
	stride := 1
	for axis := 1; axis < len(t.dims); axis++ {
		stride *= t.dims[axis]
	}
	for axis := 0; axis < len(t.dims); axis++ {
		out[axis] = idx / stride
		idx %= stride
		if axis+1 < len(t.dims) {
			stride /= t.dims[axis+1]
		}
	}
}

func euclidean(a []int, b []int) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
