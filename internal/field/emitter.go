package field

import "github.com/jerry-samek/tick-frame-space-sub001/internal/config"

type sourcePoint struct {
	idx       int
	strength  float64
	fromTick  uint64
	untilTick uint64
}

// Emitter resolves configured sources to flat cell indices once, then serves
// the per-tick emission map to Step.
type Emitter struct {
	points []sourcePoint
	sparse map[int]float64
}

// NewEmitter validates source cells against the lattice.
func NewEmitter(f *Field, sources []config.Source) (*Emitter, error) {
	e := &Emitter{sparse: make(map[int]float64)}
	for _, s := range sources {
		idx, err := f.Index(s.Cell)
		if err != nil {
			return nil, err
		}
		e.points = append(e.points, sourcePoint{
			idx:       idx,
			strength:  s.Strength,
			fromTick:  s.FromTick,
			untilTick: s.UntilTick,
		})
	}
	return e, nil
}

// ForTick returns the emission lookup for one tick, or nil when no source is
// active. The returned func stays valid until the next ForTick call.
func (e *Emitter) ForTick(tick uint64) func(idx int) float64 {
	clear(e.sparse)
	active := false
	for _, p := range e.points {
		if tick < p.fromTick {
			continue
		}
		if p.untilTick != 0 && tick > p.untilTick {
			continue
		}
		e.sparse[p.idx] += p.strength
		active = true
	}
	if !active {
		return nil
	}
	return func(idx int) float64 {
		return e.sparse[idx]
	}
}
