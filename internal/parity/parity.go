package parity

import "errors"

// Rule applies the XOR parity update on a line graph of binary states:
//
//	S'(n) = S(n) XOR parity(neighbors(n))
//
// where parity is the XOR of the adjacent states. Endpoints have a single
// neighbor. The update is synchronous: every node reads the previous state.
type Rule struct {
	state []uint8
	next  []uint8
}

func New(initial []uint8) (*Rule, error) {
	if len(initial) == 0 {
		return nil, errors.New("parity rule requires at least one node")
	}
	for _, v := range initial {
		if v > 1 {
			return nil, errors.New("parity states must be 0 or 1")
		}
	}
	r := &Rule{
		state: append([]uint8(nil), initial...),
		next:  make([]uint8, len(initial)),
	}
	return r, nil
}

// State returns a copy of the current node states.
func (r *Rule) State() []uint8 {
	return append([]uint8(nil), r.state...)
}

// Step applies one synchronous update and returns the new state.
func (r *Rule) Step() []uint8 {
	n := len(r.state)
	for i := 0; i < n; i++ {
		var p uint8
		if i > 0 {
			p ^= r.state[i-1]
		}
		if i < n-1 {
			p ^= r.state[i+1]
		}
		r.next[i] = r.state[i] ^ p
	}
	r.state, r.next = r.next, r.state
	return r.State()
}

// Period runs the rule until the state returns to the initial configuration
// or maxSteps is exhausted. Returns 0 when no cycle was found in bound.
func (r *Rule) Period(maxSteps int) int {
	initial := r.State()
	for step := 1; step <= maxSteps; step++ {
		cur := r.Step()
		if equal(cur, initial) {
			return step
		}
	}
	return 0
}

func equal(a, b []uint8) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
