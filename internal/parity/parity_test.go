package parity

import "testing"

func TestThreeNodeLineOscillates(t *testing.T) {
	// (0,1,0) -> (1,1,1) -> (0,1,0): period-2 oscillation.
	r, err := New([]uint8{0, 1, 0})
	if err != nil {
		t.Fatalf("new rule: %v", err)
	}

	first := r.Step()
	want1 := []uint8{1, 1, 1}
	for i := range want1 {
		if first[i] != want1[i] {
			t.Fatalf("after one step got %v, want %v", first, want1)
		}
	}

	second := r.Step()
	want2 := []uint8{0, 1, 0}
	for i := range want2 {
		if second[i] != want2[i] {
			t.Fatalf("after two steps got %v, want %v", second, want2)
		}
	}
}

func TestPeriodDetection(t *testing.T) {
	r, err := New([]uint8{0, 1, 0})
	if err != nil {
		t.Fatalf("new rule: %v", err)
	}
	if p := r.Period(10); p != 2 {
		t.Fatalf("period %d, want 2", p)
	}
}

func TestAllZerosIsFixedPoint(t *testing.T) {
	r, err := New([]uint8{0, 0, 0, 0})
	if err != nil {
		t.Fatalf("new rule: %v", err)
	}
	got := r.Step()
	for i, v := range got {
		if v != 0 {
			t.Fatalf("node %d flipped in all-zero state: %v", i, got)
		}
	}
}

func TestNewRejectsInvalidStates(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for empty state")
	}
	if _, err := New([]uint8{0, 2}); err == nil {
		t.Fatal("expected error for non-binary state")
	}
}
