package fare

import "testing"

func TestCalculateBaseOnly(t *testing.T) {
	// zero distance, no luggage, no surge: round(50 * 0.8) = 40
	if f := Calculate(0, 0, 1, 1); f != 40 {
		t.Fatalf("expected 40, got %d", f)
	}
}

func TestCalculateDistanceComponent(t *testing.T) {
	// 10km: round((50 + 120) * 0.8) = 136
	if f := Calculate(10, 0, 1, 1); f != 136 {
		t.Fatalf("expected 136, got %d", f)
	}
}

func TestCalculateLuggageAfterSurge(t *testing.T) {
	// luggage fee is flat, not surged: round((50*1.2 + 2*20) * 0.8) = 80
	if f := Calculate(0, 2, 2, 1); f != 80 {
		t.Fatalf("expected 80, got %d", f)
	}
}

func TestSurgeLadder(t *testing.T) {
	cases := []struct {
		demand, supply int
		want           float64
	}{
		{1, 1, 1.0},
		{3, 2, 1.0},  // ratio 1.5 is not > 1.5
		{2, 1, 1.2},  // ratio 2.0
		{3, 1, 1.5},  // ratio 3.0
		{6, 1, 2.0},  // ratio 6.0
		{10, 0, 2.0}, // zero supply treated as 1
	}
	for _, c := range cases {
		if got := Surge(c.demand, c.supply); got != c.want {
			t.Fatalf("surge(%d,%d): expected %v, got %v", c.demand, c.supply, c.want, got)
		}
	}
}

func TestCalculateDeterministic(t *testing.T) {
	a := Calculate(7.3, 1, 4, 2)
	b := Calculate(7.3, 1, 4, 2)
	if a != b {
		t.Fatalf("expected deterministic fare, got %d vs %d", a, b)
	}
}
