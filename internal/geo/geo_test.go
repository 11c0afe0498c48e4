package geo

import (
	"math"
	"testing"

	"github.com/krishop90/smart-airport-pooling/internal/models"
)

func TestDistanceZero(t *testing.T) {
	p := models.Coord{Lat: 12.9716, Lng: 77.5946}
	if d := Distance(p, p); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := models.Coord{Lat: 12.9716, Lng: 77.5946}
	b := models.Coord{Lat: 13.1986, Lng: 77.7066}
	if d1, d2 := Distance(a, b), Distance(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Fatalf("expected symmetric distance, got %f vs %f", d1, d2)
	}
}

func TestDistanceKnownValue(t *testing.T) {
	// one degree of latitude is ~111.19 km
	a := models.Coord{Lat: 0, Lng: 0}
	b := models.Coord{Lat: 1, Lng: 0}
	d := Distance(a, b)
	if d < 111 || d > 112 {
		t.Fatalf("expected ~111.2km, got %f", d)
	}
}

func TestDetourNonNegative(t *testing.T) {
	ep := models.Coord{Lat: 0, Lng: 0}
	ed := models.Coord{Lat: 0.1, Lng: 0.1}
	cp := models.Coord{Lat: 0.05, Lng: 0}
	if d := Detour(ep, ed, cp); d < -1e-9 {
		t.Fatalf("expected non-negative detour, got %f", d)
	}
}

func TestDetourZeroOnRoute(t *testing.T) {
	// pickup exactly at the existing pickup adds nothing
	ep := models.Coord{Lat: 0, Lng: 0}
	ed := models.Coord{Lat: 0.2, Lng: 0}
	if d := Detour(ep, ed, ep); math.Abs(d) > 1e-9 {
		t.Fatalf("expected ~0 detour, got %f", d)
	}
}
