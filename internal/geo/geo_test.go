package geo

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestDistance_KnownCities(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		wantKm, tolKm          float64
	}{
		{"paris-london", 48.8566, 2.3522, 51.5074, -0.1278, 343.5, 1},
		{"helsinki-tampere", 60.1699, 24.9384, 61.4991, 23.7871, 160.4, 1},
		{"equator one degree", 0, 0, 0, 1, 111.19, 0.01},
		{"antipodal", 0, 0, 0, 180, math.Pi * EarthRadiusKm, 0.001},
		{"pole to pole", 90, 0, -90, 0, math.Pi * EarthRadiusKm, 0.001},
		{"across the seam", 0, 179.5, 0, -179.5, 111.19, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if !almostEqual(got, tt.wantKm, tt.tolKm) {
				t.Errorf("Distance = %.4f km, want %.4f ± %.4f", got, tt.wantKm, tt.tolKm)
			}
			if math.IsNaN(got) {
				t.Errorf("Distance returned NaN")
			}
		})
	}
}

func TestDistance_SymmetricAndZeroOnIdentity(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 43))
	for i := 0; i < 1000; i++ {
		lat1, lon1 := rng.Float64()*180-90, rng.Float64()*360-180
		lat2, lon2 := rng.Float64()*180-90, rng.Float64()*360-180

		ab := Distance(lat1, lon1, lat2, lon2)
		ba := Distance(lat2, lon2, lat1, lon1)
		if ab != ba {
			t.Fatalf("asymmetric distance for (%v,%v)-(%v,%v): %v vs %v", lat1, lon1, lat2, lon2, ab, ba)
		}
		if d := Distance(lat1, lon1, lat1, lon1); d != 0 {
			t.Fatalf("distance to self = %v, want 0", d)
		}
		if ab < 0 || ab > math.Pi*EarthRadiusKm+1e-9 {
			t.Fatalf("distance %v out of range", ab)
		}
	}
}

func TestWithinRadius_MatchesDistance(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	now := time.Now()
	for i := 0; i < 500; i++ {
		a := NewLocation(rng.Float64()*10+50, rng.Float64()*10, now)
		b := NewLocation(rng.Float64()*10+50, rng.Float64()*10, now)
		r := rng.Float64() * 800

		want := LocationDistance(a, b) <= r
		if got := WithinRadius(a, b, r); got != want {
			t.Fatalf("WithinRadius(%v) = %v, want %v", r, got, want)
		}
	}
}

func TestWithinRadius_InclusiveBoundary(t *testing.T) {
	a := NewLocation(0, 0, time.Time{})
	b := NewLocation(0, 1, time.Time{})
	d := LocationDistance(a, b)

	if !WithinRadius(a, b, d) {
		t.Errorf("expected boundary distance %v to be within radius", d)
	}
	if WithinRadius(a, b, d-0.001) {
		t.Errorf("expected point just outside radius to be excluded")
	}
}

func TestNewBoundingBox(t *testing.T) {
	box := NewBoundingBox(0, 0, 111.19)
	if !almostEqual(box.North, 1, 0.001) || !almostEqual(box.South, -1, 0.001) {
		t.Errorf("latitude span = [%v, %v], want about [-1, 1]", box.South, box.North)
	}
	if !almostEqual(box.East, 1, 0.001) || !almostEqual(box.West, -1, 0.001) {
		t.Errorf("longitude span = [%v, %v], want about [-1, 1]", box.West, box.East)
	}

	// At 60° the longitude span doubles.
	box = NewBoundingBox(60, 10, 111.19)
	lonHalf := (box.East - box.West) / 2
	if !almostEqual(lonHalf, 2, 0.01) {
		t.Errorf("longitude half-span at 60° = %v, want about 2", lonHalf)
	}

	center := box.Center()
	if !almostEqual(center.Latitude, 60, 1e-9) || !almostEqual(center.Longitude, 10, 1e-9) {
		t.Errorf("Center() = %+v, want (60, 10)", center)
	}
	if !box.Contains(Coordinate{Latitude: 60.5, Longitude: 11}) {
		t.Error("expected nearby point inside box")
	}
	if box.Contains(Coordinate{Latitude: 62, Longitude: 10}) {
		t.Error("expected distant point outside box")
	}
}

func TestBoundingBox_Antimeridian(t *testing.T) {
	// Fiji sits next to the seam; a 50 km box spills into negative longitudes.
	box := NewBoundingBox(-17.7, 179.9, 50)
	ranges := box.LongitudeRanges()
	if len(ranges) != 2 {
		t.Fatalf("LongitudeRanges() = %v, want two ranges", ranges)
	}
	if ranges[0][1] != 180 || ranges[1][0] != -180 {
		t.Errorf("LongitudeRanges() = %v, want split at ±180", ranges)
	}

	across := Coordinate{Latitude: -17.7, Longitude: -179.9}
	if !box.Contains(across) {
		t.Errorf("box %+v should contain %+v across the seam", box, across)
	}
	if box.Contains(Coordinate{Latitude: -17.7, Longitude: 0}) {
		t.Error("far side of the globe must stay outside")
	}

	west := NewBoundingBox(0, -179.95, 20)
	if !west.Contains(Coordinate{Latitude: 0, Longitude: 179.95}) {
		t.Errorf("box %+v should wrap to positive longitudes", west)
	}

	if r := NewBoundingBox(60, 10, 50).LongitudeRanges(); len(r) != 1 {
		t.Errorf("box away from the seam split into %v", r)
	}
	if r := NewBoundingBox(89.99, 0, 100).LongitudeRanges(); len(r) != 1 || r[0] != [2]float64{-180, 180} {
		t.Errorf("polar box ranges = %v, want every longitude", r)
	}
}

func TestCoordinateValidate(t *testing.T) {
	valid := []Coordinate{{0, 0}, {90, 180}, {-90, -180}}
	for _, c := range valid {
		if err := c.Validate(); err != nil {
			t.Errorf("Validate(%+v) = %v, want nil", c, err)
		}
	}

	invalid := []Coordinate{{91, 0}, {-90.1, 0}, {0, 180.5}, {0, -181}, {math.NaN(), 0}}
	for _, c := range invalid {
		err := c.Validate()
		if !errors.Is(err, ErrInvalidCoordinate) {
			t.Errorf("Validate(%+v) = %v, want ErrInvalidCoordinate", c, err)
		}
	}
}
