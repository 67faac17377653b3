package world

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestBeltlineScorePiecewise(t *testing.T) {
	cases := []struct {
		meters float64
		want   float64
	}{
		{0, 1.0},
		{BeltlineHighMeters, 1.0},
		{11250, 0.55},
		{BeltlineLowMeters, BeltlineFloor},
		{40000, BeltlineFloor},
	}
	for _, tc := range cases {
		if got := BeltlineScore(tc.meters); math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("BeltlineScore(%v) = %v, want %v", tc.meters, got, tc.want)
		}
	}
}

func TestNormalizeDistancesClampsDisconnectedPairs(t *testing.T) {
	inf := math.Inf(1)
	raw := mat.NewDense(3, 3, []float64{
		0, 200, inf,
		200, 0, 400,
		inf, 400, 0,
	})
	got := NormalizeDistances(raw)

	if v := got.At(0, 2); v != 1 {
		t.Fatalf("expected disconnected pair clamped to 1, got %v", v)
	}
	if v := got.At(0, 1); math.Abs(v-0.5) > 1e-12 {
		t.Fatalf("expected 0.5, got %v", v)
	}
	if raw.At(0, 1) != 200 {
		t.Fatal("NormalizeDistances must not mutate its input")
	}
}

func TestNormalizeDensityConstantInput(t *testing.T) {
	got := NormalizeDensity([]float64{3, 3, 3})
	for _, v := range got {
		if v != 1 {
			t.Fatalf("expected constant input to normalise to ones, got %v", got)
		}
	}
	got = NormalizeDensity([]float64{2, 4, 3})
	if got[0] != 0 || got[1] != 1 || got[2] != 0.5 {
		t.Fatalf("unexpected normalisation %v", got)
	}
}

func TestGenerateIsDeterministicAndNormalised(t *testing.T) {
	cfg := SmallTestConfig()
	a, err := Generate(cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := Generate(cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	n := cfg.Rows * cfg.Cols
	if a.N() != n {
		t.Fatalf("expected %d locations, got %d", n, a.N())
	}
	if r, c := a.Distances.Dims(); r != n || c != n {
		t.Fatalf("distance matrix %dx%d, want %dx%d", r, c, n, n)
	}
	if !mat.Equal(a.Distances, b.Distances) {
		t.Fatal("expected identical distance matrices for the same seed")
	}

	seen := make(map[string]bool, n)
	for i, loc := range a.Locations {
		if seen[loc.ID] {
			t.Fatalf("duplicate id %s", loc.ID)
		}
		seen[loc.ID] = true
		if !loc.HasBeltline() || loc.Beltline > 1 {
			t.Fatalf("location %d beltline %v outside [0,1]", i, loc.Beltline)
		}
		if a.Amenity[i] < 0 || a.Amenity[i] > 1 {
			t.Fatalf("location %d amenity %v outside [0,1]", i, a.Amenity[i])
		}
		if a.Amenity[i] != b.Amenity[i] || a.Income[i] != b.Income[i] {
			t.Fatalf("location %d differs between identical seeds", i)
		}
		if a.Distances.At(i, i) != 0 {
			t.Fatalf("self distance at %d is %v", i, a.Distances.At(i, i))
		}
		for j := 0; j < n; j++ {
			v := a.Distances.At(i, j)
			if v < 0 || v > 1 || v != a.Distances.At(j, i) {
				t.Fatalf("distance (%d,%d)=%v not symmetric in [0,1]", i, j, v)
			}
		}
	}
}

func TestGenerateRejectsEmptyGrid(t *testing.T) {
	cfg := SmallTestConfig()
	cfg.Rows = 0
	if _, err := Generate(cfg); err == nil {
		t.Fatal("expected empty grid to fail")
	}
}
