package dataset

import (
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mlim70/MPONC-Streamlined/internal/transport"
	"github.com/mlim70/MPONC-Streamlined/internal/world"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(strings.TrimLeft(content, "\n")), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func smallBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, LocationsFile, `
lon,lat,name,beltline,id
-84.39,33.75,Downtown,1,A
-84.35,33.78,Midtown,,B
`)
	writeFile(t, dir, DistancesFile, `
0,2000
2000,0
`)
	writeFile(t, dir, AmenityFile, `
id,density
B,0.25
A,1
`)
	writeFile(t, dir, RoutesFile, `
origin,destination,mode,volume
A,B,car,3.7
B,A,transit,1
`)
	writeFile(t, dir, IncomesFile, `
id,income,population
A,52000,1200
B,NA,800
`)
	return dir
}

func TestLoad(t *testing.T) {
	b, err := Load(smallBundle(t), true)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	g := b.Geography
	if g.N() != 2 || g.Locations[1].HasBeltline() {
		t.Fatalf("unexpected locations %+v", g.Locations)
	}
	if g.Distances.At(0, 1) != 1 || g.Distances.At(1, 0) != 1 {
		t.Fatalf("distances not normalised: %v", g.Distances.At(0, 1))
	}
	if g.Amenity[0] != 1 || g.Amenity[1] != 0.25 {
		t.Fatalf("amenity not aligned to location order: %v", g.Amenity)
	}
	if len(b.Routes) != 2 || b.Routes[1].Mode != transport.ModeTransit {
		t.Fatalf("unexpected routes %+v", b.Routes)
	}
	if !math.IsNaN(b.Incomes[1].Income) {
		t.Fatalf("NA income should load as NaN, got %v", b.Incomes[1].Income)
	}
	if _, ok := b.Incomes.Lookup().Expected("B"); ok {
		t.Fatal("NA income should be absent from lookup")
	}
	if b.Endowments != nil {
		t.Fatal("endowments should be nil without endowments.csv")
	}
	if err := b.Check(); err != nil {
		t.Fatalf("check: %v", err)
	}

	end, err := b.AgentEndowments(5, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("endowments: %v", err)
	}
	for _, e := range end {
		if e != 52000 {
			t.Fatalf("only A has a usable income, got %v", e)
		}
	}
}

func TestLoadReportsLine(t *testing.T) {
	dir := smallBundle(t)
	writeFile(t, dir, RoutesFile, `
origin,destination,mode,volume
A,B,car,1
A,B,bike,1
`)
	_, err := Load(dir, true)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.File != RoutesFile || pe.Line != 3 {
		t.Fatalf("expected %s:3, got %s:%d", RoutesFile, pe.File, pe.Line)
	}
	if !errors.Is(err, transport.ErrDataInconsistency) {
		t.Fatalf("unknown mode should be a data inconsistency: %v", err)
	}
}

func TestLoadMissingAmenity(t *testing.T) {
	dir := smallBundle(t)
	writeFile(t, dir, AmenityFile, "id,density\nA,1\n")
	if _, err := Load(dir, true); err == nil || !strings.Contains(err.Error(), `"B"`) {
		t.Fatalf("expected missing amenity for B, got %v", err)
	}
}

func TestLoadMatrixShape(t *testing.T) {
	dir := smallBundle(t)
	writeFile(t, dir, DistancesFile, "0,1,2\n1,0,2\n")
	if _, err := Load(dir, true); err == nil {
		t.Fatal("expected column count error")
	}
}

func TestCheckRejectsUnknownRouteID(t *testing.T) {
	dir := smallBundle(t)
	writeFile(t, dir, RoutesFile, "origin,destination,mode,volume\nA,Z,car,1\n")
	b, err := Load(dir, true)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := b.Check(); !errors.Is(err, transport.ErrDataInconsistency) {
		t.Fatalf("expected data inconsistency, got %v", err)
	}
}

func TestSaveLoadGenerated(t *testing.T) {
	gen, err := world.Generate(world.SmallTestConfig())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	routes, err := transport.Gravity(gen.IDs(), gen.Amenity, gen.Distances, transport.DefaultGravityConfig(), rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("gravity: %v", err)
	}
	b := FromGenerated(gen, routes)
	b.Endowments = []float64{1, 2, 3}

	dir := filepath.Join(t.TempDir(), "bundle")
	if err := Save(dir, b); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(dir, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Geography.N() != gen.N() || len(got.Routes) != len(routes) {
		t.Fatalf("round trip lost data: %d locations, %d routes", got.Geography.N(), len(got.Routes))
	}
	for i := 0; i < gen.N(); i++ {
		if got.Geography.Locations[i].ID != gen.Locations[i].ID {
			t.Fatalf("location %d id %s, want %s", i, got.Geography.Locations[i].ID, gen.Locations[i].ID)
		}
		if got.Geography.Amenity[i] != gen.Amenity[i] {
			t.Fatalf("location %d amenity %v, want %v", i, got.Geography.Amenity[i], gen.Amenity[i])
		}
		for j := 0; j < gen.N(); j++ {
			if got.Geography.Distances.At(i, j) != gen.Distances.At(i, j) {
				t.Fatalf("distance (%d,%d) changed", i, j)
			}
		}
	}
	if err := got.Check(); err != nil {
		t.Fatalf("check: %v", err)
	}
	end, err := got.AgentEndowments(2, nil)
	if err != nil || len(end) != 2 || end[1] != 2 {
		t.Fatalf("explicit endowments: %v %v", end, err)
	}
	if _, err := got.AgentEndowments(4, nil); err == nil {
		t.Fatal("expected error when endowments.csv is too short")
	}
}
