package economy

import (
	"math"
	"testing"

	"github.com/mlim70/MPONC-Streamlined/internal/entropy"
)

func TestLookupDropsMissingRows(t *testing.T) {
	table := IncomeTable{
		{ID: "a", Income: 40000, Population: 100},
		{ID: "b", Income: math.NaN(), Population: 100},
		{ID: "c", Income: 90000, Population: math.NaN()},
	}
	l := table.Lookup()
	if len(l) != 1 {
		t.Fatalf("expected one usable row, got %v", l)
	}
	if v, ok := l.Expected("a"); !ok || v != 40000 {
		t.Fatalf("expected a=40000, got %v %v", v, ok)
	}
	if _, ok := l.Expected("b"); ok {
		t.Fatal("expected missing income to be dropped")
	}
}

func TestSampleEndowmentsWeightsByPopulation(t *testing.T) {
	table := IncomeTable{
		{ID: "poor", Income: 20000, Population: 900},
		{ID: "rich", Income: 150000, Population: 100},
		{ID: "empty", Income: 70000, Population: 0},
	}
	rng := entropy.NewRand(11)
	endowments, err := SampleEndowments(table, 5000, rng)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(endowments) != 5000 {
		t.Fatalf("expected 5000 endowments, got %d", len(endowments))
	}
	poor := 0
	for _, e := range endowments {
		switch e {
		case 20000:
			poor++
		case 150000:
		default:
			t.Fatalf("unexpected endowment %v drawn", e)
		}
	}
	if share := float64(poor) / 5000; math.Abs(share-0.9) > 0.03 {
		t.Fatalf("expected ~90%% poor draws, got %.3f", share)
	}
}

func TestSampleEndowmentsRejectsEmptyTable(t *testing.T) {
	if _, err := SampleEndowments(nil, 3, entropy.NewRand(1)); err == nil {
		t.Fatal("expected empty table to fail")
	}
}
