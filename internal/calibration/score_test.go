package calibration

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mlim70/MPONC-Streamlined/internal/city"
	"github.com/mlim70/MPONC-Streamlined/internal/engine"
)

func ptr(v float64) *float64 { return &v }

func TestScore(t *testing.T) {
	rows := []city.SummaryRow{
		{ID: "A", AvgIncome: 40000, ExpectedIncome: ptr(50000)},
		{ID: "B", AvgIncome: 70000, ExpectedIncome: ptr(60000)},
		{ID: "C", AvgIncome: 99999},
	}
	f := Score(rows)
	if f.Total != 20000 || f.Matched != 2 || f.Mean != 10000 {
		t.Fatalf("unexpected fit %+v", f)
	}
	if f := Score(rows[2:]); f.Total != 0 || f.Matched != 0 {
		t.Fatalf("expected empty fit, got %+v", f)
	}
}

func TestRank(t *testing.T) {
	entries := []Entry{
		{Key: engine.Key{Rho: 3, Alpha: 0.5}, Fit: Fit{Total: 100, Matched: 2}},
		{Key: engine.Key{Rho: 1, Alpha: 0.5}, Fit: Fit{Total: 0, Matched: 0}},
		{Key: engine.Key{Rho: 2, Alpha: 0.75}, Fit: Fit{Total: 50, Matched: 2}},
		{Key: engine.Key{Rho: 2, Alpha: 0.25}, Fit: Fit{Total: 50, Matched: 2}},
	}
	got := Rank(entries)
	want := []engine.Key{
		{Rho: 2, Alpha: 0.25},
		{Rho: 2, Alpha: 0.75},
		{Rho: 3, Alpha: 0.5},
		{Rho: 1, Alpha: 0.5},
	}
	for i := range want {
		if got[i].Key != want[i] {
			t.Fatalf("rank %d = %+v, want %+v", i, got[i].Key, want[i])
		}
	}
	if entries[0].Key.Rho != 3 {
		t.Fatal("Rank must not reorder its input")
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	entries := []Entry{{Key: engine.Key{Rho: 2, Alpha: 0.5, Agents: 10, Step: 100}, Fit: Fit{Total: 1234.5, Matched: 3}}}
	if err := WriteCSV(&buf, "atl", entries); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || lines[1] != "atl_2_0.5_10_100,2,0.5,10,100,1234.5,3" {
		t.Fatalf("unexpected csv %q", buf.String())
	}
}
