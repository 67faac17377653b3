package persistence

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mlim70/MPONC-Streamlined/internal/city"
	"github.com/mlim70/MPONC-Streamlined/internal/engine"
)

// SummaryHeader is the column layout of exported summaries.
var SummaryHeader = []string{
	"Simulation_ID", "Centroid Name", "Population", "Avg Income",
	"Expected Income", "Avg Endowment", "Beltline Score", "Amt Density",
}

// NA marks a missing value in exported CSVs.
const NA = "NA"

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return NA
	}
	return formatFloat(*v)
}

// WriteSummaryCSV writes summary rows with the standard header.
func WriteSummaryCSV(w io.Writer, rows []city.SummaryRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SummaryHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.ID,
			r.Name,
			strconv.Itoa(r.Population),
			formatFloat(r.AvgIncome),
			formatOptional(r.ExpectedIncome),
			formatFloat(r.AvgEndowment),
			formatOptional(r.Beltline),
			formatFloat(math.Round(r.Amenity*100) / 100),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportSummaryFile writes rows to dir/<stem>_data.csv and returns the path.
func ExportSummaryFile(dir, prefix string, key engine.Key, rows []city.SummaryRow) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, key.FileStem(prefix)+"_data.csv")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteSummaryCSV(f, rows); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, f.Close()
}
