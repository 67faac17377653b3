package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"

	"github.com/mlim70/MPONC-Streamlined/internal/economy"
	"github.com/mlim70/MPONC-Streamlined/internal/transport"
	"github.com/mlim70/MPONC-Streamlined/internal/world"
)

// ParseError locates a malformed record.
type ParseError struct {
	File string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// table is an open CSV file with its header consumed.
type table struct {
	path   string
	f      *os.File
	r      *csv.Reader
	column map[string]int
}

func openTable(path string, header bool, required ...string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	t := &table{path: path, f: f, r: r}
	if !header {
		r.FieldsPerRecord = -1
		return t, nil
	}

	head, err := r.Read()
	if err != nil {
		f.Close()
		return nil, &ParseError{File: filepath.Base(path), Line: 1, Err: fmt.Errorf("reading header: %w", err)}
	}
	t.column = make(map[string]int, len(head))
	for i, h := range head {
		t.column[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range required {
		if _, ok := t.column[c]; !ok {
			f.Close()
			return nil, &ParseError{File: filepath.Base(path), Line: 1, Err: fmt.Errorf("missing column %q", c)}
		}
	}
	return t, nil
}

func (t *table) close() { t.f.Close() }

// next returns the next record and its line, or io.EOF.
func (t *table) next() ([]string, int, error) {
	rec, err := t.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, io.EOF
		}
		return nil, 0, &ParseError{File: filepath.Base(t.path), Line: lineOf(err), Err: err}
	}
	line, _ := t.r.FieldPos(0)
	return rec, line, nil
}

func lineOf(err error) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.Line
	}
	return 0
}

func (t *table) fail(line int, format string, args ...any) error {
	return &ParseError{File: filepath.Base(t.path), Line: line, Err: fmt.Errorf(format, args...)}
}

func (t *table) field(rec []string, name string) string {
	return strings.TrimSpace(rec[t.column[name]])
}

// parseOptional parses a float where "", "NA", and "nan" mean missing.
func parseOptional(s string) (float64, bool, error) {
	switch strings.ToLower(s) {
	case "", "na", "nan":
		return math.NaN(), false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, true, err
}

func readLocations(path string) ([]world.Location, error) {
	t, err := openTable(path, true, "lon", "lat", "name", "beltline", "id")
	if err != nil {
		return nil, err
	}
	defer t.close()

	var out []world.Location
	for {
		rec, line, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		lon, err := strconv.ParseFloat(t.field(rec, "lon"), 64)
		if err != nil {
			return nil, t.fail(line, "lon: %w", err)
		}
		lat, err := strconv.ParseFloat(t.field(rec, "lat"), 64)
		if err != nil {
			return nil, t.fail(line, "lat: %w", err)
		}
		belt, ok, err := parseOptional(t.field(rec, "beltline"))
		if err != nil {
			return nil, t.fail(line, "beltline: %w", err)
		}
		if !ok {
			belt = world.BeltlineUnknown
		} else if belt < 0 || belt > 1 {
			return nil, t.fail(line, "beltline %v outside [0,1]", belt)
		}
		id := t.field(rec, "id")
		if id == "" {
			return nil, t.fail(line, "empty id")
		}
		out = append(out, world.Location{
			Position: orb.Point{lon, lat},
			Name:     t.field(rec, "name"),
			ID:       id,
			Beltline: belt,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no locations", filepath.Base(path))
	}
	return out, nil
}

func readMatrix(path string, n int) (*mat.Dense, error) {
	t, err := openTable(path, false)
	if err != nil {
		return nil, err
	}
	defer t.close()

	m := mat.NewDense(n, n, nil)
	row := 0
	for {
		rec, line, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if row >= n {
			return nil, t.fail(line, "more than %d rows", n)
		}
		if len(rec) != n {
			return nil, t.fail(line, "%d columns, want %d", len(rec), n)
		}
		for j, s := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, t.fail(line, "column %d: %w", j+1, err)
			}
			m.Set(row, j, v)
		}
		row++
	}
	if row != n {
		return nil, fmt.Errorf("%s: %d rows, want %d", filepath.Base(path), row, n)
	}
	return m, nil
}

func readAmenity(path string) (map[string]float64, error) {
	t, err := openTable(path, true, "id", "density")
	if err != nil {
		return nil, err
	}
	defer t.close()

	out := make(map[string]float64)
	for {
		rec, line, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(t.field(rec, "density"), 64)
		if err != nil {
			return nil, t.fail(line, "density: %w", err)
		}
		out[t.field(rec, "id")] = v
	}
	return out, nil
}

func readRoutes(path string) (transport.Table, error) {
	t, err := openTable(path, true, "origin", "destination", "mode", "volume")
	if err != nil {
		return nil, err
	}
	defer t.close()

	var out transport.Table
	for {
		rec, line, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		mode, err := transport.ParseMode(t.field(rec, "mode"))
		if err != nil {
			return nil, t.fail(line, "%w: %w", transport.ErrDataInconsistency, err)
		}
		vol, err := strconv.ParseFloat(t.field(rec, "volume"), 64)
		if err != nil {
			return nil, t.fail(line, "volume: %w", err)
		}
		out = append(out, transport.Route{
			Origin:      t.field(rec, "origin"),
			Destination: t.field(rec, "destination"),
			Mode:        mode,
			Volume:      vol,
		})
	}
	return out, nil
}

func readIncomes(path string) (economy.IncomeTable, error) {
	t, err := openTable(path, true, "id", "income", "population")
	if err != nil {
		return nil, err
	}
	defer t.close()

	var out economy.IncomeTable
	for {
		rec, line, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		inc, _, err := parseOptional(t.field(rec, "income"))
		if err != nil {
			return nil, t.fail(line, "income: %w", err)
		}
		pop, _, err := parseOptional(t.field(rec, "population"))
		if err != nil {
			return nil, t.fail(line, "population: %w", err)
		}
		out = append(out, economy.TractIncome{ID: t.field(rec, "id"), Income: inc, Population: pop})
	}
	return out, nil
}

func readEndowments(path string) ([]float64, error) {
	t, err := openTable(path, true, "endowment")
	if err != nil {
		return nil, err
	}
	defer t.close()

	var out []float64
	for {
		rec, line, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(t.field(rec, "endowment"), 64)
		if err != nil {
			return nil, t.fail(line, "endowment: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if header != nil {
		w.Write(header)
	}
	w.WriteAll(rows)
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func writeLocations(path string, locs []world.Location) error {
	rows := make([][]string, len(locs))
	for i, l := range locs {
		belt := ""
		if l.HasBeltline() {
			belt = formatFloat(l.Beltline)
		}
		rows[i] = []string{formatFloat(l.Lon()), formatFloat(l.Lat()), l.Name, belt, l.ID}
	}
	return writeCSV(path, []string{"lon", "lat", "name", "beltline", "id"}, rows)
}

func writeMatrix(path string, m mat.Matrix) error {
	r, c := m.Dims()
	rows := make([][]string, r)
	for i := 0; i < r; i++ {
		rows[i] = make([]string, c)
		for j := 0; j < c; j++ {
			rows[i][j] = formatFloat(m.At(i, j))
		}
	}
	return writeCSV(path, nil, rows)
}

func writeAmenity(path string, ids []string, density []float64) error {
	rows := make([][]string, len(ids))
	for i, id := range ids {
		rows[i] = []string{id, formatFloat(density[i])}
	}
	return writeCSV(path, []string{"id", "density"}, rows)
}

func writeRoutes(path string, routes transport.Table) error {
	rows := make([][]string, len(routes))
	for i, r := range routes {
		rows[i] = []string{r.Origin, r.Destination, r.Mode.String(), formatFloat(r.Volume)}
	}
	return writeCSV(path, []string{"origin", "destination", "mode", "volume"}, rows)
}

func writeIncomes(path string, t economy.IncomeTable) error {
	rows := make([][]string, len(t))
	for i, r := range t {
		rows[i] = []string{r.ID, formatFloat(r.Income), formatFloat(r.Population)}
	}
	return writeCSV(path, []string{"id", "income", "population"}, rows)
}

func writeEndowments(path string, values []float64) error {
	rows := make([][]string, len(values))
	for i, v := range values {
		rows[i] = []string{formatFloat(v)}
	}
	return writeCSV(path, []string{"endowment"}, rows)
}
