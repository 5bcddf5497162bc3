package drift

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ogulcanaydogan/driftgate/internal/errors"
)

// Dataset is a numeric table with named columns.
type Dataset struct {
	Columns []string
	Rows    [][]float64
}

// Len returns the number of rows.
func (d Dataset) Len() int { return len(d.Rows) }

// Column returns a copy of column i.
func (d Dataset) Column(i int) []float64 {
	out := make([]float64, len(d.Rows))
	for r, row := range d.Rows {
		out[r] = row[i]
	}
	return out
}

// ReadCSVFile reads a dataset from a CSV file with a header row.
func ReadCSVFile(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, errors.Wrapf(err, "open dataset %s", path)
	}
	defer f.Close()
	ds, err := ReadCSV(f)
	if err != nil {
		return Dataset{}, errors.Wrapf(err, "read dataset %s", path)
	}
	return ds, nil
}

// ReadCSV reads a header row followed by numeric rows.
func ReadCSV(r io.Reader) (Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return Dataset{}, errors.Wrap(err, "read header")
	}
	ds := Dataset{Columns: make([]string, len(header))}
	for i, h := range header {
		ds.Columns[i] = strings.TrimSpace(h)
	}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Dataset{}, errors.Wrapf(err, "line %d", line)
		}
		row := make([]float64, len(rec))
		for i, cell := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return Dataset{}, errors.Wrapf(err, "line %d column %s", line, ds.Columns[i])
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return Dataset{}, errors.Newf("line %d column %s: non-finite value %q", line, ds.Columns[i], cell)
			}
			row[i] = v
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}
