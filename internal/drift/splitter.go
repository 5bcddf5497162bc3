package drift

import (
	"math/rand"

	"github.com/ogulcanaydogan/driftgate/internal/errors"
)

// SplitConfig configures SplitReference.
type SplitConfig struct {
	// Rows is the number of leading rows kept as the reference set.
	Rows int
	// AddNoise perturbs the comparison set with gaussian noise.
	AddNoise bool
	// NoiseStdDev is the noise standard deviation; zero means 1.0.
	NoiseStdDev float64
	// Seed makes the noise reproducible.
	Seed int64
}

// SplitReference splits ds into a reference set of the first cfg.Rows rows and
// a comparison set of the remaining rows. The input is not modified.
func SplitReference(ds Dataset, cfg SplitConfig) (reference, comparison Dataset, err error) {
	if cfg.Rows <= 0 || cfg.Rows >= ds.Len() {
		return Dataset{}, Dataset{}, errors.Newf("split row %d must be within (0, %d)", cfg.Rows, ds.Len())
	}
	reference = Dataset{Columns: ds.Columns, Rows: copyRows(ds.Rows[:cfg.Rows])}
	comparison = Dataset{Columns: ds.Columns, Rows: copyRows(ds.Rows[cfg.Rows:])}

	if cfg.AddNoise {
		std := cfg.NoiseStdDev
		if std == 0 {
			std = 1.0
		}
		rng := rand.New(rand.NewSource(cfg.Seed))
		for _, row := range comparison.Rows {
			for i := range row {
				row[i] += rng.NormFloat64() * std
			}
		}
	}
	return reference, comparison, nil
}

func copyRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = append([]float64(nil), r...)
	}
	return out
}
