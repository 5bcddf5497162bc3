package drift

import (
	"math"
	"sort"

	"github.com/ogulcanaydogan/driftgate/internal/errors"
)

// DetectConfig holds the drift test thresholds.
type DetectConfig struct {
	// PValue is the per-feature significance level.
	PValue float64
	// DriftShare is the share of drifted features that marks the dataset as drifted.
	DriftShare float64
}

// DefaultDetectConfig matches the usual data drift preset.
func DefaultDetectConfig() DetectConfig {
	return DetectConfig{PValue: 0.05, DriftShare: 0.5}
}

// FeatureDrift is the per-column test outcome.
type FeatureDrift struct {
	Column    string  `json:"column"`
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
	Drifted   bool    `json:"drift_detected"`
}

// Detect compares every column of current against reference with a two-sample
// Kolmogorov-Smirnov test and returns a report in the drift report layout.
func Detect(reference, current Dataset, cfg DetectConfig) (Report, []FeatureDrift, error) {
	if len(reference.Columns) != len(current.Columns) {
		return nil, nil, errors.Newf("column count mismatch: %d reference, %d current", len(reference.Columns), len(current.Columns))
	}
	for i := range reference.Columns {
		if reference.Columns[i] != current.Columns[i] {
			return nil, nil, errors.Newf("column %d mismatch: %q vs %q", i, reference.Columns[i], current.Columns[i])
		}
	}
	if reference.Len() == 0 || current.Len() == 0 {
		return nil, nil, errors.New("reference and current datasets must be non-empty")
	}
	if cfg.PValue <= 0 {
		cfg.PValue = DefaultDetectConfig().PValue
	}
	if cfg.DriftShare <= 0 {
		cfg.DriftShare = DefaultDetectConfig().DriftShare
	}

	features := make([]FeatureDrift, len(reference.Columns))
	drifted := 0
	byColumn := make(map[string]any, len(reference.Columns))
	for i, col := range reference.Columns {
		ref, cur := reference.Column(i), current.Column(i)
		if !allFinite(ref) || !allFinite(cur) {
			return nil, nil, errors.Newf("column %q holds a non-finite value", col)
		}
		stat, p := KolmogorovSmirnov(ref, cur)
		fd := FeatureDrift{Column: col, Statistic: stat, PValue: p, Drifted: p < cfg.PValue}
		if fd.Drifted {
			drifted++
		}
		features[i] = fd
		byColumn[col] = map[string]any{
			"stattest":       "ks",
			"statistic":      stat,
			"p_value":        p,
			"drift_detected": fd.Drifted,
		}
	}

	share := float64(drifted) / float64(len(features))
	report := Report{
		"data_drift": map[string]any{
			"name": "DataDriftProfileSection",
			"data": map[string]any{
				"metrics": map[string]any{
					"dataset_drift":          share >= cfg.DriftShare,
					"n_features":             len(features),
					"n_drifted_features":     drifted,
					"share_drifted_features": share,
					"features":               byColumn,
				},
			},
		},
	}
	return report, features, nil
}

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// KolmogorovSmirnov returns the two-sample KS statistic and its asymptotic
// p-value. Both samples must be finite.
func KolmogorovSmirnov(a, b []float64) (statistic, pValue float64) {
	x := append([]float64(nil), a...)
	y := append([]float64(nil), b...)
	sort.Float64s(x)
	sort.Float64s(y)

	n, m := len(x), len(y)
	var i, j int
	for i < n && j < m {
		v := math.Min(x[i], y[j])
		for i < n && x[i] <= v {
			i++
		}
		for j < m && y[j] <= v {
			j++
		}
		d := math.Abs(float64(i)/float64(n) - float64(j)/float64(m))
		if d > statistic {
			statistic = d
		}
	}

	en := math.Sqrt(float64(n) * float64(m) / float64(n+m))
	return statistic, ksProbability((en + 0.12 + 0.11/en) * statistic)
}

// ksProbability is the complementary Kolmogorov distribution Q(lambda).
func ksProbability(lambda float64) float64 {
	if lambda < 1e-3 {
		return 1
	}
	const eps1, eps2 = 1e-3, 1e-8
	var sum, prev float64
	sign := 2.0
	a2 := -2 * lambda * lambda
	for j := 1; j <= 100; j++ {
		term := sign * math.Exp(a2*float64(j*j))
		sum += term
		if math.Abs(term) <= eps1*prev || math.Abs(term) <= eps2*sum {
			return math.Min(math.Max(sum, 0), 1)
		}
		sign = -sign
		prev = math.Abs(term)
	}
	return 1
}
