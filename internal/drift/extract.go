// Package drift reads, validates and produces dataset drift reports.
package drift

import (
	"math"

	"github.com/ogulcanaydogan/driftgate/internal/errors"
)

// Path is the fixed key path to the dataset drift flag inside a report.
var Path = []string{"data_drift", "data", "metrics", "dataset_drift"}

// Report is a decoded drift report document.
type Report = map[string]any

// DatasetDrift returns the boolean at Path. A missing key, a non-object
// intermediate or a non-boolean leaf fails with ErrMalformedReport; nothing is
// coerced.
func DatasetDrift(report Report) (bool, error) {
	var node any = report
	for i, key := range Path {
		obj, ok := asObject(node)
		if !ok {
			return false, errors.Wrapf(errors.ErrMalformedReport, "%s is not an object", join(Path[:i]))
		}
		next, ok := obj[key]
		if !ok {
			return false, errors.Wrapf(errors.ErrMalformedReport, "%s is missing", join(Path[:i+1]))
		}
		node = next
	}
	drift, ok := node.(bool)
	if !ok {
		return false, errors.Wrapf(errors.ErrMalformedReport, "%s is %T, want bool", join(Path), node)
	}
	return drift, nil
}

// Accuracy passes an accuracy score through after checking it is a finite
// value in [0, 1].
func Accuracy(accuracy float64) (float64, error) {
	if math.IsNaN(accuracy) || accuracy < 0 || accuracy > 1 {
		return 0, errors.Wrapf(errors.ErrInvalidAccuracy, "%v not in [0, 1]", accuracy)
	}
	return accuracy, nil
}

func asObject(v any) (map[string]any, bool) {
	switch obj := v.(type) {
	case map[string]any:
		return obj, obj != nil
	default:
		return nil, false
	}
}

func join(keys []string) string {
	if len(keys) == 0 {
		return "report"
	}
	out := keys[0]
	for _, k := range keys[1:] {
		out += "." + k
	}
	return out
}
