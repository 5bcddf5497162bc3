package drift

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ogulcanaydogan/driftgate/internal/errors"
	"github.com/ogulcanaydogan/driftgate/pkg/schema"
)

// LoadReport reads a JSON or YAML drift report and validates it against the
// drift report schema. Decode and schema failures are ErrMalformedReport.
func LoadReport(path string) (Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read drift report %s", path)
	}
	return ParseReport(raw)
}

// ParseReport decodes and validates a drift report document.
func ParseReport(raw []byte) (Report, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(errors.ErrMalformedReport, "decode: %v", err)
	}
	report, ok := doc.(map[string]any)
	if !ok {
		return nil, errors.Wrapf(errors.ErrMalformedReport, "document is %T, want object", doc)
	}
	violations, err := schema.ValidateDriftReport(report)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrMalformedReport)
	}
	if len(violations) > 0 {
		return nil, errors.Wrapf(errors.ErrMalformedReport, "schema: %s", strings.Join(violations, "; "))
	}
	return report, nil
}

// EvalResult is the evaluation output read by LoadAccuracy.
type EvalResult struct {
	Accuracy *float64 `yaml:"accuracy" json:"accuracy"`
}

// LoadAccuracy reads an evaluation result file holding {"accuracy": <float>}.
func LoadAccuracy(path string) (float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, "read evaluation result %s", path)
	}
	var res EvalResult
	if err := yaml.Unmarshal(raw, &res); err != nil {
		return 0, errors.Wrapf(errors.ErrInvalidAccuracy, "decode %s: %v", path, err)
	}
	if res.Accuracy == nil {
		return 0, errors.Wrapf(errors.ErrInvalidAccuracy, "%s has no accuracy field", path)
	}
	return Accuracy(*res.Accuracy)
}
