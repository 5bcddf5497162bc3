package pipeline

import (
	"context"
	"encoding/json"
	"os"

	"github.com/ogulcanaydogan/driftgate/internal/drift"
	"github.com/ogulcanaydogan/driftgate/internal/gate"
)

// SignalSource produces the gate signal of a run.
type SignalSource func(ctx context.Context) (gate.Signal, error)

// DriftReportFile reads the dataset drift flag from a drift report.
func DriftReportFile(path string) SignalSource {
	return func(context.Context) (gate.Signal, error) {
		report, err := drift.LoadReport(path)
		if err != nil {
			return gate.Signal{}, err
		}
		d, err := drift.DatasetDrift(report)
		if err != nil {
			return gate.Signal{}, err
		}
		return gate.DriftSignal(d), nil
	}
}

// AccuracyValue uses a fixed accuracy score.
func AccuracyValue(a float64) SignalSource {
	return func(context.Context) (gate.Signal, error) {
		a, err := drift.Accuracy(a)
		if err != nil {
			return gate.Signal{}, err
		}
		return gate.AccuracySignal(a), nil
	}
}

// AccuracyFile reads the accuracy from an evaluation result file.
func AccuracyFile(path string) SignalSource {
	return func(context.Context) (gate.Signal, error) {
		a, err := drift.LoadAccuracy(path)
		if err != nil {
			return gate.Signal{}, err
		}
		return gate.AccuracySignal(a), nil
	}
}

// DetectDataset splits a CSV dataset into reference and comparison sets and
// runs drift detection on them. The report is written to reportOut when set.
func DetectDataset(path string, split drift.SplitConfig, detect drift.DetectConfig, reportOut string) SignalSource {
	return func(context.Context) (gate.Signal, error) {
		report, err := DetectFile(path, split, detect)
		if err != nil {
			return gate.Signal{}, err
		}
		if reportOut != "" {
			if err := WriteReport(reportOut, report); err != nil {
				return gate.Signal{}, err
			}
		}
		d, err := drift.DatasetDrift(report)
		if err != nil {
			return gate.Signal{}, err
		}
		return gate.DriftSignal(d), nil
	}
}

// DetectFile builds a drift report for the CSV dataset at path.
func DetectFile(path string, split drift.SplitConfig, detect drift.DetectConfig) (drift.Report, error) {
	ds, err := drift.ReadCSVFile(path)
	if err != nil {
		return nil, err
	}
	ref, cur, err := drift.SplitReference(ds, split)
	if err != nil {
		return nil, err
	}
	report, _, err := drift.Detect(ref, cur, detect)
	return report, err
}

func WriteReport(path string, report drift.Report) error {
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// Combine merges the signals of several sources. A later source overrides a
// field an earlier one set.
func Combine(sources ...SignalSource) SignalSource {
	return func(ctx context.Context) (gate.Signal, error) {
		var merged gate.Signal
		for _, src := range sources {
			sig, err := src(ctx)
			if err != nil {
				return gate.Signal{}, err
			}
			if sig.Drift != nil {
				merged.Drift = sig.Drift
			}
			if sig.Accuracy != nil {
				merged.Accuracy = sig.Accuracy
			}
		}
		return merged, nil
	}
}
