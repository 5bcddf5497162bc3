// Package gate maps a drift or accuracy signal to a deployment decision.
//
// Decide is pure: it performs no I/O and returns the same decision for the
// same inputs. The rego policy lives in the rego subpackage and is resolved by
// the caller before reaching this package.
package gate

import (
	"fmt"
	"math"

	"github.com/ogulcanaydogan/driftgate/internal/errors"
)

// Policy names a decision strategy.
type Policy string

const (
	// PolicyDriftAbsence deploys when no dataset drift was detected.
	PolicyDriftAbsence Policy = "drift_absence"
	// PolicyThreshold deploys when accuracy is strictly above the minimum.
	PolicyThreshold Policy = "threshold"
	// PolicyRego delegates the decision to a user supplied Rego module.
	PolicyRego Policy = "rego"
)

// DefaultMinAccuracy is the threshold used when none is configured.
const DefaultMinAccuracy = 0.9

// Policies lists every known policy.
func Policies() []Policy {
	return []Policy{PolicyDriftAbsence, PolicyThreshold, PolicyRego}
}

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	for _, p := range Policies() {
		if string(p) == s {
			return p, nil
		}
	}
	return "", errors.Wrapf(errors.ErrUnknownPolicy, "%q", s)
}

// Signal is the normalized input to the gate. A policy reads only the field it
// needs; the other may be nil.
type Signal struct {
	Drift    *bool
	Accuracy *float64
}

// DriftSignal wraps a dataset drift flag.
func DriftSignal(drift bool) Signal {
	return Signal{Drift: &drift}
}

// AccuracySignal wraps an accuracy score.
func AccuracySignal(accuracy float64) Signal {
	return Signal{Accuracy: &accuracy}
}

func (s Signal) String() string {
	switch {
	case s.Drift != nil && s.Accuracy != nil:
		return fmt.Sprintf("dataset_drift=%t accuracy=%g", *s.Drift, *s.Accuracy)
	case s.Drift != nil:
		return fmt.Sprintf("dataset_drift=%t", *s.Drift)
	case s.Accuracy != nil:
		return fmt.Sprintf("accuracy=%g", *s.Accuracy)
	default:
		return "empty"
	}
}

// DeployOnNoDrift is the drift-absence policy.
func DeployOnNoDrift(drift bool) bool {
	return !drift
}

// DeployAboveThreshold is the threshold policy. Equality is not sufficient.
func DeployAboveThreshold(accuracy, minAccuracy float64) bool {
	return accuracy > minAccuracy
}

// Decide applies policy to signal. minAccuracy is only read by the threshold
// policy; a NaN threshold falls back to DefaultMinAccuracy.
func Decide(policy Policy, signal Signal, minAccuracy float64) (bool, error) {
	switch policy {
	case PolicyDriftAbsence:
		if signal.Drift == nil {
			return false, errors.Wrapf(errors.ErrMissingSignal, "policy %s needs a drift report", policy)
		}
		return DeployOnNoDrift(*signal.Drift), nil
	case PolicyThreshold:
		if signal.Accuracy == nil {
			return false, errors.Wrapf(errors.ErrMissingSignal, "policy %s needs an accuracy score", policy)
		}
		if math.IsNaN(minAccuracy) {
			minAccuracy = DefaultMinAccuracy
		}
		return DeployAboveThreshold(*signal.Accuracy, minAccuracy), nil
	case PolicyRego:
		return false, errors.Wrapf(errors.ErrUnknownPolicy, "policy %s is evaluated by the rego engine", policy)
	default:
		return false, errors.Wrapf(errors.ErrUnknownPolicy, "%q", policy)
	}
}
