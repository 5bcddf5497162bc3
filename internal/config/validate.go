package config

import (
	"math"

	"github.com/ogulcanaydogan/driftgate/internal/deploy"
	"github.com/ogulcanaydogan/driftgate/internal/errors"
	"github.com/ogulcanaydogan/driftgate/internal/gate"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if _, err := gate.ParsePolicy(string(c.Gate.Policy)); err != nil {
		return invalid(err)
	}
	if math.IsNaN(c.Gate.MinAccuracy) || c.Gate.MinAccuracy < 0 || c.Gate.MinAccuracy > 1 {
		return invalid(errors.Newf("gate.min_accuracy must be in [0,1], got %v", c.Gate.MinAccuracy))
	}
	if _, err := deploy.ParseOnReject(string(c.Gate.OnReject)); err != nil {
		return err
	}

	if c.Notify.TimeoutSeconds <= 0 {
		return invalid(errors.Newf("notify.timeout_seconds must be > 0, got %d", c.Notify.TimeoutSeconds))
	}

	switch c.Deployer.Kind {
	case DeployerLocal, DeployerKubernetes:
	default:
		return invalid(errors.Newf("deployer.kind must be %s or %s, got %q", DeployerLocal, DeployerKubernetes, c.Deployer.Kind))
	}
	if c.Deployer.PipelineName == "" || c.Deployer.StepName == "" || c.Deployer.ModelName == "" {
		return invalid(errors.New("deployer.pipeline_name, deployer.step_name and deployer.model_name are required"))
	}
	if c.Deployer.Replicas < 1 {
		return invalid(errors.Newf("deployer.replicas must be >= 1, got %d", c.Deployer.Replicas))
	}
	if c.Deployer.TimeoutSeconds <= 0 {
		return invalid(errors.Newf("deployer.timeout_seconds must be > 0, got %d", c.Deployer.TimeoutSeconds))
	}

	if c.Data.ReferenceRows <= 0 {
		return invalid(errors.Newf("data.reference_rows must be > 0, got %d", c.Data.ReferenceRows))
	}
	if c.Data.PValue <= 0 || c.Data.PValue >= 1 {
		return invalid(errors.Newf("data.p_value must be in (0,1), got %v", c.Data.PValue))
	}
	if c.Data.DriftShare <= 0 || c.Data.DriftShare > 1 {
		return invalid(errors.Newf("data.drift_share must be in (0,1], got %v", c.Data.DriftShare))
	}
	return nil
}

func invalid(err error) error {
	return errors.Mark(err, errors.ErrInvalidConfig)
}
