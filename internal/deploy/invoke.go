package deploy

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ogulcanaydogan/driftgate/internal/errors"
	"github.com/ogulcanaydogan/driftgate/internal/logging"
)

// OnReject selects what happens to the serving instance when the decision is
// false.
type OnReject string

const (
	// RejectSkip leaves any existing service untouched and creates nothing.
	RejectSkip OnReject = "skip"
	// RejectDeployStopped registers a stopped placeholder when no service
	// exists yet, so later lookups find a service for the key.
	RejectDeployStopped OnReject = "deploy_stopped"
)

// ParseOnReject validates an OnReject name.
func ParseOnReject(s string) (OnReject, error) {
	switch OnReject(s) {
	case RejectSkip, RejectDeployStopped:
		return OnReject(s), nil
	}
	return "", errors.Wrapf(errors.ErrInvalidConfig, "on_reject %q must be skip or deploy_stopped", s)
}

// Action records what Invoke asked the deployer to do.
type Action string

const (
	ActionDeployed    Action = "deployed"
	ActionUpdated     Action = "updated"
	ActionSkipped     Action = "skipped"
	ActionPlaceholder Action = "placeholder"
)

// Options controls Invoke.
type Options struct {
	OnReject OnReject
	// TakesModel is false when the caller has no new model artifact. Invoke
	// then keeps the model URI of the existing service on update.
	TakesModel bool
	Logger     *zap.SugaredLogger
}

// Invoke requests the deployer transition matching decision. A nil deployer
// fails with ErrNoActiveDeployer. Deployer errors are returned unchanged.
func Invoke(ctx context.Context, d Deployer, decision bool, cfg ServiceConfig, opts Options) (*Service, Action, error) {
	if d == nil {
		return nil, "", errors.WithHint(errors.ErrNoActiveDeployer, "configure deployer.kind as local or kubernetes")
	}
	log := opts.Logger
	if log == nil {
		log = logging.Component("deploy")
	}
	log = log.With(logging.FieldPipeline, cfg.PipelineName, logging.FieldStep, cfg.StepName, logging.FieldModel, cfg.ModelName)

	existing, err := latest(ctx, d, cfg.Key)
	if err != nil {
		return nil, "", err
	}

	if !decision {
		log.Infow("skipping model deployment because the model does not meet the criteria")
		if existing != nil || opts.OnReject != RejectDeployStopped {
			return existing, ActionSkipped, nil
		}
		svc, err := d.Register(ctx, cfg)
		if err != nil {
			return nil, "", err
		}
		log.Infow("registered stopped placeholder service", logging.FieldService, svc.UUID)
		return svc, ActionPlaceholder, nil
	}

	if !opts.TakesModel && existing != nil {
		cfg.ModelURI = existing.Config.ModelURI
	}

	if existing != nil && !existing.IsStopped() {
		log.Infow("updating existing model server", logging.FieldService, existing.UUID, logging.FieldState, existing.Status.State)
		svc, err := d.Update(ctx, existing, cfg)
		if err != nil {
			return nil, "", err
		}
		log.Infow("model server updated", logging.FieldService, svc.UUID, logging.FieldState, svc.Status.State, logging.FieldURL, svc.PredictionURL)
		return svc, ActionUpdated, nil
	}

	log.Infow("creating new model server")
	svc, err := d.Deploy(ctx, cfg)
	if err != nil {
		return nil, "", err
	}
	log.Infow("model server started", logging.FieldService, svc.UUID, logging.FieldState, svc.Status.State, logging.FieldURL, svc.PredictionURL)
	return svc, ActionDeployed, nil
}

// FindRunningServer returns the most recent service for key and fails with
// ErrNoRunningServer when there is none or it is not running.
func FindRunningServer(ctx context.Context, d Deployer, key Key) (*Service, error) {
	if d == nil {
		return nil, errors.ErrNoActiveDeployer
	}
	svc, err := latest(ctx, d, key)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, errors.WithHint(
			errors.Wrapf(errors.ErrNoRunningServer, "no server deployed by step %q of pipeline %q for model %q", key.StepName, key.PipelineName, key.ModelName),
			"run the deployment pipeline with --deploy first",
		)
	}
	if !svc.IsRunning() {
		return nil, errors.Wrapf(errors.ErrNoRunningServer, "server %s last deployed by step %q of pipeline %q for model %q is %s",
			svc.UUID, key.StepName, key.PipelineName, key.ModelName, svc.Status.State)
	}
	return svc, nil
}

// StopRunning stops the running service for key, if any. It returns nil and
// no error when nothing is running.
func StopRunning(ctx context.Context, d Deployer, key Key, timeout time.Duration) (*Service, error) {
	svc, err := FindRunningServer(ctx, d, key)
	if errors.IsNoRunningServer(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.Stop(ctx, svc, timeout)
}

func latest(ctx context.Context, d Deployer, key Key) (*Service, error) {
	services, err := d.FindModelServer(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "find model server")
	}
	if len(services) == 0 {
		return nil, nil
	}
	return services[0], nil
}
