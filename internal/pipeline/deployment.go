package pipeline

import (
	"context"
	"strconv"

	"github.com/ogulcanaydogan/driftgate/internal/deploy"
	"github.com/ogulcanaydogan/driftgate/internal/errors"
	"github.com/ogulcanaydogan/driftgate/internal/gate"
	"github.com/ogulcanaydogan/driftgate/internal/gate/rego"
	"github.com/ogulcanaydogan/driftgate/internal/logging"
	"github.com/ogulcanaydogan/driftgate/internal/notify"
	"github.com/ogulcanaydogan/driftgate/internal/record"
	"github.com/ogulcanaydogan/driftgate/internal/report"
	"github.com/ogulcanaydogan/driftgate/internal/store"
)

const (
	ContinuousDeploymentName = "continuous_deployment_pipeline"

	StepLoadSignal = "load_signal"
	StepDecide     = "decide"
	StepNotify     = "notify"
	StepDeploy     = "deploy"
	StepRecord     = "record"
)

// Options configures the continuous deployment pipeline.
type Options struct {
	Name        string
	Source      SignalSource
	Policy      gate.Policy
	MinAccuracy float64
	// RegoModule is the module file for gate.PolicyRego; empty uses the
	// built-in module.
	RegoModule string

	// Notifier may be nil, which disables notifications.
	Notifier *notify.Notifier

	// Deploy adds the deploy step. Deployer nil with Deploy set fails the
	// step with ErrNoActiveDeployer.
	Deploy   bool
	Deployer deploy.Deployer
	Service  deploy.ServiceConfig
	OnReject deploy.OnReject
	// DeployerTakesModel is false when the run produces no model artifact:
	// the deploy step then passes no model URI and only reconfigures an
	// existing service.
	DeployerTakesModel bool

	// RecordDir enables the record step. OCIRef additionally publishes
	// every record.
	RecordDir string
	OCIRef    string
}

// ContinuousDeployment builds load_signal → decide → notify → deploy, with
// record as a final step.
func ContinuousDeployment(opts Options) *Pipeline {
	name := opts.Name
	if name == "" {
		name = ContinuousDeploymentName
	}
	steps := []Step{
		{Name: StepLoadSignal, Run: loadSignal(opts)},
		{Name: StepDecide, Run: decide(opts)},
		{Name: StepNotify, Run: notifyStep(opts)},
	}
	if opts.Deploy {
		steps = append(steps, Step{Name: StepDeploy, Run: deployStep(opts)})
	}
	p := New(name, steps...)
	if opts.RecordDir != "" {
		p.WithFinally(Step{Name: StepRecord, Run: recordStep(opts)})
	}
	return p
}

func loadSignal(opts Options) StepFunc {
	return func(ctx context.Context, st *State) error {
		if opts.Source == nil {
			return errors.WithHint(errors.ErrMissingSignal, "pass --drift-report, --dataset, --accuracy or --accuracy-file")
		}
		sig, err := opts.Source(ctx)
		if err != nil {
			return err
		}
		st.Signal = sig
		return nil
	}
}

func decide(opts Options) StepFunc {
	return func(ctx context.Context, st *State) error {
		var decision bool
		if opts.Policy == gate.PolicyRego {
			res, err := rego.EvaluateFile(ctx, opts.RegoModule, rego.BuildInput(st.Signal, opts.MinAccuracy))
			if err != nil {
				return err
			}
			decision, st.Reasons = res.Deploy, res.Reasons
		} else {
			d, err := gate.Decide(opts.Policy, st.Signal, opts.MinAccuracy)
			if err != nil {
				return err
			}
			decision = d
		}
		st.Decided, st.Decision = true, decision
		fields := []any{
			logging.FieldRunID, st.Run.RunID,
			logging.FieldPolicy, opts.Policy,
			logging.FieldDecision, decision,
		}
		logging.Logger.Infow("deployment decision", append(fields, signalFields(st.Signal, opts)...)...)
		return nil
	}
}

// signalFields logs the signal values the policy looked at.
func signalFields(sig gate.Signal, opts Options) []any {
	var fields []any
	if sig.Drift != nil {
		fields = append(fields, logging.FieldDrift, *sig.Drift)
	}
	if sig.Accuracy != nil {
		fields = append(fields, logging.FieldAccuracy, *sig.Accuracy)
	}
	if opts.Policy != gate.PolicyDriftAbsence {
		fields = append(fields, logging.FieldThreshold, opts.MinAccuracy)
	}
	return fields
}

func notifyStep(opts Options) StepFunc {
	return func(ctx context.Context, st *State) error {
		if opts.Notifier == nil {
			st.Notification = notify.OutcomeDisabled
			return nil
		}
		st.Notification = opts.Notifier.Notify(ctx, notify.Event{
			Run:         st.Run,
			Policy:      opts.Policy,
			Decision:    st.Decision,
			Signal:      st.Signal,
			MinAccuracy: opts.MinAccuracy,
			Reasons:     st.Reasons,
		})
		return nil
	}
}

func deployStep(opts Options) StepFunc {
	return func(ctx context.Context, st *State) error {
		cfg := opts.Service
		cfg.RunID = st.Run.RunID
		if !opts.DeployerTakesModel {
			cfg.ModelURI = ""
		}
		svc, action, err := deploy.Invoke(ctx, opts.Deployer, st.Decision, cfg, deploy.Options{
			OnReject:   opts.OnReject,
			TakesModel: opts.DeployerTakesModel,
		})
		st.Service, st.Action, st.DeployErr = svc, action, err
		return err
	}
}

func recordStep(opts Options) StepFunc {
	return func(ctx context.Context, st *State) error {
		if !st.Decided {
			return nil
		}
		rec := record.New(st.Run, opts.Policy, opts.MinAccuracy, st.Signal, st.Decision)
		rec.Run.StepName = StepDecide
		rec.Reasons = st.Reasons
		rec.Notification = st.Notification
		rec.SetDeployment(st.Service, st.Action, st.DeployErr)
		st.Record = rec

		dir, err := store.EnsureRecordDir(opts.RecordDir)
		if err != nil {
			return err
		}
		path := store.RecordPath(dir, rec.RecordID)
		if err := report.WriteJSON(path, rec); err != nil {
			return errors.Wrap(err, "write decision record")
		}
		st.RecordPath = path

		if opts.OCIRef != "" {
			pinned, err := store.PublishOCI(path, opts.OCIRef, map[string]string{
				"io.driftgate.record-id": rec.RecordID,
				"io.driftgate.run-id":    rec.Run.RunID,
				"io.driftgate.decision":  strconv.FormatBool(rec.Decision),
			})
			if err != nil {
				return err
			}
			st.PinnedRef = pinned
		}
		return nil
	}
}
