// Package pipeline composes driftgate steps into runs.
//
// A Pipeline is an ordered list of named steps over one shared State. Steps
// run in order and the first error stops the run; Finally steps run after
// every run, failed or not.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ogulcanaydogan/driftgate/internal/deploy"
	"github.com/ogulcanaydogan/driftgate/internal/errors"
	"github.com/ogulcanaydogan/driftgate/internal/gate"
	"github.com/ogulcanaydogan/driftgate/internal/logging"
	"github.com/ogulcanaydogan/driftgate/internal/notify"
	"github.com/ogulcanaydogan/driftgate/internal/record"
)

// StepFunc does the work of one step.
type StepFunc func(ctx context.Context, st *State) error

type Step struct {
	Name string
	Run  StepFunc
}

// State is shared by the steps of one run.
type State struct {
	Run notify.RunContext

	Signal   gate.Signal
	Decided  bool
	Decision bool
	Reasons  []string

	Notification notify.Outcome

	Service   *deploy.Service
	Action    deploy.Action
	DeployErr error

	Record     *record.DecisionRecord
	RecordPath string
	PinnedRef  string

	Rows        [][]float64
	Predictions []any
}

type Pipeline struct {
	Name    string
	Steps   []Step
	Finally []Step
	log     *zap.SugaredLogger
}

func New(name string, steps ...Step) *Pipeline {
	return &Pipeline{Name: name, Steps: steps, log: logging.Component("pipeline")}
}

// WithFinally appends steps that run after every run.
func (p *Pipeline) WithFinally(steps ...Step) *Pipeline {
	p.Finally = append(p.Finally, steps...)
	return p
}

// Run executes one run under a fresh run id.
func (p *Pipeline) Run(ctx context.Context) (*State, error) {
	st := &State{Run: notify.RunContext{PipelineName: p.Name, RunID: uuid.NewString()}}
	log := p.log.With(logging.FieldPipeline, p.Name, logging.FieldRunID, st.Run.RunID)
	start := time.Now()

	var runErr error
	for _, step := range p.Steps {
		if err := p.runStep(ctx, log, step, st); err != nil {
			runErr = errors.Wrapf(err, "step %s", step.Name)
			break
		}
	}
	for _, step := range p.Finally {
		if err := p.runStep(ctx, log, step, st); err != nil && runErr == nil {
			runErr = errors.Wrapf(err, "step %s", step.Name)
		}
	}

	if runErr != nil {
		log.Errorw("pipeline run failed", logging.FieldError, runErr, logging.FieldDurationMS, time.Since(start).Milliseconds())
		return st, runErr
	}
	log.Infow("pipeline run complete", logging.FieldDurationMS, time.Since(start).Milliseconds())
	return st, nil
}

func (p *Pipeline) runStep(ctx context.Context, log *zap.SugaredLogger, step Step, st *State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st.Run.StepName = step.Name
	log.Debugw("running step", logging.FieldStep, step.Name)
	return step.Run(ctx, st)
}

// RunEvery runs the pipeline now and then every interval until ctx ends.
// Failed runs are reported to onRun and do not stop the schedule.
func (p *Pipeline) RunEvery(ctx context.Context, interval time.Duration, onRun func(*State, error)) error {
	if interval <= 0 {
		return errors.Wrapf(errors.ErrInvalidConfig, "schedule interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		st, err := p.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if onRun != nil {
			onRun(st, err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
