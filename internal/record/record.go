// Package record builds the document that summarises one gate run: the
// signal, the decision, what the notifier did and what the deployer did.
package record

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ogulcanaydogan/driftgate/internal/deploy"
	"github.com/ogulcanaydogan/driftgate/internal/errors"
	"github.com/ogulcanaydogan/driftgate/internal/gate"
	"github.com/ogulcanaydogan/driftgate/internal/notify"
	"github.com/ogulcanaydogan/driftgate/pkg/schema"
)

const SchemaVersion = "driftgate.record/v1"

// ActionNone marks a run whose pipeline had no deploy step.
const ActionNone deploy.Action = "none"

type Signal struct {
	DatasetDrift *bool    `json:"dataset_drift,omitempty"`
	Accuracy     *float64 `json:"accuracy,omitempty"`
}

type Deployment struct {
	Action        deploy.Action `json:"action"`
	ServiceUUID   string        `json:"service_uuid,omitempty"`
	State         deploy.State  `json:"state,omitempty"`
	PredictionURL string        `json:"prediction_url,omitempty"`
	Error         string        `json:"error,omitempty"`
}

type DecisionRecord struct {
	SchemaVersion string            `json:"schema_version"`
	RecordID      string            `json:"record_id"`
	CreatedAt     time.Time         `json:"created_at"`
	Run           notify.RunContext `json:"run"`
	Policy        gate.Policy       `json:"policy"`
	MinAccuracy   float64           `json:"min_accuracy"`
	Signal        Signal            `json:"signal"`
	Decision      bool              `json:"decision"`
	Reasons       []string          `json:"reasons,omitempty"`
	Notification  notify.Outcome    `json:"notification"`
	Deployment    Deployment        `json:"deployment"`
}

// New starts a record for a decided run. Notification and deployment fields
// are filled by the later pipeline steps.
func New(run notify.RunContext, policy gate.Policy, minAccuracy float64, signal gate.Signal, decision bool) *DecisionRecord {
	return &DecisionRecord{
		SchemaVersion: SchemaVersion,
		RecordID:      uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		Run:           run,
		Policy:        policy,
		MinAccuracy:   minAccuracy,
		Signal:        Signal{DatasetDrift: signal.Drift, Accuracy: signal.Accuracy},
		Decision:      decision,
		Notification:  notify.OutcomeDisabled,
		Deployment:    Deployment{Action: ActionNone},
	}
}

// SetDeployment records the deployer outcome. svc may be nil.
func (r *DecisionRecord) SetDeployment(svc *deploy.Service, action deploy.Action, err error) {
	d := Deployment{Action: action}
	if action == "" {
		d.Action = ActionNone
	}
	if svc != nil {
		d.ServiceUUID = svc.UUID
		d.State = svc.Status.State
		d.PredictionURL = svc.PredictionURL
	}
	if err != nil {
		d.Error = err.Error()
	}
	r.Deployment = d
}

func Read(path string) (*DecisionRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read decision record")
	}
	var r DecisionRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, errors.Wrapf(err, "decode decision record %s", path)
	}
	if r.SchemaVersion != SchemaVersion {
		return nil, errors.Newf("decision record %s has schema %q, want %q", path, r.SchemaVersion, SchemaVersion)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(err, "decode decision record %s", path)
	}
	violations, err := schema.ValidateDecisionRecord(doc)
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		return nil, errors.Newf("decision record %s: %s", path, strings.Join(violations, "; "))
	}
	return &r, nil
}
