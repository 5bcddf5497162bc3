package notify

import (
	"fmt"
	"strings"

	"github.com/ogulcanaydogan/driftgate/internal/gate"
)

// RunContext identifies the pipeline run a message is about.
type RunContext struct {
	PipelineName string `json:"pipeline_name"`
	RunID        string `json:"run_id"`
	StepName     string `json:"step_name"`
}

// IsZero reports whether no run metadata is set.
func (r RunContext) IsZero() bool {
	return r.PipelineName == "" && r.RunID == "" && r.StepName == ""
}

// Event is everything a notification message is built from.
type Event struct {
	Run         RunContext
	Policy      gate.Policy
	Decision    bool
	Signal      gate.Signal
	MinAccuracy float64
	// Reasons carries the rego policy explanation, if any.
	Reasons []string
}

// BuildMessage renders the message content for ev.
func BuildMessage(ev Event) string {
	var b strings.Builder
	if !ev.Run.IsZero() {
		fmt.Fprintf(&b, "Message from pipeline: **%s**, run: **%s**, step: **%s**\n\n",
			ev.Run.PipelineName, ev.Run.RunID, ev.Run.StepName)
	}
	b.WriteString(verdict(ev))
	return b.String()
}

func verdict(ev Event) string {
	switch ev.Policy {
	case gate.PolicyThreshold:
		acc := 0.0
		if ev.Signal.Accuracy != nil {
			acc = *ev.Signal.Accuracy
		}
		if ev.Decision {
			return fmt.Sprintf("Model accuracy %g meets minimum %g, deploying.", acc, ev.MinAccuracy)
		}
		return fmt.Sprintf("Model accuracy %g below minimum %g, deployment skipped.", acc, ev.MinAccuracy)
	case gate.PolicyRego:
		if ev.Decision {
			return "Deployment approved by policy."
		}
		if len(ev.Reasons) == 0 {
			return "Deployment blocked by policy."
		}
		return "Deployment blocked by policy: " + strings.Join(ev.Reasons, "; ") + "."
	default:
		if ev.Decision {
			return "No Drift Detected!"
		}
		return "Drift Detected!"
	}
}
