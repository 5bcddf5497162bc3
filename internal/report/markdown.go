package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/ogulcanaydogan/driftgate/internal/record"
)

func BuildMarkdown(r *record.DecisionRecord) string {
	verdict := "DEPLOY"
	if !r.Decision {
		verdict = "REJECT"
	}
	var b strings.Builder
	b.WriteString("# Deployment Decision Report\n\n")
	b.WriteString(fmt.Sprintf("- Decision: **%s**\n", verdict))
	b.WriteString(fmt.Sprintf("- Policy: `%s`\n", r.Policy))
	if r.Signal.Accuracy != nil {
		b.WriteString(fmt.Sprintf("- Accuracy: `%g` (minimum `%g`)\n", *r.Signal.Accuracy, r.MinAccuracy))
	}
	if r.Signal.DatasetDrift != nil {
		b.WriteString(fmt.Sprintf("- Dataset Drift: `%t`\n", *r.Signal.DatasetDrift))
	}
	b.WriteString(fmt.Sprintf("- Record: `%s`\n", r.RecordID))
	b.WriteString(fmt.Sprintf("- Created: `%s`\n", r.CreatedAt.Format("2006-01-02T15:04:05Z07:00")))

	if !r.Run.IsZero() {
		b.WriteString("\n## Run\n\n")
		b.WriteString("| Pipeline | Run | Step |\n")
		b.WriteString("|---|---|---|\n")
		b.WriteString(fmt.Sprintf("| %s | %s | %s |\n", cell(r.Run.PipelineName), cell(r.Run.RunID), cell(r.Run.StepName)))
	}

	if len(r.Reasons) > 0 {
		b.WriteString("\n## Reasons\n\n")
		for _, reason := range r.Reasons {
			b.WriteString("- " + reason + "\n")
		}
	}

	b.WriteString("\n## Outcome\n\n")
	b.WriteString(fmt.Sprintf("- Notification: `%s`\n", r.Notification))
	b.WriteString(fmt.Sprintf("- Deployment Action: `%s`\n", r.Deployment.Action))
	if r.Deployment.ServiceUUID != "" {
		b.WriteString("\n| Service | State | Prediction URL |\n")
		b.WriteString("|---|---|---|\n")
		b.WriteString(fmt.Sprintf("| %s | %s | %s |\n", r.Deployment.ServiceUUID, r.Deployment.State, cell(r.Deployment.PredictionURL)))
	}
	if r.Deployment.Error != "" {
		b.WriteString(fmt.Sprintf("\n- Deployment Error: %s\n", r.Deployment.Error))
	}

	return b.String()
}

func cell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", "\\|")
}

func WriteMarkdown(path string, r *record.DecisionRecord) error {
	return os.WriteFile(path, []byte(BuildMarkdown(r)), 0o644)
}
