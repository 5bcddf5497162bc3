package schema

import (
	_ "embed"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

var (
	//go:embed drift_report.schema.json
	driftReportSchema string

	//go:embed decision_record.schema.json
	decisionRecordSchema string
)

// ValidateDriftReport checks doc against the built-in drift report schema.
// A nil error with a non-empty slice means the document is invalid.
func ValidateDriftReport(doc any) ([]string, error) {
	return validate(gojsonschema.NewStringLoader(driftReportSchema), doc, "drift report schema")
}

// ValidateDecisionRecord checks doc against the decision record schema.
func ValidateDecisionRecord(doc any) ([]string, error) {
	return validate(gojsonschema.NewStringLoader(decisionRecordSchema), doc, "decision record schema")
}

func validate(schemaLoader gojsonschema.JSONLoader, doc any, name string) ([]string, error) {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", name, err)
	}
	if result.Valid() {
		return nil, nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return errs, nil
}
