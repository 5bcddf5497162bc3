package schema

import (
	"strings"
	"testing"
)

func validReport(drift any) map[string]any {
	return map[string]any{
		"data_drift": map[string]any{
			"data": map[string]any{
				"metrics": map[string]any{
					"dataset_drift":          drift,
					"n_features":             4,
					"n_drifted_features":     1,
					"share_drifted_features": 0.25,
				},
			},
		},
	}
}

func TestValidateDriftReport(t *testing.T) {
	errs, err := ValidateDriftReport(validReport(false))
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 0 {
		t.Fatalf("expected valid report, got %v", errs)
	}
}

func TestValidateDriftReportRejects(t *testing.T) {
	cases := []struct {
		name string
		doc  any
		want string
	}{
		{"empty", map[string]any{}, "data_drift"},
		{"string drift", validReport("true"), "dataset_drift"},
		{"missing metrics", map[string]any{"data_drift": map[string]any{"data": map[string]any{}}}, "metrics"},
		{"share out of range", func() any {
			r := validReport(true)
			r["data_drift"].(map[string]any)["data"].(map[string]any)["metrics"].(map[string]any)["share_drifted_features"] = 1.5
			return r
		}(), "share_drifted_features"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errs, err := ValidateDriftReport(tc.doc)
			if err != nil {
				t.Fatal(err)
			}
			if len(errs) == 0 {
				t.Fatal("expected schema errors")
			}
			if !strings.Contains(strings.Join(errs, "\n"), tc.want) {
				t.Fatalf("errors %v do not mention %q", errs, tc.want)
			}
		})
	}
}

func validRecord() map[string]any {
	return map[string]any{
		"schema_version": "driftgate.record/v1",
		"record_id":      "r-1",
		"created_at":     "2026-01-02T03:04:05Z",
		"run":            map[string]any{"pipeline_name": "p", "run_id": "run-1", "step_name": "decide"},
		"policy":         "threshold",
		"min_accuracy":   0.9,
		"signal":         map[string]any{"accuracy": 0.95},
		"decision":       true,
		"notification":   "disabled",
		"deployment":     map[string]any{"action": "deployed", "state": "running"},
	}
}

func TestValidateDecisionRecord(t *testing.T) {
	errs, err := ValidateDecisionRecord(validRecord())
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 0 {
		t.Fatalf("expected valid record, got %v", errs)
	}
}

func TestValidateDecisionRecordRejects(t *testing.T) {
	cases := []struct {
		name  string
		patch func(map[string]any)
		want  string
	}{
		{"unknown policy", func(r map[string]any) { r["policy"] = "always" }, "policy"},
		{"unknown action", func(r map[string]any) { r["deployment"] = map[string]any{"action": "yolo"} }, "action"},
		{"accuracy out of range", func(r map[string]any) { r["signal"] = map[string]any{"accuracy": 1.2} }, "accuracy"},
		{"missing decision", func(r map[string]any) { delete(r, "decision") }, "decision"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := validRecord()
			tc.patch(r)
			errs, err := ValidateDecisionRecord(r)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(strings.Join(errs, "\n"), tc.want) {
				t.Fatalf("errors %v do not mention %q", errs, tc.want)
			}
		})
	}
}
