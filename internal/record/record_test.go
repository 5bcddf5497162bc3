package record

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/driftgate/internal/deploy"
	"github.com/ogulcanaydogan/driftgate/internal/errors"
	"github.com/ogulcanaydogan/driftgate/internal/gate"
	"github.com/ogulcanaydogan/driftgate/internal/notify"
)

func sampleRecord() *DecisionRecord {
	run := notify.RunContext{PipelineName: "continuous_deployment_pipeline", RunID: "run-7", StepName: "deployment_trigger"}
	return New(run, gate.PolicyThreshold, 0.9, gate.AccuracySignal(0.95), true)
}

func TestNewDefaults(t *testing.T) {
	r := sampleRecord()
	assert.Equal(t, SchemaVersion, r.SchemaVersion)
	assert.NotEmpty(t, r.RecordID)
	assert.Equal(t, notify.OutcomeDisabled, r.Notification)
	assert.Equal(t, ActionNone, r.Deployment.Action)
	require.NotNil(t, r.Signal.Accuracy)
	assert.Nil(t, r.Signal.DatasetDrift)
}

func TestSetDeployment(t *testing.T) {
	r := sampleRecord()
	svc := &deploy.Service{
		UUID:          "abc",
		Status:        deploy.Status{State: deploy.StateRunning},
		PredictionURL: "http://127.0.0.1:8000/invocations",
	}
	r.SetDeployment(svc, deploy.ActionDeployed, nil)
	assert.Equal(t, Deployment{
		Action:        deploy.ActionDeployed,
		ServiceUUID:   "abc",
		State:         deploy.StateRunning,
		PredictionURL: "http://127.0.0.1:8000/invocations",
	}, r.Deployment)

	r.SetDeployment(nil, "", errors.New("cluster unreachable"))
	assert.Equal(t, ActionNone, r.Deployment.Action)
	assert.Equal(t, "cluster unreachable", r.Deployment.Error)
}

func TestReadRejectsOtherSchemas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schema_version":"other/v9"}`), 0o644))
	_, err := Read(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "other/v9")
}

func TestReadWritten(t *testing.T) {
	r := sampleRecord()
	raw, err := json.Marshal(r)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "record.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, r.RecordID, got.RecordID)
	assert.True(t, got.Decision)
	assert.InDelta(t, 0.95, *got.Signal.Accuracy, 1e-12)
}

func TestReadRejectsSchemaViolations(t *testing.T) {
	r := sampleRecord()
	r.Deployment.Action = "teleported"
	raw, err := json.Marshal(r)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "record.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = Read(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action")
}

func TestCanonicalJSONSortsKeys(t *testing.T) {
	out, err := CanonicalJSON(map[string]any{"b": 1.50, "a": []any{true, nil, "x"}, "c": map[string]any{"z": 1, "y": 2}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":[true,null,"x"],"b":1.5,"c":{"y":2,"z":1}}`, string(out))
}

func TestDigestStable(t *testing.T) {
	r := sampleRecord()
	d1, err := Digest(r)
	require.NoError(t, err)
	d2, err := Digest(r)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.True(t, strings.HasPrefix(d1, "sha256:"))

	r.Decision = false
	d3, err := Digest(r)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}
