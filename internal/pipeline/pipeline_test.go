package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ogulcanaydogan/driftgate/internal/config"
	"github.com/ogulcanaydogan/driftgate/internal/deploy"
	"github.com/ogulcanaydogan/driftgate/internal/deploy/local"
	"github.com/ogulcanaydogan/driftgate/internal/errors"
	"github.com/ogulcanaydogan/driftgate/internal/gate"
	"github.com/ogulcanaydogan/driftgate/internal/logging"
	"github.com/ogulcanaydogan/driftgate/internal/notify"
	"github.com/ogulcanaydogan/driftgate/internal/record"
)

var testKey = deploy.Key{PipelineName: ContinuousDeploymentName, StepName: "model_deployer", ModelName: "model"}

type webhook struct {
	mu       sync.Mutex
	payloads []notify.Payload
}

func (w *webhook) last() notify.Payload {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.payloads) == 0 {
		return notify.Payload{}
	}
	return w.payloads[len(w.payloads)-1]
}

func newWebhook(t *testing.T) (*httptest.Server, *webhook) {
	t.Helper()
	hook := &webhook{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p notify.Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		hook.mu.Lock()
		hook.payloads = append(hook.payloads, p)
		hook.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv, hook
}

func writeDriftReport(t *testing.T, driftDetected bool) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drift.json")
	body := fmt.Sprintf(`{"data_drift":{"name":"data_drift","data":{"metrics":{"dataset_drift":%t}}}}`, driftDetected)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func localDeployer(t *testing.T) *local.Deployer {
	t.Helper()
	d, err := local.New(t.TempDir(), "")
	require.NoError(t, err)
	return d
}

func baseOptions(t *testing.T, hookURL string, d deploy.Deployer) Options {
	return Options{
		Policy:             gate.PolicyDriftAbsence,
		MinAccuracy:        gate.DefaultMinAccuracy,
		Notifier:           notify.New(notify.Config{URL: hookURL, Username: "Drift Bot", Timeout: time.Second}),
		Deploy:             true,
		Deployer:           d,
		Service:            deploy.ServiceConfig{Key: testKey, ModelURI: "file:///models/1", Replicas: 1},
		OnReject:           deploy.RejectSkip,
		DeployerTakesModel: true,
		RecordDir:          t.TempDir(),
	}
}

func TestNoDriftDeploys(t *testing.T) {
	srv, hook := newWebhook(t)
	d := localDeployer(t)
	opts := baseOptions(t, srv.URL, d)
	opts.Source = DriftReportFile(writeDriftReport(t, false))

	st, err := ContinuousDeployment(opts).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, st.Decision)
	assert.Equal(t, notify.OutcomeSent, st.Notification)
	assert.Contains(t, hook.last().Content, "No Drift Detected")
	assert.Contains(t, hook.last().Content, "pipeline: **continuous_deployment_pipeline**")
	assert.Equal(t, "Drift Bot", hook.last().Username)

	assert.Equal(t, deploy.ActionDeployed, st.Action)
	running, err := deploy.FindRunningServer(context.Background(), d, testKey)
	require.NoError(t, err)
	assert.Equal(t, st.Service.UUID, running.UUID)
	assert.Equal(t, st.Run.RunID, running.Config.RunID)

	rec, err := record.Read(st.RecordPath)
	require.NoError(t, err)
	assert.True(t, rec.Decision)
	assert.Equal(t, notify.OutcomeSent, rec.Notification)
	assert.Equal(t, deploy.ActionDeployed, rec.Deployment.Action)
	assert.Equal(t, st.Run.RunID, rec.Run.RunID)
}

func TestDecisionLogCarriesSignalFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	original := logging.Logger
	logging.Logger = zap.New(core).Sugar()
	t.Cleanup(func() { logging.Logger = original })

	opts := baseOptions(t, "", nil)
	opts.Deploy, opts.RecordDir = false, ""
	opts.Policy = gate.PolicyThreshold
	opts.Source = AccuracyValue(0.95)
	_, err := ContinuousDeployment(opts).Run(context.Background())
	require.NoError(t, err)

	entries := logs.FilterMessage("deployment decision").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, 0.95, fields[logging.FieldAccuracy])
	assert.Equal(t, gate.DefaultMinAccuracy, fields[logging.FieldThreshold])
	assert.Equal(t, true, fields[logging.FieldDecision])
	assert.NotContains(t, fields, logging.FieldDrift)

	assert.Equal(t, []any{logging.FieldDrift, true}, signalFields(gate.DriftSignal(true), Options{Policy: gate.PolicyDriftAbsence}))
}

func TestDriftSkipsDeployment(t *testing.T) {
	srv, hook := newWebhook(t)
	d := localDeployer(t)
	opts := baseOptions(t, srv.URL, d)
	opts.Source = DriftReportFile(writeDriftReport(t, true))

	st, err := ContinuousDeployment(opts).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, st.Decision)
	content := hook.last().Content
	assert.Contains(t, content, "Drift Detected!")
	assert.NotContains(t, content, "No Drift")
	assert.Equal(t, deploy.ActionSkipped, st.Action)
	assert.Nil(t, st.Service)

	_, err = deploy.FindRunningServer(context.Background(), d, testKey)
	assert.True(t, errors.IsNoRunningServer(err))
}

func TestRejectWithDeployStoppedRegistersPlaceholder(t *testing.T) {
	d := localDeployer(t)
	opts := baseOptions(t, "", d)
	opts.Notifier = nil
	opts.OnReject = deploy.RejectDeployStopped
	opts.Source = DriftReportFile(writeDriftReport(t, true))

	st, err := ContinuousDeployment(opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, notify.OutcomeDisabled, st.Notification)
	assert.Equal(t, deploy.ActionPlaceholder, st.Action)
	assert.True(t, st.Service.IsStopped())
}

func TestAccuracyThresholdScenarios(t *testing.T) {
	cases := []struct {
		accuracy float64
		want     bool
	}{
		{0.95, true},
		{0.90, false},
		{0.0, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%.2f", tc.accuracy), func(t *testing.T) {
			opts := baseOptions(t, "", nil)
			opts.Deploy = false
			opts.Policy = gate.PolicyThreshold
			opts.MinAccuracy = 0.9
			opts.Source = AccuracyValue(tc.accuracy)

			st, err := ContinuousDeployment(opts).Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, st.Decision)
			assert.Equal(t, record.ActionNone, st.Record.Deployment.Action)
		})
	}
}

func TestRegoPolicy(t *testing.T) {
	opts := baseOptions(t, "", nil)
	opts.Deploy = false
	opts.Policy = gate.PolicyRego
	opts.Source = DriftReportFile(writeDriftReport(t, true))

	st, err := ContinuousDeployment(opts).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Decision)
	assert.NotEmpty(t, st.Reasons)
	assert.Equal(t, st.Reasons, st.Record.Reasons)
}

func TestMalformedReportStopsRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"data_drift":{"data":{"metrics":{"dataset_drift":"true"}}}}`), 0o644))

	srv, hook := newWebhook(t)
	opts := baseOptions(t, srv.URL, localDeployer(t))
	opts.Source = DriftReportFile(path)

	st, err := ContinuousDeployment(opts).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsMalformedReport(err))
	assert.False(t, st.Decided)
	assert.Nil(t, st.Record)
	assert.Empty(t, hook.payloads)
}

func TestNotifierFailureDoesNotFailRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	opts := baseOptions(t, srv.URL, localDeployer(t))
	opts.Source = DriftReportFile(writeDriftReport(t, false))

	st, err := ContinuousDeployment(opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, notify.OutcomeFailed, st.Notification)
	assert.Equal(t, deploy.ActionDeployed, st.Action)
}

func TestMissingDeployerIsRecorded(t *testing.T) {
	opts := baseOptions(t, "", nil)
	opts.Source = DriftReportFile(writeDriftReport(t, false))

	st, err := ContinuousDeployment(opts).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoActiveDeployer))
	require.NotNil(t, st.Record)
	assert.NotEmpty(t, st.Record.Deployment.Error)
	assert.FileExists(t, st.RecordPath)
}

func TestDeployerWithoutModelKeepsExistingURI(t *testing.T) {
	d := localDeployer(t)
	ctx := context.Background()

	opts := baseOptions(t, "", d)
	opts.Source = DriftReportFile(writeDriftReport(t, false))
	_, err := ContinuousDeployment(opts).Run(ctx)
	require.NoError(t, err)

	opts.DeployerTakesModel = false
	opts.Service.ModelURI = "file:///models/2"
	st, err := ContinuousDeployment(opts).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, deploy.ActionUpdated, st.Action)
	assert.Equal(t, "file:///models/1", st.Service.Config.ModelURI)
}

func TestMissingSource(t *testing.T) {
	opts := baseOptions(t, "", nil)
	opts.Deploy = false
	_, err := ContinuousDeployment(opts).Run(context.Background())
	assert.True(t, errors.Is(err, errors.ErrMissingSignal))
}

func TestRunEvery(t *testing.T) {
	var runs atomic.Int32
	p := New("scheduled", Step{Name: "count", Run: func(context.Context, *State) error {
		runs.Add(1)
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.RunEvery(ctx, 5*time.Millisecond, func(_ *State, err error) {
			if runs.Load() >= 3 {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("schedule did not stop after cancel")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestRunEveryRejectsZeroInterval(t *testing.T) {
	err := New("scheduled").RunEvery(context.Background(), 0, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
}

func TestStepNamesInRunContext(t *testing.T) {
	var seen []string
	step := func(name string) Step {
		return Step{Name: name, Run: func(_ context.Context, st *State) error {
			seen = append(seen, st.Run.StepName)
			return nil
		}}
	}
	p := New("p", step("a"), step("b")).WithFinally(step("c"))
	st, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, seen)
	assert.Equal(t, "p", st.Run.PipelineName)
	assert.NotEmpty(t, st.Run.RunID)
}

func TestInferencePipeline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Instances [][]float64 `json:"instances"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		preds := make([]int, len(body.Instances))
		_ = json.NewEncoder(w).Encode(preds)
	}))
	defer srv.Close()

	d, err := local.New(t.TempDir(), srv.URL)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = d.Deploy(ctx, deploy.ServiceConfig{Key: testKey, ModelURI: "m"})
	require.NoError(t, err)

	dataPath := filepath.Join(t.TempDir(), "inference.csv")
	require.NoError(t, os.WriteFile(dataPath, []byte("a,b\n1,2\n3,4\n5,6\n"), 0o644))

	st, err := Inference(InferenceOptions{DataPath: dataPath, Deployer: d, Key: testKey}).Run(ctx)
	require.NoError(t, err)
	assert.Len(t, st.Predictions, 3)
}

func TestInferenceDefaultConfigOnLocalBackend(t *testing.T) {
	type request struct {
		path string
		keys []string
	}
	seen := make(chan request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&body)
		req := request{path: r.URL.Path}
		for k := range body {
			req.keys = append(req.keys, k)
		}
		seen <- req
		var payload struct {
			Data struct {
				NDArray [][]float64 `json:"ndarray"`
			} `json:"data"`
		}
		_ = json.Unmarshal(body["data"], &payload.Data)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"ndarray": make([]int, len(payload.Data.NDArray))}})
	}))
	defer srv.Close()

	cfg := config.Defaults()
	d, err := local.New(t.TempDir(), srv.URL)
	require.NoError(t, err)
	ctx := context.Background()
	svc, err := d.Deploy(ctx, cfg.Deployer.Service("run-1", "file:///models/1"))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+deploy.PredictionPath(cfg.Deployer.Implementation), svc.PredictionURL)

	dataPath := filepath.Join(t.TempDir(), "inference.csv")
	require.NoError(t, os.WriteFile(dataPath, []byte("a,b\n1,2\n3,4\n"), 0o644))

	st, err := Inference(InferenceOptions{DataPath: dataPath, Deployer: d, Key: cfg.Deployer.Key()}).Run(ctx)
	require.NoError(t, err)
	assert.Len(t, st.Predictions, 2)

	req := <-seen
	assert.Equal(t, "/api/v1.0/predictions", req.path)
	assert.Equal(t, []string{"data"}, req.keys)
}

func TestInferenceWithoutServer(t *testing.T) {
	dataPath := filepath.Join(t.TempDir(), "inference.csv")
	require.NoError(t, os.WriteFile(dataPath, []byte("a\n1\n"), 0o644))

	_, err := Inference(InferenceOptions{DataPath: dataPath, Deployer: localDeployer(t), Key: testKey}).Run(context.Background())
	assert.True(t, errors.IsNoRunningServer(err))
}
