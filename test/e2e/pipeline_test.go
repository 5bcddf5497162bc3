//go:build e2e

package e2e

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ogulcanaydogan/driftgate/internal/deploy"
	"github.com/ogulcanaydogan/driftgate/internal/drift"
	"github.com/ogulcanaydogan/driftgate/internal/errors"
	"github.com/ogulcanaydogan/driftgate/internal/pipeline"
	"github.com/ogulcanaydogan/driftgate/internal/record"
	"github.com/ogulcanaydogan/driftgate/internal/report"
	"github.com/ogulcanaydogan/driftgate/internal/store"
)

func TestFullPipeline_DetectDeployPredict(t *testing.T) {
	tmp := t.TempDir()
	dataset := writeDataset(t, tmp, 400)
	srv := startModelServer(t)
	d := newDeployer(t, srv.URL)
	ctx := context.Background()

	opts := deploymentOptions(t, dataset, drift.SplitConfig{Rows: 200}, d, "")
	st, err := pipeline.ContinuousDeployment(opts).Run(ctx)
	if err != nil {
		t.Fatalf("deployment run: %v", err)
	}
	if !st.Decision || st.Action != deploy.ActionDeployed {
		t.Fatalf("expected deployment, got decision=%t action=%s signal=%s", st.Decision, st.Action, st.Signal)
	}

	rows := filepath.Join(tmp, "rows.csv")
	if err := os.WriteFile(rows, []byte("sepal,petal,stem\n6,1,1\n2,1,1\n9,3,3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	inf, err := pipeline.Inference(pipeline.InferenceOptions{DataPath: rows, Deployer: d, Key: key}).Run(ctx)
	if err != nil {
		t.Fatalf("inference run: %v", err)
	}
	if len(inf.Predictions) != 3 {
		t.Fatalf("expected 3 predictions, got %v", inf.Predictions)
	}
	if inf.Predictions[0] != float64(1) || inf.Predictions[1] != float64(0) {
		t.Fatalf("predictions out of order: %v", inf.Predictions)
	}
}

func TestFullPipeline_DriftBlocksDeployment(t *testing.T) {
	tmp := t.TempDir()
	dataset := writeDataset(t, tmp, 400)
	d := newDeployer(t, "")
	ctx := context.Background()

	split := drift.SplitConfig{Rows: 200, AddNoise: true, NoiseStdDev: 8, Seed: 1}
	st, err := pipeline.ContinuousDeployment(deploymentOptions(t, dataset, split, d, "")).Run(ctx)
	if err != nil {
		t.Fatalf("deployment run: %v", err)
	}
	if st.Decision || st.Action != deploy.ActionSkipped {
		t.Fatalf("expected skipped deployment, got decision=%t action=%s", st.Decision, st.Action)
	}
	if _, err := deploy.FindRunningServer(ctx, d, key); !errors.IsNoRunningServer(err) {
		t.Fatalf("expected no running server, got %v", err)
	}

	rec, err := record.Read(st.RecordPath)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Decision || rec.Signal.DatasetDrift == nil || !*rec.Signal.DatasetDrift {
		t.Fatalf("record does not show drift: %+v", rec)
	}
}

func TestFullPipeline_RecordPublishReport(t *testing.T) {
	tmp := t.TempDir()
	dataset := writeDataset(t, tmp, 400)
	d := newDeployer(t, "")
	ociRef := startRegistry(t) + "/driftgate/records:latest"

	st, err := pipeline.ContinuousDeployment(deploymentOptions(t, dataset, drift.SplitConfig{Rows: 200}, d, ociRef)).Run(context.Background())
	if err != nil {
		t.Fatalf("deployment run: %v", err)
	}
	if !strings.Contains(st.PinnedRef, "@sha256:") {
		t.Fatalf("expected pinned ref, got %q", st.PinnedRef)
	}

	pulled := filepath.Join(tmp, "pulled.json")
	if err := store.PullOCI(st.PinnedRef, pulled); err != nil {
		t.Fatal(err)
	}
	rec, err := record.Read(pulled)
	if err != nil {
		t.Fatal(err)
	}
	want, err := record.Digest(st.Record)
	if err != nil {
		t.Fatal(err)
	}
	got, err := record.Digest(rec)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("pulled record digest %s, want %s", got, want)
	}

	md := filepath.Join(tmp, "decision.md")
	if err := report.WriteMarkdown(md, rec); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(md)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "DEPLOY") || !strings.Contains(string(raw), rec.Run.RunID) {
		t.Fatalf("report does not describe the run:\n%s", raw)
	}
}
