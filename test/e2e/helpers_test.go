//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-containerregistry/pkg/registry"

	"github.com/ogulcanaydogan/driftgate/internal/deploy"
	"github.com/ogulcanaydogan/driftgate/internal/deploy/local"
	"github.com/ogulcanaydogan/driftgate/internal/drift"
	"github.com/ogulcanaydogan/driftgate/internal/gate"
	"github.com/ogulcanaydogan/driftgate/internal/pipeline"
)

var key = deploy.Key{PipelineName: pipeline.ContinuousDeploymentName, StepName: "model_deployer", ModelName: "model"}

// writeDataset writes rows of three uniformly distributed features.
func writeDataset(t *testing.T, dir string, rows int) string {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	var b strings.Builder
	b.WriteString("sepal,petal,stem\n")
	for range rows {
		fmt.Fprintf(&b, "%.4f,%.4f,%.4f\n", rng.Float64()*10, rng.Float64()*10, rng.Float64()*10)
	}
	path := filepath.Join(dir, "dataset.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// startModelServer serves one prediction per posted row on /invocations.
func startModelServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/invocations", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Instances [][]float64 `json:"instances"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		preds := make([]int, len(req.Instances))
		for i, row := range req.Instances {
			if row[0] > 5 {
				preds[i] = 1
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"predictions": preds})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func startRegistry(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(registry.New())
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func newDeployer(t *testing.T, baseURL string) *local.Deployer {
	t.Helper()
	d, err := local.New(filepath.Join(t.TempDir(), "services"), baseURL)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func deploymentOptions(t *testing.T, dataset string, split drift.SplitConfig, d deploy.Deployer, ociRef string) pipeline.Options {
	t.Helper()
	return pipeline.Options{
		Source:             pipeline.DetectDataset(dataset, split, drift.DefaultDetectConfig(), ""),
		Policy:             gate.PolicyDriftAbsence,
		MinAccuracy:        0.9,
		Deploy:             true,
		Deployer:           d,
		Service:            deploy.ServiceConfig{Key: key, ModelURI: "file:///models/iris/1"},
		OnReject:           deploy.RejectSkip,
		DeployerTakesModel: true,
		RecordDir:          filepath.Join(t.TempDir(), "records"),
		OCIRef:             ociRef,
	}
}
