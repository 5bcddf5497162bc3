// Package local is a deployer backend for model servers run on the local
// machine. It records services in a JSON file; the serving process itself is
// started outside driftgate and answers at the recorded prediction URL.
package local

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ogulcanaydogan/driftgate/internal/deploy"
	"github.com/ogulcanaydogan/driftgate/internal/errors"
	"github.com/ogulcanaydogan/driftgate/internal/logging"
)

// DefaultBaseURL is used when neither the deployer nor the service config
// carries a base URL.
const DefaultBaseURL = "http://127.0.0.1:8000"

const stateFile = "services.json"

type state struct {
	Services []*deploy.Service `json:"services"`
}

// Deployer is a file-backed deploy.Deployer.
type Deployer struct {
	mu      sync.Mutex
	path    string
	baseURL string
	now     func() time.Time
	log     *zap.SugaredLogger
}

var _ deploy.Deployer = (*Deployer)(nil)

// New returns a Deployer storing its registry under dir.
func New(dir, baseURL string) (*Deployer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create service state dir %s", dir)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Deployer{
		path:    filepath.Join(dir, stateFile),
		baseURL: baseURL,
		now:     func() time.Time { return time.Now().UTC() },
		log:     logging.Component("deploy.local"),
	}, nil
}

func (d *Deployer) FindModelServer(_ context.Context, key deploy.Key) ([]*deploy.Service, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, err := d.load()
	if err != nil {
		return nil, err
	}
	out := make([]*deploy.Service, 0)
	for _, svc := range st.Services {
		if matches(svc.Config.Key, key) {
			out = append(out, svc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (d *Deployer) Deploy(_ context.Context, cfg deploy.ServiceConfig) (*deploy.Service, error) {
	if cfg.ModelURI == "" {
		return nil, errors.Wrap(errors.ErrInvalidConfig, "model uri is required to deploy")
	}
	svc := &deploy.Service{
		UUID:          uuid.NewString(),
		Config:        cfg,
		Status:        deploy.Status{State: deploy.StateRunning},
		PredictionURL: d.predictionURL(cfg),
	}
	if err := d.put(svc); err != nil {
		return nil, err
	}
	d.log.Infow("registered local model server", logging.FieldService, svc.UUID, logging.FieldURL, svc.PredictionURL)
	return svc, nil
}

func (d *Deployer) Update(_ context.Context, svc *deploy.Service, cfg deploy.ServiceConfig) (*deploy.Service, error) {
	if cfg.ModelURI == "" {
		return nil, errors.Wrap(errors.ErrInvalidConfig, "model uri is required to update")
	}
	updated := *svc
	updated.Config = cfg
	updated.Status = deploy.Status{State: deploy.StateRunning}
	updated.PredictionURL = d.predictionURL(cfg)
	if err := d.replace(&updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (d *Deployer) Stop(_ context.Context, svc *deploy.Service, _ time.Duration) (*deploy.Service, error) {
	stopped := *svc
	stopped.Status = deploy.Status{State: deploy.StateStopped}
	if err := d.replace(&stopped); err != nil {
		return nil, err
	}
	d.log.Infow("stopped local model server", logging.FieldService, svc.UUID)
	return &stopped, nil
}

func (d *Deployer) Register(_ context.Context, cfg deploy.ServiceConfig) (*deploy.Service, error) {
	svc := &deploy.Service{
		UUID:          uuid.NewString(),
		Config:        cfg,
		Status:        deploy.Status{State: deploy.StateStopped},
		PredictionURL: d.predictionURL(cfg),
	}
	if err := d.put(svc); err != nil {
		return nil, err
	}
	return svc, nil
}

func (d *Deployer) predictionURL(cfg deploy.ServiceConfig) string {
	base := cfg.BaseURL
	if base == "" {
		base = d.baseURL
	}
	return strings.TrimSuffix(base, "/") + deploy.PredictionPath(cfg.Implementation)
}

func (d *Deployer) put(svc *deploy.Service) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, err := d.load()
	if err != nil {
		return err
	}
	svc.UpdatedAt = d.now()
	st.Services = append(st.Services, svc)
	return d.save(st)
}

func (d *Deployer) replace(svc *deploy.Service) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, err := d.load()
	if err != nil {
		return err
	}
	for i, existing := range st.Services {
		if existing.UUID == svc.UUID {
			svc.UpdatedAt = d.now()
			st.Services[i] = svc
			return d.save(st)
		}
	}
	return errors.Wrapf(errors.ErrNoRunningServer, "service %s not found in %s", svc.UUID, d.path)
}

func (d *Deployer) load() (*state, error) {
	raw, err := os.ReadFile(d.path)
	if os.IsNotExist(err) {
		return &state{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read service registry")
	}
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, errors.Wrapf(err, "decode service registry %s", d.path)
	}
	return &st, nil
}

func (d *Deployer) save(st *state) error {
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.Wrap(err, "write service registry")
	}
	return os.Rename(tmp, d.path)
}

func matches(have, want deploy.Key) bool {
	if want.PipelineName != "" && have.PipelineName != want.PipelineName {
		return false
	}
	if want.StepName != "" && have.StepName != want.StepName {
		return false
	}
	if want.ModelName != "" && have.ModelName != want.ModelName {
		return false
	}
	return true
}
