// Package deploy holds the model deployer contract and the logic that turns a
// deployment decision into deployer calls.
//
// Backends live in subpackages: local keeps a file registry of served models,
// kubernetes runs model servers as Deployments.
package deploy

import (
	"context"
	"strings"
	"time"
)

// ImplementationMLflow serves the MLflow scoring protocol. Every other
// implementation speaks the Seldon protocol.
const ImplementationMLflow = "MLFLOW"

// SpeaksMLflow reports whether implementation serves the MLflow scoring
// protocol. An empty implementation is MLflow.
func SpeaksMLflow(implementation string) bool {
	return implementation == "" || strings.EqualFold(implementation, ImplementationMLflow)
}

// PredictionPath is the inference path a server implementation listens on.
func PredictionPath(implementation string) string {
	if SpeaksMLflow(implementation) {
		return "/invocations"
	}
	return "/api/v1.0/predictions"
}

// State is the lifecycle state of a serving instance.
type State string

const (
	StateNotDeployed State = "not_deployed"
	StateDeploying   State = "deploying"
	StateRunning     State = "running"
	StateStopped     State = "stopped"
	StateFailed      State = "failed"
)

// Key addresses the services created by one pipeline step for one model.
type Key struct {
	PipelineName string `json:"pipeline_name"`
	StepName     string `json:"step_name"`
	ModelName    string `json:"model_name"`
}

// ServiceConfig describes the serving instance to create or update.
type ServiceConfig struct {
	Key
	RunID          string `json:"run_id,omitempty"`
	ModelURI       string `json:"model_uri,omitempty"`
	Replicas       int32  `json:"replicas"`
	Implementation string `json:"implementation,omitempty"`
	Image          string `json:"image,omitempty"`
	SecretName     string `json:"secret_name,omitempty"`
	Namespace      string `json:"namespace,omitempty"`
	BaseURL        string `json:"base_url,omitempty"`
	// Timeout bounds how long Deploy and Update wait for the service to run.
	Timeout time.Duration `json:"timeout"`
}

// Status is the last observed state of a service.
type Status struct {
	State     State  `json:"state"`
	LastError string `json:"last_error,omitempty"`
}

// Service is a serving instance known to a deployer.
type Service struct {
	UUID          string        `json:"uuid"`
	Config        ServiceConfig `json:"config"`
	Status        Status        `json:"status"`
	PredictionURL string        `json:"prediction_url,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (s *Service) IsRunning() bool { return s != nil && s.Status.State == StateRunning }
func (s *Service) IsStopped() bool { return s != nil && s.Status.State == StateStopped }
func (s *Service) IsFailed() bool  { return s != nil && s.Status.State == StateFailed }

// Deployer is implemented by model serving backends. Implementations
// serialize their own state; callers may treat every method as one request.
type Deployer interface {
	// FindModelServer returns the services for key, most recently updated first.
	FindModelServer(ctx context.Context, key Key) ([]*Service, error)
	// Deploy creates a service and waits until it runs or cfg.Timeout passes.
	Deploy(ctx context.Context, cfg ServiceConfig) (*Service, error)
	// Update reconfigures an existing service and waits like Deploy.
	Update(ctx context.Context, svc *Service, cfg ServiceConfig) (*Service, error)
	// Stop brings a service to StateStopped.
	Stop(ctx context.Context, svc *Service, timeout time.Duration) (*Service, error)
	// Register records a service in StateStopped without starting it.
	Register(ctx context.Context, cfg ServiceConfig) (*Service, error)
}
