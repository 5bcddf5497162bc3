// Package config loads driftgate settings from defaults, an optional
// driftgate.yaml and DRIFTGATE_* environment variables.
package config

import (
	"time"

	"github.com/ogulcanaydogan/driftgate/internal/deploy"
	"github.com/ogulcanaydogan/driftgate/internal/drift"
	"github.com/ogulcanaydogan/driftgate/internal/gate"
	"github.com/ogulcanaydogan/driftgate/internal/notify"
)

type Config struct {
	Gate     GateConfig     `mapstructure:"gate" yaml:"gate"`
	Notify   NotifyConfig   `mapstructure:"notify" yaml:"notify"`
	Deployer DeployerConfig `mapstructure:"deployer" yaml:"deployer"`
	Data     DataConfig     `mapstructure:"data" yaml:"data"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type GateConfig struct {
	Policy      gate.Policy     `mapstructure:"policy" yaml:"policy"`
	MinAccuracy float64         `mapstructure:"min_accuracy" yaml:"min_accuracy"`
	OnReject    deploy.OnReject `mapstructure:"on_reject" yaml:"on_reject"`
	RegoModule  string          `mapstructure:"rego_module" yaml:"rego_module"` // empty = built-in module
}

type NotifyConfig struct {
	WebhookURL     string `mapstructure:"webhook_url" yaml:"webhook_url"` // empty disables notifications
	Username       string `mapstructure:"username" yaml:"username"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

type DeployerConfig struct {
	Kind              string `mapstructure:"kind" yaml:"kind"` // local | kubernetes
	PipelineName      string `mapstructure:"pipeline_name" yaml:"pipeline_name"`
	StepName          string `mapstructure:"step_name" yaml:"step_name"`
	ModelName         string `mapstructure:"model_name" yaml:"model_name"`
	Replicas          int32  `mapstructure:"replicas" yaml:"replicas"`
	Implementation    string `mapstructure:"implementation" yaml:"implementation"`
	Image             string `mapstructure:"image" yaml:"image"`
	SecretName        string `mapstructure:"secret_name" yaml:"secret_name"`
	KubernetesContext string `mapstructure:"kubernetes_context" yaml:"kubernetes_context"`
	Namespace         string `mapstructure:"namespace" yaml:"namespace"`
	BaseURL           string `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	StateDir          string `mapstructure:"state_dir" yaml:"state_dir"`
	TakesModel        bool   `mapstructure:"takes_model" yaml:"takes_model"`
}

type DataConfig struct {
	DatasetPath   string  `mapstructure:"dataset_path" yaml:"dataset_path"`
	InferencePath string  `mapstructure:"inference_path" yaml:"inference_path"`
	ReferenceRows int     `mapstructure:"reference_rows" yaml:"reference_rows"`
	AddNoise      bool    `mapstructure:"add_noise" yaml:"add_noise"`
	NoiseStdDev   float64 `mapstructure:"noise_std_dev" yaml:"noise_std_dev"`
	Seed          int64   `mapstructure:"seed" yaml:"seed"`
	PValue        float64 `mapstructure:"p_value" yaml:"p_value"`
	DriftShare    float64 `mapstructure:"drift_share" yaml:"drift_share"`
}

type StoreConfig struct {
	RecordDir string `mapstructure:"record_dir" yaml:"record_dir"`
	OCIRef    string `mapstructure:"oci_ref" yaml:"oci_ref"` // empty = records stay local
}

type LogConfig struct {
	JSON  bool   `mapstructure:"json" yaml:"json"`
	Level string `mapstructure:"level" yaml:"level"`
}

func (c NotifyConfig) Notifier() notify.Config {
	return notify.Config{
		URL:      c.WebhookURL,
		Username: c.Username,
		Timeout:  time.Duration(c.TimeoutSeconds) * time.Second,
	}
}

func (c DeployerConfig) Key() deploy.Key {
	return deploy.Key{PipelineName: c.PipelineName, StepName: c.StepName, ModelName: c.ModelName}
}

func (c DeployerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Service builds the serving config for one run.
func (c DeployerConfig) Service(runID, modelURI string) deploy.ServiceConfig {
	return deploy.ServiceConfig{
		Key:            c.Key(),
		RunID:          runID,
		ModelURI:       modelURI,
		Replicas:       c.Replicas,
		Implementation: c.Implementation,
		Image:          c.Image,
		SecretName:     c.SecretName,
		Namespace:      c.Namespace,
		BaseURL:        c.BaseURL,
		Timeout:        c.Timeout(),
	}
}

func (c DataConfig) Split() drift.SplitConfig {
	return drift.SplitConfig{Rows: c.ReferenceRows, AddNoise: c.AddNoise, NoiseStdDev: c.NoiseStdDev, Seed: c.Seed}
}

func (c DataConfig) Detect() drift.DetectConfig {
	return drift.DetectConfig{PValue: c.PValue, DriftShare: c.DriftShare}
}
