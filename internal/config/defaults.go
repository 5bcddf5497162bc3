package config

import (
	"github.com/spf13/viper"

	"github.com/ogulcanaydogan/driftgate/internal/deploy"
	"github.com/ogulcanaydogan/driftgate/internal/gate"
)

const (
	DeployerLocal      = "local"
	DeployerKubernetes = "kubernetes"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("gate.policy", string(gate.PolicyDriftAbsence))
	v.SetDefault("gate.min_accuracy", gate.DefaultMinAccuracy)
	v.SetDefault("gate.on_reject", string(deploy.RejectSkip))
	v.SetDefault("gate.rego_module", "")

	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.username", "Drift Bot")
	v.SetDefault("notify.timeout_seconds", 5)

	v.SetDefault("deployer.kind", DeployerLocal)
	v.SetDefault("deployer.pipeline_name", "continuous_deployment_pipeline")
	v.SetDefault("deployer.step_name", "model_deployer")
	v.SetDefault("deployer.model_name", "model")
	v.SetDefault("deployer.replicas", 1)
	v.SetDefault("deployer.implementation", "SKLEARN_SERVER")
	v.SetDefault("deployer.image", "")
	v.SetDefault("deployer.secret_name", "seldon-init-container-secret") // artifact store credentials
	v.SetDefault("deployer.kubernetes_context", "")
	v.SetDefault("deployer.namespace", "default")
	v.SetDefault("deployer.base_url", "")
	v.SetDefault("deployer.timeout_seconds", 120)
	v.SetDefault("deployer.state_dir", ".driftgate/services")
	v.SetDefault("deployer.takes_model", true)

	v.SetDefault("data.dataset_path", "")
	v.SetDefault("data.inference_path", "")
	v.SetDefault("data.reference_rows", 30000)
	v.SetDefault("data.add_noise", true)
	v.SetDefault("data.noise_std_dev", 1.0)
	v.SetDefault("data.seed", 42)
	v.SetDefault("data.p_value", 0.05)
	v.SetDefault("data.drift_share", 0.5)

	v.SetDefault("store.record_dir", ".driftgate/records")
	v.SetDefault("store.oci_ref", "")

	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
}

// BindSensitiveEnvVars binds secrets that are usually injected by CI under
// their own names.
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("notify.webhook_url", "DRIFTGATE_NOTIFY_WEBHOOK_URL", "DRIFTGATE_WEBHOOK_URL")
}
