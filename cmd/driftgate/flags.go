package main

import (
	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/driftgate/internal/config"
	"github.com/ogulcanaydogan/driftgate/internal/deploy"
	"github.com/ogulcanaydogan/driftgate/internal/errors"
	"github.com/ogulcanaydogan/driftgate/internal/gate"
	"github.com/ogulcanaydogan/driftgate/internal/pipeline"
)

// signalFlags select where the gate signal of a run comes from.
type signalFlags struct {
	driftReport  string
	dataset      string
	reportOut    string
	accuracy     float64
	accuracyFile string
	policy       string
	minAccuracy  float64
	regoModule   string
}

func (f *signalFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.driftReport, "drift-report", "", "drift report JSON/YAML path")
	cmd.Flags().StringVar(&f.dataset, "dataset", "", "CSV dataset to split and run drift detection on")
	cmd.Flags().StringVar(&f.reportOut, "report-out", "", "write the detected drift report here (with --dataset)")
	cmd.Flags().Float64Var(&f.accuracy, "accuracy", 0, "model accuracy score in [0,1]")
	cmd.Flags().StringVar(&f.accuracyFile, "accuracy-file", "", `evaluation result file holding {"accuracy": <float>}`)
	cmd.Flags().StringVar(&f.policy, "policy", "", "gate policy (drift_absence|threshold|rego)")
	cmd.Flags().Float64Var(&f.minAccuracy, "min-accuracy", gate.DefaultMinAccuracy, "minimum accuracy for the threshold policy")
	cmd.Flags().StringVar(&f.regoModule, "rego-module", "", "rego module path for the rego policy")
}

// apply copies the flags that were set onto cfg.
func (f *signalFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("policy") {
		p, err := gate.ParsePolicy(f.policy)
		if err != nil {
			return err
		}
		cfg.Gate.Policy = p
	} else if cmd.Flags().Changed("accuracy") || cmd.Flags().Changed("accuracy-file") {
		cfg.Gate.Policy = gate.PolicyThreshold
	}
	if cmd.Flags().Changed("min-accuracy") {
		cfg.Gate.MinAccuracy = f.minAccuracy
	}
	if cmd.Flags().Changed("rego-module") {
		cfg.Gate.RegoModule = f.regoModule
	}
	return cfg.Validate()
}

// source builds the signal source from the flags, falling back to the
// configured dataset. Only the rego policy accepts more than one source.
func (f *signalFlags) source(cmd *cobra.Command, cfg *config.Config) (pipeline.SignalSource, error) {
	var sources []pipeline.SignalSource
	if cmd.Flags().Changed("accuracy") {
		sources = append(sources, pipeline.AccuracyValue(f.accuracy))
	}
	if f.accuracyFile != "" {
		sources = append(sources, pipeline.AccuracyFile(f.accuracyFile))
	}
	dataset := f.dataset
	if dataset == "" && f.driftReport == "" && len(sources) == 0 {
		dataset = cfg.Data.DatasetPath
	}
	if f.driftReport != "" {
		sources = append(sources, pipeline.DriftReportFile(f.driftReport))
	}
	if dataset != "" {
		sources = append(sources, pipeline.DetectDataset(dataset, cfg.Data.Split(), cfg.Data.Detect(), f.reportOut))
	}

	switch {
	case len(sources) == 0:
		return nil, nil
	case len(sources) == 1:
		return sources[0], nil
	case cfg.Gate.Policy != gate.PolicyRego:
		return nil, errors.WithHint(
			errors.Wrap(errors.ErrInvalidConfig, "more than one signal source given"),
			"pass one of --drift-report, --dataset, --accuracy, --accuracy-file or use --policy rego",
		)
	}
	return pipeline.Combine(sources...), nil
}

// deployerFlags override the deployer section of the config.
type deployerFlags struct {
	secret            string
	kubernetesContext string
	namespace         string
	baseURL           string
	modelURI          string
	onReject          string
}

func (f *deployerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.secret, "secret", "x", "", "Kubernetes secret passed to model servers to reach the artifact store")
	cmd.Flags().StringVar(&f.kubernetesContext, "kubernetes-context", "", "kubeconfig context for the kubernetes deployer")
	cmd.Flags().StringVar(&f.namespace, "namespace", "", "namespace for the kubernetes deployer")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "base URL of locally served models")
}

func (f *deployerFlags) registerDeploy(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.modelURI, "model-uri", "", "URI of the model artifact to serve")
	cmd.Flags().StringVar(&f.onReject, "on-reject", "", "what to do when the gate rejects (skip|deploy_stopped)")
}

func (f *deployerFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("secret") {
		cfg.Deployer.SecretName = f.secret
	}
	if cmd.Flags().Changed("kubernetes-context") {
		cfg.Deployer.KubernetesContext = f.kubernetesContext
		cfg.Deployer.Kind = config.DeployerKubernetes
	}
	if cmd.Flags().Changed("namespace") {
		cfg.Deployer.Namespace = f.namespace
	}
	if cmd.Flags().Changed("base-url") {
		cfg.Deployer.BaseURL = f.baseURL
	}
	if cmd.Flags().Changed("on-reject") {
		r, err := deploy.ParseOnReject(f.onReject)
		if err != nil {
			return err
		}
		cfg.Gate.OnReject = r
	}
	return nil
}
