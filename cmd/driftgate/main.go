package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/driftgate/internal/config"
	"github.com/ogulcanaydogan/driftgate/internal/deploy"
	k8sdeploy "github.com/ogulcanaydogan/driftgate/internal/deploy/kubernetes"
	"github.com/ogulcanaydogan/driftgate/internal/deploy/local"
	"github.com/ogulcanaydogan/driftgate/internal/errors"
	"github.com/ogulcanaydogan/driftgate/internal/logging"
	"github.com/ogulcanaydogan/driftgate/internal/store"
)

const (
	ExitOK        = 0
	ExitError     = 1
	ExitMalformed = 10
	ExitRejected  = 11
	ExitNoServer  = 12
)

type cliError struct {
	code int
	err  error
}

func (e cliError) Error() string { return e.err.Error() }
func (e cliError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	logging.Sync()
	if err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintln(os.Stderr, "hint:", hint)
		}
		os.Exit(code)
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	var ce cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	switch {
	case errors.IsAny(err,
		errors.ErrMalformedReport,
		errors.ErrInvalidAccuracy,
		errors.ErrMissingSignal,
		errors.ErrUnknownPolicy,
		errors.ErrInvalidConfig,
	):
		return ExitMalformed
	case errors.IsNoRunningServer(err):
		return ExitNoServer
	}
	return ExitError
}

var (
	ociPullFunc    = store.PullOCI
	ociPublishFunc = store.PublishOCI
	newDeployer    = buildDeployer
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "driftgate",
		Short:         "Gate model deployments on data drift and accuracy",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newInitCommand())
	root.AddCommand(newRunCommand())
	root.AddCommand(newGateCommand())
	root.AddCommand(newDetectCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newStopCommand())
	root.AddCommand(newPredictCommand())
	root.AddCommand(newReportCommand())
	root.AddCommand(newPublishCommand())
	return root
}

// loadConfig reads the config file and sets up logging from it.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(cfg.Log.JSON, cfg.Log.Level); err != nil {
		return nil, errors.Wrap(err, "initialize logging")
	}
	return cfg, nil
}

func buildDeployer(cfg config.DeployerConfig) (deploy.Deployer, error) {
	switch cfg.Kind {
	case config.DeployerLocal:
		return local.New(cfg.StateDir, cfg.BaseURL)
	case config.DeployerKubernetes:
		client, err := k8sdeploy.Connect(cfg.KubernetesContext)
		if err != nil {
			return nil, err
		}
		return k8sdeploy.New(client, cfg.Namespace), nil
	}
	return nil, errors.WithHint(
		errors.Wrapf(errors.ErrNoActiveDeployer, "deployer kind %q", cfg.Kind),
		"set deployer.kind to local or kubernetes",
	)
}

func newInitCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default driftgate.yaml and create the local stores",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Defaults()
			if err := config.Write(config.FileName, cfg, force); err != nil {
				return err
			}
			if _, err := store.EnsureRecordDir(cfg.Store.RecordDir); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.Deployer.StateDir, 0o755); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s, %s and %s\n", config.FileName, cfg.Store.RecordDir, cfg.Deployer.StateDir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing driftgate.yaml")
	return cmd
}
