package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/driftgate/internal/config"
	"github.com/ogulcanaydogan/driftgate/internal/deploy"
	"github.com/ogulcanaydogan/driftgate/internal/drift"
	"github.com/ogulcanaydogan/driftgate/internal/errors"
	"github.com/ogulcanaydogan/driftgate/internal/notify"
	"github.com/ogulcanaydogan/driftgate/internal/pipeline"
	"github.com/ogulcanaydogan/driftgate/internal/record"
	"github.com/ogulcanaydogan/driftgate/internal/report"
)

func deploymentOptions(cfg *config.Config, src pipeline.SignalSource, d deploy.Deployer, modelURI string) pipeline.Options {
	return pipeline.Options{
		Name:               cfg.Deployer.PipelineName,
		Source:             src,
		Policy:             cfg.Gate.Policy,
		MinAccuracy:        cfg.Gate.MinAccuracy,
		RegoModule:         cfg.Gate.RegoModule,
		Notifier:           notify.New(cfg.Notify.Notifier()),
		Deployer:           d,
		Service:            cfg.Deployer.Service("", modelURI),
		OnReject:           cfg.Gate.OnReject,
		DeployerTakesModel: cfg.Deployer.TakesModel && modelURI != "",
		RecordDir:          cfg.Store.RecordDir,
		OCIRef:             cfg.Store.OCIRef,
	}
}

func newRunCommand() *cobra.Command {
	var (
		cfgPath     string
		recordDir   string
		dataPath    string
		doDeploy    bool
		doPredict   bool
		stopService bool
		interval    int
		sig         signalFlags
		dep         deployerFlags
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the continuous deployment and/or inference pipeline",
		Example: `  driftgate run --deploy --predict --drift-report drift.json --model-uri file:///models/1
  driftgate run --deploy --accuracy-file eval.json --min-accuracy 0.8 --secret seldon-init-container-secret`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if err := sig.apply(cmd, cfg); err != nil {
				return err
			}
			if err := dep.apply(cmd, cfg); err != nil {
				return err
			}
			if cmd.Flags().Changed("record-dir") {
				cfg.Store.RecordDir = recordDir
			}
			d, err := newDeployer(cfg.Deployer)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			key := cfg.Deployer.Key()

			if stopService {
				return stopServer(ctx, out, d, key, cfg.Deployer.Timeout())
			}

			if doDeploy {
				src, err := sig.source(cmd, cfg)
				if err != nil {
					return err
				}
				opts := deploymentOptions(cfg, src, d, dep.modelURI)
				opts.Deploy = true
				p := pipeline.ContinuousDeployment(opts)
				if interval > 0 {
					err := p.RunEvery(ctx, time.Duration(interval)*time.Second, func(st *pipeline.State, err error) {
						printRun(out, st, err)
					})
					if err != nil {
						return err
					}
				} else {
					st, err := p.Run(ctx)
					if err != nil {
						return err
					}
					printRun(out, st, nil)
				}
			}

			if doPredict {
				if dataPath == "" {
					dataPath = cfg.Data.InferencePath
				}
				st, err := pipeline.Inference(pipeline.InferenceOptions{DataPath: dataPath, Deployer: d, Key: key}).Run(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "received %d predictions from %s\n", len(st.Predictions), st.Service.PredictionURL)
			}

			return printServiceStatus(ctx, out, d, key)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file (default ./driftgate.yaml)")
	cmd.Flags().BoolVarP(&doDeploy, "deploy", "d", false, "run the deployment pipeline to gate and deploy a model")
	cmd.Flags().BoolVarP(&doPredict, "predict", "p", false, "run the inference pipeline against the deployed model")
	cmd.Flags().IntVar(&interval, "interval-second", 0, "re-run the deployment pipeline every N seconds")
	cmd.Flags().BoolVar(&stopService, "stop-service", false, "stop the running model server and exit")
	cmd.Flags().StringVar(&recordDir, "record-dir", "", "decision record directory")
	cmd.Flags().StringVar(&dataPath, "data", "", "CSV rows to predict (with --predict)")
	sig.register(cmd)
	dep.register(cmd)
	dep.registerDeploy(cmd)
	return cmd
}

func printRun(out io.Writer, st *pipeline.State, err error) {
	if err != nil {
		fmt.Fprintf(out, "run failed: %v\n", err)
		return
	}
	verdict := "rejected"
	if st.Decision {
		verdict = "approved"
	}
	fmt.Fprintf(out, "run %s: deployment %s (%s), notification %s", st.Run.RunID, verdict, st.Signal, st.Notification)
	if st.Action != "" {
		fmt.Fprintf(out, ", deployer %s", st.Action)
	}
	fmt.Fprintln(out)
	if st.RecordPath != "" {
		fmt.Fprintf(out, "decision record: %s\n", st.RecordPath)
	}
	if st.PinnedRef != "" {
		fmt.Fprintf(out, "published: %s\n", st.PinnedRef)
	}
}

func printServiceStatus(ctx context.Context, out io.Writer, d deploy.Deployer, key deploy.Key) error {
	services, err := d.FindModelServer(ctx, key)
	if err != nil {
		return err
	}
	if len(services) == 0 {
		fmt.Fprintln(out, "No model prediction server is currently running. The deployment "+
			"pipeline must run first to gate a model and deploy it. Execute "+
			"the same command with the `--deploy` argument to deploy a model.")
		return nil
	}
	svc := services[0]
	switch {
	case svc.IsRunning():
		fmt.Fprintf(out, "The model prediction server is running and accepts inference requests at:\n    %s\n", svc.PredictionURL)
		fmt.Fprintln(out, "To stop the service, run `driftgate stop`.")
	case svc.IsFailed():
		fmt.Fprintf(out, "The model prediction server is in a failed state:\n Last state: '%s'\n Last error: '%s'\n", svc.Status.State, svc.Status.LastError)
	default:
		fmt.Fprintf(out, "The model prediction server %s is %s.\n", svc.UUID, svc.Status.State)
	}
	return nil
}

func stopServer(ctx context.Context, out io.Writer, d deploy.Deployer, key deploy.Key, timeout time.Duration) error {
	svc, err := deploy.StopRunning(ctx, d, key, timeout)
	if err != nil {
		return err
	}
	if svc == nil {
		fmt.Fprintln(out, "no running model server to stop")
		return nil
	}
	fmt.Fprintf(out, "stopped model server %s\n", svc.UUID)
	return nil
}

func newGateCommand() *cobra.Command {
	var (
		cfgPath   string
		recordDir string
		sig       signalFlags
	)
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Decide whether to deploy and exit non-zero on rejection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if err := sig.apply(cmd, cfg); err != nil {
				return err
			}
			src, err := sig.source(cmd, cfg)
			if err != nil {
				return err
			}
			opts := deploymentOptions(cfg, src, nil, "")
			opts.RecordDir = recordDir
			st, err := pipeline.ContinuousDeployment(opts).Run(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, reason := range st.Reasons {
				fmt.Fprintln(out, reason)
			}
			if st.RecordPath != "" {
				fmt.Fprintf(out, "decision record: %s\n", st.RecordPath)
			}
			if !st.Decision {
				return cliError{code: ExitRejected, err: errors.Newf("deployment rejected by %s policy (%s)", cfg.Gate.Policy, st.Signal)}
			}
			fmt.Fprintf(out, "deployment approved by %s policy (%s)\n", cfg.Gate.Policy, st.Signal)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file (default ./driftgate.yaml)")
	cmd.Flags().StringVar(&recordDir, "record-dir", "", "write a decision record here")
	sig.register(cmd)
	return cmd
}

func newDetectCommand() *cobra.Command {
	var cfgPath, dataset, outPath string
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Split a CSV dataset and write a drift report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if dataset == "" {
				dataset = cfg.Data.DatasetPath
			}
			if dataset == "" {
				return errors.Wrap(errors.ErrMissingSignal, "--dataset is required")
			}
			rep, err := pipeline.DetectFile(dataset, cfg.Data.Split(), cfg.Data.Detect())
			if err != nil {
				return err
			}
			if err := pipeline.WriteReport(outPath, rep); err != nil {
				return err
			}
			driftDetected, err := drift.DatasetDrift(rep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: dataset_drift=%t\n", outPath, driftDetected)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file (default ./driftgate.yaml)")
	cmd.Flags().StringVar(&dataset, "dataset", "", "CSV dataset path")
	cmd.Flags().StringVar(&outPath, "out", "drift_report.json", "drift report output path")
	return cmd
}

func newStatusCommand() *cobra.Command {
	var cfgPath string
	var asJSON bool
	var dep deployerFlags
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the model servers deployed by the pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if err := dep.apply(cmd, cfg); err != nil {
				return err
			}
			d, err := newDeployer(cfg.Deployer)
			if err != nil {
				return err
			}
			if !asJSON {
				return printServiceStatus(cmd.Context(), cmd.OutOrStdout(), d, cfg.Deployer.Key())
			}
			services, err := d.FindModelServer(cmd.Context(), cfg.Deployer.Key())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(services)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file (default ./driftgate.yaml)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print every service as JSON")
	dep.register(cmd)
	return cmd
}

func newStopCommand() *cobra.Command {
	var cfgPath string
	var dep deployerFlags
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running model server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if err := dep.apply(cmd, cfg); err != nil {
				return err
			}
			d, err := newDeployer(cfg.Deployer)
			if err != nil {
				return err
			}
			return stopServer(cmd.Context(), cmd.OutOrStdout(), d, cfg.Deployer.Key(), cfg.Deployer.Timeout())
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file (default ./driftgate.yaml)")
	dep.register(cmd)
	return cmd
}

func newPredictCommand() *cobra.Command {
	var cfgPath, dataPath string
	var dep deployerFlags
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Send CSV rows to the running model server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if err := dep.apply(cmd, cfg); err != nil {
				return err
			}
			if dataPath == "" {
				dataPath = cfg.Data.InferencePath
			}
			if dataPath == "" {
				return errors.Wrap(errors.ErrInvalidConfig, "--data is required")
			}
			d, err := newDeployer(cfg.Deployer)
			if err != nil {
				return err
			}
			st, err := pipeline.Inference(pipeline.InferenceOptions{
				DataPath: dataPath,
				Deployer: d,
				Key:      cfg.Deployer.Key(),
			}).Run(cmd.Context())
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(st.Predictions)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file (default ./driftgate.yaml)")
	cmd.Flags().StringVar(&dataPath, "data", "", "CSV rows to predict")
	dep.register(cmd)
	return cmd
}

func newReportCommand() *cobra.Command {
	var inPath, ociRef, outPath string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate markdown report from a decision record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (inPath == "") == (ociRef == "") || outPath == "" {
				return fmt.Errorf("--out and one of --in or --oci are required")
			}
			if ociRef != "" {
				tmpDir, err := os.MkdirTemp("", "driftgate-oci-report-")
				if err != nil {
					return err
				}
				defer os.RemoveAll(tmpDir)
				inPath = filepath.Join(tmpDir, "record.json")
				if err := ociPullFunc(ociRef, inPath); err != nil {
					return err
				}
			}
			rec, err := record.Read(inPath)
			if err != nil {
				return err
			}
			if err := report.WriteMarkdown(outPath, rec); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "decision record JSON input")
	cmd.Flags().StringVar(&ociRef, "oci", "", "pull the decision record from this OCI reference")
	cmd.Flags().StringVar(&outPath, "out", "", "markdown output")
	return cmd
}

func newPublishCommand() *cobra.Command {
	var inPath, ociRef string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a decision record to OCI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if inPath == "" || ociRef == "" {
				return fmt.Errorf("--in and --oci are required")
			}
			rec, err := record.Read(inPath)
			if err != nil {
				return err
			}
			digest, err := record.Digest(rec)
			if err != nil {
				return err
			}
			pinned, err := ociPublishFunc(inPath, ociRef, map[string]string{
				"io.driftgate.record-id":     rec.RecordID,
				"io.driftgate.record-digest": digest,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pinned)
			return nil
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "decision record path")
	cmd.Flags().StringVar(&ociRef, "oci", "", "OCI destination")
	return cmd
}
