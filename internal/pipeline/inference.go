package pipeline

import (
	"context"

	"github.com/ogulcanaydogan/driftgate/internal/deploy"
	"github.com/ogulcanaydogan/driftgate/internal/drift"
	"github.com/ogulcanaydogan/driftgate/internal/logging"
	"github.com/ogulcanaydogan/driftgate/internal/predict"
)

const (
	InferenceName = "inference_pipeline"

	StepLoadData      = "load_data"
	StepServiceLoader = "prediction_service_loader"
	StepPredict       = "predictor"
)

type InferenceOptions struct {
	DataPath string
	Deployer deploy.Deployer
	Key      deploy.Key
	Client   *predict.Client
}

// Inference builds load_data → prediction_service_loader → predictor. The
// loader fails with ErrNoRunningServer when the newest service for the key
// is not running.
func Inference(opts InferenceOptions) *Pipeline {
	return New(InferenceName,
		Step{Name: StepLoadData, Run: func(_ context.Context, st *State) error {
			ds, err := drift.ReadCSVFile(opts.DataPath)
			if err != nil {
				return err
			}
			st.Rows = ds.Rows
			return nil
		}},
		Step{Name: StepServiceLoader, Run: func(ctx context.Context, st *State) error {
			svc, err := deploy.FindRunningServer(ctx, opts.Deployer, opts.Key)
			if err != nil {
				return err
			}
			st.Service = svc
			return nil
		}},
		Step{Name: StepPredict, Run: func(ctx context.Context, st *State) error {
			client := opts.Client
			if client == nil {
				client = predict.New(predict.FormatFor(st.Service.Config.Implementation))
			}
			preds, err := client.Predict(ctx, st.Service.PredictionURL, st.Rows)
			if err != nil {
				return err
			}
			st.Predictions = preds
			logging.Logger.Infow("predictions received",
				logging.FieldService, st.Service.UUID,
				logging.FieldURL, st.Service.PredictionURL,
				"rows", len(preds),
			)
			return nil
		}},
	)
}
