// Package predict sends inference requests to a deployed model server.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ogulcanaydogan/driftgate/internal/deploy"
	"github.com/ogulcanaydogan/driftgate/internal/errors"
	"github.com/ogulcanaydogan/driftgate/internal/logging"
)

// Format is the request/response shape a model server speaks.
type Format string

const (
	// FormatMLflow posts {"instances": rows}.
	FormatMLflow Format = "mlflow"
	// FormatSeldon posts {"data": {"ndarray": rows}}.
	FormatSeldon Format = "seldon"
)

const (
	DefaultBatchSize   = 256
	DefaultConcurrency = 4
	DefaultTimeout     = 30 * time.Second
)

// FormatFor picks the payload format for a server implementation name.
func FormatFor(implementation string) Format {
	if deploy.SpeaksMLflow(implementation) {
		return FormatMLflow
	}
	return FormatSeldon
}

type Client struct {
	http        *http.Client
	format      Format
	batchSize   int
	concurrency int
	log         *zap.SugaredLogger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.http = c } }

func WithBatchSize(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.batchSize = n
		}
	}
}

func WithConcurrency(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.concurrency = n
		}
	}
}

func New(format Format, opts ...Option) *Client {
	c := &Client{
		http:        &http.Client{Timeout: DefaultTimeout},
		format:      format,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
		log:         logging.Component("predict"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Predict returns one prediction per row, in row order. Rows are sent in
// batches, at most concurrency requests at a time; the first failed batch
// cancels the rest.
func (c *Client) Predict(ctx context.Context, url string, rows [][]float64) ([]any, error) {
	if url == "" {
		return nil, errors.Wrap(errors.ErrNoRunningServer, "model server has no prediction url")
	}
	out := make([]any, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for start := 0; start < len(rows); start += c.batchSize {
		end := min(start+c.batchSize, len(rows))
		g.Go(func() error {
			preds, err := c.post(gctx, url, rows[start:end])
			if err != nil {
				return errors.Wrapf(err, "predict rows %d-%d", start, end-1)
			}
			copy(out[start:end], preds)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	c.log.Debugw("prediction complete", logging.FieldURL, url, "rows", len(rows))
	return out, nil
}

func (c *Client) post(ctx context.Context, url string, batch [][]float64) ([]any, error) {
	body, err := json.Marshal(c.payload(batch))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Newf("model server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	preds, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if len(preds) != len(batch) {
		return nil, errors.Newf("model server returned %d predictions for %d rows", len(preds), len(batch))
	}
	return preds, nil
}

func (c *Client) payload(batch [][]float64) any {
	if c.format == FormatSeldon {
		return map[string]any{"data": map[string]any{"ndarray": batch}}
	}
	return map[string]any{"instances": batch}
}

// decode accepts a bare array, {"predictions": [...]} or {"data": {"ndarray": [...]}}.
func decode(raw []byte) ([]any, error) {
	var arr []any
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr, nil
	}
	var obj struct {
		Predictions []any `json:"predictions"`
		Data        *struct {
			NDArray []any `json:"ndarray"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, errors.Wrap(err, "decode prediction response")
	}
	switch {
	case obj.Predictions != nil:
		return obj.Predictions, nil
	case obj.Data != nil && obj.Data.NDArray != nil:
		return obj.Data.NDArray, nil
	}
	return nil, errors.New("prediction response has neither predictions nor data.ndarray")
}
