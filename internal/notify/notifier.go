// Package notify posts deployment decisions to a webhook channel.
//
// Delivery is best effort: Notify logs failures and reports them through its
// Outcome, it never returns an error to the pipeline.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ogulcanaydogan/driftgate/internal/logging"
)

// Outcome is the result of one delivery attempt.
type Outcome string

const (
	OutcomeSent     Outcome = "sent"
	OutcomeFailed   Outcome = "failed"
	OutcomeDisabled Outcome = "disabled"
)

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Content  string `json:"content"`
	Username string `json:"username"`
}

// DeliveryError describes a failed post. StatusCode is zero for transport
// errors.
type DeliveryError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("webhook returned %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("webhook post failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Notifier delivers messages to one webhook.
type Notifier struct {
	cfg    Config
	client *http.Client
	log    *zap.SugaredLogger
}

// Option customises a Notifier.
type Option func(*Notifier)

// WithHTTPClient replaces the default client. The client's own timeout is
// kept as is.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(n *Notifier) { n.log = l }
}

// New builds a Notifier. A non-positive timeout falls back to the default.
func New(cfg Config, opts ...Option) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Username == "" {
		cfg.Username = DefaultConfig().Username
	}
	n := &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logging.Component("notify"),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Notify builds the message for ev and posts it.
func (n *Notifier) Notify(ctx context.Context, ev Event) Outcome {
	if n.cfg.URL == "" {
		n.log.Debugw("webhook url not configured, skipping notification", logging.FieldDecision, ev.Decision)
		return OutcomeDisabled
	}

	start := time.Now()
	status, err := n.post(ctx, Payload{Content: BuildMessage(ev), Username: n.cfg.Username})
	if err != nil {
		n.log.Warnw("notification delivery failed",
			logging.FieldError, err,
			logging.FieldStatusCode, status,
			logging.FieldRunID, ev.Run.RunID,
		)
		return OutcomeFailed
	}
	n.log.Infow("posted notification",
		logging.FieldStatusCode, status,
		logging.FieldDecision, ev.Decision,
		logging.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return OutcomeSent
}

func (n *Notifier) post(ctx context.Context, p Payload) (int, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return 0, &DeliveryError{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, &DeliveryError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, &DeliveryError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &DeliveryError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
