// Package errors re-exports github.com/cockroachdb/errors and holds the
// sentinel errors shared by the gate, the deployers and the CLI.
//
// Wrap sentinels to add context; callers match them with errors.Is:
//
//	return errors.Wrapf(errors.ErrMalformedReport, "key %q missing", key)
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

var (
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	WithDetail   = crdb.WithDetail
	WithDetailf  = crdb.WithDetailf
	FlattenHints = crdb.FlattenHints
	GetAllHints  = crdb.GetAllHints
)

var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

var (
	// ErrMalformedReport means the drift report does not carry a boolean at
	// data_drift.data.metrics.dataset_drift. It is never a drift signal.
	ErrMalformedReport = New("malformed drift report")

	// ErrInvalidAccuracy means an accuracy score is NaN or outside [0, 1].
	ErrInvalidAccuracy = New("invalid accuracy score")

	// ErrUnknownPolicy means the gate was asked for a policy it does not know.
	ErrUnknownPolicy = New("unknown gate policy")

	// ErrMissingSignal means the selected policy has no signal to look at.
	ErrMissingSignal = New("missing gate signal")

	// ErrNoActiveDeployer means no model deployer backend is configured.
	ErrNoActiveDeployer = New("no active model deployer")

	// ErrNoRunningServer means no running prediction server matches the lookup.
	ErrNoRunningServer = New("no running prediction server")

	// ErrInvalidConfig means the loaded configuration failed validation.
	ErrInvalidConfig = New("invalid configuration")
)

// IsMalformedReport reports whether err is or wraps ErrMalformedReport.
func IsMalformedReport(err error) bool {
	return err != nil && Is(err, ErrMalformedReport)
}

// IsNoRunningServer reports whether err is or wraps ErrNoRunningServer.
func IsNoRunningServer(err error) bool {
	return err != nil && Is(err, ErrNoRunningServer)
}
