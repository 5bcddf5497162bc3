// Package rego evaluates a user supplied Rego module as a deployment gate.
//
// The module must define data.driftgate.gate.result as an object with a
// boolean "deploy" and an optional "reasons" collection of strings.
package rego

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	oparego "github.com/open-policy-agent/opa/rego"

	"github.com/ogulcanaydogan/driftgate/internal/errors"
	"github.com/ogulcanaydogan/driftgate/internal/gate"
)

const resultQuery = "data.driftgate.gate.result"

// DefaultModule requires both no dataset drift and accuracy strictly above
// the minimum. It is used when no module path is configured.
const DefaultModule = `package driftgate.gate

import rego.v1

default deploy := false

deploy if {
	input.dataset_drift == false
	input.accuracy > input.min_accuracy
}

reasons contains "dataset drift detected" if input.dataset_drift == true

reasons contains "drift report missing" if not has_drift

reasons contains msg if {
	input.accuracy <= input.min_accuracy
	msg := sprintf("accuracy %v not above minimum %v", [input.accuracy, input.min_accuracy])
}

reasons contains "accuracy missing" if not has_accuracy

has_drift if is_boolean(input.dataset_drift)

has_accuracy if is_number(input.accuracy)

result := {"deploy": deploy, "reasons": reasons}
`

// Input is the document exposed to the module as `input`.
type Input struct {
	DatasetDrift *bool    `json:"dataset_drift,omitempty"`
	Accuracy     *float64 `json:"accuracy,omitempty"`
	MinAccuracy  float64  `json:"min_accuracy"`
}

// Result is the decoded module result.
type Result struct {
	Deploy  bool     `json:"deploy"`
	Reasons []string `json:"reasons"`
}

// BuildInput converts a gate signal into module input.
func BuildInput(signal gate.Signal, minAccuracy float64) Input {
	return Input{
		DatasetDrift: signal.Drift,
		Accuracy:     signal.Accuracy,
		MinAccuracy:  minAccuracy,
	}
}

// EvaluateFile reads a module from path and evaluates it. An empty path
// evaluates DefaultModule.
func EvaluateFile(ctx context.Context, path string, input Input) (Result, error) {
	if path == "" {
		return Evaluate(ctx, "default.rego", DefaultModule, input)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Result{}, errors.Wrap(err, "read rego policy")
	}
	return Evaluate(ctx, filepath.Base(path), string(raw), input)
}

// Evaluate compiles module and queries its result for input.
func Evaluate(ctx context.Context, name, module string, input Input) (Result, error) {
	query, err := oparego.New(
		oparego.Query(resultQuery),
		oparego.Module(name, module),
	).PrepareForEval(ctx)
	if err != nil {
		return Result{}, errors.Wrap(err, "prepare rego query")
	}

	rs, err := query.Eval(ctx, oparego.EvalInput(input))
	if err != nil {
		return Result{}, errors.Wrap(err, "eval rego policy")
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Result{}, errors.Newf("rego policy returned no result for %s", resultQuery)
	}
	return decodeResult(rs[0].Expressions[0].Value)
}

func decodeResult(v any) (Result, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Result{}, errors.New("rego result must be object")
	}
	deploy, ok := obj["deploy"].(bool)
	if !ok {
		return Result{}, errors.New("rego result.deploy must be boolean")
	}
	reasons := decodeReasons(obj["reasons"])
	sort.Strings(reasons)
	return Result{Deploy: deploy, Reasons: reasons}, nil
}

func decodeReasons(v any) []string {
	out := []string{}
	switch raw := v.(type) {
	case []any:
		for _, item := range raw {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case map[string]any:
		for key := range raw {
			if key != "" {
				out = append(out, key)
			}
		}
	}
	return out
}
