// Package executor runs one scenario in isolation. It recovers panics, measures
// the run and classifies whatever went wrong so the dispatcher can report it
// and carry on with the next scenario.
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"reflect"
	"runtime/debug"
	"time"

	"github.com/joncooperworks/xmlharness/engine"
	"github.com/joncooperworks/xmlharness/scenario"
	"github.com/joncooperworks/xmlharness/sink"
)

// KindPanic is the failure kind of a scenario that panicked.
const KindPanic = "panic"

// ExecuteScenarioRequest contains everything needed to run one scenario.
type ExecuteScenarioRequest struct {
	// Scenario is the catalogue entry to run.
	Scenario scenario.Scenario
	// Env is passed to the scenario. Its Out is wrapped so the output can be
	// hashed; the scenario still writes through to it.
	Env *scenario.Env
}

// ExecuteScenarioResult describes one run.
//
// Err is nil for a scenario that completed. Otherwise Kind and Message are the
// summary the harness prints: the engine error code when the failure came
// from the engine, the Go type of the error otherwise, or KindPanic.
type ExecuteScenarioResult struct {
	Name     string
	Duration time.Duration
	// OutputHash is the SHA256 of everything the scenario wrote, hex encoded.
	OutputHash string

	Err      error
	Kind     string
	Message  string
	Location sink.Location
	// Stack is set when the scenario panicked.
	Stack []byte
}

// Failed reports whether the scenario ended in an error or a panic.
func (r *ExecuteScenarioResult) Failed() bool { return r.Err != nil }

// Summary is the one-line failure report, or "" when the scenario succeeded.
func (r *ExecuteScenarioResult) Summary() string {
	if r.Err == nil {
		return ""
	}
	s := fmt.Sprintf("Test failed with error %s: %s", r.Kind, r.Message)
	if r.Location.Line > 0 {
		s += fmt.Sprintf(" (at line %d of %s)", r.Location.Line, r.Location.SystemID)
	} else if r.Location.SystemID != "" {
		s += fmt.Sprintf(" (in %s)", r.Location.SystemID)
	}
	return s
}

// ExecuteScenario runs req.Scenario once. Scenario failures, panics included,
// are reported in the result; the returned error is only for a malformed
// request.
//
// This function does not log. Reporting is up to the caller.
func ExecuteScenario(ctx context.Context, req *ExecuteScenarioRequest) (*ExecuteScenarioResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if req.Scenario.Run == nil {
		return nil, fmt.Errorf("scenario %q has no body", req.Scenario.Name)
	}
	if req.Env == nil {
		return nil, errors.New("environment cannot be nil")
	}

	out := req.Env.Out
	if out == nil {
		out = io.Discard
	}
	h := sha256.New()
	env := *req.Env
	env.Out = io.MultiWriter(out, h)

	result := &ExecuteScenarioResult{Name: req.Scenario.Name}
	start := time.Now()
	err := run(ctx, req.Scenario, &env, result)
	result.Duration = time.Since(start)
	result.OutputHash = hex.EncodeToString(h.Sum(nil))
	if err != nil {
		classify(result, err)
	}
	return result, nil
}

func run(ctx context.Context, s scenario.Scenario, env *scenario.Env, result *ExecuteScenarioResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			result.Stack = debug.Stack()
			err = &panicError{value: r}
		}
	}()
	return s.Run(ctx, env)
}

type panicError struct {
	value any
}

func (p *panicError) Error() string { return fmt.Sprint(p.value) }

func classify(result *ExecuteScenarioResult, err error) {
	result.Err = err

	var pe *panicError
	var ee *engine.Error
	switch {
	case errors.As(err, &pe):
		result.Kind = KindPanic
		result.Message = pe.Error()
	case errors.As(err, &ee):
		result.Kind = ee.Code
		result.Message = ee.Message
		result.Location = ee.Location
	default:
		result.Kind = fmt.Sprintf("%T", innermost(err))
		result.Message = err.Error()
	}
}

// wrapErrorType is the dynamic type fmt.Errorf returns for a single %w.
var wrapErrorType = reflect.TypeOf(fmt.Errorf("%w", errors.New("")))

// innermost strips fmt.Errorf wrapping so that a wrapped *fs.PathError is
// reported as such. Error types that carry their own meaning are kept even
// when they wrap something.
func innermost(err error) error {
	for reflect.TypeOf(err) == wrapErrorType {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	return err
}
