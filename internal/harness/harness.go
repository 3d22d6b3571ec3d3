package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/agentregistry/internal/ir"
	"github.com/roach88/agentregistry/internal/ledger"
	"github.com/roach88/agentregistry/internal/store"
	"github.com/roach88/agentregistry/internal/testutil"
)

// Harness executes scenario steps against one ledger.
type Harness struct {
	store  *store.Store
	ledger *ledger.Ledger
}

// Run executes a scenario in a fresh in-memory store and returns the result.
//
// Failed expectations and assertions are reported in Result.Errors.
// An error is returned only when the scenario cannot be executed at all.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	opts := []ledger.Option{
		ledger.WithClock(testutil.NewDeterministicClock()),
		ledger.WithTokenGenerator(testutil.NewSequentialTokens(scenario.TxToken)),
		ledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	if scenario.StrictCID {
		opts = append(opts, ledger.WithStrictCIDs())
	}
	l, err := ledger.New(st, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}

	h := &Harness{store: st, ledger: l}
	result := NewResult()

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	actx := &AssertionContext{Ctx: ctx, Store: st, Ledger: l}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	args, err := normalizeArgs(step.Args)
	if err != nil {
		return err
	}
	var argsJSON []byte
	if step.Args != nil {
		if argsJSON, err = json.Marshal(step.Args); err != nil {
			return fmt.Errorf("encode args: %w", err)
		}
	}

	var event TraceEvent
	switch step.Kind() {
	case StepInit:
		event = TraceEvent{Type: StepInit, Caller: ir.AccountID(step.Init), Method: ledger.MethodNew}
		rec, err := h.ledger.Init(ctx, ir.AccountID(step.Init))
		if err := recordCall(&event, rec, err); err != nil {
			return err
		}

	case StepCall:
		event = TraceEvent{Type: StepCall, Caller: ir.AccountID(step.Caller), Method: step.Call, Args: args}
		rec, err := h.ledger.Call(ctx, ir.AccountID(step.Caller), step.Call, argsJSON)
		if err := recordCall(&event, rec, err); err != nil {
			return err
		}

	case StepView:
		event = TraceEvent{Type: StepView, Method: step.View, Args: args}
		raw, err := h.ledger.View(ctx, step.View, argsJSON)
		if err := recordView(&event, raw, err); err != nil {
			return err
		}

	default:
		return fmt.Errorf("exactly one of init, call, view is required")
	}

	result.Trace = append(result.Trace, event)
	for _, msg := range checkExpect(step.Expect, event) {
		result.AddError(fmt.Sprintf("steps[%d] (%s %s): %s", index, event.Type, event.Method, msg))
	}
	return nil
}

func recordCall(event *TraceEvent, rec *ir.Receipt, err error) error {
	if err != nil {
		return recordHostError(event, err)
	}
	event.Seq = rec.Seq
	event.Status = rec.Status
	event.Error = rec.Error
	event.Logs = rec.Logs
	if event.Type == StepCall {
		event.Args = rec.Args
	}
	return nil
}

func recordView(event *TraceEvent, raw json.RawMessage, err error) error {
	if err != nil {
		return recordHostError(event, err)
	}
	var out *string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode view result: %w", err)
	}
	if out == nil {
		event.Absent = true
	} else {
		event.Result = out
	}
	return nil
}

// recordHostError captures a host rejection in the trace. Any other error
// aborts the run.
func recordHostError(event *TraceEvent, err error) error {
	var he *ledger.HostError
	if !errors.As(err, &he) {
		return err
	}
	event.HostError = string(he.Code)
	return nil
}

func checkExpect(expect *Expect, event TraceEvent) []string {
	var errs []string

	if expect == nil {
		if event.HostError != "" {
			errs = append(errs, fmt.Sprintf("expected success, got host error %s", event.HostError))
		}
		if event.Status == ir.StatusFailure {
			errs = append(errs, fmt.Sprintf("expected success, got failure: %s", event.Error))
		}
		return errs
	}

	if event.HostError != expect.HostError {
		want, got := expect.HostError, event.HostError
		if want == "" {
			want = "none"
		}
		if got == "" {
			got = "none"
		}
		errs = append(errs, fmt.Sprintf("expected host error %s, got %s", want, got))
	}
	if expect.Status != "" && string(event.Status) != expect.Status {
		errs = append(errs, fmt.Sprintf("expected status %s, got %q", expect.Status, event.Status))
	}
	if expect.Error != "" && event.Error != expect.Error {
		errs = append(errs, fmt.Sprintf("expected error %q, got %q", expect.Error, event.Error))
	}
	if expect.Result != nil {
		switch {
		case event.Result == nil:
			errs = append(errs, fmt.Sprintf("expected result %q, got null", *expect.Result))
		case *event.Result != *expect.Result:
			errs = append(errs, fmt.Sprintf("expected result %q, got %q", *expect.Result, *event.Result))
		}
	}
	if expect.Absent && !event.Absent {
		errs = append(errs, "expected null result")
	}
	return errs
}

// normalizeArgs converts YAML-decoded args to ir.Args for the trace.
// Values the contract ABI cannot express (floats, lists, maps) are errors.
func normalizeArgs(in map[string]any) (ir.Args, error) {
	if in == nil {
		return nil, nil
	}
	out := make(ir.Args, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = val
		case int:
			out[k] = int64(val)
		case int64:
			out[k] = val
		default:
			return nil, fmt.Errorf("arg %q: unsupported value type %T", k, v)
		}
	}
	return out, nil
}
