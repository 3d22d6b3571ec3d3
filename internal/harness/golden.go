package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/agentregistry/internal/ir"
)

// GoldenDir is where golden traces live, relative to the test's package.
const GoldenDir = "testdata/golden"

// Snapshot renders a scenario's trace as canonical JSON.
// Receipt IDs are left out; tx tokens and seqs already pin them.
func Snapshot(scenario *Scenario, result *Result) ([]byte, error) {
	trace := make([]any, len(result.Trace))
	for i, ev := range result.Trace {
		trace[i] = canonicalEvent(ev)
	}

	snapshot := map[string]any{
		"scenario_name": scenario.Name,
		"trace":         trace,
	}
	if scenario.TxToken != "" {
		snapshot["tx_token"] = scenario.TxToken
	}
	return ir.MarshalCanonical(snapshot)
}

func canonicalEvent(ev TraceEvent) map[string]any {
	m := map[string]any{
		"type":   ev.Type,
		"method": ev.Method,
	}
	if ev.Seq != 0 {
		m["seq"] = ev.Seq
	}
	if ev.Caller != "" {
		m["caller"] = ev.Caller
	}
	if len(ev.Args) > 0 {
		m["args"] = ev.Args
	}
	if ev.Status != "" {
		m["status"] = ev.Status
	}
	if ev.Error != "" {
		m["error"] = ev.Error
	}
	if ev.HostError != "" {
		m["host_error"] = ev.HostError
	}
	if len(ev.Logs) > 0 {
		m["logs"] = ev.Logs
	}
	if ev.Result != nil {
		m["result"] = *ev.Result
	}
	if ev.Absent {
		m["absent"] = true
	}
	return m
}

// RunWithGolden runs a scenario and compares its trace with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result with the scenario's golden file.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}
