package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of ledger steps plus final assertions.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// TxToken is the prefix for deterministic tx tokens ("<prefix>-<n>").
	TxToken string `yaml:"tx_token,omitempty"`

	// StrictCID enables the 'bafy' prefix check.
	StrictCID bool `yaml:"strict_cid,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one ledger interaction. Exactly one of Init, Call, View is set.
type Step struct {
	// Init initializes the contract as this account.
	Init string `yaml:"init,omitempty"`

	// Caller is the account making a Call.
	Caller string `yaml:"caller,omitempty"`

	// Call is the mutating method to run.
	Call string `yaml:"call,omitempty"`

	// View is the read-only method to run.
	View string `yaml:"view,omitempty"`

	Args map[string]any `yaml:"args,omitempty"`

	// Expect is the expected outcome. Nil means the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes a step's expected outcome.
type Expect struct {
	// Status is the expected receipt status: success or failure.
	Status string `yaml:"status,omitempty"`

	// Error is the expected failure message (exact match).
	Error string `yaml:"error,omitempty"`

	// HostError is the expected host error code, e.g. INVALID_ARGS.
	HostError string `yaml:"host_error,omitempty"`

	// Result is the expected view result.
	Result *string `yaml:"result,omitempty"`

	// Absent expects a view to return null.
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion validates final state or the whole trace.
type Assertion struct {
	Type    string         `yaml:"type"`
	Account string         `yaml:"account,omitempty"`
	CID     *string        `yaml:"cid,omitempty"`
	Absent  bool           `yaml:"absent,omitempty"`
	Count   *int           `yaml:"count,omitempty"`
	Status  string         `yaml:"status,omitempty"`
	Methods []string       `yaml:"methods,omitempty"`
	Table   string         `yaml:"table,omitempty"`
	Where   map[string]any `yaml:"where,omitempty"`
	Fields  map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertPersona          = "persona"
	AssertEventEmitted     = "event_emitted"
	AssertEventCount       = "event_count"
	AssertReceiptCount     = "receipt_count"
	AssertCallOrder        = "call_order"
	AssertFinalState       = "final_state"
	AssertReplayConsistent = "replay_consistent"
)

// Step kinds, as recorded in the trace.
const (
	StepInit = "init"
	StepCall = "call"
	StepView = "view"
)

// Kind returns the step kind, or "" if the step sets none or several.
func (s Step) Kind() string {
	var kinds []string
	if s.Init != "" {
		kinds = append(kinds, StepInit)
	}
	if s.Call != "" {
		kinds = append(kinds, StepCall)
	}
	if s.View != "" {
		kinds = append(kinds, StepView)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		switch step.Kind() {
		case "":
			return fmt.Errorf("steps[%d]: exactly one of init, call, view is required", i)
		case StepCall:
			if step.Caller == "" {
				return fmt.Errorf("steps[%d]: caller is required for call", i)
			}
		case StepView, StepInit:
			if step.Caller != "" {
				return fmt.Errorf("steps[%d]: caller is only valid for call", i)
			}
		}
		if err := validateExpect(i, step.Expect); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateExpect(index int, e *Expect) error {
	if e == nil {
		return nil
	}
	switch e.Status {
	case "", "success", "failure":
	default:
		return fmt.Errorf("steps[%d].expect: unknown status %q", index, e.Status)
	}
	if e.HostError != "" && (e.Status != "" || e.Result != nil || e.Absent) {
		return fmt.Errorf("steps[%d].expect: host_error excludes status, result and absent", index)
	}
	if e.Result != nil && e.Absent {
		return fmt.Errorf("steps[%d].expect: result and absent are mutually exclusive", index)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertPersona:
		if a.Account == "" {
			return fmt.Errorf("assertions[%d]: account is required for persona", index)
		}
		if (a.CID == nil) == !a.Absent {
			return fmt.Errorf("assertions[%d]: persona needs exactly one of cid, absent", index)
		}
	case AssertEventEmitted:
		if a.Account == "" || a.CID == nil {
			return fmt.Errorf("assertions[%d]: account and cid are required for event_emitted", index)
		}
	case AssertEventCount, AssertReceiptCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
	case AssertCallOrder:
		if len(a.Methods) == 0 {
			return fmt.Errorf("assertions[%d]: methods list is required for call_order", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Fields) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertReplayConsistent:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
