package ledger

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/roach88/agentregistry/internal/compiler"
	"github.com/roach88/agentregistry/internal/ir"
)

//go:embed contract.cue
var contractSource string

// ContractName is the contract declared in contract.cue.
const ContractName = "AgentRegistry"

var (
	abiOnce sync.Once
	abiSpec *ir.ContractSpec
	abiErr  error
)

// loadABI compiles the embedded contract once per process.
func loadABI() (*ir.ContractSpec, error) {
	abiOnce.Do(func() {
		abiSpec, abiErr = compiler.CompileContractSource(contractSource, "contract.cue", ContractName)
	})
	return abiSpec, abiErr
}

// LoadABI returns the compiled contract interface without opening a ledger.
func LoadABI() (ir.ContractSpec, error) {
	abi, err := loadABI()
	if err != nil {
		return ir.ContractSpec{}, err
	}
	return *abi, nil
}

// ContractSource returns the embedded CUE source of the contract.
func ContractSource() string {
	return contractSource
}

// decodeArgs decodes raw call arguments against sig.
//
// The payload must be a single JSON object. Every declared argument must be
// present with its declared type, and no undeclared keys are accepted.
// Empty input is treated as {}.
func decodeArgs(sig ir.MethodSig, raw []byte) (ir.Args, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}

	// The decoder would silently turn invalid bytes into U+FFFD.
	if !utf8.Valid(raw) {
		return nil, newHostError(ErrCodeInvalidArgs, sig.Name, "args are not valid UTF-8")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, newHostError(ErrCodeInvalidArgs, sig.Name, "args must be a JSON object: %v", err)
	}
	if obj == nil {
		return nil, newHostError(ErrCodeInvalidArgs, sig.Name, "args must be a JSON object, got null")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, newHostError(ErrCodeInvalidArgs, sig.Name, "unexpected data after args object")
	}

	declared := make(map[string]bool, len(sig.Args))
	args := make(ir.Args, len(sig.Args))
	for _, a := range sig.Args {
		declared[a.Name] = true

		v, ok := obj[a.Name]
		if !ok {
			return nil, newHostError(ErrCodeInvalidArgs, sig.Name, "missing argument %q", a.Name)
		}
		converted, err := convertArg(a, v)
		if err != nil {
			return nil, newHostError(ErrCodeInvalidArgs, sig.Name, "%v", err)
		}
		args[a.Name] = converted
	}

	for _, k := range ir.SortedKeys(obj) {
		if !declared[k] {
			return nil, newHostError(ErrCodeInvalidArgs, sig.Name, "unexpected argument %q", k)
		}
	}

	return args, nil
}

func convertArg(a ir.NamedArg, v any) (any, error) {
	switch a.Type {
	case "string":
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("argument %q must be a string", a.Name)
		}
		return s, nil
	case "int":
		n, ok := v.(json.Number)
		if !ok {
			return nil, fmt.Errorf("argument %q must be an integer", a.Name)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("argument %q must be an integer: %s", a.Name, n)
		}
		return i, nil
	case "bool":
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("argument %q must be a bool", a.Name)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("argument %q has unsupported type %q", a.Name, a.Type)
	}
}
