// Package compiler turns CUE contract definitions into ir.ContractSpec ABIs.
package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/agentregistry/internal/ir"
)

// CompileContractSource compiles CUE source text and extracts contract.<name>.
// filename is used for error positions only.
func CompileContractSource(src, filename, name string) (*ir.ContractSpec, error) {
	v := cuecontext.New().CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	contractVal := v.LookupPath(cue.MakePath(cue.Str("contract"), cue.Str(name)))
	if !contractVal.Exists() {
		return nil, &CompileError{
			Field:   "contract",
			Message: fmt.Sprintf("contract %q not found", name),
			Pos:     v.Pos(),
		}
	}

	return CompileContract(contractVal)
}

// CompileContract parses a CUE value into a ContractSpec.
//
// The CUE value should be the contract struct itself, e.g.:
//
//	contract: AgentRegistry: {
//	    purpose: "..."
//	    method: set_persona: { kind: "call", args: { cid: string }, outputs: [...] }
//	}
func CompileContract(v cue.Value) (*ir.ContractSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.ContractSpec{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].Unquoted()
	}

	purposeVal := v.LookupPath(cue.ParsePath("purpose"))
	if !purposeVal.Exists() {
		return nil, &CompileError{
			Field:   "purpose",
			Message: "purpose is required",
			Pos:     v.Pos(),
		}
	}
	purpose, err := purposeVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	spec.Purpose = purpose

	spec.Methods, err = parseMethods(v)
	if err != nil {
		return nil, err
	}
	if len(spec.Methods) == 0 {
		return nil, &CompileError{
			Field:   "method",
			Message: "at least one method is required",
			Pos:     v.Pos(),
		}
	}

	return spec, nil
}

// parseMethods extracts method definitions in declaration order.
func parseMethods(v cue.Value) ([]ir.MethodSig, error) {
	var methods []ir.MethodSig

	methodVal := v.LookupPath(cue.ParsePath("method"))
	if !methodVal.Exists() {
		return methods, nil
	}

	iter, err := methodVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		name := iter.Selector().Unquoted()
		mv := iter.Value()

		method := ir.MethodSig{Name: name, Args: []ir.NamedArg{}}

		kindVal := mv.LookupPath(cue.ParsePath("kind"))
		if !kindVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("method.%s.kind", name),
				Message: "method kind is required",
				Pos:     mv.Pos(),
			}
		}
		kind, err := kindVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		method.Kind = ir.MethodKind(kind)
		if !ir.ValidMethodKinds[method.Kind] {
			return nil, &CompileError{
				Field:   fmt.Sprintf("method.%s.kind", name),
				Message: fmt.Sprintf("invalid kind %q: must be init, call or view", kind),
				Pos:     kindVal.Pos(),
			}
		}

		argsVal := mv.LookupPath(cue.ParsePath("args"))
		if argsVal.Exists() {
			argsIter, err := argsVal.Fields()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for argsIter.Next() {
				argType, err := extractTypeName(argsIter.Value())
				if err != nil {
					return nil, err
				}
				method.Args = append(method.Args, ir.NamedArg{
					Name: argsIter.Selector().Unquoted(),
					Type: argType,
				})
			}
		}

		method.Outputs, err = parseOutputs(name, mv)
		if err != nil {
			return nil, err
		}
		if method.Kind != ir.KindInit && len(method.Outputs) == 0 {
			return nil, &CompileError{
				Field:   fmt.Sprintf("method.%s.outputs", name),
				Message: "method outputs are required",
				Pos:     mv.Pos(),
			}
		}

		methods = append(methods, method)
	}

	return methods, nil
}

func parseOutputs(method string, mv cue.Value) ([]ir.OutputCase, error) {
	var outputs []ir.OutputCase

	outputsVal := mv.LookupPath(cue.ParsePath("outputs"))
	if !outputsVal.Exists() {
		return outputs, nil
	}

	outputIter, err := outputsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for outputIter.Next() {
		outVal := outputIter.Value()

		caseName, err := outVal.LookupPath(cue.ParsePath("case")).String()
		if err != nil {
			return nil, &CompileError{
				Field:   fmt.Sprintf("method.%s.outputs", method),
				Message: "output case name is required",
				Pos:     outVal.Pos(),
			}
		}

		output := ir.OutputCase{
			Case:   caseName,
			Fields: make(map[string]string),
		}

		fieldsVal := outVal.LookupPath(cue.ParsePath("fields"))
		if fieldsVal.Exists() {
			fieldsIter, err := fieldsVal.Fields()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for fieldsIter.Next() {
				fieldType, err := extractTypeName(fieldsIter.Value())
				if err != nil {
					return nil, err
				}
				output.Fields[fieldsIter.Selector().Unquoted()] = fieldType
			}
		}

		outputs = append(outputs, output)
	}

	return outputs, nil
}

// extractTypeName converts a CUE type to an ABI type string.
// Only scalar argument types are supported; floats are forbidden.
func extractTypeName(v cue.Value) (string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return "string", nil
	case cue.IntKind:
		return "int", nil
	case cue.BoolKind:
		return "bool", nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
