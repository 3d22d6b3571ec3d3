package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/agentregistry/internal/ir"
)

// marshalArgs converts call args to canonical JSON TEXT for storage.
func marshalArgs(args ir.Args) (string, error) {
	if args == nil {
		args = ir.Args{}
	}
	data, err := ir.MarshalCanonical(args)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	return string(data), nil
}

// unmarshalArgs parses canonical JSON TEXT back into Args.
// Numbers decode through json.Number into int64 to avoid float64 precision loss.
func unmarshalArgs(data string) (ir.Args, error) {
	if data == "" || data == "{}" {
		return ir.Args{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}

	args := make(ir.Args, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case json.Number:
			n, err := val.Int64()
			if err != nil {
				return nil, fmt.Errorf("unmarshal args: %q: %w", k, err)
			}
			args[k] = n
		case string, bool:
			args[k] = val
		default:
			return nil, fmt.Errorf("unmarshal args: %q: unsupported type %T", k, v)
		}
	}
	return args, nil
}
