package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/agentregistry/internal/ir"
	"github.com/roach88/agentregistry/internal/registry"
)

// ParseLine decodes a persona event line.
//
// Returns ok=false with no error when the line does not carry the event
// prefix. A prefixed line whose payload is not exactly an
// {"account_id","cid"} object is an error.
func ParseLine(line string) (ev ir.PersonaSetEvent, ok bool, err error) {
	payload, found := strings.CutPrefix(line, registry.EventPrefix)
	if !found {
		return ir.PersonaSetEvent{}, false, nil
	}

	var wire struct {
		AccountID *string `json:"account_id"`
		CID       *string `json:"cid"`
	}
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wire); err != nil {
		return ir.PersonaSetEvent{}, false, fmt.Errorf("parse event: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ir.PersonaSetEvent{}, false, fmt.Errorf("parse event: trailing data after object")
	}
	if wire.AccountID == nil || wire.CID == nil {
		return ir.PersonaSetEvent{}, false, fmt.Errorf("parse event: account_id and cid are required")
	}

	return ir.PersonaSetEvent{AccountID: ir.AccountID(*wire.AccountID), CID: ir.CID(*wire.CID)}, true, nil
}

// Scan returns the events among lines, in order. Lines without the prefix
// are skipped.
func Scan(lines []string) ([]ir.PersonaSetEvent, error) {
	events := []ir.PersonaSetEvent{}
	for i, line := range lines {
		ev, ok, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		if ok {
			events = append(events, ev)
		}
	}
	return events, nil
}
