package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"unicode/utf8"

	"github.com/roach88/agentregistry/internal/ir"
)

// EventPrefix tags a log line as an indexable event record.
const EventPrefix = "EVENT_JSON:"

// ErrEventEncoding is returned by FormatEvent for fields that are not valid
// UTF-8. JSON would replace the bad bytes and the line would no longer match
// the stored write.
var ErrEventEncoding = errors.New("event fields must be valid UTF-8")

// FormatEvent renders the log line for a PersonaSetEvent.
// HTML escaping is disabled so CIDs and account IDs appear verbatim.
func FormatEvent(ev ir.PersonaSetEvent) (string, error) {
	if !utf8.ValidString(string(ev.AccountID)) || !utf8.ValidString(string(ev.CID)) {
		return "", ErrEventEncoding
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ev); err != nil {
		return "", err
	}
	return EventPrefix + string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}
