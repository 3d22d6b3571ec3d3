package ir

// AccountID is an opaque, externally issued identity naming a registry participant.
// Equality is exact string equality.
type AccountID string

// CID is a content identifier pointing into content-addressed storage.
// The registry validates its surface form only; it never resolves it.
type CID string

// PersonaRecord is the stored association account -> CID.
type PersonaRecord struct {
	AccountID AccountID `json:"account_id"`
	CID       CID       `json:"cid"`
}

// PersonaSetEvent is emitted once per successful persona write.
// It is never persisted by the registry itself.
type PersonaSetEvent struct {
	AccountID AccountID `json:"account_id"`
	CID       CID       `json:"cid"`
}

// ReceiptStatus is the outcome of a ledger call.
type ReceiptStatus string

const (
	StatusSuccess ReceiptStatus = "success"
	StatusFailure ReceiptStatus = "failure"
)

// Args holds decoded call arguments.
// Values are constrained to string, int64 and bool.
type Args map[string]any

// Receipt represents the committed outcome of a single ledger call.
type Receipt struct {
	ID              string        `json:"id"` // Content-addressed hash
	TxToken         string        `json:"tx_token"`
	Seq             int64         `json:"seq"` // Logical clock
	Caller          AccountID     `json:"caller"`
	Method          string        `json:"method"`
	Args            Args          `json:"args"`
	Status          ReceiptStatus `json:"status"`
	Error           string        `json:"error,omitempty"`
	Logs            []string      `json:"logs"` // Always empty for failures
	ContractVersion string        `json:"contract_version"`
}

// Succeeded reports whether the call committed.
func (r *Receipt) Succeeded() bool {
	return r.Status == StatusSuccess
}
