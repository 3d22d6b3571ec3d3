package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainReceipt = "agentregistry/receipt/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ReceiptID computes the content-addressed ID of a ledger call.
// The ID is stable across replays given the same inputs. Outcome fields
// (status, logs) are excluded: the ID names the call, not its result.
func ReceiptID(txToken string, caller AccountID, method string, args Args, seq int64) (string, error) {
	if args == nil {
		args = Args{}
	}
	obj := map[string]any{
		"tx_token": txToken,
		"caller":   string(caller),
		"method":   method,
		"args":     args,
		"seq":      seq,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ReceiptID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainReceipt, canonical), nil
}

// MustReceiptID is like ReceiptID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustReceiptID(txToken string, caller AccountID, method string, args Args, seq int64) string {
	id, err := ReceiptID(txToken, caller, method, args, seq)
	if err != nil {
		panic(err)
	}
	return id
}
