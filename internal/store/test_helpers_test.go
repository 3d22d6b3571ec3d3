package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/agentregistry/internal/ir"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestReceipt creates a receipt with minimal required fields.
func createTestReceipt(seq int64, caller ir.AccountID, method string, args ir.Args, status ir.ReceiptStatus, logs ...string) ir.Receipt {
	if logs == nil {
		logs = []string{}
	}
	return ir.Receipt{
		ID:              ir.MustReceiptID("test-tx", caller, method, args, seq),
		TxToken:         "test-tx",
		Seq:             seq,
		Caller:          caller,
		Method:          method,
		Args:            args,
		Status:          status,
		Logs:            logs,
		ContractVersion: ir.ContractVersion,
	}
}

// commitCall writes a persona and its receipt in one transaction.
func commitCall(t *testing.T, s *Store, r ir.Receipt, cid ir.CID) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx, r.Seq)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	defer tx.Rollback()

	if cid != "" {
		if err := tx.PutPersona(ctx, r.Caller, cid); err != nil {
			t.Fatalf("PutPersona() failed: %v", err)
		}
	}
	if err := tx.WriteReceipt(ctx, r); err != nil {
		t.Fatalf("WriteReceipt() failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
}
