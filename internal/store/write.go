package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/agentregistry/internal/ir"
)

// Tx is the unit of work for one ledger call.
// It implements registry.KVStore; reads see the call's own uncommitted writes.
type Tx struct {
	tx  *sql.Tx
	seq int64
}

// Begin starts a call transaction. seq stamps persona rows written through it.
func (s *Store) Begin(ctx context.Context, seq int64) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin call: %w", err)
	}
	return &Tx{tx: tx, seq: seq}, nil
}

// BeginNext starts a call transaction whose seq is chosen by next from the
// highest seq committed so far. The read happens inside the transaction, and
// the store's single connection serializes calls on one Store.
func (s *Store) BeginNext(ctx context.Context, next func(last int64) int64) (*Tx, error) {
	t, err := s.Begin(ctx, 0)
	if err != nil {
		return nil, err
	}

	var last sql.NullInt64
	if err := t.tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM receipts`).Scan(&last); err != nil {
		t.Rollback()
		return nil, fmt.Errorf("begin call: last seq: %w", err)
	}
	t.seq = next(last.Int64)
	if t.seq <= last.Int64 {
		t.Rollback()
		return nil, fmt.Errorf("begin call: seq %d does not follow %d", t.seq, last.Int64)
	}
	return t, nil
}

// Seq returns the seq the transaction stamps on persona rows.
func (t *Tx) Seq() int64 {
	return t.seq
}

// Savepoint marks the start of the call's effects.
func (t *Tx) Savepoint(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, `SAVEPOINT call_effects`); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	return nil
}

// RollbackToSavepoint discards everything written since Savepoint while
// keeping the transaction open.
func (t *Tx) RollbackToSavepoint(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT call_effects`); err != nil {
		return fmt.Errorf("rollback to savepoint: %w", err)
	}
	return nil
}

// GetPersona reads the CID for account within the transaction.
func (t *Tx) GetPersona(ctx context.Context, account ir.AccountID) (ir.CID, bool, error) {
	return getPersona(ctx, t.tx, account)
}

// PutPersona inserts or overwrites the account's CID (last write wins).
func (t *Tx) PutPersona(ctx context.Context, account ir.AccountID, cid ir.CID) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO personas (account_id, cid, updated_seq)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET cid = excluded.cid, updated_seq = excluded.updated_seq
	`, string(account), string(cid), t.seq)
	if err != nil {
		return fmt.Errorf("write persona: %w", err)
	}
	return nil
}

// MarkInitialized records the singleton init row.
// Returns ErrAlreadyInitialized if the contract was initialized before.
func (t *Tx) MarkInitialized(ctx context.Context, caller ir.AccountID) error {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO contract_state (id, initialized_seq, initialized_by, contract_version)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, t.seq, string(caller), ir.ContractVersion)
	if err != nil {
		return fmt.Errorf("mark initialized: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark initialized: rows affected: %w", err)
	}
	if n == 0 {
		return ErrAlreadyInitialized
	}
	return nil
}

// WriteReceipt inserts a receipt and its log lines.
// Failure receipts must carry no logs.
func (t *Tx) WriteReceipt(ctx context.Context, r ir.Receipt) error {
	if r.Status == ir.StatusFailure && len(r.Logs) > 0 {
		return fmt.Errorf("write receipt: failure receipt %s carries %d log lines", r.ID, len(r.Logs))
	}

	argsJSON, err := marshalArgs(r.Args)
	if err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO receipts
		(id, seq, tx_token, caller, method, args, status, error, contract_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.Seq,
		r.TxToken,
		string(r.Caller),
		r.Method,
		argsJSON,
		string(r.Status),
		r.Error,
		r.ContractVersion,
	)
	if err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}

	for i, line := range r.Logs {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO receipt_logs (receipt_id, idx, line) VALUES (?, ?, ?)
		`, r.ID, i, line); err != nil {
			return fmt.Errorf("write receipt log %d: %w", i, err)
		}
	}

	return nil
}

// Commit makes the call's effects durable.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit call: %w", err)
	}
	return nil
}

// Rollback discards the call's effects. Safe to call after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}
