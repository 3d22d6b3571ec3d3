package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/agentregistry/internal/ir"
)

// ReadReceipts returns all receipts with seq > sinceSeq, logs included.
// Results are ordered deterministically: ORDER BY seq ASC, id COLLATE BINARY ASC.
//
// Returns an empty slice (not nil) if no receipts exist.
func (s *Store) ReadReceipts(ctx context.Context, sinceSeq int64) ([]ir.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, tx_token, caller, method, args, status, error, contract_version
		FROM receipts
		WHERE seq > ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}

	var receipts []ir.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}
	// Close before loading logs: the store runs on a single connection.
	rows.Close()

	for i := range receipts {
		logs, err := s.ReadLogs(ctx, receipts[i].ID)
		if err != nil {
			return nil, err
		}
		receipts[i].Logs = logs
	}

	if receipts == nil {
		receipts = []ir.Receipt{}
	}
	return receipts, nil
}

// ReadReceipt retrieves a single receipt by ID, logs included.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadReceipt(ctx context.Context, id string) (ir.Receipt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, tx_token, caller, method, args, status, error, contract_version
		FROM receipts
		WHERE id = ?
	`, id)

	r, err := scanReceipt(row)
	if err != nil {
		return ir.Receipt{}, err
	}

	r.Logs, err = s.ReadLogs(ctx, id)
	if err != nil {
		return ir.Receipt{}, err
	}
	return r, nil
}

// ReadLogs returns the log lines of a receipt in emission order.
// Returns an empty slice (not nil) for receipts without logs.
func (s *Store) ReadLogs(ctx context.Context, receiptID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT line FROM receipt_logs
		WHERE receipt_id = ?
		ORDER BY idx ASC
	`, receiptID)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	logs := []string{}
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		logs = append(logs, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}
	return logs, nil
}

// ReadPersonas returns every stored record ordered by account_id.
func (s *Store) ReadPersonas(ctx context.Context) ([]ir.PersonaRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, cid FROM personas
		ORDER BY account_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query personas: %w", err)
	}
	defer rows.Close()

	records := []ir.PersonaRecord{}
	for rows.Next() {
		var account, cid string
		if err := rows.Scan(&account, &cid); err != nil {
			return nil, fmt.Errorf("scan persona: %w", err)
		}
		records = append(records, ir.PersonaRecord{AccountID: ir.AccountID(account), CID: ir.CID(cid)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate personas: %w", err)
	}
	return records, nil
}

// LastSeq returns the highest receipt seq, or 0 for an empty log.
// Used to resume the ledger clock after a restart.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM receipts`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row scanner) (ir.Receipt, error) {
	var (
		r      ir.Receipt
		caller string
		args   string
		status string
	)
	err := row.Scan(&r.ID, &r.Seq, &r.TxToken, &caller, &r.Method, &args, &status, &r.Error, &r.ContractVersion)
	if err == sql.ErrNoRows {
		return ir.Receipt{}, err
	}
	if err != nil {
		return ir.Receipt{}, fmt.Errorf("scan receipt: %w", err)
	}

	r.Args, err = unmarshalArgs(args)
	if err != nil {
		return ir.Receipt{}, fmt.Errorf("scan receipt %s: %w", r.ID, err)
	}
	r.Caller = ir.AccountID(caller)
	r.Status = ir.ReceiptStatus(status)
	r.Logs = []string{}
	return r, nil
}
