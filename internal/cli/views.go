package cli

import (
	"fmt"
	"io"

	"github.com/roach88/agentregistry/internal/indexer"
	"github.com/roach88/agentregistry/internal/ir"
)

// receiptOutput renders a receipt.
type receiptOutput struct {
	ir.Receipt
}

func (r receiptOutput) renderText(w io.Writer, verbose bool) {
	mark := "✓"
	if !r.Succeeded() {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s (seq %d, caller %s)\n", mark, r.Method, r.Seq, r.Caller)
	fmt.Fprintf(w, "  Receipt: %s\n", r.ID)
	if r.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", r.Error)
	}
	for _, line := range r.Logs {
		fmt.Fprintf(w, "  Log: %s\n", line)
	}
	if verbose {
		fmt.Fprintf(w, "  Tx token: %s\n", r.TxToken)
		fmt.Fprintf(w, "  Contract version: %s\n", r.ContractVersion)
		for _, k := range ir.SortedKeys(r.Args) {
			fmt.Fprintf(w, "  Arg %s: %v\n", k, r.Args[k])
		}
	}
}

// personaOutput is the result of a lookup. CID is null when absent.
type personaOutput struct {
	AccountID ir.AccountID `json:"account_id"`
	CID       *ir.CID      `json:"cid"`
}

func (p personaOutput) renderText(w io.Writer, _ bool) {
	if p.CID == nil {
		fmt.Fprintf(w, "%s: no persona registered\n", p.AccountID)
		return
	}
	fmt.Fprintf(w, "%s -> %s\n", p.AccountID, *p.CID)
}

// eventRow is one persona_set event with its position in the ledger.
type eventRow struct {
	Seq       int64        `json:"seq"`
	ReceiptID string       `json:"receipt_id"`
	AccountID ir.AccountID `json:"account_id"`
	CID       ir.CID       `json:"cid"`
}

type eventsOutput struct {
	Events   []eventRow `json:"events"`
	Count    int        `json:"count"`
	LastSeq  int64      `json:"last_seq"`
	Accounts int        `json:"accounts"`
}

func (e eventsOutput) renderText(w io.Writer, verbose bool) {
	if e.Count == 0 {
		fmt.Fprintln(w, "No events found.")
		return
	}
	for _, ev := range e.Events {
		fmt.Fprintf(w, "[%d] %s -> %s\n", ev.Seq, ev.AccountID, ev.CID)
		if verbose {
			fmt.Fprintf(w, "     receipt %s\n", ev.ReceiptID)
		}
	}
	fmt.Fprintf(w, "%d event(s), %d account(s)\n", e.Count, e.Accounts)
}

type replayOutput struct {
	Receipts   int                `json:"receipts"`
	Events     int                `json:"events"`
	Accounts   int                `json:"accounts"`
	Mismatches []indexer.Mismatch `json:"mismatches"`
	Consistent bool               `json:"consistent"`
}

func newReplayOutput(r *indexer.VerifyResult) replayOutput {
	return replayOutput{
		Receipts:   r.Receipts,
		Events:     r.Events,
		Accounts:   r.Accounts,
		Mismatches: r.Mismatches,
		Consistent: r.Consistent(),
	}
}

func (r replayOutput) renderText(w io.Writer, _ bool) {
	fmt.Fprintf(w, "Replay Summary: %d receipt(s), %d event(s), %d account(s)\n",
		r.Receipts, r.Events, r.Accounts)
	if r.Consistent {
		fmt.Fprintln(w, "✓ Event log reproduces stored state")
		return
	}
	for _, m := range r.Mismatches {
		fmt.Fprintf(w, "✗ %s: events say %q, store says %q\n", m.AccountID, m.Projected, m.Stored)
	}
	fmt.Fprintln(w, "✗ Replay verification failed")
}

type abiOutput struct {
	ir.ContractSpec
}

func (a abiOutput) renderText(w io.Writer, _ bool) {
	fmt.Fprintf(w, "Contract %s\n", a.Name)
	for _, m := range a.Methods {
		fmt.Fprintf(w, "  %-5s %s(", m.Kind, m.Name)
		for i, arg := range m.Args {
			if i > 0 {
				fmt.Fprint(w, ", ")
			}
			fmt.Fprintf(w, "%s: %s", arg.Name, arg.Type)
		}
		fmt.Fprintln(w, ")")
	}
}
