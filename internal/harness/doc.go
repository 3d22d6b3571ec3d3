// Package harness runs YAML scenarios against a real ledger and compares
// the resulting trace with golden files.
//
// # Scenario Format
//
//	name: concrete_flow
//	description: "What this scenario checks"
//	tx_token: scn-concrete
//	strict_cid: false
//	steps:
//	  - init: owner.test
//	  - caller: alice.test
//	    call: set_persona
//	    args: { cid: bafyx }
//	    expect: { status: success }
//	  - caller: alice.test
//	    call: set_persona
//	    args: { not_cid: bafyx }
//	    expect: { host_error: INVALID_ARGS }
//	  - view: get_persona
//	    args: { account_id: carol.test }
//	    expect: { absent: true }
//	assertions:
//	  - type: persona
//	    account: alice.test
//	    cid: bafyx
//	  - type: event_count
//	    count: 1
//
// Each step is exactly one of init, call or view. A step without expect
// must succeed.
//
// # Assertion Types
//
//   - persona: final CID of an account, or absent: true
//   - event_emitted: an event with account and cid appears in the trace
//   - event_count: total events in the trace
//   - receipt_count: receipts in the store, optionally filtered by status
//   - call_order: methods appear in the trace in this order
//   - final_state: one row of a store table matches where/expect
//   - replay_consistent: events replayed from receipts reproduce the stored mapping
//
// # Determinism
//
// Every run uses a fresh in-memory store, a testutil.DeterministicClock and
// testutil.SequentialTokens seeded from tx_token, so a scenario yields the
// same trace byte for byte. Golden files hold that trace as canonical JSON.
package harness
