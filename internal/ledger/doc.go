// Package ledger hosts the persona registry the way a blockchain runtime
// would: it resolves the caller of each call, serializes calls, runs each one
// in a single store transaction, collects the lines the registry emits, and
// records a receipt for every call.
//
// # Call Lifecycle
//
//  1. Look up the method in the ABI compiled from contract.cue
//  2. Decode arguments strictly (declared names and types only)
//  3. Stamp the call with the next logical seq and a tx token
//  4. Run the registry against a store.Tx with the caller as CallerContext
//  5. Commit effects, receipt and logs together; or roll back and record a
//     failure receipt without logs
//
// Host errors (unknown method, malformed args, not initialized) reject the
// call before it is stamped; they consume no seq and leave no receipt.
// A registry InputError is not a host error: it produces a failure receipt.
//
// # Concurrency
//
// The Ledger holds one mutex across each Call and View. The registry relies on
// this serialization and takes no locks of its own.
package ledger
