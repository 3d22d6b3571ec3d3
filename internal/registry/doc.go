// Package registry implements the persona registry: a per-account mapping
// from an account identifier to a single persona CID.
//
// The registry owns the state-transition rules and nothing else:
//   - CID validation (non-empty after trimming surrounding whitespace)
//   - Single-owner writes (the writer is always the resolved caller)
//   - Last-write-wins storage (no history, no concurrency check)
//   - One PersonaSetEvent line per successful write, emitted after the store mutation
//
// Its collaborators are injected: a KVStore at construction, a CallerContext
// and an EventSink per call. The registry takes no locks; the host executing
// it is responsible for serializing calls against the same store.
//
// # Event Format
//
// Each successful write emits exactly one line:
//
//	EVENT_JSON:{"account_id":"alice.test","cid":"bafy..."}
//
// Indexers locate these lines by the fixed prefix and parse the remainder as JSON.
package registry
