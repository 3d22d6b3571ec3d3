// Package indexer reads persona events back out of committed receipts.
//
// The registry keeps no history; every successful write leaves one
// EVENT_JSON line in its receipt's logs. Replaying those lines in seq order
// rebuilds the latest CID per account, which must match the stored mapping.
package indexer
