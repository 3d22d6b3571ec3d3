package store

import "errors"

// ErrAlreadyInitialized is returned by MarkInitialized on a second init.
var ErrAlreadyInitialized = errors.New("store: contract already initialized")

// ErrReadOnly is returned when a write is attempted outside a Tx.
var ErrReadOnly = errors.New("store: writes require a call transaction")
