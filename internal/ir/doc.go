// Package ir provides the canonical types shared by the agent registry.
//
// This package contains type definitions, canonical JSON and content-addressed
// identity only. All other internal packages import ir; ir imports nothing
// internal.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - All JSON tags use snake_case
//   - Logical clocks (seq) only, never wall-clock timestamps
package ir
