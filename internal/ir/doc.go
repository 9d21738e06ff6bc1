// Package ir provides the shared value types of the quorum gate.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Identities are NFC-normalised at the parse boundary
//   - Amounts are arbitrary precision (*big.Int), never floats
//   - Events carry logical sequence numbers only, never wall-clock timestamps
//   - All JSON tags use snake_case
package ir
