// Package ir holds the workflow data contract shared by the compiler, the
// builder, the store and the CLI.
//
// This package contains data types and pure functions only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Values are the sealed Value variants; there is no float variant
//   - Content hashes use canonical JSON (RFC 8785 key order, NFC strings)
//   - All JSON and YAML tags use snake_case
package ir
