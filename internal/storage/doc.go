// Package storage persists the greeting roster (recipients, modes, zones and
// recent-use windows) and an audit log of executed commands.
//
// Drivers:
//   - memory: nothing survives a restart (tests, dry runs)
//   - file: <path> holds the JSON state, <path minus ext>.audit.jsonl the audit log
//   - sqlite: a single database file
package storage
