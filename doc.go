// Package main provides the svfs command-line interface.
//
// svfs edits append-only archive containers. Every save appends a new
// version that links back to the previous one, so any earlier state can be
// listed, verified, exported or restored. Changes can go straight into a
// container or be collected in a staging session that survives between
// invocations and is committed in one step.
//
// The binary groups its subcommands as follows:
//   - archive: create, ls, cat, put, mkdir, rm, mv, history, rollback, verify
//   - staging: stage put, rm, mkdir, status, commit, discard, sessions, saveas
//   - filesystem: mount a container through FUSE
package main
