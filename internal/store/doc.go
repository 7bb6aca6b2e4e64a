// Package store guarantees that a requested TypeScript compiler version is
// present in the on-disk store before a client loads it. It owns the
// manifest (tag resolutions, known versions, fetch/usage timestamps), the
// cross-process installation lock, and the worker that drives the external
// npm installer. The Service facade composes these pieces for the CLI.
// All failures surface through an injected diagnostics sink and neutral
// return values; nothing in this package writes to a user-facing stream.
package store
