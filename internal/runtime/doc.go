// Package runtime executes compiled statement descriptors against a live
// SQLite database.
//
// Reads come in two forms: a one-shot fetch resolving to the full mapped
// result collection, and a continuously-updated subscription re-emitting
// whenever a table in the statement's read-set is written. Writes resolve
// to an affected-row count and notify dependent subscriptions through the
// Notifier.
package runtime
