// Package ledger implements rotation-with-reuse-detection for refresh
// tokens: every issued value has exactly one row, a value rotates into
// exactly one successor, and a second presentation outside a short grace
// window is treated as proof of compromise and tears down every record for
// the account.
//
// Two implementations are provided: Memory for tests and single-process
// embedding, and Postgres for production.
package ledger
