// Command landopt runs the per-region land-area optimization pipeline and
// inspects its run ledger.
package main
