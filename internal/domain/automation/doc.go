// Package automation contains the price-cycle bounded context: the temporary,
// reversible price change applied across a seller's catalog and the rules that
// decide when it is undone.
//
// Key concepts:
//   - CalculatePrice: the discount rule with its floor inversion
//   - Ledger: per-run record of every product touched and its outcome
//   - OrderBaseline: orders that existed when the adjustment finished
//   - Phase: idle -> adjusting -> monitoring -> restoring -> complete
//   - RunState / StateStore: the persisted view of the single active run
package automation
