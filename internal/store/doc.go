// Package store implements the Normalized Store.
//
// The Store holds the canonical in-memory tables fed by the Message Router:
//   - instruments keyed by symbol, merged with patch semantics
//   - account P&L rows keyed by "<accountId>.<modelCode>" plus the core totals projection
//   - ledger entries keyed by currency
//   - account summary, allocation, combos and watchlists snapshots
//
// The router is the only writer. Readers receive copies and may watch for
// change notifications.
package store
