// Package harness replays scripted till sessions against the real state,
// queue and sync engine, with an in-memory backend standing in for the
// remote store.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: offline_sale_then_sync
//	description: "A sale rung up offline reaches the backend once"
//	owner: owner-1
//	seed:
//	  settings: { store_name: "Boutique Centrale", tax_rate: "0" }
//	  products:
//	    - { id: p1, name: Savon, barcode: "3017620422003", price: "100", quantity: 10 }
//	steps:
//	  - invoke: go_offline
//	  - invoke: add_to_cart
//	    args: { product: Savon, quantity: 2 }
//	  - invoke: record_sale
//	    args: { payment: cash, given: "200" }
//	    expect: { outcome: ok, pending: 1 }
//	  - invoke: go_online
//	  - invoke: sync
//	    expect: { outcome: drained, pending: 0 }
//	assertions:
//	  - type: call_count
//	    call: RecordTransaction
//	    count: 1
//
// Products are referenced by id, barcode or name.
//
// # Step Actions
//
//   - go_offline / go_online: flip the backend and the connectivity monitor together
//   - lose_connection: the backend drops while the monitor still reports online
//   - fail_next / fail_after_apply: script a classified failure for one backend method
//   - create_product, update_product, delete_product, record_movement
//   - add_to_cart, record_sale, update_settings
//   - sync: one engine drain pass; the outcome is the stop reason
//   - load: state.Load; the outcome is the source
//   - restart: reopen queue, cache and state from the same local store, then load
//   - advance_clock: move wall time forward by a Go duration ("by: 2h")
//
// # Assertion Types
//
//   - call_contains: a backend call with the method and a detail substring
//   - call_order: methods first appear in the given order
//   - call_count: a method was called exactly N times
//   - queue_length: operations still pending
//   - product_state: fields of one local (or remote) product
//   - sale_count: number of local (or remote) sales
//
// # Deterministic Testing
//
// Local ids, operation ids, backend ids and generated barcodes come from
// testutil.NewIDs, wall time from a testutil.WallClock and trace sequence
// numbers from a testutil.DeterministicClock, so the trace of a scenario
// is byte-identical across runs and can be compared with a golden file.
package harness
