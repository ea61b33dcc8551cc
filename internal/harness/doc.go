// Package harness runs multi-user LifeSignal scenarios deterministically.
//
// A scenario signs in a set of users against one shared in-memory contact
// service, runs their actions in order on a manual clock and checks the
// resulting trace and each user's final view. Each user has a real engine
// and an in-memory store, so scenarios exercise the same code paths as the
// CLI.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: ping_round_trip
//	description: "A ping reaches the counterpart and a check-in answers it"
//	users:
//	  - { id: alice, check_in_interval: 24h }
//	  - { id: bob, check_in_interval: 24h }
//	steps:
//	  - { user: alice, action: add_contact, contact: bob, roles: { responder: true } }
//	  - { user: bob, action: refresh }
//	  - { user: alice, action: send_ping, contact: bob }
//	  - user: bob
//	    action: refresh
//	    contact: alice
//	    expect: { incoming_ping: true }
//	  - { action: advance, duration: 1h }
//	  - { user: bob, action: check_in }
//	  - { user: alice, action: refresh }
//	assertions:
//	  - { type: trace_count, action: send_ping, count: 1 }
//	  - { type: contact, user: alice, contact: bob, expect: { outgoing_ping: false } }
//
// Steps that fail record their error code as the trace outcome. A step
// without expect_error must succeed.
//
// # Assertion Types
//
//   - trace_contains: an event matches action, and user, contact and outcome when given
//   - trace_order: actions first appear in the specified order
//   - trace_count: exactly N events match
//   - contact: a user's final view of a contact matches the expected fields
//   - self: a user's own final status matches the expected fields
//
// # Deterministic Testing
//
// The clock only moves on advance steps and every engine uses a fixed id
// generator, so traces are identical across runs and can be compared with
// golden files (see RunWithGolden).
package harness
