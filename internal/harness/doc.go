// Package harness runs ledger scenarios as executable contract tests.
//
// A scenario starts a fresh engine, commits a genesis block, runs setup and
// flow batches through the real executor and trigger engine, and then
// checks the recorded events and the final world state.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: chess
//	description: "Once-mintable pawns move between players"
//	genesis:
//	  authority: alice@chess
//	  instructions:
//	    - register_domain: {id: chess}
//	clock:
//	  start_ms: 1000
//	  step_ms: 1000
//	setup:
//	  - authority: alice@chess
//	    instructions: [...]
//	flow:
//	  - authority: bob@chess
//	    instructions:
//	      - mint_asset: {asset: "pawn##bob@chess", amount: "16"}
//	    expect:
//	      outcome: committed
//	      events: ["asset pawn##bob@chess AmountIncreased 16"]
//	assertions:
//	  - type: event_count
//	    event: "asset pawn##bob@chess AmountIncreased 16"
//	    count: 1
//	  - type: final_state
//	    entity: asset
//	    id: "pawn##bob@chess"
//	    expect: {value: {numeric: "16"}}
//
// The genesis section holds either inline authority and instructions,
// `default: true` for the built-in genesis, or `file:` naming a YAML or CUE
// genesis file relative to the scenario.
//
// Setup batches must commit. Flow batches may be rejected; their expect
// clause checks the outcome, the rejection code and index, and optionally
// the exact events raised.
//
// # Assertion Types
//
//   - event_contains: an event line appears in the trace
//   - event_order: event lines appear in the given order (not necessarily adjacent)
//   - event_count: an event line appears exactly N times
//   - final_state: an object's JSON contains the expected fields, or the
//     object is absent
//
// Event lines are the String form of model.Event, for example
// "asset rose##alice@wonderland AmountIncreased 3".
//
// # Deterministic Testing
//
// Batch ids come from testutil.SequentialIDGenerator and block times from
// testutil.DeterministicClock, so the same scenario always produces the
// same trace. RunWithGolden compares that trace against
// testdata/golden/<name>.golden.
//
// FindScenarios collects scenario files under a directory and RunSuite
// runs them in order, reporting load failures alongside failed runs.
package harness
