// Package harness runs admission scenarios written in YAML.
//
// A scenario configures a gateway, initializes counters, submits candidate
// messages through the real admission controller backed by an in-memory
// SQLite store, and asserts on the resulting trace and final state.
//
// # Scenario Format
//
//	name: replay_protection
//	description: "A replayed sequence id is rejected"
//	gateway:
//	  authority: relay-admin
//	  signers: [1, 2]
//	  threshold: 2
//	setup:
//	  - init_counter: { chain: 42 }
//	flow:
//	  - admit: { chain: 42, sequence_id: "5", sign_with: [1, 2] }
//	    expect: { code: OK, watermark: "5" }
//	  - admit: { chain: 42, sequence_id: "5", sign_with: [1, 2] }
//	    expect: { code: DUPLICATE_MESSAGE }
//	assertions:
//	  - type: watermark
//	    chain: 42
//	    equals: "5"
//	  - type: record_count
//	    chain: 42
//	    count: 1
//
// Admit steps start from testutil.NewMessage and apply the listed
// overrides. Signers are named by the seed byte passed to
// testutil.NewSigner.
//
// # Assertion Types
//
//   - watermark: the chain's highest admitted sequence id
//   - record_exists, record_absent: whether (chain, sequence_id) was admitted
//   - record_count: number of admission records on a chain
//   - event_count: number of outbox events, optionally of one kind
//   - trace_contains: some step matched op, chain, sequence id and code
//   - trace_count: number of steps that ended with code
//   - audit_consistent: every chain's watermark matches its records
//
// # Deterministic Testing
//
// Attempt ids come from testutil.SequentialIDs and signer keys from fixed
// seeds, so a scenario produces the same trace on every run. RunWithGolden
// compares that trace, as canonical JSON, against testdata/golden.
package harness
