// Package harness runs registry scenarios: YAML files that drive a sequence
// of commands through the flow engine against a fresh in-memory store on a
// manual clock, then check assertions on the resulting state.
//
// Every step contributes one line to the scenario trace:
//
//	003 T+24h0m0s TRANSFER_REQUEST domain "example.test" by reg-b: COMMITTED r2
//	004 T+48h0m0s TRANSFER_CANCEL domain "example.test" by reg-c: FAILED at AUTHORIZED (AUTHORIZATION)
//
// Traces contain no generated IDs, so they are stable across runs and are
// compared against golden files in testdata/golden.
package harness
