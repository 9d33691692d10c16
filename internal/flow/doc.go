// Package flow is the resource flow engine: the single orchestration routine
// every mutating registry command runs through.
//
// A flow invocation moves through
//
//	LOADED → AUTHORIZED → VALIDATED → MUTATED → COMMITTED
//
// and short-circuits to FAILED on the first error. The whole invocation is
// one store transaction: the successor revision, its history entry, index
// changes, billing events and poll messages commit together or not at all.
//
// Commands are a closed set of variants (create, update, delete, transfer
// request, transfer approve/reject/cancel). Each variant supplies hooks for
// authorization, validation, the pure mutation step and the related-entity
// side effects; Execute owns everything else.
//
// Loading a resource always evaluates it at the flow's instant first: a
// transfer whose automatic-approval deadline has passed is materialised as
// its own revision before the command's hooks run.
package flow
