// Package transfer implements the pending-transfer protocol: a request that
// speculatively creates the billing and notification entities of both
// outcomes, explicit resolution by either party, and automatic approval once
// the deadline passes.
//
// Automatic approval is never a background job. A PENDING transfer whose
// deadline is at or before now is approved by definition (see
// model.TransferData.EffectiveStatus); Project applies that rule to a
// resource without writing anything, and Materialize persists it the next
// time a flow touches the resource.
//
// Every operation runs inside the caller's store transaction, so entities and
// the resource revision commit together or not at all.
package transfer
