// Package model defines the registry's persistent data shapes.
//
// Resources (domains, contacts, hosts) are immutable once persisted: every
// change produces a successor revision with Revision incremented by one.
// Deletion is soft: DeletionTime moves from EndOfTime to the deletion instant
// and the record is kept for history and point-in-time reads.
//
// The package also carries the error taxonomy shared by every layer, the
// transfer sub-model embedded on resources, the billing and poll entity
// shapes written by flows, and name canonicalisation.
package model
