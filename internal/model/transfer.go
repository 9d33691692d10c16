package model

import (
	"slices"
	"time"
)

// TransferStatus is the state of the transfer sub-model embedded on a
// resource.
type TransferStatus string

const (
	TransferNotPending      TransferStatus = "NOT_PENDING"
	TransferPending         TransferStatus = "PENDING"
	TransferServerApproved  TransferStatus = "SERVER_APPROVED"
	TransferClientApproved  TransferStatus = "CLIENT_APPROVED"
	TransferClientRejected  TransferStatus = "CLIENT_REJECTED"
	TransferClientCancelled TransferStatus = "CLIENT_CANCELLED"
	TransferServerCancelled TransferStatus = "SERVER_CANCELLED"
)

// Terminal reports whether a new transfer request may follow s.
func (s TransferStatus) Terminal() bool {
	return s != TransferPending
}

// Approved reports whether s ended with the sponsor changing.
func (s TransferStatus) Approved() bool {
	return s == TransferServerApproved || s == TransferClientApproved
}

// EntityKind names the kinds of server-side entity a flow can create
// alongside a resource revision.
type EntityKind string

const (
	KindOneTime      EntityKind = "OneTime"
	KindRecurring    EntityKind = "Recurring"
	KindCancellation EntityKind = "Cancellation"
	KindPollMessage  EntityKind = "PollMessage"
)

// IsBilling reports whether k is a billing ledger entity.
func (k EntityKind) IsBilling() bool {
	return k == KindOneTime || k == KindRecurring || k == KindCancellation
}

// EntityRef is a non-owning reference to a billing or poll entity.
type EntityRef struct {
	Kind  EntityKind `json:"kind"`
	Group string     `json:"group"`
	ID    string     `json:"id"`
}

func (r EntityRef) String() string {
	return string(r.Kind) + ":" + r.Group + "/" + r.ID
}

// ServerApproveEntities are the entities created speculatively when a
// transfer is requested, split by the outcome that keeps them.
type ServerApproveEntities struct {
	// Accept survives approval, explicit or implicit.
	Accept []EntityRef `json:"accept,omitempty"`

	// Reject survives rejection or cancellation.
	Reject []EntityRef `json:"reject,omitempty"`

	// TransferCharge, when set, names the one-time TRANSFER charge among
	// Accept directly.
	TransferCharge *EntityRef `json:"transfer_charge,omitempty"`
}

// All returns every referenced entity, accept side first.
func (s ServerApproveEntities) All() []EntityRef {
	return slices.Concat(s.Accept, s.Reject)
}

// Empty reports whether no entity is referenced.
func (s ServerApproveEntities) Empty() bool {
	return len(s.Accept) == 0 && len(s.Reject) == 0 && s.TransferCharge == nil
}

// Contains reports whether ref is on either side.
func (s ServerApproveEntities) Contains(ref EntityRef) bool {
	return slices.Contains(s.Accept, ref) || slices.Contains(s.Reject, ref)
}

// TransferData is the pending-transfer sub-model of a resource.
type TransferData struct {
	Status            TransferStatus        `json:"status"`
	GainingClient     string                `json:"gaining_client,omitempty"`
	LosingClient      string                `json:"losing_client,omitempty"`
	RequestTime       time.Time             `json:"request_time,omitzero"`
	PendingExpiration time.Time             `json:"pending_expiration,omitzero"`
	ServerApprove     ServerApproveEntities `json:"server_approve"`

	// TransferredExpiration is the registration expiration a domain gets if
	// the transfer is approved.
	TransferredExpiration time.Time `json:"transferred_expiration,omitzero"`

	// GainingRecurring is the autorenew record that takes over on approval.
	GainingRecurring *EntityRef `json:"gaining_recurring,omitempty"`
}

// Clone returns a deep copy of t.
func (t TransferData) Clone() TransferData {
	c := t
	c.ServerApprove.Accept = slices.Clone(t.ServerApprove.Accept)
	c.ServerApprove.Reject = slices.Clone(t.ServerApprove.Reject)
	if t.ServerApprove.TransferCharge != nil {
		ref := *t.ServerApprove.TransferCharge
		c.ServerApprove.TransferCharge = &ref
	}
	if t.GainingRecurring != nil {
		ref := *t.GainingRecurring
		c.GainingRecurring = &ref
	}
	return c
}

// EffectiveStatus is the status t has at now. A PENDING transfer whose
// deadline is at or before now is SERVER_APPROVED regardless of how long ago
// the deadline passed.
func (t TransferData) EffectiveStatus(now time.Time) TransferStatus {
	if t.Status == "" {
		return TransferNotPending
	}
	if t.Status == TransferPending && IsBeforeOrAt(t.PendingExpiration, now) {
		return TransferServerApproved
	}
	return t.Status
}

// Pending reports whether t is still awaiting resolution at now.
func (t TransferData) Pending(now time.Time) bool {
	return t.EffectiveStatus(now) == TransferPending
}

// Involves reports whether client is the gaining or losing party.
func (t TransferData) Involves(client string) bool {
	return client != "" && (client == t.GainingClient || client == t.LosingClient)
}
