package model

import "time"

// PollMessageType classifies registrar notifications.
type PollMessageType string

const (
	PollTransferRequested PollMessageType = "TRANSFER_REQUESTED"
	PollTransferApproved  PollMessageType = "TRANSFER_APPROVED"
	PollTransferRejected  PollMessageType = "TRANSFER_REJECTED"
	PollTransferCancelled PollMessageType = "TRANSFER_CANCELLED"
	PollDomainDeleted     PollMessageType = "DOMAIN_DELETED"
)

// PollMessage is a queued notification for one registrar. It becomes
// deliverable once EventTime has passed, unless cancelled first.
type PollMessage struct {
	ID          string            `json:"id"`
	Client      string            `json:"client"`
	Type        PollMessageType   `json:"type"`
	Target      ResourceRef       `json:"target"`
	TargetName  string            `json:"target_name"`
	EventTime   time.Time         `json:"event_time"`
	Payload     map[string]string `json:"payload,omitempty"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
	DeliveredAt *time.Time        `json:"delivered_at,omitempty"`
}

// Deliverable reports whether m should be handed to its client at now.
func (m *PollMessage) Deliverable(now time.Time) bool {
	return m.CancelledAt == nil && m.DeliveredAt == nil && IsBeforeOrAt(m.EventTime, now)
}
