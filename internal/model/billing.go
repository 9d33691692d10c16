package model

import "time"

// BillingReason is why a charge exists.
type BillingReason string

const (
	ReasonCreate    BillingReason = "CREATE"
	ReasonTransfer  BillingReason = "TRANSFER"
	ReasonRenew     BillingReason = "RENEW"
	ReasonAutoRenew BillingReason = "AUTO_RENEW"
)

// Money is an amount in minor currency units.
type Money struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
}

// BillingEvent is a billing ledger record. Kind selects which fields apply:
// OneTime uses BillingTime, Cost and PeriodYears; Recurring uses
// RecurrenceEnd; Cancellation uses Cancels.
type BillingEvent struct {
	ID            string        `json:"id"`
	Kind          EntityKind    `json:"kind"`
	Reason        BillingReason `json:"reason"`
	Client        string        `json:"client"`
	Target        ResourceRef   `json:"target"`
	TargetName    string        `json:"target_name"`
	EventTime     time.Time     `json:"event_time"`
	BillingTime   time.Time     `json:"billing_time,omitzero"`
	Cost          Money         `json:"cost,omitzero"`
	PeriodYears   int           `json:"period_years,omitempty"`
	RecurrenceEnd time.Time     `json:"recurrence_end,omitzero"`
	Cancels       *EntityRef    `json:"cancels,omitempty"`
	VoidedAt      *time.Time    `json:"voided_at,omitempty"`
}

// Voided reports whether e was voided at or before t.
func (e *BillingEvent) Voided(t time.Time) bool {
	return e.VoidedAt != nil && IsBeforeOrAt(*e.VoidedAt, t)
}

// ChargeStatus is the effective state of a billing event at a read instant.
type ChargeStatus string

const (
	ChargeActive    ChargeStatus = "ACTIVE"
	ChargePending   ChargeStatus = "PENDING"
	ChargeVoided    ChargeStatus = "VOIDED"
	ChargeCancelled ChargeStatus = "CANCELLED"
	ChargeEnded     ChargeStatus = "ENDED"
)
