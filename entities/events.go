package entities

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventHeader struct {
	ID             string    `json:"id"`
	PublishedAt    time.Time `json:"published_at"`
	IdempotencyKey string    `json:"idempotency_key"`
	TenantID       uuid.UUID `json:"tenant_id"`
}

func NewEventHeader(tenantID uuid.UUID) EventHeader {
	return EventHeader{
		ID:             uuid.NewString(),
		PublishedAt:    time.Now().UTC(),
		IdempotencyKey: uuid.NewString(),
		TenantID:       tenantID,
	}
}

func NewEventHeaderWithIdempotencyKey(tenantID uuid.UUID, idempotencyKey string) EventHeader {
	return EventHeader{
		ID:             uuid.NewString(),
		PublishedAt:    time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
		TenantID:       tenantID,
	}
}

type IEvent interface {
	IsInternal() bool
}

type OrderPlaced_v1 struct {
	Header EventHeader `json:"header"`

	OrderID       uuid.UUID `json:"order_id"`
	CustomerEmail string    `json:"customer_email"`
	Total         Money     `json:"total"`
	CreditsUsed   int       `json:"credits_used"`
	ReservedUntil time.Time `json:"reserved_until"`
}

func (OrderPlaced_v1) IsInternal() bool { return false }

type OrderPaid_v1 struct {
	Header EventHeader `json:"header"`

	OrderID       uuid.UUID `json:"order_id"`
	CustomerEmail string    `json:"customer_email"`
	Total         Money     `json:"total"`
	ReferralCode  string    `json:"referral_code,omitempty"`
}

func (OrderPaid_v1) IsInternal() bool { return false }

type OrderExpired_v1 struct {
	Header EventHeader `json:"header"`

	OrderID         uuid.UUID `json:"order_id"`
	CreditsRestored int       `json:"credits_restored"`
}

func (OrderExpired_v1) IsInternal() bool { return false }

type OrderRefunded_v1 struct {
	Header EventHeader `json:"header"`

	OrderID         uuid.UUID `json:"order_id"`
	CustomerEmail   string    `json:"customer_email"`
	Total           Money     `json:"total"`
	CreditsRestored int       `json:"credits_restored"`
	VoidedTickets   int       `json:"voided_tickets"`
}

func (OrderRefunded_v1) IsInternal() bool { return false }

type TicketsIssued_v1 struct {
	Header EventHeader `json:"header"`

	OrderID       uuid.UUID   `json:"order_id"`
	CustomerEmail string      `json:"customer_email"`
	TicketIDs     []uuid.UUID `json:"ticket_ids"`
}

func (TicketsIssued_v1) IsInternal() bool { return false }

type TicketCheckedIn_v1 struct {
	Header EventHeader `json:"header"`

	TicketID    uuid.UUID `json:"ticket_id"`
	EventID     uuid.UUID `json:"event_id"`
	DeviceID    string    `json:"device_id"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

func (TicketCheckedIn_v1) IsInternal() bool { return false }

type MembershipActivated_v1 struct {
	Header EventHeader `json:"header"`

	MembershipID  uuid.UUID `json:"membership_id"`
	TierID        uuid.UUID `json:"tier_id"`
	CustomerEmail string    `json:"customer_email"`
}

func (MembershipActivated_v1) IsInternal() bool { return false }

type MembershipCreditsGranted_v1 struct {
	Header EventHeader `json:"header"`

	MembershipID  uuid.UUID `json:"membership_id"`
	CustomerEmail string    `json:"customer_email"`
	Credits       int       `json:"credits"`
	InvoiceID     string    `json:"invoice_id"`
}

func (MembershipCreditsGranted_v1) IsInternal() bool { return false }

type MembershipCancelled_v1 struct {
	Header EventHeader `json:"header"`

	MembershipID  uuid.UUID `json:"membership_id"`
	CustomerEmail string    `json:"customer_email"`
}

func (MembershipCancelled_v1) IsInternal() bool { return false }

type ReferralRewarded_v1 struct {
	Header EventHeader `json:"header"`

	Code          string    `json:"code"`
	OrderID       uuid.UUID `json:"order_id"`
	OwnerEmail    string    `json:"owner_email"`
	RewardCredits int       `json:"reward_credits"`
}

func (ReferralRewarded_v1) IsInternal() bool { return false }

// DataLakeEvent is the raw form every published event is archived in.
type DataLakeEvent struct {
	EventID      string          `db:"event_id"`
	PublishedAt  time.Time       `db:"published_at"`
	EventName    string          `db:"event_name"`
	EventPayload json.RawMessage `db:"event_payload"`
}
