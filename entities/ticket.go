package entities

import (
	"time"

	"github.com/google/uuid"
)

type TicketStatus string

const (
	TicketStatusValid     TicketStatus = "valid"
	TicketStatusCheckedIn TicketStatus = "checked_in"
	TicketStatusVoid      TicketStatus = "void"
)

type Ticket struct {
	TicketID     uuid.UUID    `json:"ticket_id" db:"ticket_id"`
	TenantID     uuid.UUID    `json:"-" db:"tenant_id"`
	OrderID      uuid.UUID    `json:"order_id" db:"order_id"`
	EventID      uuid.UUID    `json:"event_id" db:"event_id"`
	TicketTypeID uuid.UUID    `json:"ticket_type_id" db:"ticket_type_id"`
	HolderEmail  string       `json:"holder_email" db:"holder_email"`
	Status       TicketStatus `json:"status" db:"status"`
	QRPayload    string       `json:"qr_payload" db:"qr_payload"`
	IssuedAt     time.Time    `json:"issued_at" db:"issued_at"`
	CheckedInAt  *time.Time   `json:"checked_in_at,omitempty" db:"checked_in_at"`
	CheckedInBy  *string      `json:"checked_in_by,omitempty" db:"checked_in_by"`
}

type ScanResult string

const (
	ScanAdmitted         ScanResult = "admitted"
	ScanAlreadyCheckedIn ScanResult = "already_checked_in"
	ScanInvalidFormat    ScanResult = "invalid_format"
	ScanInvalidSignature ScanResult = "invalid_signature"
	ScanWrongEvent       ScanResult = "wrong_event"
	ScanNotFound         ScanResult = "not_found"
	ScanVoid             ScanResult = "void"
)

type Scan struct {
	EventID   uuid.UUID
	TicketID  uuid.UUID
	DeviceID  string
	ScannedAt time.Time
}

type ScanOutcome struct {
	Result      ScanResult `json:"result"`
	TicketID    *uuid.UUID `json:"ticket_id,omitempty"`
	HolderEmail string     `json:"holder_email,omitempty"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
}

type CheckInStats struct {
	EventID   uuid.UUID `json:"event_id" db:"event_id"`
	Issued    int       `json:"issued" db:"issued"`
	CheckedIn int       `json:"checked_in" db:"checked_in"`
	Void      int       `json:"void" db:"void"`
}
