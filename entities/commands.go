package entities

import "github.com/google/uuid"

type RefundOrder struct {
	Header EventHeader `json:"header"`

	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
}

type ResendTickets struct {
	Header EventHeader `json:"header"`

	OrderID uuid.UUID `json:"order_id"`
}
