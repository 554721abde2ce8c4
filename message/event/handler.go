package event

import (
	"context"

	"livetix/entities"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/google/uuid"
)

type TicketsRepository interface {
	IssueForOrder(ctx context.Context, orderID uuid.UUID) ([]entities.Ticket, error)
	ByOrder(ctx context.Context, orderID uuid.UUID) ([]entities.Ticket, error)
}

type ReferralRepository interface {
	RecordConversion(ctx context.Context, tenantID uuid.UUID, code string, orderID uuid.UUID, customerEmail string) error
}

type EmailSender interface {
	Send(ctx context.Context, email entities.Email) error
}

type Handler struct {
	ticketsRepo   TicketsRepository
	referralsRepo ReferralRepository
	emailSender   EmailSender
}

func NewHandler(
	ticketsRepo TicketsRepository,
	referralsRepo ReferralRepository,
	emailSender EmailSender,
) Handler {
	if ticketsRepo == nil {
		panic("missing ticketsRepo")
	}
	if referralsRepo == nil {
		panic("missing referralsRepo")
	}
	if emailSender == nil {
		panic("missing emailSender")
	}

	return Handler{
		ticketsRepo:   ticketsRepo,
		referralsRepo: referralsRepo,
		emailSender:   emailSender,
	}
}

const (
	SendTicketsEmailHandlerName = "SendTicketsEmail"
	SendRefundEmailHandlerName  = "SendRefundEmail"
)

func (h Handler) Handlers() []cqrs.EventHandler {
	return []cqrs.EventHandler{
		cqrs.NewEventHandler("IssueTickets", h.IssueTickets),
		cqrs.NewEventHandler("RecordReferralConversion", h.RecordReferralConversion),
		cqrs.NewEventHandler(SendTicketsEmailHandlerName, h.SendTicketsEmail),
		cqrs.NewEventHandler(SendRefundEmailHandlerName, h.SendRefundEmail),
	}
}
