package command

import (
	"context"
	"time"

	"livetix/entities"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/google/uuid"
)

type PaymentsService interface {
	RefundPayment(ctx context.Context, paymentIntentID string, idempotencyKey string) error
}

type OrdersRepository interface {
	OrderForRefund(ctx context.Context, orderID uuid.UUID) (entities.Order, error)
	MarkRefunded(ctx context.Context, orderID uuid.UUID, now time.Time) error
}

type TicketsRepository interface {
	ByOrder(ctx context.Context, orderID uuid.UUID) ([]entities.Ticket, error)
}

type EmailSender interface {
	Send(ctx context.Context, email entities.Email) error
}

type Handler struct {
	payments    PaymentsService
	ordersRepo  OrdersRepository
	ticketsRepo TicketsRepository
	emailSender EmailSender
	now         func() time.Time
}

func NewHandler(
	payments PaymentsService,
	ordersRepo OrdersRepository,
	ticketsRepo TicketsRepository,
	emailSender EmailSender,
	now func() time.Time,
) Handler {
	if payments == nil {
		panic("payments is required")
	}
	if ordersRepo == nil {
		panic("ordersRepo is required")
	}
	if ticketsRepo == nil {
		panic("ticketsRepo is required")
	}
	if emailSender == nil {
		panic("emailSender is required")
	}
	if now == nil {
		now = time.Now
	}

	return Handler{
		payments:    payments,
		ordersRepo:  ordersRepo,
		ticketsRepo: ticketsRepo,
		emailSender: emailSender,
		now:         now,
	}
}

func (h Handler) Handlers() []cqrs.CommandHandler {
	return []cqrs.CommandHandler{
		cqrs.NewCommandHandler("RefundOrder", h.RefundOrder),
		cqrs.NewCommandHandler("ResendTickets", h.ResendTickets),
	}
}
