package event

import (
	"context"
	"fmt"

	"livetix/entities"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
)

func (h Handler) IssueTickets(ctx context.Context, event *entities.OrderPaid_v1) error {
	log.FromContext(ctx).WithField("order_id", event.OrderID).Info("Issuing tickets")

	tickets, err := h.ticketsRepo.IssueForOrder(ctx, event.OrderID)
	if err != nil {
		return fmt.Errorf("could not issue tickets for order %s: %w", event.OrderID, err)
	}

	log.FromContext(ctx).WithField("tickets", len(tickets)).Debug("Tickets issued")

	return nil
}
