package command

import (
	"context"
	"fmt"

	"livetix/entities"
	"livetix/message/event"
	observability "livetix/trace"
)

func (h Handler) ResendTickets(ctx context.Context, cmd *entities.ResendTickets) error {
	tickets, err := h.ticketsRepo.ByOrder(ctx, cmd.OrderID)
	if err != nil {
		return fmt.Errorf("could not get tickets of order %s: %w", cmd.OrderID, err)
	}
	if len(tickets) == 0 {
		return nil
	}

	email, err := event.TicketsEmail(cmd.OrderID.String(), tickets[0].HolderEmail, tickets)
	if err != nil {
		return err
	}
	if len(email.Attachments) == 0 {
		return nil
	}

	if err := h.emailSender.Send(ctx, email); err != nil {
		return fmt.Errorf("could not resend tickets of order %s: %w", cmd.OrderID, err)
	}
	observability.EmailsSentTotal.WithLabelValues("tickets").Inc()

	return nil
}
