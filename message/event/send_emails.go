package event

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"livetix/entities"
	"livetix/ticketqr"
	observability "livetix/trace"

	"github.com/samber/lo"
)

var ticketsEmailTemplate = template.Must(template.New("tickets").Parse(`<p>Thanks for your order!</p>
<p>Your tickets for order {{.OrderID}} are attached. Show the QR code at the entrance.</p>
<ul>{{range .Tickets}}<li>{{.TicketID}}</li>{{end}}</ul>`))

var refundEmailTemplate = template.Must(template.New("refund").Parse(`<p>Your order {{.OrderID}} was refunded.</p>
<p>Amount: {{.Total}}.{{if .CreditsRestored}} {{.CreditsRestored}} credit(s) were returned to your balance.{{end}}</p>`))

func (h Handler) SendTicketsEmail(ctx context.Context, event *entities.TicketsIssued_v1) error {
	tickets, err := h.ticketsRepo.ByOrder(ctx, event.OrderID)
	if err != nil {
		return fmt.Errorf("could not get tickets of order %s: %w", event.OrderID, err)
	}

	email, err := TicketsEmail(event.OrderID.String(), event.CustomerEmail, tickets)
	if err != nil {
		return err
	}
	if len(email.Attachments) == 0 {
		return nil
	}

	if err := h.emailSender.Send(ctx, email); err != nil {
		return fmt.Errorf("could not send tickets email: %w", err)
	}
	observability.EmailsSentTotal.WithLabelValues("tickets").Inc()

	return nil
}

// TicketsEmail builds the email delivering tickets, one QR code image per valid ticket.
func TicketsEmail(orderID string, to string, tickets []entities.Ticket) (entities.Email, error) {
	valid := lo.Filter(tickets, func(t entities.Ticket, _ int) bool {
		return t.Status == entities.TicketStatusValid
	})

	attachments := make([]entities.EmailAttachment, 0, len(valid))
	for i, ticket := range valid {
		png, err := ticketqr.PNG(ticket.QRPayload, ticketqr.DefaultImageSize)
		if err != nil {
			return entities.Email{}, entities.PermanentError{Err: err}
		}
		attachments = append(attachments, entities.EmailAttachment{
			Filename:    fmt.Sprintf("ticket-%d.png", i+1),
			ContentType: "image/png",
			Content:     png,
		})
	}

	var body strings.Builder
	err := ticketsEmailTemplate.Execute(&body, map[string]any{
		"OrderID": orderID,
		"Tickets": valid,
	})
	if err != nil {
		return entities.Email{}, fmt.Errorf("could not render tickets email: %w", err)
	}

	return entities.Email{
		To:          to,
		Subject:     "Your tickets",
		HTML:        body.String(),
		Attachments: attachments,
		Tags:        map[string]string{"order_id": orderID, "kind": "tickets"},
	}, nil
}

func (h Handler) SendRefundEmail(ctx context.Context, event *entities.OrderRefunded_v1) error {
	var body strings.Builder
	err := refundEmailTemplate.Execute(&body, map[string]any{
		"OrderID":         event.OrderID,
		"Total":           event.Total.String(),
		"CreditsRestored": event.CreditsRestored,
	})
	if err != nil {
		return fmt.Errorf("could not render refund email: %w", err)
	}

	err = h.emailSender.Send(ctx, entities.Email{
		To:      event.CustomerEmail,
		Subject: "Your order was refunded",
		HTML:    body.String(),
		Tags:    map[string]string{"order_id": event.OrderID.String(), "kind": "refund"},
	})
	if err != nil {
		return fmt.Errorf("could not send refund email: %w", err)
	}
	observability.EmailsSentTotal.WithLabelValues("refund").Inc()

	return nil
}
