package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"livetix/entities"
	observability "livetix/trace"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBodyBytes   = 65536
)

// PostStripeWebhook applies Stripe notifications. Each Stripe event is applied
// at most once; redeliveries are acknowledged without side effects.
func (h Handler) PostStripeWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBodyBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read body")
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		c.Request().Header.Get(stripeSignatureHeader),
		h.stripeWebhookKey,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		observability.WebhooksTotal.WithLabelValues("unknown", "invalid_signature").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, "invalid signature")
	}

	ctx := c.Request().Context()
	logger := log.FromContext(ctx).WithField("stripe_event_id", event.ID).WithField("stripe_event_type", event.Type)
	wh := entities.WebhookEvent{ID: event.ID, Type: string(event.Type)}

	err = h.applyWebhook(ctx, wh, event)
	switch {
	case errors.Is(err, entities.ErrWebhookProcessed):
		observability.WebhooksTotal.WithLabelValues(wh.Type, "duplicate").Inc()
		logger.Debug("Stripe event already processed")
		return c.NoContent(http.StatusOK)
	case errors.Is(err, errRetryLater):
		observability.WebhooksTotal.WithLabelValues(wh.Type, "retry").Inc()
		logger.WithError(err).Info("Stripe event can't be applied yet")
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case err != nil:
		observability.WebhooksTotal.WithLabelValues(wh.Type, "failed").Inc()
		return fmt.Errorf("failed to apply stripe event %s: %w", event.ID, err)
	}

	observability.WebhooksTotal.WithLabelValues(wh.Type, "applied").Inc()
	logger.Info("Stripe event applied")

	return c.NoContent(http.StatusOK)
}

// errRetryLater makes Stripe redeliver an event that arrived before the one it depends on.
var errRetryLater = errors.New("related object not known yet")

func (h Handler) applyWebhook(ctx context.Context, wh entities.WebhookEvent, event stripe.Event) error {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return fmt.Errorf("could not unmarshal checkout session: %w", err)
		}
		if session.Mode == stripe.CheckoutSessionModeSubscription {
			return h.onSubscriptionCheckoutCompleted(ctx, wh, session)
		}
		return h.onPaymentCheckoutCompleted(ctx, wh, session)

	case stripe.EventTypeInvoicePaid:
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return fmt.Errorf("could not unmarshal invoice: %w", err)
		}
		if invoice.Subscription == nil {
			return h.webhookRepo.Acknowledge(ctx, wh)
		}

		err := h.webhookRepo.GrantMembershipCredits(ctx, wh, invoice.Subscription.ID, invoice.ID, invoicePeriodEnd(invoice))
		if errors.Is(err, entities.ErrNotFound) {
			// checkout.session.completed for this subscription has not been applied yet
			return errRetryLater
		}
		return err

	case stripe.EventTypeInvoicePaymentFailed:
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return fmt.Errorf("could not unmarshal invoice: %w", err)
		}
		if invoice.Subscription == nil {
			return h.webhookRepo.Acknowledge(ctx, wh)
		}
		return h.ackNotFound(ctx, wh, h.webhookRepo.SetMembershipStatus(ctx, wh, invoice.Subscription.ID, entities.MembershipPastDue))

	case stripe.EventTypeCustomerSubscriptionDeleted:
		var subscription stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
			return fmt.Errorf("could not unmarshal subscription: %w", err)
		}
		return h.ackNotFound(ctx, wh, h.webhookRepo.SetMembershipStatus(ctx, wh, subscription.ID, entities.MembershipCancelled))

	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return fmt.Errorf("could not unmarshal charge: %w", err)
		}
		// partial refunds don't void tickets
		if !charge.Refunded || charge.PaymentIntent == nil {
			return h.webhookRepo.Acknowledge(ctx, wh)
		}
		return h.ackNotFound(ctx, wh, h.webhookRepo.RefundOrderByPaymentIntent(ctx, wh, charge.PaymentIntent.ID, h.clock.Now()))

	default:
		return h.webhookRepo.Acknowledge(ctx, wh)
	}
}

func (h Handler) onPaymentCheckoutCompleted(ctx context.Context, wh entities.WebhookEvent, session stripe.CheckoutSession) error {
	orderID, err := uuid.Parse(session.Metadata["order_id"])
	if err != nil {
		orderID, err = uuid.Parse(session.ClientReferenceID)
	}
	if err != nil || session.PaymentIntent == nil {
		log.FromContext(ctx).WithField("session_id", session.ID).Warn("Checkout session without order, ignoring")
		return h.webhookRepo.Acknowledge(ctx, wh)
	}
	paymentIntent := session.PaymentIntent.ID

	err = h.webhookRepo.CompleteOrderPayment(ctx, wh, orderID, paymentIntent, h.clock.Now())
	if !errors.Is(err, entities.ErrOrderExpired) {
		return h.ackNotFound(ctx, wh, err)
	}

	// paid after the reservation was released, the tickets may be gone
	log.FromContext(ctx).WithField("order_id", orderID).Warn("Payment for expired order, refunding")
	if err := h.payments.RefundPayment(ctx, paymentIntent, "late-"+orderID.String()); err != nil {
		return fmt.Errorf("could not refund late payment: %w", err)
	}

	return h.webhookRepo.Acknowledge(ctx, wh)
}

func (h Handler) onSubscriptionCheckoutCompleted(ctx context.Context, wh entities.WebhookEvent, session stripe.CheckoutSession) error {
	membershipID, err := uuid.Parse(session.Metadata["membership_id"])
	if err != nil || session.Subscription == nil {
		log.FromContext(ctx).WithField("session_id", session.ID).Warn("Subscription checkout without membership, ignoring")
		return h.webhookRepo.Acknowledge(ctx, wh)
	}

	var customerID string
	if session.Customer != nil {
		customerID = session.Customer.ID
	}

	return h.ackNotFound(ctx, wh, h.webhookRepo.ActivateMembership(ctx, wh, membershipID, session.Subscription.ID, customerID))
}

// ackNotFound records events about objects this tenant setup doesn't know,
// so Stripe stops redelivering them.
func (h Handler) ackNotFound(ctx context.Context, wh entities.WebhookEvent, err error) error {
	if errors.Is(err, entities.ErrNotFound) || errors.Is(err, entities.ErrOrderNotRefundable) {
		log.FromContext(ctx).WithError(err).Warn("Stripe event refers to unknown or final object, acknowledging")
		return h.webhookRepo.Acknowledge(ctx, wh)
	}
	return err
}

func invoicePeriodEnd(invoice stripe.Invoice) time.Time {
	if invoice.Lines != nil {
		for _, line := range invoice.Lines.Data {
			if line.Period != nil && line.Period.End > 0 {
				return time.Unix(line.Period.End, 0).UTC()
			}
		}
	}
	return time.Unix(invoice.PeriodEnd, 0).UTC()
}
