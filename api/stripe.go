package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"livetix/entities"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Stripe accepts checkout expiry between 30 minutes and 24 hours after creation.
const (
	minCheckoutExpiry = 30*time.Minute + time.Minute
	maxCheckoutExpiry = 24*time.Hour - time.Minute
)

type StripeClient struct {
	// we are not mocking this client: it's pointless to use interface here
	sc  *client.API
	now func() time.Time
}

func NewStripeClient(secretKey string, backends *stripe.Backends) StripeClient {
	if secretKey == "" {
		panic("stripe secret key is empty")
	}

	sc := &client.API{}
	sc.Init(secretKey, backends)

	return StripeClient{sc: sc, now: time.Now}
}

// checkoutExpiresAt keeps the session open at least until the reservation
// ends. Payments completed after the reservation ended are refunded.
func checkoutExpiresAt(reservedUntil time.Time, now time.Time) time.Time {
	earliest := now.Add(minCheckoutExpiry)
	latest := now.Add(maxCheckoutExpiry)

	switch {
	case reservedUntil.Before(earliest):
		return earliest
	case reservedUntil.After(latest):
		return latest
	default:
		return reservedUntil
	}
}

// CreateOrderCheckout opens a payment checkout for the order total. The
// session expires with the order reservation, within Stripe's allowed window.
func (c StripeClient) CreateOrderCheckout(ctx context.Context, order entities.Order, successURL, cancelURL string) (entities.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		CustomerEmail:     stripe.String(order.CustomerEmail),
		ClientReferenceID: stripe.String(order.OrderID.String()),
		ExpiresAt:         stripe.Int64(checkoutExpiresAt(order.ReservedUntil, c.now()).Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(order.Total.Currency)),
					UnitAmount: stripe.Int64(order.Total.MinorUnits()),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Tickets (%d)", order.TicketsCount())),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"order_id": order.OrderID.String()},
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", order.OrderID.String())
	params.SetIdempotencyKey("checkout-" + order.OrderID.String())

	session, err := c.sc.CheckoutSessions.New(params)
	if err != nil {
		return entities.CheckoutSession{}, fmt.Errorf("could not create checkout session for order %s: %w", order.OrderID, err)
	}

	return entities.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func (c StripeClient) CreateMembershipCheckout(
	ctx context.Context,
	membership entities.Membership,
	tier entities.MembershipTier,
	successURL, cancelURL string,
) (entities.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:    stripe.String(successURL),
		CancelURL:     stripe.String(cancelURL),
		CustomerEmail: stripe.String(membership.CustomerEmail),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(tier.StripePriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"membership_id": membership.MembershipID.String()},
		},
	}
	params.Context = ctx
	params.AddMetadata("membership_id", membership.MembershipID.String())
	params.SetIdempotencyKey("membership-" + membership.MembershipID.String())

	session, err := c.sc.CheckoutSessions.New(params)
	if err != nil {
		return entities.CheckoutSession{}, fmt.Errorf("could not create membership checkout for %s: %w", membership.MembershipID, err)
	}

	return entities.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func (c StripeClient) RefundPayment(ctx context.Context, paymentIntentID string, idempotencyKey string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	_, err := c.sc.Refunds.New(params)
	if err != nil {
		return fmt.Errorf("could not refund payment intent %s: %w", paymentIntentID, err)
	}

	return nil
}
