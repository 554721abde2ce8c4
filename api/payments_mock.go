package api

import (
	"context"
	"fmt"
	"sync"

	"livetix/entities"
)

type StripeMock struct {
	lock sync.Mutex

	OrderCheckouts      []entities.Order
	MembershipCheckouts []entities.Membership
	Refunds             map[string]string
	Err                 error
}

func (m *StripeMock) CreateOrderCheckout(ctx context.Context, order entities.Order, successURL, cancelURL string) (entities.CheckoutSession, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.Err != nil {
		return entities.CheckoutSession{}, m.Err
	}

	m.OrderCheckouts = append(m.OrderCheckouts, order)
	return entities.CheckoutSession{
		ID:  "cs_test_" + order.OrderID.String(),
		URL: fmt.Sprintf("https://checkout.stripe.test/%s", order.OrderID),
	}, nil
}

func (m *StripeMock) CreateMembershipCheckout(
	ctx context.Context,
	membership entities.Membership,
	tier entities.MembershipTier,
	successURL, cancelURL string,
) (entities.CheckoutSession, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.Err != nil {
		return entities.CheckoutSession{}, m.Err
	}

	m.MembershipCheckouts = append(m.MembershipCheckouts, membership)
	return entities.CheckoutSession{
		ID:  "cs_test_" + membership.MembershipID.String(),
		URL: fmt.Sprintf("https://checkout.stripe.test/%s", membership.MembershipID),
	}, nil
}

// RefundPayment records refunds by idempotency key, like the real API.
func (m *StripeMock) RefundPayment(ctx context.Context, paymentIntentID string, idempotencyKey string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.Err != nil {
		return m.Err
	}

	if m.Refunds == nil {
		m.Refunds = map[string]string{}
	}
	m.Refunds[idempotencyKey] = paymentIntentID
	return nil
}

func (m *StripeMock) RefundsCount() int {
	m.lock.Lock()
	defer m.lock.Unlock()

	return len(m.Refunds)
}

func (m *StripeMock) Refund(idempotencyKey string) (string, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	paymentIntentID, ok := m.Refunds[idempotencyKey]
	return paymentIntentID, ok
}
