package http

import (
	"context"
	"errors"
	"sync"
	"time"

	"livetix/entities"

	"github.com/google/uuid"
)

type tenantRepoMock struct {
	tenants map[string]entities.Tenant
}

func (m *tenantRepoMock) Create(ctx context.Context, tenant entities.Tenant) error {
	if _, ok := m.tenants[tenant.Slug]; ok {
		return entities.ErrAlreadyExists
	}
	m.tenants[tenant.Slug] = tenant
	return nil
}

func (m *tenantRepoMock) BySlug(ctx context.Context, slug string) (entities.Tenant, error) {
	tenant, ok := m.tenants[slug]
	if !ok {
		return entities.Tenant{}, entities.ErrTenantNotFound
	}
	return tenant, nil
}

type orderRepoMock struct {
	lock sync.Mutex

	orders   map[string]entities.Order
	placeErr error
	sessions map[uuid.UUID]string
}

func (m *orderRepoMock) PlaceOrder(ctx context.Context, req entities.OrderRequest) (entities.Order, bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.placeErr != nil {
		return entities.Order{}, false, m.placeErr
	}
	if order, ok := m.orders[req.IdempotencyKey]; ok {
		return order, false, nil
	}

	total, _ := entities.NewMoney("49.50", "EUR")
	order := entities.Order{
		OrderID:        req.OrderID,
		TenantID:       req.TenantID,
		CustomerEmail:  req.CustomerEmail,
		Status:         entities.OrderStatusPending,
		Total:          total,
		IdempotencyKey: req.IdempotencyKey,
		ReservedUntil:  req.Now.Add(req.ReservationTTL),
		CreatedAt:      req.Now,
	}
	m.orders[req.IdempotencyKey] = order
	return order, true, nil
}

func (m *orderRepoMock) ByID(ctx context.Context, tenantID uuid.UUID, orderID uuid.UUID) (entities.Order, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	for _, order := range m.orders {
		if order.OrderID == orderID && order.TenantID == tenantID {
			return order, nil
		}
	}
	return entities.Order{}, entities.ErrNotFound
}

func (m *orderRepoMock) SetCheckoutSession(ctx context.Context, orderID uuid.UUID, sessionID string, checkoutURL string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	for key, order := range m.orders {
		if order.OrderID == orderID {
			order.StripeSessionID = sessionID
			order.CheckoutURL = checkoutURL
			m.orders[key] = order
		}
	}
	m.sessions[orderID] = sessionID
	return nil
}

type ticketRepoMock struct {
	lock sync.Mutex

	checkedIn map[uuid.UUID]time.Time
	scans     []entities.Scan
	rejected  []entities.ScanResult

	// CheckIn of this ticket fails
	broken uuid.UUID
}

func (m *ticketRepoMock) ByID(ctx context.Context, tenantID uuid.UUID, ticketID uuid.UUID) (entities.Ticket, error) {
	return entities.Ticket{}, entities.ErrNotFound
}

func (m *ticketRepoMock) ByOrder(ctx context.Context, orderID uuid.UUID) ([]entities.Ticket, error) {
	return []entities.Ticket{}, nil
}

func (m *ticketRepoMock) CheckIn(ctx context.Context, tenantID uuid.UUID, scan entities.Scan) (entities.ScanOutcome, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if scan.TicketID == m.broken {
		return entities.ScanOutcome{}, errors.New("connection reset")
	}

	m.scans = append(m.scans, scan)

	ticketID := scan.TicketID
	if at, ok := m.checkedIn[scan.TicketID]; ok {
		return entities.ScanOutcome{Result: entities.ScanAlreadyCheckedIn, TicketID: &ticketID, CheckedInAt: &at}, nil
	}

	m.checkedIn[scan.TicketID] = scan.ScannedAt
	at := scan.ScannedAt
	return entities.ScanOutcome{Result: entities.ScanAdmitted, TicketID: &ticketID, CheckedInAt: &at}, nil
}

func (m *ticketRepoMock) LogRejectedScan(ctx context.Context, tenantID uuid.UUID, scan entities.Scan, result entities.ScanResult) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.rejected = append(m.rejected, result)
	return nil
}

func (m *ticketRepoMock) Stats(ctx context.Context, tenantID uuid.UUID, eventID uuid.UUID) (entities.CheckInStats, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	return entities.CheckInStats{EventID: eventID, Issued: 10, CheckedIn: len(m.checkedIn)}, nil
}

type webhookCall struct {
	Method  string
	Webhook entities.WebhookEvent
	Ref     string
}

type webhookRepoMock struct {
	lock sync.Mutex

	processed map[string]struct{}
	calls     []webhookCall
	errs      map[string]error
}

func (m *webhookRepoMock) record(webhook entities.WebhookEvent, method string, ref string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.processed[webhook.ID]; ok {
		return entities.ErrWebhookProcessed
	}
	if err := m.errs[method]; err != nil {
		return err
	}

	m.processed[webhook.ID] = struct{}{}
	m.calls = append(m.calls, webhookCall{Method: method, Webhook: webhook, Ref: ref})
	return nil
}

func (m *webhookRepoMock) Calls() []webhookCall {
	m.lock.Lock()
	defer m.lock.Unlock()

	return append([]webhookCall(nil), m.calls...)
}

func (m *webhookRepoMock) Acknowledge(ctx context.Context, webhook entities.WebhookEvent) error {
	return m.record(webhook, "Acknowledge", "")
}

func (m *webhookRepoMock) CompleteOrderPayment(ctx context.Context, webhook entities.WebhookEvent, orderID uuid.UUID, paymentIntent string, now time.Time) error {
	return m.record(webhook, "CompleteOrderPayment", orderID.String()+"/"+paymentIntent)
}

func (m *webhookRepoMock) RefundOrderByPaymentIntent(ctx context.Context, webhook entities.WebhookEvent, paymentIntent string, now time.Time) error {
	return m.record(webhook, "RefundOrderByPaymentIntent", paymentIntent)
}

func (m *webhookRepoMock) ActivateMembership(ctx context.Context, webhook entities.WebhookEvent, membershipID uuid.UUID, subscriptionID string, customerID string) error {
	return m.record(webhook, "ActivateMembership", membershipID.String()+"/"+subscriptionID)
}

func (m *webhookRepoMock) GrantMembershipCredits(ctx context.Context, webhook entities.WebhookEvent, subscriptionID string, invoiceID string, periodEnd time.Time) error {
	return m.record(webhook, "GrantMembershipCredits", subscriptionID+"/"+invoiceID)
}

func (m *webhookRepoMock) SetMembershipStatus(ctx context.Context, webhook entities.WebhookEvent, subscriptionID string, status entities.MembershipStatus) error {
	return m.record(webhook, "SetMembershipStatus", subscriptionID+"/"+string(status))
}
