package event_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"livetix/entities"
	"livetix/message/event"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ticketsRepoMock struct {
	mu      sync.Mutex
	tickets map[uuid.UUID][]entities.Ticket
	issued  []uuid.UUID
}

func (m *ticketsRepoMock) IssueForOrder(_ context.Context, orderID uuid.UUID) ([]entities.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.issued = append(m.issued, orderID)
	return m.tickets[orderID], nil
}

func (m *ticketsRepoMock) ByOrder(_ context.Context, orderID uuid.UUID) ([]entities.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.tickets[orderID], nil
}

type conversion struct {
	Code    string
	OrderID uuid.UUID
}

type referralRepoMock struct {
	mu          sync.Mutex
	conversions []conversion
	err         error
}

func (m *referralRepoMock) RecordConversion(_ context.Context, _ uuid.UUID, code string, orderID uuid.UUID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.conversions = append(m.conversions, conversion{Code: code, OrderID: orderID})
	return nil
}

type emailSenderMock struct {
	mu     sync.Mutex
	emails []entities.Email
	err    error
}

func (m *emailSenderMock) Send(_ context.Context, email entities.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.emails = append(m.emails, email)
	return nil
}

func newTicket(orderID uuid.UUID, status entities.TicketStatus) entities.Ticket {
	return entities.Ticket{
		TicketID:    uuid.New(),
		OrderID:     orderID,
		EventID:     uuid.New(),
		HolderEmail: "fan@example.com",
		Status:      status,
		QRPayload:   "LTX1." + uuid.NewString(),
	}
}

func TestHandler_IssueTickets(t *testing.T) {
	tickets := &ticketsRepoMock{}
	h := event.NewHandler(tickets, &referralRepoMock{}, &emailSenderMock{})

	orderID := uuid.New()
	err := h.IssueTickets(context.Background(), &entities.OrderPaid_v1{
		Header:  entities.NewEventHeader(uuid.New()),
		OrderID: orderID,
	})
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{orderID}, tickets.issued)
}

func TestHandler_RecordReferralConversion(t *testing.T) {
	referrals := &referralRepoMock{}
	h := event.NewHandler(&ticketsRepoMock{}, referrals, &emailSenderMock{})
	ctx := context.Background()

	err := h.RecordReferralConversion(ctx, &entities.OrderPaid_v1{
		Header:  entities.NewEventHeader(uuid.New()),
		OrderID: uuid.New(),
	})
	require.NoError(t, err)
	assert.Empty(t, referrals.conversions)

	orderID := uuid.New()
	err = h.RecordReferralConversion(ctx, &entities.OrderPaid_v1{
		Header:       entities.NewEventHeader(uuid.New()),
		OrderID:      orderID,
		ReferralCode: "ABCD1234",
	})
	require.NoError(t, err)
	assert.Equal(t, []conversion{{Code: "ABCD1234", OrderID: orderID}}, referrals.conversions)

	referrals.err = entities.PermanentError{Err: entities.ErrNotFound}
	err = h.RecordReferralConversion(ctx, &entities.OrderPaid_v1{
		Header:       entities.NewEventHeader(uuid.New()),
		OrderID:      uuid.New(),
		ReferralCode: "GONE0000",
	})
	var permanent entities.PermanentError
	assert.ErrorAs(t, err, &permanent)
}

func TestHandler_SendTicketsEmail(t *testing.T) {
	orderID := uuid.New()
	tickets := &ticketsRepoMock{tickets: map[uuid.UUID][]entities.Ticket{
		orderID: {
			newTicket(orderID, entities.TicketStatusValid),
			newTicket(orderID, entities.TicketStatusVoid),
			newTicket(orderID, entities.TicketStatusValid),
		},
	}}
	emails := &emailSenderMock{}
	h := event.NewHandler(tickets, &referralRepoMock{}, emails)

	err := h.SendTicketsEmail(context.Background(), &entities.TicketsIssued_v1{
		Header:        entities.NewEventHeader(uuid.New()),
		OrderID:       orderID,
		CustomerEmail: "fan@example.com",
	})
	require.NoError(t, err)

	require.Len(t, emails.emails, 1)
	email := emails.emails[0]
	assert.Equal(t, "fan@example.com", email.To)
	assert.Equal(t, orderID.String(), email.Tags["order_id"])
	require.Len(t, email.Attachments, 2)
	for _, attachment := range email.Attachments {
		assert.Equal(t, "image/png", attachment.ContentType)
		assert.NotEmpty(t, attachment.Content)
	}
}

func TestHandler_SendTicketsEmail_no_valid_tickets(t *testing.T) {
	orderID := uuid.New()
	tickets := &ticketsRepoMock{tickets: map[uuid.UUID][]entities.Ticket{
		orderID: {newTicket(orderID, entities.TicketStatusVoid)},
	}}
	emails := &emailSenderMock{}
	h := event.NewHandler(tickets, &referralRepoMock{}, emails)

	err := h.SendTicketsEmail(context.Background(), &entities.TicketsIssued_v1{
		Header:        entities.NewEventHeader(uuid.New()),
		OrderID:       orderID,
		CustomerEmail: "fan@example.com",
	})
	require.NoError(t, err)
	assert.Empty(t, emails.emails)
}

func TestHandler_SendRefundEmail(t *testing.T) {
	emails := &emailSenderMock{}
	h := event.NewHandler(&ticketsRepoMock{}, &referralRepoMock{}, emails)

	total, err := entities.NewMoney("25.5", "eur")
	require.NoError(t, err)

	orderID := uuid.New()
	err = h.SendRefundEmail(context.Background(), &entities.OrderRefunded_v1{
		Header:          entities.NewEventHeader(uuid.New()),
		OrderID:         orderID,
		CustomerEmail:   "fan@example.com",
		Total:           total,
		CreditsRestored: 2,
	})
	require.NoError(t, err)

	require.Len(t, emails.emails, 1)
	assert.Contains(t, emails.emails[0].HTML, "25.50 EUR")
	assert.Contains(t, emails.emails[0].HTML, "2 credit(s)")

	emails.err = errors.New("provider down")
	err = h.SendRefundEmail(context.Background(), &entities.OrderRefunded_v1{
		Header:  entities.NewEventHeader(uuid.New()),
		OrderID: orderID,
		Total:   total,
	})
	assert.Error(t, err)
}
