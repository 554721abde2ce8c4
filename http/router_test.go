package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"livetix/api"
	"livetix/clock"
	"livetix/entities"
	"livetix/message/command"
	"livetix/ticketqr"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAdminToken    = "admin-token"
	testStaffToken    = "staff-token"
	testWebhookSecret = "whsec_test"
	testTenantSlug    = "acme"
)

type testRouter struct {
	e       *echo.Echo
	tenant  entities.Tenant
	orders  *orderRepoMock
	tickets *ticketRepoMock
	hooks   *webhookRepoMock
	stripe  *api.StripeMock
	signer  ticketqr.Signer
	pubSub  *gochannel.GoChannel
	clock   *clock.Manual
}

func newTestRouter(t *testing.T) testRouter {
	t.Helper()

	tenant := entities.Tenant{TenantID: uuid.New(), Slug: testTenantSlug, Name: "Acme Live"}
	pubSub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })

	tr := testRouter{
		tenant:  tenant,
		orders:  &orderRepoMock{orders: map[string]entities.Order{}, sessions: map[uuid.UUID]string{}},
		tickets: &ticketRepoMock{checkedIn: map[uuid.UUID]time.Time{}},
		hooks:   &webhookRepoMock{processed: map[string]struct{}{}, errs: map[string]error{}},
		stripe:  &api.StripeMock{},
		signer:  ticketqr.NewSigner("qr-secret"),
		pubSub:  pubSub,
		clock:   clock.NewManual(time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)),
	}

	tr.e = NewHttpRouter(RouterDeps{
		CommandBus:       command.NewBus(pubSub),
		TenantRepo:       &tenantRepoMock{tenants: map[string]entities.Tenant{tenant.Slug: tenant}},
		OrderRepo:        tr.orders,
		TicketRepo:       tr.tickets,
		WebhookRepo:      tr.hooks,
		Payments:         tr.stripe,
		QRCodec:          tr.signer,
		Clock:            tr.clock,
		PublicBaseURL:    "https://tix.example.com",
		ReservationTTL:   15 * time.Minute,
		StripeWebhookKey: testWebhookSecret,
		AdminToken:       testAdminToken,
		StaffToken:       testStaffToken,
	})

	return tr
}

func (tr testRouter) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(tenantHeader, testTenantSlug)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	tr.e.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) map[string]string {
	return map[string]string{echo.HeaderAuthorization: "Bearer " + token}
}

func TestHealth(t *testing.T) {
	tr := newTestRouter(t)

	rec := tr.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTenantResolution(t *testing.T) {
	tr := newTestRouter(t)

	rec := tr.do(t, http.MethodGet, "/orders/"+uuid.NewString(), nil, map[string]string{tenantHeader: "unknown"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = tr.do(t, http.MethodGet, "/orders/"+uuid.NewString(), nil, map[string]string{tenantHeader: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuth(t *testing.T) {
	tr := newTestRouter(t)
	eventID := uuid.New()

	rec := tr.do(t, http.MethodGet, "/staff/events/"+eventID.String()+"/stats", nil, bearer("wrong"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = tr.do(t, http.MethodGet, "/staff/events/"+eventID.String()+"/stats", nil, bearer(testStaffToken))
	assert.Equal(t, http.StatusOK, rec.Code)

	// the admin token opens staff routes too
	rec = tr.do(t, http.MethodGet, "/staff/events/"+eventID.String()+"/stats", nil, bearer(testAdminToken))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = tr.do(t, http.MethodPut, "/admin/orders/"+uuid.NewString()+"/refund", nil, bearer(testStaffToken))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPostOrder(t *testing.T) {
	tr := newTestRouter(t)

	body := orderRequest{
		CustomerEmail: "Fan@Example.com",
		Items:         []entities.OrderRequestItem{{TicketTypeID: uuid.New(), Quantity: 2}},
	}

	rec := tr.do(t, http.MethodPost, "/orders", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "idempotency key is required")

	headers := map[string]string{idempotencyKeyHeader: "key-1"}

	rec = tr.do(t, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var order entities.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, "fan@example.com", order.CustomerEmail)
	assert.Equal(t, fmt.Sprintf("https://checkout.stripe.test/%s", order.OrderID), order.CheckoutURL)
	assert.True(t, tr.clock.Now().Add(15*time.Minute).Equal(order.ReservedUntil))
	assert.Len(t, tr.stripe.OrderCheckouts, 1)

	rec = tr.do(t, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	var retried entities.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &retried))
	assert.Equal(t, order.OrderID, retried.OrderID)
	assert.Len(t, tr.stripe.OrderCheckouts, 1, "retry must not create another checkout")
}

func TestPostOrder_domain_errors(t *testing.T) {
	tr := newTestRouter(t)
	tr.orders.placeErr = entities.ErrSoldOut

	rec := tr.do(t, http.MethodPost, "/orders", orderRequest{
		CustomerEmail: "fan@example.com",
		Items:         []entities.OrderRequestItem{{TicketTypeID: uuid.New(), Quantity: 1}},
	}, map[string]string{idempotencyKeyHeader: "key-1"})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPutOrderRefund(t *testing.T) {
	tr := newTestRouter(t)

	messages, err := tr.pubSub.Subscribe(context.Background(), command.Topic("RefundOrder"))
	require.NoError(t, err)

	order, _, err := tr.orders.PlaceOrder(context.Background(), entities.OrderRequest{
		OrderID:        uuid.New(),
		TenantID:       tr.tenant.TenantID,
		CustomerEmail:  "fan@example.com",
		IdempotencyKey: "key-1",
		Now:            tr.clock.Now(),
	})
	require.NoError(t, err)

	rec := tr.do(t, http.MethodPut, "/admin/orders/"+uuid.NewString()+"/refund", nil, bearer(testAdminToken))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = tr.do(t, http.MethodPut, "/admin/orders/"+order.OrderID.String()+"/refund", refundRequest{Reason: "show cancelled"}, bearer(testAdminToken))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	select {
	case msg := <-messages:
		var cmd entities.RefundOrder
		require.NoError(t, json.Unmarshal(msg.Payload, &cmd))
		assert.Equal(t, order.OrderID, cmd.OrderID)
		assert.Equal(t, "show cancelled", cmd.Reason)
		assert.Equal(t, "refund-"+order.OrderID.String(), cmd.Header.IdempotencyKey)
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("RefundOrder command was not sent")
	}
}

func TestPostScan(t *testing.T) {
	tr := newTestRouter(t)

	eventID := uuid.New()
	ticketID := uuid.New()
	path := "/staff/events/" + eventID.String() + "/scan"

	testCases := []struct {
		name     string
		qr       string
		expected entities.ScanResult
	}{
		{name: "admitted", qr: tr.signer.Encode(ticketID, eventID), expected: entities.ScanAdmitted},
		{name: "second_scan", qr: tr.signer.Encode(ticketID, eventID), expected: entities.ScanAlreadyCheckedIn},
		{name: "garbage", qr: "not-a-ticket", expected: entities.ScanInvalidFormat},
		{name: "forged", qr: ticketqr.NewSigner("other-secret").Encode(ticketID, eventID), expected: entities.ScanInvalidSignature},
		{name: "other_event", qr: tr.signer.Encode(uuid.New(), uuid.New()), expected: entities.ScanWrongEvent},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := tr.do(t, http.MethodPost, path, scanRequest{QR: tc.qr, DeviceID: "gate-1"}, bearer(testStaffToken))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var outcome entities.ScanOutcome
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
			assert.Equal(t, tc.expected, outcome.Result)
		})
	}

	assert.Equal(t,
		[]entities.ScanResult{entities.ScanInvalidFormat, entities.ScanInvalidSignature, entities.ScanWrongEvent},
		tr.tickets.rejected,
	)
}

func TestPostScanBatch_replays_in_scan_order(t *testing.T) {
	tr := newTestRouter(t)

	eventID := uuid.New()
	ticketID := uuid.New()
	qr := tr.signer.Encode(ticketID, eventID)

	first := time.Date(2026, 6, 1, 19, 0, 0, 0, time.UTC)
	second := first.Add(time.Minute)

	rec := tr.do(t, http.MethodPost, "/staff/events/"+eventID.String()+"/scan/batch", batchScanRequest{
		Scans: []scanRequest{
			{QR: qr, DeviceID: "gate-2", ScannedAt: &second},
			{QR: qr, DeviceID: "gate-1", ScannedAt: &first},
		},
	}, bearer(testStaffToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var results []batchScanResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 2)

	assert.Equal(t, entities.ScanAdmitted, results[0].Result)
	require.NotNil(t, results[0].CheckedInAt)
	assert.True(t, first.Equal(*results[0].CheckedInAt))

	assert.Equal(t, entities.ScanAlreadyCheckedIn, results[1].Result)
	assert.Equal(t, "gate-1", tr.tickets.scans[0].DeviceID)
}

func TestPostScanBatch_requires_scanned_at(t *testing.T) {
	tr := newTestRouter(t)
	eventID := uuid.New()

	rec := tr.do(t, http.MethodPost, "/staff/events/"+eventID.String()+"/scan/batch", batchScanRequest{
		Scans: []scanRequest{{QR: tr.signer.Encode(uuid.New(), eventID), DeviceID: "gate-1"}},
	}, bearer(testStaffToken))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, tr.tickets.scans)
}

func TestPostScanBatch_reports_scans_replayed_before_a_failure(t *testing.T) {
	tr := newTestRouter(t)

	eventID := uuid.New()
	tr.tickets.broken = uuid.New()

	first := time.Date(2026, 6, 1, 19, 0, 0, 0, time.UTC)
	second := first.Add(time.Minute)
	third := second.Add(time.Minute)

	admittedQR := tr.signer.Encode(uuid.New(), eventID)
	brokenQR := tr.signer.Encode(tr.tickets.broken, eventID)
	pendingQR := tr.signer.Encode(uuid.New(), eventID)

	rec := tr.do(t, http.MethodPost, "/staff/events/"+eventID.String()+"/scan/batch", batchScanRequest{
		Scans: []scanRequest{
			{QR: pendingQR, DeviceID: "gate-1", ScannedAt: &third},
			{QR: admittedQR, DeviceID: "gate-1", ScannedAt: &first},
			{QR: brokenQR, DeviceID: "gate-1", ScannedAt: &second},
		},
	}, bearer(testStaffToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var results []batchScanResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 3)

	assert.Equal(t, admittedQR, results[0].QR)
	assert.Equal(t, entities.ScanAdmitted, results[0].Result)
	assert.Empty(t, results[0].Error)

	assert.Equal(t, brokenQR, results[1].QR)
	assert.Equal(t, batchScanFailed, results[1].Error)
	assert.Empty(t, results[1].Result)

	assert.Equal(t, pendingQR, results[2].QR)
	assert.Equal(t, batchScanNotReplayed, results[2].Error)

	// nothing after the failure was checked in
	require.Len(t, tr.tickets.scans, 1)
	assert.True(t, first.Equal(tr.tickets.scans[0].ScannedAt))
}

func TestStaffRoutes_reject_oversized_bodies(t *testing.T) {
	tr := newTestRouter(t)
	eventID := uuid.New()

	scannedAt := time.Date(2026, 6, 1, 19, 0, 0, 0, time.UTC)
	rec := tr.do(t, http.MethodPost, "/staff/events/"+eventID.String()+"/scan/batch", batchScanRequest{
		Scans: []scanRequest{{
			QR:        tr.signer.Encode(uuid.New(), eventID),
			DeviceID:  strings.Repeat("x", 600*1024),
			ScannedAt: &scannedAt,
		}},
	}, bearer(testStaffToken))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, tr.tickets.scans)
}
