package http

import (
	"fmt"
	"net/http"
	"strings"

	"livetix/entities"
	observability "livetix/trace"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const idempotencyKeyHeader = "Idempotency-Key"

type orderRequest struct {
	CustomerEmail string                      `json:"customer_email"`
	Items         []entities.OrderRequestItem `json:"items"`
	UseCredits    int                         `json:"use_credits"`
	ReferralCode  string                      `json:"referral_code"`
}

type orderResponse struct {
	entities.Order
	Tickets []entities.Ticket `json:"tickets,omitempty"`
}

func (h Handler) PostOrder(c echo.Context) error {
	idempotencyKey := c.Request().Header.Get(idempotencyKeyHeader)
	if idempotencyKey == "" {
		return echo.NewHTTPError(http.StatusBadRequest, idempotencyKeyHeader+" header is required")
	}

	var req orderRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if !strings.Contains(req.CustomerEmail, "@") {
		return echo.NewHTTPError(http.StatusBadRequest, "customer_email is invalid")
	}
	if len(req.Items) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one item is required")
	}

	ctx := c.Request().Context()

	order, created, err := h.orderRepo.PlaceOrder(ctx, entities.OrderRequest{
		OrderID:        uuid.New(),
		TenantID:       tenantFrom(c).TenantID,
		CustomerEmail:  strings.ToLower(strings.TrimSpace(req.CustomerEmail)),
		Items:          req.Items,
		UseCredits:     req.UseCredits,
		ReferralCode:   req.ReferralCode,
		IdempotencyKey: idempotencyKey,
		Now:            h.clock.Now(),
		ReservationTTL: h.reservationTTL,
	})
	if err != nil {
		return httpError(err)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		observability.OrdersTotal.WithLabelValues(string(order.Status)).Inc()
	}

	if order.Status != entities.OrderStatusPending || order.CheckoutURL != "" {
		return c.JSON(status, order)
	}

	// a retry may land here too when the first request failed talking to Stripe
	session, err := h.payments.CreateOrderCheckout(
		ctx,
		order,
		h.orderURL(order.OrderID, "success"),
		h.orderURL(order.OrderID, "cancelled"),
	)
	if err != nil {
		return fmt.Errorf("failed to create checkout session: %w", err)
	}

	if err := h.orderRepo.SetCheckoutSession(ctx, order.OrderID, session.ID, session.URL); err != nil {
		return httpError(err)
	}
	order.StripeSessionID = session.ID
	order.CheckoutURL = session.URL

	log.FromContext(ctx).WithField("order_id", order.OrderID).Info("Checkout session created")

	return c.JSON(status, order)
}

func (h Handler) orderURL(orderID uuid.UUID, checkout string) string {
	return fmt.Sprintf("%s/orders/%s?checkout=%s", strings.TrimRight(h.publicBaseURL, "/"), orderID, checkout)
}

func (h Handler) GetOrder(c echo.Context) error {
	orderID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()

	order, err := h.orderRepo.ByID(ctx, tenantFrom(c).TenantID, orderID)
	if err != nil {
		return httpError(err)
	}

	tickets, err := h.ticketRepo.ByOrder(ctx, order.OrderID)
	if err != nil {
		return fmt.Errorf("failed to get order tickets: %w", err)
	}

	return c.JSON(http.StatusOK, orderResponse{Order: order, Tickets: tickets})
}

type refundRequest struct {
	Reason string `json:"reason"`
}

func (h Handler) PutOrderRefund(c echo.Context) error {
	orderID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req refundRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return err
		}
	}

	ctx := c.Request().Context()
	tenantID := tenantFrom(c).TenantID

	if _, err := h.orderRepo.ByID(ctx, tenantID, orderID); err != nil {
		return httpError(err)
	}

	cmd := entities.RefundOrder{
		Header:  entities.NewEventHeaderWithIdempotencyKey(tenantID, "refund-"+orderID.String()),
		OrderID: orderID,
		Reason:  req.Reason,
	}
	if err := h.commandBus.Send(ctx, &cmd); err != nil {
		return fmt.Errorf("failed to send RefundOrder command: %w", err)
	}

	return c.NoContent(http.StatusAccepted)
}

func (h Handler) PostResendTickets(c echo.Context) error {
	orderID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	tenantID := tenantFrom(c).TenantID

	if _, err := h.orderRepo.ByID(ctx, tenantID, orderID); err != nil {
		return httpError(err)
	}

	cmd := entities.ResendTickets{
		Header:  entities.NewEventHeader(tenantID),
		OrderID: orderID,
	}
	if err := h.commandBus.Send(ctx, &cmd); err != nil {
		return fmt.Errorf("failed to send ResendTickets command: %w", err)
	}

	return c.NoContent(http.StatusAccepted)
}
