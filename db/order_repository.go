package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"livetix/entities"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
)

const orderColumns = `
	order_id,
	tenant_id,
	customer_email,
	status,
	total_amount AS "total.amount",
	total_currency AS "total.currency",
	credits_used,
	referral_code,
	idempotency_key,
	stripe_session_id,
	checkout_url,
	stripe_payment_intent,
	reserved_until,
	created_at,
	paid_at,
	refunded_at
`

type OrderRepository struct {
	db *DB
}

func NewOrderRepository(db *DB) OrderRepository {
	if db == nil {
		panic("db is nil")
	}
	return OrderRepository{
		db: db,
	}
}

// PlaceOrder reserves inventory and stores a pending order, or a paid one
// when credits and discounts bring the total to zero. Placing an order again
// with the same idempotency key returns the stored order and created=false.
func (r OrderRepository) PlaceOrder(ctx context.Context, req entities.OrderRequest) (order entities.Order, created bool, err error) {
	if req.IdempotencyKey == "" {
		return entities.Order{}, false, entities.ErrIdempotencyKeyMissing
	}
	if req.UseCredits < 0 {
		return entities.Order{}, false, entities.ErrInvalidQuantity
	}

	existing, err := r.byIdempotencyKey(ctx, req.TenantID, req.IdempotencyKey)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, entities.ErrNotFound) {
		return entities.Order{}, false, err
	}

	err = updateInTx(
		ctx,
		r.db.Conn,
		sql.LevelReadCommitted,
		func(ctx context.Context, tx *sqlx.Tx) error {
			var err error
			order, err = r.placeOrder(ctx, tx, req)
			return err
		},
	)
	if isErrorUniqueViolation(err) {
		// concurrent request with the same idempotency key won
		existing, err := r.byIdempotencyKey(ctx, req.TenantID, req.IdempotencyKey)
		if err != nil {
			return entities.Order{}, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return entities.Order{}, false, err
	}

	return order, true, nil
}

type lockedTicketType struct {
	entities.TicketType
	EventStatus   entities.EventStatus `db:"event_status"`
	EventStartsAt time.Time            `db:"event_starts_at"`
}

func (r OrderRepository) placeOrder(ctx context.Context, tx *sqlx.Tx, req entities.OrderRequest) (entities.Order, error) {
	quantities := map[uuid.UUID]int{}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return entities.Order{}, entities.ErrInvalidQuantity
		}
		quantities[item.TicketTypeID] += item.Quantity
	}
	if len(quantities) == 0 {
		return entities.Order{}, entities.ErrInvalidQuantity
	}

	// lock in a stable order so concurrent orders can't deadlock
	ticketTypeIDs := lo.Keys(quantities)
	sort.Slice(ticketTypeIDs, func(i, j int) bool {
		return ticketTypeIDs[i].String() < ticketTypeIDs[j].String()
	})

	var (
		lines      []entities.OrderLine
		memberOnly bool
	)
	for _, ticketTypeID := range ticketTypeIDs {
		var tt lockedTicketType
		err := tx.GetContext(ctx, &tt, `
			SELECT `+ticketTypeColumns+`,
				e.status AS event_status,
				e.starts_at AS event_starts_at
			FROM ticket_types tt
			JOIN events e ON e.event_id = tt.event_id
			WHERE tt.ticket_type_id = $1 AND tt.tenant_id = $2
			FOR UPDATE OF tt
		`, ticketTypeID, req.TenantID)
		if isNoRows(err) {
			return entities.Order{}, entities.ErrNotFound
		}
		if err != nil {
			return entities.Order{}, fmt.Errorf("could not lock ticket type: %w", err)
		}

		ev := entities.Event{Status: tt.EventStatus, StartsAt: tt.EventStartsAt}
		if !ev.OnSale(req.Now) {
			return entities.Order{}, entities.ErrEventNotOnSale
		}
		if !tt.SalesOpen(req.Now) {
			return entities.Order{}, entities.ErrSalesClosed
		}

		var reserved int
		err = tx.GetContext(ctx, &reserved, fmt.Sprintf(reservedQuantitySQL, "$1", "$2"), ticketTypeID, req.Now)
		if err != nil {
			return entities.Order{}, fmt.Errorf("could not count reserved tickets: %w", err)
		}
		if tt.Capacity-reserved < quantities[ticketTypeID] {
			return entities.Order{}, entities.ErrSoldOut
		}

		memberOnly = memberOnly || tt.MemberOnly
		lines = append(lines, entities.OrderLine{TicketType: tt.TicketType, Quantity: quantities[ticketTypeID]})
	}

	discountPercent := 0
	tier, err := activeTierForCustomer(ctx, tx, req.TenantID, req.CustomerEmail)
	switch {
	case err == nil:
		discountPercent = tier.DiscountPercent
	case errors.Is(err, entities.ErrNoActiveMembership):
		if memberOnly {
			return entities.Order{}, entities.ErrMembersOnly
		}
	default:
		return entities.Order{}, err
	}

	if req.UseCredits > 0 {
		balance, err := lockedCreditBalance(ctx, tx, req.TenantID, req.CustomerEmail)
		if err != nil {
			return entities.Order{}, err
		}
		if req.UseCredits > balance {
			return entities.Order{}, entities.ErrInsufficientCredits
		}
	}

	referralCode := ""
	if req.ReferralCode != "" {
		code, err := referralCodeByCode(ctx, tx, req.TenantID, entities.NormalizeReferralCode(req.ReferralCode))
		if errors.Is(err, entities.ErrNotFound) {
			return entities.Order{}, entities.ErrInvalidReferralCode
		}
		if err != nil {
			return entities.Order{}, err
		}
		if !code.Usable(req.CustomerEmail) {
			return entities.Order{}, entities.ErrInvalidReferralCode
		}
		referralCode = code.Code
	}

	pricing, err := entities.PriceOrder(lines, discountPercent, req.UseCredits)
	if err != nil {
		return entities.Order{}, err
	}

	order := entities.Order{
		OrderID:        req.OrderID,
		TenantID:       req.TenantID,
		CustomerEmail:  req.CustomerEmail,
		Status:         entities.OrderStatusPending,
		Total:          pricing.Total,
		CreditsUsed:    pricing.CreditsUsed,
		ReferralCode:   referralCode,
		IdempotencyKey: req.IdempotencyKey,
		ReservedUntil:  req.Now.Add(req.ReservationTTL),
		CreatedAt:      req.Now,
	}
	if order.Total.IsZero() {
		paidAt := req.Now
		order.Status = entities.OrderStatusPaid
		order.PaidAt = &paidAt
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO
			orders (order_id, tenant_id, customer_email, status, total_amount, total_currency, credits_used,
				referral_code, idempotency_key, reserved_until, created_at, paid_at)
		VALUES
			(:order_id, :tenant_id, :customer_email, :status, :total.amount, :total.currency, :credits_used,
				:referral_code, :idempotency_key, :reserved_until, :created_at, :paid_at)
	`, order)
	if err != nil {
		return entities.Order{}, fmt.Errorf("could not insert order: %w", err)
	}

	for _, item := range pricing.Items {
		item.OrderID = order.OrderID
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO
				order_items (order_id, ticket_type_id, quantity, unit_amount, unit_currency, credits_applied)
			VALUES
				(:order_id, :ticket_type_id, :quantity, :unit_price.amount, :unit_price.currency, :credits_applied)
		`, item)
		if err != nil {
			return entities.Order{}, fmt.Errorf("could not insert order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}

	if pricing.CreditsUsed > 0 {
		_, err := appendCreditEntry(ctx, tx, entities.CreditEntry{
			TenantID:      order.TenantID,
			CustomerEmail: order.CustomerEmail,
			Delta:         -pricing.CreditsUsed,
			Reason:        entities.CreditRedemption,
			Reference:     order.OrderID.String(),
		})
		if err != nil {
			return entities.Order{}, err
		}
	}

	events := []entities.IEvent{
		entities.OrderPlaced_v1{
			Header:        entities.NewEventHeaderWithIdempotencyKey(order.TenantID, "order-placed-"+order.OrderID.String()),
			OrderID:       order.OrderID,
			CustomerEmail: order.CustomerEmail,
			Total:         order.Total,
			CreditsUsed:   order.CreditsUsed,
			ReservedUntil: order.ReservedUntil,
		},
	}
	if order.Status == entities.OrderStatusPaid {
		events = append(events, orderPaidEvent(order))
	}

	if err := publishInTx(ctx, tx, events...); err != nil {
		return entities.Order{}, err
	}

	return order, nil
}

func (r OrderRepository) ByID(ctx context.Context, tenantID uuid.UUID, orderID uuid.UUID) (entities.Order, error) {
	var order entities.Order
	err := r.db.Conn.GetContext(ctx, &order, `
		SELECT `+orderColumns+` FROM orders WHERE tenant_id = $1 AND order_id = $2
	`, tenantID, orderID)
	if isNoRows(err) {
		return entities.Order{}, entities.ErrNotFound
	}
	if err != nil {
		return entities.Order{}, fmt.Errorf("could not get order: %w", err)
	}

	return r.withItems(ctx, r.db.Conn, order)
}

func (r OrderRepository) byIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (entities.Order, error) {
	var order entities.Order
	err := r.db.Conn.GetContext(ctx, &order, `
		SELECT `+orderColumns+` FROM orders WHERE tenant_id = $1 AND idempotency_key = $2
	`, tenantID, key)
	if isNoRows(err) {
		return entities.Order{}, entities.ErrNotFound
	}
	if err != nil {
		return entities.Order{}, fmt.Errorf("could not get order by idempotency key: %w", err)
	}

	return r.withItems(ctx, r.db.Conn, order)
}

func (r OrderRepository) withItems(ctx context.Context, q sqlx.QueryerContext, order entities.Order) (entities.Order, error) {
	order.Items = []entities.OrderItem{}
	err := sqlx.SelectContext(ctx, q, &order.Items, `
		SELECT
			order_id,
			ticket_type_id,
			quantity,
			unit_amount AS "unit_price.amount",
			unit_currency AS "unit_price.currency",
			credits_applied
		FROM order_items
		WHERE order_id = $1
		ORDER BY unit_amount DESC, ticket_type_id
	`, order.OrderID)
	if err != nil {
		return entities.Order{}, fmt.Errorf("could not get order items: %w", err)
	}

	return order, nil
}

func (r OrderRepository) SetCheckoutSession(ctx context.Context, orderID uuid.UUID, sessionID string, checkoutURL string) error {
	res, err := r.db.Conn.ExecContext(ctx, `
		UPDATE orders SET stripe_session_id = $1, checkout_url = $2
		WHERE order_id = $3 AND status = 'pending'
	`, sessionID, checkoutURL, orderID)
	if err != nil {
		return fmt.Errorf("could not set checkout session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entities.ErrOrderExpired
	}

	return nil
}

// OrderForRefund returns an order by id regardless of the tenant.
func (r OrderRepository) OrderForRefund(ctx context.Context, orderID uuid.UUID) (entities.Order, error) {
	var order entities.Order
	err := r.db.Conn.GetContext(ctx, &order, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)
	if isNoRows(err) {
		return entities.Order{}, entities.ErrNotFound
	}
	if err != nil {
		return entities.Order{}, fmt.Errorf("could not get order: %w", err)
	}

	return order, nil
}

// ExpireReservations expires pending orders whose reservation ended before now
// and gives back their redeemed credits.
func (r OrderRepository) ExpireReservations(ctx context.Context, now time.Time, limit int) (int, error) {
	expired := 0

	err := updateInTx(
		ctx,
		r.db.Conn,
		sql.LevelReadCommitted,
		func(ctx context.Context, tx *sqlx.Tx) error {
			orders := []entities.Order{}
			err := tx.SelectContext(ctx, &orders, `
				SELECT `+orderColumns+`
				FROM orders
				WHERE status = 'pending' AND reserved_until <= $1
				ORDER BY reserved_until
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			`, now, limit)
			if err != nil {
				return fmt.Errorf("could not select expired reservations: %w", err)
			}

			for _, order := range orders {
				_, err := tx.ExecContext(ctx, `UPDATE orders SET status = 'expired' WHERE order_id = $1`, order.OrderID)
				if err != nil {
					return fmt.Errorf("could not expire order %s: %w", order.OrderID, err)
				}

				restored, err := restoreRedeemedCredits(ctx, tx, order, entities.CreditExpiryRestore)
				if err != nil {
					return err
				}

				err = publishInTx(ctx, tx, entities.OrderExpired_v1{
					Header:          entities.NewEventHeaderWithIdempotencyKey(order.TenantID, "order-expired-"+order.OrderID.String()),
					OrderID:         order.OrderID,
					CreditsRestored: restored,
				})
				if err != nil {
					return err
				}
			}

			expired = len(orders)
			return nil
		},
	)
	if err != nil {
		return 0, err
	}

	return expired, nil
}

// MarkRefunded refunds a paid order: tickets are voided and redeemed credits
// restored. Refunding an already refunded order is a no-op.
func (r OrderRepository) MarkRefunded(ctx context.Context, orderID uuid.UUID, now time.Time) error {
	return updateInTx(
		ctx,
		r.db.Conn,
		sql.LevelReadCommitted,
		func(ctx context.Context, tx *sqlx.Tx) error {
			return refundOrder(ctx, tx, orderID, now)
		},
	)
}

func lockOrder(ctx context.Context, tx *sqlx.Tx, where string, arg any) (entities.Order, error) {
	var order entities.Order
	err := tx.GetContext(ctx, &order, `SELECT `+orderColumns+` FROM orders WHERE `+where+` FOR UPDATE`, arg)
	if isNoRows(err) {
		return entities.Order{}, entities.ErrNotFound
	}
	if err != nil {
		return entities.Order{}, fmt.Errorf("could not lock order: %w", err)
	}

	return order, nil
}

func refundOrder(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, now time.Time) error {
	order, err := lockOrder(ctx, tx, "order_id = $1", orderID)
	if err != nil {
		return err
	}

	if order.Status == entities.OrderStatusRefunded {
		return nil
	}
	if !order.Refundable() {
		return entities.ErrOrderNotRefundable
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = 'refunded', refunded_at = $1 WHERE order_id = $2
	`, now, order.OrderID)
	if err != nil {
		return fmt.Errorf("could not mark order refunded: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE tickets SET status = 'void' WHERE order_id = $1 AND status <> 'void'
	`, order.OrderID)
	if err != nil {
		return fmt.Errorf("could not void tickets: %w", err)
	}
	voided, _ := res.RowsAffected()

	restored, err := restoreRedeemedCredits(ctx, tx, order, entities.CreditRefund)
	if err != nil {
		return err
	}

	return publishInTx(ctx, tx, entities.OrderRefunded_v1{
		Header:          entities.NewEventHeaderWithIdempotencyKey(order.TenantID, "order-refunded-"+order.OrderID.String()),
		OrderID:         order.OrderID,
		CustomerEmail:   order.CustomerEmail,
		Total:           order.Total,
		CreditsRestored: restored,
		VoidedTickets:   int(voided),
	})
}

// markOrderPaid is a no-op for orders that are already paid or refunded.
func markOrderPaid(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, paymentIntent string, now time.Time) error {
	order, err := lockOrder(ctx, tx, "order_id = $1", orderID)
	if err != nil {
		return err
	}

	switch order.Status {
	case entities.OrderStatusPaid, entities.OrderStatusRefunded:
		return nil
	case entities.OrderStatusExpired:
		return entities.ErrOrderExpired
	}

	if !order.ReservedUntil.After(now) {
		// not swept yet, but its units may already be sold to someone else
		if err := ensureStillAvailable(ctx, tx, order.OrderID, now); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = 'paid', paid_at = $1, stripe_payment_intent = $2 WHERE order_id = $3
	`, now, paymentIntent, order.OrderID)
	if err != nil {
		return fmt.Errorf("could not mark order paid: %w", err)
	}

	return publishInTx(ctx, tx, orderPaidEvent(order))
}

type orderedQuantity struct {
	TicketTypeID uuid.UUID `db:"ticket_type_id"`
	Quantity     int       `db:"quantity"`
	Capacity     int       `db:"capacity"`
}

// ensureStillAvailable returns ErrOrderExpired when the units of an order
// whose reservation ended were taken by other orders in the meantime.
func ensureStillAvailable(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, now time.Time) error {
	items := []orderedQuantity{}
	err := tx.SelectContext(ctx, &items, `
		SELECT tt.ticket_type_id, oi.quantity, tt.capacity
		FROM order_items oi
		JOIN ticket_types tt ON tt.ticket_type_id = oi.ticket_type_id
		WHERE oi.order_id = $1
		ORDER BY tt.ticket_type_id
		FOR UPDATE OF tt
	`, orderID)
	if err != nil {
		return fmt.Errorf("could not lock ticket types of order %s: %w", orderID, err)
	}

	for _, item := range items {
		// the order itself is not counted: its reservation has ended
		var reserved int
		err := tx.GetContext(ctx, &reserved, fmt.Sprintf(reservedQuantitySQL, "$1", "$2"), item.TicketTypeID, now)
		if err != nil {
			return fmt.Errorf("could not count reserved tickets: %w", err)
		}
		if item.Capacity-reserved < item.Quantity {
			return entities.ErrOrderExpired
		}
	}

	return nil
}

func orderPaidEvent(order entities.Order) entities.OrderPaid_v1 {
	return entities.OrderPaid_v1{
		Header:        entities.NewEventHeaderWithIdempotencyKey(order.TenantID, "order-paid-"+order.OrderID.String()),
		OrderID:       order.OrderID,
		CustomerEmail: order.CustomerEmail,
		Total:         order.Total,
		ReferralCode:  order.ReferralCode,
	}
}
