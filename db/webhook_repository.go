package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"livetix/entities"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// WebhookRepository applies payment provider notifications. Every method
// records the notification id in the same transaction as its effects and
// returns entities.ErrWebhookProcessed for an id seen before.
type WebhookRepository struct {
	db *DB
}

func NewWebhookRepository(db *DB) WebhookRepository {
	if db == nil {
		panic("db is nil")
	}
	return WebhookRepository{
		db: db,
	}
}

func (r WebhookRepository) processOnce(
	ctx context.Context,
	webhook entities.WebhookEvent,
	fn func(ctx context.Context, tx *sqlx.Tx) error,
) error {
	return updateInTx(
		ctx,
		r.db.Conn,
		sql.LevelReadCommitted,
		func(ctx context.Context, tx *sqlx.Tx) error {
			res, err := tx.NamedExecContext(ctx, `
				INSERT INTO processed_webhook_events (event_id, event_type)
				VALUES (:event_id, :event_type)
				ON CONFLICT (event_id) DO NOTHING
			`, webhook)
			if err != nil {
				return fmt.Errorf("could not record webhook event: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return entities.ErrWebhookProcessed
			}

			return fn(ctx, tx)
		},
	)
}

// Acknowledge records a notification that has no effects.
func (r WebhookRepository) Acknowledge(ctx context.Context, webhook entities.WebhookEvent) error {
	return r.processOnce(ctx, webhook, func(context.Context, *sqlx.Tx) error {
		return nil
	})
}

func (r WebhookRepository) CompleteOrderPayment(
	ctx context.Context,
	webhook entities.WebhookEvent,
	orderID uuid.UUID,
	paymentIntent string,
	now time.Time,
) error {
	return r.processOnce(ctx, webhook, func(ctx context.Context, tx *sqlx.Tx) error {
		return markOrderPaid(ctx, tx, orderID, paymentIntent, now)
	})
}

func (r WebhookRepository) RefundOrderByPaymentIntent(
	ctx context.Context,
	webhook entities.WebhookEvent,
	paymentIntent string,
	now time.Time,
) error {
	return r.processOnce(ctx, webhook, func(ctx context.Context, tx *sqlx.Tx) error {
		var orderID uuid.UUID
		err := tx.GetContext(ctx, &orderID, `SELECT order_id FROM orders WHERE stripe_payment_intent = $1`, paymentIntent)
		if isNoRows(err) {
			return entities.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("could not find order by payment intent: %w", err)
		}

		return refundOrder(ctx, tx, orderID, now)
	})
}

func (r WebhookRepository) ActivateMembership(
	ctx context.Context,
	webhook entities.WebhookEvent,
	membershipID uuid.UUID,
	subscriptionID string,
	customerID string,
) error {
	return r.processOnce(ctx, webhook, func(ctx context.Context, tx *sqlx.Tx) error {
		return activateMembership(ctx, tx, membershipID, subscriptionID, customerID)
	})
}

func (r WebhookRepository) GrantMembershipCredits(
	ctx context.Context,
	webhook entities.WebhookEvent,
	subscriptionID string,
	invoiceID string,
	periodEnd time.Time,
) error {
	return r.processOnce(ctx, webhook, func(ctx context.Context, tx *sqlx.Tx) error {
		return grantMembershipCredits(ctx, tx, subscriptionID, invoiceID, periodEnd)
	})
}

func (r WebhookRepository) SetMembershipStatus(
	ctx context.Context,
	webhook entities.WebhookEvent,
	subscriptionID string,
	status entities.MembershipStatus,
) error {
	return r.processOnce(ctx, webhook, func(ctx context.Context, tx *sqlx.Tx) error {
		return setMembershipStatus(ctx, tx, subscriptionID, status)
	})
}
