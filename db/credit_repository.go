package db

import (
	"context"
	"database/sql"
	"fmt"

	"livetix/entities"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
)

type CreditRepository struct {
	db *DB
}

func NewCreditRepository(db *DB) CreditRepository {
	if db == nil {
		panic("db is nil")
	}
	return CreditRepository{
		db: db,
	}
}

func (r CreditRepository) Balance(ctx context.Context, tenantID uuid.UUID, customerEmail string) (entities.CreditBalance, error) {
	entries := []entities.CreditEntry{}
	err := r.db.Conn.SelectContext(ctx, &entries, `
		SELECT entry_id, tenant_id, customer_email, delta, reason, reference, created_at
		FROM credit_ledger
		WHERE tenant_id = $1 AND customer_email = $2
		ORDER BY entry_id
	`, tenantID, customerEmail)
	if err != nil {
		return entities.CreditBalance{}, fmt.Errorf("could not get credit entries: %w", err)
	}

	return entities.CreditBalance{
		CustomerEmail: customerEmail,
		Balance:       lo.SumBy(entries, func(e entities.CreditEntry) int { return e.Delta }),
		Entries:       entries,
	}, nil
}

// Adjust appends a manual entry. The balance may not go below zero.
func (r CreditRepository) Adjust(ctx context.Context, tenantID uuid.UUID, customerEmail string, delta int, reference string) error {
	if delta == 0 {
		return fmt.Errorf("adjustment must not be zero")
	}

	return updateInTx(
		ctx,
		r.db.Conn,
		sql.LevelReadCommitted,
		func(ctx context.Context, tx *sqlx.Tx) error {
			balance, err := lockedCreditBalance(ctx, tx, tenantID, customerEmail)
			if err != nil {
				return err
			}
			if balance+delta < 0 {
				return entities.ErrInsufficientCredits
			}

			inserted, err := appendCreditEntry(ctx, tx, entities.CreditEntry{
				TenantID:      tenantID,
				CustomerEmail: customerEmail,
				Delta:         delta,
				Reason:        entities.CreditAdjustment,
				Reference:     reference,
			})
			if err != nil {
				return err
			}
			if !inserted {
				return entities.ErrAlreadyExists
			}

			return nil
		},
	)
}

// lockedCreditBalance serializes writers of one customer's ledger until tx ends.
func lockedCreditBalance(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, customerEmail string) (int, error) {
	_, err := tx.ExecContext(ctx, `
		SELECT pg_advisory_xact_lock(hashtext($1::text || ':' || $2))
	`, tenantID, customerEmail)
	if err != nil {
		return 0, fmt.Errorf("could not lock credit ledger: %w", err)
	}

	var balance int
	err = tx.GetContext(ctx, &balance, `
		SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE tenant_id = $1 AND customer_email = $2
	`, tenantID, customerEmail)
	if err != nil {
		return 0, fmt.Errorf("could not get credit balance: %w", err)
	}

	return balance, nil
}

// appendCreditEntry is idempotent on (tenant, email, reason, reference).
func appendCreditEntry(ctx context.Context, tx *sqlx.Tx, entry entities.CreditEntry) (bool, error) {
	res, err := tx.NamedExecContext(ctx, `
		INSERT INTO
			credit_ledger (tenant_id, customer_email, delta, reason, reference)
		VALUES
			(:tenant_id, :customer_email, :delta, :reason, :reference)
		ON CONFLICT (tenant_id, customer_email, reason, reference) DO NOTHING
	`, entry)
	if err != nil {
		return false, fmt.Errorf("could not append credit entry: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not read affected rows: %w", err)
	}

	return n > 0, nil
}

// restoreRedeemedCredits gives back credits spent on an order that will not be paid or was refunded.
func restoreRedeemedCredits(ctx context.Context, tx *sqlx.Tx, order entities.Order, reason entities.CreditReason) (int, error) {
	if order.CreditsUsed == 0 {
		return 0, nil
	}

	inserted, err := appendCreditEntry(ctx, tx, entities.CreditEntry{
		TenantID:      order.TenantID,
		CustomerEmail: order.CustomerEmail,
		Delta:         order.CreditsUsed,
		Reason:        reason,
		Reference:     order.OrderID.String(),
	})
	if err != nil {
		return 0, err
	}
	if !inserted {
		return 0, nil
	}

	return order.CreditsUsed, nil
}
