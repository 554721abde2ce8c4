package db

import (
	"context"
	"database/sql"
	"fmt"

	"livetix/entities"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const referralColumns = `code, tenant_id, owner_email, reward_credits, max_uses, uses, created_at`

type ReferralRepository struct {
	db *DB
}

func NewReferralRepository(db *DB) ReferralRepository {
	if db == nil {
		panic("db is nil")
	}
	return ReferralRepository{
		db: db,
	}
}

func (r ReferralRepository) Create(ctx context.Context, code entities.ReferralCode) error {
	_, err := r.db.Conn.NamedExecContext(ctx, `
		INSERT INTO
			referral_codes (code, tenant_id, owner_email, reward_credits, max_uses)
		VALUES
			(:code, :tenant_id, :owner_email, :reward_credits, :max_uses)
	`, code)
	if isErrorUniqueViolation(err) {
		return entities.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("could not create referral code: %w", err)
	}

	return nil
}

func (r ReferralRepository) ByCode(ctx context.Context, tenantID uuid.UUID, code string) (entities.ReferralCode, error) {
	return referralCodeByCode(ctx, r.db.Conn, tenantID, entities.NormalizeReferralCode(code))
}

func referralCodeByCode(ctx context.Context, q sqlx.QueryerContext, tenantID uuid.UUID, code string) (entities.ReferralCode, error) {
	var referral entities.ReferralCode
	err := sqlx.GetContext(ctx, q, &referral, `
		SELECT `+referralColumns+` FROM referral_codes WHERE tenant_id = $1 AND code = $2
	`, tenantID, code)
	if isNoRows(err) {
		return entities.ReferralCode{}, entities.ErrNotFound
	}
	if err != nil {
		return entities.ReferralCode{}, fmt.Errorf("could not get referral code: %w", err)
	}

	return referral, nil
}

// RecordConversion credits the code owner for a paid order. It is a no-op
// when the order was already converted.
func (r ReferralRepository) RecordConversion(ctx context.Context, tenantID uuid.UUID, code string, orderID uuid.UUID, customerEmail string) error {
	return updateInTx(
		ctx,
		r.db.Conn,
		sql.LevelReadCommitted,
		func(ctx context.Context, tx *sqlx.Tx) error {
			var referral entities.ReferralCode
			err := tx.GetContext(ctx, &referral, `
				SELECT `+referralColumns+` FROM referral_codes WHERE tenant_id = $1 AND code = $2 FOR UPDATE
			`, tenantID, code)
			if isNoRows(err) {
				return entities.PermanentError{Err: fmt.Errorf("referral code %s: %w", code, entities.ErrNotFound)}
			}
			if err != nil {
				return fmt.Errorf("could not lock referral code: %w", err)
			}

			// orders placed while the code was usable may convert after it reached max uses
			if referral.MaxUses != nil && referral.Uses >= *referral.MaxUses {
				return nil
			}

			res, err := tx.ExecContext(ctx, `
				INSERT INTO referral_conversions (order_id, code, tenant_id, customer_email)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (order_id) DO NOTHING
			`, orderID, code, tenantID, customerEmail)
			if err != nil {
				return fmt.Errorf("could not record referral conversion: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return nil
			}

			_, err = tx.ExecContext(ctx, `UPDATE referral_codes SET uses = uses + 1 WHERE code = $1`, code)
			if err != nil {
				return fmt.Errorf("could not increment referral uses: %w", err)
			}

			if referral.RewardCredits == 0 {
				return nil
			}

			if _, err := lockedCreditBalance(ctx, tx, tenantID, referral.OwnerEmail); err != nil {
				return err
			}

			_, err = appendCreditEntry(ctx, tx, entities.CreditEntry{
				TenantID:      tenantID,
				CustomerEmail: referral.OwnerEmail,
				Delta:         referral.RewardCredits,
				Reason:        entities.CreditReferralReward,
				Reference:     orderID.String(),
			})
			if err != nil {
				return err
			}

			return publishInTx(ctx, tx, entities.ReferralRewarded_v1{
				Header:        entities.NewEventHeaderWithIdempotencyKey(tenantID, "referral-rewarded-"+orderID.String()),
				Code:          code,
				OrderID:       orderID,
				OwnerEmail:    referral.OwnerEmail,
				RewardCredits: referral.RewardCredits,
			})
		},
	)
}
