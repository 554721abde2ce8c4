package db

import (
	"context"
	"fmt"
	"time"

	"livetix/entities"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const membershipColumns = `
	membership_id, tenant_id, tier_id, customer_email, status,
	stripe_subscription_id, stripe_customer_id, current_period_end, created_at
`

type MembershipRepository struct {
	db *DB
}

func NewMembershipRepository(db *DB) MembershipRepository {
	if db == nil {
		panic("db is nil")
	}
	return MembershipRepository{
		db: db,
	}
}

func (r MembershipRepository) CreateTier(ctx context.Context, tier entities.MembershipTier) error {
	_, err := r.db.Conn.NamedExecContext(ctx, `
		INSERT INTO
			membership_tiers (tier_id, tenant_id, name, stripe_price_id, monthly_credits, discount_percent, active)
		VALUES
			(:tier_id, :tenant_id, :name, :stripe_price_id, :monthly_credits, :discount_percent, :active)
	`, tier)
	if err != nil {
		return fmt.Errorf("could not create membership tier: %w", err)
	}

	return nil
}

func (r MembershipRepository) ListTiers(ctx context.Context, tenantID uuid.UUID) ([]entities.MembershipTier, error) {
	tiers := []entities.MembershipTier{}
	err := r.db.Conn.SelectContext(ctx, &tiers, `
		SELECT tier_id, tenant_id, name, stripe_price_id, monthly_credits, discount_percent, active
		FROM membership_tiers
		WHERE tenant_id = $1 AND active
		ORDER BY monthly_credits, name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("could not list membership tiers: %w", err)
	}

	return tiers, nil
}

func (r MembershipRepository) TierByID(ctx context.Context, tenantID uuid.UUID, tierID uuid.UUID) (entities.MembershipTier, error) {
	var tier entities.MembershipTier
	err := r.db.Conn.GetContext(ctx, &tier, `
		SELECT tier_id, tenant_id, name, stripe_price_id, monthly_credits, discount_percent, active
		FROM membership_tiers
		WHERE tenant_id = $1 AND tier_id = $2
	`, tenantID, tierID)
	if isNoRows(err) {
		return entities.MembershipTier{}, entities.ErrNotFound
	}
	if err != nil {
		return entities.MembershipTier{}, fmt.Errorf("could not get membership tier: %w", err)
	}

	return tier, nil
}

func (r MembershipRepository) CreatePending(ctx context.Context, membership entities.Membership) error {
	_, err := r.db.Conn.NamedExecContext(ctx, `
		INSERT INTO
			memberships (membership_id, tenant_id, tier_id, customer_email, status, created_at)
		VALUES
			(:membership_id, :tenant_id, :tier_id, :customer_email, 'pending', :created_at)
	`, membership)
	if err != nil {
		return fmt.Errorf("could not create membership: %w", err)
	}

	return nil
}

func (r MembershipRepository) ByCustomer(ctx context.Context, tenantID uuid.UUID, customerEmail string) ([]entities.Membership, error) {
	memberships := []entities.Membership{}
	err := r.db.Conn.SelectContext(ctx, &memberships, `
		SELECT `+membershipColumns+`
		FROM memberships
		WHERE tenant_id = $1 AND customer_email = $2
		ORDER BY created_at DESC
	`, tenantID, customerEmail)
	if err != nil {
		return nil, fmt.Errorf("could not get memberships: %w", err)
	}

	return memberships, nil
}

func activeTierForCustomer(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, customerEmail string) (entities.MembershipTier, error) {
	var tier entities.MembershipTier
	err := tx.GetContext(ctx, &tier, `
		SELECT t.tier_id, t.tenant_id, t.name, t.stripe_price_id, t.monthly_credits, t.discount_percent, t.active
		FROM memberships m
		JOIN membership_tiers t ON t.tier_id = m.tier_id
		WHERE m.tenant_id = $1 AND m.customer_email = $2 AND m.status = 'active'
		ORDER BY t.discount_percent DESC
		LIMIT 1
	`, tenantID, customerEmail)
	if isNoRows(err) {
		return entities.MembershipTier{}, entities.ErrNoActiveMembership
	}
	if err != nil {
		return entities.MembershipTier{}, fmt.Errorf("could not get active membership: %w", err)
	}

	return tier, nil
}

func lockMembership(ctx context.Context, tx *sqlx.Tx, where string, arg any) (entities.Membership, error) {
	var membership entities.Membership
	err := tx.GetContext(ctx, &membership, `SELECT `+membershipColumns+` FROM memberships WHERE `+where+` FOR UPDATE`, arg)
	if isNoRows(err) {
		return entities.Membership{}, entities.ErrNotFound
	}
	if err != nil {
		return entities.Membership{}, fmt.Errorf("could not lock membership: %w", err)
	}

	return membership, nil
}

func activateMembership(ctx context.Context, tx *sqlx.Tx, membershipID uuid.UUID, subscriptionID string, customerID string) error {
	membership, err := lockMembership(ctx, tx, "membership_id = $1", membershipID)
	if err != nil {
		return err
	}
	if membership.Status == entities.MembershipActive || membership.Status == entities.MembershipCancelled {
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE memberships
		SET status = 'active', stripe_subscription_id = $1, stripe_customer_id = $2
		WHERE membership_id = $3
	`, subscriptionID, customerID, membershipID)
	if err != nil {
		return fmt.Errorf("could not activate membership: %w", err)
	}

	return publishInTx(ctx, tx, entities.MembershipActivated_v1{
		Header:        entities.NewEventHeaderWithIdempotencyKey(membership.TenantID, "membership-activated-"+membershipID.String()),
		MembershipID:  membershipID,
		TierID:        membership.TierID,
		CustomerEmail: membership.CustomerEmail,
	})
}

// grantMembershipCredits allocates the tier's monthly credits once per invoice.
func grantMembershipCredits(ctx context.Context, tx *sqlx.Tx, subscriptionID string, invoiceID string, periodEnd time.Time) error {
	membership, err := lockMembership(ctx, tx, "stripe_subscription_id = $1", subscriptionID)
	if err != nil {
		return err
	}
	if membership.Status == entities.MembershipCancelled {
		return nil
	}

	var tier entities.MembershipTier
	err = tx.GetContext(ctx, &tier, `
		SELECT tier_id, tenant_id, name, stripe_price_id, monthly_credits, discount_percent, active
		FROM membership_tiers WHERE tier_id = $1
	`, membership.TierID)
	if err != nil {
		return fmt.Errorf("could not get membership tier: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE memberships SET status = 'active', current_period_end = $1 WHERE membership_id = $2
	`, periodEnd, membership.MembershipID)
	if err != nil {
		return fmt.Errorf("could not update membership period: %w", err)
	}

	if tier.MonthlyCredits == 0 {
		return nil
	}

	if _, err := lockedCreditBalance(ctx, tx, membership.TenantID, membership.CustomerEmail); err != nil {
		return err
	}

	inserted, err := appendCreditEntry(ctx, tx, entities.CreditEntry{
		TenantID:      membership.TenantID,
		CustomerEmail: membership.CustomerEmail,
		Delta:         tier.MonthlyCredits,
		Reason:        entities.CreditAllocation,
		Reference:     invoiceID,
	})
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	return publishInTx(ctx, tx, entities.MembershipCreditsGranted_v1{
		Header:        entities.NewEventHeaderWithIdempotencyKey(membership.TenantID, "membership-credits-"+invoiceID),
		MembershipID:  membership.MembershipID,
		CustomerEmail: membership.CustomerEmail,
		Credits:       tier.MonthlyCredits,
		InvoiceID:     invoiceID,
	})
}

func setMembershipStatus(ctx context.Context, tx *sqlx.Tx, subscriptionID string, status entities.MembershipStatus) error {
	membership, err := lockMembership(ctx, tx, "stripe_subscription_id = $1", subscriptionID)
	if err != nil {
		return err
	}
	if membership.Status == status || membership.Status == entities.MembershipCancelled {
		return nil
	}

	_, err = tx.ExecContext(ctx, `UPDATE memberships SET status = $1 WHERE membership_id = $2`, status, membership.MembershipID)
	if err != nil {
		return fmt.Errorf("could not update membership status: %w", err)
	}

	if status != entities.MembershipCancelled {
		return nil
	}

	return publishInTx(ctx, tx, entities.MembershipCancelled_v1{
		Header:        entities.NewEventHeaderWithIdempotencyKey(membership.TenantID, "membership-cancelled-"+membership.MembershipID.String()),
		MembershipID:  membership.MembershipID,
		CustomerEmail: membership.CustomerEmail,
	})
}
