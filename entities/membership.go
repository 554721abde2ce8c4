package entities

import (
	"time"

	"github.com/google/uuid"
)

type MembershipTier struct {
	TierID          uuid.UUID `json:"tier_id" db:"tier_id"`
	TenantID        uuid.UUID `json:"-" db:"tenant_id"`
	Name            string    `json:"name" db:"name"`
	StripePriceID   string    `json:"-" db:"stripe_price_id"`
	MonthlyCredits  int       `json:"monthly_credits" db:"monthly_credits"`
	DiscountPercent int       `json:"discount_percent" db:"discount_percent"`
	Active          bool      `json:"active" db:"active"`
}

type MembershipStatus string

const (
	MembershipPending   MembershipStatus = "pending"
	MembershipActive    MembershipStatus = "active"
	MembershipPastDue   MembershipStatus = "past_due"
	MembershipCancelled MembershipStatus = "cancelled"
)

type Membership struct {
	MembershipID         uuid.UUID        `json:"membership_id" db:"membership_id"`
	TenantID             uuid.UUID        `json:"-" db:"tenant_id"`
	TierID               uuid.UUID        `json:"tier_id" db:"tier_id"`
	CustomerEmail        string           `json:"customer_email" db:"customer_email"`
	Status               MembershipStatus `json:"status" db:"status"`
	StripeSubscriptionID *string          `json:"-" db:"stripe_subscription_id"`
	StripeCustomerID     *string          `json:"-" db:"stripe_customer_id"`
	CurrentPeriodEnd     *time.Time       `json:"current_period_end,omitempty" db:"current_period_end"`
	CreatedAt            time.Time        `json:"created_at" db:"created_at"`
}

type CreditReason string

const (
	CreditAllocation     CreditReason = "allocation"
	CreditRedemption     CreditReason = "redemption"
	CreditRefund         CreditReason = "refund"
	CreditExpiryRestore  CreditReason = "expiry_restore"
	CreditReferralReward CreditReason = "referral_reward"
	CreditAdjustment     CreditReason = "adjustment"
)

// CreditEntry is one row of the append-only credit ledger.
type CreditEntry struct {
	EntryID       int64        `json:"entry_id" db:"entry_id"`
	TenantID      uuid.UUID    `json:"-" db:"tenant_id"`
	CustomerEmail string       `json:"customer_email" db:"customer_email"`
	Delta         int          `json:"delta" db:"delta"`
	Reason        CreditReason `json:"reason" db:"reason"`
	Reference     string       `json:"reference" db:"reference"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}

type CreditBalance struct {
	CustomerEmail string        `json:"customer_email"`
	Balance       int           `json:"balance"`
	Entries       []CreditEntry `json:"entries"`
}
