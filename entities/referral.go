package entities

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v3"
)

const referralCodeLength = 8

type ReferralCode struct {
	Code          string    `json:"code" db:"code"`
	TenantID      uuid.UUID `json:"-" db:"tenant_id"`
	OwnerEmail    string    `json:"owner_email" db:"owner_email"`
	RewardCredits int       `json:"reward_credits" db:"reward_credits"`
	MaxUses       *int      `json:"max_uses,omitempty" db:"max_uses"`
	Uses          int       `json:"uses" db:"uses"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

func NewReferralCode() string {
	return strings.ToUpper(shortuuid.New()[:referralCodeLength])
}

func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Usable reports whether the code may be applied to an order placed by customerEmail.
func (r ReferralCode) Usable(customerEmail string) bool {
	if strings.EqualFold(r.OwnerEmail, customerEmail) {
		return false
	}
	if r.MaxUses != nil && r.Uses >= *r.MaxUses {
		return false
	}
	return true
}
