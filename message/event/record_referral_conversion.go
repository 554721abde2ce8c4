package event

import (
	"context"
	"fmt"

	"livetix/entities"
)

func (h Handler) RecordReferralConversion(ctx context.Context, event *entities.OrderPaid_v1) error {
	if event.ReferralCode == "" {
		return nil
	}

	err := h.referralsRepo.RecordConversion(ctx, event.Header.TenantID, event.ReferralCode, event.OrderID, event.CustomerEmail)
	if err != nil {
		return fmt.Errorf("could not record referral conversion for order %s: %w", event.OrderID, err)
	}

	return nil
}
