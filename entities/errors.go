package entities

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrTenantNotFound        = errors.New("tenant not found")
	ErrEventNotOnSale        = errors.New("event is not on sale")
	ErrSalesClosed           = errors.New("ticket sales are closed for this ticket type")
	ErrSoldOut               = errors.New("not enough tickets available")
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrMembersOnly           = errors.New("ticket type is reserved for members")
	ErrInsufficientCredits   = errors.New("insufficient membership credits")
	ErrTooManyCredits        = errors.New("more credits requested than eligible tickets")
	ErrInvalidReferralCode   = errors.New("invalid referral code")
	ErrIdempotencyKeyMissing = errors.New("idempotency key required")
	ErrOrderNotRefundable    = errors.New("order is not refundable")
	ErrAlreadyExists         = errors.New("already exists")
	ErrVenueCapacityExceeded = errors.New("venue capacity exceeded")
	ErrWebhookProcessed      = errors.New("webhook event already processed")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrUnknownArtist         = errors.New("unknown artist")
	ErrNoActiveMembership    = errors.New("no active membership")
	ErrOrderExpired          = errors.New("order reservation expired")
)

// PermanentError marks failures that retrying will not fix. Message handlers
// route them to the poison queue.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string {
	return e.Err.Error()
}

func (e PermanentError) Unwrap() error {
	return e.Err
}

func (e PermanentError) IsPermanent() bool {
	return true
}
