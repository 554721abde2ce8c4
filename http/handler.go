package http

import (
	"context"
	"time"

	"livetix/clock"
	"livetix/entities"
	"livetix/ticketqr"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/google/uuid"
)

type TenantRepository interface {
	Create(ctx context.Context, tenant entities.Tenant) error
	BySlug(ctx context.Context, slug string) (entities.Tenant, error)
}

type CatalogRepository interface {
	CreateArtist(ctx context.Context, artist entities.Artist) error
	ListArtists(ctx context.Context, tenantID uuid.UUID) ([]entities.Artist, error)
	ArtistBySlug(ctx context.Context, tenantID uuid.UUID, slug string, now time.Time) (entities.ArtistDetails, error)
	CreateVenue(ctx context.Context, venue entities.Venue) error
	VenueByID(ctx context.Context, tenantID uuid.UUID, venueID uuid.UUID) (entities.Venue, error)
	CreateEvent(ctx context.Context, ev entities.Event) error
	SetEventStatus(ctx context.Context, tenantID uuid.UUID, eventID uuid.UUID, status entities.EventStatus) error
	ListUpcomingEvents(ctx context.Context, tenantID uuid.UUID, now time.Time) ([]entities.Event, error)
	EventDetailsBySlug(ctx context.Context, tenantID uuid.UUID, slug string, now time.Time) (entities.EventDetails, error)
	AddTicketType(ctx context.Context, ticketType entities.TicketType) error
}

type OrderRepository interface {
	PlaceOrder(ctx context.Context, req entities.OrderRequest) (entities.Order, bool, error)
	ByID(ctx context.Context, tenantID uuid.UUID, orderID uuid.UUID) (entities.Order, error)
	SetCheckoutSession(ctx context.Context, orderID uuid.UUID, sessionID string, checkoutURL string) error
}

type TicketRepository interface {
	ByID(ctx context.Context, tenantID uuid.UUID, ticketID uuid.UUID) (entities.Ticket, error)
	ByOrder(ctx context.Context, orderID uuid.UUID) ([]entities.Ticket, error)
	CheckIn(ctx context.Context, tenantID uuid.UUID, scan entities.Scan) (entities.ScanOutcome, error)
	LogRejectedScan(ctx context.Context, tenantID uuid.UUID, scan entities.Scan, result entities.ScanResult) error
	Stats(ctx context.Context, tenantID uuid.UUID, eventID uuid.UUID) (entities.CheckInStats, error)
}

type MembershipRepository interface {
	CreateTier(ctx context.Context, tier entities.MembershipTier) error
	ListTiers(ctx context.Context, tenantID uuid.UUID) ([]entities.MembershipTier, error)
	TierByID(ctx context.Context, tenantID uuid.UUID, tierID uuid.UUID) (entities.MembershipTier, error)
	CreatePending(ctx context.Context, membership entities.Membership) error
	ByCustomer(ctx context.Context, tenantID uuid.UUID, customerEmail string) ([]entities.Membership, error)
}

type CreditRepository interface {
	Balance(ctx context.Context, tenantID uuid.UUID, customerEmail string) (entities.CreditBalance, error)
	Adjust(ctx context.Context, tenantID uuid.UUID, customerEmail string, delta int, reference string) error
}

type ReferralRepository interface {
	Create(ctx context.Context, code entities.ReferralCode) error
	ByCode(ctx context.Context, tenantID uuid.UUID, code string) (entities.ReferralCode, error)
}

type WebhookRepository interface {
	Acknowledge(ctx context.Context, webhook entities.WebhookEvent) error
	CompleteOrderPayment(ctx context.Context, webhook entities.WebhookEvent, orderID uuid.UUID, paymentIntent string, now time.Time) error
	RefundOrderByPaymentIntent(ctx context.Context, webhook entities.WebhookEvent, paymentIntent string, now time.Time) error
	ActivateMembership(ctx context.Context, webhook entities.WebhookEvent, membershipID uuid.UUID, subscriptionID string, customerID string) error
	GrantMembershipCredits(ctx context.Context, webhook entities.WebhookEvent, subscriptionID string, invoiceID string, periodEnd time.Time) error
	SetMembershipStatus(ctx context.Context, webhook entities.WebhookEvent, subscriptionID string, status entities.MembershipStatus) error
}

type PaymentsService interface {
	CreateOrderCheckout(ctx context.Context, order entities.Order, successURL, cancelURL string) (entities.CheckoutSession, error)
	CreateMembershipCheckout(ctx context.Context, membership entities.Membership, tier entities.MembershipTier, successURL, cancelURL string) (entities.CheckoutSession, error)
	RefundPayment(ctx context.Context, paymentIntentID string, idempotencyKey string) error
}

type QRCodec interface {
	Parse(raw string) (ticketqr.Payload, error)
}

type Handler struct {
	commandBus *cqrs.CommandBus

	tenantRepo     TenantRepository
	catalogRepo    CatalogRepository
	orderRepo      OrderRepository
	ticketRepo     TicketRepository
	membershipRepo MembershipRepository
	creditRepo     CreditRepository
	referralRepo   ReferralRepository
	webhookRepo    WebhookRepository

	payments PaymentsService
	qrCodec  QRCodec
	clock    clock.Clock

	publicBaseURL    string
	reservationTTL   time.Duration
	stripeWebhookKey string
}
