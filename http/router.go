package http

import (
	"crypto/subtle"
	"net/http"
	"time"

	"livetix/clock"

	libHttp "github.com/ThreeDotsLabs/go-event-driven/common/http"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

const staffBodyLimit = "512K"

type RouterDeps struct {
	CommandBus *cqrs.CommandBus

	TenantRepo     TenantRepository
	CatalogRepo    CatalogRepository
	OrderRepo      OrderRepository
	TicketRepo     TicketRepository
	MembershipRepo MembershipRepository
	CreditRepo     CreditRepository
	ReferralRepo   ReferralRepository
	WebhookRepo    WebhookRepository

	Payments PaymentsService
	QRCodec  QRCodec
	Clock    clock.Clock

	PublicBaseURL    string
	ReservationTTL   time.Duration
	StripeWebhookKey string
	AdminToken       string
	StaffToken       string
}

func NewHttpRouter(deps RouterDeps) *echo.Echo {
	e := libHttp.NewEcho()

	e.Use(otelecho.Middleware("livetix"))

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	handler := Handler{
		commandBus:       deps.CommandBus,
		tenantRepo:       deps.TenantRepo,
		catalogRepo:      deps.CatalogRepo,
		orderRepo:        deps.OrderRepo,
		ticketRepo:       deps.TicketRepo,
		membershipRepo:   deps.MembershipRepo,
		creditRepo:       deps.CreditRepo,
		referralRepo:     deps.ReferralRepo,
		webhookRepo:      deps.WebhookRepo,
		payments:         deps.Payments,
		qrCodec:          deps.QRCodec,
		clock:            deps.Clock,
		publicBaseURL:    deps.PublicBaseURL,
		reservationTTL:   deps.ReservationTTL,
		stripeWebhookKey: deps.StripeWebhookKey,
	}

	e.POST("/webhooks/stripe", handler.PostStripeWebhook)

	adminAuth := bearerAuth(deps.AdminToken)
	staffAuth := bearerAuth(deps.StaffToken, deps.AdminToken)

	e.POST("/admin/tenants", handler.PostTenant, adminAuth)

	public := e.Group("", handler.resolveTenant)
	public.GET("/events", handler.GetEvents)
	public.GET("/events/:slug", handler.GetEvent)
	public.GET("/artists", handler.GetArtists)
	public.GET("/artists/:slug", handler.GetArtist)
	public.GET("/venues/:id/map", handler.GetVenueMap)
	public.POST("/orders", handler.PostOrder)
	public.GET("/orders/:id", handler.GetOrder)
	public.GET("/tickets/:id/qr.png", handler.GetTicketQR)
	public.GET("/membership-tiers", handler.GetMembershipTiers)
	public.POST("/memberships", handler.PostMembership)
	public.GET("/memberships", handler.GetMemberships)
	public.GET("/credits", handler.GetCredits)
	public.POST("/referral-codes", handler.PostReferralCode)
	public.GET("/referral-codes/:code", handler.GetReferralCode)

	admin := e.Group("/admin", adminAuth, handler.resolveTenant)
	admin.POST("/artists", handler.PostArtist)
	admin.POST("/venues", handler.PostVenue)
	admin.POST("/events", handler.PostEvent)
	admin.PUT("/events/:id/publish", handler.PutPublishEvent)
	admin.PUT("/events/:id/cancel", handler.PutCancelEvent)
	admin.POST("/events/:id/ticket-types", handler.PostTicketType)
	admin.PUT("/orders/:id/refund", handler.PutOrderRefund)
	admin.POST("/orders/:id/resend-tickets", handler.PostResendTickets)
	admin.POST("/credits/adjust", handler.PostCreditAdjustment)
	admin.POST("/membership-tiers", handler.PostMembershipTier)

	// batches are capped by size before decoding
	staff := e.Group("/staff", middleware.BodyLimit(staffBodyLimit), staffAuth, handler.resolveTenant)
	staff.POST("/events/:event_id/scan", handler.PostScan)
	staff.POST("/events/:event_id/scan/batch", handler.PostScanBatch)
	staff.GET("/events/:event_id/stats", handler.GetCheckInStats)

	return e
}

// bearerAuth accepts requests carrying any of the given tokens.
func bearerAuth(tokens ...string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, c echo.Context) (bool, error) {
			for _, token := range tokens {
				if token != "" && subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1 {
					return true, nil
				}
			}
			return false, nil
		},
	})
}
