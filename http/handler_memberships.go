package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"livetix/entities"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func (h Handler) GetMembershipTiers(c echo.Context) error {
	tiers, err := h.membershipRepo.ListTiers(c.Request().Context(), tenantFrom(c).TenantID)
	if err != nil {
		return fmt.Errorf("failed to list membership tiers: %w", err)
	}

	return c.JSON(http.StatusOK, tiers)
}

type membershipTierRequest struct {
	Name            string `json:"name"`
	StripePriceID   string `json:"stripe_price_id"`
	MonthlyCredits  int    `json:"monthly_credits"`
	DiscountPercent int    `json:"discount_percent"`
}

func (h Handler) PostMembershipTier(c echo.Context) error {
	var req membershipTierRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Name == "" || req.StripePriceID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and stripe_price_id are required")
	}
	if req.MonthlyCredits < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "monthly_credits must not be negative")
	}
	if req.DiscountPercent < 0 || req.DiscountPercent > 100 {
		return echo.NewHTTPError(http.StatusBadRequest, "discount_percent must be between 0 and 100")
	}

	tier := entities.MembershipTier{
		TierID:          uuid.New(),
		TenantID:        tenantFrom(c).TenantID,
		Name:            req.Name,
		StripePriceID:   req.StripePriceID,
		MonthlyCredits:  req.MonthlyCredits,
		DiscountPercent: req.DiscountPercent,
		Active:          true,
	}
	if err := h.membershipRepo.CreateTier(c.Request().Context(), tier); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, tier)
}

type membershipRequest struct {
	CustomerEmail string    `json:"customer_email"`
	TierID        uuid.UUID `json:"tier_id"`
}

type membershipResponse struct {
	entities.Membership
	CheckoutURL string `json:"checkout_url"`
}

func (h Handler) PostMembership(c echo.Context) error {
	var req membershipRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	email, err := customerEmail(req.CustomerEmail)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	tenantID := tenantFrom(c).TenantID

	tier, err := h.membershipRepo.TierByID(ctx, tenantID, req.TierID)
	if err != nil {
		return httpError(err)
	}
	if !tier.Active {
		return echo.NewHTTPError(http.StatusConflict, "membership tier is not active")
	}

	membership := entities.Membership{
		MembershipID:  uuid.New(),
		TenantID:      tenantID,
		TierID:        tier.TierID,
		CustomerEmail: email,
		Status:        entities.MembershipPending,
		CreatedAt:     h.clock.Now(),
	}
	if err := h.membershipRepo.CreatePending(ctx, membership); err != nil {
		return httpError(err)
	}

	base := strings.TrimRight(h.publicBaseURL, "/")
	session, err := h.payments.CreateMembershipCheckout(
		ctx,
		membership,
		tier,
		fmt.Sprintf("%s/memberships/%s?checkout=success", base, membership.MembershipID),
		fmt.Sprintf("%s/memberships/%s?checkout=cancelled", base, membership.MembershipID),
	)
	if err != nil {
		return fmt.Errorf("failed to create membership checkout: %w", err)
	}

	return c.JSON(http.StatusCreated, membershipResponse{Membership: membership, CheckoutURL: session.URL})
}

func (h Handler) GetMemberships(c echo.Context) error {
	email, err := customerEmail(c.QueryParam("email"))
	if err != nil {
		return err
	}

	memberships, err := h.membershipRepo.ByCustomer(c.Request().Context(), tenantFrom(c).TenantID, email)
	if err != nil {
		return fmt.Errorf("failed to get memberships: %w", err)
	}

	return c.JSON(http.StatusOK, memberships)
}

func (h Handler) GetCredits(c echo.Context) error {
	email, err := customerEmail(c.QueryParam("email"))
	if err != nil {
		return err
	}

	balance, err := h.creditRepo.Balance(c.Request().Context(), tenantFrom(c).TenantID, email)
	if err != nil {
		return fmt.Errorf("failed to get credit balance: %w", err)
	}

	return c.JSON(http.StatusOK, balance)
}

type creditAdjustmentRequest struct {
	CustomerEmail string `json:"customer_email"`
	Delta         int    `json:"delta"`
	Reference     string `json:"reference"`
}

func (h Handler) PostCreditAdjustment(c echo.Context) error {
	var req creditAdjustmentRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	email, err := customerEmail(req.CustomerEmail)
	if err != nil {
		return err
	}
	if req.Delta == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "delta must not be zero")
	}
	if req.Reference == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reference is required")
	}

	ctx := c.Request().Context()
	tenantID := tenantFrom(c).TenantID

	err = h.creditRepo.Adjust(ctx, tenantID, email, req.Delta, req.Reference)
	if err != nil && !errors.Is(err, entities.ErrAlreadyExists) {
		return httpError(err)
	}

	balance, err := h.creditRepo.Balance(ctx, tenantID, email)
	if err != nil {
		return fmt.Errorf("failed to get credit balance: %w", err)
	}

	return c.JSON(http.StatusOK, balance)
}

func customerEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if !strings.Contains(email, "@") {
		return "", echo.NewHTTPError(http.StatusBadRequest, "a valid customer email is required")
	}
	return email, nil
}
