package http

import (
	"errors"
	"net/http"

	"livetix/entities"

	"github.com/labstack/echo/v4"
)

const referralCodeAttempts = 3

type referralCodeRequest struct {
	OwnerEmail    string `json:"owner_email"`
	RewardCredits int    `json:"reward_credits"`
	MaxUses       *int   `json:"max_uses"`
}

func (h Handler) PostReferralCode(c echo.Context) error {
	var req referralCodeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	email, err := customerEmail(req.OwnerEmail)
	if err != nil {
		return err
	}
	if req.RewardCredits < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "reward_credits must not be negative")
	}
	if req.MaxUses != nil && *req.MaxUses <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "max_uses must be positive")
	}

	code := entities.ReferralCode{
		TenantID:      tenantFrom(c).TenantID,
		OwnerEmail:    email,
		RewardCredits: req.RewardCredits,
		MaxUses:       req.MaxUses,
		CreatedAt:     h.clock.Now(),
	}

	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		code.Code = entities.NewReferralCode()

		err = h.referralRepo.Create(c.Request().Context(), code)
		if !errors.Is(err, entities.ErrAlreadyExists) {
			break
		}
	}
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, code)
}

func (h Handler) GetReferralCode(c echo.Context) error {
	code, err := h.referralRepo.ByCode(c.Request().Context(), tenantFrom(c).TenantID, c.Param("code"))
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, code)
}
