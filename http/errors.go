package http

import (
	"errors"
	"net/http"

	"livetix/entities"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{entities.ErrNotFound, http.StatusNotFound},
	{entities.ErrTenantNotFound, http.StatusNotFound},
	{entities.ErrAlreadyExists, http.StatusConflict},
	{entities.ErrSoldOut, http.StatusConflict},
	{entities.ErrEventNotOnSale, http.StatusConflict},
	{entities.ErrSalesClosed, http.StatusConflict},
	{entities.ErrOrderExpired, http.StatusConflict},
	{entities.ErrOrderNotRefundable, http.StatusConflict},
	{entities.ErrInvalidTransition, http.StatusConflict},
	{entities.ErrMembersOnly, http.StatusForbidden},
	{entities.ErrNoActiveMembership, http.StatusForbidden},
	{entities.ErrInsufficientCredits, http.StatusUnprocessableEntity},
	{entities.ErrTooManyCredits, http.StatusUnprocessableEntity},
	{entities.ErrInvalidReferralCode, http.StatusUnprocessableEntity},
	{entities.ErrInvalidQuantity, http.StatusUnprocessableEntity},
	{entities.ErrVenueCapacityExceeded, http.StatusUnprocessableEntity},
	{entities.ErrUnknownArtist, http.StatusUnprocessableEntity},
	{entities.ErrIdempotencyKeyMissing, http.StatusBadRequest},
}

// httpError maps domain errors to HTTP responses. Unknown errors are
// returned as they are and end up as 500.
func httpError(err error) error {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return echo.NewHTTPError(e.status, err.Error())
		}
	}
	return err
}

func paramUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}
