package http

import (
	"fmt"
	"net/http"
	"time"

	"livetix/entities"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func (h Handler) GetEvents(c echo.Context) error {
	events, err := h.catalogRepo.ListUpcomingEvents(c.Request().Context(), tenantFrom(c).TenantID, h.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}

	return c.JSON(http.StatusOK, events)
}

func (h Handler) GetEvent(c echo.Context) error {
	details, err := h.catalogRepo.EventDetailsBySlug(c.Request().Context(), tenantFrom(c).TenantID, c.Param("slug"), h.clock.Now())
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, details)
}

func (h Handler) GetArtists(c echo.Context) error {
	artists, err := h.catalogRepo.ListArtists(c.Request().Context(), tenantFrom(c).TenantID)
	if err != nil {
		return fmt.Errorf("failed to list artists: %w", err)
	}

	return c.JSON(http.StatusOK, artists)
}

func (h Handler) GetArtist(c echo.Context) error {
	details, err := h.catalogRepo.ArtistBySlug(c.Request().Context(), tenantFrom(c).TenantID, c.Param("slug"), h.clock.Now())
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, details)
}

func (h Handler) GetVenueMap(c echo.Context) error {
	venueID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	venue, err := h.catalogRepo.VenueByID(c.Request().Context(), tenantFrom(c).TenantID, venueID)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, venue.Map)
}

type artistRequest struct {
	Slug   string   `json:"slug"`
	Name   string   `json:"name"`
	Bio    string   `json:"bio"`
	Genres []string `json:"genres"`
}

func (h Handler) PostArtist(c echo.Context) error {
	var req artistRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Slug == "" || req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "slug and name are required")
	}

	artist := entities.Artist{
		ArtistID:  uuid.New(),
		TenantID:  tenantFrom(c).TenantID,
		Slug:      req.Slug,
		Name:      req.Name,
		Bio:       req.Bio,
		Genres:    req.Genres,
		CreatedAt: h.clock.Now(),
	}
	if err := h.catalogRepo.CreateArtist(c.Request().Context(), artist); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, artist)
}

type venueRequest struct {
	Name     string            `json:"name"`
	Address  string            `json:"address"`
	Capacity int               `json:"capacity"`
	Map      entities.VenueMap `json:"map"`
}

func (h Handler) PostVenue(c echo.Context) error {
	var req venueRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Name == "" || req.Capacity <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "name and positive capacity are required")
	}
	if err := req.Map.Validate(req.Capacity); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	venue := entities.Venue{
		VenueID:   uuid.New(),
		TenantID:  tenantFrom(c).TenantID,
		Name:      req.Name,
		Address:   req.Address,
		Capacity:  req.Capacity,
		Map:       req.Map,
		CreatedAt: h.clock.Now(),
	}
	if err := h.catalogRepo.CreateVenue(c.Request().Context(), venue); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, venue)
}

type eventRequest struct {
	VenueID     uuid.UUID   `json:"venue_id"`
	Slug        string      `json:"slug"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	StartsAt    time.Time   `json:"starts_at"`
	EndsAt      time.Time   `json:"ends_at"`
	ArtistIDs   []uuid.UUID `json:"artist_ids"`
}

func (h Handler) PostEvent(c echo.Context) error {
	var req eventRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Slug == "" || req.Title == "" || req.VenueID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "venue_id, slug and title are required")
	}
	if !req.EndsAt.After(req.StartsAt) {
		return echo.NewHTTPError(http.StatusBadRequest, "ends_at must be after starts_at")
	}

	ev := entities.Event{
		EventID:     uuid.New(),
		TenantID:    tenantFrom(c).TenantID,
		VenueID:     req.VenueID,
		Slug:        req.Slug,
		Title:       req.Title,
		Description: req.Description,
		StartsAt:    req.StartsAt.UTC(),
		EndsAt:      req.EndsAt.UTC(),
		Status:      entities.EventStatusDraft,
		ArtistIDs:   req.ArtistIDs,
		CreatedAt:   h.clock.Now(),
	}
	if err := h.catalogRepo.CreateEvent(c.Request().Context(), ev); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, ev)
}

func (h Handler) PutPublishEvent(c echo.Context) error {
	return h.setEventStatus(c, entities.EventStatusPublished)
}

func (h Handler) PutCancelEvent(c echo.Context) error {
	return h.setEventStatus(c, entities.EventStatusCancelled)
}

func (h Handler) setEventStatus(c echo.Context, status entities.EventStatus) error {
	eventID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.catalogRepo.SetEventStatus(c.Request().Context(), tenantFrom(c).TenantID, eventID, status); err != nil {
		return httpError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

type ticketTypeRequest struct {
	Name           string     `json:"name"`
	Price          string     `json:"price"`
	Currency       string     `json:"currency"`
	Capacity       int        `json:"capacity"`
	MemberOnly     bool       `json:"member_only"`
	CreditEligible bool       `json:"credit_eligible"`
	SalesStartAt   *time.Time `json:"sales_start_at"`
	SalesEndAt     *time.Time `json:"sales_end_at"`
}

func (h Handler) PostTicketType(c echo.Context) error {
	eventID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req ticketTypeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	if req.Capacity <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "capacity must be positive")
	}
	if req.SalesStartAt != nil && req.SalesEndAt != nil && !req.SalesEndAt.After(*req.SalesStartAt) {
		return echo.NewHTTPError(http.StatusBadRequest, "sales_end_at must be after sales_start_at")
	}

	price, err := entities.NewMoney(req.Price, req.Currency)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ticketType := entities.TicketType{
		TicketTypeID:   uuid.New(),
		EventID:        eventID,
		TenantID:       tenantFrom(c).TenantID,
		Name:           req.Name,
		Price:          price,
		Capacity:       req.Capacity,
		MemberOnly:     req.MemberOnly,
		CreditEligible: req.CreditEligible,
		SalesStartAt:   req.SalesStartAt,
		SalesEndAt:     req.SalesEndAt,
	}
	if err := h.catalogRepo.AddTicketType(c.Request().Context(), ticketType); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, ticketType)
}
