package http

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"livetix/entities"
	"livetix/ticketqr"
	observability "livetix/trace"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const maxBatchScans = 500

func (h Handler) GetTicketQR(c echo.Context) error {
	ticketID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	ticket, err := h.ticketRepo.ByID(c.Request().Context(), tenantFrom(c).TenantID, ticketID)
	if err != nil {
		return httpError(err)
	}

	png, err := ticketqr.PNG(ticket.QRPayload, ticketqr.DefaultImageSize)
	if err != nil {
		return fmt.Errorf("failed to render qr code: %w", err)
	}

	return c.Blob(http.StatusOK, "image/png", png)
}

type scanRequest struct {
	QR        string     `json:"qr"`
	DeviceID  string     `json:"device_id"`
	ScannedAt *time.Time `json:"scanned_at"`
}

type batchScanRequest struct {
	Scans []scanRequest `json:"scans"`
}

type batchScanResult struct {
	QR string `json:"qr"`
	entities.ScanOutcome
	// Error is set on the scan that failed and on every scan after it.
	// Devices resend those.
	Error string `json:"error,omitempty"`
}

const (
	batchScanFailed    = "scan_failed"
	batchScanNotReplayed = "not_replayed"
)

func (h Handler) PostScan(c echo.Context) error {
	eventID, err := paramUUID(c, "event_id")
	if err != nil {
		return err
	}

	var req scanRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	outcome, err := h.scan(c, eventID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, outcome)
}

// PostScanBatch replays scans queued by a device while it was offline, in
// the order they were scanned.
func (h Handler) PostScanBatch(c echo.Context) error {
	eventID, err := paramUUID(c, "event_id")
	if err != nil {
		return err
	}

	var req batchScanRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if len(req.Scans) > maxBatchScans {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d scans per batch", maxBatchScans))
	}
	for _, s := range req.Scans {
		if s.ScannedAt == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "scanned_at is required for batch scans")
		}
	}

	sort.SliceStable(req.Scans, func(i, j int) bool {
		return req.Scans[i].ScannedAt.Before(*req.Scans[j].ScannedAt)
	})

	results := make([]batchScanResult, 0, len(req.Scans))
	for i, s := range req.Scans {
		outcome, err := h.scan(c, eventID, s)
		if err != nil {
			// earlier check-ins are committed, report them and stop to keep scan order
			log.FromContext(c.Request().Context()).
				WithError(err).
				WithField("event_id", eventID).
				WithField("replayed", i).
				Error("Batch scan failed")

			results = append(results, batchScanResult{QR: s.QR, Error: batchScanFailed})
			for _, rest := range req.Scans[i+1:] {
				results = append(results, batchScanResult{QR: rest.QR, Error: batchScanNotReplayed})
			}
			break
		}
		results = append(results, batchScanResult{QR: s.QR, ScanOutcome: outcome})
	}

	return c.JSON(http.StatusOK, results)
}

func (h Handler) scan(c echo.Context, eventID uuid.UUID, req scanRequest) (entities.ScanOutcome, error) {
	ctx := c.Request().Context()
	tenantID := tenantFrom(c).TenantID

	scan := entities.Scan{
		EventID:   eventID,
		DeviceID:  req.DeviceID,
		ScannedAt: h.clock.Now(),
	}
	if req.ScannedAt != nil {
		scan.ScannedAt = req.ScannedAt.UTC()
	}

	var outcome entities.ScanOutcome

	payload, err := h.qrCodec.Parse(req.QR)
	switch {
	case errors.Is(err, ticketqr.ErrInvalidFormat):
		outcome, err = h.rejectScan(c, tenantID, scan, entities.ScanInvalidFormat)
	case errors.Is(err, ticketqr.ErrInvalidSignature):
		outcome, err = h.rejectScan(c, tenantID, scan, entities.ScanInvalidSignature)
	case err != nil:
		return entities.ScanOutcome{}, fmt.Errorf("failed to parse qr payload: %w", err)
	case payload.EventID != eventID:
		scan.TicketID = payload.TicketID
		outcome, err = h.rejectScan(c, tenantID, scan, entities.ScanWrongEvent)
	default:
		scan.TicketID = payload.TicketID
		outcome, err = h.ticketRepo.CheckIn(ctx, tenantID, scan)
	}
	if err != nil {
		return entities.ScanOutcome{}, fmt.Errorf("failed to check in ticket: %w", err)
	}

	observability.ScansTotal.WithLabelValues(string(outcome.Result)).Inc()

	return outcome, nil
}

func (h Handler) rejectScan(c echo.Context, tenantID uuid.UUID, scan entities.Scan, result entities.ScanResult) (entities.ScanOutcome, error) {
	if err := h.ticketRepo.LogRejectedScan(c.Request().Context(), tenantID, scan, result); err != nil {
		return entities.ScanOutcome{}, err
	}

	outcome := entities.ScanOutcome{Result: result}
	if scan.TicketID != uuid.Nil {
		ticketID := scan.TicketID
		outcome.TicketID = &ticketID
	}
	return outcome, nil
}

func (h Handler) GetCheckInStats(c echo.Context) error {
	eventID, err := paramUUID(c, "event_id")
	if err != nil {
		return err
	}

	stats, err := h.ticketRepo.Stats(c.Request().Context(), tenantFrom(c).TenantID, eventID)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, stats)
}
