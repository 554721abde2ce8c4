package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"livetix/entities"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
)

const ticketColumns = `
	ticket_id, tenant_id, order_id, event_id, ticket_type_id, holder_email,
	status, qr_payload, issued_at, checked_in_at, checked_in_by
`

type QRSigner interface {
	Encode(ticketID, eventID uuid.UUID) string
}

type TicketRepository struct {
	db     *DB
	signer QRSigner
}

func NewTicketRepository(db *DB, signer QRSigner) TicketRepository {
	if db == nil {
		panic("db is nil")
	}
	if signer == nil {
		panic("signer is nil")
	}
	return TicketRepository{
		db:     db,
		signer: signer,
	}
}

type issuableItem struct {
	TicketTypeID uuid.UUID `db:"ticket_type_id"`
	EventID      uuid.UUID `db:"event_id"`
	Quantity     int       `db:"quantity"`
}

// IssueForOrder creates one ticket per purchased unit of a paid order.
// Tickets already issued for the order are kept, so it can be called again
// safely. Orders that are not paid get no tickets.
func (r TicketRepository) IssueForOrder(ctx context.Context, orderID uuid.UUID) ([]entities.Ticket, error) {
	var tickets []entities.Ticket

	err := updateInTx(
		ctx,
		r.db.Conn,
		sql.LevelReadCommitted,
		func(ctx context.Context, tx *sqlx.Tx) error {
			order, err := lockOrder(ctx, tx, "order_id = $1", orderID)
			if err != nil {
				return err
			}
			if order.Status != entities.OrderStatusPaid {
				tickets = []entities.Ticket{}
				return nil
			}

			items := []issuableItem{}
			err = tx.SelectContext(ctx, &items, `
				SELECT oi.ticket_type_id, tt.event_id, oi.quantity
				FROM order_items oi
				JOIN ticket_types tt ON tt.ticket_type_id = oi.ticket_type_id
				WHERE oi.order_id = $1
				ORDER BY oi.ticket_type_id
			`, orderID)
			if err != nil {
				return fmt.Errorf("could not get order items: %w", err)
			}

			var issued []uuid.UUID
			for _, item := range items {
				for seq := 0; seq < item.Quantity; seq++ {
					ticketID := uuid.New()
					res, err := tx.ExecContext(ctx, `
						INSERT INTO
							tickets (ticket_id, tenant_id, order_id, event_id, ticket_type_id, seq, holder_email, qr_payload)
						VALUES
							($1, $2, $3, $4, $5, $6, $7, $8)
						ON CONFLICT (order_id, ticket_type_id, seq) DO NOTHING
					`,
						ticketID,
						order.TenantID,
						order.OrderID,
						item.EventID,
						item.TicketTypeID,
						seq,
						order.CustomerEmail,
						r.signer.Encode(ticketID, item.EventID),
					)
					if err != nil {
						return fmt.Errorf("could not issue ticket: %w", err)
					}
					if n, _ := res.RowsAffected(); n > 0 {
						issued = append(issued, ticketID)
					}
				}
			}

			tickets, err = ticketsByOrder(ctx, tx, orderID)
			if err != nil {
				return err
			}

			if len(issued) == 0 {
				return nil
			}

			return publishInTx(ctx, tx, entities.TicketsIssued_v1{
				Header:        entities.NewEventHeaderWithIdempotencyKey(order.TenantID, "tickets-issued-"+orderID.String()),
				OrderID:       orderID,
				CustomerEmail: order.CustomerEmail,
				TicketIDs:     lo.Map(tickets, func(t entities.Ticket, _ int) uuid.UUID { return t.TicketID }),
			})
		},
	)
	if err != nil {
		return nil, err
	}

	return tickets, nil
}

func (r TicketRepository) ByOrder(ctx context.Context, orderID uuid.UUID) ([]entities.Ticket, error) {
	return ticketsByOrder(ctx, r.db.Conn, orderID)
}

func ticketsByOrder(ctx context.Context, q sqlx.QueryerContext, orderID uuid.UUID) ([]entities.Ticket, error) {
	tickets := []entities.Ticket{}
	err := sqlx.SelectContext(ctx, q, &tickets, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE order_id = $1
		ORDER BY ticket_type_id, seq
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("could not get tickets: %w", err)
	}

	return tickets, nil
}

func (r TicketRepository) ByID(ctx context.Context, tenantID uuid.UUID, ticketID uuid.UUID) (entities.Ticket, error) {
	var ticket entities.Ticket
	err := r.db.Conn.GetContext(ctx, &ticket, `
		SELECT `+ticketColumns+` FROM tickets WHERE tenant_id = $1 AND ticket_id = $2
	`, tenantID, ticketID)
	if isNoRows(err) {
		return entities.Ticket{}, entities.ErrNotFound
	}
	if err != nil {
		return entities.Ticket{}, fmt.Errorf("could not get ticket: %w", err)
	}

	return ticket, nil
}

// CheckIn admits a ticket with a verified QR payload. A ticket is admitted
// at most once: the status flip is a single conditional update.
func (r TicketRepository) CheckIn(ctx context.Context, tenantID uuid.UUID, scan entities.Scan) (entities.ScanOutcome, error) {
	var outcome entities.ScanOutcome

	err := updateInTx(
		ctx,
		r.db.Conn,
		sql.LevelReadCommitted,
		func(ctx context.Context, tx *sqlx.Tx) error {
			var holderEmail string
			err := tx.GetContext(ctx, &holderEmail, `
				UPDATE tickets
				SET status = 'checked_in', checked_in_at = $1, checked_in_by = $2
				WHERE ticket_id = $3 AND tenant_id = $4 AND event_id = $5 AND status = 'valid'
				RETURNING holder_email
			`, scan.ScannedAt, scan.DeviceID, scan.TicketID, tenantID, scan.EventID)
			switch {
			case err == nil:
				outcome = entities.ScanOutcome{
					Result:      entities.ScanAdmitted,
					TicketID:    &scan.TicketID,
					HolderEmail: holderEmail,
					CheckedInAt: &scan.ScannedAt,
				}
			case isNoRows(err):
				outcome, err = rejectedScan(ctx, tx, tenantID, scan)
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("could not check in ticket: %w", err)
			}

			if err := logScan(ctx, tx, tenantID, scan, outcome.Result); err != nil {
				return err
			}

			if outcome.Result != entities.ScanAdmitted {
				return nil
			}

			return publishInTx(ctx, tx, entities.TicketCheckedIn_v1{
				Header:      entities.NewEventHeaderWithIdempotencyKey(tenantID, "ticket-checked-in-"+scan.TicketID.String()),
				TicketID:    scan.TicketID,
				EventID:     scan.EventID,
				DeviceID:    scan.DeviceID,
				CheckedInAt: scan.ScannedAt,
			})
		},
	)
	if err != nil {
		return entities.ScanOutcome{}, err
	}

	return outcome, nil
}

func rejectedScan(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, scan entities.Scan) (entities.ScanOutcome, error) {
	var ticket entities.Ticket
	err := tx.GetContext(ctx, &ticket, `
		SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = $1 AND tenant_id = $2
	`, scan.TicketID, tenantID)
	if isNoRows(err) {
		return entities.ScanOutcome{Result: entities.ScanNotFound}, nil
	}
	if err != nil {
		return entities.ScanOutcome{}, fmt.Errorf("could not get scanned ticket: %w", err)
	}

	outcome := entities.ScanOutcome{TicketID: &ticket.TicketID}
	switch {
	case ticket.EventID != scan.EventID:
		outcome.Result = entities.ScanWrongEvent
	case ticket.Status == entities.TicketStatusVoid:
		outcome.Result = entities.ScanVoid
	default:
		outcome.Result = entities.ScanAlreadyCheckedIn
		outcome.HolderEmail = ticket.HolderEmail
		outcome.CheckedInAt = ticket.CheckedInAt
	}

	return outcome, nil
}

// LogRejectedScan records a scan whose payload never reached a ticket lookup.
func (r TicketRepository) LogRejectedScan(ctx context.Context, tenantID uuid.UUID, scan entities.Scan, result entities.ScanResult) error {
	return logScan(ctx, r.db.Conn, tenantID, scan, result)
}

func logScan(ctx context.Context, e sqlx.ExecerContext, tenantID uuid.UUID, scan entities.Scan, result entities.ScanResult) error {
	var ticketID *uuid.UUID
	if scan.TicketID != uuid.Nil {
		ticketID = &scan.TicketID
	}

	scannedAt := scan.ScannedAt
	if scannedAt.IsZero() {
		scannedAt = time.Now().UTC()
	}

	_, err := e.ExecContext(ctx, `
		INSERT INTO scan_log (tenant_id, event_id, ticket_id, device_id, result, scanned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, tenantID, scan.EventID, ticketID, scan.DeviceID, result, scannedAt)
	if err != nil {
		return fmt.Errorf("could not log scan: %w", err)
	}

	return nil
}

func (r TicketRepository) Stats(ctx context.Context, tenantID uuid.UUID, eventID uuid.UUID) (entities.CheckInStats, error) {
	stats := entities.CheckInStats{EventID: eventID}
	err := r.db.Conn.GetContext(ctx, &stats, `
		SELECT
			$2::uuid AS event_id,
			count(*) AS issued,
			count(*) FILTER (WHERE status = 'checked_in') AS checked_in,
			count(*) FILTER (WHERE status = 'void') AS void
		FROM tickets
		WHERE tenant_id = $1 AND event_id = $2
	`, tenantID, eventID)
	if err != nil {
		return entities.CheckInStats{}, fmt.Errorf("could not get check-in stats: %w", err)
	}

	return stats, nil
}
