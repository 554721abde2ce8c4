package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"livetix/entities"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"
)

// reservedQuantitySQL counts units held by paid orders and by pending orders
// whose reservation has not expired. Format it with the ticket type id and
// the current time expressions.
const reservedQuantitySQL = `
	SELECT
		COALESCE(SUM(oi.quantity), 0)
	FROM
		order_items oi
		JOIN orders o ON o.order_id = oi.order_id
	WHERE
		oi.ticket_type_id = %s
		AND (o.status = 'paid' OR (o.status = 'pending' AND o.reserved_until > %s))
`

const ticketTypeColumns = `
	tt.ticket_type_id,
	tt.event_id,
	tt.tenant_id,
	tt.name,
	tt.price_amount AS "price.amount",
	tt.price_currency AS "price.currency",
	tt.capacity,
	tt.member_only,
	tt.credit_eligible,
	tt.sales_start_at,
	tt.sales_end_at
`

const eventColumns = `
	e.event_id, e.tenant_id, e.venue_id, e.slug, e.title, e.description,
	e.starts_at, e.ends_at, e.status, e.created_at
`

type CatalogRepository struct {
	db *DB
}

func NewCatalogRepository(db *DB) CatalogRepository {
	if db == nil {
		panic("db is nil")
	}
	return CatalogRepository{
		db: db,
	}
}

func (r CatalogRepository) CreateArtist(ctx context.Context, artist entities.Artist) error {
	if artist.Genres == nil {
		artist.Genres = pq.StringArray{}
	}

	_, err := r.db.Conn.NamedExecContext(ctx, `
		INSERT INTO
			artists (artist_id, tenant_id, slug, name, bio, genres)
		VALUES
			(:artist_id, :tenant_id, :slug, :name, :bio, :genres)
	`, artist)
	if isErrorUniqueViolation(err) {
		return entities.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("could not create artist: %w", err)
	}

	return nil
}

func (r CatalogRepository) ListArtists(ctx context.Context, tenantID uuid.UUID) ([]entities.Artist, error) {
	artists := []entities.Artist{}
	err := r.db.Conn.SelectContext(ctx, &artists, `
		SELECT artist_id, tenant_id, slug, name, bio, genres, created_at
		FROM artists
		WHERE tenant_id = $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("could not list artists: %w", err)
	}

	return artists, nil
}

func (r CatalogRepository) ArtistBySlug(ctx context.Context, tenantID uuid.UUID, slug string, now time.Time) (entities.ArtistDetails, error) {
	var artist entities.Artist
	err := r.db.Conn.GetContext(ctx, &artist, `
		SELECT artist_id, tenant_id, slug, name, bio, genres, created_at
		FROM artists
		WHERE tenant_id = $1 AND slug = $2
	`, tenantID, slug)
	if isNoRows(err) {
		return entities.ArtistDetails{}, entities.ErrNotFound
	}
	if err != nil {
		return entities.ArtistDetails{}, fmt.Errorf("could not get artist: %w", err)
	}

	events := []entities.Event{}
	err = r.db.Conn.SelectContext(ctx, &events, `
		SELECT `+eventColumns+`
		FROM events e
		JOIN event_artists ea ON ea.event_id = e.event_id
		WHERE ea.artist_id = $1 AND e.status = 'published' AND e.ends_at > $2
		ORDER BY e.starts_at
	`, artist.ArtistID, now)
	if err != nil {
		return entities.ArtistDetails{}, fmt.Errorf("could not get artist events: %w", err)
	}

	if err := r.loadArtistIDs(ctx, events); err != nil {
		return entities.ArtistDetails{}, err
	}

	return entities.ArtistDetails{Artist: artist, UpcomingEvents: events}, nil
}

func (r CatalogRepository) CreateVenue(ctx context.Context, venue entities.Venue) error {
	if err := venue.Map.Validate(venue.Capacity); err != nil {
		return err
	}

	venueMap, err := json.Marshal(venue.Map)
	if err != nil {
		return fmt.Errorf("could not marshal venue map: %w", err)
	}

	_, err = r.db.Conn.ExecContext(ctx, `
		INSERT INTO
			venues (venue_id, tenant_id, name, address, capacity, map)
		VALUES
			($1, $2, $3, $4, $5, $6)
	`, venue.VenueID, venue.TenantID, venue.Name, venue.Address, venue.Capacity, string(venueMap))
	if err != nil {
		return fmt.Errorf("could not create venue: %w", err)
	}

	return nil
}

type venueRow struct {
	entities.Venue
	MapJSON []byte `db:"map"`
}

func (r CatalogRepository) VenueByID(ctx context.Context, tenantID uuid.UUID, venueID uuid.UUID) (entities.Venue, error) {
	return r.venueByID(ctx, r.db.Conn, tenantID, venueID)
}

func (r CatalogRepository) venueByID(ctx context.Context, q sqlx.QueryerContext, tenantID uuid.UUID, venueID uuid.UUID) (entities.Venue, error) {
	var row venueRow
	err := sqlx.GetContext(ctx, q, &row, `
		SELECT venue_id, tenant_id, name, address, capacity, map, created_at
		FROM venues
		WHERE tenant_id = $1 AND venue_id = $2
	`, tenantID, venueID)
	if isNoRows(err) {
		return entities.Venue{}, entities.ErrNotFound
	}
	if err != nil {
		return entities.Venue{}, fmt.Errorf("could not get venue: %w", err)
	}

	venue := row.Venue
	if err := json.Unmarshal(row.MapJSON, &venue.Map); err != nil {
		return entities.Venue{}, fmt.Errorf("could not unmarshal venue map: %w", err)
	}

	return venue, nil
}

func (r CatalogRepository) CreateEvent(ctx context.Context, ev entities.Event) error {
	return updateInTx(
		ctx,
		r.db.Conn,
		sql.LevelReadCommitted,
		func(ctx context.Context, tx *sqlx.Tx) error {
			if _, err := r.venueByID(ctx, tx, ev.TenantID, ev.VenueID); err != nil {
				return err
			}

			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO
					events (event_id, tenant_id, venue_id, slug, title, description, starts_at, ends_at, status)
				VALUES
					(:event_id, :tenant_id, :venue_id, :slug, :title, :description, :starts_at, :ends_at, :status)
			`, ev)
			if isErrorUniqueViolation(err) {
				return entities.ErrAlreadyExists
			}
			if err != nil {
				return fmt.Errorf("could not create event: %w", err)
			}

			for i, artistID := range ev.ArtistIDs {
				res, err := tx.ExecContext(ctx, `
					INSERT INTO event_artists (event_id, artist_id, billing_order)
					SELECT $1, artist_id, $3 FROM artists WHERE artist_id = $2 AND tenant_id = $4
				`, ev.EventID, artistID, i, ev.TenantID)
				if isErrorUniqueViolation(err) || isErrorForeignKeyViolation(err) {
					return entities.ErrUnknownArtist
				}
				if err != nil {
					return fmt.Errorf("could not add artist to event: %w", err)
				}
				if n, _ := res.RowsAffected(); n == 0 {
					return entities.ErrUnknownArtist
				}
			}

			return nil
		},
	)
}

// SetEventStatus publishes drafts and cancels drafts or published events.
func (r CatalogRepository) SetEventStatus(ctx context.Context, tenantID uuid.UUID, eventID uuid.UUID, status entities.EventStatus) error {
	var from []string
	switch status {
	case entities.EventStatusPublished:
		from = []string{string(entities.EventStatusDraft)}
	case entities.EventStatusCancelled:
		from = []string{string(entities.EventStatusDraft), string(entities.EventStatusPublished)}
	default:
		return entities.ErrInvalidTransition
	}

	res, err := r.db.Conn.ExecContext(ctx, `
		UPDATE events SET status = $1
		WHERE tenant_id = $2 AND event_id = $3 AND status = ANY($4)
	`, status, tenantID, eventID, pq.Array(from))
	if err != nil {
		return fmt.Errorf("could not update event status: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var exists bool
	err = r.db.Conn.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM events WHERE tenant_id = $1 AND event_id = $2)
	`, tenantID, eventID)
	if err != nil {
		return fmt.Errorf("could not check if event exists: %w", err)
	}
	if !exists {
		return entities.ErrNotFound
	}

	return entities.ErrInvalidTransition
}

func (r CatalogRepository) ListUpcomingEvents(ctx context.Context, tenantID uuid.UUID, now time.Time) ([]entities.Event, error) {
	events := []entities.Event{}
	err := r.db.Conn.SelectContext(ctx, &events, `
		SELECT `+eventColumns+`
		FROM events e
		WHERE e.tenant_id = $1 AND e.status = 'published' AND e.ends_at > $2
		ORDER BY e.starts_at
	`, tenantID, now)
	if err != nil {
		return nil, fmt.Errorf("could not list events: %w", err)
	}

	if err := r.loadArtistIDs(ctx, events); err != nil {
		return nil, err
	}

	return events, nil
}

func (r CatalogRepository) EventDetailsBySlug(ctx context.Context, tenantID uuid.UUID, slug string, now time.Time) (entities.EventDetails, error) {
	var ev entities.Event
	err := r.db.Conn.GetContext(ctx, &ev, `
		SELECT `+eventColumns+`
		FROM events e
		WHERE e.tenant_id = $1 AND e.slug = $2 AND e.status <> 'draft'
	`, tenantID, slug)
	if isNoRows(err) {
		return entities.EventDetails{}, entities.ErrNotFound
	}
	if err != nil {
		return entities.EventDetails{}, fmt.Errorf("could not get event: %w", err)
	}

	events := []entities.Event{ev}
	if err := r.loadArtistIDs(ctx, events); err != nil {
		return entities.EventDetails{}, err
	}
	ev = events[0]

	venue, err := r.venueByID(ctx, r.db.Conn, tenantID, ev.VenueID)
	if err != nil {
		return entities.EventDetails{}, err
	}

	artists := []entities.Artist{}
	err = r.db.Conn.SelectContext(ctx, &artists, `
		SELECT a.artist_id, a.tenant_id, a.slug, a.name, a.bio, a.genres, a.created_at
		FROM artists a
		JOIN event_artists ea ON ea.artist_id = a.artist_id
		WHERE ea.event_id = $1
		ORDER BY ea.billing_order
	`, ev.EventID)
	if err != nil {
		return entities.EventDetails{}, fmt.Errorf("could not get event artists: %w", err)
	}

	ticketTypes, err := r.TicketTypesWithAvailability(ctx, ev.EventID, now)
	if err != nil {
		return entities.EventDetails{}, err
	}

	return entities.EventDetails{
		Event:       ev,
		Venue:       venue,
		Artists:     artists,
		TicketTypes: ticketTypes,
	}, nil
}

func (r CatalogRepository) TicketTypesWithAvailability(ctx context.Context, eventID uuid.UUID, now time.Time) ([]entities.TicketTypeAvailability, error) {
	ticketTypes := []entities.TicketTypeAvailability{}
	err := r.db.Conn.SelectContext(ctx, &ticketTypes, `
		SELECT `+ticketTypeColumns+`,
			tt.capacity - (`+fmt.Sprintf(reservedQuantitySQL, "tt.ticket_type_id", "$2")+`) AS available
		FROM ticket_types tt
		WHERE tt.event_id = $1
		ORDER BY tt.price_amount, tt.name
	`, eventID, now)
	if err != nil {
		return nil, fmt.Errorf("could not get ticket types: %w", err)
	}

	return ticketTypes, nil
}

// AddTicketType keeps the sum of ticket type capacities within the venue capacity.
func (r CatalogRepository) AddTicketType(ctx context.Context, ticketType entities.TicketType) error {
	return updateInTx(
		ctx,
		r.db.Conn,
		sql.LevelReadCommitted,
		func(ctx context.Context, tx *sqlx.Tx) error {
			var venueCapacity int
			err := tx.GetContext(ctx, &venueCapacity, `
				SELECT v.capacity
				FROM events e
				JOIN venues v ON v.venue_id = e.venue_id
				WHERE e.tenant_id = $1 AND e.event_id = $2
				FOR UPDATE OF e
			`, ticketType.TenantID, ticketType.EventID)
			if isNoRows(err) {
				return entities.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("could not lock event: %w", err)
			}

			var allocated int
			err = tx.GetContext(ctx, &allocated, `
				SELECT COALESCE(SUM(capacity), 0) FROM ticket_types WHERE event_id = $1
			`, ticketType.EventID)
			if err != nil {
				return fmt.Errorf("could not sum ticket type capacity: %w", err)
			}

			if allocated+ticketType.Capacity > venueCapacity {
				return entities.ErrVenueCapacityExceeded
			}

			_, err = tx.NamedExecContext(ctx, `
				INSERT INTO
					ticket_types (ticket_type_id, event_id, tenant_id, name, price_amount, price_currency,
						capacity, member_only, credit_eligible, sales_start_at, sales_end_at)
				VALUES
					(:ticket_type_id, :event_id, :tenant_id, :name, :price.amount, :price.currency,
						:capacity, :member_only, :credit_eligible, :sales_start_at, :sales_end_at)
			`, ticketType)
			if err != nil {
				return fmt.Errorf("could not create ticket type: %w", err)
			}

			return nil
		},
	)
}

type eventArtistRow struct {
	EventID  uuid.UUID `db:"event_id"`
	ArtistID uuid.UUID `db:"artist_id"`
}

func (r CatalogRepository) loadArtistIDs(ctx context.Context, events []entities.Event) error {
	if len(events) == 0 {
		return nil
	}

	var rows []eventArtistRow
	err := r.db.Conn.SelectContext(ctx, &rows, `
		SELECT event_id, artist_id
		FROM event_artists
		WHERE event_id = ANY($1)
		ORDER BY event_id, billing_order
	`, pq.Array(lo.Map(events, func(e entities.Event, _ int) string { return e.EventID.String() })))
	if err != nil {
		return fmt.Errorf("could not load event artists: %w", err)
	}

	byEvent := lo.GroupBy(rows, func(row eventArtistRow) uuid.UUID {
		return row.EventID
	})

	for i := range events {
		events[i].ArtistIDs = lo.Map(byEvent[events[i].EventID], func(row eventArtistRow, _ int) uuid.UUID {
			return row.ArtistID
		})
	}

	return nil
}
