package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Tenant struct {
	TenantID  uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Slug      string    `json:"slug" db:"slug"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Artist struct {
	ArtistID  uuid.UUID      `json:"artist_id" db:"artist_id"`
	TenantID  uuid.UUID      `json:"-" db:"tenant_id"`
	Slug      string         `json:"slug" db:"slug"`
	Name      string         `json:"name" db:"name"`
	Bio       string         `json:"bio" db:"bio"`
	Genres    pq.StringArray `json:"genres" db:"genres"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

type SectionKind string

const (
	SectionStanding SectionKind = "standing"
	SectionSeated   SectionKind = "seated"
)

type VenueSection struct {
	Key      string      `json:"key"`
	Name     string      `json:"name"`
	Kind     SectionKind `json:"kind"`
	Capacity int         `json:"capacity"`
	Rows     []string    `json:"rows,omitempty"`
}

// VenueMap is stored as JSONB next to the venue row.
type VenueMap struct {
	Sections []VenueSection `json:"sections"`
}

func (m VenueMap) TotalCapacity() int {
	total := 0
	for _, s := range m.Sections {
		total += s.Capacity
	}
	return total
}

func (m VenueMap) Validate(venueCapacity int) error {
	seen := make(map[string]struct{}, len(m.Sections))
	for _, s := range m.Sections {
		if s.Key == "" {
			return fmt.Errorf("section key must be set")
		}
		if _, ok := seen[s.Key]; ok {
			return fmt.Errorf("duplicate section key %q", s.Key)
		}
		seen[s.Key] = struct{}{}

		if s.Capacity <= 0 {
			return fmt.Errorf("section %q must have positive capacity", s.Key)
		}
		switch s.Kind {
		case SectionStanding:
		case SectionSeated:
			if len(s.Rows) == 0 {
				return fmt.Errorf("seated section %q must define rows", s.Key)
			}
		default:
			return fmt.Errorf("section %q has unknown kind %q", s.Key, s.Kind)
		}
	}

	if m.TotalCapacity() > venueCapacity {
		return ErrVenueCapacityExceeded
	}

	return nil
}

type Venue struct {
	VenueID   uuid.UUID `json:"venue_id" db:"venue_id"`
	TenantID  uuid.UUID `json:"-" db:"tenant_id"`
	Name      string    `json:"name" db:"name"`
	Address   string    `json:"address" db:"address"`
	Capacity  int       `json:"capacity" db:"capacity"`
	Map       VenueMap  `json:"map" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusCancelled EventStatus = "cancelled"
)

type Event struct {
	EventID     uuid.UUID   `json:"event_id" db:"event_id"`
	TenantID    uuid.UUID   `json:"-" db:"tenant_id"`
	VenueID     uuid.UUID   `json:"venue_id" db:"venue_id"`
	Slug        string      `json:"slug" db:"slug"`
	Title       string      `json:"title" db:"title"`
	Description string      `json:"description" db:"description"`
	StartsAt    time.Time   `json:"starts_at" db:"starts_at"`
	EndsAt      time.Time   `json:"ends_at" db:"ends_at"`
	Status      EventStatus `json:"status" db:"status"`
	ArtistIDs   []uuid.UUID `json:"artist_ids" db:"-"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

func (e Event) OnSale(now time.Time) bool {
	return e.Status == EventStatusPublished && now.Before(e.StartsAt)
}

type TicketType struct {
	TicketTypeID   uuid.UUID  `json:"ticket_type_id" db:"ticket_type_id"`
	EventID        uuid.UUID  `json:"event_id" db:"event_id"`
	TenantID       uuid.UUID  `json:"-" db:"tenant_id"`
	Name           string     `json:"name" db:"name"`
	Price          Money      `json:"price" db:"price"`
	Capacity       int        `json:"capacity" db:"capacity"`
	MemberOnly     bool       `json:"member_only" db:"member_only"`
	CreditEligible bool       `json:"credit_eligible" db:"credit_eligible"`
	SalesStartAt   *time.Time `json:"sales_start_at,omitempty" db:"sales_start_at"`
	SalesEndAt     *time.Time `json:"sales_end_at,omitempty" db:"sales_end_at"`
}

func (t TicketType) SalesOpen(now time.Time) bool {
	if t.SalesStartAt != nil && now.Before(*t.SalesStartAt) {
		return false
	}
	if t.SalesEndAt != nil && !now.Before(*t.SalesEndAt) {
		return false
	}
	return true
}

type TicketTypeAvailability struct {
	TicketType
	Available int `json:"available"`
}

type EventDetails struct {
	Event       Event                    `json:"event"`
	Venue       Venue                    `json:"venue"`
	Artists     []Artist                 `json:"artists"`
	TicketTypes []TicketTypeAvailability `json:"ticket_types"`
}

type ArtistDetails struct {
	Artist         Artist  `json:"artist"`
	UpcomingEvents []Event `json:"upcoming_events"`
}
