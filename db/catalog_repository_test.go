package db

import (
	"context"
	"testing"
	"time"

	"livetix/entities"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f fixture) createVenue(t *testing.T, capacity int) entities.Venue {
	t.Helper()

	venue := entities.Venue{
		VenueID:  uuid.New(),
		TenantID: f.tenantID,
		Name:     "Club",
		Address:  "Main St 1",
		Capacity: capacity,
		Map: entities.VenueMap{Sections: []entities.VenueSection{
			{Key: "floor", Name: "Floor", Kind: entities.SectionStanding, Capacity: capacity},
		}},
	}
	require.NoError(t, NewCatalogRepository(f.db).CreateVenue(context.Background(), venue))

	return venue
}

func (f fixture) createEvent(t *testing.T, venueID uuid.UUID, startsAt time.Time, artistIDs ...uuid.UUID) entities.Event {
	t.Helper()

	ev := entities.Event{
		EventID:   uuid.New(),
		TenantID:  f.tenantID,
		VenueID:   venueID,
		Slug:      "gig-" + uuid.NewString()[:8],
		Title:     "Gig",
		StartsAt:  startsAt,
		EndsAt:    startsAt.Add(3 * time.Hour),
		Status:    entities.EventStatusDraft,
		ArtistIDs: artistIDs,
	}
	require.NoError(t, NewCatalogRepository(f.db).CreateEvent(context.Background(), ev))

	return ev
}

func TestCatalogRepository_CreateVenue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := NewCatalogRepository(f.db)

	venue := entities.Venue{
		VenueID:  uuid.New(),
		TenantID: f.tenantID,
		Name:     "Theatre",
		Address:  "Stage Rd 5",
		Capacity: 120,
		Map: entities.VenueMap{Sections: []entities.VenueSection{
			{Key: "stalls", Name: "Stalls", Kind: entities.SectionSeated, Capacity: 80, Rows: []string{"A", "B"}},
			{Key: "standing", Name: "Standing", Kind: entities.SectionStanding, Capacity: 40},
		}},
	}
	require.NoError(t, repo.CreateVenue(ctx, venue))

	stored, err := repo.VenueByID(ctx, f.tenantID, venue.VenueID)
	require.NoError(t, err)

	diff := cmp.Diff(venue, stored, cmpopts.IgnoreFields(entities.Venue{}, "CreatedAt"))
	assert.Empty(t, diff)

	_, err = repo.VenueByID(ctx, uuid.New(), venue.VenueID)
	assert.ErrorIs(t, err, entities.ErrNotFound)

	tooSmall := venue
	tooSmall.VenueID = uuid.New()
	tooSmall.Capacity = 100
	assert.ErrorIs(t, repo.CreateVenue(ctx, tooSmall), entities.ErrVenueCapacityExceeded)

	_, err = repo.VenueByID(ctx, f.tenantID, tooSmall.VenueID)
	assert.ErrorIs(t, err, entities.ErrNotFound)
}

func TestCatalogRepository_AddTicketType(t *testing.T) {
	ctx := context.Background()

	t.Run("capacity_sum_within_venue_capacity", func(t *testing.T) {
		f := newFixture(t)
		repo := NewCatalogRepository(f.db)

		price, err := entities.NewMoney("25.00", "EUR")
		require.NoError(t, err)

		// the fixture venue holds 100 and the fixture ticket type takes 10
		balcony := entities.TicketType{
			TicketTypeID: uuid.New(),
			EventID:      f.eventID,
			TenantID:     f.tenantID,
			Name:         "Balcony",
			Price:        price,
			Capacity:     90,
		}
		require.NoError(t, repo.AddTicketType(ctx, balcony))

		extra := balcony
		extra.TicketTypeID = uuid.New()
		extra.Name = "Extra"
		extra.Capacity = 1
		assert.ErrorIs(t, repo.AddTicketType(ctx, extra), entities.ErrVenueCapacityExceeded)

		ticketTypes, err := repo.TicketTypesWithAvailability(ctx, f.eventID, f.now)
		require.NoError(t, err)
		assert.Len(t, ticketTypes, 2)
	})

	t.Run("zero_price_comps", func(t *testing.T) {
		f := newFixture(t)
		repo := NewCatalogRepository(f.db)

		free, err := entities.NewMoney("0", "EUR")
		require.NoError(t, err)

		comp := entities.TicketType{
			TicketTypeID: uuid.New(),
			EventID:      f.eventID,
			TenantID:     f.tenantID,
			Name:         "Guest List",
			Price:        free,
			Capacity:     5,
		}
		require.NoError(t, repo.AddTicketType(ctx, comp))

		ticketTypes, err := repo.TicketTypesWithAvailability(ctx, f.eventID, f.now)
		require.NoError(t, err)

		stored, ok := lo.Find(ticketTypes, func(tt entities.TicketTypeAvailability) bool {
			return tt.TicketTypeID == comp.TicketTypeID
		})
		require.True(t, ok)
		assert.True(t, stored.Price.IsZero())
		assert.Equal(t, 5, stored.Available)
	})

	t.Run("capacity_must_be_positive", func(t *testing.T) {
		f := newFixture(t)
		repo := NewCatalogRepository(f.db)

		price, err := entities.NewMoney("10.00", "EUR")
		require.NoError(t, err)

		empty := entities.TicketType{
			TicketTypeID: uuid.New(),
			EventID:      f.eventID,
			TenantID:     f.tenantID,
			Name:         "Empty",
			Price:        price,
			Capacity:     0,
		}
		assert.Error(t, repo.AddTicketType(ctx, empty))
	})

	t.Run("unknown_event", func(t *testing.T) {
		f := newFixture(t)

		err := NewCatalogRepository(f.db).AddTicketType(ctx, entities.TicketType{
			TicketTypeID: uuid.New(),
			EventID:      uuid.New(),
			TenantID:     f.tenantID,
			Name:         "Nowhere",
			Capacity:     1,
		})
		assert.ErrorIs(t, err, entities.ErrNotFound)
	})
}

func TestCatalogRepository_ArtistBySlug(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := NewCatalogRepository(f.db)

	artist := entities.Artist{
		ArtistID: uuid.New(),
		TenantID: f.tenantID,
		Slug:     "band-" + uuid.NewString()[:8],
		Name:     "The Band",
		Genres:   pq.StringArray{"rock", "indie"},
	}
	require.NoError(t, repo.CreateArtist(ctx, artist))
	assert.ErrorIs(t, repo.CreateArtist(ctx, artist), entities.ErrAlreadyExists)

	venue := f.createVenue(t, 50)

	later := f.createEvent(t, venue.VenueID, f.now.Add(72*time.Hour), artist.ArtistID)
	sooner := f.createEvent(t, venue.VenueID, f.now.Add(48*time.Hour), artist.ArtistID)
	draft := f.createEvent(t, venue.VenueID, f.now.Add(24*time.Hour), artist.ArtistID)
	past := f.createEvent(t, venue.VenueID, f.now.Add(-48*time.Hour), artist.ArtistID)

	for _, ev := range []entities.Event{later, sooner, past} {
		require.NoError(t, repo.SetEventStatus(ctx, f.tenantID, ev.EventID, entities.EventStatusPublished))
	}

	details, err := repo.ArtistBySlug(ctx, f.tenantID, artist.Slug, f.now)
	require.NoError(t, err)
	assert.Equal(t, artist.Name, details.Artist.Name)
	assert.Equal(t, []string{"rock", "indie"}, []string(details.Artist.Genres))

	eventIDs := lo.Map(details.UpcomingEvents, func(ev entities.Event, _ int) uuid.UUID {
		return ev.EventID
	})
	assert.Equal(t, []uuid.UUID{sooner.EventID, later.EventID}, eventIDs)
	assert.NotContains(t, eventIDs, draft.EventID)
	assert.Equal(t, []uuid.UUID{artist.ArtistID}, details.UpcomingEvents[0].ArtistIDs)

	_, err = repo.ArtistBySlug(ctx, f.tenantID, "missing", f.now)
	assert.ErrorIs(t, err, entities.ErrNotFound)

	// artists are per tenant
	_, err = repo.ArtistBySlug(ctx, uuid.New(), artist.Slug, f.now)
	assert.ErrorIs(t, err, entities.ErrNotFound)
}

func TestCatalogRepository_CreateEvent_unknown_artist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	venue := f.createVenue(t, 10)

	err := NewCatalogRepository(f.db).CreateEvent(ctx, entities.Event{
		EventID:   uuid.New(),
		TenantID:  f.tenantID,
		VenueID:   venue.VenueID,
		Slug:      "ghost-" + uuid.NewString()[:8],
		Title:     "Ghost",
		StartsAt:  f.now.Add(time.Hour),
		EndsAt:    f.now.Add(2 * time.Hour),
		Status:    entities.EventStatusDraft,
		ArtistIDs: []uuid.UUID{uuid.New()},
	})
	assert.ErrorIs(t, err, entities.ErrUnknownArtist)
}

func TestCatalogRepository_SetEventStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := NewCatalogRepository(f.db)

	venue := f.createVenue(t, 10)
	ev := f.createEvent(t, venue.VenueID, f.now.Add(24*time.Hour))

	steps := []struct {
		Name        string
		Status      entities.EventStatus
		ExpectedErr error
	}{
		{Name: "back_to_draft", Status: entities.EventStatusDraft, ExpectedErr: entities.ErrInvalidTransition},
		{Name: "publish_draft", Status: entities.EventStatusPublished},
		{Name: "publish_twice", Status: entities.EventStatusPublished, ExpectedErr: entities.ErrInvalidTransition},
		{Name: "cancel_published", Status: entities.EventStatusCancelled},
		{Name: "publish_cancelled", Status: entities.EventStatusPublished, ExpectedErr: entities.ErrInvalidTransition},
		{Name: "cancel_twice", Status: entities.EventStatusCancelled, ExpectedErr: entities.ErrInvalidTransition},
	}

	// steps run in order, each one starts from the status the previous one left
	for _, step := range steps {
		err := repo.SetEventStatus(ctx, f.tenantID, ev.EventID, step.Status)
		if step.ExpectedErr != nil {
			assert.ErrorIs(t, err, step.ExpectedErr, step.Name)
		} else {
			assert.NoError(t, err, step.Name)
		}
	}

	err := repo.SetEventStatus(ctx, f.tenantID, uuid.New(), entities.EventStatusPublished)
	assert.ErrorIs(t, err, entities.ErrNotFound)

	err = repo.SetEventStatus(ctx, uuid.New(), ev.EventID, entities.EventStatusCancelled)
	assert.ErrorIs(t, err, entities.ErrNotFound)

	draft := f.createEvent(t, venue.VenueID, f.now.Add(24*time.Hour))
	require.NoError(t, repo.SetEventStatus(ctx, f.tenantID, draft.EventID, entities.EventStatusCancelled))
}
