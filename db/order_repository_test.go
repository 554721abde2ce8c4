package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"livetix/entities"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderRepository_PlaceOrder_idempotency(t *testing.T) {
	f := newFixture(t, withCapacity(3))
	ctx := context.Background()
	repo := NewOrderRepository(f.db)

	req := f.orderRequest("buyer@example.com", 2)

	order, created, err := repo.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, entities.OrderStatusPending, order.Status)
	assert.Equal(t, "80.00 EUR", order.Total.String())

	retry := req
	retry.OrderID = uuid.New()

	replayed, created, err := repo.PlaceOrder(ctx, retry)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, order.OrderID, replayed.OrderID)

	assert.Equal(t, 1, f.available(t, f.now))

	stored, err := repo.ByID(ctx, f.tenantID, order.OrderID)
	require.NoError(t, err)

	diff := cmp.Diff(
		order.Items,
		stored.Items,
		cmpopts.IgnoreFields(entities.OrderItem{}, "UnitPrice"),
	)
	assert.Empty(t, diff)
}

func TestOrderRepository_PlaceOrder_sold_out(t *testing.T) {
	f := newFixture(t, withCapacity(3))
	ctx := context.Background()
	repo := NewOrderRepository(f.db)

	f.placeOrder(t, f.orderRequest("first@example.com", 2))

	_, _, err := repo.PlaceOrder(ctx, f.orderRequest("second@example.com", 2))
	assert.ErrorIs(t, err, entities.ErrSoldOut)

	f.placeOrder(t, f.orderRequest("third@example.com", 1))
	assert.Equal(t, 0, f.available(t, f.now))
}

func TestOrderRepository_PlaceOrder_concurrent_orders_never_oversell(t *testing.T) {
	f := newFixture(t, withCapacity(5))
	ctx := context.Background()
	repo := NewOrderRepository(f.db)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		placed  int
		soldOut int
	)

	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, _, err := repo.PlaceOrder(ctx, f.orderRequest("fan@example.com", 1))

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				placed++
			case assert.ErrorIs(t, err, entities.ErrSoldOut):
				soldOut++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, placed)
	assert.Equal(t, 7, soldOut)
	assert.Equal(t, 0, f.available(t, f.now))
}

func TestOrderRepository_PlaceOrder_rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("not_on_sale_after_start", func(t *testing.T) {
		f := newFixture(t)
		req := f.orderRequest("late@example.com", 1)
		req.Now = f.now.Add(48 * time.Hour)

		_, _, err := NewOrderRepository(f.db).PlaceOrder(ctx, req)
		assert.ErrorIs(t, err, entities.ErrEventNotOnSale)
	})

	t.Run("members_only", func(t *testing.T) {
		f := newFixture(t, memberOnly())

		_, _, err := NewOrderRepository(f.db).PlaceOrder(ctx, f.orderRequest("guest@example.com", 1))
		assert.ErrorIs(t, err, entities.ErrMembersOnly)
	})

	t.Run("insufficient_credits", func(t *testing.T) {
		f := newFixture(t)
		req := f.orderRequest("broke@example.com", 1)
		req.UseCredits = 1

		_, _, err := NewOrderRepository(f.db).PlaceOrder(ctx, req)
		assert.ErrorIs(t, err, entities.ErrInsufficientCredits)
	})

	t.Run("missing_idempotency_key", func(t *testing.T) {
		f := newFixture(t)
		req := f.orderRequest("buyer@example.com", 1)
		req.IdempotencyKey = ""

		_, _, err := NewOrderRepository(f.db).PlaceOrder(ctx, req)
		assert.ErrorIs(t, err, entities.ErrIdempotencyKeyMissing)
	})

	t.Run("unknown_referral_code", func(t *testing.T) {
		f := newFixture(t)
		req := f.orderRequest("buyer@example.com", 1)
		req.ReferralCode = "NOPE1234"

		_, _, err := NewOrderRepository(f.db).PlaceOrder(ctx, req)
		assert.ErrorIs(t, err, entities.ErrInvalidReferralCode)
	})
}

func TestOrderRepository_ExpireReservations(t *testing.T) {
	f := newFixture(t, withCapacity(2))
	ctx := context.Background()
	repo := NewOrderRepository(f.db)
	credits := NewCreditRepository(f.db)

	email := "expiring@example.com"
	require.NoError(t, credits.Adjust(ctx, f.tenantID, email, 1, "welcome"))

	req := f.orderRequest(email, 2)
	req.UseCredits = 1
	order := f.placeOrder(t, req)
	assert.Equal(t, 1, order.CreditsUsed)
	assert.Equal(t, "40.00 EUR", order.Total.String())

	balance, err := credits.Balance(ctx, f.tenantID, email)
	require.NoError(t, err)
	assert.Equal(t, 0, balance.Balance)

	afterTTL := f.now.Add(31 * time.Minute)
	assert.Equal(t, 2, f.available(t, afterTTL))

	// other tests may have left pending orders behind, drain them all
	total := 0
	for {
		expired, err := repo.ExpireReservations(ctx, afterTTL, 100)
		require.NoError(t, err)
		if expired == 0 {
			break
		}
		total += expired
	}
	assert.GreaterOrEqual(t, total, 1)

	stored, err := repo.ByID(ctx, f.tenantID, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusExpired, stored.Status)

	balance, err = credits.Balance(ctx, f.tenantID, email)
	require.NoError(t, err)
	assert.Equal(t, 1, balance.Balance)

	// an expired order can't be paid anymore
	err = NewWebhookRepository(f.db).CompleteOrderPayment(ctx, newWebhook("checkout.session.completed"), order.OrderID, "pi_late", afterTTL)
	assert.ErrorIs(t, err, entities.ErrOrderExpired)
}

func TestOrderRepository_payment_after_reservation_ended(t *testing.T) {
	ctx := context.Background()

	t.Run("units_taken_by_another_order", func(t *testing.T) {
		f := newFixture(t, withCapacity(1))
		webhooks := NewWebhookRepository(f.db)

		late := f.placeOrder(t, f.orderRequest("late@example.com", 1))

		competing := f.orderRequest("competing@example.com", 1)
		competing.Now = f.now.Add(31 * time.Minute)
		f.placeOrder(t, competing)

		err := webhooks.CompleteOrderPayment(ctx, newWebhook("checkout.session.completed"), late.OrderID, "pi_late", f.now.Add(32*time.Minute))
		assert.ErrorIs(t, err, entities.ErrOrderExpired)

		stored, err := NewOrderRepository(f.db).ByID(ctx, f.tenantID, late.OrderID)
		require.NoError(t, err)
		assert.Equal(t, entities.OrderStatusPending, stored.Status)
		assert.Equal(t, 0, f.available(t, f.now.Add(32*time.Minute)))
	})

	t.Run("units_still_free", func(t *testing.T) {
		f := newFixture(t, withCapacity(1))
		webhooks := NewWebhookRepository(f.db)

		late := f.placeOrder(t, f.orderRequest("late@example.com", 1))

		err := webhooks.CompleteOrderPayment(ctx, newWebhook("checkout.session.completed"), late.OrderID, "pi_late", f.now.Add(32*time.Minute))
		require.NoError(t, err)

		stored, err := NewOrderRepository(f.db).ByID(ctx, f.tenantID, late.OrderID)
		require.NoError(t, err)
		assert.Equal(t, entities.OrderStatusPaid, stored.Status)
		assert.Equal(t, 0, f.available(t, f.now.Add(32*time.Minute)))
	})
}

func TestOrderRepository_PlaceOrder_fully_covered_by_credits_is_paid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	email := "member@example.com"
	require.NoError(t, NewCreditRepository(f.db).Adjust(ctx, f.tenantID, email, 2, "gift"))

	req := f.orderRequest(email, 2)
	req.UseCredits = 2
	order := f.placeOrder(t, req)

	assert.Equal(t, entities.OrderStatusPaid, order.Status)
	assert.True(t, order.Total.IsZero())
	require.NotNil(t, order.PaidAt)
}

func TestOrderRepository_MarkRefunded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := NewOrderRepository(f.db)

	order := f.placeOrder(t, f.orderRequest("refund@example.com", 2))

	err := repo.MarkRefunded(ctx, order.OrderID, f.now)
	assert.ErrorIs(t, err, entities.ErrOrderNotRefundable)

	f.payOrder(t, order.OrderID)

	tickets, err := NewTicketRepository(f.db, testSigner).IssueForOrder(ctx, order.OrderID)
	require.NoError(t, err)
	require.Len(t, tickets, 2)

	require.NoError(t, repo.MarkRefunded(ctx, order.OrderID, f.now))
	require.NoError(t, repo.MarkRefunded(ctx, order.OrderID, f.now))

	stored, err := repo.ByID(ctx, f.tenantID, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusRefunded, stored.Status)

	tickets, err = NewTicketRepository(f.db, testSigner).ByOrder(ctx, order.OrderID)
	require.NoError(t, err)
	for _, ticket := range tickets {
		assert.Equal(t, entities.TicketStatusVoid, ticket.Status)
	}

	assert.Equal(t, 10, f.available(t, f.now))
}
