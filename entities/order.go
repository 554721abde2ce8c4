package entities

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusExpired  OrderStatus = "expired"
	OrderStatusRefunded OrderStatus = "refunded"
)

type Order struct {
	OrderID             uuid.UUID   `json:"order_id" db:"order_id"`
	TenantID            uuid.UUID   `json:"-" db:"tenant_id"`
	CustomerEmail       string      `json:"customer_email" db:"customer_email"`
	Status              OrderStatus `json:"status" db:"status"`
	Total               Money       `json:"total" db:"total"`
	CreditsUsed         int         `json:"credits_used" db:"credits_used"`
	ReferralCode        string      `json:"referral_code,omitempty" db:"referral_code"`
	IdempotencyKey      string      `json:"-" db:"idempotency_key"`
	StripeSessionID     string      `json:"-" db:"stripe_session_id"`
	CheckoutURL         string      `json:"checkout_url,omitempty" db:"checkout_url"`
	StripePaymentIntent string      `json:"-" db:"stripe_payment_intent"`
	ReservedUntil       time.Time   `json:"reserved_until" db:"reserved_until"`
	CreatedAt           time.Time   `json:"created_at" db:"created_at"`
	PaidAt              *time.Time  `json:"paid_at,omitempty" db:"paid_at"`
	RefundedAt          *time.Time  `json:"refunded_at,omitempty" db:"refunded_at"`

	Items []OrderItem `json:"items" db:"-"`
}

func (o Order) Refundable() bool {
	return o.Status == OrderStatusPaid
}

func (o Order) TicketsCount() int {
	n := 0
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

type OrderItem struct {
	OrderID        uuid.UUID `json:"-" db:"order_id"`
	TicketTypeID   uuid.UUID `json:"ticket_type_id" db:"ticket_type_id"`
	Quantity       int       `json:"quantity" db:"quantity"`
	UnitPrice      Money     `json:"unit_price" db:"unit_price"`
	CreditsApplied int       `json:"credits_applied" db:"credits_applied"`
}

type OrderRequestItem struct {
	TicketTypeID uuid.UUID `json:"ticket_type_id"`
	Quantity     int       `json:"quantity"`
}

type OrderRequest struct {
	OrderID        uuid.UUID
	TenantID       uuid.UUID
	CustomerEmail  string
	Items          []OrderRequestItem
	UseCredits     int
	ReferralCode   string
	IdempotencyKey string
	Now            time.Time
	ReservationTTL time.Duration
}

type OrderLine struct {
	TicketType TicketType
	Quantity   int
}

type OrderPricing struct {
	Items       []OrderItem
	Subtotal    Money
	CreditsUsed int
	Total       Money
}

// PriceOrder applies the member discount to every line and spends credits on
// whole credit-eligible tickets, most expensive first.
func PriceOrder(lines []OrderLine, discountPercent int, credits int) (OrderPricing, error) {
	if len(lines) == 0 {
		return OrderPricing{}, ErrInvalidQuantity
	}
	if credits < 0 {
		return OrderPricing{}, fmt.Errorf("credits must not be negative")
	}

	currency := lines[0].TicketType.Price.Currency
	items := make([]OrderItem, len(lines))
	subtotal := Zero(currency)
	eligible := 0

	for i, line := range lines {
		if line.Quantity <= 0 {
			return OrderPricing{}, ErrInvalidQuantity
		}
		if line.TicketType.Price.Currency != currency {
			return OrderPricing{}, fmt.Errorf("order mixes currencies %s and %s", currency, line.TicketType.Price.Currency)
		}

		unit := line.TicketType.Price.ApplyDiscount(discountPercent)
		items[i] = OrderItem{
			TicketTypeID: line.TicketType.TicketTypeID,
			Quantity:     line.Quantity,
			UnitPrice:    unit,
		}
		subtotal = subtotal.Add(unit.Mul(line.Quantity))

		if line.TicketType.CreditEligible {
			eligible += line.Quantity
		}
	}

	if credits > eligible {
		return OrderPricing{}, ErrTooManyCredits
	}

	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return items[order[a]].UnitPrice.Amount.GreaterThan(items[order[b]].UnitPrice.Amount)
	})

	total := subtotal
	remaining := credits
	for _, idx := range order {
		if remaining == 0 {
			break
		}
		if !lines[idx].TicketType.CreditEligible {
			continue
		}

		n := min(remaining, items[idx].Quantity)
		items[idx].CreditsApplied = n
		total = total.Sub(items[idx].UnitPrice.Mul(n))
		remaining -= n
	}

	return OrderPricing{
		Items:       items,
		Subtotal:    subtotal,
		CreditsUsed: credits,
		Total:       total,
	}, nil
}

func (p OrderPricing) TicketsCount() int {
	n := 0
	for _, item := range p.Items {
		n += item.Quantity
	}
	return n
}

type CheckoutSession struct {
	ID  string
	URL string
}
