package command

import (
	"context"
	"errors"
	"fmt"

	"livetix/entities"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
)

// RefundOrder refunds the payment first; the order is marked refunded only
// once the payment provider accepted the refund. The refund is keyed by the
// order id, so retries never refund twice.
func (h Handler) RefundOrder(ctx context.Context, cmd *entities.RefundOrder) error {
	order, err := h.ordersRepo.OrderForRefund(ctx, cmd.OrderID)
	if errors.Is(err, entities.ErrNotFound) {
		return entities.PermanentError{Err: fmt.Errorf("order %s: %w", cmd.OrderID, err)}
	}
	if err != nil {
		return err
	}

	logger := log.FromContext(ctx).WithField("order_id", order.OrderID)

	if order.Status == entities.OrderStatusRefunded {
		logger.Info("Order already refunded")
		return nil
	}
	if !order.Refundable() {
		return entities.PermanentError{Err: fmt.Errorf("order %s is %s: %w", order.OrderID, order.Status, entities.ErrOrderNotRefundable)}
	}

	if !order.Total.IsZero() && order.StripePaymentIntent != "" {
		err := h.payments.RefundPayment(ctx, order.StripePaymentIntent, "refund-"+order.OrderID.String())
		if err != nil {
			return fmt.Errorf("could not refund payment of order %s: %w", order.OrderID, err)
		}
	}

	if err := h.ordersRepo.MarkRefunded(ctx, order.OrderID, h.now()); err != nil {
		return fmt.Errorf("could not mark order %s refunded: %w", order.OrderID, err)
	}

	logger.WithField("reason", cmd.Reason).Info("Order refunded")

	return nil
}
