package message

import (
	"errors"
	"time"

	"livetix/message/event"
	observability "livetix/trace"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/lithammer/shortuuid/v3"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const PoisonQueueTopic = "PoisonQueue"

type permanentError interface {
	IsPermanent() bool
}

func isPermanent(err error) bool {
	var permanent permanentError
	return errors.As(err, &permanent) && permanent.IsPermanent()
}

func useMiddlewares(router *message.Router, poisonQueuePub message.Publisher, watermillLogger watermill.LoggerAdapter) error {
	poisonQueue, err := middleware.PoisonQueueWithFilter(poisonQueuePub, PoisonQueueTopic, isPermanent)
	if err != nil {
		return err
	}

	router.AddMiddleware(observability.TracingMiddleware)
	router.AddMiddleware(middleware.Recoverer)
	router.AddMiddleware(correlationIDMiddleware)
	router.AddMiddleware(loggingMiddleware)
	router.AddMiddleware(poisonQueue)

	router.AddMiddleware(retryTransient(middleware.Retry{
		MaxRetries:      10,
		InitialInterval: time.Millisecond * 100,
		MaxInterval:     time.Second,
		Multiplier:      2,
		Logger:          watermillLogger,
	}))

	router.AddMiddleware(metricsMiddleware)

	return nil
}

// retryTransient retries only errors that may go away. Permanent errors skip
// the backoff and go straight to the poison queue.
func retryTransient(retry middleware.Retry) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			var permanentErr error

			msgs, err := retry.Middleware(func(msg *message.Message) ([]*message.Message, error) {
				msgs, err := h(msg)
				if isPermanent(err) {
					permanentErr = err
					return nil, nil
				}
				return msgs, err
			})(msg)
			if permanentErr != nil {
				return nil, permanentErr
			}

			return msgs, err
		}
	}
}

func correlationIDMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		ctx := msg.Context()

		reqCorrelationID := msg.Metadata.Get("correlation_id")
		if reqCorrelationID == "" {
			reqCorrelationID = shortuuid.New()
		}

		ctx = log.ToContext(ctx, logrus.WithFields(logrus.Fields{"correlation_id": reqCorrelationID}))
		ctx = log.ContextWithCorrelationID(ctx, reqCorrelationID)

		msg.SetContext(ctx)

		return h(msg)
	}
}

func loggingMiddleware(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		logger := log.FromContext(msg.Context()).WithFields(logrus.Fields{
			"message_id": msg.UUID,
			"handler":    message.HandlerNameFromCtx(msg.Context()),
			"metadata":   msg.Metadata,
		})

		logger.Info("Handling a message")

		msgs, err := next(msg)
		if err != nil {
			logger.WithError(err).Error("Error while handling a message")
		}

		return msgs, err
	}
}

func metricsMiddleware(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		topic := message.SubscribeTopicFromCtx(msg.Context())
		handler := message.HandlerNameFromCtx(msg.Context())

		start := time.Now()

		msgs, err := next(msg)

		observability.MessagesProcessingDuration.WithLabelValues(topic, handler).Observe(time.Since(start).Seconds())
		observability.MessagesProcessedTotal.WithLabelValues(topic, handler).Inc()
		if err != nil {
			observability.MessagesProcessingFailedTotal.WithLabelValues(topic, handler).Inc()
		}

		return msgs, err
	}
}

// EmailHandlerMiddlewares protects the email provider: sending is throttled
// and stops for a while after consecutive failures.
func EmailHandlerMiddlewares(ratePerSecond int64) map[string][]message.HandlerMiddleware {
	throttle := middleware.NewThrottle(ratePerSecond, time.Second)
	breaker := middleware.NewCircuitBreaker(gobreaker.Settings{
		Name:    "email",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	emailMiddlewares := []message.HandlerMiddleware{throttle.Middleware, breaker.Middleware}

	return map[string][]message.HandlerMiddleware{
		event.SendTicketsEmailHandlerName: emailMiddlewares,
		event.SendRefundEmailHandlerName:  emailMiddlewares,
	}
}
