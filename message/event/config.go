package event

import (
	"fmt"

	"livetix/entities"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

var Marshaler = cqrs.JSONMarshaler{
	GenerateName: cqrs.StructName,
}

func NewProcessorConfig(
	redisClient *redis.Client,
	handlerMiddlewares map[string][]message.HandlerMiddleware,
	watermillLogger watermill.LoggerAdapter,
) cqrs.EventProcessorConfig {
	return cqrs.EventProcessorConfig{
		GenerateSubscribeTopic: func(params cqrs.EventProcessorGenerateSubscribeTopicParams) (string, error) {
			handlerEvent := params.EventHandler.NewEvent()
			event, ok := handlerEvent.(entities.IEvent)
			if !ok {
				return "", fmt.Errorf("invalid event type: %T doesn't implement entities.IEvent", handlerEvent)
			}

			if event.IsInternal() {
				return internalTopicPrefix + params.EventName, nil
			}

			return externalTopicPrefix + params.EventName, nil
		},
		SubscriberConstructor: func(params cqrs.EventProcessorSubscriberConstructorParams) (message.Subscriber, error) {
			return redisstream.NewSubscriber(redisstream.SubscriberConfig{
				Client:        redisClient,
				ConsumerGroup: "livetix.events." + params.HandlerName,
			}, watermillLogger)
		},
		OnHandle: func(params cqrs.EventProcessorOnHandleParams) error {
			h := func(msg *message.Message) ([]*message.Message, error) {
				return nil, params.Handler.Handle(msg.Context(), params.Event)
			}

			middlewares := handlerMiddlewares[params.Handler.HandlerName()]
			for i := len(middlewares) - 1; i >= 0; i-- {
				h = middlewares[i](h)
			}

			_, err := h(params.Message)
			return err
		},
		Marshaler: Marshaler,
		Logger:    watermillLogger,
	}
}
