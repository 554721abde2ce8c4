package message

import (
	"context"
	"encoding/json"
	"fmt"

	"livetix/entities"
	"livetix/message/command"
	"livetix/message/event"
	"livetix/message/outbox"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
)

type DataLakeRepository interface {
	Save(ctx context.Context, event entities.DataLakeEvent) error
}

type RouterDeps struct {
	PostgresSubscriber message.Subscriber
	// SplitterSubscriber and DataLakeSubscriber read the external events
	// topic in separate consumer groups.
	SplitterSubscriber message.Subscriber
	DataLakeSubscriber message.Subscriber
	RedisPublisher     message.Publisher

	EventProcessorConfig   cqrs.EventProcessorConfig
	CommandProcessorConfig cqrs.CommandProcessorConfig

	EventHandler   event.Handler
	CommandHandler command.Handler
	DataLakeRepo   DataLakeRepository
}

func NewWatermillRouter(deps RouterDeps, watermillLogger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, watermillLogger)
	if err != nil {
		return nil, err
	}

	if err := useMiddlewares(router, deps.RedisPublisher, watermillLogger); err != nil {
		return nil, fmt.Errorf("could not add middlewares: %w", err)
	}

	err = outbox.AddForwarder(deps.PostgresSubscriber, deps.RedisPublisher, watermillLogger, router)
	if err != nil {
		return nil, err
	}

	eventProcessor, err := cqrs.NewEventProcessorWithConfig(router, deps.EventProcessorConfig)
	if err != nil {
		return nil, fmt.Errorf("could not create event processor: %w", err)
	}
	if err := eventProcessor.AddHandlers(deps.EventHandler.Handlers()...); err != nil {
		return nil, fmt.Errorf("could not add event handlers: %w", err)
	}

	commandProcessor, err := cqrs.NewCommandProcessorWithConfig(router, deps.CommandProcessorConfig)
	if err != nil {
		return nil, fmt.Errorf("could not create command processor: %w", err)
	}
	if err := commandProcessor.AddHandlers(deps.CommandHandler.Handlers()...); err != nil {
		return nil, fmt.Errorf("could not add command handlers: %w", err)
	}

	router.AddNoPublisherHandler(
		"events_splitter",
		event.ExternalTopic,
		deps.SplitterSubscriber,
		splitEvents(deps.RedisPublisher),
	)

	router.AddNoPublisherHandler(
		"data_lake_saver",
		event.ExternalTopic,
		deps.DataLakeSubscriber,
		saveToDataLake(deps.DataLakeRepo),
	)

	return router, nil
}

func splitEvents(pub message.Publisher) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		eventName := event.Marshaler.NameFromMessage(msg)
		if eventName == "" {
			return entities.PermanentError{Err: fmt.Errorf("cannot get event name from message %s", msg.UUID)}
		}

		return pub.Publish(event.ExternalTopic+"."+eventName, msg)
	}
}

func saveToDataLake(repo DataLakeRepository) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		var withHeader struct {
			Header entities.EventHeader `json:"header"`
		}
		if err := event.Marshaler.Unmarshal(msg, &withHeader); err != nil {
			return entities.PermanentError{Err: fmt.Errorf("cannot unmarshal event header: %w", err)}
		}

		eventName := event.Marshaler.NameFromMessage(msg)
		if eventName == "" {
			return entities.PermanentError{Err: fmt.Errorf("cannot get event name from message %s", msg.UUID)}
		}

		err := repo.Save(msg.Context(), entities.DataLakeEvent{
			EventID:      withHeader.Header.ID,
			PublishedAt:  withHeader.Header.PublishedAt,
			EventName:    eventName,
			EventPayload: json.RawMessage(msg.Payload),
		})
		if err != nil {
			return fmt.Errorf("could not save %s to data lake: %w", eventName, err)
		}

		return nil
	}
}
