package event

import (
	"fmt"

	"livetix/entities"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
)

const (
	// ExternalTopic receives every public event. The events splitter fans it
	// out to per-event topics.
	ExternalTopic = "events"

	internalTopicPrefix = "internal-events.livetix."
	externalTopicPrefix = ExternalTopic + "."
)

func NewBus(pub message.Publisher) *cqrs.EventBus {
	eventBus, err := cqrs.NewEventBusWithConfig(
		pub,
		cqrs.EventBusConfig{
			GeneratePublishTopic: func(params cqrs.GenerateEventPublishTopicParams) (string, error) {
				event, ok := params.Event.(entities.IEvent)
				if !ok {
					return "", fmt.Errorf("invalid event type: %T doesn't implement entities.IEvent", params.Event)
				}

				if event.IsInternal() {
					return internalTopicPrefix + params.EventName, nil
				}

				return ExternalTopic, nil
			},
			Marshaler: Marshaler,
		},
	)
	if err != nil {
		panic(err)
	}

	return eventBus
}
