package command

import (
	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

const topicPrefix = "commands."

var marshaler = cqrs.JSONMarshaler{
	GenerateName: cqrs.StructName,
}

// Topic is the stream a command is sent to, e.g. "commands.RefundOrder".
func Topic(commandName string) string {
	return topicPrefix + commandName
}

func NewProcessorConfig(redisClient *redis.Client, watermillLogger watermill.LoggerAdapter) cqrs.CommandProcessorConfig {
	return cqrs.CommandProcessorConfig{
		GenerateSubscribeTopic: func(params cqrs.CommandProcessorGenerateSubscribeTopicParams) (string, error) {
			return Topic(params.CommandName), nil
		},
		SubscriberConstructor: func(params cqrs.CommandProcessorSubscriberConstructorParams) (message.Subscriber, error) {
			return redisstream.NewSubscriber(
				redisstream.SubscriberConfig{
					Client:        redisClient,
					ConsumerGroup: "livetix.commands." + params.HandlerName,
				},
				watermillLogger,
			)
		},
		OnHandle: func(params cqrs.CommandProcessorOnHandleParams) error {
			ctx := params.Message.Context()
			logger := log.FromContext(ctx).WithField("command", params.CommandName)

			return params.Handler.Handle(log.ToContext(ctx, logger), params.Command)
		},
		Marshaler: marshaler,
		Logger:    watermillLogger,
	}
}
