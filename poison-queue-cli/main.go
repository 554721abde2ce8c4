package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

const PoisonQueueTopic = "PoisonQueue"

var ErrMessageNotFound = errors.New("message not found")

type Message struct {
	ID     string
	Reason string
	Topic  string
}

// Handler works on the poison queue stream directly, so previewing doesn't
// consume anything.
type Handler struct {
	rdb       *redis.Client
	stream    string
	publisher message.Publisher
}

func NewHandler(rdb *redis.Client, stream string) (*Handler, error) {
	pub, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: rdb},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return nil, err
	}

	return &Handler{
		rdb:       rdb,
		stream:    stream,
		publisher: pub,
	}, nil
}

type entry struct {
	streamID string
	msg      *message.Message
}

func (h *Handler) entries(ctx context.Context) ([]entry, error) {
	xmsgs, err := h.rdb.XRange(ctx, h.stream, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", h.stream, err)
	}

	unmarshaler := redisstream.DefaultMarshallerUnmarshaller{}

	entries := make([]entry, 0, len(xmsgs))
	for _, xmsg := range xmsgs {
		msg, err := unmarshaler.Unmarshal(xmsg.Values)
		if err != nil {
			return nil, fmt.Errorf("could not unmarshal stream entry %s: %w", xmsg.ID, err)
		}
		entries = append(entries, entry{streamID: xmsg.ID, msg: msg})
	}

	return entries, nil
}

func (h *Handler) find(ctx context.Context, messageID string) (entry, error) {
	entries, err := h.entries(ctx)
	if err != nil {
		return entry{}, err
	}

	for _, e := range entries {
		if e.msg.UUID == messageID {
			return e, nil
		}
	}

	return entry{}, ErrMessageNotFound
}

func (h *Handler) Preview(ctx context.Context) ([]Message, error) {
	entries, err := h.entries(ctx)
	if err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(entries))
	for _, e := range entries {
		messages = append(messages, Message{
			ID:     e.msg.UUID,
			Reason: e.msg.Metadata.Get(middleware.ReasonForPoisonedKey),
			Topic:  e.msg.Metadata.Get(middleware.PoisonedTopicKey),
		})
	}

	return messages, nil
}

func (h *Handler) Remove(ctx context.Context, messageID string) error {
	e, err := h.find(ctx, messageID)
	if err != nil {
		return err
	}

	return h.rdb.XDel(ctx, h.stream, e.streamID).Err()
}

// Requeue publishes the message back to the topic it was poisoned on and
// removes it from the poison queue.
func (h *Handler) Requeue(ctx context.Context, messageID string) error {
	e, err := h.find(ctx, messageID)
	if err != nil {
		return err
	}

	topic := e.msg.Metadata.Get(middleware.PoisonedTopicKey)
	if topic == "" {
		return fmt.Errorf("message %s has no original topic", messageID)
	}

	if err := h.publisher.Publish(topic, e.msg); err != nil {
		return fmt.Errorf("could not requeue message %s: %w", messageID, err)
	}

	return h.rdb.XDel(ctx, h.stream, e.streamID).Err()
}

func newHandler(c *cli.Context) (*Handler, error) {
	rdb := redis.NewClient(&redis.Options{Addr: c.String("redis-addr")})
	return NewHandler(rdb, PoisonQueueTopic)
}

func main() {
	app := &cli.App{
		Name:  "poison-queue-cli",
		Usage: "Manage the Poison Queue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "redis-addr",
				Value:   "localhost:6379",
				EnvVars: []string{"REDIS_ADDR"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "preview",
				Usage: "preview messages",
				Action: func(c *cli.Context) error {
					h, err := newHandler(c)
					if err != nil {
						return err
					}

					messages, err := h.Preview(c.Context)
					if err != nil {
						return err
					}

					for _, m := range messages {
						fmt.Printf("%v\t%v\t%v\n", m.ID, m.Topic, m.Reason)
					}

					return nil
				},
			},
			{
				Name:      "remove",
				ArgsUsage: "<message_id>",
				Usage:     "remove message",
				Action: func(c *cli.Context) error {
					h, err := newHandler(c)
					if err != nil {
						return err
					}

					return h.Remove(c.Context, c.Args().First())
				},
			},
			{
				Name:      "requeue",
				ArgsUsage: "<message_id>",
				Usage:     "requeue message",
				Action: func(c *cli.Context) error {
					h, err := newHandler(c)
					if err != nil {
						return err
					}

					return h.Requeue(c.Context, c.Args().First())
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
