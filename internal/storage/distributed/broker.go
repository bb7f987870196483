package distributed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultCommandsStream = "flotilla:commands"
	DefaultEventsChannel  = "flotilla:events"

	commandsGroup = "writer"
	commandField  = "command"
	readBlock     = 5 * time.Second
)

// Broker carries commands from relays to the writer and events back out. The
// Redis implementation is the production one; tests substitute a stub.
type Broker interface {
	PublishCommand(ctx context.Context, data []byte) error
	ConsumeCommands(ctx context.Context, handle func(ctx context.Context, data []byte)) error
	PublishEvent(ctx context.Context, data []byte) error
	SubscribeEvents(ctx context.Context, handle func(data []byte)) error
}

// RedisBroker moves commands on a stream consumed by one consumer group and
// broadcasts events on a pub/sub channel.
type RedisBroker struct {
	client   *redis.Client
	stream   string
	channel  string
	consumer string
}

func NewRedisBroker(client *redis.Client, stream, channel string) *RedisBroker {
	if stream == "" {
		stream = DefaultCommandsStream
	}
	if channel == "" {
		channel = DefaultEventsChannel
	}
	host, _ := os.Hostname()
	return &RedisBroker{
		client:   client,
		stream:   stream,
		channel:  channel,
		consumer: fmt.Sprintf("%s-%d", host, os.Getpid()),
	}
}

func (b *RedisBroker) PublishCommand(ctx context.Context, data []byte) error {
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		Values: map[string]any{commandField: data},
	}).Err()
}

// ConsumeCommands reads the stream one batch at a time in arrival order and
// acknowledges every entry, including ones the handler rejected. A command the
// store refuses will not become valid by replaying it.
func (b *RedisBroker) ConsumeCommands(ctx context.Context, handle func(ctx context.Context, data []byte)) error {
	err := b.client.XGroupCreateMkStream(ctx, b.stream, commandsGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    commandsGroup,
			Consumer: b.consumer,
			Streams:  []string{b.stream, ">"},
			Count:    16,
			Block:    readBlock,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read command stream: %w", err)
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				if raw, ok := message.Values[commandField].(string); ok {
					handle(ctx, []byte(raw))
				}
				if err := b.client.XAck(ctx, b.stream, commandsGroup, message.ID).Err(); err != nil {
					return fmt.Errorf("ack command %s: %w", message.ID, err)
				}
			}
		}
	}
}

func (b *RedisBroker) PublishEvent(ctx context.Context, data []byte) error {
	return b.client.Publish(ctx, b.channel, data).Err()
}

func (b *RedisBroker) SubscribeEvents(ctx context.Context, handle func(data []byte)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message, ok := <-ch:
			if !ok {
				return errors.New("event subscription closed")
			}
			handle([]byte(message.Payload))
		}
	}
}
