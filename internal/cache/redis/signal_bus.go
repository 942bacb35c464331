package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/redis/go-redis/v9"
)

// streamMaxLen caps streams via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// SignalBus implements domain.SignalBus with Redis Pub/Sub and Streams. As a
// telemetry sink it appends every event to one stream and mirrors it on a
// Pub/Sub channel for live subscribers.
type SignalBus struct {
	rdb     *redis.Client
	stream  string
	channel string
}

// NewSignalBus creates a bus writing telemetry to stream and channel.
func NewSignalBus(c *Client, stream, channel string) *SignalBus {
	return &SignalBus{rdb: c.rdb, stream: stream, channel: channel}
}

// Publish sends payload to a Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// StreamAppend appends payload to a stream, trimming it to about
// streamMaxLen entries.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	if err := sb.rdb.XAdd(ctx, xadd(stream, payload)).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead reads up to count entries after lastID ("0" reads from the
// start). It does not block and returns nil when nothing is available.
func (sb *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	results, err := sb.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var messages []domain.StreamMessage
	for _, s := range results {
		for _, msg := range s.Messages {
			var data []byte
			switch v := msg.Values["payload"].(type) {
			case string:
				data = []byte(v)
			case []byte:
				data = v
			default:
				continue
			}
			messages = append(messages, domain.StreamMessage{ID: msg.ID, Payload: data})
		}
	}
	return messages, nil
}

// Name identifies the bus as a telemetry sink.
func (sb *SignalBus) Name() string { return "redis" }

// Write appends evt to the telemetry stream and publishes it in one
// pipelined round trip.
func (sb *SignalBus) Write(ctx context.Context, evt domain.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	_, err = sb.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.XAdd(ctx, xadd(sb.stream, payload))
		p.Publish(ctx, sb.channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: write event %s: %w", evt.Type, err)
	}
	return nil
}

// Recent returns up to count telemetry events recorded after lastID.
func (sb *SignalBus) Recent(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error) {
	return sb.StreamRead(ctx, sb.stream, lastID, count)
}

func xadd(stream string, payload []byte) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}
}

var _ domain.SignalBus = (*SignalBus)(nil)
