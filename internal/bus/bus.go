// Package bus is the message channel the feedback loop is built on: named
// topics, consumer groups and at-least-once delivery.
//
// Stages only depend on the Publisher and Subscriber interfaces. MemoryBroker
// is the in-process implementation used by `simloop serve` and by tests.
package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrClosed     = errors.New("bus: broker closed")
	ErrEmptyTopic = errors.New("bus: empty topic name")
)

// DeadLetterSuffix is appended to a topic name to form its dead-letter topic.
const DeadLetterSuffix = ".dlq"

// Message is one record of a topic log.
type Message struct {
	ID          string
	Topic       string
	Key         string
	Value       []byte
	Offset      int64
	Attempt     int // 1 on first delivery
	PublishedAt time.Time
}

// Handler processes a message. A non-nil error means the message was not
// handled and must be delivered again.
type Handler func(ctx context.Context, msg Message) error

// Publisher appends messages to topics.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Subscriber consumes a topic as a member of a consumer group. Subscribe blocks
// until ctx is cancelled or the broker is closed.
type Subscriber interface {
	Subscribe(ctx context.Context, topic, group string, h Handler) error
}

// Broker is both ends of the channel.
type Broker interface {
	Publisher
	Subscriber
}

// PublishJSON encodes v as JSON and publishes it under key.
func PublishJSON(ctx context.Context, p Publisher, topic, key string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	return p.Publish(ctx, topic, key, payload)
}

// Decode unmarshals a JSON payload, keeping numbers as json.Number so integer
// parameters survive a round trip.
func Decode(msg Message, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(msg.Value))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s message %q: %w", msg.Topic, msg.Key, err)
	}
	return nil
}
