package bus

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Options tunes redelivery of failed messages.
type Options struct {
	RedeliveryDelay time.Duration // wait before a failed message is offered again
	MaxRedeliveries int           // deliveries after which a message is dead-lettered; 0 = never
	Logger          *slog.Logger
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		RedeliveryDelay: 500 * time.Millisecond,
		MaxRedeliveries: 10,
	}
}

// MemoryBroker keeps every topic as an append-only log in memory. Each consumer
// group has its own cursor, so every group sees every message; consumers of the
// same group share the cursor and split the messages between them.
type MemoryBroker struct {
	mu     sync.Mutex
	topics map[string]*topicLog
	opts   Options
	logger *slog.Logger
	closed bool
	done   chan struct{}
}

type topicLog struct {
	messages []Message
	groups   map[string]*groupCursor
	notify   chan struct{} // closed and replaced whenever the log or a retry queue grows
}

type groupCursor struct {
	next  int64
	retry []Message
}

// NewMemoryBroker creates an empty broker.
func NewMemoryBroker(opts Options) *MemoryBroker {
	if opts.RedeliveryDelay <= 0 {
		opts.RedeliveryDelay = DefaultOptions().RedeliveryDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryBroker{
		topics: make(map[string]*topicLog),
		opts:   opts,
		logger: logger.With("component", "bus"),
		done:   make(chan struct{}),
	}
}

// topic returns the log for name, creating it. Caller holds b.mu.
func (b *MemoryBroker) topic(name string) *topicLog {
	t, ok := b.topics[name]
	if !ok {
		t = &topicLog{
			groups: make(map[string]*groupCursor),
			notify: make(chan struct{}),
		}
		b.topics[name] = t
	}
	return t
}

func (t *topicLog) signal() {
	close(t.notify)
	t.notify = make(chan struct{})
}

// Publish appends a message to topic.
func (b *MemoryBroker) Publish(ctx context.Context, topic, key string, value []byte) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	t := b.topic(topic)
	payload := make([]byte, len(value))
	copy(payload, value)
	t.messages = append(t.messages, Message{
		ID:          uuid.New().String(),
		Topic:       topic,
		Key:         key,
		Value:       payload,
		Offset:      int64(len(t.messages)),
		PublishedAt: time.Now().UTC(),
	})
	t.signal()
	return nil
}

// Subscribe consumes topic as a member of group until ctx is done. A group
// created after messages were published starts from the earliest offset.
func (b *MemoryBroker) Subscribe(ctx context.Context, topic, group string, h Handler) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	for {
		msg, ok, wait, err := b.claim(topic, group)
		if err != nil {
			// Close is a normal shutdown path for subscribers.
			return nil
		}
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-b.done:
				return nil
			case <-wait:
				continue
			}
		}

		if herr := h(ctx, msg); herr != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.redeliver(ctx, group, msg, herr)
		}
	}
}

// claim hands out the next message for group: pending redeliveries first, then
// the log. When nothing is available it returns a channel to wait on.
func (b *MemoryBroker) claim(topic, group string) (Message, bool, <-chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Message{}, false, nil, ErrClosed
	}

	t := b.topic(topic)
	cur, ok := t.groups[group]
	if !ok {
		cur = &groupCursor{}
		t.groups[group] = cur
	}

	if len(cur.retry) > 0 {
		msg := cur.retry[0]
		cur.retry = cur.retry[1:]
		return msg, true, nil, nil
	}
	if cur.next < int64(len(t.messages)) {
		msg := t.messages[cur.next]
		msg.Attempt = 1
		cur.next++
		return msg, true, nil, nil
	}
	return Message{}, false, t.notify, nil
}

func (b *MemoryBroker) redeliver(ctx context.Context, group string, msg Message, cause error) {
	if b.opts.MaxRedeliveries > 0 && msg.Attempt >= b.opts.MaxRedeliveries {
		b.logger.Error("message dead-lettered",
			"topic", msg.Topic, "group", group, "key", msg.Key,
			"attempts", msg.Attempt, "error", cause)
		if err := b.Publish(ctx, msg.Topic+DeadLetterSuffix, msg.Key, msg.Value); err != nil {
			b.logger.Error("dead-letter publish failed", "topic", msg.Topic, "key", msg.Key, "error", err)
		}
		return
	}

	b.logger.Warn("message will be redelivered",
		"topic", msg.Topic, "group", group, "key", msg.Key,
		"attempt", msg.Attempt, "delay", b.opts.RedeliveryDelay, "error", cause)

	msg.Attempt++
	time.AfterFunc(b.opts.RedeliveryDelay, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed {
			return
		}
		t := b.topic(msg.Topic)
		cur := t.groups[group]
		cur.retry = append(cur.retry, msg)
		t.signal()
	})
}

// Messages returns a copy of everything published to topic so far.
func (b *MemoryBroker) Messages(topic string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[topic]
	if !ok {
		return nil
	}
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Topics lists known topic names in sorted order.
func (b *MemoryBroker) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.topics))
	for name := range b.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close stops all subscribers. Publishing afterwards returns ErrClosed.
func (b *MemoryBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}
