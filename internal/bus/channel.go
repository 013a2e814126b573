// Package bus provides event bus implementations for Kestrel.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kanadia-gov/kestrel/internal/domain"
)

// ChannelBus implements EventBus using Go channels.
// Used as the standalone-mode event bus.
type ChannelBus struct {
	mu            sync.RWMutex
	bufferSize    int
	subscriptions map[string][]*channelSubscription
	closed        bool
}

type channelSubscription struct {
	id           string
	checkpointID string
	topic        string
	handler      domain.MessageHandler
	msgCh        chan *domain.Message
	ctx          context.Context
	cancel       context.CancelFunc
	bus          *ChannelBus
}

// NewChannelBus creates a new channel-based event bus.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize:    bufferSize,
		subscriptions: make(map[string][]*channelSubscription),
	}
}

// Publish sends a message to a topic.
func (b *ChannelBus) Publish(ctx context.Context, checkpointID string, topic string, payload []byte) error {
	return b.publish(ctx, checkpointID, topic, payload, nil)
}

func (b *ChannelBus) publish(ctx context.Context, checkpointID string, topic string, payload []byte, metadata map[string]string) error {
	if checkpointID == "" {
		return fmt.Errorf("checkpointID is required")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus is closed")
	}

	if metadata == nil {
		metadata = make(map[string]string)
	}

	// Create message
	msg := &domain.Message{
		ID:           uuid.New().String(),
		CheckpointID: checkpointID,
		Topic:        topic,
		Payload:      payload,
		Metadata:     metadata,
		Timestamp:    time.Now().UnixNano(),
	}

	// Get subscriptions for this topic
	subs := b.subscriptions[b.makeKey(checkpointID, topic)]
	b.mu.RUnlock()

	// Send to all matching subscribers (non-blocking)
	for _, sub := range subs {
		select {
		case sub.msgCh <- msg:
		default:
			// Channel full, skip this message for this subscriber
		}
	}

	return nil
}

// Subscribe registers a handler for a topic.
func (b *ChannelBus) Subscribe(ctx context.Context, checkpointID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if checkpointID == "" {
		return nil, fmt.Errorf("checkpointID is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	subCtx, cancel := context.WithCancel(ctx)

	sub := &channelSubscription{
		id:           uuid.New().String(),
		checkpointID: checkpointID,
		topic:        topic,
		handler:      handler,
		msgCh:        make(chan *domain.Message, b.bufferSize),
		ctx:          subCtx,
		cancel:       cancel,
		bus:          b,
	}

	// Start message handler goroutine
	go b.handleMessages(sub)

	key := b.makeKey(checkpointID, topic)
	b.subscriptions[key] = append(b.subscriptions[key], sub)

	return sub, nil
}

// handleMessages processes messages for a subscription.
func (b *ChannelBus) handleMessages(sub *channelSubscription) {
	for {
		select {
		case <-sub.ctx.Done():
			return
		case msg := <-sub.msgCh:
			if msg != nil {
				_ = sub.handler(sub.ctx, msg)
			}
		}
	}
}

// Request implements request-reply pattern using channels.
func (b *ChannelBus) Request(ctx context.Context, checkpointID string, topic string, payload []byte) ([]byte, error) {
	if checkpointID == "" {
		return nil, fmt.Errorf("checkpointID is required")
	}

	// Create reply channel
	replyCh := make(chan []byte, 1)
	replyTopic := topic + ".reply." + uuid.New().String()

	// Subscribe to reply
	sub, err := b.Subscribe(ctx, checkpointID, replyTopic, func(ctx context.Context, msg *domain.Message) error {
		select {
		case replyCh <- msg.Payload:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	// Publish request carrying the reply topic so a responder can answer.
	if err := b.publish(ctx, checkpointID, topic, payload, map[string]string{"reply_to": replyTopic}); err != nil {
		return nil, err
	}

	// Wait for reply with timeout
	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("request timeout")
	}
}

// Ping checks bus health.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	return nil
}

// Close closes the event bus.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true

	// Cancel all subscriptions
	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.cancel()
			close(sub.msgCh)
		}
	}
	b.subscriptions = make(map[string][]*channelSubscription)

	return nil
}

func (b *ChannelBus) makeKey(checkpointID, topic string) string {
	return checkpointID + ":" + topic
}

// Unsubscribe stops receiving messages.
func (s *channelSubscription) Unsubscribe() error {
	s.cancel()

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	key := s.bus.makeKey(s.checkpointID, s.topic)
	subs := s.bus.subscriptions[key]
	for i, sub := range subs {
		if sub.id == s.id {
			s.bus.subscriptions[key] = append(subs[:i], subs[i+1:]...)
			break
		}
	}

	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.topic
}
