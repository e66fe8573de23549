// Package events publishes session changes to kafka so other services can
// follow sign-in and sign-out of the client's session.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/milan604/apiclient/pkg/credentials"
	"github.com/milan604/apiclient/pkg/logger"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes credential events as JSON, keyed by session.
type KafkaPublisher struct {
	w            messageWriter
	log          logger.LogManager
	writeTimeout time.Duration
}

// NewKafkaPublisher creates a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, log logger.LogManager) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, log)
}

func newPublisher(w messageWriter, log logger.LogManager) *KafkaPublisher {
	return &KafkaPublisher{w: w, log: logger.OrNop(log), writeTimeout: 5 * time.Second}
}

// Publish writes one event.
func (p *KafkaPublisher) Publish(ctx context.Context, ev credentials.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.writeTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(ev.Session),
		Value: value,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: publish %s: %w", ev.Type, err)
	}
	return nil
}

// Listener adapts the publisher to a credentials.Listener. Failures are
// logged and otherwise ignored.
func (p *KafkaPublisher) Listener() credentials.Listener {
	return func(ctx context.Context, ev credentials.Event) {
		if err := p.Publish(ctx, ev); err != nil {
			p.log.WarnFCtx(ctx, "session event not published: %v", err)
		}
	}
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
