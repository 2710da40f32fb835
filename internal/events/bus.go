// Package events publishes workflow notifications as CloudEvents on an
// in-process watermill bus and streams them to HTTP clients.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/JaimeStill/attest/pkg/lifecycle"
)

// Metadata keys set on every bus message.
const (
	MetadataType    = "ce_type"
	MetadataVersion = "attest_version"
)

// Config holds bus settings.
type Config struct {
	Topic  string
	Buffer int64
	Source string
}

// Bus carries CloudEvents between the workflow and stream subscribers.
type Bus struct {
	pubsub *gochannel.GoChannel
	topic  string
	source string
	logger *slog.Logger
}

// NewBus creates an in-memory bus. Messages published with no subscribers are dropped.
func NewBus(cfg Config, logger *slog.Logger) *Bus {
	logger = logger.With("system", "events")

	if cfg.Topic == "" {
		cfg.Topic = "attest.workflow"
	}
	if cfg.Source == "" {
		cfg.Source = "/attest"
	}

	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            cfg.Buffer,
				Persistent:                     false,
				BlockPublishUntilSubscriberAck: false,
			},
			watermill.NewSlogLogger(logger),
		),
		topic:  cfg.Topic,
		source: cfg.Source,
		logger: logger,
	}
}

// Source is the CloudEvents source attribute for events from this service.
func (b *Bus) Source() string {
	return b.source
}

// Publish sends ev to every current subscriber.
func (b *Bus) Publish(ev cloudevents.Event) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := message.NewMessage(ev.ID(), payload)
	msg.Metadata.Set(MetadataType, ev.Type())
	if v, ok := ev.Extensions()[extVersion]; ok {
		msg.Metadata.Set(MetadataVersion, fmt.Sprint(v))
	}

	return b.pubsub.Publish(b.topic, msg)
}

// Subscribe returns a stream of events that ends when ctx is done or the bus
// closes. Each message is acknowledged once it is decoded.
func (b *Bus) Subscribe(ctx context.Context) (<-chan cloudevents.Event, error) {
	messages, err := b.pubsub.Subscribe(ctx, b.topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", b.topic, err)
	}

	out := make(chan cloudevents.Event)
	go func() {
		defer close(out)
		for msg := range messages {
			var ev cloudevents.Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				b.logger.Warn("dropping undecodable event", "message", msg.UUID, "error", err)
				msg.Ack()
				continue
			}
			msg.Ack()

			select {
			case out <- ev:
			case <-ctx.Done():
				for range messages {
				}
				return
			}
		}
	}()

	return out, nil
}

// Close stops the bus and ends every subscription.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// Start registers a shutdown hook that closes the bus.
func (b *Bus) Start(lc *lifecycle.Coordinator) error {
	b.logger.Info("starting event bus", "topic", b.topic)

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		if err := b.Close(); err != nil {
			b.logger.Error("event bus close failed", "error", err)
			return
		}
		b.logger.Info("event bus closed")
	})

	return nil
}
