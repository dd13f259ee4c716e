// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

package eventbus

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	json "github.com/goccy/go-json"

	"github.com/issabel-tools/callmonitor/internal/ami"
	"github.com/issabel-tools/callmonitor/internal/logging"
	"github.com/issabel-tools/callmonitor/internal/metrics"
)

// TopicCallEvents carries every call event published by the manager session.
const TopicCallEvents = "calls.events"

// defaultBuffer bounds each subscriber's channel so a stalled consumer
// does not block the publisher indefinitely.
const defaultBuffer = 256

// Bus is the in-process pub/sub channel between the manager session and
// its consumers. Events are JSON-encoded so the payload on the bus matches
// the payload pushed to browsers.
//
// Bus implements ami.EventSink.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// New creates an in-memory bus. Events are not persisted: a subscriber
// only sees events published after it subscribed.
func New() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: defaultBuffer,
		}, newLoggerAdapter()),
	}
}

// Publish encodes the event and places it on the call event topic.
func (b *Bus) Publish(_ context.Context, ev *ami.CallEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding call event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(TopicCallEvents, msg); err != nil {
		metrics.EventsDropped.Inc()
		return fmt.Errorf("publishing call event: %w", err)
	}

	metrics.EventsPublished.WithLabelValues(ev.EventType).Inc()
	return nil
}

// Subscribe returns a channel of decoded call events. The channel closes
// when ctx is cancelled or the bus is closed. Messages that fail to decode
// are acked and dropped so one bad payload cannot wedge the stream.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *ami.CallEvent, error) {
	msgs, err := b.pubsub.Subscribe(ctx, TopicCallEvents)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", TopicCallEvents, err)
	}

	out := make(chan *ami.CallEvent, defaultBuffer)
	go func() {
		defer close(out)
		for msg := range msgs {
			var ev ami.CallEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				logging.Warn().
					Err(err).
					Str("message_id", msg.UUID).
					Msg("Dropping undecodable call event")
				msg.Ack()
				continue
			}
			msg.Ack()

			select {
			case out <- &ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
