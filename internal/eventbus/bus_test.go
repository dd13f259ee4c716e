// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

package eventbus

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/issabel-tools/callmonitor/internal/ami"
	"github.com/issabel-tools/callmonitor/internal/logging"
	"github.com/issabel-tools/callmonitor/internal/metrics"
)

//nolint:gochecknoinits // quiet logging during tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// Bus must satisfy the session's publish contract.
var _ ami.EventSink = (*Bus)(nil)

func receive(t *testing.T, ch <-chan *ami.CallEvent) *ami.CallEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPublishSubscribeOrdering(t *testing.T) {
	bus := New()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	want := []string{"Newchannel", "Newstate", "Hangup"}
	for _, typ := range want {
		ev := &ami.CallEvent{EventType: typ, Channel: "SIP/100-1", Extension: "100"}
		if err := bus.Publish(ctx, ev); err != nil {
			t.Fatalf("Publish(%s) error = %v", typ, err)
		}
	}

	for _, typ := range want {
		ev := receive(t, events)
		if ev.EventType != typ {
			t.Fatalf("got %q, want %q: events must arrive in publish order", ev.EventType, typ)
		}
		if ev.Extension != "100" {
			t.Errorf("Extension = %q, payload did not round-trip", ev.Extension)
		}
	}
}

func TestPublishCountsEachEventOnce(t *testing.T) {
	bus := New()
	defer bus.Close()

	ctx := context.Background()
	before := testutil.ToFloat64(metrics.EventsPublished.WithLabelValues("Dial"))

	for i := 0; i < 3; i++ {
		if err := bus.Publish(ctx, &ami.CallEvent{EventType: "Dial", Channel: "SIP/1-1"}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	if got := testutil.ToFloat64(metrics.EventsPublished.WithLabelValues("Dial")); got != before+3 {
		t.Errorf("EventsPublished = %v, want %v", got, before+3)
	}
}

func TestSubscribeSeesOnlyNewEvents(t *testing.T) {
	bus := New()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bus.Publish(ctx, &ami.CallEvent{EventType: "Hangup", Channel: "SIP/1-1"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	events, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := bus.Publish(ctx, &ami.CallEvent{EventType: "Newchannel", Channel: "SIP/2-1"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	ev := receive(t, events)
	if ev.EventType != "Newchannel" {
		t.Errorf("got %q: events published before Subscribe must not replay", ev.EventType)
	}
}

func TestMultipleSubscribersEachReceive(t *testing.T) {
	bus := New()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	second, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := bus.Publish(ctx, &ami.CallEvent{EventType: "Newstate", Channel: "SIP/9-1"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	for _, ch := range []<-chan *ami.CallEvent{first, second} {
		if ev := receive(t, ch); ev.EventType != "Newstate" {
			t.Errorf("subscriber got %q, want Newstate", ev.EventType)
		}
	}
}

func TestSubscribeChannelClosesOnCancel(t *testing.T) {
	bus := New()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	cancel()

	select {
	case _, ok := <-events:
		if ok {
			t.Error("received event after cancel, want closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription channel did not close after cancel")
	}
}
