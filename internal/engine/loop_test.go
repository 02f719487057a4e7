package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"deskbot/internal/bus"
	"deskbot/internal/domain"
)

func TestLoopCreatesClientOnFirstMessage(t *testing.T) {
	env := newTestEnv(time.Minute)
	env.matcher.Replace([]domain.QAEntry{
		{ID: 1, Question: "hi", Answer: "hello", Active: true},
	})

	b := bus.New(8, discardLogger())
	loop := NewLoop(b, env.store, env.router, 4, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	b.Publish(domain.InboundMessage{
		PlatformID:     "tg:77",
		SenderName:     "Ann",
		Text:           "hi",
		IdempotencyKey: "u1",
		Timestamp:      time.Now(),
	})

	waitFor(t, func() bool { return env.outbound.count() == 1 })

	client, _ := env.store.GetClientByPlatformID(context.Background(), "tg:77")
	if client == nil || client.Name != "Ann" {
		t.Fatalf("client not created: %+v", client)
	}

	cancel()
	<-done
}

func TestLoopReportsRoutingLatency(t *testing.T) {
	env := newTestEnv(time.Minute)
	env.matcher.Replace([]domain.QAEntry{
		{ID: 1, Question: "hi", Answer: "hello", Active: true},
	})

	b := bus.New(8, discardLogger())
	loop := NewLoop(b, env.store, env.router, 2, discardLogger())

	var mu sync.Mutex
	var observed []float64
	loop.OnLatency = func(seconds float64) {
		mu.Lock()
		observed = append(observed, seconds)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	b.Publish(domain.InboundMessage{
		PlatformID:     "tg:5",
		SenderName:     "Bo",
		Text:           "hi",
		IdempotencyKey: "u1",
		Timestamp:      time.Now(),
	})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(observed) == 1
	})
	mu.Lock()
	if observed[0] < 0 {
		t.Fatalf("negative latency: %f", observed[0])
	}
	mu.Unlock()

	cancel()
	<-done
}

func TestLoopUpdatesClientName(t *testing.T) {
	env := newTestEnv(time.Minute)
	clientID := env.addClient("tg:1", "Old Name")
	env.matcher.Replace([]domain.QAEntry{
		{ID: 1, Question: "hi", Answer: "hello", Active: true},
	})

	b := bus.New(8, discardLogger())
	loop := NewLoop(b, env.store, env.router, 2, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	b.Publish(domain.InboundMessage{PlatformID: "tg:1", SenderName: "New Name", Text: "hi", Timestamp: time.Now()})
	waitFor(t, func() bool { return env.outbound.count() == 1 })

	client, _ := env.store.GetClient(context.Background(), clientID)
	if client.Name != "New Name" {
		t.Fatalf("name not refreshed: %q", client.Name)
	}

	cancel()
	<-done
}

func TestLoopPreservesPerClientOrder(t *testing.T) {
	env := newTestEnv(time.Minute)
	env.addClient("tg:1", "Ann")
	env.flows.Replace([]domain.FlowDefinition{*orderFlow()})

	b := bus.New(32, discardLogger())
	loop := NewLoop(b, env.store, env.router, 4, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	// The three turns only complete the flow if processed in order.
	for i, text := range []string{"order status", "A-9", "yes"} {
		b.Publish(domain.InboundMessage{
			PlatformID:     "tg:1",
			Text:           text,
			IdempotencyKey: fmt.Sprintf("m%d", i),
			Timestamp:      time.Now(),
		})
	}

	waitFor(t, func() bool { return env.outbound.count() == 3 })
	if env.outbound.last() != "Looking into order A-9." {
		t.Fatalf("turns processed out of order, last reply %q", env.outbound.last())
	}

	cancel()
	<-done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
