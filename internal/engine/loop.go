package engine

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"deskbot/internal/domain"
)

// Loop consumes inbound messages from the bus and drives the router.
//
// Messages are fanned out to a fixed pool of workers keyed by platform
// id, so every turn of one client lands on the same worker and is
// processed in arrival order.
type Loop struct {
	bus     domain.MessageBus
	store   domain.Store
	router  *Router
	logger  *slog.Logger
	workers int

	// OnLatency, when set, receives the routing duration of every
	// handled message in seconds. Set before Run.
	OnLatency func(seconds float64)

	wg sync.WaitGroup
}

func NewLoop(b domain.MessageBus, store domain.Store, router *Router, workers int, logger *slog.Logger) *Loop {
	if workers <= 0 {
		workers = 8
	}
	return &Loop{
		bus:     b,
		store:   store,
		router:  router,
		logger:  logger,
		workers: workers,
	}
}

// Run blocks until the context is cancelled or the bus closes, then
// waits for in-flight turns to finish.
func (l *Loop) Run(ctx context.Context) {
	queues := make([]chan domain.InboundMessage, l.workers)
	for i := range queues {
		queues[i] = make(chan domain.InboundMessage, 16)
		l.wg.Add(1)
		go l.worker(ctx, queues[i])
	}

	inbound := l.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			for _, q := range queues {
				close(q)
			}
			l.wg.Wait()
			return
		case msg, ok := <-inbound:
			if !ok {
				for _, q := range queues {
					close(q)
				}
				l.wg.Wait()
				return
			}
			queues[shard(msg.PlatformID, l.workers)] <- msg
		}
	}
}

func (l *Loop) worker(ctx context.Context, queue <-chan domain.InboundMessage) {
	defer l.wg.Done()
	for msg := range queue {
		l.handle(ctx, msg)
	}
}

func (l *Loop) handle(ctx context.Context, msg domain.InboundMessage) {
	client, err := l.resolveClient(ctx, msg)
	if err != nil {
		l.logger.Error("cannot resolve client", "platform_id", msg.PlatformID, "err", err)
		return
	}

	start := time.Now()
	outcome, err := l.router.HandleInbound(ctx, client.ID, msg.Text, msg.IdempotencyKey)
	if l.OnLatency != nil {
		l.OnLatency(time.Since(start).Seconds())
	}
	if err != nil {
		l.logger.Error("routing failed", "client_id", client.ID, "err", err)
		return
	}
	l.logger.Debug("message routed",
		"client_id", client.ID,
		"outcome", string(outcome.Kind))
}

// resolveClient upserts the client record for a platform identity,
// keeping the display name fresh.
func (l *Loop) resolveClient(ctx context.Context, msg domain.InboundMessage) (*domain.Client, error) {
	client, err := l.store.GetClientByPlatformID(ctx, msg.PlatformID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		fresh := domain.Client{
			PlatformID: msg.PlatformID,
			Name:       msg.SenderName,
			CreatedAt:  msg.Timestamp,
		}
		id, err := l.store.CreateClient(ctx, fresh)
		if err != nil {
			return nil, err
		}
		fresh.ID = id
		return &fresh, nil
	}
	if msg.SenderName != "" && msg.SenderName != client.Name {
		if err := l.store.UpdateClientName(ctx, client.ID, msg.SenderName); err != nil {
			l.logger.Warn("cannot update client name", "client_id", client.ID, "err", err)
		} else {
			client.Name = msg.SenderName
		}
	}
	return client, nil
}

func shard(platformID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(platformID))
	return int(h.Sum32()) % n
}
