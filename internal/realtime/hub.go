// Package realtime fans pipeline events out to live subscribers over SSE and WebSocket.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
)

const (
	defaultBufferSize = 64
	defaultKeepAlive  = 30 * time.Second
)

// Bridge carries events between instances (Redis pub/sub in production).
type Bridge interface {
	PublishEvent(ctx context.Context, ev models.Event) error
	SubscribeEvents(ctx context.Context, handler func(models.Event)) (cancel func(), err error)
}

// Subscription is one registered live-update connection.
type Subscription struct {
	ID     string
	events chan models.Event
	done   chan struct{}
	once   sync.Once
}

// Events yields events delivered to this subscriber.
func (s *Subscription) Events() <-chan models.Event { return s.events }

// Done is closed once the subscription has been removed from the hub.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) close() { s.once.Do(func() { close(s.done) }) }

// HubOptions configures a Hub.
type HubOptions struct {
	BufferSize int
	KeepAlive  time.Duration
	Bridge     Bridge // optional
}

// Hub is the registry of live subscribers. Publish never blocks on a slow subscriber:
// a subscriber whose buffer is full is dropped.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]*Subscription
	bufferSize int
	keepAlive  time.Duration
	bridge     Bridge
	logger     *zap.Logger
}

// NewHub creates a hub.
func NewHub(opts HubOptions, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = defaultKeepAlive
	}
	return &Hub{
		subs:       make(map[string]*Subscription),
		bufferSize: opts.BufferSize,
		keepAlive:  opts.KeepAlive,
		bridge:     opts.Bridge,
		logger:     logger,
	}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{
		ID:     uuid.NewString(),
		events: make(chan models.Event, h.bufferSize),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.subs[s.ID] = s
	n := len(h.subs)
	h.mu.Unlock()
	h.logger.Debug("subscriber joined", zap.String("subscriber_id", s.ID), zap.Int("subscribers", n))
	return s
}

// Unsubscribe removes a subscriber. Safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	h.mu.Lock()
	_, ok := h.subs[s.ID]
	delete(h.subs, s.ID)
	n := len(h.subs)
	h.mu.Unlock()
	s.close()
	if ok {
		h.logger.Debug("subscriber left", zap.String("subscriber_id", s.ID), zap.Int("subscribers", n))
	}
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish delivers ev to every subscriber on every instance. With a bridge the event goes
// through it only, and the bridge subscription performs the local broadcast once.
// If the bridge publish fails the event is broadcast locally.
func (h *Hub) Publish(ev models.Event) {
	if h.bridge != nil {
		ctx, cancel := context.WithTimeout(context.Background(), eventTTL)
		err := h.bridge.PublishEvent(ctx, ev)
		cancel()
		if err == nil {
			return
		}
		h.logger.Warn("bridge publish failed, broadcasting locally", zap.String("type", ev.Type), zap.Error(err))
	}
	h.Broadcast(ev)
}

// Broadcast delivers ev to this instance's subscribers.
func (h *Hub) Broadcast(ev models.Event) {
	var dropped []*Subscription
	h.mu.RLock()
	for _, s := range h.subs {
		select {
		case s.events <- ev:
		default:
			dropped = append(dropped, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range dropped {
		h.logger.Warn("subscriber too slow, dropping", zap.String("subscriber_id", s.ID))
		h.Unsubscribe(s)
	}
}

// Run sends keepalive pings and, with a bridge, relays bridged events to local
// subscribers. Blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	if h.bridge != nil {
		cancel, err := h.bridge.SubscribeEvents(ctx, h.Broadcast)
		if err != nil {
			return err
		}
		defer cancel()
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case <-ticker.C:
			h.Broadcast(models.NewEvent(models.EventPing, nil))
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
}
