package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
)

func recv(t *testing.T, s *Subscription) models.Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return models.Event{}
	}
}

func TestHub_FanOut(t *testing.T) {
	hub := NewHub(HubOptions{}, nil)
	subs := make([]*Subscription, 5)
	for i := range subs {
		subs[i] = hub.Subscribe()
	}
	assert.Equal(t, 5, hub.Count())

	hub.Publish(models.NewEvent(models.EventRecordingCreated, map[string]string{"id": "r1"}))
	for _, s := range subs {
		ev := recv(t, s)
		assert.Equal(t, models.EventRecordingCreated, ev.Type)
		assert.JSONEq(t, `{"id":"r1"}`, string(ev.Data))
	}
}

func TestHub_UnsubscribedReceivesNothing(t *testing.T) {
	hub := NewHub(HubOptions{}, nil)
	keep := hub.Subscribe()
	gone := hub.Subscribe()
	hub.Unsubscribe(gone)
	hub.Unsubscribe(gone)

	select {
	case <-gone.Done():
	default:
		t.Fatal("done not closed after unsubscribe")
	}

	hub.Publish(models.NewEvent(models.EventTranscriptUpdated, nil))
	recv(t, keep)
	select {
	case ev := <-gone.Events():
		t.Fatalf("removed subscriber got %v", ev.Type)
	default:
	}
	assert.Equal(t, 1, hub.Count())
}

func TestHub_SlowSubscriberDropped(t *testing.T) {
	hub := NewHub(HubOptions{BufferSize: 1}, nil)
	slow := hub.Subscribe()
	fast := hub.Subscribe()

	hub.Publish(models.NewEvent("one", nil))
	recv(t, fast)
	hub.Publish(models.NewEvent("two", nil))
	recv(t, fast)

	select {
	case <-slow.Done():
	case <-time.After(time.Second):
		t.Fatal("slow subscriber not dropped")
	}
	assert.Equal(t, 1, hub.Count())
}

func TestHub_RunSendsPings(t *testing.T) {
	hub := NewHub(HubOptions{KeepAlive: 20 * time.Millisecond}, nil)
	sub := hub.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	assert.Equal(t, models.EventPing, recv(t, sub).Type)
	cancel()
	require.NoError(t, <-done)
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscribers not closed on shutdown")
	}
}

type fakeBridge struct {
	mu       sync.Mutex
	handler  func(models.Event)
	fail     bool
	ready    chan struct{}
	received []models.Event
}

func newFakeBridge() *fakeBridge { return &fakeBridge{ready: make(chan struct{})} }

func (b *fakeBridge) PublishEvent(_ context.Context, ev models.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("redis down")
	}
	b.received = append(b.received, ev)
	if b.handler != nil {
		go b.handler(ev)
	}
	return nil
}

func (b *fakeBridge) SubscribeEvents(_ context.Context, handler func(models.Event)) (func(), error) {
	b.mu.Lock()
	b.handler = handler
	b.mu.Unlock()
	close(b.ready)
	return func() {}, nil
}

func TestHub_PublishGoesThroughBridge(t *testing.T) {
	bridge := newFakeBridge()
	hub := NewHub(HubOptions{Bridge: bridge, KeepAlive: time.Hour}, nil)
	sub := hub.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()
	<-bridge.ready

	hub.Publish(models.NewEvent(models.EventRecordingApproved, nil))
	assert.Equal(t, models.EventRecordingApproved, recv(t, sub).Type)
	select {
	case ev := <-sub.Events():
		t.Fatalf("duplicate delivery: %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_BridgeFailureFallsBackToLocal(t *testing.T) {
	bridge := newFakeBridge()
	bridge.fail = true
	hub := NewHub(HubOptions{Bridge: bridge}, nil)
	sub := hub.Subscribe()

	hub.Publish(models.NewEvent(models.EventRecordingDenied, nil))
	assert.Equal(t, models.EventRecordingDenied, recv(t, sub).Type)
}
