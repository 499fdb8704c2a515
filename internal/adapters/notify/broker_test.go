package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/encorefm/encore/internal/domain/model"
)

func recv(t *testing.T, sub *Subscription) model.Delta {
	t.Helper()
	select {
	case delta, ok := <-sub.C:
		if !ok {
			t.Fatal("channel closed before delivery")
		}
		return delta
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delta")
	}
	return model.Delta{}
}

func TestBroker_PublishReachesEventSubscribers(t *testing.T) {
	b := New()
	defer b.Close()
	ctx := context.Background()

	s1 := b.Subscribe(ctx, "ev1")
	s2 := b.Subscribe(ctx, "ev1")
	other := b.Subscribe(ctx, "ev2")
	defer s1.Close()
	defer s2.Close()
	defer other.Close()

	delta := model.Delta{SongID: "song-1", Title: "Imagine", TotalTokens: 40, EventID: "ev1"}
	if n := b.Publish(ctx, "ev1", delta); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}

	if got := recv(t, s1); got != delta {
		t.Errorf("s1 got %+v, want %+v", got, delta)
	}
	if got := recv(t, s2); got != delta {
		t.Errorf("s2 got %+v, want %+v", got, delta)
	}

	select {
	case delta := <-other.C:
		t.Errorf("subscriber of another event received %+v", delta)
	default:
	}
}

func TestBroker_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := New(WithBufferSize(1))
	defer b.Close()
	ctx := context.Background()

	sub := b.Subscribe(ctx, "ev1")
	defer sub.Close()

	first := model.Delta{SongID: "s", TotalTokens: 1, EventID: "ev1"}
	if n := b.Publish(ctx, "ev1", first); n != 1 {
		t.Fatalf("expected delivery, got %d", n)
	}
	// Buffer now full; this one is dropped, not replayed later.
	if n := b.Publish(ctx, "ev1", model.Delta{SongID: "s", TotalTokens: 2, EventID: "ev1"}); n != 0 {
		t.Fatalf("expected drop, got %d deliveries", n)
	}

	if got := recv(t, sub); got != first {
		t.Errorf("got %+v, want first delta %+v", got, first)
	}
	select {
	case delta := <-sub.C:
		t.Errorf("dropped delta was delivered: %+v", delta)
	default:
	}
}

func TestBroker_CloseUnsubscribes(t *testing.T) {
	b := New()
	defer b.Close()
	ctx := context.Background()

	sub := b.Subscribe(ctx, "ev1")
	if b.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", b.SubscriberCount())
	}

	sub.Close()
	sub.Close() // idempotent

	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", b.SubscriberCount())
	}
	if _, ok := <-sub.C; ok {
		t.Error("expected channel to be closed")
	}
	if n := b.Publish(ctx, "ev1", model.Delta{SongID: "s", EventID: "ev1"}); n != 0 {
		t.Errorf("expected no deliveries after close, got %d", n)
	}
}

func TestBroker_ContextCancelUnsubscribes(t *testing.T) {
	b := New()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub := b.Subscribe(ctx, "ev1")

	cancel()

	deadline := time.After(time.Second)
	for b.SubscriberCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("subscriber was not removed after context cancel")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if _, ok := <-sub.C; ok {
		t.Error("expected channel to be closed")
	}
}

func TestBroker_ShutdownClosesAll(t *testing.T) {
	b := New()
	ctx := context.Background()

	s1 := b.Subscribe(ctx, "ev1")
	s2 := b.Subscribe(ctx, "ev2")

	b.Close()
	b.Close() // idempotent

	if _, ok := <-s1.C; ok {
		t.Error("expected s1 channel closed")
	}
	if _, ok := <-s2.C; ok {
		t.Error("expected s2 channel closed")
	}
	if sub := b.Subscribe(ctx, "ev1"); sub != nil {
		t.Error("expected Subscribe to return nil after shutdown")
	}
}

func TestBroker_ConcurrentPublishAndClose(t *testing.T) {
	b := New(WithBufferSize(4))
	defer b.Close()
	ctx := context.Background()

	const subscribers = 16
	subs := make([]*Subscription, subscribers)
	for i := range subs {
		subs[i] = b.Subscribe(ctx, "ev1")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			b.Publish(ctx, "ev1", model.Delta{SongID: "s", TotalTokens: int64(i), EventID: "ev1"})
		}
	}()
	go func() {
		defer wg.Done()
		for _, sub := range subs {
			sub.Close()
		}
	}()
	wg.Wait()

	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
}
