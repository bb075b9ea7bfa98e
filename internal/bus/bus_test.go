package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
)

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		var received atomic.Bool
		var receivedMsg *domain.Message

		var wg sync.WaitGroup
		wg.Add(1)

		_, err := bus.Subscribe(ctx, "test.topic", func(ctx context.Context, msg *domain.Message) error {
			receivedMsg = msg
			received.Store(true)
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		// Allow subscription to be active
		time.Sleep(10 * time.Millisecond)

		err = bus.Publish(ctx, "test.topic", []byte("hello"))
		if err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for message")
		}

		if !received.Load() {
			t.Error("message was not received")
		}
		if string(receivedMsg.Payload) != "hello" {
			t.Errorf("expected payload 'hello', got %q", string(receivedMsg.Payload))
		}
		if receivedMsg.Topic != "test.topic" {
			t.Errorf("expected topic 'test.topic', got %q", receivedMsg.Topic)
		}
		if receivedMsg.ID == "" {
			t.Error("message ID should not be empty")
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var count atomic.Int32

		var wg sync.WaitGroup
		wg.Add(3)

		for i := 0; i < 3; i++ {
			_, err := bus.Subscribe(ctx, "fanout.topic", func(ctx context.Context, msg *domain.Message) error {
				count.Add(1)
				wg.Done()
				return nil
			})
			if err != nil {
				t.Fatalf("subscribe failed: %v", err)
			}
		}

		time.Sleep(10 * time.Millisecond)

		if err := bus.Publish(ctx, "fanout.topic", []byte("fanout")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for fanout delivery")
		}

		if got := count.Load(); got != 3 {
			t.Errorf("expected 3 deliveries, got %d", got)
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		var wrongTopic atomic.Bool

		_, err := bus.Subscribe(ctx, "topic.a", func(ctx context.Context, msg *domain.Message) error {
			wrongTopic.Store(true)
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		time.Sleep(10 * time.Millisecond)

		if err := bus.Publish(ctx, "topic.b", []byte("b only")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		time.Sleep(50 * time.Millisecond)

		if wrongTopic.Load() {
			t.Error("subscriber on topic.a received a message published to topic.b")
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32

		sub, err := bus.Subscribe(ctx, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		time.Sleep(10 * time.Millisecond)

		if err := bus.Publish(ctx, "unsub.topic", []byte("one")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
		time.Sleep(50 * time.Millisecond)

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("unsubscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, "unsub.topic", []byte("two")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
		time.Sleep(50 * time.Millisecond)

		if got := count.Load(); got != 1 {
			t.Errorf("expected 1 delivery before unsubscribe, got %d", got)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})
}

func TestNewSelectsBackend(t *testing.T) {
	t.Run("Channel", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
		if err != nil {
			t.Fatalf("New(channel) failed: %v", err)
		}
		defer b.Close()

		if _, ok := b.(*ChannelBus); !ok {
			t.Errorf("expected *ChannelBus, got %T", b)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "pigeon"}); err == nil {
			t.Error("expected error for unknown bus type")
		}
	})
}

func TestChannelBusCloseStopsDelivery(t *testing.T) {
	bus := NewChannelBus(10)
	ctx := context.Background()

	var count atomic.Int32
	_, err := bus.Subscribe(ctx, "close.topic", func(ctx context.Context, msg *domain.Message) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := bus.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// Publish after close should not panic or deliver.
	_ = bus.Publish(ctx, "close.topic", []byte("late"))
	time.Sleep(50 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected 0 deliveries after close, got %d", got)
	}
}
