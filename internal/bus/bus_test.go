package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/openrisk-labs/kestrel/internal/domain"
)

func TestChannelBus(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	t.Run("PublishSubscribe", func(t *testing.T) {
		received := make(chan *domain.Message, 1)

		sub, err := b.Subscribe(ctx, domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
			received <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		defer sub.Unsubscribe()

		if err := b.Publish(ctx, domain.TopicAlert, []byte(`{"x":1}`)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		select {
		case msg := <-received:
			if msg.Topic != domain.TopicAlert {
				t.Errorf("topic = %s, want %s", msg.Topic, domain.TopicAlert)
			}
			if string(msg.Payload) != `{"x":1}` {
				t.Errorf("payload = %s", msg.Payload)
			}
			if msg.ID == "" {
				t.Error("message without ID")
			}
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		other := make(chan *domain.Message, 1)
		sub, err := b.Subscribe(ctx, domain.TopicRunCompleted, func(ctx context.Context, msg *domain.Message) error {
			other <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		defer sub.Unsubscribe()

		_ = b.Publish(ctx, domain.TopicAlert, []byte("alert"))

		select {
		case <-other:
			t.Error("message crossed topics")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var mu sync.Mutex
		counts := make(map[int]int)

		for i := 0; i < 3; i++ {
			idx := i
			sub, err := b.Subscribe(ctx, "fanout", func(ctx context.Context, msg *domain.Message) error {
				mu.Lock()
				counts[idx]++
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Fatalf("Subscribe failed: %v", err)
			}
			defer sub.Unsubscribe()
		}

		_ = b.Publish(ctx, "fanout", []byte("hi"))

		deadline := time.Now().Add(time.Second)
		for {
			mu.Lock()
			done := len(counts) == 3
			mu.Unlock()
			if done {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("not all subscribers received: %v", counts)
			}
			time.Sleep(5 * time.Millisecond)
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		received := make(chan *domain.Message, 1)
		sub, err := b.Subscribe(ctx, "stop", func(ctx context.Context, msg *domain.Message) error {
			received <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}

		sub.Unsubscribe()
		time.Sleep(10 * time.Millisecond)
		_ = b.Publish(ctx, "stop", []byte("late"))

		select {
		case <-received:
			t.Error("received after unsubscribe")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := b.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestChannelBusClosed(t *testing.T) {
	b := NewChannelBus(10)
	b.Close()
	ctx := context.Background()

	if err := b.Publish(ctx, "t", nil); err == nil {
		t.Error("publish on closed bus succeeded")
	}
	if _, err := b.Subscribe(ctx, "t", nil); err == nil {
		t.Error("subscribe on closed bus succeeded")
	}
	if err := b.Ping(ctx); err == nil {
		t.Error("ping on closed bus succeeded")
	}
	// Double close is a no-op.
	if err := b.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestAlertEventRoundTrip(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	got := make(chan domain.AlertEvent, 1)
	sub, err := b.Subscribe(ctx, domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.AlertEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		got <- ev
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	ev := domain.AlertEvent{
		TransactionID: "tx-9",
		AccountNumber: "ACC-9",
		RiskScore:     0.9,
		RiskLevel:     domain.LevelVeryHigh,
		Flags:         domain.RuleFlags{OddHours: true, HighFrequency: true},
		Timestamp:     time.Date(2025, 6, 15, 2, 0, 0, 0, time.UTC),
	}
	payload, _ := json.Marshal(ev)
	if err := b.Publish(ctx, domain.TopicAlert, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case received := <-got:
		if received.TransactionID != "tx-9" || received.RiskLevel != domain.LevelVeryHigh {
			t.Errorf("unexpected event: %+v", received)
		}
		if !received.Flags.OddHours || !received.Flags.HighFrequency {
			t.Errorf("flags not preserved: %+v", received.Flags)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestNewBusFactory(t *testing.T) {
	b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 5})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer b.Close()

	if _, ok := b.(*ChannelBus); !ok {
		t.Errorf("expected *ChannelBus, got %T", b)
	}

	empty, err := New(domain.EventBusConfig{})
	if err != nil {
		t.Fatalf("New with empty type failed: %v", err)
	}
	defer empty.Close()
	if _, ok := empty.(*ChannelBus); !ok {
		t.Errorf("empty type should default to *ChannelBus, got %T", empty)
	}

	if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
		t.Error("expected error for unsupported bus type")
	}
}
