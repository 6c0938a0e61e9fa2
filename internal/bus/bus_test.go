package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestBus(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	rdb := newTestBus(t)
	log := zerolog.Nop()
	pub := NewPublisher(rdb, log)
	sub := NewSubscriber(rdb, log)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	received := make(chan Envelope, 1)
	go func() { _ = sub.Run(ctx, func(e Envelope) { received <- e }) }()
	time.Sleep(50 * time.Millisecond) // allow subscription to establish

	sessionID := int64(42)
	data, _ := json.Marshal(map[string]string{"text": "hi"})
	if err := pub.Publish(ctx, Envelope{Type: "new_message", Data: data, SessionID: &sessionID}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case env := <-received:
		if env.Type != "new_message" || env.SessionID == nil || *env.SessionID != 42 {
			t.Errorf("received envelope = %+v, want type=new_message session_id=42", env)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for published envelope")
	}
}
