package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	b.Publish(Event{Kind: SessionStatus, Payload: map[string]string{"to": "READY"}})

	select {
	case evt := <-ch:
		if evt.Kind != SessionStatus {
			t.Errorf("got kind %q, want %s", evt.Kind, SessionStatus)
		}
		if evt.Get("to") != "READY" {
			t.Errorf("payload to = %q, want READY", evt.Get("to"))
		}
		if evt.ID == "" || evt.Timestamp.IsZero() {
			t.Errorf("event id/timestamp not filled: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Emit(ConversationUpdated, "conversation_id", "7")
	b.Emit(MessageSendAck, "correlation_id", "c1")

	select {
	case evt := <-ch:
		if evt.Kind != MessageSendAck {
			t.Errorf("got kind %q, want %s", evt.Kind, MessageSendAck)
		}
		if evt.Get("correlation_id") != "c1" {
			t.Errorf("correlation_id = %q, want c1", evt.Get("correlation_id"))
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure the conversation event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	unsub()
	unsub() // second call is a no-op

	b.Publish(Event{Kind: SessionStatus})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: "test.one"})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}

func TestEmitOnNilBus(t *testing.T) {
	var b *Bus
	b.Emit(ReceiptMarked, "conversation_id", "1")
}
