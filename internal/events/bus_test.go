package events

import (
	"testing"
	"time"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe()
	bus.Publish(NewStageProgress("exec-1", "static_analysis", "running", 40, ""))

	select {
	case ev := <-ch:
		if ev.EventType() != TypeStageProgress {
			t.Errorf("type = %s", ev.EventType())
		}
		if ev.ExecutionID() != "exec-1" {
			t.Errorf("execution = %s", ev.ExecutionID())
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestEventBus_TypeFilter(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe(TypeExecutionCompleted)
	bus.Publish(NewStageProgress("exec-1", "ast_parsing", "running", 10, ""))
	bus.Publish(NewExecutionCompleted("exec-1", "proj-1", 92.0, "LOW"))

	select {
	case ev := <-ch:
		if ev.EventType() != TypeExecutionCompleted {
			t.Errorf("type = %s, want completed only", ev.EventType())
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	select {
	case ev := <-ch:
		t.Errorf("unexpected second event: %s", ev.EventType())
	default:
	}
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus := New(1)
	defer bus.Close()

	_ = bus.Subscribe()
	bus.Publish(NewExecutionStarted("exec-1", "proj-1"))
	bus.Publish(NewExecutionStarted("exec-2", "proj-1")) // buffer full, dropped

	if got := bus.DroppedCount(); got != 1 {
		t.Errorf("DroppedCount() = %d, want 1", got)
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	// Channel must be closed.
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	bus.Publish(NewExecutionStarted("exec-1", "proj-1"))
}

func TestEventBus_CloseIdempotent(t *testing.T) {
	bus := New(10)
	ch := bus.Subscribe()
	bus.Close()
	bus.Close()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	// Publish after close is a no-op.
	bus.Publish(NewExecutionStarted("exec-1", "proj-1"))
}
