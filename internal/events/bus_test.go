package events

import (
	"fmt"
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(10)

	bus.Publish(StepStartedEvent{
		ID:          "task_1",
		StepIndex:   0,
		Description: "first step",
		Timestamp:   time.Now(),
	})

	select {
	case received := <-ch:
		if received.TaskID() != "task_1" {
			t.Errorf("TaskID = %q, want task_1", received.TaskID())
		}
		if received.EventType() != EventTypeStepStarted {
			t.Errorf("EventType = %q, want %q", received.EventType(), EventTypeStepStarted)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch1 := bus.Subscribe(10)
	ch2 := bus.Subscribe(10)

	bus.Publish(TaskArchivedEvent{ID: "task_2", Reason: "completed", Timestamp: time.Now()})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.TaskID() != "task_2" {
				t.Errorf("subscriber %d: TaskID = %q, want task_2", i+1, received.TaskID())
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("subscriber %d: timeout waiting for event", i+1)
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			bus.Publish(StepCompletedEvent{
				ID:        fmt.Sprintf("task_%d", i),
				StepIndex: i,
				Tool:      "text_output",
				Timestamp: time.Now(),
			})
		}
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publisher blocked on a full subscriber buffer")
	}

	select {
	case received := <-ch:
		if received == nil {
			t.Error("received nil event")
		}
	default:
		t.Error("expected at least one buffered event")
	}
}

func TestCloseSignalsSubscribers(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(10)

	bus.Close()
	bus.Close() // idempotent

	received := 0
	for range ch {
		received++
	}
	if received != 0 {
		t.Errorf("received %d events after close, want 0", received)
	}
}

func TestPublishAfterClose(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(10)
	bus.Close()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("publishing after close panicked: %v", r)
		}
	}()
	bus.Publish(PlanReadyEvent{ID: "task_1", StepCount: 3, Timestamp: time.Now()})

	if _, ok := <-ch; ok {
		t.Error("received event after close")
	}
}

func TestSubscribeAfterClose(t *testing.T) {
	bus := NewBus()
	bus.Close()

	ch := bus.Subscribe(10)
	if _, ok := <-ch; ok {
		t.Error("subscription after close should be a closed channel")
	}
}
