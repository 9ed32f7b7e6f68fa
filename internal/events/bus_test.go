package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan SessionStateChangedEvent, 1)

	unsub := bus.Subscribe(func(e SessionStateChangedEvent) {
		received <- e
	})
	defer unsub()

	event := SessionStateChangedEvent{
		SessionID:  "abc",
		DevicePath: "/dev/video0",
		State:      "streaming",
		Timestamp:  "2025-01-27T10:30:00Z",
	}
	bus.Publish(event)

	got := <-received
	if got.DevicePath != event.DevicePath {
		t.Errorf("Expected device_path %s, got %s", event.DevicePath, got.DevicePath)
	}
	if got.State != "streaming" {
		t.Errorf("Expected state streaming, got %s", got.State)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan FocusChangedEvent, 1)
	received2 := make(chan FocusChangedEvent, 1)

	unsub1 := bus.Subscribe(func(e FocusChangedEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e FocusChangedEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(FocusChangedEvent{From: "idle", To: "auto_focus_enabled", Command: "auto"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan DeviceRemovedEvent, 1)

	unsub := bus.Subscribe(func(e DeviceRemovedEvent) {
		received <- e
	})

	bus.Publish(DeviceRemovedEvent{DevicePath: "/dev/video0"})
	<-received

	unsub()

	bus.Publish(DeviceRemovedEvent{DevicePath: "/dev/video1"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
		// Expected - no event
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	focusReceived := make(chan bool, 1)
	patternReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ FocusChangedEvent) {
		focusReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ TestPatternChangedEvent) {
		patternReceived <- true
	})
	defer unsub2()

	bus.Publish(FocusChangedEvent{Command: "single"})
	<-focusReceived

	select {
	case <-patternReceived:
		t.Fatal("Pattern subscriber should NOT have received FocusChangedEvent")
	case <-time.After(10 * time.Millisecond):
		// Expected
	}

	bus.Publish(TestPatternChangedEvent{Pattern: 1})
	<-patternReceived

	select {
	case <-focusReceived:
		t.Fatal("Focus subscriber should NOT have received TestPatternChangedEvent")
	case <-time.After(10 * time.Millisecond):
		// Expected
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ FrameStatsEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range eventsPerGoroutine {
				bus.Publish(FrameStatsEvent{
					Frames:    uint64(i),
					Timestamp: Now(),
				})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
	}{
		{"SessionStateChanged", SessionStateChangedEvent{State: "priming"}},
		{"BufferPool", BufferPoolEvent{Action: "allocated", Requested: 4, Granted: 3}},
		{"FrameStats", FrameStatsEvent{Frames: 30, FPS: 30}},
		{"FocusChanged", FocusChangedEvent{Command: "pause"}},
		{"TestPatternChanged", TestPatternChangedEvent{Pattern: 3}},
		{"DeviceRemoved", DeviceRemovedEvent{DevicePath: "/dev/video0"}},
		{"LogEntry", LogEntryEvent{Level: "info", Message: "hello"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(_ *testing.T) {
			received := make(chan Event, 1)

			var unsub func()
			switch tt.event.(type) {
			case SessionStateChangedEvent:
				unsub = bus.Subscribe(func(e SessionStateChangedEvent) { received <- e })
			case BufferPoolEvent:
				unsub = bus.Subscribe(func(e BufferPoolEvent) { received <- e })
			case FrameStatsEvent:
				unsub = bus.Subscribe(func(e FrameStatsEvent) { received <- e })
			case FocusChangedEvent:
				unsub = bus.Subscribe(func(e FocusChangedEvent) { received <- e })
			case TestPatternChangedEvent:
				unsub = bus.Subscribe(func(e TestPatternChangedEvent) { received <- e })
			case DeviceRemovedEvent:
				unsub = bus.Subscribe(func(e DeviceRemovedEvent) { received <- e })
			case LogEntryEvent:
				unsub = bus.Subscribe(func(e LogEntryEvent) { received <- e })
			}
			defer unsub()

			bus.Publish(tt.event)
			<-received
		})
	}
}

func TestBus_NilPublish(_ *testing.T) {
	var bus *Bus
	bus.Publish(FrameStatsEvent{Frames: 1})
}

func TestBus_UnknownHandler(_ *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(_ string) {})
	unsub()
}

func TestEventJSONSerialization(t *testing.T) {
	tests := []struct {
		name  string
		event any
		key   string
	}{
		{
			"SessionStateChangedEvent",
			SessionStateChangedEvent{
				SessionID: "abc",
				State:     "failed",
				Error:     "VIDIOC_DQBUF: no such device",
				Timestamp: "2025-01-27T10:30:00Z",
			},
			"session_id",
		},
		{
			"FocusChangedEvent",
			FocusChangedEvent{
				From:      "idle",
				To:        "single_focus_start",
				Command:   "single",
				Timestamp: "2025-01-27T10:30:00Z",
			},
			"to",
		},
		{
			"BufferPoolEvent",
			BufferPoolEvent{Action: "allocated", Requested: 4, Granted: 2, Planes: 2},
			"granted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("Failed to marshal: %v", err)
			}

			var result map[string]any
			if unmarshalErr := json.Unmarshal(data, &result); unmarshalErr != nil {
				t.Fatalf("Failed to unmarshal: %v", unmarshalErr)
			}

			if _, ok := result[tt.key]; !ok {
				t.Fatalf("Expected key %q in %s", tt.key, data)
			}
		})
	}
}

func TestSessionStateChangedEvent_Interface(t *testing.T) {
	event := SessionStateChangedEvent{
		SessionID: "test-123",
		State:     "streaming",
	}

	if event.GetSessionID() != "test-123" {
		t.Errorf("Expected session_id test-123, got %s", event.GetSessionID())
	}

	if event.GetState() != "streaming" {
		t.Errorf("Expected state streaming, got %s", event.GetState())
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[TestPatternChangedEvent](bus, ch)
	defer unsub()

	bus.Publish(TestPatternChangedEvent{Pattern: 2})

	received := <-ch
	patternEvent, ok := received.(TestPatternChangedEvent)
	if !ok {
		t.Fatalf("Expected TestPatternChangedEvent, got %T", received)
	}
	if patternEvent.Pattern != 2 {
		t.Errorf("Expected pattern 2, got %d", patternEvent.Pattern)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[FrameStatsEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(FrameStatsEvent{Frames: 1})
		done <- true
	}()

	<-done // Should complete without blocking
}

func TestPublishersCoverEveryType(t *testing.T) {
	for typ := TypeSessionStateChanged; typ <= TypeLogEntry; typ++ {
		if _, ok := publishers[typ]; !ok {
			t.Errorf("event type %d has no publisher", typ)
		}
	}
}

func TestOnTyped(t *testing.T) {
	bus := New()
	received := make(chan DeviceRemovedEvent, 1)
	unsub := On(bus, func(e DeviceRemovedEvent) { received <- e })
	defer unsub()

	bus.Publish(DeviceRemovedEvent{DevicePath: "/dev/video3"})

	select {
	case e := <-received:
		if e.DevicePath != "/dev/video3" {
			t.Errorf("DevicePath = %q, want /dev/video3", e.DevicePath)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for DeviceRemovedEvent")
	}

	var nilBus *Bus
	On(nilBus, func(DeviceRemovedEvent) {})()
}
