package events

import (
	"github.com/kelindar/event"
)

// Bus delivers session events to in-process subscribers. Delivery is
// asynchronous: Publish returns before handlers run.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates an event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// kelindar/event dispatches on the static type, so each concrete event gets
// an adapter keyed by its Type().
var publishers = map[uint32]func(*event.Dispatcher, Event){
	TypeSessionStateChanged: publishAs[SessionStateChangedEvent],
	TypeBufferPool:          publishAs[BufferPoolEvent],
	TypeFrameStats:          publishAs[FrameStatsEvent],
	TypeFocusChanged:        publishAs[FocusChangedEvent],
	TypeTestPatternChanged:  publishAs[TestPatternChangedEvent],
	TypeDeviceRemoved:       publishAs[DeviceRemovedEvent],
	TypeLogEntry:            publishAs[LogEntryEvent],
}

func publishAs[T Event](d *event.Dispatcher, ev Event) {
	if e, ok := ev.(T); ok {
		event.Publish(d, e)
	}
}

// Publish sends ev to its subscribers. A nil bus or an unknown event type
// drops it.
func (b *Bus) Publish(ev Event) {
	if b == nil || ev == nil {
		return
	}
	if publish, ok := publishers[ev.Type()]; ok {
		publish(b.dispatcher, ev)
	}
}

// On subscribes fn to events of type T and returns the unsubscribe function.
func On[T Event](b *Bus, fn func(T)) func() {
	if b == nil {
		return func() {}
	}
	return event.Subscribe(b.dispatcher, fn)
}

// Subscribe is On for callers that hold the handler as an untyped value,
// such as the NATS relay. Handlers of other types are ignored.
//
//	unsub := bus.Subscribe(func(e FocusChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(SessionStateChangedEvent):
		return On(b, h)
	case func(BufferPoolEvent):
		return On(b, h)
	case func(FrameStatsEvent):
		return On(b, h)
	case func(FocusChangedEvent):
		return On(b, h)
	case func(TestPatternChangedEvent):
		return On(b, h)
	case func(DeviceRemovedEvent):
		return On(b, h)
	case func(LogEntryEvent):
		return On(b, h)
	}
	return func() {}
}
