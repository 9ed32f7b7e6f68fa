package events

import (
	"time"
)

// SubscribeToChannel forwards events of type T into ch for select-based
// consumers like the SSE handlers. Events are dropped while ch is full so a
// slow client never stalls the bus.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return On(bus, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// Now formats the current time for event timestamps.
func Now() string {
	return time.Now().Format(time.RFC3339)
}
