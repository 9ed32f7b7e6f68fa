package render

// KeyQueue carries key sequences from input goroutines to the capture
// goroutine. Renderers push from UI or HTTP callbacks and drain in Draw.
type KeyQueue struct {
	ch chan string
}

// NewKeyQueue creates a queue holding up to size pending sequences.
func NewKeyQueue(size int) *KeyQueue {
	return &KeyQueue{ch: make(chan string, size)}
}

// Push enqueues keys without blocking. It reports false if the queue is full.
func (q *KeyQueue) Push(keys string) bool {
	select {
	case q.ch <- keys:
		return true
	default:
		return false
	}
}

// Drain hands every pending sequence to handler and reports whether QuitKey
// was among them. Sequences after QuitKey stay queued.
func (q *KeyQueue) Drain(handler KeyFunc) bool {
	for {
		select {
		case keys := <-q.ch:
			if keys == QuitKey {
				return true
			}
			if handler != nil {
				handler(keys)
			}
		default:
			return false
		}
	}
}
