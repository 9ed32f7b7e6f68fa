package display

import (
	"image"
	"sync"
)

// swapSlots is the smallest count that leaves the writer a slot while the UI
// holds one for painting and another is queued as the newest frame.
const swapSlots = 3

// frameSwap hands converted frames from the capture goroutine to the fyne
// painter. The writer only fills a slot that is neither the newest frame nor
// the one the painter last took, so pixels are never written while painted.
type frameSwap struct {
	mu       sync.Mutex
	slots    [swapSlots]*image.RGBA
	front    int // newest published slot, -1 before the first frame
	painting int // slot returned by the last paint, -1 if none
}

func newFrameSwap() *frameSwap {
	return &frameSwap{front: -1, painting: -1}
}

// acquire returns a slot the painter cannot be reading and its current image,
// which may be nil or a different size.
func (s *frameSwap) acquire() (int, *image.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slots {
		if i != s.front && i != s.painting {
			return i, s.slots[i]
		}
	}
	panic("display: no free frame slot")
}

// publish makes img in slot i the newest frame.
func (s *frameSwap) publish(i int, img *image.RGBA) {
	s.mu.Lock()
	s.slots[i] = img
	s.front = i
	s.mu.Unlock()
}

// paint pins the newest frame for the painter until the next call. It
// returns nil before the first publish.
func (s *frameSwap) paint() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.front < 0 {
		return nil
	}
	s.painting = s.front
	return s.slots[s.front]
}

// latest returns the newest frame without pinning it.
func (s *frameSwap) latest() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.front < 0 {
		return nil
	}
	return s.slots[s.front]
}
