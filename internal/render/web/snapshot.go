package web

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/smazurov/glcapture/internal/render"
)

const jpegQuality = 80

// snapshot holds the latest JPEG preview. HTTP handlers register as waiters;
// the capture goroutine encodes a frame only while someone is waiting.
type snapshot struct {
	mu       sync.Mutex
	jpeg     []byte
	sequence uint32
	taken    time.Time
	waiters  []chan struct{}

	rgba *image.RGBA
}

// wanted reports whether any handler is waiting for a frame.
func (s *snapshot) wanted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters) > 0
}

// capture encodes f and wakes the waiters. Called on the capture goroutine.
func (s *snapshot) capture(f render.Frame, scale int) error {
	img, err := render.NV12ToRGBA(f, scale, s.rgba)
	if err != nil {
		return err
	}
	s.rgba = img

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return err
	}

	s.mu.Lock()
	s.jpeg = buf.Bytes()
	s.sequence = f.Sequence
	s.taken = time.Now()
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	return nil
}

// next waits for a frame encoded after the call. It returns false if ctx
// ends first.
func (s *snapshot) next(ctx context.Context) ([]byte, uint32, bool) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.jpeg, s.sequence, true
	case <-ctx.Done():
		s.drop(ch)
		return nil, 0, false
	}
}

// cached returns the last encoded frame, if any.
func (s *snapshot) cached() ([]byte, uint32, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jpeg, s.sequence, s.taken, s.jpeg != nil
}

func (s *snapshot) drop(ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.waiters {
		if w == ch {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}
