package exporters

import (
	"context"
	"sync"
	"time"

	"github.com/smazurov/glcapture/internal/events"
	"github.com/smazurov/glcapture/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// StatsExporter turns the capture counters into a frame rate and publishes
// a FrameStatsEvent every interval.
type StatsExporter struct {
	eventBus  EventPublisher
	sessionID string
	interval  time.Duration
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	lastFrames uint64
	lastTick   time.Time
}

// NewStatsExporter creates a new stats exporter for a session.
func NewStatsExporter(eventBus EventPublisher, sessionID string) *StatsExporter {
	return &StatsExporter{
		eventBus:  eventBus,
		sessionID: sessionID,
		interval:  1 * time.Second,
	}
}

// Start begins the export loop.
func (s *StatsExporter) Start(ctx context.Context) {
	var runCtx context.Context
	runCtx, s.cancel = context.WithCancel(ctx)
	s.lastFrames = metrics.GetCaptureStats().FramesRendered
	s.lastTick = time.Now()
	s.wg.Add(1)
	go s.run(runCtx)
}

// Stop stops the exporter and waits for the goroutine to finish.
func (s *StatsExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *StatsExporter) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.publish(now)
		}
	}
}

func (s *StatsExporter) publish(now time.Time) {
	stats := metrics.GetCaptureStats()

	elapsed := now.Sub(s.lastTick).Seconds()
	fps := 0.0
	if elapsed > 0 && stats.FramesRendered >= s.lastFrames {
		fps = float64(stats.FramesRendered-s.lastFrames) / elapsed
	}
	s.lastFrames = stats.FramesRendered
	s.lastTick = now

	metrics.SetFPS(fps)

	s.eventBus.Publish(events.FrameStatsEvent{
		SessionID: s.sessionID,
		Frames:    stats.FramesRendered,
		FPS:       fps,
		Sequence:  stats.LastSequence,
		Timestamp: now.Format(time.RFC3339),
	})
}
