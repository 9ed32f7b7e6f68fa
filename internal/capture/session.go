//go:build linux

package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/smazurov/glcapture/internal/control"
	"github.com/smazurov/glcapture/internal/events"
	"github.com/smazurov/glcapture/internal/logging"
	"github.com/smazurov/glcapture/internal/metrics"
	"github.com/smazurov/glcapture/internal/metrics/exporters"
	"github.com/smazurov/glcapture/internal/render"
	"github.com/smazurov/glcapture/internal/systemd"
	"github.com/smazurov/glcapture/pkg/linuxav/hotplug"
	"github.com/smazurov/glcapture/pkg/linuxav/v4l2"
)

// Defaults for Config fields left at zero.
const (
	DefaultDevicePath  = "/dev/video0"
	DefaultBufferCount = 4
	DefaultWidth       = 1920
	DefaultHeight      = 1080
	nv12Planes         = 2
	remoteKeyQueueSize = 16
)

// Config describes one capture session.
type Config struct {
	DevicePath    string
	SubdevicePath string // empty disables sensor controls
	BufferCount   int
	ExportDMA     bool
	Width         int
	Height        int
	FrameLimit    int // 0 means unlimited
}

func (c Config) withDefaults() Config {
	if c.DevicePath == "" {
		c.DevicePath = DefaultDevicePath
	}
	if c.BufferCount == 0 {
		c.BufferCount = DefaultBufferCount
	}
	if c.Width == 0 {
		c.Width = DefaultWidth
	}
	if c.Height == 0 {
		c.Height = DefaultHeight
	}
	return c
}

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// Notifier reports service state to the init system.
type Notifier interface {
	Ready()
	Stopping()
	Status(format string, args ...any)
	StartWatchdog(ctx context.Context, progress func() uint64)
}

// RemovalWatcher blocks until the device at path disappears and calls onRemove.
type RemovalWatcher func(ctx context.Context, path string, onRemove func(hotplug.Event)) error

// Session drives one capture run: open, map, stream, render and tear down.
type Session struct {
	id       string
	cfg      Config
	renderer render.Renderer
	logger   *slog.Logger

	opener   Opener
	eventBus EventPublisher
	notifier Notifier
	removal  RemovalWatcher
	keyHelp  io.Writer
	signals  bool

	stop       StopFlag
	remote     *render.KeyQueue
	ran        bool
	dev        Device
	sub        ControlDevice
	pool       *Pool
	streaming  bool
	controller *control.Controller
}

// Option configures a Session.
type Option func(*Session)

// WithOpener replaces the V4L2 device opener.
func WithOpener(o Opener) Option {
	return func(s *Session) { s.opener = o }
}

// WithEventBus publishes session events to bus.
func WithEventBus(bus EventPublisher) Option {
	return func(s *Session) { s.eventBus = bus }
}

// WithNotifier replaces the systemd notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

// WithRemovalWatcher replaces the hotplug removal watcher. nil disables it.
func WithRemovalWatcher(w RemovalWatcher) Option {
	return func(s *Session) { s.removal = w }
}

// WithKeyHelp sets where the key help text is written.
func WithKeyHelp(w io.Writer) Option {
	return func(s *Session) { s.keyHelp = w }
}

// WithoutSignals leaves SIGINT and SIGTERM to the caller.
func WithoutSignals() Option {
	return func(s *Session) { s.signals = false }
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}

// NewSession creates a session that renders into renderer.
func NewSession(cfg Config, renderer render.Renderer, opts ...Option) *Session {
	s := &Session{
		id:       uuid.NewString(),
		cfg:      cfg.withDefaults(),
		renderer: renderer,
		opener:   V4L2Opener{},
		eventBus: nopPublisher{},
		notifier: systemd.NewNotifier(),
		removal:  hotplug.WatchRemoval,
		keyHelp:  os.Stdout,
		signals:  true,
		remote:   render.NewKeyQueue(remoteKeyQueueSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.eventBus == nil {
		s.eventBus = nopPublisher{}
	}
	s.logger = logging.GetLogger("capture").With("session_id", s.id)
	return s
}

// ID returns the session identifier used in logs and events.
func (s *Session) ID() string { return s.id }

// Stop asks the loop to stop at the top of its next iteration.
func (s *Session) Stop() { s.stop.Request() }

// Run executes the session. Teardown always runs, whatever stage failed.
// A nil return is a normal stop: signal, frame limit, removal or renderer exit.
func (s *Session) Run(ctx context.Context) (err error) {
	if s.ran {
		return newError(KindSetup, "run", errors.New("session already ran"))
	}
	s.ran = true

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics.ResetCaptureStats()
	s.publishState(events.SessionStarting, nil)
	s.logger.Info("Starting capture session",
		"device", s.cfg.DevicePath,
		"subdevice", s.cfg.SubdevicePath,
		"buffers", s.cfg.BufferCount,
		"dma_export", s.cfg.ExportDMA)

	if s.signals {
		defer s.watchSignals()()
	}
	context.AfterFunc(ctx, s.stop.Request)

	defer func() {
		if terr := s.teardown(); terr != nil {
			err = errors.Join(err, terr)
		}
		if err != nil {
			s.publishState(events.SessionFailed, err)
		} else {
			s.publishState(events.SessionStopped, nil)
		}
	}()

	format, err := s.setup()
	if err != nil {
		s.logSetupError(err)
		return err
	}

	if s.removal != nil {
		go s.watchRemoval(ctx)
	}

	relay := statusRelay{next: s.eventBus, notifier: s.notifier}
	stats := exporters.NewStatsExporter(relay, s.id)
	defer stats.Stop()

	loop := NewLoop(s.pool, s.renderer, format, &s.stop)
	loop.SetFrameLimit(s.cfg.FrameLimit)
	loop.SetKeySource(s.remote, s.HandleKeys)
	loop.OnStateChange(func(state LoopState) {
		switch state {
		case Priming:
			s.publishState(events.SessionPriming, nil)
		case Streaming:
			s.publishState(events.SessionStreaming, nil)
			s.notifier.Ready()
			stats.Start(ctx)
			s.notifier.StartWatchdog(ctx, func() uint64 {
				return metrics.GetCaptureStats().FramesRendered
			})
		}
	})

	err = loop.Run()
	s.logger.Info("Capture loop finished", "frames", loop.Frames())
	return err
}

// setup opens the devices, negotiates the format, maps the pool, queues it
// and starts streaming. Partial progress is recorded on s for teardown.
func (s *Session) setup() (v4l2.Format, error) {
	dev, err := s.opener.OpenCapture(s.cfg.DevicePath)
	if err != nil {
		return v4l2.Format{}, newError(KindSetup, "open "+s.cfg.DevicePath, err)
	}
	s.dev = dev

	if s.cfg.SubdevicePath != "" {
		sub, err := s.opener.OpenControl(s.cfg.SubdevicePath)
		if err != nil {
			return v4l2.Format{}, newError(KindSetup, "open "+s.cfg.SubdevicePath, err)
		}
		s.sub = sub
		s.controller = control.NewController(sub, s.eventBus)
	}
	s.renderer.SetKeyHandler(s.HandleKeys)

	want := v4l2.Format{
		Width:       uint32(s.cfg.Width),
		Height:      uint32(s.cfg.Height),
		PixelFormat: v4l2.PixFmtNV12M,
		Field:       v4l2.FieldAny,
		NumPlanes:   nv12Planes,
	}
	got, err := dev.SetFormat(want)
	if err != nil {
		return v4l2.Format{}, newError(KindSetup, "set format", err)
	}
	if got.PixelFormat != v4l2.PixFmtNV12M || got.NumPlanes != nv12Planes {
		return v4l2.Format{}, newError(KindSetup, "set format",
			fmt.Errorf("driver chose %s with %d planes", v4l2.FormatFourCC(got.PixelFormat), got.NumPlanes))
	}
	if got.Width != want.Width || got.Height != want.Height {
		s.logger.Warn("Driver adjusted resolution",
			"requested", fmt.Sprintf("%dx%d", want.Width, want.Height),
			"actual", fmt.Sprintf("%dx%d", got.Width, got.Height))
	}

	s.pool = NewPool(dev, got.NumPlanes)
	granted, err := s.pool.AllocateAndMap(s.cfg.BufferCount, s.cfg.ExportDMA)
	if err != nil {
		return v4l2.Format{}, err
	}
	metrics.SetBuffers(s.cfg.BufferCount, granted)
	s.eventBus.Publish(events.BufferPoolEvent{
		Action:    "allocated",
		Requested: s.cfg.BufferCount,
		Granted:   granted,
		Planes:    got.NumPlanes,
		DMAExport: s.cfg.ExportDMA,
		Timestamp: events.Now(),
	})

	if err := s.pool.EnqueueAll(); err != nil {
		return v4l2.Format{}, err
	}
	if err := dev.StreamOn(); err != nil {
		return v4l2.Format{}, newError(KindSetup, "stream on", err)
	}
	s.streaming = true

	s.logger.Info("Streaming started",
		"format", v4l2.FormatFourCC(got.PixelFormat),
		"width", got.Width,
		"height", got.Height,
		"pool", s.pool)
	return got, nil
}

// teardown stops streaming, releases the pool and closes the devices. Each
// step runs once even if teardown is called again.
func (s *Session) teardown() error {
	var errs []error

	if s.streaming {
		s.notifier.Stopping()
		if err := s.dev.StreamOff(); err != nil {
			errs = append(errs, fmt.Errorf("stream off: %w", err))
		}
		s.streaming = false
	}
	if s.pool != nil {
		if err := s.pool.ReleaseAll(); err != nil {
			errs = append(errs, err)
		}
		s.eventBus.Publish(events.BufferPoolEvent{
			Action:    "released",
			Requested: s.pool.Requested(),
			Granted:   s.pool.Count(),
			Planes:    s.pool.Planes(),
			DMAExport: s.cfg.ExportDMA,
			Timestamp: events.Now(),
		})
		s.pool = nil
	}
	if s.dev != nil {
		if err := s.dev.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.cfg.DevicePath, err))
		}
		s.dev = nil
	}
	if s.sub != nil {
		s.controller = nil
		if err := s.sub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.cfg.SubdevicePath, err))
		}
		s.sub = nil
	}
	return errors.Join(errs...)
}

// HandleKeys applies control keys to the sensor. It runs on the goroutine
// that called Run, where the renderer delivers keys; other goroutines use
// PushKeys. Outside a run the keys are ignored.
func (s *Session) HandleKeys(keys string) {
	if s.controller == nil {
		s.logger.Debug("Ignoring keys, no control device", "keys", keys)
		return
	}
	s.controller.HandleKeys(keys, s.keyHelp)
}

// PushKeys queues keys from any goroutine. The loop applies them between
// frames, so the subdevice is only touched by the goroutine that owns it.
// QuitKey stops the session. It reports false when the queue is full.
func (s *Session) PushKeys(keys string) bool {
	if !s.remote.Push(keys) {
		s.logger.Warn("Dropping keys, queue full", "keys", keys)
		return false
	}
	return true
}

// watchSignals turns SIGINT and SIGTERM into a stop request.
func (s *Session) watchSignals() func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigs:
			s.logger.Info("Received signal, stopping", "signal", sig.String())
			s.stop.Request()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func (s *Session) watchRemoval(ctx context.Context) {
	err := s.removal(ctx, s.cfg.DevicePath, func(ev hotplug.Event) {
		s.logger.Warn("Capture device removed", "device", s.cfg.DevicePath, "devpath", ev.DevPath)
		s.eventBus.Publish(events.DeviceRemovedEvent{
			DevicePath: s.cfg.DevicePath,
			DevPath:    ev.DevPath,
			Timestamp:  events.Now(),
		})
		s.stop.Request()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("Device removal watch unavailable", "error", err)
	}
}

func (s *Session) publishState(state string, err error) {
	metrics.SetSessionState(state)
	ev := events.SessionStateChangedEvent{
		SessionID:  s.id,
		DevicePath: s.cfg.DevicePath,
		State:      state,
		Timestamp:  events.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.eventBus.Publish(ev)
}

func (s *Session) logSetupError(err error) {
	attrs := []any{"error", err}
	var ce *Error
	if errors.As(err, &ce) {
		metrics.RecordError(ce.Kind.String())
		attrs = append(attrs, "kind", ce.Kind.String())
	}
	if errno, ok := Errno(err); ok {
		attrs = append(attrs, "errno", int(errno))
	}
	s.logger.Error("Capture setup failed", attrs...)
}

// statusRelay forwards events and mirrors frame statistics into the
// systemd status line.
type statusRelay struct {
	next     EventPublisher
	notifier Notifier
}

func (r statusRelay) Publish(ev events.Event) {
	if fs, ok := ev.(events.FrameStatsEvent); ok {
		r.notifier.Status("Streaming %.1f fps, %d frames", fs.FPS, fs.Frames)
	}
	r.next.Publish(ev)
}
