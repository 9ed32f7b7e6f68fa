//go:build linux

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/glcapture/cmd"
	"github.com/smazurov/glcapture/internal/capture"
	"github.com/smazurov/glcapture/internal/config"
	"github.com/smazurov/glcapture/internal/events"
	"github.com/smazurov/glcapture/internal/led"
	"github.com/smazurov/glcapture/internal/logging"
	"github.com/smazurov/glcapture/internal/metrics/exporters"
	"github.com/smazurov/glcapture/internal/nats"
	"github.com/smazurov/glcapture/internal/render"
	"github.com/smazurov/glcapture/internal/render/display"
	"github.com/smazurov/glcapture/internal/render/headless"
	"github.com/smazurov/glcapture/internal/render/web"
	"github.com/smazurov/glcapture/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"glcapture.toml"`

	// Capture settings
	Device      string `help:"V4L2 capture device" short:"d" default:"/dev/video3" toml:"capture.device" env:"CAPTURE_DEVICE"`
	Subdevice   string `help:"V4L2 sensor subdevice for focus and test pattern, empty to disable" short:"s" default:"/dev/v4l-subdev10" toml:"capture.subdevice" env:"CAPTURE_SUBDEVICE"`
	BufferCount int    `help:"Buffers to request from the driver" short:"n" default:"4" toml:"capture.buffer_count" env:"CAPTURE_BUFFER_COUNT"`
	ExportDMA   bool   `help:"Export every plane as a DMA-BUF" flag:"dma-export" toml:"capture.dma_export" env:"CAPTURE_DMA_EXPORT"`
	Count       int    `help:"Stop after this many frames, 0 runs until interrupted" default:"0" toml:"capture.count" env:"CAPTURE_COUNT"`
	Width       int    `help:"Capture width" default:"1920" toml:"capture.width" env:"CAPTURE_WIDTH"`
	Height      int    `help:"Capture height" default:"1080" toml:"capture.height" env:"CAPTURE_HEIGHT"`

	// Mode settings
	Usage  string `help:"Program mode, see the modes command" short:"u" default:"CAPTURE_DISPLAY" toml:"mode.usage" env:"USAGE"`
	Listen string `help:"HTTP listen address for CAPTURE_WEB" default:":8090" toml:"web.listen" env:"WEB_LISTEN"`
	Scale  int    `help:"Integer downscale for preview conversion, 0 picks the mode default" default:"0" toml:"render.scale" env:"RENDER_SCALE"`

	// Service settings
	MetricsAddr string `help:"Serve Prometheus metrics on this address, empty to disable" toml:"metrics.addr" env:"METRICS_ADDR"`
	LED         string `help:"Status LED: auto, none or a sysfs LED name" flag:"led" default:"auto" toml:"features.led" env:"FEATURES_LED"`
	WatchConfig bool   `help:"Apply logging level changes from the config file at runtime" default:"true" toml:"config.watch" env:"CONFIG_WATCH"`
	NATSURL     string `help:"Publish session events to this NATS server and accept key commands, empty to disable" flag:"nats-url" toml:"nats.url" env:"NATS_URL"`
	NATSEmbed   bool   `help:"Run an embedded NATS server on 127.0.0.1:4222" flag:"nats-embed" toml:"nats.embed" env:"NATS_EMBED"`

	// Logging settings
	Verbose        bool   `help:"Debug logging for every module" short:"v"`
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCapture string `help:"Capture logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingControl string `help:"Sensor control logging level" default:"info" toml:"logging.control" env:"LOGGING_CONTROL"`
	LoggingRender  string `help:"Renderer logging level" default:"info" toml:"logging.render" env:"LOGGING_RENDER"`
	LoggingWeb     string `help:"Web API logging level" default:"info" toml:"logging.web" env:"LOGGING_WEB"`
	LoggingLED     string `help:"Status LED logging level" flag:"logging-led" default:"info" toml:"logging.led" env:"LOGGING_LED"`
	LoggingNATS    string `help:"NATS logging level" flag:"logging-nats" default:"info" toml:"logging.nats" env:"LOGGING_NATS"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRegistry() *render.Registry {
	registry := render.NewRegistry()
	for _, mode := range []render.Mode{display.Mode(), web.Mode(), headless.Mode()} {
		if err := registry.Register(mode); err != nil {
			slog.Error("Failed to register program mode", "mode", mode.Name, "error", err)
			os.Exit(1)
		}
	}
	return registry
}

func newRootCmd() *cobra.Command {
	opts := &Options{}
	registry := newRegistry()

	root := &cobra.Command{
		Use:   "glcapture",
		Short: "V4L2 multi-planar capture with live rendering",
		Long: `Captures NV12M frames from a V4L2 multi-planar device into a ring of ` +
			`memory-mapped buffers and hands each frame to the selected program mode. ` +
			`Focus and test pattern keys are forwarded to the sensor subdevice.`,
		Version:       version.String(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, _ []string) error {
			return run(c, opts, registry)
		},
	}

	if err := config.BindFlags(root.Flags(), opts); err != nil {
		slog.Error("Failed to bind flags", "error", err)
		os.Exit(1)
	}

	root.AddCommand(cmd.CreateDevicesCmd())
	root.AddCommand(cmd.CreateModesCmd(registry))
	root.AddCommand(cmd.CreateVersionCmd())
	root.AddCommand(cmd.CreateKeysCmd())
	root.AddCommand(cmd.CreateUpdateCmd())
	return root
}

func loggingConfig(opts *Options) logging.Config {
	level := opts.LoggingLevel
	if opts.Verbose {
		level = "debug"
	}
	return logging.Config{
		Level:  level,
		Format: opts.LoggingFormat,
		Modules: map[string]string{
			"capture": opts.LoggingCapture,
			"control": opts.LoggingControl,
			"render":  opts.LoggingRender,
			"display": opts.LoggingRender,
			"web":     opts.LoggingWeb,
			"http":    opts.LoggingWeb,
			"led":     opts.LoggingLED,
			"nats":    opts.LoggingNATS,
		},
	}
}

func run(c *cobra.Command, opts *Options, registry *render.Registry) error {
	// Load configuration automatically
	if loadErr := config.LoadConfig(opts, c); loadErr != nil {
		slog.Warn("Failed to load config", "error", loadErr)
	}

	logging.Initialize(loggingConfig(opts))
	logger := logging.GetLogger("main")

	mode, err := registry.Lookup(opts.Usage)
	if err != nil {
		logger.Error("Invalid program mode", "error", err)
		return err
	}

	// Create event bus for in-process event handling
	eventBus := events.New()
	logging.SetLogCallback(func(entry logging.LogEntry) {
		eventBus.Publish(events.LogEntryEvent{
			Seq:        entry.Seq,
			Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
			Level:      entry.Level,
			Module:     entry.Module,
			Message:    entry.Message,
			Attributes: entry.Attributes,
		})
	})
	defer logging.SetLogCallback(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if watcher := startConfigWatcher(opts, logger); watcher != nil {
		defer watcher.Stop()
	}

	ledManager := led.NewManager(led.New(logger, opts.LED), eventBus, logging.GetLogger("led"))
	ledManager.Start()
	defer ledManager.Stop()

	if opts.MetricsAddr != "" {
		go func() {
			logger.Info("Serving metrics", "addr", opts.MetricsAddr)
			if serveErr := exporters.Serve(ctx, opts.MetricsAddr); serveErr != nil {
				logger.Warn("Metrics server stopped", "error", serveErr)
			}
		}()
	}

	renderer, err := mode.New(render.Options{
		Width:    opts.Width,
		Height:   opts.Height,
		Scale:    opts.Scale,
		Listen:   opts.Listen,
		Input:    os.Stdin,
		Output:   os.Stdout,
		EventBus: eventBus,
	})
	if err != nil {
		logger.Error("Failed to create renderer", "mode", mode.Name, "error", err)
		return err
	}
	if closer, ok := renderer.(io.Closer); ok {
		defer closer.Close()
	}

	session := capture.NewSession(capture.Config{
		DevicePath:    opts.Device,
		SubdevicePath: opts.Subdevice,
		BufferCount:   opts.BufferCount,
		ExportDMA:     opts.ExportDMA,
		Width:         opts.Width,
		Height:        opts.Height,
		FrameLimit:    opts.Count,
	}, renderer, capture.WithEventBus(eventBus))

	stopNATS := startNATS(opts, eventBus, session)
	defer stopNATS()

	logger.Info("Starting glcapture",
		"version", version.String(),
		"mode", mode.Name,
		"session_id", session.ID())

	runSession := func() error { return session.Run(ctx) }
	if host, ok := renderer.(render.Hoster); ok {
		err = host.Host(runSession)
	} else {
		err = runSession()
	}

	if err != nil {
		ledManager.Apply(events.SessionFailed)
		logger.Error("Capture session failed", "error", err)
		return fmt.Errorf("capture session: %w", err)
	}
	ledManager.Apply(events.SessionStopped)
	logger.Info("Capture session finished")
	return nil
}

// startNATS relays session events to NATS and routes remote keys to the
// session. The returned function stops everything it started.
func startNATS(opts *Options, bus *events.Bus, session *capture.Session) func() {
	if opts.NATSURL == "" && !opts.NATSEmbed {
		return func() {}
	}
	logger := logging.GetLogger("nats")

	url := opts.NATSURL
	var embedded *nats.Server
	if opts.NATSEmbed {
		embedded = nats.NewServer(nats.ServerOptions{Logger: logger})
		if err := embedded.Start(); err != nil {
			logger.Warn("Embedded NATS server unavailable", "error", err)
			embedded = nil
		} else if url == "" {
			url = embedded.ClientURL()
		}
	}
	if url == "" {
		return func() {}
	}

	client := nats.NewSessionClient(url, session.ID(), logger)
	client.OnKeys(func(keys string) { session.PushKeys(keys) })
	// A failed connect leaves the client in offline mode.
	_ = client.Connect()

	relay := nats.NewRelay(bus, client, session.ID(), logger)
	relay.Start()

	return func() {
		relay.Stop()
		client.Close()
		if embedded != nil {
			embedded.Stop()
		}
	}
}

// startConfigWatcher hot-applies logging levels from the config file.
func startConfigWatcher(opts *Options, logger *slog.Logger) *config.Watcher[logging.Config] {
	if !opts.WatchConfig || opts.Config == "" {
		return nil
	}
	if _, statErr := os.Stat(opts.Config); statErr != nil {
		return nil
	}

	configLogger := logging.GetLogger("config")
	watcher := config.NewConfigWatcher(opts.Config, config.ReadLoggingConfig, configLogger,
		config.WithErrorHandler[logging.Config](func(err error) {
			configLogger.Warn("Ignoring invalid logging config", "error", err)
		}))
	watcher.OnReload(func(cfg logging.Config) {
		logging.UpdateLevels(cfg)
		configLogger.Info("Logging levels reloaded", "level", cfg.Level)
	})
	if startErr := watcher.Start(); startErr != nil {
		logger.Warn("Config watcher unavailable", "error", startErr)
		return nil
	}
	return watcher
}
