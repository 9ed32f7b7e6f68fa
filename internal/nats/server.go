package nats

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// DefaultClientURL is where the embedded server listens by default.
const DefaultClientURL = "nats://" + DefaultListen

// DefaultListen is the embedded server's default address. Loopback keeps the
// sensor controls off the network unless the operator opts in.
const DefaultListen = "127.0.0.1:4222"

const (
	embeddedUser = "glcapture"
	readyTimeout = 5 * time.Second
	maxPayload   = 64 * 1024
)

// ServerOptions configures the embedded broker.
type ServerOptions struct {
	Listen string // host:port, DefaultListen when empty
	Logger *slog.Logger
}

// Server is an embedded broker for boards without one. Clients connect
// without credentials and may only use the glcapture subject tree.
type Server struct {
	ns     *server.Server
	listen string
	logger *slog.Logger
}

// NewServer creates a stopped broker.
func NewServer(opts ServerOptions) *Server {
	if opts.Listen == "" {
		opts.Listen = DefaultListen
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		listen: opts.Listen,
		logger: logger.With("component", "nats-server"),
	}
}

// subjectPermissions confines clients to session telemetry and key commands.
// Reply inboxes stay open for request/reply tooling such as the nats CLI.
func subjectPermissions() *server.Permissions {
	tree := SubjectsRoot + ".>"
	return &server.Permissions{
		Publish:   &server.SubjectPermission{Allow: []string{tree}},
		Subscribe: &server.SubjectPermission{Allow: []string{tree, "_INBOX.>"}},
	}
}

func (s *Server) options() (*server.Options, error) {
	host, portStr, err := net.SplitHostPort(s.listen)
	if err != nil {
		return nil, fmt.Errorf("NATS listen address %q: %w", s.listen, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("NATS listen port %q: %w", portStr, err)
	}

	return &server.Options{
		Host:       host,
		Port:       port,
		ServerName: embeddedUser,
		NoLog:      true,
		NoSigs:     true, // main owns SIGINT and SIGTERM
		MaxPayload: maxPayload,
		Users: []*server.User{{
			Username:    embeddedUser,
			Permissions: subjectPermissions(),
		}},
		NoAuthUser: embeddedUser,
	}, nil
}

// Start runs the broker and waits until it accepts connections.
func (s *Server) Start() error {
	opts, err := s.options()
	if err != nil {
		return err
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("create NATS server: %w", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return fmt.Errorf("NATS server not ready within %s on %s", readyTimeout, s.listen)
	}
	s.ns = ns
	s.logger.Info("NATS server started", "url", s.ClientURL(), "subjects", SubjectsRoot+".>")
	return nil
}

// Stop shuts the broker down and waits for it. It is a no-op when stopped.
func (s *Server) Stop() {
	if s.ns == nil {
		return
	}
	s.logger.Info("Stopping NATS server", "clients", s.ns.NumClients())
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
	s.ns = nil
}

// ClientURL returns the URL session clients connect to.
func (s *Server) ClientURL() string {
	if s.ns != nil {
		return s.ns.ClientURL()
	}
	return "nats://" + s.listen
}

// IsRunning reports whether the broker accepts connections.
func (s *Server) IsRunning() bool {
	return s.ns != nil && s.ns.Running()
}
