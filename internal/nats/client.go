package nats

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

type marshaler interface {
	Marshal() ([]byte, error)
}

// SessionClient is a NATS client for one capture session.
// It publishes state, statistics and control changes, and receives key commands.
// Gracefully degrades when NATS is unavailable.
type SessionClient struct {
	url       string
	sessionID string
	conn      *nats.Conn
	sub       *nats.Subscription
	logger    *slog.Logger
	mu        sync.RWMutex
	onKeys    func(keys string)
	connected bool
}

// NewSessionClient creates a new NATS client for a capture session.
func NewSessionClient(url, sessionID string, logger *slog.Logger) *SessionClient {
	if logger == nil {
		logger = slog.Default()
	}

	return &SessionClient{
		url:       url,
		sessionID: sessionID,
		logger:    logger.With("component", "nats-client", "session_id", sessionID),
	}
}

// Connect establishes a connection to the NATS server.
// The client stays usable in offline mode when this fails.
func (c *SessionClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	opts := []nats.Option{
		nats.Name("glcapture-" + c.sessionID),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
			if err != nil {
				c.logger.Warn("NATS disconnected", "error", err)
			} else {
				c.logger.Debug("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.mu.Lock()
			c.connected = true
			c.mu.Unlock()
			c.logger.Info("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(c.url, opts...)
	if err != nil {
		c.logger.Warn("Failed to connect to NATS, running in offline mode", "error", err)
		return err
	}

	c.conn = conn
	c.connected = true
	c.logger.Info("Connected to NATS", "url", c.url)

	c.subscribeKeysLocked()
	return nil
}

// subscribeKeysLocked subscribes to key commands (must hold lock).
// Subscriptions survive reconnects inside nats.go.
func (c *SessionClient) subscribeKeysLocked() {
	if c.conn == nil || c.onKeys == nil || c.sub != nil {
		return
	}

	handler := c.onKeys
	sub, err := c.conn.Subscribe(SubjectControlKeys(c.sessionID), func(msg *nats.Msg) {
		m, err := UnmarshalKeys(msg.Data)
		if err != nil {
			c.logger.Warn("Failed to unmarshal key command", "error", err)
			return
		}
		if m.Keys == "" {
			return
		}
		c.logger.Info("Received key command", "keys", m.Keys, "source", m.Source)
		handler(m.Keys)
	})
	if err != nil {
		c.logger.Warn("Failed to subscribe to key commands", "error", err)
		return
	}
	c.sub = sub
}

// OnKeys sets the handler for remote key commands. Call it before Connect
// or at most once afterwards.
func (c *SessionClient) OnKeys(fn func(keys string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onKeys = fn
	c.subscribeKeysLocked()
}

// PublishState publishes a session state change.
func (c *SessionClient) PublishState(m StateMessage) {
	c.publish(SubjectSessionState(c.sessionID), m)
}

// PublishStats publishes frame statistics.
func (c *SessionClient) PublishStats(m StatsMessage) {
	c.publish(SubjectSessionStats(c.sessionID), m)
}

// PublishControls publishes an applied control change.
func (c *SessionClient) PublishControls(m ControlsMessage) {
	c.publish(SubjectSessionControls(c.sessionID), m)
}

// publish is a no-op when not connected.
func (c *SessionClient) publish(subject string, m marshaler) {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if conn == nil || !connected {
		return
	}

	data, err := m.Marshal()
	if err != nil {
		c.logger.Warn("Failed to marshal message", "subject", subject, "error", err)
		return
	}
	if err := conn.Publish(subject, data); err != nil {
		c.logger.Warn("Failed to publish", "subject", subject, "error", err)
	}
}

// IsConnected returns true if connected to NATS.
func (c *SessionClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.conn != nil
}

// Close flushes pending messages and closes the NATS connection.
func (c *SessionClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		_ = c.sub.Unsubscribe()
		c.sub = nil
	}

	if c.conn != nil {
		_ = c.conn.FlushTimeout(time.Second)
		c.conn.Close()
		c.conn = nil
	}

	c.connected = false
	c.logger.Debug("NATS client closed")
}

// KeyPublisher sends key commands to a running session.
type KeyPublisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewKeyPublisher connects a publisher for key commands.
func NewKeyPublisher(url string, logger *slog.Logger) (*KeyPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.Name("glcapture-keys"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, err
	}

	return &KeyPublisher{
		conn:   conn,
		logger: logger.With("component", "nats-keys"),
	}, nil
}

// Send publishes keys to the session and flushes the connection.
func (p *KeyPublisher) Send(sessionID, keys, source string) error {
	msg := KeysMessage{
		Keys:      keys,
		Timestamp: time.Now().Format(time.RFC3339),
		Source:    source,
	}

	data, err := msg.Marshal()
	if err != nil {
		return err
	}

	if err := p.conn.Publish(SubjectControlKeys(sessionID), data); err != nil {
		return err
	}
	if err := p.conn.Flush(); err != nil {
		return err
	}

	p.logger.Debug("Sent key command", "session_id", sessionID, "keys", keys)
	return nil
}

// Close closes the publisher connection.
func (p *KeyPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
