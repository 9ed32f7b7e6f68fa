// Package nats publishes capture session activity over NATS and accepts
// remote key commands, so a headless board can be watched and steered from
// another host.
//
// # Components
//
//   - Server: optional embedded NATS server (--nats-embed), limited to glcapture.>
//   - SessionClient: publishes session messages, receives key commands
//   - Relay: forwards event bus events to a SessionClient
//   - KeyPublisher: sends key commands (glcapture keys)
//
// # Subject Hierarchy
//
//	glcapture.sessions.{session_id}.state      # starting, priming, streaming, stopped, failed
//	glcapture.sessions.{session_id}.stats      # frames, fps, driver sequence
//	glcapture.sessions.{session_id}.controls   # focus and test pattern changes
//	glcapture.control.{session_id}.keys        # key commands (h, a, f, p, t, l, q)
//
// Messaging is fire-and-forget core NATS. Clients degrade to offline mode
// when the server is unreachable.
//
// Watch a board:
//
//	nats sub "glcapture.sessions.>" -s nats://board:4222
//
// Trigger a one-shot focus:
//
//	nats pub "glcapture.control.<session_id>.keys" '{"keys":"f"}' -s nats://board:4222
package nats
