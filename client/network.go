package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"sync/atomic"
)

// InboundFrame is one (message-id, server-message) pair handed to the UI
// subscription (spec §4.10).
type InboundFrame struct {
	MessageID uint32
	Message   ServerMessage
}

// outboundCmd is one (message-id, client-message) pair the writer task
// drains off the outbound channel.
type outboundCmd struct {
	messageID uint32
	message   ClientMessage
}

// ConnectionHandle is the UI's sender side of a connection's outbound
// channel. Dropping it (closing the connection via Close) asks the writer
// task to shut down; the reader task stops independently on EOF.
type ConnectionHandle struct {
	cmds   chan outboundCmd
	cancel context.CancelFunc
	done   <-chan struct{}
}

// ShutdownHandle lets the UI request a connection teardown without racing
// the outbound channel itself.
type ShutdownHandle struct {
	cancel context.CancelFunc
}

// Send enqueues a request frame. Returns false if the connection has
// already been asked to shut down.
func (h *ConnectionHandle) Send(messageID uint32, msg ClientMessage) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	// A full channel means the peer is badly backed up. Block rather than
	// drop a client-issued command, since unlike inbound frames these are
	// user actions, not a firehose; give up only once shutdown is asked.
	select {
	case h.cmds <- outboundCmd{messageID: messageID, message: msg}:
		return true
	case <-h.done:
		return false
	}
}

// Close requests the connection shut down (spec §4.10: "Dropping either
// [handle] triggers the other side to terminate").
func (h *ConnectionHandle) Close() { h.cancel() }

// Close requests the connection shut down.
func (h *ShutdownHandle) Close() { h.cancel() }

// Connection is one live TLS connection to a Nexus server: a reader task
// forwarding frames to Inbound, and a writer task draining outbound
// commands, run as described in spec §4.10.
type Connection struct {
	Addr    string
	Inbound chan InboundFrame

	conn    *tls.Conn
	stopped atomic.Bool
}

// inboundBufferSize approximates the spec's "unbounded channel" for
// network→UI delivery: a generously large buffered channel, so the reader
// can outrun the UI only by this buffer plus the runtime's own queue
// (spec §5, Client concurrency model), never by an actually unbounded
// amount.
const inboundBufferSize = 4096

// Dial opens a TLS connection to addr and starts the reader/writer tasks.
// It returns once the TCP+TLS handshake completes; the Nexus handshake/
// login exchange is driven by the caller over the returned handles.
func Dial(ctx context.Context, addr string, tlsConfig *tls.Config) (*Connection, *ConnectionHandle, *ShutdownHandle, error) {
	dialer := &tls.Dialer{Config: tlsConfig}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	conn := rawConn.(*tls.Conn)

	connCtx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		Addr:    addr,
		Inbound: make(chan InboundFrame, inboundBufferSize),
		conn:    conn,
	}
	handle := &ConnectionHandle{cmds: make(chan outboundCmd, 256), cancel: cancel, done: connCtx.Done()}
	shutdown := &ShutdownHandle{cancel: cancel}

	go c.readerLoop()
	go c.writerLoop(connCtx, handle.cmds)

	return c, handle, shutdown, nil
}

// readerLoop never runs inside a select so a frame read is never
// interrupted mid-read (spec §4.10). On EOF or a protocol error it marks
// the connection stopped, emits a single synthetic network_error frame,
// and closes Inbound so the UI subscription ends naturally.
func (c *Connection) readerLoop() {
	defer close(c.Inbound)
	for {
		frame, err := readWireFrame(c.conn)
		if err != nil {
			c.stopped.Store(true)
			c.Inbound <- InboundFrame{Message: ServerMessage{Type: msgNetworkError, Error: err.Error()}}
			return
		}
		msg, err := decodeServerMessage(frame.payload)
		if err != nil {
			c.stopped.Store(true)
			c.Inbound <- InboundFrame{Message: ServerMessage{Type: msgNetworkError, Error: err.Error()}}
			return
		}
		c.Inbound <- InboundFrame{MessageID: frame.messageID, Message: msg}
	}
}

// writerLoop selects over the outbound command channel and the shutdown
// context, which is safe because channel receive is cancel-safe (spec
// §4.10). On exit it shuts down the TLS connection so the peer observes a
// close-notify rather than a bare EOF.
func (c *Connection) writerLoop(ctx context.Context, cmds chan outboundCmd) {
	defer func() {
		c.conn.CloseWrite()
		c.conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-cmds:
			payload, err := encodeClientMessage(cmd.message)
			if err != nil {
				log.Printf("[network] encode %s: %v", cmd.message.Type, err)
				continue
			}
			if err := writeWireFrame(c.conn, cmd.messageID, payload); err != nil {
				log.Printf("[network] write: %v", err)
				return
			}
			if c.stopped.Load() {
				return
			}
		}
	}
}
