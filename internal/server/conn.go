package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/litchat/relay/internal/protocol"
	"go.uber.org/zap"
)

const (
	sendBufferSize  = 32
	frameBufferSize = 64
	readChunkSize   = 4096
)

var errSendBackpressure = errors.New("connection send buffer full")

// connState is the connection lifecycle. A connection authenticates exactly
// once; the single state check here replaces a mutable pipeline of handlers.
type connState int

const (
	stateConnected connState = iota
	stateAuthenticated
	stateClosed
)

// connection is one client TCP connection. The read loop owns the socket and
// the decoder; the dispatch loop owns the state machine and all blocking
// collaborator calls; the write loop owns outbound encoding. Frames from a
// single connection are therefore always processed sequentially.
type connection struct {
	id     string
	raw    net.Conn
	log    *zap.Logger
	server *Server

	ctx    context.Context
	cancel context.CancelFunc

	sendCh  chan protocol.Frame
	frameCh chan protocol.Frame

	// state and userID are touched only on the dispatch goroutine.
	state  connState
	userID int64

	idleTimeout time.Duration
}

func newConnection(parent context.Context, raw net.Conn, s *Server) *connection {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.NewString()
	return &connection{
		id:          id,
		raw:         raw,
		log:         s.log.With(zap.String("conn_id", id), zap.String("remote", raw.RemoteAddr().String())),
		server:      s,
		ctx:         ctx,
		cancel:      cancel,
		sendCh:      make(chan protocol.Frame, sendBufferSize),
		frameCh:     make(chan protocol.Frame, frameBufferSize),
		idleTimeout: s.idleTimeout,
	}
}

// ID implements session.Conn.
func (c *connection) ID() string {
	return c.id
}

// Send implements session.Conn: it enqueues a frame for the write loop
// without blocking. A full buffer tears the connection down rather than
// stalling the caller.
func (c *connection) Send(f protocol.Frame) error {
	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	case c.sendCh <- f:
		return nil
	default:
		c.cancel()
		return errSendBackpressure
	}
}

// run drives the connection until it closes, then cleans up registry and
// route state bound to it.
func (c *connection) run() {
	c.server.metrics.connOpened()

	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		c.writeLoop()
	}()
	go func() {
		defer loops.Done()
		c.dispatchLoop()
	}()
	go func() {
		// Unblock the read loop when anything cancels the connection.
		<-c.ctx.Done()
		_ = c.raw.Close()
	}()

	c.readLoop()
	c.cancel()
	// The dispatch goroutine may still be mid-auth; cleanup must not touch
	// the registry or route table until it has exited.
	loops.Wait()
	c.cleanup()
}

// readLoop pulls bytes off the socket, reassembles frames, and hands them to
// the dispatch loop. Any decode error is fatal for the connection.
func (c *connection) readLoop() {
	defer c.cancel()

	dec := protocol.NewDecoder()
	buf := make([]byte, readChunkSize)
	for {
		if err := c.raw.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
			return
		}
		n, err := c.raw.Read(buf)
		if n > 0 {
			frames, decErr := dec.Push(buf[:n])
			for _, f := range frames {
				select {
				case <-c.ctx.Done():
					return
				case c.frameCh <- f:
				}
			}
			if decErr != nil {
				c.server.metrics.recordError("protocol_violation")
				c.log.Warn("protocol violation, closing connection", zap.Error(decErr))
				return
			}
		}
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				c.log.Info("closing idle connection",
					zap.Duration("idle_timeout", c.idleTimeout))
			case errors.Is(err, io.EOF):
				c.log.Debug("peer closed connection")
			case c.ctx.Err() == nil:
				c.log.Debug("read failed", zap.Error(err))
			}
			return
		}
	}
}

// dispatchLoop applies the state machine to each inbound frame in order.
func (c *connection) dispatchLoop() {
	defer c.cancel()

	for {
		select {
		case <-c.ctx.Done():
			return
		case f := <-c.frameCh:
			start := time.Now()
			cmd := f.Header.Cmd
			c.server.metrics.recordFrame(cmd.String())
			ok := c.dispatch(f)
			c.server.metrics.observeHandle(cmd.String(), time.Since(start))
			if !ok {
				return
			}
		}
	}
}

// dispatch returns false when the connection must close.
func (c *connection) dispatch(f protocol.Frame) bool {
	switch c.state {
	case stateConnected:
		return c.handleAuth(f)
	case stateAuthenticated:
		c.handleFrame(f)
		return true
	default:
		return false
	}
}

// handleAuth validates the first frame. Anything but an accepted AUTH
// credential closes the connection with no retry.
func (c *connection) handleAuth(f protocol.Frame) bool {
	if f.Header.Cmd != protocol.CmdAuth {
		c.server.metrics.recordError("auth_rejected")
		c.log.Warn("first frame was not auth, closing connection",
			zap.String("cmd", f.Header.Cmd.String()))
		return false
	}
	payload, err := protocol.ParseAuth(f)
	if err != nil {
		c.server.metrics.recordError("auth_rejected")
		c.log.Warn("unparseable auth frame", zap.Error(err))
		return false
	}
	userID, err := c.server.validator.Validate(c.ctx, payload.Token)
	if err != nil {
		c.server.metrics.recordError("auth_rejected")
		c.log.Warn("credential rejected", zap.Error(err))
		return false
	}
	if c.ctx.Err() != nil {
		// The peer disconnected while the credential was being checked;
		// registering now would outlive the connection.
		return false
	}

	c.userID = userID
	c.state = stateAuthenticated

	c.server.registry.Add(userID, c)
	if err := c.server.routes.Register(c.ctx, userID, c.server.advertiseAddr); err != nil {
		// Presence degrades to local-only until the next successful auth.
		c.log.Warn("route registration failed", zap.Int64("user_id", userID), zap.Error(err))
		c.server.metrics.recordError("route_register")
	}
	go c.server.router.ReplayOffline(c.ctx, userID)

	c.log.Info("user authenticated", zap.Int64("user_id", userID))
	return true
}

func (c *connection) handleFrame(f protocol.Frame) {
	switch f.Header.Cmd {
	case protocol.CmdHeartbeat:
		// The read deadline was already pushed by the bytes arriving.
	case protocol.CmdSingleChat, protocol.CmdGroupChat:
		p, err := protocol.ParseChat(f)
		if err != nil {
			c.log.Warn("dropping malformed chat frame", zap.Error(err))
			c.server.metrics.recordError("bad_payload")
			return
		}
		if p.Encrypted && c.server.cipher == nil {
			// Routing it would strip the ciphertext and deliver nothing.
			c.log.Warn("dropping encrypted chat frame, payload encryption disabled")
			c.server.metrics.recordError("decrypt")
			return
		}
		if err := c.server.cipher.DecryptPayload(&p); err != nil {
			c.log.Warn("dropping undecryptable chat frame", zap.Error(err))
			c.server.metrics.recordError("decrypt")
			return
		}
		p.SenderID = c.userID
		if f.Header.Cmd == protocol.CmdSingleChat {
			c.server.router.HandleSingleChat(c.ctx, p)
		} else {
			c.server.router.HandleGroupChat(c.ctx, p)
		}
	case protocol.CmdAck, protocol.CmdError:
		c.log.Debug("ignoring frame", zap.String("cmd", f.Header.Cmd.String()))
	case protocol.CmdAuth:
		c.log.Debug("ignoring repeated auth frame")
	default:
		c.log.Debug("ignoring unknown command", zap.String("cmd", f.Header.Cmd.String()))
	}
}

func (c *connection) writeLoop() {
	defer c.cancel()

	for {
		select {
		case <-c.ctx.Done():
			return
		case f := <-c.sendCh:
			if _, err := c.raw.Write(protocol.Encode(f)); err != nil {
				if c.ctx.Err() == nil {
					c.log.Warn("write failed", zap.Error(err))
				}
				return
			}
		}
	}
}

// cleanup tears down every trace of the connection, keyed by the user it was
// bound to. Registry removal reports whether this connection still owned the
// mapping; a connection displaced by a newer login must not remove the new
// connection's route.
func (c *connection) cleanup() {
	c.cancel()
	_ = c.raw.Close()

	if userID, ok := c.server.registry.Remove(c); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.server.routes.Remove(ctx, userID); err != nil {
			c.log.Warn("route removal failed", zap.Int64("user_id", userID), zap.Error(err))
			c.server.metrics.recordError("route_remove")
		}
		c.log.Info("user disconnected", zap.Int64("user_id", userID))
	} else {
		c.log.Debug("connection closed")
	}
	c.server.metrics.connClosed()
}
