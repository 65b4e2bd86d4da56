package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a handle to a remote server. It holds no network connection of its
// own: every call dials a websocket and closes it when the call ends, so a
// Conn is safe for concurrent use.
type Conn struct {
	target         string
	dialer         websocket.Dialer
	maxMessageSize int64
	logger         *slog.Logger
}

type DialOption func(*Conn)

// WithDialTimeout bounds the websocket handshake of each call.
func WithDialTimeout(d time.Duration) DialOption {
	return func(c *Conn) { c.dialer.HandshakeTimeout = d }
}

// WithMaxMessageSize sets the largest frame a call accepts.
func WithMaxMessageSize(n int64) DialOption {
	return func(c *Conn) { c.maxMessageSize = n }
}

func WithLogger(logger *slog.Logger) DialOption {
	return func(c *Conn) { c.logger = logger }
}

// Dial validates target ("host:port") and returns a Conn for it. No network
// traffic happens until the first call.
func Dial(target string, opts ...DialOption) (*Conn, error) {
	if _, _, err := net.SplitHostPort(target); err != nil {
		return nil, fmt.Errorf("invalid target %q: %w", target, err)
	}
	c := &Conn{
		target: target,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		maxMessageSize: DefaultMaxMessageSize,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Target returns the address calls are sent to.
func (c *Conn) Target() string {
	return c.target
}

func (c *Conn) url(method string) string {
	u := url.URL{Scheme: "ws", Host: c.target, Path: PathPrefix + method}
	return u.String()
}

// NewStream opens a call to method, e.g. "/FileProcessor/ResizeImage".
// The stream is torn down when ctx is done.
func (c *Conn) NewStream(ctx context.Context, method string) (*ClientStream, error) {
	ws, resp, err := c.dialer.DialContext(ctx, c.url(method), nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fromContextError(ctx.Err())
		}
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, Errorf(Unimplemented, "unknown method %s", method)
		}
		return nil, Errorf(Unavailable, "connecting to %s: %v", c.target, err)
	}
	ws.SetReadLimit(c.maxMessageSize)

	cs := &ClientStream{
		ctx:    ctx,
		conn:   ws,
		method: method,
		done:   make(chan struct{}),
	}
	go cs.watch()
	c.logger.Debug("call started", "method", method, "target", c.target)
	return cs, nil
}

// Invoke performs a unary call: one request message, one response message.
func (c *Conn) Invoke(ctx context.Context, method string, req, resp any) error {
	cs, err := c.NewStream(ctx, method)
	if err != nil {
		return err
	}
	defer cs.Close()

	// A failed send surfaces its real cause through RecvMsg.
	if err := cs.SendMsg(req); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if err := cs.CloseSend(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if err := cs.RecvMsg(resp); err != nil {
		if errors.Is(err, io.EOF) {
			return Errorf(Internal, "%s returned no response", method)
		}
		return err
	}
	var extra RawMessage
	switch err := cs.RecvMsg(&extra); {
	case errors.Is(err, io.EOF):
		return nil
	case err == nil:
		return Errorf(Internal, "%s returned more than one response", method)
	default:
		return err
	}
}

// ClientStream is the client side of one call. SendMsg and CloseSend may run
// in one goroutine while RecvMsg runs in another.
type ClientStream struct {
	ctx    context.Context
	conn   *websocket.Conn
	method string

	writeMu    sync.Mutex
	sendClosed bool
	sendErr    error

	recvErr error

	closeOnce sync.Once
	done      chan struct{}
}

func (s *ClientStream) watch() {
	select {
	case <-s.ctx.Done():
		// Unblocks any pending read or write.
		s.conn.Close()
	case <-s.done:
	}
}

// Context returns the context the stream was opened with.
func (s *ClientStream) Context() context.Context {
	return s.ctx
}

// SendMsg encodes and sends m. When the call has already ended it returns
// io.EOF; RecvMsg then reports why.
func (s *ClientStream) SendMsg(m any) error {
	payload, err := Marshal(m)
	if err != nil {
		return Errorf(Internal, "encoding request: %v", err)
	}
	return s.write(frame{Type: frameMessage, Payload: payload})
}

// CloseSend tells the server no more messages follow.
func (s *ClientStream) CloseSend() error {
	err := s.write(frame{Type: frameHalfClose})
	s.writeMu.Lock()
	s.sendClosed = true
	s.writeMu.Unlock()
	return err
}

func (s *ClientStream) write(f frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.sendClosed {
		return errors.New("rpc: send on closed stream")
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	data, err := Marshal(f)
	if err != nil {
		return Errorf(Internal, "encoding frame: %v", err)
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		s.sendErr = io.EOF
		return s.sendErr
	}
	return nil
}

// RecvMsg receives the next message into m. It returns io.EOF when the server
// ended the call with OK, and the *Status otherwise.
func (s *ClientStream) RecvMsg(m any) error {
	if s.recvErr != nil {
		return s.recvErr
	}
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return s.endRecv(s.transportError(err))
		}
		var f frame
		if err := Unmarshal(data, &f); err != nil {
			return s.endRecv(Errorf(Internal, "decoding frame: %v", err))
		}
		switch f.Type {
		case frameMessage:
			if err := Unmarshal(f.Payload, m); err != nil {
				return s.endRecv(Errorf(Internal, "decoding response: %v", err))
			}
			return nil
		case frameStatus:
			if f.Status == nil || f.Status.Code == OK {
				return s.endRecv(io.EOF)
			}
			return s.endRecv(f.Status)
		default:
			return s.endRecv(Errorf(Internal, "unexpected frame type %d", f.Type))
		}
	}
}

func (s *ClientStream) endRecv(err error) error {
	s.recvErr = err
	return err
}

func (s *ClientStream) transportError(err error) error {
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		return fromContextError(ctxErr)
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return Errorf(Internal, "response frame exceeds the message size limit")
	}
	return Errorf(Unavailable, "connection lost: %v", err)
}

// Close releases the connection. It is safe to call more than once.
func (s *ClientStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
