package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// UnaryHandler serves a one-request, one-response call. dec decodes the
// request into its argument.
type UnaryHandler func(ctx context.Context, dec func(any) error) (any, error)

// StreamHandler serves a streaming call. Returning nil ends the call with OK;
// any other error is sent to the client as its status.
type StreamHandler func(stream ServerStream) error

// ServerStream is the server side of one call.
type ServerStream interface {
	Context() context.Context
	SendMsg(m any) error
	// RecvMsg returns io.EOF once the client has closed its side.
	RecvMsg(m any) error
}

// Server routes websocket calls to registered handlers. It implements
// http.Handler so it can be mounted on any mux.
type Server struct {
	unary    map[string]UnaryHandler
	streams  map[string]StreamHandler
	upgrader websocket.Upgrader
	logger   *slog.Logger

	maxMessageSize int64

	// active tracks in-flight calls; hijacked connections are invisible to
	// http.Server.Shutdown.
	active sync.WaitGroup
}

func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		unary:   make(map[string]UnaryHandler),
		streams: make(map[string]StreamHandler),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:         logger,
		maxMessageSize: DefaultMaxMessageSize,
	}
}

// RegisterUnary registers a unary handler. Panics on a duplicate method.
func (s *Server) RegisterUnary(method string, h UnaryHandler) {
	s.checkDuplicate(method)
	s.unary[method] = h
}

// RegisterStream registers a streaming handler. Panics on a duplicate method.
func (s *Server) RegisterStream(method string, h StreamHandler) {
	s.checkDuplicate(method)
	s.streams[method] = h
}

func (s *Server) checkDuplicate(method string) {
	_, u := s.unary[method]
	_, st := s.streams[method]
	if u || st {
		panic(fmt.Sprintf("rpc.Server: duplicate handler for method %q", method))
	}
}

// Methods lists the registered method names.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.unary)+len(s.streams))
	for m := range s.unary {
		methods = append(methods, m)
	}
	for m := range s.streams {
		methods = append(methods, m)
	}
	return methods
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := strings.TrimPrefix(r.URL.Path, PathPrefix)
	unary, isUnary := s.unary[method]
	stream, isStream := s.streams[method]
	if !isUnary && !isStream {
		http.Error(w, "unknown method", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "method", method, "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(s.maxMessageSize)

	s.active.Add(1)
	defer s.active.Done()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	ss := &serverStream{ctx: ctx, cancel: cancel, conn: conn}

	start := time.Now()
	if isUnary {
		err = s.handleUnary(ss, unary)
	} else {
		err = stream(ss)
	}
	st := s.finish(ss, err)

	s.logger.Debug("call finished",
		"method", method,
		"remote", r.RemoteAddr,
		"code", st.Code.String(),
		"duration", time.Since(start),
	)
}

func (s *Server) handleUnary(ss *serverStream, h UnaryHandler) error {
	resp, err := h(ss.ctx, func(v any) error {
		if err := ss.RecvMsg(v); err != nil {
			if errors.Is(err, io.EOF) {
				return Errorf(InvalidArgument, "missing request message")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	return ss.SendMsg(resp)
}

// finish sends the final status and closes the connection. Errors that are
// not a *Status are reported as Internal.
func (s *Server) finish(ss *serverStream, err error) *Status {
	var st *Status
	switch {
	case err == nil:
		st = &Status{Code: OK}
	case errors.As(err, &st):
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		st = FromError(err)
	default:
		st = &Status{Code: Internal, Message: err.Error()}
	}

	if werr := ss.write(frame{Type: frameStatus, Status: st}); werr != nil {
		s.logger.Debug("failed to write status", "error", werr)
	}
	ss.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	ss.conn.Close()
	return st
}

// Serve accepts calls on l until ctx is cancelled, then stops accepting and
// waits for in-flight calls to finish.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("rpc server listening", "addr", l.Addr().String())
	err := srv.Serve(l)
	s.active.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

type serverStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	conn   *websocket.Conn

	writeMu sync.Mutex
	recvErr error
}

func (ss *serverStream) Context() context.Context {
	return ss.ctx
}

func (ss *serverStream) SendMsg(m any) error {
	payload, err := Marshal(m)
	if err != nil {
		return Errorf(Internal, "encoding response: %v", err)
	}
	return ss.write(frame{Type: frameMessage, Payload: payload})
}

func (ss *serverStream) write(f frame) error {
	data, err := Marshal(f)
	if err != nil {
		return err
	}
	ss.writeMu.Lock()
	defer ss.writeMu.Unlock()
	if err := ss.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		ss.cancel()
		return Errorf(Unavailable, "client went away: %v", err)
	}
	return nil
}

func (ss *serverStream) RecvMsg(m any) error {
	if ss.recvErr != nil {
		return ss.recvErr
	}
	_, data, err := ss.conn.ReadMessage()
	if err != nil {
		ss.cancel()
		if errors.Is(err, websocket.ErrReadLimit) {
			ss.recvErr = Errorf(InvalidArgument, "request frame exceeds the message size limit")
		} else {
			ss.recvErr = Errorf(Canceled, "client went away: %v", err)
		}
		return ss.recvErr
	}
	var f frame
	if err := Unmarshal(data, &f); err != nil {
		ss.recvErr = Errorf(InvalidArgument, "decoding frame: %v", err)
		return ss.recvErr
	}
	switch f.Type {
	case frameMessage:
		if err := Unmarshal(f.Payload, m); err != nil {
			return Errorf(InvalidArgument, "decoding request: %v", err)
		}
		return nil
	case frameHalfClose:
		ss.recvErr = io.EOF
		return io.EOF
	default:
		ss.recvErr = Errorf(InvalidArgument, "unexpected frame type %d", f.Type)
		return ss.recvErr
	}
}
