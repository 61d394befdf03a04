// Package proxy implements the forwarding proxy: the accept loop and the
// per-connection workers that parse, rewrite, connect and relay.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"forward-proxy-go/internal/config"
	"forward-proxy-go/internal/metrics"
	"forward-proxy-go/internal/origin"
	"forward-proxy-go/internal/parse"
	"forward-proxy-go/internal/respond"
)

// dialTimeout bounds origin connection establishment; the session deadline
// still applies on top when configured.
const dialTimeout = 30 * time.Second

// Server owns the proxy listener and spawns one worker per accepted
// connection. Sessions share nothing with each other.
type Server struct {
	cfg       *config.ProxyConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
	connector *origin.Connector

	limiter *rate.Limiter // nil when accept-rate limiting is disabled
	sem     chan struct{} // nil when the connection cap is disabled

	// ctx is canceled by Close so an acceptor parked on the limiter or on a
	// full semaphore still shuts down.
	ctx    context.Context
	cancel context.CancelFunc

	ln     net.Listener
	active atomic.Int64
}

// New creates a Server from config. Listen must be called before Serve.
func New(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       &cfg.Proxy,
		logger:    logger.With("component", "proxy"),
		metrics:   m,
		connector: origin.NewConnector(dialTimeout),
		ctx:       ctx,
		cancel:    cancel,
	}
	if r := cfg.Proxy.AcceptRatePerSecond; r > 0 {
		burst := int(r)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
	if n := cfg.Proxy.MaxConnections; n > 0 {
		s.sem = make(chan struct{}, n)
	}
	return s
}

// Listen binds the proxy port. A bind failure is fatal to startup; the
// caller aborts with the diagnostic.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.Addr(), err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound listen address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.cfg.Addr()
}

// Active returns the number of sessions currently being served.
func (s *Server) Active() int64 {
	return s.active.Load()
}

// Serve accepts connections until the listener is closed. Each accepted
// connection is handed to a detached worker; the acceptor never waits on a
// worker's progress. Transient accept failures are logged and the loop
// continues. When the connection cap is reached, accepting pauses until a
// worker finishes.
func (s *Server) Serve() {
	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(s.ctx); err != nil {
				return
			}
		}

		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "err", err)
			continue
		}

		if s.sem != nil {
			select {
			case s.sem <- struct{}{}:
			case <-s.ctx.Done():
				_ = conn.Close()
				return
			}
		}
		go s.handle(conn)
	}
}

// Close stops the accept loop, including one parked on the accept limiter or
// on a full connection cap; a connection held while parked is closed
// unserved. In-flight sessions run to completion on their own; they are
// bounded by the session deadline, not by Close.
func (s *Server) Close() error {
	s.cancel()
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

// handle is the worker boundary: it owns the client connection for the
// session's lifetime and contains every failure, including panics, so
// nothing propagates to the acceptor or to sibling sessions.
func (s *Server) handle(conn net.Conn) {
	start := time.Now()
	s.active.Add(1)
	s.metrics.SessionsTotal.Inc()
	s.metrics.SessionsActive.Inc()

	logger := s.logger.With("remote", conn.RemoteAddr().String())

	defer func() {
		if r := recover(); r != nil {
			logger.Error("session panic", "panic", r)
		}
		_ = conn.Close()
		if s.sem != nil {
			<-s.sem
		}
		s.active.Add(-1)
		s.metrics.SessionsActive.Dec()
		s.metrics.SessionDuration.Observe(time.Since(start).Seconds())
	}()

	if d := s.cfg.SessionTimeout(); d > 0 {
		_ = conn.SetDeadline(time.Now().Add(d))
	}

	s.serveSession(conn, logger)
}

// serveSession runs one request through parse → rewrite → connect → relay,
// strictly in order.
func (s *Server) serveSession(conn net.Conn, logger *slog.Logger) {
	req, err := parse.NewReader(conn, s.cfg.MaxLineBytes).ReadRequest()
	if err != nil {
		s.respondParseError(conn, logger, err)
		return
	}

	outbound, err := req.Rewrite(s.cfg.UserAgent, s.cfg.MaxRequestBytes)
	if err != nil {
		logger.Info("rewrite failed", "err", err)
		s.sendError(conn, logger, respond.BadRequest("Request too large"))
		return
	}

	dialStart := time.Now()
	originConn, err := s.connector.Dial(context.Background(), req.Host, req.TargetPort())
	s.metrics.OriginDialDuration.Observe(time.Since(dialStart).Seconds())
	if err != nil {
		s.metrics.OriginDialFailures.Inc()
		logger.Info("origin unreachable", "host", req.Host, "port", req.TargetPort(), "err", err)
		s.sendError(conn, logger, respond.ServiceUnavailable("Could not reach origin server"))
		return
	}
	defer func() { _ = originConn.Close() }()

	if d := s.cfg.SessionTimeout(); d > 0 {
		_ = originConn.SetDeadline(time.Now().Add(d))
	}

	// From here on every failure is a peer that went away; the session just
	// ends, with both sockets closed and nothing written.
	if _, err := originConn.Write(outbound); err != nil {
		logger.Debug("write to origin failed", "err", err)
		return
	}

	n, err := origin.Relay(conn, originConn, s.cfg.RelayChunkBytes)
	s.metrics.RelayedBytes.Add(float64(n))
	if err != nil {
		logger.Debug("relay ended early", "bytes", n, "err", err)
		return
	}

	logger.Info("session complete",
		"host", req.Host,
		"port", req.TargetPort(),
		"path", req.Path,
		"bytes", n,
	)
}

// respondParseError maps a parse failure to the client-visible behavior: an
// empty request is abandoned with no response, a non-GET method gets 501 and
// the session ends immediately, everything else gets 400.
func (s *Server) respondParseError(conn net.Conn, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, parse.ErrEmptyRequest):
		logger.Debug("empty request; session abandoned")
	case errors.Is(err, parse.ErrUnsupportedMethod):
		s.sendError(conn, logger, respond.NotImplemented("This proxy only forwards GET requests"))
	case errors.Is(err, parse.ErrLineTooLong):
		s.sendError(conn, logger, respond.BadRequest("Request line or header too long"))
	case errors.Is(err, parse.ErrNoHeaders):
		s.sendError(conn, logger, respond.BadRequest("At least one header is required"))
	case errors.Is(err, parse.ErrNoHost):
		s.sendError(conn, logger, respond.BadRequest("Request names no origin host"))
	default:
		s.sendError(conn, logger, respond.BadRequest("Malformed request"))
	}
}

// drainTimeout bounds how long a worker waits for the client's leftover
// request bytes after an error response.
const drainTimeout = time.Second

// sendError writes a synthesized error document. A render or write failure
// is logged and the session ends; it is never fatal.
func (s *Server) sendError(conn net.Conn, logger *slog.Logger, e respond.Error) {
	s.metrics.ErrorResponses.WithLabelValues(fmt.Sprintf("%d", e.Code)).Inc()
	if err := e.Write(conn); err != nil {
		logger.Warn("error response not delivered", "status", e.Code, "err", err)
		return
	}
	logger.Info("error response sent", "status", e.Code, "reason", e.Short)

	// Closing with unread request bytes in the socket would reset the
	// connection and could discard the response. Signal end-of-response and
	// swallow whatever the client is still sending, briefly.
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	_ = conn.SetReadDeadline(time.Now().Add(drainTimeout))
	_, _ = io.Copy(io.Discard, conn)
}
