// Package server implements the TCP accept loop and per-connection
// request handler that sit in front of an Engine, dispatching work to a
// thread pool shared across all connections.
package server

import (
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flintkv/flintkv/internal/engine"
	"github.com/flintkv/flintkv/internal/metrics"
	"github.com/flintkv/flintkv/internal/protocol"
	"github.com/flintkv/flintkv/internal/threadpool"
)

// Pool is the subset of threadpool.Pool the server needs.
type Pool interface {
	Spawn(job threadpool.Job)
}

// Server accepts TCP connections and dispatches one request/response
// exchange per connection to the pool, against a shared Engine handle.
type Server struct {
	engine   engine.Engine
	listener net.Listener
	pool     Pool
	metrics  *metrics.Metrics
	log      *zap.SugaredLogger
}

// New builds a Server. metrics may be nil to disable instrumentation.
func New(eng engine.Engine, listener net.Listener, pool Pool, m *metrics.Metrics, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{engine: eng, listener: listener, pool: pool, metrics: m, log: log}
}

// Serve accepts connections forever, handing each to the pool. It returns
// only on a fatal accept failure.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		s.pool.Spawn(func() {
			s.handleConn(conn)
		})
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	connID := uuid.NewString()
	req, err := protocol.ReadRequest(conn)
	if err != nil {
		s.log.Debugw("server: failed to read request", "conn", connID, "error", err)
		return
	}

	start := time.Now()
	resp := s.dispatch(req)
	if s.metrics != nil {
		s.metrics.RequestsTotal.WithLabelValues(string(req.Kind)).Inc()
		s.metrics.ObserveDuration(string(req.Kind), start)
	}

	if err := protocol.WriteResponse(conn, resp); err != nil {
		s.log.Debugw("server: failed to write response", "conn", connID, "error", err)
		return
	}
	s.log.Debugw("server: handled request", "conn", connID, "kind", req.Kind, "key", req.Key, "response", resp.Kind)
}

// dispatch invokes the engine for req and maps the result onto the wire
// protocol's response kinds.
func (s *Server) dispatch(req protocol.Request) protocol.Response {
	switch req.Kind {
	case protocol.RequestGet:
		value, ok, err := s.engine.Get(req.Key)
		s.recordOp("get", err)
		if err != nil || !ok {
			return protocol.Response{Kind: protocol.ResponseNotFound}
		}
		return protocol.Response{Kind: protocol.ResponseValue, Value: value}

	case protocol.RequestSet:
		err := s.engine.Set(req.Key, req.Value)
		s.recordOp("set", err)
		if err != nil {
			// Set failures are surfaced to the client instead of being
			// reported as success.
			return protocol.Response{Kind: protocol.ResponseError, Error: err.Error()}
		}
		return protocol.Response{Kind: protocol.ResponseSuccess}

	case protocol.RequestRemove:
		err := s.engine.Remove(req.Key)
		s.recordOp("remove", err)
		if err != nil {
			return protocol.Response{Kind: protocol.ResponseNotFound}
		}
		return protocol.Response{Kind: protocol.ResponseSuccess}

	default:
		return protocol.Response{Kind: protocol.ResponseError, Error: "unknown request kind"}
	}
}

func (s *Server) recordOp(op string, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		if errors.Is(err, engine.ErrKeyNotFound) {
			result = "not_found"
		} else {
			result = "error"
		}
	}
	s.metrics.EngineOpsTotal.WithLabelValues(op, result).Inc()
}
