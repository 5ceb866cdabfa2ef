package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"qugate/core"
	"qugate/observability"
	"qugate/observability/logging"
	telemetry "qugate/observability/otel"
	"qugate/services/journal"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError        = -32700
	codeInvalidRequest    = -32600
	codeMethodNotFound    = -32601
	codeInvalidParams     = -32602
	codeServerError       = -32000
	codeUnauthorized      = -32001
	codeForbidden         = -32003
	codeRateLimited       = -32020
	codeInsufficientFunds = -32030
	codeJournalDisabled   = -32040
)

// EventLog is the archive gate_events reads from.
type EventLog interface {
	Find(q journal.Query) ([]journal.Record, error)
}

type requestMetrics interface {
	Observe(method string, code int, duration time.Duration)
	RecordThrottle(reason string)
}

// Config tunes the HTTP surface.
type Config struct {
	JWTSecret    string
	RateLimit    float64
	RateBurst    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	node    *core.Node
	events  EventLog
	hub     *Hub
	auth    *Authenticator
	limiter *RateLimiter
	logger     *slog.Logger
	metrics    requestMetrics
	tracer     trace.Tracer
	procedures *telemetry.Procedures
	cfg        Config
	methods    map[string]method
}

type method struct {
	handler func(ctx context.Context, c *call) (any, *RPCError)
	caller  bool // requires an authenticated caller identity
	admin   bool
}

// NewServer wires the JSON-RPC surface over node. eventLog may be nil, in
// which case gate_events reports the journal as disabled.
func NewServer(node *core.Node, eventLog EventLog, hub *Hub, cfg Config) *Server {
	if hub == nil {
		hub = NewHub(0)
	}
	s := &Server{
		node:    node,
		events:  eventLog,
		hub:     hub,
		auth:    NewAuthenticator(cfg.JWTSecret),
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		logger:     slog.Default(),
		metrics:    observability.RPC(),
		tracer:     telemetry.Tracer(),
		procedures: telemetry.GateProcedures(),
		cfg:        cfg,
	}
	s.methods = s.routes()
	return s
}

// SetLogger replaces the request logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Handler returns the HTTP router, instrumented with OpenTelemetry.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/events", s.handleEventsWS)
	r.With(s.limiter.Middleware(s.metrics)).Post("/rpc", s.handle)
	return otelhttp.NewHandler(r, "qugate-rpc")
}

// Serve runs the HTTP server on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("json-rpc server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.hub.Close()
		return srv.Shutdown(shutdownCtx)
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      any               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

func writeError(w http.ResponseWriter, status int, id any, rpcErr *RPCError) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: rpcErr})
}

func writeResult(w http.ResponseWriter, id any, result any) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func httpStatus(code int) int {
	switch code {
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeForbidden:
		return http.StatusForbidden
	case codeRateLimited:
		return http.StatusTooManyRequests
	case codeServerError:
		return http.StatusInternalServerError
	case codeMethodNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, &RPCError{Code: codeInvalidRequest, Message: message, Data: err.Error()})
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, &RPCError{Code: codeInvalidRequest, Message: "request body required"})
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, &RPCError{Code: codeParseError, Message: "invalid JSON payload", Data: err.Error()})
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, &RPCError{Code: codeInvalidRequest, Message: "unsupported jsonrpc version", Data: req.JSONRPC})
		return
	}

	result, rpcErr := s.dispatch(r, req)
	code := 0
	if rpcErr != nil {
		code = rpcErr.Code
		if rpcErr.Code == codeServerError {
			s.logger.Error("json-rpc call failed", "method", req.Method, "error", rpcErr.Data)
		}
		writeError(w, httpStatus(rpcErr.Code), req.ID, rpcErr)
	} else {
		writeResult(w, req.ID, result)
	}
	s.metrics.Observe(req.Method, code, time.Since(started))
}

func (s *Server) dispatch(r *http.Request, req *RPCRequest) (any, *RPCError) {
	if req.Method == "" {
		return nil, &RPCError{Code: codeInvalidRequest, Message: "method required"}
	}
	m, ok := s.methods[req.Method]
	if !ok {
		return nil, &RPCError{Code: codeMethodNotFound, Message: "method not found", Data: req.Method}
	}
	ctx, span := s.tracer.Start(r.Context(), "rpc."+req.Method, trace.WithAttributes(
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("rpc.method", req.Method),
	))
	defer span.End()
	result, rpcErr := s.invoke(ctx, r, m, req)
	if rpcErr != nil {
		span.SetAttributes(attribute.Int("rpc.jsonrpc.error_code", rpcErr.Code))
		span.SetStatus(codes.Error, rpcErr.Message)
	}
	return result, rpcErr
}

func (s *Server) invoke(ctx context.Context, r *http.Request, m method, req *RPCRequest) (any, *RPCError) {
	c := &call{params: req.Params}
	if m.caller || m.admin {
		claims, authErr := s.auth.Authenticate(r)
		if authErr != nil {
			s.metrics.RecordThrottle("unauthorized")
			s.logger.Debug("rpc auth rejected",
				slog.String("method", req.Method),
				slog.String("reason", authErr.Message),
				logging.MaskField("authorization", r.Header.Get("Authorization")))
			return nil, authErr
		}
		if m.admin && !claims.Admin() {
			s.metrics.RecordThrottle("forbidden")
			return nil, &RPCError{Code: codeForbidden, Message: "admin role required"}
		}
		if m.caller {
			caller, err := claims.Identity()
			if err != nil {
				return nil, &RPCError{Code: codeUnauthorized, Message: "token subject is not an identity", Data: err.Error()}
			}
			c.caller = caller
		}
	}
	return m.handler(ctx, c)
}
