// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ozean-licht/ozean-licht-sub011/agent/auth"
	"github.com/ozean-licht/ozean-licht-sub011/agent/config"
	"github.com/ozean-licht/ozean-licht-sub011/agent/ratelimit"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/registry"
	"github.com/ozean-licht/ozean-licht-sub011/shared/logger"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

const tracerName = "github.com/ozean-licht/ozean-licht-sub011/agent"

// Version is reported by /health
var Version = "dev"

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// ServerOptions holds the collaborators of the HTTP surface
type ServerOptions struct {
	Registry   *registry.Registry
	Dispatcher *registry.Dispatcher
	Auth       *auth.Middleware
	Limits     *ratelimit.Engine

	// Gatherer backs /metrics; nil uses the default Prometheus registry
	Gatherer prometheus.Gatherer
	Logger   *logger.Logger

	MaxBodyBytes       int64
	CORSAllowedOrigins []string
	HealthTimeout      time.Duration
}

// Server is the gateway HTTP surface
type Server struct {
	registry   *registry.Registry
	dispatcher *registry.Dispatcher
	auth       *auth.Middleware
	limits     *ratelimit.Engine
	gatherer   prometheus.Gatherer
	logger     *logger.Logger
	tracer     trace.Tracer

	maxBodyBytes  int64
	healthTimeout time.Duration

	router  *mux.Router
	handler http.Handler
}

// NewServer wires the routes
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Registry == nil || opts.Dispatcher == nil || opts.Auth == nil || opts.Limits == nil {
		return nil, errors.New("registry, dispatcher, auth and limits are required")
	}
	s := &Server{
		registry:      opts.Registry,
		dispatcher:    opts.Dispatcher,
		auth:          opts.Auth,
		limits:        opts.Limits,
		gatherer:      opts.Gatherer,
		logger:        opts.Logger,
		tracer:        otel.Tracer(tracerName),
		maxBodyBytes:  opts.MaxBodyBytes,
		healthTimeout: opts.HealthTimeout,
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.logger == nil {
		s.logger = logger.New("gateway")
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = config.DefaultMaxBodyBytes
	}
	if s.healthTimeout <= 0 {
		s.healthTimeout = 5 * time.Second
	}

	s.router = mux.NewRouter()
	s.router.NotFoundHandler = http.HandlerFunc(s.notFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.notFound)
	s.router.Use(s.traceRoute)

	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.auth.Handler)
	api.HandleFunc("/services", s.listServices).Methods(http.MethodGet)
	api.HandleFunc("/services/{service}/capabilities", s.describeService).Methods(http.MethodGet)
	api.Handle("/services/{service}/operations/{operation}", s.operationPipeline()).
		Methods(http.MethodGet, http.MethodPost)

	origins := opts.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{
			RequestIDHeader, "Retry-After",
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
		},
		MaxAge: 300,
	})
	s.handler = c.Handler(s.observe(s.router))
	return s, nil
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// operationPipeline runs, in order: permission guard, caller limits,
// service lookup, service limit, then dispatch. Authentication already ran
// on the subrouter. An unknown service needs no permission, so the caller
// limits still count requests to it.
func (s *Server) operationPipeline() http.Handler {
	guard := auth.Guard(s.requiredPermission, s.reject)
	return guard(s.limitCaller(s.requireService(s.limitService(http.HandlerFunc(s.execute)))))
}

func (s *Server) requiredPermission(r *http.Request) string {
	vars := mux.Vars(r)
	return s.registry.RequiredPermission(vars["service"], vars["operation"])
}

func (s *Server) limitCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := auth.IdentityFromContext(r.Context())
		d, err := s.limits.CheckCaller(r.Context(), identity, ratelimit.Subject(identity, remoteIP(r)))
		ratelimit.SetHeaders(w.Header(), d)
		if err != nil {
			s.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireService(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.registry.Get(mux.Vars(r)["service"]); err != nil {
			s.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limitService(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := auth.IdentityFromContext(r.Context())
		subject := ratelimit.Subject(identity, remoteIP(r))
		d, err := s.limits.CheckService(r.Context(), mux.Vars(r)["service"], subject)
		if err != nil {
			ratelimit.SetHeaders(w.Header(), d)
			s.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// reject answers a request refused after authentication. The dispatcher
// records it so the sink sees one event for it.
func (s *Server) reject(w http.ResponseWriter, r *http.Request, err error) {
	env := s.dispatcher.Reject(s.operationRequest(r), err, requestStart(r.Context()))
	s.writeEnvelope(w, env)
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request) {
	req := s.operationRequest(r)
	if err := s.decodeInput(r, req); err != nil {
		s.reject(w, r, err)
		return
	}
	s.writeEnvelope(w, s.dispatcher.Dispatch(r.Context(), req))
}

func (s *Server) operationRequest(r *http.Request) *types.OperationRequest {
	vars := mux.Vars(r)
	req := &types.OperationRequest{
		Service:   vars["service"],
		Operation: vars["operation"],
		Args:      []string{},
		Options:   map[string]interface{}{},
		RequestID: r.Header.Get(RequestIDHeader),
	}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		req.AgentID = identity.AgentID
	}
	return req
}

// operationBody is the POST payload. Args may be strings or other JSON
// scalars; non-strings are passed on in their JSON text form.
type operationBody struct {
	Args    []json.RawMessage      `json:"args"`
	Options map[string]interface{} `json:"options"`
}

func (s *Server) decodeInput(r *http.Request, req *types.OperationRequest) error {
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req.Args = append(req.Args, q["arg"]...)
		for key, values := range q {
			if key == "arg" || len(values) == 0 {
				continue
			}
			req.Options[key] = values[0]
		}
		return nil
	}

	var body operationBody
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, s.maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return types.NewValidationError(types.CodeInvalidRequest,
				fmt.Sprintf("request body exceeds %d bytes", s.maxBodyBytes), nil)
		}
		return types.NewValidationError(types.CodeInvalidRequest, "request body must be JSON: "+err.Error(), nil)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return types.NewValidationError(types.CodeInvalidRequest, "request body must hold a single JSON object", nil)
	}

	for i, raw := range body.Args {
		var str string
		if err := json.Unmarshal(raw, &str); err == nil {
			req.Args = append(req.Args, str)
			continue
		}
		text := strings.TrimSpace(string(raw))
		if text == "" || text == "null" || strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
			return types.NewValidationError(types.CodeInvalidRequest,
				fmt.Sprintf("args[%d] must be a string, number or boolean", i), nil)
		}
		req.Args = append(req.Args, text)
	}
	for k, v := range body.Options {
		req.Options[k] = v
	}
	return nil
}

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	s.writeEnvelope(w, types.SuccessEnvelope(s.registry.Catalog(), s.metadata(r)))
}

func (s *Server) describeService(w http.ResponseWriter, r *http.Request) {
	desc, err := s.registry.Describe(mux.Vars(r)["service"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeEnvelope(w, types.SuccessEnvelope(desc, s.metadata(r)))
}

type healthResponse struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]interface{} `json:"services"`
}

// health reports every handler's probe. The gateway itself is up as long as
// it answers, so degraded backends do not change the status code.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.healthTimeout)
	defer cancel()

	statuses := s.registry.HealthCheck(ctx)
	resp := healthResponse{
		Status:    "healthy",
		Service:   "agent-gateway",
		Version:   Version,
		Timestamp: time.Now().UTC(),
		Services:  make(map[string]interface{}, len(statuses)),
	}
	if !registry.Healthy(statuses) {
		resp.Status = "degraded"
	}
	for name, st := range statuses {
		resp.Services[name] = st
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, types.NewNotFoundError(types.CodeRouteNotFound,
		fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path)))
}

func (s *Server) metadata(r *http.Request) types.Metadata {
	return types.Metadata{
		Timestamp: time.Now().UTC(),
		RequestID: r.Header.Get(RequestIDHeader),
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeEnvelope(w, types.ErrorEnvelope(err, s.metadata(r)))
}

func (s *Server) writeEnvelope(w http.ResponseWriter, env types.Envelope) {
	writeJSON(w, env.HTTPStatus(), env)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type requestStartKey struct{}

func requestStart(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestStartKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// observe assigns the request id, stamps the start time and logs the
// completed request
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(RequestIDHeader)
		if !requestIDPattern.MatchString(id) {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		ctx := context.WithValue(r.Context(), requestStartKey{}, start)
		next.ServeHTTP(rec, r.WithContext(ctx))

		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			return
		}
		s.logger.InfoWithDuration("", id, "request completed",
			float64(time.Since(start).Microseconds())/1000, map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
				"status": rec.status,
				"remote": remoteIP(r),
			})
	})
}

// traceRoute starts a server span named after the matched route template
func (s *Server) traceRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}

		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := s.tracer.Start(ctx, r.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("gateway.request_id", r.Header.Get(RequestIDHeader)),
			),
		)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
