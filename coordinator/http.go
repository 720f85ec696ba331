// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package coordinator

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/edgemesh/edgemesh/coordinator/structs"
	"github.com/gorilla/handlers"
	"github.com/hashicorp/go-hclog"
	"github.com/rs/cors"
)

const (
	// ErrInvalidMethod is used if the HTTP method is not supported
	ErrInvalidMethod = "Invalid method"

	// ErrInvalidSecret is returned when the shared secret header is
	// missing or wrong while a secret is configured.
	ErrInvalidSecret = "Invalid shared secret"

	// secretHeader carries the shared secret on state-altering agent
	// requests.
	secretHeader = "X-EdgeMesh-Secret"
)

// HTTPCodedError is used to provide the HTTP error code
type HTTPCodedError interface {
	error
	Code() int
}

func CodedError(c int, s string) HTTPCodedError {
	return &codedError{s, c}
}

type codedError struct {
	s    string
	code int
}

func (e *codedError) Error() string { return e.s }
func (e *codedError) Code() int     { return e.code }

// codedObj lets a handler return a success status other than 200.
type codedObj struct {
	code int
	obj  interface{}
}

func withCode(code int, obj interface{}) *codedObj {
	return &codedObj{code: code, obj: obj}
}

// HTTPServer wraps a coordinator Server and exposes it over HTTP.
type HTTPServer struct {
	server     *Server
	mux        *http.ServeMux
	listener   net.Listener
	listenerCh chan struct{}
	logger     hclog.Logger
	Addr       string
}

// NewHTTPServer starts the HTTP listener for the coordinator.
func NewHTTPServer(server *Server) (*HTTPServer, error) {
	config := server.Config()

	ln, err := net.Listen("tcp", config.BindAddr())
	if err != nil {
		return nil, fmt.Errorf("failed to start HTTP listener: %w", err)
	}

	mux := http.NewServeMux()
	srv := &HTTPServer{
		server:     server,
		mux:        mux,
		listener:   ln,
		listenerCh: make(chan struct{}),
		logger:     server.logger.Named("http"),
		Addr:       ln.Addr().String(),
	}
	srv.registerHandlers()

	// CORS for the web UI, panic recovery outermost.
	corsWrapper := cors.New(cors.Options{
		AllowedOrigins:   config.CORSOrigins,
		AllowedMethods:   []string{"HEAD", "GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	handler := handlers.RecoveryHandler(
		handlers.RecoveryLogger(&recoveryLogger{srv.logger}),
	)(corsWrapper.Handler(mux))

	go func() {
		defer close(srv.listenerCh)
		http.Serve(ln, handler)
	}()

	srv.logger.Info("http server started", "address", srv.Addr)
	return srv, nil
}

// Shutdown closes the listener and waits for the serve loop to exit.
func (s *HTTPServer) Shutdown() {
	if s == nil {
		return
	}
	s.logger.Debug("shutting down http server")
	s.listener.Close()
	<-s.listenerCh
}

type recoveryLogger struct {
	logger hclog.Logger
}

func (r *recoveryLogger) Println(args ...interface{}) {
	r.logger.Error("panic serving request", "panic", fmt.Sprint(args...))
}

// registerHandlers wires the route table. Sub-path routing for /{id}
// segments happens inside the specific handlers.
func (s *HTTPServer) registerHandlers() {
	s.mux.HandleFunc("/health", s.wrap(s.HealthRequest))

	s.mux.HandleFunc("/v1/agent/register", s.wrap(s.AgentRegisterRequest))
	s.mux.HandleFunc("/v1/agent/heartbeat", s.wrap(s.AgentHeartbeatRequest))

	s.mux.HandleFunc("/v1/nodes", s.wrap(s.NodeListRequest))
	s.mux.HandleFunc("/v1/nodes/", s.wrap(s.NodeSpecificRequest))

	s.mux.HandleFunc("/v1/simulate/schedule", s.wrap(s.SimulateScheduleRequest))

	s.mux.HandleFunc("/v1/jobs", s.wrap(s.JobsRequest))
	s.mux.HandleFunc("/v1/jobs/", s.wrap(s.JobSpecificRequest))

	s.mux.HandleFunc("/v1/cluster/summary", s.wrap(s.ClusterSummaryRequest))
	s.mux.HandleFunc("/v1/metrics", s.wrap(s.MetricsRequest))

	s.mux.HandleFunc("/v1/demo/jobs/create-embed-burst", s.wrap(s.DemoEmbedBurstRequest))

	// Legacy v0 agent surface, kept for fleets that predate /v1.
	s.mux.HandleFunc("/api/agents/register", s.wrap(s.LegacyAgentRegisterRequest))
	s.mux.HandleFunc("/api/agents/", s.wrap(s.LegacyAgentSpecificRequest))
	s.mux.HandleFunc("/api/agents", s.wrap(s.LegacyAgentListRequest))

	// SSE stream manages its own response lifecycle, so it bypasses wrap.
	s.mux.HandleFunc("/v1/stream/nodes", s.NodeStreamRequest)

	s.mux.HandleFunc("/", s.UIPlaceholderRequest)
}

// wrap turns a typed handler into an http.HandlerFunc: it logs and times
// the request, translates typed errors to status codes, and writes the JSON
// response. The HTTP layer is the only place errors become status codes.
func (s *HTTPServer) wrap(handler func(resp http.ResponseWriter, req *http.Request) (interface{}, error)) func(resp http.ResponseWriter, req *http.Request) {
	return func(resp http.ResponseWriter, req *http.Request) {
		reqURL := req.URL.String()
		start := time.Now()
		defer func() {
			s.logger.Debug("request complete", "method", req.Method, "path", reqURL, "duration", time.Since(start))
		}()

		obj, err := handler(resp, req)
		if err != nil {
			code, errMsg := errCodeFromHandler(err)
			s.logger.Error("request failed", "method", req.Method, "path", reqURL, "error", errMsg, "code", code)
			resp.Header().Set("Content-Type", "application/json")
			resp.WriteHeader(code)
			json.NewEncoder(resp).Encode(map[string]string{"error": errMsg})
			return
		}

		code := http.StatusOK
		if coded, ok := obj.(*codedObj); ok {
			code = coded.code
			obj = coded.obj
		}
		if obj == nil {
			resp.WriteHeader(code)
			return
		}

		buf, err := json.Marshal(obj)
		if err != nil {
			s.logger.Error("failed to encode response", "path", reqURL, "error", err)
			resp.WriteHeader(http.StatusInternalServerError)
			return
		}
		resp.Header().Set("Content-Type", "application/json")
		resp.WriteHeader(code)
		resp.Write(buf)
	}
}

// errCodeFromHandler maps typed failures onto their HTTP surface: 422 for
// validation, 404 for unknown ids, 409 for illegal transitions.
func errCodeFromHandler(err error) (int, string) {
	if coded, ok := err.(HTTPCodedError); ok {
		return coded.Code(), coded.Error()
	}
	switch {
	case structs.IsErrValidation(err):
		return http.StatusUnprocessableEntity, err.Error()
	case structs.IsErrNotFound(err):
		return http.StatusNotFound, err.Error()
	case structs.IsErrInvalidTransition(err):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// checkAgentSecret gates state-altering agent requests behind the shared
// secret header. An unconfigured secret disables the check.
func (s *HTTPServer) checkAgentSecret(req *http.Request) error {
	secret := s.server.Config().SharedSecret
	if secret == "" {
		return nil
	}
	supplied := req.Header.Get(secretHeader)
	if subtle.ConstantTimeCompare([]byte(secret), []byte(supplied)) != 1 {
		return CodedError(http.StatusUnauthorized, ErrInvalidSecret)
	}
	return nil
}

// decodeBody JSON-decodes a request body, mapping malformed input to a
// validation error rather than a 400. Enum parse failures inside
// UnmarshalJSON surface here too.
func decodeBody(req *http.Request, out interface{}) error {
	if req.Body == nil {
		return structs.NewValidationError("request body is required")
	}
	if err := json.NewDecoder(req.Body).Decode(out); err != nil {
		if structs.IsErrValidation(err) {
			return err
		}
		return structs.NewValidationError("failed to decode request body: %v", err)
	}
	return nil
}

// HealthRequest reports liveness.
func (s *HTTPServer) HealthRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	return map[string]string{"status": "ok"}, nil
}

// UIPlaceholderRequest serves a minimal landing page at the root. The real
// dashboard ships separately and talks to the /v1 API.
func (s *HTTPServer) UIPlaceholderRequest(resp http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		http.NotFound(resp, req)
		return
	}
	resp.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(resp, `<!DOCTYPE html>
<html>
<head><title>EdgeMesh Coordinator</title></head>
<body>
<h1>EdgeMesh Coordinator</h1>
<p>The API is served under <code>/v1</code>. See <a href="/health">/health</a>.</p>
</body>
</html>
`)
}
