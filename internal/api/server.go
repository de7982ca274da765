// Package api serves the crew and tool endpoints over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/internal/tracing"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/store"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/tool"
)

const defaultMaxBodyBytes = 1 << 20

// Authenticator resolves session tokens to profiles.
type Authenticator interface {
	VerifySessionToken(ctx context.Context, token string) (string, error)
	GetProfile(ctx context.Context, identifier string) (store.Profile, error)
}

// CrewExecutor runs a crew. *crew.Service implements it.
type CrewExecutor interface {
	Execute(ctx context.Context, accountIndex int, crewID int64, input string) (string, error)
}

// Observer records served requests.
type Observer interface {
	ObserveHTTPRequest(route string, code int, duration time.Duration)
}

// Options configures a Server.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// RateLimit is requests per minute per client IP; zero disables it
	RateLimit    int
	MaxBodyBytes int64
	Version      string

	// TrustedProxies lists peers (addresses or CIDRs) whose X-Forwarded-For
	// and X-Real-IP headers are believed. Empty trusts nobody.
	TrustedProxies []string

	// Metrics is mounted at /metrics when set
	Metrics http.Handler
	// Health reports backend readiness for /healthz
	Health   func(ctx context.Context) error
	Observer Observer
	Logger   *zerolog.Logger
}

// Server is the HTTP front of the service.
type Server struct {
	auth       Authenticator
	crews      CrewExecutor
	registry   *tool.Registry
	dispatcher *tool.Dispatcher
	opts       Options
	limiter    *RateLimiter
	logger     zerolog.Logger
	handler    http.Handler
	startTime  time.Time

	trustedProxies []netip.Prefix
}

// NewServer creates a server. Call Close or Serve to release its resources.
func NewServer(auth Authenticator, crews CrewExecutor, registry *tool.Registry, dispatcher *tool.Dispatcher, opts Options) (*Server, error) {
	if auth == nil {
		return nil, fmt.Errorf("invalid config: authenticator is required")
	}
	if crews == nil {
		return nil, fmt.Errorf("invalid config: crew executor is required")
	}
	if registry == nil || dispatcher == nil {
		return nil, fmt.Errorf("invalid config: tool registry and dispatcher are required")
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}

	trusted, err := parseTrustedProxies(opts.TrustedProxies)
	if err != nil {
		return nil, err
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	s := &Server{
		auth:       auth,
		crews:      crews,
		registry:   registry,
		dispatcher: dispatcher,
		opts:       opts,
		limiter:    NewRateLimiter(opts.RateLimit),
		logger:     logger.With().Str("component", "api").Logger(),
		startTime:  time.Now(),

		trustedProxies: trusted,
	}

	mux := http.NewServeMux()
	s.route(mux, "GET /healthz", s.handleHealth, routeOpts{})
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}
	s.route(mux, "GET /tools", s.handleListTools, routeOpts{ratelimit: true})
	s.route(mux, "POST /tools/{name}/invoke", s.handleInvokeTool, routeOpts{auth: true, ratelimit: true})
	s.route(mux, "POST /execute_crew/{crew_id}", s.handleExecuteCrew, routeOpts{auth: true, ratelimit: true})
	s.handler = mux

	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close stops background work.
func (s *Server) Close() {
	s.limiter.Stop()
}

// ListenAndServe listens on Options.Addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully, waiting up to ShutdownTimeout for in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.Close()

	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return tracing.Detach(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	resp := map[string]interface{}{
		"uptime":  time.Since(s.startTime).Seconds(),
		"tools":   s.registry.Len(),
		"version": s.opts.Version,
	}
	if s.opts.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.opts.Health(ctx); err != nil {
			status, code = "unavailable", http.StatusServiceUnavailable
			resp["error"] = err.Error()
		}
	}
	resp["status"] = status
	writeJSON(w, code, resp)
}

// handleListTools returns {name: description} for every registered tool.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools := make(map[string]string, s.registry.Len())
	for name, desc := range s.registry.All() {
		tools[name] = desc
	}
	writeJSON(w, http.StatusOK, tools)
}

type crewResponse struct {
	Result string `json:"result"`
}

func (s *Server) handleExecuteCrew(w http.ResponseWriter, r *http.Request) {
	profile, _ := ProfileFromContext(r.Context())

	crewID, err := strconv.ParseInt(r.PathValue("crew_id"), 10, 64)
	if err != nil || crewID <= 0 {
		writeError(w, fmt.Errorf("%w: invalid crew id %q", ErrBadRequest, r.PathValue("crew_id")))
		return
	}

	input, err := s.readInput(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := tracing.WithCrewID(r.Context(), strconv.FormatInt(crewID, 10))
	result, err := s.crews.Execute(ctx, profile.AccountIndex, crewID, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, crewResponse{Result: result})
}

// readInput accepts the body as raw text or as a JSON string.
func (s *Server) readInput(w http.ResponseWriter, r *http.Request) (string, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read body: %v", ErrBadRequest, err)
	}

	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, `"`) {
		var decoded string
		if err := json.Unmarshal([]byte(text), &decoded); err != nil {
			return "", fmt.Errorf("%w: malformed JSON string: %v", ErrBadRequest, err)
		}
		text = strings.TrimSpace(decoded)
	}
	return text, nil
}

type invokeRequest struct {
	Arguments map[string]interface{} `json:"arguments"`
}

type dryRunResponse struct {
	Tool      string   `json:"tool"`
	Subsystem string   `json:"subsystem"`
	Script    string   `json:"script"`
	Args      []string `json:"args"`
}

// handleInvokeTool dispatches one tool as the caller's wallet. With
// ?dry_run=true it returns the prepared argument list without executing.
func (s *Server) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	profile, _ := ProfileFromContext(r.Context())

	var body invokeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, fmt.Errorf("%w: invalid JSON body: %v", ErrBadRequest, err))
		return
	}
	req := tool.Request{Tool: r.PathValue("name"), Arguments: body.Arguments}

	// Request errors are reported before the caller's wallet is considered.
	inv, err := s.dispatcher.Prepare(req)
	if err != nil {
		writeError(w, err)
		return
	}
	if dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run")); dryRun {
		writeJSON(w, http.StatusOK, dryRunResponse{Tool: inv.Tool, Subsystem: inv.Subsystem, Script: inv.Script, Args: inv.Args})
		return
	}

	identity, err := uuid.Parse(profile.WalletID)
	if err != nil {
		writeError(w, fmt.Errorf("%w: profile %s has no wallet", ErrForbidden, profile.ID))
		return
	}

	res, err := s.dispatcher.Dispatch(r.Context(), identity, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
