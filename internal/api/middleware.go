package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/internal/tracing"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/store"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type profileKey struct{}

// ProfileFromContext returns the authenticated profile of the request.
func ProfileFromContext(ctx context.Context) (store.Profile, bool) {
	p, ok := ctx.Value(profileKey{}).(store.Profile)
	return p, ok
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

type routeOpts struct {
	auth      bool
	ratelimit bool
}

// route wraps h with the middleware chain and registers it under pattern.
// The pattern is also the route label in metrics and logs.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc, o routeOpts) {
	if o.auth {
		h = s.authenticate(h)
	}
	if o.ratelimit {
		h = s.limit(h)
	}
	mux.Handle(pattern, s.instrument(pattern, h))
}

// instrument assigns a request id, opens a span, and records metrics and an
// access log line once the handler returns.
func (s *Server) instrument(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID, _ = gonanoid.New()
		}
		w.Header().Set(RequestIDHeader, reqID)

		ctx := tracing.WithRequestID(r.Context(), reqID)
		ctx, span := tracing.StartSpan(ctx, "crewd/api", "http.request",
			attribute.String("http.method", r.Method),
			attribute.String("http.route", pattern),
		)
		if tracing.GetTraceID(ctx) == "" {
			ctx = tracing.WithTraceID(ctx, tracing.NewTraceID())
		}

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		duration := time.Since(start)
		span.SetAttributes(attribute.Int("http.status_code", rec.code))
		var spanErr error
		if rec.code >= http.StatusInternalServerError {
			spanErr = fmt.Errorf("http status %d", rec.code)
		}
		tracing.EndSpan(span, spanErr)

		if s.opts.Observer != nil {
			s.opts.Observer.ObserveHTTPRequest(pattern, rec.code, duration)
		}

		logger := tracing.LoggerFromContext(ctx, s.logger)
		ev := logger.Info()
		if rec.code >= http.StatusInternalServerError {
			ev = logger.Error()
		} else if rec.code >= http.StatusBadRequest {
			ev = logger.Warn()
		}
		ev.Str("method", r.Method).
			Str("route", pattern).
			Str("ip", s.clientIP(r)).
			Int("status", rec.code).
			Dur("duration", duration).
			Msg("Request completed")
	})
}

func (s *Server) limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := s.clientIP(r)
		if !s.limiter.Allow(ip) {
			w.Header().Set("Retry-After", strconv.Itoa(s.limiter.RetryAfter(ip)))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Detail: "Too Many Requests"})
			return
		}
		next(w, r)
	}
}

// authenticate resolves the bearer session token to a profile.
func (s *Server) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, fmt.Errorf("%w: missing bearer token", ErrUnauthorized))
			return
		}

		profile, err := s.verifyProfile(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), profileKey{}, profile)
		ctx = tracing.WithProfileID(ctx, profile.ID)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) verifyProfile(ctx context.Context, token string) (store.Profile, error) {
	profileID, err := s.auth.VerifySessionToken(ctx, token)
	if err != nil {
		if isAuthFailure(err) {
			return store.Profile{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return store.Profile{}, fmt.Errorf("%w: verify session: %v", ErrUpstream, err)
	}

	profile, err := s.auth.GetProfile(ctx, profileID)
	if err != nil {
		if isAuthFailure(err) {
			return store.Profile{}, fmt.Errorf("%w: profile %s not found", ErrUnauthorized, profileID)
		}
		return store.Profile{}, fmt.Errorf("%w: load profile: %v", ErrUpstream, err)
	}
	return profile, nil
}

func isAuthFailure(err error) bool {
	return errors.Is(err, store.ErrInvalidSession) || errors.Is(err, store.ErrNotFound)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// parseTrustedProxies accepts CIDR prefixes and bare addresses.
func parseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid config: trusted proxy %q is not an address or CIDR", entry)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return prefixes, nil
}

func (s *Server) trusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range s.trustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP returns the socket peer. Forwarding headers are honoured only when
// the peer is a trusted proxy; X-Forwarded-For is read right to left and the
// first untrusted hop is the client.
func (s *Server) clientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	if !s.trusted(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop != "" && !s.trusted(hop) {
				return hop
			}
		}
		if first := strings.TrimSpace(hops[0]); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}
