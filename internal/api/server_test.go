package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/crew"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/faktory"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/store"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/tool"
)

const (
	testToken  = "session-token"
	testWallet = "6f1c2a9e-3b7d-4c55-9a1e-0d2f8b7c4e11"
)

type fakeAuth struct {
	err      error
	noWallet bool
}

func (f *fakeAuth) VerifySessionToken(ctx context.Context, token string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if token != testToken {
		return "", store.ErrInvalidSession
	}
	return "p-1", nil
}

func (f *fakeAuth) GetProfile(ctx context.Context, identifier string) (store.Profile, error) {
	if identifier != "p-1" {
		return store.Profile{}, store.ErrNotFound
	}
	if f.noWallet {
		return store.Profile{ID: "p-1", AccountIndex: 4}, nil
	}
	return store.Profile{ID: "p-1", AccountIndex: 4, WalletID: testWallet}, nil
}

type fakeCrews struct {
	mu      sync.Mutex
	index   int
	crewID  int64
	input   string
	output  string
	err     error
	started chan struct{}
	blockOn chan struct{}
}

func (f *fakeCrews) Execute(ctx context.Context, accountIndex int, crewID int64, input string) (string, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.blockOn != nil {
		<-f.blockOn
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index, f.crewID, f.input = accountIndex, crewID, input
	return f.output, f.err
}

type routeCounter struct {
	mu    sync.Mutex
	codes map[string][]int
}

func (c *routeCounter) ObserveHTTPRequest(route string, code int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[route] = append(c.codes[route], code)
}

type fixture struct {
	server  *Server
	crews   *fakeCrews
	auth    *fakeAuth
	calls   []tool.Invocation
	execErr error
	obs     *routeCounter
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	reg := tool.NewRegistry()
	require.NoError(t, faktory.Register(reg))

	f := &fixture{
		crews: &fakeCrews{output: "done"},
		auth:  &fakeAuth{},
		obs:   &routeCounter{codes: map[string][]int{}},
	}
	exec := tool.ExecutorFunc(func(ctx context.Context, inv tool.Invocation) (string, error) {
		f.calls = append(f.calls, inv)
		if f.execErr != nil {
			return "", f.execErr
		}
		return `{"quote":"42"}`, nil
	})

	nop := zerolog.Nop()
	opts.Logger = &nop
	opts.Observer = f.obs
	s, err := NewServer(f.auth, f.crews, reg, tool.NewDispatcher(reg, exec, tool.WithLogger(nop)), opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	f.server = s
	return f
}

func (f *fixture) do(method, target, body string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Detail
}

func TestNewServer_Validation(t *testing.T) {
	reg := tool.NewRegistry()
	d := tool.NewDispatcher(reg, nil)

	_, err := NewServer(nil, &fakeCrews{}, reg, d, Options{})
	assert.Error(t, err)
	_, err = NewServer(&fakeAuth{}, nil, reg, d, Options{})
	assert.Error(t, err)
	_, err = NewServer(&fakeAuth{}, &fakeCrews{}, nil, d, Options{})
	assert.Error(t, err)
}

func TestExecuteCrew(t *testing.T) {
	f := newFixture(t, Options{})

	t.Run("raw text body", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/execute_crew/12", "buy the dip", true)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp crewResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "done", resp.Result)
		assert.Equal(t, 4, f.crews.index)
		assert.Equal(t, int64(12), f.crews.crewID)
		assert.Equal(t, "buy the dip", f.crews.input)
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	})

	t.Run("json string body", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/execute_crew/12", `"quote \"WELSH\""`, true)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `quote "WELSH"`, f.crews.input)
	})

	t.Run("keeps caller request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/execute_crew/12", strings.NewReader("x"))
		req.Header.Set("Authorization", "Bearer "+testToken)
		req.Header.Set(RequestIDHeader, "req-abc")
		rec := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, "req-abc", rec.Header().Get(RequestIDHeader))
	})
}

func TestExecuteCrew_Errors(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		body     string
		authed   bool
		crewErr  error
		authErr  error
		wantCode int
		wantText string
	}{
		{name: "missing token", target: "/execute_crew/1", body: "x", wantCode: http.StatusUnauthorized},
		{name: "store down", target: "/execute_crew/1", body: "x", authed: true, authErr: errors.New("connection refused"), wantCode: http.StatusInternalServerError, wantText: "Execution error:"},
		{name: "bad crew id", target: "/execute_crew/abc", body: "x", authed: true, wantCode: http.StatusBadRequest},
		{name: "negative crew id", target: "/execute_crew/-3", body: "x", authed: true, wantCode: http.StatusBadRequest},
		{name: "malformed json string", target: "/execute_crew/1", body: `"unterminated`, authed: true, wantCode: http.StatusBadRequest},
		{name: "empty input", target: "/execute_crew/1", authed: true, crewErr: crew.ErrEmptyInput, wantCode: http.StatusBadRequest},
		{name: "unknown crew", target: "/execute_crew/1", body: "x", authed: true, crewErr: crew.ErrCrewNotFound, wantCode: http.StatusNotFound},
		{name: "engine failure", target: "/execute_crew/1", body: "x", authed: true, crewErr: errors.New("crew engine exited with code 1"), wantCode: http.StatusInternalServerError, wantText: "Execution error: crew engine exited with code 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			f.crews.err = tt.crewErr
			f.auth.err = tt.authErr

			rec := f.do(http.MethodPost, tt.target, tt.body, tt.authed)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantText != "" {
				assert.Contains(t, detail(t, rec), tt.wantText)
			}
		})
	}
}

func TestExecuteCrew_InvalidToken(t *testing.T) {
	f := newFixture(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/execute_crew/1", strings.NewReader("x"))
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, detail(t, rec), "invalid or expired session token")
}

func TestListTools(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(http.MethodGet, "/tools", "", false)
	require.Equal(t, http.StatusOK, rec.Code)

	var tools map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tools))
	assert.Len(t, tools, 5)
	assert.Contains(t, tools[faktory.GetBuyQuote], "buying tokens")
}

func TestInvokeTool(t *testing.T) {
	f := newFixture(t, Options{})

	body := `{"arguments":{"stx_amount":"1.5","dex_contract_id":"SP000.dex"}}`
	rec := f.do(http.MethodPost, "/tools/"+faktory.GetBuyQuote+"/invoke", body, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var res tool.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, `{"quote":"42"}`, res.Output)

	require.Len(t, f.calls, 1)
	assert.Equal(t, testWallet, f.calls[0].Identity.String())
	assert.Equal(t, []string{"1.5", "SP000.dex", "15", "mainnet"}, f.calls[0].Args)
}

func TestInvokeTool_DryRun(t *testing.T) {
	f := newFixture(t, Options{})

	body := `{"arguments":{"stx_amount":"2","dex_contract_id":"SP000.dex","network":"testnet"}}`
	rec := f.do(http.MethodPost, "/tools/"+faktory.GetBuyQuote+"/invoke?dry_run=true", body, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dryRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"2", "SP000.dex", "15", "testnet"}, resp.Args)
	assert.Equal(t, faktory.Subsystem, resp.Subsystem)
	assert.Empty(t, f.calls)
}

func TestInvokeTool_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		tool     string
		body     string
		execErr  error
		wantCode int
	}{
		{name: "unknown tool", tool: "nope", body: `{}`, wantCode: http.StatusNotFound},
		{name: "missing argument", tool: faktory.GetBuyQuote, body: `{"arguments":{"stx_amount":"1"}}`, wantCode: http.StatusBadRequest},
		{name: "invalid argument", tool: faktory.GetBuyQuote, body: `{"arguments":{"stx_amount":"lots","dex_contract_id":"d"}}`, wantCode: http.StatusBadRequest},
		{name: "non-string argument", tool: faktory.GetBuyQuote, body: `{"arguments":{"stx_amount":1.5,"dex_contract_id":"d"}}`, wantCode: http.StatusBadRequest},
		{name: "malformed body", tool: faktory.GetBuyQuote, body: `{"arguments":`, wantCode: http.StatusBadRequest},
		{name: "execution failure", tool: faktory.GetBuyQuote, body: `{"arguments":{"stx_amount":"1","dex_contract_id":"d"}}`, execErr: errors.New("insufficient balance"), wantCode: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			f.execErr = tt.execErr

			rec := f.do(http.MethodPost, "/tools/"+tt.tool+"/invoke", tt.body, true)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.execErr != nil {
				assert.Contains(t, detail(t, rec), "insufficient balance")
			}
		})
	}
}

func TestInvokeTool_WithoutWallet(t *testing.T) {
	tests := []struct {
		name     string
		tool     string
		body     string
		wantCode int
	}{
		{name: "unknown tool", tool: "nope", body: `{}`, wantCode: http.StatusNotFound},
		{name: "missing argument", tool: faktory.GetBuyQuote, body: `{"arguments":{"stx_amount":"1"}}`, wantCode: http.StatusBadRequest},
		{name: "valid request", tool: faktory.GetBuyQuote, body: `{"arguments":{"stx_amount":"1","dex_contract_id":"d"}}`, wantCode: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			f.auth.noWallet = true

			rec := f.do(http.MethodPost, "/tools/"+tt.tool+"/invoke", tt.body, true)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Empty(t, f.calls)
		})
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, Options{RateLimit: 2})

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/tools", "", false).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/tools", "", false).Code)

	rec := f.do(http.MethodGet, "/tools", "", false)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "", false).Code, "health is not limited")
}

func TestRateLimit_ForwardedHeaders(t *testing.T) {
	get := func(f *fixture, remote, xff string) int {
		req := httptest.NewRequest(http.MethodGet, "/tools", nil)
		req.RemoteAddr = remote
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		rec := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("ignored from untrusted peers", func(t *testing.T) {
		f := newFixture(t, Options{RateLimit: 1})

		assert.Equal(t, http.StatusOK, get(f, "203.0.113.7:4000", "198.51.100.1"))
		assert.Equal(t, http.StatusTooManyRequests, get(f, "203.0.113.7:4001", "198.51.100.2"),
			"a new forwarded address must not reset the limit")
	})

	t.Run("honoured from trusted proxies", func(t *testing.T) {
		f := newFixture(t, Options{RateLimit: 1, TrustedProxies: []string{"10.0.0.0/8"}})

		assert.Equal(t, http.StatusOK, get(f, "10.1.1.1:4000", "198.51.100.1"))
		assert.Equal(t, http.StatusOK, get(f, "10.1.1.1:4000", "198.51.100.2"))
		assert.Equal(t, http.StatusTooManyRequests, get(f, "10.1.1.1:4000", "198.51.100.1"))
	})
}

func TestClientIP(t *testing.T) {
	f := newFixture(t, Options{TrustedProxies: []string{"10.0.0.0/8", "192.0.2.1"}})

	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"socket peer", "203.0.113.7:4000", "", "", "203.0.113.7"},
		{"spoofed header from client", "203.0.113.7:4000", "1.2.3.4", "5.6.7.8", "203.0.113.7"},
		{"trusted proxy", "10.0.0.5:4000", "198.51.100.1", "", "198.51.100.1"},
		{"client-supplied hop is skipped", "10.0.0.5:4000", "1.2.3.4, 198.51.100.1", "", "198.51.100.1"},
		{"chained trusted proxies", "10.0.0.5:4000", "198.51.100.1, 192.0.2.1", "", "198.51.100.1"},
		{"real ip header", "192.0.2.1:4000", "", "198.51.100.9", "198.51.100.9"},
		{"ipv6 peer", "[2001:db8::1]:4000", "1.2.3.4", "", "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, f.server.clientIP(req))
		})
	}
}

func TestNewServer_InvalidTrustedProxy(t *testing.T) {
	reg := tool.NewRegistry()
	d := tool.NewDispatcher(reg, nil)

	_, err := NewServer(&fakeAuth{}, &fakeCrews{}, reg, d, Options{TrustedProxies: []string{"proxy.internal"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proxy.internal")
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		f := newFixture(t, Options{Version: "1.2.3"})
		rec := f.do(http.MethodGet, "/healthz", "", false)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp["status"])
		assert.Equal(t, "1.2.3", resp["version"])
		assert.EqualValues(t, 5, resp["tools"])
	})

	t.Run("backend down", func(t *testing.T) {
		f := newFixture(t, Options{Health: func(ctx context.Context) error { return errors.New("db closed") }})
		rec := f.do(http.MethodGet, "/healthz", "", false)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestMetricsRouteAndObserver(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("crewd_up 1\n"))
	})
	f := newFixture(t, Options{Metrics: metrics})

	rec := f.do(http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "crewd_up")

	f.do(http.MethodPost, "/execute_crew/7", "x", false)
	assert.Equal(t, []int{http.StatusUnauthorized}, f.obs.codes["POST /execute_crew/{crew_id}"])
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	f := newFixture(t, Options{ShutdownTimeout: 5 * time.Second})
	f.crews.started = make(chan struct{}, 1)
	f.crews.blockOn = make(chan struct{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- f.server.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String()
	assert.Eventually(t, func() bool {
		resp, err := http.Get(url + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	// An in-flight request completes after shutdown begins.
	respCh := make(chan int, 1)
	go func() {
		req, _ := http.NewRequest(http.MethodPost, url+"/execute_crew/1", strings.NewReader("x"))
		req.Header.Set("Authorization", "Bearer "+testToken)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			respCh <- 0
			return
		}
		resp.Body.Close()
		respCh <- resp.StatusCode
	}()

	<-f.crews.started
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(f.crews.blockOn)

	select {
	case code := <-respCh:
		assert.Equal(t, http.StatusOK, code)
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight request did not complete")
	}

	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
