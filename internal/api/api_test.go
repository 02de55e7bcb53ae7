package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/autoapply/internal/config"
	"github.com/xkilldash9x/autoapply/internal/mocks"
	"github.com/xkilldash9x/autoapply/internal/service"
	"github.com/xkilldash9x/autoapply/internal/workflow"
)

const jobURL = "https://www.dice.com/job-detail/abc-123"

type harness struct {
	srv      *httptest.Server
	cfg      *config.Config
	launcher *mocks.FakeLauncher
	clock    *clockwork.FakeClock
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Account.Email = "jane@example.com"
	cfg.Account.Password = "hunter2"
	cfg.Humanoid.Enabled = false
	cfg.Artifacts.Dir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	launcher := mocks.NewFakeLauncher(func() *mocks.FakePage { return mocks.SitePage(cfg.Site) })
	clock := clockwork.NewFakeClock()
	c, err := service.Build(cfg, launcher, zap.NewNop(), service.WithClock(clock))
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(cfg.Server, c.Applier, zap.NewNop()).Handler())
	t.Cleanup(func() {
		srv.Close()
		c.Shutdown(context.Background())
	})
	return &harness{srv: srv, cfg: cfg, launcher: launcher, clock: clock}
}

func (h *harness) post(t *testing.T, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(h.srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp, decode(t, resp)
}

func (h *harness) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(h.srv.URL + path)
	require.NoError(t, err)
	return resp, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return out
}

func TestApply_Success(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.post(t, "/apply", `{"job_url":"`+jobURL+`"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, jobURL, body["job_url"])
	assert.EqualValues(t, 1, body["application_number"])
	assert.NotEmpty(t, body["timestamp"])
	assert.NotContains(t, body, "error")

	_, health := h.get(t, "/health")
	assert.EqualValues(t, 1, health["applications_count"])
	assert.Equal(t, "active", health["session_state"])
	assert.NotNil(t, health["last_application"])
	assert.NotNil(t, health["last_attempt"])
}

func TestApply_BadRequests(t *testing.T) {
	h := newHarness(t, nil)

	for _, body := range []string{``, `{}`, `{"job_url":""}`, `{"job_url":"   "}`, `not json`} {
		resp, out := h.post(t, "/apply", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Equal(t, map[string]any{"status": "error", "message": "No job URL"}, out, body)
	}
	assert.Zero(t, h.launcher.Launches(), "bad requests never start a browser")
}

func TestApply_LoginFailed(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Account.Password = "" })

	resp, body := h.post(t, "/apply", `{"job_url":"`+jobURL+`"}`)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, map[string]any{"status": "error", "message": "Login failed"}, body)
}

func TestApply_LoginLandsOnUnexpectedPage(t *testing.T) {
	h := newHarness(t, nil)
	h.launcher.PageFactory = func() *mocks.FakePage {
		p := mocks.SitePage(h.cfg.Site)
		p.Redirects[h.cfg.Site.SignInButton.Selector] = "https://www.dice.com/account/verify-identity"
		return p
	}

	resp, body := h.post(t, "/apply", `{"job_url":"`+jobURL+`"}`)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, map[string]any{"status": "error", "message": "Login failed"}, body)
	page := h.launcher.Browsers()[0].Pages()[0]
	assert.NotContains(t, page.CallsTo("Navigate"), jobURL, "no workflow attempt after a failed login")
}

func TestApply_SecondRequestWaitsForPacing(t *testing.T) {
	h := newHarness(t, nil)
	h.post(t, "/apply", `{"job_url":"`+jobURL+`"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan map[string]any, 1)
	go func() {
		resp, err := http.Post(h.srv.URL+"/apply", "application/json", strings.NewReader(`{"job_url":"`+jobURL+`"}`))
		if err != nil {
			done <- nil
			return
		}
		defer resp.Body.Close()
		var out map[string]any
		json.NewDecoder(resp.Body).Decode(&out)
		done <- out
	}()

	require.NoError(t, h.clock.BlockUntilContext(ctx, 1), "second apply should block on pacing")
	select {
	case <-done:
		t.Fatal("response arrived before the pacing gap elapsed")
	default:
	}

	h.clock.Advance(h.cfg.Pacing.MaxWait)
	body := <-done
	require.NotNil(t, body)
	assert.Equal(t, "success", body["status"])
	assert.EqualValues(t, 2, body["application_number"])
	assert.Equal(t, 1, h.launcher.Launches())
}

func TestApply_LaunchFailed(t *testing.T) {
	h := newHarness(t, nil)
	h.launcher.LaunchErr = errors.New("exec: chrome not found")

	resp, body := h.post(t, "/apply", `{"job_url":"`+jobURL+`"}`)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["message"], "browser launch failed")
}

func TestApply_WorkflowFailureReturns200(t *testing.T) {
	h := newHarness(t, nil)
	h.launcher.PageFactory = func() *mocks.FakePage {
		p := mocks.SitePage(h.cfg.Site)
		p.Hide(h.cfg.Site.SubmitButton.Selector)
		return p
	}

	resp, body := h.post(t, "/apply", `{"job_url":"`+jobURL+`"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, "click_submit", body["failed_step"])
	assert.NotEmpty(t, body["screenshot"])
	assert.NotContains(t, body, "application_number")
}

func TestHealth_Initial(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.get(t, "/health")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{
		"status":               "running",
		"headless":             true,
		"reuse_session":        true,
		"applications_count":   float64(0),
		"last_application":     nil,
		"last_attempt":         nil,
		"session_state":        "absent",
		"session_applications": float64(0),
	}, body)
}

func TestReset(t *testing.T) {
	h := newHarness(t, nil)
	h.post(t, "/apply", `{"job_url":"`+jobURL+`"}`)

	for i := 0; i < 2; i++ {
		resp, body := h.post(t, "/reset", ``)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, map[string]any{"status": "success"}, body)
	}

	_, health := h.get(t, "/health")
	assert.EqualValues(t, 0, health["applications_count"])
	assert.Equal(t, "absent", health["session_state"])
	assert.Nil(t, health["last_application"])
	assert.NotNil(t, health["last_attempt"], "reset keeps the pacing clock")
	assert.True(t, h.launcher.Browsers()[0].Closed())
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	h.get(t, "/health")

	resp, err := http.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `autoapply_http_requests_total{code="200",route="/health"}`)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHarness(t, nil)
	resp, err := http.Get(h.srv.URL + "/apply")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// stubApplier returns canned answers.
type stubApplier struct {
	err   error
	calls int
}

func (s *stubApplier) Apply(_ context.Context, jobURL string) (workflow.Result, error) {
	s.calls++
	if s.err != nil {
		return workflow.Result{}, s.err
	}
	return workflow.Result{Status: workflow.StatusSuccess, JobURL: jobURL}, nil
}

func (s *stubApplier) Health() service.Health { return service.Health{Status: "running"} }

func (s *stubApplier) Reset(context.Context) {}

func serve(t *testing.T, cfg config.ServerConfig, a Applier, logger *zap.Logger) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(cfg, a, logger).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestApply_Busy(t *testing.T) {
	srv := serve(t, config.NewDefaultConfig().Server, &stubApplier{err: service.ErrBusy}, zap.NewNop())

	resp, err := http.Post(srv.URL+"/apply", "application/json", strings.NewReader(`{"job_url":"`+jobURL+`"}`))
	require.NoError(t, err)
	body := decode(t, resp)

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, service.ErrBusy.Error(), body["message"])
}

func TestApply_RateLimited(t *testing.T) {
	cfg := config.NewDefaultConfig().Server
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1}
	stub := &stubApplier{}
	srv := serve(t, cfg, stub, zap.NewNop())

	post := func() *http.Response {
		resp, err := http.Post(srv.URL+"/apply", "application/json", bytes.NewBufferString(`{"job_url":"`+jobURL+`"}`))
		require.NoError(t, err)
		decode(t, resp)
		return resp
	}

	assert.Equal(t, http.StatusOK, post().StatusCode)
	second := post()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.Equal(t, "0", second.Header.Get("X-RateLimit-Remaining"))
	assert.Equal(t, 1, stub.calls)

	// Health is never throttled.
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestIDAndAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	srv := serve(t, config.NewDefaultConfig().Server, &stubApplier{}, zap.New(core))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "req-42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get(RequestIDHeader))

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	minted := resp.Header.Get(RequestIDHeader)
	assert.Len(t, minted, 36)

	entries := logs.FilterMessage("Request handled.").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-42", entries[0].ContextMap()["request_id"])
	assert.Equal(t, minted, entries[1].ContextMap()["request_id"])
	assert.EqualValues(t, http.StatusOK, entries[1].ContextMap()["status"])
}

func TestServer_ServeAndShutdown(t *testing.T) {
	cfg := config.NewDefaultConfig().Server
	cfg.ShutdownTimeout = 2 * time.Second
	s := NewServer(cfg, &stubApplier{}, zap.NewNop())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
