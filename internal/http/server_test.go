package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/amqp"
	"gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/middleware/ratelimit"
	"gastos/internal/middleware/security"
	"gastos/internal/telegram"
)

const startUpdate = `{"update_id":1,"message":{"message_id":1,"date":0,"text":"/start","chat":{"id":42,"type":"private"},"from":{"id":7,"is_bot":false,"first_name":"Ana"},"entities":[{"type":"bot_command","offset":0,"length":6}]}}`

type fakeBot struct {
	mu   sync.Mutex
	cmds []telegram.Command
	err  error
}

func (f *fakeBot) Handle(_ context.Context, cmd telegram.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	return f.err
}

func (f *fakeBot) Commands() []telegram.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]telegram.Command(nil), f.cmds...)
}

type fakePublisher struct {
	reqs []*amqp.ReportRequest
	err  error
}

func (f *fakePublisher) PublishReportRequest(_ context.Context, req *amqp.ReportRequest) error {
	if f.err != nil {
		return f.err
	}
	f.reqs = append(f.reqs, req)
	return nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func newTestServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	return NewServer(opts)
}

func do(s *Server, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func TestWebhookDispatchesCommand(t *testing.T) {
	bot := &fakeBot{}
	s := newTestServer(Options{Bot: bot})

	rec := do(s, http.MethodPost, "/telegram/webhook", startUpdate, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	cmds := bot.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, telegram.KindStart, cmds[0].Kind)
	assert.Equal(t, int64(42), cmds[0].ChatID)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	tests := []struct {
		name string
		body string
		bot  *fakeBot
	}{
		{name: "plain text is ignored", body: `{"update_id":2,"message":{"message_id":2,"date":0,"text":"hola","chat":{"id":42,"type":"private"}}}`, bot: &fakeBot{}},
		{name: "malformed json", body: `{"update_id":`, bot: &fakeBot{}},
		{name: "handler error", body: startUpdate, bot: &fakeBot{err: errors.New("boom")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(Options{Bot: tt.bot})
			rec := do(s, http.MethodPost, "/telegram/webhook", tt.body, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestWebhookSecretEnforced(t *testing.T) {
	bot := &fakeBot{}
	s := newTestServer(Options{Bot: bot, WebhookSecret: "s3cret"})

	rec := do(s, http.MethodPost, "/telegram/webhook", startUpdate, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, bot.Commands())

	rec = do(s, http.MethodPost, "/telegram/webhook", startUpdate, map[string]string{security.WebhookSecretHeader: "s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, bot.Commands(), 1)
}

func TestWebhookRateLimited(t *testing.T) {
	s := newTestServer(Options{Bot: &fakeBot{}, RateLimit: ratelimit.Config{RequestsPerMinute: 1}})

	assert.Equal(t, http.StatusOK, do(s, http.MethodPost, "/telegram/webhook", startUpdate, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(s, http.MethodPost, "/telegram/webhook", startUpdate, nil).Code)
}

func TestWebhookRejectsGet(t *testing.T) {
	s := newTestServer(Options{Bot: &fakeBot{}})
	rec := do(s, http.MethodGet, "/telegram/webhook", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRunReport(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestServer(Options{Bot: &fakeBot{}, Publisher: pub})

	rec := do(s, http.MethodPost, "/reports/run", `{"period":"2024-01","force":true}`, nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, pub.reqs, 1)
	assert.Equal(t, "2024-01", pub.reqs[0].Period)
	assert.True(t, pub.reqs[0].Force)
	assert.Equal(t, "http", pub.reqs[0].RequestedBy)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "queued", body["status"])
}

func TestRunReportEmptyBody(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestServer(Options{Publisher: pub})

	rec := do(s, http.MethodPost, "/reports/run", "", nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, pub.reqs, 1)
	assert.Empty(t, pub.reqs[0].Period)
	assert.False(t, pub.reqs[0].Force)
}

func TestRunReportErrors(t *testing.T) {
	tests := []struct {
		name string
		pub  ReportPublisher
		body string
		want int
	}{
		{name: "no queue", pub: nil, body: "", want: http.StatusServiceUnavailable},
		{name: "bad json", pub: &fakePublisher{}, body: "{", want: http.StatusBadRequest},
		{name: "bad period", pub: &fakePublisher{}, body: `{"period":"2024-13"}`, want: http.StatusBadRequest},
		{name: "circuit open", pub: &fakePublisher{err: amqp.ErrCircuitOpen}, body: "", want: http.StatusServiceUnavailable},
		{name: "broker error", pub: &fakePublisher{err: errors.New("channel closed")}, body: "", want: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(Options{Publisher: tt.pub})
			rec := do(s, http.MethodPost, "/reports/run", tt.body, nil)
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestRunReportRequiresToken(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestServer(Options{Publisher: pub, ReportsToken: "tok"})

	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodPost, "/reports/run", "", nil).Code)
	assert.Equal(t, http.StatusAccepted, do(s, http.MethodPost, "/reports/run", "", map[string]string{"Authorization": "Bearer tok"}).Code)
	assert.Len(t, pub.reqs, 1)
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(Options{Store: fakePinger{}})

	rec := do(s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = do(s, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store":"ok"`)
	assert.Contains(t, rec.Body.String(), `"queue":"not_configured"`)
}

func TestReadyReportsStoreFailure(t *testing.T) {
	s := newTestServer(Options{Store: fakePinger{err: errors.New("connection refused")}})
	rec := do(s, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_ready")
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.CommandHandled("start")
	s := newTestServer(Options{Metrics: m})

	rec := do(s, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gastos_bot_commands_total")
}

func TestMetricsDisabled(t *testing.T) {
	s := newTestServer(Options{})
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/metrics", "", nil).Code)
}

func TestProbeRejected(t *testing.T) {
	s := newTestServer(Options{})
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/.git/config", "", nil).Code)
}

func TestShutdownIdempotent(t *testing.T) {
	s := newTestServer(Options{})
	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, s.Shutdown(context.Background()))
}
