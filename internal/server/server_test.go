package server

import (
	"context"
	"html/template"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/brandondunbar/GiftSubTracker/internal/adapter/metrics"
	"github.com/brandondunbar/GiftSubTracker/internal/adapter/twitch"
	"github.com/brandondunbar/GiftSubTracker/internal/domain"
	"github.com/brandondunbar/GiftSubTracker/internal/ingest"
	"github.com/brandondunbar/GiftSubTracker/internal/platform/config"
	"github.com/gorilla/sessions"
	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "test-webhook-secret-1234567890"

// --- Fakes ---

type fakeIdentity struct {
	validTokens map[string]bool
	authorized  map[string][2]string // code -> (token, broadcasterID)
	authErr     error
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		validTokens: map[string]bool{},
		authorized:  map[string][2]string{},
	}
}

func (f *fakeIdentity) IsAccessTokenValid(_ context.Context, token string) bool {
	return f.validTokens[token]
}

func (f *fakeIdentity) AuthURL(state string) string {
	return "https://id.twitch.tv/oauth2/authorize?state=" + state
}

func (f *fakeIdentity) HandleAuthorized(_ context.Context, code string) (string, string, error) {
	if f.authErr != nil {
		return "", "", f.authErr
	}
	result, ok := f.authorized[code]
	if !ok {
		return "", "", &domain.AuthError{Description: "Invalid authorization code"}
	}
	return result[0], result[1], nil
}

type fakeRegistry struct {
	mu      sync.Mutex
	ledgers map[string]*memLedger
	pingErr error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{ledgers: make(map[string]*memLedger)}
}

func (f *fakeRegistry) Resolve(_ context.Context, tenantID string) (domain.LedgerStore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ledger, ok := f.ledgers[tenantID]
	if !ok {
		ledger = &memLedger{}
		f.ledgers[tenantID] = ledger
	}
	return ledger, nil
}

func (f *fakeRegistry) Ping(_ context.Context) error { return f.pingErr }

type memLedger struct {
	mu   sync.Mutex
	rows []map[string]string
}

func (m *memLedger) Rows(_ context.Context) ([]domain.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Row, len(m.rows))
	for i, cells := range m.rows {
		out[i] = domain.Row{Number: i + 2, Cells: cells}
	}
	return out, nil
}

func (m *memLedger) FindRow(_ context.Context, column, value string) (domain.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cells := range m.rows {
		if cells[column] == value {
			return domain.Row{Number: i + 2, Cells: cells}, nil
		}
	}
	return domain.Row{}, domain.ErrRowNotFound
}

func (m *memLedger) Upsert(_ context.Context, cells map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.rows {
		if existing[domain.ColUserID] == cells[domain.ColUserID] {
			m.rows[i] = cells
			return nil
		}
	}
	m.rows = append(m.rows, cells)
	return nil
}

func (m *memLedger) Schema() []string { return domain.LedgerSchema }

type fakeIngest struct {
	mu      sync.Mutex
	calls   []string // tenant ids
	outcome ingest.Outcome
	err     error
}

func (f *fakeIngest) Handle(_ context.Context, tenantID string, _ ingest.Payload) (ingest.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tenantID)
	return f.outcome, f.err
}

func (f *fakeIngest) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeHub struct {
	mu      sync.Mutex
	updates map[string][]domain.GifterUpdate
}

func newFakeHub() *fakeHub {
	return &fakeHub{updates: make(map[string][]domain.GifterUpdate)}
}

func (f *fakeHub) Register(string, *gorillaws.Conn) error { return nil }

func (f *fakeHub) Unregister(string, *gorillaws.Conn) {}

func (f *fakeHub) PublishGifterUpdate(tenantID string, update domain.GifterUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[tenantID] = append(f.updates[tenantID], update)
}

// --- Test harness ---

type testServer struct {
	srv      *Server
	identity *fakeIdentity
	registry *fakeRegistry
	ingest   *fakeIngest
	hub      *fakeHub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		AppEnv:        "development",
		Port:          "8080",
		WebhookSecret: testWebhookSecret,
		SessionSecret: "session-secret-123",
		DomainName:    "https://www.giftsubtracker.com",
	}

	identity := newFakeIdentity()
	registry := newFakeRegistry()
	ingestHdlr := &fakeIngest{}
	liveHub := newFakeHub()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	promRegistry := metrics.NewRegistry()
	tmpl := template.Must(template.New("index.html").Parse(
		`{{if .Authorized}}authorized {{len .Gifters}} gifters{{else}}please authorize{{end}}`))

	srv := &Server{
		echo:           e,
		config:         cfg,
		identity:       identity,
		registry:       registry,
		ingest:         ingestHdlr,
		verifier:       twitch.NewVerifier(cfg.WebhookSecret),
		hub:            liveHub,
		sessionStore:   sessions.NewCookieStore([]byte(cfg.SessionSecret)),
		indexTemplate:  tmpl,
		upgrader: gorillaws.Upgrader{
			CheckOrigin: newCheckOrigin(cfg.DomainName, cfg.AppEnv != "production"),
		},
		metricsHandler: metrics.Handler(promRegistry),
		webhookMetrics: metrics.NewWebhookMetrics(promRegistry),
		ledgerMetrics:  metrics.NewLedgerMetrics(promRegistry),
		startTime:      time.Now(),
	}
	srv.registerRoutes()

	return &testServer{
		srv:      srv,
		identity: identity,
		registry: registry,
		ingest:   ingestHdlr,
		hub:      liveHub,
	}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.srv.echo.ServeHTTP(rec, req)
	return rec
}

// login runs the OAuth callback flow and returns the session cookies.
func (ts *testServer) login(t *testing.T, broadcasterID string) []*http.Cookie {
	t.Helper()

	ts.identity.authorized["code-1"] = [2]string{"user-token", broadcasterID}
	ts.identity.validTokens["user-token"] = true

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/authorize", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	location, err := rec.Result().Location()
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	req := httptest.NewRequest(http.MethodGet, "/webhook?code=code-1&state="+state, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = ts.do(req)
	require.Equal(t, http.StatusFound, rec.Code)

	return rec.Result().Cookies()
}
