// Package server wires the HTTP surface: pages, OAuth redirect handling, the
// EventSub webhook endpoint, and the viewer WebSocket.
package server

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/brandondunbar/GiftSubTracker/internal/adapter/metrics"
	"github.com/brandondunbar/GiftSubTracker/internal/adapter/twitch"
	"github.com/brandondunbar/GiftSubTracker/internal/domain"
	"github.com/brandondunbar/GiftSubTracker/internal/ingest"
	"github.com/brandondunbar/GiftSubTracker/internal/platform/config"
	"github.com/gorilla/sessions"
	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	slogecho "github.com/samber/slog-echo"
)

const (
	sessionName           = "giftsubtracker_session"
	sessionKeyToken       = "access_token"
	sessionKeyBroadcaster = "broadcaster_id"
	sessionKeyOAuthState  = "oauth_state"

	sessionMaxAgeDays = 7
)

// identityService is the slice of the Twitch identity client the server uses.
type identityService interface {
	IsAccessTokenValid(ctx context.Context, token string) bool
	AuthURL(state string) string
	HandleAuthorized(ctx context.Context, code string) (accessToken, broadcasterID string, err error)
}

// ledgerRegistry resolves tenant ledgers and reports store reachability.
type ledgerRegistry interface {
	Resolve(ctx context.Context, tenantID string) (domain.LedgerStore, error)
	Ping(ctx context.Context) error
}

// ingestHandler processes parsed webhook envelopes.
type ingestHandler interface {
	Handle(ctx context.Context, tenantID string, payload ingest.Payload) (ingest.Outcome, error)
}

// liveHub manages viewer connections and carries gifter updates to them.
type liveHub interface {
	Register(tenantID string, conn *gorillaws.Conn) error
	Unregister(tenantID string, conn *gorillaws.Conn)
	PublishGifterUpdate(tenantID string, update domain.GifterUpdate)
}

type Server struct {
	echo     *echo.Echo
	config   *config.Config
	identity identityService
	registry ledgerRegistry
	ingest   ingestHandler
	verifier *twitch.Verifier
	hub      liveHub

	sessionStore  *sessions.CookieStore
	indexTemplate *template.Template
	upgrader      gorillaws.Upgrader

	metricsHandler http.Handler
	webhookMetrics *metrics.WebhookMetrics
	ledgerMetrics  *metrics.LedgerMetrics

	startTime time.Time
}

func NewServer(cfg *config.Config, identity identityService, reg ledgerRegistry, ingestHdlr ingestHandler, verifier *twitch.Verifier, hub liveHub, promRegistry *prometheus.Registry) (*Server, error) {
	indexTmpl, err := template.ParseFiles("web/templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse index template: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(slogecho.New(slog.Default()))

	httpMetrics := metrics.NewHTTPMetrics(promRegistry)
	e.Use(httpMetrics.Middleware())

	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * sessionMaxAgeDays,
		HttpOnly: true,
		Secure:   cfg.AppEnv == "production",
		SameSite: http.SameSiteLaxMode,
	}

	srv := &Server{
		echo:           e,
		config:         cfg,
		identity:       identity,
		registry:       reg,
		ingest:         ingestHdlr,
		verifier:       verifier,
		hub:            hub,
		sessionStore:   sessionStore,
		indexTemplate:  indexTmpl,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     newCheckOrigin(cfg.DomainName, cfg.AppEnv != "production"),
		},
		metricsHandler: metrics.Handler(promRegistry),
		webhookMetrics: metrics.NewWebhookMetrics(promRegistry),
		ledgerMetrics:  metrics.NewLedgerMetrics(promRegistry),
		startTime:      time.Now(),
	}

	srv.registerRoutes()

	return srv, nil
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// LedgersProvisionedCounter exposes the provisioning counter so main can hook
// it into the registry's OnProvision callback.
func (s *Server) LedgersProvisionedCounter() prometheus.Counter {
	return s.ledgerMetrics.LedgersProvisioned
}

// renderTemplate renders a template to a buffer first to prevent partial HTML
// from being sent if template execution fails.
func renderTemplate(c echo.Context, tmpl *template.Template, data any) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		slog.Error("Template execution failed", "path", c.Request().URL.Path, "error", err)
		return c.String(http.StatusInternalServerError, "Failed to render page")
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}
