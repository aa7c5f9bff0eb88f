package server

import "github.com/labstack/echo/v4"

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))

	// Home page with the gifter table
	s.echo.GET("/", s.handleHome)

	// OAuth: kick-off redirect and the Twitch redirect callback
	s.echo.GET("/authorize", s.handleAuthorize)
	s.echo.GET("/webhook", s.handleOAuthCallback)

	// EventSub deliveries from Twitch (signature-checked, no session)
	s.echo.POST("/webhook", s.handleWebhookPost)

	// Manual ledger operations for the logged-in broadcaster
	s.echo.POST("/giftedsubs", s.handleGiftedSubs)
	s.echo.POST("/reward", s.handleReward)

	// Live updates for overlay clients
	s.echo.GET("/ws", s.handleWebSocket)
}
