// Package hub fans gifter updates out to connected overlay clients over
// WebSockets. Delivery is fire-and-forget, at most once per update.
package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brandondunbar/GiftSubTracker/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	maxClientsPerTenant = 50
	pingInterval        = 30 * time.Second
	writeTimeout        = 5 * time.Second
	sendBufferSize      = 16
)

// updateEventName is the single named event carried to browser clients.
const updateEventName = "update_gifters"

type tenantClients map[*websocket.Conn]*clientWriter

// --- Command types ---

type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	tenantID     string
	connection   *websocket.Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseHubCmd
	tenantID   string
	connection *websocket.Conn
}

type publishCmd struct {
	baseHubCmd
	tenantID string
	data     []byte
}

type clientCountCmd struct {
	baseHubCmd
	tenantID     string
	replyChannel chan int
}

type stopCmd struct {
	baseHubCmd
}

// --- Per-connection writer ---

type clientWriter struct {
	conn        *websocket.Conn
	sendChannel chan []byte
	pingChannel chan struct{}
	done        chan struct{}
}

func newClientWriter(conn *websocket.Conn) *clientWriter {
	cw := &clientWriter{
		conn:        conn,
		sendChannel: make(chan []byte, sendBufferSize),
		pingChannel: make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	for {
		select {
		case msg, ok := <-cw.sendChannel:
			if !ok {
				return
			}
			cw.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-cw.pingChannel:
			if err := cw.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-cw.done:
			return
		}
	}
}

func (cw *clientWriter) stop() {
	close(cw.done)
	cw.conn.Close()
}

// --- Hub ---

// Hub is a single-goroutine actor owning all client state. Commands arrive on
// a channel; a ping ticker keeps idle connections alive.
type Hub struct {
	cmdCh   chan hubCmd
	clock   clockwork.Clock
	clients map[string]tenantClients
}

func NewHub(clock clockwork.Clock) *Hub {
	h := &Hub{
		cmdCh:   make(chan hubCmd, 256),
		clock:   clock,
		clients: make(map[string]tenantClients),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	ticker := h.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				h.handleRegister(c)
			case unregisterCmd:
				h.handleUnregister(c.tenantID, c.connection)
			case publishCmd:
				h.handlePublish(c)
			case clientCountCmd:
				c.replyChannel <- len(h.clients[c.tenantID])
			case stopCmd:
				h.handleStop()
				return
			default:
				slog.Warn("Hub: unknown command type", "type", fmt.Sprintf("%T", cmd))
			}
		case <-ticker.Chan():
			h.handlePingTick()
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	clients, exists := h.clients[c.tenantID]
	if !exists {
		clients = make(tenantClients)
		h.clients[c.tenantID] = clients
	}

	if len(clients) >= maxClientsPerTenant {
		slog.Warn("Rejecting client: max clients reached", "tenant_id", c.tenantID, "max", maxClientsPerTenant)
		c.connection.Close()
		c.errorChannel <- fmt.Errorf("max clients per tenant (%d) reached", maxClientsPerTenant)
		return
	}

	clients[c.connection] = newClientWriter(c.connection)
	slog.Info("Viewer connected", "tenant_id", c.tenantID, "total", len(clients))
	c.errorChannel <- nil
}

func (h *Hub) handleUnregister(tenantID string, conn *websocket.Conn) {
	clients, exists := h.clients[tenantID]
	if !exists {
		return
	}

	cw, exists := clients[conn]
	if !exists {
		return
	}

	cw.stop()
	delete(clients, conn)

	if len(clients) == 0 {
		delete(h.clients, tenantID)
	}
	slog.Info("Viewer disconnected", "tenant_id", tenantID, "remaining", len(clients))
}

func (h *Hub) handlePublish(c publishCmd) {
	clients, exists := h.clients[c.tenantID]
	if !exists {
		return
	}

	var slow []*websocket.Conn
	for conn, writer := range clients {
		select {
		case writer.sendChannel <- c.data:
		default:
			slow = append(slow, conn)
		}
	}

	for _, conn := range slow {
		slog.Warn("Disconnecting slow client", "tenant_id", c.tenantID)
		h.handleUnregister(c.tenantID, conn)
	}
}

func (h *Hub) handlePingTick() {
	for _, clients := range h.clients {
		for _, writer := range clients {
			select {
			case writer.pingChannel <- struct{}{}:
			default:
			}
		}
	}
}

func (h *Hub) handleStop() {
	for tenantID, clients := range h.clients {
		for _, cw := range clients {
			cw.stop()
		}
		delete(h.clients, tenantID)
	}
}

// --- Public API ---

// Register adds a viewer connection for a tenant.
func (h *Hub) Register(tenantID string, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	h.cmdCh <- registerCmd{tenantID: tenantID, connection: conn, errorChannel: errCh}
	return <-errCh
}

// Unregister removes a viewer connection.
func (h *Hub) Unregister(tenantID string, conn *websocket.Conn) {
	h.cmdCh <- unregisterCmd{tenantID: tenantID, connection: conn}
}

// PublishGifterUpdate implements domain.UpdatePublisher. The update is
// dropped, with a log line, if the hub cannot keep up.
func (h *Hub) PublishGifterUpdate(tenantID string, update domain.GifterUpdate) {
	data, err := json.Marshal(map[string]any{
		"event": updateEventName,
		"data":  update,
	})
	if err != nil {
		slog.Error("Failed to marshal gifter update", "tenant_id", tenantID, "error", err)
		return
	}

	select {
	case h.cmdCh <- publishCmd{tenantID: tenantID, data: data}:
	default:
		slog.Warn("Hub command queue full, dropping update", "tenant_id", tenantID)
	}
}

// ClientCount returns the number of connected viewers for a tenant.
func (h *Hub) ClientCount(tenantID string) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- clientCountCmd{tenantID: tenantID, replyChannel: replyCh}
	return <-replyCh
}

// Stop shuts the hub down, closing all client connections.
func (h *Hub) Stop() {
	h.cmdCh <- stopCmd{}
}
