package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/radieske/roulette-vrf-client/pkg/contracts/events"
)

// Hub gerencia conexões WebSocket e assinaturas por endereço de aposta
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	// wager -> conexões inscritas
	subs map[string]map[*conn]struct{}
}

// conn serializa as escritas; gorilla não aceita escritores concorrentes
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

func (c *conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*conn]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket.
// Cada cliente pode acompanhar várias apostas.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	wsc, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &conn{ws: wsc}
	defer wsc.Close()

	for {
		var msg ClientMsg
		if err := wsc.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			if msg.Wager == "" {
				continue
			}
			h.mu.Lock()
			if _, ok := h.subs[msg.Wager]; !ok {
				h.subs[msg.Wager] = make(map[*conn]struct{})
			}
			h.subs[msg.Wager][c] = struct{}{}
			h.mu.Unlock()
			_ = c.writeJSON(map[string]string{"type": "subscribed", "wager": msg.Wager})
		case "unsubscribe":
			h.unsubscribe(msg.Wager, c)
		case "ping":
			_ = c.writeJSON(map[string]string{"type": "pong"})
		}
	}
	// Remove a conexão de todas as assinaturas ao desconectar
	h.mu.Lock()
	for wager, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, wager)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) unsubscribe(wager string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.subs[wager]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, wager)
		}
	}
}

// Subscribers informa quantas conexões acompanham a aposta
func (h *Hub) Subscribers(wager string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[wager])
}

// Broadcast envia o status para os clientes inscritos na aposta
func (h *Hub) Broadcast(update events.WagerStatus) {
	h.mu.RLock()
	set := h.subs[update.Wager]
	conns := make([]*conn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	b, _ := json.Marshal(update)
	for _, c := range conns {
		_ = c.write(b)
	}
}
