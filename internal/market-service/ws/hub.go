package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/prediction-market-poc/pkg/contracts/events"
)

const writeWait = 5 * time.Second

// client serializa escritas: gorilla não aceita writers concorrentes na mesma conexão
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *client) writeRaw(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub gerencia conexões WebSocket e assinaturas por evento
// subs: mapeia eventID para o conjunto de clientes inscritos
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{}

	OnBroadcast func(delivered int)
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool, log *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
// Permite subscribe/unsubscribe em eventos e responde a pings
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}
	defer func() {
		h.drop(c)
		_ = conn.Close()
	}()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			if msg.EventID == "" {
				_ = c.writeJSON(map[string]string{"type": "error", "error": "eventId required"})
				continue
			}
			h.mu.Lock()
			if _, ok := h.subs[msg.EventID]; !ok {
				h.subs[msg.EventID] = make(map[*client]struct{})
			}
			h.subs[msg.EventID][c] = struct{}{}
			h.mu.Unlock()
			_ = c.writeJSON(map[string]string{"type": "subscribed", "eventId": msg.EventID})
		case "unsubscribe":
			h.mu.Lock()
			if m, ok := h.subs[msg.EventID]; ok {
				delete(m, c)
				if len(m) == 0 {
					delete(h.subs, msg.EventID)
				}
			}
			h.mu.Unlock()
		case "ping":
			_ = c.writeJSON(map[string]string{"type": "pong"})
		}
	}
}

// remove a conexão de todas as assinaturas ao desconectar
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
}

// Broadcast envia a atualização para os inscritos no evento e para quem assinou "*"
func (h *Hub) Broadcast(update events.MarketUpdate) int {
	h.mu.RLock()
	targets := make(map[*client]struct{})
	for c := range h.subs[update.EventID] {
		targets[c] = struct{}{}
	}
	for c := range h.subs[AllEvents] {
		targets[c] = struct{}{}
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return 0
	}

	b, err := json.Marshal(update)
	if err != nil {
		h.log.Warn("ws marshal failed", zap.Error(err))
		return 0
	}
	delivered := 0
	for c := range targets {
		if err := c.writeRaw(b); err != nil {
			h.log.Debug("ws write failed", zap.Error(err))
			continue
		}
		delivered++
	}
	if h.OnBroadcast != nil {
		h.OnBroadcast(delivered)
	}
	return delivered
}

// Subscribers conta conexões distintas com alguma assinatura
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[*client]struct{})
	for _, set := range h.subs {
		for c := range set {
			seen[c] = struct{}{}
		}
	}
	return len(seen)
}
