package events

import (
	"encoding/json"
	"time"
)

// Tipos de evento publicados no tópico market_events.
const (
	TypeEventCreated  = "event.created"
	TypeEventDeleted  = "event.deleted"
	TypeEventResolved = "event.resolved"
	TypeBetPlaced     = "bet.placed"
)

// Envelope é o formato de toda mensagem no tópico market_events.
// Payload carrega uma das structs de market.go, conforme Type.
type Envelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	EventID string          `json:"event_id"`
	Payload json.RawMessage `json:"payload"`
	Ts      time.Time       `json:"ts"`
}
