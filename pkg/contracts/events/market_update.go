package events

import "encoding/json"

// MarketUpdate é o formato publicado no canal Redis e repassado aos clientes WebSocket
type MarketUpdate struct {
	Type    string          `json:"type"`
	EventID string          `json:"eventId"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
