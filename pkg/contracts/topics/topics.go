package topics

const (
	// Market changes (events created/deleted/resolved, bets placed)
	MarketEvents = "market_events"

	// DLQs
	MarketEventsDLQ = "market_events_dlq"

	// Redis pub/sub channel consumed by the websocket hub
	MarketUpdatesChannel = "market_updates"
)
