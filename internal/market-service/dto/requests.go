package dto

// PlaceBetRequest traz o snapshot que o cliente viu; o servidor confere contra o evento atual
type PlaceBetRequest struct {
	EventID       string   `json:"eventId" validate:"required"`
	EventName     string   `json:"eventName" validate:"required"`
	EventCategory string   `json:"eventCategory" validate:"required"`
	EventDate     string   `json:"eventDate" validate:"required"`
	OutcomeID     string   `json:"outcomeId" validate:"required"`
	OutcomeName   string   `json:"outcomeName" validate:"required"`
	Odds          *float64 `json:"odds" validate:"required,gt=0"` // odd que o cliente viu
}

type OutcomeRequest struct {
	Name string   `json:"name" validate:"required"`
	Odds *float64 `json:"odds,omitempty" validate:"omitempty,gt=0"` // vazio = odd balanceada
}

type CreateEventRequest struct {
	Name     string           `json:"name" validate:"required,max=255"`
	Date     string           `json:"date" validate:"required"` // RFC3339
	Category string           `json:"category" validate:"required,oneof=Foosball Pool Poker 'Table Tennis' Other"`
	Outcomes []OutcomeRequest `json:"outcomes" validate:"required,min=2,dive"`
}

type ResolveEventRequest struct {
	OutcomeID string `json:"outcomeId" validate:"required"`
}

type DepositRequest struct {
	Email  string   `json:"email" validate:"required,email"`
	Amount *float64 `json:"amount" validate:"required,gt=0"`
	Ref    string   `json:"ref,omitempty"`
}
