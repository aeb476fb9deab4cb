package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/prediction-market-poc/internal/market-service/auth"
	"github.com/radieske/prediction-market-poc/internal/market-service/betting"
	"github.com/radieske/prediction-market-poc/internal/market-service/catalog"
	"github.com/radieske/prediction-market-poc/internal/market-service/dto"
	"github.com/radieske/prediction-market-poc/internal/market-service/settlement"
	"github.com/radieske/prediction-market-poc/internal/market-service/wallet"
)

// EventCache é o cache de leitura do catálogo (Redis em produção)
type EventCache interface {
	GetList(ctx context.Context, dst any) (bool, error)
	SetList(ctx context.Context, v any) error
	GetEvent(ctx context.Context, eventID string, dst any) (bool, error)
	SetEvent(ctx context.Context, eventID string, v any) error
	Invalidate(ctx context.Context, eventID string)
}

type Deps struct {
	Log      *zap.Logger
	Auth     *auth.Verifier
	Catalog  *catalog.Service
	Placer   *betting.Placer
	Engine   *settlement.Engine
	Wallet   *wallet.Service
	Cache    EventCache   // opcional
	WS       http.Handler // opcional, GET /ws
	BetStake decimal.Decimal

	// métricas por rota
	Observe func(method, route string, status int, took time.Duration)
}

// Server expõe a API REST do market-service
type Server struct {
	Deps
	validate *validator.Validate
}

func NewServer(d Deps) *Server {
	v := validator.New(validator.WithRequiredStructEnabled())
	// mensagens de erro usam o nome do campo JSON
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Server{Deps: d, validate: v}
}

// Router retorna o roteador HTTP com os endpoints REST
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/events", s.listEvents)
	r.Get("/events/{id}", s.getEvent)
	if s.WS != nil {
		r.Handle("/ws", s.WS)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.requireIdentity)

		r.Post("/bet", s.placeBet)
		r.Get("/bets", s.listBets)
		r.Get("/user", s.getUser)
		r.Post("/user", s.provisionUser)
		r.Get("/user/ledger", s.ledger)

		r.Post("/events", s.createEvent)
		r.Delete("/events/{id}", s.deleteEvent)
		r.Post("/events/{id}/resolve", s.resolveEvent)

		r.Post("/wallet/deposit", s.deposit)
	})
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}

// writeDomainErr traduz erros de domínio para status HTTP
func (s *Server) writeDomainErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, betting.ErrUserNotFound), errors.Is(err, wallet.ErrUserNotFound):
		writeErr(w, http.StatusNotFound, "User not found")
	case errors.Is(err, betting.ErrEventNotFound), errors.Is(err, settlement.ErrEventNotFound),
		errors.Is(err, catalog.ErrNotFound):
		writeErr(w, http.StatusNotFound, "Event not found")
	case errors.Is(err, betting.ErrOutcomeNotFound):
		writeErr(w, http.StatusNotFound, "Outcome not found")

	case errors.Is(err, betting.ErrEventAlreadyResolved), errors.Is(err, settlement.ErrAlreadyResolved):
		writeErr(w, http.StatusConflict, "Event already resolved")
	case errors.Is(err, betting.ErrOddsChanged):
		writeErr(w, http.StatusConflict, "Odds changed, refresh the event and try again")
	case errors.Is(err, catalog.ErrEventHasBets):
		writeErr(w, http.StatusConflict, "Event has bets and cannot be deleted")

	case errors.Is(err, betting.ErrInsufficientFunds):
		writeErr(w, http.StatusBadRequest, "Insufficient funds")
	case errors.Is(err, settlement.ErrInvalidOutcome):
		writeErr(w, http.StatusBadRequest, "Outcome does not belong to this event")
	case errors.Is(err, betting.ErrInvalidStake), errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, catalog.ErrInvalidEvent), errors.Is(err, catalog.ErrInvalidCategory):
		writeErr(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, catalog.ErrForbidden), errors.Is(err, errForbidden):
		writeErr(w, http.StatusForbidden, "Forbidden")

	default:
		s.Log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeErr(w, http.StatusInternalServerError, "Internal server error")
	}
}

var errForbidden = errors.New("forbidden")

func (s *Server) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.Auth.FromRequest(r)
		if err != nil {
			if !errors.Is(err, auth.ErrNoSession) {
				s.Log.Debug("session rejected", zap.Error(err))
			}
			writeErr(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

func identity(r *http.Request) *auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		took := time.Since(start)
		s.Log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", ww.Status()),
			zap.Duration("took", took),
		)
		if s.Observe != nil {
			s.Observe(r.Method, route, ww.Status(), took)
		}
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// validationMsg resume os campos que falharam na validação
func validationMsg(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" ("+fe.Tag()+")")
	}
	return "Invalid fields: " + strings.Join(fields, ", ")
}
