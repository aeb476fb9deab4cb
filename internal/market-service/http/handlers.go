package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/prediction-market-poc/internal/market-service/betting"
	"github.com/radieske/prediction-market-poc/internal/market-service/catalog"
	"github.com/radieske/prediction-market-poc/internal/market-service/dto"
	"github.com/radieske/prediction-market-poc/internal/market-service/repo"
)

// placeBet cria uma aposta com custo fixo para o usuário autenticado
func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Odds != nil && *req.Odds <= 0 {
		writeErr(w, http.StatusBadRequest, "Odds must be a positive number")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeErr(w, http.StatusBadRequest,
			"Missing required fields. Required: eventId, eventName, eventCategory, eventDate, outcomeId, outcomeName, odds")
		return
	}

	user, err := s.Wallet.GetUserByEmail(r.Context(), identity(r).Email)
	if err != nil {
		s.writeDomainErr(w, r, err)
		return
	}

	// a odd do cliente só serve de conferência; vale o snapshot do servidor
	seen := decimal.NewFromFloat(*req.Odds)
	res, err := s.Placer.PlaceBet(r.Context(), betting.PlaceInput{
		UserID:       user.ID,
		EventID:      req.EventID,
		OutcomeID:    req.OutcomeID,
		Stake:        s.BetStake,
		ExpectedOdds: &seen,
	})
	if err != nil {
		s.writeDomainErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.PlaceBetResponse{
		Success: true,
		Bet:     dto.Bet(&res.Bet),
		Balance: res.Balance,
	})
}

// listBets devolve as apostas do usuário, mais recentes primeiro
func (s *Server) listBets(w http.ResponseWriter, r *http.Request) {
	user, err := s.Wallet.GetUserByEmail(r.Context(), identity(r).Email)
	if err != nil {
		s.writeDomainErr(w, r, err)
		return
	}
	bets, err := s.Wallet.ListBets(r.Context(), user.ID)
	if err != nil {
		s.writeDomainErr(w, r, err)
		return
	}
	out := make([]dto.BetResponse, 0, len(bets))
	for i := range bets {
		out = append(out, dto.Bet(&bets[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.Wallet.GetUserByEmail(r.Context(), identity(r).Email)
	if err != nil {
		s.writeDomainErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.User(user))
}

// ledger lista as movimentações de saldo do usuário (?limit=, máx. 500)
func (s *Server) ledger(w http.ResponseWriter, r *http.Request) {
	user, err := s.Wallet.GetUserByEmail(r.Context(), identity(r).Email)
	if err != nil {
		s.writeDomainErr(w, r, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.Wallet.Ledger(r.Context(), user.ID, limit)
	if err != nil {
		s.writeDomainErr(w, r, err)
		return
	}
	out := make([]dto.LedgerEntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, dto.LedgerEntry(&entries[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// provisionUser cria o registro do usuário no primeiro login
func (s *Server) provisionUser(w http.ResponseWriter, r *http.Request) {
	user, created, err := s.Wallet.EnsureUser(r.Context(), identity(r).Email)
	if err != nil {
		s.writeDomainErr(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, dto.User(user))
}

func (s *Server) view(ev *repo.Event) dto.EventResponse {
	return dto.Event(ev, s.Catalog.IsLive(ev))
}

// listEvents retorna o catálogo, preferencialmente do cache
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.Cache != nil {
		var cached []dto.EventResponse
		if ok, err := s.Cache.GetList(r.Context(), &cached); err == nil && ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	evs, err := s.Catalog.List(r.Context())
	if err != nil {
		s.writeDomainErr(w, r, err)
		return
	}
	out := make([]dto.EventResponse, 0, len(evs))
	for i := range evs {
		out = append(out, s.view(&evs[i]))
	}
	if s.Cache != nil {
		if err := s.Cache.SetList(r.Context(), out); err != nil {
			s.Log.Warn("cache set failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.Cache != nil {
		var cached dto.EventResponse
		if ok, err := s.Cache.GetEvent(r.Context(), id, &cached); err == nil && ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	ev, err := s.Catalog.Get(r.Context(), id)
	if err != nil {
		s.writeDomainErr(w, r, err)
		return
	}
	out := s.view(ev)
	if s.Cache != nil {
		if err := s.Cache.SetEvent(r.Context(), id, out); err != nil {
			s.Log.Warn("cache set failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateEventRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeErr(w, http.StatusBadRequest, validationMsg(err))
		return
	}
	date, err := time.Parse(time.RFC3339, req.Date)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "date must be RFC3339")
		return
	}

	in := catalog.CreateInput{
		CreatorEmail: identity(r).Email,
		Name:         req.Name,
		Date:         date,
		Category:     req.Category,
	}
	for _, o := range req.Outcomes {
		oi := catalog.OutcomeInput{Name: o.Name}
		if o.Odds != nil {
			d := decimal.NewFromFloat(*o.Odds)
			oi.Odds = &d
		}
		in.Outcomes = append(in.Outcomes, oi)
	}

	ev, err := s.Catalog.Create(r.Context(), in)
	if err != nil {
		s.writeDomainErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.view(ev))
}

func (s *Server) deleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.Catalog.Delete(r.Context(), identity(r).Email, chi.URLParam(r, "id")); err != nil {
		s.writeDomainErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolveEvent: criador do evento ou admin
func (s *Server) resolveEvent(w http.ResponseWriter, r *http.Request) {
	var req dto.ResolveEventRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeErr(w, http.StatusBadRequest, validationMsg(err))
		return
	}

	id := chi.URLParam(r, "id")
	ev, err := s.Catalog.Get(r.Context(), id)
	if err != nil {
		s.writeDomainErr(w, r, err)
		return
	}
	who := identity(r)
	if !who.IsAdmin && ev.CreatedBy != who.Email {
		s.writeDomainErr(w, r, errForbidden)
		return
	}

	if err := s.Engine.Resolve(r.Context(), id, req.OutcomeID); err != nil {
		s.writeDomainErr(w, r, err)
		return
	}
	if s.Cache != nil {
		s.Cache.Invalidate(r.Context(), id)
	}

	ev, err = s.Catalog.Get(r.Context(), id)
	if err != nil {
		s.writeDomainErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(ev))
}

// deposit credita saldo para um usuário (somente admin)
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	if !identity(r).IsAdmin {
		s.writeDomainErr(w, r, errForbidden)
		return
	}
	var req dto.DepositRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeErr(w, http.StatusBadRequest, validationMsg(err))
		return
	}
	ref := req.Ref
	if ref == "" {
		ref = identity(r).Email
	}

	user, err := s.Wallet.Deposit(r.Context(), req.Email, decimal.NewFromFloat(*req.Amount), ref)
	if err != nil {
		s.writeDomainErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.User(user))
}
