package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tournevent/shipbridge/internal/ordersync"
	"github.com/tournevent/shipbridge/internal/rates"
	"github.com/tournevent/shipbridge/internal/store"
	"github.com/tournevent/shipbridge/internal/writeback"
	"go.uber.org/zap"
)

// OrderReadyResponse is returned to the carrier.
type OrderReadyResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	FulfillmentID string `json:"fulfillmentId,omitempty"`
}

func (s *Server) shopFrom(r *http.Request) string {
	if shop := strings.TrimSpace(r.URL.Query().Get("shop")); shop != "" {
		return shop
	}
	if shop := strings.TrimSpace(r.Header.Get(HeaderShopifyShop)); shop != "" {
		return shop
	}
	return s.cfg.DefaultShop
}

// handleOrderCreated processes the order to completion, then acknowledges.
// Processing is detached from the request so a dropped connection does not
// abort a sync halfway.
func (s *Server) handleOrderCreated(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.Ctx(r.Context())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Warn("Failed to read order webhook body", zap.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	}

	shop := strings.TrimSpace(r.Header.Get(HeaderShopifyShop))
	if shop == "" {
		shop = s.cfg.DefaultShop
	}
	if shop == "" {
		logger.Warn("Order webhook without shop domain dropped")
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.cfg.SyncTimeout)
	defer cancel()
	outcome := s.deps.Sync.OnOrderCreated(ctx, shop, body)

	logger.Debug("Order webhook handled",
		zap.String("shop", shop),
		zap.String("outcome", string(outcome)),
	)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleOrderReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload writeback.OrderReadyPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondJSON(w, http.StatusBadRequest, OrderReadyResponse{Message: "invalid JSON body"})
		return
	}

	shop := s.shopFrom(r)
	if shop == "" {
		respondJSON(w, http.StatusBadRequest, OrderReadyResponse{Message: "shop is required"})
		return
	}

	result, err := s.deps.WriteBack.OnOrderReady(ctx, shop, payload)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, OrderReadyResponse{
			Success:       true,
			Message:       "fulfillment created",
			FulfillmentID: result.FulfillmentID,
		})
	case errors.Is(err, writeback.ErrInvalidPayload), errors.Is(err, writeback.ErrInvalidReference):
		respondJSON(w, http.StatusBadRequest, OrderReadyResponse{Message: err.Error()})
	case errors.Is(err, writeback.ErrNoOpenFulfillment):
		respondJSON(w, http.StatusOK, OrderReadyResponse{
			Success: true,
			Message: "order already fulfilled or has no open fulfillment order",
		})
	default:
		s.logger.Ctx(ctx).Error("Fulfillment write-back failed",
			zap.String("shop", shop),
			zap.String("order_ref", payload.OrderRef),
			zap.Error(err),
		)
		respondJSON(w, http.StatusOK, OrderReadyResponse{Message: err.Error()})
	}
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	var req *rates.Request
	var decoded rates.Request
	if err := json.NewDecoder(r.Body).Decode(&decoded); err != nil {
		s.logger.Ctx(r.Context()).Warn("Malformed rate request, serving fallback", zap.Error(err))
	} else {
		req = &decoded
	}

	quotes := s.deps.Rates.GetRates(r.Context(), s.shopFrom(r), req)
	respondJSON(w, http.StatusOK, rates.Response{Rates: quotes})
}

// requireAdmin checks the bearer token on admin routes.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken == "" {
			respondError(w, http.StatusForbidden, "admin API disabled")
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleMappingStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.deps.Mappings.CountByStatus(r.Context(), chi.URLParam(r, "shop"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	m, err := s.deps.Mappings.Get(r.Context(), chi.URLParam(r, "shop"), orderID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "mapping not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *Server) handleResubmit(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	outcome, err := s.deps.Sync.Resubmit(r.Context(), chi.URLParam(r, "shop"), orderID)
	s.respondReplay(w, r, outcome, err)
}

func (s *Server) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.DeadLetters.List(r.Context(), r.URL.Query().Get("shop"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if entries == nil {
		entries = []store.DeadLetterEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.deps.Sync.ReplayDeadLetter(r.Context(), chi.URLParam(r, "id"))
	s.respondReplay(w, r, outcome, err)
}

// handleDeleteDeadLetter discards an entry an operator decided not to replay.
func (s *Server) handleDeleteDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.deps.DeadLetters.Delete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "dead letter not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.logger.Ctx(r.Context()).Info("Dead letter discarded", zap.String("dead_letter_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReplayAll(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Sync.ReplayAll(r.Context(), r.URL.Query().Get("shop"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) respondReplay(w http.ResponseWriter, r *http.Request, outcome ordersync.Outcome, err error) {
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ordersync.ErrNotReplayable):
		respondError(w, http.StatusConflict, err.Error())
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Ctx(r.Context()).Error("Admin request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	respondError(w, http.StatusInternalServerError, "internal error")
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
