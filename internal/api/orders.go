package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/safar/go-retail-backend/internal/models"
)

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req models.ShippingAddress
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	session, err := s.checkout.CreateSession(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"session_id": session.ID,
		"url":        session.URL,
	})
}

// handleWebhook is the payment provider's callback. The raw body is
// verified against the signature header before anything is parsed out
// of it.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation", "unreadable body")
		return
	}

	event, err := s.gateway.VerifyWebhook(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	order, err := s.final.HandleEvent(r.Context(), event)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"order_id": order.ID})
}

func (s *Server) handleOrderList(w http.ResponseWriter, r *http.Request) {
	orders, err := s.orders.ListForCustomer(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "validation", "missing session_id")
		return
	}

	status, finalized, err := s.checkout.SessionStatus(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"finalized": finalized,
	})
}

func (s *Server) handleAdminOrderList(w http.ResponseWriter, r *http.Request) {
	_, limit := pageParams(r)

	page, err := s.orders.AdminList(r.Context(),
		r.URL.Query().Get("status"), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleAdminOrderGet(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "orderID")
	if !ok {
		respondError(w, http.StatusBadRequest, "validation", "invalid order ID")
		return
	}

	order, customer, err := s.orders.AdminGet(r.Context(), orderID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"order":    order,
		"customer": customer,
	})
}

func (s *Server) handleAdminOrderUpdate(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "orderID")
	if !ok {
		respondError(w, http.StatusBadRequest, "validation", "invalid order ID")
		return
	}

	var req struct {
		Status      string `json:"status"`
		TrackingURL string `json:"tracking_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	order, err := s.orders.UpdateStatus(r.Context(), orderID, req.Status, req.TrackingURL)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := s.orders.Dashboard(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}
