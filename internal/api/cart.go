package api

import (
	"encoding/json"
	"net/http"

	"github.com/safar/go-retail-backend/internal/auth"
)

func (s *Server) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(r, "productID")
	if !ok {
		respondError(w, http.StatusBadRequest, "validation", "invalid product ID")
		return
	}

	quantity := 1
	if r.Body != nil && r.ContentLength > 0 {
		var req struct {
			Quantity int `json:"quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "validation", "invalid request body")
			return
		}
		if req.Quantity != 0 {
			quantity = req.Quantity
		}
	}

	// Anonymous shoppers get an implicit guest identity on their first
	// cart write; the cookie keeps the cart theirs across requests.
	ctx := r.Context()
	if _, ok := auth.PrincipalFrom(ctx); !ok {
		guest, token, err := s.users.CreateGuest(ctx)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     "access_token",
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		ctx = auth.WithPrincipal(ctx, auth.Principal{UserID: guest.ID, Role: guest.Role})
	}

	line, err := s.carts.Add(ctx, productID, quantity)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, line)
}

func (s *Server) handleCartList(w http.ResponseWriter, r *http.Request) {
	lines, err := s.carts.List(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"lines": lines})
}

func (s *Server) handleCartUpdate(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(r, "lineID")
	if !ok {
		respondError(w, http.StatusBadRequest, "validation", "invalid cart line ID")
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	if err := s.carts.Update(r.Context(), lineID, req.Quantity); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleCartRemove(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(r, "lineID")
	if !ok {
		respondError(w, http.StatusBadRequest, "validation", "invalid cart line ID")
		return
	}

	if err := s.carts.Remove(r.Context(), lineID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
