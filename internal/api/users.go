package api

import (
	"encoding/json"
	"net/http"

	"github.com/safar/go-retail-backend/internal/models"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName string `json:"full_name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	user, err := s.users.Register(r.Context(), req.FullName, req.Email, req.Password)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	user, token, err := s.users.Login(r.Context(), req.Email, req.Password)
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

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user":  user,
		"token": token,
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	user, err := s.users.Verify(r.Context(), req.Token)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleListAddresses(w http.ResponseWriter, r *http.Request) {
	addresses, err := s.users.Addresses(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"addresses": addresses})
}

func (s *Server) handleAddAddress(w http.ResponseWriter, r *http.Request) {
	var req models.Address
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	address, err := s.users.AddAddress(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, address)
}

func (s *Server) handleListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := s.users.PaymentMethods(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"payment_methods": methods})
}

func (s *Server) handleAddPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
		Brand string `json:"brand"`
		Last4 string `json:"last4"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	method, err := s.users.AddPaymentMethod(r.Context(), models.PaymentMethod{
		Token: req.Token,
		Brand: req.Brand,
		Last4: req.Last4,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, method)
}

func (s *Server) handleAdminUserList(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	result, err := s.users.AdminList(r.Context(), page, pageSize)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
