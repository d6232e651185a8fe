package api

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"

	"github.com/safar/go-retail-backend/internal/store"
	"github.com/shopspring/decimal"
)

type productPayload struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Price           string  `json:"price"`
	Stock           int     `json:"stock"`
	StripeProductID string  `json:"stripe_product_id"`
	StripePriceID   string  `json:"stripe_price_id"`
	CategoryID      *int64  `json:"category_id"`
}

func (p productPayload) toRequest() (store.CreateProductRequest, error) {
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return store.CreateProductRequest{}, err
	}

	req := store.CreateProductRequest{
		Name:            p.Name,
		Description:     p.Description,
		Price:           price,
		Stock:           p.Stock,
		StripeProductID: p.StripeProductID,
		StripePriceID:   p.StripePriceID,
	}
	if p.CategoryID != nil {
		req.CategoryID = sql.NullInt64{Int64: *p.CategoryID, Valid: true}
	}
	return req, nil
}

func (s *Server) handleProductList(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	result, err := s.catalog.List(r.Context(), page, pageSize)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleAdminProductList(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	result, err := s.catalog.AdminList(r.Context(), page, pageSize)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleFeaturedList(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalog.Featured(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"products": products})
}

func (s *Server) handleProductGet(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(r, "productID")
	if !ok {
		respondError(w, http.StatusBadRequest, "validation", "invalid product ID")
		return
	}

	product, err := s.catalog.Get(r.Context(), productID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (s *Server) handleProductCreate(w http.ResponseWriter, r *http.Request) {
	var payload productPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	req, err := payload.toRequest()
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid price")
		return
	}

	product, err := s.catalog.Create(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, product)
}

func (s *Server) handleProductUpdate(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(r, "productID")
	if !ok {
		respondError(w, http.StatusBadRequest, "validation", "invalid product ID")
		return
	}

	var payload productPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	req, err := payload.toRequest()
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid price")
		return
	}

	product, err := s.catalog.Update(r.Context(), productID, req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (s *Server) handleProductDelete(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(r, "productID")
	if !ok {
		respondError(w, http.StatusBadRequest, "validation", "invalid product ID")
		return
	}

	if err := s.catalog.Delete(r.Context(), productID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleProductFeature(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(r, "productID")
	if !ok {
		respondError(w, http.StatusBadRequest, "validation", "invalid product ID")
		return
	}

	if err := s.catalog.Feature(r.Context(), productID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"status": "featured"})
}

func (s *Server) handleProductUnfeature(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(r, "productID")
	if !ok {
		respondError(w, http.StatusBadRequest, "validation", "invalid product ID")
		return
	}

	if err := s.catalog.Unfeature(r.Context(), productID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "unfeatured"})
}

func (s *Server) handleImageAdd(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(r, "productID")
	if !ok {
		respondError(w, http.StatusBadRequest, "validation", "invalid product ID")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil || len(data) == 0 {
		respondError(w, http.StatusBadRequest, "validation", "missing image body")
		return
	}

	image, err := s.catalog.AddImage(r.Context(), productID, data, r.Header.Get("Content-Type"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, image)
}

func (s *Server) handleImageDelete(w http.ResponseWriter, r *http.Request) {
	imageID, ok := pathID(r, "imageID")
	if !ok {
		respondError(w, http.StatusBadRequest, "validation", "invalid image ID")
		return
	}

	if err := s.catalog.DeleteImage(r.Context(), imageID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCategoryList(w http.ResponseWriter, r *http.Request) {
	categories, err := s.catalog.Categories(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"categories": categories})
}

func (s *Server) handleCategoryCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	category, err := s.catalog.CreateCategory(r.Context(), req.Name)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, category)
}

func (s *Server) handleCategoryDelete(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := pathID(r, "categoryID")
	if !ok {
		respondError(w, http.StatusBadRequest, "validation", "invalid category ID")
		return
	}

	if err := s.catalog.DeleteCategory(r.Context(), categoryID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
