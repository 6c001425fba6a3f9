package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/mesa-pos/api/internal/database"
	"github.com/mesa-pos/api/internal/enum"
	mw "github.com/mesa-pos/api/internal/middleware"
)

// ProductStore defines the database methods needed by product handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ProductStore interface {
	ListProducts(ctx context.Context) ([]database.Product, error)
	CreateProduct(ctx context.Context, arg database.CreateProductParams) (database.Product, error)
	UpdateProduct(ctx context.Context, arg database.UpdateProductParams) (database.Product, error)
	SetProductAvailability(ctx context.Context, arg database.SetProductAvailabilityParams) (database.Product, error)
	SoftDeleteProduct(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
}

// ProductHandler handles product endpoints.
type ProductHandler struct {
	store ProductStore
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(store ProductStore) *ProductHandler {
	return &ProductHandler{store: store}
}

// RegisterRoutes registers product endpoints on the given Chi router.
// Reads are open to any authenticated actor. Cooks may flip
// availability; everything else is admin-only.
func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.With(mw.RequireRole(enum.UserRoleAdmin, enum.UserRoleCook)).
		Patch("/{id}/availability", h.SetAvailability)
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireRole(enum.UserRoleAdmin))
		r.Post("/", h.Create)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

// --- Request / Response types ---

type productRequest struct {
	CategoryID  string `json:"category_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	IsAvailable *bool  `json:"is_available"`
}

type availabilityRequest struct {
	IsAvailable *bool `json:"is_available"`
}

type productResponse struct {
	ID          uuid.UUID `json:"id"`
	CategoryID  uuid.UUID `json:"category_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Price       string    `json:"price"`
	IsAvailable bool      `json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
}

// --- Handlers ---

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListProducts(r.Context())
	if err != nil {
		log.Printf("ERROR: list products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = toProductResponse(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": resp})
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	categoryID, price, errMsg := validateProductRequest(req)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}

	product, err := h.store.CreateProduct(r.Context(), database.CreateProductParams{
		CategoryID:  categoryID,
		Name:        req.Name,
		Description: textOrNull(req.Description),
		Price:       decimalToNumeric(price),
		IsAvailable: available,
	})
	if err != nil {
		log.Printf("ERROR: create product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	categoryID, price, errMsg := validateProductRequest(req)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}

	product, err := h.store.UpdateProduct(r.Context(), database.UpdateProductParams{
		ID:          id,
		CategoryID:  categoryID,
		Name:        req.Name,
		Description: textOrNull(req.Description),
		Price:       decimalToNumeric(price),
		IsAvailable: available,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: update product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

// SetAvailability handles PATCH /products/{id}/availability: the 86
// switch for when the kitchen runs out of something mid-service.
func (h *ProductHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.IsAvailable == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "is_available is required"})
		return
	}

	product, err := h.store.SetProductAvailability(r.Context(), database.SetProductAvailabilityParams{
		ID:          id,
		IsAvailable: *req.IsAvailable,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: set product availability: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	if _, err := h.store.SoftDeleteProduct(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: delete product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func validateProductRequest(req productRequest) (uuid.UUID, decimal.Decimal, string) {
	if req.Name == "" {
		return uuid.Nil, decimal.Zero, "name is required"
	}
	if req.CategoryID == "" {
		return uuid.Nil, decimal.Zero, "category_id is required"
	}
	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		return uuid.Nil, decimal.Zero, "invalid category ID"
	}
	if req.Price == "" {
		return uuid.Nil, decimal.Zero, "price is required"
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		return uuid.Nil, decimal.Zero, "price must be a non-negative decimal"
	}
	return categoryID, price, ""
}

func toProductResponse(p database.Product) productResponse {
	resp := productResponse{
		ID:          p.ID,
		CategoryID:  p.CategoryID,
		Name:        p.Name,
		Price:       numericToString(p.Price),
		IsAvailable: p.IsAvailable,
		CreatedAt:   p.CreatedAt,
	}
	if p.Description.Valid {
		resp.Description = &p.Description.String
	}
	return resp
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	if err := n.Scan(d.StringFixed(2)); err != nil {
		return pgtype.Numeric{}
	}
	return n
}
