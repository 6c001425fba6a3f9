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
	"github.com/shopspring/decimal"

	"github.com/mesa-pos/api/internal/database"
	"github.com/mesa-pos/api/internal/enum"
	mw "github.com/mesa-pos/api/internal/middleware"
)

// IngredientStore defines the database methods needed by ingredient handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type IngredientStore interface {
	ListIngredients(ctx context.Context) ([]database.Ingredient, error)
	CreateIngredient(ctx context.Context, arg database.CreateIngredientParams) (database.Ingredient, error)
	UpdateIngredient(ctx context.Context, arg database.UpdateIngredientParams) (database.Ingredient, error)
	SoftDeleteIngredient(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
}

// IngredientHandler handles ingredient endpoints.
type IngredientHandler struct {
	store IngredientStore
}

// NewIngredientHandler creates a new IngredientHandler.
func NewIngredientHandler(store IngredientStore) *IngredientHandler {
	return &IngredientHandler{store: store}
}

// RegisterRoutes registers ingredient endpoints on the given Chi router.
// Reads are open to any authenticated actor; writes are admin-only.
func (h *IngredientHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireRole(enum.UserRoleAdmin))
		r.Post("/", h.Create)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

// --- Request / Response types ---

type ingredientRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
	Stock       string `json:"stock"`
}

type ingredientResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Unit        string    `json:"unit"`
	Stock       string    `json:"stock"`
	CreatedAt   time.Time `json:"created_at"`
}

// --- Handlers ---

func (h *IngredientHandler) List(w http.ResponseWriter, r *http.Request) {
	ingredients, err := h.store.ListIngredients(r.Context())
	if err != nil {
		log.Printf("ERROR: list ingredients: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]ingredientResponse, len(ingredients))
	for i, ing := range ingredients {
		resp[i] = toIngredientResponse(ing)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ingredients": resp})
}

func (h *IngredientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ingredientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	stock, errMsg := validateIngredientRequest(req)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	ingredient, err := h.store.CreateIngredient(r.Context(), database.CreateIngredientParams{
		Name:        req.Name,
		Description: textOrNull(req.Description),
		Unit:        req.Unit,
		Stock:       decimalToNumeric(stock),
	})
	if err != nil {
		log.Printf("ERROR: create ingredient: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusCreated, toIngredientResponse(ingredient))
}

func (h *IngredientHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ingredient ID"})
		return
	}

	var req ingredientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	stock, errMsg := validateIngredientRequest(req)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	ingredient, err := h.store.UpdateIngredient(r.Context(), database.UpdateIngredientParams{
		ID:          id,
		Name:        req.Name,
		Description: textOrNull(req.Description),
		Unit:        req.Unit,
		Stock:       decimalToNumeric(stock),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "ingredient not found"})
			return
		}
		log.Printf("ERROR: update ingredient: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toIngredientResponse(ingredient))
}

func (h *IngredientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ingredient ID"})
		return
	}

	if _, err := h.store.SoftDeleteIngredient(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "ingredient not found"})
			return
		}
		log.Printf("ERROR: delete ingredient: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func validateIngredientRequest(req ingredientRequest) (decimal.Decimal, string) {
	if req.Name == "" {
		return decimal.Zero, "name is required"
	}
	if req.Unit == "" {
		return decimal.Zero, "unit is required"
	}
	stock := decimal.Zero
	if req.Stock != "" {
		var err error
		stock, err = decimal.NewFromString(req.Stock)
		if err != nil || stock.IsNegative() {
			return decimal.Zero, "stock must be a non-negative decimal"
		}
	}
	return stock, ""
}

func toIngredientResponse(i database.Ingredient) ingredientResponse {
	resp := ingredientResponse{
		ID:        i.ID,
		Name:      i.Name,
		Unit:      i.Unit,
		Stock:     numericToString(i.Stock),
		CreatedAt: i.CreatedAt,
	}
	if i.Description.Valid {
		resp.Description = &i.Description.String
	}
	return resp
}
