package handler

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mesa-pos/api/internal/database"
	"github.com/mesa-pos/api/internal/enum"
	mw "github.com/mesa-pos/api/internal/middleware"
)

// TableStore defines the database methods needed by dining table handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type TableStore interface {
	ListDiningTables(ctx context.Context) ([]database.DiningTable, error)
	CreateDiningTable(ctx context.Context, arg database.CreateDiningTableParams) (database.DiningTable, error)
	UpdateDiningTable(ctx context.Context, arg database.UpdateDiningTableParams) (database.DiningTable, error)
	SoftDeleteDiningTable(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
}

// TableHandler handles dining table endpoints.
type TableHandler struct {
	store TableStore
}

// NewTableHandler creates a new TableHandler.
func NewTableHandler(store TableStore) *TableHandler {
	return &TableHandler{store: store}
}

// RegisterRoutes registers table endpoints on the given Chi router.
// The listing (with login codes) is staff-facing, so the whole group
// is admin-only.
func (h *TableHandler) RegisterRoutes(r chi.Router) {
	r.Use(mw.RequireRole(enum.UserRoleAdmin))
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// --- Request / Response types ---

type createTableRequest struct {
	TableNumber string `json:"table_number"`
	Capacity    int32  `json:"capacity"`
}

type updateTableRequest struct {
	TableNumber string `json:"table_number"`
	Capacity    int32  `json:"capacity"`
	IsAvailable *bool  `json:"is_available"`
}

type tableResponse struct {
	ID          uuid.UUID `json:"id"`
	TableNumber string    `json:"table_number"`
	Code        string    `json:"code"`
	Capacity    int32     `json:"capacity"`
	IsAvailable bool      `json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
}

// --- Handlers ---

func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	tables, err := h.store.ListDiningTables(r.Context())
	if err != nil {
		log.Printf("ERROR: list tables: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]tableResponse, len(tables))
	for i, t := range tables {
		resp[i] = toTableResponse(t)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": resp})
}

// Create handles POST /tables. The login code printed on the table
// card is generated server-side, never supplied by the client.
func (h *TableHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.TableNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "table_number is required"})
		return
	}
	if req.Capacity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "capacity must be > 0"})
		return
	}

	table, err := h.store.CreateDiningTable(r.Context(), database.CreateDiningTableParams{
		TableNumber: req.TableNumber,
		Code:        generateTableCode(),
		Capacity:    req.Capacity,
	})
	if err != nil {
		log.Printf("ERROR: create table: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusCreated, toTableResponse(table))
}

func (h *TableHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}

	var req updateTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.TableNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "table_number is required"})
		return
	}
	if req.Capacity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "capacity must be > 0"})
		return
	}

	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}

	table, err := h.store.UpdateDiningTable(r.Context(), database.UpdateDiningTableParams{
		ID:          id,
		TableNumber: req.TableNumber,
		Capacity:    req.Capacity,
		IsAvailable: available,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "table not found"})
			return
		}
		log.Printf("ERROR: update table: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(table))
}

func (h *TableHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}

	if _, err := h.store.SoftDeleteDiningTable(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "table not found"})
			return
		}
		log.Printf("ERROR: delete table: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

// tableCodeAlphabet skips easily-confused characters (0/O, 1/I/L) so
// the printed codes survive bad handwriting and worse lighting.
const tableCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const tableCodeLength = 8

func generateTableCode() string {
	buf := make([]byte, tableCodeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is in serious trouble;
		// fall back to a fixed code rather than crash mid-request.
		return "AAAAAAAA"
	}
	for i, b := range buf {
		buf[i] = tableCodeAlphabet[int(b)%len(tableCodeAlphabet)]
	}
	return string(buf)
}

func toTableResponse(t database.DiningTable) tableResponse {
	return tableResponse{
		ID:          t.ID,
		TableNumber: t.TableNumber,
		Code:        t.Code,
		Capacity:    t.Capacity,
		IsAvailable: t.IsAvailable,
		CreatedAt:   t.CreatedAt,
	}
}
