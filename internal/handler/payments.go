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
	"github.com/mesa-pos/api/internal/middleware"
	"github.com/mesa-pos/api/internal/service"
	"github.com/mesa-pos/api/internal/ws"
)

// PaymentServicer defines the service methods needed by payment handlers.
// Satisfied by *service.PaymentService; narrow interface for testability.
type PaymentServicer interface {
	ProcessPayment(ctx context.Context, req service.ProcessPaymentRequest) (*service.ProcessPaymentResult, error)
}

// PaymentStore defines the database methods needed by payment read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type PaymentStore interface {
	GetPaymentViewByOrder(ctx context.Context, orderID uuid.UUID) (database.PaymentView, error)
	ListPaymentsForDay(ctx context.Context, arg database.ListPaymentsForDayParams) ([]database.PaymentView, error)
	ListActivePaymentMethods(ctx context.Context) ([]database.PaymentMethod, error)
}

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	svc      PaymentServicer
	store    PaymentStore
	notifier Notifier
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(svc PaymentServicer, store PaymentStore, notifier Notifier) *PaymentHandler {
	return &PaymentHandler{svc: svc, store: store, notifier: notifier}
}

// RegisterRoutes registers payment endpoints on the given Chi router.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/methods", h.ListMethods)
	r.Get("/order/{orderId}", h.GetByOrder)
	r.Get("/day/{date}", h.ListByDay)
}

// --- Request / Response types ---

type createPaymentRequest struct {
	OrderID         string `json:"order_id"`
	PaymentMethodID string `json:"payment_method_id"`
	Notes           string `json:"notes"`
}

type paymentResponse struct {
	ID              uuid.UUID `json:"id"`
	OrderID         uuid.UUID `json:"order_id"`
	OrderNumber     string    `json:"order_number,omitempty"`
	PaymentMethodID uuid.UUID `json:"payment_method_id"`
	MethodName      string    `json:"method_name"`
	Amount          string    `json:"amount"`
	PaidAt          time.Time `json:"paid_at"`
	CashierID       uuid.UUID `json:"cashier_id"`
	CashierName     string    `json:"cashier_name"`
	Notes           *string   `json:"notes"`
}

type paymentListResponse struct {
	Payments []paymentResponse `json:"payments"`
	Total    string            `json:"total"`
}

type paymentMethodResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
}

// --- Handlers ---

// Create handles POST /payments. The amount is derived server-side
// from the order total; error codes follow the settlement preconditions.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.OrderID == "" || req.PaymentMethodID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order_id and payment_method_id are required"})
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}
	methodID, err := uuid.Parse(req.PaymentMethodID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment method ID"})
		return
	}

	result, err := h.svc.ProcessPayment(r.Context(), service.ProcessPaymentRequest{
		OrderID:         orderID,
		PaymentMethodID: methodID,
		Notes:           req.Notes,
		Actor:           service.Actor{ID: claims.UserID, Role: claims.Role},
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrAlreadyPaid):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrOrderNotReady):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrInvalidPaymentMethod):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: process payment: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	resp := paymentResponse{
		ID:              result.Payment.ID,
		OrderID:         result.Payment.OrderID,
		OrderNumber:     result.Order.OrderNumber,
		PaymentMethodID: result.Payment.PaymentMethodID,
		MethodName:      result.MethodName,
		Amount:          numericToString(result.Payment.Amount),
		PaidAt:          result.Payment.PaidAt,
		CashierID:       result.Payment.CashierID,
		CashierName:     result.CashierName,
	}
	if result.Payment.Notes.Valid {
		resp.Notes = &result.Payment.Notes.String
	}

	if data, err := json.Marshal(map[string]string{
		"order_id":     result.Order.ID.String(),
		"order_number": result.Order.OrderNumber,
		"amount":       resp.Amount,
	}); err == nil {
		h.notifier.BroadcastToRoles(ws.Event{Type: "order.paid", Payload: data}, enum.UserRoleCashier, enum.UserRoleWaiter)
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetByOrder handles GET /payments/order/{orderId}.
func (h *PaymentHandler) GetByOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	view, err := h.store.GetPaymentViewByOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "payment not found"})
			return
		}
		log.Printf("ERROR: get payment by order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toPaymentViewResponse(view))
}

// ListByDay handles GET /payments/day/{date}. The date is a calendar
// day in YYYY-MM-DD; the response carries the day's running total.
func (h *PaymentHandler) ListByDay(w http.ResponseWriter, r *http.Request) {
	// Local midnight, matching the clock order numbers are dated with.
	day, err := time.ParseInLocation("2006-01-02", chi.URLParam(r, "date"), time.Local)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date format, use YYYY-MM-DD"})
		return
	}

	start := day
	end := day.AddDate(0, 0, 1)
	payments, err := h.store.ListPaymentsForDay(r.Context(), database.ListPaymentsForDayParams{Start: start, End: end})
	if err != nil {
		log.Printf("ERROR: list payments for day: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]paymentResponse, len(payments))
	sum := decimal.Zero
	for i, p := range payments {
		resp[i] = toPaymentViewResponse(p)
		sum = sum.Add(amountToDecimal(p.Amount))
	}

	writeJSON(w, http.StatusOK, paymentListResponse{Payments: resp, Total: sum.StringFixed(2)})
}

// ListMethods handles GET /payments/methods.
func (h *PaymentHandler) ListMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.store.ListActivePaymentMethods(r.Context())
	if err != nil {
		log.Printf("ERROR: list payment methods: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]paymentMethodResponse, len(methods))
	for i, m := range methods {
		resp[i] = paymentMethodResponse{ID: m.ID, Name: m.Name}
		if m.Description.Valid {
			resp[i].Description = &m.Description.String
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"methods": resp})
}

// --- Helpers ---

func toPaymentViewResponse(v database.PaymentView) paymentResponse {
	resp := paymentResponse{
		ID:              v.ID,
		OrderID:         v.OrderID,
		OrderNumber:     v.OrderNumber,
		PaymentMethodID: v.PaymentMethodID,
		MethodName:      v.MethodName,
		Amount:          numericToString(v.Amount),
		PaidAt:          v.PaidAt,
		CashierID:       v.CashierID,
		CashierName:     v.CashierName,
	}
	if v.Notes.Valid {
		resp.Notes = &v.Notes.String
	}
	return resp
}

func amountToDecimal(n pgtype.Numeric) decimal.Decimal {
	d, err := decimal.NewFromString(numericToString(n))
	if err != nil {
		return decimal.Zero
	}
	return d
}
