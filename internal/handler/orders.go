package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/mesa-pos/api/internal/database"
	"github.com/mesa-pos/api/internal/enum"
	"github.com/mesa-pos/api/internal/middleware"
	"github.com/mesa-pos/api/internal/service"
	"github.com/mesa-pos/api/internal/ws"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
	ReviseOrder(ctx context.Context, req service.ReviseOrderRequest) error
	SetLineCompletion(ctx context.Context, req service.SetLineCompletionRequest) (*service.SetLineCompletionResult, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*service.OrderDetail, error)
	ListOpenOrders(ctx context.Context) ([]service.OrderDetail, error)
	ListSettleableOrders(ctx context.Context) ([]service.OrderDetail, error)
}

// Notifier pushes events to the live order boards.
// Satisfied by *ws.Hub.
type Notifier interface {
	BroadcastToRoles(event ws.Event, roles ...string)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc      OrderServicer
	notifier Notifier
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, notifier Notifier) *OrderHandler {
	return &OrderHandler{svc: svc, notifier: notifier}
}

// RegisterRoutes registers order endpoints on the given Chi router.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Put("/lines/completion", h.SetLineCompletion)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Revise)
}

// --- Request / Response types ---

type orderLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	Notes     string `json:"notes"`
}

type createOrderRequest struct {
	TableID string             `json:"table_id"`
	Notes   string             `json:"notes"`
	Lines   []orderLineRequest `json:"lines"`
}

type reviseOrderRequest struct {
	OrderID string             `json:"order_id"`
	Notes   string             `json:"notes"`
	Lines   []orderLineRequest `json:"lines"`
}

type setLineCompletionRequest struct {
	LineID    string `json:"line_id"`
	Completed *bool  `json:"completed"`
}

type orderLineResponse struct {
	ID          uuid.UUID  `json:"id"`
	ProductID   uuid.UUID  `json:"product_id"`
	ProductName string     `json:"product_name,omitempty"`
	Quantity    int32      `json:"quantity"`
	UnitPrice   string     `json:"unit_price"`
	Subtotal    string     `json:"subtotal"`
	Notes       *string    `json:"notes"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
}

type orderResponse struct {
	ID          uuid.UUID           `json:"id"`
	OrderNumber string              `json:"order_number"`
	TableID     uuid.UUID           `json:"table_id"`
	CreatedBy   *string             `json:"created_by"`
	CreatorName string              `json:"creator_name,omitempty"`
	Status      string              `json:"status"`
	Total       string              `json:"total"`
	Notes       *string             `json:"notes"`
	CreatedAt   time.Time           `json:"created_at"`
	ReadyAt     *time.Time          `json:"ready_at"`
	SettledAt   *time.Time          `json:"settled_at"`
	Lines       []orderLineResponse `json:"lines"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
}

// --- Handlers ---

// Create handles POST /orders. Open to waiters and table-session
// customers; a customer can only order for their own table.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.TableID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "table_id is required"})
		return
	}
	if len(req.Lines) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lines are required"})
		return
	}
	for i, line := range req.Lines {
		if line.ProductID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": formatLineError(i, "product_id is required")})
			return
		}
		if line.Quantity <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": formatLineError(i, "quantity must be > 0")})
			return
		}
	}

	if claims.Role == enum.UserRoleCustomer && req.TableID != claims.TableID.String() {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "table session cannot order for another table"})
		return
	}

	svcLines := make([]service.CreateOrderLineRequest, len(req.Lines))
	for i, line := range req.Lines {
		svcLines[i] = service.CreateOrderLineRequest{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Notes:     line.Notes,
		}
	}

	result, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		TableID: req.TableID,
		Notes:   req.Notes,
		Lines:   svcLines,
		Actor:   service.Actor{ID: claims.UserID, Role: claims.Role},
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTableNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		case isOrderValidationError(err):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: create order: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	resp := toCreateOrderResponse(result)
	h.broadcast("order.created", resp, enum.UserRoleCook, enum.UserRoleWaiter)
	writeJSON(w, http.StatusOK, resp)
}

// Revise handles PUT /orders/{id}: full replace of notes and lines
// while the order is still pending.
func (h *OrderHandler) Revise(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	// Revision is staff work; diners add items by placing a new order.
	if claims.Role == enum.UserRoleCustomer {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "table sessions cannot revise orders"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req reviseOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.OrderID != "" && req.OrderID != orderID.String() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order_id does not match URL"})
		return
	}
	if len(req.Lines) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lines are required"})
		return
	}

	svcLines := make([]service.CreateOrderLineRequest, len(req.Lines))
	for i, line := range req.Lines {
		svcLines[i] = service.CreateOrderLineRequest{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Notes:     line.Notes,
		}
	}

	err = h.svc.ReviseOrder(r.Context(), service.ReviseOrderRequest{
		OrderID: orderID,
		Notes:   req.Notes,
		Lines:   svcLines,
		Actor:   service.Actor{ID: claims.UserID, Role: claims.Role},
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrOrderNotPending), isOrderValidationError(err):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: revise order: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	h.broadcast("order.updated", map[string]string{"order_id": orderID.String()}, enum.UserRoleCook, enum.UserRoleWaiter)
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /orders?role=&status=. Waiters and cooks get the
// open board (pending + in preparation, oldest first); cashiers get the
// settlement board (ready first, then settled).
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var (
		details []service.OrderDetail
		err     error
	)
	switch role := r.URL.Query().Get("role"); role {
	case "waiter", "cook":
		details, err = h.svc.ListOpenOrders(r.Context())
	case "cashier":
		details, err = h.svc.ListSettleableOrders(r.Context())
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role must be waiter, cook or cashier"})
		return
	}
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(details))
	for i, d := range details {
		resp[i] = toOrderDetailResponse(d)
	}
	writeJSON(w, http.StatusOK, orderListResponse{Orders: resp})
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	detail, err := h.svc.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	// Table sessions can only read their own table's orders.
	if claims.Role == enum.UserRoleCustomer && detail.Order.TableID != claims.TableID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "table session cannot read another table's order"})
		return
	}

	writeJSON(w, http.StatusOK, toOrderDetailResponse(*detail))
}

// SetLineCompletion handles PUT /orders/lines/completion: a cook marks
// one line done (or not). The derived order status rides back on the
// broadcast, not the response body.
func (h *OrderHandler) SetLineCompletion(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	if claims.Role == enum.UserRoleCustomer {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "table sessions cannot complete order lines"})
		return
	}

	var req setLineCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.LineID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "line_id is required"})
		return
	}
	if req.Completed == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "completed is required"})
		return
	}
	lineID, err := uuid.Parse(req.LineID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid line ID"})
		return
	}

	result, err := h.svc.SetLineCompletion(r.Context(), service.SetLineCompletionRequest{
		LineID:    lineID,
		Completed: *req.Completed,
		Actor:     service.Actor{ID: claims.UserID, Role: claims.Role},
	})
	if err != nil {
		if errors.Is(err, service.ErrLineNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order line not found"})
			return
		}
		log.Printf("ERROR: set line completion: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.broadcast("line.updated", map[string]any{
		"order_id":  result.Order.ID.String(),
		"line_id":   result.Line.ID.String(),
		"completed": result.Line.Completed,
		"status":    result.Order.Status,
	}, enum.UserRoleCook, enum.UserRoleWaiter)

	if result.Order.Status == enum.OrderStatusReady {
		h.broadcast("order.ready", dbOrderToResponse(result.Order), enum.UserRoleCashier, enum.UserRoleWaiter)
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func (h *OrderHandler) broadcast(eventType string, payload any, roles ...string) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: marshal %s event: %v", eventType, err)
		return
	}
	h.notifier.BroadcastToRoles(ws.Event{Type: eventType, Payload: data}, roles...)
}

func formatLineError(idx int, msg string) string {
	return "lines[" + strconv.Itoa(idx) + "]: " + msg
}

// isOrderValidationError checks if the error is a known validation
// error from the service layer that should result in 400 Bad Request.
func isOrderValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyLines) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrInvalidProductID) ||
		errors.Is(err, service.ErrInvalidTableID) ||
		errors.Is(err, service.ErrProductUnavailable)
}

func toCreateOrderResponse(result *service.CreateOrderResult) orderResponse {
	resp := dbOrderToResponse(result.Order)
	resp.CreatorName = result.CreatorName
	resp.Lines = make([]orderLineResponse, len(result.Lines))
	for i, lr := range result.Lines {
		line := toLineResponse(lr.Line)
		line.ProductName = lr.ProductName
		resp.Lines[i] = line
	}
	return resp
}

func toOrderDetailResponse(d service.OrderDetail) orderResponse {
	resp := dbOrderToResponse(d.Order)
	resp.Lines = make([]orderLineResponse, len(d.Lines))
	for i, v := range d.Lines {
		line := toLineResponse(v.OrderLine)
		line.ProductName = v.ProductName
		resp.Lines[i] = line
	}
	return resp
}

// dbOrderToResponse converts a database.Order to an orderResponse
// without lines.
func dbOrderToResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		TableID:     o.TableID,
		Status:      o.Status,
		Total:       numericToString(o.Total),
		CreatedAt:   o.CreatedAt,
		Lines:       []orderLineResponse{},
	}
	if o.CreatedBy.Valid {
		s := uuid.UUID(o.CreatedBy.Bytes).String()
		resp.CreatedBy = &s
	}
	if o.Notes.Valid {
		resp.Notes = &o.Notes.String
	}
	if o.ReadyAt.Valid {
		resp.ReadyAt = &o.ReadyAt.Time
	}
	if o.SettledAt.Valid {
		resp.SettledAt = &o.SettledAt.Time
	}
	return resp
}

func toLineResponse(l database.OrderLine) orderLineResponse {
	resp := orderLineResponse{
		ID:        l.ID,
		ProductID: l.ProductID,
		Quantity:  l.Quantity,
		UnitPrice: numericToString(l.UnitPrice),
		Subtotal:  numericToString(l.Subtotal),
		Completed: l.Completed,
	}
	if l.Notes.Valid {
		resp.Notes = &l.Notes.String
	}
	if l.CompletedAt.Valid {
		resp.CompletedAt = &l.CompletedAt.Time
	}
	return resp
}

func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0.00"
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}
