package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mesa-pos/api/internal/database"
	"github.com/mesa-pos/api/internal/enum"
)

// ReportStore defines the database methods needed by report handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ReportStore interface {
	ListOrdersForDay(ctx context.Context, arg database.ListOrdersForDayParams) ([]database.Order, error)
	ListPaymentsForDay(ctx context.Context, arg database.ListPaymentsForDayParams) ([]database.PaymentView, error)
}

// ReportHandler handles end-of-day report endpoints.
type ReportHandler struct {
	store ReportStore
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(store ReportStore) *ReportHandler {
	return &ReportHandler{store: store}
}

// RegisterRoutes registers report endpoints on the given Chi router.
func (h *ReportHandler) RegisterRoutes(r chi.Router) {
	r.Get("/orders/{date}", h.DailyOrders)
}

type dailyOrdersResponse struct {
	Date          string          `json:"date"`
	TotalOrders   int             `json:"total_orders"`
	Pending       int             `json:"pending"`
	InPreparation int             `json:"in_preparation"`
	Ready         int             `json:"ready"`
	Settled       int             `json:"settled"`
	PaymentCount  int             `json:"payment_count"`
	SettledSales  string          `json:"settled_sales"`
	Orders        []orderResponse `json:"orders"`
}

// DailyOrders handles GET /reports/orders/{date}. Order counts go by
// creation day; settled sales go by payment day, so an order created
// before midnight and paid after lands in the day it was paid.
func (h *ReportHandler) DailyOrders(w http.ResponseWriter, r *http.Request) {
	// Local midnight, matching the clock order numbers are dated with.
	day, err := time.ParseInLocation("2006-01-02", chi.URLParam(r, "date"), time.Local)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date, expected YYYY-MM-DD"})
		return
	}
	start := day
	end := day.AddDate(0, 0, 1)

	orders, err := h.store.ListOrdersForDay(r.Context(), database.ListOrdersForDayParams{Start: start, End: end})
	if err != nil {
		log.Printf("ERROR: list orders for day: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	payments, err := h.store.ListPaymentsForDay(r.Context(), database.ListPaymentsForDayParams{Start: start, End: end})
	if err != nil {
		log.Printf("ERROR: list payments for day: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := dailyOrdersResponse{
		Date:         day.Format("2006-01-02"),
		TotalOrders:  len(orders),
		PaymentCount: len(payments),
		Orders:       make([]orderResponse, len(orders)),
	}
	for i, o := range orders {
		resp.Orders[i] = dbOrderToResponse(o)
		switch o.Status {
		case enum.OrderStatusPending:
			resp.Pending++
		case enum.OrderStatusInPreparation:
			resp.InPreparation++
		case enum.OrderStatusReady:
			resp.Ready++
		case enum.OrderStatusSettled:
			resp.Settled++
		}
	}

	sales := decimal.Zero
	for _, p := range payments {
		sales = sales.Add(amountToDecimal(p.Amount))
	}
	resp.SettledSales = sales.StringFixed(2)

	writeJSON(w, http.StatusOK, resp)
}
