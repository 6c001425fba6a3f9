package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mesa-pos/api/internal/database"
	"github.com/mesa-pos/api/internal/enum"
	"github.com/mesa-pos/api/internal/handler"
	"github.com/mesa-pos/api/internal/middleware"
)

// --- Mock ReportStore ---

type mockReportStore struct {
	listOrdersForDayFn   func(ctx context.Context, arg database.ListOrdersForDayParams) ([]database.Order, error)
	listPaymentsForDayFn func(ctx context.Context, arg database.ListPaymentsForDayParams) ([]database.PaymentView, error)
}

func (m *mockReportStore) ListOrdersForDay(ctx context.Context, arg database.ListOrdersForDayParams) ([]database.Order, error) {
	if m.listOrdersForDayFn != nil {
		return m.listOrdersForDayFn(ctx, arg)
	}
	return []database.Order{}, nil
}

func (m *mockReportStore) ListPaymentsForDay(ctx context.Context, arg database.ListPaymentsForDayParams) ([]database.PaymentView, error) {
	if m.listPaymentsForDayFn != nil {
		return m.listPaymentsForDayFn(ctx, arg)
	}
	return []database.PaymentView{}, nil
}

func setupReportRouter(store *mockReportStore) *chi.Mux {
	h := handler.NewReportHandler(store)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/reports", h.RegisterRoutes)
	return r
}

// --- Tests ---

func TestDailyOrders_CountsAndSales(t *testing.T) {
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.Local)
	tableID := uuid.New()

	settled := testDBOrder(tableID)
	settled.Status = enum.OrderStatusSettled
	ready := testDBOrder(tableID)
	ready.Status = enum.OrderStatusReady
	pending := testDBOrder(tableID)

	store := &mockReportStore{
		listOrdersForDayFn: func(ctx context.Context, arg database.ListOrdersForDayParams) ([]database.Order, error) {
			if !arg.Start.Equal(day) {
				t.Errorf("start: got %v, want %v", arg.Start, day)
			}
			if !arg.End.Equal(day.AddDate(0, 0, 1)) {
				t.Errorf("end: got %v, want %v", arg.End, day.AddDate(0, 0, 1))
			}
			return []database.Order{settled, ready, pending}, nil
		},
		listPaymentsForDayFn: func(ctx context.Context, arg database.ListPaymentsForDayParams) ([]database.PaymentView, error) {
			return []database.PaymentView{
				testPaymentView("25.00", day.Add(12*time.Hour)),
				testPaymentView("40.50", day.Add(13*time.Hour)),
			}, nil
		},
	}

	router := setupReportRouter(store)
	rr := doAuthRequest(t, router, "GET", "/reports/orders/2026-03-15", nil, adminClaims())

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["total_orders"] != float64(3) {
		t.Errorf("total_orders: got %v, want 3", resp["total_orders"])
	}
	if resp["pending"] != float64(1) {
		t.Errorf("pending: got %v, want 1", resp["pending"])
	}
	if resp["ready"] != float64(1) {
		t.Errorf("ready: got %v, want 1", resp["ready"])
	}
	if resp["settled"] != float64(1) {
		t.Errorf("settled: got %v, want 1", resp["settled"])
	}
	if resp["payment_count"] != float64(2) {
		t.Errorf("payment_count: got %v, want 2", resp["payment_count"])
	}
	if resp["settled_sales"] != "65.50" {
		t.Errorf("settled_sales: got %v, want 65.50", resp["settled_sales"])
	}
}

func TestDailyOrders_EmptyDay(t *testing.T) {
	store := &mockReportStore{}
	router := setupReportRouter(store)

	rr := doAuthRequest(t, router, "GET", "/reports/orders/2026-03-16", nil, adminClaims())

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["total_orders"] != float64(0) {
		t.Errorf("total_orders: got %v, want 0", resp["total_orders"])
	}
	if resp["settled_sales"] != "0.00" {
		t.Errorf("settled_sales: got %v, want 0.00", resp["settled_sales"])
	}
}

func TestDailyOrders_InvalidDate(t *testing.T) {
	store := &mockReportStore{}
	router := setupReportRouter(store)

	rr := doAuthRequest(t, router, "GET", "/reports/orders/yesterday", nil, adminClaims())

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}
