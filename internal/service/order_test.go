package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/mesa-pos/api/internal/database"
	"github.com/mesa-pos/api/internal/enum"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr   error
	rollbackErr error
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error          { return m.commitErr }
func (m *mockTx) Rollback(ctx context.Context) error        { return m.rollbackErr }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner.
type mockTxBeginner struct {
	tx  pgx.Tx
	err error
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.tx, m.err
}

// mockOrderStore implements OrderStore with configurable behavior.
type mockOrderStore struct {
	getLatestOrderNumberFn      func(ctx context.Context, prefix string) (string, error)
	createOrderFn               func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	getOrderFn                  func(ctx context.Context, id uuid.UUID) (database.Order, error)
	getOrderForUpdateFn         func(ctx context.Context, id uuid.UUID) (database.Order, error)
	listOpenOrdersFn            func(ctx context.Context) ([]database.Order, error)
	listSettleableOrdersFn      func(ctx context.Context) ([]database.Order, error)
	listOrdersForDayFn          func(ctx context.Context, arg database.ListOrdersForDayParams) ([]database.Order, error)
	createOrderLineFn           func(ctx context.Context, arg database.CreateOrderLineParams) (database.OrderLine, error)
	getOrderLineFn              func(ctx context.Context, id uuid.UUID) (database.OrderLine, error)
	listOrderLinesByOrderFn     func(ctx context.Context, orderID uuid.UUID) ([]database.OrderLineView, error)
	deleteOrderLinesFn          func(ctx context.Context, orderID uuid.UUID) error
	updateOrderLineCompletionFn func(ctx context.Context, arg database.UpdateOrderLineCompletionParams) (database.OrderLine, error)
	updateOrderTotalFn          func(ctx context.Context, arg database.UpdateOrderTotalParams) (database.Order, error)
	markOrderInPreparationFn    func(ctx context.Context, id uuid.UUID) (database.Order, error)
	markOrderReadyFn            func(ctx context.Context, arg database.MarkOrderReadyParams) (database.Order, error)
	getDiningTableFn            func(ctx context.Context, id uuid.UUID) (database.DiningTable, error)
	getProductForOrderFn        func(ctx context.Context, id uuid.UUID) (database.GetProductForOrderRow, error)
	getUserByIDFn               func(ctx context.Context, id uuid.UUID) (database.User, error)
}

func (m *mockOrderStore) GetLatestOrderNumber(ctx context.Context, prefix string) (string, error) {
	return m.getLatestOrderNumberFn(ctx, prefix)
}
func (m *mockOrderStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	return m.createOrderFn(ctx, arg)
}
func (m *mockOrderStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return m.getOrderFn(ctx, id)
}
func (m *mockOrderStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return m.getOrderForUpdateFn(ctx, id)
}
func (m *mockOrderStore) ListOpenOrders(ctx context.Context) ([]database.Order, error) {
	return m.listOpenOrdersFn(ctx)
}
func (m *mockOrderStore) ListSettleableOrders(ctx context.Context) ([]database.Order, error) {
	return m.listSettleableOrdersFn(ctx)
}
func (m *mockOrderStore) ListOrdersForDay(ctx context.Context, arg database.ListOrdersForDayParams) ([]database.Order, error) {
	return m.listOrdersForDayFn(ctx, arg)
}
func (m *mockOrderStore) CreateOrderLine(ctx context.Context, arg database.CreateOrderLineParams) (database.OrderLine, error) {
	return m.createOrderLineFn(ctx, arg)
}
func (m *mockOrderStore) GetOrderLine(ctx context.Context, id uuid.UUID) (database.OrderLine, error) {
	return m.getOrderLineFn(ctx, id)
}
func (m *mockOrderStore) ListOrderLinesByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderLineView, error) {
	return m.listOrderLinesByOrderFn(ctx, orderID)
}
func (m *mockOrderStore) DeleteOrderLines(ctx context.Context, orderID uuid.UUID) error {
	return m.deleteOrderLinesFn(ctx, orderID)
}
func (m *mockOrderStore) UpdateOrderLineCompletion(ctx context.Context, arg database.UpdateOrderLineCompletionParams) (database.OrderLine, error) {
	return m.updateOrderLineCompletionFn(ctx, arg)
}
func (m *mockOrderStore) UpdateOrderTotal(ctx context.Context, arg database.UpdateOrderTotalParams) (database.Order, error) {
	return m.updateOrderTotalFn(ctx, arg)
}
func (m *mockOrderStore) MarkOrderInPreparation(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return m.markOrderInPreparationFn(ctx, id)
}
func (m *mockOrderStore) MarkOrderReady(ctx context.Context, arg database.MarkOrderReadyParams) (database.Order, error) {
	return m.markOrderReadyFn(ctx, arg)
}
func (m *mockOrderStore) GetDiningTable(ctx context.Context, id uuid.UUID) (database.DiningTable, error) {
	return m.getDiningTableFn(ctx, id)
}
func (m *mockOrderStore) GetProductForOrder(ctx context.Context, id uuid.UUID) (database.GetProductForOrderRow, error) {
	return m.getProductForOrderFn(ctx, id)
}
func (m *mockOrderStore) GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error) {
	return m.getUserByIDFn(ctx, id)
}

// --- Test helpers ---

func makeNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

func numericEquals(n pgtype.Numeric, expected string) bool {
	d := numericToDecimal(n)
	exp, _ := decimal.NewFromString(expected)
	return d.Equal(exp)
}

// testDay pins the clock so order number prefixes are predictable.
var testDay = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// newTestService creates an OrderService with mocked dependencies and a
// fixed clock.
func newTestService(store *mockOrderStore) (*OrderService, *mockTx) {
	tx := &mockTx{}
	pool := &mockTxBeginner{tx: tx}
	newStore := func(db database.DBTX) OrderStore { return store }
	svc := NewOrderService(pool, newStore)
	svc.now = func() time.Time { return testDay }
	return svc, tx
}

// defaultStore returns a mockOrderStore with sensible defaults for a
// basic order. Individual tests override the functions they care about.
func defaultStore(tableID, productID uuid.UUID) *mockOrderStore {
	return &mockOrderStore{
		getLatestOrderNumberFn: func(ctx context.Context, prefix string) (string, error) {
			return "", pgx.ErrNoRows
		},
		getDiningTableFn: func(ctx context.Context, id uuid.UUID) (database.DiningTable, error) {
			if id == tableID {
				return database.DiningTable{ID: tableID, TableNumber: "T1", IsActive: true}, nil
			}
			return database.DiningTable{}, pgx.ErrNoRows
		},
		getProductForOrderFn: func(ctx context.Context, id uuid.UUID) (database.GetProductForOrderRow, error) {
			if id == productID {
				return database.GetProductForOrderRow{
					ID:          productID,
					Name:        "Margherita",
					Price:       makeNumeric("10.00"),
					IsAvailable: true,
					IsActive:    true,
				}, nil
			}
			return database.GetProductForOrderRow{}, pgx.ErrNoRows
		},
		getUserByIDFn: func(ctx context.Context, id uuid.UUID) (database.User, error) {
			return database.User{ID: id, FullName: "Ana Waiter", Role: enum.UserRoleWaiter, IsActive: true}, nil
		},
		createOrderFn: func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
			return database.Order{
				ID:          uuid.New(),
				OrderNumber: arg.OrderNumber,
				TableID:     arg.TableID,
				CreatedBy:   arg.CreatedBy,
				Status:      arg.Status,
				Total:       arg.Total,
				Notes:       arg.Notes,
				CreatedAt:   arg.CreatedAt,
			}, nil
		},
		createOrderLineFn: func(ctx context.Context, arg database.CreateOrderLineParams) (database.OrderLine, error) {
			return database.OrderLine{
				ID:        uuid.New(),
				OrderID:   arg.OrderID,
				ProductID: arg.ProductID,
				Quantity:  arg.Quantity,
				UnitPrice: arg.UnitPrice,
				Subtotal:  arg.Subtotal,
				Notes:     arg.Notes,
			}, nil
		},
	}
}

func basicReq(tableID uuid.UUID, productID string) CreateOrderRequest {
	return CreateOrderRequest{
		TableID: tableID.String(),
		Lines: []CreateOrderLineRequest{
			{ProductID: productID, Quantity: 2},
		},
		Actor: Actor{ID: uuid.New(), Role: enum.UserRoleWaiter},
	}
}

// =====================
// Validation tests
// =====================

func TestCreateOrder_EmptyLines(t *testing.T) {
	store := defaultStore(uuid.New(), uuid.New())
	svc, _ := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		TableID: uuid.New().String(),
		Lines:   nil,
		Actor:   Actor{ID: uuid.New(), Role: enum.UserRoleWaiter},
	})
	if !errors.Is(err, ErrEmptyLines) {
		t.Fatalf("expected ErrEmptyLines, got: %v", err)
	}
}

func TestCreateOrder_InvalidTableID(t *testing.T) {
	store := defaultStore(uuid.New(), uuid.New())
	svc, _ := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		TableID: "not-a-uuid",
		Lines: []CreateOrderLineRequest{
			{ProductID: uuid.New().String(), Quantity: 1},
		},
		Actor: Actor{ID: uuid.New(), Role: enum.UserRoleWaiter},
	})
	if !errors.Is(err, ErrInvalidTableID) {
		t.Fatalf("expected ErrInvalidTableID, got: %v", err)
	}
}

func TestCreateOrder_TableNotFound(t *testing.T) {
	store := defaultStore(uuid.New(), uuid.New()) // store knows a different table
	svc, _ := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), basicReq(uuid.New(), uuid.New().String()))
	if !errors.Is(err, ErrTableNotFound) {
		t.Fatalf("expected ErrTableNotFound, got: %v", err)
	}
}

func TestCreateOrder_ZeroQuantity(t *testing.T) {
	tableID := uuid.New()
	productID := uuid.New()
	store := defaultStore(tableID, productID)
	svc, _ := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		TableID: tableID.String(),
		Lines: []CreateOrderLineRequest{
			{ProductID: productID.String(), Quantity: 0},
		},
		Actor: Actor{ID: uuid.New(), Role: enum.UserRoleWaiter},
	})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got: %v", err)
	}
}

func TestCreateOrder_MissingProductID(t *testing.T) {
	tableID := uuid.New()
	store := defaultStore(tableID, uuid.New())
	svc, _ := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		TableID: tableID.String(),
		Lines: []CreateOrderLineRequest{
			{ProductID: "", Quantity: 1},
		},
		Actor: Actor{ID: uuid.New(), Role: enum.UserRoleWaiter},
	})
	if !errors.Is(err, ErrInvalidProductID) {
		t.Fatalf("expected ErrInvalidProductID, got: %v", err)
	}
}

func TestCreateOrder_ProductNotFound(t *testing.T) {
	tableID := uuid.New()
	store := defaultStore(tableID, uuid.New()) // store knows a different product
	svc, _ := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), basicReq(tableID, uuid.New().String()))
	if !errors.Is(err, ErrProductUnavailable) {
		t.Fatalf("expected ErrProductUnavailable, got: %v", err)
	}
}

func TestCreateOrder_ProductMarkedUnavailable(t *testing.T) {
	tableID := uuid.New()
	productID := uuid.New()
	store := defaultStore(tableID, productID)
	store.getProductForOrderFn = func(ctx context.Context, id uuid.UUID) (database.GetProductForOrderRow, error) {
		return database.GetProductForOrderRow{
			ID: productID, Name: "86'd Special", Price: makeNumeric("10.00"),
			IsAvailable: false, IsActive: true,
		}, nil
	}
	svc, _ := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), basicReq(tableID, productID.String()))
	if !errors.Is(err, ErrProductUnavailable) {
		t.Fatalf("expected ErrProductUnavailable, got: %v", err)
	}
}

// =====================
// Total calculation tests
// =====================

func TestCreateOrder_TotalAcrossLines(t *testing.T) {
	tableID := uuid.New()
	productA := uuid.New()
	productB := uuid.New()

	store := defaultStore(tableID, productA)
	store.getProductForOrderFn = func(ctx context.Context, id uuid.UUID) (database.GetProductForOrderRow, error) {
		switch id {
		case productA:
			return database.GetProductForOrderRow{
				ID: productA, Name: "Margherita", Price: makeNumeric("10.00"),
				IsAvailable: true, IsActive: true,
			}, nil
		case productB:
			return database.GetProductForOrderRow{
				ID: productB, Name: "Lemonade", Price: makeNumeric("5.00"),
				IsAvailable: true, IsActive: true,
			}, nil
		}
		return database.GetProductForOrderRow{}, pgx.ErrNoRows
	}

	var capturedOrder database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		capturedOrder = arg
		return database.Order{ID: uuid.New(), OrderNumber: arg.OrderNumber, Status: arg.Status, Total: arg.Total}, nil
	}
	var capturedLines []database.CreateOrderLineParams
	store.createOrderLineFn = func(ctx context.Context, arg database.CreateOrderLineParams) (database.OrderLine, error) {
		capturedLines = append(capturedLines, arg)
		return database.OrderLine{ID: uuid.New(), OrderID: arg.OrderID, ProductID: arg.ProductID, Quantity: arg.Quantity, UnitPrice: arg.UnitPrice, Subtotal: arg.Subtotal}, nil
	}

	svc, _ := newTestService(store)
	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		TableID: tableID.String(),
		Lines: []CreateOrderLineRequest{
			{ProductID: productA.String(), Quantity: 2}, // 10.00 * 2 = 20.00
			{ProductID: productB.String(), Quantity: 1}, // 5.00 * 1 = 5.00
		},
		Actor: Actor{ID: uuid.New(), Role: enum.UserRoleWaiter},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !numericEquals(capturedOrder.Total, "25.00") {
		t.Errorf("order total: got %v, want 25.00", numericToDecimal(capturedOrder.Total))
	}
	if len(capturedLines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(capturedLines))
	}
	if !numericEquals(capturedLines[0].UnitPrice, "10.00") {
		t.Errorf("line 0 unit price: got %v, want 10.00", numericToDecimal(capturedLines[0].UnitPrice))
	}
	if !numericEquals(capturedLines[0].Subtotal, "20.00") {
		t.Errorf("line 0 subtotal: got %v, want 20.00", numericToDecimal(capturedLines[0].Subtotal))
	}
	if !numericEquals(capturedLines[1].Subtotal, "5.00") {
		t.Errorf("line 1 subtotal: got %v, want 5.00", numericToDecimal(capturedLines[1].Subtotal))
	}
	if capturedOrder.Status != enum.OrderStatusPending {
		t.Errorf("status: got %v, want PENDING", capturedOrder.Status)
	}
}

func TestCreateOrder_PriceSnapshotFromCatalog(t *testing.T) {
	tableID := uuid.New()
	productID := uuid.New()
	store := defaultStore(tableID, productID)

	var captured database.CreateOrderLineParams
	store.createOrderLineFn = func(ctx context.Context, arg database.CreateOrderLineParams) (database.OrderLine, error) {
		captured = arg
		return database.OrderLine{ID: uuid.New(), OrderID: arg.OrderID}, nil
	}

	svc, _ := newTestService(store)
	_, err := svc.CreateOrder(context.Background(), basicReq(tableID, productID.String()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Catalog price is copied onto the line, so later price edits never
	// rewrite history.
	if !numericEquals(captured.UnitPrice, "10.00") {
		t.Errorf("unit price: got %v, want 10.00", numericToDecimal(captured.UnitPrice))
	}
}

// =====================
// Creator attribution tests
// =====================

func TestCreateOrder_StaffCreatorRecorded(t *testing.T) {
	tableID := uuid.New()
	productID := uuid.New()
	waiterID := uuid.New()
	store := defaultStore(tableID, productID)

	var capturedOrder database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		capturedOrder = arg
		return database.Order{ID: uuid.New(), OrderNumber: arg.OrderNumber, CreatedBy: arg.CreatedBy}, nil
	}

	svc, _ := newTestService(store)
	req := basicReq(tableID, productID.String())
	req.Actor = Actor{ID: waiterID, Role: enum.UserRoleWaiter}
	result, err := svc.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !capturedOrder.CreatedBy.Valid || capturedOrder.CreatedBy.Bytes != waiterID {
		t.Errorf("created_by: got %v, want %v", capturedOrder.CreatedBy, waiterID)
	}
	if result.CreatorName != "Ana Waiter" {
		t.Errorf("creator name: got %q, want %q", result.CreatorName, "Ana Waiter")
	}
}

func TestCreateOrder_CustomerCreatorIsNull(t *testing.T) {
	tableID := uuid.New()
	productID := uuid.New()
	store := defaultStore(tableID, productID)
	store.getUserByIDFn = func(ctx context.Context, id uuid.UUID) (database.User, error) {
		t.Fatal("customer orders must not look up a user")
		return database.User{}, nil
	}

	var capturedOrder database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		capturedOrder = arg
		return database.Order{ID: uuid.New(), OrderNumber: arg.OrderNumber, CreatedBy: arg.CreatedBy}, nil
	}

	svc, _ := newTestService(store)
	req := basicReq(tableID, productID.String())
	req.Actor = Actor{Role: enum.UserRoleCustomer}
	result, err := svc.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if capturedOrder.CreatedBy.Valid {
		t.Error("created_by should be null for customer orders")
	}
	if result.CreatorName != "Customer" {
		t.Errorf("creator name: got %q, want %q", result.CreatorName, "Customer")
	}
}

// =====================
// Order number generation tests
// =====================

func TestNextOrderNumber(t *testing.T) {
	tests := []struct {
		name   string
		latest string
		want   string
	}{
		{"first of day", "", "ORD-20260315-001"},
		{"increments", "ORD-20260315-041", "ORD-20260315-042"},
		{"into three digits", "ORD-20260315-099", "ORD-20260315-100"},
		{"past padded range", "ORD-20260315-999", "ORD-20260315-1000"},
		{"wide counter keeps growing", "ORD-20260315-1000", "ORD-20260315-1001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextOrderNumber("ORD-20260315-", tt.latest)
			if got != tt.want {
				t.Errorf("nextOrderNumber(%q): got %q, want %q", tt.latest, got, tt.want)
			}
		})
	}
}

func TestCreateOrder_FirstOrderOfDay(t *testing.T) {
	tableID := uuid.New()
	productID := uuid.New()
	store := defaultStore(tableID, productID)

	var capturedPrefix string
	store.getLatestOrderNumberFn = func(ctx context.Context, prefix string) (string, error) {
		capturedPrefix = prefix
		return "", pgx.ErrNoRows
	}
	var capturedOrder database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		capturedOrder = arg
		return database.Order{ID: uuid.New(), OrderNumber: arg.OrderNumber}, nil
	}

	svc, _ := newTestService(store)
	result, err := svc.CreateOrder(context.Background(), basicReq(tableID, productID.String()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if capturedPrefix != "ORD-20260315-" {
		t.Errorf("prefix: got %q, want ORD-20260315-", capturedPrefix)
	}
	if capturedOrder.OrderNumber != "ORD-20260315-001" {
		t.Errorf("order number: got %q, want ORD-20260315-001", capturedOrder.OrderNumber)
	}
	if result.Order.OrderNumber != "ORD-20260315-001" {
		t.Errorf("result order number: got %q, want ORD-20260315-001", result.Order.OrderNumber)
	}
}

func TestCreateOrder_SubsequentOrder(t *testing.T) {
	tableID := uuid.New()
	productID := uuid.New()
	store := defaultStore(tableID, productID)
	store.getLatestOrderNumberFn = func(ctx context.Context, prefix string) (string, error) {
		return "ORD-20260315-041", nil
	}

	var capturedOrder database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		capturedOrder = arg
		return database.Order{ID: uuid.New(), OrderNumber: arg.OrderNumber}, nil
	}

	svc, _ := newTestService(store)
	_, err := svc.CreateOrder(context.Background(), basicReq(tableID, productID.String()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if capturedOrder.OrderNumber != "ORD-20260315-042" {
		t.Errorf("order number: got %q, want ORD-20260315-042", capturedOrder.OrderNumber)
	}
}

// =====================
// Retry on unique constraint violation
// =====================

func TestCreateOrder_RetryOnUniqueViolation(t *testing.T) {
	tableID := uuid.New()
	productID := uuid.New()
	store := defaultStore(tableID, productID)

	createCallCount := 0
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		createCallCount++
		if createCallCount == 1 {
			return database.Order{}, &pgconn.PgError{
				Code:           "23505",
				ConstraintName: "orders_order_number_key",
			}
		}
		return database.Order{ID: uuid.New(), OrderNumber: arg.OrderNumber}, nil
	}

	numberCallCount := 0
	store.getLatestOrderNumberFn = func(ctx context.Context, prefix string) (string, error) {
		numberCallCount++
		return "", pgx.ErrNoRows
	}

	svc, _ := newTestService(store)
	result, err := svc.CreateOrder(context.Background(), basicReq(tableID, productID.String()))
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if result == nil {
		t.Fatal("expected result, got nil")
	}
	if createCallCount != 2 {
		t.Errorf("expected 2 CreateOrder calls (1 fail + 1 success), got %d", createCallCount)
	}
	if numberCallCount != 2 {
		t.Errorf("expected 2 GetLatestOrderNumber calls, got %d", numberCallCount)
	}
}

func TestCreateOrder_RetryExhausted(t *testing.T) {
	tableID := uuid.New()
	productID := uuid.New()
	store := defaultStore(tableID, productID)

	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		return database.Order{}, &pgconn.PgError{
			Code:           "23505",
			ConstraintName: "orders_order_number_key",
		}
	}

	svc, _ := newTestService(store)
	_, err := svc.CreateOrder(context.Background(), basicReq(tableID, productID.String()))
	if err == nil {
		t.Fatal("expected error after exhausting retries, got nil")
	}
	if !strings.Contains(err.Error(), "create order") {
		t.Errorf("expected 'create order' in error message, got: %v", err)
	}
}

func TestCreateOrder_NonUniqueErrorNotRetried(t *testing.T) {
	tableID := uuid.New()
	productID := uuid.New()
	store := defaultStore(tableID, productID)

	callCount := 0
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		callCount++
		return database.Order{}, errors.New("some other DB error")
	}

	svc, _ := newTestService(store)
	_, err := svc.CreateOrder(context.Background(), basicReq(tableID, productID.String()))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if callCount != 1 {
		t.Errorf("non-unique errors should not retry: expected 1 call, got %d", callCount)
	}
}

// =====================
// Revision tests
// =====================

func reviseReq(orderID, productID uuid.UUID) ReviseOrderRequest {
	return ReviseOrderRequest{
		OrderID: orderID,
		Lines: []CreateOrderLineRequest{
			{ProductID: productID.String(), Quantity: 3},
		},
		Actor: Actor{ID: uuid.New(), Role: enum.UserRoleWaiter},
	}
}

func TestReviseOrder_NotFound(t *testing.T) {
	store := defaultStore(uuid.New(), uuid.New())
	store.getOrderForUpdateFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return database.Order{}, pgx.ErrNoRows
	}
	svc, _ := newTestService(store)

	err := svc.ReviseOrder(context.Background(), reviseReq(uuid.New(), uuid.New()))
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got: %v", err)
	}
}

func TestReviseOrder_RejectedOnceInPreparation(t *testing.T) {
	orderID := uuid.New()
	store := defaultStore(uuid.New(), uuid.New())
	store.getOrderForUpdateFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return database.Order{ID: orderID, Status: enum.OrderStatusInPreparation}, nil
	}
	store.deleteOrderLinesFn = func(ctx context.Context, orderID uuid.UUID) error {
		t.Fatal("lines must not be touched once the kitchen has started")
		return nil
	}
	svc, _ := newTestService(store)

	err := svc.ReviseOrder(context.Background(), reviseReq(orderID, uuid.New()))
	if !errors.Is(err, ErrOrderNotPending) {
		t.Fatalf("expected ErrOrderNotPending, got: %v", err)
	}
}

func TestReviseOrder_EmptyLines(t *testing.T) {
	store := defaultStore(uuid.New(), uuid.New())
	svc, _ := newTestService(store)

	err := svc.ReviseOrder(context.Background(), ReviseOrderRequest{OrderID: uuid.New()})
	if !errors.Is(err, ErrEmptyLines) {
		t.Fatalf("expected ErrEmptyLines, got: %v", err)
	}
}

func TestReviseOrder_ReplacesLinesAndRecomputesTotal(t *testing.T) {
	orderID := uuid.New()
	productID := uuid.New()
	store := defaultStore(uuid.New(), productID)
	store.getOrderForUpdateFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return database.Order{ID: orderID, Status: enum.OrderStatusPending, Total: makeNumeric("20.00")}, nil
	}

	deleted := false
	store.deleteOrderLinesFn = func(ctx context.Context, id uuid.UUID) error {
		if id != orderID {
			t.Errorf("deleting lines of wrong order: %v", id)
		}
		deleted = true
		return nil
	}
	var capturedTotal database.UpdateOrderTotalParams
	store.updateOrderTotalFn = func(ctx context.Context, arg database.UpdateOrderTotalParams) (database.Order, error) {
		capturedTotal = arg
		return database.Order{ID: arg.ID, Total: arg.Total}, nil
	}

	svc, _ := newTestService(store)
	err := svc.ReviseOrder(context.Background(), reviseReq(orderID, productID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !deleted {
		t.Error("expected old lines to be deleted")
	}
	// 10.00 * 3 = 30.00
	if !numericEquals(capturedTotal.Total, "30.00") {
		t.Errorf("recomputed total: got %v, want 30.00", numericToDecimal(capturedTotal.Total))
	}
}

// =====================
// Line completion tests
// =====================

func lineView(orderID uuid.UUID, completed bool) database.OrderLineView {
	return database.OrderLineView{
		OrderLine: database.OrderLine{
			ID:        uuid.New(),
			OrderID:   orderID,
			ProductID: uuid.New(),
			Quantity:  1,
			Completed: completed,
		},
		ProductName: "Margherita",
	}
}

func completionStore(orderID, lineID uuid.UUID, status string) *mockOrderStore {
	store := defaultStore(uuid.New(), uuid.New())
	store.getOrderLineFn = func(ctx context.Context, id uuid.UUID) (database.OrderLine, error) {
		if id == lineID {
			return database.OrderLine{ID: lineID, OrderID: orderID}, nil
		}
		return database.OrderLine{}, pgx.ErrNoRows
	}
	store.getOrderForUpdateFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return database.Order{ID: orderID, Status: status}, nil
	}
	store.updateOrderLineCompletionFn = func(ctx context.Context, arg database.UpdateOrderLineCompletionParams) (database.OrderLine, error) {
		return database.OrderLine{ID: arg.ID, OrderID: orderID, Completed: arg.Completed, CompletedAt: arg.CompletedAt}, nil
	}
	store.markOrderInPreparationFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return database.Order{ID: id, Status: enum.OrderStatusInPreparation}, nil
	}
	store.markOrderReadyFn = func(ctx context.Context, arg database.MarkOrderReadyParams) (database.Order, error) {
		return database.Order{ID: arg.ID, Status: enum.OrderStatusReady, ReadyAt: pgtype.Timestamptz{Time: arg.ReadyAt, Valid: true}}, nil
	}
	return store
}

func TestSetLineCompletion_LineNotFound(t *testing.T) {
	store := completionStore(uuid.New(), uuid.New(), enum.OrderStatusPending)
	svc, _ := newTestService(store)

	_, err := svc.SetLineCompletion(context.Background(), SetLineCompletionRequest{
		LineID:    uuid.New(),
		Completed: true,
		Actor:     Actor{ID: uuid.New(), Role: enum.UserRoleCook},
	})
	if !errors.Is(err, ErrLineNotFound) {
		t.Fatalf("expected ErrLineNotFound, got: %v", err)
	}
}

func TestSetLineCompletion_FirstLineMovesOrderToPreparation(t *testing.T) {
	orderID := uuid.New()
	lineID := uuid.New()
	store := completionStore(orderID, lineID, enum.OrderStatusPending)
	store.listOrderLinesByOrderFn = func(ctx context.Context, id uuid.UUID) ([]database.OrderLineView, error) {
		return []database.OrderLineView{lineView(orderID, true), lineView(orderID, false)}, nil
	}

	readyCalled := false
	store.markOrderReadyFn = func(ctx context.Context, arg database.MarkOrderReadyParams) (database.Order, error) {
		readyCalled = true
		return database.Order{ID: arg.ID, Status: enum.OrderStatusReady}, nil
	}

	svc, _ := newTestService(store)
	result, err := svc.SetLineCompletion(context.Background(), SetLineCompletionRequest{
		LineID:    lineID,
		Completed: true,
		Actor:     Actor{ID: uuid.New(), Role: enum.UserRoleCook},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Order.Status != enum.OrderStatusInPreparation {
		t.Errorf("order status: got %v, want IN_PREPARATION", result.Order.Status)
	}
	if readyCalled {
		t.Error("order must not be marked ready with incomplete lines")
	}
	if !result.Line.Completed {
		t.Error("line should be completed")
	}
	if !result.Line.CompletedAt.Valid {
		t.Error("completed_at should be stamped")
	}
}

func TestSetLineCompletion_LastLineMovesOrderToReady(t *testing.T) {
	orderID := uuid.New()
	lineID := uuid.New()
	store := completionStore(orderID, lineID, enum.OrderStatusInPreparation)
	store.listOrderLinesByOrderFn = func(ctx context.Context, id uuid.UUID) ([]database.OrderLineView, error) {
		return []database.OrderLineView{lineView(orderID, true), lineView(orderID, true)}, nil
	}

	svc, _ := newTestService(store)
	result, err := svc.SetLineCompletion(context.Background(), SetLineCompletionRequest{
		LineID:    lineID,
		Completed: true,
		Actor:     Actor{ID: uuid.New(), Role: enum.UserRoleCook},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Order.Status != enum.OrderStatusReady {
		t.Errorf("order status: got %v, want READY", result.Order.Status)
	}
	if !result.Order.ReadyAt.Valid {
		t.Error("ready_at should be stamped")
	}
}

func TestSetLineCompletion_SingleLineJumpsPendingToReady(t *testing.T) {
	orderID := uuid.New()
	lineID := uuid.New()
	store := completionStore(orderID, lineID, enum.OrderStatusPending)
	store.listOrderLinesByOrderFn = func(ctx context.Context, id uuid.UUID) ([]database.OrderLineView, error) {
		return []database.OrderLineView{lineView(orderID, true)}, nil
	}

	svc, _ := newTestService(store)
	result, err := svc.SetLineCompletion(context.Background(), SetLineCompletionRequest{
		LineID:    lineID,
		Completed: true,
		Actor:     Actor{ID: uuid.New(), Role: enum.UserRoleCook},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Order.Status != enum.OrderStatusReady {
		t.Errorf("order status: got %v, want READY", result.Order.Status)
	}
}

func TestSetLineCompletion_UntickDoesNotDemoteOrder(t *testing.T) {
	orderID := uuid.New()
	lineID := uuid.New()
	store := completionStore(orderID, lineID, enum.OrderStatusInPreparation)
	store.listOrderLinesByOrderFn = func(ctx context.Context, id uuid.UUID) ([]database.OrderLineView, error) {
		return []database.OrderLineView{lineView(orderID, false), lineView(orderID, false)}, nil
	}
	store.markOrderInPreparationFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		t.Fatal("no transition expected")
		return database.Order{}, nil
	}
	store.markOrderReadyFn = func(ctx context.Context, arg database.MarkOrderReadyParams) (database.Order, error) {
		t.Fatal("no transition expected")
		return database.Order{}, nil
	}

	svc, _ := newTestService(store)
	result, err := svc.SetLineCompletion(context.Background(), SetLineCompletionRequest{
		LineID:    lineID,
		Completed: false,
		Actor:     Actor{ID: uuid.New(), Role: enum.UserRoleCook},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Order.Status != enum.OrderStatusInPreparation {
		t.Errorf("order status: got %v, want IN_PREPARATION unchanged", result.Order.Status)
	}
	if result.Line.CompletedAt.Valid {
		t.Error("completed_at should be cleared when unticking")
	}
}

func TestSetLineCompletion_ReadyOrderStaysReady(t *testing.T) {
	orderID := uuid.New()
	lineID := uuid.New()
	store := completionStore(orderID, lineID, enum.OrderStatusReady)
	store.listOrderLinesByOrderFn = func(ctx context.Context, id uuid.UUID) ([]database.OrderLineView, error) {
		return []database.OrderLineView{lineView(orderID, false)}, nil
	}
	store.markOrderInPreparationFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		t.Fatal("ready orders must not move backward")
		return database.Order{}, nil
	}
	store.markOrderReadyFn = func(ctx context.Context, arg database.MarkOrderReadyParams) (database.Order, error) {
		t.Fatal("ready orders must not transition again")
		return database.Order{}, nil
	}

	svc, _ := newTestService(store)
	result, err := svc.SetLineCompletion(context.Background(), SetLineCompletionRequest{
		LineID:    lineID,
		Completed: false,
		Actor:     Actor{ID: uuid.New(), Role: enum.UserRoleCook},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Order.Status != enum.OrderStatusReady {
		t.Errorf("order status: got %v, want READY unchanged", result.Order.Status)
	}
}
