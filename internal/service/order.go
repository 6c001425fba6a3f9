package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/mesa-pos/api/internal/database"
	"github.com/mesa-pos/api/internal/enum"
)

var (
	ErrEmptyLines         = errors.New("order requires at least one line")
	ErrInvalidQuantity    = errors.New("quantity must be greater than zero")
	ErrInvalidProductID   = errors.New("invalid product id")
	ErrInvalidTableID     = errors.New("invalid table id")
	ErrTableNotFound      = errors.New("table not found")
	ErrProductUnavailable = errors.New("product is not available")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotPending    = errors.New("order can only be revised while pending")
	ErrLineNotFound       = errors.New("order line not found")
)

// maxOrderNumberRetries bounds how often order creation retries after
// losing an order-number race to a concurrent insert.
const maxOrderNumberRetries = 3

// Actor identifies who is performing an operation. Customers act through
// a table session and carry no user ID.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// TxBeginner is the slice of pgxpool.Pool the services need.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore is the data access surface of OrderService.
type OrderStore interface {
	GetLatestOrderNumber(ctx context.Context, prefix string) (string, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOpenOrders(ctx context.Context) ([]database.Order, error)
	ListSettleableOrders(ctx context.Context) ([]database.Order, error)
	ListOrdersForDay(ctx context.Context, arg database.ListOrdersForDayParams) ([]database.Order, error)
	CreateOrderLine(ctx context.Context, arg database.CreateOrderLineParams) (database.OrderLine, error)
	GetOrderLine(ctx context.Context, id uuid.UUID) (database.OrderLine, error)
	ListOrderLinesByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderLineView, error)
	DeleteOrderLines(ctx context.Context, orderID uuid.UUID) error
	UpdateOrderLineCompletion(ctx context.Context, arg database.UpdateOrderLineCompletionParams) (database.OrderLine, error)
	UpdateOrderTotal(ctx context.Context, arg database.UpdateOrderTotalParams) (database.Order, error)
	MarkOrderInPreparation(ctx context.Context, id uuid.UUID) (database.Order, error)
	MarkOrderReady(ctx context.Context, arg database.MarkOrderReadyParams) (database.Order, error)
	GetDiningTable(ctx context.Context, id uuid.UUID) (database.DiningTable, error)
	GetProductForOrder(ctx context.Context, id uuid.UUID) (database.GetProductForOrderRow, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error)
}

// NewOrderStore builds a store bound to the given connection or
// transaction. Injected so tests can substitute mocks.
type NewOrderStore func(db database.DBTX) OrderStore

type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
	now      func() time.Time
}

func NewOrderService(pool TxBeginner, newStore NewOrderStore) *OrderService {
	return &OrderService{pool: pool, newStore: newStore, now: time.Now}
}

type CreateOrderLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	Notes     string `json:"notes,omitempty"`
}

type CreateOrderRequest struct {
	TableID string                   `json:"table_id"`
	Notes   string                   `json:"notes,omitempty"`
	Lines   []CreateOrderLineRequest `json:"lines"`
	Actor   Actor                    `json:"-"`
}

type OrderLineResult struct {
	Line        database.OrderLine
	ProductName string
}

type CreateOrderResult struct {
	Order       database.Order
	TableNumber string
	CreatorName string
	Lines       []OrderLineResult
}

// CreateOrder opens a new order for a table. The order number embeds the
// creation day and a per-day counter; when two orders race for the same
// number, the unique index rejects one and the whole transaction is
// retried with a fresh counter.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyLines
	}
	tableID, err := uuid.Parse(req.TableID)
	if err != nil {
		return nil, ErrInvalidTableID
	}

	var result *CreateOrderResult
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err = s.createOrderTx(ctx, tableID, req)
		if isOrderNumberConflict(err) {
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *OrderService) createOrderTx(ctx context.Context, tableID uuid.UUID, req CreateOrderRequest) (*CreateOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	store := s.newStore(tx)

	now := s.now()

	table, err := store.GetDiningTable(ctx, tableID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("get table: %w", err)
	}

	prefix := fmt.Sprintf("ORD-%s-", now.Format("20060102"))
	latest, err := store.GetLatestOrderNumber(ctx, prefix)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get latest order number: %w", err)
	}
	number := nextOrderNumber(prefix, latest)

	type preparedLine struct {
		productID   uuid.UUID
		productName string
		quantity    int32
		unitPrice   decimal.Decimal
		subtotal    decimal.Decimal
		notes       string
	}

	total := decimal.Zero
	prepared := make([]preparedLine, 0, len(req.Lines))
	for i, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("line %d: %w", i, ErrInvalidQuantity)
		}
		productID, err := uuid.Parse(line.ProductID)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, ErrInvalidProductID)
		}
		product, err := store.GetProductForOrder(ctx, productID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("line %d: %w", i, ErrProductUnavailable)
			}
			return nil, fmt.Errorf("line %d: get product: %w", i, err)
		}
		if !product.IsAvailable || !product.IsActive {
			return nil, fmt.Errorf("line %d: %s: %w", i, product.Name, ErrProductUnavailable)
		}
		unitPrice := numericToDecimal(product.Price)
		subtotal := unitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		total = total.Add(subtotal)
		prepared = append(prepared, preparedLine{
			productID:   productID,
			productName: product.Name,
			quantity:    line.Quantity,
			unitPrice:   unitPrice,
			subtotal:    subtotal,
			notes:       line.Notes,
		})
	}

	createdBy := pgtype.UUID{}
	creatorName := "Customer"
	if req.Actor.Role != enum.UserRoleCustomer {
		creator, err := store.GetUserByID(ctx, req.Actor.ID)
		if err != nil {
			return nil, fmt.Errorf("get creator: %w", err)
		}
		createdBy = pgtype.UUID{Bytes: req.Actor.ID, Valid: true}
		creatorName = creator.FullName
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OrderNumber: number,
		TableID:     tableID,
		CreatedBy:   createdBy,
		Status:      enum.OrderStatusPending,
		Total:       decimalToNumeric(total),
		Notes:       textOrNull(req.Notes),
		CreatedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	lines := make([]OrderLineResult, 0, len(prepared))
	for _, p := range prepared {
		created, err := store.CreateOrderLine(ctx, database.CreateOrderLineParams{
			OrderID:   order.ID,
			ProductID: p.productID,
			Quantity:  p.quantity,
			UnitPrice: decimalToNumeric(p.unitPrice),
			Subtotal:  decimalToNumeric(p.subtotal),
			Notes:     textOrNull(p.notes),
		})
		if err != nil {
			return nil, fmt.Errorf("create order line: %w", err)
		}
		lines = append(lines, OrderLineResult{Line: created, ProductName: p.productName})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &CreateOrderResult{
		Order:       order,
		TableNumber: table.TableNumber,
		CreatorName: creatorName,
		Lines:       lines,
	}, nil
}

type ReviseOrderRequest struct {
	OrderID uuid.UUID
	Notes   string
	Lines   []CreateOrderLineRequest
	Actor   Actor
}

// ReviseOrder replaces the full line set of a pending order and
// recomputes its total. Once the kitchen has started, revision is
// rejected.
func (s *OrderService) ReviseOrder(ctx context.Context, req ReviseOrderRequest) error {
	if len(req.Lines) == 0 {
		return ErrEmptyLines
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("get order: %w", err)
	}
	if order.Status != enum.OrderStatusPending {
		return ErrOrderNotPending
	}

	if err := store.DeleteOrderLines(ctx, order.ID); err != nil {
		return fmt.Errorf("delete order lines: %w", err)
	}

	total := decimal.Zero
	for i, line := range req.Lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("line %d: %w", i, ErrInvalidQuantity)
		}
		productID, err := uuid.Parse(line.ProductID)
		if err != nil {
			return fmt.Errorf("line %d: %w", i, ErrInvalidProductID)
		}
		product, err := store.GetProductForOrder(ctx, productID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("line %d: %w", i, ErrProductUnavailable)
			}
			return fmt.Errorf("line %d: get product: %w", i, err)
		}
		if !product.IsAvailable || !product.IsActive {
			return fmt.Errorf("line %d: %s: %w", i, product.Name, ErrProductUnavailable)
		}
		unitPrice := numericToDecimal(product.Price)
		subtotal := unitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		total = total.Add(subtotal)

		if _, err := store.CreateOrderLine(ctx, database.CreateOrderLineParams{
			OrderID:   order.ID,
			ProductID: productID,
			Quantity:  line.Quantity,
			UnitPrice: decimalToNumeric(unitPrice),
			Subtotal:  decimalToNumeric(subtotal),
			Notes:     textOrNull(line.Notes),
		}); err != nil {
			return fmt.Errorf("line %d: create: %w", i, err)
		}
	}

	if _, err := store.UpdateOrderTotal(ctx, database.UpdateOrderTotalParams{
		ID:    order.ID,
		Total: decimalToNumeric(total),
		Notes: textOrNull(req.Notes),
	}); err != nil {
		return fmt.Errorf("update order total: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type SetLineCompletionRequest struct {
	LineID    uuid.UUID
	Completed bool
	Actor     Actor
}

type SetLineCompletionResult struct {
	Order database.Order
	Line  database.OrderLine
}

// SetLineCompletion flips the completion flag on one line and derives
// the order status from the full line set: every line complete makes the
// order ready, any line complete lifts a pending order into preparation.
// Status only moves forward; unticking a line never demotes the order.
func (s *OrderService) SetLineCompletion(ctx context.Context, req SetLineCompletionRequest) (*SetLineCompletionResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	store := s.newStore(tx)

	line, err := store.GetOrderLine(ctx, req.LineID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLineNotFound
		}
		return nil, fmt.Errorf("get order line: %w", err)
	}

	// Lock the order before touching lines so concurrent cooks on the
	// same order serialize and both see the final line set.
	order, err := store.GetOrderForUpdate(ctx, line.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	completedAt := pgtype.Timestamptz{}
	if req.Completed {
		completedAt = pgtype.Timestamptz{Time: s.now(), Valid: true}
	}
	updated, err := store.UpdateOrderLineCompletion(ctx, database.UpdateOrderLineCompletionParams{
		ID:          line.ID,
		Completed:   req.Completed,
		CompletedAt: completedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("update line completion: %w", err)
	}

	lines, err := store.ListOrderLinesByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order lines: %w", err)
	}
	allComplete := true
	anyComplete := false
	for _, l := range lines {
		if l.Completed {
			anyComplete = true
		} else {
			allComplete = false
		}
	}

	switch {
	case allComplete && CanTransition(order.Status, enum.OrderStatusReady):
		order, err = store.MarkOrderReady(ctx, database.MarkOrderReadyParams{ID: order.ID, ReadyAt: s.now()})
		if err != nil {
			return nil, fmt.Errorf("mark order ready: %w", err)
		}
	case anyComplete && order.Status == enum.OrderStatusPending:
		order, err = store.MarkOrderInPreparation(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("mark order in preparation: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &SetLineCompletionResult{Order: order, Line: updated}, nil
}

// OrderDetail is an order with its line views attached.
type OrderDetail struct {
	Order database.Order
	Lines []database.OrderLineView
}

func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	store := s.newStore(tx)

	order, err := store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	lines, err := store.ListOrderLinesByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order lines: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &OrderDetail{Order: order, Lines: lines}, nil
}

// ListOpenOrders is the kitchen board: pending and in-preparation
// orders with their lines, oldest first.
func (s *OrderService) ListOpenOrders(ctx context.Context) ([]OrderDetail, error) {
	return s.listWithLines(ctx, func(ctx context.Context, store OrderStore) ([]database.Order, error) {
		return store.ListOpenOrders(ctx)
	})
}

// ListSettleableOrders is the cashier board: ready orders first, then
// settled ones.
func (s *OrderService) ListSettleableOrders(ctx context.Context) ([]OrderDetail, error) {
	return s.listWithLines(ctx, func(ctx context.Context, store OrderStore) ([]database.Order, error) {
		return store.ListSettleableOrders(ctx)
	})
}

func (s *OrderService) listWithLines(ctx context.Context, list func(context.Context, OrderStore) ([]database.Order, error)) ([]OrderDetail, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	store := s.newStore(tx)

	orders, err := list(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	details := make([]OrderDetail, 0, len(orders))
	for _, o := range orders {
		lines, err := store.ListOrderLinesByOrder(ctx, o.ID)
		if err != nil {
			return nil, fmt.Errorf("list order lines: %w", err)
		}
		details = append(details, OrderDetail{Order: o, Lines: lines})
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return details, nil
}

// nextOrderNumber increments the counter in the latest number for the
// day, or starts at 1 when the day has no orders yet. Counters print
// with three digits and grow wider naturally past 999.
func nextOrderNumber(prefix, latest string) string {
	n := 1
	if latest != "" {
		if i := strings.LastIndex(latest, "-"); i >= 0 {
			if v, err := strconv.Atoi(latest[i+1:]); err == nil {
				n = v + 1
			}
		}
	}
	return fmt.Sprintf("%s%03d", prefix, n)
}

func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "orders_order_number_key"
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	// StringFixed keeps money at two decimal places on the way in.
	if err := n.Scan(d.StringFixed(2)); err != nil {
		return pgtype.Numeric{}
	}
	return n
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
