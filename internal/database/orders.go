package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, table_id, created_by, status, total, notes, created_at, ready_at, settled_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.TableID, &o.CreatedBy, &o.Status,
		&o.Total, &o.Notes, &o.CreatedAt, &o.ReadyAt, &o.SettledAt,
	)
	return o, err
}

// GetLatestOrderNumber returns the highest order number with the given
// day prefix. Ordering by length first keeps variable-width counters
// (past 999) comparing numerically rather than lexically.
func (q *Queries) GetLatestOrderNumber(ctx context.Context, prefix string) (string, error) {
	row := q.db.QueryRow(ctx, `
		SELECT order_number FROM orders
		WHERE order_number LIKE $1 || '%'
		ORDER BY length(order_number) DESC, order_number DESC
		LIMIT 1`, prefix)
	var number string
	err := row.Scan(&number)
	return number, err
}

type CreateOrderParams struct {
	OrderNumber string
	TableID     uuid.UUID
	CreatedBy   pgtype.UUID
	Status      string
	Total       pgtype.Numeric
	Notes       pgtype.Text
	CreatedAt   time.Time
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO orders (order_number, table_id, created_by, status, total, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+orderColumns,
		arg.OrderNumber, arg.TableID, arg.CreatedBy, arg.Status, arg.Total, arg.Notes, arg.CreatedAt)
	return scanOrder(row)
}

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

// GetOrderForUpdate locks the order row for the duration of the
// transaction so concurrent completion/revision/payment calls against the
// same order serialize instead of racing read-then-write.
func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR NO KEY UPDATE`, id)
	return scanOrder(row)
}

// ListOpenOrders returns orders the kitchen still owes, oldest first.
func (q *Queries) ListOpenOrders(ctx context.Context) ([]Order, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status IN ('PENDING', 'IN_PREPARATION')
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ListSettleableOrders returns the cashier queue: ready orders first,
// then settled ones, each by the time they entered that state.
func (q *Queries) ListSettleableOrders(ctx context.Context) ([]Order, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status IN ('READY', 'SETTLED')
		ORDER BY (status = 'READY') DESC, COALESCE(ready_at, settled_at) ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type ListOrdersForDayParams struct {
	Start time.Time
	End   time.Time
}

func (q *Queries) ListOrdersForDay(ctx context.Context, arg ListOrdersForDayParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC`, arg.Start, arg.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type CreateOrderLineParams struct {
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int32
	UnitPrice pgtype.Numeric
	Subtotal  pgtype.Numeric
	Notes     pgtype.Text
}

func (q *Queries) CreateOrderLine(ctx context.Context, arg CreateOrderLineParams) (OrderLine, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO order_lines (order_id, product_id, quantity, unit_price, subtotal, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, order_id, product_id, quantity, unit_price, subtotal, notes, completed, completed_at`,
		arg.OrderID, arg.ProductID, arg.Quantity, arg.UnitPrice, arg.Subtotal, arg.Notes)
	var l OrderLine
	err := row.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.Subtotal, &l.Notes, &l.Completed, &l.CompletedAt)
	return l, err
}

func (q *Queries) GetOrderLine(ctx context.Context, id uuid.UUID) (OrderLine, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price, subtotal, notes, completed, completed_at
		FROM order_lines WHERE id = $1`, id)
	var l OrderLine
	err := row.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.Subtotal, &l.Notes, &l.Completed, &l.CompletedAt)
	return l, err
}

func (q *Queries) ListOrderLinesByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderLineView, error) {
	rows, err := q.db.Query(ctx, `
		SELECT l.id, l.order_id, l.product_id, l.quantity, l.unit_price, l.subtotal,
		       l.notes, l.completed, l.completed_at, p.name
		FROM order_lines l
		JOIN products p ON p.id = l.product_id
		WHERE l.order_id = $1
		ORDER BY l.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []OrderLineView
	for rows.Next() {
		var v OrderLineView
		if err := rows.Scan(
			&v.ID, &v.OrderID, &v.ProductID, &v.Quantity, &v.UnitPrice, &v.Subtotal,
			&v.Notes, &v.Completed, &v.CompletedAt, &v.ProductName,
		); err != nil {
			return nil, err
		}
		lines = append(lines, v)
	}
	return lines, rows.Err()
}

func (q *Queries) DeleteOrderLines(ctx context.Context, orderID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM order_lines WHERE order_id = $1`, orderID)
	return err
}

type UpdateOrderLineCompletionParams struct {
	ID          uuid.UUID
	Completed   bool
	CompletedAt pgtype.Timestamptz
}

func (q *Queries) UpdateOrderLineCompletion(ctx context.Context, arg UpdateOrderLineCompletionParams) (OrderLine, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE order_lines SET completed = $2, completed_at = $3
		WHERE id = $1
		RETURNING id, order_id, product_id, quantity, unit_price, subtotal, notes, completed, completed_at`,
		arg.ID, arg.Completed, arg.CompletedAt)
	var l OrderLine
	err := row.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.Subtotal, &l.Notes, &l.Completed, &l.CompletedAt)
	return l, err
}

type UpdateOrderTotalParams struct {
	ID    uuid.UUID
	Total pgtype.Numeric
	Notes pgtype.Text
}

func (q *Queries) UpdateOrderTotal(ctx context.Context, arg UpdateOrderTotalParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders SET total = $2, notes = $3
		WHERE id = $1
		RETURNING `+orderColumns, arg.ID, arg.Total, arg.Notes)
	return scanOrder(row)
}

// The Mark* updates repeat the legal source states in their WHERE clause,
// so even a buggy caller cannot move an order backward.

func (q *Queries) MarkOrderInPreparation(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders SET status = 'IN_PREPARATION'
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+orderColumns, id)
	return scanOrder(row)
}

type MarkOrderReadyParams struct {
	ID      uuid.UUID
	ReadyAt time.Time
}

func (q *Queries) MarkOrderReady(ctx context.Context, arg MarkOrderReadyParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders SET status = 'READY', ready_at = $2
		WHERE id = $1 AND status IN ('PENDING', 'IN_PREPARATION')
		RETURNING `+orderColumns, arg.ID, arg.ReadyAt)
	return scanOrder(row)
}

type MarkOrderSettledParams struct {
	ID        uuid.UUID
	SettledAt time.Time
}

func (q *Queries) MarkOrderSettled(ctx context.Context, arg MarkOrderSettledParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders SET status = 'SETTLED', settled_at = $2
		WHERE id = $1 AND status = 'READY'
		RETURNING `+orderColumns, arg.ID, arg.SettledAt)
	return scanOrder(row)
}
