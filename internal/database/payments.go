package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type CreatePaymentParams struct {
	OrderID         uuid.UUID
	PaymentMethodID uuid.UUID
	Amount          pgtype.Numeric
	PaidAt          time.Time
	CashierID       uuid.UUID
	Notes           pgtype.Text
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO payments (order_id, payment_method_id, amount, paid_at, cashier_id, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, order_id, payment_method_id, amount, paid_at, cashier_id, notes`,
		arg.OrderID, arg.PaymentMethodID, arg.Amount, arg.PaidAt, arg.CashierID, arg.Notes)
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.PaymentMethodID, &p.Amount, &p.PaidAt, &p.CashierID, &p.Notes)
	return p, err
}

func (q *Queries) GetPaymentByOrder(ctx context.Context, orderID uuid.UUID) (Payment, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, order_id, payment_method_id, amount, paid_at, cashier_id, notes
		FROM payments WHERE order_id = $1`, orderID)
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.PaymentMethodID, &p.Amount, &p.PaidAt, &p.CashierID, &p.Notes)
	return p, err
}

const paymentViewSQL = `
	SELECT p.id, p.order_id, p.payment_method_id, p.amount, p.paid_at, p.cashier_id, p.notes,
	       m.name, u.full_name, o.order_number
	FROM payments p
	JOIN payment_methods m ON m.id = p.payment_method_id
	JOIN users u ON u.id = p.cashier_id
	JOIN orders o ON o.id = p.order_id`

func scanPaymentView(row interface{ Scan(dest ...any) error }) (PaymentView, error) {
	var v PaymentView
	err := row.Scan(
		&v.ID, &v.OrderID, &v.PaymentMethodID, &v.Amount, &v.PaidAt, &v.CashierID, &v.Notes,
		&v.MethodName, &v.CashierName, &v.OrderNumber,
	)
	return v, err
}

func (q *Queries) GetPaymentViewByOrder(ctx context.Context, orderID uuid.UUID) (PaymentView, error) {
	row := q.db.QueryRow(ctx, paymentViewSQL+` WHERE p.order_id = $1`, orderID)
	return scanPaymentView(row)
}

type ListPaymentsForDayParams struct {
	Start time.Time
	End   time.Time
}

func (q *Queries) ListPaymentsForDay(ctx context.Context, arg ListPaymentsForDayParams) ([]PaymentView, error) {
	rows, err := q.db.Query(ctx, paymentViewSQL+`
		WHERE p.paid_at >= $1 AND p.paid_at < $2
		ORDER BY p.paid_at ASC`, arg.Start, arg.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []PaymentView
	for rows.Next() {
		v, err := scanPaymentView(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, v)
	}
	return payments, rows.Err()
}

func (q *Queries) GetPaymentMethod(ctx context.Context, id uuid.UUID) (PaymentMethod, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, name, description, is_active, created_at
		FROM payment_methods WHERE id = $1`, id)
	var m PaymentMethod
	err := row.Scan(&m.ID, &m.Name, &m.Description, &m.IsActive, &m.CreatedAt)
	return m, err
}

func (q *Queries) ListActivePaymentMethods(ctx context.Context) ([]PaymentMethod, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, name, description, is_active, created_at
		FROM payment_methods WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var methods []PaymentMethod
	for rows.Next() {
		var m PaymentMethod
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.IsActive, &m.CreatedAt); err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}
