package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mesa-pos/api/internal/database"
	"github.com/mesa-pos/api/internal/enum"
)

var (
	ErrOrderNotReady        = errors.New("order must be ready before payment")
	ErrAlreadyPaid          = errors.New("order already has a payment")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
)

// PaymentStore is the data access surface of PaymentService.
type PaymentStore interface {
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetPaymentByOrder(ctx context.Context, orderID uuid.UUID) (database.Payment, error)
	GetPaymentMethod(ctx context.Context, id uuid.UUID) (database.PaymentMethod, error)
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	MarkOrderSettled(ctx context.Context, arg database.MarkOrderSettledParams) (database.Order, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error)
}

type NewPaymentStore func(db database.DBTX) PaymentStore

type PaymentService struct {
	pool     TxBeginner
	newStore NewPaymentStore
	now      func() time.Time
}

func NewPaymentService(pool TxBeginner, newStore NewPaymentStore) *PaymentService {
	return &PaymentService{pool: pool, newStore: newStore, now: time.Now}
}

type ProcessPaymentRequest struct {
	OrderID         uuid.UUID
	PaymentMethodID uuid.UUID
	Notes           string
	Actor           Actor
}

type ProcessPaymentResult struct {
	Payment     database.Payment
	Order       database.Order
	MethodName  string
	CashierName string
}

// ProcessPayment settles a ready order. The amount is always the
// order's stored total; clients never supply it. The order row is
// locked first, so two cashiers racing on the same order resolve to
// exactly one payment.
func (s *PaymentService) ProcessPayment(ctx context.Context, req ProcessPaymentRequest) (*ProcessPaymentResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order.Status == enum.OrderStatusSettled {
		return nil, ErrAlreadyPaid
	}
	if order.Status != enum.OrderStatusReady {
		return nil, ErrOrderNotReady
	}

	if _, err := store.GetPaymentByOrder(ctx, order.ID); err == nil {
		return nil, ErrAlreadyPaid
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get payment: %w", err)
	}

	method, err := store.GetPaymentMethod(ctx, req.PaymentMethodID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidPaymentMethod
		}
		return nil, fmt.Errorf("get payment method: %w", err)
	}
	if !method.IsActive {
		return nil, ErrInvalidPaymentMethod
	}

	cashier, err := store.GetUserByID(ctx, req.Actor.ID)
	if err != nil {
		return nil, fmt.Errorf("get cashier: %w", err)
	}

	now := s.now()
	payment, err := store.CreatePayment(ctx, database.CreatePaymentParams{
		OrderID:         order.ID,
		PaymentMethodID: method.ID,
		Amount:          order.Total,
		PaidAt:          now,
		CashierID:       cashier.ID,
		Notes:           textOrNull(req.Notes),
	})
	if err != nil {
		if isDuplicatePayment(err) {
			return nil, ErrAlreadyPaid
		}
		return nil, fmt.Errorf("create payment: %w", err)
	}

	order, err = store.MarkOrderSettled(ctx, database.MarkOrderSettledParams{ID: order.ID, SettledAt: now})
	if err != nil {
		return nil, fmt.Errorf("mark order settled: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &ProcessPaymentResult{
		Payment:     payment,
		Order:       order,
		MethodName:  method.Name,
		CashierName: cashier.FullName,
	}, nil
}

// The payments table carries a unique index on order_id as the last
// line of defense against double settlement.
func isDuplicatePayment(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "payments_order_id_key"
}
