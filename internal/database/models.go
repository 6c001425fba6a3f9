package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Order struct {
	ID          uuid.UUID
	OrderNumber string
	TableID     uuid.UUID
	CreatedBy   pgtype.UUID // null when a table session created the order
	Status      string
	Total       pgtype.Numeric
	Notes       pgtype.Text
	CreatedAt   time.Time
	ReadyAt     pgtype.Timestamptz
	SettledAt   pgtype.Timestamptz
}

type OrderLine struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	Quantity    int32
	UnitPrice   pgtype.Numeric
	Subtotal    pgtype.Numeric
	Notes       pgtype.Text
	Completed   bool
	CompletedAt pgtype.Timestamptz
}

// OrderLineView is an OrderLine joined with its product name for display.
type OrderLineView struct {
	OrderLine
	ProductName string
}

type Payment struct {
	ID              uuid.UUID
	OrderID         uuid.UUID
	PaymentMethodID uuid.UUID
	Amount          pgtype.Numeric
	PaidAt          time.Time
	CashierID       uuid.UUID
	Notes           pgtype.Text
}

// PaymentView is a Payment joined with method, cashier and order number.
type PaymentView struct {
	Payment
	MethodName  string
	CashierName string
	OrderNumber string
}

type PaymentMethod struct {
	ID          uuid.UUID
	Name        string
	Description pgtype.Text
	IsActive    bool
	CreatedAt   time.Time
}

type Category struct {
	ID          uuid.UUID
	Name        string
	Description pgtype.Text
	IsActive    bool
	CreatedAt   time.Time
}

type Product struct {
	ID          uuid.UUID
	CategoryID  uuid.UUID
	Name        string
	Description pgtype.Text
	Price       pgtype.Numeric
	IsAvailable bool
	IsActive    bool
	CreatedAt   time.Time
}

type Ingredient struct {
	ID          uuid.UUID
	Name        string
	Description pgtype.Text
	Unit        string
	Stock       pgtype.Numeric
	IsActive    bool
	CreatedAt   time.Time
}

type DiningTable struct {
	ID          uuid.UUID
	TableNumber string
	Code        string
	Capacity    int32
	IsAvailable bool
	IsActive    bool
	CreatedAt   time.Time
}

type User struct {
	ID             uuid.UUID
	FullName       string
	Email          string
	HashedPassword string
	Role           string
	IsActive       bool
	CreatedAt      time.Time
}
