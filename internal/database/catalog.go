package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// --- Products ---

// GetProductForOrderRow carries just what order creation needs: the
// current price snapshot and availability.
type GetProductForOrderRow struct {
	ID          uuid.UUID
	Name        string
	Price       pgtype.Numeric
	IsAvailable bool
	IsActive    bool
}

func (q *Queries) GetProductForOrder(ctx context.Context, id uuid.UUID) (GetProductForOrderRow, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, name, price, is_available, is_active
		FROM products WHERE id = $1`, id)
	var p GetProductForOrderRow
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.IsAvailable, &p.IsActive)
	return p, err
}

const productColumns = `id, category_id, name, description, price, is_available, is_active, created_at`

func scanProduct(row interface{ Scan(dest ...any) error }) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.Price, &p.IsAvailable, &p.IsActive, &p.CreatedAt)
	return p, err
}

func (q *Queries) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := q.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

type CreateProductParams struct {
	CategoryID  uuid.UUID
	Name        string
	Description pgtype.Text
	Price       pgtype.Numeric
	IsAvailable bool
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO products (category_id, name, description, price, is_available)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+productColumns,
		arg.CategoryID, arg.Name, arg.Description, arg.Price, arg.IsAvailable)
	return scanProduct(row)
}

type UpdateProductParams struct {
	ID          uuid.UUID
	CategoryID  uuid.UUID
	Name        string
	Description pgtype.Text
	Price       pgtype.Numeric
	IsAvailable bool
}

func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE products
		SET category_id = $2, name = $3, description = $4, price = $5, is_available = $6
		WHERE id = $1 AND is_active
		RETURNING `+productColumns,
		arg.ID, arg.CategoryID, arg.Name, arg.Description, arg.Price, arg.IsAvailable)
	return scanProduct(row)
}

type SetProductAvailabilityParams struct {
	ID          uuid.UUID
	IsAvailable bool
}

func (q *Queries) SetProductAvailability(ctx context.Context, arg SetProductAvailabilityParams) (Product, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE products SET is_available = $2
		WHERE id = $1 AND is_active
		RETURNING `+productColumns, arg.ID, arg.IsAvailable)
	return scanProduct(row)
}

func (q *Queries) SoftDeleteProduct(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	row := q.db.QueryRow(ctx, `UPDATE products SET is_active = false WHERE id = $1 RETURNING id`, id)
	err := row.Scan(&id)
	return id, err
}

// --- Categories ---

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, name, description, is_active, created_at
		FROM categories WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

type CreateCategoryParams struct {
	Name        string
	Description pgtype.Text
}

func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (Category, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO categories (name, description)
		VALUES ($1, $2)
		RETURNING id, name, description, is_active, created_at`,
		arg.Name, arg.Description)
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt)
	return c, err
}

type UpdateCategoryParams struct {
	ID          uuid.UUID
	Name        string
	Description pgtype.Text
}

func (q *Queries) UpdateCategory(ctx context.Context, arg UpdateCategoryParams) (Category, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE categories SET name = $2, description = $3
		WHERE id = $1 AND is_active
		RETURNING id, name, description, is_active, created_at`,
		arg.ID, arg.Name, arg.Description)
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt)
	return c, err
}

func (q *Queries) SoftDeleteCategory(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	row := q.db.QueryRow(ctx, `UPDATE categories SET is_active = false WHERE id = $1 RETURNING id`, id)
	err := row.Scan(&id)
	return id, err
}

// --- Ingredients ---

const ingredientColumns = `id, name, description, unit, stock, is_active, created_at`

func scanIngredient(row interface{ Scan(dest ...any) error }) (Ingredient, error) {
	var i Ingredient
	err := row.Scan(&i.ID, &i.Name, &i.Description, &i.Unit, &i.Stock, &i.IsActive, &i.CreatedAt)
	return i, err
}

func (q *Queries) ListIngredients(ctx context.Context) ([]Ingredient, error) {
	rows, err := q.db.Query(ctx, `SELECT `+ingredientColumns+` FROM ingredients WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ingredients []Ingredient
	for rows.Next() {
		i, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		ingredients = append(ingredients, i)
	}
	return ingredients, rows.Err()
}

type CreateIngredientParams struct {
	Name        string
	Description pgtype.Text
	Unit        string
	Stock       pgtype.Numeric
}

func (q *Queries) CreateIngredient(ctx context.Context, arg CreateIngredientParams) (Ingredient, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO ingredients (name, description, unit, stock)
		VALUES ($1, $2, $3, $4)
		RETURNING `+ingredientColumns,
		arg.Name, arg.Description, arg.Unit, arg.Stock)
	return scanIngredient(row)
}

type UpdateIngredientParams struct {
	ID          uuid.UUID
	Name        string
	Description pgtype.Text
	Unit        string
	Stock       pgtype.Numeric
}

func (q *Queries) UpdateIngredient(ctx context.Context, arg UpdateIngredientParams) (Ingredient, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE ingredients SET name = $2, description = $3, unit = $4, stock = $5
		WHERE id = $1 AND is_active
		RETURNING `+ingredientColumns,
		arg.ID, arg.Name, arg.Description, arg.Unit, arg.Stock)
	return scanIngredient(row)
}

func (q *Queries) SoftDeleteIngredient(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	row := q.db.QueryRow(ctx, `UPDATE ingredients SET is_active = false WHERE id = $1 RETURNING id`, id)
	err := row.Scan(&id)
	return id, err
}

// --- Dining tables ---

const tableColumns = `id, table_number, code, capacity, is_available, is_active, created_at`

func scanDiningTable(row interface{ Scan(dest ...any) error }) (DiningTable, error) {
	var t DiningTable
	err := row.Scan(&t.ID, &t.TableNumber, &t.Code, &t.Capacity, &t.IsAvailable, &t.IsActive, &t.CreatedAt)
	return t, err
}

func (q *Queries) GetDiningTable(ctx context.Context, id uuid.UUID) (DiningTable, error) {
	row := q.db.QueryRow(ctx, `SELECT `+tableColumns+` FROM dining_tables WHERE id = $1 AND is_active`, id)
	return scanDiningTable(row)
}

func (q *Queries) GetDiningTableByCode(ctx context.Context, code string) (DiningTable, error) {
	row := q.db.QueryRow(ctx, `SELECT `+tableColumns+` FROM dining_tables WHERE code = $1 AND is_active`, code)
	return scanDiningTable(row)
}

func (q *Queries) ListDiningTables(ctx context.Context) ([]DiningTable, error) {
	rows, err := q.db.Query(ctx, `SELECT `+tableColumns+` FROM dining_tables WHERE is_active ORDER BY table_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []DiningTable
	for rows.Next() {
		t, err := scanDiningTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

type CreateDiningTableParams struct {
	TableNumber string
	Code        string
	Capacity    int32
}

func (q *Queries) CreateDiningTable(ctx context.Context, arg CreateDiningTableParams) (DiningTable, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO dining_tables (table_number, code, capacity)
		VALUES ($1, $2, $3)
		RETURNING `+tableColumns,
		arg.TableNumber, arg.Code, arg.Capacity)
	return scanDiningTable(row)
}

type UpdateDiningTableParams struct {
	ID          uuid.UUID
	TableNumber string
	Capacity    int32
	IsAvailable bool
}

func (q *Queries) UpdateDiningTable(ctx context.Context, arg UpdateDiningTableParams) (DiningTable, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE dining_tables SET table_number = $2, capacity = $3, is_available = $4
		WHERE id = $1 AND is_active
		RETURNING `+tableColumns,
		arg.ID, arg.TableNumber, arg.Capacity, arg.IsAvailable)
	return scanDiningTable(row)
}

func (q *Queries) SoftDeleteDiningTable(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	row := q.db.QueryRow(ctx, `UPDATE dining_tables SET is_active = false WHERE id = $1 RETURNING id`, id)
	err := row.Scan(&id)
	return id, err
}
