package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/timeless/internal/core/domain"
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrNoReferencedRow = 1452
	mysqlErrLockDeadlock    = 1213

	maxDeadlockRetries = 5
)

func isDeadlock(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrLockDeadlock
}

// classify maps driver errors onto domain sentinels.
func classify(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlErrDuplicateEntry:
			return fmt.Errorf("%w: %w", domain.ErrConflict, err)
		case mysqlErrNoReferencedRow:
			return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
		}
	}
	return err
}

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

const productColumns = `id, name, short_description, long_description, price_cents, price_ref,
	category, inventory_qty, image_url, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.ShortDescription, &p.LongDescription, &p.Price, &p.PriceRef,
		&p.Category, &p.InventoryQty, &p.ImageURL, &p.CreatedAt)
	return p, err
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, productID int64) (domain.Product, error) {
	p, err := scanProduct(m.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("product %d: %w", productID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

func (m *MySQLAdapter) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.Categories) > 0 {
		where = append(where, "category IN (?"+strings.Repeat(", ?", len(filter.Categories)-1)+")")
		for _, c := range filter.Categories {
			args = append(args, c)
		}
	}
	if filter.MinPrice > 0 {
		where = append(where, "price_cents >= ?")
		args = append(args, filter.MinPrice)
	}
	if filter.MaxPrice > 0 {
		where = append(where, "price_cents <= ?")
		args = append(args, filter.MaxPrice)
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	switch filter.Sort {
	case domain.SortPriceAsc:
		query += " ORDER BY price_cents ASC, id ASC"
	case domain.SortPriceDesc:
		query += " ORDER BY price_cents DESC, id ASC"
	default:
		query += " ORDER BY id ASC"
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func (m *MySQLAdapter) cartExists(ctx context.Context, cartID int64) error {
	var one int
	err := m.db.QueryRowContext(ctx, `SELECT 1 FROM carts WHERE id = ?`, cartID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("cart %d: %w", cartID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query cart: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetCart(ctx context.Context, cartID int64) ([]domain.CartLine, error) {
	if err := m.cartExists(ctx, cartID); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT ci.cart_id, ci.product_id, ci.quantity, ci.unit_price_cents, ci.updated_at,
			p.name, p.short_description, p.image_url, p.price_cents, p.price_ref
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = ?
		ORDER BY ci.product_id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	lines := []domain.CartLine{}
	for rows.Next() {
		var l domain.CartLine
		if err := rows.Scan(&l.CartID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.UpdatedAt,
			&l.Name, &l.ShortDescription, &l.ImageURL, &l.CatalogPrice, &l.PriceRef); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return lines, nil
}

// InsertItem relies on the (cart_id, product_id) primary key to reject duplicates.
func (m *MySQLAdapter) InsertItem(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	item.UpdatedAt = item.UpdatedAt.UTC()
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity, unit_price_cents, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		item.CartID, item.ProductID, item.Quantity, item.UnitPrice, item.UpdatedAt,
	)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("insert cart item: %w", classify(err))
	}
	return item, nil
}

// UpsertItem writes quantity and price in a single statement and reads the
// row back inside the same transaction. Concurrent first inserts of one key
// can deadlock in InnoDB; the losing transaction is replayed.
func (m *MySQLAdapter) UpsertItem(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	for attempt := 0; ; attempt++ {
		out, err := m.upsertItem(ctx, item)
		if err != nil && isDeadlock(err) && attempt < maxDeadlockRetries {
			continue
		}
		return out, err
	}
}

func (m *MySQLAdapter) upsertItem(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity, unit_price_cents, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			quantity = VALUES(quantity),
			unit_price_cents = VALUES(unit_price_cents),
			updated_at = VALUES(updated_at)`,
		item.CartID, item.ProductID, item.Quantity, item.UnitPrice, item.UpdatedAt.UTC(),
	)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("upsert cart item: %w", classify(err))
	}

	var out domain.CartItem
	err = tx.QueryRowContext(ctx, `
		SELECT cart_id, product_id, quantity, unit_price_cents, updated_at
		FROM cart_items WHERE cart_id = ? AND product_id = ?`,
		item.CartID, item.ProductID,
	).Scan(&out.CartID, &out.ProductID, &out.Quantity, &out.UnitPrice, &out.UpdatedAt)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("read back cart item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.CartItem{}, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

func (m *MySQLAdapter) DeleteItem(ctx context.Context, cartID, productID int64) error {
	result, err := m.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE cart_id = ? AND product_id = ?`, cartID, productID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return m.cartExists(ctx, cartID)
	}
	return nil
}

func (m *MySQLAdapter) ClearCart(ctx context.Context, cartID int64) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ?`, cartID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return m.cartExists(ctx, cartID)
	}
	return nil
}
