package sales

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motoparts/motoparts/internal/inventory"
	"github.com/motoparts/motoparts/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for sales operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertSale(ctx context.Context, sale Sale) (int64, error)
	InsertItem(ctx context.Context, item SaleItem) (int64, error)
	// DecrementStock applies the inventory floor rule inside the sale transaction.
	DecrementStock(ctx context.Context, partID, quantity int64) (inventory.StockAdjustment, error)
	UpdateStatus(ctx context.Context, id int64, status SaleStatus) (int64, error)
}

type txRepo struct {
	tx    pgx.Tx
	parts inventory.TxRepository
}

// WithTx wraps callback in a read-committed transaction shared with the
// inventory writes.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, parts: inventory.NewTxRepository(tx)})
	})
}

// ============================================================================
// SALE OPERATIONS
// ============================================================================

func (t *txRepo) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sales (customer, total_amount, payment_method, sale_date, order_id, status) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		sale.Customer, db.NumericArg(sale.TotalAmount), sale.PaymentMethod, sale.SaleDate, sale.OrderID, string(sale.Status)).Scan(&id)
	return id, err
}

func (t *txRepo) InsertItem(ctx context.Context, item SaleItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sale_items (sale_id, part_id, name, price, quantity) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		item.SaleID, item.PartID, item.Name, db.NumericArg(item.Price), item.Quantity).Scan(&id)
	return id, err
}

func (t *txRepo) DecrementStock(ctx context.Context, partID, quantity int64) (inventory.StockAdjustment, error) {
	return inventory.ApplyStock(ctx, t.parts, partID, quantity, inventory.StockDecrease)
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status SaleStatus) (int64, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE sales SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetSale loads the header and its lines in insertion order.
func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, error) {
	var (
		sale    Sale
		total   pgtype.Numeric
		orderID pgtype.Text
		status  string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, customer, total_amount, payment_method, sale_date, order_id, status FROM sales WHERE id = $1`, id).
		Scan(&sale.ID, &sale.Customer, &total, &sale.PaymentMethod, &sale.SaleDate, &orderID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, err
	}
	sale.TotalAmount = db.Decimal(total)
	sale.Status = SaleStatus(status)
	if orderID.Valid {
		sale.OrderID = &orderID.String
	}

	rows, err := r.pool.Query(ctx, `SELECT id, sale_id, part_id, name, price, quantity FROM sale_items WHERE sale_id = $1 ORDER BY id`, id)
	if err != nil {
		return Sale{}, err
	}
	defer rows.Close()
	sale.Items = []SaleItem{}
	for rows.Next() {
		var (
			item  SaleItem
			price pgtype.Numeric
		)
		if err := rows.Scan(&item.ID, &item.SaleID, &item.PartID, &item.Name, &price, &item.Quantity); err != nil {
			return Sale{}, err
		}
		item.Price = db.Decimal(price)
		sale.Items = append(sale.Items, item)
	}
	return sale, rows.Err()
}

// ListSaleRows flattens every sale line with its header, newest sale first.
// Row ids are a listing sequence, not sale ids.
func (r *Repository) ListSaleRows(ctx context.Context) ([]SaleRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.customer, s.total_amount, s.sale_date, s.payment_method, s.status, si.name, si.quantity
		FROM sales s
		JOIN sale_items si ON si.sale_id = s.id
		ORDER BY s.sale_date DESC, s.id DESC, si.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []SaleRow{}
	for rows.Next() {
		var (
			row    SaleRow
			total  pgtype.Numeric
			status string
		)
		if err := rows.Scan(&row.OriginalSaleID, &row.Customer, &total, &row.Date, &row.PaymentMethod, &status, &row.ItemName, &row.Quantity); err != nil {
			return nil, err
		}
		row.ID = int64(len(out) + 1)
		row.TotalAmount = db.Decimal(total)
		row.Status = SaleStatus(status)
		out = append(out, row)
	}
	return out, rows.Err()
}
