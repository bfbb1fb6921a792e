package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/motoparts/motoparts/internal/platform/db"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetPartForUpdate(ctx context.Context, id int64) (Part, error)
	InsertPart(ctx context.Context, input PartInput) (int64, error)
	UpdatePart(ctx context.Context, id int64, update PartUpdate) error
	SetStock(ctx context.Context, id, stock int64) error
	SetPrice(ctx context.Context, id int64, price decimal.Decimal) error
	InsertPriceHistory(ctx context.Context, partID int64, oldPrice, newPrice decimal.Decimal) (PriceHistoryEntry, error)
	DeletePriceHistory(ctx context.Context, partID int64) (int64, error)
	DeletePart(ctx context.Context, id int64) (int64, error)
}

type txRepo struct {
	q DBTX
}

// NewTxRepository binds the transactional operations to q, usually a pgx.Tx
// owned by another module's transaction.
func NewTxRepository(q DBTX) TxRepository {
	return &txRepo{q: q}
}

// WithTx executes the callback inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

const partColumns = `id, name, price, description, stock, image, category, created_at, updated_at`

// GetPart loads a part without locking it.
func (r *Repository) GetPart(ctx context.Context, id int64) (Part, error) {
	return scanPart(r.pool.QueryRow(ctx, `SELECT `+partColumns+` FROM parts WHERE id = $1`, id))
}

// ListParts returns every part ordered by id.
func (r *Repository) ListParts(ctx context.Context) ([]Part, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+partColumns+` FROM parts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectParts(rows)
}

// ListLowStock returns parts whose stock is at or below threshold.
func (r *Repository) ListLowStock(ctx context.Context, threshold int64) ([]Part, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+partColumns+` FROM parts WHERE stock <= $1 ORDER BY stock, id`, threshold)
	if err != nil {
		return nil, err
	}
	return collectParts(rows)
}

// ListCategories returns the distinct non-empty categories in name order.
func (r *Repository) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT category FROM parts WHERE category IS NOT NULL AND category <> '' ORDER BY category`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ListPriceHistory returns the entries of a part, newest change first.
func (r *Repository) ListPriceHistory(ctx context.Context, partID int64) ([]PriceHistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, part_id, old_price, new_price, change_date FROM price_history WHERE part_id = $1 ORDER BY change_date DESC, id DESC`, partID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []PriceHistoryEntry{}
	for rows.Next() {
		entry, err := scanPriceHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *txRepo) GetPartForUpdate(ctx context.Context, id int64) (Part, error) {
	return scanPart(r.q.QueryRow(ctx, `SELECT `+partColumns+` FROM parts WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) InsertPart(ctx context.Context, input PartInput) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO parts (name, price, description, stock, image, category) VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')) RETURNING id`,
		input.Name, db.NumericArg(input.Price), input.Description, input.Stock, input.Image, input.Category).Scan(&id)
	return id, err
}

func (r *txRepo) UpdatePart(ctx context.Context, id int64, update PartUpdate) error {
	tag, err := r.q.Exec(ctx, `UPDATE parts SET name = $1, price = $2, description = $3, category = NULLIF($4, ''), image = COALESCE($5, image), updated_at = NOW() WHERE id = $6`,
		update.Name, db.NumericArg(update.Price), update.Description, update.Category, update.Image, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPartNotFound
	}
	return nil
}

func (r *txRepo) SetStock(ctx context.Context, id, stock int64) error {
	tag, err := r.q.Exec(ctx, `UPDATE parts SET stock = $1, updated_at = NOW() WHERE id = $2`, stock, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPartNotFound
	}
	return nil
}

func (r *txRepo) SetPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	tag, err := r.q.Exec(ctx, `UPDATE parts SET price = $1, updated_at = NOW() WHERE id = $2`, db.NumericArg(price), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPartNotFound
	}
	return nil
}

func (r *txRepo) InsertPriceHistory(ctx context.Context, partID int64, oldPrice, newPrice decimal.Decimal) (PriceHistoryEntry, error) {
	row := r.q.QueryRow(ctx, `INSERT INTO price_history (part_id, old_price, new_price) VALUES ($1, $2, $3) RETURNING id, part_id, old_price, new_price, change_date`,
		partID, db.NumericArg(oldPrice), db.NumericArg(newPrice))
	return scanPriceHistory(row)
}

func (r *txRepo) DeletePriceHistory(ctx context.Context, partID int64) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM price_history WHERE part_id = $1`, partID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *txRepo) DeletePart(ctx context.Context, id int64) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM parts WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanPart(row pgx.Row) (Part, error) {
	var (
		p        Part
		price    pgtype.Numeric
		category pgtype.Text
	)
	err := row.Scan(&p.ID, &p.Name, &price, &p.Description, &p.Stock, &p.Image, &category, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Part{}, ErrPartNotFound
		}
		return Part{}, err
	}
	p.Price = db.Decimal(price)
	if category.Valid {
		p.Category = &category.String
	}
	return p, nil
}

func collectParts(rows pgx.Rows) ([]Part, error) {
	defer rows.Close()
	parts := []Part{}
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

func scanPriceHistory(row pgx.Row) (PriceHistoryEntry, error) {
	var (
		entry              PriceHistoryEntry
		oldPrice, newPrice pgtype.Numeric
	)
	if err := row.Scan(&entry.ID, &entry.PartID, &oldPrice, &newPrice, &entry.ChangeDate); err != nil {
		return PriceHistoryEntry{}, err
	}
	entry.OldPrice = db.Decimal(oldPrice)
	entry.NewPrice = db.Decimal(newPrice)
	return entry, nil
}
