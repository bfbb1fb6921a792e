package inventory

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/motoparts/motoparts/internal/platform/db"
	"github.com/motoparts/motoparts/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPart(ctx context.Context, id int64) (Part, error)
	ListParts(ctx context.Context) ([]Part, error)
	ListCategories(ctx context.Context) ([]string, error)
	ListPriceHistory(ctx context.Context, partID int64) ([]PriceHistoryEntry, error)
	ListLowStock(ctx context.Context, threshold int64) ([]Part, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CatalogCache serves catalog reads. *cache.Versioned satisfies it.
type CatalogCache interface {
	FetchJSON(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error
	Bump(ctx context.Context) error
}

// Service coordinates inventory operations.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	events  EventPort
	catalog CatalogCache
	logger  *slog.Logger
}

// NewService builds Service. audit, events and catalog are optional.
func NewService(repo RepositoryPort, audit AuditPort, events EventPort, catalog CatalogCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{repo: repo, audit: audit, events: events, catalog: catalog, logger: logger}
}

// ApplyStock locks the part row, applies op with the zero floor and stores the
// result. Callers own the surrounding transaction.
func ApplyStock(ctx context.Context, tx TxRepository, partID, amount int64, op StockOperation) (StockAdjustment, error) {
	part, err := tx.GetPartForUpdate(ctx, partID)
	if err != nil {
		return StockAdjustment{}, err
	}
	next, err := ApplyStockChange(part.Stock, amount, op)
	if err != nil {
		return StockAdjustment{}, err
	}
	if err := tx.SetStock(ctx, partID, next); err != nil {
		return StockAdjustment{}, err
	}
	return StockAdjustment{
		PartID:        partID,
		Operation:     op,
		Amount:        amount,
		PreviousStock: part.Stock,
		NewStock:      next,
	}, nil
}

// AdjustStock increases or decreases the on-hand quantity of a part.
func (s *Service) AdjustStock(ctx context.Context, partID, amount int64, op StockOperation) (StockAdjustment, error) {
	if partID <= 0 {
		return StockAdjustment{}, ErrInvalidPartID
	}
	if amount <= 0 {
		return StockAdjustment{}, ErrInvalidAmount
	}
	if !op.Valid() {
		return StockAdjustment{}, ErrInvalidOperation
	}
	var adj StockAdjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		adj, err = ApplyStock(ctx, tx, partID, amount, op)
		return err
	})
	if err != nil {
		return StockAdjustment{}, err
	}
	if adj.Clamped() {
		s.logger.Info("stock decrease clamped at zero", slog.Int64("part_id", partID), slog.Int64("previous", adj.PreviousStock), slog.Int64("amount", amount))
	}
	s.afterCommit(ctx, shared.AuditLog{
		Action:   "stock_adjusted",
		Entity:   "part",
		EntityID: strconv.FormatInt(partID, 10),
		Meta:     map[string]any{"operation": string(op), "amount": amount, "previous": adj.PreviousStock, "new": adj.NewStock},
	}, EventStockAdjusted, partID, StockAdjustedEvent{
		PartID:        partID,
		Operation:     op,
		Amount:        amount,
		PreviousStock: adj.PreviousStock,
		NewStock:      adj.NewStock,
		Source:        "api",
	})
	return adj, nil
}

// UpdatePrice sets a new price and appends exactly one history entry.
func (s *Service) UpdatePrice(ctx context.Context, partID int64, newPrice decimal.Decimal) (PriceHistoryEntry, error) {
	if partID <= 0 {
		return PriceHistoryEntry{}, ErrInvalidPartID
	}
	if !validPrice(newPrice) {
		return PriceHistoryEntry{}, ErrInvalidPrice
	}
	var entry PriceHistoryEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		part, err := tx.GetPartForUpdate(ctx, partID)
		if err != nil {
			return err
		}
		entry, err = tx.InsertPriceHistory(ctx, partID, part.Price, newPrice)
		if err != nil {
			return err
		}
		return tx.SetPrice(ctx, partID, newPrice)
	})
	if err != nil {
		return PriceHistoryEntry{}, err
	}
	s.afterCommit(ctx, shared.AuditLog{
		Action:   "price_updated",
		Entity:   "part",
		EntityID: strconv.FormatInt(partID, 10),
		Meta:     map[string]any{"old_price": entry.OldPrice.String(), "new_price": entry.NewPrice.String()},
	}, EventPriceChanged, partID, PriceChangedEvent{PartID: partID, OldPrice: entry.OldPrice, NewPrice: entry.NewPrice})
	return entry, nil
}

// ListPriceHistory returns the price changes of a part, newest first. Unknown
// parts yield an empty list.
func (s *Service) ListPriceHistory(ctx context.Context, partID int64) ([]PriceHistoryEntry, error) {
	if partID <= 0 {
		return nil, ErrInvalidPartID
	}
	return s.repo.ListPriceHistory(ctx, partID)
}

// DeleteResult summarises a committed part deletion.
type DeleteResult struct {
	AffectedRows   int64
	HistoryDeleted int64
}

// DeletePart removes the price history of a part and then the part itself in
// one transaction. Sale lines keep their snapshot and are never touched.
func (s *Service) DeletePart(ctx context.Context, partID int64) (DeleteResult, error) {
	if partID <= 0 {
		return DeleteResult{}, ErrInvalidPartID
	}
	if _, err := s.repo.GetPart(ctx, partID); err != nil {
		return DeleteResult{}, err
	}
	var res DeleteResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if res.HistoryDeleted, err = tx.DeletePriceHistory(ctx, partID); err != nil {
			return err
		}
		if res.AffectedRows, err = tx.DeletePart(ctx, partID); err != nil {
			return err
		}
		if res.AffectedRows == 0 {
			return ErrPartNotFound
		}
		return nil
	})
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return DeleteResult{}, &ReferencedError{PartID: partID, Detail: db.ConstraintDetail(err)}
		}
		return DeleteResult{}, err
	}
	s.afterCommit(ctx, shared.AuditLog{
		Action:   "part_deleted",
		Entity:   "part",
		EntityID: strconv.FormatInt(partID, 10),
		Meta:     map[string]any{"history_deleted": res.HistoryDeleted},
	}, EventPartDeleted, partID, PartDeletedEvent{PartID: partID, HistoryDeleted: res.HistoryDeleted})
	return res, nil
}

// CreatePart validates and stores a new part.
func (s *Service) CreatePart(ctx context.Context, input PartInput) (int64, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	input.Image = strings.TrimSpace(input.Image)
	switch {
	case input.Name == "":
		return 0, missingField("name")
	case input.Description == "":
		return 0, missingField("description")
	case input.Image == "":
		return 0, missingField("image")
	case !validPrice(input.Price):
		return 0, ErrInvalidPrice
	case input.Stock < 0:
		return 0, ErrInvalidStock
	}
	if strings.TrimSpace(input.Category) != "" {
		input.Category = NormalizeCategory(input.Category)
	}
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = tx.InsertPart(ctx, input)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.afterCommit(ctx, shared.AuditLog{
		Action:   "part_created",
		Entity:   "part",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"name": input.Name, "stock": input.Stock, "price": input.Price.String()},
	}, EventPartCreated, id, map[string]any{"part_id": id, "name": input.Name, "stock": input.Stock, "price": input.Price})
	return id, nil
}

// UpdatePart edits catalog fields. A price change is logged in the history
// within the same transaction.
func (s *Service) UpdatePart(ctx context.Context, partID int64, update PartUpdate) error {
	if partID <= 0 {
		return ErrInvalidPartID
	}
	update.Name = strings.TrimSpace(update.Name)
	update.Description = strings.TrimSpace(update.Description)
	switch {
	case update.Name == "":
		return missingField("name")
	case update.Description == "":
		return missingField("description")
	case !validPrice(update.Price):
		return ErrInvalidPrice
	}
	if strings.TrimSpace(update.Category) != "" {
		update.Category = NormalizeCategory(update.Category)
	}
	if update.Image != nil && strings.TrimSpace(*update.Image) == "" {
		update.Image = nil
	}
	var (
		oldPrice     decimal.Decimal
		priceChanged bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		part, err := tx.GetPartForUpdate(ctx, partID)
		if err != nil {
			return err
		}
		oldPrice = part.Price
		if !part.Price.Equal(update.Price) {
			priceChanged = true
			if _, err := tx.InsertPriceHistory(ctx, partID, part.Price, update.Price); err != nil {
				return err
			}
		}
		return tx.UpdatePart(ctx, partID, update)
	})
	if err != nil {
		return err
	}
	s.afterCommit(ctx, shared.AuditLog{
		Action:   "part_updated",
		Entity:   "part",
		EntityID: strconv.FormatInt(partID, 10),
		Meta:     map[string]any{"name": update.Name, "price_changed": priceChanged},
	}, EventPartUpdated, partID, map[string]any{"part_id": partID, "name": update.Name, "category": update.Category})
	if priceChanged {
		s.emit(ctx, EventPriceChanged, partID, PriceChangedEvent{PartID: partID, OldPrice: oldPrice, NewPrice: update.Price})
	}
	return nil
}

// GetPart loads a single part.
func (s *Service) GetPart(ctx context.Context, partID int64) (Part, error) {
	if partID <= 0 {
		return Part{}, ErrInvalidPartID
	}
	return s.repo.GetPart(ctx, partID)
}

// ListParts returns the whole catalog through the cache.
func (s *Service) ListParts(ctx context.Context) ([]Part, error) {
	if s.catalog == nil {
		return s.repo.ListParts(ctx)
	}
	var parts []Part
	err := s.catalog.FetchJSON(ctx, &parts, func(ctx context.Context) (any, error) {
		return s.repo.ListParts(ctx)
	}, "parts")
	if err != nil {
		return nil, err
	}
	return parts, nil
}

// ListCategories returns distinct category names through the cache.
func (s *Service) ListCategories(ctx context.Context) ([]string, error) {
	if s.catalog == nil {
		return s.repo.ListCategories(ctx)
	}
	var categories []string
	err := s.catalog.FetchJSON(ctx, &categories, func(ctx context.Context) (any, error) {
		return s.repo.ListCategories(ctx)
	}, "categories")
	if err != nil {
		return nil, err
	}
	return categories, nil
}

// ListLowStock returns parts at or below threshold.
func (s *Service) ListLowStock(ctx context.Context, threshold int64) ([]Part, error) {
	if threshold < 0 {
		return nil, shared.NewError(shared.ErrInvalidArgument, "inventory: threshold must not be negative")
	}
	return s.repo.ListLowStock(ctx, threshold)
}

// AddCategory validates a category name and returns its normalised form.
// Categories live on parts, so nothing is stored until a part uses it.
func (s *Service) AddCategory(name string) (string, error) {
	normalized := NormalizeCategory(name)
	if normalized == "" {
		return "", ErrCategoryRequired
	}
	return normalized, nil
}

// NormalizeCategory trims, collapses inner whitespace and title-cases name.
func NormalizeCategory(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return cases.Title(language.Und).String(strings.Join(fields, " "))
}

// InvalidateCatalog drops cached catalog reads. Other modules call it after
// they change stock.
func (s *Service) InvalidateCatalog(ctx context.Context) {
	if s.catalog == nil {
		return
	}
	if err := s.catalog.Bump(ctx); err != nil {
		s.logger.Warn("catalog cache bump failed", slog.Any("error", err))
	}
}

func (s *Service) afterCommit(ctx context.Context, log shared.AuditLog, eventType string, aggregateID int64, data any) {
	if s.audit != nil {
		if err := s.audit.Record(ctx, log); err != nil {
			s.logger.Warn("audit record failed", slog.String("action", log.Action), slog.Any("error", err))
		}
	}
	s.emit(ctx, eventType, aggregateID, data)
	s.InvalidateCatalog(ctx)
}

func (s *Service) emit(ctx context.Context, eventType string, aggregateID int64, data any) {
	if s.events == nil {
		return
	}
	if err := s.events.Emit(ctx, eventType, aggregateID, data); err != nil {
		s.logger.Warn("event emit failed", slog.String("type", eventType), slog.Int64("aggregate_id", aggregateID), slog.Any("error", err))
	}
}

func validPrice(p decimal.Decimal) bool {
	return p.IsPositive() && db.FitsMoney(p)
}

// IsNotFound reports whether err means the part does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPartNotFound)
}
