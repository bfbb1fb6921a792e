package sales

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/motoparts/motoparts/internal/inventory"
	"github.com/motoparts/motoparts/internal/platform/db"
	"github.com/motoparts/motoparts/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id int64) (Sale, error)
	ListSaleRows(ctx context.Context) ([]SaleRow, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CatalogInvalidator drops cached catalog reads after stock changes.
type CatalogInvalidator interface {
	InvalidateCatalog(ctx context.Context)
}

// Service provides business logic for sales operations.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	events  EventPort
	catalog CatalogInvalidator
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs a sales service. audit, events and catalog are optional.
func NewService(repo RepositoryPort, audit AuditPort, events EventPort, catalog CatalogInvalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{repo: repo, audit: audit, events: events, catalog: catalog, logger: logger, now: time.Now}
}

// RecordSale stores the sale header, its lines and the matching stock
// decrements atomically.
func (s *Service) RecordSale(ctx context.Context, input RecordSaleInput) (int64, error) {
	sale, err := s.buildSale(input)
	if err != nil {
		return 0, err
	}

	var (
		saleID int64
		lines  = make([]RecordedLine, 0, len(sale.Items))
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lines = lines[:0]
		var err error
		saleID, err = tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		for _, item := range sale.Items {
			item.SaleID = saleID
			if _, err := tx.InsertItem(ctx, item); err != nil {
				return err
			}
			line := RecordedLine{PartID: item.PartID, Quantity: item.Quantity}
			adj, err := tx.DecrementStock(ctx, item.PartID, item.Quantity)
			switch {
			case errors.Is(err, inventory.ErrPartNotFound):
				s.logger.Warn("sale line references missing part, stock untouched",
					slog.Int64("sale_id", saleID), slog.Int64("part_id", item.PartID))
			case err != nil:
				return err
			default:
				line.Tracked = true
				line.NewStock = adj.NewStock
			}
			lines = append(lines, line)
		}
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, ErrDuplicateOrder
		}
		return 0, err
	}

	s.record(ctx, shared.AuditLog{
		Action:   "sale_recorded",
		Entity:   "sale",
		EntityID: strconv.FormatInt(saleID, 10),
		Meta:     map[string]any{"customer": sale.Customer, "total_amount": sale.TotalAmount.String(), "items": len(sale.Items)},
	})
	evt := SaleRecordedEvent{
		SaleID:        saleID,
		Customer:      sale.Customer,
		TotalAmount:   sale.TotalAmount,
		PaymentMethod: sale.PaymentMethod,
		Lines:         lines,
	}
	if sale.OrderID != nil {
		evt.OrderID = *sale.OrderID
	}
	s.emit(ctx, EventSaleRecorded, saleID, evt)
	if s.catalog != nil {
		s.catalog.InvalidateCatalog(ctx)
	}
	return saleID, nil
}

func (s *Service) buildSale(input RecordSaleInput) (Sale, error) {
	customer := strings.TrimSpace(input.Customer)
	payment := strings.TrimSpace(input.PaymentMethod)
	switch {
	case customer == "":
		return Sale{}, missingField("customer")
	case payment == "":
		return Sale{}, missingField("paymentMethod")
	case len(input.Items) == 0:
		return Sale{}, ErrNoItems
	case !input.TotalAmount.IsPositive() || !db.FitsMoney(input.TotalAmount):
		return Sale{}, ErrInvalidTotal
	}
	status := input.Status
	if status == "" {
		status = StatusCompleted
	}
	if !status.Valid() {
		return Sale{}, ErrInvalidStatus
	}
	date, err := ParseSaleDate(strings.TrimSpace(input.Date), s.now().UTC())
	if err != nil {
		return Sale{}, err
	}

	sale := Sale{
		Customer:      customer,
		TotalAmount:   input.TotalAmount,
		PaymentMethod: payment,
		SaleDate:      date,
		Status:        status,
		Items:         make([]SaleItem, 0, len(input.Items)),
	}
	if orderID := strings.TrimSpace(input.OrderID); orderID != "" {
		sale.OrderID = &orderID
	}
	for i, item := range input.Items {
		name := strings.TrimSpace(item.Name)
		switch {
		case item.PartID <= 0:
			return Sale{}, invalidItem(i, "id must be positive")
		case name == "":
			return Sale{}, invalidItem(i, "name is required")
		case item.Price.IsNegative():
			return Sale{}, invalidItem(i, "price must not be negative")
		case !db.FitsMoney(item.Price):
			return Sale{}, invalidItem(i, "price must be below 10000000000 with at most two decimals")
		case item.Quantity <= 0:
			return Sale{}, invalidItem(i, "quantity must be greater than zero")
		}
		sale.Items = append(sale.Items, SaleItem{PartID: item.PartID, Name: name, Price: item.Price, Quantity: item.Quantity})
	}
	return sale, nil
}

// UpdateStatus changes the status of an existing sale.
func (s *Service) UpdateStatus(ctx context.Context, saleID int64, status SaleStatus) error {
	if saleID <= 0 {
		return ErrInvalidSaleID
	}
	if !status.Valid() {
		return ErrInvalidStatus
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		affected, err := tx.UpdateStatus(ctx, saleID, status)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrSaleNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, shared.AuditLog{
		Action:   "sale_status_updated",
		Entity:   "sale",
		EntityID: strconv.FormatInt(saleID, 10),
		Meta:     map[string]any{"status": string(status)},
	})
	s.emit(ctx, EventSaleStatusChanged, saleID, StatusChangedEvent{SaleID: saleID, Status: status})
	return nil
}

// GetSale loads a sale with its lines.
func (s *Service) GetSale(ctx context.Context, saleID int64) (Sale, error) {
	if saleID <= 0 {
		return Sale{}, ErrInvalidSaleID
	}
	return s.repo.GetSale(ctx, saleID)
}

// ListSales returns one row per sale line, newest sale first.
func (s *Service) ListSales(ctx context.Context) ([]SaleRow, error) {
	return s.repo.ListSaleRows(ctx)
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", log.Action), slog.Any("error", err))
	}
}

func (s *Service) emit(ctx context.Context, eventType string, aggregateID int64, data any) {
	if s.events == nil {
		return
	}
	if err := s.events.Emit(ctx, eventType, aggregateID, data); err != nil {
		s.logger.Warn("event emit failed", slog.String("type", eventType), slog.Int64("aggregate_id", aggregateID), slog.Any("error", err))
	}
}
