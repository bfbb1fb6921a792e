package sales

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/motoparts/motoparts/internal/platform/httpx"
)

// Handler manages sales endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listSales)
	r.Post("/add", h.addSale)
	r.Put("/update-status/{id}", h.updateStatus)
	r.Get("/{id}", h.showSale)
}

type saleItemRequest struct {
	ID       int64            `json:"id" validate:"required"`
	Name     string           `json:"name" validate:"required"`
	Price    *decimal.Decimal `json:"price" validate:"required"`
	Quantity int64            `json:"quantity" validate:"required"`
}

type saleRequest struct {
	Customer      string            `json:"customer" validate:"required"`
	Items         []saleItemRequest `json:"items" validate:"required,min=1,dive"`
	TotalAmount   *decimal.Decimal  `json:"totalAmount" validate:"required"`
	PaymentMethod string            `json:"paymentMethod" validate:"required"`
	Date          string            `json:"date"`
	OrderID       string            `json:"orderId"`
	Status        string            `json:"status"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) addSale(w http.ResponseWriter, r *http.Request) {
	const title = "Failed to record sale"
	var req saleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, title, "Invalid JSON body", "")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, title, httpx.ValidationMessage(err), "")
		return
	}
	input := RecordSaleInput{
		Customer:      req.Customer,
		TotalAmount:   *req.TotalAmount,
		PaymentMethod: req.PaymentMethod,
		Date:          req.Date,
		OrderID:       req.OrderID,
		Status:        SaleStatus(req.Status),
		Items:         make([]ItemInput, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, ItemInput{PartID: item.ID, Name: item.Name, Price: *item.Price, Quantity: item.Quantity})
	}
	saleID, err := h.service.RecordSale(r.Context(), input)
	if err != nil {
		h.fail(w, err, title)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"message": "Sale recorded successfully",
		"saleId":  saleID,
	})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	const title = "Failed to update sale status"
	id, ok := h.saleID(w, r, title)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, title, "Invalid JSON body", "")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, title, httpx.ValidationMessage(err), "")
		return
	}
	status := SaleStatus(req.Status)
	if err := h.service.UpdateStatus(r.Context(), id, status); err != nil {
		h.fail(w, err, title)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message": "Sale status updated successfully",
		"saleId":  id,
		"status":  status,
	})
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListSales(r.Context())
	if err != nil {
		h.fail(w, err, "Failed to fetch sales")
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) showSale(w http.ResponseWriter, r *http.Request) {
	const title = "Failed to fetch sale"
	id, ok := h.saleID(w, r, title)
	if !ok {
		return
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.fail(w, err, title)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) saleID(w http.ResponseWriter, r *http.Request, title string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, ErrInvalidSaleID, title)
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, err error, title string) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(strings.ToLower(title), slog.Any("error", err))
	}
	httpx.RespondError(w, err, title)
}
