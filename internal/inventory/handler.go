package inventory

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/motoparts/motoparts/internal/platform/httpx"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/get-parts", h.handleListParts)
	r.Get("/get-categories", h.handleListCategories)
	r.Post("/add-category", h.handleAddCategory)
	r.Post("/add", h.handleCreatePart)
	r.Put("/update/{id}", h.handleUpdatePart)
	r.Put("/update-stock/{id}", h.handleUpdateStock)
	r.Put("/updatePrice/{id}", h.handleUpdatePrice)
	r.Get("/priceHistory/{id}", h.handlePriceHistory)
	r.Delete("/delete/{id}", h.handleDeletePart)
}

type stockRequest struct {
	Amount    *json.Number `json:"amount" validate:"required"`
	Operation string       `json:"operation" validate:"required"`
}

type priceRequest struct {
	NewPrice *decimal.Decimal `json:"newPrice" validate:"required"`
}

type partRequest struct {
	Name        string           `json:"name" validate:"required"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	Description string           `json:"description" validate:"required"`
	Stock       *int64           `json:"stock"`
	Image       *string          `json:"image"`
	Category    string           `json:"category"`
}

type categoryRequest struct {
	Name string `json:"name" validate:"required"`
}

type priceHistoryResponse struct {
	OldPrice   decimal.Decimal `json:"old_price"`
	NewPrice   decimal.Decimal `json:"new_price"`
	ChangeDate time.Time       `json:"change_date"`
}

func (h *Handler) handleUpdateStock(w http.ResponseWriter, r *http.Request) {
	const title = "Failed to update stock"
	id, ok := h.partID(w, r, title)
	if !ok {
		return
	}
	var req stockRequest
	if !h.decode(w, r, &req, title) {
		return
	}
	amount, err := strconv.ParseInt(req.Amount.String(), 10, 64)
	if err != nil {
		httpx.RespondError(w, ErrInvalidAmount, title)
		return
	}
	adj, err := h.service.AdjustStock(r.Context(), id, amount, StockOperation(req.Operation))
	if err != nil {
		h.fail(w, err, title)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message":  "Stock updated successfully",
		"newStock": adj.NewStock,
	})
}

func (h *Handler) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	const title = "Failed to update price"
	id, ok := h.partID(w, r, title)
	if !ok {
		return
	}
	var req priceRequest
	if !h.decode(w, r, &req, title) {
		return
	}
	if _, err := h.service.UpdatePrice(r.Context(), id, *req.NewPrice); err != nil {
		h.fail(w, err, title)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.MessageBody{Message: "Price updated successfully"})
}

func (h *Handler) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	const title = "Failed to fetch price history"
	id, ok := h.partID(w, r, title)
	if !ok {
		return
	}
	entries, err := h.service.ListPriceHistory(r.Context(), id)
	if err != nil {
		h.fail(w, err, title)
		return
	}
	resp := make([]priceHistoryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, priceHistoryResponse{OldPrice: e.OldPrice, NewPrice: e.NewPrice, ChangeDate: e.ChangeDate})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDeletePart(w http.ResponseWriter, r *http.Request) {
	const title = "Failed to delete part"
	id, ok := h.partID(w, r, title)
	if !ok {
		return
	}
	res, err := h.service.DeletePart(r.Context(), id)
	if err != nil {
		h.fail(w, err, title)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message":      "Part deleted successfully",
		"affectedRows": res.AffectedRows,
	})
}

func (h *Handler) handleCreatePart(w http.ResponseWriter, r *http.Request) {
	const title = "Failed to add part"
	var req partRequest
	if !h.decode(w, r, &req, title) {
		return
	}
	if req.Stock == nil {
		httpx.RespondError(w, missingField("stock"), title)
		return
	}
	if req.Image == nil {
		httpx.RespondError(w, missingField("image"), title)
		return
	}
	id, err := h.service.CreatePart(r.Context(), PartInput{
		Name:        req.Name,
		Price:       *req.Price,
		Description: req.Description,
		Stock:       *req.Stock,
		Image:       *req.Image,
		Category:    req.Category,
	})
	if err != nil {
		h.fail(w, err, title)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"message": "Part added successfully",
		"partId":  id,
	})
}

func (h *Handler) handleUpdatePart(w http.ResponseWriter, r *http.Request) {
	const title = "Failed to update part"
	id, ok := h.partID(w, r, title)
	if !ok {
		return
	}
	var req partRequest
	if !h.decode(w, r, &req, title) {
		return
	}
	err := h.service.UpdatePart(r.Context(), id, PartUpdate{
		Name:        req.Name,
		Price:       *req.Price,
		Description: req.Description,
		Category:    req.Category,
		Image:       req.Image,
	})
	if err != nil {
		h.fail(w, err, title)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.MessageBody{Message: "Part updated successfully"})
}

func (h *Handler) handleListParts(w http.ResponseWriter, r *http.Request) {
	parts, err := h.service.ListParts(r.Context())
	if err != nil {
		h.fail(w, err, "Failed to fetch parts")
		return
	}
	httpx.JSON(w, http.StatusOK, parts)
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.fail(w, err, "Failed to fetch categories")
		return
	}
	httpx.JSON(w, http.StatusOK, categories)
}

func (h *Handler) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	const title = "Failed to add category"
	var req categoryRequest
	if !h.decode(w, r, &req, title) {
		return
	}
	name, err := h.service.AddCategory(req.Name)
	if err != nil {
		h.fail(w, err, title)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"message":  "Category added successfully",
		"category": name,
	})
}

func (h *Handler) partID(w http.ResponseWriter, r *http.Request, title string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, ErrInvalidPartID, title)
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, title string) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Fail(w, http.StatusBadRequest, title, "Invalid JSON body", "")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.Fail(w, http.StatusBadRequest, title, httpx.ValidationMessage(err), "")
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, err error, title string) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(strings.ToLower(title), slog.Any("error", err))
	}
	httpx.RespondError(w, err, title)
}
