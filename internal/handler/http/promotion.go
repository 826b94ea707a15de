package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/utafrali/MarketGo/internal/domain"
	"github.com/utafrali/MarketGo/internal/service"
	"github.com/utafrali/MarketGo/pkg/httputil"
	"github.com/utafrali/MarketGo/pkg/validator"
)

// PromotionService is the part of service.PromotionService the handlers use.
type PromotionService interface {
	Preview(ctx context.Context, cart domain.Cart) (*domain.Result, error)
	Apply(ctx context.Context, checkoutID string, cart domain.Cart) (*service.Application, error)
	Commit(ctx context.Context, checkoutID string) error
	Release(ctx context.Context, checkoutID string) error
}

// PromotionHandler handles HTTP requests for cart evaluation endpoints.
type PromotionHandler struct {
	service PromotionService
	logger  *slog.Logger
}

func NewPromotionHandler(svc PromotionService, logger *slog.Logger) *PromotionHandler {
	return &PromotionHandler{service: svc, logger: logger}
}

// Preview handles POST /api/v1/promotions/preview
func (h *PromotionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req CartRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	result, err := h.service.Preview(r.Context(), req.toDomain())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, PreviewResponse{
		Result:        *result,
		TotalDiscount: result.TotalDiscount().String(),
	})
}

// Apply handles POST /api/v1/promotions/apply
func (h *PromotionHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	app, err := h.service.Apply(r.Context(), req.CheckoutID, req.toDomain())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	ids := make([]string, len(app.Reservations))
	for i, res := range app.Reservations {
		ids[i] = res.ID
	}
	httputil.WriteData(w, http.StatusOK, ApplyResponse{
		CheckoutID:     app.CheckoutID,
		Result:         app.Result,
		TotalDiscount:  app.Result.TotalDiscount().String(),
		ReservationIDs: ids,
		ExpiresAt:      app.ExpiresAt,
	})
}

// Commit handles POST /api/v1/promotions/commit
func (h *PromotionHandler) Commit(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.service.Commit)
}

// Release handles POST /api/v1/promotions/release
func (h *PromotionHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.service.Release)
}

func (h *PromotionHandler) settle(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) error) {
	var req CheckoutRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	if err := fn(r.Context(), req.CheckoutID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
