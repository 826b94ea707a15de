package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/MarketGo/internal/domain"
	"github.com/utafrali/MarketGo/internal/repository"
	"github.com/utafrali/MarketGo/internal/service"
	"github.com/utafrali/MarketGo/pkg/httputil"
	"github.com/utafrali/MarketGo/pkg/pagination"
	"github.com/utafrali/MarketGo/pkg/validator"
)

// CampaignService is the part of service.CampaignService the handlers use.
type CampaignService interface {
	CreateCampaign(ctx context.Context, input *service.CreateCampaignInput) (*domain.Campaign, error)
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	ListCampaigns(ctx context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error)
	Transition(ctx context.Context, id string, action domain.Action) (*domain.Campaign, error)
	DeleteCampaign(ctx context.Context, id string) error
}

// CampaignHandler handles HTTP requests for campaign endpoints.
type CampaignHandler struct {
	service CampaignService
	logger  *slog.Logger
}

func NewCampaignHandler(svc CampaignService, logger *slog.Logger) *CampaignHandler {
	return &CampaignHandler{service: svc, logger: logger}
}

// CreateCampaign handles POST /api/v1/campaigns
func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	campaign, err := h.service.CreateCampaign(r.Context(), &service.CreateCampaignInput{
		Name:        req.Name,
		Description: req.Description,
		Status:      domain.CampaignStatus(req.Status),
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Rules:       req.toRules(),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Location", "/api/v1/campaigns/"+campaign.ID)
	httputil.WriteData(w, http.StatusCreated, campaign)
}

// ListCampaigns handles GET /api/v1/campaigns
func (h *CampaignHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	filter := repository.CampaignFilter{Params: pagination.FromRequest(r)}
	if v := r.URL.Query().Get("status"); v != "" {
		status := domain.CampaignStatus(v)
		filter.Status = &status
	}

	campaigns, total, err := h.service.ListCampaigns(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(campaigns, total, filter.Params))
}

// GetCampaign handles GET /api/v1/campaigns/{id}
func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	campaign, err := h.service.GetCampaign(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, campaign)
}

// DeleteCampaign handles DELETE /api/v1/campaigns/{id}
func (h *CampaignHandler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.DeleteCampaign(r.Context(), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Transition handles POST /api/v1/campaigns/{id}/{action}
func (h *CampaignHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	action, err := domain.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	campaign, err := h.service.Transition(r.Context(), id.String(), action)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, campaign)
}
