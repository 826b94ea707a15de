package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/MarketGo/internal/domain"
	"github.com/utafrali/MarketGo/internal/policy"
	"github.com/utafrali/MarketGo/internal/repository"
	apperrors "github.com/utafrali/MarketGo/pkg/errors"
	"github.com/utafrali/MarketGo/pkg/slug"
)

const codeMaxLen = 24

// CampaignService implements campaign management on top of the lifecycle
// state machine and the policy checker.
type CampaignService struct {
	repo      repository.CampaignRepository
	events    EventPublisher
	policy    policy.Checker
	lifecycle domain.Lifecycle
	logger    *slog.Logger
	now       func() time.Time
}

func NewCampaignService(
	repo repository.CampaignRepository,
	events EventPublisher,
	checker policy.Checker,
	lifecycle domain.Lifecycle,
	logger *slog.Logger,
) *CampaignService {
	return &CampaignService{
		repo:      repo,
		events:    events,
		policy:    checker,
		lifecycle: lifecycle,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateCampaignInput holds the parameters for creating a campaign. An empty
// Status lets the service pick ACTIVE or UPCOMING from the start date.
type CreateCampaignInput struct {
	Name        string
	Description string
	Status      domain.CampaignStatus
	StartDate   time.Time
	EndDate     time.Time
	Rules       []domain.Rule
}

// CreateCampaign validates input against a snapshot of the stored campaigns
// and persists it with fresh ids and a generated code.
func (s *CampaignService) CreateCampaign(ctx context.Context, input *CreateCampaignInput) (*domain.Campaign, error) {
	now := s.now()
	c := &domain.Campaign{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Status:      input.Status,
		StartDate:   input.StartDate.UTC(),
		EndDate:     input.EndDate.UTC(),
		Rules:       make([]domain.Rule, len(input.Rules)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c.Code = slug.Code(c.Name, strings.ToUpper(uuid.NewString()[:6]), codeMaxLen)

	for i, in := range input.Rules {
		rule := in
		rule.ID = uuid.NewString()
		rule.CampaignID = c.ID
		rule.StartDate = in.StartDate.UTC()
		rule.EndDate = in.EndDate.UTC()
		rule.CreatedAt = now
		rule.Details = make([]domain.RuleDetail, len(in.Details))
		for j, d := range in.Details {
			d.ID = uuid.NewString()
			d.RuleID = rule.ID
			rule.Details[j] = d
		}
		c.Rules[i] = rule
	}

	if c.Status == "" {
		c.Status, _ = s.lifecycle.InitialStatus("", c, now)
	}

	snap, err := s.snapshot(ctx, now)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CheckCampaign(c, snap); err != nil {
		return nil, err
	}
	if c.Status, err = s.lifecycle.InitialStatus(c.Status, c, now); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	campaignTransitions.WithLabelValues(string(c.Status), "create").Inc()

	if err := s.events.PublishCampaignCreated(ctx, c); err != nil {
		s.logger.WarnContext(ctx, "failed to publish campaign.created",
			slog.String("campaign_id", c.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "campaign created",
		slog.String("campaign_id", c.ID),
		slog.String("code", c.Code),
		slog.String("status", string(c.Status)),
		slog.Int("rules", len(c.Rules)),
	)
	return c, nil
}

func (s *CampaignService) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *CampaignService) ListCampaigns(ctx context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("unknown campaign status %q", *filter.Status))
	}
	return s.repo.List(ctx, filter)
}

// Transition applies a manual lifecycle action.
func (s *CampaignService) Transition(ctx context.Context, id string, action domain.Action) (*domain.Campaign, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	to, err := s.lifecycle.Next(c, action, now)
	if err != nil {
		return nil, err
	}
	if to == domain.StatusActive {
		snap, err := s.snapshot(ctx, now)
		if err != nil {
			return nil, err
		}
		if err := s.policy.CheckActivation(c, snap); err != nil {
			return nil, err
		}
	}

	if err := s.move(ctx, c, to, now, false); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCampaign removes an UPCOMING or PAUSED campaign.
func (s *CampaignService) DeleteCampaign(ctx context.Context, id string) error {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.lifecycle.CheckDelete(c); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if err := s.events.PublishCampaignDeleted(ctx, c); err != nil {
		s.logger.WarnContext(ctx, "failed to publish campaign.deleted",
			slog.String("campaign_id", c.ID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.InfoContext(ctx, "campaign deleted", slog.String("campaign_id", id))
	return nil
}

// SweepLifecycle activates campaigns whose start has arrived and expires
// those whose end has passed. It returns the number of transitions applied.
// A campaign that changed concurrently is skipped until the next sweep.
func (s *CampaignService) SweepLifecycle(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.repo.ListDue(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	active, err := s.repo.CountByStatus(ctx, domain.StatusActive)
	if err != nil {
		return 0, err
	}

	applied := 0
	for i := range due {
		c := &due[i]
		actions := s.lifecycle.Due(c, now)
		if len(actions) == 1 && actions[0] == domain.ActionActivate {
			snap := policy.NewSnapshot(now, active, nil)
			if err := s.policy.CheckActivation(c, snap); err != nil {
				s.logger.WarnContext(ctx, "campaign start reached but activation refused",
					slog.String("campaign_id", c.ID),
					slog.String("reason", err.Error()),
				)
				continue
			}
		}

		for _, action := range actions {
			from := c.Status
			to := domain.Target(action)
			if err := s.move(ctx, c, to, now, true); err != nil {
				if errors.Is(err, apperrors.ErrConflict) {
					s.logger.InfoContext(ctx, "campaign changed during sweep, skipping",
						slog.String("campaign_id", c.ID))
					break
				}
				return applied, err
			}
			applied++
			if to == domain.StatusActive {
				active++
			} else if from == domain.StatusActive {
				active--
			}
		}
	}
	return applied, nil
}

func (s *CampaignService) move(ctx context.Context, c *domain.Campaign, to domain.CampaignStatus, now time.Time, automatic bool) error {
	from := c.Status
	if err := s.repo.UpdateStatus(ctx, c.ID, from, to, now); err != nil {
		return err
	}
	c.Status = to
	c.UpdatedAt = now

	trigger := "manual"
	if automatic {
		trigger = "sweep"
	}
	campaignTransitions.WithLabelValues(string(to), trigger).Inc()

	if err := s.events.PublishCampaignStatusChanged(ctx, c, from, to, automatic); err != nil {
		s.logger.WarnContext(ctx, "failed to publish campaign.status_changed",
			slog.String("campaign_id", c.ID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.InfoContext(ctx, "campaign status changed",
		slog.String("campaign_id", c.ID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.Bool("automatic", automatic),
	)
	return nil
}

func (s *CampaignService) snapshot(ctx context.Context, now time.Time) (policy.Snapshot, error) {
	names, err := s.repo.ListNames(ctx)
	if err != nil {
		return policy.Snapshot{}, err
	}
	active, err := s.repo.CountByStatus(ctx, domain.StatusActive)
	if err != nil {
		return policy.Snapshot{}, err
	}
	return policy.NewSnapshot(now, active, names), nil
}
