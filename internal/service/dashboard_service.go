package service

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/shopping-request-api/internal/models"
	"github.com/noah-isme/shopping-request-api/internal/workflow"
	appErrors "github.com/noah-isme/shopping-request-api/pkg/errors"
)

const (
	dashboardScopeAll  = "all"
	dashboardScopeTeam = "team"
	dashboardScopeOwn  = "own"
)

type dashboardRepository interface {
	Summary(ctx context.Context, filter models.RequestFilter) ([]models.StatusSummary, error)
	CountAwaiting(ctx context.Context, actorID string, role models.Role) (int, error)
	MaxIssued(ctx context.Context, prefix string, year int) (int64, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL     time.Duration
	NumberPrefix string
}

// DashboardService composes role-scoped request summaries.
type DashboardService struct {
	repo   dashboardRepository
	cache  *CacheService
	logger *zap.Logger
	now    func() time.Time
	cfg    DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(repo dashboardRepository, cache *CacheService, logger *zap.Logger, cfg DashboardServiceConfig) *DashboardService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.NumberPrefix == "" {
		cfg.NumberPrefix = "SC"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{repo: repo, cache: cache, logger: logger, now: time.Now, cfg: cfg}
}

// Summary returns the dashboard for the actor and whether it came from cache.
// A zero year means the current UTC year.
func (s *DashboardService) Summary(ctx context.Context, actor workflow.Actor, year int) (*models.DashboardSummary, bool, error) {
	if actor.ID == "" {
		return nil, false, appErrors.ErrUnauthorized
	}
	if year == 0 {
		year = s.now().UTC().Year()
	}
	if year < 1 || year > 9999 {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "year out of range")
	}

	scope, owner := dashboardScope(actor)
	key := CacheKey(CacheKeyDashboard, scope, owner, strconv.Itoa(year))

	var cached models.DashboardSummary
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("dashboard cache read failed", zap.String("key", key), zap.Error(err))
	}
	if hit {
		return &cached, true, nil
	}

	summary, err := s.compose(ctx, actor, scope, year)
	if err != nil {
		return nil, false, err
	}
	if err := s.cache.Set(ctx, key, summary, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
	return summary, false, nil
}

func (s *DashboardService) compose(ctx context.Context, actor workflow.Actor, scope string, year int) (*models.DashboardSummary, error) {
	byStatus, err := s.repo.Summary(ctx, models.RequestFilter{Year: year, ViewerID: actor.ID, ViewerRole: actor.Role})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise requests")
	}
	awaiting, err := s.repo.CountAwaiting(ctx, actor.ID, actor.Role)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pending work")
	}

	summary := &models.DashboardSummary{
		Scope:          scope,
		ByStatus:       completeStatuses(byStatus),
		TotalAmount:    decimal.Zero,
		AwaitingAction: awaiting,
		GeneratedAt:    s.now().UTC(),
	}
	for _, row := range summary.ByStatus {
		summary.TotalCount += row.Count
		summary.TotalAmount = summary.TotalAmount.Add(row.Amount)
	}

	if scope == dashboardScopeAll {
		issued, err := s.repo.MaxIssued(ctx, s.cfg.NumberPrefix, year)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read issued numbers")
		}
		summary.NumbersThisYear = issued
	}
	return summary, nil
}

func dashboardScope(actor workflow.Actor) (string, string) {
	switch actor.Role {
	case models.RoleProcurement, models.RoleAdmin:
		return dashboardScopeAll, "-"
	case models.RoleManager:
		return dashboardScopeTeam, actor.ID
	default:
		return dashboardScopeOwn, actor.ID
	}
}

// completeStatuses returns one row per known status in lifecycle order.
func completeStatuses(rows []models.StatusSummary) []models.StatusSummary {
	index := make(map[models.RequestStatus]models.StatusSummary, len(rows))
	for _, row := range rows {
		index[row.Status] = row
	}
	out := make([]models.StatusSummary, 0, len(models.RequestStatuses))
	for _, status := range models.RequestStatuses {
		row, ok := index[status]
		if !ok {
			row = models.StatusSummary{Status: status, Amount: decimal.Zero}
		}
		out = append(out, row)
	}
	return out
}
