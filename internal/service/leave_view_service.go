package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-leave-api/internal/models"
	appErrors "github.com/noah-isme/campus-leave-api/pkg/errors"
)

type leaveRecordReader interface {
	Snapshot() models.LeaveSnapshot
	Find(leaveID string) (models.LeaveRecord, bool)
}

type leaveRefreshTrigger interface {
	Refresh(ctx context.Context) (models.LeaveRefreshResult, error)
}

// LeaveViewServiceConfig carries listing defaults.
type LeaveViewServiceConfig struct {
	DefaultPageSize int
	Location        *time.Location
}

// LeaveViewService answers stateless queries over the current snapshot.
type LeaveViewService struct {
	store     leaveRecordReader
	refresher leaveRefreshTrigger
	builder   *LeaveViewBuilder
	engine    *LeaveFilterEngine
	stats     *LeaveStatisticsAggregator
	validate  *validator.Validate
	logger    *zap.Logger
	cfg       LeaveViewServiceConfig
}

// NewLeaveViewService constructs the service.
func NewLeaveViewService(store leaveRecordReader, refresher leaveRefreshTrigger, engine *LeaveFilterEngine, stats *LeaveStatisticsAggregator, validate *validator.Validate, logger *zap.Logger, cfg LeaveViewServiceConfig) *LeaveViewService {
	if validate == nil {
		validate = NewLeaveValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	cfg.DefaultPageSize = models.NormalizePageSize(cfg.DefaultPageSize)
	return &LeaveViewService{
		store:     store,
		refresher: refresher,
		builder:   NewLeaveViewBuilder(engine, stats),
		engine:    engine,
		stats:     stats,
		validate:  validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// List renders one page for the given query without keeping any state.
func (s *LeaveViewService) List(ctx context.Context, query models.CriteriaPatch) (models.LeaveViewModel, error) {
	criteria, err := s.Criteria(query)
	if err != nil {
		return models.LeaveViewModel{}, err
	}
	return s.builder.Build(s.store.Snapshot(), criteria), nil
}

// Criteria validates a query into filter criteria.
func (s *LeaveViewService) Criteria(query models.CriteriaPatch) (models.FilterCriteria, error) {
	return CriteriaFromQuery(query, s.cfg.DefaultPageSize, s.validate, s.cfg.Location)
}

// Filtered returns every record matching criteria in display order.
func (s *LeaveViewService) Filtered(ctx context.Context, criteria models.FilterCriteria) ([]models.LeaveRecord, models.LeaveSnapshot) {
	snap := s.store.Snapshot()
	return s.engine.Filter(snap.Records, criteria), snap
}

// Statistics aggregates the full set, or the subset with one status.
func (s *LeaveViewService) Statistics(ctx context.Context, scope string) (models.LeaveStatistics, error) {
	if _, ok := models.NormalizeStatusFilter(scope); !ok {
		return models.LeaveStatistics{}, appErrors.Clone(appErrors.ErrValidation, "unknown status "+strings.TrimSpace(scope))
	}
	return s.stats.AggregateScope(s.store.Snapshot().Records, scope), nil
}

// Grades lists the grade prefixes present in the current snapshot.
func (s *LeaveViewService) Grades(ctx context.Context) []string {
	return s.stats.Grades(s.store.Snapshot().Records)
}

// Get returns one record of the current snapshot.
func (s *LeaveViewService) Get(ctx context.Context, leaveID string) (*models.LeaveRecord, error) {
	record, ok := s.store.Find(strings.TrimSpace(leaveID))
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "leave record not found")
	}
	return &record, nil
}

// CurrentEvent summarises the current snapshot for new stream subscribers.
func (s *LeaveViewService) CurrentEvent() models.LeaveRefreshEvent {
	return refreshEvent(s.store.Snapshot(), s.stats, models.EventLeavesSnapshot)
}

// Refresh triggers an immediate, coalesced refresh.
func (s *LeaveViewService) Refresh(ctx context.Context) (models.LeaveRefreshResult, error) {
	result, err := s.refresher.Refresh(ctx)
	if err != nil {
		return result, err
	}
	s.logger.Sugar().Infow("manual refresh", "sequence", result.Sequence, "outcome", result.Outcome, "records", result.Records)
	return result, nil
}
