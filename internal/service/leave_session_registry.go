package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-leave-api/internal/models"
	appErrors "github.com/noah-isme/campus-leave-api/pkg/errors"
)

const sessionCachePrefix = "view:"

type criteriaCache interface {
	Enabled() bool
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Touch(ctx context.Context, key string, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// LeaveSessionRegistryConfig tunes session lifetime.
type LeaveSessionRegistryConfig struct {
	TTL             time.Duration
	DefaultPageSize int
	Location        *time.Location
}

// LeaveSessionRegistry keeps dashboard sessions in memory and mirrors their
// criteria to the cache so a dashboard survives a restart of the service.
type LeaveSessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*LeaveViewSession

	store    leaveSnapshotReader
	builder  *LeaveViewBuilder
	cache    criteriaCache
	validate *validator.Validate
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      LeaveSessionRegistryConfig
	now      func() time.Time
}

// NewLeaveSessionRegistry constructs the registry. cache may be nil.
func NewLeaveSessionRegistry(store leaveSnapshotReader, builder *LeaveViewBuilder, cache criteriaCache, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg LeaveSessionRegistryConfig) *LeaveSessionRegistry {
	if validate == nil {
		validate = NewLeaveValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	cfg.DefaultPageSize = models.NormalizePageSize(cfg.DefaultPageSize)
	return &LeaveSessionRegistry{
		sessions: make(map[string]*LeaveViewSession),
		store:    store,
		builder:  builder,
		cache:    cache,
		validate: validate,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Create opens a session, optionally seeded with initial criteria.
func (r *LeaveSessionRegistry) Create(ctx context.Context, patch *models.CriteriaPatch) (*LeaveViewSession, models.LeaveViewModel, error) {
	criteria := models.DefaultFilterCriteria(r.cfg.DefaultPageSize)
	if patch != nil {
		next, err := CriteriaFromQuery(*patch, r.cfg.DefaultPageSize, r.validate, r.cfg.Location)
		if err != nil {
			return nil, models.LeaveViewModel{}, err
		}
		criteria = next
	}

	session := r.newSession(uuid.NewString(), criteria)
	vm := session.ViewModel()
	r.mu.Lock()
	r.sessions[session.ID()] = session
	count := len(r.sessions)
	r.mu.Unlock()
	r.metrics.SetSessionCount(count)

	r.persist(ctx, session)
	return session, vm, nil
}

// Get returns a live session, restoring it from the cache when it is not in
// memory.
func (r *LeaveSessionRegistry) Get(ctx context.Context, id string) (*LeaveViewSession, error) {
	r.mu.RLock()
	session, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		if r.cacheEnabled() {
			_ = r.cache.Touch(ctx, sessionCachePrefix+id, r.cfg.TTL)
		}
		return session, nil
	}

	if !r.cacheEnabled() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "view session not found")
	}
	var criteria models.FilterCriteria
	hit, err := r.cache.Get(ctx, sessionCachePrefix+id, &criteria)
	if err != nil || !hit {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "view session not found")
	}

	restored := r.newSession(id, criteria)
	r.mu.Lock()
	if existing, ok := r.sessions[id]; ok {
		restored = existing
	} else {
		r.sessions[id] = restored
	}
	count := len(r.sessions)
	r.mu.Unlock()
	r.metrics.SetSessionCount(count)
	r.logger.Debug("view session restored", zap.String("session_id", id))
	return restored, nil
}

// View renders the session's current page.
func (r *LeaveSessionRegistry) View(ctx context.Context, id string) (models.LeaveViewModel, error) {
	session, err := r.Get(ctx, id)
	if err != nil {
		return models.LeaveViewModel{}, err
	}
	return session.ViewModel(), nil
}

// UpdateCriteria applies a partial criteria change to a session.
func (r *LeaveSessionRegistry) UpdateCriteria(ctx context.Context, id string, patch models.CriteriaPatch) (models.LeaveViewModel, error) {
	session, err := r.Get(ctx, id)
	if err != nil {
		return models.LeaveViewModel{}, err
	}
	vm, err := session.Patch(func(current models.FilterCriteria) (models.FilterCriteria, error) {
		return ApplyCriteriaPatch(current, patch, r.validate, r.cfg.Location)
	})
	if err != nil {
		return models.LeaveViewModel{}, err
	}
	r.persist(ctx, session)
	return vm, nil
}

// NextPage advances a session by one page.
func (r *LeaveSessionRegistry) NextPage(ctx context.Context, id string) (models.LeaveViewModel, error) {
	session, err := r.Get(ctx, id)
	if err != nil {
		return models.LeaveViewModel{}, err
	}
	vm := session.NextPage()
	r.persist(ctx, session)
	return vm, nil
}

// PrevPage moves a session back by one page.
func (r *LeaveSessionRegistry) PrevPage(ctx context.Context, id string) (models.LeaveViewModel, error) {
	session, err := r.Get(ctx, id)
	if err != nil {
		return models.LeaveViewModel{}, err
	}
	vm := session.PrevPage()
	r.persist(ctx, session)
	return vm, nil
}

// Delete closes a session.
func (r *LeaveSessionRegistry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	count := len(r.sessions)
	r.mu.Unlock()
	r.metrics.SetSessionCount(count)

	if r.cacheEnabled() {
		if !ok {
			var criteria models.FilterCriteria
			ok, _ = r.cache.Get(ctx, sessionCachePrefix+id, &criteria)
		}
		if err := r.cache.Invalidate(ctx, sessionCachePrefix+id); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop view session")
		}
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "view session not found")
	}
	return nil
}

// Sweep evicts sessions idle for longer than the TTL from memory. Cached
// criteria expire on their own.
func (r *LeaveSessionRegistry) Sweep() int {
	cutoff := r.now().Add(-r.cfg.TTL)
	r.mu.Lock()
	removed := 0
	for id, session := range r.sessions {
		if session.LastSeen().Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	count := len(r.sessions)
	r.mu.Unlock()
	r.metrics.SetSessionCount(count)
	if removed > 0 {
		r.logger.Sugar().Infow("view sessions expired", "removed", removed, "active", count)
	}
	return removed
}

// Len reports the number of sessions held in memory.
func (r *LeaveSessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *LeaveSessionRegistry) newSession(id string, criteria models.FilterCriteria) *LeaveViewSession {
	session := NewLeaveViewSession(id, criteria, r.store, r.builder)
	session.now = r.now
	session.lastSeen = r.now()
	return session
}

func (r *LeaveSessionRegistry) persist(ctx context.Context, session *LeaveViewSession) {
	if !r.cacheEnabled() {
		return
	}
	// failures are logged by the cache service; the in-memory session stays authoritative
	_ = r.cache.Set(ctx, sessionCachePrefix+session.ID(), session.Criteria(), r.cfg.TTL)
}

func (r *LeaveSessionRegistry) cacheEnabled() bool {
	return r.cache != nil && r.cache.Enabled()
}
