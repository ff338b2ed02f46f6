package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/campus-leave-api/internal/models"
	appErrors "github.com/noah-isme/campus-leave-api/pkg/errors"
)

// LeaveSource fetches the raw record set from the leave backend.
type LeaveSource interface {
	Name() string
	Fetch(ctx context.Context) ([]models.LeaveRecordPayload, error)
}

type leaveRecordWriter interface {
	NextSequence() uint64
	Replace(seq uint64, records []models.LeaveRecord) (bool, bool)
	MarkUnavailable(seq uint64, cause error) bool
	Snapshot() models.LeaveSnapshot
}

type refreshPublisher interface {
	Publish(event models.LeaveRefreshEvent)
}

// LeaveRefresherConfig tunes fetch behaviour.
type LeaveRefresherConfig struct {
	Timeout  time.Duration
	Location *time.Location
}

// LeaveRefresher replaces the record store from the configured source. Every
// fetch is tagged with a sequence number so a slow response can never
// overwrite a newer one.
type LeaveRefresher struct {
	source    LeaveSource
	store     leaveRecordWriter
	stats     *LeaveStatisticsAggregator
	publisher refreshPublisher
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       LeaveRefresherConfig
	group     singleflight.Group
}

// NewLeaveRefresher constructs the refresher. publisher may be nil.
func NewLeaveRefresher(source LeaveSource, store leaveRecordWriter, stats *LeaveStatisticsAggregator, publisher refreshPublisher, metrics *MetricsService, logger *zap.Logger, cfg LeaveRefresherConfig) *LeaveRefresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &LeaveRefresher{
		source:    source,
		store:     store,
		stats:     stats,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// Refresh performs one fetch. Concurrent callers share a single in-flight
// fetch and its result.
func (r *LeaveRefresher) Refresh(ctx context.Context) (models.LeaveRefreshResult, error) {
	ch := r.group.DoChan("refresh", func() (interface{}, error) {
		// detached so one caller's cancellation does not fail the others
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.Timeout)
		defer cancel()
		return r.refresh(fetchCtx), nil
	})
	select {
	case <-ctx.Done():
		return models.LeaveRefreshResult{}, appErrors.CloneWrap(appErrors.ErrDataUnavailable, ctx.Err(), "refresh cancelled")
	case res := <-ch:
		return res.Val.(models.LeaveRefreshResult), nil
	}
}

// Run is the scheduled entry point.
func (r *LeaveRefresher) Run(ctx context.Context) {
	if _, err := r.Refresh(ctx); err != nil {
		r.logger.Warn("scheduled refresh aborted", zap.Error(err))
	}
}

func (r *LeaveRefresher) refresh(ctx context.Context) models.LeaveRefreshResult {
	seq := r.store.NextSequence()
	start := time.Now()
	payloads, err := r.source.Fetch(ctx)
	elapsed := time.Since(start)

	if err != nil {
		result := models.LeaveRefreshResult{Sequence: seq, Outcome: models.RefreshUnavailable, Error: errorMessage(err)}
		wasUnavailable := r.store.Snapshot().Unavailable
		if !r.store.MarkUnavailable(seq, errors.New(result.Error)) {
			result.Outcome = models.RefreshStale
		}
		r.metrics.ObserveRefresh(r.source.Name(), result.Outcome, elapsed)
		r.logger.Warn("leave refresh failed",
			zap.String("source", r.source.Name()),
			zap.Uint64("sequence", seq),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		if result.Outcome == models.RefreshUnavailable {
			r.metrics.SetRecordCount(0)
			result.Changed = !wasUnavailable
			if result.Changed {
				r.publish()
			}
		}
		return result
	}

	records := make([]models.LeaveRecord, 0, len(payloads))
	dropped := 0
	for _, payload := range payloads {
		record, err := models.NewLeaveRecord(payload, r.cfg.Location)
		if err != nil {
			dropped++
			r.logger.Sugar().Warnw("dropping malformed leave record", "source", r.source.Name(), "sequence", seq, "error", err)
			continue
		}
		records = append(records, record)
	}
	r.metrics.RecordDropped(dropped)

	applied, changed := r.store.Replace(seq, records)
	result := models.LeaveRefreshResult{
		Sequence: seq,
		Outcome:  models.RefreshApplied,
		Records:  len(records),
		Dropped:  dropped,
		Changed:  changed,
	}
	if !applied {
		result.Outcome = models.RefreshStale
		r.logger.Info("discarding stale refresh", zap.Uint64("sequence", seq))
	}
	r.metrics.ObserveRefresh(r.source.Name(), result.Outcome, elapsed)
	if applied {
		r.metrics.SetRecordCount(len(records))
		r.logger.Debug("leave records refreshed",
			zap.Uint64("sequence", seq),
			zap.Int("records", len(records)),
			zap.Int("dropped", dropped),
			zap.Bool("changed", changed),
		)
	}
	if applied && changed {
		r.publish()
	}
	return result
}

func (r *LeaveRefresher) publish() {
	if r.publisher == nil {
		return
	}
	r.publisher.Publish(refreshEvent(r.store.Snapshot(), r.stats, models.EventLeavesRefreshed))
}

func refreshEvent(snap models.LeaveSnapshot, stats *LeaveStatisticsAggregator, kind string) models.LeaveRefreshEvent {
	counts := stats.Aggregate(snap.Records)
	return models.LeaveRefreshEvent{
		Type:        kind,
		Sequence:    snap.Sequence,
		Total:       counts.Total,
		ByStatus:    counts.ByStatus,
		Unavailable: snap.Unavailable,
		FetchedAt:   snap.FetchedAt,
	}
}

func errorMessage(err error) string {
	if appErr := appErrors.FromError(err); appErr != nil && appErr.Code == appErrors.ErrDataUnavailable.Code {
		return appErr.Message
	}
	return err.Error()
}
