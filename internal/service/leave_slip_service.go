package service

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-leave-api/internal/models"
	"github.com/noah-isme/campus-leave-api/internal/repository"
	appErrors "github.com/noah-isme/campus-leave-api/pkg/errors"
	"github.com/noah-isme/campus-leave-api/pkg/export"
	"github.com/noah-isme/campus-leave-api/pkg/jobs"
	"github.com/noah-isme/campus-leave-api/pkg/storage"
)

const slipJobType = "leave_slip"

type slipJobStore interface {
	Create(ctx context.Context, job *models.LeaveSlipJob) error
	GetByID(ctx context.Context, id string) (*models.LeaveSlipJob, error)
	Update(ctx context.Context, id string, params repository.UpdateSlipJobParams) error
	ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]models.LeaveSlipJob, error)
	Delete(ctx context.Context, id string) error
}

type slipDispatcher interface {
	TryEnqueue(job jobs.Job) error
}

type slipFileStore interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type slipRenderer interface {
	RenderSlip(doc export.SlipDocument) ([]byte, error)
}

type slipTokens interface {
	Issue(record models.LeaveRecord) (string, time.Time, error)
	Verify(token string) (*models.LeaveSlipClaims, error)
}

// LeaveSlipConfig is shared by the slip service and its worker.
type LeaveSlipConfig struct {
	APIPrefix     string
	VerifyBaseURL string
	ResultTTL     time.Duration
	Location      *time.Location
}

func (c LeaveSlipConfig) normalized() LeaveSlipConfig {
	c.APIPrefix = strings.TrimRight(c.APIPrefix, "/")
	if c.APIPrefix == "" {
		c.APIPrefix = "/api/v1"
	}
	c.VerifyBaseURL = strings.TrimRight(c.VerifyBaseURL, "/")
	if c.ResultTTL <= 0 {
		c.ResultTTL = 24 * time.Hour
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	return c
}

// SlipDownload is a resolved, opened slip file.
type SlipDownload struct {
	File      *os.File
	Filename  string
	ExpiresAt time.Time
}

// LeaveSlipService accepts slip requests and serves finished slips.
type LeaveSlipService struct {
	records leaveRecordReader
	repo    slipJobStore
	queue   slipDispatcher
	files   slipFileStore
	signer  *storage.SignedURLSigner
	tokens  slipTokens
	metrics *MetricsService
	logger  *zap.Logger
	cfg     LeaveSlipConfig
	now     func() time.Time
}

// NewLeaveSlipService constructs the slip service.
func NewLeaveSlipService(records leaveRecordReader, repo slipJobStore, queue slipDispatcher, files slipFileStore, signer *storage.SignedURLSigner, tokens slipTokens, metrics *MetricsService, logger *zap.Logger, cfg LeaveSlipConfig) *LeaveSlipService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaveSlipService{
		records: records,
		repo:    repo,
		queue:   queue,
		files:   files,
		signer:  signer,
		tokens:  tokens,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg.normalized(),
		now:     time.Now,
	}
}

// Request queues slip rendering for an approved leave.
func (s *LeaveSlipService) Request(ctx context.Context, leaveID string) (*models.LeaveSlipJob, error) {
	record, ok := s.records.Find(strings.TrimSpace(leaveID))
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "leave record not found")
	}
	if record.ApprovalStatus != models.LeaveStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only approved leave requests have a slip")
	}

	job := &models.LeaveSlipJob{LeaveID: record.LeaveID, Status: models.SlipStatusQueued}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create slip job")
	}
	s.metrics.RecordSlipJob(models.SlipStatusQueued)

	if err := s.queue.TryEnqueue(jobs.Job{ID: job.ID, Type: slipJobType, Payload: record.LeaveID}); err != nil {
		failed := models.SlipStatusFailed
		msg := "failed to enqueue job"
		now := s.now().UTC()
		_ = s.repo.Update(ctx, job.ID, repository.UpdateSlipJobParams{
			Status:       &failed,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		s.metrics.RecordSlipJob(models.SlipStatusFailed)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue slip job")
	}
	return s.repo.GetByID(ctx, job.ID)
}

// Status returns job metadata.
func (s *LeaveSlipService) Status(ctx context.Context, id string) (*models.LeaveSlipJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	return job, nil
}

// ResolveDownload validates a download token and opens the slip file.
func (s *LeaveSlipService) ResolveDownload(ctx context.Context, token string) (*SlipDownload, error) {
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.CloneWrap(appErrors.ErrInvalidToken, err, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	if job.Status != models.SlipStatusFinished {
		return nil, appErrors.ErrSlipNotReady
	}
	if job.RelativePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "token mismatch")
	}
	file, err := s.files.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open slip file")
	}
	return &SlipDownload{
		File:      file,
		Filename:  fmt.Sprintf("leave-slip-%s.pdf", safeFileComponent(job.LeaveID)),
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks a QR token. A slip whose leave has since been withdrawn from
// the approved state no longer verifies.
func (s *LeaveSlipService) Verify(ctx context.Context, token string) (*models.LeaveSlipClaims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	if record, ok := s.records.Find(claims.LeaveID); ok && record.ApprovalStatus != models.LeaveStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "leave is no longer approved")
	}
	return claims, nil
}

// Cleanup removes slips finished longer than the result TTL ago, together
// with orphaned files, and returns the number of jobs removed.
func (s *LeaveSlipService) Cleanup(ctx context.Context) int {
	cutoff := s.now().Add(-s.cfg.ResultTTL)
	expired, err := s.repo.ListFinishedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Sugar().Warnw("slip cleanup list failed", "error", err)
		return 0
	}
	removed := 0
	for _, job := range expired {
		if job.RelativePath != "" {
			if err := s.files.Delete(job.RelativePath); err != nil {
				s.logger.Sugar().Warnw("slip cleanup delete failed", "job_id", job.ID, "error", err)
				continue
			}
		}
		if err := s.repo.Delete(ctx, job.ID); err == nil {
			removed++
		}
	}
	if _, err := s.files.CleanupOlderThan(s.cfg.ResultTTL); err != nil {
		s.logger.Sugar().Warnw("slip filesystem cleanup failed", "error", err)
	}
	if removed > 0 {
		s.logger.Sugar().Infow("expired slips removed", "count", removed)
	}
	return removed
}

// LeaveSlipWorker renders queued slips.
type LeaveSlipWorker struct {
	records  leaveRecordReader
	repo     slipJobStore
	files    slipFileStore
	signer   *storage.SignedURLSigner
	tokens   slipTokens
	renderer slipRenderer
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      LeaveSlipConfig
	now      func() time.Time
}

// NewLeaveSlipWorker constructs a worker.
func NewLeaveSlipWorker(records leaveRecordReader, repo slipJobStore, files slipFileStore, signer *storage.SignedURLSigner, tokens slipTokens, renderer slipRenderer, metrics *MetricsService, logger *zap.Logger, cfg LeaveSlipConfig) *LeaveSlipWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaveSlipWorker{
		records:  records,
		repo:     repo,
		files:    files,
		signer:   signer,
		tokens:   tokens,
		renderer: renderer,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg.normalized(),
		now:      time.Now,
	}
}

// Handle processes one queue job. Returned errors are retried by the queue.
func (w *LeaveSlipWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.SlipStatusProcessing
	attempts := record.Attempts + 1
	if err := w.repo.Update(ctx, job.ID, repository.UpdateSlipJobParams{Status: &processing, Attempts: &attempts}); err != nil {
		return err
	}
	w.metrics.RecordSlipJob(models.SlipStatusProcessing)

	relPath, downloadURL, expiresAt, err := w.render(job.ID, record.LeaveID)
	if err != nil {
		queued := models.SlipStatusQueued
		msg := err.Error()
		if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateSlipJobParams{Status: &queued, ErrorMessage: &msg}); updateErr != nil {
			w.logger.Sugar().Warnw("failed to mark slip job queued", "job_id", job.ID, "error", updateErr)
		}
		return err
	}

	finished := models.SlipStatusFinished
	now := w.now().UTC()
	noError := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateSlipJobParams{
		Status:       &finished,
		RelativePath: &relPath,
		DownloadURL:  &downloadURL,
		ExpiresAt:    &expiresAt,
		ErrorMessage: &noError,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark slip job finished", "job_id", job.ID, "error", err)
		return err
	}
	w.metrics.RecordSlipJob(models.SlipStatusFinished)
	w.logger.Sugar().Infow("leave slip rendered", "job_id", job.ID, "leave_id", record.LeaveID)
	return nil
}

// GiveUp marks a job failed once the queue stops retrying it.
func (w *LeaveSlipWorker) GiveUp(ctx context.Context, job jobs.Job, cause error) {
	failed := models.SlipStatusFailed
	msg := cause.Error()
	now := w.now().UTC()
	if err := w.repo.Update(ctx, job.ID, repository.UpdateSlipJobParams{
		Status:       &failed,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark slip job failed", "job_id", job.ID, "error", err)
	}
	w.metrics.RecordSlipJob(models.SlipStatusFailed)
}

func (w *LeaveSlipWorker) render(jobID, leaveID string) (string, string, time.Time, error) {
	record, ok := w.records.Find(leaveID)
	if !ok {
		return "", "", time.Time{}, fmt.Errorf("leave %s not in current records", leaveID)
	}
	if record.ApprovalStatus != models.LeaveStatusApproved {
		return "", "", time.Time{}, fmt.Errorf("leave %s is %s", leaveID, record.ApprovalStatus)
	}

	token, _, err := w.tokens.Issue(record)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("issue slip token: %w", err)
	}
	verifyURL := w.cfg.VerifyBaseURL + w.cfg.APIPrefix + "/slips/verify?token=" + url.QueryEscape(token)
	qr, err := export.QRCodePNG(verifyURL, 256)
	if err != nil {
		return "", "", time.Time{}, err
	}
	payload, err := w.renderer.RenderSlip(w.document(record, qr))
	if err != nil {
		return "", "", time.Time{}, err
	}

	now := w.now().In(w.cfg.Location)
	name := fmt.Sprintf("%s/%s-%s.pdf", now.Format("20060102"), safeFileComponent(record.LeaveID), jobID)
	relPath, err := w.files.Save(name, payload)
	if err != nil {
		return "", "", time.Time{}, err
	}
	downloadToken, expiresAt, err := w.signer.Generate(jobID, relPath)
	if err != nil {
		_ = w.files.Delete(relPath)
		return "", "", time.Time{}, err
	}
	downloadURL := w.cfg.APIPrefix + "/slips/download?token=" + url.QueryEscape(downloadToken)
	return relPath, downloadURL, expiresAt, nil
}

func (w *LeaveSlipWorker) document(record models.LeaveRecord, qr []byte) export.SlipDocument {
	loc := w.cfg.Location
	period := record.StartTime.In(loc).Format(exportTimeLayout) + " 至 " + record.EndTime.In(loc).Format(exportTimeLayout)
	fields := []export.SlipField{
		{Label: "姓名", Value: fmt.Sprintf("%s (%s)", record.StudentName, record.StudentID)},
		{Label: "班级", Value: record.StudentClass},
		{Label: "请假类型", Value: models.NormalizeLeaveType(record.LeaveType)},
		{Label: "请假时间", Value: period},
		{Label: "请假原因", Value: record.LeaveReason},
	}
	if record.ApprovalComment != "" {
		fields = append(fields, export.SlipField{Label: "审批意见", Value: record.ApprovalComment})
	}
	if record.ApproverName != "" {
		fields = append(fields, export.SlipField{Label: "审批人", Value: record.ApproverName})
	}
	return export.SlipDocument{
		Title:    "学生请假条",
		Subtitle: "请假编号 " + record.LeaveID,
		Fields:   fields,
		QRCode:   qr,
		QRNote:   "扫码验证",
		Footer:   "生成时间 " + w.now().In(loc).Format(exportTimeLayout),
	}
}

func safeFileComponent(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, raw)
	if cleaned == "" {
		return "na"
	}
	return cleaned
}
