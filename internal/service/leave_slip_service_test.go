package service

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-leave-api/internal/models"
	"github.com/noah-isme/campus-leave-api/internal/repository"
	appErrors "github.com/noah-isme/campus-leave-api/pkg/errors"
	"github.com/noah-isme/campus-leave-api/pkg/export"
	"github.com/noah-isme/campus-leave-api/pkg/jobs"
	"github.com/noah-isme/campus-leave-api/pkg/storage"
)

type slipQueueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *slipQueueStub) TryEnqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type recordingRenderer struct {
	docs []export.SlipDocument
}

func (r *recordingRenderer) RenderSlip(doc export.SlipDocument) ([]byte, error) {
	r.docs = append(r.docs, doc)
	return []byte("%PDF-slip"), nil
}

type slipFixture struct {
	store    *fakeLeaveStore
	repo     *repository.SlipJobRepository
	queue    *slipQueueStub
	files    *storage.LocalStorage
	tokens   *SlipTokenIssuer
	renderer *recordingRenderer
	service  *LeaveSlipService
	worker   *LeaveSlipWorker
}

func newSlipFixture(t *testing.T) *slipFixture {
	t.Helper()
	approved := leaveAt("A1", "20210001", "张三", models.LeaveStatusApproved, day(3))
	approved.StudentClass = "计科2101"
	approved.ApprovalComment = "同意"
	pending := leaveAt("P1", "20210002", "李四", models.LeaveStatusPending, day(4))

	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	fx := &slipFixture{
		store:    newFakeLeaveStore([]models.LeaveRecord{approved, pending}),
		repo:     repository.NewSlipJobRepository(),
		queue:    &slipQueueStub{},
		files:    files,
		tokens:   NewSlipTokenIssuer("qr-secret", time.Hour, testLoc),
		renderer: &recordingRenderer{},
	}
	signer := storage.NewSignedURLSigner("url-secret", time.Hour)
	cfg := LeaveSlipConfig{APIPrefix: "/api/v1", VerifyBaseURL: "https://leave.example.edu", ResultTTL: 24 * time.Hour, Location: testLoc}
	fx.service = NewLeaveSlipService(fx.store, fx.repo, fx.queue, files, signer, fx.tokens, nil, zap.NewNop(), cfg)
	fx.worker = NewLeaveSlipWorker(fx.store, fx.repo, files, signer, fx.tokens, fx.renderer, nil, zap.NewNop(), cfg)
	return fx
}

func downloadToken(t *testing.T, job *models.LeaveSlipJob) string {
	t.Helper()
	require.NotNil(t, job.DownloadURL)
	parsed, err := url.Parse(*job.DownloadURL)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/slips/download", parsed.Path)
	return parsed.Query().Get("token")
}

func TestLeaveSlipRequestRules(t *testing.T) {
	fx := newSlipFixture(t)
	ctx := context.Background()

	_, err := fx.service.Request(ctx, "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = fx.service.Request(ctx, "P1")
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Empty(t, fx.queue.jobs)
}

func TestLeaveSlipLifecycle(t *testing.T) {
	fx := newSlipFixture(t)
	ctx := context.Background()

	job, err := fx.service.Request(ctx, " A1 ")
	require.NoError(t, err)
	assert.Equal(t, models.SlipStatusQueued, job.Status)
	require.Len(t, fx.queue.jobs, 1)
	assert.Equal(t, job.ID, fx.queue.jobs[0].ID)

	_, err = fx.service.ResolveDownload(ctx, "bogus")
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)

	require.NoError(t, fx.worker.Handle(ctx, fx.queue.jobs[0]))

	done, err := fx.service.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlipStatusFinished, done.Status)
	assert.Equal(t, 1, done.Attempts)
	assert.Nil(t, done.Error)
	require.NotNil(t, done.ExpiresAt)

	require.Len(t, fx.renderer.docs, 1)
	doc := fx.renderer.docs[0]
	assert.Equal(t, "学生请假条", doc.Title)
	assert.NotEmpty(t, doc.QRCode)
	assert.Contains(t, doc.Fields, export.SlipField{Label: "班级", Value: "计科2101"})
	assert.Contains(t, doc.Fields, export.SlipField{Label: "请假类型", Value: models.DefaultLeaveType})
	assert.Contains(t, doc.Fields, export.SlipField{Label: "审批意见", Value: "同意"})

	download, err := fx.service.ResolveDownload(ctx, downloadToken(t, done))
	require.NoError(t, err)
	defer download.File.Close() //nolint:errcheck
	content, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-slip", string(content))
	assert.Equal(t, "leave-slip-A1.pdf", download.Filename)
}

func TestLeaveSlipDownloadNotReady(t *testing.T) {
	fx := newSlipFixture(t)
	ctx := context.Background()
	job, err := fx.service.Request(ctx, "A1")
	require.NoError(t, err)

	token, _, err := storage.NewSignedURLSigner("url-secret", time.Hour).Generate(job.ID, "x.pdf")
	require.NoError(t, err)
	_, err = fx.service.ResolveDownload(ctx, token)
	assert.ErrorIs(t, err, appErrors.ErrSlipNotReady)
}

func TestLeaveSlipEnqueueFailure(t *testing.T) {
	fx := newSlipFixture(t)
	fx.queue.err = jobs.ErrQueueFull

	_, err := fx.service.Request(context.Background(), "A1")
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Equal(t, 1, fx.repo.Len())
}

func TestLeaveSlipWorkerRetryThenGiveUp(t *testing.T) {
	fx := newSlipFixture(t)
	ctx := context.Background()
	job, err := fx.service.Request(ctx, "A1")
	require.NoError(t, err)

	fx.store.snap.Records = []models.LeaveRecord{leaveAt("A1", "20210001", "张三", models.LeaveStatusRejected, day(3))}
	err = fx.worker.Handle(ctx, fx.queue.jobs[0])
	require.Error(t, err)

	queued, err := fx.service.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlipStatusQueued, queued.Status)
	require.NotNil(t, queued.Error)

	fx.worker.GiveUp(ctx, fx.queue.jobs[0], errors.New("leave A1 is rejected"))
	failed, err := fx.service.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlipStatusFailed, failed.Status)
	assert.NotNil(t, failed.FinishedAt)
}

func TestLeaveSlipVerify(t *testing.T) {
	fx := newSlipFixture(t)
	ctx := context.Background()
	record, ok := fx.store.Find("A1")
	require.True(t, ok)

	token, expiresAt, err := fx.tokens.Issue(record)
	require.NoError(t, err)

	claims, err := fx.service.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "A1", claims.LeaveID)
	assert.Equal(t, "张三", claims.StudentName)
	assert.True(t, claims.StartTime.Equal(record.StartTime))
	assert.True(t, claims.ExpiresAt.Equal(expiresAt))

	_, err = NewSlipTokenIssuer("other", time.Hour, testLoc).Verify(token)
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)

	fx.tokens.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = fx.service.Verify(ctx, token)
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)
	fx.tokens.now = time.Now

	fx.store.snap.Records = []models.LeaveRecord{leaveAt("A1", "20210001", "张三", models.LeaveStatusRejected, day(3))}
	_, err = fx.service.Verify(ctx, token)
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)

	fx.store.snap.Records = nil
	_, err = fx.service.Verify(ctx, token)
	assert.NoError(t, err)
}

func TestLeaveSlipCleanup(t *testing.T) {
	fx := newSlipFixture(t)
	ctx := context.Background()
	job, err := fx.service.Request(ctx, "A1")
	require.NoError(t, err)
	require.NoError(t, fx.worker.Handle(ctx, fx.queue.jobs[0]))
	done, err := fx.service.Status(ctx, job.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, fx.service.Cleanup(ctx))

	fx.service.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	assert.Equal(t, 1, fx.service.Cleanup(ctx))
	_, err = fx.service.Status(ctx, job.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = fx.files.Open(done.RelativePath)
	assert.Error(t, err)
	assert.True(t, strings.HasSuffix(done.RelativePath, "-"+job.ID+".pdf"))
}
