package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/campus-leave-api/internal/models"
	appErrors "github.com/noah-isme/campus-leave-api/pkg/errors"
)

// SlipJobRepository keeps leave slip jobs in process memory. Jobs are short
// lived and their files are swept on the same schedule, so nothing survives a
// restart.
type SlipJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]models.LeaveSlipJob
	now  func() time.Time
}

// NewSlipJobRepository constructs an empty repository.
func NewSlipJobRepository() *SlipJobRepository {
	return &SlipJobRepository{jobs: make(map[string]models.LeaveSlipJob), now: time.Now}
}

// Create stores a new job, filling id, status and creation time defaults.
func (r *SlipJobRepository) Create(ctx context.Context, job *models.LeaveSlipJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.SlipStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = r.now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return appErrors.Clone(appErrors.ErrConflict, "slip job already exists")
	}
	r.jobs[job.ID] = *job
	return nil
}

// GetByID returns a copy of the job.
func (r *SlipJobRepository) GetByID(ctx context.Context, id string) (*models.LeaveSlipJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "slip job not found")
	}
	return &job, nil
}

// UpdateSlipJobParams defines the mutable fields.
type UpdateSlipJobParams struct {
	Status       *models.SlipStatus
	Attempts     *int
	RelativePath *string
	DownloadURL  *string
	ExpiresAt    *time.Time
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update applies the non-nil params. An empty ErrorMessage clears the error.
func (r *SlipJobRepository) Update(ctx context.Context, id string, params UpdateSlipJobParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "slip job not found")
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Attempts != nil {
		job.Attempts = *params.Attempts
	}
	if params.RelativePath != nil {
		job.RelativePath = *params.RelativePath
	}
	if params.DownloadURL != nil {
		url := *params.DownloadURL
		job.DownloadURL = &url
	}
	if params.ExpiresAt != nil {
		expires := *params.ExpiresAt
		job.ExpiresAt = &expires
	}
	if params.ErrorMessage != nil {
		if *params.ErrorMessage == "" {
			job.Error = nil
		} else {
			msg := *params.ErrorMessage
			job.Error = &msg
		}
	}
	if params.FinishedAt != nil {
		finished := *params.FinishedAt
		job.FinishedAt = &finished
	}
	r.jobs[id] = job
	return nil
}

// ListFinishedBefore returns finished or failed jobs completed before cutoff,
// oldest first.
func (r *SlipJobRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]models.LeaveSlipJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.LeaveSlipJob, 0)
	for _, job := range r.jobs {
		if job.FinishedAt == nil || !job.FinishedAt.Before(cutoff) {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinishedAt.Before(*out[j].FinishedAt) })
	return out, nil
}

// Delete removes a job. Missing jobs are ignored.
func (r *SlipJobRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	return nil
}

// Len reports the number of tracked jobs.
func (r *SlipJobRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
