package dto

import (
	"time"

	"github.com/noah-isme/campus-leave-api/internal/models"
)

// ViewSessionResponse is returned when a dashboard view session is created.
type ViewSessionResponse struct {
	ID   string                `json:"id"`
	View models.LeaveViewModel `json:"view"`
}

// SlipJobResponse exposes slip job progress.
type SlipJobResponse struct {
	ID          string            `json:"id"`
	LeaveID     string            `json:"leave_id"`
	Status      models.SlipStatus `json:"status"`
	Attempts    int               `json:"attempts"`
	DownloadURL *string           `json:"download_url,omitempty"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	Error       *string           `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	FinishedAt  *time.Time        `json:"finished_at,omitempty"`
}

// NewSlipJobResponse maps a job to its response shape.
func NewSlipJobResponse(job *models.LeaveSlipJob) SlipJobResponse {
	return SlipJobResponse{
		ID:          job.ID,
		LeaveID:     job.LeaveID,
		Status:      job.Status,
		Attempts:    job.Attempts,
		DownloadURL: job.DownloadURL,
		ExpiresAt:   job.ExpiresAt,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		FinishedAt:  job.FinishedAt,
	}
}

// SlipVerification is the public answer to a scanned slip QR code.
type SlipVerification struct {
	Valid bool                    `json:"valid"`
	Slip  *models.LeaveSlipClaims `json:"slip,omitempty"`
}
