package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SlipStatus captures leave slip job lifecycle states.
type SlipStatus string

const (
	SlipStatusQueued     SlipStatus = "QUEUED"
	SlipStatusProcessing SlipStatus = "PROCESSING"
	SlipStatusFinished   SlipStatus = "FINISHED"
	SlipStatusFailed     SlipStatus = "FAILED"
)

// LeaveSlipJob tracks the rendering of a printable leave slip.
type LeaveSlipJob struct {
	ID           string     `json:"id"`
	LeaveID      string     `json:"leave_id"`
	Status       SlipStatus `json:"status"`
	Attempts     int        `json:"attempts"`
	RelativePath string     `json:"-"`
	DownloadURL  *string    `json:"download_url,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Error        *string    `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// LeaveSlipClaims is the verified content of a slip QR code.
type LeaveSlipClaims struct {
	LeaveID     string    `json:"leave_id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SlipTokenClaims is the signed payload carried by a slip QR code.
type SlipTokenClaims struct {
	LeaveID     string `json:"leave_id"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	StartTime   int64  `json:"start"`
	EndTime     int64  `json:"end"`
	jwt.RegisteredClaims
}
