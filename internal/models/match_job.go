package models

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// JobFile points at an upload saved to disk for an async match job.
type JobFile struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
}

type MatchJob struct {
	ID             uuid.UUID     `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	JobDescription string        `gorm:"type:text;not null" json:"job_description"`
	Files          []JobFile     `gorm:"type:jsonb;serializer:json" json:"files"`
	Results        []MatchResult `gorm:"type:jsonb;serializer:json" json:"results,omitempty"`
	Total          int           `json:"total"`
	Status         JobStatus     `gorm:"not null;default:'queued'" json:"status"`
	ErrorMessage   *string       `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt      time.Time     `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (MatchJob) TableName() string {
	return "match_jobs"
}
