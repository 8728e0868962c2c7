package models

import "time"

type ExtractionStatus string

const (
	ExtractionPending ExtractionStatus = "pending"
	ExtractionOK      ExtractionStatus = "ok"
	ExtractionFailed  ExtractionStatus = "failed"
)

// Document is one submitted résumé within a matching request. ID is the hex
// SHA-256 of Content, so identical uploads share an ID.
type Document struct {
	ID               string
	Filename         string
	Content          []byte
	Text             string
	ExtractionStatus ExtractionStatus
}

// StoredCV is the persisted extracted text of a document.
type StoredCV struct {
	ID        string    `gorm:"type:varchar(64);primary_key" json:"id"`
	Filename  string    `gorm:"type:text" json:"filename"`
	Text      string    `gorm:"type:text" json:"-"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (StoredCV) TableName() string {
	return "stored_cvs"
}
