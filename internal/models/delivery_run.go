package models

import "time"

// DeliveryRun is the core work item in Data Goal: one tracked attempt to turn
// a meeting into a QA-checked client report and dispatch it by email.
type DeliveryRun struct {
	ID            string   `gorm:"primaryKey;size:32"`
	MeetingID     string   `gorm:"size:32;not null;index"`
	Status        string   `gorm:"size:16;default:running;index"`
	QualityScore  *float64 // nil until the QA evaluator has scored the run
	OutputContent string   `gorm:"type:mediumtext"`
	Recipients    string   `gorm:"type:json"` // JSON array of email addresses, set at send time
	ErrorMessage  string   `gorm:"type:text"`
	TotalTimeMs   *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeliveredAt   *time.Time

	Meeting *Meeting       `gorm:"foreignKey:MeetingID"`
	Steps   []DeliveryStep `gorm:"foreignKey:RunID"`
}
