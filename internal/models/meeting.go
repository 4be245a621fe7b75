package models

import "time"

// Meeting is the trigger entity for a delivery: a recorded client meeting
// whose transcript seeds the generated report.
type Meeting struct {
	ID          string `gorm:"primaryKey;size:32"`
	ClientName  string `gorm:"size:128;not null;index"`
	ProjectName string `gorm:"size:128"`
	Title       string `gorm:"size:256;not null"`
	Transcript  string `gorm:"type:mediumtext"`
	OccurredAt  time.Time
	CreatedAt   time.Time

	Runs []DeliveryRun `gorm:"foreignKey:MeetingID"`
}
