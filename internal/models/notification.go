package models

import "time"

// Notification is an operator-facing alert about a run (review needed,
// generation failed, report delivered, scheduled digest). One row per event;
// the watcher uses these to avoid re-alerting on the same transition.
type Notification struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	RunID        string `gorm:"size:32;index"`
	Kind         string `gorm:"size:16;not null;index"`
	Subject      string `gorm:"size:256"`
	Body         string `gorm:"type:text"`
	Severity     string `gorm:"size:8;default:info"`
	Acknowledged bool   `gorm:"default:false;index"`
	CreatedAt    time.Time
}
