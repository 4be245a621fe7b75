package models

import "time"

// DeliveryStep records one pipeline step executed for a run. Rows are
// append-only: retries add steps under a new attempt number, so the full
// history stays auditable.
type DeliveryStep struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	RunID     string `gorm:"size:32;not null;index"`
	Attempt   int    `gorm:"default:1"`
	Name      string `gorm:"size:64;not null"`
	Status    string `gorm:"size:16;default:running"`
	Error     string `gorm:"type:text"`
	CreatedAt time.Time

	Run DeliveryRun `gorm:"foreignKey:RunID"`
}
