package db

import (
	"fmt"
	"time"

	"github.com/datagoal/datagoal/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Meeting{},
		&models.DeliveryRun{},
		&models.DeliveryStep{},
		&models.Notification{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedDemo inserts a handful of meetings and runs for local experimentation.
// Existing rows with the same IDs are left untouched.
func SeedDemo(db *gorm.DB) error {
	meetings := []models.Meeting{
		{ID: "mtg-d0001", ClientName: "Acme Corp", ProjectName: "Q3 Rollout", Title: "Sprint review", Transcript: "Discussed rollout milestones and blockers.", OccurredAt: time.Now().Add(-48 * time.Hour)},
		{ID: "mtg-d0002", ClientName: "Globex", ProjectName: "Data Platform", Title: "Architecture workshop", Transcript: "Agreed on the ingestion redesign.", OccurredAt: time.Now().Add(-24 * time.Hour)},
	}
	for _, m := range meetings {
		if err := db.FirstOrCreate(&models.Meeting{}, models.Meeting{ID: m.ID}).Error; err != nil {
			return fmt.Errorf("db: seed meeting %s: %w", m.ID, err)
		}
		if err := db.Model(&models.Meeting{}).Where("id = ?", m.ID).Updates(map[string]interface{}{
			"client_name":  m.ClientName,
			"project_name": m.ProjectName,
			"title":        m.Title,
			"transcript":   m.Transcript,
			"occurred_at":  m.OccurredAt,
		}).Error; err != nil {
			return fmt.Errorf("db: seed meeting %s: %w", m.ID, err)
		}
	}

	score := 0.92
	runs := []models.DeliveryRun{
		{ID: "run-d0001", MeetingID: "mtg-d0001", Status: "success", QualityScore: &score, OutputContent: "# Sprint Review Summary\n\nAll milestones on track."},
		{ID: "run-d0002", MeetingID: "mtg-d0002", Status: "failed", ErrorMessage: "transcript fetch timed out"},
	}
	for _, r := range runs {
		var count int64
		if err := db.Model(&models.DeliveryRun{}).Where("id = ?", r.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("db: seed run %s: %w", r.ID, err)
		}
		if count > 0 {
			continue
		}
		if err := db.Create(&r).Error; err != nil {
			return fmt.Errorf("db: seed run %s: %w", r.ID, err)
		}
		if err := db.Create(&models.DeliveryStep{
			RunID:   r.ID,
			Attempt: 1,
			Name:    "generate_report",
			Status:  stepStatusFor(r.Status),
			Error:   r.ErrorMessage,
		}).Error; err != nil {
			return fmt.Errorf("db: seed steps for %s: %w", r.ID, err)
		}
	}
	return nil
}

func stepStatusFor(runStatus string) string {
	if runStatus == "failed" {
		return "failed"
	}
	return "success"
}
