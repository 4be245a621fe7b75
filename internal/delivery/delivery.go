// Package delivery owns the DeliveryRun lifecycle: legal status transitions,
// QA verdict routing, and the validate/send/retry operations. It is the only
// writer of run status; every other package renders what it reports.
package delivery

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/datagoal/datagoal/internal/models"
	"gorm.io/gorm"
)

// Run statuses.
const (
	StatusRunning       = "running"
	StatusSuccess       = "success"
	StatusReviewPending = "review_pending"
	StatusFailed        = "failed"
	StatusDelivered     = "delivered"
)

// ValidTransitions maps each status to its valid next statuses.
// delivered is terminal; failed leaves only through retry.
var ValidTransitions = map[string][]string{
	StatusRunning:       {StatusSuccess, StatusFailed},
	StatusSuccess:       {StatusReviewPending, StatusDelivered},
	StatusReviewPending: {StatusDelivered, StatusFailed},
	StatusFailed:        {StatusRunning},
	StatusDelivered:     {},
}

// IsValidTransition checks whether a status transition is allowed.
func IsValidTransition(from, to string) bool {
	valid, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, v := range valid {
		if v == to {
			return true
		}
	}
	return false
}

// ListFilters holds optional filters for listing runs.
type ListFilters struct {
	Status    string
	MeetingID string
	Client    string
}

// GenerateID creates a unique run ID in run-xxxxx format (5-char hex).
func GenerateID() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("delivery: generate ID: %w", err)
	}
	return "run-" + hex.EncodeToString(b)[:5], nil
}

// Create creates a new run for a meeting in status running, with its first
// generation step recorded.
func Create(db *gorm.DB, meetingID string) (*models.DeliveryRun, error) {
	if meetingID == "" {
		return nil, fmt.Errorf("delivery: meetingID is required")
	}

	var count int64
	if err := db.Model(&models.Meeting{}).Where("id = ?", meetingID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("delivery: check meeting %s: %w", meetingID, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("delivery: meeting not found: %s", meetingID)
	}

	id, err := generateUniqueID(db)
	if err != nil {
		return nil, err
	}

	run := models.DeliveryRun{
		ID:        id,
		MeetingID: meetingID,
		Status:    StatusRunning,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("delivery: create run: %w", err)
		}
		if err := tx.Create(&models.DeliveryStep{
			RunID:   run.ID,
			Attempt: 1,
			Name:    "generate_report",
			Status:  "running",
		}).Error; err != nil {
			return fmt.Errorf("delivery: create initial step: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &run, nil
}

// Get retrieves a run by ID, preloading its steps.
func Get(db *gorm.DB, id string) (*models.DeliveryRun, error) {
	var run models.DeliveryRun
	if err := db.Preload("Meeting").Preload("Steps", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("id ASC")
	}).Where("id = ?", id).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("delivery: get %s: %w", id, err)
	}
	return &run, nil
}

// List returns runs matching the given filters, newest first.
func List(db *gorm.DB, filters ListFilters) ([]models.DeliveryRun, error) {
	q := db.Model(&models.DeliveryRun{}).Preload("Meeting")

	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	if filters.MeetingID != "" {
		q = q.Where("meeting_id = ?", filters.MeetingID)
	}
	if filters.Client != "" {
		q = q.Joins("JOIN meetings ON meetings.id = delivery_runs.meeting_id").
			Where("meetings.client_name = ?", filters.Client)
	}

	var runs []models.DeliveryRun
	if err := q.Order("delivery_runs.created_at DESC").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("delivery: list: %w", err)
	}
	return runs, nil
}

// generateUniqueID generates an ID and retries once on collision.
func generateUniqueID(db *gorm.DB) (string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		id, err := GenerateID()
		if err != nil {
			return "", err
		}
		var count int64
		if err := db.Model(&models.DeliveryRun{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return "", fmt.Errorf("delivery: check ID uniqueness: %w", err)
		}
		if count == 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("delivery: failed to generate unique ID after retries")
}
