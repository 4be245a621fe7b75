// Package notify pushes delivery events to operator channels (Slack,
// Discord) and records them for the dashboard bell.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/datagoal/datagoal/internal/models"
	"gorm.io/gorm"
)

// Event severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
	SeveritySuccess = "success"
)

// Field is a key-value pair displayed in an event attachment.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// Event is a delivery event formatted for operator channels.
type Event struct {
	RunID    string
	Kind     string // review_pending, failed, delivered, digest
	Title    string
	Body     string
	Severity string
	Fields   []Field
}

// Adapter is the interface platform-specific implementations must satisfy.
type Adapter interface {
	// Connect establishes a connection to the platform.
	Connect(ctx context.Context) error

	// Send delivers an event to the platform.
	Send(ctx context.Context, evt Event) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// Notifier fans an event out to all configured adapters and records a
// Notification row. Adapter failures are logged, never returned: alerting is
// best-effort and must not fail the operation that triggered it.
type Notifier struct {
	db       *gorm.DB
	adapters []Adapter
}

// NewNotifier creates a Notifier over the given adapters.
func NewNotifier(db *gorm.DB, adapters ...Adapter) *Notifier {
	return &Notifier{db: db, adapters: adapters}
}

// Connect establishes every adapter connection. A failing adapter aborts
// startup: a daemon with a dead alert channel should not run silently.
func (n *Notifier) Connect(ctx context.Context) error {
	for _, a := range n.adapters {
		if err := a.Connect(ctx); err != nil {
			return fmt.Errorf("notify: connect adapter: %w", err)
		}
	}
	return nil
}

// Close shuts down every adapter connection, returning the first error.
func (n *Notifier) Close() error {
	var firstErr error
	for _, a := range n.adapters {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("notify: close adapter: %w", err)
		}
	}
	return firstErr
}

// Notify records the event and pushes it to every adapter.
func (n *Notifier) Notify(ctx context.Context, evt Event) error {
	if evt.Severity == "" {
		evt.Severity = SeverityInfo
	}

	if n.db != nil {
		row := models.Notification{
			RunID:     evt.RunID,
			Kind:      evt.Kind,
			Subject:   evt.Title,
			Body:      evt.Body,
			Severity:  evt.Severity,
			CreatedAt: time.Now(),
		}
		if err := n.db.Create(&row).Error; err != nil {
			return fmt.Errorf("notify: record event: %w", err)
		}
	}

	for _, a := range n.adapters {
		if err := a.Send(ctx, evt); err != nil {
			log.Printf("notify: adapter send failed: %v", err)
		}
	}
	return nil
}

// Unacknowledged returns unacknowledged notifications, newest first.
func Unacknowledged(db *gorm.DB) ([]models.Notification, error) {
	var rows []models.Notification
	if err := db.Where("acknowledged = ?", false).
		Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notify: list unacknowledged: %w", err)
	}
	return rows, nil
}

// Acknowledge marks a notification as acknowledged.
func Acknowledge(db *gorm.DB, id uint) error {
	result := db.Model(&models.Notification{}).Where("id = ?", id).
		Update("acknowledged", true)
	if result.Error != nil {
		return fmt.Errorf("notify: acknowledge %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("notify: notification not found: %d", id)
	}
	return nil
}

// SeverityColor maps an event severity to a sidebar color hint.
func SeverityColor(severity string) string {
	switch severity {
	case SeveritySuccess:
		return "#36a64f"
	case SeverityWarning:
		return "#f2c744"
	case SeverityError:
		return "#d62828"
	default:
		return "#2d9cdb"
	}
}
