package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/datagoal/datagoal/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// alertEvent holds data for an alert SSE event.
type alertEvent struct {
	ID       uint   `json:"id"`
	RunID    string `json:"run_id,omitempty"`
	Kind     string `json:"kind"`
	Subject  string `json:"subject"`
	Severity string `json:"severity"`
	Count    int64  `json:"count"` // total unacknowledged
}

// handleSSE streams new notifications to connected dashboards. It polls the
// notifications table and emits an event per new row, plus heartbeats so
// proxies keep the connection open.
func handleSSE(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		if db == nil {
			return
		}

		// Only alert on rows created after the connection opened.
		var lastSeenID uint
		var latest models.Notification
		if err := db.Order("id DESC").Limit(1).First(&latest).Error; err == nil {
			lastSeenID = latest.ID
		}

		ctx := c.Request.Context()
		ticker := time.NewTicker(3 * time.Second)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				var rows []models.Notification
				db.Where("id > ?", lastSeenID).Order("id ASC").Find(&rows)
				if len(rows) == 0 {
					continue
				}
				lastSeenID = rows[len(rows)-1].ID

				var count int64
				db.Model(&models.Notification{}).
					Where("acknowledged = ?", false).Count(&count)

				for _, n := range rows {
					writeSSE(c.Writer, "alert", alertEvent{
						ID:       n.ID,
						RunID:    n.RunID,
						Kind:     n.Kind,
						Subject:  n.Subject,
						Severity: n.Severity,
						Count:    count,
					})
				}
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
