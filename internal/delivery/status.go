package delivery

import (
	"fmt"

	"github.com/datagoal/datagoal/internal/models"
)

// StatusMeta is the single authoritative mapping from a run status to its
// display label, color hint, and the operations legal in that status. All
// renderers (CLI tables, dashboard, notifications) derive from this; nothing
// reimplements "what does status X mean".
type StatusMeta struct {
	Label       string
	Color       string // sidebar/badge color hint
	CanValidate bool
	CanSend     bool // directly, or with review override for review_pending
	CanRetry    bool
}

var statusMeta = map[string]StatusMeta{
	StatusRunning:       {Label: "Generando", Color: "#3b82f6"},
	StatusSuccess:       {Label: "Listo", Color: "#22c55e", CanValidate: true, CanSend: true},
	StatusReviewPending: {Label: "Revisión pendiente", Color: "#eab308", CanSend: true},
	StatusFailed:        {Label: "Fallido", Color: "#ef4444", CanRetry: true},
	StatusDelivered:     {Label: "Entregado", Color: "#8b5cf6"},
}

// Meta returns the metadata for a status. Unknown statuses get a gray badge
// and no legal operations.
func Meta(status string) StatusMeta {
	if m, ok := statusMeta[status]; ok {
		return m
	}
	return StatusMeta{Label: status, Color: "#6b7280"}
}

// ScoreLabel renders a quality score for display. An unscored run (nil) is
// shown as "Sin evaluar" and takes no part in QA-based routing.
func ScoreLabel(score *float64) string {
	if score == nil {
		return "Sin evaluar"
	}
	return fmt.Sprintf("%.2f", *score)
}

// ScoreLabelFor is a convenience over the run record.
func ScoreLabelFor(run *models.DeliveryRun) string {
	return ScoreLabel(run.QualityScore)
}
