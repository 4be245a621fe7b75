package dashboard

import (
	"time"

	"github.com/datagoal/datagoal/internal/delivery"
	"github.com/datagoal/datagoal/internal/models"
	"gorm.io/gorm"
)

// RunRow holds run data for the list view.
type RunRow struct {
	ID          string     `json:"id"`
	MeetingID   string     `json:"meeting_id"`
	Client      string     `json:"client"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	StatusLabel string     `json:"status_label"`
	Score       *float64   `json:"score"`
	ScoreLabel  string     `json:"score_label"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// RunList returns runs matching filters, newest first, with meetings joined
// for client display.
func RunList(db *gorm.DB, filters delivery.ListFilters) ([]RunRow, error) {
	runs, err := delivery.List(db, filters)
	if err != nil {
		return nil, err
	}

	rows := make([]RunRow, len(runs))
	for i, r := range runs {
		rows[i] = RunRow{
			ID:          r.ID,
			MeetingID:   r.MeetingID,
			Status:      r.Status,
			StatusLabel: delivery.Meta(r.Status).Label,
			Score:       r.QualityScore,
			ScoreLabel:  delivery.ScoreLabel(r.QualityScore),
			Error:       r.ErrorMessage,
			CreatedAt:   r.CreatedAt,
			DeliveredAt: r.DeliveredAt,
		}
		if r.Meeting != nil {
			rows[i].Client = r.Meeting.ClientName
			rows[i].Title = r.Meeting.Title
		}
	}
	return rows, nil
}

// StepRow holds one pipeline step for the detail view.
type StepRow struct {
	Attempt   int       `json:"attempt"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RunDetail holds full run data for the detail view.
type RunDetail struct {
	RunRow
	OutputContent string    `json:"output_content"`
	Recipients    string    `json:"recipients,omitempty"`
	TotalTimeMs   *int64    `json:"total_time_ms,omitempty"`
	Steps         []StepRow `json:"steps"`
}

// GetRunDetail returns full run data including the step history.
func GetRunDetail(db *gorm.DB, id string) (*RunDetail, error) {
	run, err := delivery.Get(db, id)
	if err != nil {
		return nil, err
	}

	detail := &RunDetail{
		RunRow: RunRow{
			ID:          run.ID,
			MeetingID:   run.MeetingID,
			Status:      run.Status,
			StatusLabel: delivery.Meta(run.Status).Label,
			Score:       run.QualityScore,
			ScoreLabel:  delivery.ScoreLabel(run.QualityScore),
			Error:       run.ErrorMessage,
			CreatedAt:   run.CreatedAt,
			DeliveredAt: run.DeliveredAt,
		},
		OutputContent: run.OutputContent,
		Recipients:    run.Recipients,
		TotalTimeMs:   run.TotalTimeMs,
	}

	var meeting models.Meeting
	if err := db.Select("id, client_name, title").
		Where("id = ?", run.MeetingID).First(&meeting).Error; err == nil {
		detail.Client = meeting.ClientName
		detail.Title = meeting.Title
	}

	detail.Steps = make([]StepRow, len(run.Steps))
	for i, s := range run.Steps {
		detail.Steps[i] = StepRow{
			Attempt:   s.Attempt,
			Name:      s.Name,
			Status:    s.Status,
			Error:     s.Error,
			CreatedAt: s.CreatedAt,
		}
	}
	return detail, nil
}

// ClientSummary holds run counts by status for a single client.
type ClientSummary struct {
	Client        string `json:"client"`
	Running       int    `json:"running"`
	Success       int    `json:"success"`
	ReviewPending int    `json:"review_pending"`
	Failed        int    `json:"failed"`
	Delivered     int    `json:"delivered"`
	Total         int    `json:"total"`
}

// Summary returns per-client run counts grouped by status.
func Summary(db *gorm.DB) ([]ClientSummary, error) {
	type row struct {
		Client string
		Status string
		Count  int
	}
	var rows []row
	if err := db.Model(&models.DeliveryRun{}).
		Select("meetings.client_name as client, delivery_runs.status, count(*) as count").
		Joins("JOIN meetings ON meetings.id = delivery_runs.meeting_id").
		Group("meetings.client_name, delivery_runs.status").
		Order("meetings.client_name ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	// Aggregate by client, keeping first-seen order.
	clientMap := make(map[string]*ClientSummary)
	var order []string
	for _, r := range rows {
		cs, ok := clientMap[r.Client]
		if !ok {
			cs = &ClientSummary{Client: r.Client}
			clientMap[r.Client] = cs
			order = append(order, r.Client)
		}
		cs.Total += r.Count
		switch r.Status {
		case delivery.StatusRunning:
			cs.Running += r.Count
		case delivery.StatusSuccess:
			cs.Success += r.Count
		case delivery.StatusReviewPending:
			cs.ReviewPending += r.Count
		case delivery.StatusFailed:
			cs.Failed += r.Count
		case delivery.StatusDelivered:
			cs.Delivered += r.Count
		}
	}

	result := make([]ClientSummary, 0, len(order))
	for _, client := range order {
		result = append(result, *clientMap[client])
	}
	return result, nil
}

// PendingReviewCount returns the number of runs waiting on manual review.
func PendingReviewCount(db *gorm.DB) int64 {
	var count int64
	db.Model(&models.DeliveryRun{}).
		Where("status = ?", delivery.StatusReviewPending).
		Count(&count)
	return count
}
