// Package export aggregates delivery metrics and serializes them for
// external reporting tools.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/datagoal/datagoal/internal/models"
	"gorm.io/gorm"
)

// StatusMetrics holds aggregates for one run status.
type StatusMetrics struct {
	Status        string   `json:"status"`
	Count         int64    `json:"count"`
	MeanScore     *float64 `json:"mean_score,omitempty"`      // over scored runs only
	MeanTotalTime *float64 `json:"mean_total_time,omitempty"` // milliseconds, over timed runs only
}

// Report is the full metrics export.
type Report struct {
	TotalRuns int64           `json:"total_runs"`
	Statuses  []StatusMetrics `json:"statuses"`
}

// Metrics aggregates per-status run counts with mean quality score and mean
// wall time. Unscored and untimed runs are left out of the means rather than
// counted as zero.
func Metrics(db *gorm.DB) (*Report, error) {
	type row struct {
		Status    string
		Count     int64
		MeanScore *float64
		MeanTime  *float64
	}
	var rows []row
	if err := db.Model(&models.DeliveryRun{}).
		Select("status, count(*) as count, avg(quality_score) as mean_score, avg(total_time_ms) as mean_time").
		Group("status").
		Order("status ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("export: aggregate metrics: %w", err)
	}

	report := &Report{Statuses: make([]StatusMetrics, len(rows))}
	for i, r := range rows {
		report.TotalRuns += r.Count
		report.Statuses[i] = StatusMetrics{
			Status:        r.Status,
			Count:         r.Count,
			MeanScore:     r.MeanScore,
			MeanTotalTime: r.MeanTime,
		}
	}
	return report, nil
}

// WriteCSV writes the report as CSV with a header row.
func WriteCSV(w io.Writer, report *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"status", "count", "mean_score", "mean_total_time_ms"}); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}
	for _, s := range report.Statuses {
		rec := []string{s.Status, fmt.Sprintf("%d", s.Count), "", ""}
		if s.MeanScore != nil {
			rec[2] = fmt.Sprintf("%.4f", *s.MeanScore)
		}
		if s.MeanTotalTime != nil {
			rec[3] = fmt.Sprintf("%.0f", *s.MeanTotalTime)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("export: write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	return nil
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, report *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("export: write json: %w", err)
	}
	return nil
}
