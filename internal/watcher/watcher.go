// Package watcher runs the background daemon: escalates runs needing
// attention, fails stalled generations, and sends scheduled digests.
package watcher

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/datagoal/datagoal/internal/delivery"
	"github.com/datagoal/datagoal/internal/models"
	"github.com/datagoal/datagoal/internal/notify"
	"gorm.io/gorm"
)

const defaultPollInterval = 30 * time.Second

// Opts holds configuration for the watch daemon.
type Opts struct {
	DB           *gorm.DB
	Controller   *delivery.Controller
	Notifier     *notify.Notifier
	PollInterval time.Duration
	StallTimeout time.Duration // runs in running older than this are failed
	DigestCron   string        // 5-field cron expression, empty disables the digest
	Out          io.Writer
}

// Run runs the watch daemon loop until ctx is cancelled. Each tick escalates
// newly review_pending and failed runs, sweeps stalled generations, and
// fires the digest when due. Phase errors are logged and the loop continues.
func Run(ctx context.Context, opts Opts) error {
	if opts.DB == nil {
		return fmt.Errorf("watcher: db is required")
	}
	if opts.Controller == nil {
		return fmt.Errorf("watcher: controller is required")
	}
	if opts.Notifier == nil {
		return fmt.Errorf("watcher: notifier is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}

	fmt.Fprintf(opts.Out, "Watcher starting (poll every %s)...\n", opts.PollInterval)

	nextDigest := nextCronTime(opts.DigestCron, time.Now())

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(opts.Out, "Watcher stopped.\n")
			return nil
		case <-ticker.C:
		}

		// Phase 1: Escalate runs newly needing attention.
		if err := escalateRuns(ctx, opts.DB, opts.Notifier, opts.Out); err != nil {
			log.Printf("watcher escalate error: %v", err)
		}

		// Phase 2: Fail generations that have been running too long.
		if opts.StallTimeout > 0 {
			if err := sweepStalled(ctx, opts.DB, opts.Controller, opts.StallTimeout, opts.Out); err != nil {
				log.Printf("watcher stall sweep error: %v", err)
			}
		}

		// Phase 3: Scheduled digest.
		if !nextDigest.IsZero() && !time.Now().Before(nextDigest) {
			if err := sendDigest(ctx, opts.DB, opts.Notifier); err != nil {
				log.Printf("watcher digest error: %v", err)
			}
			nextDigest = nextCronTime(opts.DigestCron, time.Now())
		}
	}
}

// escalateKinds maps a run status to the notification kind it escalates as.
var escalateKinds = map[string]struct {
	kind     string
	severity string
}{
	delivery.StatusReviewPending: {kind: "review_pending", severity: notify.SeverityWarning},
	delivery.StatusFailed:        {kind: "failed", severity: notify.SeverityError},
}

// escalateRuns notifies operators about runs in review_pending or failed
// that have not been escalated yet. The existing notification row is the
// dedupe marker.
func escalateRuns(ctx context.Context, db *gorm.DB, notifier *notify.Notifier, out io.Writer) error {
	for status, esc := range escalateKinds {
		notified := db.Model(&models.Notification{}).
			Select("run_id").
			Where("kind = ?", esc.kind)

		var runs []models.DeliveryRun
		if err := db.Preload("Meeting").
			Where("status = ?", status).
			Where("id NOT IN (?)", notified).
			Find(&runs).Error; err != nil {
			return fmt.Errorf("watcher: find %s runs: %w", status, err)
		}

		for _, run := range runs {
			evt := notify.Event{
				RunID:    run.ID,
				Kind:     esc.kind,
				Title:    fmt.Sprintf("Run %s: %s", run.ID, delivery.Meta(run.Status).Label),
				Severity: esc.severity,
				Fields: []notify.Field{
					{Name: "Score", Value: delivery.ScoreLabel(run.QualityScore), Short: true},
				},
			}
			if run.Meeting != nil {
				evt.Fields = append(evt.Fields,
					notify.Field{Name: "Client", Value: run.Meeting.ClientName, Short: true})
			}
			if run.ErrorMessage != "" {
				evt.Body = run.ErrorMessage
			}
			if err := notifier.Notify(ctx, evt); err != nil {
				return fmt.Errorf("watcher: escalate %s: %w", run.ID, err)
			}
			fmt.Fprintf(out, "Escalated %s (%s)\n", run.ID, esc.kind)
		}
	}
	return nil
}

// sweepStalled fails runs stuck in running past the stall timeout. This is a
// generation failure, so the run lands in failed and stays retryable.
func sweepStalled(ctx context.Context, db *gorm.DB, ctrl *delivery.Controller, timeout time.Duration, out io.Writer) error {
	cutoff := time.Now().Add(-timeout)

	var runs []models.DeliveryRun
	if err := db.Where("status = ? AND updated_at < ?", delivery.StatusRunning, cutoff).
		Find(&runs).Error; err != nil {
		return fmt.Errorf("watcher: find stalled runs: %w", err)
	}

	for _, run := range runs {
		_, err := ctrl.CompleteGeneration(ctx, run.ID, delivery.GenerationOutcome{
			Err: fmt.Sprintf("generation timed out after %s", timeout),
		})
		if err != nil {
			log.Printf("watcher: fail stalled run %s: %v", run.ID, err)
			continue
		}
		fmt.Fprintf(out, "Failed stalled run %s\n", run.ID)
	}
	return nil
}

// sendDigest notifies operators with per-status run counts.
func sendDigest(ctx context.Context, db *gorm.DB, notifier *notify.Notifier) error {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	if err := db.Model(&models.DeliveryRun{}).
		Select("status, count(*) as count").
		Group("status").
		Order("status ASC").
		Find(&rows).Error; err != nil {
		return fmt.Errorf("watcher: digest counts: %w", err)
	}

	fields := make([]notify.Field, len(rows))
	for i, r := range rows {
		fields[i] = notify.Field{
			Name:  delivery.Meta(r.Status).Label,
			Value: fmt.Sprintf("%d", r.Count),
			Short: true,
		}
	}

	return notifier.Notify(ctx, notify.Event{
		Kind:     "digest",
		Title:    "Delivery digest",
		Severity: notify.SeverityInfo,
		Fields:   fields,
	})
}
