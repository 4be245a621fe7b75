package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/datagoal/datagoal/internal/mailer"
	"github.com/datagoal/datagoal/internal/models"
	"github.com/datagoal/datagoal/internal/qa"
	"gorm.io/gorm"
)

// Sentinel errors for precondition violations. Callers disable affordances
// based on StatusMeta; these are the backstop for anything that slips through.
var (
	ErrInvalidStatus          = errors.New("delivery: operation not legal for current status")
	ErrEmptyContent           = errors.New("delivery: run has no output content")
	ErrNoRecipients           = errors.New("delivery: at least one recipient is required")
	ErrReviewApprovalRequired = errors.New("delivery: run is pending review; sending requires explicit approval")
	ErrOperationInFlight      = errors.New("delivery: another operation is in flight for this run")
	ErrStatusConflict         = errors.New("delivery: run status changed concurrently, re-fetch and retry")
	ErrNotFound               = errors.New("delivery: run not found")
)

// Generator requests report regeneration from the external orchestration
// pipeline. The pipeline reports its terminal outcome back through
// Controller.CompleteGeneration.
type Generator interface {
	StartGeneration(ctx context.Context, run *models.DeliveryRun) error
}

// Controller drives DeliveryRun state changes. It holds a per-run in-flight
// guard so concurrent operations on the same run are rejected rather than
// racing, and it never advances status locally without a confirmed database
// mutation.
type Controller struct {
	db         *gorm.DB
	evaluator  qa.Evaluator
	mailer     mailer.Provider
	generator  Generator
	thresholds qa.Thresholds

	mu       sync.Mutex
	inflight map[string]struct{}
}

// ControllerOpts holds dependencies for a Controller.
type ControllerOpts struct {
	DB         *gorm.DB
	Evaluator  qa.Evaluator
	Mailer     mailer.Provider
	Generator  Generator
	Thresholds qa.Thresholds // zero value falls back to qa.DefaultThresholds
}

// NewController creates a Controller.
func NewController(opts ControllerOpts) (*Controller, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("delivery: db is required")
	}
	th := opts.Thresholds
	if th.Ready == 0 && th.Review == 0 {
		th = qa.DefaultThresholds
	}
	return &Controller{
		db:         opts.DB,
		evaluator:  opts.Evaluator,
		mailer:     opts.Mailer,
		generator:  opts.Generator,
		thresholds: th,
		inflight:   make(map[string]struct{}),
	}, nil
}

// acquire marks a run as having an operation in flight.
func (c *Controller) acquire(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[id]; busy {
		return fmt.Errorf("%w: %s", ErrOperationInFlight, id)
	}
	c.inflight[id] = struct{}{}
	return nil
}

// release clears the in-flight mark for a run.
func (c *Controller) release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, id)
}

// transition moves a run from one status to another, applying extra column
// updates atomically. The WHERE clause pins the expected current status, so a
// concurrent writer surfaces as ErrStatusConflict instead of a silent
// double-transition.
func (c *Controller) transition(id, from, to string, updates map[string]interface{}) error {
	if !IsValidTransition(from, to) {
		return fmt.Errorf("%w: %s cannot move from %q to %q (valid: %v)",
			ErrInvalidStatus, id, from, to, ValidTransitions[from])
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to

	res := c.db.Model(&models.DeliveryRun{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("delivery: transition %s %s->%s: %w", id, from, to, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s expected status %q", ErrStatusConflict, id, from)
	}
	return nil
}

// ValidationResult is the outcome of a Validate call.
type ValidationResult struct {
	Run         *models.DeliveryRun
	Checkpoints []qa.Checkpoint
	Verdict     qa.Verdict
	Score       float64
}

// Validate runs QA evaluation for a run in status success. The aggregate
// score is persisted; a READY_TO_SEND verdict leaves the run in success so it
// stays directly sendable, any other verdict routes it to review_pending for
// a human decision. Evaluator failures mutate nothing.
func (c *Controller) Validate(ctx context.Context, id string) (*ValidationResult, error) {
	if c.evaluator == nil {
		return nil, fmt.Errorf("delivery: no evaluator configured")
	}
	if err := c.acquire(id); err != nil {
		return nil, err
	}
	defer c.release(id)

	run, err := Get(c.db, id)
	if err != nil {
		return nil, err
	}
	if run.Status != StatusSuccess {
		return nil, fmt.Errorf("%w: validate requires status %q, run %s is %q",
			ErrInvalidStatus, StatusSuccess, id, run.Status)
	}

	checkpoints, err := c.evaluator.Evaluate(ctx, run.ID, run.OutputContent)
	if err != nil {
		return nil, fmt.Errorf("delivery: evaluate %s: %w", id, err)
	}

	verdict, score, err := qa.Aggregate(checkpoints, c.thresholds)
	if err != nil {
		// Out-of-range scores are a data-integrity problem on the evaluator
		// side; flag them loudly and leave the run untouched.
		log.Printf("delivery: QA data integrity error for %s: %v", id, err)
		return nil, fmt.Errorf("delivery: aggregate %s: %w", id, err)
	}

	if verdict == qa.VerdictReadyToSend {
		if err := c.db.Model(&models.DeliveryRun{}).Where("id = ?", id).
			Update("quality_score", score).Error; err != nil {
			return nil, fmt.Errorf("delivery: persist score for %s: %w", id, err)
		}
	} else {
		if err := c.transition(id, StatusSuccess, StatusReviewPending, map[string]interface{}{
			"quality_score": score,
		}); err != nil {
			return nil, err
		}
	}

	fresh, err := Get(c.db, id)
	if err != nil {
		return nil, err
	}
	return &ValidationResult{Run: fresh, Checkpoints: checkpoints, Verdict: verdict, Score: score}, nil
}

// SendOpts holds options for Send.
type SendOpts struct {
	// ApproveDespiteReview must be set to send a run that is in
	// review_pending. Without it such a send is rejected.
	ApproveDespiteReview bool
}

// Send dispatches a run's report to the given recipients and marks it
// delivered on acknowledgement. A mailer failure leaves the status unchanged:
// failed is reserved for generation failures, not transport ones.
func (c *Controller) Send(ctx context.Context, id string, recipients []string, opts SendOpts) (*models.DeliveryRun, error) {
	if err := c.acquire(id); err != nil {
		return nil, err
	}
	defer c.release(id)
	return c.sendLocked(ctx, id, recipients, opts)
}

// sendLocked performs the send preconditions and dispatch. The caller must
// hold the in-flight guard for id.
func (c *Controller) sendLocked(ctx context.Context, id string, recipients []string, opts SendOpts) (*models.DeliveryRun, error) {
	if c.mailer == nil {
		return nil, fmt.Errorf("delivery: no mailer configured")
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: run %s", ErrNoRecipients, id)
	}

	run, err := Get(c.db, id)
	if err != nil {
		return nil, err
	}

	switch run.Status {
	case StatusSuccess:
	case StatusReviewPending:
		if !opts.ApproveDespiteReview {
			return nil, fmt.Errorf("%w: run %s", ErrReviewApprovalRequired, id)
		}
	default:
		return nil, fmt.Errorf("%w: send requires status %q or %q, run %s is %q",
			ErrInvalidStatus, StatusSuccess, StatusReviewPending, id, run.Status)
	}
	if run.OutputContent == "" {
		return nil, fmt.Errorf("%w: run %s", ErrEmptyContent, id)
	}

	subject := fmt.Sprintf("Data Goal report %s", run.ID)
	if run.Meeting != nil && run.Meeting.Title != "" {
		subject = run.Meeting.Title
	}
	if err := c.mailer.Deliver(ctx, mailer.Message{
		To:      recipients,
		Subject: subject,
		Body:    run.OutputContent,
	}); err != nil {
		return nil, fmt.Errorf("delivery: send %s: %w", id, err)
	}

	recipientsJSON, err := json.Marshal(recipients)
	if err != nil {
		return nil, fmt.Errorf("delivery: marshal recipients for %s: %w", id, err)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"recipients":   string(recipientsJSON),
		"delivered_at": now,
	}
	if run.TotalTimeMs == nil {
		updates["total_time_ms"] = now.Sub(run.CreatedAt).Milliseconds()
	}
	if err := c.transition(id, run.Status, StatusDelivered, updates); err != nil {
		return nil, err
	}

	return Get(c.db, id)
}

// Retry requests regeneration for a failed run. Step history is preserved: a
// new step row is appended under the next attempt number and the run returns
// to running. A generator failure mutates nothing.
func (c *Controller) Retry(ctx context.Context, id string) (*models.DeliveryRun, error) {
	if err := c.acquire(id); err != nil {
		return nil, err
	}
	defer c.release(id)
	return c.retryLocked(ctx, id)
}

// retryLocked performs the retry preconditions and dispatch. The caller must
// hold the in-flight guard for id.
func (c *Controller) retryLocked(ctx context.Context, id string) (*models.DeliveryRun, error) {
	if c.generator == nil {
		return nil, fmt.Errorf("delivery: no generator configured")
	}
	run, err := Get(c.db, id)
	if err != nil {
		return nil, err
	}
	if run.Status != StatusFailed {
		return nil, fmt.Errorf("%w: retry requires status %q, run %s is %q",
			ErrInvalidStatus, StatusFailed, id, run.Status)
	}

	if err := c.generator.StartGeneration(ctx, run); err != nil {
		return nil, fmt.Errorf("delivery: start regeneration for %s: %w", id, err)
	}

	attempt := 1
	for _, s := range run.Steps {
		if s.Attempt >= attempt {
			attempt = s.Attempt + 1
		}
	}

	err = c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.DeliveryStep{
			RunID:   id,
			Attempt: attempt,
			Name:    "generate_report",
			Status:  "running",
		}).Error; err != nil {
			return fmt.Errorf("delivery: append retry step for %s: %w", id, err)
		}
		res := tx.Model(&models.DeliveryRun{}).
			Where("id = ? AND status = ?", id, StatusFailed).
			Updates(map[string]interface{}{
				"status":        StatusRunning,
				"error_message": "",
			})
		if res.Error != nil {
			return fmt.Errorf("delivery: transition %s failed->running: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s expected status %q", ErrStatusConflict, id, StatusFailed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return Get(c.db, id)
}

// GenerationOutcome is what the external pipeline reports when a generation
// attempt terminates.
type GenerationOutcome struct {
	Content string // non-empty on success
	Err     string // non-empty on failure
}

// CompleteGeneration records a terminal generation outcome for a run in
// status running: success with the generated content, or failed with the
// pipeline error. The latest running step is closed accordingly.
func (c *Controller) CompleteGeneration(ctx context.Context, id string, outcome GenerationOutcome) (*models.DeliveryRun, error) {
	if err := c.acquire(id); err != nil {
		return nil, err
	}
	defer c.release(id)

	run, err := Get(c.db, id)
	if err != nil {
		return nil, err
	}
	if run.Status != StatusRunning {
		return nil, fmt.Errorf("%w: completion requires status %q, run %s is %q",
			ErrInvalidStatus, StatusRunning, id, run.Status)
	}

	succeeded := outcome.Err == ""
	if succeeded && outcome.Content == "" {
		return nil, fmt.Errorf("%w: run %s reported success without content", ErrEmptyContent, id)
	}

	err = c.db.Transaction(func(tx *gorm.DB) error {
		// Close the latest running step.
		stepStatus := "success"
		if !succeeded {
			stepStatus = "failed"
		}
		if err := tx.Model(&models.DeliveryStep{}).
			Where("run_id = ? AND status = ?", id, "running").
			Updates(map[string]interface{}{"status": stepStatus, "error": outcome.Err}).Error; err != nil {
			return fmt.Errorf("delivery: close step for %s: %w", id, err)
		}

		updates := map[string]interface{}{
			"total_time_ms": time.Since(run.CreatedAt).Milliseconds(),
		}
		to := StatusSuccess
		if succeeded {
			updates["output_content"] = outcome.Content
		} else {
			to = StatusFailed
			updates["error_message"] = outcome.Err
		}
		updates["status"] = to

		res := tx.Model(&models.DeliveryRun{}).
			Where("id = ? AND status = ?", id, StatusRunning).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("delivery: transition %s running->%s: %w", id, to, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s expected status %q", ErrStatusConflict, id, StatusRunning)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return Get(c.db, id)
}
