package dashboard

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/datagoal/datagoal/internal/delivery"
	"github.com/datagoal/datagoal/internal/notify"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, db *gorm.DB, ctrl *delivery.Controller) {
	api := router.Group("/api")

	api.GET("/runs", handleRunList(db))
	api.GET("/runs/:id", handleRunDetail(db))
	api.GET("/summary", handleSummary(db))
	api.GET("/notifications", handleNotifications(db))
	api.POST("/notifications/:id/ack", handleNotificationAck(db))

	api.POST("/runs/:id/validate", handleValidate(ctrl))
	api.POST("/runs/:id/send", handleSend(ctrl))
	api.POST("/runs/:id/retry", handleRetry(ctrl))
	api.POST("/batch/send", handleBatchSend(ctrl))
	api.POST("/batch/retry", handleBatchRetry(ctrl))

	// SSE endpoint.
	api.GET("/events", handleSSE(db))
}

func handleRunList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := RunList(db, delivery.ListFilters{
			Status:    c.Query("status"),
			MeetingID: c.Query("meeting"),
			Client:    c.Query("client"),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": rows})
	}
}

func handleRunDetail(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		detail, err := GetRunDetail(db, c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

func handleSummary(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		clients, err := Summary(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"clients":        clients,
			"pending_review": PendingReviewCount(db),
		})
	}
}

func handleNotifications(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := notify.Unacknowledged(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"notifications": rows})
	}
}

func handleNotificationAck(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
			return
		}
		if err := notify.Acknowledge(db, uint(id)); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"acknowledged": id})
	}
}

func handleValidate(ctrl *delivery.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := ctrl.Validate(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"run_id":      result.Run.ID,
			"status":      result.Run.Status,
			"verdict":     result.Verdict,
			"score":       result.Score,
			"checkpoints": result.Checkpoints,
		})
	}
}

type sendRequest struct {
	Recipients []string `json:"recipients"`
	Approve    bool     `json:"approve"` // required for runs in review_pending
}

func handleSend(ctrl *delivery.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		run, err := ctrl.Send(c.Request.Context(), c.Param("id"), req.Recipients,
			delivery.SendOpts{ApproveDespiteReview: req.Approve})
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"run_id":       run.ID,
			"status":       run.Status,
			"delivered_at": run.DeliveredAt,
		})
	}
}

func handleRetry(ctrl *delivery.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, err := ctrl.Retry(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"run_id": run.ID,
			"status": run.Status,
		})
	}
}

type batchSendRequest struct {
	IDs        []string `json:"ids"`
	Recipients []string `json:"recipients"`
	Approve    bool     `json:"approve"`
}

type batchRetryRequest struct {
	IDs []string `json:"ids"`
}

// batchOutcome is the JSON shape of one per-id batch result.
type batchOutcome struct {
	ID      string `json:"id"`
	Skipped bool   `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

func handleBatchSend(ctrl *delivery.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req batchSendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		results := ctrl.BatchSend(c.Request.Context(), req.IDs, req.Recipients,
			delivery.SendOpts{ApproveDespiteReview: req.Approve})
		c.JSON(http.StatusOK, gin.H{"results": batchOutcomes(results)})
	}
}

func handleBatchRetry(ctrl *delivery.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req batchRetryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		results := ctrl.BatchRetry(c.Request.Context(), req.IDs)
		c.JSON(http.StatusOK, gin.H{"results": batchOutcomes(results)})
	}
}

func batchOutcomes(results []delivery.BatchResult) []batchOutcome {
	out := make([]batchOutcome, len(results))
	for i, r := range results {
		out[i] = batchOutcome{ID: r.ID, Skipped: r.Skipped}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return out
}

// statusFor maps delivery errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, delivery.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, delivery.ErrInvalidStatus),
		errors.Is(err, delivery.ErrReviewApprovalRequired),
		errors.Is(err, delivery.ErrOperationInFlight),
		errors.Is(err, delivery.ErrStatusConflict):
		return http.StatusConflict
	case errors.Is(err, delivery.ErrEmptyContent),
		errors.Is(err, delivery.ErrNoRecipients):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
