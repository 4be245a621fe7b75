package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/datagoal/datagoal/internal/delivery"
	"github.com/datagoal/datagoal/internal/mailer"
	"github.com/datagoal/datagoal/internal/models"
	"github.com/datagoal/datagoal/internal/qa"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testDB creates an in-memory SQLite database with all required tables.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Meeting{},
		&models.DeliveryRun{},
		&models.DeliveryStep{},
		&models.Notification{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

type fakeEvaluator struct {
	checkpoints []qa.Checkpoint
	err         error
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, runID, content string) ([]qa.Checkpoint, error) {
	return f.checkpoints, f.err
}

type fakeMailer struct {
	err error
}

func (f *fakeMailer) Type() string { return "fake" }

func (f *fakeMailer) Deliver(ctx context.Context, msg mailer.Message) error {
	return f.err
}

// newTestRouter builds a router over a seeded database and a controller with
// fake QA and mail backends.
func newTestRouter(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()
	ctrl, err := delivery.NewController(delivery.ControllerOpts{
		DB: db,
		Evaluator: &fakeEvaluator{checkpoints: []qa.Checkpoint{
			{Type: "completeness", Status: "passed", Score: 0.95},
		}},
		Mailer: &fakeMailer{},
	})
	if err != nil {
		t.Fatalf("NewController(): %v", err)
	}
	return newRouter(db, ctrl)
}

func seedMeeting(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Create(&models.Meeting{
		ID:         "mtg-00001",
		ClientName: "Acme Corp",
		Title:      "Sprint review",
	}).Error; err != nil {
		t.Fatalf("seed meeting: %v", err)
	}
}

func seedRun(t *testing.T, db *gorm.DB, id, status, content string) {
	t.Helper()
	if err := db.Create(&models.DeliveryRun{
		ID:            id,
		MeetingID:     "mtg-00001",
		Status:        status,
		OutputContent: content,
	}).Error; err != nil {
		t.Fatalf("seed run %s: %v", id, err)
	}
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStart_Validation(t *testing.T) {
	err := Start(context.Background(), StartOpts{})
	if err == nil || !strings.Contains(err.Error(), "db is required") {
		t.Errorf("Start() without db: %v", err)
	}

	db := testDB(t)
	err = Start(context.Background(), StartOpts{DB: db})
	if err == nil || !strings.Contains(err.Error(), "controller is required") {
		t.Errorf("Start() without controller: %v", err)
	}
}

func TestRunList(t *testing.T) {
	db := testDB(t)
	seedMeeting(t, db)
	seedRun(t, db, "run-00001", delivery.StatusSuccess, "report")
	seedRun(t, db, "run-00002", delivery.StatusFailed, "")
	router := newTestRouter(t, db)

	w := doJSON(router, http.MethodGet, "/api/runs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Runs []RunRow `json:"runs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(resp.Runs))
	}
	for _, r := range resp.Runs {
		if r.Client != "Acme Corp" {
			t.Errorf("run %s client = %q, want Acme Corp", r.ID, r.Client)
		}
		if r.ScoreLabel != "Sin evaluar" {
			t.Errorf("run %s score label = %q, want Sin evaluar", r.ID, r.ScoreLabel)
		}
	}
}

func TestRunList_StatusFilter(t *testing.T) {
	db := testDB(t)
	seedMeeting(t, db)
	seedRun(t, db, "run-00001", delivery.StatusSuccess, "report")
	seedRun(t, db, "run-00002", delivery.StatusFailed, "")
	router := newTestRouter(t, db)

	w := doJSON(router, http.MethodGet, "/api/runs?status=failed", nil)
	var resp struct {
		Runs []RunRow `json:"runs"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Runs) != 1 || resp.Runs[0].ID != "run-00002" {
		t.Errorf("filtered runs = %+v, want only run-00002", resp.Runs)
	}
}

func TestRunDetail(t *testing.T) {
	db := testDB(t)
	seedMeeting(t, db)
	seedRun(t, db, "run-00001", delivery.StatusSuccess, "the report")
	db.Create(&models.DeliveryStep{RunID: "run-00001", Attempt: 1, Name: "generate_report", Status: "success"})
	router := newTestRouter(t, db)

	w := doJSON(router, http.MethodGet, "/api/runs/run-00001", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var detail RunDetail
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.OutputContent != "the report" {
		t.Errorf("content = %q", detail.OutputContent)
	}
	if len(detail.Steps) != 1 || detail.Steps[0].Name != "generate_report" {
		t.Errorf("steps = %+v", detail.Steps)
	}
}

func TestRunDetail_NotFound(t *testing.T) {
	db := testDB(t)
	router := newTestRouter(t, db)

	w := doJSON(router, http.MethodGet, "/api/runs/run-zzzzz", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestSummary(t *testing.T) {
	db := testDB(t)
	seedMeeting(t, db)
	seedRun(t, db, "run-00001", delivery.StatusSuccess, "report")
	seedRun(t, db, "run-00002", delivery.StatusReviewPending, "report")
	seedRun(t, db, "run-00003", delivery.StatusDelivered, "report")
	router := newTestRouter(t, db)

	w := doJSON(router, http.MethodGet, "/api/summary", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Clients       []ClientSummary `json:"clients"`
		PendingReview int64           `json:"pending_review"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Clients) != 1 {
		t.Fatalf("clients = %+v, want 1", resp.Clients)
	}
	cs := resp.Clients[0]
	if cs.Client != "Acme Corp" || cs.Success != 1 || cs.ReviewPending != 1 || cs.Delivered != 1 || cs.Total != 3 {
		t.Errorf("summary = %+v", cs)
	}
	if resp.PendingReview != 1 {
		t.Errorf("pending_review = %d, want 1", resp.PendingReview)
	}
}

func TestValidateEndpoint(t *testing.T) {
	db := testDB(t)
	seedMeeting(t, db)
	seedRun(t, db, "run-00001", delivery.StatusSuccess, "report")
	router := newTestRouter(t, db)

	w := doJSON(router, http.MethodPost, "/api/runs/run-00001/validate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Verdict string  `json:"verdict"`
		Score   float64 `json:"score"`
		Status  string  `json:"status"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Verdict != string(qa.VerdictReadyToSend) {
		t.Errorf("verdict = %q, want READY_TO_SEND", resp.Verdict)
	}
	if resp.Status != delivery.StatusSuccess {
		t.Errorf("status = %q, want success", resp.Status)
	}
}

func TestValidateEndpoint_WrongStatus(t *testing.T) {
	db := testDB(t)
	seedMeeting(t, db)
	seedRun(t, db, "run-00001", delivery.StatusRunning, "")
	router := newTestRouter(t, db)

	w := doJSON(router, http.MethodPost, "/api/runs/run-00001/validate", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestSendEndpoint(t *testing.T) {
	db := testDB(t)
	seedMeeting(t, db)
	seedRun(t, db, "run-00001", delivery.StatusSuccess, "report")
	router := newTestRouter(t, db)

	w := doJSON(router, http.MethodPost, "/api/runs/run-00001/send",
		sendRequest{Recipients: []string{"client@acme.test"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Status string `json:"status"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != delivery.StatusDelivered {
		t.Errorf("status = %q, want delivered", resp.Status)
	}
}

func TestSendEndpoint_ReviewWithoutApproval(t *testing.T) {
	db := testDB(t)
	seedMeeting(t, db)
	seedRun(t, db, "run-00001", delivery.StatusReviewPending, "report")
	router := newTestRouter(t, db)

	w := doJSON(router, http.MethodPost, "/api/runs/run-00001/send",
		sendRequest{Recipients: []string{"client@acme.test"}})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}

	// With approval it goes through.
	w = doJSON(router, http.MethodPost, "/api/runs/run-00001/send",
		sendRequest{Recipients: []string{"client@acme.test"}, Approve: true})
	if w.Code != http.StatusOK {
		t.Errorf("approved send status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestSendEndpoint_NoRecipients(t *testing.T) {
	db := testDB(t)
	seedMeeting(t, db)
	seedRun(t, db, "run-00001", delivery.StatusSuccess, "report")
	router := newTestRouter(t, db)

	w := doJSON(router, http.MethodPost, "/api/runs/run-00001/send", sendRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestBatchSendEndpoint(t *testing.T) {
	db := testDB(t)
	seedMeeting(t, db)
	seedRun(t, db, "run-00001", delivery.StatusSuccess, "report")
	seedRun(t, db, "run-00002", delivery.StatusRunning, "")
	router := newTestRouter(t, db)

	w := doJSON(router, http.MethodPost, "/api/batch/send", batchSendRequest{
		IDs:        []string{"run-00001", "run-00002"},
		Recipients: []string{"client@acme.test"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Results []batchOutcome `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %+v", resp.Results)
	}
	if resp.Results[0].Skipped || resp.Results[0].Error != "" {
		t.Errorf("eligible run result = %+v", resp.Results[0])
	}
	if !resp.Results[1].Skipped {
		t.Errorf("running run should be skipped, got %+v", resp.Results[1])
	}
}

func TestBatchRetryEndpoint(t *testing.T) {
	db := testDB(t)
	seedMeeting(t, db)
	seedRun(t, db, "run-00001", delivery.StatusFailed, "")
	router := newTestRouter(t, db)

	// Controller has no generator configured, so retry errors per-id without
	// failing the batch request itself.
	w := doJSON(router, http.MethodPost, "/api/batch/retry",
		batchRetryRequest{IDs: []string{"run-00001"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestNotificationsEndpoint(t *testing.T) {
	db := testDB(t)
	db.Create(&models.Notification{RunID: "run-00001", Kind: "failed", Subject: "Run failed", Severity: "error"})
	router := newTestRouter(t, db)

	w := doJSON(router, http.MethodGet, "/api/notifications", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Notifications []models.Notification `json:"notifications"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Notifications) != 1 {
		t.Fatalf("notifications = %+v", resp.Notifications)
	}
	id := resp.Notifications[0].ID

	// Acknowledge it.
	w = doJSON(router, http.MethodPost, fmt.Sprintf("/api/notifications/%d/ack", id), nil)
	if w.Code != http.StatusOK {
		t.Errorf("ack status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(router, http.MethodGet, "/api/notifications", nil)
	resp.Notifications = nil
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Notifications) != 0 {
		t.Errorf("after ack: %+v", resp.Notifications)
	}
}

func TestAckEndpoint_BadID(t *testing.T) {
	db := testDB(t)
	router := newTestRouter(t, db)

	w := doJSON(router, http.MethodPost, "/api/notifications/abc/ack", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSSE_ConnectedEvent(t *testing.T) {
	// A nil DB makes the handler return right after the connected event,
	// which is all we can exercise without a long-lived connection.
	router := gin.New()
	router.GET("/api/events", handleSSE(nil))

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("content-type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "event: connected") {
		t.Errorf("body = %q, want connected event", w.Body.String())
	}
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	writeSSE(&buf, "alert", map[string]string{"kind": "failed"})
	got := buf.String()
	if !strings.HasPrefix(got, "event: alert\n") {
		t.Errorf("output = %q", got)
	}
	if !strings.Contains(got, `"kind":"failed"`) || !strings.HasSuffix(got, "\n\n") {
		t.Errorf("output = %q", got)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{delivery.ErrNotFound, http.StatusNotFound},
		{delivery.ErrInvalidStatus, http.StatusConflict},
		{delivery.ErrReviewApprovalRequired, http.StatusConflict},
		{delivery.ErrOperationInFlight, http.StatusConflict},
		{delivery.ErrStatusConflict, http.StatusConflict},
		{delivery.ErrEmptyContent, http.StatusBadRequest},
		{delivery.ErrNoRecipients, http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
