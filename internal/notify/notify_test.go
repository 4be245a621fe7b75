package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/datagoal/datagoal/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testDB creates an in-memory SQLite database with the notifications table.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Notification{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// mockAdapter is a test double for Adapter.
type mockAdapter struct {
	connectErr error
	sendErr    error
	connected  bool
	closed     bool
	sent       []Event
}

func (m *mockAdapter) Connect(ctx context.Context) error {
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *mockAdapter) Send(ctx context.Context, evt Event) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, evt)
	return nil
}

func (m *mockAdapter) Close() error {
	m.closed = true
	return nil
}

func TestConnectAndClose_FanOut(t *testing.T) {
	a1 := &mockAdapter{}
	a2 := &mockAdapter{}
	n := NewNotifier(nil, a1, a2)

	if err := n.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if !a1.connected || !a2.connected {
		t.Errorf("connected = %v/%v, want both true", a1.connected, a2.connected)
	}

	if err := n.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !a1.closed || !a2.closed {
		t.Errorf("closed = %v/%v, want both true", a1.closed, a2.closed)
	}
}

func TestConnect_FailureAborts(t *testing.T) {
	bad := &mockAdapter{connectErr: errors.New("auth test failed")}
	n := NewNotifier(nil, bad)

	if err := n.Connect(context.Background()); err == nil {
		t.Fatal("Connect() with a failing adapter should error")
	}
}

func TestNotify_FansOutAndRecords(t *testing.T) {
	db := testDB(t)
	a1 := &mockAdapter{}
	a2 := &mockAdapter{}
	n := NewNotifier(db, a1, a2)

	err := n.Notify(context.Background(), Event{
		RunID:    "run-a1b2c",
		Kind:     "failed",
		Title:    "Run run-a1b2c failed",
		Body:     "transcript fetch timed out",
		Severity: SeverityError,
	})
	if err != nil {
		t.Fatalf("Notify() error: %v", err)
	}

	if len(a1.sent) != 1 || len(a2.sent) != 1 {
		t.Errorf("fan-out = %d/%d adapters, want 1/1", len(a1.sent), len(a2.sent))
	}

	var rows []models.Notification
	db.Find(&rows)
	if len(rows) != 1 {
		t.Fatalf("recorded %d notifications, want 1", len(rows))
	}
	if rows[0].Kind != "failed" || rows[0].RunID != "run-a1b2c" {
		t.Errorf("recorded row = %+v", rows[0])
	}
}

func TestNotify_AdapterFailureIsBestEffort(t *testing.T) {
	db := testDB(t)
	bad := &mockAdapter{sendErr: errors.New("channel gone")}
	good := &mockAdapter{}
	n := NewNotifier(db, bad, good)

	if err := n.Notify(context.Background(), Event{Kind: "delivered", Title: "x"}); err != nil {
		t.Fatalf("Notify() error: %v (adapter failures must not propagate)", err)
	}
	if len(good.sent) != 1 {
		t.Errorf("healthy adapter got %d events, want 1", len(good.sent))
	}
}

func TestNotify_DefaultSeverity(t *testing.T) {
	a := &mockAdapter{}
	n := NewNotifier(nil, a)
	if err := n.Notify(context.Background(), Event{Kind: "digest", Title: "x"}); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if a.sent[0].Severity != SeverityInfo {
		t.Errorf("severity = %q, want info default", a.sent[0].Severity)
	}
}

func TestUnacknowledgedAndAcknowledge(t *testing.T) {
	db := testDB(t)
	n := NewNotifier(db)
	n.Notify(context.Background(), Event{Kind: "failed", Title: "a"})
	n.Notify(context.Background(), Event{Kind: "review_pending", Title: "b"})

	rows, err := Unacknowledged(db)
	if err != nil {
		t.Fatalf("Unacknowledged() error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("unacknowledged = %d, want 2", len(rows))
	}

	if err := Acknowledge(db, rows[0].ID); err != nil {
		t.Fatalf("Acknowledge() error: %v", err)
	}
	rows, _ = Unacknowledged(db)
	if len(rows) != 1 {
		t.Errorf("unacknowledged after ack = %d, want 1", len(rows))
	}
}

func TestAcknowledge_NotFound(t *testing.T) {
	db := testDB(t)
	if err := Acknowledge(db, 999); err == nil {
		t.Fatal("Acknowledge() of missing row should error")
	}
}

func TestSeverityColor(t *testing.T) {
	tests := []struct {
		severity string
		want     string
	}{
		{SeveritySuccess, "#36a64f"},
		{SeverityWarning, "#f2c744"},
		{SeverityError, "#d62828"},
		{SeverityInfo, "#2d9cdb"},
		{"unknown", "#2d9cdb"},
	}
	for _, tt := range tests {
		if got := SeverityColor(tt.severity); got != tt.want {
			t.Errorf("SeverityColor(%q) = %q, want %q", tt.severity, got, tt.want)
		}
	}
}
