package alert

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the alerts table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			alert_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			sensor_type TEXT,
			sensor_value REAL,
			threshold_value REAL,
			device_id TEXT,
			resolved INTEGER NOT NULL DEFAULT 0,
			resolved_at TEXT,
			resolved_by TEXT
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	return db
}

func testAlert() *Alert {
	value := 31.5
	bound := 30.0
	return &Alert{
		Type:           "HIGH_TEMPERATURE",
		Severity:       SeverityWarning,
		Title:          "High Temperature",
		Message:        "Temperature 31.5 exceeds threshold of 30",
		SensorType:     "temperature",
		SensorValue:    &value,
		ThresholdValue: &bound,
		DeviceID:       "rpi-001",
	}
}

func TestInsertAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	a := testAlert()
	if err := repo.Insert(ctx, a); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if a.ID == 0 {
		t.Fatal("Insert did not assign an ID")
	}
	if a.Timestamp.IsZero() {
		t.Fatal("Insert did not stamp a timestamp")
	}

	got, err := repo.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Type != "HIGH_TEMPERATURE" || got.Severity != SeverityWarning {
		t.Errorf("got %+v, want HIGH_TEMPERATURE/warning", got)
	}
	if got.SensorValue == nil || *got.SensorValue != 31.5 {
		t.Errorf("sensor value = %v, want 31.5", got.SensorValue)
	}
	if got.DeviceID != "rpi-001" {
		t.Errorf("device id = %q, want rpi-001", got.DeviceID)
	}
	if got.Resolved {
		t.Error("new alert marked resolved")
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	_, err := repo.Get(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestList_FilterAndOrder(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		a := testAlert()
		a.Timestamp = base.Add(time.Duration(i) * time.Minute)
		if err := repo.Insert(ctx, a); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	all, err := repo.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if !all[0].Timestamp.After(all[1].Timestamp) {
		t.Error("not ordered newest first")
	}

	// Resolve one, filter by resolution.
	if _, err := repo.Resolve(ctx, all[0].ID, "tester"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	unresolved := false
	open, err := repo.List(ctx, ListFilter{Resolved: &unresolved})
	if err != nil {
		t.Fatalf("List unresolved: %v", err)
	}
	if len(open) != 2 {
		t.Errorf("unresolved = %d, want 2", len(open))
	}

	resolved := true
	closed, err := repo.List(ctx, ListFilter{Resolved: &resolved})
	if err != nil {
		t.Fatalf("List resolved: %v", err)
	}
	if len(closed) != 1 {
		t.Errorf("resolved = %d, want 1", len(closed))
	}
}

func TestList_Limit(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := repo.Insert(ctx, testAlert()); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := repo.List(ctx, ListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestResolve(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	a := testAlert()
	if err := repo.Insert(ctx, a); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := repo.Resolve(ctx, a.ID, "alice")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !got.Resolved {
		t.Error("not marked resolved")
	}
	if got.ResolvedBy != "alice" {
		t.Errorf("resolved_by = %q, want alice", got.ResolvedBy)
	}
	if got.ResolvedAt == nil {
		t.Error("resolved_at missing")
	}
}

func TestResolve_AlreadyResolved(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	a := testAlert()
	if err := repo.Insert(ctx, a); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := repo.Resolve(ctx, a.ID, "alice"); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}

	_, err := repo.Resolve(ctx, a.ID, "bob")
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("error = %v, want ErrAlreadyResolved", err)
	}

	// The original resolver's audit fields survive.
	got, err := repo.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ResolvedBy != "alice" {
		t.Errorf("resolved_by = %q, want alice", got.ResolvedBy)
	}
}

func TestCounts(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	c, err := repo.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts on empty table: %v", err)
	}
	if c.Total != 0 || c.Unresolved != 0 {
		t.Errorf("counts = %+v, want zero", c)
	}

	var ids []int64
	for i := 0; i < 3; i++ {
		a := testAlert()
		if err := repo.Insert(ctx, a); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		ids = append(ids, a.ID)
	}
	if _, err := repo.Resolve(ctx, ids[0], "alice"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	c, err = repo.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if c.Total != 3 || c.Unresolved != 2 {
		t.Errorf("counts = %+v, want total 3 unresolved 2", c)
	}
}

func TestResolve_NotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	_, err := repo.Resolve(context.Background(), 42, "alice")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
