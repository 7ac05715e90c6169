package quiz_test

import (
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/dsc-prep/internal/platform/database"
	"github.com/p-n-ai/dsc-prep/internal/quiz"
	"github.com/p-n-ai/dsc-prep/internal/syllabus"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := t.Context()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("dsc"),
		postgres.WithUsername("dsc"),
		postgres.WithPassword("dsc"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("ConnectionString() error = %v", err)
	}
	db, err := database.New(ctx, url, 4, 1)
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// Migrations are re-runnable.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	return db
}

func TestPostgresStores(t *testing.T) {
	db := newTestDB(t)
	ctx := t.Context()

	store, err := quiz.NewPostgresResultStore(db.Pool)
	if err != nil {
		t.Fatal(err)
	}

	finished := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, subject := range []string{"Mathematics", ""} {
		err := store.SaveResult(ctx, quiz.Result{
			SessionID:  "s-1",
			ClientID:   "client-1",
			Mode:       quiz.ModePractice,
			Post:       syllabus.SGT,
			Subject:    subject,
			Language:   quiz.English,
			Difficulty: quiz.Medium,
			Total:      10,
			Score:      6 + i,
			StartedAt:  finished.Add(-10 * time.Minute),
			FinishedAt: finished.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("SaveResult() error = %v", err)
		}
	}

	got, err := store.ListResults(ctx, "client-1", 10)
	if err != nil {
		t.Fatalf("ListResults() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListResults() = %d rows, want 2", len(got))
	}
	if got[0].Score != 7 || got[0].Subject != "" || got[1].Subject != "Mathematics" {
		t.Errorf("rows = %+v", got)
	}

	logger := quiz.NewPostgresEventLogger(db.Pool)
	if err := logger.LogEvent(quiz.Event{
		SessionID: "s-1",
		ClientID:  "client-1",
		EventType: quiz.EventQuizCompleted,
		Data:      map[string]any{"score": 7},
	}); err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	var n int
	if err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM quiz_events WHERE event_type = $1`, quiz.EventQuizCompleted).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("quiz_events rows = %d, want 1", n)
	}
}
