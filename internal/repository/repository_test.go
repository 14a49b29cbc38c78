package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/database"
	"github.com/stemsi/exstem-client/internal/model"
)

const testMaxRetries = 3

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	cfg := &config.Config{SQLitePath: filepath.Join(t.TempDir(), "store.db")}
	db, err := database.NewSQLiteDB(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.MigrateUp(db, zerolog.Nop()); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func TestSubmissionCreatePreservesSubmittedAt(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubmissionRepository(db, testMaxRetries)
	ctx := context.Background()

	submittedAt := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	id, err := repo.Create(ctx, &model.OfflineSubmission{
		AssessmentID:     42,
		UserEmail:        "siswa@example.sch.id",
		FileURI:          "/spool/abc.pdf",
		OriginalFilename: "hw.pdf",
		SubmittedAt:      submittedAt,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatal("create returned empty id")
	}

	subs, err := repo.ListUnsynced(ctx, "siswa@example.sch.id")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("got %d submissions, want 1", len(subs))
	}
	if !subs[0].SubmittedAt.Equal(submittedAt) {
		t.Errorf("submitted_at changed in storage: got %v, want %v", subs[0].SubmittedAt, submittedAt)
	}
	if subs[0].Synced {
		t.Error("new submission must not be marked synced")
	}
	if subs[0].OriginalFilename != "hw.pdf" {
		t.Errorf("original filename: got %q, want %q", subs[0].OriginalFilename, "hw.pdf")
	}
}

func TestSubmissionMarkSyncedIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubmissionRepository(db, testMaxRetries)
	ctx := context.Background()

	id, err := repo.Create(ctx, &model.OfflineSubmission{
		AssessmentID: 7,
		UserEmail:    "siswa@example.sch.id",
		FileURI:      "/spool/x.pdf",
		SubmittedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Marking twice must behave exactly like marking once.
	for i := 0; i < 2; i++ {
		if err := repo.MarkSynced(ctx, id); err != nil {
			t.Fatalf("mark synced (pass %d): %v", i+1, err)
		}
	}

	subs, err := repo.ListUnsynced(ctx, "siswa@example.sch.id")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("synced submission still listed: %d rows", len(subs))
	}
}

func TestSubmissionRetryCeilingExcludesFromQueue(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubmissionRepository(db, testMaxRetries)
	ctx := context.Background()

	id, err := repo.Create(ctx, &model.OfflineSubmission{
		AssessmentID: 9,
		UserEmail:    "siswa@example.sch.id",
		FileURI:      "/spool/y.pdf",
		SubmittedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < testMaxRetries; i++ {
		if err := repo.IncrementRetry(ctx, id); err != nil {
			t.Fatalf("increment retry: %v", err)
		}
	}

	subs, err := repo.ListUnsynced(ctx, "siswa@example.sch.id")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("stalled submission still in queue: %d rows", len(subs))
	}

	pending, stalled, err := repo.CountPending(ctx, "siswa@example.sch.id")
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pending != 0 || stalled != 1 {
		t.Errorf("counts: got pending=%d stalled=%d, want pending=0 stalled=1", pending, stalled)
	}
}

func TestSubmissionListOrderIsStable(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubmissionRepository(db, testMaxRetries)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		_, err := repo.Create(ctx, &model.OfflineSubmission{
			ID:           id,
			AssessmentID: int64(i + 1),
			UserEmail:    "siswa@example.sch.id",
			FileURI:      "/spool/" + id,
			SubmittedAt:  base,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	subs, err := repo.ListUnsynced(ctx, "siswa@example.sch.id")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"c", "a", "b"} // created_at order wins over id
	for i, sub := range subs {
		if sub.ID != want[i] {
			t.Fatalf("order[%d]: got %q, want %q", i, sub.ID, want[i])
		}
	}
}

func TestQuizAttemptLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewQuizAttemptRepository(db, testMaxRetries)
	ctx := context.Background()

	start := time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)
	if err := repo.Start(ctx, 5, "siswa@example.sch.id", start, 60); err != nil {
		t.Fatalf("start: %v", err)
	}

	err := repo.SaveAnswer(ctx, 5, "siswa@example.sch.id", "101", model.AnswerRecord{
		Type:        "multiple_choice",
		Answer:      []any{float64(3)},
		IsCorrect:   true,
		ScoreEarned: 10,
	})
	if err != nil {
		t.Fatalf("save answer: %v", err)
	}

	// Saving the same question again replaces, not appends.
	err = repo.SaveAnswer(ctx, 5, "siswa@example.sch.id", "101", model.AnswerRecord{
		Type:   "multiple_choice",
		Answer: []any{float64(4)},
	})
	if err != nil {
		t.Fatalf("re-save answer: %v", err)
	}

	att, err := repo.Get(ctx, 5, "siswa@example.sch.id")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(att.Answers) != 1 {
		t.Fatalf("got %d answers, want 1", len(att.Answers))
	}
	if att.Status != model.QuizStatusInProgress {
		t.Errorf("status: got %q, want %q", att.Status, model.QuizStatusInProgress)
	}

	end := start.Add(45 * time.Minute)
	if err := repo.Complete(ctx, 5, "siswa@example.sch.id", end); err != nil {
		t.Fatalf("complete: %v", err)
	}

	att, err = repo.Get(ctx, 5, "siswa@example.sch.id")
	if err != nil {
		t.Fatalf("get after complete: %v", err)
	}
	if att.Status != model.QuizStatusCompleted {
		t.Errorf("status after complete: got %q, want %q", att.Status, model.QuizStatusCompleted)
	}
	if att.EndTime == nil || !att.EndTime.Equal(end) {
		t.Errorf("end_time: got %v, want %v", att.EndTime, end)
	}
}

func TestQuizAttemptInProgressNeverListed(t *testing.T) {
	db := newTestDB(t)
	repo := NewQuizAttemptRepository(db, testMaxRetries)
	ctx := context.Background()

	start := time.Now().UTC()
	if err := repo.Start(ctx, 11, "siswa@example.sch.id", start, 30); err != nil {
		t.Fatalf("start: %v", err)
	}

	attempts, err := repo.ListUnsynced(ctx, "siswa@example.sch.id")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(attempts) != 0 {
		t.Fatalf("in-progress attempt leaked into sync queue: %d rows", len(attempts))
	}

	// Even a bogus synced=0 flag cannot make an in-progress row eligible;
	// only completion does.
	if err := repo.Complete(ctx, 11, "siswa@example.sch.id", start.Add(time.Minute)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	attempts, err = repo.ListUnsynced(ctx, "siswa@example.sch.id")
	if err != nil {
		t.Fatalf("list after complete: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("completed attempt missing from queue: %d rows", len(attempts))
	}
}

func TestQuizAttemptCompleteRequiresActive(t *testing.T) {
	db := newTestDB(t)
	repo := NewQuizAttemptRepository(db, testMaxRetries)
	ctx := context.Background()

	err := repo.Complete(ctx, 99, "siswa@example.sch.id", time.Now())
	if !errors.Is(err, ErrNoActiveAttempt) {
		t.Fatalf("complete without attempt: got %v, want ErrNoActiveAttempt", err)
	}

	err = repo.SaveAnswer(ctx, 99, "siswa@example.sch.id", "1", model.AnswerRecord{})
	if !errors.Is(err, ErrNoActiveAttempt) {
		t.Fatalf("save answer without attempt: got %v, want ErrNoActiveAttempt", err)
	}

	// Completing twice: the second call finds no in-progress row.
	if err := repo.Start(ctx, 99, "siswa@example.sch.id", time.Now(), 10); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := repo.Complete(ctx, 99, "siswa@example.sch.id", time.Now()); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	err = repo.Complete(ctx, 99, "siswa@example.sch.id", time.Now())
	if !errors.Is(err, ErrNoActiveAttempt) {
		t.Fatalf("second complete: got %v, want ErrNoActiveAttempt", err)
	}
}

func TestQuizAttemptRestartResets(t *testing.T) {
	db := newTestDB(t)
	repo := NewQuizAttemptRepository(db, testMaxRetries)
	ctx := context.Background()

	start := time.Date(2025, 4, 1, 7, 0, 0, 0, time.UTC)
	if err := repo.Start(ctx, 3, "siswa@example.sch.id", start, 20); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := repo.SaveAnswer(ctx, 3, "siswa@example.sch.id", "1", model.AnswerRecord{Type: "essay", SubmittedAnswer: "x"}); err != nil {
		t.Fatalf("save answer: %v", err)
	}
	if err := repo.Complete(ctx, 3, "siswa@example.sch.id", start.Add(time.Minute)); err != nil {
		t.Fatalf("complete: %v", err)
	}

	restart := start.Add(time.Hour)
	if err := repo.Start(ctx, 3, "siswa@example.sch.id", restart, 40); err != nil {
		t.Fatalf("restart: %v", err)
	}

	att, err := repo.Get(ctx, 3, "siswa@example.sch.id")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if att.Status != model.QuizStatusInProgress {
		t.Errorf("status: got %q, want in_progress", att.Status)
	}
	if len(att.Answers) != 0 {
		t.Errorf("answers not reset: %d entries", len(att.Answers))
	}
	if !att.StartTime.Equal(restart) {
		t.Errorf("start_time: got %v, want %v", att.StartTime, restart)
	}
	if att.EndTime != nil {
		t.Errorf("end_time not cleared: %v", att.EndTime)
	}
	if att.DurationMinutes != 40 {
		t.Errorf("duration: got %d, want 40", att.DurationMinutes)
	}
}

func TestAccountUpsertKeepsSingleActive(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	if err := repo.Upsert(ctx, model.Account{UserEmail: "a@example.sch.id", Name: "A", AuthToken: "t1", PasswordHash: "h1"}); err != nil {
		t.Fatalf("upsert a: %v", err)
	}
	if err := repo.Upsert(ctx, model.Account{UserEmail: "b@example.sch.id", Name: "B", AuthToken: "t2", PasswordHash: "h2"}); err != nil {
		t.Fatalf("upsert b: %v", err)
	}

	active, err := repo.GetActive(ctx)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active.UserEmail != "b@example.sch.id" {
		t.Errorf("active account: got %q, want b@example.sch.id", active.UserEmail)
	}

	a, err := repo.Get(ctx, "a@example.sch.id")
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	if a.Active {
		t.Error("previous account still marked active")
	}

	if err := repo.Deactivate(ctx, "b@example.sch.id"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := repo.GetActive(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get active after logout: got %v, want ErrNotFound", err)
	}
}

func TestTimeTrustRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewTimeTrustRepository(db)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "siswa@example.sch.id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get before save: got %v, want ErrNotFound", err)
	}

	rec := model.TimeTrustRecord{
		UserEmail:  "siswa@example.sch.id",
		ServerTime: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
		DeviceTime: time.Date(2025, 5, 1, 12, 0, 3, 0, time.UTC),
	}
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.Get(ctx, "siswa@example.sch.id")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.ServerTime.Equal(rec.ServerTime) || !got.DeviceTime.Equal(rec.DeviceTime) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, rec)
	}

	// Saving again replaces the anchor.
	rec.ServerTime = rec.ServerTime.Add(time.Hour)
	rec.DeviceTime = rec.DeviceTime.Add(time.Hour)
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("re-save: %v", err)
	}
	got, err = repo.Get(ctx, "siswa@example.sch.id")
	if err != nil {
		t.Fatalf("get after re-save: %v", err)
	}
	if !got.ServerTime.Equal(rec.ServerTime) {
		t.Errorf("anchor not replaced: got %v, want %v", got.ServerTime, rec.ServerTime)
	}
}
