package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func seedLecture(t *testing.T, store *SQLiteStore, lectureID string) {
	t.Helper()

	if err := store.CreateUser(User{
		ID: "t1", Email: "grace@example.edu",
		FirstName: "Grace", LastName: "Hopper",
		Role: "teacher", IsActive: true,
	}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	if err := store.CreateLecture(Lecture{
		ID:        lectureID,
		Title:     "Compilers 101",
		TeacherID: "t1",
		Status:    LectureActive,
		StartTime: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("CreateLecture failed: %v", err)
	}
}

func TestSQLitePragmas(t *testing.T) {
	store := newTestSQLiteStore(t)

	var mode string
	if err := store.DB().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode failed: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("expected journal_mode wal, got %q", mode)
	}
}

func TestUserRoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)

	if err := store.CreateUser(User{
		ID: "s1", Email: "alan@example.edu",
		FirstName: "Alan", LastName: "Kay",
		Role: "student", IsActive: true,
	}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	u, err := store.FindUserByID("s1")
	if err != nil {
		t.Fatalf("FindUserByID failed: %v", err)
	}
	if u.Name() != "Alan Kay" {
		t.Fatalf("expected display name Alan Kay, got %q", u.Name())
	}
	if !u.IsActive {
		t.Fatal("expected active user")
	}

	if _, err := store.FindUserByID("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLectureLifecycle(t *testing.T) {
	store := newTestSQLiteStore(t)
	seedLecture(t, store, "lec1")

	lecture, err := store.FindLectureByID("lec1")
	if err != nil {
		t.Fatalf("FindLectureByID failed: %v", err)
	}
	if lecture.Status != LectureActive {
		t.Fatalf("expected status active, got %q", lecture.Status)
	}
	if lecture.EndTime != nil {
		t.Fatal("expected no end time before ending")
	}

	endedAt := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	if err := store.EndLecture("lec1", endedAt); err != nil {
		t.Fatalf("EndLecture failed: %v", err)
	}

	lecture, err = store.FindLectureByID("lec1")
	if err != nil {
		t.Fatalf("FindLectureByID failed: %v", err)
	}
	if lecture.Status != LectureCompleted {
		t.Fatalf("expected status completed, got %q", lecture.Status)
	}
	if lecture.EndTime == nil || !lecture.EndTime.Equal(endedAt) {
		t.Fatalf("expected end time %s, got %v", endedAt, lecture.EndTime)
	}

	if err := store.EndLecture("nope", endedAt); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound ending missing lecture, got %v", err)
	}
}

func TestLectureSummary(t *testing.T) {
	store := newTestSQLiteStore(t)
	seedLecture(t, store, "lec1")

	lecture, err := store.FindLectureByID("lec1")
	if err != nil {
		t.Fatalf("FindLectureByID failed: %v", err)
	}
	if lecture.Summary != "" {
		t.Fatalf("expected empty summary before generation, got %q", lecture.Summary)
	}

	if err := store.SetLectureSummary("lec1", "Covered parsing and lexing."); err != nil {
		t.Fatalf("SetLectureSummary failed: %v", err)
	}

	lecture, err = store.FindLectureByID("lec1")
	if err != nil {
		t.Fatalf("FindLectureByID failed: %v", err)
	}
	if lecture.Summary != "Covered parsing and lexing." {
		t.Fatalf("unexpected summary: %q", lecture.Summary)
	}

	if err := store.SetLectureSummary("nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing lecture, got %v", err)
	}
}

func TestNotesAndSlides(t *testing.T) {
	store := newTestSQLiteStore(t)
	seedLecture(t, store, "lec1")

	now := time.Date(2026, 3, 2, 9, 5, 0, 0, time.UTC)
	if err := store.AddNote("lec1", "<ul><li>lexing</li></ul>", 1, now); err != nil {
		t.Fatalf("AddNote failed: %v", err)
	}

	if err := store.AddSlide("lec1", 2, "Parsing", now.Add(time.Minute)); err != nil {
		t.Fatalf("AddSlide failed: %v", err)
	}
	if err := store.AddSlide("lec1", 3, "Slide 3", now.Add(2*time.Minute)); err != nil {
		t.Fatalf("AddSlide failed: %v", err)
	}

	slides, err := store.GetSlides("lec1")
	if err != nil {
		t.Fatalf("GetSlides failed: %v", err)
	}
	if len(slides) != 2 {
		t.Fatalf("expected 2 slides, got %d", len(slides))
	}
	if slides[0].Number != 2 || slides[0].Title != "Parsing" {
		t.Fatalf("unexpected first slide: %#v", slides[0])
	}
	if slides[1].Number != 3 {
		t.Fatalf("expected slides ordered by number, got %#v", slides)
	}
}

func TestActivityRoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)
	seedLecture(t, store, "lec1")

	createdAt := time.Date(2026, 3, 2, 9, 20, 0, 0, time.UTC)
	rec := ActivityRecord{
		ID:            "act1",
		LectureID:     "lec1",
		TeacherID:     "t1",
		Kind:          "quiz",
		Question:      "What does a lexer produce?",
		Options:       []string{"Tokens", "Trees", "Bytecode"},
		CorrectOption: 0,
		TimeLimitSec:  30,
		Status:        ActivityRunning,
		CreatedAt:     createdAt,
	}
	if err := store.CreateActivity(rec); err != nil {
		t.Fatalf("CreateActivity failed: %v", err)
	}

	result := ActivityResult{
		TotalResponses:   3,
		OptionCounts:     []int{2, 1, 0},
		CorrectResponses: 2,
		Responses:        map[string]int{"s1": 0, "s2": 0, "s3": 1},
	}
	completedAt := createdAt.Add(30 * time.Second)
	if err := store.CompleteActivity("act1", result, completedAt); err != nil {
		t.Fatalf("CompleteActivity failed: %v", err)
	}

	gotRec, gotResult, err := store.GetActivity("act1")
	if err != nil {
		t.Fatalf("GetActivity failed: %v", err)
	}
	if gotRec.Status != ActivityCompleted {
		t.Fatalf("expected status completed, got %q", gotRec.Status)
	}
	if len(gotRec.Options) != 3 || gotRec.Options[0] != "Tokens" {
		t.Fatalf("unexpected options: %#v", gotRec.Options)
	}
	if gotResult.TotalResponses != 3 || gotResult.CorrectResponses != 2 {
		t.Fatalf("unexpected result: %#v", gotResult)
	}
	if len(gotResult.OptionCounts) != 3 || gotResult.OptionCounts[0] != 2 {
		t.Fatalf("unexpected option counts: %#v", gotResult.OptionCounts)
	}
	if gotResult.Responses["s3"] != 1 {
		t.Fatalf("unexpected responses: %#v", gotResult.Responses)
	}

	if err := store.CompleteActivity("missing", result, completedAt); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
