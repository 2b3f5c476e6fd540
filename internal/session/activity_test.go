package session

import (
	"errors"
	"testing"
	"time"
)

func startTestQuiz(t *testing.T, sess *Session, onExpire func(string)) Snapshot {
	t.Helper()

	snap, err := sess.StartActivity(ActivitySpec{
		Kind:          KindQuiz,
		Question:      "What does a lexer produce?",
		Options:       []string{"Tokens", "Trees", "Bytecode"},
		CorrectOption: 0,
		TimeLimit:     30 * time.Second,
		TeacherID:     "t1",
	}, time.Now(), onExpire)
	if err != nil {
		t.Fatalf("StartActivity failed: %v", err)
	}
	return snap
}

func TestStartActivityRejectsConcurrent(t *testing.T) {
	sess := New("lec1")
	startTestQuiz(t, sess, nil)

	_, err := sess.StartActivity(ActivitySpec{
		Kind:          KindPoll,
		Question:      "Too fast?",
		Options:       []string{"Yes", "No"},
		CorrectOption: -1,
		TimeLimit:     time.Minute,
	}, time.Now(), nil)
	if !errors.Is(err, ErrActivityRunning) {
		t.Fatalf("expected ErrActivityRunning, got %v", err)
	}
}

func TestStartActivityAnnouncesToStudentsOnly(t *testing.T) {
	sess := New("lec1")
	teacher, teacherOut := newParticipant("c1", "t1", "teacher")
	sess.JoinTeacher(teacher)
	student, studentOut := newParticipant("c2", "s1", "student")
	sess.JoinStudent(student)
	expectEventType(t, teacherOut, "participant-joined")

	snap := startTestQuiz(t, sess, nil)

	event := expectEventType(t, studentOut, "quiz-started")
	if event["quizId"] != snap.ID {
		t.Fatalf("unexpected quiz id: %#v", event)
	}
	if event["timeLimit"] != float64(30) {
		t.Fatalf("expected timeLimit 30, got %#v", event["timeLimit"])
	}
	if _, hasCorrect := event["correctAnswer"]; hasCorrect {
		t.Fatal("quiz-started must not leak the correct answer")
	}

	select {
	case payload := <-teacherOut:
		t.Fatalf("teacher should not receive quiz-started, got %s", payload)
	default:
	}
}

func TestRecordResponseOverwrites(t *testing.T) {
	sess := New("lec1")
	snap := startTestQuiz(t, sess, nil)

	if _, err := sess.RecordResponse("s1", snap.ID, 1, time.Now()); err != nil {
		t.Fatalf("RecordResponse failed: %v", err)
	}
	if _, err := sess.RecordResponse("s2", snap.ID, 1, time.Now()); err != nil {
		t.Fatalf("RecordResponse failed: %v", err)
	}

	results, err := sess.RecordResponse("s1", snap.ID, 0, time.Now())
	if err != nil {
		t.Fatalf("RecordResponse failed: %v", err)
	}

	if results.TotalResponses != 2 {
		t.Fatalf("expected 2 total responses after overwrite, got %d", results.TotalResponses)
	}
	if results.OptionCounts[0].Count != 1 || results.OptionCounts[1].Count != 1 {
		t.Fatalf("unexpected counts: %#v", results.OptionCounts)
	}
	if results.CorrectResponses != 1 {
		t.Fatalf("expected 1 correct response, got %d", results.CorrectResponses)
	}
}

func TestResultsIncludeZeroCountOptions(t *testing.T) {
	sess := New("lec1")
	snap := startTestQuiz(t, sess, nil)

	results, err := sess.RecordResponse("s1", snap.ID, 2, time.Now())
	if err != nil {
		t.Fatalf("RecordResponse failed: %v", err)
	}

	if len(results.OptionCounts) != 3 {
		t.Fatalf("expected a count per option, got %#v", results.OptionCounts)
	}
	total := 0
	for i, c := range results.OptionCounts {
		if c.OptionIndex != i {
			t.Fatalf("expected option index %d, got %d", i, c.OptionIndex)
		}
		total += c.Count
	}
	if total != results.TotalResponses {
		t.Fatalf("counts sum %d != total %d", total, results.TotalResponses)
	}
}

func TestRecordResponseErrors(t *testing.T) {
	sess := New("lec1")

	if _, err := sess.RecordResponse("s1", "nope", 0, time.Now()); !errors.Is(err, ErrNoActiveActivity) {
		t.Fatalf("expected ErrNoActiveActivity, got %v", err)
	}

	snap := startTestQuiz(t, sess, nil)

	if _, err := sess.RecordResponse("s1", "other-id", 0, time.Now()); !errors.Is(err, ErrActivityMismatch) {
		t.Fatalf("expected ErrActivityMismatch, got %v", err)
	}
	if _, err := sess.RecordResponse("s1", snap.ID, 3, time.Now()); !errors.Is(err, ErrOptionOutOfRange) {
		t.Fatalf("expected ErrOptionOutOfRange, got %v", err)
	}
	if _, err := sess.RecordResponse("s1", snap.ID, -1, time.Now()); !errors.Is(err, ErrOptionOutOfRange) {
		t.Fatalf("expected ErrOptionOutOfRange for negative option, got %v", err)
	}

	sess.CompleteActivity(snap.ID, ReasonManualEnd, time.Now())
	if _, err := sess.RecordResponse("s1", snap.ID, 0, time.Now()); !errors.Is(err, ErrNoActiveActivity) {
		t.Fatalf("expected ErrNoActiveActivity after completion, got %v", err)
	}
}

func TestCompleteActivityOnce(t *testing.T) {
	sess := New("lec1")
	student, studentOut := newParticipant("c2", "s1", "student")
	sess.JoinStudent(student)

	snap := startTestQuiz(t, sess, nil)
	expectEventType(t, studentOut, "quiz-started")

	if _, err := sess.RecordResponse("s1", snap.ID, 0, time.Now()); err != nil {
		t.Fatalf("RecordResponse failed: %v", err)
	}
	expectEventType(t, studentOut, "quiz-results-updated")

	final, ok := sess.CompleteActivity(snap.ID, ReasonManualEnd, time.Now())
	if !ok {
		t.Fatal("expected first completion to apply")
	}
	if final.Results.TotalResponses != 1 || final.Results.CorrectResponses != 1 {
		t.Fatalf("unexpected frozen results: %#v", final.Results)
	}
	if final.Reason != ReasonManualEnd {
		t.Fatalf("expected manual completion reason, got %q", final.Reason)
	}

	event := expectEventType(t, studentOut, "quiz-ended")
	if event["correctAnswer"] != float64(0) {
		t.Fatalf("expected quiz-ended to reveal correct answer, got %#v", event)
	}

	// A stale timer firing after manual end is a no-op.
	if _, ok := sess.CompleteActivity(snap.ID, ReasonTimeout, time.Now()); ok {
		t.Fatal("expected second completion to be ignored")
	}
	select {
	case payload := <-studentOut:
		t.Fatalf("expected no event for duplicate completion, got %s", payload)
	default:
	}
}

func TestPollEndedHidesCorrectAnswer(t *testing.T) {
	sess := New("lec1")
	student, studentOut := newParticipant("c2", "s1", "student")
	sess.JoinStudent(student)

	snap, err := sess.StartActivity(ActivitySpec{
		Kind:          KindPoll,
		Question:      "Pace ok?",
		Options:       []string{"Yes", "No"},
		CorrectOption: -1,
		TimeLimit:     time.Minute,
	}, time.Now(), nil)
	if err != nil {
		t.Fatalf("StartActivity failed: %v", err)
	}
	expectEventType(t, studentOut, "poll-started")

	if _, ok := sess.CompleteActivity(snap.ID, ReasonTimeout, time.Now()); !ok {
		t.Fatal("expected completion to apply")
	}

	event := expectEventType(t, studentOut, "poll-ended")
	if _, hasCorrect := event["correctAnswer"]; hasCorrect {
		t.Fatalf("poll-ended must not carry a correct answer: %#v", event)
	}
}

func TestActivityTimerFires(t *testing.T) {
	sess := New("lec1")

	expired := make(chan string, 1)
	snap, err := sess.StartActivity(ActivitySpec{
		Kind:          KindQuiz,
		Question:      "Quick one?",
		Options:       []string{"A", "B"},
		CorrectOption: 0,
		TimeLimit:     20 * time.Millisecond,
	}, time.Now(), func(id string) { expired <- id })
	if err != nil {
		t.Fatalf("StartActivity failed: %v", err)
	}

	select {
	case id := <-expired:
		if id != snap.ID {
			t.Fatalf("expected expiry for %s, got %s", snap.ID, id)
		}
	case <-time.After(time.Second):
		t.Fatal("expected activity timer to fire")
	}
}
