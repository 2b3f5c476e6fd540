package session

import (
	"encoding/json"
	"testing"
	"time"
)

func newParticipant(connID, userID, role string) (*Participant, chan []byte) {
	out := make(chan []byte, 32)
	p := &Participant{ConnID: connID, UserID: userID, Name: "User " + userID, Role: role, Out: out}
	return p, out
}

func decodeEvent(t *testing.T, payload []byte) map[string]any {
	t.Helper()

	var event map[string]any
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return event
}

func nextEvent(t *testing.T, out chan []byte) map[string]any {
	t.Helper()

	select {
	case payload := <-out:
		return decodeEvent(t, payload)
	default:
		t.Fatal("expected a queued event, got none")
		return nil
	}
}

func expectEventType(t *testing.T, out chan []byte, want string) map[string]any {
	t.Helper()

	event := nextEvent(t, out)
	if event["type"] != want {
		t.Fatalf("expected event type %q, got %q", want, event["type"])
	}
	return event
}

func TestJoinAnnouncesToOthersOnly(t *testing.T) {
	sess := New("lec1")

	teacher, teacherOut := newParticipant("c1", "t1", "teacher")
	sess.JoinTeacher(teacher)

	student, studentOut := newParticipant("c2", "s1", "student")
	state := sess.JoinStudent(student)

	if state.CurrentSlide != 1 {
		t.Fatalf("expected initial slide 1, got %d", state.CurrentSlide)
	}

	event := expectEventType(t, teacherOut, "participant-joined")
	user, ok := event["user"].(map[string]any)
	if !ok || user["id"] != "s1" {
		t.Fatalf("unexpected joined user: %#v", event["user"])
	}

	select {
	case payload := <-studentOut:
		t.Fatalf("joiner should not see their own join, got %s", payload)
	default:
	}
}

func TestLeaveAnnouncesAndReportsEmpty(t *testing.T) {
	sess := New("lec1")

	teacher, teacherOut := newParticipant("c1", "t1", "teacher")
	sess.JoinTeacher(teacher)
	student, studentOut := newParticipant("c2", "s1", "student")
	sess.JoinStudent(student)
	expectEventType(t, teacherOut, "participant-joined")

	removed, empty := sess.Leave("c1")
	if removed == nil || removed.UserID != "t1" {
		t.Fatalf("expected removed teacher, got %#v", removed)
	}
	if empty {
		t.Fatal("session with a student left should not be empty")
	}
	expectEventType(t, studentOut, "participant-left")

	removed, empty = sess.Leave("c2")
	if removed == nil || !empty {
		t.Fatalf("expected last leave to empty the session, got removed=%#v empty=%v", removed, empty)
	}
}

func TestLeaveOfUnboundConnNeverReportsEmpty(t *testing.T) {
	sess := New("lec1")

	// Even on a session with no participants, a connection that was never
	// bound here must not be able to trigger deletion.
	if removed, empty := sess.Leave("ghost"); removed != nil || empty {
		t.Fatalf("expected no-op leave, got removed=%#v empty=%v", removed, empty)
	}

	student, _ := newParticipant("c2", "s1", "student")
	sess.JoinStudent(student)
	if removed, empty := sess.Leave("ghost"); removed != nil || empty {
		t.Fatalf("expected no-op leave with a student bound, got removed=%#v empty=%v", removed, empty)
	}
}

func TestAppendNoteRoutesByRole(t *testing.T) {
	sess := New("lec1")

	teacher, teacherOut := newParticipant("c1", "t1", "teacher")
	sess.JoinTeacher(teacher)
	student, studentOut := newParticipant("c2", "s1", "student")
	sess.JoinStudent(student)
	expectEventType(t, teacherOut, "participant-joined")

	now := time.Date(2026, 3, 2, 9, 10, 0, 0, time.UTC)
	note := sess.AppendNote("<ul><li>tokens</li></ul>", now)
	if note.SlideNumber != 1 {
		t.Fatalf("expected note on slide 1, got %d", note.SlideNumber)
	}

	studentEvent := expectEventType(t, studentOut, "new-note")
	if studentEvent["content"] != "<ul><li>tokens</li></ul>" {
		t.Fatalf("unexpected note content: %#v", studentEvent)
	}
	expectEventType(t, teacherOut, "note-added")
}

func TestNoteOrderMatchesAppendOrder(t *testing.T) {
	sess := New("lec1")
	student, studentOut := newParticipant("c2", "s1", "student")
	sess.JoinStudent(student)

	sess.AppendNote("first", time.Now())
	sess.AppendNote("second", time.Now())
	sess.AppendNote("third", time.Now())

	for _, want := range []string{"first", "second", "third"} {
		event := expectEventType(t, studentOut, "new-note")
		if event["content"] != want {
			t.Fatalf("expected note %q, got %#v", want, event)
		}
	}
}

func TestAdvanceSlideDefaultsTitle(t *testing.T) {
	sess := New("lec1")
	student, studentOut := newParticipant("c2", "s1", "student")
	sess.JoinStudent(student)

	number, title := sess.AdvanceSlide("", time.Now())
	if number != 2 || title != "Slide 2" {
		t.Fatalf("expected slide 2 with default title, got %d %q", number, title)
	}

	event := expectEventType(t, studentOut, "slide-changed")
	if event["slideTitle"] != "Slide 2" {
		t.Fatalf("unexpected slide event: %#v", event)
	}

	number, title = sess.AdvanceSlide("Parsing", time.Now())
	if number != 3 || title != "Parsing" {
		t.Fatalf("expected slide 3 titled Parsing, got %d %q", number, title)
	}

	note := sess.AppendNote("on new slide", time.Now())
	if note.SlideNumber != 3 {
		t.Fatalf("expected note bound to slide 3, got %d", note.SlideNumber)
	}
}

func TestInterimGoesToStudentsOnly(t *testing.T) {
	sess := New("lec1")

	teacher, teacherOut := newParticipant("c1", "t1", "teacher")
	sess.JoinTeacher(teacher)
	student, studentOut := newParticipant("c2", "s1", "student")
	sess.JoinStudent(student)
	expectEventType(t, teacherOut, "participant-joined")

	sess.BroadcastInterim("so as I was say")

	event := expectEventType(t, studentOut, "transcript-interim")
	if event["text"] != "so as I was say" {
		t.Fatalf("unexpected interim event: %#v", event)
	}

	select {
	case payload := <-teacherOut:
		t.Fatalf("teacher should not receive interim transcripts, got %s", payload)
	default:
	}
}

func TestSlowStudentDoesNotBlockBroadcast(t *testing.T) {
	sess := New("lec1")

	blocked := &Participant{ConnID: "c9", UserID: "s9", Role: "student", Out: make(chan []byte)}
	sess.JoinStudent(blocked)
	healthy, healthyOut := newParticipant("c2", "s1", "student")
	sess.JoinStudent(healthy)

	done := make(chan struct{})
	go func() {
		sess.AppendNote("note", time.Now())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full client queue")
	}

	expectEventType(t, healthyOut, "new-note")
}

func TestEnqueueTranscriptDropsWhenFull(t *testing.T) {
	sess := New("lec1")

	for i := 0; i < transcriptQueueSize; i++ {
		if !sess.EnqueueTranscript("fragment") {
			t.Fatalf("enqueue %d unexpectedly dropped", i)
		}
	}
	if sess.EnqueueTranscript("overflow") {
		t.Fatal("expected overflow fragment to be dropped")
	}

	sess.Shutdown()
	if sess.EnqueueTranscript("after close") {
		t.Fatal("expected enqueue after shutdown to be dropped")
	}

	count := 0
	for range sess.Transcripts() {
		count++
	}
	if count != transcriptQueueSize {
		t.Fatalf("expected %d queued fragments, got %d", transcriptQueueSize, count)
	}
}

func TestTranscriptTextAccumulatesSpeech(t *testing.T) {
	sess := New("lec1")

	sess.EnqueueTranscript("today we cover parsing")
	sess.EnqueueTranscript("and then lexing")

	want := "today we cover parsing and then lexing"
	if got := sess.TranscriptText(); got != want {
		t.Fatalf("expected transcript %q, got %q", want, got)
	}

	// The spoken log survives shutdown; the summary is generated after the
	// room is torn down.
	sess.Shutdown()
	if got := sess.TranscriptText(); got != want {
		t.Fatalf("expected transcript preserved after shutdown, got %q", got)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	sess := New("lec1")
	sess.Shutdown()
	sess.Shutdown()
}
