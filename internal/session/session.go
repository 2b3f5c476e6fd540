// Package session holds the ephemeral state of one live lecture room: who is
// connected, the slide position, the note log, and the single in-flight poll
// or quiz. Every mutating operation broadcasts its event(s) before releasing
// the session lock, so broadcast order always matches mutation order within a
// session. Nothing here touches I/O; durable writes happen in the bridge.
package session

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

const transcriptQueueSize = 64

// Participant is one bound connection. Out is the connection's send queue;
// sends are non-blocking so a slow client can never stall the room.
type Participant struct {
	ConnID string
	UserID string
	Name   string
	Role   string
	Out    chan<- []byte
}

// Note is one generated note, immutable once appended.
type Note struct {
	Content     string    `json:"content"`
	SlideNumber int       `json:"slideNumber"`
	CreatedAt   time.Time `json:"timestamp"`
}

// StateSnapshot is what a late joiner needs to reconstruct the room without
// replaying history.
type StateSnapshot struct {
	CurrentSlide int
	Notes        []Note
}

type Session struct {
	LectureID string

	mu           sync.Mutex
	teacher      *Participant
	students     map[string]*Participant
	currentSlide int
	notes        []Note
	activity     *Activity
	transcripts  chan string
	spoken       []string
	closed       bool
}

func New(lectureID string) *Session {
	return &Session{
		LectureID:    lectureID,
		students:     make(map[string]*Participant),
		currentSlide: 1,
		transcripts:  make(chan string, transcriptQueueSize),
	}
}

// JoinTeacher binds the session's teacher connection, replacing any previous
// one, and announces the join to everyone else in the room.
func (s *Session) JoinTeacher(p *Participant) StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teacher = p
	s.broadcastExceptLocked(p.ConnID, marshalEvent(participantJoinedEvent{
		Event: NewEvent("participant-joined", time.Now().UTC()),
		User:  UserRef{ID: p.UserID, Name: p.Name, Role: p.Role},
	}))
	return s.snapshotLocked()
}

// JoinStudent adds a student connection and announces the join to everyone
// else in the room.
func (s *Session) JoinStudent(p *Participant) StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.students[p.ConnID] = p
	s.broadcastExceptLocked(p.ConnID, marshalEvent(participantJoinedEvent{
		Event: NewEvent("participant-joined", time.Now().UTC()),
		User:  UserRef{ID: p.UserID, Name: p.Name, Role: p.Role},
	}))
	return s.snapshotLocked()
}

// Leave removes a connection from the session and announces it. It returns
// the removed participant (nil if the connection was not bound here) and
// whether the session is now empty and should be deleted. A connection that
// was never bound here reports empty=false, so a stale disconnect can never
// tear down a session it does not belong to.
func (s *Session) Leave(connID string) (*Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed *Participant
	if s.teacher != nil && s.teacher.ConnID == connID {
		removed = s.teacher
		s.teacher = nil
	} else if p, ok := s.students[connID]; ok {
		removed = p
		delete(s.students, connID)
	}

	if removed == nil {
		return nil, false
	}

	s.broadcastLocked(marshalEvent(participantLeftEvent{
		Event: NewEvent("participant-left", time.Now().UTC()),
		User:  UserRef{ID: removed.UserID, Name: removed.Name, Role: removed.Role},
	}))

	return removed, s.teacher == nil && len(s.students) == 0
}

// TeacherUserID returns the user id of the bound teacher, or "" when the
// teacher is disconnected.
func (s *Session) TeacherUserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.teacher == nil {
		return ""
	}
	return s.teacher.UserID
}

// IsTeacherConn reports whether connID is the currently bound teacher.
func (s *Session) IsTeacherConn(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teacher != nil && s.teacher.ConnID == connID
}

// ParticipantCount returns the number of bound connections.
func (s *Session) ParticipantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.students)
	if s.teacher != nil {
		n++
	}
	return n
}

// AppendNote attaches a note to the current slide, broadcasts it to every
// student, and echoes a note-added event to the teacher.
func (s *Session) AppendNote(content string, now time.Time) Note {
	s.mu.Lock()
	defer s.mu.Unlock()

	note := Note{Content: content, SlideNumber: s.currentSlide, CreatedAt: now.UTC()}
	s.notes = append(s.notes, note)

	payload := marshalEvent(newNoteEvent{
		Event:       NewEvent("new-note", now),
		Content:     note.Content,
		SlideNumber: note.SlideNumber,
	})
	for _, p := range s.students {
		send(p, payload)
	}
	if s.teacher != nil {
		send(s.teacher, marshalEvent(newNoteEvent{
			Event:       NewEvent("note-added", now),
			Content:     note.Content,
			SlideNumber: note.SlideNumber,
		}))
	}

	return note
}

// AdvanceSlide moves the room to the next slide and broadcasts the change.
// The returned title falls back to "Slide N" when none was extracted.
func (s *Session) AdvanceSlide(title string, now time.Time) (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentSlide++
	if title == "" {
		title = defaultSlideTitle(s.currentSlide)
	}

	s.broadcastLocked(marshalEvent(slideChangedEvent{
		Event:       NewEvent("slide-changed", now),
		SlideNumber: s.currentSlide,
		SlideTitle:  title,
	}))

	return s.currentSlide, title
}

// BroadcastInterim shows in-progress speech to students. Interim text is
// never stored.
func (s *Session) BroadcastInterim(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := marshalEvent(transcriptInterimEvent{
		Event: NewEvent("transcript-interim", time.Now().UTC()),
		Text:  text,
	})
	for _, p := range s.students {
		send(p, payload)
	}
}

// BroadcastTimer announces a countdown to students.
func (s *Session) BroadcastTimer(seconds int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := marshalEvent(timerStartedEvent{Event: NewEvent("timer-started", now), Duration: seconds})
	for _, p := range s.students {
		send(p, payload)
	}
}

// NotifyTeacher delivers an error event to the teacher connection only, used
// when a voice command was recognized but carried unusable parameters.
func (s *Session) NotifyTeacher(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.teacher != nil {
		send(s.teacher, ErrorPayload(msg))
	}
}

// EndLecture broadcasts the lecture-ended event to the whole room.
func (s *Session) EndLecture(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.broadcastLocked(marshalEvent(lectureEndedEvent{Event: NewEvent("lecture-ended", now)}))
}

// EnqueueTranscript queues a finalized transcript fragment for the session's
// pipeline worker. Fragments are dropped, not queued indefinitely, when the
// worker falls behind; speech keeps flowing either way. Every fragment is
// appended to the spoken log regardless, since the whole-lecture transcript
// feeds the end-of-lecture summary.
func (s *Session) EnqueueTranscript(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.spoken = append(s.spoken, text)
	select {
	case s.transcripts <- text:
		return true
	default:
		log.Printf("session %s: transcript queue full, dropping fragment", s.LectureID)
		return false
	}
}

// Transcripts is the ordered queue consumed by the session's pipeline worker.
func (s *Session) Transcripts() <-chan string {
	return s.transcripts
}

// TranscriptText returns the lecture's finalized speech as one string, in the
// order it was spoken.
func (s *Session) TranscriptText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.spoken, " ")
}

// Shutdown closes the transcript queue and cancels any pending activity
// timer. Called exactly once, when the session is removed from the registry.
func (s *Session) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.transcripts)

	if s.activity != nil && s.activity.timer != nil {
		s.activity.timer.Stop()
	}
}

func (s *Session) snapshotLocked() StateSnapshot {
	notes := make([]Note, len(s.notes))
	copy(notes, s.notes)
	return StateSnapshot{CurrentSlide: s.currentSlide, Notes: notes}
}

func (s *Session) broadcastLocked(payload []byte) {
	if s.teacher != nil {
		send(s.teacher, payload)
	}
	for _, p := range s.students {
		send(p, payload)
	}
}

func (s *Session) broadcastExceptLocked(connID string, payload []byte) {
	if s.teacher != nil && s.teacher.ConnID != connID {
		send(s.teacher, payload)
	}
	for _, p := range s.students {
		if p.ConnID != connID {
			send(p, payload)
		}
	}
}

func send(p *Participant, payload []byte) {
	if payload == nil {
		return
	}
	select {
	case p.Out <- payload:
	default:
	}
}

func defaultSlideTitle(n int) string {
	return fmt.Sprintf("Slide %d", n)
}
