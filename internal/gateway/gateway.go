// Package gateway binds authenticated websocket connections to live lecture
// sessions and drives the per-session transcript pipeline. It is the only
// package that talks to every other layer: auth for handshakes, storage for
// join checks and late-joiner state, transcribe for the audio stream, assist
// for notes and voice commands, session for room state, and the persistence
// bridge for durable writes.
package gateway

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/classcast/classcast/internal/assist"
	"github.com/classcast/classcast/internal/auth"
	"github.com/classcast/classcast/internal/session"
	"github.com/classcast/classcast/internal/storage"
	"github.com/classcast/classcast/internal/transcribe"
)

const (
	llmTimeout          = 30 * time.Second
	summaryTimeout      = 2 * time.Minute
	defaultTimerSeconds = 30
)

type TokenVerifier interface {
	Verify(tokenString string) (auth.Identity, error)
}

type LectureStore interface {
	FindLectureByID(id string) (storage.Lecture, error)
	GetSlides(lectureID string) ([]storage.Slide, error)
}

// Assistant is the generative backend for the transcript pipeline and the
// end-of-lecture summary.
type Assistant interface {
	GenerateNotes(ctx context.Context, transcript string) (string, error)
	DetectCommand(ctx context.Context, text string) (assist.Command, error)
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Persister receives committed session events for durable storage. All its
// methods are fire-and-forget.
type Persister interface {
	SaveNote(lectureID string, note session.Note)
	SaveSlide(lectureID string, number int, title string, createdAt time.Time)
	ActivityStarted(lectureID string, snap session.Snapshot)
	ActivityCompleted(snap session.Snapshot)
	LectureEnded(lectureID string, endedAt time.Time)
	SaveSummary(lectureID, summary string)
}

type Config struct {
	Store       LectureStore
	Verifier    TokenVerifier
	Registry    *session.Registry
	Transcriber transcribe.Streamer // nil disables live transcription
	Assistant   Assistant           // nil disables notes and voice commands
	Persister   Persister

	PollTimeLimit time.Duration
	QuizTimeLimit time.Duration
}

type Gateway struct {
	store       LectureStore
	verifier    TokenVerifier
	registry    *session.Registry
	transcriber transcribe.Streamer
	assistant   Assistant
	persister   Persister

	pollLimit time.Duration
	quizLimit time.Duration

	mu     sync.Mutex
	byUser map[string]*Conn
}

func New(cfg Config) *Gateway {
	if cfg.PollTimeLimit <= 0 {
		cfg.PollTimeLimit = 60 * time.Second
	}
	if cfg.QuizTimeLimit <= 0 {
		cfg.QuizTimeLimit = 30 * time.Second
	}
	return &Gateway{
		store:       cfg.Store,
		verifier:    cfg.Verifier,
		registry:    cfg.Registry,
		transcriber: cfg.Transcriber,
		assistant:   cfg.Assistant,
		persister:   cfg.Persister,
		pollLimit:   cfg.PollTimeLimit,
		quizLimit:   cfg.QuizTimeLimit,
		byUser:      make(map[string]*Conn),
	}
}

// register indexes the connection by user id. A later connection from the
// same user replaces the entry; the stale transport is left to die on its
// own ping timeout.
func (g *Gateway) register(c *Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.byUser[c.Identity.UserID] = c
}

func (g *Gateway) unregister(c *Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.byUser[c.Identity.UserID] == c {
		delete(g.byUser, c.Identity.UserID)
	}
}

// ConnFor returns the user's most recent connection, or nil.
func (g *Gateway) ConnFor(userID string) *Conn {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.byUser[userID]
}

// Authenticate resolves a handshake token to an identity.
func (g *Gateway) Authenticate(token string) (auth.Identity, error) {
	return g.verifier.Verify(token)
}

// JoinLecture validates the join against the lecture record, binds the
// connection into the session, and sends the late-joiner state snapshot.
// Teachers may only join their own lectures; students only active ones. The
// session is created on first join, along with its pipeline worker.
func (g *Gateway) JoinLecture(c *Conn, lectureID string) error {
	lecture, err := g.store.FindLectureByID(lectureID)
	if err != nil {
		return err
	}

	switch c.Identity.Role {
	case auth.RoleTeacher:
		if lecture.TeacherID != c.Identity.UserID {
			return ErrNotYourLecture
		}
	default:
		if lecture.Status != storage.LectureActive {
			return ErrLectureNotActive
		}
	}

	if prev := c.lecture(); prev != "" && prev != lectureID {
		g.Leave(c)
	}

	sess, created := g.registry.GetOrCreate(lectureID)
	if created {
		go g.pipeline(sess)
	}

	participant := &session.Participant{
		ConnID: c.ID,
		UserID: c.Identity.UserID,
		Name:   c.Identity.Name,
		Role:   string(c.Identity.Role),
		Out:    c.out,
	}

	var state session.StateSnapshot
	if c.Identity.Role == auth.RoleTeacher {
		state = sess.JoinTeacher(participant)
	} else {
		state = sess.JoinStudent(participant)
	}
	c.setLecture(lectureID)

	slides, err := g.store.GetSlides(lectureID)
	if err != nil {
		log.Printf("gateway: load slides for lecture %s: %v", lectureID, err)
		slides = nil
	}

	c.Send(lectureStatePayload(lecture, state, slides))
	return nil
}

// Leave unbinds the connection from its lecture. The last participant out
// deletes the session from the registry and shuts it down.
func (g *Gateway) Leave(c *Conn) {
	lectureID := c.lecture()
	if lectureID == "" {
		return
	}
	c.setLecture("")

	sess := g.registry.Get(lectureID)
	if sess == nil {
		return
	}

	removed, empty := sess.Leave(c.ID)
	if removed != nil && removed.Role == string(auth.RoleTeacher) && g.transcriber != nil {
		g.transcriber.Close(lectureID)
	}

	if empty {
		// Everyone walked out mid-activity: freeze the results so the
		// durable record does not stay running forever.
		if id := sess.ActiveActivityID(); id != "" {
			if snap, ok := sess.CompleteActivity(id, session.ReasonAbandoned, time.Now().UTC()); ok {
				g.persister.ActivityCompleted(snap)
			}
		}
		g.registry.Remove(lectureID)
		sess.Shutdown()
		if g.transcriber != nil {
			g.transcriber.Close(lectureID)
		}
	}
}

// HandleAudio forwards a raw audio frame into the session's transcription
// stream. The stream is opened on the connection's first frame; later frames
// skip straight to the send. Frames from anyone but the session's bound
// teacher are dropped without comment.
func (g *Gateway) HandleAudio(c *Conn, frame []byte) {
	if g.transcriber == nil || len(frame) == 0 {
		return
	}

	lectureID := c.lecture()
	if lectureID == "" {
		return
	}
	sess := g.registry.Get(lectureID)
	if sess == nil || !sess.IsTeacherConn(c.ID) {
		return
	}

	if !c.streamOpened() {
		if err := g.transcriber.Open(lectureID, func(res transcribe.Result) {
			g.handleTranscript(sess, res)
		}); err != nil {
			log.Printf("gateway: open transcription stream for lecture %s: %v", lectureID, err)
			return
		}
		c.markStreamOpened()
	}

	g.transcriber.SendFrame(lectureID, frame)
}

func (g *Gateway) handleTranscript(sess *session.Session, res transcribe.Result) {
	if res.Err != nil {
		log.Printf("gateway: transcription stream for lecture %s: %v", sess.LectureID, res.Err)
		return
	}
	if res.Text == "" {
		return
	}
	if !res.IsFinal {
		sess.BroadcastInterim(res.Text)
		return
	}
	sess.EnqueueTranscript(res.Text)
}

// HandleQuizResponse records a student's answer to the live activity and
// acknowledges it on the student's own connection.
func (g *Gateway) HandleQuizResponse(c *Conn, quizID string, option int) error {
	if c.Identity.Role != auth.RoleStudent {
		return ErrStudentsOnly
	}

	lectureID := c.lecture()
	if lectureID == "" {
		return ErrNotInLecture
	}
	sess := g.registry.Get(lectureID)
	if sess == nil {
		return ErrNotInLecture
	}

	if _, err := sess.RecordResponse(c.Identity.UserID, quizID, option, time.Now()); err != nil {
		return err
	}

	c.Send(session.ResponseRecordedPayload(quizID, option))
	return nil
}

// HandleEndLecture lets the teacher end the lecture explicitly, without going
// through a voice command.
func (g *Gateway) HandleEndLecture(c *Conn) error {
	lectureID := c.lecture()
	if lectureID == "" {
		return ErrNotInLecture
	}
	sess := g.registry.Get(lectureID)
	if sess == nil {
		return ErrNotInLecture
	}
	if !sess.IsTeacherConn(c.ID) {
		return ErrNotYourLecture
	}

	g.endLecture(sess, time.Now().UTC())
	return nil
}

// pipeline is the per-session worker. It consumes finalized transcript
// fragments in order and runs each through command detection, then note
// generation. One worker per session keeps note order equal to speech order.
func (g *Gateway) pipeline(sess *session.Session) {
	for text := range sess.Transcripts() {
		g.processTranscript(sess, text)
	}
}

func (g *Gateway) processTranscript(sess *session.Session, text string) {
	if g.assistant == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), llmTimeout)
	defer cancel()

	cmd, err := g.assistant.DetectCommand(ctx, text)
	if err != nil {
		log.Printf("gateway: detect command for lecture %s: %v", sess.LectureID, err)
		cmd = assist.Command{}
	}
	if cmd.Type != assist.CommandNone {
		g.dispatchCommand(sess, cmd)
		return
	}

	notes, err := g.assistant.GenerateNotes(ctx, text)
	if err != nil {
		log.Printf("gateway: generate notes for lecture %s: %v", sess.LectureID, err)
		return
	}
	if notes == "" {
		return
	}

	note := sess.AppendNote(notes, time.Now().UTC())
	g.persister.SaveNote(sess.LectureID, note)
}

func (g *Gateway) dispatchCommand(sess *session.Session, cmd assist.Command) {
	now := time.Now().UTC()

	switch cmd.Type {
	case assist.CommandSlide:
		number, title := sess.AdvanceSlide(cmd.SlideTitle, now)
		g.persister.SaveSlide(sess.LectureID, number, title, now)

	case assist.CommandPoll:
		g.startActivity(sess, session.ActivitySpec{
			Kind:          session.KindPoll,
			Question:      cmd.Question,
			Options:       cmd.Options,
			CorrectOption: -1,
			TimeLimit:     g.pollLimit,
			TeacherID:     sess.TeacherUserID(),
		}, now)

	case assist.CommandQuiz:
		limit := g.quizLimit
		if cmd.TimeLimitSeconds > 0 {
			limit = time.Duration(cmd.TimeLimitSeconds) * time.Second
		}
		g.startActivity(sess, session.ActivitySpec{
			Kind:          session.KindQuiz,
			Question:      cmd.Question,
			Options:       cmd.Options,
			CorrectOption: 0,
			TimeLimit:     limit,
			TeacherID:     sess.TeacherUserID(),
		}, now)

	case assist.CommandTimer:
		seconds := cmd.TimeLimitSeconds
		if seconds <= 0 {
			seconds = defaultTimerSeconds
		}
		sess.BroadcastTimer(seconds, now)

	case assist.CommandEnd:
		g.endLecture(sess, now)
	}
}

func (g *Gateway) startActivity(sess *session.Session, spec session.ActivitySpec, now time.Time) {
	if spec.Question == "" || len(spec.Options) < 2 {
		sess.NotifyTeacher("I heard a " + string(spec.Kind) + " command but could not make out a question with at least two options.")
		return
	}

	snap, err := sess.StartActivity(spec, now, func(activityID string) {
		g.expireActivity(sess, activityID)
	})
	if err != nil {
		sess.NotifyTeacher("Another poll or quiz is already running.")
		return
	}

	g.persister.ActivityStarted(sess.LectureID, snap)
}

func (g *Gateway) expireActivity(sess *session.Session, activityID string) {
	snap, ok := sess.CompleteActivity(activityID, session.ReasonTimeout, time.Now().UTC())
	if !ok {
		return
	}
	g.persister.ActivityCompleted(snap)
}

// endLecture finishes any running activity, announces the end to the room,
// and tears the room down. Connections stay open; a later join or disconnect
// finds no session and no-ops.
func (g *Gateway) endLecture(sess *session.Session, now time.Time) {
	if id := sess.ActiveActivityID(); id != "" {
		if snap, ok := sess.CompleteActivity(id, session.ReasonManualEnd, now); ok {
			g.persister.ActivityCompleted(snap)
		}
	}

	sess.EndLecture(now)
	g.persister.LectureEnded(sess.LectureID, now)

	if g.transcriber != nil {
		g.transcriber.Close(sess.LectureID)
	}

	g.registry.Remove(sess.LectureID)
	sess.Shutdown()

	if g.assistant != nil {
		if transcript := sess.TranscriptText(); transcript != "" {
			go g.summarizeLecture(sess.LectureID, transcript)
		}
	}
}

// summarizeLecture runs after the room is torn down; nothing live waits on
// it, so the retries inside Summarize are fine here.
func (g *Gateway) summarizeLecture(lectureID, transcript string) {
	ctx, cancel := context.WithTimeout(context.Background(), summaryTimeout)
	defer cancel()

	summary, err := g.assistant.Summarize(ctx, transcript)
	if err != nil {
		log.Printf("gateway: summarize lecture %s: %v", lectureID, err)
		return
	}
	if summary == "" {
		return
	}
	g.persister.SaveSummary(lectureID, summary)
}
