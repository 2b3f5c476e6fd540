package session

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindPoll Kind = "poll"
	KindQuiz Kind = "quiz"
)

type CompletionReason string

const (
	ReasonTimeout   CompletionReason = "timeout"
	ReasonManualEnd CompletionReason = "manual"
	ReasonAbandoned CompletionReason = "abandoned"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
)

// ActivitySpec is the input to StartActivity, extracted from a voice command.
type ActivitySpec struct {
	Kind          Kind
	Question      string
	Options       []string
	CorrectOption int // -1 for polls
	TimeLimit     time.Duration
	TeacherID     string
}

// Activity is the single live poll or quiz of a session. Responses map
// student id to chosen option index; a later response overwrites an earlier
// one.
type Activity struct {
	ID            string
	Kind          Kind
	Question      string
	Options       []string
	CorrectOption int
	TimeLimit     time.Duration
	TeacherID     string
	Status        string
	StartedAt     time.Time

	responses map[string]int
	timer     *time.Timer
}

type OptionCount struct {
	OptionIndex int `json:"optionIndex"`
	Count       int `json:"count"`
}

// Results is the aggregation broadcast on every response and frozen at
// completion. It is recomputed from the responses map each time rather than
// kept as incremental counters.
type Results struct {
	TotalResponses   int           `json:"totalResponses"`
	OptionCounts     []OptionCount `json:"optionCounts"`
	CorrectResponses int           `json:"correctResponses"`
}

// Snapshot is the immutable view of an activity handed to the persistence
// bridge and to tests.
type Snapshot struct {
	ID            string
	Kind          Kind
	Question      string
	Options       []string
	CorrectOption int
	TimeLimit     time.Duration
	TeacherID     string
	Status        string
	StartedAt     time.Time
	CompletedAt   time.Time
	Reason        CompletionReason
	Results       Results
	Responses     map[string]int
}

// StartActivity creates the session's live activity and schedules its
// deferred completion. It fails with ErrActivityRunning while another
// activity is live. onExpire is invoked with the activity id when the time
// limit elapses; the caller routes it into CompleteActivity, which is where
// the stale-timer guard lives.
func (s *Session) StartActivity(spec ActivitySpec, now time.Time, onExpire func(activityID string)) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activity != nil {
		return Snapshot{}, ErrActivityRunning
	}

	act := &Activity{
		ID:            uuid.NewString(),
		Kind:          spec.Kind,
		Question:      spec.Question,
		Options:       append([]string(nil), spec.Options...),
		CorrectOption: spec.CorrectOption,
		TimeLimit:     spec.TimeLimit,
		TeacherID:     spec.TeacherID,
		Status:        StatusRunning,
		StartedAt:     now.UTC(),
		responses:     make(map[string]int),
	}
	if onExpire != nil {
		id := act.ID
		act.timer = time.AfterFunc(spec.TimeLimit, func() { onExpire(id) })
	}
	s.activity = act

	payload := marshalEvent(activityStartedEvent{
		Event:     NewEvent(string(act.Kind)+"-started", now),
		QuizID:    act.ID,
		Question:  act.Question,
		Options:   act.Options,
		TimeLimit: int(act.TimeLimit / time.Second),
	})
	for _, p := range s.students {
		send(p, payload)
	}

	return act.snapshotLocked(), nil
}

// RecordResponse applies a student's vote with overwrite semantics and
// broadcasts the recomputed aggregation to the whole room.
func (s *Session) RecordResponse(studentID, activityID string, option int, now time.Time) (Results, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	act := s.activity
	if act == nil || act.Status != StatusRunning {
		return Results{}, ErrNoActiveActivity
	}
	if act.ID != activityID {
		return Results{}, ErrActivityMismatch
	}
	if option < 0 || option >= len(act.Options) {
		return Results{}, ErrOptionOutOfRange
	}

	act.responses[studentID] = option
	results := act.resultsLocked()

	s.broadcastLocked(marshalEvent(resultsUpdatedEvent{
		Event:   NewEvent("quiz-results-updated", now),
		QuizID:  act.ID,
		Results: results,
	}))

	return results, nil
}

// CompleteActivity transitions the live activity to completed exactly once.
// Both the deferred timeout and a manual end funnel through here; a call
// whose id no longer names the live activity is a no-op, which is what makes
// the timeout/manual race safe.
func (s *Session) CompleteActivity(activityID string, reason CompletionReason, now time.Time) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	act := s.activity
	if act == nil || act.ID != activityID || act.Status != StatusRunning {
		return Snapshot{}, false
	}

	if act.timer != nil {
		act.timer.Stop()
		act.timer = nil
	}
	act.Status = StatusCompleted
	s.activity = nil

	snap := act.snapshotLocked()
	snap.CompletedAt = now.UTC()
	snap.Reason = reason

	ended := activityEndedEvent{
		Event:   NewEvent(string(act.Kind)+"-ended", now),
		QuizID:  act.ID,
		Results: snap.Results,
	}
	if act.Kind == KindQuiz {
		correct := act.CorrectOption
		ended.CorrectAnswer = &correct
	}
	s.broadcastLocked(marshalEvent(ended))

	return snap, true
}

// ActiveActivityID returns the id of the live activity, or "" when none is
// running.
func (s *Session) ActiveActivityID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activity == nil {
		return ""
	}
	return s.activity.ID
}

// resultsLocked recomputes the aggregation from the responses map. O(options
// x responses) per call, immune to counter drift.
func (a *Activity) resultsLocked() Results {
	counts := make([]OptionCount, len(a.Options))
	for i := range counts {
		counts[i].OptionIndex = i
	}

	results := Results{TotalResponses: len(a.responses), OptionCounts: counts}
	for _, option := range a.responses {
		counts[option].Count++
		if a.Kind == KindQuiz && option == a.CorrectOption {
			results.CorrectResponses++
		}
	}

	return results
}

func (a *Activity) snapshotLocked() Snapshot {
	responses := make(map[string]int, len(a.responses))
	for k, v := range a.responses {
		responses[k] = v
	}

	return Snapshot{
		ID:            a.ID,
		Kind:          a.Kind,
		Question:      a.Question,
		Options:       append([]string(nil), a.Options...),
		CorrectOption: a.CorrectOption,
		TimeLimit:     a.TimeLimit,
		TeacherID:     a.TeacherID,
		Status:        a.Status,
		StartedAt:     a.StartedAt,
		Results:       a.resultsLocked(),
		Responses:     responses,
	}
}
