package session

import (
	"encoding/json"
	"log"
	"time"
)

// Event is the common envelope of every outbound realtime event.
type Event struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

func NewEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}

// UserRef identifies a participant in join/leave events.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type participantJoinedEvent struct {
	Event
	User UserRef `json:"user"`
}

type participantLeftEvent struct {
	Event
	User UserRef `json:"user"`
}

type newNoteEvent struct {
	Event
	Content     string `json:"content"`
	SlideNumber int    `json:"slideNumber"`
}

type transcriptInterimEvent struct {
	Event
	Text string `json:"text"`
}

type slideChangedEvent struct {
	Event
	SlideNumber int    `json:"slideNumber"`
	SlideTitle  string `json:"slideTitle"`
}

type activityStartedEvent struct {
	Event
	QuizID    string   `json:"quizId"`
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	TimeLimit int      `json:"timeLimit"`
}

type activityEndedEvent struct {
	Event
	QuizID        string  `json:"quizId"`
	Results       Results `json:"results"`
	CorrectAnswer *int    `json:"correctAnswer,omitempty"`
}

type resultsUpdatedEvent struct {
	Event
	QuizID  string  `json:"quizId"`
	Results Results `json:"results"`
}

type responseRecordedEvent struct {
	Event
	QuizID         string `json:"quizId"`
	SelectedOption int    `json:"selectedOption"`
}

type timerStartedEvent struct {
	Event
	Duration int `json:"duration"`
}

type lectureEndedEvent struct {
	Event
}

type errorEvent struct {
	Event
	Message string `json:"message"`
}

// ErrorPayload encodes an error event for a single connection.
func ErrorPayload(msg string) []byte {
	return marshalEvent(errorEvent{Event: NewEvent("error", time.Now().UTC()), Message: msg})
}

// ResponseRecordedPayload encodes the ack sent to a student whose vote was
// accepted.
func ResponseRecordedPayload(quizID string, selectedOption int) []byte {
	return marshalEvent(responseRecordedEvent{
		Event:          NewEvent("response-recorded", time.Now().UTC()),
		QuizID:         quizID,
		SelectedOption: selectedOption,
	})
}

func marshalEvent(event any) []byte {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("session: event marshal error: %v", err)
		return nil
	}
	return payload
}
