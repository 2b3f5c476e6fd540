package gateway

import (
	"encoding/json"
	"log"
	"time"

	"github.com/classcast/classcast/internal/session"
	"github.com/classcast/classcast/internal/storage"
)

type lectureRef struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// lectureStateEvent is the snapshot sent to a connection right after it joins,
// so late joiners catch up without replaying history.
type lectureStateEvent struct {
	session.Event
	Lecture      lectureRef      `json:"lecture"`
	CurrentSlide int             `json:"currentSlide"`
	Notes        []session.Note  `json:"notes"`
	Slides       []storage.Slide `json:"slides"`
}

func lectureStatePayload(lecture storage.Lecture, state session.StateSnapshot, slides []storage.Slide) []byte {
	if state.Notes == nil {
		state.Notes = []session.Note{}
	}
	if slides == nil {
		slides = []storage.Slide{}
	}

	payload, err := json.Marshal(lectureStateEvent{
		Event:        session.NewEvent("lecture-state", time.Now().UTC()),
		Lecture:      lectureRef{ID: lecture.ID, Title: lecture.Title, Status: lecture.Status},
		CurrentSlide: state.CurrentSlide,
		Notes:        state.Notes,
		Slides:       slides,
	})
	if err != nil {
		log.Printf("gateway: marshal lecture state: %v", err)
		return nil
	}
	return payload
}
