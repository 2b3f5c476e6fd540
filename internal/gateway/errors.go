package gateway

import (
	"errors"

	"github.com/classcast/classcast/internal/session"
	"github.com/classcast/classcast/internal/storage"
)

var (
	ErrNotYourLecture   = errors.New("lecture belongs to another teacher")
	ErrLectureNotActive = errors.New("lecture is not active")
	ErrNotInLecture     = errors.New("not joined to a lecture")
	ErrStudentsOnly     = errors.New("students only")
)

// errorMessage maps an operation failure to the client-facing message carried
// by the error event. Anything unmapped is reported generically; internal
// details stay in the server log.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "Lecture not found"
	case errors.Is(err, ErrNotYourLecture):
		return "You can only join your own lectures"
	case errors.Is(err, ErrLectureNotActive):
		return "Lecture is not active"
	case errors.Is(err, ErrNotInLecture):
		return "Join a lecture first"
	case errors.Is(err, ErrStudentsOnly):
		return "Only students can respond"
	case errors.Is(err, session.ErrNoActiveActivity):
		return "No quiz or poll is currently running"
	case errors.Is(err, session.ErrActivityMismatch):
		return "That quiz or poll has already ended"
	case errors.Is(err, session.ErrOptionOutOfRange):
		return "Invalid option selected"
	default:
		return "Something went wrong"
	}
}
