package session

import "errors"

var (
	// ErrActivityRunning is returned by StartActivity while another poll or
	// quiz is still live in the session.
	ErrActivityRunning = errors.New("an activity is already running")

	ErrNoActiveActivity = errors.New("no activity is running")
	ErrActivityMismatch = errors.New("activity id does not match the running activity")
	ErrOptionOutOfRange = errors.New("selected option is out of range")
)
