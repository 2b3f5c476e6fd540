package transcribe

// Result is one incremental transcription event. Interim results (IsFinal
// false) are display-only; finalized text feeds note and command generation.
// Backend failures arrive as a Result with Err set, on the same callback as
// transcripts, so a bad stream can never panic into the audio-frame path.
type Result struct {
	Text       string
	Confidence float64
	IsFinal    bool
	Err        error
}

// Streamer maintains one streaming speech-to-text connection per actively
// recording session.
type Streamer interface {
	// Open establishes the backend stream for a session and arranges for
	// onResult to be invoked for interim and finalized transcripts. Opening
	// an already-open session is a no-op.
	Open(sessionID string, onResult func(Result)) error

	// SendFrame forwards raw audio. Frames for sessions with no open stream
	// are silently dropped.
	SendFrame(sessionID string, frame []byte)

	// Close terminates the backend stream and releases resources. Safe to
	// call when no stream is open.
	Close(sessionID string)
}
