package transcribe

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listen "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// DeepgramConfig carries the transcription options applied to every stream.
type DeepgramConfig struct {
	APIKey     string
	Model      string
	Language   string
	SampleRate int
}

type dgStream struct {
	writer io.Writer
	stop   func()
}

// Deepgram implements Streamer with one live websocket per session.
type Deepgram struct {
	cfg DeepgramConfig
	ctx context.Context

	mu      sync.Mutex
	streams map[string]*dgStream
}

var initOnce sync.Once

func NewDeepgram(ctx context.Context, cfg DeepgramConfig) *Deepgram {
	initOnce.Do(func() {
		listen.Init(listen.InitLib{LogLevel: listen.LogLevelDefault})
	})

	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}

	return &Deepgram{cfg: cfg, ctx: ctx, streams: make(map[string]*dgStream)}
}

func (d *Deepgram) Open(sessionID string, onResult func(Result)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.streams[sessionID]; ok {
		return nil
	}

	cOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.cfg.Model,
		Language:       d.cfg.Language,
		Punctuate:      true,
		SmartFormat:    true,
		InterimResults: true,
		Encoding:       "linear16",
		SampleRate:     d.cfg.SampleRate,
		Channels:       1,
	}

	dgClient, err := listen.NewWSUsingCallback(d.ctx, d.cfg.APIKey, cOptions, tOptions, liveCallback{sessionID: sessionID, onResult: onResult})
	if err != nil {
		return fmt.Errorf("create transcription stream for %s: %w", sessionID, err)
	}
	if ok := dgClient.Connect(); !ok {
		return fmt.Errorf("connect transcription stream for %s", sessionID)
	}

	d.streams[sessionID] = &dgStream{
		writer: dgClient,
		stop:   dgClient.Stop,
	}
	return nil
}

func (d *Deepgram) SendFrame(sessionID string, frame []byte) {
	d.mu.Lock()
	stream := d.streams[sessionID]
	d.mu.Unlock()

	if stream == nil {
		return
	}
	if _, err := stream.writer.Write(frame); err != nil {
		log.Printf("transcribe: write frame for session %s: %v", sessionID, err)
	}
}

func (d *Deepgram) Close(sessionID string) {
	d.mu.Lock()
	stream := d.streams[sessionID]
	delete(d.streams, sessionID)
	d.mu.Unlock()

	if stream != nil {
		stream.stop()
	}
}

// liveCallback adapts Deepgram's callback interface to the onResult contract.
type liveCallback struct {
	sessionID string
	onResult  func(Result)
}

func (c liveCallback) Message(mr *api.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}

	alt := mr.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return nil
	}

	c.onResult(Result{Text: text, Confidence: alt.Confidence, IsFinal: mr.IsFinal})
	return nil
}

func (c liveCallback) Open(*api.OpenResponse) error {
	log.Printf("transcribe: stream open for session %s", c.sessionID)
	return nil
}

func (c liveCallback) Metadata(*api.MetadataResponse) error { return nil }

func (c liveCallback) SpeechStarted(*api.SpeechStartedResponse) error { return nil }

func (c liveCallback) UtteranceEnd(*api.UtteranceEndResponse) error { return nil }

func (c liveCallback) Close(*api.CloseResponse) error {
	log.Printf("transcribe: stream closed for session %s", c.sessionID)
	return nil
}

func (c liveCallback) Error(er *api.ErrorResponse) error {
	c.onResult(Result{Err: fmt.Errorf("transcription backend %s: %s", er.ErrCode, er.Description)})
	return nil
}

func (c liveCallback) UnhandledEvent([]byte) error { return nil }
