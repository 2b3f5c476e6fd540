// Package bridge turns committed session events into durable writes. Writes
// run on a single worker goroutine so they never block a session lock, and
// failures are logged rather than propagated: the live room has already
// broadcast the state, and clients are not asked to un-see it.
package bridge

import (
	"log"
	"sync"
	"time"

	"github.com/classcast/classcast/internal/session"
	"github.com/classcast/classcast/internal/storage"
)

type Store interface {
	AddNote(lectureID, content string, slideNumber int, createdAt time.Time) error
	AddSlide(lectureID string, number int, title string, createdAt time.Time) error
	CreateActivity(rec storage.ActivityRecord) error
	CompleteActivity(id string, result storage.ActivityResult, completedAt time.Time) error
	EndLecture(id string, endedAt time.Time) error
	SetLectureSummary(id, summary string) error
}

type job struct {
	name string
	run  func() error
}

type Bridge struct {
	store Store
	jobs  chan job
	wg    sync.WaitGroup

	closeOnce sync.Once
}

func New(store Store) *Bridge {
	b := &Bridge{store: store, jobs: make(chan job, 256)}
	b.wg.Add(1)
	go b.worker()
	return b
}

func (b *Bridge) worker() {
	defer b.wg.Done()
	for j := range b.jobs {
		if err := j.run(); err != nil {
			log.Printf("bridge: %s: %v", j.name, err)
		}
	}
}

// Close drains outstanding writes and stops the worker.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		close(b.jobs)
	})
	b.wg.Wait()
}

// enqueue blocks when the queue is full; durable writes are not dropped, and
// backpressure here only ever delays the session pipeline worker, never a
// connection read loop.
func (b *Bridge) enqueue(name string, run func() error) {
	b.jobs <- job{name: name, run: run}
}

func (b *Bridge) SaveNote(lectureID string, note session.Note) {
	b.enqueue("save note", func() error {
		return b.store.AddNote(lectureID, note.Content, note.SlideNumber, note.CreatedAt)
	})
}

func (b *Bridge) SaveSlide(lectureID string, number int, title string, createdAt time.Time) {
	b.enqueue("save slide", func() error {
		return b.store.AddSlide(lectureID, number, title, createdAt)
	})
}

func (b *Bridge) ActivityStarted(lectureID string, snap session.Snapshot) {
	b.enqueue("save activity", func() error {
		return b.store.CreateActivity(storage.ActivityRecord{
			ID:            snap.ID,
			LectureID:     lectureID,
			TeacherID:     snap.TeacherID,
			Kind:          string(snap.Kind),
			Question:      snap.Question,
			Options:       snap.Options,
			CorrectOption: snap.CorrectOption,
			TimeLimitSec:  int(snap.TimeLimit / time.Second),
			Status:        storage.ActivityRunning,
			CreatedAt:     snap.StartedAt,
		})
	})
}

func (b *Bridge) ActivityCompleted(snap session.Snapshot) {
	b.enqueue("save activity result", func() error {
		counts := make([]int, len(snap.Results.OptionCounts))
		for i, c := range snap.Results.OptionCounts {
			counts[i] = c.Count
		}
		return b.store.CompleteActivity(snap.ID, storage.ActivityResult{
			TotalResponses:   snap.Results.TotalResponses,
			OptionCounts:     counts,
			CorrectResponses: snap.Results.CorrectResponses,
			Responses:        snap.Responses,
		}, snap.CompletedAt)
	})
}

func (b *Bridge) LectureEnded(lectureID string, endedAt time.Time) {
	b.enqueue("end lecture", func() error {
		return b.store.EndLecture(lectureID, endedAt)
	})
}

func (b *Bridge) SaveSummary(lectureID, summary string) {
	b.enqueue("save summary", func() error {
		return b.store.SetLectureSummary(lectureID, summary)
	})
}
