package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Lecture statuses as persisted by the outer CRUD surface. The realtime core
// only reads them (student joins require "active") and flips a lecture to
// completed when the teacher ends it.
const (
	LectureScheduled = "scheduled"
	LectureActive    = "active"
	LecturePaused    = "paused"
	LectureCompleted = "completed"
)

const (
	ActivityRunning   = "running"
	ActivityCompleted = "completed"
)

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	IsActive  bool   `json:"isActive"`
}

// Name returns the display name broadcast in participant events.
func (u User) Name() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type Lecture struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	TeacherID string     `json:"teacherId"`
	Status    string     `json:"status"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Summary   string     `json:"summary,omitempty"`
}

type Slide struct {
	Number    int       `json:"slideNumber"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// ActivityRecord is the durable form of a poll or quiz created during a
// live session.
type ActivityRecord struct {
	ID            string
	LectureID     string
	TeacherID     string
	Kind          string
	Question      string
	Options       []string
	CorrectOption int
	TimeLimitSec  int
	Status        string
	CreatedAt     time.Time
}

// ActivityResult is the frozen aggregation written exactly once when an
// activity completes.
type ActivityResult struct {
	TotalResponses   int
	OptionCounts     []int
	CorrectResponses int
	Responses        map[string]int
}

var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "classcast.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			role TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1
		);
	`); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS lectures (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			teacher_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'scheduled',
			start_time TEXT NOT NULL,
			end_time TEXT,
			summary TEXT NOT NULL DEFAULT '',
			FOREIGN KEY(teacher_id) REFERENCES users(id)
		);
	`); err != nil {
		return fmt.Errorf("create lectures table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			lecture_id TEXT NOT NULL,
			content TEXT NOT NULL,
			slide_number INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			FOREIGN KEY(lecture_id) REFERENCES lectures(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create notes table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS slides (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			lecture_id TEXT NOT NULL,
			slide_number INTEGER NOT NULL,
			title TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY(lecture_id) REFERENCES lectures(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create slides table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS activities (
			id TEXT PRIMARY KEY,
			lecture_id TEXT NOT NULL,
			teacher_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			question TEXT NOT NULL,
			options TEXT NOT NULL,
			correct_option INTEGER NOT NULL DEFAULT -1,
			time_limit_sec INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			completed_at TEXT,
			total_responses INTEGER NOT NULL DEFAULT 0,
			option_counts TEXT NOT NULL DEFAULT '[]',
			correct_responses INTEGER NOT NULL DEFAULT 0,
			responses TEXT NOT NULL DEFAULT '{}',
			FOREIGN KEY(lecture_id) REFERENCES lectures(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create activities table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_notes_lecture_id ON notes(lecture_id, created_at)"); err != nil {
		return fmt.Errorf("create notes index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_slides_lecture_id ON slides(lecture_id, slide_number)"); err != nil {
		return fmt.Errorf("create slides index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_activities_lecture_id ON activities(lecture_id, created_at)"); err != nil {
		return fmt.Errorf("create activities index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) CreateUser(u User) error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("user id is required")
	}

	active := 0
	if u.IsActive {
		active = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO users(id, email, first_name, last_name, role, is_active) VALUES(?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.FirstName, u.LastName, u.Role, active,
	)
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.ID, err)
	}
	return nil
}

func (s *SQLiteStore) FindUserByID(id string) (User, error) {
	row := s.db.QueryRow(
		`SELECT id, email, first_name, last_name, role, is_active FROM users WHERE id = ?`,
		id,
	)

	var u User
	var active int
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("query user %s: %w", id, err)
	}
	u.IsActive = active != 0

	return u, nil
}

func (s *SQLiteStore) CreateLecture(l Lecture) error {
	if strings.TrimSpace(l.ID) == "" {
		return errors.New("lecture id is required")
	}
	if l.Status == "" {
		l.Status = LectureScheduled
	}

	_, err := s.db.Exec(
		`INSERT INTO lectures(id, title, teacher_id, status, start_time) VALUES(?, ?, ?, ?, ?)`,
		l.ID, l.Title, l.TeacherID, l.Status,
		l.StartTime.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("create lecture %s: %w", l.ID, err)
	}
	return nil
}

func (s *SQLiteStore) FindLectureByID(id string) (Lecture, error) {
	row := s.db.QueryRow(
		`SELECT id, title, teacher_id, status, start_time, end_time, summary FROM lectures WHERE id = ?`,
		id,
	)

	var l Lecture
	var startTime string
	var endTime sql.NullString
	if err := row.Scan(&l.ID, &l.Title, &l.TeacherID, &l.Status, &startTime, &endTime, &l.Summary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lecture{}, ErrNotFound
		}
		return Lecture{}, fmt.Errorf("query lecture %s: %w", id, err)
	}

	parsedStart, err := time.Parse(time.RFC3339Nano, startTime)
	if err != nil {
		return Lecture{}, fmt.Errorf("parse lecture %s start_time: %w", id, err)
	}
	l.StartTime = parsedStart

	if endTime.Valid {
		parsedEnd, err := time.Parse(time.RFC3339Nano, endTime.String)
		if err != nil {
			return Lecture{}, fmt.Errorf("parse lecture %s end_time: %w", id, err)
		}
		l.EndTime = &parsedEnd
	}

	return l, nil
}

func (s *SQLiteStore) SetLectureStatus(id, status string) error {
	res, err := s.db.Exec(`UPDATE lectures SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("set lecture %s status: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *SQLiteStore) EndLecture(id string, endedAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE lectures SET status = ?, end_time = ? WHERE id = ?`,
		LectureCompleted,
		endedAt.UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("end lecture %s: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *SQLiteStore) SetLectureSummary(id, summary string) error {
	res, err := s.db.Exec(`UPDATE lectures SET summary = ? WHERE id = ?`, summary, id)
	if err != nil {
		return fmt.Errorf("set lecture %s summary: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *SQLiteStore) AddNote(lectureID, content string, slideNumber int, createdAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO notes(lecture_id, content, slide_number, created_at) VALUES(?, ?, ?, ?)`,
		lectureID,
		strings.TrimSpace(content),
		slideNumber,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("add note for lecture %s: %w", lectureID, err)
	}
	return nil
}

func (s *SQLiteStore) AddSlide(lectureID string, number int, title string, createdAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO slides(lecture_id, slide_number, title, created_at) VALUES(?, ?, ?, ?)`,
		lectureID,
		number,
		title,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("add slide for lecture %s: %w", lectureID, err)
	}
	return nil
}

func (s *SQLiteStore) GetSlides(lectureID string) ([]Slide, error) {
	rows, err := s.db.Query(
		`SELECT slide_number, title, created_at FROM slides WHERE lecture_id = ? ORDER BY slide_number ASC`,
		lectureID,
	)
	if err != nil {
		return nil, fmt.Errorf("query slides for lecture %s: %w", lectureID, err)
	}
	defer func() { _ = rows.Close() }()

	slides := make([]Slide, 0, 8)
	for rows.Next() {
		var sl Slide
		var createdAt string
		if err := rows.Scan(&sl.Number, &sl.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("scan slide for lecture %s: %w", lectureID, err)
		}

		parsed, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse slide created_at for lecture %s: %w", lectureID, err)
		}
		sl.CreatedAt = parsed

		slides = append(slides, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slide rows for lecture %s: %w", lectureID, err)
	}

	return slides, nil
}

func (s *SQLiteStore) CreateActivity(rec ActivityRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("activity id is required")
	}

	options, err := json.Marshal(rec.Options)
	if err != nil {
		return fmt.Errorf("marshal activity options: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO activities(id, lecture_id, teacher_id, kind, question, options, correct_option, time_limit_sec, status, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.LectureID, rec.TeacherID, rec.Kind, rec.Question,
		string(options), rec.CorrectOption, rec.TimeLimitSec, rec.Status,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("create activity %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) CompleteActivity(id string, result ActivityResult, completedAt time.Time) error {
	counts, err := json.Marshal(result.OptionCounts)
	if err != nil {
		return fmt.Errorf("marshal option counts: %w", err)
	}
	responses, err := json.Marshal(result.Responses)
	if err != nil {
		return fmt.Errorf("marshal responses: %w", err)
	}

	res, err := s.db.Exec(
		`UPDATE activities
		 SET status = ?, completed_at = ?, total_responses = ?, option_counts = ?, correct_responses = ?, responses = ?
		 WHERE id = ?`,
		ActivityCompleted,
		completedAt.UTC().Format(time.RFC3339Nano),
		result.TotalResponses,
		string(counts),
		result.CorrectResponses,
		string(responses),
		id,
	)
	if err != nil {
		return fmt.Errorf("complete activity %s: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *SQLiteStore) GetActivity(id string) (ActivityRecord, ActivityResult, error) {
	row := s.db.QueryRow(
		`SELECT id, lecture_id, teacher_id, kind, question, options, correct_option, time_limit_sec, status, created_at,
		        total_responses, option_counts, correct_responses, responses
		 FROM activities WHERE id = ?`,
		id,
	)

	var rec ActivityRecord
	var result ActivityResult
	var options, counts, responses, createdAt string
	if err := row.Scan(
		&rec.ID, &rec.LectureID, &rec.TeacherID, &rec.Kind, &rec.Question,
		&options, &rec.CorrectOption, &rec.TimeLimitSec, &rec.Status, &createdAt,
		&result.TotalResponses, &counts, &result.CorrectResponses, &responses,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ActivityRecord{}, ActivityResult{}, ErrNotFound
		}
		return ActivityRecord{}, ActivityResult{}, fmt.Errorf("query activity %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(options), &rec.Options); err != nil {
		return ActivityRecord{}, ActivityResult{}, fmt.Errorf("parse activity %s options: %w", id, err)
	}
	if err := json.Unmarshal([]byte(counts), &result.OptionCounts); err != nil {
		return ActivityRecord{}, ActivityResult{}, fmt.Errorf("parse activity %s option counts: %w", id, err)
	}
	if err := json.Unmarshal([]byte(responses), &result.Responses); err != nil {
		return ActivityRecord{}, ActivityResult{}, fmt.Errorf("parse activity %s responses: %w", id, err)
	}

	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return ActivityRecord{}, ActivityResult{}, fmt.Errorf("parse activity %s created_at: %w", id, err)
	}
	rec.CreatedAt = parsed

	return rec, result, nil
}

func requireRow(res sql.Result, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", id, err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
