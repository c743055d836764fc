// Package lifecycle drives an exam attempt from start to graded submission.
//
// Attempts live in memory: starting an exam opens a session that collects
// draft answers and, for timed exams, arms an auto-submit timer. Submitting
// grades the answers and persists exactly one submission per (exam, student).
package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/examforge/examforge/internal/exam"
	"github.com/examforge/examforge/internal/grader"
	"github.com/examforge/examforge/internal/model"
	"github.com/examforge/examforge/internal/store"
)

var (
	// ErrAlreadySubmitted rejects a second attempt at an exam.
	ErrAlreadySubmitted = errors.New("lifecycle: exam already submitted")
	// ErrNotAvailable rejects entry outside the availability window.
	ErrNotAvailable = errors.New("lifecycle: exam not available")
	// ErrSubmitInFlight rejects a submit while another one for the same
	// attempt is still being persisted.
	ErrSubmitInFlight = errors.New("lifecycle: submit already in flight")
	// ErrNoSession means the student has no open attempt for the exam.
	ErrNoSession = errors.New("lifecycle: no active session")
)

type sessionKey struct {
	examID    string
	studentID string
}

type session struct {
	exam      model.Exam
	student   model.User
	startedAt time.Time
	deadline  *time.Time
	answers   map[string]string
	timer     *time.Timer
}

// SessionState is what a client needs to render an open attempt.
type SessionState struct {
	ExamID           string            `json:"examId"`
	StartedAt        time.Time         `json:"startedAt"`
	Deadline         *time.Time        `json:"deadline,omitempty"`
	RemainingSeconds *int              `json:"remainingSeconds,omitempty"`
	Answers          map[string]string `json:"answers"`
}

// Manager owns all open attempts.
type Manager struct {
	store store.Store
	now   func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*session
	inflight map[sessionKey]bool
}

// NewManager creates a Manager on top of the given store.
func NewManager(s store.Store) *Manager {
	return &Manager{
		store:    s,
		now:      time.Now,
		sessions: make(map[sessionKey]*session),
		inflight: make(map[sessionKey]bool),
	}
}

// Start opens (or resumes) an attempt at a published exam. Starting is
// idempotent: a second call returns the existing session with its original
// deadline. A timed exam arms an auto-submit timer for whatever draft
// answers exist when time runs out.
func (m *Manager) Start(e model.Exam, student model.User) (*SessionState, error) {
	sub, err := m.store.GetSubmissionForStudent(e.ID, student.ID)
	if err != nil {
		return nil, fmt.Errorf("check submission: %w", err)
	}
	if sub != nil {
		return nil, ErrAlreadySubmitted
	}
	now := m.now()
	if exam.AvailabilityFor(e, false, now) != exam.Active {
		return nil, ErrNotAvailable
	}

	key := sessionKey{examID: e.ID, studentID: student.ID}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[key]; ok {
		return m.stateLocked(sess), nil
	}

	sess := &session{
		exam:      e,
		student:   student,
		startedAt: now,
		answers:   make(map[string]string),
	}
	if e.TimeLimitMinutes != nil {
		d := now.Add(time.Duration(*e.TimeLimitMinutes) * time.Minute)
		sess.deadline = &d
		sess.timer = time.AfterFunc(d.Sub(now), func() { m.expire(key) })
	}
	m.sessions[key] = sess
	slog.Info("exam attempt started", "exam", e.ID, "student", student.ID, "deadline", sess.deadline)
	return m.stateLocked(sess), nil
}

// State returns the open attempt for (exam, student), or ErrNoSession.
func (m *Manager) State(examID, studentID string) (*SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionKey{examID: examID, studentID: studentID}]
	if !ok {
		return nil, ErrNoSession
	}
	return m.stateLocked(sess), nil
}

func (m *Manager) stateLocked(sess *session) *SessionState {
	st := &SessionState{
		ExamID:    sess.exam.ID,
		StartedAt: sess.startedAt,
		Deadline:  sess.deadline,
		Answers:   make(map[string]string, len(sess.answers)),
	}
	for k, v := range sess.answers {
		st.Answers[k] = v
	}
	if sess.deadline != nil {
		remaining := int(sess.deadline.Sub(m.now()).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		st.RemainingSeconds = &remaining
	}
	return st
}

// SaveAnswer records a draft answer on an open attempt. Drafts are what the
// auto-submit timer turns in if time runs out.
func (m *Manager) SaveAnswer(examID, studentID, questionID, answer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionKey{examID: examID, studentID: studentID}]
	if !ok {
		return ErrNoSession
	}
	sess.answers[questionID] = answer
	return nil
}

// Submit grades the attempt and persists the submission. The given answers
// are merged over the saved drafts, so a final form post wins over stale
// autosaves. A second concurrent submit for the same attempt gets
// ErrSubmitInFlight; if persisting fails the guard is released so the
// student can retry.
func (m *Manager) Submit(examID, studentID string, answers map[string]string) (*model.Submission, error) {
	key := sessionKey{examID: examID, studentID: studentID}

	m.mu.Lock()
	if m.inflight[key] {
		m.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	sess, ok := m.sessions[key]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNoSession
	}
	final := make(map[string]string, len(sess.answers)+len(answers))
	for k, v := range sess.answers {
		final[k] = v
	}
	for k, v := range answers {
		final[k] = v
	}
	m.inflight[key] = true
	m.mu.Unlock()

	existing, err := m.store.GetSubmissionForStudent(examID, studentID)
	if err != nil {
		m.release(key)
		return nil, fmt.Errorf("check submission: %w", err)
	}
	if existing != nil {
		m.close(key)
		return nil, ErrAlreadySubmitted
	}

	score := grader.SafeGrade(sess.exam, final)
	sub := model.Submission{
		ID:          SubmissionID(examID, studentID),
		ExamID:      examID,
		StudentID:   studentID,
		StudentName: sess.student.Name,
		StudentCode: sess.student.StudentCode,
		Answers:     final,
		AutoScore:   score,
		TotalScore:  score,
		SubmittedAt: m.now(),
	}
	if err := m.store.PutSubmission(sub); err != nil {
		m.release(key)
		return nil, fmt.Errorf("persist submission: %w", err)
	}

	m.close(key)
	slog.Info("exam submitted", "exam", examID, "student", studentID, "score", score)
	return &sub, nil
}

// release clears only the in-flight flag, keeping the session so the
// student can retry a failed submit.
func (m *Manager) release(key sessionKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, key)
}

// close tears the attempt down after a successful (or moot) submit.
func (m *Manager) close(key sessionKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[key]; ok && sess.timer != nil {
		sess.timer.Stop()
	}
	delete(m.sessions, key)
	delete(m.inflight, key)
}

// expire is the auto-submit path: the timer turns in whatever drafts exist.
func (m *Manager) expire(key sessionKey) {
	_, err := m.Submit(key.examID, key.studentID, nil)
	switch {
	case err == nil:
		slog.Info("exam auto-submitted on deadline", "exam", key.examID, "student", key.studentID)
	case errors.Is(err, ErrAlreadySubmitted), errors.Is(err, ErrNoSession):
		// Student beat the timer.
	default:
		slog.Error("auto-submit failed", "exam", key.examID, "student", key.studentID, "error", err)
	}
}

// RecordManualScore adds a teacher-assigned score on top of the automatic
// one and marks the submission graded.
func (m *Manager) RecordManualScore(submissionID string, manualScore int) error {
	if manualScore < 0 {
		return fmt.Errorf("manual score must not be negative, got %d", manualScore)
	}
	return m.store.UpdateSubmissionScore(submissionID, manualScore)
}

// submissionNamespace keys deterministic submission IDs. Two racing submits
// for the same attempt produce the same ID and land on the same row.
var submissionNamespace = uuid.MustParse("8e2d5c2e-4b3f-4a4b-9f3a-1a2b3c4d5e6f")

// SubmissionID derives the stable submission ID for an (exam, student) pair.
func SubmissionID(examID, studentID string) string {
	return uuid.NewSHA1(submissionNamespace, []byte(examID+"/"+studentID)).String()
}
