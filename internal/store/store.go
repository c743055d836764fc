// Package store persists users, exams, and submissions.
//
// The Store interface is the repository capability the rest of the
// application depends on; SQLite is the production implementation and
// Memory is a fake with identical semantics for tests.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/examforge/examforge/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by mutating operations whose target document
// does not exist. Getters return (nil, nil) for missing documents.
var ErrNotFound = errors.New("store: not found")

// Store is the set of operations the application needs from its backing
// collections.
type Store interface {
	CreateUser(u model.User) error
	GetUser(id string) (*model.User, error)
	GetUserByEmail(email string) (*model.User, error)
	ListUsers() ([]model.User, error)
	DeleteUser(id string) error
	UserCount() (int, error)

	// PutExam creates the exam or replaces the full document.
	PutExam(e model.Exam) error
	GetExam(id string) (*model.Exam, error)
	ListExams() ([]model.Exam, error)
	ListExamsByTeacher(teacherID string) ([]model.Exam, error)
	// ListExamsForClassroom returns published exams targeting the classroom.
	ListExamsForClassroom(classroom string) ([]model.Exam, error)
	// SetExamPublished updates only the published flag.
	SetExamPublished(id string, published bool) error
	// DeleteExam removes the exam and all of its submissions.
	DeleteExam(id string) error

	PutSubmission(s model.Submission) error
	GetSubmission(id string) (*model.Submission, error)
	GetSubmissionForStudent(examID, studentID string) (*model.Submission, error)
	ListSubmissionsByExam(examID string) ([]model.Submission, error)
	ListSubmissionsByStudent(studentID string) ([]model.Submission, error)
	// UpdateSubmissionScore records a manual score: it reads the
	// submission, sets manual and total = auto + manual, and marks it
	// graded. Last write wins.
	UpdateSubmissionScore(id string, manualScore int) error

	CreateAuthSession(userID string) (string, error)
	GetAuthSession(token string) (*model.AuthSession, error)
	DeleteAuthSession(token string) error
	CleanupExpiredSessions() error

	Close() error
}

// SQLite is the sqlite-backed Store.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// Open opens (and migrates) the sqlite database at path.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		student_code TEXT NOT NULL DEFAULT '',
		teacher_code TEXT NOT NULL DEFAULT '',
		classroom TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exams (
		id TEXT PRIMARY KEY,
		teacher_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL,
		target_classrooms TEXT NOT NULL DEFAULT '[]',
		questions TEXT NOT NULL DEFAULT '[]',
		published INTEGER NOT NULL DEFAULT 0,
		time_limit_minutes INTEGER,
		valid_from DATETIME,
		valid_until DATETIME,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		exam_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		student_name TEXT NOT NULL,
		student_code TEXT NOT NULL,
		answers TEXT NOT NULL DEFAULT '{}',
		auto_score INTEGER NOT NULL DEFAULT 0,
		manual_score INTEGER NOT NULL DEFAULT 0,
		total_score INTEGER NOT NULL DEFAULT 0,
		submitted_at DATETIME NOT NULL,
		graded INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exams_teacher ON exams(teacher_id);
	CREATE INDEX IF NOT EXISTS idx_submissions_exam ON submissions(exam_id);
	CREATE INDEX IF NOT EXISTS idx_submissions_student ON submissions(student_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

const examColumns = `id, teacher_id, title, description, subject, target_classrooms,
	questions, published, time_limit_minutes, valid_from, valid_until, created_at`

// PutExam creates or fully replaces an exam document.
func (s *SQLite) PutExam(e model.Exam) error {
	classrooms, err := json.Marshal(e.TargetClassrooms)
	if err != nil {
		return fmt.Errorf("marshal classrooms: %w", err)
	}
	questions, err := json.Marshal(e.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}

	var timeLimit sql.NullInt64
	if e.TimeLimitMinutes != nil {
		timeLimit = sql.NullInt64{Int64: int64(*e.TimeLimitMinutes), Valid: true}
	}
	var from, until sql.NullTime
	if e.ValidFrom != nil {
		from = sql.NullTime{Time: *e.ValidFrom, Valid: true}
	}
	if e.ValidUntil != nil {
		until = sql.NullTime{Time: *e.ValidUntil, Valid: true}
	}

	_, err = s.db.Exec(
		`INSERT INTO exams (`+examColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			teacher_id = excluded.teacher_id,
			title = excluded.title,
			description = excluded.description,
			subject = excluded.subject,
			target_classrooms = excluded.target_classrooms,
			questions = excluded.questions,
			published = excluded.published,
			time_limit_minutes = excluded.time_limit_minutes,
			valid_from = excluded.valid_from,
			valid_until = excluded.valid_until,
			created_at = excluded.created_at`,
		e.ID, e.TeacherID, e.Title, e.Description, e.Subject, string(classrooms),
		string(questions), e.Published, timeLimit, from, until, e.CreatedAt,
	)
	return err
}

func scanExam(row interface{ Scan(...any) error }) (*model.Exam, error) {
	var e model.Exam
	var classrooms, questions string
	var timeLimit sql.NullInt64
	var from, until sql.NullTime
	err := row.Scan(&e.ID, &e.TeacherID, &e.Title, &e.Description, &e.Subject,
		&classrooms, &questions, &e.Published, &timeLimit, &from, &until, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(classrooms), &e.TargetClassrooms); err != nil {
		return nil, fmt.Errorf("unmarshal classrooms: %w", err)
	}
	if err := json.Unmarshal([]byte(questions), &e.Questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	if timeLimit.Valid {
		n := int(timeLimit.Int64)
		e.TimeLimitMinutes = &n
	}
	if from.Valid {
		t := from.Time
		e.ValidFrom = &t
	}
	if until.Valid {
		t := until.Time
		e.ValidUntil = &t
	}
	return &e, nil
}

// GetExam returns an exam by ID, or nil if absent.
func (s *SQLite) GetExam(id string) (*model.Exam, error) {
	e, err := scanExam(s.db.QueryRow(`SELECT `+examColumns+` FROM exams WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (s *SQLite) queryExams(query string, args ...any) ([]model.Exam, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

// ListExams returns all exams, newest first.
func (s *SQLite) ListExams() ([]model.Exam, error) {
	return s.queryExams(`SELECT ` + examColumns + ` FROM exams ORDER BY created_at DESC`)
}

// ListExamsByTeacher returns the exams owned by a teacher.
func (s *SQLite) ListExamsByTeacher(teacherID string) ([]model.Exam, error) {
	return s.queryExams(
		`SELECT `+examColumns+` FROM exams WHERE teacher_id = ? ORDER BY created_at DESC`,
		teacherID)
}

// ListExamsForClassroom returns published exams whose target classroom
// list contains the given classroom.
func (s *SQLite) ListExamsForClassroom(classroom string) ([]model.Exam, error) {
	return s.queryExams(
		`SELECT `+examColumns+` FROM exams
		 WHERE published = 1
		   AND EXISTS (SELECT 1 FROM json_each(exams.target_classrooms) WHERE json_each.value = ?)
		 ORDER BY created_at DESC`,
		classroom)
}

// SetExamPublished updates only the published flag.
func (s *SQLite) SetExamPublished(id string, published bool) error {
	res, err := s.db.Exec(`UPDATE exams SET published = ? WHERE id = ?`, published, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExam removes the exam and its submissions in one transaction.
func (s *SQLite) DeleteExam(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM submissions WHERE exam_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM exams WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

const submissionColumns = `id, exam_id, student_id, student_name, student_code,
	answers, auto_score, manual_score, total_score, submitted_at, graded`

// PutSubmission creates or replaces a submission document. Submission IDs
// are deterministic per (exam, student), so a racing duplicate write lands
// on the same key instead of creating a second row.
func (s *SQLite) PutSubmission(sub model.Submission) error {
	answers, err := json.Marshal(sub.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO submissions (`+submissionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			answers = excluded.answers,
			auto_score = excluded.auto_score,
			manual_score = excluded.manual_score,
			total_score = excluded.total_score,
			submitted_at = excluded.submitted_at,
			graded = excluded.graded`,
		sub.ID, sub.ExamID, sub.StudentID, sub.StudentName, sub.StudentCode,
		string(answers), sub.AutoScore, sub.ManualScore, sub.TotalScore,
		sub.SubmittedAt, sub.Graded,
	)
	return err
}

func scanSubmission(row interface{ Scan(...any) error }) (*model.Submission, error) {
	var sub model.Submission
	var answers string
	err := row.Scan(&sub.ID, &sub.ExamID, &sub.StudentID, &sub.StudentName,
		&sub.StudentCode, &answers, &sub.AutoScore, &sub.ManualScore,
		&sub.TotalScore, &sub.SubmittedAt, &sub.Graded)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(answers), &sub.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	return &sub, nil
}

// GetSubmission returns a submission by ID, or nil if absent.
func (s *SQLite) GetSubmission(id string) (*model.Submission, error) {
	sub, err := scanSubmission(s.db.QueryRow(
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sub, err
}

// GetSubmissionForStudent returns the submission a student made for an
// exam, or nil if they have not submitted.
func (s *SQLite) GetSubmissionForStudent(examID, studentID string) (*model.Submission, error) {
	sub, err := scanSubmission(s.db.QueryRow(
		`SELECT `+submissionColumns+` FROM submissions WHERE exam_id = ? AND student_id = ?`,
		examID, studentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sub, err
}

func (s *SQLite) querySubmissions(query string, args ...any) ([]model.Submission, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// ListSubmissionsByExam returns all submissions for an exam.
func (s *SQLite) ListSubmissionsByExam(examID string) ([]model.Submission, error) {
	return s.querySubmissions(
		`SELECT `+submissionColumns+` FROM submissions WHERE exam_id = ? ORDER BY submitted_at`,
		examID)
}

// ListSubmissionsByStudent returns all submissions made by a student.
func (s *SQLite) ListSubmissionsByStudent(studentID string) ([]model.Submission, error) {
	return s.querySubmissions(
		`SELECT `+submissionColumns+` FROM submissions WHERE student_id = ? ORDER BY submitted_at DESC`,
		studentID)
}

// UpdateSubmissionScore records a manual score on a submission. The total
// is recomputed as auto + manual and the submission is marked graded.
func (s *SQLite) UpdateSubmissionScore(id string, manualScore int) error {
	sub, err := s.GetSubmission(id)
	if err != nil {
		return err
	}
	if sub == nil {
		return ErrNotFound
	}
	_, err = s.db.Exec(
		`UPDATE submissions SET manual_score = ?, total_score = ?, graded = 1 WHERE id = ?`,
		manualScore, sub.AutoScore+manualScore, id,
	)
	return err
}

// authSessionTTL bounds how long a login cookie stays valid.
const authSessionTTL = 24 * time.Hour
