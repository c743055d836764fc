package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// RoleStudent is a student user role.
	RoleStudent UserRole = "student"
	// RoleTeacher is a teacher user role.
	RoleTeacher UserRole = "teacher"
	// RoleAdmin is an admin user role.
	RoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	StudentCode  string    `json:"student_code,omitempty"`
	TeacherCode  string    `json:"teacher_code,omitempty"`
	Classroom    string    `json:"classroom,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// QuestionType discriminates the question variants.
type QuestionType string

const (
	MultipleChoice QuestionType = "mcq"
	TrueFalse      QuestionType = "true_false"
	FillBlank      QuestionType = "fill_blank"
	ShortAnswer    QuestionType = "short_answer"
	LongAnswer     QuestionType = "long_answer"
)

// Question is one exam question. Which answer-key fields are meaningful
// depends on Type; long-answer questions carry none and are graded
// manually.
type Question struct {
	ID   string       `json:"id"`
	Type QuestionType `json:"type"`
	Text string       `json:"text"`
	// Marks is the point value awarded for a correct answer. Always > 0
	// for a valid question.
	Marks int `json:"marks"`
	// Options and CorrectOptionIndex apply to multiple-choice questions.
	Options            []string `json:"options,omitempty"`
	CorrectOptionIndex int      `json:"correct_option_index,omitempty"`
	// CorrectAnswerText is the expected answer for true/false, fill-blank
	// and (optionally) short-answer questions. For true/false it is one of
	// the two label strings the exam renders, compared verbatim.
	CorrectAnswerText string `json:"correct_answer_text,omitempty"`
	// Keywords are acceptable substrings for short-answer questions.
	Keywords []string `json:"keywords,omitempty"`
}

// mcqDefaultOptions is the number of empty options a new multiple-choice
// question starts with in the builder.
const mcqDefaultOptions = 4

// NewQuestion returns a question of the given type with builder defaults
// applied: one mark, and for multiple choice four empty options with the
// first marked correct.
func NewQuestion(id string, t QuestionType) Question {
	q := Question{ID: id, Type: t, Marks: 1}
	if t == MultipleChoice {
		q.Options = make([]string, mcqDefaultOptions)
		q.CorrectOptionIndex = 0
	}
	return q
}

// Redacted returns a copy of the question with all answer-key fields
// stripped, safe to hand to a student taking the exam.
func (q Question) Redacted() Question {
	q.CorrectOptionIndex = 0
	q.CorrectAnswerText = ""
	q.Keywords = nil
	return q
}

// Exam is an exam definition owned by a teacher.
type Exam struct {
	ID               string     `json:"id"`
	TeacherID        string     `json:"teacher_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Subject          string     `json:"subject"`
	TargetClassrooms []string   `json:"target_classrooms"`
	Questions        []Question `json:"questions"`
	Published        bool       `json:"published"`
	// TimeLimitMinutes is the optional countdown; nil means untimed.
	TimeLimitMinutes *int `json:"time_limit_minutes,omitempty"`
	// ValidFrom and ValidUntil bound the taking window; either may be nil
	// meaning unbounded on that side.
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Redacted returns a copy of the exam whose questions carry no answer keys.
func (e Exam) Redacted() Exam {
	qs := make([]Question, len(e.Questions))
	for i, q := range e.Questions {
		qs[i] = q.Redacted()
	}
	e.Questions = qs
	return e
}

// Submission records a student's answers to one exam. StudentName and
// StudentCode are snapshots taken at submission time and are not re-synced
// when the profile changes later.
type Submission struct {
	ID          string `json:"id"`
	ExamID      string `json:"exam_id"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	StudentCode string `json:"student_code"`
	// Answers maps question ID to the raw submitted answer string.
	Answers     map[string]string `json:"answers"`
	AutoScore   int               `json:"auto_score"`
	ManualScore int               `json:"manual_score"`
	// TotalScore is always AutoScore + ManualScore.
	TotalScore  int       `json:"total_score"`
	SubmittedAt time.Time `json:"submitted_at"`
	// Graded flips to true once a teacher records a manual score, even a
	// zero one.
	Graded bool `json:"graded"`
}
