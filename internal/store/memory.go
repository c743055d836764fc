package store

import (
	"sync"
	"time"

	"github.com/examforge/examforge/internal/model"
)

// Memory is an in-memory Store with the same semantics as SQLite. It backs
// tests and lets them inject write failures to exercise retry paths.
type Memory struct {
	mu          sync.Mutex
	users       map[string]model.User
	exams       map[string]model.Exam
	submissions map[string]model.Submission
	sessions    map[string]model.AuthSession

	// FailWrites makes every mutating operation return this error until
	// cleared. Set it from tests only.
	FailWrites error
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:       make(map[string]model.User),
		exams:       make(map[string]model.Exam),
		submissions: make(map[string]model.Submission),
		sessions:    make(map[string]model.AuthSession),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) CreateUser(u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.users[u.ID] = u
	return nil
}

func (m *Memory) GetUser(id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (m *Memory) GetUserByEmail(email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListUsers() ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	return users, nil
}

func (m *Memory) DeleteUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *Memory) UserCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *Memory) PutExam(e model.Exam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.exams[e.ID] = e
	return nil
}

func (m *Memory) GetExam(id string) (*model.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.exams[id]; ok {
		return &e, nil
	}
	return nil, nil
}

func (m *Memory) ListExams() ([]model.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exams := make([]model.Exam, 0, len(m.exams))
	for _, e := range m.exams {
		exams = append(exams, e)
	}
	return exams, nil
}

func (m *Memory) ListExamsByTeacher(teacherID string) ([]model.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var exams []model.Exam
	for _, e := range m.exams {
		if e.TeacherID == teacherID {
			exams = append(exams, e)
		}
	}
	return exams, nil
}

func (m *Memory) ListExamsForClassroom(classroom string) ([]model.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var exams []model.Exam
	for _, e := range m.exams {
		if !e.Published {
			continue
		}
		for _, c := range e.TargetClassrooms {
			if c == classroom {
				exams = append(exams, e)
				break
			}
		}
	}
	return exams, nil
}

func (m *Memory) SetExamPublished(id string, published bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	e, ok := m.exams[id]
	if !ok {
		return ErrNotFound
	}
	e.Published = published
	m.exams[id] = e
	return nil
}

func (m *Memory) DeleteExam(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	delete(m.exams, id)
	for sid, sub := range m.submissions {
		if sub.ExamID == id {
			delete(m.submissions, sid)
		}
	}
	return nil
}

func (m *Memory) PutSubmission(s model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.submissions[s.ID] = s
	return nil
}

func (m *Memory) GetSubmission(id string) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.submissions[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *Memory) GetSubmissionForStudent(examID, studentID string) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.submissions {
		if s.ExamID == examID && s.StudentID == studentID {
			return &s, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListSubmissionsByExam(examID string) ([]model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var subs []model.Submission
	for _, s := range m.submissions {
		if s.ExamID == examID {
			subs = append(subs, s)
		}
	}
	return subs, nil
}

func (m *Memory) ListSubmissionsByStudent(studentID string) ([]model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var subs []model.Submission
	for _, s := range m.submissions {
		if s.StudentID == studentID {
			subs = append(subs, s)
		}
	}
	return subs, nil
}

func (m *Memory) UpdateSubmissionScore(id string, manualScore int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	s, ok := m.submissions[id]
	if !ok {
		return ErrNotFound
	}
	s.ManualScore = manualScore
	s.TotalScore = s.AutoScore + manualScore
	s.Graded = true
	m.submissions[id] = s
	return nil
}

func (m *Memory) CreateAuthSession(userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return "", m.FailWrites
	}
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	now := time.Now()
	m.sessions[token] = model.AuthSession{
		ID: token, UserID: userID, CreatedAt: now, ExpiresAt: now.Add(authSessionTTL),
	}
	return token, nil
}

func (m *Memory) GetAuthSession(token string) (*model.AuthSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[token]
	if !ok {
		return nil, nil
	}
	if time.Now().After(sess.ExpiresAt) {
		delete(m.sessions, token)
		return nil, nil
	}
	return &sess, nil
}

func (m *Memory) DeleteAuthSession(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *Memory) CleanupExpiredSessions() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for token, sess := range m.sessions {
		if now.After(sess.ExpiresAt) {
			delete(m.sessions, token)
		}
	}
	return nil
}
