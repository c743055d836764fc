package exam

import (
	"strconv"
	"strings"

	"github.com/examforge/examforge/internal/model"
)

// ValidationError reports the first rule an exam definition violates.
// MessageID is an i18n message ID; Num is the 1-based question number for
// per-question violations, zero otherwise.
type ValidationError struct {
	MessageID string
	Num       int
}

func (e *ValidationError) Error() string {
	if e.Num > 0 {
		return e.MessageID + " (question " + strconv.Itoa(e.Num) + ")"
	}
	return e.MessageID
}

// Validation message IDs, localized by the handler layer.
const (
	MsgTitleRequired     = "ErrTitleRequired"
	MsgSubjectRequired   = "ErrSubjectRequired"
	MsgClassroomRequired = "ErrClassroomRequired"
	MsgQuestionRequired  = "ErrQuestionRequired"
	MsgQuestionTextEmpty = "ErrQuestionTextEmpty"
	MsgQuestionMarks     = "ErrQuestionMarks"
	MsgQuestionOptions   = "ErrQuestionOptions"
	MsgInvalidWindow     = "ErrInvalidWindow"
)

// Validate checks an exam definition before any save or publish. Draft
// saves run the exact same checks as publishing; a structurally invalid
// exam is never persisted. Questions are checked in order and only the
// first violation is reported.
func Validate(e model.Exam) error {
	if e.Title == "" {
		return &ValidationError{MessageID: MsgTitleRequired}
	}
	if e.Subject == "" {
		return &ValidationError{MessageID: MsgSubjectRequired}
	}
	if len(e.TargetClassrooms) == 0 {
		return &ValidationError{MessageID: MsgClassroomRequired}
	}
	if len(e.Questions) == 0 {
		return &ValidationError{MessageID: MsgQuestionRequired}
	}
	if e.ValidFrom != nil && e.ValidUntil != nil && !e.ValidFrom.Before(*e.ValidUntil) {
		return &ValidationError{MessageID: MsgInvalidWindow}
	}
	for i, q := range e.Questions {
		num := i + 1
		if strings.TrimSpace(q.Text) == "" {
			return &ValidationError{MessageID: MsgQuestionTextEmpty, Num: num}
		}
		if q.Marks < 1 {
			return &ValidationError{MessageID: MsgQuestionMarks, Num: num}
		}
		if q.Type == model.MultipleChoice {
			if len(q.Options) < 2 || q.CorrectOptionIndex < 0 || q.CorrectOptionIndex >= len(q.Options) {
				return &ValidationError{MessageID: MsgQuestionOptions, Num: num}
			}
		}
	}
	return nil
}
