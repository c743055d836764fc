// Package grader scores a completed answer set against an exam definition.
//
// Grading is a single pass over the questions; each rule is evaluated
// independently and there is no partial credit within a question.
package grader

import (
	"strings"

	"github.com/examforge/examforge/internal/model"
)

// Grade computes the automatic score for the given answers. Questions with
// no matching answer entry are graded against the empty string. A nil or
// empty question list yields zero rather than an error: a malformed exam
// must not block submission.
//
// Grade is pure and deterministic; identical inputs always produce the
// same score.
func Grade(e model.Exam, answers map[string]string) int {
	score := 0
	for _, q := range e.Questions {
		if correct(q, answers[q.ID]) {
			score += q.Marks
		}
	}
	return score
}

func correct(q model.Question, answer string) bool {
	switch q.Type {
	case model.MultipleChoice:
		// Exact match on the option text, case-sensitive, no trimming.
		if q.CorrectOptionIndex < 0 || q.CorrectOptionIndex >= len(q.Options) {
			return false
		}
		return answer == q.Options[q.CorrectOptionIndex]

	case model.TrueFalse:
		// The stored label is compared verbatim.
		return answer != "" && answer == q.CorrectAnswerText

	case model.FillBlank:
		return normalize(answer) == normalize(q.CorrectAnswerText)

	case model.ShortAnswer:
		lower := strings.ToLower(answer)
		for _, k := range q.Keywords {
			if k != "" && strings.Contains(lower, strings.ToLower(k)) {
				return true
			}
		}
		return q.CorrectAnswerText != "" && lower == strings.ToLower(q.CorrectAnswerText)

	default:
		// Long answers are graded manually and contribute nothing here.
		return false
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SafeGrade is Grade with a recovery net: if grading panics on unexpected
// data, the submission proceeds with a zero score instead of failing.
func SafeGrade(e model.Exam, answers map[string]string) (score int) {
	defer func() {
		if recover() != nil {
			score = 0
		}
	}()
	return Grade(e, answers)
}
