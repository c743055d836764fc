package handler

import (
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/examforge/examforge/internal/exam"
	"github.com/examforge/examforge/internal/lifecycle"
	"github.com/examforge/examforge/internal/model"
)

// studentExam is the list-view shape: no questions, let alone answer keys.
type studentExam struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Subject          string            `json:"subject"`
	QuestionCount    int               `json:"question_count"`
	TotalMarks       int               `json:"total_marks"`
	TimeLimitMinutes *int              `json:"time_limit_minutes,omitempty"`
	ValidFrom        *time.Time        `json:"valid_from,omitempty"`
	ValidUntil       *time.Time        `json:"valid_until,omitempty"`
	Availability     exam.Availability `json:"availability"`
}

// handleStudentListExams lists the published exams targeting the student's
// classroom, each annotated with its availability as of now.
func (h *Handler) handleStudentListExams(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	exams, err := h.store.ListExamsForClassroom(user.Classroom)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	now := time.Now()
	out := make([]studentExam, 0, len(exams))
	for _, e := range exams {
		sub, err := h.store.GetSubmissionForStudent(e.ID, user.ID)
		if err != nil {
			respondInternalError(w, err)
			return
		}
		total := 0
		for _, q := range e.Questions {
			total += q.Marks
		}
		out = append(out, studentExam{
			ID:               e.ID,
			Title:            e.Title,
			Description:      e.Description,
			Subject:          e.Subject,
			QuestionCount:    len(e.Questions),
			TotalMarks:       total,
			TimeLimitMinutes: e.TimeLimitMinutes,
			ValidFrom:        e.ValidFrom,
			ValidUntil:       e.ValidUntil,
			Availability:     exam.AvailabilityFor(e, sub != nil, now),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// loadStudentExam fetches the routed exam if the student is allowed to see
// it at all: published and targeting their classroom.
func (h *Handler) loadStudentExam(w http.ResponseWriter, r *http.Request) (*model.Exam, bool) {
	e, err := h.store.GetExam(chi.URLParam(r, "examID"))
	if err != nil {
		respondInternalError(w, err)
		return nil, false
	}
	user := model.UserFromContext(r.Context())
	if e == nil || !e.Published || !slices.Contains(e.TargetClassrooms, user.Classroom) {
		respondError(w, r, http.StatusNotFound, "NotFound")
		return nil, false
	}
	return e, true
}

type startResponse struct {
	Exam    model.Exam              `json:"exam"`
	Session *lifecycle.SessionState `json:"session"`
}

// handleStartExam opens (or resumes) an attempt. The exam in the response
// is redacted: option order survives, answer keys do not.
func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	e, ok := h.loadStudentExam(w, r)
	if !ok {
		return
	}
	user := model.UserFromContext(r.Context())

	state, err := h.exams.Start(*e, *user)
	switch {
	case errors.Is(err, lifecycle.ErrAlreadySubmitted):
		respondError(w, r, http.StatusConflict, "AlreadySubmitted")
		return
	case errors.Is(err, lifecycle.ErrNotAvailable):
		respondError(w, r, http.StatusForbidden, "ExamNotAvailable")
		return
	case err != nil:
		respondInternalError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, startResponse{Exam: e.Redacted(), Session: state})
}

type answerRequest struct {
	Answer string `json:"answer"`
}

func (h *Handler) handleSaveAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	user := model.UserFromContext(r.Context())
	err := h.exams.SaveAnswer(chi.URLParam(r, "examID"), user.ID, chi.URLParam(r, "questionID"), req.Answer)
	if errors.Is(err, lifecycle.ErrNoSession) {
		respondError(w, r, http.StatusConflict, "SessionMissing")
		return
	}
	if err != nil {
		respondInternalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitRequest struct {
	Answers map[string]string `json:"answers"`
}

func (h *Handler) handleSubmitExam(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	user := model.UserFromContext(r.Context())

	sub, err := h.exams.Submit(chi.URLParam(r, "examID"), user.ID, req.Answers)
	switch {
	case errors.Is(err, lifecycle.ErrAlreadySubmitted):
		respondError(w, r, http.StatusConflict, "AlreadySubmitted")
		return
	case errors.Is(err, lifecycle.ErrSubmitInFlight):
		respondError(w, r, http.StatusConflict, "SubmitInFlight")
		return
	case errors.Is(err, lifecycle.ErrNoSession):
		respondError(w, r, http.StatusConflict, "SessionMissing")
		return
	case err != nil:
		respondInternalError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sub)
}

func (h *Handler) handleStudentSubmissions(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	subs, err := h.store.ListSubmissionsByStudent(user.ID)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if subs == nil {
		subs = []model.Submission{}
	}
	respondJSON(w, http.StatusOK, subs)
}
