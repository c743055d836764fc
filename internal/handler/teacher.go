package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/examforge/examforge/internal/exam"
	"github.com/examforge/examforge/internal/i18n"
	"github.com/examforge/examforge/internal/model"
	"github.com/examforge/examforge/internal/store"
)

type examRequest struct {
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Subject          string           `json:"subject"`
	TargetClassrooms []string         `json:"target_classrooms"`
	Questions        []model.Question `json:"questions"`
	TimeLimitMinutes *int             `json:"time_limit_minutes"`
	ValidFrom        *time.Time       `json:"valid_from"`
	ValidUntil       *time.Time       `json:"valid_until"`
}

func (req examRequest) apply(e *model.Exam) {
	e.Title = req.Title
	e.Description = req.Description
	e.Subject = req.Subject
	e.TargetClassrooms = req.TargetClassrooms
	e.Questions = req.Questions
	e.TimeLimitMinutes = req.TimeLimitMinutes
	e.ValidFrom = req.ValidFrom
	e.ValidUntil = req.ValidUntil
}

// respondValidationError translates a builder validation failure for the
// requesting user's locale.
func respondValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *exam.ValidationError
	if errors.As(err, &ve) {
		msg := i18n.Td(r.Context(), ve.MessageID, map[string]any{"Num": ve.Num})
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: msg})
		return
	}
	respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
}

// loadOwnedExam fetches the routed exam and enforces that the caller owns
// it. Admins may touch any exam.
func (h *Handler) loadOwnedExam(w http.ResponseWriter, r *http.Request) (*model.Exam, bool) {
	e, err := h.store.GetExam(chi.URLParam(r, "examID"))
	if err != nil {
		respondInternalError(w, err)
		return nil, false
	}
	if e == nil {
		respondError(w, r, http.StatusNotFound, "NotFound")
		return nil, false
	}
	user := model.UserFromContext(r.Context())
	if user.Role != model.RoleAdmin && e.TeacherID != user.ID {
		respondError(w, r, http.StatusForbidden, "Forbidden")
		return nil, false
	}
	return e, true
}

func (h *Handler) handleTeacherListExams(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var (
		exams []model.Exam
		err   error
	)
	if user.Role == model.RoleAdmin {
		exams, err = h.store.ListExams()
	} else {
		exams, err = h.store.ListExamsByTeacher(user.ID)
	}
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	respondJSON(w, http.StatusOK, exams)
}

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var req examRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	e := model.Exam{
		ID:        uuid.NewString(),
		TeacherID: model.UserFromContext(r.Context()).ID,
		CreatedAt: time.Now(),
	}
	req.apply(&e)
	if err := exam.Validate(e); err != nil {
		respondValidationError(w, r, err)
		return
	}
	if err := h.store.PutExam(e); err != nil {
		respondInternalError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, e)
}

func (h *Handler) handleTeacherGetExam(w http.ResponseWriter, r *http.Request) {
	e, ok := h.loadOwnedExam(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (h *Handler) handleUpdateExam(w http.ResponseWriter, r *http.Request) {
	e, ok := h.loadOwnedExam(w, r)
	if !ok {
		return
	}
	var req examRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	req.apply(e)
	if err := exam.Validate(*e); err != nil {
		respondValidationError(w, r, err)
		return
	}
	if err := h.store.PutExam(*e); err != nil {
		respondInternalError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (h *Handler) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	e, ok := h.loadOwnedExam(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteExam(e.ID); err != nil {
		respondInternalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type publishRequest struct {
	Published bool `json:"published"`
}

func (h *Handler) handlePublishExam(w http.ResponseWriter, r *http.Request) {
	e, ok := h.loadOwnedExam(w, r)
	if !ok {
		return
	}
	var req publishRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	// A draft that fails validation cannot go live.
	if req.Published {
		if err := exam.Validate(*e); err != nil {
			respondValidationError(w, r, err)
			return
		}
	}
	if err := h.store.SetExamPublished(e.ID, req.Published); err != nil {
		respondInternalError(w, err)
		return
	}
	e.Published = req.Published
	respondJSON(w, http.StatusOK, e)
}

func (h *Handler) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	e, ok := h.loadOwnedExam(w, r)
	if !ok {
		return
	}
	subs, err := h.store.ListSubmissionsByExam(e.ID)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if subs == nil {
		subs = []model.Submission{}
	}
	respondJSON(w, http.StatusOK, subs)
}

type examSummary struct {
	ExamID       string  `json:"exam_id"`
	MaxMarks     int     `json:"max_marks"`
	Submissions  int     `json:"submissions"`
	Graded       int     `json:"graded"`
	AverageScore float64 `json:"average_score"`
	HighestScore int     `json:"highest_score"`
	LowestScore  int     `json:"lowest_score"`
}

func (h *Handler) handleExamSummary(w http.ResponseWriter, r *http.Request) {
	e, ok := h.loadOwnedExam(w, r)
	if !ok {
		return
	}
	subs, err := h.store.ListSubmissionsByExam(e.ID)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	sum := examSummary{ExamID: e.ID}
	for _, q := range e.Questions {
		sum.MaxMarks += q.Marks
	}
	sum.Submissions = len(subs)
	total := 0
	for i, sub := range subs {
		if sub.Graded {
			sum.Graded++
		}
		total += sub.TotalScore
		if i == 0 || sub.TotalScore > sum.HighestScore {
			sum.HighestScore = sub.TotalScore
		}
		if i == 0 || sub.TotalScore < sum.LowestScore {
			sum.LowestScore = sub.TotalScore
		}
	}
	if len(subs) > 0 {
		sum.AverageScore = float64(total) / float64(len(subs))
	}
	respondJSON(w, http.StatusOK, sum)
}

func (h *Handler) handleExportResults(w http.ResponseWriter, r *http.Request) {
	e, ok := h.loadOwnedExam(w, r)
	if !ok {
		return
	}
	subs, err := h.store.ListSubmissionsByExam(e.ID)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+store.ExportFilename(e.Title)+`"`)
	if err := store.WriteResultsCSV(w, r.Context(), *e, subs); err != nil {
		respondInternalError(w, err)
	}
}

type scoreRequest struct {
	ManualScore int `json:"manual_score"`
}

func (h *Handler) handleScoreSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := h.store.GetSubmission(chi.URLParam(r, "submissionID"))
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if sub == nil {
		respondError(w, r, http.StatusNotFound, "NotFound")
		return
	}
	e, err := h.store.GetExam(sub.ExamID)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	user := model.UserFromContext(r.Context())
	if e != nil && user.Role != model.RoleAdmin && e.TeacherID != user.ID {
		respondError(w, r, http.StatusForbidden, "Forbidden")
		return
	}

	var req scoreRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := h.exams.RecordManualScore(sub.ID, req.ManualScore); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, "NotFound")
			return
		}
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	updated, err := h.store.GetSubmission(sub.ID)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

type suggestRequest struct {
	Subject string `json:"subject" validate:"required"`
	Topic   string `json:"topic" validate:"required"`
	Type    string `json:"type" validate:"required,oneof=mcq true_false fill_blank short_answer long_answer"`
	Count   int    `json:"count" validate:"omitempty,min=1,max=10"`
}

func (h *Handler) handleSuggestQuestions(w http.ResponseWriter, r *http.Request) {
	if h.llm == nil {
		respondError(w, r, http.StatusServiceUnavailable, "LLMUnavailable")
		return
	}
	var req suggestRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.Count == 0 {
		req.Count = 3
	}

	questions, err := h.llm.SuggestQuestions(r.Context(), req.Subject, req.Topic,
		model.QuestionType(req.Type), req.Count)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, questions)
}
