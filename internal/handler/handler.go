// Package handler exposes the JSON API.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/examforge/examforge/internal/i18n"
	"github.com/examforge/examforge/internal/lifecycle"
	"github.com/examforge/examforge/internal/llm"
	"github.com/examforge/examforge/internal/model"
	"github.com/examforge/examforge/internal/store"
)

// Config carries the handler-level settings.
type Config struct {
	// AdminEmail, when set, promotes the matching registration to admin.
	AdminEmail string
	// SecureCookies marks auth and CSRF cookies Secure.
	SecureCookies bool
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    store.Store
	exams    *lifecycle.Manager
	llm      *llm.Client
	config   Config
	validate *validator.Validate
}

// New creates a new Handler. llmClient may be nil when no model is
// configured; the suggest endpoint then answers 503.
func New(s store.Store, m *lifecycle.Manager, llmClient *llm.Client, cfg Config) *Handler {
	return &Handler{
		store:    s,
		exams:    m,
		llm:      llmClient,
		config:   cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.csrfMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.handleRegister)
		r.Post("/auth/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/auth/logout", h.handleLogout)
			r.Get("/auth/me", h.handleMe)
		})

		r.Route("/teacher", func(r chi.Router) {
			r.Use(h.requireAuth, requireRole(model.RoleTeacher, model.RoleAdmin))
			r.Get("/exams", h.handleTeacherListExams)
			r.Post("/exams", h.handleCreateExam)
			r.Get("/exams/{examID}", h.handleTeacherGetExam)
			r.Put("/exams/{examID}", h.handleUpdateExam)
			r.Delete("/exams/{examID}", h.handleDeleteExam)
			r.Post("/exams/{examID}/publish", h.handlePublishExam)
			r.Get("/exams/{examID}/submissions", h.handleListSubmissions)
			r.Get("/exams/{examID}/summary", h.handleExamSummary)
			r.Get("/exams/{examID}/export", h.handleExportResults)
			r.Post("/submissions/{submissionID}/score", h.handleScoreSubmission)
			r.Post("/questions/suggest", h.handleSuggestQuestions)
		})

		r.Route("/student", func(r chi.Router) {
			r.Use(h.requireAuth, requireRole(model.RoleStudent))
			r.Get("/exams", h.handleStudentListExams)
			r.Post("/exams/{examID}/start", h.handleStartExam)
			r.Put("/exams/{examID}/answers/{questionID}", h.handleSaveAnswer)
			r.Post("/exams/{examID}/submit", h.handleSubmitExam)
			r.Get("/submissions", h.handleStudentSubmissions)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireAuth, requireRole(model.RoleAdmin))
			r.Get("/users", h.handleAdminListUsers)
			r.Delete("/users/{userID}", h.handleAdminDeleteUser)
			r.Get("/exams", h.handleAdminListExams)
			r.Get("/stats", h.handleAdminStats)
		})
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// respondError sends the translation of msgID as the error body.
func respondError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	respondJSON(w, status, errorResponse{Error: i18n.T(r.Context(), msgID)})
}

func respondInternalError(w http.ResponseWriter, err error) {
	slog.Error("request failed", "error", err)
	respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

// decodeJSON parses the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
