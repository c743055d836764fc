package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/examforge/examforge/internal/model"
	"github.com/examforge/examforge/internal/store"
)

func (h *Handler) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	respondJSON(w, http.StatusOK, users)
}

// handleAdminDeleteUser removes an account. Submissions stay: they carry
// the student's name and code as submitted.
func (h *Handler) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if id == model.UserFromContext(r.Context()).ID {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "cannot delete yourself"})
		return
	}
	if err := h.store.DeleteUser(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, "NotFound")
			return
		}
		respondInternalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAdminListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.store.ListExams()
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	respondJSON(w, http.StatusOK, exams)
}

type adminStats struct {
	Users          int `json:"users"`
	Students       int `json:"students"`
	Teachers       int `json:"teachers"`
	Admins         int `json:"admins"`
	Exams          int `json:"exams"`
	PublishedExams int `json:"published_exams"`
}

func (h *Handler) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		respondInternalError(w, err)
		return
	}
	exams, err := h.store.ListExams()
	if err != nil {
		respondInternalError(w, err)
		return
	}

	stats := adminStats{Users: len(users), Exams: len(exams)}
	for _, u := range users {
		switch u.Role {
		case model.RoleStudent:
			stats.Students++
		case model.RoleTeacher:
			stats.Teachers++
		case model.RoleAdmin:
			stats.Admins++
		}
	}
	for _, e := range exams {
		if e.Published {
			stats.PublishedExams++
		}
	}
	respondJSON(w, http.StatusOK, stats)
}
