package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"class-quiz-service/internal/app"
	"class-quiz-service/internal/domain"
)

const maxDraftBytes = 1 << 20

// AuthoringHandler exposes quiz authoring over REST.
type AuthoringHandler struct {
	service *app.AuthoringService
}

func NewAuthoringHandler(service *app.AuthoringService) *AuthoringHandler {
	return &AuthoringHandler{service: service}
}

// Register mounts the authoring routes on mux.
func (h *AuthoringHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /quizzes", h.list)
	mux.HandleFunc("GET /quizzes/{id}", h.get)
	mux.HandleFunc("PUT /courses/{courseId}/classes/{classNumber}/quiz", h.put)
	mux.HandleFunc("POST /quizzes/{id}/publish", h.publish)
	mux.HandleFunc("POST /quizzes/{id}/unpublish", h.unpublish)
	mux.HandleFunc("DELETE /quizzes/{id}", h.remove)
}

func (h *AuthoringHandler) list(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *AuthoringHandler) get(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

// put creates or replaces the quiz of a class. Configuration fields missing
// from the body keep their defaults.
func (h *AuthoringHandler) put(w http.ResponseWriter, r *http.Request) {
	classNumber, err := strconv.Atoi(r.PathValue("classNumber"))
	if err != nil {
		writeError(w, &domain.ValidationError{Field: "classNumber", Reason: "must be a number"})
		return
	}

	draft := domain.Quiz{Configuration: domain.DefaultConfiguration()}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDraftBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&draft); err != nil {
		writeError(w, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}

	quiz, err := h.service.CreateOrReplace(r.Context(), r.PathValue("courseId"), classNumber, draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *AuthoringHandler) publish(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.service.Publish(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *AuthoringHandler) unpublish(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.service.Unpublish(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *AuthoringHandler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Remove(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
