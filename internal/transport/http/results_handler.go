package http

import (
	"net/http"

	"class-quiz-service/internal/app"
)

// ResultsHandler serves graded results and leaderboards outside the attempt websocket.
type ResultsHandler struct {
	service *app.AttemptService
}

func NewResultsHandler(service *app.AttemptService) *ResultsHandler {
	return &ResultsHandler{service: service}
}

func (h *ResultsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /attempts/{id}/result", h.result)
	mux.HandleFunc("GET /quizzes/{id}/leaderboard", h.leaderboard)
}

func (h *ResultsHandler) result(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Result(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ResultsHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Leaderboard(r.Context(), r.PathValue("id")))
}
