package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"class-quiz-service/internal/app"
	"class-quiz-service/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeJSON(w, status, errorPayload{Message: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrAttemptNotFound), errors.Is(err, domain.ErrUnknownQuestion):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrMaxAttemptsReached),
		errors.Is(err, domain.ErrNavigationDisabled), errors.Is(err, domain.ErrAttemptNotFinished):
		return http.StatusConflict
	case errors.Is(err, app.ErrFeedbackHidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
