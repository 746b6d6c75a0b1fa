package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"archetype-chat-service/internal/app"
	"archetype-chat-service/internal/domain"
)

// ScoreHandler scores a quiz without submitting it.
type ScoreHandler struct {
	quizzes *app.QuizService
}

func NewScoreHandler(quizzes *app.QuizService) *ScoreHandler {
	return &ScoreHandler{quizzes: quizzes}
}

type scoreRequest struct {
	QuizID  string                    `json:"quizId"`
	Answers []domain.AnswerSubmission `json:"answers"`
}

func (h *ScoreHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorPayload{Message: "method not allowed"})
		return
	}
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid score request"})
		return
	}

	result, err := h.quizzes.Score(r.Context(), req.QuizID, req.Answers)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, domain.ErrQuizNotFound):
		writeJSON(w, http.StatusNotFound, errorPayload{Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrOptionNotFound):
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorPayload{Message: "scoring failed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
