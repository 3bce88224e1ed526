package http

import (
	"net/http"
	"strconv"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// APIHandler serves read-only JSON views: leaderboards, user stats and history.
type APIHandler struct {
	attempts     *app.AttemptService
	leaderboard  *app.LeaderboardService
	defaultLimit int
}

func NewAPIHandler(attempts *app.AttemptService, leaderboard *app.LeaderboardService, defaultLimit int) *APIHandler {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	return &APIHandler{attempts: attempts, leaderboard: leaderboard, defaultLimit: defaultLimit}
}

// Register mounts the endpoints on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/leaderboard", h.quizLeaderboard)
	mux.HandleFunc("/leaderboard/global", h.globalLeaderboard)
	mux.HandleFunc("/users/stats", h.userStats)
	mux.HandleFunc("/users/attempts", h.userAttempts)
	mux.HandleFunc("/users/attempts/active", h.activeAttempt)
}

func (h *APIHandler) quizLeaderboard(w http.ResponseWriter, r *http.Request) {
	n, err := h.limit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	lb, err := h.leaderboard.GetLeaderboard(r.Context(), r.URL.Query().Get("quizId"), n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *APIHandler) globalLeaderboard(w http.ResponseWriter, r *http.Request) {
	n, err := h.limit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	lb, err := h.leaderboard.GetGlobalLeaderboard(r.Context(), n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *APIHandler) userStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.leaderboard.UserStats(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *APIHandler) userAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.attempts.UserAttempts(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

func (h *APIHandler) activeAttempt(w http.ResponseWriter, r *http.Request) {
	userID, quizID := r.URL.Query().Get("userId"), r.URL.Query().Get("quizId")
	if userID == "" || quizID == "" {
		writeError(w, domain.InvalidArgument("userId and quizId are required"))
		return
	}
	attempt, err := h.attempts.ActiveAttempt(r.Context(), userID, quizID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func (h *APIHandler) limit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("n")
	if raw == "" {
		return h.defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.InvalidArgument("n must be an integer, got %q", raw)
	}
	return n, nil
}
