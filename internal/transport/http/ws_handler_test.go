package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"

	"github.com/gorilla/websocket"
)

type services struct {
	attempts    *app.AttemptService
	leaderboard *app.LeaderboardService
}

func newServices() services {
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute)
	leaderboard := app.NewLeaderboardService(memory.NewLeaderboard(), app.NewHub())
	return services{
		attempts:    app.NewAttemptService(quizRepo, memory.NewAttemptStore(), leaderboard),
		leaderboard: leaderboard,
	}
}

func newWSServer(t *testing.T, svc services) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", NewWSHandler(svc.attempts, svc.leaderboard).ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?quizId=quiz-1&userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketAttemptFlow(t *testing.T) {
	server := newWSServer(t, newServices())
	conn := dial(t, server, "u1")

	// the current leaderboard arrives first
	if typ, _ := readNext(conn, t); typ != "leaderboard" {
		t.Fatalf("expected leaderboard, got %s", typ)
	}

	send(t, conn, "start", nil)
	started := readUntil(conn, t, "started")
	attemptID, _ := started["attemptId"].(string)
	if attemptID == "" {
		t.Fatalf("expected attempt id, got %v", started)
	}

	send(t, conn, "answer", map[string]any{"attemptId": attemptID, "questionId": "q1", "value": "o2"})
	readUntil(conn, t, "answerAccepted")

	send(t, conn, "answer", map[string]any{"attemptId": attemptID, "questionId": "q2", "value": "  mars "})
	readUntil(conn, t, "answerAccepted")

	send(t, conn, "finalize", map[string]any{"attemptId": attemptID})

	// the result reply and the pushed leaderboard race each other
	var result, board map[string]any
	for i := 0; i < 10 && (result == nil || board == nil); i++ {
		typ, payload := readNext(conn, t)
		switch typ {
		case "result":
			result = payload
		case "leaderboard":
			if entries, _ := payload["entries"].([]any); len(entries) > 0 {
				board = payload
			}
		}
	}
	if result == nil || board == nil {
		t.Fatalf("expected result and leaderboard, got result=%v leaderboard=%v", result, board)
	}
	if result["score"] != float64(15) || result["state"] != string(domain.AttemptFinalized) {
		t.Fatalf("unexpected result %v", result)
	}

	entries := board["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected one leaderboard entry, got %v", board)
	}
	if first, _ := entries[0].(map[string]any); first["userId"] != "u1" || first["score"] != float64(15) {
		t.Fatalf("unexpected entry %v", first)
	}
}

func TestWebSocketErrors(t *testing.T) {
	server := newWSServer(t, newServices())
	owner := dial(t, server, "u1")
	other := dial(t, server, "u2")

	send(t, owner, "start", nil)
	attemptID, _ := readUntil(owner, t, "started")["attemptId"].(string)

	send(t, owner, "start", nil)
	if payload := readUntil(owner, t, "error"); payload["code"] != string(domain.KindConflict) {
		t.Fatalf("expected conflict, got %v", payload)
	}

	send(t, other, "finalize", map[string]any{"attemptId": attemptID})
	if payload := readUntil(other, t, "error"); payload["code"] != string(domain.KindNotFound) {
		t.Fatalf("expected not_found for another user's attempt, got %v", payload)
	}

	send(t, owner, "answer", map[string]any{"attemptId": attemptID, "questionId": "q9", "value": "x"})
	if payload := readUntil(owner, t, "error"); payload["code"] != string(domain.KindNotFound) {
		t.Fatalf("expected not_found for unknown question, got %v", payload)
	}

	send(t, owner, "dance", nil)
	if payload := readUntil(owner, t, "error"); payload["code"] != string(domain.KindInvalidArgument) {
		t.Fatalf("expected invalid_argument, got %v", payload)
	}
}

func TestWebSocketActiveAttempt(t *testing.T) {
	server := newWSServer(t, newServices())
	conn := dial(t, server, "u1")

	send(t, conn, "active", nil)
	if payload := readUntil(conn, t, "error"); payload["code"] != string(domain.KindNotFound) {
		t.Fatalf("expected not_found before start, got %v", payload)
	}

	send(t, conn, "start", nil)
	attemptID, _ := readUntil(conn, t, "started")["attemptId"].(string)

	send(t, conn, "active", nil)
	active := readUntil(conn, t, "attempt")
	if active["id"] != attemptID || active["state"] != string(domain.AttemptPending) {
		t.Fatalf("expected pending attempt %s, got %v", attemptID, active)
	}

	send(t, conn, "finalize", map[string]any{"attemptId": attemptID})
	readUntil(conn, t, "result")

	send(t, conn, "active", nil)
	if payload := readUntil(conn, t, "error"); payload["code"] != string(domain.KindNotFound) {
		t.Fatalf("expected not_found after finalize, got %v", payload)
	}
}

func TestWebSocketRequiresIdentity(t *testing.T) {
	server := newWSServer(t, newServices())

	resp, err := http.Get(server.URL + "/ws?quizId=quiz-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil skips messages until one of type expect arrives.
func readUntil(conn *websocket.Conn, t *testing.T, expect string) map[string]any {
	t.Helper()
	for i := 0; i < 10; i++ {
		typ, payload := readNext(conn, t)
		if typ == expect {
			return payload
		}
	}
	t.Fatalf("did not receive %s", expect)
	return nil
}

func readNext(conn *websocket.Conn, t *testing.T) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	var payload map[string]any
	_ = json.Unmarshal(msg.Payload, &payload)
	return msg.Type, payload
}

func sampleQuiz() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:               "quiz-1",
			TimeLimitSeconds: 60,
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3", Correct: false},
						{ID: "o2", Text: "4", Correct: true},
					},
					Points: 5,
				},
				{
					ID:            "q2",
					Prompt:        "Which planet is known as the red planet?",
					Type:          domain.QuestionText,
					CorrectAnswer: "Mars",
					Points:        10,
				},
			},
		},
	}
}
