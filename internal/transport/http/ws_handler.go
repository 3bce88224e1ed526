package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"

	"github.com/gorilla/websocket"
)

// WSHandler speaks the attempt protocol over a websocket. The connection is
// bound to one (quiz, user) pair and receives that quiz's leaderboard pages.
type WSHandler struct {
	attempts    *app.AttemptService
	leaderboard *app.LeaderboardService
	upgrader    websocket.Upgrader
}

func NewWSHandler(attempts *app.AttemptService, leaderboard *app.LeaderboardService) *WSHandler {
	return &WSHandler{
		attempts:    attempts,
		leaderboard: leaderboard,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type attemptRef struct {
	AttemptID string `json:"attemptId"`
}

type answerPayload struct {
	AttemptID  string `json:"attemptId"`
	QuestionID string `json:"questionId"`
	Value      string `json:"value"`
}

type startedPayload struct {
	AttemptID string    `json:"attemptId"`
	QuizID    string    `json:"quizId"`
	Deadline  time.Time `json:"deadline"`
}

type resultPayload struct {
	AttemptID string `json:"attemptId"`
	domain.AttemptResult
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the attempt use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	userID := r.URL.Query().Get("userId")
	if quizID == "" || userID == "" {
		http.Error(w, "missing quizId or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	updates, cancel, err := h.leaderboard.Subscribe(ctx, quizID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: newErrorPayload(err)})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer: gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				// unblock the read loop
				_ = conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "leaderboard", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		reply := h.handle(ctx, quizID, userID, inbound)
		select {
		case send <- reply:
		case <-writerDone:
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handle(ctx context.Context, quizID, userID string, inbound inboundMessage) outboundMessage[any] {
	switch inbound.Type {
	case "start":
		attempt, err := h.attempts.StartAttempt(ctx, userID, quizID)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "started", Payload: startedPayload{
			AttemptID: attempt.ID,
			QuizID:    attempt.QuizID,
			Deadline:  attempt.Deadline,
		}}
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage(domain.InvalidArgument("invalid answer payload"))
		}
		if _, err := h.owned(ctx, userID, payload.AttemptID); err != nil {
			return errorMessage(err)
		}
		if err := h.attempts.SubmitAnswer(ctx, payload.AttemptID, payload.QuestionID, payload.Value); err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "answerAccepted", Payload: payload}
	case "finalize":
		var ref attemptRef
		if err := json.Unmarshal(inbound.Payload, &ref); err != nil {
			return errorMessage(domain.InvalidArgument("invalid finalize payload"))
		}
		if _, err := h.owned(ctx, userID, ref.AttemptID); err != nil {
			return errorMessage(err)
		}
		result, err := h.attempts.FinalizeAttempt(ctx, ref.AttemptID)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "result", Payload: resultPayload{AttemptID: ref.AttemptID, AttemptResult: result}}
	case "attempt":
		var ref attemptRef
		if err := json.Unmarshal(inbound.Payload, &ref); err != nil {
			return errorMessage(domain.InvalidArgument("invalid attempt payload"))
		}
		attempt, err := h.owned(ctx, userID, ref.AttemptID)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "attempt", Payload: attempt}
	case "active":
		attempt, err := h.attempts.ActiveAttempt(ctx, userID, quizID)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "attempt", Payload: attempt}
	default:
		return errorMessage(domain.InvalidArgument("unsupported message type %q", inbound.Type))
	}
}

// owned loads the attempt and hides attempts of other users.
func (h *WSHandler) owned(ctx context.Context, userID, attemptID string) (domain.Attempt, error) {
	attempt, err := h.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.UserID != userID {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: newErrorPayload(err)}
}
