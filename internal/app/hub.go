package app

import (
	"sync"

	"quiz-attempt-service/internal/domain"
)

// GlobalBoard is the hub topic for the cross-quiz leaderboard.
const GlobalBoard = ""

// Hub fans leaderboard pages out to subscribers, one topic per quiz.
type Hub struct {
	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	subscribers map[chan domain.Leaderboard]struct{}
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]*topic)}
}

// Subscribe returns a channel of pages published for quizID after the call.
// The caller must invoke cancel to avoid leaks.
func (h *Hub) Subscribe(quizID string) (<-chan domain.Leaderboard, func()) {
	return h.subscribe(quizID)
}

func (h *Hub) subscribe(quizID string) (chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	h.mu.Lock()
	t := h.topicLocked(quizID)
	t.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		t, ok := h.topics[quizID]
		if !ok {
			return
		}
		if _, ok := t.subscribers[ch]; ok {
			delete(t.subscribers, ch)
			close(ch)
		}
		if len(t.subscribers) == 0 {
			delete(h.topics, quizID)
		}
	}
	return ch, cancel
}

// Publish delivers lb to every subscriber of lb.QuizID without blocking.
func (h *Hub) Publish(lb domain.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[lb.QuizID]
	if !ok {
		return
	}
	for ch := range t.subscribers {
		push(ch, lb)
	}
}

// deliver sends lb to a single subscriber of lb.QuizID. Cancelled channels are skipped.
func (h *Hub) deliver(ch chan domain.Leaderboard, lb domain.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[lb.QuizID]
	if !ok {
		return
	}
	if _, ok := t.subscribers[ch]; ok {
		push(ch, lb)
	}
}

// Subscribers reports how many channels listen on quizID.
func (h *Hub) Subscribers(quizID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[quizID]; ok {
		return len(t.subscribers)
	}
	return 0
}

func (h *Hub) topicLocked(quizID string) *topic {
	t, ok := h.topics[quizID]
	if !ok {
		t = &topic{subscribers: make(map[chan domain.Leaderboard]struct{})}
		h.topics[quizID] = t
	}
	return t
}

// push never blocks: a full channel loses its oldest page. Callers hold h.mu.
func push(ch chan domain.Leaderboard, lb domain.Leaderboard) {
	select {
	case ch <- lb:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- lb
	}
}
