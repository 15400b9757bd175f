package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"class-quiz-service/internal/app"
	"class-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

// WSHandler runs one quiz attempt per websocket connection.
type WSHandler struct {
	service  *app.AttemptService
	tick     time.Duration
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.AttemptService, tick time.Duration) *WSHandler {
	if tick <= 0 {
		tick = time.Second
	}
	return &WSHandler{
		service: service,
		tick:    tick,
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

// answerPayload carries option positions as displayed to the student.
type answerPayload struct {
	QuestionID string `json:"questionId"`
	Choice     *int   `json:"choice"`
	Choices    []int  `json:"choices"`
	Text       string `json:"text"`
}

type gotoPayload struct {
	Index int `json:"index"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
}

// ServeWS upgrades HTTP requests to websockets and drives an attempt from the
// messages and a countdown ticker. Both are handled on one goroutine, so the
// attempt never sees concurrent operations.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	courseID := query.Get("courseId")
	userID := query.Get("userId")
	displayName := query.Get("name")
	classNumber, err := strconv.Atoi(query.Get("classNumber"))
	if courseID == "" || userID == "" || displayName == "" || err != nil {
		http.Error(w, "missing courseId, classNumber, userId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	attempt, err := h.service.Begin(ctx, courseID, classNumber, userID, displayName)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	attemptID := attempt.ID()
	quiz := attempt.Quiz()

	var updates <-chan domain.Leaderboard
	if quiz.Configuration.LeaderboardEnabled {
		ch, cancel, err := h.service.Subscribe(ctx, quiz.ID)
		if err != nil {
			_ = conn.WriteJSON(errorMessage(err))
			return
		}
		defer cancel()
		updates = ch
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})
	inbound := make(chan inboundMessage)

	// single writer per connection
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				// unblock the reader and keep draining so senders never stall
				conn.Close()
				for range send {
				}
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

	go func() {
		defer close(inbound)
		for {
			var msg inboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			inbound <- msg
		}
	}()

	send <- outboundMessage[any]{Type: "started", Payload: app.View(attempt)}

	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()
	ticks := ticker.C
	started := time.Now()
	consumed := 0

loop:
	for {
		select {
		case msg, ok := <-inbound:
			if !ok {
				break loop
			}
			if h.handle(ctx, attemptID, msg, send) {
				ticks = nil
			}
		case <-ticks:
			elapsed := int(time.Since(started)/time.Second) - consumed
			if elapsed <= 0 {
				continue
			}
			consumed += elapsed
			current, err := h.service.Tick(ctx, attemptID, elapsed)
			if err != nil {
				send <- errorMessage(err)
				ticks = nil
				continue
			}
			if h.report(ctx, current, send) {
				ticks = nil
			}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone

	if err := h.service.Release(context.Background(), attemptID); err != nil {
		log.Printf("release attempt %s: %v", attemptID, err)
	}
}

// handle applies one inbound message and reports whether the attempt is now finished.
func (h *WSHandler) handle(ctx context.Context, attemptID string, msg inboundMessage, send chan<- outboundMessage[any]) bool {
	var (
		current *app.Attempt
		err     error
	)
	switch msg.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			send <- errorMessage(errors.New("invalid answer payload"))
			return false
		}
		current, err = h.answer(ctx, attemptID, payload)
		if err == nil {
			h.feedback(ctx, attemptID, payload.QuestionID, send)
		}
	case "goto":
		var payload gotoPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			send <- errorMessage(errors.New("invalid goto payload"))
			return false
		}
		current, err = h.service.GoTo(ctx, attemptID, payload.Index)
	case "next":
		current, err = h.service.Next(ctx, attemptID)
	case "previous":
		current, err = h.service.Previous(ctx, attemptID)
	case "submit":
		current, err = h.submit(ctx, attemptID)
	case "window_switch":
		current, err = h.service.WindowSwitch(ctx, attemptID)
	default:
		send <- errorMessage(errors.New("unsupported message type"))
		return false
	}
	if err != nil {
		send <- errorMessage(err)
		return errors.Is(err, domain.ErrQuizNotFound)
	}
	return h.report(ctx, current, send)
}

func (h *WSHandler) submit(ctx context.Context, attemptID string) (*app.Attempt, error) {
	if _, err := h.service.Submit(ctx, attemptID); err != nil {
		return nil, err
	}
	return h.service.Attempt(ctx, attemptID)
}

// answer translates displayed option positions into authored indices.
func (h *WSHandler) answer(ctx context.Context, attemptID string, payload answerPayload) (*app.Attempt, error) {
	attempt, err := h.service.Attempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	question, _, ok := attempt.Quiz().Question(payload.QuestionID)
	if !ok {
		return nil, domain.ErrUnknownQuestion
	}

	value := domain.TextAnswer(payload.Text)
	if question.Kind == domain.KindMultipleChoice {
		if question.MultipleCorrect {
			choices := make([]int, 0, len(payload.Choices))
			for _, display := range payload.Choices {
				original, err := attempt.OriginalChoice(question.ID, display)
				if err != nil {
					return nil, err
				}
				choices = append(choices, original)
			}
			value = domain.ChoicesAnswer(choices...)
		} else {
			if payload.Choice == nil {
				return nil, &domain.ValidationError{Field: "choice", Reason: "is required"}
			}
			original, err := attempt.OriginalChoice(question.ID, *payload.Choice)
			if err != nil {
				return nil, err
			}
			value = domain.ChoiceAnswer(original)
		}
	}
	return h.service.Answer(ctx, attemptID, question.ID, value)
}

func (h *WSHandler) feedback(ctx context.Context, attemptID, questionID string, send chan<- outboundMessage[any]) {
	row, err := h.service.Feedback(ctx, attemptID, questionID)
	if err != nil {
		return
	}
	send <- outboundMessage[any]{Type: "feedback", Payload: row}
}

// report sends the attempt state, or its result once finished.
func (h *WSHandler) report(ctx context.Context, attempt *app.Attempt, send chan<- outboundMessage[any]) bool {
	if !attempt.State().Finished() {
		send <- outboundMessage[any]{Type: "state", Payload: app.View(attempt)}
		return false
	}
	result, err := h.service.Result(ctx, attempt.ID())
	if err != nil {
		send <- errorMessage(err)
		return true
	}
	send <- outboundMessage[any]{Type: "result", Payload: result}
	return true
}
