package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"timestable-quiz/internal/app"
	"timestable-quiz/internal/domain"
	"timestable-quiz/internal/logger"
	"timestable-quiz/internal/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service  *app.QuizService
	log      logger.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, log logger.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
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

// startPayload.Count, when sent, must match the server's question count.
type startPayload struct {
	Count *int `json:"count"`
}

// answerPayload.Index is the question index the client answered; when set,
// answers for any other index are rejected.
type answerPayload struct {
	Index  *int `json:"index"`
	Choice *int `json:"choice"`
}

type submitPayload struct {
	Name string `json:"name"`
}

type leaderboardPayload struct {
	Limit int `json:"limit"`
}

type sessionInfo struct {
	SessionID string       `json:"sessionId"`
	Phase     domain.Phase `json:"phase"`
}

type questionView struct {
	Index      int    `json:"index"`
	Total      int    `json:"total"`
	Prompt     string `json:"prompt"`
	Candidates []int  `json:"candidates"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and drives one quiz session
// per connection. Messages are handled one at a time in read order.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "ws upgrade failed", logger.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	c := &wsConn{conn: conn, sessionID: sessionID, service: h.service, log: h.log}

	state, err := h.service.Open(ctx, sessionID)
	if err != nil {
		c.sendError(err)
		return
	}
	if err := c.send("session", sessionInfo{SessionID: sessionID, Phase: state.Phase}); err != nil {
		return
	}
	// Resume whatever the session was doing before a reconnect.
	if err := c.sendState(ctx, state); err != nil {
		return
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := c.handle(ctx, inbound); err != nil {
			h.log.Debug(ctx, "ws write error", logger.String("session_id", sessionID), logger.Error(err))
			break
		}
	}
}

type wsConn struct {
	conn      *websocket.Conn
	sessionID string
	service   *app.QuizService
	log       logger.Logger
}

// handle processes one inbound message. It only returns write errors;
// domain errors are reported to the client.
func (c *wsConn) handle(ctx context.Context, inbound inboundMessage) error {
	switch inbound.Type {
	case "start":
		var payload startPayload
		if err := decodePayload(inbound.Payload, &payload); err != nil {
			return c.badRequest("invalid start payload")
		}
		if payload.Count != nil && *payload.Count != c.service.QuestionCount() {
			return c.badRequest(fmt.Sprintf("count must be %d", c.service.QuestionCount()))
		}
		state, err := c.service.Start(ctx, c.sessionID)
		if err != nil {
			return c.sendError(err)
		}
		return c.sendState(ctx, state)

	case "answer":
		var payload answerPayload
		if err := decodePayload(inbound.Payload, &payload); err != nil || payload.Choice == nil {
			return c.badRequest("invalid answer payload")
		}
		var (
			res   domain.AnswerResult
			state *session.State
			err   error
		)
		if payload.Index != nil {
			res, state, err = c.service.AnswerAt(ctx, c.sessionID, *payload.Index, *payload.Choice)
		} else {
			res, state, err = c.service.Answer(ctx, c.sessionID, *payload.Choice)
		}
		if err != nil {
			return c.sendError(err)
		}
		if err := c.send("answerResult", res); err != nil {
			return err
		}
		return c.sendState(ctx, state)

	case "submit":
		var payload submitPayload
		if err := decodePayload(inbound.Payload, &payload); err != nil {
			return c.badRequest("invalid submit payload")
		}
		result, err := c.service.Submit(ctx, c.sessionID, payload.Name)
		if err != nil {
			return c.sendError(err)
		}
		return c.send("submitted", result)

	case "result":
		result, err := c.service.Result(ctx, c.sessionID)
		if err != nil {
			return c.sendError(err)
		}
		return c.send("finished", result)

	case "restart":
		state, err := c.service.Restart(ctx, c.sessionID)
		if err != nil {
			return c.sendError(err)
		}
		return c.send("restarted", sessionInfo{SessionID: c.sessionID, Phase: state.Phase})

	case "leaderboard":
		var payload leaderboardPayload
		if err := decodePayload(inbound.Payload, &payload); err != nil {
			return c.badRequest("invalid leaderboard payload")
		}
		entries, err := c.service.Leaderboard(ctx, payload.Limit)
		if err != nil {
			return c.sendError(err)
		}
		return c.send("leaderboard", boardResponse{Entries: ranked(entries)})

	default:
		return c.badRequest("unsupported message type")
	}
}

// sendState pushes the next question of an active run or the result of a
// finished one. Idle sessions get nothing.
func (c *wsConn) sendState(ctx context.Context, state *session.State) error {
	switch state.Phase {
	case domain.PhaseInProgress:
		item, ok := state.Current()
		if !ok {
			return nil
		}
		return c.send("question", questionView{
			Index:      state.CurrentIndex,
			Total:      len(state.Items),
			Prompt:     item.Prompt,
			Candidates: item.Candidates,
		})
	case domain.PhaseFinished:
		result, err := c.service.Result(ctx, c.sessionID)
		if err != nil {
			return c.sendError(err)
		}
		return c.send("finished", result)
	}
	return nil
}

func (c *wsConn) send(typ string, payload any) error {
	return c.conn.WriteJSON(outboundMessage[any]{Type: typ, Payload: payload})
}

func (c *wsConn) badRequest(msg string) error {
	return c.send("error", errorPayload{Code: "bad_request", Message: msg})
}

func (c *wsConn) sendError(err error) error {
	code := errorCode(err)
	if code == "internal" || code == "persistence" {
		c.log.Error(context.Background(), "quiz operation failed", logger.String("session_id", c.sessionID), logger.Error(err))
	}
	return c.send("error", errorPayload{Code: code, Message: err.Error()})
}

func errorCode(err error) string {
	var perr *domain.PersistenceError
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrAlreadySubmitted):
		return "already_submitted"
	case errors.Is(err, domain.ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, domain.ErrSessionNotFound):
		return "session_not_found"
	case errors.As(err, &perr):
		return "persistence"
	default:
		return "internal"
	}
}

// decodePayload tolerates an absent payload.
func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
