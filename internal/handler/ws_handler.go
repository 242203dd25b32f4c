package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/exam"
	"github.com/stemsi/exstem-academy/internal/middleware"
	"github.com/stemsi/exstem-academy/internal/response"
	"github.com/stemsi/exstem-academy/internal/service"
	ws "github.com/stemsi/exstem-academy/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live attempt: timer ticks and completion go out as
// they happen, answer/goto/submit/abandon come in.
type WSHandler struct {
	attempts *service.AttemptService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attempts *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts: attempts,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:attempt_id/stream?token=...
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	attemptID, ok := parseUUIDParam(c, "attempt_id")
	if !ok {
		return
	}

	// Subscribe before upgrading so a foreign or unknown attempt gets a
	// plain HTTP error.
	events, unsubscribe, err := h.attempts.Subscribe(attemptID, claims.UserID)
	if err != nil {
		status, code := errorStatus(err)
		response.Fail(c, status, code)
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", claims.UserID).
		Str("attempt_id", attemptID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	ctx := c.Request.Context()
	out := make(chan interface{}, 16)
	writerDone := make(chan struct{})
	go h.writeLoop(conn, wsLog, events, out, writerDone)

	send := func(v interface{}) bool {
		select {
		case out <- v:
			return true
		case <-writerDone:
			return false
		}
	}

	if !send(h.stateReply(ctx, attemptID, claims.UserID)) {
		return
	}

	for {
		req, err := ws.ReadRequest(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		if !send(h.dispatch(ctx, attemptID, claims.UserID, req)) {
			break
		}
	}
	close(out)
	<-writerDone
}

// writeLoop is the connection's only writer.
func (h *WSHandler) writeLoop(
	conn *websocket.Conn,
	log zerolog.Logger,
	events <-chan service.AttemptEvent,
	out <-chan interface{},
	done chan<- struct{},
) {
	defer close(done)

	for {
		var msg interface{}
		select {
		case ev := <-events:
			switch ev.Type {
			case service.AttemptEventTick:
				msg = ws.TickResponse{Event: ws.EventTick, RemainingSeconds: derefInt(ev.RemainingSeconds)}
			case service.AttemptEventCompleted:
				msg = ws.CompletedResponse{Event: ws.EventCompleted, Outcome: ev.Outcome}
			default:
				continue
			}
		case reply, ok := <-out:
			if !ok {
				return
			}
			msg = reply
		}

		if err := ws.WriteTyped(conn, msg); err != nil {
			log.Debug().Err(err).Msg("Write failed, closing")
			_ = conn.Close()
			return
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, attemptID uuid.UUID, studentID int, req ws.Request) interface{} {
	switch req.Action {
	case ws.ActionPing:
		return ws.PongResponse{Event: ws.EventPong}

	case ws.ActionState:
		return h.stateReply(ctx, attemptID, studentID)

	case ws.ActionAnswer:
		var value exam.Value
		if req.QuestionID == "" || len(req.Value) == 0 || json.Unmarshal(req.Value, &value) != nil {
			return ws.ErrorFor(string(response.ErrInvalidPayload), "question_id and a string or string array value are required")
		}
		if err := h.attempts.Answer(attemptID, studentID, req.QuestionID, value); err != nil {
			return errorReply(err)
		}
		return ws.AckResponse{Event: ws.EventAck, Action: req.Action, QuestionID: req.QuestionID, Value: value}

	case ws.ActionGoto:
		if req.Index == nil {
			return ws.ErrorFor(string(response.ErrInvalidPayload), "index is required")
		}
		view, err := h.attempts.Goto(attemptID, studentID, *req.Index)
		if err != nil {
			return errorReply(err)
		}
		return ws.StateResponse{Event: ws.EventState, Attempt: view}

	case ws.ActionSubmit, ws.ActionAbandon:
		finish := h.attempts.Submit
		if req.Action == ws.ActionAbandon {
			finish = h.attempts.Abandon
		}
		view, err := finish(ctx, attemptID, studentID)
		if err != nil && !(errors.Is(err, exam.ErrPersistence) && view != nil) {
			return errorReply(err)
		}
		// A persistence failure still shows the graded attempt with persist_error set.
		return ws.StateResponse{Event: ws.EventState, Attempt: view}

	default:
		return ws.ErrorFor(string(response.ErrInvalidPayload), "unknown action: "+string(req.Action))
	}
}

func (h *WSHandler) stateReply(ctx context.Context, attemptID uuid.UUID, studentID int) interface{} {
	view, err := h.attempts.State(ctx, attemptID, studentID)
	if err != nil {
		return errorReply(err)
	}
	return ws.StateResponse{Event: ws.EventState, Attempt: view}
}

func errorReply(err error) ws.ErrorResponse {
	_, code := errorStatus(err)
	return ws.ErrorFor(string(code), response.GetMessage(code))
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
