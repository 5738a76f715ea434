package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts the host, player and resync endpoints.
func (h *WSHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws/host", h.ServeHost)
	mux.HandleFunc("/ws/play", h.ServePlay)
	mux.HandleFunc("GET /sessions/{id}/state", h.ServeState)
	mux.HandleFunc("GET /sessions/{id}/players/{playerId}", h.ServePlayerStatus)
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID  string `json:"questionId"`
	OptionIndex *int   `json:"optionIndex"`
}

type modifierPayload struct {
	Kind domain.ModifierKind `json:"kind"`
}

type hostedPayload struct {
	SessionID string       `json:"sessionId"`
	PIN       string       `json:"pin"`
	State     domain.State `json:"state"`
}

type joinedPayload struct {
	PlayerID string              `json:"playerId"`
	State    domain.State        `json:"state"`
	Status   domain.PlayerStatus `json:"status"`
}

type playerStatePayload struct {
	State  domain.State        `json:"state"`
	Status domain.PlayerStatus `json:"status"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeHost creates a session for ?quizId= and drives it with host commands.
// Closing the socket aborts a running session and releases it.
func (h *WSHandler) ServeHost(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	state, err := h.service.Host(ctx, quizID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	sessionID := state.SessionID
	defer h.service.Release(context.WithoutCancel(ctx), sessionID)

	updates, cancel, err := h.service.Subscribe(ctx, sessionID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	c := newWSConn(conn)
	c.push("hosted", hostedPayload{SessionID: sessionID, PIN: state.PIN, State: state})
	c.forward(updates, func(domain.Event) bool { return true })
	log.Printf("host connected session_id=%s quiz_id=%s", sessionID, quizID)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var cmdErr error
		switch inbound.Type {
		case "start":
			cmdErr = h.service.Start(ctx, sessionID)
		case "showLeaderboard":
			cmdErr = h.service.ShowLeaderboard(ctx, sessionID)
		case "next":
			cmdErr = h.service.Next(ctx, sessionID)
		case "abort":
			cmdErr = h.service.Abort(ctx, sessionID)
		case "state":
			var current domain.State
			current, cmdErr = h.service.CurrentState(ctx, sessionID)
			if cmdErr == nil {
				c.push("state", current)
			}
		default:
			cmdErr = errors.New("unsupported message type")
		}
		if cmdErr != nil {
			c.push("error", errorPayload{Message: cmdErr.Error()})
		}
	}

	c.close()
	log.Printf("host disconnected session_id=%s", sessionID)
}

// ServePlay joins the session named by ?pin= or ?sessionId=. A known ?playerId=
// resumes that player instead of joining again.
func (h *WSHandler) ServePlay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx := r.Context()

	sessionID := q.Get("sessionId")
	if pin := q.Get("pin"); sessionID == "" && pin != "" {
		id, err := h.service.LookupPIN(ctx, pin)
		if err != nil {
			http.Error(w, "unknown pin", http.StatusNotFound)
			return
		}
		sessionID = id
	}
	playerID := q.Get("playerId")
	if sessionID == "" || (playerID == "" && q.Get("name") == "") {
		http.Error(w, "missing pin or sessionId, and name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel, err := h.service.Subscribe(ctx, sessionID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	joined, err := h.joinOrResume(ctx, sessionID, playerID, domain.JoinRequest{
		Nickname:  q.Get("name"),
		AvatarID:  q.Get("avatar"),
		AccountID: q.Get("accountId"),
	})
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	playerID = joined.PlayerID

	c := newWSConn(conn)
	c.push("joined", joined)
	c.forward(updates, func(ev domain.Event) bool { return !ev.HostOnly() })

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var cmdErr error
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				cmdErr = errors.New("invalid answer payload")
				break
			}
			var res domain.AnswerResult
			res, cmdErr = h.service.Submit(ctx, sessionID, playerID, payload.QuestionID, payload.OptionIndex)
			if cmdErr == nil {
				c.push("answerResult", res)
			}
		case "modifier":
			var payload modifierPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				cmdErr = errors.New("invalid modifier payload")
				break
			}
			var res domain.ModifierResult
			res, cmdErr = h.service.ActivateModifier(ctx, sessionID, playerID, payload.Kind)
			if cmdErr == nil {
				c.push("modifier", res)
			}
		case "state":
			var current playerStatePayload
			if current.State, cmdErr = h.service.CurrentState(ctx, sessionID); cmdErr != nil {
				break
			}
			if current.Status, cmdErr = h.service.PlayerStatus(ctx, sessionID, playerID); cmdErr == nil {
				c.push("state", current)
			}
		default:
			cmdErr = errors.New("unsupported message type")
		}
		if cmdErr != nil && !domain.IsIgnorable(cmdErr) {
			c.push("error", errorPayload{Message: cmdErr.Error()})
		}
	}

	c.close()
}

func (h *WSHandler) joinOrResume(ctx context.Context, sessionID, playerID string, req domain.JoinRequest) (joinedPayload, error) {
	if playerID != "" {
		status, err := h.service.PlayerStatus(ctx, sessionID, playerID)
		if err != nil {
			return joinedPayload{}, err
		}
		state, err := h.service.CurrentState(ctx, sessionID)
		if err != nil {
			return joinedPayload{}, err
		}
		return joinedPayload{PlayerID: playerID, State: state, Status: status}, nil
	}
	res, err := h.service.Join(ctx, sessionID, req)
	if err != nil {
		return joinedPayload{}, err
	}
	return joinedPayload{PlayerID: res.PlayerID, State: res.State, Status: res.Status}, nil
}

// ServeState is the JSON resync read of a session.
func (h *WSHandler) ServeState(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.CurrentState(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// ServePlayerStatus is the JSON resync read of one player.
func (h *WSHandler) ServePlayerStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.PlayerStatus(r.Context(), r.PathValue("id"), r.PathValue("playerId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrPlayerNotFound) {
		code = http.StatusNotFound
	}
	writeJSON(w, code, errorPayload{Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response failed: %v", err)
	}
}

// wsConn serializes writes to one socket. Every write goes through send and a
// single writer goroutine.
type wsConn struct {
	conn         *websocket.Conn
	send         chan outboundMessage[any]
	closeSignals chan struct{}
	writerDone   chan struct{}
	updatesDone  chan struct{}
}

func newWSConn(conn *websocket.Conn) *wsConn {
	c := &wsConn{
		conn:         conn,
		send:         make(chan outboundMessage[any], 16),
		closeSignals: make(chan struct{}),
		writerDone:   make(chan struct{}),
		updatesDone:  make(chan struct{}),
	}
	go func() {
		defer close(c.writerDone)
		failed := false
		for msg := range c.send {
			if failed {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				failed = true
				// unblocks the read loop
				_ = conn.Close()
			}
		}
	}()
	return c
}

// forward relays session events accepted by keep until close is called.
func (c *wsConn) forward(updates <-chan domain.Event, keep func(domain.Event) bool) {
	go func() {
		defer close(c.updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				if !keep(ev) {
					continue
				}
				select {
				case c.send <- outboundMessage[any]{Type: "event", Payload: ev}:
				case <-c.closeSignals:
					return
				}
			case <-c.closeSignals:
				return
			}
		}
	}()
}

func (c *wsConn) push(typ string, payload any) {
	c.send <- outboundMessage[any]{Type: typ, Payload: payload}
}

// close stops forwarding and waits for pending writes. It must be called once,
// after forward.
func (c *wsConn) close() {
	close(c.closeSignals)
	<-c.updatesDone
	close(c.send)
	<-c.writerDone
}
