package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"archetype-chat-service/internal/app"
	"archetype-chat-service/internal/domain"
	"archetype-chat-service/internal/identity"
	"archetype-chat-service/internal/logger"
	"github.com/gorilla/websocket"
)

// StoreFactory returns the durable store holding one device's identity and flags.
type StoreFactory func(deviceID string) identity.Store

type WSHandler struct {
	quizzes  *app.QuizService
	chat     app.ChatAPI
	stores   StoreFactory
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(quizzes *app.QuizService, chat app.ChatAPI, stores StoreFactory, log *logger.Logger) *WSHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &WSHandler{
		quizzes: quizzes,
		chat:    chat,
		stores:  stores,
		log:     log.With("component", "ws"),
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

type textPayload struct {
	Text string `json:"text"`
}

type quizPayload struct {
	QuizID  string                    `json:"quizId"`
	Answers []domain.AnswerSubmission `json:"answers"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades to a websocket carrying one device's conversation. The
// device's session identity lives in the durable store, so reconnecting
// resumes the same session and conversation ids.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		http.Error(w, "missing deviceId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	log := h.log.With("device_id", deviceID)
	store := h.stores(deviceID)
	ids := identity.NewManager(store)
	conv := app.NewConversation(h.chat, ids, log)

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	var inflight sync.WaitGroup

	emit := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-closeSignals:
		case <-writerDone:
		}
	}
	emitError := func(err error) {
		emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
	}
	async := func(fn func()) {
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			fn()
		}()
	}

	// Single writer; gorilla connections do not support concurrent writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Warn("ws write error", "error", err)
				// Unblocks the read loop; nothing drains send from here on.
				_ = conn.Close()
				return
			}
		}
	}()

	conv.OnChange(func(s app.Snapshot) {
		emit(outboundMessage[any]{Type: "state", Payload: s})
	})
	emit(outboundMessage[any]{Type: "state", Payload: conv.Snapshot()})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "init":
			async(func() {
				if err := conv.InitializeSession(ctx); err != nil {
					log.Error("initialize session failed", "error", err)
					emitError(err)
				}
			})
		case "draft":
			var p textPayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil {
				emitError(errors.New("invalid draft payload"))
				continue
			}
			conv.SetDraft(p.Text)
		case "send":
			var p textPayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &p); err != nil {
					emitError(errors.New("invalid send payload"))
					continue
				}
			}
			if p.Text != "" {
				conv.SetDraft(p.Text)
			}
			async(func() {
				if _, err := conv.SendMessage(ctx); err != nil {
					emitError(err)
				}
			})
		case "clear":
			conv.ClearMessages()
		case "newTopic":
			if err := ids.EndConversationOnly(ctx); err != nil {
				emitError(err)
				continue
			}
			conv.ClearMessages()
		case "endSession":
			if err := ids.EndSession(ctx); err != nil {
				emitError(err)
				continue
			}
			conv.ResetSession()
		case "quizSubmit":
			var p quizPayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil || p.QuizID == "" {
				emitError(errors.New("invalid quiz payload"))
				continue
			}
			async(func() {
				sessionID, err := ids.EnsureSession(ctx)
				if err != nil {
					emitError(err)
					return
				}
				out, err := h.quizzes.Submit(ctx, store, sessionID, p.QuizID, p.Answers)
				if err != nil {
					emitError(err)
					return
				}
				emit(outboundMessage[any]{Type: "quizResult", Payload: out})
			})
		default:
			emitError(errors.New("unsupported message type"))
		}
	}

	close(closeSignals)
	cancel()
	inflight.Wait()
	close(send)
	<-writerDone
}
