package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"archetype-chat-service/internal/chatapi"
	"archetype-chat-service/internal/domain"
	"archetype-chat-service/internal/errmsg"
	"archetype-chat-service/internal/logger"
	"github.com/google/uuid"
)

// ChatAPI is the remote reply service.
type ChatAPI interface {
	GetGreeting(ctx context.Context, sessionID string) (chatapi.Greeting, error)
	SendMessage(ctx context.Context, req chatapi.SendRequest) (chatapi.SendResponse, error)
}

// Identity supplies the correlation ids attached to every remote call.
type Identity interface {
	EnsureSession(ctx context.Context) (string, error)
	Current(ctx context.Context) (domain.SessionIdentity, uint64, error)
	SetConversationIDIf(ctx context.Context, gen uint64, id string) (bool, error)
}

// Snapshot is a copy of the conversation state handed to observers.
type Snapshot struct {
	Messages       []domain.Message `json:"messages"`
	Draft          string           `json:"draft"`
	AwaitingReply  bool             `json:"awaitingReply"`
	GreetingLoaded bool             `json:"greetingLoaded"`
}

// Conversation keeps the message log for one dialogue and drives the
// request/reply exchange with the remote service.
type Conversation struct {
	api       ChatAPI
	ids       Identity
	log       *logger.Logger
	translate errmsg.Translator
	now       func() time.Time

	mu               sync.Mutex
	messages         []domain.Message
	draft            string
	awaiting         bool
	greetingLoaded   bool
	greetingInFlight bool
	// epoch advances on ResetSession; results of calls started before it are dropped.
	epoch    uint64
	observer func(Snapshot)
}

func NewConversation(api ChatAPI, ids Identity, log *logger.Logger) *Conversation {
	return NewConversationWithClock(api, ids, log, time.Now)
}

// NewConversationWithClock is test-only for deterministic timestamps.
func NewConversationWithClock(api ChatAPI, ids Identity, log *logger.Logger, now func() time.Time) *Conversation {
	if log == nil {
		log = logger.Nop()
	}
	return &Conversation{
		api:       api,
		ids:       ids,
		log:       log.With("component", "conversation"),
		translate: errmsg.English,
		now:       now,
	}
}

// SetTranslator replaces the catalog used for fallback and error text.
func (c *Conversation) SetTranslator(t errmsg.Translator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t != nil {
		c.translate = t
	}
}

// OnChange registers fn to receive a snapshot after every state change.
// fn runs outside the conversation lock.
func (c *Conversation) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = fn
}

// InitializeSession puts the session greeting at the head of the log once.
// Overlapping calls while the greeting is being fetched are no-ops. A failed
// greeting request falls back to the local default greeting; a failed
// identity lookup is returned and leaves the greeting unloaded so the caller
// can retry.
func (c *Conversation) InitializeSession(ctx context.Context) error {
	c.mu.Lock()
	if c.greetingLoaded || c.greetingInFlight {
		c.mu.Unlock()
		return nil
	}
	c.greetingInFlight = true
	epoch := c.epoch
	c.mu.Unlock()

	sessionID, err := c.ids.EnsureSession(ctx)
	if err != nil {
		c.mu.Lock()
		if c.epoch == epoch {
			c.greetingInFlight = false
		}
		c.mu.Unlock()
		return err
	}

	text := ""
	greeting, err := c.api.GetGreeting(ctx, sessionID)
	switch {
	case err != nil:
		c.log.Warn("greeting request failed", "session_id", sessionID, "error", err)
	case strings.TrimSpace(greeting.GreetingMessage) == "":
		c.log.Warn("greeting response empty", "session_id", sessionID)
	default:
		text = greeting.GreetingMessage
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return nil
	}
	if text == "" {
		text = c.translate(errmsg.KeyDefaultGreeting)
	}
	c.greetingInFlight = false
	c.greetingLoaded = true
	// Turns sent before the greeting arrived stay after it.
	c.messages = append([]domain.Message{c.newMessageLocked(text, domain.SenderSystem)}, c.messages...)
	c.notifyAndUnlock()
	return nil
}

func (c *Conversation) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.notifyAndUnlock()
}

func (c *Conversation) ClearDraft() {
	c.SetDraft("")
}

// SendMessage sends the trimmed draft. It returns false without touching the
// log when the draft is blank, and ErrAwaitingReply while a previous send is
// still outstanding. Remote failures never surface as errors: every attempted
// send ends with exactly one system message in the log.
func (c *Conversation) SendMessage(ctx context.Context) (bool, error) {
	c.mu.Lock()
	text := strings.TrimSpace(c.draft)
	if text == "" {
		c.mu.Unlock()
		return false, nil
	}
	if c.awaiting {
		c.mu.Unlock()
		return false, domain.ErrAwaitingReply
	}
	c.appendLocked(text, domain.SenderUser)
	c.draft = ""
	c.awaiting = true
	epoch := c.epoch
	c.notifyAndUnlock()

	settled := false
	defer func() {
		if settled {
			return
		}
		c.mu.Lock()
		c.awaiting = false
		c.notifyAndUnlock()
	}()

	reply := c.exchange(ctx, text)

	c.mu.Lock()
	if c.epoch == epoch {
		c.appendLocked(reply, domain.SenderSystem)
	}
	c.awaiting = false
	settled = true
	c.notifyAndUnlock()
	return true, nil
}

// ClearMessages resets the log to a single local greeting. No remote call is made.
func (c *Conversation) ClearMessages() {
	c.mu.Lock()
	c.messages = nil
	c.appendLocked(c.translate(errmsg.KeyGreetingReset), domain.SenderSystem)
	c.notifyAndUnlock()
}

// ResetSession empties the log after the session identity was ended. The
// next InitializeSession fetches the new session's greeting, and replies or
// greetings still in flight for the old session are discarded.
func (c *Conversation) ResetSession() {
	c.mu.Lock()
	c.epoch++
	c.messages = nil
	c.greetingLoaded = false
	c.greetingInFlight = false
	c.notifyAndUnlock()
}

func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// exchange performs the remote round trip and returns the text of the system
// message to append.
func (c *Conversation) exchange(ctx context.Context, text string) string {
	c.mu.Lock()
	translate := c.translate
	c.mu.Unlock()

	id, gen, err := c.ids.Current(ctx)
	if err != nil {
		c.log.Error("identity lookup failed", "error", err)
		return errmsg.Resolve(err, translate)
	}

	resp, err := c.api.SendMessage(ctx, chatapi.SendRequest{
		Message:                  text,
		SessionID:                id.SessionID,
		ConversationID:           id.ConversationID,
		IncludeArchetypeAnalysis: true,
		UseEnhancedResponse:      true,
	})
	if err != nil {
		c.log.Warn("send message failed", "session_id", id.SessionID, "kind", errmsg.Classify(err), "error", err)
		return errmsg.Resolve(err, translate)
	}
	if resp.Data == nil || strings.TrimSpace(resp.Data.Response) == "" {
		c.log.Warn("send message returned no reply", "session_id", id.SessionID)
		return translate(errmsg.KeyUnexpectedResponse)
	}

	if cid := resp.Data.SessionMetadata.ConversationID; cid != "" && cid != id.ConversationID {
		stored, err := c.ids.SetConversationIDIf(ctx, gen, cid)
		switch {
		case err != nil:
			c.log.Error("persist conversation id failed", "conversation_id", cid, "error", err)
		case !stored:
			c.log.Info("conversation ended before reply, id dropped", "conversation_id", cid)
		}
	}
	return resp.Data.Response
}

func (c *Conversation) appendLocked(text string, sender domain.Sender) {
	c.messages = append(c.messages, c.newMessageLocked(text, sender))
}

func (c *Conversation) newMessageLocked(text string, sender domain.Sender) domain.Message {
	return domain.Message{
		ID:        newMessageID(),
		Text:      text,
		Sender:    sender,
		Timestamp: c.now(),
	}
}

func (c *Conversation) snapshotLocked() Snapshot {
	msgs := make([]domain.Message, len(c.messages))
	copy(msgs, c.messages)
	return Snapshot{
		Messages:       msgs,
		Draft:          c.draft,
		AwaitingReply:  c.awaiting,
		GreetingLoaded: c.greetingLoaded,
	}
}

// notifyAndUnlock releases mu and then delivers the snapshot taken under it.
func (c *Conversation) notifyAndUnlock() {
	snap := c.snapshotLocked()
	fn := c.observer
	c.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// UUIDv7 ids sort in creation order.
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
