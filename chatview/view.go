// Package chatview keeps the displayed message list for the active chat
// room consistent with the server's event stream, and performs the
// optimistic upload-then-send for outgoing messages.
package chatview

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/ciesa/portal-client/model"
	"github.com/ciesa/portal-client/realtime"
	"github.com/rs/zerolog"
)

const typingWindow = 4 * time.Second

var (
	ErrUpload = errors.New("image upload failed, send aborted")
	ErrNoRoom = errors.New("no active room")
)

// Realtime is the slice of the connection manager the view needs.
type Realtime interface {
	JoinRoom(ctx context.Context, roomID int64) error
	SendMessage(ctx context.Context, msg model.SendMessage) error
	EditMessage(ctx context.Context, messageID int64, text string) error
	DeleteMessage(ctx context.Context, messageID int64) error
	ReactToMessage(ctx context.Context, messageID int64, emoji string) error
	Typing(ctx context.Context, roomID int64) error
	On(kind model.EventKind, h realtime.Handler) int
	Off(kind model.EventKind, id int)
}

// API is the REST boundary the view consumes.
type API interface {
	MessagesByRoom(ctx context.Context, roomID int64, limit, offset int) ([]model.Message, error)
	UploadChatImage(ctx context.Context, filename string, r io.Reader) (*model.ChatImage, error)
}

type Config struct {
	Logger   *zerolog.Logger
	Realtime Realtime
	API      API
}

type attachment struct {
	filename string
	r        io.Reader
}

// View is the reconciler for one chat surface. All collection mutations run
// under mu; inbound patches arrive serialized from the manager's receive
// loop, local intents from whichever goroutine drives the UI.
type View struct {
	logger zerolog.Logger
	rt     Realtime
	api    API

	subs map[model.EventKind]int

	mu         sync.Mutex
	roomID     int64
	messages   []model.Message
	draft      string
	image      *attachment
	typingUser string
	typingAt   time.Time
}

func New(cfg Config) *View {
	v := &View{
		logger: cfg.Logger.With().Str("component", "chatview").Logger(),
		rt:     cfg.Realtime,
		api:    cfg.API,
	}
	v.subs = map[model.EventKind]int{
		model.EventNewMessage:     v.rt.On(model.EventNewMessage, v.handleNewMessage),
		model.EventMessageEdited:  v.rt.On(model.EventMessageEdited, v.handleMessageEdited),
		model.EventMessageDeleted: v.rt.On(model.EventMessageDeleted, v.handleMessageDeleted),
		model.EventTyping:         v.rt.On(model.EventTyping, v.handleTyping),
	}
	return v
}

// Close detaches the view's handlers. In-flight fetches are not aborted;
// their results are simply never applied anywhere.
func (v *View) Close() {
	for kind, id := range v.subs {
		v.rt.Off(kind, id)
	}
}

// SetRoom switches the active room: the previous collection is discarded,
// the room is joined and the authoritative list fetched. Events for the
// previous room keep arriving for a while; the handlers drop them by room id.
func (v *View) SetRoom(ctx context.Context, roomID int64) error {
	v.mu.Lock()
	v.roomID = roomID
	v.messages = nil
	v.typingUser = ""
	v.mu.Unlock()

	if err := v.rt.JoinRoom(ctx, roomID); err != nil {
		return err
	}
	msgs, err := v.api.MessagesByRoom(ctx, roomID, 0, 0)
	if err != nil {
		return err
	}

	v.mu.Lock()
	if v.roomID == roomID {
		v.messages = msgs
	}
	v.mu.Unlock()

	v.logger.Debug().Int64("roomID", roomID).Int("messages", len(msgs)).Msg("room switched")
	return nil
}

// RoomID returns the active room id, zero when none is selected.
func (v *View) RoomID() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.roomID
}

// Messages returns a snapshot of the displayed collection in server
// delivery order.
func (v *View) Messages() []model.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]model.Message, len(v.messages))
	copy(out, v.messages)
	return out
}

// SetDraft stores the pending outgoing text.
func (v *View) SetDraft(text string) {
	v.mu.Lock()
	v.draft = text
	v.mu.Unlock()
}

func (v *View) Draft() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.draft
}

// AttachImage stages an image for the next send.
func (v *View) AttachImage(filename string, r io.Reader) {
	v.mu.Lock()
	v.image = &attachment{filename: filename, r: r}
	v.mu.Unlock()
}

// Send emits the draft as a send_message event. When an image is attached it
// is uploaded first and its filename and expiry embedded in the payload; an
// upload failure aborts the whole send and leaves draft and attachment in
// place for a retry. An empty draft with no attachment is a no-op.
func (v *View) Send(ctx context.Context) error {
	v.mu.Lock()
	roomID, draft, img := v.roomID, v.draft, v.image
	v.mu.Unlock()

	if draft == "" && img == nil {
		return nil
	}
	if roomID == 0 {
		return ErrNoRoom
	}

	payload := model.SendMessage{RoomID: roomID, Text: draft}
	if img != nil {
		uploaded, err := v.api.UploadChatImage(ctx, img.filename, img.r)
		if err != nil {
			v.logger.Error().Err(err).Str("filename", img.filename).Msg("image upload failed")
			return errors.Join(ErrUpload, err)
		}
		payload.ImageFilename = uploaded.Filename
		payload.ImageExpiresAt = uploaded.ExpiresAt
	}

	if err := v.rt.SendMessage(ctx, payload); err != nil {
		return err
	}

	// Clear only what was actually sent: a draft rewritten while the
	// emit was in flight stays pending.
	v.mu.Lock()
	if v.draft == draft {
		v.draft = ""
	}
	if v.image == img {
		v.image = nil
	}
	v.mu.Unlock()
	return nil
}

func (v *View) Edit(ctx context.Context, messageID int64, text string) error {
	return v.rt.EditMessage(ctx, messageID, text)
}

func (v *View) Delete(ctx context.Context, messageID int64) error {
	return v.rt.DeleteMessage(ctx, messageID)
}

func (v *View) React(ctx context.Context, messageID int64, emoji string) error {
	return v.rt.ReactToMessage(ctx, messageID, emoji)
}

// Typing announces that the local user is typing in the active room.
func (v *View) Typing(ctx context.Context) error {
	roomID := v.RoomID()
	if roomID == 0 {
		return ErrNoRoom
	}
	return v.rt.Typing(ctx, roomID)
}

// TypingUser reports who is currently typing in the active room, or "" when
// the last notice is stale.
func (v *View) TypingUser() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if time.Since(v.typingAt) > typingWindow {
		return ""
	}
	return v.typingUser
}

// handleNewMessage appends unconditionally. There is deliberately no id
// de-duplication: delivery is trusted to be at-most-once, and a redelivered
// event would show up twice rather than be masked here.
func (v *View) handleNewMessage(ev model.Event) {
	msg := ev.Message
	v.mu.Lock()
	defer v.mu.Unlock()
	if msg == nil || msg.RoomID != v.roomID {
		return
	}
	v.messages = append(v.messages, *msg)
}

// handleMessageEdited replaces the matching record wholesale. A miss means
// the room switched mid-flight or the entry is gone; the event is dropped.
func (v *View) handleMessageEdited(ev model.Event) {
	msg := ev.Message
	v.mu.Lock()
	defer v.mu.Unlock()
	if msg == nil || msg.RoomID != v.roomID {
		return
	}
	for i := range v.messages {
		if v.messages[i].ID == msg.ID {
			v.messages[i] = *msg
			return
		}
	}
}

func (v *View) handleMessageDeleted(ev model.Event) {
	if ev.Deleted == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.messages {
		if v.messages[i].ID == ev.Deleted.MessageID {
			v.messages = append(v.messages[:i], v.messages[i+1:]...)
			return
		}
	}
}

func (v *View) handleTyping(ev model.Event) {
	tn := ev.Typing
	v.mu.Lock()
	defer v.mu.Unlock()
	if tn == nil || tn.RoomID != v.roomID {
		return
	}
	v.typingUser = tn.Username
	v.typingAt = time.Now()
}
