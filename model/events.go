package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Outbound event names (client to server).
const (
	EventNameJoinRoom       = "join_room"
	EventNameLeaveRoom      = "leave_room"
	EventNameSendMessage    = "send_message"
	EventNameEditMessage    = "edit_message"
	EventNameDeleteMessage  = "delete_message"
	EventNameReactToMessage = "react_to_message"
	EventNameTyping         = "typing"
)

// EventKind enumerates inbound event kinds (server to client). Keeping this
// a closed set means every kind has exactly one payload shape.
type EventKind string

const (
	EventNewMessage     EventKind = "new_message"
	EventMessageEdited  EventKind = "message_edited"
	EventMessageDeleted EventKind = "message_deleted"
	EventTyping         EventKind = "typing"

	// EventError is synthesized locally for transport-level failures that
	// happen outside any direct call. It never arrives on the wire.
	EventError EventKind = "error"
)

var ErrUnknownEvent = errors.New("unknown event")

// Envelope frames every message on the realtime connection in both
// directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound payloads.
type (
	JoinRoom struct {
		RoomID int64 `json:"room_id"`
	}

	LeaveRoom struct {
		RoomID int64 `json:"room_id"`
	}

	SendMessage struct {
		RoomID         int64          `json:"room_id"`
		Text           string         `json:"text"`
		Formatting     map[string]any `json:"formatting,omitempty"`
		ImageFilename  string         `json:"image_filename,omitempty"`
		ImageExpiresAt string         `json:"image_expires_at,omitempty"`
		ReplyTo        int64          `json:"reply_to,omitempty"`
	}

	EditMessage struct {
		MessageID int64  `json:"message_id"`
		Text      string `json:"text"`
	}

	DeleteMessage struct {
		MessageID int64 `json:"message_id"`
	}

	ReactToMessage struct {
		MessageID int64  `json:"message_id"`
		Emoji     string `json:"emoji"`
	}

	Typing struct {
		RoomID int64 `json:"room_id"`
	}
)

// Inbound payloads without a full Message record.
type (
	MessageDeleted struct {
		MessageID int64 `json:"message_id"`
	}

	TypingNotice struct {
		RoomID   int64  `json:"room_id"`
		Username string `json:"username,omitempty"`
	}
)

// Event is the decoded form of an inbound envelope: a tag plus the one
// payload field that matches it.
type Event struct {
	Kind    EventKind
	Message *Message        // new_message, message_edited
	Deleted *MessageDeleted // message_deleted
	Typing  *TypingNotice   // typing
	Err     error           // error
}

// DecodeEvent turns an inbound envelope into a typed Event. Unknown event
// names yield ErrUnknownEvent so the caller can drop them.
func DecodeEvent(env Envelope) (Event, error) {
	switch EventKind(env.Event) {
	case EventNewMessage, EventMessageEdited:
		var msg Message
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return Event{Kind: EventKind(env.Event), Message: &msg}, nil
	case EventMessageDeleted:
		var del MessageDeleted
		if err := json.Unmarshal(env.Payload, &del); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return Event{Kind: EventMessageDeleted, Deleted: &del}, nil
	case EventTyping:
		var tn TypingNotice
		if err := json.Unmarshal(env.Payload, &tn); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return Event{Kind: EventTyping, Typing: &tn}, nil
	}
	return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
}
