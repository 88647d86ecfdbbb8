package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func envelope(t *testing.T, event string, payload any) Envelope {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return Envelope{Event: event, Payload: b}
}

func TestDecodeNewMessage(t *testing.T) {
	env := envelope(t, "new_message", Message{
		ID:        12,
		RoomID:    3,
		Text:      "hi",
		Reactions: map[string][]int64{"🔥": {4, 5}},
	})
	ev, err := DecodeEvent(env)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != EventNewMessage || ev.Message == nil {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Message.ID != 12 || ev.Message.RoomID != 3 || len(ev.Message.Reactions["🔥"]) != 2 {
		t.Fatalf("payload mangled: %+v", ev.Message)
	}
}

func TestDecodeMessageDeleted(t *testing.T) {
	ev, err := DecodeEvent(envelope(t, "message_deleted", MessageDeleted{MessageID: 8}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != EventMessageDeleted || ev.Deleted == nil || ev.Deleted.MessageID != 8 {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestDecodeTyping(t *testing.T) {
	ev, err := DecodeEvent(envelope(t, "typing", TypingNotice{RoomID: 2, Username: "ada"}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != EventTyping || ev.Typing == nil || ev.Typing.Username != "ada" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestDecodeUnknownEvent(t *testing.T) {
	_, err := DecodeEvent(Envelope{Event: "presence_update"})
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := DecodeEvent(Envelope{Event: "new_message", Payload: json.RawMessage(`"not an object"`)})
	if err == nil {
		t.Fatal("expected decode error")
	}
}
