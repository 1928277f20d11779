// Package sse implements the chat streaming protocol: a fixed lifecycle of
// start, token, end and error events, each written as one Server-Sent Events
// frame of the form "data: <json>\n\n".
package sse

import (
	"encoding/json"
	"fmt"
)

// EventType is the value of the "type" field of every frame.
type EventType string

const (
	TypeStart EventType = "start"
	TypeToken EventType = "token"
	TypeEnd   EventType = "end"
	TypeError EventType = "error"
)

// Event is one of Start, Token, End or Error.
type Event interface {
	Type() EventType
	wire() wireEvent
}

// Start opens the stream before any model output is requested.
type Start struct{}

// Token carries one fragment of model output.
type Token struct {
	Content string
}

// End closes a successful stream with the concatenation of all tokens.
type End struct {
	FullResponse string
}

// Error closes a failed stream. No End follows it.
type Error struct {
	Message string
}

func (Start) Type() EventType { return TypeStart }
func (Token) Type() EventType { return TypeToken }
func (End) Type() EventType   { return TypeEnd }
func (Error) Type() EventType { return TypeError }

// IsTerminal reports whether ev ends a stream.
func IsTerminal(ev Event) bool {
	t := ev.Type()
	return t == TypeEnd || t == TypeError
}

// wireEvent is the JSON shape shared by all events. Pointers keep empty
// strings on the wire, e.g. {"type": "end", "full_response": ""}.
type wireEvent struct {
	Type         EventType `json:"type"`
	Content      *string   `json:"content,omitempty"`
	FullResponse *string   `json:"full_response,omitempty"`
	Message      *string   `json:"message,omitempty"`
}

func (Start) wire() wireEvent   { return wireEvent{Type: TypeStart} }
func (e Token) wire() wireEvent { return wireEvent{Type: TypeToken, Content: &e.Content} }
func (e End) wire() wireEvent   { return wireEvent{Type: TypeEnd, FullResponse: &e.FullResponse} }
func (e Error) wire() wireEvent { return wireEvent{Type: TypeError, Message: &e.Message} }

func (w wireEvent) event() (Event, error) {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	switch w.Type {
	case TypeStart:
		return Start{}, nil
	case TypeToken:
		return Token{Content: deref(w.Content)}, nil
	case TypeEnd:
		return End{FullResponse: deref(w.FullResponse)}, nil
	case TypeError:
		return Error{Message: deref(w.Message)}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", w.Type)
	}
}

// ParseEvent decodes the JSON payload of a frame.
func ParseEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return w.event()
}
