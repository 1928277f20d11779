package sse

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"unicode/utf16"
)

// ErrClientGone is returned once a frame can no longer be delivered to the peer.
var ErrClientGone = errors.New("client disconnected")

// SetHeaders prepares w for an event stream. It must run before the first write.
func SetHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Writer writes one frame per event and flushes after each, so bytes reach
// the client as they are produced.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	failed  bool
}

// NewWriter wraps w, which must support http.Flusher.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &Writer{w: w, flusher: flusher}, nil
}

// WriteEvent encodes ev, writes it and flushes. After the first failed
// write every call returns ErrClientGone.
func (w *Writer) WriteEvent(ev Event) error {
	frame := EncodeFrame(ev)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.failed {
		return ErrClientGone
	}
	if _, err := w.w.Write(frame); err != nil {
		w.failed = true
		return fmt.Errorf("%w: %v", ErrClientGone, err)
	}
	w.flusher.Flush()
	return nil
}

// EncodeFrame renders ev as "data: <json>\n\n" in the byte form existing
// clients match on: ", " and ": " separators, fields in wire order and every
// non-ASCII rune escaped as \uXXXX.
func EncodeFrame(ev Event) []byte {
	w := ev.wire()

	var buf bytes.Buffer
	buf.WriteString(`data: {"type": `)
	writeASCIIString(&buf, string(w.Type))
	writeField(&buf, "content", w.Content)
	writeField(&buf, "full_response", w.FullResponse)
	writeField(&buf, "message", w.Message)
	buf.WriteString("}\n\n")
	return buf.Bytes()
}

func writeField(buf *bytes.Buffer, name string, value *string) {
	if value == nil {
		return
	}
	buf.WriteString(`, "`)
	buf.WriteString(name)
	buf.WriteString(`": `)
	writeASCIIString(buf, *value)
}

const hexDigits = "0123456789abcdef"

// writeASCIIString writes s as a JSON string using only printable ASCII.
// Invalid UTF-8 is written as U+FFFD.
func writeASCIIString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r < 0x7f:
				buf.WriteByte(byte(r))
			case r > 0xffff:
				hi, lo := utf16.EncodeRune(r)
				writeUnicodeEscape(buf, hi)
				writeUnicodeEscape(buf, lo)
			default:
				writeUnicodeEscape(buf, r)
			}
		}
	}
	buf.WriteByte('"')
}

func writeUnicodeEscape(buf *bytes.Buffer, r rune) {
	buf.WriteString(`\u`)
	for shift := 12; shift >= 0; shift -= 4 {
		buf.WriteByte(hexDigits[(r>>shift)&0xf])
	}
}
