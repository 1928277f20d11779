package sse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Decoder reads events back from a frame stream. It understands multi-line
// data fields and ignores comments and other fields.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next event, or io.EOF when the stream ends cleanly.
func (d *Decoder) Next() (Event, error) {
	var data []string
	for {
		line, err := d.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read frame: %w", err)
		}
		eof := errors.Is(err, io.EOF)
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if len(data) > 0 {
				return ParseEvent([]byte(strings.Join(data, "\n")))
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}

		if eof {
			if len(data) > 0 {
				return nil, fmt.Errorf("read frame: %w", io.ErrUnexpectedEOF)
			}
			return nil, io.EOF
		}
	}
}

// Collect reads events until a terminal event or io.EOF.
func Collect(r io.Reader) ([]Event, error) {
	dec := NewDecoder(r)
	var events []Event
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
		if IsTerminal(ev) {
			return events, nil
		}
	}
}
