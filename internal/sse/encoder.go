package sse

import (
	"fmt"
	"iter"
	"strings"
)

// Events wraps a fragment sequence in the stream lifecycle:
//
//	Start, Token*, End{concatenation of tokens}
//
// Start is yielded before the first fragment is requested. If producing a
// fragment panics, the sequence yields Error and stops without End. Panics
// raised by the consumer are not recovered. Stopping the range early stops the
// fragment producer as well.
func Events(fragments iter.Seq[string]) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if !yield(Start{}) {
			return
		}

		next, stop := iter.Pull(fragments)
		defer stop()

		var full strings.Builder
		for {
			fragment, ok, err := pull(next)
			if err != nil {
				yield(Error{Message: err.Error()})
				return
			}
			if !ok {
				yield(End{FullResponse: full.String()})
				return
			}
			full.WriteString(fragment)
			if !yield(Token{Content: fragment}) {
				return
			}
		}
	}
}

// pull calls next, turning a panic in the producer into an error.
func pull(next func() (string, bool)) (fragment string, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, isErr := r.(error); isErr {
				err = e
			} else {
				err = fmt.Errorf("%v", r)
			}
		}
	}()
	fragment, ok = next()
	return fragment, ok, nil
}
