package client

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrWong99/chatsim/internal/chatgen"
)

// ErrMalformedFrame is returned by [Reader.Next] for a data frame that does
// not decode into a chat message. The reader stays usable.
var ErrMalformedFrame = errors.New("client: malformed frame")

// maxFrameSize bounds a single SSE line.
const maxFrameSize = 1 << 20

// Event is one frame of a chat stream: either a message or a keep-alive.
type Event struct {
	Message   chatgen.Message
	KeepAlive bool
}

// Reader splits a text/event-stream body into events. Data lines of one
// frame are joined with newlines; comment lines outside a frame are
// keep-alives; other fields are ignored.
type Reader struct {
	sc *bufio.Scanner
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxFrameSize)
	return &Reader{sc: sc}
}

// Next returns the next event. It returns io.EOF when the stream ends
// cleanly between frames.
func (r *Reader) Next() (Event, error) {
	var data []string
	for r.sc.Scan() {
		line := strings.TrimSuffix(r.sc.Text(), "\r")
		switch {
		case line == "":
			if len(data) == 0 {
				continue
			}
			return decode(strings.Join(data, "\n"))
		case strings.HasPrefix(line, ":"):
			if len(data) == 0 {
				return Event{KeepAlive: true}, nil
			}
		default:
			field, value, _ := strings.Cut(line, ":")
			if field == "data" {
				data = append(data, strings.TrimPrefix(value, " "))
			}
		}
	}
	if err := r.sc.Err(); err != nil {
		return Event{}, err
	}
	if len(data) > 0 {
		return Event{}, io.ErrUnexpectedEOF
	}
	return Event{}, io.EOF
}

func decode(payload string) (Event, error) {
	var msg chatgen.Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if msg.Content == "" {
		return Event{}, fmt.Errorf("%w: message without content", ErrMalformedFrame)
	}
	return Event{Message: msg}, nil
}
