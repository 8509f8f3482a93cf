// ABOUTME: Minimal server-sent events decoder for trace streams
// ABOUTME: Splits a text/event-stream body into messages with event, data and id fields

package trace

import (
	"bufio"
	"io"
	"strings"
)

// maxMessageSize bounds a single SSE line.
const maxMessageSize = 1 << 20

// message is one dispatched SSE message.
type message struct {
	Event string
	Data  string
	ID    string
	HasID bool
}

// decoder reads SSE messages from a stream body.
type decoder struct {
	scanner *bufio.Scanner
}

func newDecoder(r io.Reader) *decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	return &decoder{scanner: scanner}
}

// next returns the next complete message. It returns io.EOF when the stream
// ends cleanly; a trailing message without its blank line is discarded.
func (d *decoder) next() (message, error) {
	var msg message
	var dataLines []string
	var pending bool

	for d.scanner.Scan() {
		line := d.scanner.Text()

		// Empty line signals end of message
		if line == "" {
			if !pending {
				continue
			}
			msg.Data = strings.Join(dataLines, "\n")
			return msg, nil
		}

		// Comment / keep-alive
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "event":
			msg.Event = value
			pending = true
		case "data":
			dataLines = append(dataLines, value)
			pending = true
		case "id":
			msg.ID = value
			msg.HasID = true
			pending = true
		case "retry":
			// Reconnect timing is owned by Options.RetryDelays.
		}
	}

	if err := d.scanner.Err(); err != nil {
		return message{}, err
	}
	return message{}, io.EOF
}

// splitField splits "field: value", dropping one optional leading space.
func splitField(line string) (string, string) {
	field, value, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	return field, strings.TrimPrefix(value, " ")
}
