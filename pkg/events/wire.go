package events

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/agentstation/livefeed/pkg/errors"
)

// ContentType is the media type of the wire stream.
const ContentType = "text/event-stream"

// maxFrameSize bounds a single data line read by a Decoder.
const maxFrameSize = 1 << 20

var (
	framePrefix = []byte("data: ")
	frameSuffix = []byte("\n\n")
)

// Frame wraps an already serialized envelope in the wire framing:
//
//	data: <json>\n\n
func Frame(payload []byte) []byte {
	frame := make([]byte, 0, len(framePrefix)+len(payload)+len(frameSuffix))
	frame = append(frame, framePrefix...)
	frame = append(frame, payload...)
	return append(frame, frameSuffix...)
}

// Encode serializes env and frames it for the wire.
func Encode(env Envelope) ([]byte, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return Frame(payload), nil
}

// Write encodes env and writes the frame to w in a single call.
func Write(w io.Writer, env Envelope) error {
	frame, err := Encode(env)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// Decoder reads envelopes from a text/event-stream body. Comment lines and
// fields other than data are ignored; consecutive data lines are joined
// with a newline.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameSize)
	return &Decoder{scanner: scanner}
}

// NextData returns the data of the next message. It returns io.EOF when the
// stream ends cleanly.
func (d *Decoder) NextData() (string, error) {
	var data strings.Builder
	var hasData bool

	for d.scanner.Scan() {
		line := d.scanner.Text()

		// Blank line terminates a message
		if line == "" {
			if hasData {
				return data.String(), nil
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := parseLine(line)
		if field != "data" {
			continue
		}
		if hasData {
			data.WriteByte('\n')
		}
		data.WriteString(value)
		hasData = true
	}

	if err := d.scanner.Err(); err != nil {
		return "", err
	}
	if hasData {
		return data.String(), nil
	}
	return "", io.EOF
}

// Next returns the next envelope. A malformed message yields a
// *errors.DecodeError; the Decoder stays usable and the caller may keep
// reading. Any other error is terminal.
func (d *Decoder) Next() (Envelope, error) {
	data, err := d.NextData()
	if err != nil {
		return Envelope{}, err
	}

	var env Envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return Envelope{}, errors.NewDecodeError(data, err)
	}
	return env, nil
}

// parseLine splits one stream line into field and value.
func parseLine(line string) (field, value string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return line, ""
	}
	field = line[:idx]
	value = line[idx+1:]
	// A single leading space after the colon is not part of the value
	if value != "" && value[0] == ' ' {
		value = value[1:]
	}
	return field, value
}
