package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Delimiter terminates every frame on the wire
const Delimiter = '\n'

// ErrNotObject is returned when a frame is valid JSON but not an object
var ErrNotObject = errors.New("frame is not a JSON object")

// DecodeError reports a frame that could not be decoded into a Message
type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid message frame (%d bytes): %v", len(e.Raw), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Encode serializes the message as one JSON object followed by the delimiter
func Encode(m *Message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("cannot encode nil message")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", m.Type, err)
	}
	return append(data, Delimiter), nil
}

// Decode parses exactly one JSON object. The wire timestamp is not trusted:
// the decoded message is stamped with the time it was constructed.
func Decode(data []byte) (*Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &DecodeError{Raw: data, Err: ErrNotObject}
	}

	var m Message
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, &DecodeError{Raw: data, Err: err}
	}
	m.Timestamp = time.Now().Unix()
	return &m, nil
}

// Parse never fails: a frame that does not decode becomes a text message
// whose payload is the trimmed raw input.
func Parse(raw []byte) *Message {
	m, err := Decode(raw)
	if err == nil {
		return m
	}
	return New(TypeText, string(bytes.TrimSpace(raw)))
}
