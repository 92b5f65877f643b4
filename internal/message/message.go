package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message type constants shared by the base protocol, the chat extension and clients
const (
	// Control messages
	TypePing       = "ping"
	TypePong       = "pong"
	TypeEcho       = "echo"
	TypeEchoResp   = "echo_response"
	TypeText       = "text"
	TypeTextResp   = "text_response"
	TypeDisconnect = "disconnect"
	TypeDisconnAck = "disconnect_ack"

	// Error
	TypeError = "error"

	// Chat
	TypeJoin      = "join"
	TypeChat      = "chat"
	TypeLeave     = "leave"
	TypeSystem    = "system"
	TypeBroadcast = "broadcast"
	TypeHistory   = "history"
)

// Message is the protocol envelope. It is treated as immutable once constructed.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
	ClientID  *uint64         `json:"client_id"`
}

// New creates a message with the given type and payload, stamped with the
// current time. A payload that cannot be marshaled is stored as null.
func New(msgType string, payload interface{}) *Message {
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}

	return &Message{
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().Unix(),
	}
}

// NewRaw creates a message whose payload is already encoded JSON. The bytes
// are carried verbatim; an empty payload is sent as null.
func NewRaw(msgType string, payload json.RawMessage) *Message {
	return &Message{
		Type:      msgType,
		Payload:   append(json.RawMessage(nil), payload...),
		Timestamp: time.Now().Unix(),
	}
}

// NewForClient creates a message addressed to the given connection id
func NewForClient(msgType string, payload interface{}, clientID uint64) *Message {
	return New(msgType, payload).WithClientID(clientID)
}

// WithClientID returns a copy of the message carrying the given client id
func (m *Message) WithClientID(clientID uint64) *Message {
	cp := *m
	id := clientID
	cp.ClientID = &id
	return &cp
}

// HasClientID reports whether the message carries a client id
func (m *Message) HasClientID() bool {
	return m.ClientID != nil
}

// PayloadString returns a JSON string payload unquoted and any other payload
// as its raw JSON text. A missing or null payload yields "".
func (m *Message) PayloadString() string {
	if len(m.Payload) == 0 || string(m.Payload) == "null" {
		return ""
	}
	if m.Payload[0] == '"' {
		var s string
		if err := json.Unmarshal(m.Payload, &s); err == nil {
			return s
		}
	}
	return string(m.Payload)
}

// Time returns the construction timestamp
func (m *Message) Time() time.Time {
	return time.Unix(m.Timestamp, 0)
}

func (m *Message) String() string {
	return fmt.Sprintf("[%s] %s", m.Type, m.PayloadString())
}
