package chat

import (
	"fmt"
	"io"
	"sync"

	"github.com/codefionn/netserver/internal/message"
	"github.com/codefionn/netserver/internal/socketclient"
)

// Client is a chat room member on top of a protocol client
type Client struct {
	conn     *socketclient.Client
	username string
}

// NewClient wraps a connected or not yet connected protocol client
func NewClient(conn *socketclient.Client, username string) *Client {
	return &Client{conn: conn, username: username}
}

// Username returns the name used when joining
func (c *Client) Username() string {
	return c.username
}

// Conn returns the underlying protocol client
func (c *Client) Conn() *socketclient.Client {
	return c.conn
}

// Join announces the username to the room
func (c *Client) Join() error {
	return c.conn.Send(message.New(message.TypeJoin, c.username))
}

// Say sends one chat line
func (c *Client) Say(text string) error {
	return c.conn.Send(message.New(message.TypeChat, text))
}

// Leave tells the room the member is leaving. The server closes the
// connection afterwards.
func (c *Client) Leave() error {
	return c.conn.Send(message.New(message.TypeLeave, nil))
}

// StartReceiving prints incoming room messages to w until the receiver is
// stopped
func (c *Client) StartReceiving(w io.Writer) error {
	var mu sync.Mutex
	return c.conn.StartReceiving(func(msg *message.Message) {
		line, ok := Render(msg)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(w, line)
	})
}

// Render formats a room message for display. It reports false for messages
// that are not meant for the user.
func Render(msg *message.Message) (string, bool) {
	switch msg.Type {
	case message.TypeSystem:
		return "[system] " + msg.PayloadString(), true
	case message.TypeBroadcast:
		return msg.PayloadString(), true
	case message.TypeHistory:
		return "[history] " + msg.PayloadString(), true
	case message.TypeError:
		return "[error] " + msg.PayloadString(), true
	default:
		return "", false
	}
}
