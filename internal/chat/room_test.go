package chat

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/codefionn/netserver/internal/config"
	"github.com/codefionn/netserver/internal/message"
	"github.com/codefionn/netserver/internal/socketclient"
	"github.com/codefionn/netserver/internal/socketserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func startChatServer(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultChatConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = freePort(t)

	srv := socketserver.NewServer(cfg, nil, socketserver.WithPollInterval(20*time.Millisecond))
	srv.SetHandler(NewProtocol(socketserver.NewBaseProtocol(nil), srv, nil))
	require.NoError(t, srv.Listen())
	go srv.Serve(context.Background())
	t.Cleanup(func() {
		srv.Stop()
		<-srv.Done()
	})
	return cfg
}

func joinRoom(t *testing.T, cfg *config.Config, name string) *Client {
	t.Helper()
	ccfg := socketclient.DefaultConfig()
	ccfg.Host = cfg.Host
	ccfg.Port = cfg.Port
	conn := socketclient.New(ccfg, nil)
	require.NoError(t, conn.Connect(context.Background()))
	t.Cleanup(func() { conn.Disconnect() })

	c := NewClient(conn, name)
	require.NoError(t, c.Join())
	expectPayload(t, c, "Welcome to the chat, "+name+"!")
	return c
}

func expectPayload(t *testing.T, c *Client, want string) {
	t.Helper()
	msg, err := c.Conn().Receive(3 * time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg, "waiting for %q", want)
	assert.Equal(t, want, msg.PayloadString())
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	msg, err := c.Conn().Receive(200 * time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestRoomBroadcastReachesEveryoneButSender(t *testing.T) {
	cfg := startChatServer(t)

	a := joinRoom(t, cfg, "alice")
	b := joinRoom(t, cfg, "bob")
	expectPayload(t, a, "bob has joined the chat")
	c := joinRoom(t, cfg, "carol")
	expectPayload(t, a, "carol has joined the chat")
	expectPayload(t, b, "carol has joined the chat")

	require.NoError(t, a.Say("hi"))

	expectPayload(t, b, "alice: hi")
	expectPayload(t, c, "alice: hi")
	expectNothing(t, a)
}

func TestRoomLeave(t *testing.T) {
	cfg := startChatServer(t)

	a := joinRoom(t, cfg, "alice")
	b := joinRoom(t, cfg, "bob")
	expectPayload(t, a, "bob has joined the chat")

	require.NoError(t, b.Leave())
	expectPayload(t, a, "bob has left the chat")

	_, err := b.Conn().Receive(3 * time.Second)
	assert.ErrorIs(t, err, socketclient.ErrNotConnected)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestClientStartReceivingPrintsRoomMessages(t *testing.T) {
	cfg := startChatServer(t)

	a := joinRoom(t, cfg, "alice")
	var out syncBuffer
	require.NoError(t, a.StartReceiving(&out))

	b := joinRoom(t, cfg, "bob")
	require.NoError(t, b.Say("hello alice"))

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("bob: hello alice"))
	}, 3*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "bob has joined the chat\n")

	a.Conn().StopReceiving()
	assert.Equal(t, "alice", a.Username())
}

func TestRender(t *testing.T) {
	tests := []struct {
		msg  *message.Message
		want string
		ok   bool
	}{
		{message.New(message.TypeSystem, "Welcome"), "[system] Welcome", true},
		{message.New(message.TypeBroadcast, "a: b"), "a: b", true},
		{message.New(message.TypeHistory, "a: old"), "[history] a: old", true},
		{message.New(message.TypeError, "nope"), "[error] nope", true},
		{message.New(message.TypePong, "pong"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.msg.Type, func(t *testing.T) {
			got, ok := Render(tt.msg)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
