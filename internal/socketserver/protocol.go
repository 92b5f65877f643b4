package socketserver

import (
	"fmt"
	"sort"

	"github.com/codefionn/netserver/internal/logger"
	"github.com/codefionn/netserver/internal/message"
)

// Peer is the side of a connection a handler talks to
type Peer interface {
	ID() uint64
	SendMessage(msg *message.Message) error
	Close() error
	IsClosed() bool
}

// Handler processes one decoded message from a peer. A returned error closes
// that peer's connection; ErrClosed is ignored.
type Handler interface {
	Handle(msg *message.Message, peer Peer) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(msg *message.Message, peer Peer) error

// Handle calls f
func (f HandlerFunc) Handle(msg *message.Message, peer Peer) error {
	return f(msg, peer)
}

// Router is a Handler that can tell which handler a message type reaches
type Router interface {
	Handler
	Resolve(msgType string) (Handler, bool)
}

// FanOut delivers a message to every open connection except one
type FanOut interface {
	Broadcast(msgType string, payload interface{}, exclude uint64) int
}

// Dispatcher routes messages by type. Types without a route go to the
// fallback handler, which lets protocols be layered: an extension registers
// its own types and falls back to the protocol it extends.
type Dispatcher struct {
	name     string
	routes   map[string]Handler
	fallback Handler
	log      *logger.Logger
}

// NewDispatcher creates an empty dispatcher. A nil fallback answers
// unrouted types with an error message.
func NewDispatcher(name string, fallback Handler, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Global()
	}
	d := &Dispatcher{
		name:   name,
		routes: make(map[string]Handler),
		log:    log,
	}
	if fallback == nil {
		fallback = HandlerFunc(d.handleUnknown)
	}
	d.fallback = fallback
	return d
}

// Name identifies the protocol layer
func (d *Dispatcher) Name() string {
	return d.name
}

// Register routes msgType to h, replacing any earlier route
func (d *Dispatcher) Register(msgType string, h HandlerFunc) {
	d.routes[msgType] = h
}

// Routes lists the types this layer routes itself, sorted
func (d *Dispatcher) Routes() []string {
	out := make([]string, 0, len(d.routes))
	for t := range d.routes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the handler msgType reaches through this layer and the
// layers below it. When no layer routes msgType it returns the innermost
// fallback and false.
func (d *Dispatcher) Resolve(msgType string) (Handler, bool) {
	if h, ok := d.routes[msgType]; ok {
		return h, true
	}
	if r, ok := d.fallback.(Router); ok {
		return r.Resolve(msgType)
	}
	return d.fallback, false
}

// Handles reports whether this layer or any layer below it routes msgType
func (d *Dispatcher) Handles(msgType string) bool {
	_, ok := d.Resolve(msgType)
	return ok
}

// Handle dispatches msg to its route or to the fallback
func (d *Dispatcher) Handle(msg *message.Message, peer Peer) error {
	if h, ok := d.routes[msg.Type]; ok {
		d.log.Debug("[%s] handling %s from connection %d", d.name, msg.Type, peer.ID())
		return h.Handle(msg, peer)
	}
	return d.fallback.Handle(msg, peer)
}

func (d *Dispatcher) handleUnknown(msg *message.Message, peer Peer) error {
	d.log.Warn("Unknown message type '%s' from connection %d", msg.Type, peer.ID())
	return peer.SendMessage(message.NewForClient(message.TypeError,
		fmt.Sprintf("Unknown message type: %s", msg.Type), peer.ID()))
}

// NewBaseProtocol returns the dispatcher for the base message types
func NewBaseProtocol(log *logger.Logger) *Dispatcher {
	d := NewDispatcher("base", nil, log)

	d.Register(message.TypePing, func(msg *message.Message, peer Peer) error {
		d.log.Info("Ping received from connection %d", peer.ID())
		return peer.SendMessage(message.NewForClient(message.TypePong, "pong", peer.ID()))
	})

	d.Register(message.TypeEcho, func(msg *message.Message, peer Peer) error {
		d.log.Info("Echo request from connection %d: %s", peer.ID(), msg.PayloadString())
		return peer.SendMessage(message.NewRaw(message.TypeEchoResp, msg.Payload).WithClientID(peer.ID()))
	})

	d.Register(message.TypeText, func(msg *message.Message, peer Peer) error {
		text := msg.PayloadString()
		d.log.Info("Text message from connection %d: %s", peer.ID(), text)
		return peer.SendMessage(message.NewForClient(message.TypeTextResp, "Received: "+text, peer.ID()))
	})

	d.Register(message.TypeDisconnect, func(msg *message.Message, peer Peer) error {
		d.log.Info("Disconnect request from connection %d", peer.ID())
		err := peer.SendMessage(message.NewForClient(message.TypeDisconnAck, "Goodbye", peer.ID()))
		peer.Close()
		return err
	})

	return d
}
