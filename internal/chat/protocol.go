package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/codefionn/netserver/internal/consts"
	"github.com/codefionn/netserver/internal/logger"
	"github.com/codefionn/netserver/internal/message"
	"github.com/codefionn/netserver/internal/socketserver"
)

type member struct {
	name string
	peer socketserver.Peer
}

// Option configures a Protocol
type Option func(*Protocol)

// WithHistory records chat lines in h and replays the last replay lines to
// every member that joins
func WithHistory(h *History, replay int) Option {
	return func(p *Protocol) {
		p.history = h
		p.replay = replay
	}
}

// Protocol handles the chat message types on top of a base handler
type Protocol struct {
	*socketserver.Dispatcher

	fanout  socketserver.FanOut
	history *History
	replay  int
	log     *logger.Logger

	mu      sync.Mutex
	members map[uint64]*member
}

// NewProtocol layers the chat routes over base. Broadcasts go through
// fanout, normally the *socketserver.Server running this protocol.
func NewProtocol(base socketserver.Handler, fanout socketserver.FanOut, log *logger.Logger, opts ...Option) *Protocol {
	if log == nil {
		log = logger.Global()
	}
	p := &Protocol{
		Dispatcher: socketserver.NewDispatcher("chat", base, log),
		fanout:     fanout,
		log:        log,
		members:    make(map[uint64]*member),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.Register(message.TypeJoin, p.handleJoin)
	p.Register(message.TypeChat, p.handleChat)
	p.Register(message.TypeLeave, p.handleLeave)
	return p
}

// Members returns the usernames of open members in id order
func (p *Protocol) Members() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forgetClosedLocked()

	ids := make([]uint64, 0, len(p.members))
	for id := range p.members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, p.members[id].name)
	}
	return names
}

// nameOf returns the username a peer joined with, or User<id>
func (p *Protocol) nameOf(peer socketserver.Peer) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.members[peer.ID()]; ok {
		return m.name
	}
	return defaultName(peer.ID())
}

func defaultName(id uint64) string {
	return fmt.Sprintf("User%d", id)
}

// forgetClosedLocked drops members whose connection closed without leaving
func (p *Protocol) forgetClosedLocked() {
	for id, m := range p.members {
		if m.peer.IsClosed() {
			p.log.Debug("Forgetting %s (connection %d closed)", m.name, id)
			delete(p.members, id)
		}
	}
}

func (p *Protocol) handleJoin(msg *message.Message, peer socketserver.Peer) error {
	name := strings.TrimSpace(msg.PayloadString())
	if name == "" {
		name = defaultName(peer.ID())
	}

	p.mu.Lock()
	p.forgetClosedLocked()
	p.members[peer.ID()] = &member{name: name, peer: peer}
	p.mu.Unlock()

	p.log.Info("%s joined the chat (connection %d)", name, peer.ID())

	if err := p.replayHistory(peer); err != nil {
		return err
	}
	if err := peer.SendMessage(message.NewForClient(message.TypeSystem,
		fmt.Sprintf("Welcome to the chat, %s!", name), peer.ID())); err != nil {
		return err
	}
	p.fanout.Broadcast(message.TypeBroadcast, fmt.Sprintf("%s has joined the chat", name), peer.ID())
	return nil
}

func (p *Protocol) handleChat(msg *message.Message, peer socketserver.Peer) error {
	name := p.nameOf(peer)
	text := msg.PayloadString()

	p.mu.Lock()
	p.forgetClosedLocked()
	p.mu.Unlock()

	p.log.Info("Chat from %s: %s", name, text)
	line := fmt.Sprintf("%s: %s", name, text)
	p.fanout.Broadcast(message.TypeBroadcast, line, peer.ID())

	if p.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), consts.Timeout3Seconds)
		defer cancel()
		if err := p.history.Append(ctx, name, text); err != nil {
			p.log.Error("Failed to store chat line: %v", err)
		}
	}
	return nil
}

func (p *Protocol) handleLeave(msg *message.Message, peer socketserver.Peer) error {
	name := p.nameOf(peer)

	p.mu.Lock()
	delete(p.members, peer.ID())
	p.mu.Unlock()

	p.log.Info("%s left the chat", name)
	p.fanout.Broadcast(message.TypeBroadcast, fmt.Sprintf("%s has left the chat", name), peer.ID())
	return peer.Close()
}

func (p *Protocol) replayHistory(peer socketserver.Peer) error {
	if p.history == nil || p.replay <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), consts.Timeout3Seconds)
	defer cancel()
	entries, err := p.history.Recent(ctx, p.replay)
	if err != nil {
		p.log.Error("Failed to load chat history: %v", err)
		return nil
	}

	for _, e := range entries {
		if err := peer.SendMessage(message.NewForClient(message.TypeHistory, e.String(), peer.ID())); err != nil {
			return err
		}
	}
	return nil
}
