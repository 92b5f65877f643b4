package socketserver

import (
	"errors"
	"net"
	"sync"

	"github.com/codefionn/netserver/internal/logger"
	"github.com/codefionn/netserver/internal/message"
)

// ErrCapacity is returned by Table.Add when the table is full
var ErrCapacity = errors.New("maximum connections reached")

// NoExclude selects every connection in ForEach and Broadcast
const NoExclude uint64 = 0

// Table tracks open connections by id. Ids start at 1, grow strictly and
// are only consumed by accepted connections. Iteration follows id order.
//
// Methods suffixed with Locked expect the caller to hold the table lock;
// Broadcast does too, because it is only called from handlers running inside
// a reactor pass.
type Table struct {
	mu     sync.Mutex
	conns  map[uint64]*Connection
	order  []uint64
	nextID uint64
	max    int
	log    *logger.Logger
}

// NewTable creates a table that holds at most max connections
func NewTable(max int, log *logger.Logger) *Table {
	if log == nil {
		log = logger.Global()
	}
	return &Table{
		conns: make(map[uint64]*Connection),
		max:   max,
		log:   log,
	}
}

// Add wraps conn in a Connection with the next id and stores it. When the
// table is full it returns ErrCapacity and conn is left untouched.
func (t *Table) Add(conn net.Conn, opts ConnOptions) (*Connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.conns) >= t.max {
		return nil, ErrCapacity
	}

	t.nextID++
	c := NewConnection(t.nextID, conn, opts, t.log)
	t.conns[c.id] = c
	t.order = append(t.order, c.id)
	return c, nil
}

// Len returns the number of stored connections, including closed ones not
// yet pruned
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// Max returns the capacity
func (t *Table) Max() int {
	return t.max
}

// Get looks a connection up by id
func (t *Table) Get(id uint64) (*Connection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[id]
	return c, ok
}

// IDs returns the stored ids in ascending order
func (t *Table) IDs() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]uint64(nil), t.order...)
}

// Open returns a snapshot of the open connections in id order
func (t *Table) Open() []*Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openLocked()
}

func (t *Table) openLocked() []*Connection {
	out := make([]*Connection, 0, len(t.order))
	for _, id := range t.order {
		if c := t.conns[id]; !c.IsClosed() {
			out = append(out, c)
		}
	}
	return out
}

// ForEach calls fn for every open connection except exclude
func (t *Table) ForEach(fn func(*Connection), exclude uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forEachLocked(fn, exclude)
}

func (t *Table) forEachLocked(fn func(*Connection), exclude uint64) {
	for _, c := range t.openLocked() {
		if exclude != NoExclude && c.id == exclude {
			continue
		}
		fn(c)
	}
}

// Broadcast sends one message of msgType to every open connection except
// exclude and returns how many sends succeeded. A failed send closes only
// that recipient. The caller must hold the table lock.
func (t *Table) Broadcast(msgType string, payload interface{}, exclude uint64) int {
	delivered := 0
	t.forEachLocked(func(c *Connection) {
		if err := c.SendMessage(message.NewForClient(msgType, payload, c.id)); err != nil {
			t.log.Warn("Broadcast to connection %d failed: %v", c.id, err)
			return
		}
		delivered++
	}, exclude)
	return delivered
}

// Prune removes closed connections and returns their ids
func (t *Table) Prune() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pruneLocked()
}

func (t *Table) pruneLocked() []uint64 {
	var removed []uint64
	kept := t.order[:0]
	for _, id := range t.order {
		if t.conns[id].IsClosed() {
			delete(t.conns, id)
			removed = append(removed, id)
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
	if len(removed) > 0 {
		t.log.Debug("Pruned %d closed connections (active: %d)", len(removed), len(t.conns))
	}
	return removed
}

// CloseAll closes and removes every connection
func (t *Table) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range t.order {
		t.conns[id].Close()
	}
	t.conns = make(map[uint64]*Connection)
	t.order = nil
}
