package ui

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Update types pushed to browsers.
const (
	UpdateSlot   = "slot"
	UpdateReload = "reload"
)

// Update is one message on the page stream.
type Update struct {
	Type   string     `json:"type"`
	Slot   Slot       `json:"slot,omitempty"`
	State  *SlotState `json:"state,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

const (
	writeWait      = 10 * time.Second
	subscriberSize = 64
)

// Page is a Sink that keeps the latest state of every slot and fans each
// change out to websocket subscribers.
type Page struct {
	mu     sync.RWMutex
	slots  map[Slot]SlotState
	subs   map[chan Update]struct{}
	logger *slog.Logger

	upgrader websocket.Upgrader
}

func NewPage() *Page {
	return &Page{
		slots:  InitialState(),
		subs:   make(map[chan Update]struct{}),
		logger: slog.Default().With("component", "page"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (p *Page) SetText(slot Slot, text string) {
	p.mu.Lock()
	st := p.slots[slot]
	st.Text = text
	p.slots[slot] = st
	p.broadcastLocked(Update{Type: UpdateSlot, Slot: slot, State: &st})
	p.mu.Unlock()
}

func (p *Page) SetVisible(slot Slot, visible bool) {
	p.mu.Lock()
	st := p.slots[slot]
	st.Visible = visible
	p.slots[slot] = st
	p.broadcastLocked(Update{Type: UpdateSlot, Slot: slot, State: &st})
	p.mu.Unlock()
}

// Snapshot returns a copy of every slot.
func (p *Page) Snapshot() map[Slot]SlotState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[Slot]SlotState, len(p.slots))
	for k, v := range p.slots {
		out[k] = v
	}
	return out
}

// Reset restores the initial state and tells subscribers to reload.
func (p *Page) Reset(reason string) {
	p.mu.Lock()
	p.slots = InitialState()
	p.broadcastLocked(Update{Type: UpdateReload, Reason: reason})
	p.mu.Unlock()
}

// Subscribe returns a channel of updates and a function that ends the
// subscription. A subscriber that falls behind loses updates.
func (p *Page) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberSize)
	p.mu.Lock()
	p.subs[ch] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, ch)
			p.mu.Unlock()
			close(ch)
		})
	}
}

// broadcastLocked runs under the write lock so subscribers see updates in
// the order they were applied to slots.
func (p *Page) broadcastLocked(u Update) {
	for ch := range p.subs {
		select {
		case ch <- u:
		default:
			p.logger.Warn("dropping update for slow subscriber", "slot", u.Slot)
		}
	}
}

// ServeWS streams the current slots followed by every update.
func (p *Page) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := p.Subscribe()
	defer cancel()

	// reader: detect client close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for slot, st := range p.Snapshot() {
		st := st
		if err := p.write(conn, Update{Type: UpdateSlot, Slot: slot, State: &st}); err != nil {
			return
		}
	}

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := p.write(conn, u); err != nil {
				p.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func (p *Page) write(conn *websocket.Conn, u Update) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(u)
}
