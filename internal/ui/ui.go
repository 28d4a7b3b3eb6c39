// Package ui holds the page's write-only output slots.
package ui

import (
	"fmt"
	"io"
	"sync"
)

// Slot names a text/visibility element on the page.
type Slot string

// Page slots.
const (
	SlotStatus         Slot = "web3_message"
	SlotContractState  Slot = "contract_state"
	SlotAccountAddress Slot = "account_address"
	SlotConnectButton  Slot = "connect_button"
	SlotLastError      Slot = "last_error"
)

// Slots lists every slot in page order.
var Slots = []Slot{SlotStatus, SlotContractState, SlotAccountAddress, SlotConnectButton, SlotLastError}

// Sink receives slot writes. Implementations must be safe for concurrent use.
type Sink interface {
	SetText(slot Slot, text string)
	SetVisible(slot Slot, visible bool)
}

// SlotState is the rendered state of one slot.
type SlotState struct {
	Text    string `json:"text"`
	Visible bool   `json:"visible"`
}

// InitialState is how the page looks before any script runs.
func InitialState() map[Slot]SlotState {
	return map[Slot]SlotState{
		SlotStatus:         {Visible: true},
		SlotContractState:  {Visible: true},
		SlotAccountAddress: {Visible: false},
		SlotConnectButton:  {Visible: false},
		SlotLastError:      {Visible: false},
	}
}

// Writer is a Sink that prints each text write as a line, for terminals.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (s *Writer) SetText(slot Slot, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "[%s] %s\n", slot, text)
}

// SetVisible is a no-op: a terminal has no hidden elements.
func (s *Writer) SetVisible(Slot, bool) {}
