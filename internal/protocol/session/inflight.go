package session

import (
	"sort"
	"sync"
	"time"

	"github.com/danmuck/hcilink/internal/protocol/catalogue"
	"github.com/danmuck/hcilink/internal/protocol/frame"
)

// PendingCommand tracks one opcode awaiting Command Complete or Command Status.
type PendingCommand struct {
	Opcode   uint16
	Name     string
	Attempts int
	SentAt   time.Time
}

// Inflight stores pending commands by opcode. Resending an opcode that is
// still pending bumps Attempts instead of adding a second entry.
type Inflight struct {
	mu    sync.RWMutex
	items map[uint16]PendingCommand
}

func NewInflight() *Inflight {
	return &Inflight{
		items: make(map[uint16]PendingCommand),
	}
}

func (f *Inflight) Track(cmd frame.Command, at time.Time) PendingCommand {
	item, _ := f.track(cmd, at)
	return item
}

// Attempt tracks cmd like Track and returns a func that undoes only this
// attempt: the entry goes back to what it was before, or away if it was new.
// Undo is a no-op once a response has resolved the opcode.
func (f *Inflight) Attempt(cmd frame.Command, at time.Time) (undo func()) {
	item, prev := f.track(cmd, at)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		cur, ok := f.items[cmd.Opcode]
		if !ok || cur.Attempts != item.Attempts || !cur.SentAt.Equal(item.SentAt) {
			return
		}
		if prev.Attempts == 0 {
			delete(f.items, cmd.Opcode)
			return
		}
		f.items[cmd.Opcode] = prev
	}
}

func (f *Inflight) track(cmd frame.Command, at time.Time) (item, prev PendingCommand) {
	name := ""
	if entry, ok := catalogue.Identify(cmd); ok {
		name = entry.Name
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	prev = f.items[cmd.Opcode]
	item = prev
	item.Opcode = cmd.Opcode
	item.Name = name
	item.Attempts++
	item.SentAt = at
	f.items[cmd.Opcode] = item
	return item, prev
}

// Resolve removes the entry for opcode and returns it.
func (f *Inflight) Resolve(opcode uint16) (PendingCommand, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[opcode]
	if ok {
		delete(f.items, opcode)
	}
	return item, ok
}

func (f *Inflight) Get(opcode uint16) (PendingCommand, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	item, ok := f.items[opcode]
	return item, ok
}

func (f *Inflight) List() []PendingCommand {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]PendingCommand, 0, len(f.items))
	for _, item := range f.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Opcode < out[j].Opcode
	})
	return out
}

// Observe resolves the opcode answered by a response event. Other events
// are ignored.
func (f *Inflight) Observe(evt frame.Event) {
	resp, err := catalogue.ParseResponse(evt)
	if err != nil {
		return
	}
	f.Resolve(resp.Opcode)
}
