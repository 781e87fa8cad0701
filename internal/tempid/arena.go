package tempid

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Kind identifies what a temporary id names.
type Kind int

const (
	KindFact Kind = iota + 1
	KindEntity
)

func (k Kind) prefix() string {
	if k == KindEntity {
		return "e"
	}
	return "h"
}

// State tracks whether a temporary id has a durable counterpart yet.
type State int

const (
	StatePending State = iota
	StateResolved
)

var (
	// ErrUnknown reports a reference to an id the arena never issued.
	ErrUnknown = errors.New("unknown temporary id")
	// ErrClosed reports use of an arena after its item finished.
	ErrClosed = errors.New("arena closed")
)

type entry struct {
	kind    Kind
	state   State
	durable int64
}

// Arena issues temporary ids for one item and tracks their resolution.
type Arena struct {
	mu      sync.Mutex
	next    map[Kind]int
	entries map[string]*entry
	closed  bool
}

// New creates an empty arena.
func New() *Arena {
	return &Arena{
		next:    map[Kind]int{KindFact: 0, KindEntity: 0},
		entries: make(map[string]*entry),
	}
}

// NewFact issues the next fact id (h1, h2, ...).
func (a *Arena) NewFact() string {
	return a.issue(KindFact)
}

// NewEntity issues the next entity id (e1, e2, ...).
func (a *Arena) NewEntity() string {
	return a.issue(KindEntity)
}

func (a *Arena) issue(kind Kind) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		panic("tempid: issue on closed arena")
	}
	a.next[kind]++
	id := kind.prefix() + strconv.Itoa(a.next[kind])
	a.entries[id] = &entry{kind: kind}
	return id
}

// Has reports whether id was issued by this arena (and the arena is open).
func (a *Arena) Has(id string) bool {
	_, ok := a.KindOf(id)
	return ok
}

// KindOf returns the kind of an issued id.
func (a *Arena) KindOf(id string) (Kind, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, false
	}
	e, ok := a.entries[strings.TrimSpace(id)]
	if !ok {
		return 0, false
	}
	return e.kind, true
}

// Resolve records the durable id assigned to a temporary id.
func (a *Arena) Resolve(id string, durable int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	e, ok := a.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, id)
	}
	e.state = StateResolved
	e.durable = durable
	return nil
}

// Durable returns the resolved durable id for a temporary id.
func (a *Arena) Durable(id string) (int64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, false
	}
	e, ok := a.entries[id]
	if !ok || e.state != StateResolved {
		return 0, false
	}
	return e.durable, true
}

// Pending lists ids that have not been resolved, sorted.
func (a *Arena) Pending() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for id, e := range a.entries {
		if e.state == StatePending {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns the number of issued ids.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Close ends the arena's lifetime. Lookups on a closed arena find nothing.
func (a *Arena) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.entries = nil
}

// LooksTemporary reports whether value has the shape of an arena id (h3, e12)
// whether or not any arena issued it.
func LooksTemporary(value string) bool {
	if len(value) < 2 || (value[0] != 'h' && value[0] != 'e') {
		return false
	}
	_, err := strconv.Atoi(value[1:])
	return err == nil
}
