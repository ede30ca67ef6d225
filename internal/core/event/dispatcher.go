package event

import (
	"sync"

	"github.com/l1jgo/infinity/internal/core/ecs"
)

// Token identifies one registration in a Dispatcher.
type Token uint64

// Dispatcher fans one signal out to every registered event sender.
type Dispatcher[A any] struct {
	mu      sync.RWMutex
	senders []Sender[A]
	tokens  []Token
	index   map[Token]int
	next    Token
}

func NewDispatcher[A any]() *Dispatcher[A] {
	return &Dispatcher[A]{index: make(map[Token]int)}
}

func (d *Dispatcher[A]) Register(s Sender[A]) Token {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.index[d.next] = len(d.senders)
	d.senders = append(d.senders, s)
	d.tokens = append(d.tokens, d.next)
	return d.next
}

// Unregister removes a registration in O(1) by swapping the last one into its
// place. Returns false for unknown tokens.
func (d *Dispatcher[A]) Unregister(tok Token) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.index[tok]
	if !ok {
		return false
	}
	last := len(d.senders) - 1
	d.senders[i] = d.senders[last]
	d.tokens[i] = d.tokens[last]
	d.index[d.tokens[i]] = i
	d.senders[last] = Sender[A]{}
	d.senders = d.senders[:last]
	d.tokens = d.tokens[:last]
	delete(d.index, tok)
	return true
}

// Dispatch offers the record to every sender and returns how many accepted it.
func (d *Dispatcher[A]) Dispatch(e *ecs.Entity, args A) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, s := range d.senders {
		if s.TryAdd(e, args) {
			n++
		}
	}
	return n
}

func (d *Dispatcher[A]) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.senders)
}
