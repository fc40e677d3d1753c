package identity

import "sync"

type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

type Listener func(event Event, session *Session)

// Listeners fans session changes out to subscribers in registration order.
type Listeners struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]Listener
	order  []int
}

func NewListeners() *Listeners {
	return &Listeners{subs: make(map[int]Listener)}
}

// Subscribe returns a function that removes the listener.
func (l *Listeners) Subscribe(fn Listener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	l.subs[id] = fn
	l.order = append(l.order, id)

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, id)
		for i, v := range l.order {
			if v == id {
				l.order = append(l.order[:i], l.order[i+1:]...)
				break
			}
		}
	}
}

func (l *Listeners) Emit(event Event, session *Session) {
	l.mu.RLock()
	fns := make([]Listener, 0, len(l.order))
	for _, id := range l.order {
		fns = append(fns, l.subs[id])
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(event, session)
	}
}
