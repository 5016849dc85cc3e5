package auth

import (
	"context"
	"sync"
	"time"
)

// Broadcaster fans session changes out to subscribers. Providers embed one
// and call Publish whenever their session changes.
//
// Each subscriber gets its own ordered queue, so a slow reader never blocks
// Publish or other readers, and no event is dropped.
type Broadcaster struct {
	mu      sync.Mutex
	current *Session
	subs    map[*subscriber]struct{}
	closed  bool
	now     func() time.Time
}

type subscriber struct {
	out    chan Event
	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
	done   chan struct{}
}

// NewBroadcaster creates a broadcaster with no current session.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[*subscriber]struct{}),
		now:  time.Now,
	}
}

// Current returns a copy of the last published session, or nil.
func (b *Broadcaster) Current() *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current.Clone()
}

// Subscribe implements IdentityProvider.Subscribe. The current state is
// queued first.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, NewError(ErrProviderClosed, "identity provider is closed", nil)
	}

	s := &subscriber{
		out:    make(chan Event),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	s.push(Event{Session: b.current.Clone(), At: b.now()})
	b.subs[s] = struct{}{}

	go s.pump(ctx, func() {
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
	})

	return s.out, nil
}

// Publish records session as current and delivers it to every subscriber.
// A nil session publishes absence.
func (b *Broadcaster) Publish(session *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.current = session.Clone()
	ev := Event{Session: session, At: b.now()}
	for s := range b.subs {
		s.push(Event{Session: ev.Session.Clone(), At: ev.At})
	}
}

// Replace swaps the current session without notifying subscribers. Token
// refreshes for the same user go through here; they are not session changes.
func (b *Broadcaster) Replace(session *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.current = session.Clone()
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscription. Later Subscribe calls fail.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.done)
		delete(b.subs, s)
	}
}

func (s *subscriber) push(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) pop() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Event{}, false
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, true
}

func (s *subscriber) pump(ctx context.Context, unregister func()) {
	defer close(s.out)
	defer unregister()

	for {
		ev, ok := s.pop()
		if !ok {
			select {
			case <-s.notify:
				continue
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}

		select {
		case s.out <- ev:
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}
