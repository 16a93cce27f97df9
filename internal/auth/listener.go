package auth

import "sync"

// Listener is told whenever the signed-in identity changes.  It receives
// the new user after a sign-in or sign-up and nil after a sign-out.
type Listener interface {
	IdentityChanged(u *CurrentUser)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(u *CurrentUser)

func (f ListenerFunc) IdentityChanged(u *CurrentUser) { f(u) }

type notifier struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]Listener
}

// Subscribe registers l and returns a function that removes it.  The
// returned function is safe to call more than once.
func (n *notifier) Subscribe(l Listener) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listeners == nil {
		n.listeners = map[int]Listener{}
	}
	id := n.next
	n.next++
	n.listeners[id] = l
	return func() {
		n.mu.Lock()
		delete(n.listeners, id)
		n.mu.Unlock()
	}
}

// notify calls every listener in the caller's goroutine.  The set is
// snapshotted first so listeners may unsubscribe while being notified.
func (n *notifier) notify(u *CurrentUser) {
	n.mu.RLock()
	ls := make([]Listener, 0, len(n.listeners))
	for _, l := range n.listeners {
		ls = append(ls, l)
	}
	n.mu.RUnlock()
	for _, l := range ls {
		var arg *CurrentUser
		if u != nil {
			cp := *u
			arg = &cp
		}
		l.IdentityChanged(arg)
	}
}
