package client

import (
	"context"
	"sync"
)

// Gate states for UI routing.
const (
	GatePending   = "pending"
	GateSignedOut = "signed-out"
	GateSignedIn  = "signed-in"
)

// Session tracks the signed-in user for an application. It resolves the
// stored token once on Start and notifies subscribers whenever the user
// changes.
type Session struct {
	client *Client

	mu      sync.Mutex
	user    *User
	loading bool
	subs    []chan *User
}

// NewSession wraps a client. Call Start before reading the session state.
func NewSession(c *Client) *Session {
	return &Session{client: c, loading: true}
}

// Start resolves the client's current token to a user. On a transport failure
// the session stays pending so a route guard does not mistake an unreachable
// server for a signed-out user; callers may retry Start.
func (s *Session) Start(ctx context.Context) error {
	u, err := s.client.CurrentUser(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.user = u
	s.loading = false
	s.mu.Unlock()
	s.notify(u)
	return nil
}

// User returns the signed-in user, nil when signed out or still pending.
func (s *Session) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Gate reports the state a route guard should act on: pending while the
// initial resolution runs, then signed-in or signed-out.
func (s *Session) Gate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.loading:
		return GatePending
	case s.user == nil:
		return GateSignedOut
	default:
		return GateSignedIn
	}
}

// Subscribe returns a channel that receives the user after every session
// change. The channel is never closed.
func (s *Session) Subscribe() <-chan *User {
	ch := make(chan *User, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

// SetUser records a sign-in performed through the client and notifies
// subscribers.
func (s *Session) SetUser(u User) {
	s.mu.Lock()
	s.user = &u
	s.loading = false
	s.mu.Unlock()
	s.notify(&u)
}

// SignOut ends the session. Server-side failures are logged and otherwise
// ignored; the local session is cleared regardless.
func (s *Session) SignOut(ctx context.Context) {
	if err := s.client.Logout(ctx); err != nil {
		s.client.logger.Errorf("error signing out: %v", err)
	}
	s.mu.Lock()
	s.user = nil
	s.loading = false
	s.mu.Unlock()
	s.notify(nil)
}

func (s *Session) notify(u *User) {
	s.mu.Lock()
	subs := make([]chan *User, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- u:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- u:
			default:
			}
		}
	}
}
