package realtime

import (
	"context"
	"errors"
	"sync"

	"tableside/internal/domain"
)

var ErrScopeClosed = errors.New("realtime: scope closed")

// Scope collects the memberships and subscriptions of one screen or
// worker so they can be released together.
type Scope struct {
	rooms *Rooms

	mu      sync.Mutex
	closed  bool
	members []*Membership
	subs    []*Subscription
}

func NewScope(rooms *Rooms) *Scope { return &Scope{rooms: rooms} }

// Join joins a room on behalf of the scope. A join that resolves after
// Close is released straight away and reported as ErrScopeClosed.
func (s *Scope) Join(ctx context.Context, kind domain.RoomKind, id string) (*Membership, error) {
	if s.isClosed() {
		return nil, ErrScopeClosed
	}
	ms, err := s.rooms.Join(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if err := ms.Leave(context.WithoutCancel(ctx)); err != nil {
			s.rooms.log.Warn("late_join_release_failed", err, map[string]any{"room": ms.Room()})
		}
		return nil, ErrScopeClosed
	}
	s.members = append(s.members, ms)
	s.mu.Unlock()
	return ms, nil
}

// On registers an unscoped handler that lives as long as the scope.
func (s *Scope) On(name string, h Handler) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &Subscription{}
	}
	sub := s.rooms.m.router.On(name, h)
	s.subs = append(s.subs, sub)
	return sub
}

// Close unsubscribes every handler and leaves every room the scope joined.
func (s *Scope) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs, members := s.subs, s.members
	s.subs, s.members = nil, nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	var errs []error
	for _, ms := range members {
		if err := ms.Leave(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scope) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
