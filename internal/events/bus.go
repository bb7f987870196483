// Package events fans fleet state events out to operator sessions. Sessions
// subscribe to per-scope namespaces; membership is checked against the store
// on registration and revoked when a user loses project access.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

const sessionBuffer = 256

// ErrForbidden is returned when a session registers for a namespace its user
// cannot access.
var ErrForbidden = errors.New("user cannot access this namespace")

// Accessor is the slice of the store the bus needs for membership checks.
type Accessor interface {
	CanUserAccessProject(ctx context.Context, projectID, userID string) (bool, error)
}

// Session is one connected operator. Events are delivered on C; a session
// that cannot keep up loses events rather than stalling the bus.
type Session struct {
	UserID string
	C      chan domain.Event
}

func NewSession(userID string) *Session {
	return &Session{UserID: userID, C: make(chan domain.Event, sessionBuffer)}
}

// Bus routes events to the sessions registered on their namespace. It
// implements storage.Emitter so a store can publish straight into it.
type Bus struct {
	access Accessor

	mu         sync.RWMutex
	namespaces map[string]map[*Session]struct{}
}

var _ storage.Emitter = (*Bus)(nil)

func NewBus(access Accessor) *Bus {
	return &Bus{
		access:     access,
		namespaces: map[string]map[*Session]struct{}{},
	}
}

// Register subscribes the session to one scope namespace. Project scopes
// require membership; the user scope is restricted to the session's own user.
func (b *Bus) Register(ctx context.Context, session *Session, scope domain.EventScope, scopeID string) error {
	if scope == domain.ScopeUser {
		if scopeID != session.UserID {
			return ErrForbidden
		}
	} else {
		ok, err := b.access.CanUserAccessProject(ctx, scopeID, session.UserID)
		if err != nil {
			return fmt.Errorf("check project access: %w", err)
		}
		if !ok {
			return ErrForbidden
		}
	}

	key := domain.NamespaceKey(scope, scopeID)

	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.namespaces[key]
	if !ok {
		set = map[*Session]struct{}{}
		b.namespaces[key] = set
	}
	set[session] = struct{}{}
	return nil
}

// Unregister drops the session from one namespace. Unknown namespaces are a
// no-op.
func (b *Bus) Unregister(session *Session, scope domain.EventScope, scopeID string) {
	key := domain.NamespaceKey(scope, scopeID)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(key, session)
}

// Disconnect drops the session from every namespace.
func (b *Bus) Disconnect(session *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key := range b.namespaces {
		b.remove(key, session)
	}
}

// Emit delivers the event to the sessions of its namespace. A membership
// revocation also evicts the removed user's sessions from every scope
// namespace of that project, so no further events leak to them.
func (b *Bus) Emit(event domain.Event) {
	key := domain.NamespaceKey(event.Scope, event.ID)

	b.mu.Lock()
	sessions := make([]*Session, 0, len(b.namespaces[key]))
	for session := range b.namespaces[key] {
		sessions = append(sessions, session)
	}
	// Local stores emit value payloads; events decoded off the wire arrive
	// as pointers.
	switch removed := event.Event.(type) {
	case domain.ProjectUserRemovedEvent:
		b.evictUser(removed.Link.ProjectID, removed.Link.UserID)
	case *domain.ProjectUserRemovedEvent:
		b.evictUser(removed.Link.ProjectID, removed.Link.UserID)
	}
	b.mu.Unlock()

	for _, session := range sessions {
		select {
		case session.C <- event:
		default:
			log.Warn("events: session too slow, dropping event", "user", session.UserID, "namespace", key)
		}
	}
}

func (b *Bus) evictUser(projectID, userID string) {
	for _, scope := range domain.AllScopes {
		key := domain.NamespaceKey(scope, projectID)
		for session := range b.namespaces[key] {
			if session.UserID == userID {
				b.remove(key, session)
			}
		}
	}
}

func (b *Bus) remove(key string, session *Session) {
	if set, ok := b.namespaces[key]; ok {
		delete(set, session)
		if len(set) == 0 {
			delete(b.namespaces, key)
		}
	}
}
