package events

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"flotilla/internal/domain"
)

type stubAccess struct {
	members map[string]bool
}

func (a *stubAccess) CanUserAccessProject(ctx context.Context, projectID, userID string) (bool, error) {
	return a.members[projectID+"/"+userID], nil
}

func newTestBus() *Bus {
	return NewBus(&stubAccess{members: map[string]bool{
		"p1/u1": true,
		"p2/u1": true,
		"p1/u2": true,
	}})
}

func receive(t *testing.T, session *Session) domain.Event {
	t.Helper()
	select {
	case event := <-session.C:
		return event
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return domain.Event{}
	}
}

func assertSilent(t *testing.T, session *Session) {
	t.Helper()
	select {
	case event := <-session.C:
		t.Fatalf("unexpected event: %+v", event)
	default:
	}
}

func projectUpdated(projectID string) domain.Event {
	return domain.Event{
		ID:    projectID,
		Scope: domain.ScopeProject,
		Event: &domain.ProjectUpdatedEvent{Project: domain.ProjectData{ID: projectID}},
	}
}

func TestRegisterChecksProjectAccess(t *testing.T) {
	bus := newTestBus()
	ctx := context.Background()

	outsider := NewSession("u9")
	err := bus.Register(ctx, outsider, domain.ScopeProject, "p1")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	member := NewSession("u1")
	if err := bus.Register(ctx, member, domain.ScopeProject, "p1"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	bus.Emit(projectUpdated("p1"))
	event := receive(t, member)
	if event.ID != "p1" {
		t.Fatalf("unexpected event: %+v", event)
	}
	assertSilent(t, outsider)
}

func TestUserScopeRestrictedToSelf(t *testing.T) {
	bus := newTestBus()
	ctx := context.Background()

	session := NewSession("u1")
	if err := bus.Register(ctx, session, domain.ScopeUser, "u2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := bus.Register(ctx, session, domain.ScopeUser, "u1"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	bus.Emit(domain.Event{
		ID:    "u1",
		Scope: domain.ScopeUser,
		Event: &domain.UserUpdatedEvent{User: domain.UserView{ID: "u1"}},
	})
	if event := receive(t, session); event.Scope != domain.ScopeUser {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestEmitRoutesByNamespace(t *testing.T) {
	bus := newTestBus()
	ctx := context.Background()

	proxiesOnly := NewSession("u1")
	if err := bus.Register(ctx, proxiesOnly, domain.ScopeProxies, "p1"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	bus.Emit(projectUpdated("p1"))
	assertSilent(t, proxiesOnly)

	bus.Emit(domain.Event{
		ID:    "p1",
		Scope: domain.ScopeProxies,
		Event: &domain.ProxiesSynchronizedEvent{ProjectID: "p1"},
	})
	if event := receive(t, proxiesOnly); event.Scope != domain.ScopeProxies {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestUnregisterStopsDelivery(t *testing.T) {
	bus := newTestBus()
	ctx := context.Background()

	session := NewSession("u1")
	if err := bus.Register(ctx, session, domain.ScopeProject, "p1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	bus.Unregister(session, domain.ScopeProject, "p1")

	bus.Emit(projectUpdated("p1"))
	assertSilent(t, session)
}

func TestMembershipRemovalEvictsUserSessions(t *testing.T) {
	bus := newTestBus()
	ctx := context.Background()

	removed := NewSession("u1")
	for _, scope := range domain.AllScopes {
		if err := bus.Register(ctx, removed, scope, "p1"); err != nil {
			t.Fatalf("Register %s: %v", scope, err)
		}
	}
	if err := bus.Register(ctx, removed, domain.ScopeProject, "p2"); err != nil {
		t.Fatalf("Register p2: %v", err)
	}
	stays := NewSession("u2")
	if err := bus.Register(ctx, stays, domain.ScopeProject, "p1"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	bus.Emit(domain.Event{
		ID:    "p1",
		Scope: domain.ScopeProject,
		Event: &domain.ProjectUserRemovedEvent{
			Link: domain.ProjectUserLink{ProjectID: "p1", UserID: "u1"},
		},
	})

	// The removal itself is the last event the evicted user sees.
	if event := receive(t, removed); event.Scope != domain.ScopeProject {
		t.Fatalf("unexpected event: %+v", event)
	}
	receive(t, stays)

	bus.Emit(projectUpdated("p1"))
	assertSilent(t, removed)
	receive(t, stays)

	// Other projects are untouched.
	bus.Emit(projectUpdated("p2"))
	if event := receive(t, removed); event.ID != "p2" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestEvictionHandlesValuePayloads(t *testing.T) {
	// Local stores emit value payloads; only decoded events carry pointers.
	bus := newTestBus()
	ctx := context.Background()

	removed := NewSession("u1")
	if err := bus.Register(ctx, removed, domain.ScopeProject, "p1"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	bus.Emit(domain.Event{
		ID:    "p1",
		Scope: domain.ScopeProject,
		Event: domain.ProjectUserRemovedEvent{
			Link: domain.ProjectUserLink{ProjectID: "p1", UserID: "u1"},
		},
	})
	receive(t, removed)

	bus.Emit(projectUpdated("p1"))
	assertSilent(t, removed)
}

func TestGatewayAuthentication(t *testing.T) {
	gateway := NewGateway(newTestBus(), []byte("secret"))

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).
		SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	userID, err := gateway.authenticate(httptest.NewRequest("GET", "/events?token="+raw, nil))
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if userID != "u1" {
		t.Fatalf("expected u1, got %s", userID)
	}

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).
		SignedString([]byte("other"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := gateway.authenticate(httptest.NewRequest("GET", "/events?token="+forged, nil)); err == nil {
		t.Fatal("expected a signature error")
	}

	if _, err := gateway.authenticate(httptest.NewRequest("GET", "/events", nil)); err == nil {
		t.Fatal("expected an error without a token")
	}
}
