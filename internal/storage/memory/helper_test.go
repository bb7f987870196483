package memory

import (
	"context"
	"sync"
	"testing"

	"flotilla/internal/domain"
)

// captureEmitter records every emitted event for assertions.
type captureEmitter struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *captureEmitter) Emit(event domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, event)
}

func (c *captureEmitter) all() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	events := make([]domain.Event, len(c.events))
	copy(events, c.events)
	return events
}

func (c *captureEmitter) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = nil
}

func strptr(s string) *string { return &s }

// newFixture builds a store seeded with one user, one project, one credential
// and one inactive connector.
func newFixture(t *testing.T) (*Store, *captureEmitter) {
	t.Helper()

	ctx := context.Background()
	bus := &captureEmitter{}
	s := New(bus, 0)

	if err := s.CreateUser(ctx, domain.User{
		ID:    "u1",
		Name:  "alice",
		Email: strptr("alice@example.com"),
	}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if err := s.CreateProject(ctx, domain.ProjectCreate{
		UserID: "u1",
		Token:  "tok-1",
		Project: domain.ProjectData{
			ID:     "p1",
			Name:   "website",
			Status: domain.ProjectStatusHot,
		},
	}); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	if err := s.CreateCredential(ctx, domain.Credential{
		ID:        "cr1",
		ProjectID: "p1",
		Name:      "datacenter credential",
		Type:      "datacenter",
	}); err != nil {
		t.Fatalf("CreateCredential: %v", err)
	}

	if err := s.CreateConnector(ctx, domain.Connector{
		ID:                         "co1",
		ProjectID:                  "p1",
		Name:                       "datacenter connector",
		Type:                       "datacenter",
		CredentialID:               "cr1",
		ProxiesMax:                 10,
		ProxiesTimeoutDisconnected: 5000,
	}); err != nil {
		t.Fatalf("CreateConnector: %v", err)
	}

	bus.reset()
	return s, bus
}

func mustSyncProxies(t *testing.T, s *Store, proxies ...domain.Proxy) {
	t.Helper()

	err := s.SynchronizeProxies(context.Background(), domain.ProxiesSynchronization{
		Created: proxies,
	})
	if err != nil {
		t.Fatalf("SynchronizeProxies: %v", err)
	}
}

func newProxy(key string, status domain.ProxyStatus) domain.Proxy {
	return domain.Proxy{
		ID:                  domain.BuildProxyID("co1", key),
		ConnectorID:         "co1",
		ProjectID:           "p1",
		Type:                "datacenter",
		Key:                 key,
		Name:                key,
		Status:              status,
		TimeoutDisconnected: 5000,
	}
}
