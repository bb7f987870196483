package database

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"flotilla/internal/domain"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		t.Fatalf("set busy timeout: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func strptr(s string) *string { return &s }

// newTestStore seeds a store with one user, one project, one credential and
// one inactive connector.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	s := New(setupTestDB(t), nil, 0)

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

	return s
}

func testProxy(key string, status domain.ProxyStatus) domain.Proxy {
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
