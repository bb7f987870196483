package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func TestCreateConnectorRequiresCredentialInProject(t *testing.T) {
	s, _ := newFixture(t)

	err := s.CreateConnector(context.Background(), domain.Connector{
		ID:           "co2",
		ProjectID:    "p1",
		Name:         "other",
		Type:         "datacenter",
		CredentialID: "ghost",
	})
	if !storage.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestUpdateConnectorPreservesScheduleAndCertificate(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	if err := s.UpdateConnectorNextRefreshTs(ctx, "p1", "co1", 12345); err != nil {
		t.Fatalf("UpdateConnectorNextRefreshTs: %v", err)
	}
	err := s.UpdateConnectorCertificate(ctx, "p1", "co1", domain.CertificateInfo{
		Certificate: domain.Certificate{Cert: "CERT", Key: "KEY"},
		EndAt:       99999,
	})
	if err != nil {
		t.Fatalf("UpdateConnectorCertificate: %v", err)
	}

	connector, err := s.GetConnectorByID(ctx, "p1", "co1")
	if err != nil {
		t.Fatalf("GetConnectorByID: %v", err)
	}
	update := domain.Connector{
		ID:           connector.ID,
		ProjectID:    connector.ProjectID,
		Name:         "renamed connector",
		Type:         connector.Type,
		CredentialID: connector.CredentialID,
		ProxiesMax:   20,
	}
	if err := s.UpdateConnector(ctx, update); err != nil {
		t.Fatalf("UpdateConnector: %v", err)
	}

	certificate, err := s.GetConnectorCertificateByID(ctx, "p1", "co1")
	if err != nil {
		t.Fatalf("GetConnectorCertificateByID: %v", err)
	}
	if certificate == nil || certificate.Cert != "CERT" {
		t.Fatalf("certificate must survive UpdateConnector, got %+v", certificate)
	}

	// Still due only against the preserved deadline.
	if _, err := s.GetNextConnectorToRefresh(ctx, 12345); !errors.Is(err, storage.ErrNoConnectorToRefresh) {
		t.Fatalf("expected ErrNoConnectorToRefresh, got %v", err)
	}
	refresh, err := s.GetNextConnectorToRefresh(ctx, 12346)
	if err != nil {
		t.Fatalf("GetNextConnectorToRefresh: %v", err)
	}
	if refresh.ID != "co1" || refresh.Name != "renamed connector" {
		t.Fatalf("unexpected refresh row: %+v", refresh)
	}
}

func TestGetNextConnectorToRefreshBundlesCredentialAndKeys(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	config := json.RawMessage(`{"region":"eu"}`)
	credential, err := s.GetCredentialByID(ctx, "p1", "cr1")
	if err != nil {
		t.Fatalf("GetCredentialByID: %v", err)
	}
	credential.Config = config
	if err := s.UpdateCredential(ctx, credential); err != nil {
		t.Fatalf("UpdateCredential: %v", err)
	}

	mustSyncProxies(t, s,
		newProxy("b", domain.ProxyStatusStarted),
		newProxy("a", domain.ProxyStatusStarted),
	)

	refresh, err := s.GetNextConnectorToRefresh(ctx, 1)
	if err != nil {
		t.Fatalf("GetNextConnectorToRefresh: %v", err)
	}
	if string(refresh.CredentialConfig) != string(config) {
		t.Fatalf("credential config not bundled: %s", refresh.CredentialConfig)
	}
	if len(refresh.ProxyKeys) != 2 || refresh.ProxyKeys[0] != "a" || refresh.ProxyKeys[1] != "b" {
		t.Fatalf("unexpected proxy keys: %v", refresh.ProxyKeys)
	}
}

func TestRemoveConnectorBlockedWhileActiveOrOwningProxies(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	connector, err := s.GetConnectorByID(ctx, "p1", "co1")
	if err != nil {
		t.Fatalf("GetConnectorByID: %v", err)
	}
	active := domain.Connector{
		ID:           connector.ID,
		ProjectID:    connector.ProjectID,
		Name:         connector.Name,
		Type:         connector.Type,
		Active:       true,
		CredentialID: connector.CredentialID,
	}
	if err := s.UpdateConnector(ctx, active); err != nil {
		t.Fatalf("UpdateConnector: %v", err)
	}
	if err := s.RemoveConnector(ctx, "p1", "co1"); !storage.IsInUse(err) {
		t.Fatalf("expected InUseError for active connector, got %v", err)
	}

	active.Active = false
	if err := s.UpdateConnector(ctx, active); err != nil {
		t.Fatalf("UpdateConnector: %v", err)
	}
	mustSyncProxies(t, s, newProxy("a", domain.ProxyStatusStarted))
	if err := s.RemoveConnector(ctx, "p1", "co1"); !storage.IsInUse(err) {
		t.Fatalf("expected InUseError while proxies exist, got %v", err)
	}

	err = s.SynchronizeProxies(ctx, domain.ProxiesSynchronization{
		Removed: []string{domain.BuildProxyID("co1", "a")},
	})
	if err != nil {
		t.Fatalf("SynchronizeProxies: %v", err)
	}
	if err := s.RemoveConnector(ctx, "p1", "co1"); err != nil {
		t.Fatalf("RemoveConnector: %v", err)
	}
}

func TestRemoveConnectorCascadesFreeproxiesAndSources(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	err := s.CreateFreeproxies(ctx, "p1", "co1", []domain.Freeproxy{{
		ID:          domain.BuildFreeproxyID("co1", "1.2.3.4:3128"),
		ConnectorID: "co1",
		ProjectID:   "p1",
		Key:         "1.2.3.4:3128",
		Address:     domain.Address{Hostname: "1.2.3.4", Port: 3128},
	}})
	if err != nil {
		t.Fatalf("CreateFreeproxies: %v", err)
	}
	err = s.CreateSources(ctx, []domain.Source{{
		ID:          domain.BuildSourceID("co1", "http://lists.example.com/proxies.txt"),
		ConnectorID: "co1",
		ProjectID:   "p1",
		URL:         "http://lists.example.com/proxies.txt",
		Delay:       60000,
	}})
	if err != nil {
		t.Fatalf("CreateSources: %v", err)
	}

	if err := s.RemoveConnector(ctx, "p1", "co1"); err != nil {
		t.Fatalf("RemoveConnector: %v", err)
	}

	freeproxies, err := s.GetFreeproxiesByIDs(ctx, []string{domain.BuildFreeproxyID("co1", "1.2.3.4:3128")})
	if err != nil {
		t.Fatalf("GetFreeproxiesByIDs: %v", err)
	}
	if len(freeproxies) != 0 {
		t.Fatalf("freeproxies should be cascaded, got %d", len(freeproxies))
	}
	if _, err := s.GetNextSourceToRefresh(ctx, 1); !errors.Is(err, storage.ErrNoSourceToRefresh) {
		t.Fatalf("sources should be cascaded, got %v", err)
	}
}

func TestGetAnotherConnectorByID(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	another, err := s.GetAnotherConnectorByID(ctx, "p1", "co1")
	if err != nil {
		t.Fatalf("GetAnotherConnectorByID: %v", err)
	}
	if another != "" {
		t.Fatalf("expected no other connector, got %q", another)
	}

	err = s.CreateConnector(ctx, domain.Connector{
		ID:           "co2",
		ProjectID:    "p1",
		Name:         "second connector",
		Type:         "datacenter",
		CredentialID: "cr1",
	})
	if err != nil {
		t.Fatalf("CreateConnector: %v", err)
	}

	another, err = s.GetAnotherConnectorByID(ctx, "p1", "co1")
	if err != nil {
		t.Fatalf("GetAnotherConnectorByID: %v", err)
	}
	if another != "co2" {
		t.Fatalf("expected co2, got %q", another)
	}
}
