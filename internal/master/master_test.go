package master

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
	"flotilla/internal/storage/memory"
)

func strptr(s string) *string { return &s }

func newFixture(t *testing.T, mitm bool) (*Master, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	s := memory.New(nil, 0)

	if err := s.CreateUser(ctx, domain.User{ID: "u1", Name: "alice", Email: strptr("alice@example.com")}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.CreateProject(ctx, domain.ProjectCreate{
		UserID: "u1",
		Token:  "tok-1",
		Project: domain.ProjectData{
			ID:     "p1",
			Name:   "website",
			Status: domain.ProjectStatusHot,
			MITM:   mitm,
		},
	}); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := s.CreateCredential(ctx, domain.Credential{
		ID: "cr1", ProjectID: "p1", Name: "datacenter credential", Type: "datacenter",
	}); err != nil {
		t.Fatalf("CreateCredential: %v", err)
	}
	if err := s.CreateConnector(ctx, domain.Connector{
		ID:           "co1",
		ProjectID:    "p1",
		Name:         "datacenter connector",
		Type:         "datacenter",
		CredentialID: "cr1",
		ProxiesMax:   10,
	}); err != nil {
		t.Fatalf("CreateConnector: %v", err)
	}

	if err := EnsureRootCertificate(ctx, s, s, 0); err != nil {
		t.Fatalf("EnsureRootCertificate: %v", err)
	}
	return New(s, 0), s
}

func onlineProxy(key string) domain.Proxy {
	return domain.Proxy{
		ID:          domain.BuildProxyID("co1", key),
		ConnectorID: "co1",
		ProjectID:   "p1",
		Type:        "datacenter",
		Key:         key,
		Name:        key,
		Status:      domain.ProxyStatusStarted,
		Fingerprint: &domain.Fingerprint{IP: "203.0.113.7"},
	}
}

func TestEnsureRootCertificateIsIdempotent(t *testing.T) {
	_, s := newFixture(t, false)
	ctx := context.Background()

	first, err := s.GetParam(ctx, CertificateParam)
	if err != nil {
		t.Fatalf("GetParam: %v", err)
	}
	if err := EnsureRootCertificate(ctx, s, s, 0); err != nil {
		t.Fatalf("EnsureRootCertificate: %v", err)
	}
	second, err := s.GetParam(ctx, CertificateParam)
	if err != nil {
		t.Fatalf("GetParam: %v", err)
	}
	if first != second {
		t.Fatal("root certificate must not be regenerated")
	}
}

func TestGetProjectToConnectModes(t *testing.T) {
	m, _ := newFixture(t, false)
	ctx := context.Background()

	if _, err := m.GetProjectToConnect(ctx, "bad-token", ConnectModeAuto, "example.com"); !storage.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	// MITM is off on the project, so auto tunnels.
	decision, err := m.GetProjectToConnect(ctx, "tok-1", ConnectModeAuto, "example.com")
	if err != nil {
		t.Fatalf("GetProjectToConnect: %v", err)
	}
	if decision.Project.ID != "p1" || decision.Certificate != nil {
		t.Fatalf("unexpected decision: %+v", decision)
	}

	decision, err = m.GetProjectToConnect(ctx, "tok-1", ConnectModeMITM, "example.com")
	if err != nil {
		t.Fatalf("GetProjectToConnect: %v", err)
	}
	if decision.Certificate == nil {
		t.Fatal("forced mitm must return a certificate")
	}

	if _, err := m.GetProjectToConnect(ctx, "tok-1", "pigeon", "example.com"); err == nil {
		t.Fatal("expected an error for an unknown mode")
	}
}

func TestMITMCertificateIsCachedPerHostname(t *testing.T) {
	m, s := newFixture(t, true)
	ctx := context.Background()

	first, err := m.GetProjectToConnect(ctx, "tok-1", ConnectModeAuto, "example.com")
	if err != nil {
		t.Fatalf("GetProjectToConnect: %v", err)
	}
	if first.Certificate == nil {
		t.Fatal("mitm project must get a certificate")
	}

	second, err := m.GetProjectToConnect(ctx, "tok-1", ConnectModeAuto, "example.com")
	if err != nil {
		t.Fatalf("GetProjectToConnect: %v", err)
	}
	if second.Certificate.Cert != first.Certificate.Cert {
		t.Fatal("expected the cached certificate on the second connect")
	}

	cached, err := s.GetCertificateForHostname(ctx, "example.com")
	if err != nil {
		t.Fatalf("GetCertificateForHostname: %v", err)
	}
	if cached.Cert != first.Certificate.Cert {
		t.Fatal("issued certificate was not cached")
	}

	block, _ := pem.Decode([]byte(first.Certificate.Cert))
	if block == nil {
		t.Fatal("certificate is not pem")
	}
	leaf, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse leaf: %v", err)
	}
	if leaf.Subject.CommonName != "example.com" || len(leaf.DNSNames) != 1 {
		t.Fatalf("unexpected leaf: CN=%q DNS=%v", leaf.Subject.CommonName, leaf.DNSNames)
	}
}

func TestGetNextProxyToConnectStampsRotation(t *testing.T) {
	m, s := newFixture(t, false)
	ctx := context.Background()

	err := s.SynchronizeProxies(ctx, domain.ProxiesSynchronization{
		Created: []domain.Proxy{onlineProxy("a"), onlineProxy("b")},
	})
	if err != nil {
		t.Fatalf("SynchronizeProxies: %v", err)
	}
	// Created rows start unfingerprinted; confirm them.
	err = s.SynchronizeProxies(ctx, domain.ProxiesSynchronization{
		Updated: []domain.Proxy{onlineProxy("a"), onlineProxy("b")},
	})
	if err != nil {
		t.Fatalf("SynchronizeProxies: %v", err)
	}

	first, err := m.GetNextProxyToConnect(ctx, "p1", nil)
	if err != nil {
		t.Fatalf("GetNextProxyToConnect: %v", err)
	}
	if first.LastConnectionTs == 0 {
		t.Fatal("connection timestamp not stamped")
	}

	second, err := m.GetNextProxyToConnect(ctx, "p1", nil)
	if err != nil {
		t.Fatalf("GetNextProxyToConnect: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("rotation stuck on %s", first.ID)
	}

	name := "a"
	named, err := m.GetNextProxyToConnect(ctx, "p1", &name)
	if err != nil {
		t.Fatalf("GetNextProxyToConnect: %v", err)
	}
	if named.Name != "a" {
		t.Fatalf("expected proxy a, got %s", named.Name)
	}
}
