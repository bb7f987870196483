package database

import (
	"context"
	"errors"
	"testing"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func TestProjectLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	projectID, err := s.GetProjectIDByToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetProjectIDByToken: %v", err)
	}
	if projectID != "p1" {
		t.Fatalf("expected p1, got %s", projectID)
	}

	views, err := s.GetAllProjectsForUserID(ctx, "u1")
	if err != nil {
		t.Fatalf("GetAllProjectsForUserID: %v", err)
	}
	if len(views) != 1 || views[0].ID != "p1" {
		t.Fatalf("unexpected projects: %+v", views)
	}

	if err := s.RemoveProject(ctx, "p1"); !storage.IsInUse(err) {
		t.Fatalf("expected InUseError while connectors exist, got %v", err)
	}

	if err := s.RemoveConnector(ctx, "p1", "co1"); err != nil {
		t.Fatalf("RemoveConnector: %v", err)
	}
	if err := s.RemoveProject(ctx, "p1"); err != nil {
		t.Fatalf("RemoveProject: %v", err)
	}
	if _, err := s.GetProjectByID(ctx, "p1"); !storage.IsNotFound(err) {
		t.Fatalf("project should be gone, got %v", err)
	}
	if _, err := s.GetCredentialByID(ctx, "p1", "cr1"); !storage.IsNotFound(err) {
		t.Fatalf("credential should be cascaded, got %v", err)
	}
}

func TestProjectNameConflictRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.CreateProject(ctx, domain.ProjectCreate{
		UserID:  "u1",
		Token:   "tok-2",
		Project: domain.ProjectData{ID: "p2", Name: "website"},
	})
	if !storage.IsAlreadyExists(err) {
		t.Fatalf("expected AlreadyExistsError, got %v", err)
	}
	if _, err := s.GetProjectByID(ctx, "p2"); !storage.IsNotFound(err) {
		t.Fatalf("conflicting create must leave nothing behind, got %v", err)
	}
}

func TestSynchronizeProxiesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := testProxy("a", domain.ProxyStatusStarting)
	created.Requests = 42
	orphan := testProxy("b", domain.ProxyStatusStarting)
	orphan.ConnectorID = "ghost"

	err := s.SynchronizeProxies(ctx, domain.ProxiesSynchronization{
		Created: []domain.Proxy{created, orphan},
	})
	if err != nil {
		t.Fatalf("SynchronizeProxies: %v", err)
	}

	count, err := s.GetProxiesCount(ctx)
	if err != nil {
		t.Fatalf("GetProxiesCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("orphan must be dropped, count=%d", count)
	}

	updated := testProxy("a", domain.ProxyStatusStarted)
	updated.Fingerprint = &domain.Fingerprint{IP: "1.2.3.4", CountryCode: "FR"}
	err = s.SynchronizeProxies(ctx, domain.ProxiesSynchronization{
		Updated: []domain.Proxy{updated},
	})
	if err != nil {
		t.Fatalf("SynchronizeProxies: %v", err)
	}

	views, err := s.GetProxiesByIDs(ctx, []string{updated.ID})
	if err != nil {
		t.Fatalf("GetProxiesByIDs: %v", err)
	}
	if len(views) != 1 || views[0].Status != domain.ProxyStatusStarted {
		t.Fatalf("update not applied: %+v", views)
	}
	if views[0].Fingerprint == nil || views[0].Fingerprint.CountryCode != "FR" {
		t.Fatalf("fingerprint must round-trip through the column: %+v", views[0].Fingerprint)
	}
	// Counters were zeroed on create, not taken from the batch.
	due, err := s.GetNextProxiesToRefresh(ctx, 1, 10)
	if err != nil {
		t.Fatalf("GetNextProxiesToRefresh: %v", err)
	}
	if due[0].Requests != 0 {
		t.Fatalf("expected zeroed counters, got %d", due[0].Requests)
	}

	err = s.SynchronizeProxies(ctx, domain.ProxiesSynchronization{
		Removed: []string{updated.ID, "co1:unknown"},
	})
	if err != nil {
		t.Fatalf("SynchronizeProxies: %v", err)
	}
	count, _ = s.GetProxiesCount(ctx)
	if count != 0 {
		t.Fatalf("expected empty table, count=%d", count)
	}
}

func TestProxySchedulingSelfPacing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.SynchronizeProxies(ctx, domain.ProxiesSynchronization{
		Created: []domain.Proxy{
			testProxy("a", domain.ProxyStatusStarted),
			testProxy("b", domain.ProxyStatusStarted),
		},
	})
	if err != nil {
		t.Fatalf("SynchronizeProxies: %v", err)
	}

	aID := domain.BuildProxyID("co1", "a")
	bID := domain.BuildProxyID("co1", "b")
	if err := s.UpdateProxiesNextRefreshTs(ctx, []string{aID}, 2000); err != nil {
		t.Fatalf("UpdateProxiesNextRefreshTs: %v", err)
	}

	// b is still at 0, a is at 2000+5000.
	due, err := s.GetNextProxiesToRefresh(ctx, 7000, 10)
	if err != nil {
		t.Fatalf("GetNextProxiesToRefresh: %v", err)
	}
	if len(due) != 1 || due[0].ID != bID {
		t.Fatalf("expected only %s due, got %+v", bID, due)
	}

	due, err = s.GetNextProxiesToRefresh(ctx, 7001, 10)
	if err != nil {
		t.Fatalf("GetNextProxiesToRefresh: %v", err)
	}
	if len(due) != 2 || due[0].ID != bID || due[1].ID != aID {
		t.Fatalf("unexpected order: %+v", due)
	}

	err = s.UpdateProxiesNextRefreshTs(ctx, []string{aID, "co1:missing"}, 0)
	var nf *storage.NotFoundError
	if !errors.As(err, &nf) || nf.IDs[0] != "co1:missing" {
		t.Fatalf("expected NotFoundError for missing id, got %v", err)
	}
}

func TestGetNextProxyToConnectSkipsUnfingerprinted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ready := testProxy("a", domain.ProxyStatusStarted)
	ready.Fingerprint = &domain.Fingerprint{IP: "1.1.1.1"}
	bare := testProxy("b", domain.ProxyStatusStarted)

	err := s.SynchronizeProxies(ctx, domain.ProxiesSynchronization{
		Created: []domain.Proxy{ready, bare},
	})
	if err != nil {
		t.Fatalf("SynchronizeProxies: %v", err)
	}

	picked, err := s.GetNextProxyToConnect(ctx, "p1", nil)
	if err != nil {
		t.Fatalf("GetNextProxyToConnect: %v", err)
	}
	if picked.ID != ready.ID {
		t.Fatalf("expected %s, got %s", ready.ID, picked.ID)
	}

	if _, err := s.GetNextProxyToConnect(ctx, "ghost", nil); !storage.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestTaskLockingOnDatabase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.CreateTask(ctx, domain.Task{
		ID:          "t1",
		ProjectID:   "p1",
		ConnectorID: "co1",
		Type:        "install",
		Running:     true,
		NextRetryTs: 10,
		Locked:      true,
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	// Locked is forced off on create.
	task, err := s.GetNextTaskToRefresh(ctx, 100)
	if err != nil {
		t.Fatalf("GetNextTaskToRefresh: %v", err)
	}
	if task.ID != "t1" {
		t.Fatalf("expected t1, got %s", task.ID)
	}

	if err := s.LockTask(ctx, "p1", "t1"); err != nil {
		t.Fatalf("LockTask: %v", err)
	}
	if _, err := s.GetNextTaskToRefresh(ctx, 100); !errors.Is(err, storage.ErrNoTaskToRefresh) {
		t.Fatalf("locked task must be skipped, got %v", err)
	}
	if err := s.LockTask(ctx, "p1", "ghost"); err != nil {
		t.Fatalf("LockTask on missing task must not fail, got %v", err)
	}

	task.Message = "done"
	task.Running = false
	if err := s.UpdateTask(ctx, task); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	stored, err := s.GetTaskByID(ctx, "p1", "t1")
	if err != nil {
		t.Fatalf("GetTaskByID: %v", err)
	}
	if stored.Locked {
		t.Fatal("UpdateTask must clear the lock")
	}
}

func TestProjectMetricsOnDatabase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	metrics, err := s.GetProjectMetricsByID(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProjectMetricsByID: %v", err)
	}
	if len(metrics.Windows) != len(domain.WindowsConfig) {
		t.Fatalf("expected %d windows, got %d", len(domain.WindowsConfig), len(metrics.Windows))
	}
	window := metrics.Windows[0]

	adds := []domain.ProjectMetricsAdd{{
		Project: domain.ProjectMetricsDelta{
			ID:            "p1",
			Requests:      5,
			BytesReceived: 100,
		},
		Windows: []domain.WindowDelta{{
			ID:       window.ID,
			Size:     window.Size,
			Count:    1,
			Snapshot: &domain.Snapshot{Requests: 5},
		}},
	}}
	if err := s.AddProjectsMetrics(ctx, adds); err != nil {
		t.Fatalf("AddProjectsMetrics: %v", err)
	}
	adds[0].Project.Requests = 3
	adds[0].Project.BytesReceived = 40
	if err := s.AddProjectsMetrics(ctx, adds); err != nil {
		t.Fatalf("AddProjectsMetrics: %v", err)
	}

	metrics, err = s.GetProjectMetricsByID(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProjectMetricsByID: %v", err)
	}
	if metrics.Project.Requests != 8 || metrics.Project.BytesReceived != 140 {
		t.Fatalf("unexpected accumulation: %+v", metrics.Project)
	}
	if metrics.Project.BytesReceivedRate != 40 {
		t.Fatalf("expected rate 40, got %d", metrics.Project.BytesReceivedRate)
	}
	if metrics.Windows[0].Count != 2 || len(metrics.Windows[0].Snapshots) != 2 {
		t.Fatalf("window not updated: %+v", metrics.Windows[0])
	}

	err = s.AddProjectsMetrics(ctx, []domain.ProjectMetricsAdd{{
		Project: domain.ProjectMetricsDelta{ID: "p1"},
		Windows: []domain.WindowDelta{{ID: "ghost"}},
	}})
	if !storage.IsInconsistencyData(err) {
		t.Fatalf("expected InconsistencyDataError, got %v", err)
	}
}

func TestCertificateCacheFlushOnDatabase(t *testing.T) {
	s := New(setupTestDB(t), nil, 2)
	ctx := context.Background()

	for _, hostname := range []string{"a.example.com", "b.example.com"} {
		err := s.CreateCertificateForHostname(ctx, hostname, domain.Certificate{Cert: hostname})
		if err != nil {
			t.Fatalf("CreateCertificateForHostname: %v", err)
		}
	}
	err := s.CreateCertificateForHostname(ctx, "c.example.com", domain.Certificate{Cert: "c"})
	if err != nil {
		t.Fatalf("CreateCertificateForHostname: %v", err)
	}

	if _, err := s.GetCertificateForHostname(ctx, "a.example.com"); !storage.IsNotFound(err) {
		t.Fatalf("flushed entry should be gone, got %v", err)
	}
	certificate, err := s.GetCertificateForHostname(ctx, "c.example.com")
	if err != nil {
		t.Fatalf("GetCertificateForHostname: %v", err)
	}
	if certificate.Cert != "c" {
		t.Fatalf("unexpected certificate: %+v", certificate)
	}
}

func TestConnectorCertificatePersistsAcrossUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.UpdateConnectorCertificate(ctx, "p1", "co1", domain.CertificateInfo{
		Certificate: domain.Certificate{Cert: "CERT", Key: "KEY"},
		EndAt:       12345,
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
		Name:         connector.Name,
		Type:         connector.Type,
		CredentialID: connector.CredentialID,
		ProxiesMax:   99,
	}
	if err := s.UpdateConnector(ctx, update); err != nil {
		t.Fatalf("UpdateConnector: %v", err)
	}

	certificate, err := s.GetConnectorCertificateByID(ctx, "p1", "co1")
	if err != nil {
		t.Fatalf("GetConnectorCertificateByID: %v", err)
	}
	if certificate == nil || certificate.Cert != "CERT" {
		t.Fatalf("certificate lost on update: %+v", certificate)
	}
}
