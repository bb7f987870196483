package memory

import (
	"context"
	"errors"
	"testing"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func TestSynchronizeProxiesZeroesCounters(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	proxy := newProxy("a", domain.ProxyStatusStarted)
	proxy.Requests = 99
	proxy.BytesReceived = 99
	proxy.BytesSent = 99
	proxy.NextRefreshTs = 99
	proxy.LastConnectionTs = 99
	mustSyncProxies(t, s, proxy)

	due, err := s.GetNextProxiesToRefresh(ctx, 1, 10)
	if err != nil {
		t.Fatalf("GetNextProxiesToRefresh: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 due proxy, got %d", len(due))
	}
	if due[0].Requests != 0 || due[0].BytesReceived != 0 || due[0].BytesSent != 0 {
		t.Fatalf("counters not reset: %+v", due[0])
	}
}

func TestSynchronizeProxiesDropsOrphansButKeepsThemInEvent(t *testing.T) {
	s, bus := newFixture(t)
	ctx := context.Background()

	orphan := newProxy("b", domain.ProxyStatusStarted)
	orphan.ProjectID = "ghost"
	mustSyncProxies(t, s, orphan)

	count, err := s.GetProxiesCount(ctx)
	if err != nil {
		t.Fatalf("GetProxiesCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("orphan row should not be stored, count=%d", count)
	}

	events := bus.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	sync, ok := events[0].Event.(domain.ProxiesSynchronizedEvent)
	if !ok {
		t.Fatalf("unexpected event type %T", events[0].Event)
	}
	if len(sync.Created) != 1 {
		t.Fatalf("orphan must still appear in the event, got %d created", len(sync.Created))
	}
}

func TestSynchronizeProxiesUpdateAndRemoveSkipUnknown(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	mustSyncProxies(t, s, newProxy("a", domain.ProxyStatusStarting))

	updated := newProxy("a", domain.ProxyStatusStarted)
	updated.Fingerprint = &domain.Fingerprint{IP: "1.2.3.4"}
	unknown := newProxy("zz", domain.ProxyStatusStarted)

	err := s.SynchronizeProxies(ctx, domain.ProxiesSynchronization{
		Updated: []domain.Proxy{updated, unknown},
		Removed: []string{domain.BuildProxyID("co1", "nope")},
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
	if views[0].Fingerprint == nil || views[0].Fingerprint.IP != "1.2.3.4" {
		t.Fatalf("fingerprint not applied: %+v", views[0].Fingerprint)
	}
}

func TestGetNextProxyToConnectPicksOldestConnection(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	a := newProxy("a", domain.ProxyStatusStarted)
	a.Fingerprint = &domain.Fingerprint{IP: "1.1.1.1"}
	b := newProxy("b", domain.ProxyStatusStarted)
	b.Fingerprint = &domain.Fingerprint{IP: "2.2.2.2"}
	offline := newProxy("c", domain.ProxyStatusStopped)
	mustSyncProxies(t, s, a, b, offline)

	if err := s.UpdateProxyLastConnectionTs(ctx, "p1", "co1", a.ID, 100); err != nil {
		t.Fatalf("UpdateProxyLastConnectionTs: %v", err)
	}

	picked, err := s.GetNextProxyToConnect(ctx, "p1", nil)
	if err != nil {
		t.Fatalf("GetNextProxyToConnect: %v", err)
	}
	if picked.ID != b.ID {
		t.Fatalf("expected %s (never connected), got %s", b.ID, picked.ID)
	}
}

func TestGetNextProxyToConnectByName(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	a := newProxy("a", domain.ProxyStatusStarted)
	a.Fingerprint = &domain.Fingerprint{IP: "1.1.1.1"}
	mustSyncProxies(t, s, a)

	picked, err := s.GetNextProxyToConnect(ctx, "p1", strptr(a.ID))
	if err != nil {
		t.Fatalf("GetNextProxyToConnect: %v", err)
	}
	if picked.ID != a.ID {
		t.Fatalf("expected %s, got %s", a.ID, picked.ID)
	}

	if _, err := s.GetNextProxyToConnect(ctx, "p1", strptr("co1:missing")); !errors.Is(err, storage.ErrNoProjectProxy) {
		t.Fatalf("expected ErrNoProjectProxy, got %v", err)
	}
}

func TestGetNextProxiesToRefreshOrdering(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	mustSyncProxies(t, s,
		newProxy("a", domain.ProxyStatusStarted),
		newProxy("b", domain.ProxyStatusStarted),
		newProxy("c", domain.ProxyStatusStarted),
	)
	for key, ts := range map[string]int64{"a": 10, "b": 20, "c": 30} {
		id := domain.BuildProxyID("co1", key)
		if err := s.UpdateProxiesNextRefreshTs(ctx, []string{id}, ts-5000); err != nil {
			t.Fatalf("UpdateProxiesNextRefreshTs(%s): %v", key, err)
		}
	}

	due, err := s.GetNextProxiesToRefresh(ctx, 25, 10)
	if err != nil {
		t.Fatalf("GetNextProxiesToRefresh: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due proxies, got %d", len(due))
	}
	if due[0].ID != domain.BuildProxyID("co1", "a") || due[1].ID != domain.BuildProxyID("co1", "b") {
		t.Fatalf("unexpected order: %s, %s", due[0].ID, due[1].ID)
	}

	if _, err := s.GetNextProxiesToRefresh(ctx, 5, 10); !errors.Is(err, storage.ErrNoProxyToRefresh) {
		t.Fatalf("expected ErrNoProxyToRefresh, got %v", err)
	}
}

func TestUpdateProxiesNextRefreshTsSelfPacing(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	mustSyncProxies(t, s, newProxy("a", domain.ProxyStatusStarted))
	id := domain.BuildProxyID("co1", "a")

	if err := s.UpdateProxiesNextRefreshTs(ctx, []string{id}, 1000); err != nil {
		t.Fatalf("UpdateProxiesNextRefreshTs: %v", err)
	}

	// Deadline is base + the proxy's own disconnect timeout (5000).
	if _, err := s.GetNextProxiesToRefresh(ctx, 6000, 10); !errors.Is(err, storage.ErrNoProxyToRefresh) {
		t.Fatalf("proxy should not be due before base+timeout, got %v", err)
	}
	due, err := s.GetNextProxiesToRefresh(ctx, 6001, 10)
	if err != nil {
		t.Fatalf("GetNextProxiesToRefresh: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 due proxy, got %d", len(due))
	}

	err = s.UpdateProxiesNextRefreshTs(ctx, []string{id, "co1:missing"}, 2000)
	var nf *storage.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for missing id, got %v", err)
	}
	if len(nf.IDs) != 1 || nf.IDs[0] != "co1:missing" {
		t.Fatalf("unexpected missing ids: %v", nf.IDs)
	}
}

func TestAddProxiesMetricsAccumulates(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	mustSyncProxies(t, s, newProxy("a", domain.ProxyStatusStarted))
	id := domain.BuildProxyID("co1", "a")

	adds := []domain.ProxyMetricsAdd{{
		ID:            id,
		ConnectorID:   "co1",
		ProjectID:     "p1",
		Requests:      5,
		BytesReceived: 100,
		BytesSent:     50,
	}}
	if err := s.AddProxiesMetrics(ctx, adds); err != nil {
		t.Fatalf("AddProxiesMetrics: %v", err)
	}
	adds[0].Requests = 3
	if err := s.AddProxiesMetrics(ctx, adds); err != nil {
		t.Fatalf("AddProxiesMetrics: %v", err)
	}

	due, err := s.GetNextProxiesToRefresh(ctx, 1, 10)
	if err != nil {
		t.Fatalf("GetNextProxiesToRefresh: %v", err)
	}
	if due[0].Requests != 8 {
		t.Fatalf("expected 8 requests, got %d", due[0].Requests)
	}

	metrics, err := s.GetProjectMetricsByID(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProjectMetricsByID: %v", err)
	}
	if metrics.Project.Snapshot.Requests != 8 {
		t.Fatalf("project snapshot should accumulate, got %d", metrics.Project.Snapshot.Requests)
	}

	sync, err := s.GetProjectSyncByID(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProjectSyncByID: %v", err)
	}
	if sync.LastDataTs == 0 {
		t.Fatal("lastDataTs should be stamped by proxy traffic")
	}
}
