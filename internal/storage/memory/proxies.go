package memory

import (
	"context"
	"slices"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func (s *Store) GetProxiesByIDs(ctx context.Context, proxyIDs []string) ([]domain.ProxyView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := []domain.ProxyView{}
	for _, proxyID := range proxyIDs {
		if proxy, ok := s.proxies[proxyID]; ok {
			views = append(views, domain.ToProxyView(proxy))
		}
	}
	return views, nil
}

func (s *Store) GetProjectProxiesByIDs(ctx context.Context, projectID string, proxyIDs []string, removing *bool) ([]domain.ProxyView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := []domain.ProxyView{}
	for _, proxyID := range proxyIDs {
		proxy, ok := s.proxies[proxyID]
		if !ok || proxy.ProjectID != projectID {
			continue
		}
		if removing != nil && proxy.Removing != *removing {
			continue
		}
		views = append(views, domain.ToProxyView(proxy))
	}
	return views, nil
}

func (s *Store) GetConnectorProxiesCountByID(ctx context.Context, projectID, connectorID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	connector, ok := s.connectors[connectorID]
	if !ok || connector.ProjectID != projectID {
		return 0, storage.NewNotFoundError(storage.KindConnector, connectorID)
	}
	return len(s.proxiesByConnector[connectorID]), nil
}

func (s *Store) GetProxiesCount(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.proxies)), nil
}

// SynchronizeProxies applies a provisioning batch in one pass. Created rows
// whose project or connector vanished are dropped, unknown ids in updated and
// removed are skipped, and one event per touched project is emitted.
func (s *Store) SynchronizeProxies(ctx context.Context, actions domain.ProxiesSynchronization) error {
	s.mu.Lock()

	type projectActions struct {
		created []domain.ProxyView
		updated []domain.ProxyView
		removed []string
	}
	byProject := map[string]*projectActions{}
	touched := func(projectID string) *projectActions {
		pa, ok := byProject[projectID]
		if !ok {
			pa = &projectActions{}
			byProject[projectID] = pa
		}
		return pa
	}

	for _, created := range actions.Created {
		pa := touched(created.ProjectID)
		pa.created = append(pa.created, domain.ToProxyView(&created))

		if _, ok := s.projects[created.ProjectID]; !ok {
			continue
		}
		connector, ok := s.connectors[created.ConnectorID]
		if !ok || connector.ProjectID != created.ProjectID {
			continue
		}

		proxy := created
		proxy.Requests = 0
		proxy.BytesReceived = 0
		proxy.BytesSent = 0
		proxy.NextRefreshTs = 0
		proxy.LastConnectionTs = 0

		s.proxies[proxy.ID] = &proxy
		addIndex(s.proxiesByProject, proxy.ProjectID, proxy.ID)
		addIndex(s.proxiesByConnector, proxy.ConnectorID, proxy.ID)
	}

	for _, updated := range actions.Updated {
		proxy, ok := s.proxies[updated.ID]
		if !ok {
			continue
		}

		pa := touched(proxy.ProjectID)

		proxy.Status = updated.Status
		proxy.Config = updated.Config
		proxy.Removing = updated.Removing
		proxy.RemovingForce = updated.RemovingForce
		proxy.Fingerprint = updated.Fingerprint
		proxy.FingerprintError = updated.FingerprintError
		proxy.DisconnectedTs = updated.DisconnectedTs

		pa.updated = append(pa.updated, domain.ToProxyView(proxy))
	}

	for _, removedID := range actions.Removed {
		proxy, ok := s.proxies[removedID]
		if !ok {
			continue
		}

		pa := touched(proxy.ProjectID)
		pa.removed = append(pa.removed, removedID)

		removeIndex(s.proxiesByProject, proxy.ProjectID, removedID)
		removeIndex(s.proxiesByConnector, proxy.ConnectorID, removedID)
		delete(s.proxies, removedID)
	}
	s.mu.Unlock()

	events := make([]domain.Event, 0, len(byProject))
	for projectID, pa := range byProject {
		events = append(events, domain.Event{
			ID:    projectID,
			Scope: domain.ScopeProxies,
			Event: domain.ProxiesSynchronizedEvent{
				ProjectID: projectID,
				Created:   pa.created,
				Updated:   pa.updated,
				Removed:   pa.removed,
			},
		})
	}
	s.emit(events)
	return nil
}

// AddProxiesMetrics bumps per-proxy counters, folds the traffic into the
// owning project's snapshot accumulator and stamps lastDataTs.
func (s *Store) AddProxiesMetrics(ctx context.Context, adds []domain.ProxyMetricsAdd) error {
	s.mu.Lock()

	now := nowMs()
	byProject := map[string][]domain.ProxyMetricsAdd{}
	for _, add := range adds {
		byProject[add.ProjectID] = append(byProject[add.ProjectID], add)

		if project, ok := s.projects[add.ProjectID]; ok {
			project.Snapshot.Requests += add.Requests
			project.Snapshot.BytesReceived += add.BytesReceived
			project.Snapshot.BytesSent += add.BytesSent
			project.LastDataTs = now
		}

		if proxy, ok := s.proxies[add.ID]; ok {
			proxy.Requests += add.Requests
			proxy.BytesReceived += add.BytesReceived
			proxy.BytesSent += add.BytesSent
		}
	}
	s.mu.Unlock()

	events := make([]domain.Event, 0, len(byProject))
	for projectID, proxies := range byProject {
		events = append(events, domain.Event{
			ID:    projectID,
			Scope: domain.ScopeProxies,
			Event: domain.ProxiesMetricsAddedEvent{
				ProjectID: projectID,
				Proxies:   proxies,
			},
		})
	}
	s.emit(events)
	return nil
}

// GetNextProxyToConnect returns the named proxy when it exists and belongs to
// the project, otherwise the online proxy with the oldest lastConnectionTs.
func (s *Store) GetNextProxyToConnect(ctx context.Context, projectID string, proxyname *string) (domain.ProxyToConnect, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.projects[projectID]; !ok {
		return domain.ProxyToConnect{}, storage.NewNotFoundError(storage.KindProject, projectID)
	}

	var selected *domain.Proxy
	if proxyname != nil && *proxyname != "" {
		if proxy, ok := s.proxies[*proxyname]; ok && proxy.ProjectID == projectID {
			selected = proxy
		}
	} else {
		for proxyID := range s.proxiesByProject[projectID] {
			proxy := s.proxies[proxyID]
			if !proxy.Online() {
				continue
			}
			if selected == nil ||
				proxy.LastConnectionTs < selected.LastConnectionTs ||
				(proxy.LastConnectionTs == selected.LastConnectionTs && proxy.ID < selected.ID) {
				selected = proxy
			}
		}
	}

	if selected == nil {
		return domain.ProxyToConnect{}, storage.ErrNoProjectProxy
	}
	return domain.ToProxyToConnect(selected), nil
}

func (s *Store) UpdateProxyLastConnectionTs(ctx context.Context, projectID, connectorID, proxyID string, lastConnectionTs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	proxy, ok := s.proxies[proxyID]
	if !ok {
		return storage.NewNotFoundError(storage.KindProxy, proxyID)
	}
	proxy.LastConnectionTs = lastConnectionTs
	return nil
}

func (s *Store) GetNextProxiesToRefresh(ctx context.Context, threshold int64, count int) ([]domain.ProxyToRefresh, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	due := []*domain.Proxy{}
	for _, proxy := range s.proxies {
		if proxy.Status == domain.ProxyStatusStarted && proxy.NextRefreshTs < threshold {
			due = append(due, proxy)
		}
	}
	if len(due) == 0 {
		return nil, storage.ErrNoProxyToRefresh
	}

	slices.SortFunc(due, func(a, b *domain.Proxy) int {
		switch {
		case a.NextRefreshTs < b.NextRefreshTs:
			return -1
		case a.NextRefreshTs > b.NextRefreshTs:
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	if count < len(due) {
		due = due[:count]
	}

	proxies := make([]domain.ProxyToRefresh, 0, len(due))
	for _, proxy := range due {
		proxies = append(proxies, domain.ToProxyToRefresh(proxy))
	}
	return proxies, nil
}

// UpdateProxiesNextRefreshTs pushes each proxy's next eligible time to
// base + its own disconnect timeout, the self-pacing backoff.
func (s *Store) UpdateProxiesNextRefreshTs(ctx context.Context, proxyIDs []string, base int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	missing := []string{}
	for _, proxyID := range proxyIDs {
		proxy, ok := s.proxies[proxyID]
		if !ok {
			missing = append(missing, proxyID)
			continue
		}
		proxy.NextRefreshTs = base + proxy.TimeoutDisconnected
	}
	if len(missing) > 0 {
		return storage.NewNotFoundError(storage.KindProxy, missing...)
	}
	return nil
}
