package memory

import (
	"context"
	"slices"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func (s *Store) GetAllProjectConnectorsAndProxiesByID(ctx context.Context, projectID string) ([]domain.ConnectorProxiesView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := []domain.ConnectorProxiesView{}
	for connectorID := range s.connectorsByProject[projectID] {
		connector := s.connectors[connectorID]
		views = append(views, domain.ConnectorProxiesView{
			Connector: domain.ToConnectorView(connector),
			Proxies:   s.connectorProxyViewsLocked(connectorID),
		})
	}

	slices.SortFunc(views, func(a, b domain.ConnectorProxiesView) int {
		switch {
		case a.Connector.Name < b.Connector.Name:
			return -1
		case a.Connector.Name > b.Connector.Name:
			return 1
		default:
			return 0
		}
	})
	return views, nil
}

func (s *Store) GetAllConnectorProxiesByID(ctx context.Context, projectID, connectorID string) (domain.ConnectorProxiesView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	connector, ok := s.connectors[connectorID]
	if !ok || connector.ProjectID != projectID {
		return domain.ConnectorProxiesView{}, storage.NewNotFoundError(storage.KindConnector, connectorID)
	}
	return domain.ConnectorProxiesView{
		Connector: domain.ToConnectorView(connector),
		Proxies:   s.connectorProxyViewsLocked(connectorID),
	}, nil
}

func (s *Store) GetAllConnectorProxiesSyncByID(ctx context.Context, projectID, connectorID string) (domain.ConnectorProxiesSync, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	connector, ok := s.connectors[connectorID]
	if !ok || connector.ProjectID != projectID {
		return domain.ConnectorProxiesSync{}, storage.NewNotFoundError(storage.KindConnector, connectorID)
	}

	proxies := []domain.ProxySync{}
	for proxyID := range s.proxiesByConnector[connectorID] {
		proxies = append(proxies, domain.ToProxySync(s.proxies[proxyID]))
	}
	sortByID(proxies, func(p domain.ProxySync) string { return p.ID })

	return domain.ConnectorProxiesSync{
		Connector: domain.ToConnectorSync(connector),
		Proxies:   proxies,
	}, nil
}

func (s *Store) GetConnectorByID(ctx context.Context, projectID, connectorID string) (domain.ConnectorData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	connector, ok := s.connectors[connectorID]
	if !ok || connector.ProjectID != projectID {
		return domain.ConnectorData{}, storage.NewNotFoundError(storage.KindConnector, connectorID)
	}
	return domain.ToConnectorData(connector), nil
}

// GetAnotherConnectorByID returns the id of any other connector in the
// project, or an empty string when the project has none.
func (s *Store) GetAnotherConnectorByID(ctx context.Context, projectID, excludeConnectorID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := []string{}
	for connectorID := range s.connectorsByProject[projectID] {
		if connectorID != excludeConnectorID {
			ids = append(ids, connectorID)
		}
	}
	if len(ids) == 0 {
		return "", nil
	}

	slices.Sort(ids)
	return ids[0], nil
}

func (s *Store) GetConnectorCertificateByID(ctx context.Context, projectID, connectorID string) (*domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	connector, ok := s.connectors[connectorID]
	if !ok || connector.ProjectID != projectID {
		return nil, storage.NewNotFoundError(storage.KindConnector, connectorID)
	}
	if connector.Certificate == nil {
		return nil, nil
	}

	certificate := *connector.Certificate
	return &certificate, nil
}

func (s *Store) CheckIfConnectorNameExists(ctx context.Context, projectID, name, excludeConnectorID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.checkConnectorNameLocked(projectID, name, excludeConnectorID)
}

func (s *Store) checkConnectorNameLocked(projectID, name, excludeConnectorID string) error {
	for connectorID := range s.connectorsByProject[projectID] {
		if connectorID == excludeConnectorID {
			continue
		}
		if s.connectors[connectorID].Name == name {
			return storage.NewAlreadyExistsError(storage.KindConnector, name)
		}
	}
	return nil
}

func (s *Store) CreateConnector(ctx context.Context, connector domain.Connector) error {
	s.mu.Lock()

	if _, ok := s.projects[connector.ProjectID]; !ok {
		s.mu.Unlock()
		return storage.NewNotFoundError(storage.KindProject, connector.ProjectID)
	}
	credential, ok := s.credentials[connector.CredentialID]
	if !ok || credential.ProjectID != connector.ProjectID {
		s.mu.Unlock()
		return storage.NewNotFoundError(storage.KindCredential, connector.CredentialID)
	}
	if err := s.checkConnectorNameLocked(connector.ProjectID, connector.Name, connector.ID); err != nil {
		s.mu.Unlock()
		return err
	}

	s.connectors[connector.ID] = &connector
	addIndex(s.connectorsByProject, connector.ProjectID, connector.ID)
	s.mu.Unlock()

	s.emit([]domain.Event{{
		ID:    connector.ProjectID,
		Scope: domain.ScopeProject,
		Event: domain.ConnectorCreatedEvent{Connector: domain.ToConnectorView(&connector)},
	}})
	return nil
}

func (s *Store) UpdateConnector(ctx context.Context, connector domain.Connector) error {
	s.mu.Lock()

	existing, ok := s.connectors[connector.ID]
	if !ok || existing.ProjectID != connector.ProjectID {
		s.mu.Unlock()
		return storage.NewNotFoundError(storage.KindConnector, connector.ID)
	}
	if err := s.checkConnectorNameLocked(connector.ProjectID, connector.Name, connector.ID); err != nil {
		s.mu.Unlock()
		return err
	}

	// Refresh scheduling and certificate material are owned by their
	// dedicated operations.
	connector.NextRefreshTs = existing.NextRefreshTs
	connector.Certificate = existing.Certificate
	connector.CertificateEndAt = existing.CertificateEndAt

	s.connectors[connector.ID] = &connector
	s.mu.Unlock()

	s.emit([]domain.Event{{
		ID:    connector.ProjectID,
		Scope: domain.ScopeProject,
		Event: domain.ConnectorUpdatedEvent{Connector: domain.ToConnectorView(&connector)},
	}})
	return nil
}

func (s *Store) UpdateConnectorCertificate(ctx context.Context, projectID, connectorID string, info domain.CertificateInfo) error {
	s.mu.Lock()

	connector, ok := s.connectors[connectorID]
	if !ok || connector.ProjectID != projectID {
		s.mu.Unlock()
		return storage.NewNotFoundError(storage.KindConnector, connectorID)
	}

	certificate := info.Certificate
	endAt := info.EndAt
	connector.Certificate = &certificate
	connector.CertificateEndAt = &endAt
	view := domain.ToConnectorView(connector)
	s.mu.Unlock()

	s.emit([]domain.Event{{
		ID:    projectID,
		Scope: domain.ScopeProject,
		Event: domain.ConnectorUpdatedEvent{Connector: view},
	}})
	return nil
}

func (s *Store) RemoveConnector(ctx context.Context, projectID, connectorID string) error {
	s.mu.Lock()

	connector, ok := s.connectors[connectorID]
	if !ok || connector.ProjectID != projectID {
		s.mu.Unlock()
		return storage.NewNotFoundError(storage.KindConnector, connectorID)
	}
	if connector.Active {
		s.mu.Unlock()
		return storage.NewInUseError(storage.KindConnector, connectorID, "connector is active")
	}
	if len(s.proxiesByConnector[connectorID]) > 0 {
		s.mu.Unlock()
		return storage.NewInUseError(storage.KindConnector, connectorID, "connector still owns proxies")
	}

	for freeproxyID := range s.freeproxiesByConnector[connectorID] {
		delete(s.freeproxies, freeproxyID)
		removeIndex(s.freeproxiesByProject, projectID, freeproxyID)
	}
	delete(s.freeproxiesByConnector, connectorID)

	for sourceID := range s.sourcesByConnector[connectorID] {
		delete(s.sources, sourceID)
	}
	delete(s.sourcesByConnector, connectorID)

	view := domain.ToConnectorView(connector)
	delete(s.connectors, connectorID)
	removeIndex(s.connectorsByProject, projectID, connectorID)
	s.mu.Unlock()

	s.emit([]domain.Event{{
		ID:    projectID,
		Scope: domain.ScopeProject,
		Event: domain.ConnectorRemovedEvent{Connector: view},
	}})
	return nil
}

func (s *Store) GetNextConnectorToRefresh(ctx context.Context, threshold int64) (domain.ConnectorToRefresh, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next *domain.Connector
	for _, connector := range s.connectors {
		if connector.NextRefreshTs >= threshold {
			continue
		}
		if next == nil || connector.NextRefreshTs < next.NextRefreshTs {
			next = connector
		}
	}
	if next == nil {
		return domain.ConnectorToRefresh{}, storage.ErrNoConnectorToRefresh
	}

	credential, ok := s.credentials[next.CredentialID]
	if !ok {
		return domain.ConnectorToRefresh{}, storage.NewInconsistencyDataError(
			"connector %s references missing credential %s", next.ID, next.CredentialID)
	}

	proxyKeys := []string{}
	for proxyID := range s.proxiesByConnector[next.ID] {
		proxyKeys = append(proxyKeys, s.proxies[proxyID].Key)
	}
	slices.Sort(proxyKeys)

	return domain.ConnectorToRefresh{
		ID:               next.ID,
		ProjectID:        next.ProjectID,
		Name:             next.Name,
		Type:             next.Type,
		Error:            next.Error,
		CredentialID:     credential.ID,
		CredentialConfig: credential.Config,
		Config:           next.Config,
		ProxyKeys:        proxyKeys,
	}, nil
}

func (s *Store) UpdateConnectorNextRefreshTs(ctx context.Context, projectID, connectorID string, nextRefreshTs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	connector, ok := s.connectors[connectorID]
	if !ok || connector.ProjectID != projectID {
		return storage.NewNotFoundError(storage.KindConnector, connectorID)
	}
	connector.NextRefreshTs = nextRefreshTs
	return nil
}

func (s *Store) connectorProxyViewsLocked(connectorID string) []domain.ProxyView {
	proxies := []domain.ProxyView{}
	for proxyID := range s.proxiesByConnector[connectorID] {
		proxies = append(proxies, domain.ToProxyView(s.proxies[proxyID]))
	}
	sortByID(proxies, func(p domain.ProxyView) string { return p.ID })
	return proxies
}

// sortByID keeps map-backed reads deterministic.
func sortByID[T any](items []T, id func(T) string) {
	slices.SortFunc(items, func(a, b T) int {
		switch {
		case id(a) < id(b):
			return -1
		case id(a) > id(b):
			return 1
		default:
			return 0
		}
	})
}
