package memory

import (
	"context"
	"slices"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func (s *Store) GetFreeproxiesByIDs(ctx context.Context, freeproxyIDs []string) ([]domain.Freeproxy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	freeproxies := []domain.Freeproxy{}
	for _, freeproxyID := range freeproxyIDs {
		if freeproxy, ok := s.freeproxies[freeproxyID]; ok {
			freeproxies = append(freeproxies, *freeproxy)
		}
	}
	return freeproxies, nil
}

func (s *Store) GetAllProjectFreeproxiesByID(ctx context.Context, projectID, connectorID string) ([]domain.Freeproxy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireConnectorLocked(projectID, connectorID); err != nil {
		return nil, err
	}

	freeproxies := []domain.Freeproxy{}
	for freeproxyID := range s.freeproxiesByConnector[connectorID] {
		freeproxies = append(freeproxies, *s.freeproxies[freeproxyID])
	}
	sortByID(freeproxies, func(f domain.Freeproxy) string { return f.ID })
	return freeproxies, nil
}

func (s *Store) GetSelectedProjectFreeproxies(ctx context.Context, projectID, connectorID string, keys []string) ([]domain.Freeproxy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireConnectorLocked(projectID, connectorID); err != nil {
		return nil, err
	}

	freeproxies := []domain.Freeproxy{}
	for freeproxyID := range s.freeproxiesByConnector[connectorID] {
		freeproxy := s.freeproxies[freeproxyID]
		if slices.Contains(keys, freeproxy.Key) {
			freeproxies = append(freeproxies, *freeproxy)
		}
	}
	sortByID(freeproxies, func(f domain.Freeproxy) string { return f.ID })
	return freeproxies, nil
}

// GetNewProjectFreeproxies returns up to count fingerprinted freeproxies of
// the connector whose keys are not excluded.
func (s *Store) GetNewProjectFreeproxies(ctx context.Context, projectID, connectorID string, count int, excludeKeys []string) ([]domain.Freeproxy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireConnectorLocked(projectID, connectorID); err != nil {
		return nil, err
	}

	freeproxies := []domain.Freeproxy{}
	for freeproxyID := range s.freeproxiesByConnector[connectorID] {
		freeproxy := s.freeproxies[freeproxyID]
		if freeproxy.Fingerprint == nil || slices.Contains(excludeKeys, freeproxy.Key) {
			continue
		}
		freeproxies = append(freeproxies, *freeproxy)
	}
	sortByID(freeproxies, func(f domain.Freeproxy) string { return f.ID })

	if count < len(freeproxies) {
		freeproxies = freeproxies[:count]
	}
	return freeproxies, nil
}

func (s *Store) CreateFreeproxies(ctx context.Context, projectID, connectorID string, freeproxies []domain.Freeproxy) error {
	s.mu.Lock()

	if err := s.requireConnectorLocked(projectID, connectorID); err != nil {
		s.mu.Unlock()
		return err
	}

	created := []domain.Freeproxy{}
	for _, freeproxy := range freeproxies {
		// Rows addressed to another connector are dropped, not errored, so a
		// caller can fan one discovery batch out over several connectors.
		if freeproxy.ProjectID != projectID || freeproxy.ConnectorID != connectorID {
			continue
		}

		freeproxy.NextRefreshTs = 0
		row := freeproxy
		s.freeproxies[row.ID] = &row
		addIndex(s.freeproxiesByProject, projectID, row.ID)
		addIndex(s.freeproxiesByConnector, connectorID, row.ID)
		created = append(created, row)
	}
	s.mu.Unlock()

	s.emit([]domain.Event{{
		ID:    projectID,
		Scope: domain.ScopeFreeproxies,
		Event: domain.FreeproxiesCreatedEvent{
			ProjectID:   projectID,
			Freeproxies: created,
		},
	}})
	return nil
}

func (s *Store) SynchronizeFreeproxies(ctx context.Context, actions domain.FreeproxiesSynchronization) error {
	s.mu.Lock()

	type projectActions struct {
		updated []domain.Freeproxy
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

	for _, updated := range actions.Updated {
		freeproxy, ok := s.freeproxies[updated.ID]
		if !ok {
			continue
		}

		freeproxy.DisconnectedTs = updated.DisconnectedTs
		freeproxy.Fingerprint = updated.Fingerprint
		freeproxy.FingerprintError = updated.FingerprintError

		pa := touched(freeproxy.ProjectID)
		pa.updated = append(pa.updated, *freeproxy)
	}

	for _, removedID := range actions.Removed {
		freeproxy, ok := s.freeproxies[removedID]
		if !ok {
			continue
		}

		removeIndex(s.freeproxiesByProject, freeproxy.ProjectID, removedID)
		removeIndex(s.freeproxiesByConnector, freeproxy.ConnectorID, removedID)
		delete(s.freeproxies, removedID)

		pa := touched(freeproxy.ProjectID)
		pa.removed = append(pa.removed, removedID)
	}
	s.mu.Unlock()

	events := make([]domain.Event, 0, len(byProject))
	for projectID, pa := range byProject {
		events = append(events, domain.Event{
			ID:    projectID,
			Scope: domain.ScopeFreeproxies,
			Event: domain.FreeproxiesSynchronizedEvent{
				ProjectID: projectID,
				Updated:   pa.updated,
				Removed:   pa.removed,
			},
		})
	}
	s.emit(events)
	return nil
}

func (s *Store) GetNextFreeproxiesToRefresh(ctx context.Context, threshold int64, count int) ([]domain.FreeproxyToRefresh, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	due := []*domain.Freeproxy{}
	for _, freeproxy := range s.freeproxies {
		if freeproxy.NextRefreshTs < threshold {
			due = append(due, freeproxy)
		}
	}
	if len(due) == 0 {
		return nil, storage.ErrNoFreeproxyToRefresh
	}

	slices.SortFunc(due, func(a, b *domain.Freeproxy) int {
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

	freeproxies := make([]domain.FreeproxyToRefresh, 0, len(due))
	for _, freeproxy := range due {
		freeproxies = append(freeproxies, domain.ToFreeproxyToRefresh(freeproxy))
	}
	return freeproxies, nil
}

func (s *Store) UpdateFreeproxiesNextRefreshTs(ctx context.Context, freeproxyIDs []string, base int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	missing := []string{}
	for _, freeproxyID := range freeproxyIDs {
		freeproxy, ok := s.freeproxies[freeproxyID]
		if !ok {
			missing = append(missing, freeproxyID)
			continue
		}
		freeproxy.NextRefreshTs = base + freeproxy.TimeoutDisconnected
	}
	if len(missing) > 0 {
		return storage.NewNotFoundError(storage.KindFreeproxy, missing...)
	}
	return nil
}

func (s *Store) requireConnectorLocked(projectID, connectorID string) error {
	if _, ok := s.projects[projectID]; !ok {
		return storage.NewNotFoundError(storage.KindProject, projectID)
	}
	connector, ok := s.connectors[connectorID]
	if !ok || connector.ProjectID != projectID {
		return storage.NewNotFoundError(storage.KindConnector, connectorID)
	}
	return nil
}
