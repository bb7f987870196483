package memory

import (
	"context"
	"slices"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func (s *Store) GetAllProjectSourcesByID(ctx context.Context, projectID, connectorID string) ([]domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireConnectorLocked(projectID, connectorID); err != nil {
		return nil, err
	}

	sources := []domain.Source{}
	for sourceID := range s.sourcesByConnector[connectorID] {
		sources = append(sources, *s.sources[sourceID])
	}
	sortByID(sources, func(src domain.Source) string { return src.ID })
	return sources, nil
}

func (s *Store) GetSourceByID(ctx context.Context, projectID, connectorID, sourceID string) (domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireConnectorLocked(projectID, connectorID); err != nil {
		return domain.Source{}, err
	}

	source, ok := s.sources[sourceID]
	if !ok || source.ConnectorID != connectorID {
		return domain.Source{}, storage.NewNotFoundError(storage.KindSource, sourceID)
	}
	return *source, nil
}

func (s *Store) CreateSources(ctx context.Context, sources []domain.Source) error {
	s.mu.Lock()

	byProject := map[string][]domain.Source{}
	for _, source := range sources {
		if err := s.requireConnectorLocked(source.ProjectID, source.ConnectorID); err != nil {
			s.mu.Unlock()
			return err
		}

		source.NextRefreshTs = 0
		row := source
		s.sources[row.ID] = &row
		addIndex(s.sourcesByConnector, row.ConnectorID, row.ID)
		byProject[row.ProjectID] = append(byProject[row.ProjectID], row)
	}
	s.mu.Unlock()

	s.emitSourceEvents(byProject, func(projectID string, grouped []domain.Source) domain.EventPayload {
		return domain.SourcesCreatedEvent{ProjectID: projectID, Sources: grouped}
	})
	return nil
}

func (s *Store) UpdateSources(ctx context.Context, sources []domain.Source) error {
	s.mu.Lock()

	byProject := map[string][]domain.Source{}
	for _, source := range sources {
		existing, ok := s.sources[source.ID]
		if !ok {
			s.mu.Unlock()
			return storage.NewNotFoundError(storage.KindSource, source.ID)
		}

		existing.URL = source.URL
		existing.Delay = source.Delay
		existing.LastRefreshTs = source.LastRefreshTs
		existing.LastRefreshError = source.LastRefreshError

		byProject[existing.ProjectID] = append(byProject[existing.ProjectID], *existing)
	}
	s.mu.Unlock()

	s.emitSourceEvents(byProject, func(projectID string, grouped []domain.Source) domain.EventPayload {
		return domain.SourcesUpdatedEvent{ProjectID: projectID, Sources: grouped}
	})
	return nil
}

func (s *Store) RemoveSources(ctx context.Context, sources []domain.Source) error {
	s.mu.Lock()

	byProject := map[string][]string{}
	for _, source := range sources {
		if err := s.requireConnectorLocked(source.ProjectID, source.ConnectorID); err != nil {
			s.mu.Unlock()
			return err
		}

		removeIndex(s.sourcesByConnector, source.ConnectorID, source.ID)
		delete(s.sources, source.ID)
		byProject[source.ProjectID] = append(byProject[source.ProjectID], source.ID)
	}
	s.mu.Unlock()

	events := make([]domain.Event, 0, len(byProject))
	for projectID, sourceIDs := range byProject {
		events = append(events, domain.Event{
			ID:    projectID,
			Scope: domain.ScopeFreeproxies,
			Event: domain.SourcesRemovedEvent{ProjectID: projectID, SourceIDs: sourceIDs},
		})
	}
	s.emit(events)
	return nil
}

func (s *Store) GetNextSourceToRefresh(ctx context.Context, threshold int64) (domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next *domain.Source
	for _, source := range s.sources {
		if source.NextRefreshTs >= threshold {
			continue
		}
		if next == nil || source.NextRefreshTs < next.NextRefreshTs ||
			(source.NextRefreshTs == next.NextRefreshTs && source.ID < next.ID) {
			next = source
		}
	}
	if next == nil {
		return domain.Source{}, storage.ErrNoSourceToRefresh
	}
	return *next, nil
}

func (s *Store) UpdateSourceNextRefreshTs(ctx context.Context, projectID, connectorID, sourceID string, nextRefreshTs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConnectorLocked(projectID, connectorID); err != nil {
		return err
	}

	source, ok := s.sources[sourceID]
	if !ok || source.ConnectorID != connectorID {
		return storage.NewNotFoundError(storage.KindSource, sourceID)
	}
	source.NextRefreshTs = nextRefreshTs
	return nil
}

func (s *Store) emitSourceEvents(byProject map[string][]domain.Source, payload func(string, []domain.Source) domain.EventPayload) {
	events := make([]domain.Event, 0, len(byProject))
	for projectID, grouped := range byProject {
		slices.SortFunc(grouped, func(a, b domain.Source) int {
			switch {
			case a.ID < b.ID:
				return -1
			case a.ID > b.ID:
				return 1
			default:
				return 0
			}
		})
		events = append(events, domain.Event{
			ID:    projectID,
			Scope: domain.ScopeFreeproxies,
			Event: payload(projectID, grouped),
		})
	}
	s.emit(events)
}
