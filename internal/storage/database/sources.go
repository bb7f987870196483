package database

import (
	"context"

	"gorm.io/gorm"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func (s *Store) GetAllProjectSourcesByID(ctx context.Context, projectID, connectorID string) ([]domain.Source, error) {
	if err := s.requireConnector(ctx, projectID, connectorID); err != nil {
		return nil, err
	}

	var rows []sourceRow
	err := s.db.WithContext(ctx).
		Where("connector_id = ?", connectorID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	sources := make([]domain.Source, 0, len(rows))
	for i := range rows {
		sources = append(sources, rows[i].toDomain())
	}
	return sources, nil
}

func (s *Store) GetSourceByID(ctx context.Context, projectID, connectorID, sourceID string) (domain.Source, error) {
	if err := s.requireConnector(ctx, projectID, connectorID); err != nil {
		return domain.Source{}, err
	}

	var row sourceRow
	err := s.db.WithContext(ctx).First(&row, "id = ? AND connector_id = ?", sourceID, connectorID).Error
	if isNotFound(err) {
		return domain.Source{}, storage.NewNotFoundError(storage.KindSource, sourceID)
	}
	if err != nil {
		return domain.Source{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) CreateSources(ctx context.Context, sources []domain.Source) error {
	byProject := map[string][]domain.Source{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, source := range sources {
			if err := requireConnectorTx(tx, source.ProjectID, source.ConnectorID); err != nil {
				return err
			}

			source.NextRefreshTs = 0
			row := sourceFromDomain(source)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			byProject[source.ProjectID] = append(byProject[source.ProjectID], source)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.emitSourceEvents(byProject, func(projectID string, grouped []domain.Source) domain.EventPayload {
		return domain.SourcesCreatedEvent{ProjectID: projectID, Sources: grouped}
	})
	return nil
}

func (s *Store) UpdateSources(ctx context.Context, sources []domain.Source) error {
	byProject := map[string][]domain.Source{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, source := range sources {
			var row sourceRow
			err := tx.First(&row, "id = ?", source.ID).Error
			if isNotFound(err) {
				return storage.NewNotFoundError(storage.KindSource, source.ID)
			}
			if err != nil {
				return err
			}

			row.URL = source.URL
			row.Delay = source.Delay
			row.LastRefreshTs = source.LastRefreshTs
			row.LastRefreshError = source.LastRefreshError
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
			byProject[row.ProjectID] = append(byProject[row.ProjectID], row.toDomain())
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.emitSourceEvents(byProject, func(projectID string, grouped []domain.Source) domain.EventPayload {
		return domain.SourcesUpdatedEvent{ProjectID: projectID, Sources: grouped}
	})
	return nil
}

func (s *Store) RemoveSources(ctx context.Context, sources []domain.Source) error {
	byProject := map[string][]string{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, source := range sources {
			if err := requireConnectorTx(tx, source.ProjectID, source.ConnectorID); err != nil {
				return err
			}
			if err := tx.Delete(&sourceRow{}, "id = ?", source.ID).Error; err != nil {
				return err
			}
			byProject[source.ProjectID] = append(byProject[source.ProjectID], source.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}

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
	var row sourceRow
	err := s.db.WithContext(ctx).
		Where("next_refresh_ts < ?", threshold).
		Order("next_refresh_ts ASC, id ASC").
		First(&row).Error
	if isNotFound(err) {
		return domain.Source{}, storage.ErrNoSourceToRefresh
	}
	if err != nil {
		return domain.Source{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateSourceNextRefreshTs(ctx context.Context, projectID, connectorID, sourceID string, nextRefreshTs int64) error {
	if err := s.requireConnector(ctx, projectID, connectorID); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Model(&sourceRow{}).
		Where("id = ? AND connector_id = ?", sourceID, connectorID).
		Update("next_refresh_ts", nextRefreshTs)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.NewNotFoundError(storage.KindSource, sourceID)
	}
	return nil
}

func (s *Store) emitSourceEvents(byProject map[string][]domain.Source, payload func(string, []domain.Source) domain.EventPayload) {
	events := make([]domain.Event, 0, len(byProject))
	for projectID, grouped := range byProject {
		events = append(events, domain.Event{
			ID:    projectID,
			Scope: domain.ScopeFreeproxies,
			Event: payload(projectID, grouped),
		})
	}
	s.emit(events)
}
