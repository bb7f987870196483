package database

import (
	"context"

	"gorm.io/gorm"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func (s *Store) GetFreeproxiesByIDs(ctx context.Context, freeproxyIDs []string) ([]domain.Freeproxy, error) {
	if len(freeproxyIDs) == 0 {
		return []domain.Freeproxy{}, nil
	}

	var rows []freeproxyRow
	err := s.db.WithContext(ctx).
		Where("id IN ?", freeproxyIDs).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return freeproxiesFromRows(rows), nil
}

func (s *Store) GetAllProjectFreeproxiesByID(ctx context.Context, projectID, connectorID string) ([]domain.Freeproxy, error) {
	if err := s.requireConnector(ctx, projectID, connectorID); err != nil {
		return nil, err
	}

	var rows []freeproxyRow
	err := s.db.WithContext(ctx).
		Where("connector_id = ?", connectorID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return freeproxiesFromRows(rows), nil
}

func (s *Store) GetSelectedProjectFreeproxies(ctx context.Context, projectID, connectorID string, keys []string) ([]domain.Freeproxy, error) {
	if err := s.requireConnector(ctx, projectID, connectorID); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []domain.Freeproxy{}, nil
	}

	var rows []freeproxyRow
	err := s.db.WithContext(ctx).
		Where("connector_id = ? AND proxy_key IN ?", connectorID, keys).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return freeproxiesFromRows(rows), nil
}

// GetNewProjectFreeproxies returns up to count fingerprinted freeproxies of
// the connector whose keys are not excluded.
func (s *Store) GetNewProjectFreeproxies(ctx context.Context, projectID, connectorID string, count int, excludeKeys []string) ([]domain.Freeproxy, error) {
	if err := s.requireConnector(ctx, projectID, connectorID); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Where("connector_id = ?", connectorID)
	if len(excludeKeys) > 0 {
		query = query.Where("proxy_key NOT IN ?", excludeKeys)
	}

	var rows []freeproxyRow
	if err := query.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	freeproxies := []domain.Freeproxy{}
	for i := range rows {
		if rows[i].Fingerprint == nil {
			continue
		}
		freeproxies = append(freeproxies, rows[i].toDomain())
		if len(freeproxies) == count {
			break
		}
	}
	return freeproxies, nil
}

func (s *Store) CreateFreeproxies(ctx context.Context, projectID, connectorID string, freeproxies []domain.Freeproxy) error {
	created := []domain.Freeproxy{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireConnectorTx(tx, projectID, connectorID); err != nil {
			return err
		}

		for _, freeproxy := range freeproxies {
			// Rows addressed to another connector are dropped, not errored, so a
			// caller can fan one discovery batch out over several connectors.
			if freeproxy.ProjectID != projectID || freeproxy.ConnectorID != connectorID {
				continue
			}

			freeproxy.NextRefreshTs = 0
			row := freeproxyFromDomain(freeproxy)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			created = append(created, freeproxy)
		}
		return nil
	})
	if err != nil {
		return err
	}

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

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, updated := range actions.Updated {
			var row freeproxyRow
			err := tx.First(&row, "id = ?", updated.ID).Error
			if isNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}

			row.DisconnectedTs = updated.DisconnectedTs
			row.Fingerprint = updated.Fingerprint
			row.FingerprintError = updated.FingerprintError
			if err := tx.Save(&row).Error; err != nil {
				return err
			}

			pa := touched(row.ProjectID)
			pa.updated = append(pa.updated, row.toDomain())
		}

		for _, removedID := range actions.Removed {
			var row freeproxyRow
			err := tx.First(&row, "id = ?", removedID).Error
			if isNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}

			pa := touched(row.ProjectID)
			pa.removed = append(pa.removed, removedID)
			if err := tx.Delete(&freeproxyRow{}, "id = ?", removedID).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

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
	var rows []freeproxyRow
	err := s.db.WithContext(ctx).
		Where("next_refresh_ts < ?", threshold).
		Order("next_refresh_ts ASC, id ASC").
		Limit(count).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, storage.ErrNoFreeproxyToRefresh
	}

	freeproxies := make([]domain.FreeproxyToRefresh, 0, len(rows))
	for i := range rows {
		freeproxy := rows[i].toDomain()
		freeproxies = append(freeproxies, domain.ToFreeproxyToRefresh(&freeproxy))
	}
	return freeproxies, nil
}

func (s *Store) UpdateFreeproxiesNextRefreshTs(ctx context.Context, freeproxyIDs []string, base int64) error {
	if len(freeproxyIDs) == 0 {
		return nil
	}

	var existing []string
	if err := s.db.WithContext(ctx).Model(&freeproxyRow{}).
		Where("id IN ?", freeproxyIDs).Pluck("id", &existing).Error; err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Model(&freeproxyRow{}).
		Where("id IN ?", freeproxyIDs).
		Update("next_refresh_ts", gorm.Expr("? + timeout_disconnected", base)).Error; err != nil {
		return err
	}

	if missing := missingIDs(freeproxyIDs, existing); len(missing) > 0 {
		return storage.NewNotFoundError(storage.KindFreeproxy, missing...)
	}
	return nil
}

func (s *Store) requireConnector(ctx context.Context, projectID, connectorID string) error {
	return requireConnectorTx(s.db.WithContext(ctx), projectID, connectorID)
}

func requireConnectorTx(tx *gorm.DB, projectID, connectorID string) error {
	var count int64
	if err := tx.Model(&projectRow{}).Where("id = ?", projectID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return storage.NewNotFoundError(storage.KindProject, projectID)
	}

	if err := tx.Model(&connectorRow{}).
		Where("id = ? AND project_id = ?", connectorID, projectID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return storage.NewNotFoundError(storage.KindConnector, connectorID)
	}
	return nil
}

func freeproxiesFromRows(rows []freeproxyRow) []domain.Freeproxy {
	freeproxies := make([]domain.Freeproxy, 0, len(rows))
	for i := range rows {
		freeproxies = append(freeproxies, rows[i].toDomain())
	}
	return freeproxies
}
