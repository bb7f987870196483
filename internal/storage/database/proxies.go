package database

import (
	"context"

	"gorm.io/gorm"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func (s *Store) GetProxiesByIDs(ctx context.Context, proxyIDs []string) ([]domain.ProxyView, error) {
	if len(proxyIDs) == 0 {
		return []domain.ProxyView{}, nil
	}

	var rows []proxyRow
	err := s.db.WithContext(ctx).
		Where("id IN ?", proxyIDs).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	views := make([]domain.ProxyView, 0, len(rows))
	for i := range rows {
		proxy := rows[i].toDomain()
		views = append(views, domain.ToProxyView(&proxy))
	}
	return views, nil
}

func (s *Store) GetProjectProxiesByIDs(ctx context.Context, projectID string, proxyIDs []string, removing *bool) ([]domain.ProxyView, error) {
	if len(proxyIDs) == 0 {
		return []domain.ProxyView{}, nil
	}

	query := s.db.WithContext(ctx).
		Where("project_id = ? AND id IN ?", projectID, proxyIDs)
	if removing != nil {
		query = query.Where("removing = ?", *removing)
	}

	var rows []proxyRow
	if err := query.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	views := make([]domain.ProxyView, 0, len(rows))
	for i := range rows {
		proxy := rows[i].toDomain()
		views = append(views, domain.ToProxyView(&proxy))
	}
	return views, nil
}

func (s *Store) GetConnectorProxiesCountByID(ctx context.Context, projectID, connectorID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&connectorRow{}).
		Where("id = ? AND project_id = ?", connectorID, projectID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, storage.NewNotFoundError(storage.KindConnector, connectorID)
	}

	err = s.db.WithContext(ctx).Model(&proxyRow{}).
		Where("connector_id = ?", connectorID).
		Count(&count).Error
	return int(count), err
}

func (s *Store) GetProxiesCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&proxyRow{}).Count(&count).Error
	return count, err
}

// SynchronizeProxies applies a provisioning batch in one transaction. Created
// rows whose project or connector vanished are dropped, unknown ids in updated
// and removed are skipped, and one event per touched project is emitted.
func (s *Store) SynchronizeProxies(ctx context.Context, actions domain.ProxiesSynchronization) error {
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

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, created := range actions.Created {
			// The event reports the whole requested batch, dropped orphans
			// included, so subscribers see what the caller asked for.
			pa := touched(created.ProjectID)
			pa.created = append(pa.created, domain.ToProxyView(&created))

			var count int64
			if err := tx.Model(&connectorRow{}).
				Where("id = ? AND project_id = ?", created.ConnectorID, created.ProjectID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				continue
			}

			proxy := created
			proxy.Requests = 0
			proxy.BytesReceived = 0
			proxy.BytesSent = 0
			proxy.NextRefreshTs = 0
			proxy.LastConnectionTs = 0

			row := proxyFromDomain(proxy)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		for _, updated := range actions.Updated {
			var row proxyRow
			err := tx.First(&row, "id = ?", updated.ID).Error
			if isNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}

			row.Status = string(updated.Status)
			row.Config = []byte(updated.Config)
			row.Removing = updated.Removing
			row.RemovingForce = updated.RemovingForce
			row.Fingerprint = updated.Fingerprint
			row.FingerprintError = updated.FingerprintError
			row.DisconnectedTs = updated.DisconnectedTs
			if err := tx.Save(&row).Error; err != nil {
				return err
			}

			proxy := row.toDomain()
			pa := touched(proxy.ProjectID)
			pa.updated = append(pa.updated, domain.ToProxyView(&proxy))
		}

		for _, removedID := range actions.Removed {
			var row proxyRow
			err := tx.First(&row, "id = ?", removedID).Error
			if isNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}

			pa := touched(row.ProjectID)
			pa.removed = append(pa.removed, removedID)
			if err := tx.Delete(&proxyRow{}, "id = ?", removedID).Error; err != nil {
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
	byProject := map[string][]domain.ProxyMetricsAdd{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := nowMs()
		for _, add := range adds {
			byProject[add.ProjectID] = append(byProject[add.ProjectID], add)

			var project projectRow
			err := tx.First(&project, "id = ?", add.ProjectID).Error
			if err == nil {
				project.Snapshot.Requests += add.Requests
				project.Snapshot.BytesReceived += add.BytesReceived
				project.Snapshot.BytesSent += add.BytesSent
				project.LastDataTs = now
				if err := tx.Save(&project).Error; err != nil {
					return err
				}
			} else if !isNotFound(err) {
				return err
			}

			result := tx.Model(&proxyRow{}).Where("id = ?", add.ID).Updates(map[string]any{
				"requests":       gorm.Expr("requests + ?", add.Requests),
				"bytes_received": gorm.Expr("bytes_received + ?", add.BytesReceived),
				"bytes_sent":     gorm.Expr("bytes_sent + ?", add.BytesSent),
			})
			if result.Error != nil {
				return result.Error
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

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
	var count int64
	if err := s.db.WithContext(ctx).Model(&projectRow{}).Where("id = ?", projectID).Count(&count).Error; err != nil {
		return domain.ProxyToConnect{}, err
	}
	if count == 0 {
		return domain.ProxyToConnect{}, storage.NewNotFoundError(storage.KindProject, projectID)
	}

	if proxyname != nil && *proxyname != "" {
		var row proxyRow
		err := s.db.WithContext(ctx).First(&row, "id = ? AND project_id = ?", *proxyname, projectID).Error
		if isNotFound(err) {
			return domain.ProxyToConnect{}, storage.ErrNoProjectProxy
		}
		if err != nil {
			return domain.ProxyToConnect{}, err
		}
		proxy := row.toDomain()
		return domain.ToProxyToConnect(&proxy), nil
	}

	// Fingerprint presence cannot be filtered in SQL because the column holds
	// serialized JSON, so candidates are narrowed by status and filtered here.
	var rows []proxyRow
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND status = ? AND removing = ?", projectID, string(domain.ProxyStatusStarted), false).
		Order("last_connection_ts ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return domain.ProxyToConnect{}, err
	}

	for i := range rows {
		if rows[i].Fingerprint == nil {
			continue
		}
		proxy := rows[i].toDomain()
		return domain.ToProxyToConnect(&proxy), nil
	}
	return domain.ProxyToConnect{}, storage.ErrNoProjectProxy
}

func (s *Store) UpdateProxyLastConnectionTs(ctx context.Context, projectID, connectorID, proxyID string, lastConnectionTs int64) error {
	result := s.db.WithContext(ctx).Model(&proxyRow{}).
		Where("id = ?", proxyID).
		Update("last_connection_ts", lastConnectionTs)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.NewNotFoundError(storage.KindProxy, proxyID)
	}
	return nil
}

func (s *Store) GetNextProxiesToRefresh(ctx context.Context, threshold int64, count int) ([]domain.ProxyToRefresh, error) {
	var rows []proxyRow
	err := s.db.WithContext(ctx).
		Where("status = ? AND next_refresh_ts < ?", string(domain.ProxyStatusStarted), threshold).
		Order("next_refresh_ts ASC, id ASC").
		Limit(count).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, storage.ErrNoProxyToRefresh
	}

	proxies := make([]domain.ProxyToRefresh, 0, len(rows))
	for i := range rows {
		proxy := rows[i].toDomain()
		proxies = append(proxies, domain.ToProxyToRefresh(&proxy))
	}
	return proxies, nil
}

// UpdateProxiesNextRefreshTs pushes each proxy's next eligible time to
// base + its own disconnect timeout, the self-pacing backoff.
func (s *Store) UpdateProxiesNextRefreshTs(ctx context.Context, proxyIDs []string, base int64) error {
	if len(proxyIDs) == 0 {
		return nil
	}

	// The rows that do exist are rescheduled even when some ids are missing,
	// matching the memory backend.
	var existing []string
	if err := s.db.WithContext(ctx).Model(&proxyRow{}).
		Where("id IN ?", proxyIDs).Pluck("id", &existing).Error; err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Model(&proxyRow{}).
		Where("id IN ?", proxyIDs).
		Update("next_refresh_ts", gorm.Expr("? + timeout_disconnected", base)).Error; err != nil {
		return err
	}

	if missing := missingIDs(proxyIDs, existing); len(missing) > 0 {
		return storage.NewNotFoundError(storage.KindProxy, missing...)
	}
	return nil
}

func missingIDs(wanted, existing []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}

	missing := []string{}
	for _, id := range wanted {
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
