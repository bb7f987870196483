package database

import (
	"context"

	"gorm.io/gorm"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func (s *Store) GetAllProjectConnectorsAndProxiesByID(ctx context.Context, projectID string) ([]domain.ConnectorProxiesView, error) {
	var rows []connectorRow
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("name ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	views := make([]domain.ConnectorProxiesView, 0, len(rows))
	for i := range rows {
		proxies, err := s.connectorProxyViews(ctx, rows[i].ID)
		if err != nil {
			return nil, err
		}
		connector := rows[i].toDomain()
		views = append(views, domain.ConnectorProxiesView{
			Connector: domain.ToConnectorView(&connector),
			Proxies:   proxies,
		})
	}
	return views, nil
}

func (s *Store) GetAllConnectorProxiesByID(ctx context.Context, projectID, connectorID string) (domain.ConnectorProxiesView, error) {
	var row connectorRow
	err := s.db.WithContext(ctx).First(&row, "id = ? AND project_id = ?", connectorID, projectID).Error
	if isNotFound(err) {
		return domain.ConnectorProxiesView{}, storage.NewNotFoundError(storage.KindConnector, connectorID)
	}
	if err != nil {
		return domain.ConnectorProxiesView{}, err
	}

	proxies, err := s.connectorProxyViews(ctx, connectorID)
	if err != nil {
		return domain.ConnectorProxiesView{}, err
	}
	connector := row.toDomain()
	return domain.ConnectorProxiesView{
		Connector: domain.ToConnectorView(&connector),
		Proxies:   proxies,
	}, nil
}

func (s *Store) GetAllConnectorProxiesSyncByID(ctx context.Context, projectID, connectorID string) (domain.ConnectorProxiesSync, error) {
	var row connectorRow
	err := s.db.WithContext(ctx).First(&row, "id = ? AND project_id = ?", connectorID, projectID).Error
	if isNotFound(err) {
		return domain.ConnectorProxiesSync{}, storage.NewNotFoundError(storage.KindConnector, connectorID)
	}
	if err != nil {
		return domain.ConnectorProxiesSync{}, err
	}

	var proxyRows []proxyRow
	err = s.db.WithContext(ctx).
		Where("connector_id = ?", connectorID).
		Order("id ASC").
		Find(&proxyRows).Error
	if err != nil {
		return domain.ConnectorProxiesSync{}, err
	}

	proxies := make([]domain.ProxySync, 0, len(proxyRows))
	for i := range proxyRows {
		proxy := proxyRows[i].toDomain()
		proxies = append(proxies, domain.ToProxySync(&proxy))
	}

	connector := row.toDomain()
	return domain.ConnectorProxiesSync{
		Connector: domain.ToConnectorSync(&connector),
		Proxies:   proxies,
	}, nil
}

func (s *Store) GetConnectorByID(ctx context.Context, projectID, connectorID string) (domain.ConnectorData, error) {
	var row connectorRow
	err := s.db.WithContext(ctx).First(&row, "id = ? AND project_id = ?", connectorID, projectID).Error
	if isNotFound(err) {
		return domain.ConnectorData{}, storage.NewNotFoundError(storage.KindConnector, connectorID)
	}
	if err != nil {
		return domain.ConnectorData{}, err
	}

	connector := row.toDomain()
	return domain.ToConnectorData(&connector), nil
}

func (s *Store) GetAnotherConnectorByID(ctx context.Context, projectID, excludeConnectorID string) (string, error) {
	var row connectorRow
	err := s.db.WithContext(ctx).Select("id").
		Where("project_id = ? AND id <> ?", projectID, excludeConnectorID).
		Order("id ASC").
		First(&row).Error
	if isNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.ID, nil
}

func (s *Store) GetConnectorCertificateByID(ctx context.Context, projectID, connectorID string) (*domain.Certificate, error) {
	var row connectorRow
	err := s.db.WithContext(ctx).First(&row, "id = ? AND project_id = ?", connectorID, projectID).Error
	if isNotFound(err) {
		return nil, storage.NewNotFoundError(storage.KindConnector, connectorID)
	}
	if err != nil {
		return nil, err
	}
	return row.Certificate, nil
}

func (s *Store) CheckIfConnectorNameExists(ctx context.Context, projectID, name, excludeConnectorID string) error {
	return checkConnectorName(s.db.WithContext(ctx), projectID, name, excludeConnectorID)
}

func checkConnectorName(tx *gorm.DB, projectID, name, excludeConnectorID string) error {
	var count int64
	err := tx.Model(&connectorRow{}).
		Where("project_id = ? AND name = ? AND id <> ?", projectID, name, excludeConnectorID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return storage.NewAlreadyExistsError(storage.KindConnector, name)
	}
	return nil
}

func (s *Store) CreateConnector(ctx context.Context, connector domain.Connector) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&projectRow{}).Where("id = ?", connector.ProjectID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return storage.NewNotFoundError(storage.KindProject, connector.ProjectID)
		}
		if err := tx.Model(&credentialRow{}).
			Where("id = ? AND project_id = ?", connector.CredentialID, connector.ProjectID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return storage.NewNotFoundError(storage.KindCredential, connector.CredentialID)
		}
		if err := checkConnectorName(tx, connector.ProjectID, connector.Name, connector.ID); err != nil {
			return err
		}

		row := connectorFromDomain(connector)
		return tx.Create(&row).Error
	})
	if err != nil {
		return err
	}

	s.emit([]domain.Event{{
		ID:    connector.ProjectID,
		Scope: domain.ScopeProject,
		Event: domain.ConnectorCreatedEvent{Connector: domain.ToConnectorView(&connector)},
	}})
	return nil
}

func (s *Store) UpdateConnector(ctx context.Context, connector domain.Connector) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing connectorRow
		err := tx.First(&existing, "id = ? AND project_id = ?", connector.ID, connector.ProjectID).Error
		if isNotFound(err) {
			return storage.NewNotFoundError(storage.KindConnector, connector.ID)
		}
		if err != nil {
			return err
		}
		if err := checkConnectorName(tx, connector.ProjectID, connector.Name, connector.ID); err != nil {
			return err
		}

		// Refresh scheduling and certificate material are owned by their
		// dedicated operations.
		row := connectorFromDomain(connector)
		row.NextRefreshTs = existing.NextRefreshTs
		row.Certificate = existing.Certificate
		row.CertificateEndAt = existing.CertificateEndAt
		return tx.Save(&row).Error
	})
	if err != nil {
		return err
	}

	s.emit([]domain.Event{{
		ID:    connector.ProjectID,
		Scope: domain.ScopeProject,
		Event: domain.ConnectorUpdatedEvent{Connector: domain.ToConnectorView(&connector)},
	}})
	return nil
}

func (s *Store) UpdateConnectorCertificate(ctx context.Context, projectID, connectorID string, info domain.CertificateInfo) error {
	var view domain.ConnectorView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row connectorRow
		err := tx.First(&row, "id = ? AND project_id = ?", connectorID, projectID).Error
		if isNotFound(err) {
			return storage.NewNotFoundError(storage.KindConnector, connectorID)
		}
		if err != nil {
			return err
		}

		certificate := info.Certificate
		endAt := info.EndAt
		row.Certificate = &certificate
		row.CertificateEndAt = &endAt

		connector := row.toDomain()
		view = domain.ToConnectorView(&connector)
		return tx.Save(&row).Error
	})
	if err != nil {
		return err
	}

	s.emit([]domain.Event{{
		ID:    projectID,
		Scope: domain.ScopeProject,
		Event: domain.ConnectorUpdatedEvent{Connector: view},
	}})
	return nil
}

func (s *Store) RemoveConnector(ctx context.Context, projectID, connectorID string) error {
	var view domain.ConnectorView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row connectorRow
		err := tx.First(&row, "id = ? AND project_id = ?", connectorID, projectID).Error
		if isNotFound(err) {
			return storage.NewNotFoundError(storage.KindConnector, connectorID)
		}
		if err != nil {
			return err
		}
		if row.Active {
			return storage.NewInUseError(storage.KindConnector, connectorID, "connector is active")
		}

		var count int64
		if err := tx.Model(&proxyRow{}).Where("connector_id = ?", connectorID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return storage.NewInUseError(storage.KindConnector, connectorID, "connector still owns proxies")
		}

		for _, model := range []any{&freeproxyRow{}, &sourceRow{}} {
			if err := tx.Where("connector_id = ?", connectorID).Delete(model).Error; err != nil {
				return err
			}
		}

		connector := row.toDomain()
		view = domain.ToConnectorView(&connector)
		return tx.Delete(&connectorRow{}, "id = ?", connectorID).Error
	})
	if err != nil {
		return err
	}

	s.emit([]domain.Event{{
		ID:    projectID,
		Scope: domain.ScopeProject,
		Event: domain.ConnectorRemovedEvent{Connector: view},
	}})
	return nil
}

func (s *Store) GetNextConnectorToRefresh(ctx context.Context, threshold int64) (domain.ConnectorToRefresh, error) {
	var row connectorRow
	err := s.db.WithContext(ctx).
		Where("next_refresh_ts < ?", threshold).
		Order("next_refresh_ts ASC, id ASC").
		First(&row).Error
	if isNotFound(err) {
		return domain.ConnectorToRefresh{}, storage.ErrNoConnectorToRefresh
	}
	if err != nil {
		return domain.ConnectorToRefresh{}, err
	}

	var credential credentialRow
	err = s.db.WithContext(ctx).First(&credential, "id = ?", row.CredentialID).Error
	if isNotFound(err) {
		return domain.ConnectorToRefresh{}, storage.NewInconsistencyDataError(
			"connector %s references missing credential %s", row.ID, row.CredentialID)
	}
	if err != nil {
		return domain.ConnectorToRefresh{}, err
	}

	var proxyKeys []string
	err = s.db.WithContext(ctx).Model(&proxyRow{}).
		Where("connector_id = ?", row.ID).
		Order("proxy_key ASC").
		Pluck("proxy_key", &proxyKeys).Error
	if err != nil {
		return domain.ConnectorToRefresh{}, err
	}
	if proxyKeys == nil {
		proxyKeys = []string{}
	}

	return domain.ConnectorToRefresh{
		ID:               row.ID,
		ProjectID:        row.ProjectID,
		Name:             row.Name,
		Type:             row.Type,
		Error:            row.Error,
		CredentialID:     credential.ID,
		CredentialConfig: credential.toDomain().Config,
		Config:           row.toDomain().Config,
		ProxyKeys:        proxyKeys,
	}, nil
}

func (s *Store) UpdateConnectorNextRefreshTs(ctx context.Context, projectID, connectorID string, nextRefreshTs int64) error {
	result := s.db.WithContext(ctx).Model(&connectorRow{}).
		Where("id = ? AND project_id = ?", connectorID, projectID).
		Update("next_refresh_ts", nextRefreshTs)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.NewNotFoundError(storage.KindConnector, connectorID)
	}
	return nil
}

func (s *Store) connectorProxyViews(ctx context.Context, connectorID string) ([]domain.ProxyView, error) {
	var rows []proxyRow
	err := s.db.WithContext(ctx).
		Where("connector_id = ?", connectorID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	proxies := make([]domain.ProxyView, 0, len(rows))
	for i := range rows {
		proxy := rows[i].toDomain()
		proxies = append(proxies, domain.ToProxyView(&proxy))
	}
	return proxies, nil
}
