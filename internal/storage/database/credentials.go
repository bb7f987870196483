package database

import (
	"context"

	"gorm.io/gorm"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func (s *Store) GetAllProjectCredentials(ctx context.Context, projectID string, connectorType *string) ([]domain.CredentialView, error) {
	query := s.db.WithContext(ctx).Where("project_id = ?", projectID)
	if connectorType != nil {
		query = query.Where("type = ?", *connectorType)
	}

	var rows []credentialRow
	if err := query.Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	views := make([]domain.CredentialView, 0, len(rows))
	for i := range rows {
		credential := rows[i].toDomain()
		views = append(views, domain.ToCredentialView(&credential))
	}
	return views, nil
}

func (s *Store) GetCredentialByID(ctx context.Context, projectID, credentialID string) (domain.Credential, error) {
	var row credentialRow
	err := s.db.WithContext(ctx).First(&row, "id = ? AND project_id = ?", credentialID, projectID).Error
	if isNotFound(err) {
		return domain.Credential{}, storage.NewNotFoundError(storage.KindCredential, credentialID)
	}
	if err != nil {
		return domain.Credential{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) GetCredentialConnectorsCountByID(ctx context.Context, projectID, credentialID string, activeOnly bool) (int, error) {
	query := s.db.WithContext(ctx).Model(&connectorRow{}).
		Where("project_id = ? AND credential_id = ?", projectID, credentialID)
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var count int64
	err := query.Count(&count).Error
	return int(count), err
}

func (s *Store) CheckIfCredentialNameExists(ctx context.Context, projectID, name, excludeCredentialID string) error {
	return checkCredentialName(s.db.WithContext(ctx), projectID, name, excludeCredentialID)
}

func checkCredentialName(tx *gorm.DB, projectID, name, excludeCredentialID string) error {
	var count int64
	err := tx.Model(&credentialRow{}).
		Where("project_id = ? AND name = ? AND id <> ?", projectID, name, excludeCredentialID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return storage.NewAlreadyExistsError(storage.KindCredential, name)
	}
	return nil
}

func (s *Store) CreateCredential(ctx context.Context, credential domain.Credential) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&projectRow{}).Where("id = ?", credential.ProjectID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return storage.NewNotFoundError(storage.KindProject, credential.ProjectID)
		}
		if err := checkCredentialName(tx, credential.ProjectID, credential.Name, credential.ID); err != nil {
			return err
		}

		row := credentialRow{
			ID:        credential.ID,
			ProjectID: credential.ProjectID,
			Name:      credential.Name,
			Type:      credential.Type,
			Config:    []byte(credential.Config),
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return err
	}

	s.emit([]domain.Event{{
		ID:    credential.ProjectID,
		Scope: domain.ScopeProject,
		Event: domain.CredentialCreatedEvent{Credential: domain.ToCredentialView(&credential)},
	}})
	return nil
}

func (s *Store) UpdateCredential(ctx context.Context, credential domain.Credential) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row credentialRow
		err := tx.First(&row, "id = ? AND project_id = ?", credential.ID, credential.ProjectID).Error
		if isNotFound(err) {
			return storage.NewNotFoundError(storage.KindCredential, credential.ID)
		}
		if err != nil {
			return err
		}
		if err := checkCredentialName(tx, credential.ProjectID, credential.Name, credential.ID); err != nil {
			return err
		}

		if credential.Type != row.Type {
			var count int64
			if err := tx.Model(&connectorRow{}).
				Where("project_id = ? AND credential_id = ?", credential.ProjectID, credential.ID).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return storage.NewInUseError(storage.KindCredential, credential.ID,
					"cannot change type while connectors reference it")
			}
		}

		row.Name = credential.Name
		row.Type = credential.Type
		row.Config = []byte(credential.Config)
		return tx.Save(&row).Error
	})
	if err != nil {
		return err
	}

	s.emit([]domain.Event{{
		ID:    credential.ProjectID,
		Scope: domain.ScopeProject,
		Event: domain.CredentialUpdatedEvent{Credential: domain.ToCredentialView(&credential)},
	}})
	return nil
}

func (s *Store) RemoveCredential(ctx context.Context, projectID, credentialID string) error {
	var view domain.CredentialView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row credentialRow
		err := tx.First(&row, "id = ? AND project_id = ?", credentialID, projectID).Error
		if isNotFound(err) {
			return storage.NewNotFoundError(storage.KindCredential, credentialID)
		}
		if err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&connectorRow{}).
			Where("project_id = ? AND credential_id = ?", projectID, credentialID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return storage.NewInUseError(storage.KindCredential, credentialID, "connectors still reference it")
		}

		credential := row.toDomain()
		view = domain.ToCredentialView(&credential)
		return tx.Delete(&credentialRow{}, "id = ?", credentialID).Error
	})
	if err != nil {
		return err
	}

	s.emit([]domain.Event{{
		ID:    projectID,
		Scope: domain.ScopeProject,
		Event: domain.CredentialRemovedEvent{Credential: view},
	}})
	return nil
}
