package database

import (
	"context"

	"gorm.io/gorm"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func (s *Store) GetAllProjectsForUserID(ctx context.Context, userID string) ([]domain.ProjectView, error) {
	var rows []projectRow
	err := s.db.WithContext(ctx).
		Joins("JOIN project_users ON project_users.project_id = projects.id").
		Where("project_users.user_id = ?", userID).
		Order("projects.name ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	views := make([]domain.ProjectView, 0, len(rows))
	for i := range rows {
		project := rows[i].toDomain(nil)
		views = append(views, domain.ToProjectView(&project))
	}
	return views, nil
}

func (s *Store) GetProjectByID(ctx context.Context, projectID string) (domain.ProjectData, error) {
	var row projectRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", projectID).Error
	if isNotFound(err) {
		return domain.ProjectData{}, storage.NewNotFoundError(storage.KindProject, projectID)
	}
	if err != nil {
		return domain.ProjectData{}, err
	}

	project := row.toDomain(nil)
	return domain.ToProjectData(&project), nil
}

func (s *Store) GetProjectSyncByID(ctx context.Context, projectID string) (domain.ProjectSync, error) {
	var row projectRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", projectID).Error
	if isNotFound(err) {
		return domain.ProjectSync{}, storage.NewNotFoundError(storage.KindProject, projectID)
	}
	if err != nil {
		return domain.ProjectSync{}, err
	}

	project := row.toDomain(nil)
	return domain.ToProjectSync(&project), nil
}

func (s *Store) GetProjectByToken(ctx context.Context, token string) (domain.ProjectData, error) {
	var row projectRow
	err := s.db.WithContext(ctx).First(&row, "token = ?", token).Error
	if isNotFound(err) {
		return domain.ProjectData{}, storage.NewNotFoundError(storage.KindProject, token)
	}
	if err != nil {
		return domain.ProjectData{}, err
	}

	project := row.toDomain(nil)
	return domain.ToProjectData(&project), nil
}

func (s *Store) GetProjectTokenByID(ctx context.Context, projectID string) (string, error) {
	var row projectRow
	err := s.db.WithContext(ctx).Select("token").First(&row, "id = ?", projectID).Error
	if isNotFound(err) {
		return "", storage.NewNotFoundError(storage.KindProject, projectID)
	}
	if err != nil {
		return "", err
	}
	return row.Token, nil
}

func (s *Store) GetProjectIDByToken(ctx context.Context, token string) (string, error) {
	var row projectRow
	err := s.db.WithContext(ctx).Select("id").First(&row, "token = ?", token).Error
	if isNotFound(err) {
		return "", storage.NewNotFoundError(storage.KindProject, token)
	}
	if err != nil {
		return "", err
	}
	return row.ID, nil
}

func (s *Store) GetProjectConnectorsCountByID(ctx context.Context, projectID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&connectorRow{}).
		Where("project_id = ?", projectID).
		Count(&count).Error
	return int(count), err
}

func (s *Store) CheckIfProjectNameExists(ctx context.Context, name, excludeProjectID string) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&projectRow{}).
		Where("name = ? AND id <> ?", name, excludeProjectID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return storage.NewAlreadyExistsError(storage.KindProject, name)
	}
	return nil
}

func (s *Store) CreateProject(ctx context.Context, create domain.ProjectCreate) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&userRow{}).Where("id = ?", create.UserID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return storage.NewNotFoundError(storage.KindUser, create.UserID)
		}

		data := create.Project
		if err := tx.Model(&projectRow{}).
			Where("name = ? AND id <> ?", data.Name, data.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return storage.NewAlreadyExistsError(storage.KindProject, data.Name)
		}
		if err := tx.Model(&projectRow{}).Where("id = ?", data.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return storage.NewAlreadyExistsError(storage.KindProject, data.ID)
		}

		row := projectRow{
			ID:                 data.ID,
			Name:               data.Name,
			Status:             string(data.Status),
			ConnectorDefaultID: data.ConnectorDefaultID,
			Token:              create.Token,
			AutoRotate:         data.AutoRotate,
			AutoScaleUp:        data.AutoScaleUp,
			AutoScaleDown:      data.AutoScaleDown,
			CookieSession:      data.CookieSession,
			MITM:               data.MITM,
			ProxiesMin:         data.ProxiesMin,
			UseragentOverride:  data.UseragentOverride,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if err := tx.Create(&projectUserRow{ProjectID: data.ID, UserID: create.UserID}).Error; err != nil {
			return err
		}

		for _, window := range domain.NewWindowsForProject(data.ID) {
			wrow := windowRow{
				ID:        window.ID,
				ProjectID: window.ProjectID,
				Delay:     window.Delay,
				Size:      window.Size,
				Snapshots: []domain.Snapshot{},
			}
			if err := tx.Create(&wrow).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) UpdateProject(ctx context.Context, data domain.ProjectData) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row projectRow
		if err := tx.First(&row, "id = ?", data.ID).Error; err != nil {
			if isNotFound(err) {
				return storage.NewNotFoundError(storage.KindProject, data.ID)
			}
			return err
		}

		if data.Name != row.Name {
			var count int64
			if err := tx.Model(&projectRow{}).
				Where("name = ? AND id <> ?", data.Name, data.ID).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return storage.NewAlreadyExistsError(storage.KindProject, data.Name)
			}
		}

		row.Name = data.Name
		row.Status = string(data.Status)
		row.ConnectorDefaultID = data.ConnectorDefaultID
		row.AutoRotate = data.AutoRotate
		row.AutoScaleUp = data.AutoScaleUp
		row.AutoScaleDown = data.AutoScaleDown
		row.CookieSession = data.CookieSession
		row.MITM = data.MITM
		row.ProxiesMin = data.ProxiesMin
		row.UseragentOverride = data.UseragentOverride
		return tx.Save(&row).Error
	})
	if err != nil {
		return err
	}

	s.emit([]domain.Event{{
		ID:    data.ID,
		Scope: domain.ScopeProject,
		Event: domain.ProjectUpdatedEvent{Project: data},
	}})
	return nil
}

func (s *Store) UpdateProjectLastDataTs(ctx context.Context, projectID string, lastDataTs int64) error {
	result := s.db.WithContext(ctx).Model(&projectRow{}).
		Where("id = ?", projectID).
		Update("last_data_ts", lastDataTs)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.NewNotFoundError(storage.KindProject, projectID)
	}
	return nil
}

func (s *Store) RemoveProject(ctx context.Context, projectID string) error {
	var view domain.ProjectView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row projectRow
		if err := tx.First(&row, "id = ?", projectID).Error; err != nil {
			if isNotFound(err) {
				return storage.NewNotFoundError(storage.KindProject, projectID)
			}
			return err
		}

		var count int64
		if err := tx.Model(&connectorRow{}).Where("project_id = ?", projectID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return storage.NewInUseError(storage.KindProject, projectID, "project still has connectors")
		}

		project := row.toDomain(nil)
		view = domain.ToProjectView(&project)

		for _, model := range []any{
			&credentialRow{}, &taskRow{}, &windowRow{}, &projectUserRow{},
		} {
			if err := tx.Where("project_id = ?", projectID).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&projectRow{}, "id = ?", projectID).Error
	})
	if err != nil {
		return err
	}

	s.emit([]domain.Event{{
		ID:    projectID,
		Scope: domain.ScopeProject,
		Event: domain.ProjectRemovedEvent{Project: view},
	}})
	return nil
}

func (s *Store) GetAllProjectUsersByID(ctx context.Context, projectID string) ([]domain.UserProject, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&projectRow{}).Where("id = ?", projectID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, storage.NewNotFoundError(storage.KindProject, projectID)
	}

	var rows []userRow
	err := s.db.WithContext(ctx).
		Joins("JOIN project_users ON project_users.user_id = users.id").
		Where("project_users.project_id = ?", projectID).
		Order("users.id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	users := make([]domain.UserProject, 0, len(rows))
	for i := range rows {
		users = append(users, domain.ToUserProject(rows[i].toDomain()))
	}
	return users, nil
}

func (s *Store) CanUserAccessProject(ctx context.Context, projectID, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&projectUserRow{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) AddUserToProject(ctx context.Context, link domain.ProjectUserLink) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&projectRow{}).Where("id = ?", link.ProjectID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return storage.NewNotFoundError(storage.KindProject, link.ProjectID)
		}
		if err := tx.Model(&userRow{}).Where("id = ?", link.UserID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return storage.NewNotFoundError(storage.KindUser, link.UserID)
		}

		if err := tx.Model(&projectUserRow{}).
			Where("project_id = ? AND user_id = ?", link.ProjectID, link.UserID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return tx.Create(&projectUserRow{ProjectID: link.ProjectID, UserID: link.UserID}).Error
	})
	if err != nil {
		return err
	}

	s.emit([]domain.Event{{
		ID:    link.ProjectID,
		Scope: domain.ScopeProject,
		Event: domain.ProjectUserAddedEvent{Link: link},
	}})
	return nil
}

func (s *Store) RemoveUserFromProject(ctx context.Context, link domain.ProjectUserLink) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&projectRow{}).Where("id = ?", link.ProjectID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return storage.NewNotFoundError(storage.KindProject, link.ProjectID)
		}
		return tx.Where("project_id = ? AND user_id = ?", link.ProjectID, link.UserID).
			Delete(&projectUserRow{}).Error
	})
	if err != nil {
		return err
	}

	s.emit([]domain.Event{{
		ID:    link.ProjectID,
		Scope: domain.ScopeProject,
		Event: domain.ProjectUserRemovedEvent{Link: link},
	}})
	return nil
}

func (s *Store) UpdateProjectToken(ctx context.Context, projectID, token string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&projectRow{}).Where("id = ?", projectID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return storage.NewNotFoundError(storage.KindProject, projectID)
		}

		if err := tx.Model(&projectRow{}).
			Where("token = ? AND id <> ?", token, projectID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return storage.NewAlreadyExistsError(storage.KindProject, token)
		}

		return tx.Model(&projectRow{}).Where("id = ?", projectID).
			Update("token", token).Error
	})
}
