package memory

import (
	"context"
	"slices"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func (s *Store) GetAllProjectsForUserID(ctx context.Context, userID string) ([]domain.ProjectView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := []domain.ProjectView{}
	for _, project := range s.projects {
		if slices.Contains(project.UserIDs, userID) {
			views = append(views, domain.ToProjectView(project))
		}
	}

	slices.SortFunc(views, func(a, b domain.ProjectView) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		default:
			return 0
		}
	})
	return views, nil
}

func (s *Store) GetProjectByID(ctx context.Context, projectID string) (domain.ProjectData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project, ok := s.projects[projectID]
	if !ok {
		return domain.ProjectData{}, storage.NewNotFoundError(storage.KindProject, projectID)
	}
	return domain.ToProjectData(project), nil
}

func (s *Store) GetProjectSyncByID(ctx context.Context, projectID string) (domain.ProjectSync, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project, ok := s.projects[projectID]
	if !ok {
		return domain.ProjectSync{}, storage.NewNotFoundError(storage.KindProject, projectID)
	}
	return domain.ToProjectSync(project), nil
}

func (s *Store) GetProjectByToken(ctx context.Context, token string) (domain.ProjectData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projectID, ok := s.projectIDByToken[token]
	if !ok {
		return domain.ProjectData{}, storage.NewNotFoundError(storage.KindProject, token)
	}
	return domain.ToProjectData(s.projects[projectID]), nil
}

func (s *Store) GetProjectTokenByID(ctx context.Context, projectID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project, ok := s.projects[projectID]
	if !ok {
		return "", storage.NewNotFoundError(storage.KindProject, projectID)
	}
	return project.Token, nil
}

func (s *Store) GetProjectIDByToken(ctx context.Context, token string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projectID, ok := s.projectIDByToken[token]
	if !ok {
		return "", storage.NewNotFoundError(storage.KindProject, token)
	}
	return projectID, nil
}

func (s *Store) GetProjectConnectorsCountByID(ctx context.Context, projectID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.connectorsByProject[projectID]), nil
}

func (s *Store) CheckIfProjectNameExists(ctx context.Context, name, excludeProjectID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if projectID, ok := s.projectIDByName[name]; ok && projectID != excludeProjectID {
		return storage.NewAlreadyExistsError(storage.KindProject, name)
	}
	return nil
}

func (s *Store) CreateProject(ctx context.Context, create domain.ProjectCreate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[create.UserID]; !ok {
		return storage.NewNotFoundError(storage.KindUser, create.UserID)
	}
	if projectID, ok := s.projectIDByName[create.Project.Name]; ok && projectID != create.Project.ID {
		return storage.NewAlreadyExistsError(storage.KindProject, create.Project.Name)
	}
	if _, ok := s.projects[create.Project.ID]; ok {
		return storage.NewAlreadyExistsError(storage.KindProject, create.Project.ID)
	}

	data := create.Project
	project := &domain.Project{
		ID:                 data.ID,
		Name:               data.Name,
		Status:             data.Status,
		ConnectorDefaultID: data.ConnectorDefaultID,
		Token:              create.Token,
		AutoRotate:         data.AutoRotate,
		AutoScaleUp:        data.AutoScaleUp,
		AutoScaleDown:      data.AutoScaleDown,
		CookieSession:      data.CookieSession,
		MITM:               data.MITM,
		ProxiesMin:         data.ProxiesMin,
		UseragentOverride:  data.UseragentOverride,
		UserIDs:            []string{create.UserID},
	}

	windows := map[string]*domain.Window{}
	for _, window := range domain.NewWindowsForProject(project.ID) {
		windows[window.ID] = window
	}

	s.projects[project.ID] = project
	s.projectIDByName[project.Name] = project.ID
	s.projectIDByToken[project.Token] = project.ID
	s.windows[project.ID] = windows
	return nil
}

func (s *Store) UpdateProject(ctx context.Context, data domain.ProjectData) error {
	s.mu.Lock()

	project, ok := s.projects[data.ID]
	if !ok {
		s.mu.Unlock()
		return storage.NewNotFoundError(storage.KindProject, data.ID)
	}

	if data.Name != project.Name {
		if projectID, exists := s.projectIDByName[data.Name]; exists && projectID != data.ID {
			s.mu.Unlock()
			return storage.NewAlreadyExistsError(storage.KindProject, data.Name)
		}
		delete(s.projectIDByName, project.Name)
		s.projectIDByName[data.Name] = data.ID
	}

	project.Name = data.Name
	project.Status = data.Status
	project.ConnectorDefaultID = data.ConnectorDefaultID
	project.AutoRotate = data.AutoRotate
	project.AutoScaleUp = data.AutoScaleUp
	project.AutoScaleDown = data.AutoScaleDown
	project.CookieSession = data.CookieSession
	project.MITM = data.MITM
	project.ProxiesMin = data.ProxiesMin
	project.UseragentOverride = data.UseragentOverride
	s.mu.Unlock()

	s.emit([]domain.Event{{
		ID:    data.ID,
		Scope: domain.ScopeProject,
		Event: domain.ProjectUpdatedEvent{Project: data},
	}})
	return nil
}

func (s *Store) UpdateProjectLastDataTs(ctx context.Context, projectID string, lastDataTs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.projects[projectID]
	if !ok {
		return storage.NewNotFoundError(storage.KindProject, projectID)
	}
	project.LastDataTs = lastDataTs
	return nil
}

func (s *Store) RemoveProject(ctx context.Context, projectID string) error {
	s.mu.Lock()

	project, ok := s.projects[projectID]
	if !ok {
		s.mu.Unlock()
		return storage.NewNotFoundError(storage.KindProject, projectID)
	}
	if len(s.connectorsByProject[projectID]) > 0 {
		s.mu.Unlock()
		return storage.NewInUseError(storage.KindProject, projectID, "project still has connectors")
	}

	view := domain.ToProjectView(project)

	for credentialID := range s.credentialsByProject[projectID] {
		delete(s.credentials, credentialID)
	}
	delete(s.credentialsByProject, projectID)

	for taskID := range s.tasksByProject[projectID] {
		delete(s.tasks, taskID)
	}
	delete(s.tasksByProject, projectID)

	delete(s.windows, projectID)
	delete(s.projectIDByName, project.Name)
	delete(s.projectIDByToken, project.Token)
	delete(s.projects, projectID)
	s.mu.Unlock()

	s.emit([]domain.Event{{
		ID:    projectID,
		Scope: domain.ScopeProject,
		Event: domain.ProjectRemovedEvent{Project: view},
	}})
	return nil
}

func (s *Store) GetAllProjectUsersByID(ctx context.Context, projectID string) ([]domain.UserProject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project, ok := s.projects[projectID]
	if !ok {
		return nil, storage.NewNotFoundError(storage.KindProject, projectID)
	}

	users := []domain.UserProject{}
	for _, userID := range project.UserIDs {
		if user, exists := s.users[userID]; exists {
			users = append(users, domain.ToUserProject(*user))
		}
	}
	return users, nil
}

func (s *Store) CanUserAccessProject(ctx context.Context, projectID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project, ok := s.projects[projectID]
	if !ok {
		return false, nil
	}
	return slices.Contains(project.UserIDs, userID), nil
}

func (s *Store) AddUserToProject(ctx context.Context, link domain.ProjectUserLink) error {
	s.mu.Lock()

	project, ok := s.projects[link.ProjectID]
	if !ok {
		s.mu.Unlock()
		return storage.NewNotFoundError(storage.KindProject, link.ProjectID)
	}
	if _, exists := s.users[link.UserID]; !exists {
		s.mu.Unlock()
		return storage.NewNotFoundError(storage.KindUser, link.UserID)
	}

	if !slices.Contains(project.UserIDs, link.UserID) {
		project.UserIDs = append(project.UserIDs, link.UserID)
	}
	s.mu.Unlock()

	s.emit([]domain.Event{{
		ID:    link.ProjectID,
		Scope: domain.ScopeProject,
		Event: domain.ProjectUserAddedEvent{Link: link},
	}})
	return nil
}

func (s *Store) RemoveUserFromProject(ctx context.Context, link domain.ProjectUserLink) error {
	s.mu.Lock()

	project, ok := s.projects[link.ProjectID]
	if !ok {
		s.mu.Unlock()
		return storage.NewNotFoundError(storage.KindProject, link.ProjectID)
	}

	project.UserIDs = slices.DeleteFunc(project.UserIDs, func(id string) bool {
		return id == link.UserID
	})
	s.mu.Unlock()

	s.emit([]domain.Event{{
		ID:    link.ProjectID,
		Scope: domain.ScopeProject,
		Event: domain.ProjectUserRemovedEvent{Link: link},
	}})
	return nil
}

func (s *Store) UpdateProjectToken(ctx context.Context, projectID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.projects[projectID]
	if !ok {
		return storage.NewNotFoundError(storage.KindProject, projectID)
	}
	if existingID, exists := s.projectIDByToken[token]; exists && existingID != projectID {
		return storage.NewAlreadyExistsError(storage.KindProject, token)
	}

	delete(s.projectIDByToken, project.Token)
	project.Token = token
	s.projectIDByToken[token] = projectID
	return nil
}
