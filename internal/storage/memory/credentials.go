package memory

import (
	"context"
	"slices"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func (s *Store) GetAllProjectCredentials(ctx context.Context, projectID string, connectorType *string) ([]domain.CredentialView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := []domain.CredentialView{}
	for credentialID := range s.credentialsByProject[projectID] {
		credential := s.credentials[credentialID]
		if connectorType != nil && credential.Type != *connectorType {
			continue
		}
		views = append(views, domain.ToCredentialView(credential))
	}

	slices.SortFunc(views, func(a, b domain.CredentialView) int {
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

func (s *Store) GetCredentialByID(ctx context.Context, projectID, credentialID string) (domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credential, ok := s.credentials[credentialID]
	if !ok || credential.ProjectID != projectID {
		return domain.Credential{}, storage.NewNotFoundError(storage.KindCredential, credentialID)
	}
	return *credential, nil
}

func (s *Store) GetCredentialConnectorsCountByID(ctx context.Context, projectID, credentialID string, activeOnly bool) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for connectorID := range s.connectorsByProject[projectID] {
		connector := s.connectors[connectorID]
		if connector.CredentialID != credentialID {
			continue
		}
		if activeOnly && !connector.Active {
			continue
		}
		count++
	}
	return count, nil
}

func (s *Store) CheckIfCredentialNameExists(ctx context.Context, projectID, name, excludeCredentialID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.checkCredentialNameLocked(projectID, name, excludeCredentialID)
}

func (s *Store) checkCredentialNameLocked(projectID, name, excludeCredentialID string) error {
	for credentialID := range s.credentialsByProject[projectID] {
		if credentialID == excludeCredentialID {
			continue
		}
		if s.credentials[credentialID].Name == name {
			return storage.NewAlreadyExistsError(storage.KindCredential, name)
		}
	}
	return nil
}

func (s *Store) CreateCredential(ctx context.Context, credential domain.Credential) error {
	s.mu.Lock()

	if _, ok := s.projects[credential.ProjectID]; !ok {
		s.mu.Unlock()
		return storage.NewNotFoundError(storage.KindProject, credential.ProjectID)
	}
	if err := s.checkCredentialNameLocked(credential.ProjectID, credential.Name, credential.ID); err != nil {
		s.mu.Unlock()
		return err
	}

	s.credentials[credential.ID] = &credential
	addIndex(s.credentialsByProject, credential.ProjectID, credential.ID)
	s.mu.Unlock()

	s.emit([]domain.Event{{
		ID:    credential.ProjectID,
		Scope: domain.ScopeProject,
		Event: domain.CredentialCreatedEvent{Credential: domain.ToCredentialView(&credential)},
	}})
	return nil
}

func (s *Store) UpdateCredential(ctx context.Context, credential domain.Credential) error {
	s.mu.Lock()

	existing, ok := s.credentials[credential.ID]
	if !ok || existing.ProjectID != credential.ProjectID {
		s.mu.Unlock()
		return storage.NewNotFoundError(storage.KindCredential, credential.ID)
	}
	if err := s.checkCredentialNameLocked(credential.ProjectID, credential.Name, credential.ID); err != nil {
		s.mu.Unlock()
		return err
	}
	if credential.Type != existing.Type {
		if count := s.credentialConnectorsCountLocked(credential.ProjectID, credential.ID); count > 0 {
			s.mu.Unlock()
			return storage.NewInUseError(storage.KindCredential, credential.ID, "cannot change type while connectors reference it")
		}
	}

	s.credentials[credential.ID] = &credential
	s.mu.Unlock()

	s.emit([]domain.Event{{
		ID:    credential.ProjectID,
		Scope: domain.ScopeProject,
		Event: domain.CredentialUpdatedEvent{Credential: domain.ToCredentialView(&credential)},
	}})
	return nil
}

func (s *Store) RemoveCredential(ctx context.Context, projectID, credentialID string) error {
	s.mu.Lock()

	credential, ok := s.credentials[credentialID]
	if !ok || credential.ProjectID != projectID {
		s.mu.Unlock()
		return storage.NewNotFoundError(storage.KindCredential, credentialID)
	}
	if count := s.credentialConnectorsCountLocked(projectID, credentialID); count > 0 {
		s.mu.Unlock()
		return storage.NewInUseError(storage.KindCredential, credentialID, "connectors still reference it")
	}

	view := domain.ToCredentialView(credential)
	delete(s.credentials, credentialID)
	removeIndex(s.credentialsByProject, projectID, credentialID)
	s.mu.Unlock()

	s.emit([]domain.Event{{
		ID:    projectID,
		Scope: domain.ScopeProject,
		Event: domain.CredentialRemovedEvent{Credential: view},
	}})
	return nil
}

func (s *Store) credentialConnectorsCountLocked(projectID, credentialID string) int {
	count := 0
	for connectorID := range s.connectorsByProject[projectID] {
		if s.connectors[connectorID].CredentialID == credentialID {
			count++
		}
	}
	return count
}
