package memory

import (
	"context"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func (s *Store) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, storage.NewNotFoundError(storage.KindUser, userID)
	}
	return *user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.userIDByEmail[email]
	if !ok {
		return domain.User{}, storage.NewNotFoundError(storage.KindUser, email)
	}
	return *s.users[userID], nil
}

func (s *Store) CheckIfUserEmailExists(ctx context.Context, email, excludeUserID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if userID, ok := s.userIDByEmail[email]; ok && userID != excludeUserID {
		return storage.NewAlreadyExistsError(storage.KindUser, email)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return storage.NewAlreadyExistsError(storage.KindUser, user.ID)
	}
	if user.Email != nil {
		if _, ok := s.userIDByEmail[*user.Email]; ok {
			return storage.NewAlreadyExistsError(storage.KindUser, *user.Email)
		}
	}

	s.users[user.ID] = &user
	if user.Email != nil {
		s.userIDByEmail[*user.Email] = user.ID
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, user domain.User) error {
	s.mu.Lock()

	existing, ok := s.users[user.ID]
	if !ok {
		s.mu.Unlock()
		return storage.NewNotFoundError(storage.KindUser, user.ID)
	}

	// Move the email index when the address changes.
	if existing.Email != nil {
		if user.Email == nil || *user.Email != *existing.Email {
			delete(s.userIDByEmail, *existing.Email)
		}
	}
	if user.Email != nil {
		s.userIDByEmail[*user.Email] = user.ID
	}

	s.users[user.ID] = &user
	s.mu.Unlock()

	s.emit([]domain.Event{{
		ID:    user.ID,
		Scope: domain.ScopeUser,
		Event: domain.UserUpdatedEvent{User: domain.ToUserView(user)},
	}})
	return nil
}
