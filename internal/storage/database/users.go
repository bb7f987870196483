package database

import (
	"context"

	"gorm.io/gorm"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func (s *Store) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", userID).Error
	if isNotFound(err) {
		return domain.User{}, storage.NewNotFoundError(storage.KindUser, userID)
	}
	if err != nil {
		return domain.User{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).First(&row, "email = ?", email).Error
	if isNotFound(err) {
		return domain.User{}, storage.NewNotFoundError(storage.KindUser, email)
	}
	if err != nil {
		return domain.User{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) CheckIfUserEmailExists(ctx context.Context, email, excludeUserID string) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&userRow{}).
		Where("email = ? AND id <> ?", email, excludeUserID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return storage.NewAlreadyExistsError(storage.KindUser, email)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&userRow{}).Where("id = ?", user.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return storage.NewAlreadyExistsError(storage.KindUser, user.ID)
		}

		if user.Email != nil {
			if err := tx.Model(&userRow{}).Where("email = ?", *user.Email).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return storage.NewAlreadyExistsError(storage.KindUser, *user.Email)
			}
		}

		row := userFromDomain(user)
		return tx.Create(&row).Error
	})
}

func (s *Store) UpdateUser(ctx context.Context, user domain.User) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&userRow{}).Where("id = ?", user.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return storage.NewNotFoundError(storage.KindUser, user.ID)
		}

		row := userFromDomain(user)
		return tx.Save(&row).Error
	})
	if err != nil {
		return err
	}

	s.emit([]domain.Event{{
		ID:    user.ID,
		Scope: domain.ScopeUser,
		Event: domain.UserUpdatedEvent{User: domain.ToUserView(user)},
	}})
	return nil
}
