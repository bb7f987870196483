package database

import (
	"context"

	"gorm.io/gorm"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func (s *Store) GetParam(ctx context.Context, key string) (string, error) {
	var row paramRow
	err := s.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if isNotFound(err) {
		return "", storage.NewNotFoundError(storage.KindParam, key)
	}
	if err != nil {
		return "", err
	}
	return row.Value, nil
}

// SetParam seeds a parameter value. Params are written at bootstrap only.
func (s *Store) SetParam(ctx context.Context, key, value string) error {
	return s.db.WithContext(ctx).Save(&paramRow{Key: key, Value: value}).Error
}

func (s *Store) GetCertificateForHostname(ctx context.Context, hostname string) (domain.Certificate, error) {
	var row certificateRow
	err := s.db.WithContext(ctx).First(&row, "hostname = ?", hostname).Error
	if isNotFound(err) {
		return domain.Certificate{}, storage.NewNotFoundError(storage.KindCertificate, hostname)
	}
	if err != nil {
		return domain.Certificate{}, err
	}
	return domain.Certificate{Cert: row.Cert, Key: row.Key}, nil
}

// CreateCertificateForHostname caches the certificate. When the cache reaches
// capacity it is flushed entirely; a crude but predictable bound, not an LRU.
func (s *Store) CreateCertificateForHostname(ctx context.Context, hostname string, certificate domain.Certificate) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&certificateRow{}).Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(s.certificatesMax) {
			if err := tx.Where("1 = 1").Delete(&certificateRow{}).Error; err != nil {
				return err
			}
		}

		row := certificateRow{
			Hostname: hostname,
			Cert:     certificate.Cert,
			Key:      certificate.Key,
		}
		return tx.Save(&row).Error
	})
}
