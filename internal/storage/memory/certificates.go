package memory

import (
	"context"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func (s *Store) GetParam(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.params[key]
	if !ok {
		return "", storage.NewNotFoundError(storage.KindParam, key)
	}
	return value, nil
}

// SetParam seeds a parameter value. Params are written at bootstrap only.
func (s *Store) SetParam(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.params[key] = value
	return nil
}

func (s *Store) GetCertificateForHostname(ctx context.Context, hostname string) (domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	certificate, ok := s.certificates[hostname]
	if !ok {
		return domain.Certificate{}, storage.NewNotFoundError(storage.KindCertificate, hostname)
	}
	return certificate, nil
}

// CreateCertificateForHostname caches the certificate. When the cache reaches
// capacity it is flushed entirely; a crude but predictable bound, not an LRU.
func (s *Store) CreateCertificateForHostname(ctx context.Context, hostname string, certificate domain.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.certificates) >= s.certificatesMax {
		s.certificates = map[string]domain.Certificate{}
	}
	s.certificates[hostname] = certificate
	return nil
}
