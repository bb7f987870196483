package memory

import (
	"context"
	"fmt"
	"testing"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func TestParams(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	if _, err := s.GetParam(ctx, "certificate"); !storage.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	if err := s.SetParam(ctx, "certificate", "PEM"); err != nil {
		t.Fatalf("SetParam: %v", err)
	}
	value, err := s.GetParam(ctx, "certificate")
	if err != nil {
		t.Fatalf("GetParam: %v", err)
	}
	if value != "PEM" {
		t.Fatalf("expected PEM, got %q", value)
	}
}

func TestCertificateCacheFlushAtCapacity(t *testing.T) {
	bus := &captureEmitter{}
	s := New(bus, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		hostname := fmt.Sprintf("host%d.example.com", i)
		err := s.CreateCertificateForHostname(ctx, hostname, domain.Certificate{Cert: hostname})
		if err != nil {
			t.Fatalf("CreateCertificateForHostname: %v", err)
		}
	}

	// The cache is full; the next insert flushes everything first.
	err := s.CreateCertificateForHostname(ctx, "fresh.example.com", domain.Certificate{Cert: "fresh"})
	if err != nil {
		t.Fatalf("CreateCertificateForHostname: %v", err)
	}

	if _, err := s.GetCertificateForHostname(ctx, "host0.example.com"); !storage.IsNotFound(err) {
		t.Fatalf("flushed entry should be gone, got %v", err)
	}
	certificate, err := s.GetCertificateForHostname(ctx, "fresh.example.com")
	if err != nil {
		t.Fatalf("GetCertificateForHostname: %v", err)
	}
	if certificate.Cert != "fresh" {
		t.Fatalf("unexpected certificate: %+v", certificate)
	}
}
