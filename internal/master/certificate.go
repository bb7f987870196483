package master

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"

	"flotilla/internal/domain"
)

// DefaultCertificateDuration bounds both the root and the per-hostname leaf
// certificates.
const DefaultCertificateDuration = 365 * 24 * time.Hour

// GenerateRootCertificate creates the self-signed authority used to sign
// per-hostname interception certificates.
func GenerateRootCertificate(commonName string, duration time.Duration) (domain.Certificate, error) {
	if duration <= 0 {
		duration = DefaultCertificateDuration
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return domain.Certificate{}, fmt.Errorf("generate root key: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return domain.Certificate{}, err
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(duration),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return domain.Certificate{}, fmt.Errorf("create root certificate: %w", err)
	}

	return encodeCertificate(der, key)
}

// SignHostnameCertificate issues a leaf for hostname, signed by the root.
func SignHostnameCertificate(root domain.Certificate, hostname string, duration time.Duration) (domain.Certificate, error) {
	if duration <= 0 {
		duration = DefaultCertificateDuration
	}

	rootCert, rootKey, err := decodeCertificate(root)
	if err != nil {
		return domain.Certificate{}, fmt.Errorf("decode root certificate: %w", err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return domain.Certificate{}, fmt.Errorf("generate leaf key: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return domain.Certificate{}, err
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: hostname},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(duration),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	if ip := net.ParseIP(hostname); ip != nil {
		template.IPAddresses = []net.IP{ip}
	} else {
		template.DNSNames = []string{hostname}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, rootCert, &key.PublicKey, rootKey)
	if err != nil {
		return domain.Certificate{}, fmt.Errorf("sign certificate for %q: %w", hostname, err)
	}

	return encodeCertificate(der, key)
}

func encodeCertificate(der []byte, key *ecdsa.PrivateKey) (domain.Certificate, error) {
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return domain.Certificate{}, fmt.Errorf("marshal private key: %w", err)
	}

	return domain.Certificate{
		Cert: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
		Key:  string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})),
	}, nil
}

func decodeCertificate(certificate domain.Certificate) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	certBlock, _ := pem.Decode([]byte(certificate.Cert))
	if certBlock == nil {
		return nil, nil, errors.New("no certificate pem block")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse certificate: %w", err)
	}

	keyBlock, _ := pem.Decode([]byte(certificate.Key))
	if keyBlock == nil {
		return nil, nil, errors.New("no private key pem block")
	}
	key, err := x509.ParseECPrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse private key: %w", err)
	}

	return cert, key, nil
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}
	return serial, nil
}
