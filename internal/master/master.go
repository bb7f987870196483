// Package master backs the routing decisions of the data plane: which
// project a request belongs to, whether it must be intercepted, and which
// proxy carries it next.
package master

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

// CertificateParam is the params key holding the root interception
// certificate, as JSON-encoded PEM material.
const CertificateParam = "certificate"

type ConnectMode string

const (
	// ConnectModeAuto follows the project's MITM setting.
	ConnectModeAuto   ConnectMode = "auto"
	ConnectModeMITM   ConnectMode = "mitm"
	ConnectModeTunnel ConnectMode = "tunnel"
)

// ProjectToConnect is the routing decision for one inbound connection. The
// certificate is set only when the connection must be intercepted.
type ProjectToConnect struct {
	Project     domain.ProjectData  `json:"project"`
	Certificate *domain.Certificate `json:"certificate"`
}

// ParamWriter is the bootstrap-only write access to the params table.
type ParamWriter interface {
	SetParam(ctx context.Context, key, value string) error
}

type Master struct {
	store               storage.Store
	certificateDuration time.Duration
}

func New(store storage.Store, certificateDuration time.Duration) *Master {
	if certificateDuration <= 0 {
		certificateDuration = DefaultCertificateDuration
	}
	return &Master{store: store, certificateDuration: certificateDuration}
}

// EnsureRootCertificate generates and stores the root certificate if the
// params table does not hold one yet. It runs once at bootstrap, before any
// traffic is accepted.
func EnsureRootCertificate(ctx context.Context, store storage.Store, writer ParamWriter, duration time.Duration) error {
	_, err := store.GetParam(ctx, CertificateParam)
	if err == nil {
		return nil
	}
	if !storage.IsNotFound(err) {
		return fmt.Errorf("read root certificate: %w", err)
	}

	certificate, err := GenerateRootCertificate("flotilla", duration)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(certificate)
	if err != nil {
		return fmt.Errorf("encode root certificate: %w", err)
	}
	return writer.SetParam(ctx, CertificateParam, string(encoded))
}

// GetProjectToConnect authenticates an inbound connection by project token
// and resolves its interception policy. MITM connections get the cached
// certificate of the hostname, or a freshly signed one on a cache miss.
func (m *Master) GetProjectToConnect(ctx context.Context, token string, mode ConnectMode, hostname string) (ProjectToConnect, error) {
	project, err := m.store.GetProjectByToken(ctx, token)
	if err != nil {
		return ProjectToConnect{}, err
	}

	var mitm bool
	switch mode {
	case ConnectModeAuto, "":
		mitm = project.MITM
	case ConnectModeMITM:
		mitm = true
	case ConnectModeTunnel:
		mitm = false
	default:
		return ProjectToConnect{}, fmt.Errorf("unknown connect mode %q", mode)
	}

	result := ProjectToConnect{Project: project}
	if !mitm || hostname == "" {
		return result, nil
	}

	certificate, err := m.hostnameCertificate(ctx, hostname)
	if err != nil {
		return ProjectToConnect{}, err
	}
	result.Certificate = &certificate
	return result, nil
}

func (m *Master) hostnameCertificate(ctx context.Context, hostname string) (domain.Certificate, error) {
	certificate, err := m.store.GetCertificateForHostname(ctx, hostname)
	if err == nil {
		return certificate, nil
	}
	if !storage.IsNotFound(err) {
		return domain.Certificate{}, err
	}

	raw, err := m.store.GetParam(ctx, CertificateParam)
	if err != nil {
		return domain.Certificate{}, fmt.Errorf("root certificate missing: %w", err)
	}
	var root domain.Certificate
	if err := json.Unmarshal([]byte(raw), &root); err != nil {
		return domain.Certificate{}, fmt.Errorf("decode root certificate: %w", err)
	}

	certificate, err = SignHostnameCertificate(root, hostname, m.certificateDuration)
	if err != nil {
		return domain.Certificate{}, err
	}
	if err := m.store.CreateCertificateForHostname(ctx, hostname, certificate); err != nil {
		return domain.Certificate{}, fmt.Errorf("cache certificate: %w", err)
	}
	return certificate, nil
}

// GetNextProxyToConnect picks the proxy for the next request and stamps its
// connection time, so rotation keeps cycling through the pool.
func (m *Master) GetNextProxyToConnect(ctx context.Context, projectID string, proxyname *string) (domain.ProxyToConnect, error) {
	proxy, err := m.store.GetNextProxyToConnect(ctx, projectID, proxyname)
	if err != nil {
		return domain.ProxyToConnect{}, err
	}

	now := time.Now().UnixMilli()
	err = m.store.UpdateProxyLastConnectionTs(ctx, proxy.ProjectID, proxy.ConnectorID, proxy.ID, now)
	if err != nil && !storage.IsNotFound(err) {
		return domain.ProxyToConnect{}, err
	}
	proxy.LastConnectionTs = now
	return proxy, nil
}
