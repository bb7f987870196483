package fingerprint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"flotilla/internal/domain"
)

const (
	DefaultEndpoint = "https://fingerprint.flotilla.dev/api/json"
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 1 << 20
)

// probeResponse is what the fingerprint endpoint reports about the requester.
type probeResponse struct {
	IP        string `json:"ip"`
	Useragent string `json:"useragent"`
}

// Prober runs the probe request through a proxy and returns the resulting
// fingerprint.
type Prober struct {
	endpoint string
	timeout  time.Duration
	enricher *Enricher
}

func NewProber(endpoint string, timeout time.Duration, enricher *Enricher) *Prober {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Prober{endpoint: endpoint, timeout: timeout, enricher: enricher}
}

// Probe sends the probe through proxyURL. A nil proxyURL probes directly,
// which is only useful in tests and for diagnosing the endpoint itself.
func (p *Prober) Probe(ctx context.Context, proxyURL *url.URL) (*domain.Fingerprint, error) {
	transport := &http.Transport{DisableKeepAlives: true}
	if proxyURL != nil {
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	client := &http.Client{Transport: transport, Timeout: p.timeout}
	defer transport.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create probe request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("probe: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("probe: read response: %w", err)
	}

	var report probeResponse
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("probe: decode response: %w", err)
	}
	if report.IP == "" {
		return nil, fmt.Errorf("probe: response has no ip")
	}

	fp := &domain.Fingerprint{IP: report.IP, Useragent: report.Useragent}
	if p.enricher != nil {
		p.enricher.Enrich(fp)
	}
	return fp, nil
}

// FreeproxyURL builds the proxy URL of a freeproxy entry, with credentials
// when the entry carries them.
func FreeproxyURL(freeproxy domain.FreeproxyToRefresh) *url.URL {
	u := &url.URL{Scheme: "http", Host: freeproxy.Address.String()}
	if freeproxy.Auth != nil {
		u.User = url.UserPassword(freeproxy.Auth.Username, freeproxy.Auth.Password)
	}
	return u
}
