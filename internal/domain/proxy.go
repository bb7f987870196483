package domain

import "encoding/json"

type ProxyStatus string

const (
	ProxyStatusStarting ProxyStatus = "STARTING"
	ProxyStatusStarted  ProxyStatus = "STARTED"
	ProxyStatusStopping ProxyStatus = "STOPPING"
	ProxyStatusStopped  ProxyStatus = "STOPPED"
	ProxyStatusError    ProxyStatus = "ERROR"
)

// Fingerprint is the reachability/identity probe result of a proxy. A nil
// fingerprint on a proxy means reachability has not been confirmed yet.
type Fingerprint struct {
	IP            string  `json:"ip"`
	Useragent     string  `json:"useragent"`
	ASNName       string  `json:"asnName"`
	ASNNetwork    string  `json:"asnNetwork"`
	ContinentCode string  `json:"continentCode"`
	ContinentName string  `json:"continentName"`
	CountryCode   string  `json:"countryCode"`
	CountryName   string  `json:"countryName"`
	CityName      string  `json:"cityName"`
	Timezone      string  `json:"timezone"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
}

// Proxy id is BuildProxyID(connectorID, key); provisioning creates and
// removes rows only through synchronize batches.
type Proxy struct {
	ID                    string          `json:"id"`
	ConnectorID           string          `json:"connectorId"`
	ProjectID             string          `json:"projectId"`
	Type                  string          `json:"type"`
	Key                   string          `json:"key"`
	Name                  string          `json:"name"`
	Status                ProxyStatus     `json:"status"`
	Removing              bool            `json:"removing"`
	RemovingForce         bool            `json:"removingForce"`
	Fingerprint           *Fingerprint    `json:"fingerprint"`
	FingerprintError      *string         `json:"fingerprintError"`
	Config                json.RawMessage `json:"config"`
	Useragent             string          `json:"useragent"`
	TimeoutDisconnected   int64           `json:"timeoutDisconnected"`
	TimeoutUnreachable    OptionalValue   `json:"timeoutUnreachable"`
	DisconnectedTs        *int64          `json:"disconnectedTs"`
	AutoRotateDelayFactor float64         `json:"autoRotateDelayFactor"`
	CreatedTs             int64           `json:"createdTs"`
	LastConnectionTs      int64           `json:"lastConnectionTs"`
	NextRefreshTs         int64           `json:"nextRefreshTs"`
	Requests              int64           `json:"requests"`
	BytesReceived         int64           `json:"bytesReceived"`
	BytesSent             int64           `json:"bytesSent"`
}

// Online reports whether the proxy can serve traffic: started, not flagged
// for removal and with a confirmed fingerprint.
func (p *Proxy) Online() bool {
	return p.Status == ProxyStatusStarted && !p.Removing && p.Fingerprint != nil
}

type ProxyView struct {
	ID               string       `json:"id"`
	ConnectorID      string       `json:"connectorId"`
	ProjectID        string       `json:"projectId"`
	Type             string       `json:"type"`
	Key              string       `json:"key"`
	Name             string       `json:"name"`
	Status           ProxyStatus  `json:"status"`
	Removing         bool         `json:"removing"`
	RemovingForce    bool         `json:"removingForce"`
	Fingerprint      *Fingerprint `json:"fingerprint"`
	FingerprintError *string      `json:"fingerprintError"`
	CreatedTs        int64        `json:"createdTs"`
	DisconnectedTs   *int64       `json:"disconnectedTs"`
}

type ProxySync struct {
	ID               string       `json:"id"`
	Status           ProxyStatus  `json:"status"`
	Removing         bool         `json:"removing"`
	RemovingForce    bool         `json:"removingForce"`
	Fingerprint      *Fingerprint `json:"fingerprint"`
	FingerprintError *string      `json:"fingerprintError"`
	CreatedTs        int64        `json:"createdTs"`
}

// ProxyToConnect is the projection handed to the routing layer; it carries
// only what the data plane needs to open a tunnel.
type ProxyToConnect struct {
	ID               string          `json:"id"`
	ConnectorID      string          `json:"connectorId"`
	ProjectID        string          `json:"projectId"`
	Type             string          `json:"type"`
	Name             string          `json:"name"`
	Config           json.RawMessage `json:"config"`
	Useragent        string          `json:"useragent"`
	LastConnectionTs int64           `json:"lastConnectionTs"`
}

type ProxyToRefresh struct {
	ID                  string          `json:"id"`
	ConnectorID         string          `json:"connectorId"`
	ProjectID           string          `json:"projectId"`
	Type                string          `json:"type"`
	Config              json.RawMessage `json:"config"`
	Useragent           string          `json:"useragent"`
	TimeoutDisconnected int64           `json:"timeoutDisconnected"`
	TimeoutUnreachable  OptionalValue   `json:"timeoutUnreachable"`
	Requests            int64           `json:"requests"`
	BytesReceived       int64           `json:"bytesReceived"`
	BytesSent           int64           `json:"bytesSent"`
}

// ProxyMetricsAdd is a pre-aggregated counter delta for one proxy.
type ProxyMetricsAdd struct {
	ID            string `json:"id"`
	ConnectorID   string `json:"connectorId"`
	ProjectID     string `json:"projectId"`
	Requests      int64  `json:"requests"`
	BytesReceived int64  `json:"bytesReceived"`
	BytesSent     int64  `json:"bytesSent"`
}

// ProxiesSynchronization is a provisioning batch. Unknown ids in Updated and
// Removed are skipped so replays stay idempotent.
type ProxiesSynchronization struct {
	Created []Proxy  `json:"created"`
	Updated []Proxy  `json:"updated"`
	Removed []string `json:"removed"`
}

func ToProxyView(p *Proxy) ProxyView {
	return ProxyView{
		ID:               p.ID,
		ConnectorID:      p.ConnectorID,
		ProjectID:        p.ProjectID,
		Type:             p.Type,
		Key:              p.Key,
		Name:             p.Name,
		Status:           p.Status,
		Removing:         p.Removing,
		RemovingForce:    p.RemovingForce,
		Fingerprint:      p.Fingerprint,
		FingerprintError: p.FingerprintError,
		CreatedTs:        p.CreatedTs,
		DisconnectedTs:   p.DisconnectedTs,
	}
}

func ToProxySync(p *Proxy) ProxySync {
	return ProxySync{
		ID:               p.ID,
		Status:           p.Status,
		Removing:         p.Removing,
		RemovingForce:    p.RemovingForce,
		Fingerprint:      p.Fingerprint,
		FingerprintError: p.FingerprintError,
		CreatedTs:        p.CreatedTs,
	}
}

func ToProxyToConnect(p *Proxy) ProxyToConnect {
	return ProxyToConnect{
		ID:               p.ID,
		ConnectorID:      p.ConnectorID,
		ProjectID:        p.ProjectID,
		Type:             p.Type,
		Name:             p.Name,
		Config:           p.Config,
		Useragent:        p.Useragent,
		LastConnectionTs: p.LastConnectionTs,
	}
}

func ToProxyToRefresh(p *Proxy) ProxyToRefresh {
	return ProxyToRefresh{
		ID:                  p.ID,
		ConnectorID:         p.ConnectorID,
		ProjectID:           p.ProjectID,
		Type:                p.Type,
		Config:              p.Config,
		Useragent:           p.Useragent,
		TimeoutDisconnected: p.TimeoutDisconnected,
		TimeoutUnreachable:  p.TimeoutUnreachable,
		Requests:            p.Requests,
		BytesReceived:       p.BytesReceived,
		BytesSent:           p.BytesSent,
	}
}
