package domain

import "encoding/json"

// Connector is a configured integration producing a pool of proxies from some
// backend. It cannot be updated or removed while active, and cannot be
// removed while it still owns proxies.
type Connector struct {
	ID                         string          `json:"id"`
	ProjectID                  string          `json:"projectId"`
	Name                       string          `json:"name"`
	Type                       string          `json:"type"`
	Active                     bool            `json:"active"`
	CredentialID               string          `json:"credentialId"`
	ProxiesMax                 int             `json:"proxiesMax"`
	ProxiesTimeoutDisconnected int64           `json:"proxiesTimeoutDisconnected"`
	ProxiesTimeoutUnreachable  OptionalValue   `json:"proxiesTimeoutUnreachable"`
	Error                      *string         `json:"error"`
	Certificate                *Certificate    `json:"certificate"`
	CertificateEndAt           *int64          `json:"certificateEndAt"`
	Config                     json.RawMessage `json:"config"`
	NextRefreshTs              int64           `json:"nextRefreshTs"`
}

type ConnectorView struct {
	ID               string  `json:"id"`
	ProjectID        string  `json:"projectId"`
	Name             string  `json:"name"`
	Type             string  `json:"type"`
	Active           bool    `json:"active"`
	CredentialID     string  `json:"credentialId"`
	ProxiesMax       int     `json:"proxiesMax"`
	Error            *string `json:"error"`
	CertificateEndAt *int64  `json:"certificateEndAt"`
}

// ConnectorData adds the config and proxy timeout policy to the view; the
// certificate key material is deliberately excluded.
type ConnectorData struct {
	ConnectorView
	ProxiesTimeoutDisconnected int64           `json:"proxiesTimeoutDisconnected"`
	ProxiesTimeoutUnreachable  OptionalValue   `json:"proxiesTimeoutUnreachable"`
	Config                     json.RawMessage `json:"config"`
}

type ConnectorSync struct {
	ID         string  `json:"id"`
	Active     bool    `json:"active"`
	ProxiesMax int     `json:"proxiesMax"`
	Error      *string `json:"error"`
}

// ConnectorToRefresh bundles a due connector with its credential config and
// the keys of the proxies it currently owns, everything a provisioning pass
// needs in one read.
type ConnectorToRefresh struct {
	ID               string          `json:"id"`
	ProjectID        string          `json:"projectId"`
	Name             string          `json:"name"`
	Type             string          `json:"type"`
	Error            *string         `json:"error"`
	CredentialID     string          `json:"credentialId"`
	CredentialConfig json.RawMessage `json:"credentialConfig"`
	Config           json.RawMessage `json:"config"`
	ProxyKeys        []string        `json:"proxyKeys"`
}

type ConnectorProxiesView struct {
	Connector ConnectorView `json:"connector"`
	Proxies   []ProxyView   `json:"proxies"`
}

type ConnectorProxiesSync struct {
	Connector ConnectorSync `json:"connector"`
	Proxies   []ProxySync   `json:"proxies"`
}

func ToConnectorView(c *Connector) ConnectorView {
	return ConnectorView{
		ID:               c.ID,
		ProjectID:        c.ProjectID,
		Name:             c.Name,
		Type:             c.Type,
		Active:           c.Active,
		CredentialID:     c.CredentialID,
		ProxiesMax:       c.ProxiesMax,
		Error:            c.Error,
		CertificateEndAt: c.CertificateEndAt,
	}
}

func ToConnectorData(c *Connector) ConnectorData {
	return ConnectorData{
		ConnectorView:              ToConnectorView(c),
		ProxiesTimeoutDisconnected: c.ProxiesTimeoutDisconnected,
		ProxiesTimeoutUnreachable:  c.ProxiesTimeoutUnreachable,
		Config:                     c.Config,
	}
}

func ToConnectorSync(c *Connector) ConnectorSync {
	return ConnectorSync{
		ID:         c.ID,
		Active:     c.Active,
		ProxiesMax: c.ProxiesMax,
		Error:      c.Error,
	}
}
