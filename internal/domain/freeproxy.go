package domain

import "fmt"

type Address struct {
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
}

func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.Hostname, a.Port)
}

type Auth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Freeproxy is an externally supplied proxy entry tracked for reachability.
// Its id is BuildFreeproxyID(connectorID, key) where key is the address.
type Freeproxy struct {
	ID                  string        `json:"id"`
	ConnectorID         string        `json:"connectorId"`
	ProjectID           string        `json:"projectId"`
	Key                 string        `json:"key"`
	Type                string        `json:"type"`
	Address             Address       `json:"address"`
	Auth                *Auth         `json:"auth"`
	Fingerprint         *Fingerprint  `json:"fingerprint"`
	FingerprintError    *string       `json:"fingerprintError"`
	TimeoutDisconnected int64         `json:"timeoutDisconnected"`
	TimeoutUnreachable  OptionalValue `json:"timeoutUnreachable"`
	DisconnectedTs      *int64        `json:"disconnectedTs"`
	NextRefreshTs       int64         `json:"nextRefreshTs"`
}

type FreeproxyToRefresh struct {
	ID                  string        `json:"id"`
	ConnectorID         string        `json:"connectorId"`
	ProjectID           string        `json:"projectId"`
	Key                 string        `json:"key"`
	Type                string        `json:"type"`
	Address             Address       `json:"address"`
	Auth                *Auth         `json:"auth"`
	TimeoutDisconnected int64         `json:"timeoutDisconnected"`
	TimeoutUnreachable  OptionalValue `json:"timeoutUnreachable"`
}

// FreeproxiesSynchronization updates fingerprints and prunes dead entries.
// Unknown ids are skipped so replays stay idempotent.
type FreeproxiesSynchronization struct {
	Updated []Freeproxy `json:"updated"`
	Removed []string    `json:"removed"`
}

func ToFreeproxyToRefresh(f *Freeproxy) FreeproxyToRefresh {
	return FreeproxyToRefresh{
		ID:                  f.ID,
		ConnectorID:         f.ConnectorID,
		ProjectID:           f.ProjectID,
		Key:                 f.Key,
		Type:                f.Type,
		Address:             f.Address,
		Auth:                f.Auth,
		TimeoutDisconnected: f.TimeoutDisconnected,
		TimeoutUnreachable:  f.TimeoutUnreachable,
	}
}
