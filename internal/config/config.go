// Package config gathers every tunable of the control plane from the
// environment. A .env file, when present, is loaded by the entrypoint before
// this runs.
package config

import (
	"time"

	"flotilla/internal/support"
)

const (
	StorageMemory      = "memory"
	StorageDistributed = "distributed"
)

type Config struct {
	// GatewayAddr is where the websocket event gateway listens.
	GatewayAddr string
	JWTSecret   string

	StorageType         string
	CertificatesMax     int
	CertificateDuration time.Duration

	CommandsStream string
	EventsChannel  string
	LeadershipKey  string
	LeadershipTTL  time.Duration

	FingerprintURL     string
	FingerprintTimeout time.Duration
	GeoLiteCityPath    string
	GeoLiteASNPath     string

	RefreshEmptyDelay     time.Duration
	RefreshConnectorDelay time.Duration
	TaskRetryDelay        time.Duration
	ProxyBatch            int
	FreeproxyBatch        int
}

func Load() Config {
	return Config{
		GatewayAddr: support.GetEnv("GATEWAY_ADDR", ":8890"),
		JWTSecret:   support.GetEnv("JWT_SECRET", ""),

		StorageType:         support.GetEnv("STORAGE_TYPE", StorageMemory),
		CertificatesMax:     support.GetEnvInt("CERTIFICATES_MAX", 1000),
		CertificateDuration: time.Duration(support.GetEnvInt("CERTIFICATE_DURATION_HOURS", 24*365)) * time.Hour,

		CommandsStream: support.GetEnv("BROKER_COMMANDS_STREAM", "flotilla:commands"),
		EventsChannel:  support.GetEnv("BROKER_EVENTS_CHANNEL", "flotilla:events"),
		LeadershipKey:  support.GetEnv("LEADERSHIP_KEY", "flotilla:writer:leader"),
		LeadershipTTL:  support.GetEnvDuration("LEADERSHIP_TTL", support.DefaultLeadershipTTL),

		FingerprintURL:     support.GetEnv("FINGERPRINT_URL", ""),
		FingerprintTimeout: support.GetEnvDuration("FINGERPRINT_TIMEOUT", 30*time.Second),
		GeoLiteCityPath:    support.GetEnv("GEOLITE_CITY_PATH", ""),
		GeoLiteASNPath:     support.GetEnv("GEOLITE_ASN_PATH", ""),

		RefreshEmptyDelay:     support.GetEnvDuration("REFRESH_EMPTY_DELAY", time.Second),
		RefreshConnectorDelay: support.GetEnvDuration("REFRESH_CONNECTOR_DELAY", 30*time.Second),
		TaskRetryDelay:        support.GetEnvDuration("TASK_RETRY_DELAY", 5*time.Second),
		ProxyBatch:            support.GetEnvInt("REFRESH_PROXY_BATCH", 100),
		FreeproxyBatch:        support.GetEnvInt("REFRESH_FREEPROXY_BATCH", 100),
	}
}
