package domain

import (
	"crypto/sha1"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// BuildProxyID derives the stable proxy id so re-provisioning the same key on
// the same connector always maps to the same row.
func BuildProxyID(connectorID, key string) string {
	return connectorID + ":" + key
}

func BuildFreeproxyID(connectorID, key string) string {
	return connectorID + ":" + key
}

// BuildSourceID hashes the URL so one row exists per distinct URL per
// connector.
func BuildSourceID(connectorID, url string) string {
	h := sha1.Sum([]byte(url))
	return connectorID + ":" + hex.EncodeToString(h[:8])
}
