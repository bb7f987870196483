package domain

// Certificate is PEM-encoded certificate and key material.
type Certificate struct {
	Cert string `json:"cert"`
	Key  string `json:"key"`
}

type CertificateInfo struct {
	Certificate Certificate `json:"certificate"`
	StartAt     int64       `json:"startAt"`
	EndAt       int64       `json:"endAt"`
}
