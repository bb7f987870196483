package domain

import "encoding/json"

// Credential holds the opaque configuration a connector type needs to talk to
// its backend. The config blob is never interpreted by the store.
type Credential struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"projectId"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Config    json.RawMessage `json:"config"`
}

type CredentialView struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
	Type      string `json:"type"`
}

func ToCredentialView(c *Credential) CredentialView {
	return CredentialView{
		ID:        c.ID,
		ProjectID: c.ProjectID,
		Name:      c.Name,
		Type:      c.Type,
	}
}
