package domain

// Source is a URL periodically fetched to discover freeproxies. One row per
// distinct URL per connector; the id is derived from both.
type Source struct {
	ID               string  `json:"id"`
	ConnectorID      string  `json:"connectorId"`
	ProjectID        string  `json:"projectId"`
	URL              string  `json:"url"`
	Delay            int64   `json:"delay"`
	LastRefreshTs    *int64  `json:"lastRefreshTs"`
	LastRefreshError *string `json:"lastRefreshError"`
	NextRefreshTs    int64   `json:"nextRefreshTs"`
}
