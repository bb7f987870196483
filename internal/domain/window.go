package domain

import "time"

// Window is a bounded ring of metric snapshots for one (delay, size) bucket
// of a project. Snapshots are append-only with size-bounded eviction.
type Window struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"projectId"`
	Delay         int64      `json:"delay"`
	Size          int        `json:"size"`
	Count         int64      `json:"count"`
	Requests      int64      `json:"requests"`
	Stops         int64      `json:"stops"`
	BytesReceived int64      `json:"bytesReceived"`
	BytesSent     int64      `json:"bytesSent"`
	Snapshots     []Snapshot `json:"snapshots"`
}

type WindowConfig struct {
	Delay int64
	Size  int
}

// WindowsConfig defines the buckets created with every project.
var WindowsConfig = []WindowConfig{
	{Delay: time.Minute.Milliseconds(), Size: 60},
	{Delay: time.Hour.Milliseconds(), Size: 24},
	{Delay: 24 * time.Hour.Milliseconds(), Size: 30},
}

// NewWindowsForProject builds the fixed window set of a fresh project with
// zeroed counters.
func NewWindowsForProject(projectID string) []*Window {
	windows := make([]*Window, 0, len(WindowsConfig))
	for _, c := range WindowsConfig {
		windows = append(windows, &Window{
			ID:        NewID(),
			ProjectID: projectID,
			Delay:     c.Delay,
			Size:      c.Size,
			Snapshots: []Snapshot{},
		})
	}
	return windows
}
