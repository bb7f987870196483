package domain

type ProjectStatus string

const (
	ProjectStatusHot  ProjectStatus = "HOT"
	ProjectStatusCold ProjectStatus = "COLD"
)

// Rotation is a bounded delay policy in milliseconds.
type Rotation struct {
	Enabled bool  `json:"enabled"`
	Min     int64 `json:"min"`
	Max     int64 `json:"max"`
}

// OptionalValue is an on/off switch carrying a millisecond value.
type OptionalValue struct {
	Enabled bool  `json:"enabled"`
	Value   int64 `json:"value"`
}

// RangeMetrics accumulates sum/count with min/max clamping. Min and Max stay
// nil until the first sample arrives.
type RangeMetrics struct {
	Sum   int64  `json:"sum"`
	Count int64  `json:"count"`
	Min   *int64 `json:"min"`
	Max   *int64 `json:"max"`
}

// Add merges another accumulator into r.
func (r *RangeMetrics) Add(o RangeMetrics) {
	r.Sum += o.Sum
	r.Count += o.Count

	if o.Min != nil && (r.Min == nil || *o.Min < *r.Min) {
		v := *o.Min
		r.Min = &v
	}
	if o.Max != nil && (r.Max == nil || *o.Max > *r.Max) {
		v := *o.Max
		r.Max = &v
	}
}

type Snapshot struct {
	Requests      int64 `json:"requests"`
	Stops         int64 `json:"stops"`
	BytesReceived int64 `json:"bytesReceived"`
	BytesSent     int64 `json:"bytesSent"`
}

func (s *Snapshot) Add(o Snapshot) {
	s.Requests += o.Requests
	s.Stops += o.Stops
	s.BytesReceived += o.BytesReceived
	s.BytesSent += o.BytesSent
}

// Project is the authoritative project record. Timestamps are epoch
// milliseconds.
type Project struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Status             ProjectStatus `json:"status"`
	ConnectorDefaultID *string       `json:"connectorDefaultId"`
	Token              string        `json:"token"`
	AutoRotate         Rotation      `json:"autoRotate"`
	AutoScaleUp        bool          `json:"autoScaleUp"`
	AutoScaleDown      OptionalValue `json:"autoScaleDown"`
	CookieSession      bool          `json:"cookieSession"`
	MITM               bool          `json:"mitm"`
	ProxiesMin         int           `json:"proxiesMin"`
	UseragentOverride  bool          `json:"useragentOverride"`
	Requests           int64         `json:"requests"`
	Stops              int64         `json:"stops"`
	ProxiesCreated     int64         `json:"proxiesCreated"`
	ProxiesRemoved     int64         `json:"proxiesRemoved"`
	BytesReceived      int64         `json:"bytesReceived"`
	BytesReceivedRate  int64         `json:"bytesReceivedRate"`
	BytesSent          int64         `json:"bytesSent"`
	BytesSentRate      int64         `json:"bytesSentRate"`
	RequestsBeforeStop RangeMetrics  `json:"requestsBeforeStop"`
	UptimeBeforeStop   RangeMetrics  `json:"uptimeBeforeStop"`
	Snapshot           Snapshot      `json:"snapshot"`
	UserIDs            []string      `json:"userIds"`
	LastDataTs         int64         `json:"lastDataTs"`
}

type ProjectView struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Status             ProjectStatus `json:"status"`
	ConnectorDefaultID *string       `json:"connectorDefaultId"`
}

// ProjectData is the policy shape exchanged with callers on create/update.
type ProjectData struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Status             ProjectStatus `json:"status"`
	ConnectorDefaultID *string       `json:"connectorDefaultId"`
	AutoRotate         Rotation      `json:"autoRotate"`
	AutoScaleUp        bool          `json:"autoScaleUp"`
	AutoScaleDown      OptionalValue `json:"autoScaleDown"`
	CookieSession      bool          `json:"cookieSession"`
	MITM               bool          `json:"mitm"`
	ProxiesMin         int           `json:"proxiesMin"`
	UseragentOverride  bool          `json:"useragentOverride"`
}

// ProjectSync is the shape consumed by the data plane to follow policy
// changes.
type ProjectSync struct {
	ID                 string        `json:"id"`
	Status             ProjectStatus `json:"status"`
	ConnectorDefaultID *string       `json:"connectorDefaultId"`
	AutoRotate         Rotation      `json:"autoRotate"`
	AutoScaleDown      OptionalValue `json:"autoScaleDown"`
	ProxiesMin         int           `json:"proxiesMin"`
	LastDataTs         int64         `json:"lastDataTs"`
}

type ProjectMetricsView struct {
	ID                 string       `json:"id"`
	Requests           int64        `json:"requests"`
	Stops              int64        `json:"stops"`
	ProxiesCreated     int64        `json:"proxiesCreated"`
	ProxiesRemoved     int64        `json:"proxiesRemoved"`
	BytesReceived      int64        `json:"bytesReceived"`
	BytesReceivedRate  int64        `json:"bytesReceivedRate"`
	BytesSent          int64        `json:"bytesSent"`
	BytesSentRate      int64        `json:"bytesSentRate"`
	RequestsBeforeStop RangeMetrics `json:"requestsBeforeStop"`
	UptimeBeforeStop   RangeMetrics `json:"uptimeBeforeStop"`
	Snapshot           Snapshot     `json:"snapshot"`
}

type ProjectMetrics struct {
	Project ProjectMetricsView `json:"project"`
	Windows []Window           `json:"windows"`
}

// ProjectCreate carries everything needed to create a project, including the
// owner and the initial access token, so the caller never has to read the
// project back.
type ProjectCreate struct {
	UserID  string      `json:"userId"`
	Token   string      `json:"token"`
	Project ProjectData `json:"project"`
}

type ProjectUserLink struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
}

// ProjectMetricsDelta carries pre-aggregated counter increments. Zero fields
// are no-ops; Snapshot and the before-stop ranges apply only when non-nil.
type ProjectMetricsDelta struct {
	ID                 string        `json:"id"`
	Requests           int64         `json:"requests"`
	Stops              int64         `json:"stops"`
	ProxiesCreated     int64         `json:"proxiesCreated"`
	ProxiesRemoved     int64         `json:"proxiesRemoved"`
	BytesReceived      int64         `json:"bytesReceived"`
	BytesSent          int64         `json:"bytesSent"`
	Snapshot           *Snapshot     `json:"snapshot"`
	RequestsBeforeStop *RangeMetrics `json:"requestsBeforeStop"`
	UptimeBeforeStop   *RangeMetrics `json:"uptimeBeforeStop"`
}

type WindowDelta struct {
	ID            string    `json:"id"`
	Size          int       `json:"size"`
	Count         int64     `json:"count"`
	Requests      int64     `json:"requests"`
	Stops         int64     `json:"stops"`
	BytesReceived int64     `json:"bytesReceived"`
	BytesSent     int64     `json:"bytesSent"`
	Snapshot      *Snapshot `json:"snapshot"`
}

type ProjectMetricsAdd struct {
	Project ProjectMetricsDelta `json:"project"`
	Windows []WindowDelta       `json:"windows"`
}

func ToProjectView(p *Project) ProjectView {
	return ProjectView{
		ID:                 p.ID,
		Name:               p.Name,
		Status:             p.Status,
		ConnectorDefaultID: p.ConnectorDefaultID,
	}
}

func ToProjectData(p *Project) ProjectData {
	return ProjectData{
		ID:                 p.ID,
		Name:               p.Name,
		Status:             p.Status,
		ConnectorDefaultID: p.ConnectorDefaultID,
		AutoRotate:         p.AutoRotate,
		AutoScaleUp:        p.AutoScaleUp,
		AutoScaleDown:      p.AutoScaleDown,
		CookieSession:      p.CookieSession,
		MITM:               p.MITM,
		ProxiesMin:         p.ProxiesMin,
		UseragentOverride:  p.UseragentOverride,
	}
}

func ToProjectSync(p *Project) ProjectSync {
	return ProjectSync{
		ID:                 p.ID,
		Status:             p.Status,
		ConnectorDefaultID: p.ConnectorDefaultID,
		AutoRotate:         p.AutoRotate,
		AutoScaleDown:      p.AutoScaleDown,
		ProxiesMin:         p.ProxiesMin,
		LastDataTs:         p.LastDataTs,
	}
}

func ToProjectMetricsView(p *Project) ProjectMetricsView {
	return ProjectMetricsView{
		ID:                 p.ID,
		Requests:           p.Requests,
		Stops:              p.Stops,
		ProxiesCreated:     p.ProxiesCreated,
		ProxiesRemoved:     p.ProxiesRemoved,
		BytesReceived:      p.BytesReceived,
		BytesReceivedRate:  p.BytesReceivedRate,
		BytesSent:          p.BytesSent,
		BytesSentRate:      p.BytesSentRate,
		RequestsBeforeStop: p.RequestsBeforeStop,
		UptimeBeforeStop:   p.UptimeBeforeStop,
		Snapshot:           p.Snapshot,
	}
}
