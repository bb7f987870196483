package database

import (
	"encoding/json"

	"flotilla/internal/domain"
)

type userRow struct {
	ID       string `gorm:"primaryKey"`
	Name     string
	Email    *string `gorm:"uniqueIndex"`
	Picture  *string
	Complete bool
}

func (userRow) TableName() string { return "users" }

func (r *userRow) toDomain() domain.User {
	return domain.User{
		ID:       r.ID,
		Name:     r.Name,
		Email:    r.Email,
		Picture:  r.Picture,
		Complete: r.Complete,
	}
}

func userFromDomain(u domain.User) userRow {
	return userRow{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Picture:  u.Picture,
		Complete: u.Complete,
	}
}

type projectRow struct {
	ID                 string `gorm:"primaryKey"`
	Name               string `gorm:"uniqueIndex"`
	Status             string
	ConnectorDefaultID *string
	Token              string `gorm:"uniqueIndex"`
	AutoRotate         domain.Rotation      `gorm:"serializer:json"`
	AutoScaleUp        bool
	AutoScaleDown      domain.OptionalValue `gorm:"serializer:json"`
	CookieSession      bool
	MITM               bool `gorm:"column:mitm"`
	ProxiesMin         int
	UseragentOverride  bool
	Requests           int64
	Stops              int64
	ProxiesCreated     int64
	ProxiesRemoved     int64
	BytesReceived      int64
	BytesReceivedRate  int64
	BytesSent          int64
	BytesSentRate      int64
	RequestsBeforeStop domain.RangeMetrics `gorm:"serializer:json"`
	UptimeBeforeStop   domain.RangeMetrics `gorm:"serializer:json"`
	Snapshot           domain.Snapshot     `gorm:"serializer:json"`
	LastDataTs         int64
}

func (projectRow) TableName() string { return "projects" }

func (r *projectRow) toDomain(userIDs []string) domain.Project {
	return domain.Project{
		ID:                 r.ID,
		Name:               r.Name,
		Status:             domain.ProjectStatus(r.Status),
		ConnectorDefaultID: r.ConnectorDefaultID,
		Token:              r.Token,
		AutoRotate:         r.AutoRotate,
		AutoScaleUp:        r.AutoScaleUp,
		AutoScaleDown:      r.AutoScaleDown,
		CookieSession:      r.CookieSession,
		MITM:               r.MITM,
		ProxiesMin:         r.ProxiesMin,
		UseragentOverride:  r.UseragentOverride,
		Requests:           r.Requests,
		Stops:              r.Stops,
		ProxiesCreated:     r.ProxiesCreated,
		ProxiesRemoved:     r.ProxiesRemoved,
		BytesReceived:      r.BytesReceived,
		BytesReceivedRate:  r.BytesReceivedRate,
		BytesSent:          r.BytesSent,
		BytesSentRate:      r.BytesSentRate,
		RequestsBeforeStop: r.RequestsBeforeStop,
		UptimeBeforeStop:   r.UptimeBeforeStop,
		Snapshot:           r.Snapshot,
		UserIDs:            userIDs,
		LastDataTs:         r.LastDataTs,
	}
}

type projectUserRow struct {
	ProjectID string `gorm:"primaryKey"`
	UserID    string `gorm:"primaryKey"`
}

func (projectUserRow) TableName() string { return "project_users" }

type windowRow struct {
	ID            string `gorm:"primaryKey"`
	ProjectID     string `gorm:"index"`
	Delay         int64
	Size          int
	Count         int64
	Requests      int64
	Stops         int64
	BytesReceived int64
	BytesSent     int64
	Snapshots     []domain.Snapshot `gorm:"serializer:json"`
}

func (windowRow) TableName() string { return "windows" }

func (r *windowRow) toDomain() domain.Window {
	snapshots := r.Snapshots
	if snapshots == nil {
		snapshots = []domain.Snapshot{}
	}
	return domain.Window{
		ID:            r.ID,
		ProjectID:     r.ProjectID,
		Delay:         r.Delay,
		Size:          r.Size,
		Count:         r.Count,
		Requests:      r.Requests,
		Stops:         r.Stops,
		BytesReceived: r.BytesReceived,
		BytesSent:     r.BytesSent,
		Snapshots:     snapshots,
	}
}

type credentialRow struct {
	ID        string `gorm:"primaryKey"`
	ProjectID string `gorm:"index"`
	Name      string
	Type      string
	Config    []byte
}

func (credentialRow) TableName() string { return "credentials" }

func (r *credentialRow) toDomain() domain.Credential {
	return domain.Credential{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		Name:      r.Name,
		Type:      r.Type,
		Config:    json.RawMessage(r.Config),
	}
}

type connectorRow struct {
	ID                         string `gorm:"primaryKey"`
	ProjectID                  string `gorm:"index"`
	Name                       string
	Type                       string
	Active                     bool
	CredentialID               string `gorm:"index"`
	ProxiesMax                 int
	ProxiesTimeoutDisconnected int64
	ProxiesTimeoutUnreachable  domain.OptionalValue `gorm:"serializer:json"`
	Error                      *string
	Certificate                *domain.Certificate `gorm:"serializer:json"`
	CertificateEndAt           *int64
	Config                     []byte
	NextRefreshTs              int64 `gorm:"index"`
}

func (connectorRow) TableName() string { return "connectors" }

func (r *connectorRow) toDomain() domain.Connector {
	return domain.Connector{
		ID:                         r.ID,
		ProjectID:                  r.ProjectID,
		Name:                       r.Name,
		Type:                       r.Type,
		Active:                     r.Active,
		CredentialID:               r.CredentialID,
		ProxiesMax:                 r.ProxiesMax,
		ProxiesTimeoutDisconnected: r.ProxiesTimeoutDisconnected,
		ProxiesTimeoutUnreachable:  r.ProxiesTimeoutUnreachable,
		Error:                      r.Error,
		Certificate:                r.Certificate,
		CertificateEndAt:           r.CertificateEndAt,
		Config:                     json.RawMessage(r.Config),
		NextRefreshTs:              r.NextRefreshTs,
	}
}

func connectorFromDomain(c domain.Connector) connectorRow {
	return connectorRow{
		ID:                         c.ID,
		ProjectID:                  c.ProjectID,
		Name:                       c.Name,
		Type:                       c.Type,
		Active:                     c.Active,
		CredentialID:               c.CredentialID,
		ProxiesMax:                 c.ProxiesMax,
		ProxiesTimeoutDisconnected: c.ProxiesTimeoutDisconnected,
		ProxiesTimeoutUnreachable:  c.ProxiesTimeoutUnreachable,
		Error:                      c.Error,
		Certificate:                c.Certificate,
		CertificateEndAt:           c.CertificateEndAt,
		Config:                     []byte(c.Config),
		NextRefreshTs:              c.NextRefreshTs,
	}
}

type proxyRow struct {
	ID                    string `gorm:"primaryKey"`
	ConnectorID           string `gorm:"index"`
	ProjectID             string `gorm:"index"`
	Type                  string
	Key                   string `gorm:"column:proxy_key"`
	Name                  string
	Status                string `gorm:"index"`
	Removing              bool
	RemovingForce         bool
	Fingerprint           *domain.Fingerprint `gorm:"serializer:json"`
	FingerprintError      *string
	Config                []byte
	Useragent             string
	TimeoutDisconnected   int64
	TimeoutUnreachable    domain.OptionalValue `gorm:"serializer:json"`
	DisconnectedTs        *int64
	AutoRotateDelayFactor float64
	CreatedTs             int64
	LastConnectionTs      int64
	NextRefreshTs         int64 `gorm:"index"`
	Requests              int64
	BytesReceived         int64
	BytesSent             int64
}

func (proxyRow) TableName() string { return "proxies" }

func (r *proxyRow) toDomain() domain.Proxy {
	return domain.Proxy{
		ID:                    r.ID,
		ConnectorID:           r.ConnectorID,
		ProjectID:             r.ProjectID,
		Type:                  r.Type,
		Key:                   r.Key,
		Name:                  r.Name,
		Status:                domain.ProxyStatus(r.Status),
		Removing:              r.Removing,
		RemovingForce:         r.RemovingForce,
		Fingerprint:           r.Fingerprint,
		FingerprintError:      r.FingerprintError,
		Config:                json.RawMessage(r.Config),
		Useragent:             r.Useragent,
		TimeoutDisconnected:   r.TimeoutDisconnected,
		TimeoutUnreachable:    r.TimeoutUnreachable,
		DisconnectedTs:        r.DisconnectedTs,
		AutoRotateDelayFactor: r.AutoRotateDelayFactor,
		CreatedTs:             r.CreatedTs,
		LastConnectionTs:      r.LastConnectionTs,
		NextRefreshTs:         r.NextRefreshTs,
		Requests:              r.Requests,
		BytesReceived:         r.BytesReceived,
		BytesSent:             r.BytesSent,
	}
}

func proxyFromDomain(p domain.Proxy) proxyRow {
	return proxyRow{
		ID:                    p.ID,
		ConnectorID:           p.ConnectorID,
		ProjectID:             p.ProjectID,
		Type:                  p.Type,
		Key:                   p.Key,
		Name:                  p.Name,
		Status:                string(p.Status),
		Removing:              p.Removing,
		RemovingForce:         p.RemovingForce,
		Fingerprint:           p.Fingerprint,
		FingerprintError:      p.FingerprintError,
		Config:                []byte(p.Config),
		Useragent:             p.Useragent,
		TimeoutDisconnected:   p.TimeoutDisconnected,
		TimeoutUnreachable:    p.TimeoutUnreachable,
		DisconnectedTs:        p.DisconnectedTs,
		AutoRotateDelayFactor: p.AutoRotateDelayFactor,
		CreatedTs:             p.CreatedTs,
		LastConnectionTs:      p.LastConnectionTs,
		NextRefreshTs:         p.NextRefreshTs,
		Requests:              p.Requests,
		BytesReceived:         p.BytesReceived,
		BytesSent:             p.BytesSent,
	}
}

type freeproxyRow struct {
	ID                  string `gorm:"primaryKey"`
	ConnectorID         string `gorm:"index"`
	ProjectID           string `gorm:"index"`
	Key                 string `gorm:"column:proxy_key"`
	Type                string
	Hostname            string
	Port                int
	Auth                *domain.Auth        `gorm:"serializer:json"`
	Fingerprint         *domain.Fingerprint `gorm:"serializer:json"`
	FingerprintError    *string
	TimeoutDisconnected int64
	TimeoutUnreachable  domain.OptionalValue `gorm:"serializer:json"`
	DisconnectedTs      *int64
	NextRefreshTs       int64 `gorm:"index"`
}

func (freeproxyRow) TableName() string { return "freeproxies" }

func (r *freeproxyRow) toDomain() domain.Freeproxy {
	return domain.Freeproxy{
		ID:                  r.ID,
		ConnectorID:         r.ConnectorID,
		ProjectID:           r.ProjectID,
		Key:                 r.Key,
		Type:                r.Type,
		Address:             domain.Address{Hostname: r.Hostname, Port: r.Port},
		Auth:                r.Auth,
		Fingerprint:         r.Fingerprint,
		FingerprintError:    r.FingerprintError,
		TimeoutDisconnected: r.TimeoutDisconnected,
		TimeoutUnreachable:  r.TimeoutUnreachable,
		DisconnectedTs:      r.DisconnectedTs,
		NextRefreshTs:       r.NextRefreshTs,
	}
}

func freeproxyFromDomain(f domain.Freeproxy) freeproxyRow {
	return freeproxyRow{
		ID:                  f.ID,
		ConnectorID:         f.ConnectorID,
		ProjectID:           f.ProjectID,
		Key:                 f.Key,
		Type:                f.Type,
		Hostname:            f.Address.Hostname,
		Port:                f.Address.Port,
		Auth:                f.Auth,
		Fingerprint:         f.Fingerprint,
		FingerprintError:    f.FingerprintError,
		TimeoutDisconnected: f.TimeoutDisconnected,
		TimeoutUnreachable:  f.TimeoutUnreachable,
		DisconnectedTs:      f.DisconnectedTs,
		NextRefreshTs:       f.NextRefreshTs,
	}
}

type sourceRow struct {
	ID               string `gorm:"primaryKey"`
	ConnectorID      string `gorm:"index"`
	ProjectID        string `gorm:"index"`
	URL              string
	Delay            int64
	LastRefreshTs    *int64
	LastRefreshError *string
	NextRefreshTs    int64 `gorm:"index"`
}

func (sourceRow) TableName() string { return "sources" }

func (r *sourceRow) toDomain() domain.Source {
	return domain.Source{
		ID:               r.ID,
		ConnectorID:      r.ConnectorID,
		ProjectID:        r.ProjectID,
		URL:              r.URL,
		Delay:            r.Delay,
		LastRefreshTs:    r.LastRefreshTs,
		LastRefreshError: r.LastRefreshError,
		NextRefreshTs:    r.NextRefreshTs,
	}
}

func sourceFromDomain(s domain.Source) sourceRow {
	return sourceRow{
		ID:               s.ID,
		ConnectorID:      s.ConnectorID,
		ProjectID:        s.ProjectID,
		URL:              s.URL,
		Delay:            s.Delay,
		LastRefreshTs:    s.LastRefreshTs,
		LastRefreshError: s.LastRefreshError,
		NextRefreshTs:    s.NextRefreshTs,
	}
}

type taskRow struct {
	ID          string `gorm:"primaryKey"`
	ProjectID   string `gorm:"index"`
	ConnectorID string `gorm:"index"`
	Type        string
	Name        string
	Running     bool
	Cancelled   bool
	StepCurrent int
	StepMax     int
	Message     string
	StartAtTs   int64
	EndAtTs     *int64
	NextRetryTs int64 `gorm:"index"`
	Locked      bool
	JWTToken    string `gorm:"column:jwt_token"`
	Data        []byte
}

func (taskRow) TableName() string { return "tasks" }

func (r *taskRow) toDomain() domain.Task {
	return domain.Task{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		ConnectorID: r.ConnectorID,
		Type:        r.Type,
		Name:        r.Name,
		Running:     r.Running,
		Cancelled:   r.Cancelled,
		StepCurrent: r.StepCurrent,
		StepMax:     r.StepMax,
		Message:     r.Message,
		StartAtTs:   r.StartAtTs,
		EndAtTs:     r.EndAtTs,
		NextRetryTs: r.NextRetryTs,
		Locked:      r.Locked,
		JWTToken:    r.JWTToken,
		Data:        json.RawMessage(r.Data),
	}
}

func taskFromDomain(t domain.Task) taskRow {
	return taskRow{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		ConnectorID: t.ConnectorID,
		Type:        t.Type,
		Name:        t.Name,
		Running:     t.Running,
		Cancelled:   t.Cancelled,
		StepCurrent: t.StepCurrent,
		StepMax:     t.StepMax,
		Message:     t.Message,
		StartAtTs:   t.StartAtTs,
		EndAtTs:     t.EndAtTs,
		NextRetryTs: t.NextRetryTs,
		Locked:      t.Locked,
		JWTToken:    t.JWTToken,
		Data:        []byte(t.Data),
	}
}

type paramRow struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (paramRow) TableName() string { return "params" }

type certificateRow struct {
	Hostname string `gorm:"primaryKey"`
	Cert     string
	Key      string `gorm:"column:cert_key"`
}

func (certificateRow) TableName() string { return "certificates" }
