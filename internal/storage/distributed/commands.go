package distributed

import (
	"context"
	"encoding/json"
	"fmt"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

// Command is one mutation travelling on the command stream. The relay encodes
// it, the writer decodes it and applies it against the backing store.
type Command interface {
	CommandName() string
	Apply(ctx context.Context, s storage.Store) error
}

type wireCommand struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeCommand wraps a command in its named envelope.
func EncodeCommand(cmd Command) ([]byte, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireCommand{Name: cmd.CommandName(), Payload: payload})
}

// DecodeCommand restores a command from its envelope. Unknown names fail so
// that a version skew between relay and writer is loud, not silent.
func DecodeCommand(data []byte) (Command, error) {
	var w wireCommand
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}

	factory, ok := commandRegistry[w.Name]
	if !ok {
		return nil, fmt.Errorf("unknown command %q", w.Name)
	}

	cmd := factory()
	if err := json.Unmarshal(w.Payload, cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

var commandRegistry = map[string]func() Command{}

func registerCommand(name string, factory func() Command) {
	commandRegistry[name] = factory
}

type CreateUserCommand struct {
	User domain.User `json:"user"`
}

type UpdateUserCommand struct {
	User domain.User `json:"user"`
}

type CreateProjectCommand struct {
	Create domain.ProjectCreate `json:"create"`
}

type UpdateProjectCommand struct {
	Project domain.ProjectData `json:"project"`
}

type UpdateProjectLastDataTsCommand struct {
	ProjectID  string `json:"projectId"`
	LastDataTs int64  `json:"lastDataTs"`
}

type RemoveProjectCommand struct {
	ProjectID string `json:"projectId"`
}

type AddUserToProjectCommand struct {
	Link domain.ProjectUserLink `json:"link"`
}

type RemoveUserFromProjectCommand struct {
	Link domain.ProjectUserLink `json:"link"`
}

type AddProjectsMetricsCommand struct {
	Adds []domain.ProjectMetricsAdd `json:"adds"`
}

type UpdateProjectTokenCommand struct {
	ProjectID string `json:"projectId"`
	Token     string `json:"token"`
}

type CreateCredentialCommand struct {
	Credential domain.Credential `json:"credential"`
}

type UpdateCredentialCommand struct {
	Credential domain.Credential `json:"credential"`
}

type RemoveCredentialCommand struct {
	ProjectID    string `json:"projectId"`
	CredentialID string `json:"credentialId"`
}

type CreateConnectorCommand struct {
	Connector domain.Connector `json:"connector"`
}

type UpdateConnectorCommand struct {
	Connector domain.Connector `json:"connector"`
}

type UpdateConnectorCertificateCommand struct {
	ProjectID   string                 `json:"projectId"`
	ConnectorID string                 `json:"connectorId"`
	Info        domain.CertificateInfo `json:"info"`
}

type RemoveConnectorCommand struct {
	ProjectID   string `json:"projectId"`
	ConnectorID string `json:"connectorId"`
}

type UpdateConnectorNextRefreshTsCommand struct {
	ProjectID     string `json:"projectId"`
	ConnectorID   string `json:"connectorId"`
	NextRefreshTs int64  `json:"nextRefreshTs"`
}

type SynchronizeProxiesCommand struct {
	Actions domain.ProxiesSynchronization `json:"actions"`
}

type AddProxiesMetricsCommand struct {
	Adds []domain.ProxyMetricsAdd `json:"adds"`
}

type UpdateProxyLastConnectionTsCommand struct {
	ProjectID        string `json:"projectId"`
	ConnectorID      string `json:"connectorId"`
	ProxyID          string `json:"proxyId"`
	LastConnectionTs int64  `json:"lastConnectionTs"`
}

type UpdateProxiesNextRefreshTsCommand struct {
	ProxyIDs []string `json:"proxyIds"`
	Base     int64    `json:"base"`
}

type CreateFreeproxiesCommand struct {
	ProjectID   string             `json:"projectId"`
	ConnectorID string             `json:"connectorId"`
	Freeproxies []domain.Freeproxy `json:"freeproxies"`
}

type SynchronizeFreeproxiesCommand struct {
	Actions domain.FreeproxiesSynchronization `json:"actions"`
}

type UpdateFreeproxiesNextRefreshTsCommand struct {
	FreeproxyIDs []string `json:"freeproxyIds"`
	Base         int64    `json:"base"`
}

type CreateSourcesCommand struct {
	Sources []domain.Source `json:"sources"`
}

type UpdateSourcesCommand struct {
	Sources []domain.Source `json:"sources"`
}

type RemoveSourcesCommand struct {
	Sources []domain.Source `json:"sources"`
}

type UpdateSourceNextRefreshTsCommand struct {
	ProjectID     string `json:"projectId"`
	ConnectorID   string `json:"connectorId"`
	SourceID      string `json:"sourceId"`
	NextRefreshTs int64  `json:"nextRefreshTs"`
}

type CreateTaskCommand struct {
	Task domain.Task `json:"task"`
}

type UpdateTaskCommand struct {
	Task domain.Task `json:"task"`
}

type LockTaskCommand struct {
	ProjectID string `json:"projectId"`
	TaskID    string `json:"taskId"`
}

type RemoveTaskCommand struct {
	ProjectID string `json:"projectId"`
	TaskID    string `json:"taskId"`
}

type CreateCertificateCommand struct {
	Hostname    string             `json:"hostname"`
	Certificate domain.Certificate `json:"certificate"`
}

func (CreateUserCommand) CommandName() string                    { return "create_user" }
func (UpdateUserCommand) CommandName() string                    { return "update_user" }
func (CreateProjectCommand) CommandName() string                 { return "create_project" }
func (UpdateProjectCommand) CommandName() string                 { return "update_project" }
func (UpdateProjectLastDataTsCommand) CommandName() string       { return "update_project_last_data_ts" }
func (RemoveProjectCommand) CommandName() string                 { return "remove_project" }
func (AddUserToProjectCommand) CommandName() string              { return "add_user_to_project" }
func (RemoveUserFromProjectCommand) CommandName() string         { return "remove_user_from_project" }
func (AddProjectsMetricsCommand) CommandName() string            { return "add_projects_metrics" }
func (UpdateProjectTokenCommand) CommandName() string            { return "update_project_token" }
func (CreateCredentialCommand) CommandName() string              { return "create_credential" }
func (UpdateCredentialCommand) CommandName() string              { return "update_credential" }
func (RemoveCredentialCommand) CommandName() string              { return "remove_credential" }
func (CreateConnectorCommand) CommandName() string               { return "create_connector" }
func (UpdateConnectorCommand) CommandName() string               { return "update_connector" }
func (UpdateConnectorCertificateCommand) CommandName() string    { return "update_connector_certificate" }
func (RemoveConnectorCommand) CommandName() string               { return "remove_connector" }
func (UpdateConnectorNextRefreshTsCommand) CommandName() string  { return "update_connector_next_refresh_ts" }
func (SynchronizeProxiesCommand) CommandName() string            { return "synchronize_proxies" }
func (AddProxiesMetricsCommand) CommandName() string             { return "add_proxies_metrics" }
func (UpdateProxyLastConnectionTsCommand) CommandName() string   { return "update_proxy_last_connection_ts" }
func (UpdateProxiesNextRefreshTsCommand) CommandName() string    { return "update_proxies_next_refresh_ts" }
func (CreateFreeproxiesCommand) CommandName() string             { return "create_freeproxies" }
func (SynchronizeFreeproxiesCommand) CommandName() string        { return "synchronize_freeproxies" }
func (UpdateFreeproxiesNextRefreshTsCommand) CommandName() string {
	return "update_freeproxies_next_refresh_ts"
}
func (CreateSourcesCommand) CommandName() string             { return "create_sources" }
func (UpdateSourcesCommand) CommandName() string             { return "update_sources" }
func (RemoveSourcesCommand) CommandName() string             { return "remove_sources" }
func (UpdateSourceNextRefreshTsCommand) CommandName() string { return "update_source_next_refresh_ts" }
func (CreateTaskCommand) CommandName() string                { return "create_task" }
func (UpdateTaskCommand) CommandName() string                { return "update_task" }
func (LockTaskCommand) CommandName() string                  { return "lock_task" }
func (RemoveTaskCommand) CommandName() string                { return "remove_task" }
func (CreateCertificateCommand) CommandName() string         { return "create_certificate" }

func (c *CreateUserCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.CreateUser(ctx, c.User)
}

func (c *UpdateUserCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.UpdateUser(ctx, c.User)
}

func (c *CreateProjectCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.CreateProject(ctx, c.Create)
}

func (c *UpdateProjectCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.UpdateProject(ctx, c.Project)
}

func (c *UpdateProjectLastDataTsCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.UpdateProjectLastDataTs(ctx, c.ProjectID, c.LastDataTs)
}

func (c *RemoveProjectCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.RemoveProject(ctx, c.ProjectID)
}

func (c *AddUserToProjectCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.AddUserToProject(ctx, c.Link)
}

func (c *RemoveUserFromProjectCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.RemoveUserFromProject(ctx, c.Link)
}

func (c *AddProjectsMetricsCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.AddProjectsMetrics(ctx, c.Adds)
}

func (c *UpdateProjectTokenCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.UpdateProjectToken(ctx, c.ProjectID, c.Token)
}

func (c *CreateCredentialCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.CreateCredential(ctx, c.Credential)
}

func (c *UpdateCredentialCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.UpdateCredential(ctx, c.Credential)
}

func (c *RemoveCredentialCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.RemoveCredential(ctx, c.ProjectID, c.CredentialID)
}

func (c *CreateConnectorCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.CreateConnector(ctx, c.Connector)
}

func (c *UpdateConnectorCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.UpdateConnector(ctx, c.Connector)
}

func (c *UpdateConnectorCertificateCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.UpdateConnectorCertificate(ctx, c.ProjectID, c.ConnectorID, c.Info)
}

func (c *RemoveConnectorCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.RemoveConnector(ctx, c.ProjectID, c.ConnectorID)
}

func (c *UpdateConnectorNextRefreshTsCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.UpdateConnectorNextRefreshTs(ctx, c.ProjectID, c.ConnectorID, c.NextRefreshTs)
}

func (c *SynchronizeProxiesCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.SynchronizeProxies(ctx, c.Actions)
}

func (c *AddProxiesMetricsCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.AddProxiesMetrics(ctx, c.Adds)
}

func (c *UpdateProxyLastConnectionTsCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.UpdateProxyLastConnectionTs(ctx, c.ProjectID, c.ConnectorID, c.ProxyID, c.LastConnectionTs)
}

func (c *UpdateProxiesNextRefreshTsCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.UpdateProxiesNextRefreshTs(ctx, c.ProxyIDs, c.Base)
}

func (c *CreateFreeproxiesCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.CreateFreeproxies(ctx, c.ProjectID, c.ConnectorID, c.Freeproxies)
}

func (c *SynchronizeFreeproxiesCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.SynchronizeFreeproxies(ctx, c.Actions)
}

func (c *UpdateFreeproxiesNextRefreshTsCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.UpdateFreeproxiesNextRefreshTs(ctx, c.FreeproxyIDs, c.Base)
}

func (c *CreateSourcesCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.CreateSources(ctx, c.Sources)
}

func (c *UpdateSourcesCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.UpdateSources(ctx, c.Sources)
}

func (c *RemoveSourcesCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.RemoveSources(ctx, c.Sources)
}

func (c *UpdateSourceNextRefreshTsCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.UpdateSourceNextRefreshTs(ctx, c.ProjectID, c.ConnectorID, c.SourceID, c.NextRefreshTs)
}

func (c *CreateTaskCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.CreateTask(ctx, c.Task)
}

func (c *UpdateTaskCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.UpdateTask(ctx, c.Task)
}

func (c *LockTaskCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.LockTask(ctx, c.ProjectID, c.TaskID)
}

func (c *RemoveTaskCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.RemoveTask(ctx, c.ProjectID, c.TaskID)
}

func (c *CreateCertificateCommand) Apply(ctx context.Context, s storage.Store) error {
	return s.CreateCertificateForHostname(ctx, c.Hostname, c.Certificate)
}

func init() {
	registerCommand(CreateUserCommand{}.CommandName(), func() Command { return &CreateUserCommand{} })
	registerCommand(UpdateUserCommand{}.CommandName(), func() Command { return &UpdateUserCommand{} })
	registerCommand(CreateProjectCommand{}.CommandName(), func() Command { return &CreateProjectCommand{} })
	registerCommand(UpdateProjectCommand{}.CommandName(), func() Command { return &UpdateProjectCommand{} })
	registerCommand(UpdateProjectLastDataTsCommand{}.CommandName(), func() Command { return &UpdateProjectLastDataTsCommand{} })
	registerCommand(RemoveProjectCommand{}.CommandName(), func() Command { return &RemoveProjectCommand{} })
	registerCommand(AddUserToProjectCommand{}.CommandName(), func() Command { return &AddUserToProjectCommand{} })
	registerCommand(RemoveUserFromProjectCommand{}.CommandName(), func() Command { return &RemoveUserFromProjectCommand{} })
	registerCommand(AddProjectsMetricsCommand{}.CommandName(), func() Command { return &AddProjectsMetricsCommand{} })
	registerCommand(UpdateProjectTokenCommand{}.CommandName(), func() Command { return &UpdateProjectTokenCommand{} })
	registerCommand(CreateCredentialCommand{}.CommandName(), func() Command { return &CreateCredentialCommand{} })
	registerCommand(UpdateCredentialCommand{}.CommandName(), func() Command { return &UpdateCredentialCommand{} })
	registerCommand(RemoveCredentialCommand{}.CommandName(), func() Command { return &RemoveCredentialCommand{} })
	registerCommand(CreateConnectorCommand{}.CommandName(), func() Command { return &CreateConnectorCommand{} })
	registerCommand(UpdateConnectorCommand{}.CommandName(), func() Command { return &UpdateConnectorCommand{} })
	registerCommand(UpdateConnectorCertificateCommand{}.CommandName(), func() Command { return &UpdateConnectorCertificateCommand{} })
	registerCommand(RemoveConnectorCommand{}.CommandName(), func() Command { return &RemoveConnectorCommand{} })
	registerCommand(UpdateConnectorNextRefreshTsCommand{}.CommandName(), func() Command { return &UpdateConnectorNextRefreshTsCommand{} })
	registerCommand(SynchronizeProxiesCommand{}.CommandName(), func() Command { return &SynchronizeProxiesCommand{} })
	registerCommand(AddProxiesMetricsCommand{}.CommandName(), func() Command { return &AddProxiesMetricsCommand{} })
	registerCommand(UpdateProxyLastConnectionTsCommand{}.CommandName(), func() Command { return &UpdateProxyLastConnectionTsCommand{} })
	registerCommand(UpdateProxiesNextRefreshTsCommand{}.CommandName(), func() Command { return &UpdateProxiesNextRefreshTsCommand{} })
	registerCommand(CreateFreeproxiesCommand{}.CommandName(), func() Command { return &CreateFreeproxiesCommand{} })
	registerCommand(SynchronizeFreeproxiesCommand{}.CommandName(), func() Command { return &SynchronizeFreeproxiesCommand{} })
	registerCommand(UpdateFreeproxiesNextRefreshTsCommand{}.CommandName(), func() Command { return &UpdateFreeproxiesNextRefreshTsCommand{} })
	registerCommand(CreateSourcesCommand{}.CommandName(), func() Command { return &CreateSourcesCommand{} })
	registerCommand(UpdateSourcesCommand{}.CommandName(), func() Command { return &UpdateSourcesCommand{} })
	registerCommand(RemoveSourcesCommand{}.CommandName(), func() Command { return &RemoveSourcesCommand{} })
	registerCommand(UpdateSourceNextRefreshTsCommand{}.CommandName(), func() Command { return &UpdateSourceNextRefreshTsCommand{} })
	registerCommand(CreateTaskCommand{}.CommandName(), func() Command { return &CreateTaskCommand{} })
	registerCommand(UpdateTaskCommand{}.CommandName(), func() Command { return &UpdateTaskCommand{} })
	registerCommand(LockTaskCommand{}.CommandName(), func() Command { return &LockTaskCommand{} })
	registerCommand(RemoveTaskCommand{}.CommandName(), func() Command { return &RemoveTaskCommand{} })
	registerCommand(CreateCertificateCommand{}.CommandName(), func() Command { return &CreateCertificateCommand{} })
}
