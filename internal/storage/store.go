package storage

import (
	"context"

	"flotilla/internal/domain"
)

// Emitter receives domain events after successful mutations.
type Emitter interface {
	Emit(event domain.Event)
}

// NopEmitter discards events. Used by backends whose events are published
// elsewhere, and by tests that do not observe the bus.
type NopEmitter struct{}

func (NopEmitter) Emit(domain.Event) {}

// Store is the fleet state contract every backend implements identically.
//
// Point lookups fail with *NotFoundError when the key is absent. Existence
// checks fail with *AlreadyExistsError when another row (excluding the given
// id) holds the name. Pull-scheduling reads return rows ordered by ascending
// deadline and fail with the matching ErrNoXToRefresh sentinel when nothing
// is due. Batched synchronize operations skip unknown ids in their updated
// and removed lists.
type Store interface {
	// Users

	GetUserByID(ctx context.Context, userID string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	CheckIfUserEmailExists(ctx context.Context, email, excludeUserID string) error
	CreateUser(ctx context.Context, user domain.User) error
	UpdateUser(ctx context.Context, user domain.User) error

	// Projects

	GetAllProjectsForUserID(ctx context.Context, userID string) ([]domain.ProjectView, error)
	GetAllProjectsMetrics(ctx context.Context) ([]domain.ProjectMetrics, error)
	GetProjectByID(ctx context.Context, projectID string) (domain.ProjectData, error)
	GetProjectSyncByID(ctx context.Context, projectID string) (domain.ProjectSync, error)
	GetProjectByToken(ctx context.Context, token string) (domain.ProjectData, error)
	GetProjectMetricsByID(ctx context.Context, projectID string) (domain.ProjectMetrics, error)
	GetProjectTokenByID(ctx context.Context, projectID string) (string, error)
	GetProjectIDByToken(ctx context.Context, token string) (string, error)
	GetProjectConnectorsCountByID(ctx context.Context, projectID string) (int, error)
	CheckIfProjectNameExists(ctx context.Context, name, excludeProjectID string) error
	CreateProject(ctx context.Context, create domain.ProjectCreate) error
	UpdateProject(ctx context.Context, project domain.ProjectData) error
	UpdateProjectLastDataTs(ctx context.Context, projectID string, lastDataTs int64) error
	RemoveProject(ctx context.Context, projectID string) error
	GetAllProjectUsersByID(ctx context.Context, projectID string) ([]domain.UserProject, error)
	CanUserAccessProject(ctx context.Context, projectID, userID string) (bool, error)
	AddUserToProject(ctx context.Context, link domain.ProjectUserLink) error
	RemoveUserFromProject(ctx context.Context, link domain.ProjectUserLink) error
	AddProjectsMetrics(ctx context.Context, adds []domain.ProjectMetricsAdd) error
	UpdateProjectToken(ctx context.Context, projectID, token string) error

	// Credentials

	GetAllProjectCredentials(ctx context.Context, projectID string, connectorType *string) ([]domain.CredentialView, error)
	GetCredentialByID(ctx context.Context, projectID, credentialID string) (domain.Credential, error)
	GetCredentialConnectorsCountByID(ctx context.Context, projectID, credentialID string, activeOnly bool) (int, error)
	CheckIfCredentialNameExists(ctx context.Context, projectID, name, excludeCredentialID string) error
	CreateCredential(ctx context.Context, credential domain.Credential) error
	UpdateCredential(ctx context.Context, credential domain.Credential) error
	RemoveCredential(ctx context.Context, projectID, credentialID string) error

	// Connectors

	GetAllProjectConnectorsAndProxiesByID(ctx context.Context, projectID string) ([]domain.ConnectorProxiesView, error)
	GetAllConnectorProxiesByID(ctx context.Context, projectID, connectorID string) (domain.ConnectorProxiesView, error)
	GetAllConnectorProxiesSyncByID(ctx context.Context, projectID, connectorID string) (domain.ConnectorProxiesSync, error)
	GetConnectorByID(ctx context.Context, projectID, connectorID string) (domain.ConnectorData, error)
	GetAnotherConnectorByID(ctx context.Context, projectID, excludeConnectorID string) (string, error)
	GetConnectorCertificateByID(ctx context.Context, projectID, connectorID string) (*domain.Certificate, error)
	CheckIfConnectorNameExists(ctx context.Context, projectID, name, excludeConnectorID string) error
	CreateConnector(ctx context.Context, connector domain.Connector) error
	UpdateConnector(ctx context.Context, connector domain.Connector) error
	UpdateConnectorCertificate(ctx context.Context, projectID, connectorID string, info domain.CertificateInfo) error
	RemoveConnector(ctx context.Context, projectID, connectorID string) error
	GetNextConnectorToRefresh(ctx context.Context, threshold int64) (domain.ConnectorToRefresh, error)
	UpdateConnectorNextRefreshTs(ctx context.Context, projectID, connectorID string, nextRefreshTs int64) error

	// Proxies

	GetProxiesByIDs(ctx context.Context, proxyIDs []string) ([]domain.ProxyView, error)
	GetProjectProxiesByIDs(ctx context.Context, projectID string, proxyIDs []string, removing *bool) ([]domain.ProxyView, error)
	GetConnectorProxiesCountByID(ctx context.Context, projectID, connectorID string) (int, error)
	GetProxiesCount(ctx context.Context) (int64, error)
	SynchronizeProxies(ctx context.Context, actions domain.ProxiesSynchronization) error
	AddProxiesMetrics(ctx context.Context, adds []domain.ProxyMetricsAdd) error
	GetNextProxyToConnect(ctx context.Context, projectID string, proxyname *string) (domain.ProxyToConnect, error)
	UpdateProxyLastConnectionTs(ctx context.Context, projectID, connectorID, proxyID string, lastConnectionTs int64) error
	GetNextProxiesToRefresh(ctx context.Context, threshold int64, count int) ([]domain.ProxyToRefresh, error)
	UpdateProxiesNextRefreshTs(ctx context.Context, proxyIDs []string, base int64) error

	// Freeproxies

	GetFreeproxiesByIDs(ctx context.Context, freeproxyIDs []string) ([]domain.Freeproxy, error)
	GetAllProjectFreeproxiesByID(ctx context.Context, projectID, connectorID string) ([]domain.Freeproxy, error)
	GetSelectedProjectFreeproxies(ctx context.Context, projectID, connectorID string, keys []string) ([]domain.Freeproxy, error)
	GetNewProjectFreeproxies(ctx context.Context, projectID, connectorID string, count int, excludeKeys []string) ([]domain.Freeproxy, error)
	CreateFreeproxies(ctx context.Context, projectID, connectorID string, freeproxies []domain.Freeproxy) error
	SynchronizeFreeproxies(ctx context.Context, actions domain.FreeproxiesSynchronization) error
	GetNextFreeproxiesToRefresh(ctx context.Context, threshold int64, count int) ([]domain.FreeproxyToRefresh, error)
	UpdateFreeproxiesNextRefreshTs(ctx context.Context, freeproxyIDs []string, base int64) error

	// Sources

	GetAllProjectSourcesByID(ctx context.Context, projectID, connectorID string) ([]domain.Source, error)
	GetSourceByID(ctx context.Context, projectID, connectorID, sourceID string) (domain.Source, error)
	CreateSources(ctx context.Context, sources []domain.Source) error
	UpdateSources(ctx context.Context, sources []domain.Source) error
	RemoveSources(ctx context.Context, sources []domain.Source) error
	GetNextSourceToRefresh(ctx context.Context, threshold int64) (domain.Source, error)
	UpdateSourceNextRefreshTs(ctx context.Context, projectID, connectorID, sourceID string, nextRefreshTs int64) error

	// Tasks

	GetAllProjectTasksByID(ctx context.Context, projectID string) ([]domain.TaskView, error)
	GetTaskByID(ctx context.Context, projectID, taskID string) (domain.Task, error)
	CreateTask(ctx context.Context, task domain.Task) error
	UpdateTask(ctx context.Context, task domain.Task) error
	LockTask(ctx context.Context, projectID, taskID string) error
	RemoveTask(ctx context.Context, projectID, taskID string) error
	GetProjectRunningTaskCount(ctx context.Context, projectID string) (int, error)
	GetNextTaskToRefresh(ctx context.Context, threshold int64) (domain.Task, error)

	// Params

	GetParam(ctx context.Context, key string) (string, error)

	// Certificates

	GetCertificateForHostname(ctx context.Context, hostname string) (domain.Certificate, error)
	CreateCertificateForHostname(ctx context.Context, hostname string, certificate domain.Certificate) error
}
