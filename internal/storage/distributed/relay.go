// Package distributed replicates the fleet state across instances. Relays
// forward mutations as commands on a broker stream; a single leader-elected
// writer applies them to the database and broadcasts the resulting events,
// which every relay re-emits into its local bus.
package distributed

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

// Relay is the store facet every non-writer instance uses. Reads delegate to
// the shared database; writes return once the broker has accepted the
// command, before the writer applies it. Validation failures surface on the
// writer, not on the caller.
type Relay struct {
	storage.Store

	broker Broker
	bus    storage.Emitter
}

var _ storage.Store = (*Relay)(nil)

func NewRelay(reads storage.Store, broker Broker, bus storage.Emitter) *Relay {
	if bus == nil {
		bus = storage.NopEmitter{}
	}
	return &Relay{Store: reads, broker: broker, bus: bus}
}

// Run pumps broadcast events into the local bus until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	return r.broker.SubscribeEvents(ctx, func(data []byte) {
		var event domain.Event
		if err := json.Unmarshal(data, &event); err != nil {
			log.Error("relay: dropping undecodable event", "error", err)
			return
		}
		r.bus.Emit(event)
	})
}

func (r *Relay) publish(ctx context.Context, cmd Command) error {
	data, err := EncodeCommand(cmd)
	if err != nil {
		return err
	}
	return r.broker.PublishCommand(ctx, data)
}

func (r *Relay) CreateUser(ctx context.Context, user domain.User) error {
	return r.publish(ctx, &CreateUserCommand{User: user})
}

func (r *Relay) UpdateUser(ctx context.Context, user domain.User) error {
	return r.publish(ctx, &UpdateUserCommand{User: user})
}

func (r *Relay) CreateProject(ctx context.Context, create domain.ProjectCreate) error {
	return r.publish(ctx, &CreateProjectCommand{Create: create})
}

func (r *Relay) UpdateProject(ctx context.Context, project domain.ProjectData) error {
	return r.publish(ctx, &UpdateProjectCommand{Project: project})
}

func (r *Relay) UpdateProjectLastDataTs(ctx context.Context, projectID string, lastDataTs int64) error {
	return r.publish(ctx, &UpdateProjectLastDataTsCommand{ProjectID: projectID, LastDataTs: lastDataTs})
}

func (r *Relay) RemoveProject(ctx context.Context, projectID string) error {
	return r.publish(ctx, &RemoveProjectCommand{ProjectID: projectID})
}

func (r *Relay) AddUserToProject(ctx context.Context, link domain.ProjectUserLink) error {
	return r.publish(ctx, &AddUserToProjectCommand{Link: link})
}

func (r *Relay) RemoveUserFromProject(ctx context.Context, link domain.ProjectUserLink) error {
	return r.publish(ctx, &RemoveUserFromProjectCommand{Link: link})
}

func (r *Relay) AddProjectsMetrics(ctx context.Context, adds []domain.ProjectMetricsAdd) error {
	return r.publish(ctx, &AddProjectsMetricsCommand{Adds: adds})
}

func (r *Relay) UpdateProjectToken(ctx context.Context, projectID, token string) error {
	return r.publish(ctx, &UpdateProjectTokenCommand{ProjectID: projectID, Token: token})
}

func (r *Relay) CreateCredential(ctx context.Context, credential domain.Credential) error {
	return r.publish(ctx, &CreateCredentialCommand{Credential: credential})
}

func (r *Relay) UpdateCredential(ctx context.Context, credential domain.Credential) error {
	return r.publish(ctx, &UpdateCredentialCommand{Credential: credential})
}

func (r *Relay) RemoveCredential(ctx context.Context, projectID, credentialID string) error {
	return r.publish(ctx, &RemoveCredentialCommand{ProjectID: projectID, CredentialID: credentialID})
}

func (r *Relay) CreateConnector(ctx context.Context, connector domain.Connector) error {
	return r.publish(ctx, &CreateConnectorCommand{Connector: connector})
}

func (r *Relay) UpdateConnector(ctx context.Context, connector domain.Connector) error {
	return r.publish(ctx, &UpdateConnectorCommand{Connector: connector})
}

func (r *Relay) UpdateConnectorCertificate(ctx context.Context, projectID, connectorID string, info domain.CertificateInfo) error {
	return r.publish(ctx, &UpdateConnectorCertificateCommand{
		ProjectID:   projectID,
		ConnectorID: connectorID,
		Info:        info,
	})
}

func (r *Relay) RemoveConnector(ctx context.Context, projectID, connectorID string) error {
	return r.publish(ctx, &RemoveConnectorCommand{ProjectID: projectID, ConnectorID: connectorID})
}

func (r *Relay) UpdateConnectorNextRefreshTs(ctx context.Context, projectID, connectorID string, nextRefreshTs int64) error {
	return r.publish(ctx, &UpdateConnectorNextRefreshTsCommand{
		ProjectID:     projectID,
		ConnectorID:   connectorID,
		NextRefreshTs: nextRefreshTs,
	})
}

func (r *Relay) SynchronizeProxies(ctx context.Context, actions domain.ProxiesSynchronization) error {
	return r.publish(ctx, &SynchronizeProxiesCommand{Actions: actions})
}

func (r *Relay) AddProxiesMetrics(ctx context.Context, adds []domain.ProxyMetricsAdd) error {
	return r.publish(ctx, &AddProxiesMetricsCommand{Adds: adds})
}

func (r *Relay) UpdateProxyLastConnectionTs(ctx context.Context, projectID, connectorID, proxyID string, lastConnectionTs int64) error {
	return r.publish(ctx, &UpdateProxyLastConnectionTsCommand{
		ProjectID:        projectID,
		ConnectorID:      connectorID,
		ProxyID:          proxyID,
		LastConnectionTs: lastConnectionTs,
	})
}

func (r *Relay) UpdateProxiesNextRefreshTs(ctx context.Context, proxyIDs []string, base int64) error {
	return r.publish(ctx, &UpdateProxiesNextRefreshTsCommand{ProxyIDs: proxyIDs, Base: base})
}

func (r *Relay) CreateFreeproxies(ctx context.Context, projectID, connectorID string, freeproxies []domain.Freeproxy) error {
	return r.publish(ctx, &CreateFreeproxiesCommand{
		ProjectID:   projectID,
		ConnectorID: connectorID,
		Freeproxies: freeproxies,
	})
}

func (r *Relay) SynchronizeFreeproxies(ctx context.Context, actions domain.FreeproxiesSynchronization) error {
	return r.publish(ctx, &SynchronizeFreeproxiesCommand{Actions: actions})
}

func (r *Relay) UpdateFreeproxiesNextRefreshTs(ctx context.Context, freeproxyIDs []string, base int64) error {
	return r.publish(ctx, &UpdateFreeproxiesNextRefreshTsCommand{FreeproxyIDs: freeproxyIDs, Base: base})
}

func (r *Relay) CreateSources(ctx context.Context, sources []domain.Source) error {
	return r.publish(ctx, &CreateSourcesCommand{Sources: sources})
}

func (r *Relay) UpdateSources(ctx context.Context, sources []domain.Source) error {
	return r.publish(ctx, &UpdateSourcesCommand{Sources: sources})
}

func (r *Relay) RemoveSources(ctx context.Context, sources []domain.Source) error {
	return r.publish(ctx, &RemoveSourcesCommand{Sources: sources})
}

func (r *Relay) UpdateSourceNextRefreshTs(ctx context.Context, projectID, connectorID, sourceID string, nextRefreshTs int64) error {
	return r.publish(ctx, &UpdateSourceNextRefreshTsCommand{
		ProjectID:     projectID,
		ConnectorID:   connectorID,
		SourceID:      sourceID,
		NextRefreshTs: nextRefreshTs,
	})
}

func (r *Relay) CreateTask(ctx context.Context, task domain.Task) error {
	return r.publish(ctx, &CreateTaskCommand{Task: task})
}

func (r *Relay) UpdateTask(ctx context.Context, task domain.Task) error {
	return r.publish(ctx, &UpdateTaskCommand{Task: task})
}

func (r *Relay) LockTask(ctx context.Context, projectID, taskID string) error {
	return r.publish(ctx, &LockTaskCommand{ProjectID: projectID, TaskID: taskID})
}

func (r *Relay) RemoveTask(ctx context.Context, projectID, taskID string) error {
	return r.publish(ctx, &RemoveTaskCommand{ProjectID: projectID, TaskID: taskID})
}

func (r *Relay) CreateCertificateForHostname(ctx context.Context, hostname string, certificate domain.Certificate) error {
	return r.publish(ctx, &CreateCertificateCommand{Hostname: hostname, Certificate: certificate})
}
