package domain

import (
	"encoding/json"
	"fmt"
)

type EventScope string

const (
	ScopeProject     EventScope = "project"
	ScopeProxies     EventScope = "proxies"
	ScopeFreeproxies EventScope = "freeproxies"
	ScopeMetrics     EventScope = "metrics"
	ScopeUser        EventScope = "user"
)

// AllScopes lists every scope a project namespace can exist under.
var AllScopes = []EventScope{
	ScopeProject,
	ScopeProxies,
	ScopeFreeproxies,
	ScopeMetrics,
}

// NamespaceKey derives the pub/sub key sessions subscribe to.
func NamespaceKey(scope EventScope, scopeID string) string {
	return string(scope) + "::" + scopeID
}

// EventPayload is implemented by every concrete event type.
type EventPayload interface {
	EventName() string
}

// Event is the envelope delivered to subscribed sessions. ID is the scope id
// (project id, or user id for user-scoped events).
type Event struct {
	ID    string       `json:"id"`
	Scope EventScope   `json:"scope"`
	Event EventPayload `json:"event"`
}

type wireEvent struct {
	ID      string          `json:"id"`
	Scope   EventScope      `json:"scope"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(e.Event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{
		ID:      e.ID,
		Scope:   e.Scope,
		Name:    e.Event.EventName(),
		Payload: payload,
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	factory, ok := eventRegistry[w.Name]
	if !ok {
		return fmt.Errorf("unknown event %q", w.Name)
	}

	payload := factory()
	if err := json.Unmarshal(w.Payload, payload); err != nil {
		return err
	}

	e.ID = w.ID
	e.Scope = w.Scope
	e.Event = payload
	return nil
}

var eventRegistry = map[string]func() EventPayload{}

func registerEvent(name string, factory func() EventPayload) {
	eventRegistry[name] = factory
}

type UserUpdatedEvent struct {
	User UserView `json:"user"`
}

type ProjectUpdatedEvent struct {
	Project ProjectData `json:"project"`
}

type ProjectRemovedEvent struct {
	Project ProjectView `json:"project"`
}

type ProjectUserAddedEvent struct {
	Link ProjectUserLink `json:"link"`
}

type ProjectUserRemovedEvent struct {
	Link ProjectUserLink `json:"link"`
}

type ProjectMetricsAddedEvent struct {
	Metrics ProjectMetricsAdd `json:"metrics"`
}

type CredentialCreatedEvent struct {
	Credential CredentialView `json:"credential"`
}

type CredentialUpdatedEvent struct {
	Credential CredentialView `json:"credential"`
}

type CredentialRemovedEvent struct {
	Credential CredentialView `json:"credential"`
}

type ConnectorCreatedEvent struct {
	Connector ConnectorView `json:"connector"`
}

type ConnectorUpdatedEvent struct {
	Connector ConnectorView `json:"connector"`
}

type ConnectorRemovedEvent struct {
	Connector ConnectorView `json:"connector"`
}

type ProxiesSynchronizedEvent struct {
	ProjectID string      `json:"projectId"`
	Created   []ProxyView `json:"created"`
	Updated   []ProxyView `json:"updated"`
	Removed   []string    `json:"removed"`
}

type ProxiesMetricsAddedEvent struct {
	ProjectID string            `json:"projectId"`
	Proxies   []ProxyMetricsAdd `json:"proxies"`
}

type FreeproxiesCreatedEvent struct {
	ProjectID   string      `json:"projectId"`
	Freeproxies []Freeproxy `json:"freeproxies"`
}

type FreeproxiesSynchronizedEvent struct {
	ProjectID string      `json:"projectId"`
	Updated   []Freeproxy `json:"updated"`
	Removed   []string    `json:"removed"`
}

type SourcesCreatedEvent struct {
	ProjectID string   `json:"projectId"`
	Sources   []Source `json:"sources"`
}

type SourcesUpdatedEvent struct {
	ProjectID string   `json:"projectId"`
	Sources   []Source `json:"sources"`
}

type SourcesRemovedEvent struct {
	ProjectID string   `json:"projectId"`
	SourceIDs []string `json:"sourceIds"`
}

type TaskCreatedEvent struct {
	Task TaskView `json:"task"`
}

type TaskUpdatedEvent struct {
	Task TaskView `json:"task"`
}

type TaskRemovedEvent struct {
	Task TaskView `json:"task"`
}

func (UserUpdatedEvent) EventName() string             { return "user_updated" }
func (ProjectUpdatedEvent) EventName() string          { return "project_updated" }
func (ProjectRemovedEvent) EventName() string          { return "project_removed" }
func (ProjectUserAddedEvent) EventName() string        { return "project_user_added" }
func (ProjectUserRemovedEvent) EventName() string      { return "project_user_removed" }
func (ProjectMetricsAddedEvent) EventName() string     { return "project_metrics_added" }
func (CredentialCreatedEvent) EventName() string       { return "credential_created" }
func (CredentialUpdatedEvent) EventName() string       { return "credential_updated" }
func (CredentialRemovedEvent) EventName() string       { return "credential_removed" }
func (ConnectorCreatedEvent) EventName() string        { return "connector_created" }
func (ConnectorUpdatedEvent) EventName() string        { return "connector_updated" }
func (ConnectorRemovedEvent) EventName() string        { return "connector_removed" }
func (ProxiesSynchronizedEvent) EventName() string     { return "proxies_synchronized" }
func (ProxiesMetricsAddedEvent) EventName() string     { return "proxies_metrics_added" }
func (FreeproxiesCreatedEvent) EventName() string      { return "freeproxies_created" }
func (FreeproxiesSynchronizedEvent) EventName() string { return "freeproxies_synchronized" }
func (SourcesCreatedEvent) EventName() string          { return "sources_created" }
func (SourcesUpdatedEvent) EventName() string          { return "sources_updated" }
func (SourcesRemovedEvent) EventName() string          { return "sources_removed" }
func (TaskCreatedEvent) EventName() string             { return "task_created" }
func (TaskUpdatedEvent) EventName() string             { return "task_updated" }
func (TaskRemovedEvent) EventName() string             { return "task_removed" }

func init() {
	registerEvent(UserUpdatedEvent{}.EventName(), func() EventPayload { return &UserUpdatedEvent{} })
	registerEvent(ProjectUpdatedEvent{}.EventName(), func() EventPayload { return &ProjectUpdatedEvent{} })
	registerEvent(ProjectRemovedEvent{}.EventName(), func() EventPayload { return &ProjectRemovedEvent{} })
	registerEvent(ProjectUserAddedEvent{}.EventName(), func() EventPayload { return &ProjectUserAddedEvent{} })
	registerEvent(ProjectUserRemovedEvent{}.EventName(), func() EventPayload { return &ProjectUserRemovedEvent{} })
	registerEvent(ProjectMetricsAddedEvent{}.EventName(), func() EventPayload { return &ProjectMetricsAddedEvent{} })
	registerEvent(CredentialCreatedEvent{}.EventName(), func() EventPayload { return &CredentialCreatedEvent{} })
	registerEvent(CredentialUpdatedEvent{}.EventName(), func() EventPayload { return &CredentialUpdatedEvent{} })
	registerEvent(CredentialRemovedEvent{}.EventName(), func() EventPayload { return &CredentialRemovedEvent{} })
	registerEvent(ConnectorCreatedEvent{}.EventName(), func() EventPayload { return &ConnectorCreatedEvent{} })
	registerEvent(ConnectorUpdatedEvent{}.EventName(), func() EventPayload { return &ConnectorUpdatedEvent{} })
	registerEvent(ConnectorRemovedEvent{}.EventName(), func() EventPayload { return &ConnectorRemovedEvent{} })
	registerEvent(ProxiesSynchronizedEvent{}.EventName(), func() EventPayload { return &ProxiesSynchronizedEvent{} })
	registerEvent(ProxiesMetricsAddedEvent{}.EventName(), func() EventPayload { return &ProxiesMetricsAddedEvent{} })
	registerEvent(FreeproxiesCreatedEvent{}.EventName(), func() EventPayload { return &FreeproxiesCreatedEvent{} })
	registerEvent(FreeproxiesSynchronizedEvent{}.EventName(), func() EventPayload { return &FreeproxiesSynchronizedEvent{} })
	registerEvent(SourcesCreatedEvent{}.EventName(), func() EventPayload { return &SourcesCreatedEvent{} })
	registerEvent(SourcesUpdatedEvent{}.EventName(), func() EventPayload { return &SourcesUpdatedEvent{} })
	registerEvent(SourcesRemovedEvent{}.EventName(), func() EventPayload { return &SourcesRemovedEvent{} })
	registerEvent(TaskCreatedEvent{}.EventName(), func() EventPayload { return &TaskCreatedEvent{} })
	registerEvent(TaskUpdatedEvent{}.EventName(), func() EventPayload { return &TaskUpdatedEvent{} })
	registerEvent(TaskRemovedEvent{}.EventName(), func() EventPayload { return &TaskRemovedEvent{} })
}
