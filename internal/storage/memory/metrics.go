package memory

import (
	"context"
	"slices"
	"time"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func (s *Store) GetAllProjectsMetrics(ctx context.Context) ([]domain.ProjectMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := []domain.ProjectMetrics{}
	for _, project := range s.projects {
		metrics = append(metrics, domain.ProjectMetrics{
			Project: domain.ToProjectMetricsView(project),
			Windows: s.windowsOfProject(project.ID),
		})
	}

	slices.SortFunc(metrics, func(a, b domain.ProjectMetrics) int {
		switch {
		case a.Project.ID < b.Project.ID:
			return -1
		case a.Project.ID > b.Project.ID:
			return 1
		default:
			return 0
		}
	})
	return metrics, nil
}

func (s *Store) GetProjectMetricsByID(ctx context.Context, projectID string) (domain.ProjectMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project, ok := s.projects[projectID]
	if !ok {
		return domain.ProjectMetrics{}, storage.NewNotFoundError(storage.KindProject, projectID)
	}
	return domain.ProjectMetrics{
		Project: domain.ToProjectMetricsView(project),
		Windows: s.windowsOfProject(projectID),
	}, nil
}

// AddProjectsMetrics applies pre-aggregated deltas with += semantics. Unknown
// projects are skipped; an unknown window is an inconsistency the store
// should have made impossible and fails the call.
func (s *Store) AddProjectsMetrics(ctx context.Context, adds []domain.ProjectMetricsAdd) error {
	s.mu.Lock()

	events := make([]domain.Event, 0, len(adds))
	for _, add := range adds {
		project, ok := s.projects[add.Project.ID]
		if !ok {
			continue
		}

		delta := add.Project
		project.Requests += delta.Requests
		project.Stops += delta.Stops
		project.ProxiesCreated += delta.ProxiesCreated
		project.ProxiesRemoved += delta.ProxiesRemoved
		if delta.BytesReceived != 0 {
			project.BytesReceived += delta.BytesReceived
			project.BytesReceivedRate = delta.BytesReceived
		}
		if delta.BytesSent != 0 {
			project.BytesSent += delta.BytesSent
			project.BytesSentRate = delta.BytesSent
		}
		if delta.Snapshot != nil {
			project.Snapshot.Add(*delta.Snapshot)
		}
		if delta.RequestsBeforeStop != nil {
			project.RequestsBeforeStop.Add(*delta.RequestsBeforeStop)
		}
		if delta.UptimeBeforeStop != nil {
			project.UptimeBeforeStop.Add(*delta.UptimeBeforeStop)
		}

		for _, windowDelta := range add.Windows {
			window, exists := s.windows[add.Project.ID][windowDelta.ID]
			if !exists {
				s.mu.Unlock()
				return storage.NewInconsistencyDataError(
					"window %s does not belong to project %s", windowDelta.ID, add.Project.ID)
			}

			window.Count += windowDelta.Count
			window.Requests += windowDelta.Requests
			window.Stops += windowDelta.Stops
			window.BytesReceived += windowDelta.BytesReceived
			window.BytesSent += windowDelta.BytesSent

			if windowDelta.Snapshot != nil {
				window.Snapshots = append(window.Snapshots, *windowDelta.Snapshot)
				for len(window.Snapshots) > window.Size {
					window.Snapshots = window.Snapshots[1:]
				}
			}
		}

		events = append(events, domain.Event{
			ID:    add.Project.ID,
			Scope: domain.ScopeMetrics,
			Event: domain.ProjectMetricsAddedEvent{Metrics: add},
		})
	}
	s.mu.Unlock()

	s.emit(events)
	return nil
}

// windowsOfProject copies the project's windows for a read. Callers hold at
// least the read lock.
func (s *Store) windowsOfProject(projectID string) []domain.Window {
	windows := []domain.Window{}
	for _, window := range s.windows[projectID] {
		copied := *window
		copied.Snapshots = slices.Clone(window.Snapshots)
		windows = append(windows, copied)
	}

	slices.SortFunc(windows, func(a, b domain.Window) int {
		switch {
		case a.Delay < b.Delay:
			return -1
		case a.Delay > b.Delay:
			return 1
		default:
			return 0
		}
	})
	return windows
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
