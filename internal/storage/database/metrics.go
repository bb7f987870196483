package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func (s *Store) GetAllProjectsMetrics(ctx context.Context) ([]domain.ProjectMetrics, error) {
	var rows []projectRow
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	metrics := make([]domain.ProjectMetrics, 0, len(rows))
	for i := range rows {
		windows, err := s.projectWindows(ctx, rows[i].ID)
		if err != nil {
			return nil, err
		}
		project := rows[i].toDomain(nil)
		metrics = append(metrics, domain.ProjectMetrics{
			Project: domain.ToProjectMetricsView(&project),
			Windows: windows,
		})
	}
	return metrics, nil
}

func (s *Store) GetProjectMetricsByID(ctx context.Context, projectID string) (domain.ProjectMetrics, error) {
	var row projectRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", projectID).Error
	if isNotFound(err) {
		return domain.ProjectMetrics{}, storage.NewNotFoundError(storage.KindProject, projectID)
	}
	if err != nil {
		return domain.ProjectMetrics{}, err
	}

	windows, err := s.projectWindows(ctx, projectID)
	if err != nil {
		return domain.ProjectMetrics{}, err
	}
	project := row.toDomain(nil)
	return domain.ProjectMetrics{
		Project: domain.ToProjectMetricsView(&project),
		Windows: windows,
	}, nil
}

// AddProjectsMetrics applies pre-aggregated deltas with += semantics. Unknown
// projects are skipped; an unknown window fails the whole batch.
func (s *Store) AddProjectsMetrics(ctx context.Context, adds []domain.ProjectMetricsAdd) error {
	events := []domain.Event{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, add := range adds {
			var row projectRow
			err := tx.First(&row, "id = ?", add.Project.ID).Error
			if isNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}

			delta := add.Project
			row.Requests += delta.Requests
			row.Stops += delta.Stops
			row.ProxiesCreated += delta.ProxiesCreated
			row.ProxiesRemoved += delta.ProxiesRemoved
			if delta.BytesReceived != 0 {
				row.BytesReceived += delta.BytesReceived
				row.BytesReceivedRate = delta.BytesReceived
			}
			if delta.BytesSent != 0 {
				row.BytesSent += delta.BytesSent
				row.BytesSentRate = delta.BytesSent
			}
			if delta.Snapshot != nil {
				row.Snapshot.Add(*delta.Snapshot)
			}
			if delta.RequestsBeforeStop != nil {
				row.RequestsBeforeStop.Add(*delta.RequestsBeforeStop)
			}
			if delta.UptimeBeforeStop != nil {
				row.UptimeBeforeStop.Add(*delta.UptimeBeforeStop)
			}
			if err := tx.Save(&row).Error; err != nil {
				return err
			}

			for _, windowDelta := range add.Windows {
				var wrow windowRow
				err := tx.First(&wrow, "id = ? AND project_id = ?", windowDelta.ID, add.Project.ID).Error
				if isNotFound(err) {
					return storage.NewInconsistencyDataError(
						"window %s does not belong to project %s", windowDelta.ID, add.Project.ID)
				}
				if err != nil {
					return err
				}

				wrow.Count += windowDelta.Count
				wrow.Requests += windowDelta.Requests
				wrow.Stops += windowDelta.Stops
				wrow.BytesReceived += windowDelta.BytesReceived
				wrow.BytesSent += windowDelta.BytesSent

				if windowDelta.Snapshot != nil {
					wrow.Snapshots = append(wrow.Snapshots, *windowDelta.Snapshot)
					for len(wrow.Snapshots) > wrow.Size {
						wrow.Snapshots = wrow.Snapshots[1:]
					}
				}
				if err := tx.Save(&wrow).Error; err != nil {
					return err
				}
			}

			events = append(events, domain.Event{
				ID:    add.Project.ID,
				Scope: domain.ScopeMetrics,
				Event: domain.ProjectMetricsAddedEvent{Metrics: add},
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.emit(events)
	return nil
}

func (s *Store) projectWindows(ctx context.Context, projectID string) ([]domain.Window, error) {
	var rows []windowRow
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("delay ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	windows := make([]domain.Window, 0, len(rows))
	for i := range rows {
		windows = append(windows, rows[i].toDomain())
	}
	return windows, nil
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
