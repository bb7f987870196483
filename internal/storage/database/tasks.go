package database

import (
	"context"

	"gorm.io/gorm"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func (s *Store) GetAllProjectTasksByID(ctx context.Context, projectID string) ([]domain.TaskView, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&projectRow{}).Where("id = ?", projectID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, storage.NewNotFoundError(storage.KindProject, projectID)
	}

	var rows []taskRow
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	tasks := make([]domain.TaskView, 0, len(rows))
	for i := range rows {
		task := rows[i].toDomain()
		tasks = append(tasks, domain.ToTaskView(&task))
	}
	return tasks, nil
}

func (s *Store) GetTaskByID(ctx context.Context, projectID, taskID string) (domain.Task, error) {
	var row taskRow
	err := s.db.WithContext(ctx).First(&row, "id = ? AND project_id = ?", taskID, projectID).Error
	if isNotFound(err) {
		return domain.Task{}, storage.NewNotFoundError(storage.KindTask, taskID)
	}
	if err != nil {
		return domain.Task{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) CreateTask(ctx context.Context, task domain.Task) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireConnectorTx(tx, task.ProjectID, task.ConnectorID); err != nil {
			return err
		}

		task.Locked = false
		row := taskFromDomain(task)
		return tx.Create(&row).Error
	})
	if err != nil {
		return err
	}

	task.Locked = false
	s.emit([]domain.Event{{
		ID:    task.ProjectID,
		Scope: domain.ScopeProject,
		Event: domain.TaskCreatedEvent{Task: domain.ToTaskView(&task)},
	}})
	return nil
}

// UpdateTask overwrites the task and always clears the lock, releasing the
// in-flight claim taken by LockTask.
func (s *Store) UpdateTask(ctx context.Context, task domain.Task) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&taskRow{}).
			Where("id = ? AND project_id = ?", task.ID, task.ProjectID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return storage.NewNotFoundError(storage.KindTask, task.ID)
		}

		task.Locked = false
		row := taskFromDomain(task)
		return tx.Save(&row).Error
	})
	if err != nil {
		return err
	}

	task.Locked = false
	s.emit([]domain.Event{{
		ID:    task.ProjectID,
		Scope: domain.ScopeProject,
		Event: domain.TaskUpdatedEvent{Task: domain.ToTaskView(&task)},
	}})
	return nil
}

// LockTask marks the task in flight. A vanished task is not an error: a
// concurrent remover may have won the race.
func (s *Store) LockTask(ctx context.Context, projectID, taskID string) error {
	return s.db.WithContext(ctx).Model(&taskRow{}).
		Where("id = ? AND project_id = ?", taskID, projectID).
		Update("locked", true).Error
}

func (s *Store) RemoveTask(ctx context.Context, projectID, taskID string) error {
	var view domain.TaskView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row taskRow
		err := tx.First(&row, "id = ? AND project_id = ?", taskID, projectID).Error
		if isNotFound(err) {
			return storage.NewNotFoundError(storage.KindTask, taskID)
		}
		if err != nil {
			return err
		}

		task := row.toDomain()
		view = domain.ToTaskView(&task)
		return tx.Delete(&taskRow{}, "id = ?", taskID).Error
	})
	if err != nil {
		return err
	}

	s.emit([]domain.Event{{
		ID:    projectID,
		Scope: domain.ScopeProject,
		Event: domain.TaskRemovedEvent{Task: view},
	}})
	return nil
}

func (s *Store) GetProjectRunningTaskCount(ctx context.Context, projectID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&taskRow{}).
		Where("project_id = ? AND running = ?", projectID, true).
		Count(&count).Error
	return int(count), err
}

// GetNextTaskToRefresh excludes locked rows so a concurrent poller cannot
// pick up a task already in flight elsewhere.
func (s *Store) GetNextTaskToRefresh(ctx context.Context, threshold int64) (domain.Task, error) {
	var row taskRow
	err := s.db.WithContext(ctx).
		Where("running = ? AND locked = ? AND next_retry_ts < ?", true, false, threshold).
		Order("next_retry_ts ASC, id ASC").
		First(&row).Error
	if isNotFound(err) {
		return domain.Task{}, storage.ErrNoTaskToRefresh
	}
	if err != nil {
		return domain.Task{}, err
	}
	return row.toDomain(), nil
}
