package memory

import (
	"context"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func (s *Store) GetAllProjectTasksByID(ctx context.Context, projectID string) ([]domain.TaskView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.projects[projectID]; !ok {
		return nil, storage.NewNotFoundError(storage.KindProject, projectID)
	}

	tasks := []domain.TaskView{}
	for taskID := range s.tasksByProject[projectID] {
		tasks = append(tasks, domain.ToTaskView(s.tasks[taskID]))
	}
	sortByID(tasks, func(t domain.TaskView) string { return t.ID })
	return tasks, nil
}

func (s *Store) GetTaskByID(ctx context.Context, projectID, taskID string) (domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[taskID]
	if !ok || task.ProjectID != projectID {
		return domain.Task{}, storage.NewNotFoundError(storage.KindTask, taskID)
	}
	return *task, nil
}

func (s *Store) CreateTask(ctx context.Context, task domain.Task) error {
	s.mu.Lock()

	if err := s.requireConnectorLocked(task.ProjectID, task.ConnectorID); err != nil {
		s.mu.Unlock()
		return err
	}

	task.Locked = false
	s.tasks[task.ID] = &task
	addIndex(s.tasksByProject, task.ProjectID, task.ID)
	s.mu.Unlock()

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
	s.mu.Lock()

	existing, ok := s.tasks[task.ID]
	if !ok || existing.ProjectID != task.ProjectID {
		s.mu.Unlock()
		return storage.NewNotFoundError(storage.KindTask, task.ID)
	}

	task.Locked = false
	s.tasks[task.ID] = &task
	s.mu.Unlock()

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
	s.mu.Lock()
	defer s.mu.Unlock()

	if task, ok := s.tasks[taskID]; ok && task.ProjectID == projectID {
		task.Locked = true
	}
	return nil
}

func (s *Store) RemoveTask(ctx context.Context, projectID, taskID string) error {
	s.mu.Lock()

	task, ok := s.tasks[taskID]
	if !ok || task.ProjectID != projectID {
		s.mu.Unlock()
		return storage.NewNotFoundError(storage.KindTask, taskID)
	}

	view := domain.ToTaskView(task)
	delete(s.tasks, taskID)
	removeIndex(s.tasksByProject, projectID, taskID)
	s.mu.Unlock()

	s.emit([]domain.Event{{
		ID:    projectID,
		Scope: domain.ScopeProject,
		Event: domain.TaskRemovedEvent{Task: view},
	}})
	return nil
}

func (s *Store) GetProjectRunningTaskCount(ctx context.Context, projectID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for taskID := range s.tasksByProject[projectID] {
		if s.tasks[taskID].Running {
			count++
		}
	}
	return count, nil
}

// GetNextTaskToRefresh excludes locked rows so a concurrent poller cannot
// pick up a task already in flight elsewhere.
func (s *Store) GetNextTaskToRefresh(ctx context.Context, threshold int64) (domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next *domain.Task
	for _, task := range s.tasks {
		if !task.Running || task.Locked || task.NextRetryTs >= threshold {
			continue
		}
		if next == nil || task.NextRetryTs < next.NextRetryTs ||
			(task.NextRetryTs == next.NextRetryTs && task.ID < next.ID) {
			next = task
		}
	}
	if next == nil {
		return domain.Task{}, storage.ErrNoTaskToRefresh
	}
	return *next, nil
}
