package domain

import "encoding/json"

// Task is a multi-step provisioning job. Cancellation is cooperative: setting
// Cancelled only flags intent, the worker must observe it and stop. Locked
// marks a task currently in flight on some instance; UpdateTask always clears
// it.
type Task struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"projectId"`
	ConnectorID string          `json:"connectorId"`
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Running     bool            `json:"running"`
	Cancelled   bool            `json:"cancelled"`
	StepCurrent int             `json:"stepCurrent"`
	StepMax     int             `json:"stepMax"`
	Message     string          `json:"message"`
	StartAtTs   int64           `json:"startAtTs"`
	EndAtTs     *int64          `json:"endAtTs"`
	NextRetryTs int64           `json:"nextRetryTs"`
	Locked      bool            `json:"locked"`
	JWTToken    string          `json:"jwtToken"`
	Data        json.RawMessage `json:"data"`
}

type TaskView struct {
	ID          string `json:"id"`
	ProjectID   string `json:"projectId"`
	ConnectorID string `json:"connectorId"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Running     bool   `json:"running"`
	Cancelled   bool   `json:"cancelled"`
	StepCurrent int    `json:"stepCurrent"`
	StepMax     int    `json:"stepMax"`
	Message     string `json:"message"`
	StartAtTs   int64  `json:"startAtTs"`
	EndAtTs     *int64 `json:"endAtTs"`
	NextRetryTs int64  `json:"nextRetryTs"`
}

func ToTaskView(t *Task) TaskView {
	return TaskView{
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
	}
}
