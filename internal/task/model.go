package task

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}

type Task struct {
	ID          int       `json:"id"`
	UserID      int       `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type EventType string

const (
	EventCreated       EventType = "task.created"
	EventStatusChanged EventType = "task.status_changed"
	EventDeleted       EventType = "task.deleted"
)

// Event is published after a task write has been committed.
type Event struct {
	Type       EventType `json:"type"`
	TaskID     int       `json:"task_id"`
	UserID     int       `json:"user_id"`
	Status     Status    `json:"status,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
