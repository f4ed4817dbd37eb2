package task

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sirupsen/logrus"
)

// ErrTaskNotFound is returned when no row matches both the task id and the
// owner id. A task owned by somebody else is indistinguishable from a
// missing one.
var ErrTaskNotFound = errors.New("task not found")

type TaskRepository struct {
	db *sql.DB
}

// Every method takes the owner id and filters on it in SQL.
type TaskRepositoryInterface interface {
	Create(ctx context.Context, task *Task) (*Task, error)
	ListByOwner(ctx context.Context, ownerID int) ([]*Task, error)
	GetByID(ctx context.Context, ownerID, id int) (*Task, error)
	UpdateStatus(ctx context.Context, ownerID, id int, status Status) (*Task, error)
	Delete(ctx context.Context, ownerID, id int) error
}

func NewTaskRepository(db *sql.DB) TaskRepositoryInterface {
	return &TaskRepository{db: db}
}

const taskColumns = `id, user_id, title, description, status, created_at`

func (r *TaskRepository) Create(
	ctx context.Context,
	task *Task,
) (*Task, error) {
	query := `
		INSERT INTO tasks (
			user_id, title, description, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + taskColumns

	created, err := scanTask(r.db.QueryRowContext(ctx, query,
		task.UserID,
		task.Title,
		task.Description,
		task.Status,
		task.CreatedAt,
	))
	if err != nil {
		logrus.WithError(err).WithField("user_id", task.UserID).Error("Failed to create task")
		return nil, err
	}

	return created, nil
}

func (r *TaskRepository) ListByOwner(
	ctx context.Context,
	ownerID int,
) ([]*Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE user_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]*Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			logrus.WithError(err).Error("Error scanning task row")
			return nil, err
		}
		tasks = append(tasks, t)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return tasks, nil
}

func (r *TaskRepository) GetByID(
	ctx context.Context,
	ownerID, id int,
) (*Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE id = $1 AND user_id = $2
	`

	t, err := scanTask(r.db.QueryRowContext(ctx, query, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	return t, err
}

func (r *TaskRepository) UpdateStatus(
	ctx context.Context,
	ownerID, id int,
	status Status,
) (*Task, error) {
	query := `
		UPDATE tasks
		SET status = $1
		WHERE id = $2 AND user_id = $3
		RETURNING ` + taskColumns

	t, err := scanTask(r.db.QueryRowContext(ctx, query, status, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		logrus.WithError(err).WithField("task_id", id).Error("Failed to update task status")
		return nil, err
	}
	return t, nil
}

func (r *TaskRepository) Delete(
	ctx context.Context,
	ownerID, id int,
) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		logrus.WithError(err).WithField("task_id", id).Error("Failed to delete task")
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.Description,
		&t.Status,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}
