package user

import (
	"context"
	"database/sql"
	"errors"

	"task_tracker/internal/apperr"
	"task_tracker/internal/utils"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

// SQLSTATE for unique_violation.
const uniqueViolation = "23505"

var ErrUserNotFound = errors.New("user not found")

type UserRepository struct {
	db *sql.DB
}

type UserRepositoryInterface interface {
	Create(ctx context.Context, user *User) (*User, error)
	GetByID(ctx context.Context, id int) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Exists(ctx context.Context, id int) (bool, error)
	Delete(ctx context.Context, id int) error
}

func NewUserRepository(db *sql.DB) UserRepositoryInterface {
	return &UserRepository{db: db}
}

// Create inserts the user. The username uniqueness constraint is enforced by
// the database, so concurrent signups for one name resolve to one row; the
// losers get apperr.ErrUsernameTaken.
func (r *UserRepository) Create(ctx context.Context, user *User) (*User, error) {
	query := `
		INSERT INTO users (
			username, password, created_at
		)
		VALUES ($1, $2, NOW())
		RETURNING id, created_at
	`

	created := &User{Username: user.Username, Password: user.Password}
	err := r.db.QueryRowContext(ctx, query,
		user.Username,
		user.Password,
	).Scan(&created.ID, &created.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			logrus.WithField("username", user.Username).Info("Signup rejected, username taken")
			return nil, apperr.ErrUsernameTaken
		}
		logrus.WithError(err).Error("Failed to create user")
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  created.ID,
		"username": created.Username,
	}).Info("User created successfully")

	return created, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int) (*User, error) {
	query := `
		SELECT id, username, password, created_at
		FROM users
		WHERE id = $1
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, id), logrus.Fields{"user_id": id})
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	query := `
		SELECT id, username, password, created_at
		FROM users
		WHERE username = $1
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, username), logrus.Fields{"username": username})
}

func (r *UserRepository) Exists(ctx context.Context, id int) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		logrus.WithError(err).Error("Failed to check user existence")
		return false, err
	}
	return exists, nil
}

// Delete removes the user and every task it owns in one transaction. The
// foreign key cascades as well; deleting tasks first keeps the behaviour
// independent of the schema.
func (r *UserRepository) Delete(ctx context.Context, id int) error {
	var removedTasks int64

	err := utils.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = $1`, id)
		if err != nil {
			return err
		}
		if removedTasks, err = res.RowsAffected(); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			logrus.WithError(err).WithField("user_id", id).Error("Failed to delete user")
		}
		return err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":       id,
		"removed_tasks": removedTasks,
	}).Info("User deleted")
	return nil
}

func (r *UserRepository) scanOne(row *sql.Row, fields logrus.Fields) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Password,
		&user.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			logrus.WithFields(fields).Debug("User not found")
			return nil, ErrUserNotFound
		}
		logrus.WithError(err).WithFields(fields).Error("Failed to get user")
		return nil, err
	}

	return user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
