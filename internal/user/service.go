package user

import (
	"context"
	"errors"
	"fmt"

	"task_tracker/internal/apperr"
	"task_tracker/internal/auth"
	"task_tracker/internal/cache"
	"task_tracker/internal/observability"

	"github.com/sirupsen/logrus"
)

type UserService struct {
	repo    UserRepositoryInterface
	hasher  auth.PasswordHasher
	tokens  *auth.TokenService
	cache   cache.Cache
	metrics *observability.Metrics

	// digest verified against when the username is unknown, so both login
	// failures cost one bcrypt comparison
	dummyDigest string
}

type UserServiceInterface interface {
	Signup(ctx context.Context, username, password string) (*User, error)
	Login(ctx context.Context, username, password string) (*auth.AccessToken, error)
	GetUserByID(ctx context.Context, id int) (*User, error)
	Exists(ctx context.Context, id int) (bool, error)
	DeleteUser(ctx context.Context, id int) error
}

func NewUserService(
	repo UserRepositoryInterface,
	hasher auth.PasswordHasher,
	tokens *auth.TokenService,
	taskCache cache.Cache,
	metrics *observability.Metrics,
) (*UserService, error) {
	dummyDigest, err := hasher.Hash("timing-equalizer")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy password digest: %w", err)
	}

	return &UserService{
		repo:        repo,
		hasher:      hasher,
		tokens:      tokens,
		cache:       taskCache,
		metrics:     metrics,
		dummyDigest: dummyDigest,
	}, nil
}

// Signup hashes the password and inserts the user. Uniqueness is left to the
// store; there is no lookup beforehand.
func (s *UserService) Signup(ctx context.Context, username, password string) (*User, error) {
	hashedPassword, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, &User{
		Username: username,
		Password: hashedPassword,
	})
	if err != nil {
		return nil, err
	}

	s.metrics.SignupsTotal.Inc()
	return user, nil
}

// Login returns apperr.ErrInvalidCredentials for an unknown username and for
// a wrong password alike. An unknown username still pays for one hash
// comparison.
func (s *UserService) Login(ctx context.Context, username, password string) (*auth.AccessToken, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		s.hasher.Verify(password, s.dummyDigest)
		s.metrics.LoginsTotal.WithLabelValues("rejected").Inc()
		return nil, apperr.ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, user.Password) {
		s.metrics.LoginsTotal.WithLabelValues("rejected").Inc()
		return nil, apperr.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}

	s.metrics.LoginsTotal.WithLabelValues("success").Inc()
	logrus.WithField("user_id", user.ID).Info("User logged in")
	return token, nil
}

func (s *UserService) GetUserByID(ctx context.Context, id int) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) Exists(ctx context.Context, id int) (bool, error) {
	return s.repo.Exists(ctx, id)
}

// DeleteUser removes the user together with all of its tasks, then drops the
// user's cached task reads.
func (s *UserService) DeleteUser(ctx context.Context, id int) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if err := s.cache.InvalidateUser(ctx, id); err != nil {
		logrus.WithError(err).WithField("user_id", id).Warn("Failed to invalidate task cache for deleted user")
	}
	return nil
}
