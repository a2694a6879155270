package service

import (
	"context"
	"strings"

	"echosphere/internal/mirror"
	"echosphere/internal/model"
	"echosphere/internal/pkg/auth"
	"echosphere/internal/replication"
	"echosphere/internal/repository"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/gorm"
)

type userService struct {
	repos  repository.Repositories
	w      dualWriter
	tokens *auth.TokenManager
}

// NewUserService returns the account service; tokens signs login sessions.
func NewUserService(repos repository.Repositories, uow repository.UnitOfWork, repl replication.Replicator, tokens *auth.TokenManager) UserService {
	return &userService{repos: repos, w: dualWriter{uow: uow, repl: repl}, tokens: tokens}
}

func (s *userService) Signup(ctx context.Context, name, email, password string) (*model.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return nil, newError(ErrValidation, "Username, email and password are required")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash password")
	}

	user := &model.User{Name: name, Email: email, Password: hash}
	err = s.w.write(ctx, msgInternal, func(r repository.Repositories) ([]mirror.Op, error) {
		exists, err := r.Users.EmailExists(ctx, email)
		if err != nil {
			return nil, errors.Wrap(err, "failed to check email")
		}
		if exists {
			return nil, newError(ErrValidation, "User already exists")
		}
		if err := r.Users.Create(ctx, user); err != nil {
			return nil, errors.Wrap(err, "failed to create user")
		}
		return []mirror.Op{mirrorUser(user)}, nil
	})
	if err := bestEffort(err, user.ID); err != nil {
		return nil, err
	}

	user.SanitizePassword()
	return user, nil
}

func (s *userService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", nil, newError(ErrValidation, "Email and password are required")
	}

	user, err := s.repos.Users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, newError(ErrUnauthorized, "Invalid email or password")
		}
		return "", nil, errors.Wrap(err, "failed to look up user")
	}
	if !auth.CheckPasswordHash(password, user.Password) {
		return "", nil, newError(ErrUnauthorized, "Invalid email or password")
	}

	token, err := s.tokens.GenerateToken(user.ID)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to issue token")
	}

	user.SanitizePassword()
	return token, user, nil
}

func (s *userService) GetUser(ctx context.Context, id uint) (*model.User, error) {
	if id == 0 {
		return nil, newError(ErrValidation, "Invalid user ID")
	}

	user, err := s.repos.Users.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "User not found")
	}

	user.SanitizePassword()
	return user, nil
}

func (s *userService) Search(ctx context.Context, keyword string) ([]model.UserSummary, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, newError(ErrValidation, "Search keyword is required")
	}

	users, err := s.repos.Users.Search(ctx, keyword)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search users")
	}

	out := make([]model.UserSummary, 0, len(users))
	for i := range users {
		out = append(out, users[i].Summary())
	}
	return out, nil
}

func (s *userService) UpdateProfile(ctx context.Context, callerID uint, name, bio string) (*model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, newError(ErrValidation, "Name is required")
	}

	var user *model.User
	err := s.w.write(ctx, msgInternal, func(r repository.Repositories) ([]mirror.Op, error) {
		if err := r.Users.UpdateName(ctx, callerID, name); err != nil {
			return nil, lookupError(err, "User not found")
		}
		if err := r.Users.UpdateBio(ctx, callerID, bio); err != nil {
			return nil, errors.Wrap(err, "failed to update bio")
		}

		var err error
		if user, err = r.Users.FindByID(ctx, callerID); err != nil {
			return nil, errors.Wrap(err, "failed to reload user")
		}
		return []mirror.Op{mirrorUser(user)}, nil
	})
	if err := bestEffort(err, callerID); err != nil {
		return nil, err
	}

	user.SanitizePassword()
	return user, nil
}

func mirrorUser(user *model.User) mirror.Op {
	return mirror.SetOp(mirror.Path(model.MirrorUsers, user.ID), model.MirrorUser{ID: user.ID, Name: user.Name})
}

// bestEffort swallows mirror failures for user documents; they only feed
// display names to subscribers.
func bestEffort(err error, userID uint) error {
	if err != nil && errors.Is(err, ErrMirror) {
		jww.WARN.Printf("failed to mirror user %d: %+v", userID, err)
		return nil
	}
	return err
}
