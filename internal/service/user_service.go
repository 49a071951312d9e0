package service

import (
	"context"
	"strings"

	"studiodesk/internal/cache"
	"studiodesk/internal/middleware"
	"studiodesk/internal/models"
	"studiodesk/internal/repository"
	"studiodesk/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	userRepo  repository.UserRepository
	jwtSecret string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func NewUserService(userRepo repository.UserRepository, jwtSecret string) *UserService {
	return &UserService{userRepo: userRepo, jwtSecret: jwtSecret}
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// UsernameStatus reports whether the user finished username setup.
func (s *UserService) UsernameStatus(ctx context.Context, userID uint) (*models.UsernameStatus, error) {
	return cache.Aside(ctx, cache.UsernameKey(userID), cache.UsernameTTL, func(ctx context.Context) (*models.UsernameStatus, error) {
		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		status := &models.UsernameStatus{HasUsername: user.HasUsername()}
		if status.HasUsername {
			status.Username = *user.Username
		}
		return status, nil
	})
}

// SetUsername claims a username for a user who has none. Repeating the
// user's current username is a no-op.
func (s *UserService) SetUsername(ctx context.Context, userID uint, raw string) (*models.UsernameStatus, error) {
	name := validation.NormalizeUsername(raw)
	if err := validation.ValidateUsername(name); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.HasUsername() {
		if *user.Username == name {
			return &models.UsernameStatus{HasUsername: true, Username: name}, nil
		}
		return nil, models.NewConflictError("Username is already set")
	}

	existing, err := s.userRepo.GetByUsername(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError("Username is already taken")
	}

	if err := s.userRepo.SetUsername(ctx, userID, name); err != nil {
		return nil, err
	}
	cache.Invalidate(ctx, cache.UsernameKey(userID))
	return &models.UsernameStatus{HasUsername: true, Username: name}, nil
}

// Login checks credentials and issues an access token.
func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.NewValidationError("Email and password are required")
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}

	token, err := middleware.IssueToken(s.jwtSecret, user.ID, user.Handle(), middleware.DefaultTokenTTL)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &LoginResult{Token: token, User: user}, nil
}

func (s *UserService) SetAdmin(ctx context.Context, targetID uint, isAdmin bool) (*models.User, error) {
	if err := s.userRepo.SetAdmin(ctx, targetID, isAdmin); err != nil {
		return nil, err
	}
	return s.userRepo.GetByID(ctx, targetID)
}

func (s *UserService) ListAdmins(ctx context.Context) ([]models.User, error) {
	return s.userRepo.ListAdmins(ctx)
}

// IsAdmin is used by the admin middleware.
func (s *UserService) IsAdmin(ctx context.Context, userID uint) (bool, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.IsAdmin, nil
}
