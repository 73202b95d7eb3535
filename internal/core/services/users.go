package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"livechat/internal/core/domain"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	repo domain.UserRepository
	log  *slog.Logger
}

func NewUserService(log *slog.Logger, repo domain.UserRepository) *UserService {
	return &UserService{log: log, repo: repo}
}

func (s *UserService) Register(ctx context.Context, username, password string) (*domain.User, error) {
	if username == "" || len(password) < 8 {
		return nil, domain.ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &domain.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		s.log.ErrorContext(ctx, "users - register - create failed", "username", username, "err", err)
		return nil, err
	}
	s.log.InfoContext(ctx, "users - register - created", "user_id", u.ID)
	return u, nil
}

func (s *UserService) Login(ctx context.Context, username, password string) (*domain.User, error) {
	u, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return u, nil
}
