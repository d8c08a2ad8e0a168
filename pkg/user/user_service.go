package user

import (
	"context"
	"fmt"
)

type Service interface {
	GetCurrentUser(ctx context.Context) (User, error)
	CreateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, id int) (User, error)
	GetAllUsers(ctx context.Context) ([]User, error)
}

type ServiceImpl struct {
	repo Repo
}

func NewService(repo Repo) *ServiceImpl {
	return &ServiceImpl{repo: repo}
}

func (s *ServiceImpl) GetCurrentUser(ctx context.Context) (User, error) {
	userId, err := CurrentId(ctx)
	if err != nil {
		return User{}, fmt.Errorf("failed to get current user: %w", err)
	}
	return s.GetUser(ctx, userId)
}

func (s *ServiceImpl) CreateUser(ctx context.Context, user User) (User, error) {
	if user.Timezone == "" {
		user.Timezone = "UTC"
	}
	id, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		return User{}, err
	}
	user.Id = id
	return user, nil
}

func (s *ServiceImpl) GetUser(ctx context.Context, id int) (User, error) {
	return s.repo.GetUser(ctx, id)
}

func (s *ServiceImpl) GetAllUsers(ctx context.Context) ([]User, error) {
	return s.repo.GetAllUsers(ctx)
}
