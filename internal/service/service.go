// Package service はリポジトリへの委譲だけを行うサービス層です。
package service

import (
	"context"

	"github.com/yourusername/club-portal/internal/club"
	"github.com/yourusername/club-portal/internal/repository"
)

// Service はリポジトリと同じシグネチャで各操作を委譲します。
type Service[T any, D any] struct {
	repo repository.Repository[T, D]
}

// New は repo に委譲する Service を作成します。
func New[T any, D any](repo repository.Repository[T, D]) *Service[T, D] {
	return &Service[T, D]{repo: repo}
}

func (s *Service[T, D]) GetAll(ctx context.Context, limit, page int) ([]T, error) {
	return s.repo.GetAll(ctx, limit, page)
}

func (s *Service[T, D]) GetByID(ctx context.Context, id string) (*T, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service[T, D]) Create(ctx context.Context, dto D) (*T, error) {
	return s.repo.Create(ctx, dto)
}

func (s *Service[T, D]) Update(ctx context.Context, id string, dto D) (*T, error) {
	return s.repo.Update(ctx, id, dto)
}

func (s *Service[T, D]) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

type (
	SponsorService      = Service[club.Sponsor, club.SponsorInput]
	TeamService         = Service[club.Team, club.TeamInput]
	PlayerService       = Service[club.Player, club.PlayerInput]
	CoachService        = Service[club.Coach, club.CoachInput]
	NewsService         = Service[club.NewsItem, club.NewsItemInput]
	ResultService       = Service[club.Result, club.ResultInput]
	RegistrationService = Service[club.Registration, club.RegistrationInput]
)
