package main

import (
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/club-portal/internal/auth"
	"github.com/yourusername/club-portal/internal/backend"
	"github.com/yourusername/club-portal/internal/club"
	"github.com/yourusername/club-portal/internal/config"
	"github.com/yourusername/club-portal/internal/payment"
	"github.com/yourusername/club-portal/internal/registration"
	"github.com/yourusername/club-portal/internal/repository"
	"github.com/yourusername/club-portal/internal/service"
	"github.com/yourusername/club-portal/internal/storage"
)

// app はサーバーとワーカーが共有する依存関係です。
type app struct {
	auth auth.Authenticator

	sponsors         *service.SponsorService
	teams            *service.TeamService
	players          *service.PlayerService
	coaches          *service.CoachService
	news             *service.NewsService
	results          *service.ResultService
	registrationRows *service.RegistrationService

	registrations *registration.Service
	dispatcher    payment.Dispatcher

	closers []func() error
}

func newApp(cfg *config.Config, logger *logrus.Logger) (_ *app, err error) {
	if err := cfg.ValidateServer(); err != nil {
		return nil, err
	}

	client, err := backend.New(backend.Config{
		URL:        cfg.BackendURL,
		ServiceKey: cfg.BackendServiceKey,
		AnonKey:    cfg.BackendAnonKey,
		Timeout:    cfg.BackendTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init backend client: %w", err)
	}

	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.auth, err = newAuthenticator(cfg, client); err != nil {
		return nil, err
	}

	playerRepo := repository.NewPlayerRepository(client)
	registrationRepo := repository.NewRegistrationRepository(client)
	a.sponsors = service.New(repository.NewSponsorRepository(client))
	a.teams = service.New(repository.NewTeamRepository(client))
	a.players = service.New[club.Player, club.PlayerInput](playerRepo)
	a.coaches = service.New(repository.NewCoachRepository(client))
	a.news = service.New(repository.NewNewsRepository(client))
	a.results = service.New(repository.NewResultRepository(client))
	a.registrationRows = service.New[club.Registration, club.RegistrationInput](registrationRepo)

	rdb, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close)

	files, err := storage.New(cfg, client)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}
	checkout, err := payment.NewStripe(cfg.StripeSecretKey, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL, nil)
	if err != nil {
		return nil, err
	}

	a.registrations, err = registration.NewService(cfg, registration.Deps{
		Drafts:        registration.NewRedisStore(rdb, cfg.RegistrationDraftTTL),
		Registrations: registrationRepo,
		Players:       playerRepo,
		Checkout:      checkout,
		Storage:       files,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	if a.dispatcher, err = setupDispatcher(cfg, a, logger); err != nil {
		return nil, err
	}
	return a, nil
}

func newAuthenticator(cfg *config.Config, client *backend.Client) (auth.Authenticator, error) {
	switch cfg.AuthMode {
	case config.AuthModeLocal:
		return auth.NewLocalAuthenticator(cfg.AppUsername, cfg.AppPasswordHash, cfg.SessionSecret)
	case config.AuthModeBackend:
		return auth.NewBackendAuthenticator(client), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}
}

func newRedisClient(cfg *config.Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

// Close は保持している接続を閉じます。
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
