package repository

import (
	"context"

	"github.com/yourusername/club-portal/internal/backend"
	"github.com/yourusername/club-portal/internal/club"
)

// テーブル名
const (
	SponsorsTable      = "sponsors"
	TeamsTable         = "teams"
	PlayersTable       = "players"
	CoachesTable       = "coaches"
	NewsTable          = "news"
	ResultsTable       = "results"
	RegistrationsTable = "registrations"
)

type (
	SponsorRepository = Repository[club.Sponsor, club.SponsorInput]
	TeamRepository    = Repository[club.Team, club.TeamInput]
	CoachRepository   = Repository[club.Coach, club.CoachInput]
	NewsRepository    = Repository[club.NewsItem, club.NewsItemInput]
	ResultRepository  = Repository[club.Result, club.ResultInput]
)

// PlayerRepository は選手のリポジトリです。
// 登録IDからの逆引きを追加で提供します。
type PlayerRepository interface {
	Repository[club.Player, club.PlayerInput]
	GetByRegistration(ctx context.Context, registrationID string) (*club.Player, error)
}

// RegistrationRepository は登録申込のリポジトリです。
// 決済セッションIDとドラフトIDからの逆引きを追加で提供します。
type RegistrationRepository interface {
	Repository[club.Registration, club.RegistrationInput]
	GetByCheckoutSession(ctx context.Context, sessionID string) (*club.Registration, error)
	GetByDraft(ctx context.Context, draftID string) (*club.Registration, error)
}

func NewSponsorRepository(client *backend.Client) SponsorRepository {
	return NewTable[club.Sponsor, club.SponsorInput](client, SponsorsTable, Ordering{Column: "name", Ascending: true})
}

func NewTeamRepository(client *backend.Client) TeamRepository {
	return NewTable[club.Team, club.TeamInput](client, TeamsTable, Ordering{Column: "name", Ascending: true})
}

type playerTable struct {
	*Table[club.Player, club.PlayerInput]
}

func (p playerTable) GetByRegistration(ctx context.Context, registrationID string) (*club.Player, error) {
	return p.FindOne(ctx, "registration_id", registrationID)
}

func NewPlayerRepository(client *backend.Client) PlayerRepository {
	return playerTable{NewTable[club.Player, club.PlayerInput](client, PlayersTable, Ordering{Column: "last_name", Ascending: true})}
}

func NewCoachRepository(client *backend.Client) CoachRepository {
	return NewTable[club.Coach, club.CoachInput](client, CoachesTable, Ordering{Column: "last_name", Ascending: true})
}

func NewNewsRepository(client *backend.Client) NewsRepository {
	return NewTable[club.NewsItem, club.NewsItemInput](client, NewsTable, Ordering{Column: "published_at", Ascending: false})
}

func NewResultRepository(client *backend.Client) ResultRepository {
	return NewTable[club.Result, club.ResultInput](client, ResultsTable, Ordering{Column: "match_date", Ascending: false})
}

type registrationTable struct {
	*Table[club.Registration, club.RegistrationInput]
}

func (r registrationTable) GetByCheckoutSession(ctx context.Context, sessionID string) (*club.Registration, error) {
	return r.FindOne(ctx, "checkout_session_id", sessionID)
}

func (r registrationTable) GetByDraft(ctx context.Context, draftID string) (*club.Registration, error) {
	return r.FindOne(ctx, "draft_id", draftID)
}

func NewRegistrationRepository(client *backend.Client) RegistrationRepository {
	return registrationTable{NewTable[club.Registration, club.RegistrationInput](client, RegistrationsTable, Ordering{Column: "created_at", Ascending: false})}
}
