// Package club はクラブサイトのドメインモデルを定義します。
//
// 各エンティティはBaaS上のテーブル1つに対応し、JSONタグは列名と一致します。
// *Input 型は作成・更新時の入力（DTO）で、gin のバインディングタグで検証します。
package club

import "time"

// SponsorTier はスポンサー区分です。
type SponsorTier string

const (
	SponsorTierGold   SponsorTier = "gold"
	SponsorTierSilver SponsorTier = "silver"
	SponsorTierBronze SponsorTier = "bronze"
)

// Sponsor はスポンサーです。
type Sponsor struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Tier        SponsorTier `json:"tier"`
	WebsiteURL  string      `json:"website_url,omitempty"`
	LogoURL     string      `json:"logo_url,omitempty"`
	Description string      `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// SponsorInput はスポンサーの作成・更新内容です。
type SponsorInput struct {
	Name        string      `json:"name" binding:"required,max=200"`
	Tier        SponsorTier `json:"tier" binding:"required,oneof=gold silver bronze"`
	WebsiteURL  string      `json:"website_url" binding:"omitempty,url"`
	LogoURL     string      `json:"logo_url" binding:"omitempty,url"`
	Description string      `json:"description" binding:"max=2000"`
}

// Team はチームです。
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AgeGroup  string    `json:"age_group"`
	Division  string    `json:"division,omitempty"`
	Season    string    `json:"season"`
	CreatedAt time.Time `json:"created_at"`
}

// TeamInput はチームの作成・更新内容です。
type TeamInput struct {
	Name     string `json:"name" binding:"required,max=120"`
	AgeGroup string `json:"age_group" binding:"required,max=20"`
	Division string `json:"division" binding:"max=120"`
	Season   string `json:"season" binding:"required,max=20"`
}

// Player は選手です。
type Player struct {
	ID             string    `json:"id"`
	TeamID         *string   `json:"team_id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	DateOfBirth    string    `json:"date_of_birth"`
	Position       string    `json:"position,omitempty"`
	ShirtNumber    *int      `json:"shirt_number"`
	RegistrationID *string   `json:"registration_id,omitempty"` // 登録フォーム経由で作成された場合のみ
	CreatedAt      time.Time `json:"created_at"`
}

// PlayerInput は選手の作成・更新内容です。
type PlayerInput struct {
	TeamID         *string `json:"team_id" binding:"omitempty,uuid"`
	FirstName      string  `json:"first_name" binding:"required,max=100"`
	LastName       string  `json:"last_name" binding:"required,max=100"`
	DateOfBirth    string  `json:"date_of_birth" binding:"required,datetime=2006-01-02"`
	Position       string  `json:"position" binding:"omitempty,oneof=goalkeeper defender midfielder forward"`
	ShirtNumber    *int    `json:"shirt_number" binding:"omitempty,min=1,max=99"`
	RegistrationID *string `json:"registration_id,omitempty" binding:"omitempty,uuid"`
}

// Coach はコーチです。
type Coach struct {
	ID        string    `json:"id"`
	TeamID    *string   `json:"team_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CoachInput はコーチの作成・更新内容です。
type CoachInput struct {
	TeamID    *string `json:"team_id" binding:"omitempty,uuid"`
	FirstName string  `json:"first_name" binding:"required,max=100"`
	LastName  string  `json:"last_name" binding:"required,max=100"`
	Role      string  `json:"role" binding:"required,max=60"`
	Email     string  `json:"email" binding:"omitempty,email"`
	Phone     string  `json:"phone" binding:"max=30"`
}

// NewsItem はニュース記事です。
type NewsItem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Summary     string     `json:"summary,omitempty"`
	Body        string     `json:"body"`
	Author      string     `json:"author,omitempty"`
	PublishedAt *time.Time `json:"published_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewsItemInput はニュース記事の作成・更新内容です。
type NewsItemInput struct {
	Title       string     `json:"title" binding:"required,max=200"`
	Slug        string     `json:"slug" binding:"required,max=200"`
	Summary     string     `json:"summary" binding:"max=500"`
	Body        string     `json:"body" binding:"required"`
	Author      string     `json:"author" binding:"max=120"`
	PublishedAt *time.Time `json:"published_at"`
}

// Venue は試合会場の区分です。
type Venue string

const (
	VenueHome Venue = "home"
	VenueAway Venue = "away"
)

// Result は試合結果です。
type Result struct {
	ID           string    `json:"id"`
	TeamID       string    `json:"team_id"`
	Opponent     string    `json:"opponent"`
	Venue        Venue     `json:"venue"`
	GoalsFor     int       `json:"goals_for"`
	GoalsAgainst int       `json:"goals_against"`
	Competition  string    `json:"competition,omitempty"`
	MatchDate    string    `json:"match_date"`
	CreatedAt    time.Time `json:"created_at"`
}

// ResultInput は試合結果の作成・更新内容です。
type ResultInput struct {
	TeamID       string `json:"team_id" binding:"required,uuid"`
	Opponent     string `json:"opponent" binding:"required,max=120"`
	Venue        Venue  `json:"venue" binding:"required,oneof=home away"`
	GoalsFor     int    `json:"goals_for" binding:"min=0,max=99"`
	GoalsAgainst int    `json:"goals_against" binding:"min=0,max=99"`
	Competition  string `json:"competition" binding:"max=120"`
	MatchDate    string `json:"match_date" binding:"required,datetime=2006-01-02"`
}

// RegistrationStatus は登録申込の状態です。
type RegistrationStatus string

const (
	RegistrationPendingPayment RegistrationStatus = "pending_payment"
	RegistrationPaid           RegistrationStatus = "paid"
	RegistrationExpired        RegistrationStatus = "expired"
)

// Registration は提出済みの選手登録申込です。
type Registration struct {
	ID                string             `json:"id"`
	DraftID           string             `json:"draft_id"`
	FirstName         string             `json:"first_name"`
	LastName          string             `json:"last_name"`
	DateOfBirth       string             `json:"date_of_birth"`
	Position          string             `json:"position,omitempty"`
	AgeGroup          string             `json:"age_group"`
	ContactName       string             `json:"contact_name"`
	ContactEmail      string             `json:"contact_email"`
	ContactPhone      string             `json:"contact_phone"`
	Relationship      string             `json:"relationship"`
	MedicalNotes      string             `json:"medical_notes,omitempty"`
	PhotoConsent      bool               `json:"photo_consent"`
	DocumentPath      *string            `json:"document_path"`
	FeeCents          int64              `json:"fee_cents"`
	Currency          string             `json:"currency"`
	Status            RegistrationStatus `json:"status"`
	CheckoutSessionID *string            `json:"checkout_session_id"`
	PlayerID          *string            `json:"player_id"`
	PaidAt            *time.Time         `json:"paid_at"`
	CreatedAt         time.Time          `json:"created_at"`
}

// RegistrationInput は登録申込の作成・更新内容です。
//
// 決済処理では一部の列だけを更新するため、値のないフィールドは送信しません。
type RegistrationInput struct {
	DraftID           string             `json:"draft_id,omitempty"`
	FirstName         string             `json:"first_name,omitempty"`
	LastName          string             `json:"last_name,omitempty"`
	DateOfBirth       string             `json:"date_of_birth,omitempty"`
	Position          string             `json:"position,omitempty"`
	AgeGroup          string             `json:"age_group,omitempty"`
	ContactName       string             `json:"contact_name,omitempty"`
	ContactEmail      string             `json:"contact_email,omitempty"`
	ContactPhone      string             `json:"contact_phone,omitempty"`
	Relationship      string             `json:"relationship,omitempty"`
	MedicalNotes      string             `json:"medical_notes,omitempty"`
	PhotoConsent      *bool              `json:"photo_consent,omitempty"`
	DocumentPath      *string            `json:"document_path,omitempty"`
	FeeCents          int64              `json:"fee_cents,omitempty"`
	Currency          string             `json:"currency,omitempty"`
	Status            RegistrationStatus `json:"status,omitempty"`
	CheckoutSessionID *string            `json:"checkout_session_id,omitempty"`
	PlayerID          *string            `json:"player_id,omitempty"`
	PaidAt            *time.Time         `json:"paid_at,omitempty"`
}
