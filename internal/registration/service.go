package registration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/club-portal/internal/apierror"
	"github.com/yourusername/club-portal/internal/club"
	"github.com/yourusername/club-portal/internal/config"
	"github.com/yourusername/club-portal/internal/metrics"
	"github.com/yourusername/club-portal/internal/repository"
	"github.com/yourusername/club-portal/internal/storage"
)

const (
	minPlayerAge = 4
	maxPlayerAge = 60
	adultAge     = 18
)

// ErrCheckoutMismatch は決済セッションIDが登録に記録されたものと一致しないことを示します。
var ErrCheckoutMismatch = errors.New("checkout session does not match registration")

// Checkout は決済セッションを作成します。
type Checkout interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// Service は登録フォームの入力・提出と、決済後の確定処理を行います。
type Service struct {
	drafts        DraftStore
	registrations repository.RegistrationRepository
	players       repository.PlayerRepository
	checkout      Checkout
	storage       storage.Storage
	documents     *DocumentValidator
	logger        logrus.FieldLogger

	feeJunior   int64
	feeSenior   int64
	currency    string
	cutoffMonth time.Month
	cutoffDay   int
	now         func() time.Time
}

// Deps は Service の依存関係です。
type Deps struct {
	Drafts        DraftStore
	Registrations repository.RegistrationRepository
	Players       repository.PlayerRepository
	Checkout      Checkout
	Storage       storage.Storage
	Logger        logrus.FieldLogger
}

// NewService は Service を作成します。
func NewService(cfg *config.Config, deps Deps) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if deps.Drafts == nil || deps.Registrations == nil || deps.Players == nil {
		return nil, errors.New("draft store and repositories are required")
	}
	if deps.Checkout == nil {
		return nil, errors.New("checkout is nil")
	}
	if deps.Storage == nil {
		return nil, errors.New("storage is nil")
	}
	month, day, err := cfg.SeasonCutoffMonthDay()
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Service{
		drafts:        deps.Drafts,
		registrations: deps.Registrations,
		players:       deps.Players,
		checkout:      deps.Checkout,
		storage:       deps.Storage,
		documents:     NewDocumentValidator(cfg.MaxDocumentSize, cfg.MaxDocumentPages),
		logger:        logger,
		feeJunior:     cfg.RegistrationFeeJuniorCents,
		feeSenior:     cfg.RegistrationFeeSeniorCents,
		currency:      cfg.RegistrationCurrency,
		cutoffMonth:   month,
		cutoffDay:     day,
		now:           time.Now,
	}, nil
}

// Start は新しいドラフトを作成します。
func (s *Service) Start(ctx context.Context) (*Draft, error) {
	draft := &Draft{ID: uuid.NewString(), Currency: s.currency}
	if err := s.drafts.Create(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// Get はドラフトを取得します。
func (s *Service) Get(ctx context.Context, id string) (*Draft, error) {
	draft, err := s.drafts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, errDraftNotFound
	}
	return draft, nil
}

// SavePlayer は選手情報ステップを保存し、年齢区分と登録料を決定します。
func (s *Service) SavePlayer(ctx context.Context, id string, player PlayerDetails) (*Draft, error) {
	ageGroup, err := s.AgeGroup(player.DateOfBirth)
	if err != nil {
		return nil, err
	}
	return s.drafts.Update(ctx, id, func(d *Draft) error {
		if d.Submitted {
			return errAlreadySubmitted
		}
		d.Player = &player
		d.AgeGroup = ageGroup
		d.FeeCents = s.fee(ageGroup)
		d.Currency = s.currency
		return nil
	})
}

// SaveContact は連絡先ステップを保存します。
func (s *Service) SaveContact(ctx context.Context, id string, contact ContactDetails) (*Draft, error) {
	return s.drafts.Update(ctx, id, func(d *Draft) error {
		if d.Submitted {
			return errAlreadySubmitted
		}
		if !d.CanSave(StepContact) {
			return errStepOutOfOrder
		}
		if err := checkContact(d.AgeGroup, &contact); err != nil {
			return err
		}
		d.Contact = &contact
		return nil
	})
}

// SaveConsent は同意ステップを保存します。
func (s *Service) SaveConsent(ctx context.Context, id string, consent ConsentDetails) (*Draft, error) {
	if !consent.TermsAccepted {
		return nil, apierror.InvalidInput("利用規約への同意が必要です")
	}
	return s.drafts.Update(ctx, id, func(d *Draft) error {
		if d.Submitted {
			return errAlreadySubmitted
		}
		if !d.CanSave(StepConsent) {
			return errStepOutOfOrder
		}
		d.Consent = &consent
		return nil
	})
}

// AttachDocument は書類を検証して保存し、ドラフトに紐づけます。以前の書類は削除します。
func (s *Service) AttachDocument(ctx context.Context, id, filename string, r io.Reader) (*Draft, error) {
	draft, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.Submitted {
		return nil, errAlreadySubmitted
	}

	data, pages, err := s.documents.Read(r)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("registrations/%s/%s.pdf", id, uuid.NewString())
	if err := s.storage.Save(ctx, path, pdfMIME, bytes.NewReader(data)); err != nil {
		return nil, apierror.Backend(fmt.Errorf("save document: %w", err))
	}

	var previous string
	updated, err := s.drafts.Update(ctx, id, func(d *Draft) error {
		if d.Submitted {
			return errAlreadySubmitted
		}
		if d.Document != nil {
			previous = d.Document.Path
		}
		d.Document = &DocumentRef{
			Path:       path,
			Filename:   filename,
			Size:       int64(len(data)),
			Pages:      pages,
			UploadedAt: s.now().UTC(),
		}
		return nil
	})
	if err != nil {
		s.removeDocument(ctx, path)
		return nil, err
	}
	if previous != "" {
		s.removeDocument(ctx, previous)
	}
	return updated, nil
}

// Submit はドラフトを提出し、登録を作成して決済セッションを発行します。
func (s *Service) Submit(ctx context.Context, id string) (*SubmitResult, error) {
	draft, err := s.drafts.Update(ctx, id, func(d *Draft) error {
		if d.Submitted {
			return errAlreadySubmitted
		}
		if d.NextStep() != "" {
			return errIncomplete
		}
		ageGroup, err := s.AgeGroup(d.Player.DateOfBirth)
		if err != nil {
			return err
		}
		if err := checkContact(ageGroup, d.Contact); err != nil {
			return err
		}
		d.AgeGroup = ageGroup
		d.FeeCents = s.fee(ageGroup)
		d.Currency = s.currency
		d.Submitted = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	reg, err := s.saveRegistration(ctx, draft)
	if err != nil {
		if errors.Is(err, errAlreadySubmitted) {
			return nil, err
		}
		s.reopen(ctx, id)
		return nil, apierror.Backend(fmt.Errorf("save registration: %w", err))
	}

	session, err := s.checkout.CreateCheckout(ctx, CheckoutRequest{
		RegistrationID: reg.ID,
		Description:    fmt.Sprintf("Player registration %s (%s %s)", draft.AgeGroup, draft.Player.FirstName, draft.Player.LastName),
		AmountCents:    draft.FeeCents,
		Currency:       draft.Currency,
		CustomerEmail:  draft.Contact.Email,
	})
	if err != nil {
		if _, expErr := s.registrations.Update(ctx, reg.ID, club.RegistrationInput{Status: club.RegistrationExpired}); expErr != nil {
			s.logger.WithError(expErr).WithField("registration_id", reg.ID).Warn("failed to expire registration after checkout error")
		}
		s.reopen(ctx, id)
		return nil, apierror.Backend(fmt.Errorf("create checkout: %w", err))
	}

	if _, err := s.registrations.Update(ctx, reg.ID, club.RegistrationInput{CheckoutSessionID: &session.ID}); err != nil {
		s.logger.WithError(err).WithField("registration_id", reg.ID).Warn("failed to store checkout session id")
	}
	if _, err := s.drafts.Update(ctx, id, func(d *Draft) error {
		d.RegistrationID = reg.ID
		d.CheckoutURL = session.URL
		return nil
	}); err != nil {
		s.logger.WithError(err).WithField("draft_id", id).Warn("failed to record submission on draft")
	}

	metrics.ObserveRegistrationSubmitted()
	s.logger.WithFields(logrus.Fields{
		"draft_id":        id,
		"registration_id": reg.ID,
		"age_group":       draft.AgeGroup,
	}).Info("registration submitted")

	return &SubmitResult{RegistrationID: reg.ID, CheckoutURL: session.URL}, nil
}

// Status は決済セッションIDから登録状態を取得します。
func (s *Service) Status(ctx context.Context, sessionID string) (*Status, error) {
	if sessionID == "" {
		return nil, apierror.InvalidInput("session_id を指定してください")
	}
	reg, err := s.registrations.GetByCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, apierror.Backend(err)
	}
	if reg == nil {
		return nil, ErrRegistrationNotFound
	}
	return &Status{RegistrationID: reg.ID, Status: string(reg.Status), AgeGroup: reg.AgeGroup}, nil
}

// ConfirmPayment は支払い済みの登録を確定し、選手を作成します。確定済みの場合は何もしません。
func (s *Service) ConfirmPayment(ctx context.Context, registrationID, sessionID string) error {
	reg, err := s.registrations.GetByID(ctx, registrationID)
	if err != nil {
		return err
	}
	if reg == nil {
		return ErrRegistrationNotFound
	}
	log := s.logger.WithField("registration_id", reg.ID)
	if reg.Status == club.RegistrationPaid {
		log.Info("registration already confirmed")
		return nil
	}
	if sessionID != "" && reg.CheckoutSessionID != nil && *reg.CheckoutSessionID != sessionID {
		return fmt.Errorf("%w: registration %s", ErrCheckoutMismatch, reg.ID)
	}

	playerID := reg.PlayerID
	if playerID == nil {
		// 前回の確定処理が選手作成後に失敗していた場合はその選手を使う
		player, err := s.players.GetByRegistration(ctx, reg.ID)
		if err != nil {
			return fmt.Errorf("find player: %w", err)
		}
		if player == nil {
			player, err = s.players.Create(ctx, club.PlayerInput{
				FirstName:      reg.FirstName,
				LastName:       reg.LastName,
				DateOfBirth:    reg.DateOfBirth,
				Position:       reg.Position,
				RegistrationID: &reg.ID,
			})
			if err != nil {
				return fmt.Errorf("create player: %w", err)
			}
		}
		playerID = &player.ID
	}

	paidAt := s.now().UTC()
	update := club.RegistrationInput{
		Status:   club.RegistrationPaid,
		PaidAt:   &paidAt,
		PlayerID: playerID,
	}
	if reg.CheckoutSessionID == nil && sessionID != "" {
		update.CheckoutSessionID = &sessionID
	}
	updated, err := s.registrations.Update(ctx, reg.ID, update)
	if err != nil {
		return fmt.Errorf("mark registration paid: %w", err)
	}
	if updated == nil {
		return ErrRegistrationNotFound
	}
	log.WithField("player_id", *playerID).Info("registration confirmed")
	return nil
}

// ExpireCheckout は決済待ちの登録を失効させます。決済待ち以外の登録は変更しません。
func (s *Service) ExpireCheckout(ctx context.Context, registrationID, sessionID string) error {
	reg, err := s.registrations.GetByID(ctx, registrationID)
	if err != nil {
		return err
	}
	if reg == nil {
		return ErrRegistrationNotFound
	}
	if reg.Status != club.RegistrationPendingPayment {
		return nil
	}
	if sessionID != "" && reg.CheckoutSessionID != nil && *reg.CheckoutSessionID != sessionID {
		return fmt.Errorf("%w: registration %s", ErrCheckoutMismatch, reg.ID)
	}
	if _, err := s.registrations.Update(ctx, reg.ID, club.RegistrationInput{Status: club.RegistrationExpired}); err != nil {
		return fmt.Errorf("mark registration expired: %w", err)
	}
	s.logger.WithField("registration_id", reg.ID).Info("registration checkout expired")
	return nil
}

// AgeGroup は生年月日から今シーズンの年齢区分（U<n> または Senior）を求めます。
func (s *Service) AgeGroup(dateOfBirth string) (string, error) {
	dob, err := time.Parse(time.DateOnly, dateOfBirth)
	if err != nil {
		return "", apierror.InvalidInput("生年月日は YYYY-MM-DD 形式で指定してください")
	}
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !dob.Before(today) {
		return "", apierror.InvalidInput("生年月日は過去の日付を指定してください")
	}

	age := ageOn(dob, s.seasonCutoff(today))
	if age < minPlayerAge || age > maxPlayerAge {
		return "", apierror.InvalidInput(fmt.Sprintf("登録できる年齢は %d 歳から %d 歳までです", minPlayerAge, maxPlayerAge))
	}
	if age >= adultAge {
		return AgeGroupSenior, nil
	}
	return fmt.Sprintf("U%d", age+1), nil
}

// seasonCutoff は today が属するシーズンの基準日を返します。
func (s *Service) seasonCutoff(today time.Time) time.Time {
	cutoff := time.Date(today.Year(), s.cutoffMonth, s.cutoffDay, 0, 0, 0, 0, time.UTC)
	if today.Before(cutoff) {
		cutoff = cutoff.AddDate(-1, 0, 0)
	}
	return cutoff
}

func (s *Service) fee(ageGroup string) int64 {
	if ageGroup == AgeGroupSenior {
		return s.feeSenior
	}
	return s.feeJunior
}

func (s *Service) registrationInput(d *Draft) club.RegistrationInput {
	input := club.RegistrationInput{
		DraftID:      d.ID,
		FirstName:    d.Player.FirstName,
		LastName:     d.Player.LastName,
		DateOfBirth:  d.Player.DateOfBirth,
		Position:     d.Player.Position,
		AgeGroup:     d.AgeGroup,
		ContactName:  d.Contact.Name,
		ContactEmail: d.Contact.Email,
		ContactPhone: d.Contact.Phone,
		Relationship: d.Contact.Relationship,
		MedicalNotes: d.Consent.MedicalNotes,
		PhotoConsent: &d.Consent.PhotoConsent,
		FeeCents:     d.FeeCents,
		Currency:     d.Currency,
		Status:       club.RegistrationPendingPayment,
	}
	if d.Document != nil {
		input.DocumentPath = &d.Document.Path
	}
	return input
}

// saveRegistration はドラフトの登録行を作成します。
// 決済セッションの作成に失敗した提出をやり直す場合は、同じドラフトの既存の行を決済待ちに戻して再利用します。
func (s *Service) saveRegistration(ctx context.Context, d *Draft) (*club.Registration, error) {
	input := s.registrationInput(d)
	existing, err := s.registrations.GetByDraft(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return s.registrations.Create(ctx, input)
	}
	if existing.Status == club.RegistrationPaid {
		return nil, errAlreadySubmitted
	}
	updated, err := s.registrations.Update(ctx, existing.ID, input)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return s.registrations.Create(ctx, input)
	}
	s.logger.WithFields(logrus.Fields{"draft_id": d.ID, "registration_id": updated.ID}).Info("reusing registration for resubmitted draft")
	return updated, nil
}

func (s *Service) reopen(ctx context.Context, id string) {
	if _, err := s.drafts.Update(ctx, id, func(d *Draft) error {
		d.Submitted = false
		return nil
	}); err != nil {
		s.logger.WithError(err).WithField("draft_id", id).Warn("failed to reopen draft")
	}
}

func (s *Service) removeDocument(ctx context.Context, path string) {
	if err := s.storage.Delete(ctx, path); err != nil {
		s.logger.WithError(err).WithField("path", path).Warn("failed to remove document")
	}
}

// checkContact は未成年の連絡先が本人になっていないことを確認します。
func checkContact(ageGroup string, contact *ContactDetails) error {
	if contact == nil {
		return nil
	}
	if ageGroup != "" && ageGroup != AgeGroupSenior && contact.Relationship == RelationshipSelf {
		return apierror.InvalidInput("未成年の場合は保護者の連絡先を入力してください")
	}
	return nil
}

func ageOn(dob, on time.Time) int {
	age := on.Year() - dob.Year()
	if on.Month() < dob.Month() || (on.Month() == dob.Month() && on.Day() < dob.Day()) {
		age--
	}
	return age
}
