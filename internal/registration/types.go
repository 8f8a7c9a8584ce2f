// Package registration は複数ステップの選手登録フォームと、提出後の決済確定処理を提供します。
package registration

import (
	"net/http"
	"time"

	"github.com/yourusername/club-portal/internal/apierror"
)

// Step は登録フォームのステップです。
type Step string

const (
	StepPlayer  Step = "player"
	StepContact Step = "contact"
	StepConsent Step = "consent"
)

// Steps は入力順に並べたステップです。
var Steps = []Step{StepPlayer, StepContact, StepConsent}

// ParseStep は文字列をステップに変換します。
func ParseStep(s string) (Step, bool) {
	for _, step := range Steps {
		if string(step) == s {
			return step, true
		}
	}
	return "", false
}

// 連絡先の続柄
const (
	RelationshipSelf     = "self"
	RelationshipParent   = "parent"
	RelationshipGuardian = "guardian"
	RelationshipOther    = "other"
)

// AgeGroupSenior は18歳以上の区分です。
const AgeGroupSenior = "Senior"

// PlayerDetails は選手情報ステップの入力です。
type PlayerDetails struct {
	FirstName    string `json:"firstName" binding:"required,max=100"`
	LastName     string `json:"lastName" binding:"required,max=100"`
	DateOfBirth  string `json:"dateOfBirth" binding:"required,datetime=2006-01-02"`
	Position     string `json:"position" binding:"omitempty,oneof=goalkeeper defender midfielder forward"`
	PreviousClub string `json:"previousClub" binding:"max=120"`
}

// ContactDetails は連絡先ステップの入力です。未成年の場合は保護者の連絡先です。
type ContactDetails struct {
	Name         string `json:"name" binding:"required,max=200"`
	Email        string `json:"email" binding:"required,email"`
	Phone        string `json:"phone" binding:"required,max=30"`
	Relationship string `json:"relationship" binding:"required,oneof=self parent guardian other"`
}

// ConsentDetails は同意ステップの入力です。
type ConsentDetails struct {
	TermsAccepted bool   `json:"termsAccepted"`
	PhotoConsent  bool   `json:"photoConsent"`
	MedicalNotes  string `json:"medicalNotes" binding:"max=1000"`
}

// DocumentRef はアップロード済みの書類です。
type DocumentRef struct {
	Path       string    `json:"path"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	Pages      int       `json:"pages"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Draft は提出前の登録フォームです。Redis に TTL 付きで保存されます。
type Draft struct {
	ID       string          `json:"id"`
	Player   *PlayerDetails  `json:"player,omitempty"`
	Contact  *ContactDetails `json:"contact,omitempty"`
	Consent  *ConsentDetails `json:"consent,omitempty"`
	Document *DocumentRef    `json:"document,omitempty"`

	AgeGroup string `json:"ageGroup,omitempty"`
	FeeCents int64  `json:"feeCents,omitempty"`
	Currency string `json:"currency,omitempty"`

	Submitted      bool   `json:"submitted"`
	RegistrationID string `json:"registrationId,omitempty"`
	CheckoutURL    string `json:"checkoutUrl,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Completed は step が入力済みかどうかを返します。
func (d *Draft) Completed(step Step) bool {
	switch step {
	case StepPlayer:
		return d.Player != nil
	case StepContact:
		return d.Contact != nil
	case StepConsent:
		return d.Consent != nil
	default:
		return false
	}
}

// NextStep は次に入力すべきステップを返します。すべて入力済みの場合は空文字です。
func (d *Draft) NextStep() Step {
	for _, step := range Steps {
		if !d.Completed(step) {
			return step
		}
	}
	return ""
}

// CanSave は step を保存できるかどうかを返します。前のステップがすべて入力済みである必要があります。
func (d *Draft) CanSave(step Step) bool {
	for _, s := range Steps {
		if s == step {
			return true
		}
		if !d.Completed(s) {
			return false
		}
	}
	return false
}

// DraftView はAPIで返すドラフトの表現です。
type DraftView struct {
	*Draft
	NextStep Step `json:"nextStep"`
}

// View は d の DraftView を返します。
func (d *Draft) View() DraftView {
	return DraftView{Draft: d, NextStep: d.NextStep()}
}

// SubmitResult は提出の結果です。
type SubmitResult struct {
	RegistrationID string `json:"registrationId"`
	CheckoutURL    string `json:"checkoutUrl"`
}

// Status は決済セッションから引いた登録状態です。
type Status struct {
	RegistrationID string `json:"registrationId"`
	Status         string `json:"status"`
	AgeGroup       string `json:"ageGroup"`
}

// CheckoutRequest は決済セッションの作成内容です。
type CheckoutRequest struct {
	RegistrationID string
	Description    string
	AmountCents    int64
	Currency       string
	CustomerEmail  string
}

// CheckoutSession は作成された決済セッションです。
type CheckoutSession struct {
	ID  string
	URL string
}

// ErrRegistrationNotFound は確定・失効処理の対象が存在しないことを示します。
var ErrRegistrationNotFound = apierror.NotFound("REGISTRATION_NOT_FOUND", "登録が見つかりません")

var (
	errDraftNotFound       = apierror.NotFound("REGISTRATION_DRAFT_NOT_FOUND", "登録フォームが見つからないか、有効期限が切れています")
	errStepOutOfOrder      = apierror.Conflict("STEP_OUT_OF_ORDER", "前のステップを先に入力してください")
	errIncomplete          = apierror.Conflict("REGISTRATION_INCOMPLETE", "すべてのステップを入力してから提出してください")
	errAlreadySubmitted    = apierror.Conflict("ALREADY_SUBMITTED", "この登録はすでに提出されています")
	errDocumentTooLarge    = apierror.New(http.StatusRequestEntityTooLarge, "DOCUMENT_TOO_LARGE", "ファイルサイズが上限を超えています")
	errUnsupportedDocument = apierror.New(http.StatusUnsupportedMediaType, "UNSUPPORTED_DOCUMENT", "PDFファイルを選択してください")
)
