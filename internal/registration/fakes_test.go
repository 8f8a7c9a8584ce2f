package registration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/club-portal/internal/backend"
	"github.com/yourusername/club-portal/internal/club"
	"github.com/yourusername/club-portal/internal/config"
)

type memoryRegistrations struct {
	mu    sync.Mutex
	rows  map[string]club.Registration
	seq   int
	fail  error
	calls []string

	// updateErrs は先頭から順に Update の戻り値として使われます。
	updateErrs []error
}

func newMemoryRegistrations() *memoryRegistrations {
	return &memoryRegistrations{rows: map[string]club.Registration{}}
}

func (m *memoryRegistrations) GetAll(context.Context, int, int) ([]club.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []club.Registration
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryRegistrations) GetByID(_ context.Context, id string) (*club.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memoryRegistrations) GetByCheckoutSession(_ context.Context, sessionID string) (*club.Registration, error) {
	return m.find(func(r club.Registration) bool {
		return r.CheckoutSessionID != nil && *r.CheckoutSessionID == sessionID
	}), nil
}

func (m *memoryRegistrations) GetByDraft(_ context.Context, draftID string) (*club.Registration, error) {
	return m.find(func(r club.Registration) bool { return r.DraftID == draftID }), nil
}

func (m *memoryRegistrations) find(match func(club.Registration) bool) *club.Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if match(r) {
			return &r
		}
	}
	return nil
}

// Create は registrations.draft_id の一意制約と同じく、同じドラフトの2行目を拒否します。
func (m *memoryRegistrations) Create(_ context.Context, in club.RegistrationInput) (*club.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "create")
	if m.fail != nil {
		return nil, m.fail
	}
	for _, r := range m.rows {
		if r.DraftID == in.DraftID {
			return nil, &backend.APIError{
				Status:  http.StatusConflict,
				Code:    "23505",
				Message: `duplicate key value violates unique constraint "registrations_draft_id_key"`,
			}
		}
	}
	m.seq++
	r := club.Registration{ID: fmt.Sprintf("reg-%d", m.seq), CreatedAt: time.Now()}
	apply(&r, in)
	m.rows[r.ID] = r
	return &r, nil
}

func (m *memoryRegistrations) Update(_ context.Context, id string, in club.RegistrationInput) (*club.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "update")
	if len(m.updateErrs) > 0 {
		err := m.updateErrs[0]
		m.updateErrs = m.updateErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	r, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	apply(&r, in)
	m.rows[id] = r
	return &r, nil
}

func (m *memoryRegistrations) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

// apply は PATCH と同じく指定されたフィールドだけを上書きします。
func apply(r *club.Registration, in club.RegistrationInput) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&r.DraftID, in.DraftID)
	set(&r.FirstName, in.FirstName)
	set(&r.LastName, in.LastName)
	set(&r.DateOfBirth, in.DateOfBirth)
	set(&r.Position, in.Position)
	set(&r.AgeGroup, in.AgeGroup)
	set(&r.ContactName, in.ContactName)
	set(&r.ContactEmail, in.ContactEmail)
	set(&r.ContactPhone, in.ContactPhone)
	set(&r.Relationship, in.Relationship)
	set(&r.Currency, in.Currency)
	if in.FeeCents != 0 {
		r.FeeCents = in.FeeCents
	}
	if in.Status != "" {
		r.Status = in.Status
	}
	if in.DocumentPath != nil {
		r.DocumentPath = in.DocumentPath
	}
	if in.CheckoutSessionID != nil {
		r.CheckoutSessionID = in.CheckoutSessionID
	}
	if in.PlayerID != nil {
		r.PlayerID = in.PlayerID
	}
	if in.PaidAt != nil {
		r.PaidAt = in.PaidAt
	}
}

type memoryPlayers struct {
	mu      sync.Mutex
	created []club.PlayerInput
	players []club.Player
}

func (m *memoryPlayers) GetAll(context.Context, int, int) ([]club.Player, error) { return nil, nil }
func (m *memoryPlayers) GetByID(context.Context, string) (*club.Player, error)   { return nil, nil }
func (m *memoryPlayers) Update(context.Context, string, club.PlayerInput) (*club.Player, error) {
	return nil, nil
}
func (m *memoryPlayers) Delete(context.Context, string) error { return nil }

func (m *memoryPlayers) GetByRegistration(_ context.Context, registrationID string) (*club.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.players {
		if p.RegistrationID != nil && *p.RegistrationID == registrationID {
			return &p, nil
		}
	}
	return nil, nil
}

func (m *memoryPlayers) Create(_ context.Context, in club.PlayerInput) (*club.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, in)
	p := club.Player{
		ID:             fmt.Sprintf("player-%d", len(m.created)),
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		RegistrationID: in.RegistrationID,
	}
	m.players = append(m.players, p)
	return &p, nil
}

type fakeCheckout struct {
	requests []CheckoutRequest
	err      error
}

func (f *fakeCheckout) CreateCheckout(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	id := fmt.Sprintf("cs_test_%d", len(f.requests))
	return &CheckoutSession{ID: id, URL: "https://checkout.stripe.com/c/pay/" + id}, nil
}

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryStorage) Save(_ context.Context, path, _ string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = data
	return nil
}

func (m *memoryStorage) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

type fixture struct {
	svc           *Service
	mr            *miniredis.Miniredis
	store         *RedisStore
	registrations *memoryRegistrations
	players       *memoryPlayers
	checkout      *fakeCheckout
	storage       *memoryStorage
}

// 2026-10-18 はシーズン基準日 09-01 の後なので、基準日は 2026-09-01 になる。
var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		RegistrationDraftTTL:       24 * time.Hour,
		RegistrationFeeJuniorCents: 12000,
		RegistrationFeeSeniorCents: 18000,
		RegistrationCurrency:       "eur",
		SeasonCutoff:               "09-01",
		MaxDocumentSize:            1024,
		MaxDocumentPages:           3,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		mr:            mr,
		store:         NewRedisStore(rdb, 24*time.Hour),
		registrations: newMemoryRegistrations(),
		players:       &memoryPlayers{},
		checkout:      &fakeCheckout{},
		storage:       &memoryStorage{objects: map[string][]byte{}},
	}
	svc, err := NewService(testConfig(), Deps{
		Drafts:        f.store,
		Registrations: f.registrations,
		Players:       f.players,
		Checkout:      f.checkout,
		Storage:       f.storage,
		Logger:        logger,
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return fixedNow }
	svc.documents.countPages = func(rs io.ReadSeeker) (int, error) {
		data, err := io.ReadAll(rs)
		if err != nil {
			return 0, err
		}
		if !bytes.Contains(data, []byte("%%EOF")) {
			return 0, fmt.Errorf("no trailer")
		}
		return bytes.Count(data, []byte("/Type /Page\n")), nil
	}
	f.svc = svc
	return f
}

func fakePDF(pages int) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	for i := 0; i < pages; i++ {
		buf.WriteString("<< /Type /Page\n>>\n")
	}
	buf.WriteString("%%EOF\n")
	return buf.Bytes()
}

func validPlayer() PlayerDetails {
	return PlayerDetails{FirstName: "Mia", LastName: "Hamm", DateOfBirth: "2016-03-17", Position: "forward"}
}

func validContact() ContactDetails {
	return ContactDetails{Name: "Pat Hamm", Email: "pat@example.com", Phone: "+44 20 7946 0000", Relationship: RelationshipParent}
}

// completeDraft はすべてのステップを入力したドラフトを作成します。
func (f *fixture) completeDraft(t *testing.T) *Draft {
	t.Helper()
	ctx := context.Background()
	draft, err := f.svc.Start(ctx)
	require.NoError(t, err)
	_, err = f.svc.SavePlayer(ctx, draft.ID, validPlayer())
	require.NoError(t, err)
	_, err = f.svc.SaveContact(ctx, draft.ID, validContact())
	require.NoError(t, err)
	draft, err = f.svc.SaveConsent(ctx, draft.ID, ConsentDetails{TermsAccepted: true, PhotoConsent: true})
	require.NoError(t, err)
	return draft
}
