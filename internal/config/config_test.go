package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GIN_MODE", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, AuthModeBackend, cfg.AuthMode)
	assert.Equal(t, StorageDriverLocal, cfg.StorageDriver)
	assert.Equal(t, 24*time.Hour, cfg.RegistrationDraftTTL)
	assert.Equal(t, int64(12000), cfg.RegistrationFeeJuniorCents)
	assert.Equal(t, 10, cfg.MaxDocumentPages)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("BACKEND_TIMEOUT", "3s")
	t.Setenv("REGISTRATION_FEE_SENIOR_CENTS", "25000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 3*time.Second, cfg.BackendTimeout)
	assert.Equal(t, int64(25000), cfg.RegistrationFeeSeniorCents)
}

func TestValidateServerRequiresExternalServicesInAnyMode(t *testing.T) {
	for _, mode := range []string{"debug", "release"} {
		t.Run(mode, func(t *testing.T) {
			cfg := &Config{
				GinMode:       mode,
				AuthMode:      AuthModeBackend,
				StorageDriver: StorageDriverLocal,
				SeasonCutoff:  "09-01",
			}
			require.NoError(t, cfg.Validate())
			require.ErrorContains(t, cfg.ValidateServer(), "SESSION_SECRET")

			cfg.SessionSecret = "secret"
			require.ErrorContains(t, cfg.ValidateServer(), "BACKEND_URL")

			cfg.BackendURL = "https://example.supabase.co"
			require.ErrorContains(t, cfg.ValidateServer(), "BACKEND_SERVICE_KEY")

			cfg.BackendServiceKey = "service-key"
			require.ErrorContains(t, cfg.ValidateServer(), "STRIPE_SECRET_KEY")
		})
	}
}

func TestValidateServerReleaseOnlySettings(t *testing.T) {
	cfg := &Config{
		GinMode:           "debug",
		AuthMode:          AuthModeBackend,
		StorageDriver:     StorageDriverLocal,
		SeasonCutoff:      "09-01",
		SessionSecret:     "secret",
		BackendURL:        "https://example.supabase.co",
		BackendServiceKey: "service-key",
		StripeSecretKey:   "sk_test",
	}
	require.NoError(t, cfg.ValidateServer())

	cfg.GinMode = "release"
	require.ErrorContains(t, cfg.ValidateServer(), "STRIPE_WEBHOOK_SECRET")

	cfg.StripeWebhookSecret = "whsec_test"
	cfg.QueueRedisURL = "redis://localhost:6379/0"
	require.NoError(t, cfg.ValidateServer())
}

func TestValidateServerLocalAuthNeedsCredentials(t *testing.T) {
	cfg := &Config{
		GinMode:           "debug",
		AuthMode:          AuthModeLocal,
		StorageDriver:     StorageDriverLocal,
		SeasonCutoff:      "09-01",
		SessionSecret:     "secret",
		BackendURL:        "https://example.supabase.co",
		BackendServiceKey: "service-key",
		StripeSecretKey:   "sk_test",
	}
	require.ErrorContains(t, cfg.ValidateServer(), "APP_USERNAME")

	cfg.AppUsername = "admin"
	require.ErrorContains(t, cfg.ValidateServer(), "APP_PASSWORD_HASH")
}

func TestValidateRejectsUnknownModes(t *testing.T) {
	cfg := &Config{AuthMode: "ldap", StorageDriver: StorageDriverLocal, SeasonCutoff: "09-01"}
	require.Error(t, cfg.Validate())

	cfg = &Config{AuthMode: AuthModeLocal, StorageDriver: "s3", SeasonCutoff: "09-01"}
	require.Error(t, cfg.Validate())
}

func TestSeasonCutoffMonthDay(t *testing.T) {
	cfg := &Config{SeasonCutoff: "08-15"}
	month, day, err := cfg.SeasonCutoffMonthDay()
	require.NoError(t, err)
	assert.Equal(t, time.August, month)
	assert.Equal(t, 15, day)

	cfg.SeasonCutoff = "15/08"
	_, _, err = cfg.SeasonCutoffMonthDay()
	assert.Error(t, err)
}
