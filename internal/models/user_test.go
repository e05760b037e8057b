package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProviderKind(t *testing.T) {
	tests := []struct {
		raw  string
		want ProviderKind
		ok   bool
	}{
		{"password", ProviderPassword, true},
		{"google.com", ProviderGoogle, true},
		{" Google.com ", ProviderGoogle, true},
		{"google", ProviderGoogle, true},
		{"anonymous", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseProviderKind(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProviders_Add(t *testing.T) {
	var ps Providers
	assert.True(t, ps.Add(ProviderPassword))
	assert.False(t, ps.Add(ProviderPassword))
	assert.True(t, ps.Add(ProviderGoogle))
	assert.Equal(t, []string{"password", "google"}, ps.Strings())
	assert.True(t, ps.HasPassword())
	assert.True(t, ps.HasFederated())
}

func TestUserRecord_Apply(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := NewUserRecord("rec-1", UserUpsert{
		SubjectID:   "sub-1",
		Email:       " Alice@Example.com ",
		DisplayName: "Alice",
		AvatarURL:   "https://img/alice.png",
		Provider:    ProviderPassword,
	}, created)

	require.Equal(t, "alice@example.com", rec.Email)
	require.Equal(t, Providers{ProviderPassword}, rec.Providers)

	t.Run("KeepsNameAndAvatarWhenCredentialHasNone", func(t *testing.T) {
		r := *rec
		r.Providers = append(Providers(nil), rec.Providers...)
		later := created.Add(time.Hour)
		added := r.Apply(UserUpsert{SubjectID: "sub-1", Email: "alice@example.com", EmailVerified: true, Provider: ProviderGoogle}, later)

		assert.True(t, added)
		assert.Equal(t, "Alice", r.DisplayName)
		assert.Equal(t, "https://img/alice.png", r.AvatarURL)
		assert.True(t, r.EmailVerified)
		assert.Equal(t, Providers{ProviderPassword, ProviderGoogle}, r.Providers)
		assert.Equal(t, created, r.CreatedAt)
		assert.Equal(t, later, r.UpdatedAt)
	})

	t.Run("SameProviderIsNoop", func(t *testing.T) {
		r := *rec
		r.Providers = append(Providers(nil), rec.Providers...)
		added := r.Apply(UserUpsert{SubjectID: "sub-1", Email: "alice@example.com", DisplayName: "Alice B", Provider: ProviderPassword}, created)

		assert.False(t, added)
		assert.Equal(t, "Alice B", r.DisplayName)
		assert.Len(t, r.Providers, 1)
	})
}

func TestPasswordCredentials_Validate(t *testing.T) {
	tests := []struct {
		name    string
		creds   PasswordCredentials
		wantErr bool
	}{
		{"valid", PasswordCredentials{Email: "alice@example.com", Password: "secret1"}, false},
		{"short password", PasswordCredentials{Email: "alice@example.com", Password: "abc"}, true},
		{"bad email", PasswordCredentials{Email: "alice", Password: "secret1"}, true},
		{"missing email", PasswordCredentials{Password: "secret1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
