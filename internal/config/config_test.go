package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("FIREBASE_PROJECT_ID", "hiremind-auth")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "5001", cfg.Port)
	assert.Equal(t, IdentityModeFirebase, cfg.IdentityMode)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "hiremind-auth", cfg.Firebase.ProjectID)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("APP_PORT", "8080")
	t.Setenv("IDENTITY_MODE", "LOCAL")
	t.Setenv("JWT_SECRET", "local-secret")
	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("REDIS_ADDRESS", "localhost:6379")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://app.example.com ,, ")
	t.Setenv("API_URL", "http://localhost:8080/")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, IdentityModeLocal, cfg.IdentityMode)
	assert.Equal(t, "local-secret", cfg.Local.Secret)
	assert.Equal(t, time.Hour, cfg.Local.TokenTTL)
	assert.Equal(t, StoreRedis, cfg.StoreDriver)
	assert.Equal(t, "localhost:6379", cfg.RedisSettings.Address)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "http://localhost:8080", cfg.APIURL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "soon")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REQUEST_TIMEOUT")
}

func TestConfig_Validate(t *testing.T) {
	t.Run("MissingFirebaseProject", func(t *testing.T) {
		cfg := &Config{IdentityMode: IdentityModeFirebase, StoreDriver: StoreMemory}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "FIREBASE_PROJECT_ID")
	})

	t.Run("MissingLocalSecret", func(t *testing.T) {
		cfg := &Config{IdentityMode: IdentityModeLocal, StoreDriver: StoreMemory}
		assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET")
	})

	t.Run("UnknownStore", func(t *testing.T) {
		cfg := &Config{IdentityMode: IdentityModeLocal, Local: LocalIdentityConfig{Secret: "s"}, StoreDriver: "cassandra"}
		assert.ErrorContains(t, cfg.Validate(), "unknown STORE_DRIVER")
	})

	t.Run("MongoNeedsURI", func(t *testing.T) {
		cfg := &Config{IdentityMode: IdentityModeLocal, Local: LocalIdentityConfig{Secret: "s"}, StoreDriver: StoreMongo}
		assert.ErrorContains(t, cfg.Validate(), "MONGO_URI")
	})
}
