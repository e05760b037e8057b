package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	IdentityModeFirebase = "firebase"
	IdentityModeLocal    = "local"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite3"
	StoreRedis    = "redis"
	StoreMongo    = "mongo"
)

type FirebaseConfig struct {
	ProjectID string
	// Web API key used by the client against the Auth REST API.
	APIKey string
}

type LocalIdentityConfig struct {
	// HS256 key shared by the local identity emulator and the verifier.
	Secret   string
	Issuer   string
	TokenTTL time.Duration
}

type RedisSettings struct {
	Address  string
	Password string
	DB       int
}

type MongoSettings struct {
	URI      string
	Database string
}

type AMQPSettings struct {
	URL      string
	Exchange string
}

type Config struct {
	// Server port
	Port     string
	AppEnv   string
	LogLevel string

	CORSAllowedOrigins []string
	RequestTimeout     time.Duration

	IdentityMode string
	Firebase     FirebaseConfig
	Local        LocalIdentityConfig
	// Google client used by the loopback sign-in flow of the CLI.
	GoogleOAuth *oauth2.Config

	StoreDriver string
	// host=<host> port=<port> user=<user> dbname=<database> password=<pass> sslmode=<enable/disable>
	DatabaseSettings string
	DatabaseName     string
	SQLitePath       string
	RedisSettings    RedisSettings
	Mongo            MongoSettings
	AMQP             AMQPSettings

	// Base URL of the sync service, used by the client.
	APIURL string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "5001")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("IDENTITY_MODE", IdentityModeFirebase)
	v.SetDefault("LOCAL_ISSUER", "hiremind-local")
	v.SetDefault("LOCAL_TOKEN_TTL", "1h")
	v.SetDefault("STORE_DRIVER", StoreMemory)
	v.SetDefault("SQLITE_PATH", "file:hiremind.db?_fk=1")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("MONGO_DATABASE", "hiremind")
	v.SetDefault("AMQP_EXCHANGE", "user_events")
	v.SetDefault("API_URL", "http://localhost:5001")
	v.SetDefault("GOOGLE_REDIRECT_URL", "http://127.0.0.1:8085/callback")
}

// LoadConfig reads .env from the working directory (or ./config) and the
// process environment.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	requestTimeout, err := time.ParseDuration(v.GetString("REQUEST_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}
	tokenTTL, err := time.ParseDuration(v.GetString("LOCAL_TOKEN_TTL"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOCAL_TOKEN_TTL: %w", err)
	}

	jwtSecret := v.GetString("JWT_SECRET")
	if jwtSecret == "a_very_secret_key_change_me" {
		log.Println("Warning: Using default JWT secret. Set JWT_SECRET environment variable or in config file.")
	}

	databaseSettings := fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s password=%s sslmode=%s",
		v.GetString("DB_HOST"),
		v.GetInt("DB_PORT"),
		v.GetString("DB_USER"),
		v.GetString("DB_NAME"),
		v.GetString("DB_PASS"),
		v.GetString("DB_SSL_MODE"),
	)

	cfg := &Config{
		Port:               v.GetString("APP_PORT"),
		AppEnv:             v.GetString("APP_ENV"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		RequestTimeout:     requestTimeout,
		IdentityMode:       strings.ToLower(v.GetString("IDENTITY_MODE")),
		Firebase: FirebaseConfig{
			ProjectID: v.GetString("FIREBASE_PROJECT_ID"),
			APIKey:    v.GetString("FIREBASE_API_KEY"),
		},
		Local: LocalIdentityConfig{
			Secret:   jwtSecret,
			Issuer:   v.GetString("LOCAL_ISSUER"),
			TokenTTL: tokenTTL,
		},
		GoogleOAuth: &oauth2.Config{
			ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  v.GetString("GOOGLE_REDIRECT_URL"),
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		},
		StoreDriver:      strings.ToLower(v.GetString("STORE_DRIVER")),
		DatabaseSettings: databaseSettings,
		DatabaseName:     v.GetString("DB_NAME"),
		SQLitePath:       v.GetString("SQLITE_PATH"),
		RedisSettings: RedisSettings{
			Address:  v.GetString("REDIS_ADDRESS"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Mongo: MongoSettings{
			URI:      v.GetString("MONGO_URI"),
			Database: v.GetString("MONGO_DATABASE"),
		},
		AMQP: AMQPSettings{
			URL:      v.GetString("AMQP_URL"),
			Exchange: v.GetString("AMQP_EXCHANGE"),
		},
		APIURL: strings.TrimRight(v.GetString("API_URL"), "/"),
	}
	return cfg, nil
}

// Validate checks that the settings required by the selected identity mode
// and store driver are present.
func (c *Config) Validate() error {
	var errs []error
	switch c.IdentityMode {
	case IdentityModeFirebase:
		if c.Firebase.ProjectID == "" {
			errs = append(errs, errors.New("FIREBASE_PROJECT_ID is required in firebase identity mode"))
		}
	case IdentityModeLocal:
		if c.Local.Secret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required in local identity mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown IDENTITY_MODE %q", c.IdentityMode))
	}

	switch c.StoreDriver {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.DatabaseName == "" {
			errs = append(errs, errors.New("DB_NAME is required for the postgres store"))
		}
	case StoreRedis:
		if c.RedisSettings.Address == "" {
			errs = append(errs, errors.New("REDIS_ADDRESS is required for the redis store"))
		}
	case StoreMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
