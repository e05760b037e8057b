// Package cli implements the hiremind command line client.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hiremind/authsync/internal/client"
	"github.com/hiremind/authsync/internal/config"
	"github.com/hiremind/authsync/internal/identity"
	"github.com/hiremind/authsync/internal/identity/firebase"
	"github.com/hiremind/authsync/internal/identity/local"
	"github.com/hiremind/authsync/internal/logger"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// app holds what every command needs once the root pre-run has finished.
type app struct {
	cfg          *config.Config
	provider     identity.Provider
	orchestrator *client.Orchestrator
	statePath    string
	in           *bufio.Reader
	out          io.Writer
}

// Global flags
var (
	logLevel  string
	stateFile string
	apiURL    string
	noSync    bool
)

// NewRootCommand creates the root cobra command
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "hiremind",
		Short:         "Sign in to HireMind and manage your account",
		Long:          `A command line client for HireMind accounts: register, sign in with a password or Google, and link both to one account.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["standalone"] == "true" {
				return nil
			}
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.orchestrator == nil {
				return nil
			}
			a.orchestrator.Close()
			reportSync(a.out, a.orchestrator.State())
			return saveProviderState(a.provider, a.statePath)
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&stateFile, "state-file", "", "Session file (default ~/.config/hiremind/session-<mode>.json)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Sync service base URL; defaults to API_URL")
	rootCmd.PersistentFlags().BoolVar(&noSync, "no-sync", false, "Do not mirror the account into the sync service")

	rootCmd.AddCommand(
		newRegisterCommand(a),
		newLoginCommand(a),
		newLoginGoogleCommand(a),
		newLinkPasswordCommand(a),
		newLogoutCommand(a),
		newWhoamiCommand(a),
		newTokenCommand(a),
		newProfileCommand(a),
		newChangePasswordCommand(a),
		newResetPasswordCommand(a),
		newDemoCommand(),
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger.InitWithWriter(level, cfg.AppEnv, os.Stderr)

	a.cfg = cfg
	a.in = bufio.NewReader(cmd.InOrStdin())
	a.out = cmd.OutOrStdout()

	a.provider, err = a.buildProvider(cmd.Context())
	if err != nil {
		return err
	}

	a.statePath = stateFile
	if a.statePath == "" {
		if a.statePath, err = defaultStatePath(cfg.IdentityMode); err != nil {
			return err
		}
	}
	if err := loadProviderState(a.provider, a.statePath); err != nil {
		return err
	}

	var syncer client.Syncer
	if !noSync {
		base := cfg.APIURL
		if apiURL != "" {
			base = apiURL
		}
		syncer = client.NewHTTPSyncer(base, nil)
	}
	a.orchestrator = client.NewOrchestrator(a.provider, syncer)
	log.Debug().Str("mode", cfg.IdentityMode).Str("state", a.statePath).Msg("cli ready")
	return nil
}

func (a *app) buildProvider(ctx context.Context) (identity.Provider, error) {
	switch a.cfg.IdentityMode {
	case config.IdentityModeFirebase:
		if a.cfg.Firebase.APIKey == "" {
			return nil, fmt.Errorf("FIREBASE_API_KEY is required in firebase identity mode")
		}
		return firebase.NewClient(ctx, firebase.ClientOptions{
			APIKey: a.cfg.Firebase.APIKey,
			Google: &firebase.LoopbackGoogle{OAuth: a.cfg.GoogleOAuth, Out: os.Stderr},
		})
	case config.IdentityModeLocal:
		if a.cfg.Local.Secret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required in local identity mode")
		}
		return local.New(local.Options{
			Secret:    a.cfg.Local.Secret,
			Issuer:    a.cfg.Local.Issuer,
			TokenTTL:  a.cfg.Local.TokenTTL,
			Federated: promptedGoogle(a),
		}), nil
	default:
		return nil, fmt.Errorf("unknown IDENTITY_MODE %q", a.cfg.IdentityMode)
	}
}

// promptedGoogle stands in for the Google consent screen in local mode.
func promptedGoogle(a *app) local.FederatedSource {
	return local.FederatedFunc(func(ctx context.Context) (*local.FederatedAssertion, error) {
		fmt.Fprintln(a.out, "Local mode: enter the Google account to sign in with.")
		email, err := promptLine(a.in, a.out, "Google email: ")
		if err != nil {
			return nil, err
		}
		name, err := promptLine(a.in, a.out, "Name (optional): ")
		if err != nil {
			return nil, err
		}
		return &local.FederatedAssertion{
			FederatedID:   "local-google:" + email,
			Email:         email,
			DisplayName:   name,
			EmailVerified: true,
		}, nil
	})
}

func reportSync(out io.Writer, state client.State) {
	switch state.Sync.State {
	case client.SyncSucceeded:
		fmt.Fprintf(out, "Synced with server: providers %v\n", state.Sync.User.Providers)
	case client.SyncFailed:
		fmt.Fprintf(out, "Warning: %v (you are still signed in)\n", state.Sync.Err)
	}
}
