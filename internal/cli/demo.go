package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/hiremind/authsync/internal/client"
	"github.com/hiremind/authsync/internal/events"
	"github.com/hiremind/authsync/internal/handlers"
	"github.com/hiremind/authsync/internal/identity/local"
	"github.com/hiremind/authsync/internal/logger"
	"github.com/hiremind/authsync/internal/repository/memory"
	"github.com/hiremind/authsync/internal/router"
	"github.com/hiremind/authsync/internal/server"
	"github.com/hiremind/authsync/internal/service"
	"github.com/spf13/cobra"
)

const demoIssuer = "hiremind-demo"

func newDemoCommand() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:         "demo",
		Short:       "Run the register, Google conflict and link flow against an in-process server",
		Annotations: map[string]string{"standalone": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if logLevel != "" {
				level = logLevel
			}
			logger.InitWithWriter(level, "development", cmd.ErrOrStderr())
			return runDemo(cmd.Context(), cmd.OutOrStdout(), email, password)
		},
	}
	cmd.Flags().StringVar(&email, "email", "alice@example.com", "Email used by the demo account")
	cmd.Flags().StringVar(&password, "password", "secret1", "Password used by the demo account")
	return cmd
}

func runDemo(ctx context.Context, out io.Writer, email, password string) error {
	secret := uuid.NewString()
	verifier := local.NewVerifier(secret, demoIssuer)
	repo := memory.NewMemoryUserRepository()

	e := server.New([]string{"*"})
	router.SetupAuthRoutes(e, handlers.NewAuthHandler(service.NewSyncService(verifier, repo, events.NoopPublisher{})), verifier)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	srv := &http.Server{Handler: e}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(out, "demo server stopped: %v\n", err)
		}
	}()
	defer srv.Shutdown(context.Background())

	provider := local.New(local.Options{
		Secret: secret,
		Issuer: demoIssuer,
		Federated: local.FederatedFunc(func(context.Context) (*local.FederatedAssertion, error) {
			return &local.FederatedAssertion{FederatedID: "demo-google", Email: email, DisplayName: "Demo User", EmailVerified: true}, nil
		}),
	})
	o := client.NewOrchestrator(provider, client.NewHTTPSyncer("http://"+listener.Addr().String(), nil))
	defer o.Close()

	unsubscribe := o.Subscribe(func(s client.State) {
		fmt.Fprintf(out, "  state: %-17s sync: %s\n", s.Flow, s.Sync.State)
	})
	defer unsubscribe()

	fmt.Fprintf(out, "1. register %s\n", email)
	acc, err := o.RegisterWithPassword(ctx, email, password)
	if err != nil {
		return err
	}
	o.Wait()
	fmt.Fprintf(out, "   hasPassword=%t hasFederated=%t\n", acc.HasPassword(), acc.HasFederated())
	o.Logout(ctx)

	fmt.Fprintln(out, "2. sign in with Google")
	_, err = o.LoginWithFederated(ctx)
	var linkErr *client.LinkRequiredError
	if !errors.As(err, &linkErr) {
		return fmt.Errorf("expected a provider conflict, got %v", err)
	}
	fmt.Fprintf(out, "   conflict for %s\n", linkErr.Email)

	fmt.Fprintln(out, "3. sign in with password and link Google")
	if _, err := o.LoginAndLink(ctx, linkErr.Email, password, linkErr.Pending); err != nil {
		return err
	}
	o.Wait()

	state := o.State()
	if state.Sync.State != client.SyncSucceeded {
		return fmt.Errorf("sync did not succeed: %v", state.Sync.Err)
	}
	fmt.Fprintf(out, "Done: server record %s has providers %v\n", state.Sync.User.ID, state.Sync.User.Providers)
	return nil
}
