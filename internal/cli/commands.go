package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hiremind/authsync/internal/client"
	"github.com/spf13/cobra"
)

func (a *app) credentials(email, password string) (string, string, error) {
	var err error
	if email == "" {
		if email, err = promptLine(a.in, a.out, "Email: "); err != nil {
			return "", "", err
		}
	}
	if password == "" {
		if password, err = promptPassword(a.in, a.out, "Password: "); err != nil {
			return "", "", err
		}
	}
	return email, password, nil
}

func newRegisterCommand(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, password, err := a.credentials(email, password)
			if err != nil {
				return err
			}
			acc, err := a.orchestrator.RegisterWithPassword(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "✓ Account created for %s\n", acc.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email (prompted if empty)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted if empty)")
	return cmd
}

func newLoginCommand(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, password, err := a.credentials(email, password)
			if err != nil {
				return err
			}
			acc, err := a.orchestrator.LoginWithPassword(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "✓ Signed in as %s\n", acc.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email (prompted if empty)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted if empty)")
	return cmd
}

func newLoginGoogleCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login-google",
		Short: "Sign in with Google, linking it to an existing password account if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := a.orchestrator.LoginWithFederated(cmd.Context())
			var linkErr *client.LinkRequiredError
			if errors.As(err, &linkErr) {
				fmt.Fprintln(a.out, linkErr.Error())
				acc, err = a.resolveConflict(cmd, linkErr)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "✓ Signed in as %s (providers: %s)\n", acc.Email, providerList(acc))
			return nil
		},
	}
}

// resolveConflict asks for the existing account's password until linking
// succeeds, the password step fails for another reason, or the user gives up.
func (a *app) resolveConflict(cmd *cobra.Command, linkErr *client.LinkRequiredError) (*client.SessionIdentity, error) {
	for {
		password, err := promptPassword(a.in, a.out, fmt.Sprintf("Password for %s (empty to cancel): ", linkErr.Email))
		if err != nil {
			return nil, err
		}
		if password == "" {
			a.orchestrator.AbandonLink()
			return nil, errors.New("linking cancelled")
		}
		acc, err := a.orchestrator.LoginAndLink(cmd.Context(), linkErr.Email, password, linkErr.Pending)
		var authErr *client.AuthError
		if errors.As(err, &authErr) && authErr.Kind == client.KindWrongPassword {
			fmt.Fprintln(a.out, authErr.Message)
			continue
		}
		return acc, err
	}
}

func newLinkPasswordCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "link-password",
		Short: "Add a password to an account that only signs in with Google",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := promptPassword(a.in, a.out, "New password: ")
			if err != nil {
				return err
			}
			acc, err := a.orchestrator.LinkPassword(cmd.Context(), password)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "✓ Password added (providers: %s)\n", providerList(acc))
			return nil
		},
	}
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.orchestrator.Logout(cmd.Context())
			fmt.Fprintln(a.out, "✓ Signed out")
			return nil
		},
	}
}

func newWhoamiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			acc := a.orchestrator.Refresh()
			if acc == nil {
				fmt.Fprintln(a.out, "Not signed in")
				return nil
			}
			printIdentity(a.out, acc)
			return nil
		},
	}
}

func newTokenCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a fresh bearer credential for the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.orchestrator.GetToken(cmd.Context())
			if err != nil {
				return err
			}
			if token == "" {
				return errors.New("not signed in")
			}
			fmt.Fprintln(a.out, token)
			return nil
		},
	}
}

func newProfileCommand(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Change the display name",
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := a.orchestrator.UpdateProfile(cmd.Context(), name)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "✓ Display name is now %q\n", acc.DisplayName)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New display name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newChangePasswordCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "change-password",
		Short: "Change the password of the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := promptPassword(a.in, a.out, "Current password: ")
			if err != nil {
				return err
			}
			next, err := promptPassword(a.in, a.out, "New password: ")
			if err != nil {
				return err
			}
			if err := a.orchestrator.ChangePassword(cmd.Context(), current, next); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "✓ Password changed")
			return nil
		},
	}
}

func newResetPasswordCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password EMAIL",
		Short: "Send a password reset email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.orchestrator.SendPasswordReset(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "✓ Password reset email sent to %s\n", args[0])
			return nil
		},
	}
}

func printIdentity(out io.Writer, acc *client.SessionIdentity) {
	fmt.Fprintf(out, "Email:          %s\n", acc.Email)
	if acc.DisplayName != "" {
		fmt.Fprintf(out, "Name:           %s\n", acc.DisplayName)
	}
	fmt.Fprintf(out, "Subject:        %s\n", acc.SubjectID)
	fmt.Fprintf(out, "Email verified: %t\n", acc.EmailVerified)
	fmt.Fprintf(out, "Providers:      %s\n", providerList(acc))
	if acc.IsGoogleOnly() {
		fmt.Fprintln(out, "Tip: run 'hiremind link-password' to also sign in with a password.")
	}
}

func providerList(acc *client.SessionIdentity) string {
	return strings.Join(acc.Providers.Strings(), ", ")
}
