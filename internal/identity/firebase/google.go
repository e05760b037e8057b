package firebase

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const googleIssuer = "https://accounts.google.com"

// LoopbackGoogle runs the authorization code flow with PKCE against Google,
// receiving the code on a loopback redirect such as
// http://127.0.0.1:8085/callback. The redirect must be registered for the
// OAuth client.
type LoopbackGoogle struct {
	OAuth   *oauth2.Config
	Out     io.Writer
	Timeout time.Duration
	// OpenBrowser defaults to the platform opener.
	OpenBrowser func(url string) error
}

var _ GoogleTokenSource = (*LoopbackGoogle)(nil)

func (g *LoopbackGoogle) GoogleIDToken(ctx context.Context) (string, error) {
	if g.OAuth == nil || g.OAuth.ClientID == "" {
		return "", errors.New("GOOGLE_CLIENT_ID is not configured")
	}
	redirect, err := url.Parse(g.OAuth.RedirectURL)
	if err != nil {
		return "", fmt.Errorf("invalid redirect url: %w", err)
	}

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server on %s: %w (is another instance running?)", redirect.Host, err)
	}

	state := randomState()
	verifier := oauth2.GenerateVerifier()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "State mismatch", http.StatusBadRequest)
			errCh <- errors.New("oauth state mismatch")
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			errCh <- fmt.Errorf("authorization denied: %s", e)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			errCh <- errors.New("no authorization code received")
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "Signed in. You can close this window and return to the terminal.\n")
		codeCh <- code
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("google callback server stopped")
		}
	}()
	defer server.Close()

	authURL := g.OAuth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
	if g.Out != nil {
		fmt.Fprintf(g.Out, "Opening browser for Google sign-in...\nIf it does not open, visit:\n%s\n\n", authURL)
	}
	open := g.OpenBrowser
	if open == nil {
		open = openBrowser
	}
	if err := open(authURL); err != nil {
		log.Warn().Err(err).Msg("failed to open browser automatically")
	}

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return "", err
	case <-time.After(timeout):
		return "", errors.New("google sign-in timed out")
	case <-ctx.Done():
		return "", ctx.Err()
	}

	tok, err := g.OAuth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return "", fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", errors.New("google did not return an id_token")
	}

	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return "", fmt.Errorf("failed to discover google issuer: %w", err)
	}
	if _, err := provider.Verifier(&oidc.Config{ClientID: g.OAuth.ClientID}).Verify(ctx, rawIDToken); err != nil {
		return "", fmt.Errorf("google id_token rejected: %w", err)
	}
	return rawIDToken, nil
}

func randomState() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func openBrowser(target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", target)
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
	return cmd.Start()
}
