package firebase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hiremind/authsync/internal/identity"
	"github.com/hiremind/authsync/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

const (
	// DefaultTokenURL is the securetoken endpoint that exchanges refresh tokens.
	DefaultTokenURL = "https://securetoken.googleapis.com/v1/token"

	googleProviderID = "google.com"
	refreshSkew      = 5 * time.Minute
)

// GoogleTokenSource obtains a Google ID token for the user, typically through
// a browser consent screen.
type GoogleTokenSource interface {
	GoogleIDToken(ctx context.Context) (string, error)
}

type ClientOptions struct {
	APIKey string
	// Google sign-in used by SignInWithFederated; may be nil.
	Google GoogleTokenSource
	// RequestURI is echoed to verifyAssertion; any URI authorized for the project.
	RequestURI string
	TokenURL   string
	HTTPClient *http.Client
	// Extra options for the identitytoolkit service, e.g. option.WithEndpoint.
	ServiceOptions []option.ClientOption
}

type authState struct {
	account      *identity.Account
	idToken      string
	refreshToken string
	expiresAt    time.Time
}

// Client implements identity.Provider on top of the Firebase Auth REST API.
type Client struct {
	identity.StateNotifier

	rp         *identitytoolkit.RelyingpartyService
	google     GoogleTokenSource
	requestURI string
	tokenCfg   *oauth2.Config
	httpClient *http.Client

	mu      sync.Mutex
	current *authState
}

var (
	_ identity.Provider    = (*Client)(nil)
	_ identity.Persistable = (*Client)(nil)
)

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	if opts.RequestURI == "" {
		opts.RequestURI = "http://localhost"
	}
	if opts.TokenURL == "" {
		opts.TokenURL = DefaultTokenURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	svcOpts := []option.ClientOption{option.WithAPIKey(opts.APIKey)}
	svcOpts = append(svcOpts, opts.ServiceOptions...)
	svc, err := identitytoolkit.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create identitytoolkit service: %w", err)
	}

	return &Client{
		rp:         svc.Relyingparty,
		google:     opts.Google,
		requestURI: opts.RequestURI,
		httpClient: opts.HTTPClient,
		tokenCfg: &oauth2.Config{
			Endpoint: oauth2.Endpoint{
				TokenURL:  opts.TokenURL + "?key=" + url.QueryEscape(opts.APIKey),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}, nil
}

func (c *Client) CreateAccount(ctx context.Context, email, password string) (*identity.Account, error) {
	_, err := c.rp.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:    models.NormalizeEmail(email),
		Password: password,
	}).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	return c.SignInWithPassword(ctx, email, password)
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*identity.Account, error) {
	resp, err := c.rp.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             models.NormalizeEmail(email),
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	return c.adopt(ctx, resp.IdToken, resp.RefreshToken)
}

func (c *Client) SignInWithFederated(ctx context.Context) (*identity.Account, error) {
	if c.google == nil {
		return nil, identity.NewProviderError(identity.CodeUnknown, errors.New("google sign-in is not configured"))
	}
	googleIDToken, err := c.google.GoogleIDToken(ctx)
	if err != nil {
		return nil, identity.NewProviderError(identity.CodeCancelled, err)
	}

	resp, err := c.rp.VerifyAssertion(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyAssertionRequest{
		PostBody:            assertionBody(googleIDToken, googleProviderID),
		RequestUri:          c.requestURI,
		ReturnSecureToken:   true,
		ReturnIdpCredential: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	if resp.NeedConfirmation {
		return nil, &identity.ConflictError{
			Email:   models.NormalizeEmail(resp.Email),
			Pending: identity.PendingCredential{ProviderID: googleProviderID, Token: googleIDToken},
		}
	}
	return c.adopt(ctx, resp.IdToken, resp.RefreshToken)
}

func (c *Client) AttachCredential(ctx context.Context, pending identity.PendingCredential) (*identity.Account, error) {
	state, err := c.state()
	if err != nil {
		return nil, err
	}
	resp, err := c.rp.VerifyAssertion(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyAssertionRequest{
		IdToken:           state.idToken,
		PostBody:          assertionBody(pending.Token, pending.ProviderID),
		RequestUri:        c.requestURI,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	return c.adopt(ctx, resp.IdToken, resp.RefreshToken)
}

func (c *Client) AttachPassword(ctx context.Context, password string) (*identity.Account, error) {
	return c.setAccountInfo(ctx, &identitytoolkit.IdentitytoolkitRelyingpartySetAccountInfoRequest{Password: password})
}

func (c *Client) UpdateProfile(ctx context.Context, displayName string) (*identity.Account, error) {
	return c.setAccountInfo(ctx, &identitytoolkit.IdentitytoolkitRelyingpartySetAccountInfoRequest{DisplayName: displayName})
}

func (c *Client) UpdatePassword(ctx context.Context, newPassword string) error {
	_, err := c.setAccountInfo(ctx, &identitytoolkit.IdentitytoolkitRelyingpartySetAccountInfoRequest{Password: newPassword})
	return err
}

func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	_, err := c.rp.GetOobConfirmationCode(&identitytoolkit.Relyingparty{
		RequestType: "PASSWORD_RESET",
		Email:       models.NormalizeEmail(email),
	}).Context(ctx).Do()
	if err != nil {
		return classify(err)
	}
	return nil
}

func (c *Client) IssueCredential(ctx context.Context, forceRefresh bool) (string, error) {
	state, err := c.state()
	if err != nil {
		return "", err
	}
	if !forceRefresh && time.Now().Add(refreshSkew).Before(state.expiresAt) {
		return state.idToken, nil
	}

	idToken, refreshToken, err := c.refresh(ctx, state.refreshToken)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if c.current != nil && c.current.refreshToken == state.refreshToken {
		c.current.idToken = idToken
		c.current.refreshToken = refreshToken
		c.current.expiresAt = tokenExpiry(idToken)
	}
	c.mu.Unlock()
	return idToken, nil
}

func (c *Client) CurrentAccount() *identity.Account {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.account.Clone()
}

func (c *Client) SignOut(_ context.Context) error {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()

	c.Notify(nil)
	return nil
}

type storedSession struct {
	RefreshToken string `json:"refreshToken"`
}

// ExportState returns the refresh token of the signed-in account, or an
// empty document when signed out.
func (c *Client) ExportState() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s storedSession
	if c.current != nil {
		s.RefreshToken = c.current.refreshToken
	}
	return json.Marshal(s)
}

// ImportState restores a session from a refresh token saved by ExportState.
func (c *Client) ImportState(data []byte) error {
	var s storedSession
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to decode firebase session: %w", err)
	}
	if s.RefreshToken == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	idToken, refreshToken, err := c.refresh(ctx, s.RefreshToken)
	if err != nil {
		return err
	}
	_, err = c.adopt(ctx, idToken, refreshToken)
	return err
}

func (c *Client) setAccountInfo(ctx context.Context, req *identitytoolkit.IdentitytoolkitRelyingpartySetAccountInfoRequest) (*identity.Account, error) {
	state, err := c.state()
	if err != nil {
		return nil, err
	}
	req.IdToken = state.idToken
	req.ReturnSecureToken = true

	resp, err := c.rp.SetAccountInfo(req).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	idToken, refreshToken := resp.IdToken, resp.RefreshToken
	if idToken == "" {
		idToken, refreshToken = state.idToken, state.refreshToken
	}
	return c.adopt(ctx, idToken, refreshToken)
}

// adopt loads the account behind idToken and makes it the current session.
func (c *Client) adopt(ctx context.Context, idToken, refreshToken string) (*identity.Account, error) {
	info, err := c.rp.GetAccountInfo(&identitytoolkit.IdentitytoolkitRelyingpartyGetAccountInfoRequest{
		IdToken: idToken,
	}).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	if len(info.Users) == 0 {
		return nil, identity.NewProviderError(identity.CodeUserNotFound, errors.New("account lookup returned no users"))
	}
	acc := accountFromUserInfo(info.Users[0])

	c.mu.Lock()
	c.current = &authState{
		account:      acc,
		idToken:      idToken,
		refreshToken: refreshToken,
		expiresAt:    tokenExpiry(idToken),
	}
	c.mu.Unlock()

	log.Debug().Str("subject", acc.Subject).Strs("providers", acc.Providers.Strings()).Msg("firebase: session updated")
	c.Notify(acc)
	return acc.Clone(), nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (string, string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.tokenCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && strings.Contains(string(re.Body), "TOKEN_EXPIRED") {
			return "", "", identity.NewProviderError(identity.CodeTokenExpired, err)
		}
		return "", "", identity.NewProviderError(identity.CodeUnknown, fmt.Errorf("token refresh failed: %w", err))
	}
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return "", "", identity.NewProviderError(identity.CodeUnknown, errors.New("token refresh returned no id_token"))
	}
	newRefresh := tok.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	return idToken, newRefresh, nil
}

func (c *Client) state() (authState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return authState{}, identity.ErrNotSignedIn
	}
	return *c.current, nil
}

func accountFromUserInfo(u *identitytoolkit.UserInfo) *identity.Account {
	acc := &identity.Account{
		Subject:       u.LocalId,
		Email:         models.NormalizeEmail(u.Email),
		DisplayName:   u.DisplayName,
		AvatarURL:     u.PhotoUrl,
		EmailVerified: u.EmailVerified,
	}
	for _, p := range u.ProviderUserInfo {
		if kind, ok := models.ParseProviderKind(p.ProviderId); ok {
			acc.Providers.Add(kind)
		}
	}
	if len(acc.Providers) == 0 && u.PasswordHash != "" {
		acc.Providers.Add(models.ProviderPassword)
	}
	return acc
}

func assertionBody(idToken, providerID string) string {
	v := url.Values{}
	v.Set("id_token", idToken)
	v.Set("providerId", providerID)
	return v.Encode()
}

// tokenExpiry reads exp from an ID token without verifying it; the server
// verifies, the client only needs to know when to refresh.
func tokenExpiry(idToken string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Now().Add(time.Hour)
	}
	return claims.ExpiresAt.Time
}

// classify maps REST error messages such as "WEAK_PASSWORD : Password should
// be at least 6 characters" to provider error codes.
func classify(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return identity.NewProviderError(identity.CodeUnknown, err)
	}
	msg := gerr.Message
	for _, code := range []identity.ErrorCode{
		identity.CodeEmailExists,
		identity.CodeWeakPassword,
		identity.CodeUserNotFound,
		identity.CodeWrongPassword,
		identity.CodeInvalidCredential,
		identity.CodeCredentialInUse,
		identity.CodeRequiresRecentLogin,
		identity.CodeTokenExpired,
	} {
		if strings.HasPrefix(msg, string(code)) {
			return identity.NewProviderError(code, err)
		}
	}
	if strings.HasPrefix(msg, "INVALID_ID_TOKEN") || strings.HasPrefix(msg, "USER_NOT_FOUND") {
		return identity.NewProviderError(identity.CodeTokenExpired, err)
	}
	return identity.NewProviderError(identity.CodeUnknown, err)
}
