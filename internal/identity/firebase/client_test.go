package firebase_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hiremind/authsync/internal/identity"
	"github.com/hiremind/authsync/internal/identity/firebase"
	"github.com/hiremind/authsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type fakeUser struct {
	uid       string
	email     string
	password  string
	providers []string
}

// fakeAuthAPI is a minimal stand-in for the identitytoolkit v3 and
// securetoken endpoints.
type fakeAuthAPI struct {
	mu         sync.Mutex
	users      map[string]*fakeUser // by email
	lastLinkID string
	resets     []string
}

func newFakeAuthAPI() *fakeAuthAPI {
	return &fakeAuthAPI{users: make(map[string]*fakeUser)}
}

func mintToken(uid string) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   uid,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, _ := tok.SignedString([]byte("fake"))
	return s
}

func subjectOf(token string) string {
	var claims jwt.RegisteredClaims
	_, _, _ = jwt.NewParser().ParseUnverified(token, &claims)
	return claims.Subject
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func apiError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error": map[string]any{"code": 400, "message": message},
	})
}

func (f *fakeAuthAPI) byUID(uid string) *fakeUser {
	for _, u := range f.users {
		if u.uid == uid {
			return u
		}
	}
	return nil
}

func (f *fakeAuthAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if strings.HasSuffix(r.URL.Path, "/token") {
		if err := r.ParseForm(); err != nil {
			apiError(w, "INVALID_REFRESH_TOKEN")
			return
		}
		uid := strings.TrimPrefix(r.PostForm.Get("refresh_token"), "rt-")
		if f.byUID(uid) == nil {
			apiError(w, "TOKEN_EXPIRED")
			return
		}
		idToken := mintToken(uid)
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  idToken,
			"id_token":      idToken,
			"refresh_token": "rt-" + uid,
			"expires_in":    "3600",
			"token_type":    "Bearer",
		})
		return
	}

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	str := func(k string) string { s, _ := body[k].(string); return s }

	switch {
	case strings.HasSuffix(r.URL.Path, "/signupNewUser"):
		if _, ok := f.users[str("email")]; ok {
			apiError(w, "EMAIL_EXISTS")
			return
		}
		if len(str("password")) < 6 {
			apiError(w, "WEAK_PASSWORD : Password should be at least 6 characters")
			return
		}
		u := &fakeUser{uid: "uid-" + str("email"), email: str("email"), password: str("password"), providers: []string{"password"}}
		f.users[u.email] = u
		writeJSON(w, http.StatusOK, map[string]any{"localId": u.uid, "email": u.email})

	case strings.HasSuffix(r.URL.Path, "/verifyPassword"):
		u, ok := f.users[str("email")]
		if !ok {
			apiError(w, "EMAIL_NOT_FOUND")
			return
		}
		if u.password != str("password") {
			apiError(w, "INVALID_PASSWORD")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"idToken": mintToken(u.uid), "refreshToken": "rt-" + u.uid, "localId": u.uid})

	case strings.HasSuffix(r.URL.Path, "/verifyAssertion"):
		post, _ := url.ParseQuery(str("postBody"))
		email := post.Get("id_token") // the fake google id token is the email itself
		if idToken := str("idToken"); idToken != "" {
			u := f.byUID(subjectOf(idToken))
			u.providers = append(u.providers, post.Get("providerId"))
			f.lastLinkID = post.Get("id_token")
			writeJSON(w, http.StatusOK, map[string]any{"idToken": mintToken(u.uid), "refreshToken": "rt-" + u.uid, "localId": u.uid})
			return
		}
		if _, ok := f.users[email]; ok {
			writeJSON(w, http.StatusOK, map[string]any{"needConfirmation": true, "email": email})
			return
		}
		u := &fakeUser{uid: "uid-" + email, email: email, providers: []string{"google.com"}}
		f.users[email] = u
		writeJSON(w, http.StatusOK, map[string]any{"idToken": mintToken(u.uid), "refreshToken": "rt-" + u.uid, "localId": u.uid})

	case strings.HasSuffix(r.URL.Path, "/getAccountInfo"):
		u := f.byUID(subjectOf(str("idToken")))
		if u == nil {
			apiError(w, "INVALID_ID_TOKEN")
			return
		}
		var infos []map[string]any
		for _, p := range u.providers {
			infos = append(infos, map[string]any{"providerId": p})
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": []map[string]any{{
			"localId": u.uid, "email": u.email, "displayName": "", "providerUserInfo": infos,
		}}})

	case strings.HasSuffix(r.URL.Path, "/getOobConfirmationCode"):
		if _, ok := f.users[str("email")]; !ok {
			apiError(w, "EMAIL_NOT_FOUND")
			return
		}
		f.resets = append(f.resets, str("email"))
		writeJSON(w, http.StatusOK, map[string]any{"email": str("email")})

	default:
		http.NotFound(w, r)
	}
}

type staticGoogle string

func (s staticGoogle) GoogleIDToken(context.Context) (string, error) { return string(s), nil }

func newTestClient(t *testing.T, google firebase.GoogleTokenSource) (*firebase.Client, *fakeAuthAPI) {
	t.Helper()
	api := newFakeAuthAPI()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c, err := firebase.NewClient(context.Background(), firebase.ClientOptions{
		APIKey:     "test-key",
		Google:     google,
		TokenURL:   srv.URL + "/v1/token",
		HTTPClient: srv.Client(),
		ServiceOptions: []option.ClientOption{
			option.WithEndpoint(srv.URL + "/"),
			option.WithHTTPClient(srv.Client()),
		},
	})
	require.NoError(t, err)
	return c, api
}

func TestClient_PasswordFlows(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateAccountSignsIn", func(t *testing.T) {
		c, _ := newTestClient(t, nil)
		acc, err := c.CreateAccount(ctx, "alice@example.com", "secret1")
		require.NoError(t, err)
		assert.Equal(t, "uid-alice@example.com", acc.Subject)
		assert.Equal(t, models.Providers{models.ProviderPassword}, acc.Providers)
		assert.NotNil(t, c.CurrentAccount())
	})

	t.Run("ErrorCodesAreClassified", func(t *testing.T) {
		c, _ := newTestClient(t, nil)
		_, err := c.CreateAccount(ctx, "alice@example.com", "secret1")
		require.NoError(t, err)

		_, err = c.CreateAccount(ctx, "alice@example.com", "secret1")
		assert.Equal(t, identity.CodeEmailExists, identity.CodeOf(err))

		_, err = c.CreateAccount(ctx, "bob@example.com", "123")
		assert.Equal(t, identity.CodeWeakPassword, identity.CodeOf(err))

		_, err = c.SignInWithPassword(ctx, "carol@example.com", "secret1")
		assert.Equal(t, identity.CodeUserNotFound, identity.CodeOf(err))

		_, err = c.SignInWithPassword(ctx, "alice@example.com", "wrong")
		assert.Equal(t, identity.CodeWrongPassword, identity.CodeOf(err))
	})

	t.Run("SendPasswordReset", func(t *testing.T) {
		c, api := newTestClient(t, nil)
		_, err := c.CreateAccount(ctx, "alice@example.com", "secret1")
		require.NoError(t, err)

		require.NoError(t, c.SendPasswordReset(ctx, "alice@example.com"))
		assert.Equal(t, []string{"alice@example.com"}, api.resets)
	})
}

func TestClient_FederatedConflictAndLink(t *testing.T) {
	ctx := context.Background()
	c, api := newTestClient(t, staticGoogle("alice@example.com"))

	_, err := c.CreateAccount(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, c.SignOut(ctx))

	_, err = c.SignInWithFederated(ctx)
	var conflict *identity.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "alice@example.com", conflict.Email)
	assert.Equal(t, "google.com", conflict.Pending.ProviderID)

	_, err = c.SignInWithPassword(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	linked, err := c.AttachCredential(ctx, conflict.Pending)
	require.NoError(t, err)
	assert.Equal(t, models.Providers{models.ProviderPassword, models.ProviderGoogle}, linked.Providers)
	assert.Equal(t, "alice@example.com", api.lastLinkID)
}

func TestClient_IssueCredentialAndResume(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t, nil)

	_, err := c.IssueCredential(ctx, false)
	assert.ErrorIs(t, err, identity.ErrNotSignedIn)

	_, err = c.CreateAccount(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)

	cached, err := c.IssueCredential(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "uid-alice@example.com", subjectOf(cached))

	refreshed, err := c.IssueCredential(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "uid-alice@example.com", subjectOf(refreshed))

	state, err := c.ExportState()
	require.NoError(t, err)
	require.NoError(t, c.SignOut(ctx))
	assert.Nil(t, c.CurrentAccount())

	require.NoError(t, c.ImportState(state))
	require.NotNil(t, c.CurrentAccount())
	assert.Equal(t, "alice@example.com", c.CurrentAccount().Email)
}
