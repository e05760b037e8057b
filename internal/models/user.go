package models

import (
	"slices"
	"strings"
	"time"
)

// ProviderKind is the authentication method used for a credential.
type ProviderKind string

const (
	ProviderPassword ProviderKind = "password"
	ProviderGoogle   ProviderKind = "google"
)

// ParseProviderKind maps a sign-in provider id as reported by the identity
// provider ("password", "google.com", ...) to a ProviderKind.
func ParseProviderKind(raw string) (ProviderKind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "password", "email":
		return ProviderPassword, true
	case "google", "google.com":
		return ProviderGoogle, true
	default:
		return "", false
	}
}

// Providers is the ordered, duplicate-free list of provider kinds bound to an account.
type Providers []ProviderKind

// Has reports whether p is present.
func (ps Providers) Has(p ProviderKind) bool {
	return slices.Contains(ps, p)
}

// Add appends p if absent and reports whether the list changed.
func (ps *Providers) Add(p ProviderKind) bool {
	if ps.Has(p) {
		return false
	}
	*ps = append(*ps, p)
	return true
}

func (ps Providers) HasPassword() bool  { return ps.Has(ProviderPassword) }
func (ps Providers) HasFederated() bool { return ps.Has(ProviderGoogle) }

// Strings returns the provider kinds as plain strings.
func (ps Providers) Strings() []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

// UserRecord is the server-owned mirror of an identity provider account.
// SubjectID is immutable and unique across records.
type UserRecord struct {
	ID            string    `json:"id" bson:"_id" db:"id"`
	SubjectID     string    `json:"subjectId" bson:"subjectId" db:"subject_id"`
	Email         string    `json:"email" bson:"email" db:"email"`
	DisplayName   string    `json:"displayName" bson:"displayName" db:"display_name"`
	AvatarURL     string    `json:"avatarUrl" bson:"avatarUrl" db:"avatar_url"`
	Providers     Providers `json:"providers" bson:"providers" db:"-"`
	EmailVerified bool      `json:"emailVerified" bson:"emailVerified" db:"email_verified"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" bson:"updatedAt" db:"updated_at"`
}

// UserUpsert carries the verified identity facts for one sync call.
type UserUpsert struct {
	SubjectID     string
	Email         string
	DisplayName   string
	AvatarURL     string
	EmailVerified bool
	Provider      ProviderKind
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Apply refreshes rec from u: the provider is appended if absent, email and
// emailVerified are always overwritten, display name and avatar only when u
// carries a value. It reports whether the provider list changed.
func (rec *UserRecord) Apply(u UserUpsert, now time.Time) bool {
	added := rec.Providers.Add(u.Provider)
	rec.Email = NormalizeEmail(u.Email)
	if u.DisplayName != "" {
		rec.DisplayName = u.DisplayName
	}
	if u.AvatarURL != "" {
		rec.AvatarURL = u.AvatarURL
	}
	rec.EmailVerified = u.EmailVerified
	rec.UpdatedAt = now
	return added
}

// NewUserRecord builds the record created on the first sync of a subject.
func NewUserRecord(id string, u UserUpsert, now time.Time) *UserRecord {
	return &UserRecord{
		ID:            id,
		SubjectID:     u.SubjectID,
		Email:         NormalizeEmail(u.Email),
		DisplayName:   u.DisplayName,
		AvatarURL:     u.AvatarURL,
		Providers:     Providers{u.Provider},
		EmailVerified: u.EmailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// UserView is the wire representation returned by the sync endpoint.
type UserView struct {
	ID            string    `json:"id"`
	SubjectID     string    `json:"subjectId"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	PhotoURL      string    `json:"photoURL"`
	Providers     []string  `json:"providers"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

// View converts the record to its wire form.
func (rec *UserRecord) View() *UserView {
	return &UserView{
		ID:            rec.ID,
		SubjectID:     rec.SubjectID,
		Email:         rec.Email,
		Name:          rec.DisplayName,
		PhotoURL:      rec.AvatarURL,
		Providers:     rec.Providers.Strings(),
		EmailVerified: rec.EmailVerified,
		CreatedAt:     rec.CreatedAt,
	}
}
