package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/ringboard/ringboard/internal/domain"
	"github.com/ringboard/ringboard/internal/vault"
)

// expirySkew refreshes tokens slightly before their actual expiry so a
// token never lapses mid-request.
const expirySkew = 30 * time.Second

// ProfileStore defines the profile data access interface consumed by services.
type ProfileStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
	List(ctx context.Context) ([]domain.Profile, error)
	Upsert(ctx context.Context, profile domain.Profile) (*domain.Profile, error)
}

// CredentialStore defines the credential data access interface consumed by
// TokenService.
type CredentialStore interface {
	FindByProfileID(ctx context.Context, profileID uuid.UUID) (*domain.Credential, error)
	Upsert(ctx context.Context, cred domain.Credential) (*domain.Credential, error)
	Delete(ctx context.Context, profileID uuid.UUID) error
}

// IdentityFetcher resolves the provider account behind an access token.
type IdentityFetcher interface {
	FetchPersonalInfo(ctx context.Context, accessToken string) (*domain.PersonalInfo, error)
}

// TokenConfig holds the provider OAuth client settings.
type TokenConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	HTTPTimeout  time.Duration
}

// TokenService manages the provider credential lifecycle for each profile:
// grant exchange, encrypted persistence, refresh, and revocation.
type TokenService struct {
	profiles    ProfileStore
	credentials CredentialStore
	identity    IdentityFetcher
	vault       *vault.Vault
	oauth       *oauth2.Config
	httpClient  *http.Client

	mu       sync.Mutex
	refreshM map[uuid.UUID]*sync.Mutex
}

// NewTokenService creates a new TokenService.
func NewTokenService(profiles ProfileStore, credentials CredentialStore, identity IdentityFetcher, v *vault.Vault, cfg TokenConfig) *TokenService {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TokenService{
		profiles:    profiles,
		credentials: credentials,
		identity:    identity,
		vault:       v,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{"personal", "daily"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
				// The provider expects client_id/client_secret in the
				// form body, not basic auth.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{Timeout: timeout},
		refreshM:   make(map[uuid.UUID]*sync.Mutex),
	}
}

// AuthCodeURL returns the provider consent page URL for the given state.
func (s *TokenService) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

// CompleteGrant exchanges a one-time authorization code, resolves the
// provider account behind it, upserts the owning profile, and stores the
// encrypted credential pair. Exchange failures wrap domain.ErrGrantExchange
// and are not retried, since authorization codes are single-use.
func (s *TokenService) CompleteGrant(ctx context.Context, code string) (*domain.Profile, error) {
	token, err := s.oauth.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGrantExchange, err)
	}

	info, err := s.identity.FetchPersonalInfo(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch personal info: %w", err)
	}

	profile, err := s.profiles.Upsert(ctx, domain.Profile{
		OuraUserID:  info.ID,
		Email:       info.Email,
		DisplayName: displayNameFromEmail(info.Email),
	})
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}

	if err := s.storeToken(ctx, profile.ID, token, nil); err != nil {
		return nil, err
	}

	slog.Info("provider credential stored", "profile_id", profile.ID, "expires_at", token.Expiry)
	return profile, nil
}

// ValidToken returns an access token for the profile that is not known to
// be expired. Expired tokens are refreshed in place; refresh failures are
// classified so a recoverable outage never destroys a credential while a
// permanently rejected refresh token always does.
func (s *TokenService) ValidToken(ctx context.Context, profileID uuid.UUID) (string, error) {
	// Serialize refreshes per profile. The credential is re-read under the
	// lock, so of two concurrent callers seeing an expired token only the
	// first hits the refresh endpoint; the second observes the new row.
	mu := s.profileMutex(profileID)
	mu.Lock()
	defer mu.Unlock()

	cred, err := s.credentials.FindByProfileID(ctx, profileID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrNoCredential
		}
		return "", err
	}

	aad := credentialAAD(profileID)
	access, err := s.vault.DecryptString(cred.AccessTokenEncrypted, aad)
	if err != nil {
		return "", s.discardUndecryptable(ctx, profileID, err)
	}

	if !cred.Expired(time.Now(), expirySkew) {
		return access, nil
	}

	return s.refresh(ctx, profileID, cred)
}

// Revoke unconditionally deletes the stored credential. Idempotent.
func (s *TokenService) Revoke(ctx context.Context, profileID uuid.UUID) error {
	if err := s.credentials.Delete(ctx, profileID); err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	slog.Info("provider credential revoked", "profile_id", profileID)
	return nil
}

func (s *TokenService) refresh(ctx context.Context, profileID uuid.UUID, cred *domain.Credential) (string, error) {
	if cred.RefreshTokenEncrypted == nil {
		// Expired and nothing to refresh with; only a fresh grant helps.
		if err := s.credentials.Delete(ctx, profileID); err != nil {
			return "", err
		}
		return "", fmt.Errorf("access token expired and no refresh token stored: %w", domain.ErrCredentialRevoked)
	}

	aad := credentialAAD(profileID)
	refreshToken, err := s.vault.DecryptString(*cred.RefreshTokenEncrypted, aad)
	if err != nil {
		return "", s.discardUndecryptable(ctx, profileID, err)
	}

	src := s.oauth.TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		if isInvalidGrant(err) {
			if delErr := s.credentials.Delete(ctx, profileID); delErr != nil {
				return "", delErr
			}
			slog.Warn("refresh token rejected, credential deleted", "profile_id", profileID)
			return "", fmt.Errorf("refresh rejected by provider: %w", domain.ErrCredentialRevoked)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrTransientRefresh, err)
	}

	// The provider does not always rotate the refresh token; keep the old
	// one when the response omits it.
	var keepRefresh *string
	if token.RefreshToken == "" {
		keepRefresh = cred.RefreshTokenEncrypted
	}
	if err := s.storeToken(ctx, profileID, token, keepRefresh); err != nil {
		return "", err
	}

	slog.Info("provider token refreshed", "profile_id", profileID, "expires_at", token.Expiry)
	return token.AccessToken, nil
}

// storeToken encrypts and upserts a token pair. keepRefreshEncrypted, when
// non-nil, is an already-encrypted refresh token carried over from the
// previous credential.
func (s *TokenService) storeToken(ctx context.Context, profileID uuid.UUID, token *oauth2.Token, keepRefreshEncrypted *string) error {
	aad := credentialAAD(profileID)

	accessEnc, err := s.vault.EncryptString(token.AccessToken, aad)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}

	refreshEnc := keepRefreshEncrypted
	if token.RefreshToken != "" {
		enc, err := s.vault.EncryptString(token.RefreshToken, aad)
		if err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
		refreshEnc = &enc
	}

	scope, _ := token.Extra("scope").(string)
	if _, err := s.credentials.Upsert(ctx, domain.Credential{
		ProfileID:             profileID,
		AccessTokenEncrypted:  accessEnc,
		RefreshTokenEncrypted: refreshEnc,
		ExpiresAt:             token.Expiry,
		Scopes:                scope,
	}); err != nil {
		return err
	}
	return nil
}

// discardUndecryptable deletes a credential whose ciphertext no longer
// opens under the configured key. Keeping it would fail every request
// forever, so it is treated like a revoked credential.
func (s *TokenService) discardUndecryptable(ctx context.Context, profileID uuid.UUID, cause error) error {
	if err := s.credentials.Delete(ctx, profileID); err != nil {
		return err
	}
	slog.Warn("undecryptable credential deleted", "profile_id", profileID, "error", cause)
	return fmt.Errorf("%w: %w", domain.ErrCredentialRevoked, cause)
}

func (s *TokenService) profileMutex(profileID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.refreshM[profileID]
	if !ok {
		m = &sync.Mutex{}
		s.refreshM[profileID] = m
	}
	return m
}

// oauthContext installs a timeout-bounded HTTP client for oauth2 calls.
func (s *TokenService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// credentialAAD is the associated data sealing every token to its owner.
func credentialAAD(profileID uuid.UUID) []byte {
	return []byte("profile:" + profileID.String())
}

// isInvalidGrant reports whether a refresh failure means the refresh token
// is permanently rejected, as opposed to a recoverable network or server
// error.
func isInvalidGrant(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return false
	}
	if retrieveErr.ErrorCode == "invalid_grant" {
		return true
	}
	return strings.Contains(string(retrieveErr.Body), "invalid_grant")
}

func displayNameFromEmail(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
