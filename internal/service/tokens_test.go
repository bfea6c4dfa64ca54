package service

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringboard/ringboard/internal/domain"
	"github.com/ringboard/ringboard/internal/vault"
)

// memProfileStore is an in-memory ProfileStore for tests.
type memProfileStore struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]domain.Profile
	order    []uuid.UUID
}

func newMemProfileStore() *memProfileStore {
	return &memProfileStore{profiles: make(map[uuid.UUID]domain.Profile)}
}

func (s *memProfileStore) FindByID(_ context.Context, id uuid.UUID) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (s *memProfileStore) List(_ context.Context) ([]domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Profile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.profiles[id])
	}
	return out, nil
}

func (s *memProfileStore) Upsert(_ context.Context, profile domain.Profile) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if s.profiles[id].OuraUserID == profile.OuraUserID {
			existing := s.profiles[id]
			existing.Email = profile.Email
			existing.DisplayName = profile.DisplayName
			s.profiles[id] = existing
			return &existing, nil
		}
	}
	profile.ID = uuid.New()
	profile.CreatedAt = time.Now()
	s.profiles[profile.ID] = profile
	s.order = append(s.order, profile.ID)
	return &profile, nil
}

func (s *memProfileStore) add(p domain.Profile) domain.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.profiles[p.ID] = p
	s.order = append(s.order, p.ID)
	return p
}

// memCredentialStore is an in-memory CredentialStore for tests.
type memCredentialStore struct {
	mu    sync.Mutex
	creds map[uuid.UUID]domain.Credential
}

func newMemCredentialStore() *memCredentialStore {
	return &memCredentialStore{creds: make(map[uuid.UUID]domain.Credential)}
}

func (s *memCredentialStore) FindByProfileID(_ context.Context, profileID uuid.UUID) (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[profileID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (s *memCredentialStore) Upsert(_ context.Context, cred domain.Credential) (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.ProfileID] = cred
	return &cred, nil
}

func (s *memCredentialStore) Delete(_ context.Context, profileID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, profileID)
	return nil
}

func (s *memCredentialStore) get(profileID uuid.UUID) (domain.Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[profileID]
	return c, ok
}

// fakeIdentity returns a fixed personal-info payload.
type fakeIdentity struct {
	info domain.PersonalInfo
}

func (f *fakeIdentity) FetchPersonalInfo(context.Context, string) (*domain.PersonalInfo, error) {
	info := f.info
	return &info, nil
}

type tokenFixture struct {
	svc      *TokenService
	profiles *memProfileStore
	creds    *memCredentialStore
	vault    *vault.Vault
	hits     *atomic.Int64
}

// newTokenFixture wires a TokenService against an httptest token endpoint.
func newTokenFixture(t *testing.T, tokenHandler http.HandlerFunc) *tokenFixture {
	t.Helper()

	hits := &atomic.Int64{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		tokenHandler(w, r)
	}))
	t.Cleanup(srv.Close)

	v, err := vault.New(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	profiles := newMemProfileStore()
	creds := newMemCredentialStore()
	svc := NewTokenService(profiles, creds, &fakeIdentity{info: domain.PersonalInfo{ID: "oura-1", Email: "kai@example.com"}}, v, TokenConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURI:  "http://localhost/callback",
		AuthURL:      srv.URL + "/oauth/authorize",
		TokenURL:     srv.URL + "/oauth/token",
		HTTPTimeout:  5 * time.Second,
	})

	return &tokenFixture{svc: svc, profiles: profiles, creds: creds, vault: v, hits: hits}
}

// seedCredential stores an encrypted credential directly.
func (f *tokenFixture) seedCredential(t *testing.T, profileID uuid.UUID, access, refresh string, expiresAt time.Time) {
	t.Helper()
	aad := credentialAAD(profileID)
	accessEnc, err := f.vault.EncryptString(access, aad)
	require.NoError(t, err)

	cred := domain.Credential{
		ProfileID:            profileID,
		AccessTokenEncrypted: accessEnc,
		ExpiresAt:            expiresAt,
	}
	if refresh != "" {
		refreshEnc, err := f.vault.EncryptString(refresh, aad)
		require.NoError(t, err)
		cred.RefreshTokenEncrypted = &refreshEnc
	}
	_, err = f.creds.Upsert(context.Background(), cred)
	require.NoError(t, err)
}

func jsonToken(w http.ResponseWriter, access, refresh string, expiresIn int) {
	w.Header().Set("Content-Type", "application/json")
	body := `{"access_token":"` + access + `","token_type":"bearer","expires_in":` + strconv.Itoa(expiresIn) + `,"scope":"personal daily"`
	if refresh != "" {
		body += `,"refresh_token":"` + refresh + `"`
	}
	body += `}`
	w.Write([]byte(body))
}

func TestValidTokenUnexpiredSkipsRefresh(t *testing.T) {
	f := newTokenFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("token endpoint must not be called for an unexpired credential")
	})

	profileID := uuid.New()
	f.seedCredential(t, profileID, "fresh-access", "refresh", time.Now().Add(time.Hour))

	token, err := f.svc.ValidToken(context.Background(), profileID)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", token)
	assert.EqualValues(t, 0, f.hits.Load())
}

func TestValidTokenNoCredential(t *testing.T) {
	f := newTokenFixture(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := f.svc.ValidToken(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNoCredential)
}

func TestValidTokenRefreshesExpired(t *testing.T) {
	f := newTokenFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.Form.Get("refresh_token"))
		assert.Equal(t, "client", r.Form.Get("client_id"))
		jsonToken(w, "new-access", "new-refresh", 3600)
	})

	profileID := uuid.New()
	f.seedCredential(t, profileID, "stale-access", "old-refresh", time.Now().Add(-time.Minute))

	token, err := f.svc.ValidToken(context.Background(), profileID)
	require.NoError(t, err)
	assert.Equal(t, "new-access", token)
	assert.EqualValues(t, 1, f.hits.Load())

	// The new pair is persisted encrypted as a unit.
	cred, ok := f.creds.get(profileID)
	require.True(t, ok)
	aad := credentialAAD(profileID)
	access, err := f.vault.DecryptString(cred.AccessTokenEncrypted, aad)
	require.NoError(t, err)
	assert.Equal(t, "new-access", access)
	require.NotNil(t, cred.RefreshTokenEncrypted)
	refresh, err := f.vault.DecryptString(*cred.RefreshTokenEncrypted, aad)
	require.NoError(t, err)
	assert.Equal(t, "new-refresh", refresh)
	assert.True(t, cred.ExpiresAt.After(time.Now().Add(30*time.Minute)))
}

func TestRefreshKeepsOldRefreshTokenWhenOmitted(t *testing.T) {
	f := newTokenFixture(t, func(w http.ResponseWriter, r *http.Request) {
		jsonToken(w, "new-access", "", 3600)
	})

	profileID := uuid.New()
	f.seedCredential(t, profileID, "stale-access", "keep-me", time.Now().Add(-time.Minute))

	_, err := f.svc.ValidToken(context.Background(), profileID)
	require.NoError(t, err)

	cred, ok := f.creds.get(profileID)
	require.True(t, ok)
	require.NotNil(t, cred.RefreshTokenEncrypted)
	refresh, err := f.vault.DecryptString(*cred.RefreshTokenEncrypted, credentialAAD(profileID))
	require.NoError(t, err)
	assert.Equal(t, "keep-me", refresh)
}

func TestRefreshInvalidGrantDeletesCredential(t *testing.T) {
	f := newTokenFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
	})

	profileID := uuid.New()
	f.seedCredential(t, profileID, "stale-access", "revoked-refresh", time.Now().Add(-time.Minute))

	_, err := f.svc.ValidToken(context.Background(), profileID)
	assert.ErrorIs(t, err, domain.ErrCredentialRevoked)

	_, ok := f.creds.get(profileID)
	assert.False(t, ok, "credential row must be deleted on invalid_grant")

	// With the row gone the lifecycle is back at NoCredential.
	_, err = f.svc.ValidToken(context.Background(), profileID)
	assert.ErrorIs(t, err, domain.ErrNoCredential)
}

func TestRefreshServerErrorIsTransient(t *testing.T) {
	f := newTokenFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("upstream exploded"))
	})

	profileID := uuid.New()
	f.seedCredential(t, profileID, "stale-access", "refresh", time.Now().Add(-time.Minute))

	_, err := f.svc.ValidToken(context.Background(), profileID)
	assert.ErrorIs(t, err, domain.ErrTransientRefresh)

	_, ok := f.creds.get(profileID)
	assert.True(t, ok, "credential must survive a transient refresh failure")
}

func TestValidTokenUndecryptableCredentialTreatedAsRevoked(t *testing.T) {
	f := newTokenFixture(t, func(w http.ResponseWriter, r *http.Request) {})

	profileID := uuid.New()
	otherVault, err := vault.New(bytes.Repeat([]byte{0x99}, 32))
	require.NoError(t, err)
	foreign, err := otherVault.EncryptString("access", credentialAAD(profileID))
	require.NoError(t, err)
	_, err = f.creds.Upsert(context.Background(), domain.Credential{
		ProfileID:            profileID,
		AccessTokenEncrypted: foreign,
		ExpiresAt:            time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = f.svc.ValidToken(context.Background(), profileID)
	assert.ErrorIs(t, err, domain.ErrCredentialRevoked)
	assert.ErrorIs(t, err, domain.ErrDecryption)

	_, ok := f.creds.get(profileID)
	assert.False(t, ok)
}

func TestExpiredWithoutRefreshTokenIsRevoked(t *testing.T) {
	f := newTokenFixture(t, func(w http.ResponseWriter, r *http.Request) {})

	profileID := uuid.New()
	f.seedCredential(t, profileID, "stale-access", "", time.Now().Add(-time.Minute))

	_, err := f.svc.ValidToken(context.Background(), profileID)
	assert.ErrorIs(t, err, domain.ErrCredentialRevoked)
	assert.EqualValues(t, 0, f.hits.Load())
}

func TestConcurrentValidTokenRefreshesOnce(t *testing.T) {
	f := newTokenFixture(t, func(w http.ResponseWriter, r *http.Request) {
		jsonToken(w, "new-access", "new-refresh", 3600)
	})

	profileID := uuid.New()
	f.seedCredential(t, profileID, "stale-access", "refresh", time.Now().Add(-time.Minute))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := f.svc.ValidToken(context.Background(), profileID)
			assert.NoError(t, err)
			assert.Equal(t, "new-access", token)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, f.hits.Load(), "concurrent callers must share one refresh")
}

func TestCompleteGrant(t *testing.T) {
	f := newTokenFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "one-time-code", r.Form.Get("code"))
		jsonToken(w, "granted-access", "granted-refresh", 86400)
	})

	profile, err := f.svc.CompleteGrant(context.Background(), "one-time-code")
	require.NoError(t, err)
	assert.Equal(t, "oura-1", profile.OuraUserID)
	assert.Equal(t, "kai@example.com", profile.Email)
	assert.Equal(t, "kai", profile.DisplayName)

	cred, ok := f.creds.get(profile.ID)
	require.True(t, ok)
	access, err := f.vault.DecryptString(cred.AccessTokenEncrypted, credentialAAD(profile.ID))
	require.NoError(t, err)
	assert.Equal(t, "granted-access", access)
	assert.Equal(t, "personal daily", cred.Scopes)

	token, err := f.svc.ValidToken(context.Background(), profile.ID)
	require.NoError(t, err)
	assert.Equal(t, "granted-access", token)
}

func TestCompleteGrantBadCode(t *testing.T) {
	f := newTokenFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"code already used"}`))
	})

	_, err := f.svc.CompleteGrant(context.Background(), "used-code")
	assert.ErrorIs(t, err, domain.ErrGrantExchange)
	assert.EqualValues(t, 1, f.hits.Load(), "single-use codes are never retried")
}

func TestRevokeIdempotent(t *testing.T) {
	f := newTokenFixture(t, func(w http.ResponseWriter, r *http.Request) {})

	profileID := uuid.New()
	f.seedCredential(t, profileID, "access", "refresh", time.Now().Add(time.Hour))

	require.NoError(t, f.svc.Revoke(context.Background(), profileID))
	_, ok := f.creds.get(profileID)
	assert.False(t, ok)

	require.NoError(t, f.svc.Revoke(context.Background(), profileID))
}
