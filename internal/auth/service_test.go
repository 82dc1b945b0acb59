package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crucial707/hci-auth/internal/models"
	"github.com/crucial707/hci-auth/internal/password"
	"github.com/crucial707/hci-auth/internal/ratelimit"
	"github.com/crucial707/hci-auth/internal/repo"
	"github.com/crucial707/hci-auth/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// memStore is a UserStore that serialises every operation behind one mutex,
// which gives the same guarantees the unique index and row locks give in Postgres.
type memStore struct {
	mu      sync.Mutex
	nextID  int
	byID    map[int]*models.User
	byName  map[string]int
	failAll error
}

func newMemStore() *memStore {
	return &memStore{byID: map[int]*models.User{}, byName: map[string]int{}}
}

func (m *memStore) Create(_ context.Context, username, hash string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[username]; ok {
		return nil, repo.ErrDuplicateUsername
	}
	m.nextID++
	u := &models.User{ID: m.nextID, Username: username, PasswordHash: hash, CreatedAt: time.Now()}
	m.byID[u.ID] = u
	m.byName[username] = u.ID
	cp := *u
	return &cp, nil
}

func (m *memStore) GetByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byName[username]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *memStore) GetByID(_ context.Context, id int) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) BumpVersion(_ context.Context, id int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return 0, repo.ErrNotFound
	}
	u.TokenVersion++
	return u.TokenVersion, nil
}

func (m *memStore) BumpAllVersions(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return 0, m.failAll
	}
	for _, u := range m.byID {
		u.TokenVersion++
	}
	return int64(len(m.byID)), nil
}

func (m *memStore) setHash(username, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[m.byName[username]].PasswordHash = hash
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*Service, *memStore, *testClock) {
	t.Helper()

	hasher, err := password.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	secret := []byte("test-secret")
	store := newMemStore()
	svc, err := NewService(
		store,
		hasher,
		token.NewIssuer(secret, "hci-auth"),
		token.NewValidator(secret, "hci-auth"),
		ratelimit.NewMemory(100, time.Hour),
		3*time.Hour,
	)
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	svc.SetClock(clock.Now)
	return svc, store, clock
}

func TestService_Scenario(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	alice, err := svc.Register(ctx, "alice", "pw1")
	require.NoError(t, err)

	t1, err := svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, 0, t1.Version)

	u, err := svc.Authenticate(ctx, t1.Value)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, u.ID)
	assert.Equal(t, "alice", u.Username)

	n, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = svc.Authenticate(ctx, t1.Value)
	assert.ErrorIs(t, err, ErrStaleToken)

	t2, err := svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, 1, t2.Version)

	u, err = svc.Authenticate(ctx, t2.Value)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, u.ID)
}

func TestService_RegisterDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Register(ctx, "bob", "pw1")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "bob", "other")
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestService_RegisterDuplicateConcurrent(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	var wins, dups atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Register(ctx, "carol", "pw1")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrDuplicateUsername):
				dups.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load())
	assert.Equal(t, int64(15), dups.Load())
	assert.Len(t, store.byID, 1)
}

func TestService_RegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Register(ctx, "", "pw1")
	assert.ErrorIs(t, err, ErrInvalidUsername)

	_, err = svc.Register(ctx, string([]byte{0xff}), "pw1")
	assert.ErrorIs(t, err, ErrEncoding)

	_, err = svc.Register(ctx, "dave", string([]byte{0xff, 0xfe}))
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Register(ctx, "erin", "pw1")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "erin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody", "pw1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_LoginCorruptHash(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	_, err := svc.Register(ctx, "frank", "pw1")
	require.NoError(t, err)
	store.setHash("frank", "garbage")

	_, err = svc.Login(ctx, "frank", "pw1")
	assert.ErrorIs(t, err, ErrCorruptHash)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_AuthenticateExpired(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)

	_, err := svc.Register(ctx, "gina", "pw1")
	require.NoError(t, err)
	tok, err := svc.Login(ctx, "gina", "pw1")
	require.NoError(t, err)

	clock.Advance(3*time.Hour + time.Second)

	_, err = svc.Authenticate(ctx, tok.Value)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestService_AuthenticateErrors(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, ErrMalformedToken)

	other, err := token.NewIssuer([]byte("other"), "hci-auth").
		Issue(&models.User{ID: 1}, time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC), time.Hour)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, other.Value)
	assert.ErrorIs(t, err, ErrTamperedToken)
}

func TestService_AuthenticateDeletedUserIsStale(t *testing.T) {
	ctx := context.Background()
	svc, store, clock := newTestService(t)

	tok, err := token.NewIssuer([]byte("test-secret"), "hci-auth").
		Issue(&models.User{ID: 99}, clock.Now(), time.Hour)
	require.NoError(t, err)
	require.Empty(t, store.byID)

	_, err = svc.Authenticate(ctx, tok.Value)
	assert.ErrorIs(t, err, ErrStaleToken)
}

func TestService_RevokeAll(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	hank, err := svc.Register(ctx, "hank", "pw1")
	require.NoError(t, err)
	ivy, err := svc.Register(ctx, "ivy", "pw1")
	require.NoError(t, err)

	hankTok, err := svc.Login(ctx, "hank", "pw1")
	require.NoError(t, err)
	ivyTok, err := svc.Login(ctx, "ivy", "pw1")
	require.NoError(t, err)

	v, err := svc.RevokeAll(ctx, hank.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = svc.Authenticate(ctx, hankTok.Value)
	assert.ErrorIs(t, err, ErrStaleToken)

	u, err := svc.Authenticate(ctx, ivyTok.Value)
	require.NoError(t, err)
	assert.Equal(t, ivy.ID, u.ID)

	_, err = svc.RevokeAll(ctx, 12345)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestService_RateLimit(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)

	key := ratelimit.UserKey(1)
	for i := 0; i < 100; i++ {
		d, err := svc.RateLimit(ctx, key)
		require.NoError(t, err)
		require.True(t, d.Allowed, "call %d", i+1)
	}

	d, err := svc.RateLimit(ctx, key)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	clock.Advance(time.Hour)

	d, err = svc.RateLimit(ctx, key)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestService_SweepError(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.failAll = errors.New("store unavailable")

	_, err := svc.Sweep(context.Background())
	assert.Error(t, err)
}
