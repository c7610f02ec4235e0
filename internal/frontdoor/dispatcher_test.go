package frontdoor

import (
	"context"
	"sync"
	"testing"
	"time"

	"connectsprobot/internal/caching"
	"connectsprobot/internal/models"
	"connectsprobot/internal/repositories"
	"connectsprobot/internal/templates"
	"connectsprobot/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubOwners serves owners from a map; the write methods are unused here.
type stubOwners struct {
	byID map[int64]*models.Owner
}

func (s *stubOwners) GetByTelegramID(ctx context.Context, id int64) (*models.Owner, error) {
	return s.byID[id], nil
}

func (s *stubOwners) Register(ctx context.Context, id int64, username *string, mode models.OwnerMode) (*models.Owner, error) {
	return nil, nil
}

func (s *stubOwners) Update(ctx context.Context, id int64, delta repositories.OwnerUpdate) (*models.Owner, error) {
	return nil, nil
}

func (s *stubOwners) List(ctx context.Context) ([]*models.Owner, error) { return nil, nil }

func (s *stubOwners) ListActiveDedicated(ctx context.Context) ([]*models.Owner, error) {
	return nil, nil
}

func (s *stubOwners) MarkTrialExpired(ctx context.Context, id int64) (bool, error) {
	return false, nil
}

func (s *stubOwners) SetActive(ctx context.Context, id int64, active bool) error { return nil }
func (s *stubOwners) Stats(ctx context.Context, id int64) (*repositories.OwnerStats, error) {
	return nil, nil
}
func (s *stubOwners) ListTelegramIDs(ctx context.Context) ([]int64, error) { return nil, nil }

func (s *stubOwners) ListDedicatedAudience(ctx context.Context) ([]int64, error) { return nil, nil }

type stubCache struct {
	mu       sync.Mutex
	sessions map[int64]int64
}

func newStubCache() *stubCache { return &stubCache{sessions: make(map[int64]int64)} }

func (c *stubCache) GetOwner(ctx context.Context, id int64) (*models.Owner, error) { return nil, nil }
func (c *stubCache) SetOwner(ctx context.Context, owner *models.Owner, ttl time.Duration) error {
	return nil
}
func (c *stubCache) DeleteOwner(ctx context.Context, id int64) error { return nil }

func (c *stubCache) SetActiveOwner(ctx context.Context, userID, ownerID int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[userID] = ownerID
	return nil
}

func (c *stubCache) GetActiveOwner(ctx context.Context, userID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[userID], nil
}

func (c *stubCache) ClearActiveOwner(ctx context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, userID)
	return nil
}

func (c *stubCache) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	return nil
}
func (c *stubCache) GetString(ctx context.Context, key string) (string, error) { return "", nil }

func (c *stubCache) Delete(ctx context.Context, key string) error { return nil }

func (c *stubCache) Ping(ctx context.Context) error { return nil }

var _ caching.CacheService = (*stubCache)(nil)

func dispatchText(t *testing.T, d *Dispatcher, ev transport.Event) []string {
	t.Helper()
	var replies []string
	d.dispatch(context.Background(), ev, func(text string) {
		replies = append(replies, text)
	})
	return replies
}

func TestParseOwnerPayload(t *testing.T) {
	tests := []struct {
		payload string
		wantID  int64
		wantOK  bool
	}{
		{"owner_42", 42, true},
		{" owner_42 ", 42, true},
		{"owner_0", 0, false},
		{"owner_-5", 0, false},
		{"owner_abc", 0, false},
		{"someone_42", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		id, ok := parseOwnerPayload(tt.payload)
		assert.Equal(t, tt.wantOK, ok, "payload %q", tt.payload)
		assert.Equal(t, tt.wantID, id, "payload %q", tt.payload)
	}
}

func TestStartShowsIntro(t *testing.T) {
	d := NewDispatcher(nil, nil, &stubOwners{byID: map[int64]*models.Owner{}}, newStubCache())

	replies := dispatchText(t, d, transport.Event{SenderID: 10, ChatID: 10, Text: "/start"})
	require.Len(t, replies, 1)
	assert.Equal(t, templates.IntroMessage, replies[0])
}

func TestRegisterShowsPrompt(t *testing.T) {
	d := NewDispatcher(nil, nil, &stubOwners{byID: map[int64]*models.Owner{}}, newStubCache())

	replies := dispatchText(t, d, transport.Event{SenderID: 10, ChatID: 10, Text: "/register"})
	require.Len(t, replies, 1)
	assert.Equal(t, templates.RegisterPrompt, replies[0])
}

func TestDeepLinkBindsSession(t *testing.T) {
	name := "Acme"
	bio := "We sell things"
	owners := &stubOwners{byID: map[int64]*models.Owner{
		500: {TelegramID: 500, IsActive: true, BusinessName: &name, Bio: &bio, OnboardingStep: models.StepDone},
	}}
	cache := newStubCache()
	d := NewDispatcher(nil, nil, owners, cache)

	replies := dispatchText(t, d, transport.Event{SenderID: 10, ChatID: 10, Text: "/start owner_500"})
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Acme")
	assert.Contains(t, replies[0], "We sell things")

	bound, err := cache.GetActiveOwner(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(500), bound)
}

func TestDeepLinkOwnerGone(t *testing.T) {
	cache := newStubCache()
	d := NewDispatcher(nil, nil, &stubOwners{byID: map[int64]*models.Owner{}}, cache)

	replies := dispatchText(t, d, transport.Event{SenderID: 10, ChatID: 10, Text: "/start owner_999"})
	require.Len(t, replies, 1)
	assert.Equal(t, templates.OwnerGoneText, replies[0])

	bound, _ := cache.GetActiveOwner(context.Background(), 10)
	assert.Zero(t, bound)
}

func TestDeepLinkInactiveOwner(t *testing.T) {
	owners := &stubOwners{byID: map[int64]*models.Owner{
		500: {TelegramID: 500, IsActive: false, OnboardingStep: models.StepDone},
	}}
	d := NewDispatcher(nil, nil, owners, newStubCache())

	replies := dispatchText(t, d, transport.Event{SenderID: 10, ChatID: 10, Text: "/start owner_500"})
	require.Len(t, replies, 1)
	assert.Equal(t, templates.OwnerInactiveText, replies[0])
}

func TestMalformedDeepLinkFallsBackToIntro(t *testing.T) {
	d := NewDispatcher(nil, nil, &stubOwners{byID: map[int64]*models.Owner{}}, newStubCache())

	replies := dispatchText(t, d, transport.Event{SenderID: 10, ChatID: 10, Text: "/start banana"})
	require.Len(t, replies, 1)
	assert.Equal(t, templates.IntroMessage, replies[0])
}
