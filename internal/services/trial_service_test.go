package services

import (
	"context"
	"testing"
	"time"

	"connectsprobot/internal/fleet"
	"connectsprobot/internal/models"
	"connectsprobot/internal/policy"
	"connectsprobot/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type nilOpener struct{}

func (nilOpener) Open(ctx context.Context, credential string) (transport.Transport, error) {
	return &fakeTransport{name: "dedicated"}, nil
}

func TestRunSweepWarnsOnceAtThreshold(t *testing.T) {
	owners := new(mockOwnerRepo)
	cache := newMemoryCache()
	frontDoor := &fakeTransport{name: "frontdoor"}
	engine := policy.NewEngine(2, 9, 23, 50, 120, time.UTC)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	// 113 days in: TrialDaysRemaining lands on 7.
	start := now.AddDate(0, 0, -113)
	tok := "tok"
	owners.On("List", mock.Anything).Return([]*models.Owner{
		{TelegramID: 600, Mode: models.ModeDedicatedChannel, IsActive: true, BotToken: &tok, TrialStart: &start},
	}, nil)

	orch := fleet.NewOrchestrator(fleet.NewRegistry(), nilOpener{}, owners, engine, func(int64, transport.Transport) transport.Handler {
		return func(context.Context, transport.Event) {}
	})
	orch.SetClock(func() time.Time { return now })

	svc := NewTrialService(orch, owners, engine, cache, frontDoor)
	svc.SetClock(func() time.Time { return now })

	summary, err := svc.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 1, summary.Active)

	sent := frontDoor.sentTexts()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "7 days")

	// The dedup key suppresses a repeat warning within the window.
	_, err = svc.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Len(t, frontDoor.sentTexts(), 1)
}

func TestRunSweepSkipsSharedAndExpired(t *testing.T) {
	owners := new(mockOwnerRepo)
	cache := newMemoryCache()
	frontDoor := &fakeTransport{name: "frontdoor"}
	engine := policy.NewEngine(2, 9, 23, 50, 120, time.UTC)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	start := now.AddDate(0, 0, -113)
	tok := "tok"
	owners.On("List", mock.Anything).Return([]*models.Owner{
		{TelegramID: 1, Mode: models.ModeSharedFrontDoor, IsActive: true},
		{TelegramID: 2, Mode: models.ModeDedicatedChannel, IsActive: true, BotToken: &tok, TrialStart: &start, TrialExpired: true},
	}, nil)

	orch := fleet.NewOrchestrator(fleet.NewRegistry(), nilOpener{}, owners, engine, func(int64, transport.Transport) transport.Handler {
		return func(context.Context, transport.Event) {}
	})
	orch.SetClock(func() time.Time { return now })

	svc := NewTrialService(orch, owners, engine, cache, frontDoor)
	svc.SetClock(func() time.Time { return now })

	_, err := svc.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, frontDoor.sentTexts())
}

func TestCleanupService(t *testing.T) {
	msgs := new(mockMessageRepo)
	retention := 72 * 24 * time.Hour
	msgs.On("PurgeOlderThan", mock.Anything, retention).Return(int64(12), nil)

	svc := NewCleanupService(msgs, retention)
	deleted, err := svc.RunDailyCleanup(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(12), deleted)

	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, now.AddDate(0, 0, -72), svc.RetentionCutoff(now))
}

func TestBroadcastCountsFailures(t *testing.T) {
	users := new(mockUserRepo)
	owners := new(mockOwnerRepo)
	frontDoor := &fakeTransport{name: "frontdoor"}

	users.On("ListTelegramIDs", mock.Anything).Return([]int64{1, 2, 3}, nil)

	svc := NewBroadcastService(users, owners, frontDoor)
	sent, failed, err := svc.Send(context.Background(), AudienceUsers, "hello all")

	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	assert.Equal(t, 0, failed)
	assert.Len(t, frontDoor.sentTexts(), 3)
}

func TestBroadcastUnknownAudience(t *testing.T) {
	svc := NewBroadcastService(new(mockUserRepo), new(mockOwnerRepo), &fakeTransport{})
	_, _, err := svc.Send(context.Background(), Audience("nobody"), "hi")
	assert.Error(t, err)
}
