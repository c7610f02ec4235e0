package fleet

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"connectsprobot/internal/models"
	"connectsprobot/internal/policy"
	"connectsprobot/internal/repositories"
	"connectsprobot/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type fakeTransport struct {
	mu         sync.Mutex
	credential string
	started    bool
	stopped    bool
	handler    transport.Handler
	sent       []string
}

func (f *fakeTransport) Username() string { return "bot_" + f.credential }

func (f *fakeTransport) Send(ctx context.Context, chatID int64, text string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return int64(len(f.sent)), nil
}

func (f *fakeTransport) Subscribe(h transport.Handler) { f.handler = h }

func (f *fakeTransport) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeTransport) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeTransport) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []*fakeTransport
	fail   map[string]error
}

func (o *fakeOpener) Open(ctx context.Context, credential string) (transport.Transport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err, ok := o.fail[credential]; ok {
		return nil, err
	}
	t := &fakeTransport{credential: credential}
	o.opened = append(o.opened, t)
	return t, nil
}

type mockOwnerRepo struct {
	mock.Mock
}

func (m *mockOwnerRepo) GetByTelegramID(ctx context.Context, id int64) (*models.Owner, error) {
	args := m.Called(ctx, id)
	owner, _ := args.Get(0).(*models.Owner)
	return owner, args.Error(1)
}

func (m *mockOwnerRepo) Register(ctx context.Context, id int64, username *string, mode models.OwnerMode) (*models.Owner, error) {
	args := m.Called(ctx, id, username, mode)
	owner, _ := args.Get(0).(*models.Owner)
	return owner, args.Error(1)
}

func (m *mockOwnerRepo) Update(ctx context.Context, id int64, delta repositories.OwnerUpdate) (*models.Owner, error) {
	args := m.Called(ctx, id, delta)
	owner, _ := args.Get(0).(*models.Owner)
	return owner, args.Error(1)
}

func (m *mockOwnerRepo) Stats(ctx context.Context, id int64) (*repositories.OwnerStats, error) {
	args := m.Called(ctx, id)
	stats, _ := args.Get(0).(*repositories.OwnerStats)
	return stats, args.Error(1)
}

func (m *mockOwnerRepo) List(ctx context.Context) ([]*models.Owner, error) {
	args := m.Called(ctx)
	owners, _ := args.Get(0).([]*models.Owner)
	return owners, args.Error(1)
}

func (m *mockOwnerRepo) ListActiveDedicated(ctx context.Context) ([]*models.Owner, error) {
	args := m.Called(ctx)
	owners, _ := args.Get(0).([]*models.Owner)
	return owners, args.Error(1)
}

func (m *mockOwnerRepo) MarkTrialExpired(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockOwnerRepo) SetActive(ctx context.Context, id int64, active bool) error {
	return m.Called(ctx, id, active).Error(0)
}

func (m *mockOwnerRepo) ListTelegramIDs(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

func (m *mockOwnerRepo) ListDedicatedAudience(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

func noopBind(ownerID int64, t transport.Transport) transport.Handler {
	return func(ctx context.Context, ev transport.Event) {}
}

func testPolicyEngine() *policy.Engine {
	return policy.NewEngine(2, 9, 23, 50, 120, time.UTC)
}

func TestRegistryPutGetRemove(t *testing.T) {
	r := NewRegistry()
	ft := &fakeTransport{credential: "a"}

	r.Put(&Handle{OwnerID: 1, Transport: ft})
	h, ok := r.Get(1)
	assert.True(t, ok)
	assert.Equal(t, ft, h.Transport)
	assert.Equal(t, 1, r.Len())

	removed := r.Remove(1)
	assert.Equal(t, ft, removed.Transport)
	_, ok = r.Get(1)
	assert.False(t, ok)
	assert.Nil(t, r.Remove(1))
}

func TestRegisterAndDeregister(t *testing.T) {
	opener := &fakeOpener{}
	registry := NewRegistry()
	orch := NewOrchestrator(registry, opener, new(mockOwnerRepo), testPolicyEngine(), noopBind)

	err := orch.Register(context.Background(), 42, "credA")
	assert.NoError(t, err)

	h, ok := registry.Get(42)
	assert.True(t, ok)
	assert.Equal(t, "bot_credA", h.Transport.Username())
	assert.True(t, opener.opened[0].started)

	err = orch.Deregister(context.Background(), 42)
	assert.NoError(t, err)
	assert.True(t, opener.opened[0].isStopped())
	_, ok = registry.Get(42)
	assert.False(t, ok)
}

func TestDeregisterIdempotent(t *testing.T) {
	orch := NewOrchestrator(NewRegistry(), &fakeOpener{}, new(mockOwnerRepo), testPolicyEngine(), noopBind)

	assert.NoError(t, orch.Deregister(context.Background(), 42))
	assert.NoError(t, orch.Deregister(context.Background(), 42))
}

func TestRegisterReplacesRunningInstance(t *testing.T) {
	opener := &fakeOpener{}
	registry := NewRegistry()
	orch := NewOrchestrator(registry, opener, new(mockOwnerRepo), testPolicyEngine(), noopBind)

	assert.NoError(t, orch.Register(context.Background(), 42, "credA"))
	assert.NoError(t, orch.Register(context.Background(), 42, "credB"))

	// The old instance is stopped; the registry serves the new credential.
	assert.True(t, opener.opened[0].isStopped())
	assert.False(t, opener.opened[1].isStopped())
	h, ok := registry.Get(42)
	assert.True(t, ok)
	assert.Equal(t, "bot_credB", h.Transport.Username())
	assert.Equal(t, 1, registry.Len())
}

func TestConcurrentRegisterDeregisterSingleTenant(t *testing.T) {
	opener := &fakeOpener{}
	registry := NewRegistry()
	orch := NewOrchestrator(registry, opener, new(mockOwnerRepo), testPolicyEngine(), noopBind)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				assert.NoError(t, orch.Register(context.Background(), 42, fmt.Sprintf("cred%d", i)))
			} else {
				assert.NoError(t, orch.Deregister(context.Background(), 42))
			}
		}(i)
	}
	wg.Wait()

	// At most one handle survives; every other opened transport was stopped.
	assert.LessOrEqual(t, registry.Len(), 1)
	var live transport.Transport
	if h, ok := registry.Get(42); ok {
		live = h.Transport
	}
	for _, ft := range opener.opened {
		if ft == live {
			assert.False(t, ft.isStopped())
			continue
		}
		assert.True(t, ft.isStopped(), "replaced instance %s left running", ft.credential)
	}
}

func TestRegisterOpenFailureLeavesUnregistered(t *testing.T) {
	opener := &fakeOpener{fail: map[string]error{"bad": transport.ErrInvalidCredential}}
	registry := NewRegistry()
	orch := NewOrchestrator(registry, opener, new(mockOwnerRepo), testPolicyEngine(), noopBind)

	err := orch.Register(context.Background(), 42, "bad")
	assert.ErrorIs(t, err, transport.ErrInvalidCredential)
	_, ok := registry.Get(42)
	assert.False(t, ok)
}

func TestStartAllIsolatesFailures(t *testing.T) {
	opener := &fakeOpener{fail: map[string]error{"broken": transport.ErrUnreachable}}
	registry := NewRegistry()
	owners := new(mockOwnerRepo)

	tokA, tokBroken, tokC := "okA", "broken", "okC"
	start := time.Now()
	owners.On("ListActiveDedicated", mock.Anything).Return([]*models.Owner{
		{TelegramID: 1, Mode: models.ModeDedicatedChannel, IsActive: true, BotToken: &tokA, TrialStart: &start},
		{TelegramID: 2, Mode: models.ModeDedicatedChannel, IsActive: true, BotToken: &tokBroken, TrialStart: &start},
		{TelegramID: 3, Mode: models.ModeDedicatedChannel, IsActive: true, BotToken: &tokC, TrialStart: &start},
	}, nil)

	orch := NewOrchestrator(registry, opener, owners, testPolicyEngine(), noopBind)
	started, failed := orch.StartAll(context.Background())

	assert.Equal(t, 2, started)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, registry.Len())
	_, ok := registry.Get(2)
	assert.False(t, ok)
}

func TestCheckTrialsExpiresAndStops(t *testing.T) {
	opener := &fakeOpener{}
	registry := NewRegistry()
	owners := new(mockOwnerRepo)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	oldStart := now.AddDate(0, 0, -200)
	freshStart := now.AddDate(0, 0, -10)
	tok := "tok"

	owners.On("List", mock.Anything).Return([]*models.Owner{
		{TelegramID: 1, Mode: models.ModeDedicatedChannel, IsActive: true, BotToken: &tok, TrialStart: &oldStart},
		{TelegramID: 2, Mode: models.ModeDedicatedChannel, IsActive: true, BotToken: &tok, TrialStart: &freshStart},
		{TelegramID: 3, Mode: models.ModeSharedFrontDoor, IsActive: true},
	}, nil)
	owners.On("MarkTrialExpired", mock.Anything, int64(1)).Return(true, nil).Once()

	orch := NewOrchestrator(registry, opener, owners, testPolicyEngine(), noopBind)
	orch.SetClock(func() time.Time { return now })

	assert.NoError(t, orch.Register(context.Background(), 1, "credExpired"))
	assert.NoError(t, orch.Register(context.Background(), 2, "credLive"))

	summary, err := orch.CheckTrials(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 1, summary.Expired)
	assert.Equal(t, 1, summary.Active)

	// The expired tenant's instance is gone, the live one untouched.
	_, ok := registry.Get(1)
	assert.False(t, ok)
	_, ok = registry.Get(2)
	assert.True(t, ok)
	owners.AssertExpectations(t)
}

func TestCheckTrialsPersistedFlagNotReMarked(t *testing.T) {
	owners := new(mockOwnerRepo)
	tok := "tok"
	start := time.Now().AddDate(0, 0, -200)

	owners.On("List", mock.Anything).Return([]*models.Owner{
		{TelegramID: 1, Mode: models.ModeDedicatedChannel, BotToken: &tok, TrialStart: &start, TrialExpired: true},
	}, nil)

	orch := NewOrchestrator(NewRegistry(), &fakeOpener{}, owners, testPolicyEngine(), noopBind)
	summary, err := orch.CheckTrials(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Expired)
	owners.AssertNotCalled(t, "MarkTrialExpired", mock.Anything, mock.Anything)
}

func TestStopAll(t *testing.T) {
	opener := &fakeOpener{}
	registry := NewRegistry()
	orch := NewOrchestrator(registry, opener, new(mockOwnerRepo), testPolicyEngine(), noopBind)

	for i := 1; i <= 3; i++ {
		assert.NoError(t, orch.Register(context.Background(), int64(i), fmt.Sprintf("cred%d", i)))
	}
	orch.StopAll(context.Background())

	assert.Equal(t, 0, registry.Len())
	for _, ft := range opener.opened {
		assert.True(t, ft.isStopped())
	}
}
