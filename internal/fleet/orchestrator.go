package fleet

import (
	"context"
	"fmt"
	"log"
	"time"

	"connectsprobot/internal/models"
	"connectsprobot/internal/policy"
	"connectsprobot/internal/repositories"
	"connectsprobot/internal/transport"
)

// BindFunc builds the inbound handler for one tenant's dedicated transport.
// The transport is passed in so the handler replies over the connection the
// event arrived on, even if the registry entry changes underneath it.
type BindFunc func(ownerID int64, t transport.Transport) transport.Handler

// TrialSummary is the result of one trial sweep.
type TrialSummary struct {
	Checked int `json:"checked"`
	Expired int `json:"expired"`
	Active  int `json:"active"`
}

// Orchestrator drives tenant lifecycle: Unregistered -> Starting -> Running
// -> Stopping -> Unregistered. There is no persisted crashed state; losing
// the in-memory handle leaves the tenant eligible for a future start.
type Orchestrator struct {
	registry *Registry
	opener   transport.Opener
	owners   repositories.OwnerRepository
	engine   *policy.Engine
	bind     BindFunc
	now      func() time.Time
}

func NewOrchestrator(registry *Registry, opener transport.Opener, owners repositories.OwnerRepository, engine *policy.Engine, bind BindFunc) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		opener:   opener,
		owners:   owners,
		engine:   engine,
		bind:     bind,
		now:      time.Now,
	}
}

// Register opens a dedicated instance for the owner, replacing any running
// one. The old handle is fully stopped before the new credential is opened;
// a failed open leaves the tenant unregistered and surfaces the error.
func (o *Orchestrator) Register(ctx context.Context, ownerID int64, credential string) error {
	unlock := o.registry.LockTenant(ownerID)
	defer unlock()

	if prev := o.registry.Remove(ownerID); prev != nil {
		if err := prev.Transport.Stop(ctx); err != nil {
			log.Printf("fleet: stopping previous instance for owner %d: %v", ownerID, err)
		}
	}

	t, err := o.opener.Open(ctx, credential)
	if err != nil {
		return fmt.Errorf("open dedicated instance for owner %d: %w", ownerID, err)
	}
	t.Subscribe(o.bind(ownerID, t))
	if err := t.Start(ctx); err != nil {
		return fmt.Errorf("start dedicated instance for owner %d: %w", ownerID, err)
	}

	o.registry.Put(&Handle{OwnerID: ownerID, Transport: t})
	log.Printf("fleet: dedicated instance started for owner %d (@%s)", ownerID, t.Username())
	return nil
}

// Deregister stops and removes the owner's instance. No-op when none runs.
func (o *Orchestrator) Deregister(ctx context.Context, ownerID int64) error {
	unlock := o.registry.LockTenant(ownerID)
	defer unlock()

	h := o.registry.Remove(ownerID)
	if h == nil {
		return nil
	}
	if err := h.Transport.Stop(ctx); err != nil {
		return fmt.Errorf("stop dedicated instance for owner %d: %w", ownerID, err)
	}
	log.Printf("fleet: dedicated instance stopped for owner %d", ownerID)
	return nil
}

// StartAll boots every eligible dedicated instance. Per-tenant failures are
// logged and skipped, never aborting the batch.
func (o *Orchestrator) StartAll(ctx context.Context) (started int, failed int) {
	owners, err := o.owners.ListActiveDedicated(ctx)
	if err != nil {
		log.Printf("fleet: listing dedicated owners: %v", err)
		return 0, 0
	}

	for _, owner := range owners {
		if !owner.HasCredential() {
			continue
		}
		if err := o.Register(ctx, owner.TelegramID, *owner.BotToken); err != nil {
			log.Printf("fleet: failed to start instance for owner %d: %v", owner.TelegramID, err)
			failed++
			continue
		}
		started++
	}
	log.Printf("fleet: started %d dedicated instances (%d failed)", started, failed)
	return started, failed
}

// StopAll drains every running instance, for process shutdown.
func (o *Orchestrator) StopAll(ctx context.Context) {
	for _, id := range o.registry.IDs() {
		if err := o.Deregister(ctx, id); err != nil {
			log.Printf("fleet: shutdown of owner %d: %v", id, err)
		}
	}
}

// CheckTrials sweeps every dedicated tenant, persists freshly computed
// expiries (a one-way transition) and stops the expired instances.
func (o *Orchestrator) CheckTrials(ctx context.Context) (TrialSummary, error) {
	var summary TrialSummary

	owners, err := o.owners.List(ctx)
	if err != nil {
		return summary, err
	}

	now := o.now()
	for _, owner := range owners {
		if owner.Mode != models.ModeDedicatedChannel {
			continue
		}
		summary.Checked++

		expired, fresh := o.engine.TrialStatus(owner, now)
		if !expired {
			summary.Active++
			continue
		}
		summary.Expired++

		if fresh {
			freshly, err := o.owners.MarkTrialExpired(ctx, owner.TelegramID)
			if err != nil {
				log.Printf("fleet: persisting trial expiry for owner %d: %v", owner.TelegramID, err)
				continue
			}
			if freshly {
				log.Printf("fleet: trial expired for owner %d", owner.TelegramID)
			}
		}
		if err := o.Deregister(ctx, owner.TelegramID); err != nil {
			log.Printf("fleet: stopping expired owner %d: %v", owner.TelegramID, err)
		}
	}
	return summary, nil
}

// SetClock overrides the sweep clock, for tests.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }
