package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"connectsprobot/internal/caching"
	"connectsprobot/internal/fleet"
	"connectsprobot/internal/models"
	"connectsprobot/internal/policy"
	"connectsprobot/internal/repositories"
	"connectsprobot/internal/transport"
)

const warnDedup = 48 * time.Hour

// TrialService runs the periodic trial sweep: the orchestrator handles
// expiries, and owners approaching the end of trial get a warning message
// (once per threshold, deduplicated through the cache).
type TrialService struct {
	orch      *fleet.Orchestrator
	owners    repositories.OwnerRepository
	engine    *policy.Engine
	cache     caching.CacheService
	frontDoor transport.Transport
	now       func() time.Time
}

func NewTrialService(orch *fleet.Orchestrator, owners repositories.OwnerRepository, engine *policy.Engine, cache caching.CacheService, frontDoor transport.Transport) *TrialService {
	return &TrialService{
		orch:      orch,
		owners:    owners,
		engine:    engine,
		cache:     cache,
		frontDoor: frontDoor,
		now:       time.Now,
	}
}

// SetClock overrides the sweep clock, for tests.
func (s *TrialService) SetClock(now func() time.Time) { s.now = now }

// RunSweep checks every dedicated tenant's trial and notifies the ones
// expiring in 7 days or 1 day.
func (s *TrialService) RunSweep(ctx context.Context) (fleet.TrialSummary, error) {
	summary, err := s.orch.CheckTrials(ctx)
	if err != nil {
		return summary, err
	}
	log.Printf("trial sweep: checked=%d expired=%d active=%d", summary.Checked, summary.Expired, summary.Active)

	owners, err := s.owners.List(ctx)
	if err != nil {
		return summary, err
	}
	now := s.now()
	for _, owner := range owners {
		if owner.Mode != models.ModeDedicatedChannel || owner.TrialExpired || !owner.IsActive {
			continue
		}
		if remaining := s.engine.TrialDaysRemaining(owner, now); remaining == 7 || remaining == 1 {
			s.warn(ctx, owner, remaining)
		}
	}
	return summary, nil
}

func (s *TrialService) warn(ctx context.Context, owner *models.Owner, remaining int) {
	key := fmt.Sprintf("connectspro:trialwarn:%d:%d", owner.TelegramID, remaining)
	if sent, err := s.cache.GetString(ctx, key); err != nil || sent != "" {
		return
	}

	var text string
	if remaining == 1 {
		text = "🚨 Last Day of Trial!\n\nYour free trial ends tomorrow.\n\nAfter expiration, your bot will be paused.\nSubscription options coming soon!"
	} else {
		text = fmt.Sprintf("⚠️ Trial Expiring Soon!\n\nYour free trial ends in %d days.\n\nSubscription options coming soon!", remaining)
	}

	if _, err := s.frontDoor.Send(ctx, owner.TelegramID, text); err != nil {
		log.Printf("trial sweep: warning owner %d: %v", owner.TelegramID, err)
		return
	}
	if err := s.cache.SetString(ctx, key, "1", warnDedup); err != nil {
		log.Printf("trial sweep: dedup key for owner %d: %v", owner.TelegramID, err)
	}
}
