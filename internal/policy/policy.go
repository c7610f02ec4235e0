// Package policy holds the pure admission rules for inbound messages:
// trial expiry for dedicated-mode owners, active-hours window and daily
// message caps for shared-mode owners. No side effects; the caller persists
// whatever the decision signals.
package policy

import (
	"time"

	"connectsprobot/internal/models"
)

// Reason explains why a message was not admitted.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonOwnerNotFound       Reason = "owner_not_found"
	ReasonOwnerInactive       Reason = "owner_inactive"
	ReasonTrialExpired        Reason = "trial_expired"
	ReasonOutsideActiveWindow Reason = "outside_active_window"
	ReasonDailyLimitReached   Reason = "daily_limit_reached"
)

// Decision is the outcome of an admission check. FreshTrialExpiry tells the
// caller this check is the first to observe the trial running out, so the
// one-way expired flag should be persisted now.
type Decision struct {
	Allowed          bool
	Reason           Reason
	FreshTrialExpiry bool
}

func allow() Decision        { return Decision{Allowed: true} }
func deny(r Reason) Decision { return Decision{Reason: r} }

// Engine evaluates admission policy. The active window is a closed-open
// interval [StartHour:00, EndHour:EndMinute) evaluated in Loc, a single
// fixed deployment time zone.
type Engine struct {
	DailyLimit int
	StartHour  int
	EndHour    int
	EndMinute  int
	TrialDays  int
	Loc        *time.Location
}

func NewEngine(dailyLimit, startHour, endHour, endMinute, trialDays int, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		DailyLimit: dailyLimit,
		StartHour:  startHour,
		EndHour:    endHour,
		EndMinute:  endMinute,
		TrialDays:  trialDays,
		Loc:        loc,
	}
}

// Admits decides whether a user message addressed to owner may proceed.
// conv may be nil (first contact). The counter check here is advisory; the
// binding check is the store's atomic quota consume, which closes the race
// between concurrent messages of the same pair.
func (e *Engine) Admits(owner *models.Owner, conv *models.Conversation, now time.Time) Decision {
	if owner.Mode == models.ModeDedicatedChannel {
		expired, fresh := e.TrialStatus(owner, now)
		if expired {
			return Decision{Reason: ReasonTrialExpired, FreshTrialExpiry: fresh}
		}
		return allow()
	}

	if !e.WithinActiveWindow(now) {
		return deny(ReasonOutsideActiveWindow)
	}
	if conv != nil && e.counterFor(conv, now) >= e.DailyLimit {
		return deny(ReasonDailyLimitReached)
	}
	return allow()
}

// TrialStatus reports whether the owner's trial is over and whether that is
// newly computed rather than an already-persisted flag. Owners without a
// trial window (shared mode, or no trial start) never expire.
func (e *Engine) TrialStatus(owner *models.Owner, now time.Time) (expired, fresh bool) {
	if owner.TrialExpired {
		return true, false
	}
	if owner.TrialStart == nil {
		return false, false
	}
	if now.After(e.TrialEndsAt(owner)) {
		return true, true
	}
	return false, false
}

// TrialEndsAt returns the end of the owner's trial window; zero if none.
func (e *Engine) TrialEndsAt(owner *models.Owner) time.Time {
	if owner.TrialStart == nil {
		return time.Time{}
	}
	return owner.TrialStart.AddDate(0, 0, e.TrialDays)
}

// TrialDaysRemaining returns whole days left in the trial, never negative.
func (e *Engine) TrialDaysRemaining(owner *models.Owner, now time.Time) int {
	if owner.TrialStart == nil || owner.TrialExpired {
		return 0
	}
	remaining := int(e.TrialEndsAt(owner).Sub(now).Hours() / 24)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// WithinActiveWindow reports whether now falls inside the shared front
// door's active hours, evaluated in the deployment time zone.
func (e *Engine) WithinActiveWindow(now time.Time) bool {
	local := now.In(e.Loc)
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= e.StartHour*60 && minutes < e.EndHour*60+e.EndMinute
}

// counterFor applies the lazy daily reset when reading the rolling counter:
// a stale date counts as zero. The stored value is a plain calendar date,
// so it is compared against today's date in the deployment zone.
func (e *Engine) counterFor(conv *models.Conversation, now time.Time) int {
	if conv.LastMessageDate.Format(time.DateOnly) != now.In(e.Loc).Format(time.DateOnly) {
		return 0
	}
	return conv.MessageCountToday
}
