package services

import (
	"context"
	"log"
	"time"

	"connectsprobot/internal/caching"
	"connectsprobot/internal/fleet"
	"connectsprobot/internal/models"
	"connectsprobot/internal/policy"
	"connectsprobot/internal/repositories"
	"connectsprobot/internal/templates"
	"connectsprobot/internal/transport"
)

// Status is the terminal outcome of routing one inbound message.
type Status string

const (
	StatusDelivered      Status = "delivered"
	StatusRejected       Status = "rejected"
	StatusDeliveryFailed Status = "delivery_failed"
)

// Outcome reports what happened to a routed message. On StatusRejected the
// Reason says why; on StatusDeliveryFailed the message was persisted but the
// live send did not land.
type Outcome struct {
	Status       Status
	Reason       policy.Reason
	Conversation *models.Conversation
	CounterToday int
}

// Sender identifies the end-user behind an inbound event.
type Sender struct {
	ID        int64
	Username  *string
	FirstName *string
}

// Router is the message-routing engine: it applies admission policy,
// persists the hop, and forwards it over the right transport. Outbound
// selection is a total match over the owner's mode: dedicated owners use
// their registry handle, everyone else the shared front door.
type Router struct {
	users    repositories.UserRepository
	owners   repositories.OwnerRepository
	convs    repositories.ConversationRepository
	msgs     repositories.MessageRepository
	cache    caching.CacheService
	engine   *policy.Engine
	registry *fleet.Registry

	frontDoor transport.Transport
	timeout   time.Duration
	now       func() time.Time
}

func NewRouter(
	users repositories.UserRepository,
	owners repositories.OwnerRepository,
	convs repositories.ConversationRepository,
	msgs repositories.MessageRepository,
	cache caching.CacheService,
	engine *policy.Engine,
	registry *fleet.Registry,
	frontDoor transport.Transport,
	timeout time.Duration,
) *Router {
	return &Router{
		users:     users,
		owners:    owners,
		convs:     convs,
		msgs:      msgs,
		cache:     cache,
		engine:    engine,
		registry:  registry,
		frontDoor: frontDoor,
		timeout:   timeout,
		now:       time.Now,
	}
}

// SetClock overrides the router clock, for tests.
func (r *Router) SetClock(now func() time.Time) { r.now = now }

// RouteUserMessage carries one user message to its owner. Policy denials
// leave no trace besides the one-way trial-expiry flag; once the message is
// persisted, a failed live delivery is reported as DeliveryFailed without
// rolling anything back.
func (r *Router) RouteUserMessage(ctx context.Context, sender Sender, ownerID int64, text string, originID int64) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	user, err := r.users.Upsert(ctx, sender.ID, sender.Username, sender.FirstName)
	if err != nil {
		return nil, err
	}

	owner, err := r.lookupOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return &Outcome{Status: StatusRejected, Reason: policy.ReasonOwnerNotFound}, nil
	}
	if !owner.IsActive {
		return &Outcome{Status: StatusRejected, Reason: policy.ReasonOwnerInactive}, nil
	}

	now := r.now()
	if dec := r.engine.Admits(owner, nil, now); !dec.Allowed {
		if dec.FreshTrialExpiry {
			r.persistTrialExpiry(ctx, ownerID)
		}
		return &Outcome{Status: StatusRejected, Reason: dec.Reason}, nil
	}

	conv, err := r.convs.GetOrCreate(ctx, sender.ID, ownerID)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Conversation: conv}
	if owner.Mode == models.ModeSharedFrontDoor {
		// The store-level consume is the binding quota check; only a
		// message that clears it is persisted at all.
		count, allowed, err := r.convs.TryConsumeDailyQuota(ctx, sender.ID, ownerID, r.engine.DailyLimit, now.In(r.engine.Loc))
		if err != nil {
			return nil, err
		}
		outcome.CounterToday = count
		if !allowed {
			outcome.Status = StatusRejected
			outcome.Reason = policy.ReasonDailyLimitReached
			return outcome, nil
		}
	}

	if _, err := r.msgs.Append(ctx, conv.ID, models.RoleUser, text, Categorize(text), &originID); err != nil {
		return nil, err
	}

	forward := templates.ForwardText(user.DisplayName(), stringOrEmpty(user.Username), text)
	forwardID, err := r.outboundFor(ownerID).Send(ctx, ownerID, forward)
	if err != nil {
		log.Printf("router: forward to owner %d failed: %v", ownerID, err)
		outcome.Status = StatusDeliveryFailed
		return outcome, nil
	}

	// Best effort: losing the ref only degrades reply correlation.
	if err := r.convs.SetForwardRef(ctx, conv.ID, forwardID); err != nil {
		log.Printf("router: recording forward ref for conversation %s: %v", conv.ID, err)
	}

	outcome.Status = StatusDelivered
	return outcome, nil
}

// RouteOwnerReply carries an owner's reply back to a user, selecting the
// dedicated instance's transport when one runs and appending the
// attribution footer only in dedicated mode.
func (r *Router) RouteOwnerReply(ctx context.Context, ownerID, userID int64, text string) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	owner, err := r.lookupOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return &Outcome{Status: StatusRejected, Reason: policy.ReasonOwnerNotFound}, nil
	}

	conv, err := r.convs.GetOrCreate(ctx, userID, ownerID)
	if err != nil {
		return nil, err
	}
	if _, err := r.msgs.Append(ctx, conv.ID, models.RoleOwner, text, KindOther, nil); err != nil {
		return nil, err
	}

	body := text
	if owner.Mode == models.ModeDedicatedChannel {
		body = templates.AddFooter(body)
	}

	outcome := &Outcome{Conversation: conv}
	if _, err := r.outboundFor(ownerID).Send(ctx, userID, templates.ReplyText(owner.Name(), body)); err != nil {
		log.Printf("router: reply from owner %d to user %d failed: %v", ownerID, userID, err)
		outcome.Status = StatusDeliveryFailed
		return outcome, nil
	}
	outcome.Status = StatusDelivered
	return outcome, nil
}

// ResolveReply maps an owner's reply-to event back to the conversation whose
// forwarded copy it answers. Returns (nil, nil) when nothing matches.
func (r *Router) ResolveReply(ctx context.Context, ownerID, replyToMessageID int64) (*models.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.convs.GetByForwardRef(ctx, ownerID, replyToMessageID)
}

// DedicatedHandler builds the inbound handler for one tenant's own bot.
// Replies to the event's sender always go over t, the transport the event
// arrived on, so a mid-flight deregistration cannot strand them.
func (r *Router) DedicatedHandler(ownerID int64, t transport.Transport) transport.Handler {
	return func(ctx context.Context, ev transport.Event) {
		reply := func(text string) {
			if _, err := t.Send(ctx, ev.ChatID, text); err != nil {
				log.Printf("router: ack to chat %d via owner %d bot failed: %v", ev.ChatID, ownerID, err)
			}
		}

		// The owner answering a forwarded message through their own bot.
		if ev.SenderID == ownerID && ev.ReplyToMessageID != 0 {
			conv, err := r.ResolveReply(ctx, ownerID, ev.ReplyToMessageID)
			if err != nil || conv == nil {
				reply("❌ Could not match this reply to a conversation.")
				return
			}
			outcome, err := r.RouteOwnerReply(ctx, ownerID, conv.UserID, ev.Text)
			if err != nil || outcome.Status != StatusDelivered {
				reply(templates.DeliveryFailedText)
				return
			}
			reply(templates.ReplySentConfirmation)
			return
		}

		if ev.Text == "/start" {
			r.greetDedicated(ctx, ownerID, reply)
			return
		}
		if ev.Text == "" {
			return
		}

		sender := Sender{ID: ev.SenderID}
		if ev.Username != "" {
			sender.Username = &ev.Username
		}
		if ev.FirstName != "" {
			sender.FirstName = &ev.FirstName
		}

		outcome, err := r.RouteUserMessage(ctx, sender, ownerID, ev.Text, ev.MessageID)
		if err != nil {
			reply(templates.DeliveryFailedText)
			return
		}
		reply(r.UserFacingText(outcome))
	}
}

func (r *Router) greetDedicated(ctx context.Context, ownerID int64, reply func(string)) {
	owner, err := r.lookupOwner(ctx, ownerID)
	if err != nil || owner == nil {
		reply(templates.OwnerGoneText)
		return
	}
	if expired, _ := r.engine.TrialStatus(owner, r.now()); expired {
		reply(templates.TrialExpiredMessage)
		return
	}
	bio := ""
	if owner.Bio != nil {
		bio = *owner.Bio
	}
	reply(templates.AddFooter(templates.ConnectedText(owner.Name(), bio)))
}

// UserFacingText translates an outcome into the acknowledgement shown to
// the sending user.
func (r *Router) UserFacingText(outcome *Outcome) string {
	switch outcome.Status {
	case StatusDelivered:
		return templates.SentConfirmation
	case StatusDeliveryFailed:
		return templates.DeliveryFailedText
	}
	switch outcome.Reason {
	case policy.ReasonOwnerNotFound:
		return templates.OwnerGoneText
	case policy.ReasonOwnerInactive:
		return templates.OwnerInactiveText
	case policy.ReasonTrialExpired:
		return templates.TrialExpiredMessage
	case policy.ReasonOutsideActiveWindow:
		return templates.OutsideWindowText(r.engine.StartHour, r.engine.EndHour, r.engine.EndMinute)
	case policy.ReasonDailyLimitReached:
		return templates.DailyLimitText(r.engine.DailyLimit)
	}
	return templates.DeliveryFailedText
}

// lookupOwner reads through the cache; a miss falls back to the store and
// refills. Cache errors degrade to the store, never fail the request.
func (r *Router) lookupOwner(ctx context.Context, ownerID int64) (*models.Owner, error) {
	if cached, err := r.cache.GetOwner(ctx, ownerID); err == nil && cached != nil {
		return cached, nil
	}
	owner, err := r.owners.GetByTelegramID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if owner != nil {
		if err := r.cache.SetOwner(ctx, owner, caching.OwnerTTL); err != nil {
			log.Printf("router: caching owner %d: %v", ownerID, err)
		}
	}
	return owner, nil
}

func (r *Router) persistTrialExpiry(ctx context.Context, ownerID int64) {
	fresh, err := r.owners.MarkTrialExpired(ctx, ownerID)
	if err != nil {
		log.Printf("router: persisting trial expiry for owner %d: %v", ownerID, err)
		return
	}
	if fresh {
		log.Printf("router: trial expired for owner %d", ownerID)
	}
	if err := r.cache.DeleteOwner(ctx, ownerID); err != nil {
		log.Printf("router: invalidating owner %d cache: %v", ownerID, err)
	}
}

// outboundFor picks the transport that reaches the owner's side of a
// conversation: the dedicated instance when one is live, else the shared
// front door.
func (r *Router) outboundFor(ownerID int64) transport.Transport {
	if h, ok := r.registry.Get(ownerID); ok {
		return h.Transport
	}
	return r.frontDoor
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
