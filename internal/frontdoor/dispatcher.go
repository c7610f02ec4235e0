package frontdoor

import (
	"context"
	"log"
	"strconv"
	"strings"

	"connectsprobot/internal/caching"
	"connectsprobot/internal/models"
	"connectsprobot/internal/repositories"
	"connectsprobot/internal/services"
	"connectsprobot/internal/templates"
	"connectsprobot/internal/transport"
)

// Dispatcher owns the shared front-door bot: it greets users arriving via
// deep links, runs owner onboarding, and hands conversation traffic to the
// router. The deep-link target is remembered per user as a session, so later
// plain messages route without repeating the link.
type Dispatcher struct {
	router     *services.Router
	onboarding *services.Onboarding
	owners     repositories.OwnerRepository
	cache      caching.CacheService
}

func NewDispatcher(router *services.Router, onboarding *services.Onboarding, owners repositories.OwnerRepository, cache caching.CacheService) *Dispatcher {
	return &Dispatcher{
		router:     router,
		onboarding: onboarding,
		owners:     owners,
		cache:      cache,
	}
}

// Handler returns the inbound handler to subscribe on the front-door
// transport. Replies go over t, the transport the event arrived on.
func (d *Dispatcher) Handler(t transport.Transport) transport.Handler {
	return func(ctx context.Context, ev transport.Event) {
		reply := func(text string) {
			if _, err := t.Send(ctx, ev.ChatID, text); err != nil {
				log.Printf("frontdoor: reply to chat %d failed: %v", ev.ChatID, err)
			}
		}
		d.dispatch(ctx, ev, reply)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev transport.Event, reply func(string)) {
	// A shared-mode owner answering a forwarded message.
	if ev.ReplyToMessageID != 0 {
		if d.handleOwnerReply(ctx, ev, reply) {
			return
		}
	}

	text := strings.TrimSpace(ev.Text)
	switch {
	case text == "/start":
		reply(templates.IntroMessage)
		return
	case strings.HasPrefix(text, "/start "):
		d.handleDeepLink(ctx, ev, strings.TrimPrefix(text, "/start "), reply)
		return
	case text == "/register":
		reply(templates.RegisterPrompt)
		return
	case text == "/free":
		d.beginOnboarding(ctx, ev, models.ModeSharedFrontDoor, reply)
		return
	case text == "/pro":
		d.beginOnboarding(ctx, ev, models.ModeDedicatedChannel, reply)
		return
	}

	// An owner mid-wizard gets the next step before anything else.
	owner, err := d.owners.GetByTelegramID(ctx, ev.SenderID)
	if err != nil {
		log.Printf("frontdoor: loading owner %d: %v", ev.SenderID, err)
		reply(templates.DeliveryFailedText)
		return
	}
	if d.onboarding.InProgress(owner) {
		out, err := d.onboarding.HandleEvent(ctx, owner, ev)
		if err != nil {
			log.Printf("frontdoor: onboarding step for owner %d: %v", ev.SenderID, err)
			reply(templates.DeliveryFailedText)
			return
		}
		reply(out)
		return
	}

	if text == "" {
		return
	}
	d.handleUserMessage(ctx, ev, text, reply)
}

// handleOwnerReply routes a reply-to event when it correlates to a forwarded
// conversation. Returns false when it does not, letting the event fall
// through to normal dispatch.
func (d *Dispatcher) handleOwnerReply(ctx context.Context, ev transport.Event, reply func(string)) bool {
	conv, err := d.router.ResolveReply(ctx, ev.SenderID, ev.ReplyToMessageID)
	if err != nil {
		log.Printf("frontdoor: resolving reply for owner %d: %v", ev.SenderID, err)
		return false
	}
	if conv == nil {
		return false
	}

	outcome, err := d.router.RouteOwnerReply(ctx, ev.SenderID, conv.UserID, ev.Text)
	if err != nil || outcome.Status != services.StatusDelivered {
		reply(templates.DeliveryFailedText)
		return true
	}
	reply(templates.ReplySentConfirmation)
	return true
}

// handleDeepLink binds the user's session to the linked owner and greets them.
func (d *Dispatcher) handleDeepLink(ctx context.Context, ev transport.Event, payload string, reply func(string)) {
	ownerID, ok := parseOwnerPayload(payload)
	if !ok {
		reply(templates.IntroMessage)
		return
	}

	owner, err := d.owners.GetByTelegramID(ctx, ownerID)
	if err != nil {
		log.Printf("frontdoor: loading linked owner %d: %v", ownerID, err)
		reply(templates.DeliveryFailedText)
		return
	}
	if owner == nil {
		reply(templates.OwnerGoneText)
		return
	}
	if !owner.IsActive {
		reply(templates.OwnerInactiveText)
		return
	}

	if err := d.cache.SetActiveOwner(ctx, ev.SenderID, ownerID, caching.SessionTTL); err != nil {
		log.Printf("frontdoor: binding session for user %d: %v", ev.SenderID, err)
	}

	bio := ""
	if owner.Bio != nil {
		bio = *owner.Bio
	}
	reply(templates.ConnectedText(owner.Name(), bio))
}

func (d *Dispatcher) beginOnboarding(ctx context.Context, ev transport.Event, mode models.OwnerMode, reply func(string)) {
	sender := senderFrom(ev)
	out, err := d.onboarding.Begin(ctx, sender, mode)
	if err != nil {
		log.Printf("frontdoor: starting onboarding for %d: %v", ev.SenderID, err)
		reply(templates.DeliveryFailedText)
		return
	}
	reply(out)
}

// handleUserMessage routes plain text to the user's session owner.
func (d *Dispatcher) handleUserMessage(ctx context.Context, ev transport.Event, text string, reply func(string)) {
	ownerID, err := d.cache.GetActiveOwner(ctx, ev.SenderID)
	if err != nil {
		log.Printf("frontdoor: reading session for user %d: %v", ev.SenderID, err)
	}
	if ownerID == 0 {
		reply(templates.NoTargetText)
		return
	}

	outcome, err := d.router.RouteUserMessage(ctx, senderFrom(ev), ownerID, text, ev.MessageID)
	if err != nil {
		log.Printf("frontdoor: routing message from user %d to owner %d: %v", ev.SenderID, ownerID, err)
		reply(templates.DeliveryFailedText)
		return
	}
	reply(d.router.UserFacingText(outcome))
}

func parseOwnerPayload(payload string) (int64, bool) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(payload), "owner_")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func senderFrom(ev transport.Event) services.Sender {
	s := services.Sender{ID: ev.SenderID}
	if ev.Username != "" {
		s.Username = &ev.Username
	}
	if ev.FirstName != "" {
		s.FirstName = &ev.FirstName
	}
	return s
}
