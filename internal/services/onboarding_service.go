package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"connectsprobot/internal/caching"
	"connectsprobot/internal/fleet"
	"connectsprobot/internal/models"
	"connectsprobot/internal/repositories"
	"connectsprobot/internal/transport"
)

// Onboarding walks a new owner through setup over the front door:
// name, category, bio, optional logo, and (for dedicated mode) the bot
// credential. Progress lives on the owner row, so the wizard survives
// restarts.
type Onboarding struct {
	owners      repositories.OwnerRepository
	cache       caching.CacheService
	orch        *fleet.Orchestrator
	registry    *fleet.Registry
	media       MediaService // nil disables logo storage
	frontDoor   transport.Transport
	botUsername string
	categories  []string
	trialDays   int
}

func NewOnboarding(
	owners repositories.OwnerRepository,
	cache caching.CacheService,
	orch *fleet.Orchestrator,
	registry *fleet.Registry,
	media MediaService,
	frontDoor transport.Transport,
	botUsername string,
	categories []string,
	trialDays int,
) *Onboarding {
	return &Onboarding{
		owners:      owners,
		cache:       cache,
		orch:        orch,
		registry:    registry,
		media:       media,
		frontDoor:   frontDoor,
		botUsername: botUsername,
		categories:  categories,
		trialDays:   trialDays,
	}
}

// Begin registers (or re-registers) the owner row in the chosen mode and
// returns the first wizard prompt.
func (o *Onboarding) Begin(ctx context.Context, sender Sender, mode models.OwnerMode) (string, error) {
	if _, err := o.owners.Register(ctx, sender.ID, sender.Username, mode); err != nil {
		return "", err
	}
	o.invalidate(ctx, sender.ID)

	if mode == models.ModeDedicatedChannel {
		return "🚀 Excellent choice!\n\nYou'll get 4 months completely FREE!\n\n📝 Step 1/5: What's your Business/Channel name?", nil
	}
	return "✅ Great choice!\n\n📝 Step 1/4: What's your Business/Channel name?", nil
}

// InProgress reports whether the owner still has wizard steps left.
func (o *Onboarding) InProgress(owner *models.Owner) bool {
	return owner != nil && owner.OnboardingStep != models.StepDone
}

// HandleEvent advances the wizard one step and returns the reply text.
func (o *Onboarding) HandleEvent(ctx context.Context, owner *models.Owner, ev transport.Event) (string, error) {
	switch owner.OnboardingStep {
	case models.StepName:
		return o.handleName(ctx, owner, ev.Text)
	case models.StepCategory:
		return o.handleCategory(ctx, owner, ev.Text)
	case models.StepBio:
		return o.handleBio(ctx, owner, ev.Text)
	case models.StepLogo:
		return o.handleLogo(ctx, owner, ev)
	case models.StepToken:
		return o.handleToken(ctx, owner, ev.Text)
	}
	return "", fmt.Errorf("unexpected onboarding step %q for owner %d", owner.OnboardingStep, owner.TelegramID)
}

func (o *Onboarding) handleName(ctx context.Context, owner *models.Owner, text string) (string, error) {
	name := strings.TrimSpace(text)
	if len(name) < 2 || len(name) > 100 {
		return "❌ Name must be 2-100 characters. Try again:", nil
	}
	if err := o.advance(ctx, owner.TelegramID, repositories.OwnerUpdate{BusinessName: &name}, models.StepCategory); err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Name saved: %s\n\n📂 Step 2: Select your category: %s", name, strings.Join(o.categories, " / ")), nil
}

func (o *Onboarding) handleCategory(ctx context.Context, owner *models.Owner, text string) (string, error) {
	choice := strings.TrimSpace(text)
	var category string
	for _, c := range o.categories {
		if strings.EqualFold(c, choice) {
			category = c
			break
		}
	}
	if category == "" {
		return fmt.Sprintf("❌ Pick one of: %s", strings.Join(o.categories, " / ")), nil
	}
	if err := o.advance(ctx, owner.TelegramID, repositories.OwnerUpdate{Category: &category}, models.StepBio); err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Category: %s\n\n📝 Step 3: Write a short bio for your business (max 500 chars):", category), nil
}

func (o *Onboarding) handleBio(ctx context.Context, owner *models.Owner, text string) (string, error) {
	bio := strings.TrimSpace(text)
	if len(bio) > 500 {
		return "❌ Bio too long! Keep it under 500 characters:", nil
	}
	if err := o.advance(ctx, owner.TelegramID, repositories.OwnerUpdate{Bio: &bio}, models.StepLogo); err != nil {
		return "", err
	}
	return "✅ Bio saved!\n\n🖼 Step 4: Upload your logo, or send /skip:", nil
}

func (o *Onboarding) handleLogo(ctx context.Context, owner *models.Owner, ev transport.Event) (string, error) {
	delta := repositories.OwnerUpdate{}
	saved := ""
	switch {
	case strings.TrimSpace(ev.Text) == "/skip":
	case ev.PhotoFileID != "":
		delta.LogoFileID = &ev.PhotoFileID
		if key := o.storeLogo(ctx, owner.TelegramID, ev.PhotoFileID); key != "" {
			delta.LogoObject = &key
		}
		saved = "✅ Logo saved!\n\n"
	default:
		return "🖼 Upload a photo for your logo, or send /skip:", nil
	}

	if owner.Mode == models.ModeDedicatedChannel {
		if err := o.advance(ctx, owner.TelegramID, delta, models.StepToken); err != nil {
			return "", err
		}
		return saved + "🤖 Step 5: Enter your Bot Token\n\nHow to get a token:\n1. Open @BotFather\n2. Send /newbot\n3. Follow instructions\n4. Copy the token and paste here\n\n⚠️ Keep your token private!", nil
	}

	if err := o.advance(ctx, owner.TelegramID, delta, models.StepDone); err != nil {
		return "", err
	}
	return saved + o.completionText(ctx, owner.TelegramID), nil
}

func (o *Onboarding) handleToken(ctx context.Context, owner *models.Owner, text string) (string, error) {
	token := strings.TrimSpace(text)

	// Register validates the credential against the channel and starts the
	// dedicated instance; a bad token surfaces here and the step repeats.
	if err := o.orch.Register(ctx, owner.TelegramID, token); err != nil {
		if errors.Is(err, transport.ErrInvalidCredential) {
			return "❌ Invalid token! Please check and try again.\n\nMake sure you copied the full token from @BotFather.", nil
		}
		return "", err
	}

	botUsername := ""
	if h, ok := o.registry.Get(owner.TelegramID); ok {
		botUsername = "@" + h.Transport.Username()
	}
	delta := repositories.OwnerUpdate{BotToken: &token}
	if botUsername != "" {
		delta.BotUsername = &botUsername
	}
	if err := o.advance(ctx, owner.TelegramID, delta, models.StepDone); err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Bot validated: %s\n\nYour bot is now active!\n\n", botUsername) + o.completionText(ctx, owner.TelegramID), nil
}

func (o *Onboarding) completionText(ctx context.Context, ownerID int64) string {
	owner, err := o.owners.GetByTelegramID(ctx, ownerID)
	if err != nil || owner == nil {
		return "🎉 Setup Complete!"
	}

	if owner.Mode == models.ModeDedicatedChannel && owner.BotUsername != nil {
		link := fmt.Sprintf("https://t.me/%s?start=owner_%d", strings.TrimPrefix(*owner.BotUsername, "@"), ownerID)
		return fmt.Sprintf("🎉 Setup Complete!\n\n🏢 Business: %s\n🤖 Your Bot: %s\n\n📤 Share this link:\n%s\n\nYour %d-day free trial has started!",
			owner.Name(), *owner.BotUsername, link, o.trialDays)
	}

	link := fmt.Sprintf("https://t.me/%s?start=owner_%d", o.botUsername, ownerID)
	return fmt.Sprintf("🎉 Setup Complete!\n\n🏢 Business: %s\n\n📤 Share this link:\n%s\n\nUsers can now contact you through this bot!",
		owner.Name(), link)
}

// storeLogo copies the uploaded photo into object storage. Failures only
// cost the stored copy; the channel file id is still kept.
func (o *Onboarding) storeLogo(ctx context.Context, ownerID int64, fileID string) string {
	if o.media == nil {
		return ""
	}
	fetcher, ok := o.frontDoor.(transport.FileFetcher)
	if !ok {
		return ""
	}
	body, size, err := fetcher.DownloadFile(ctx, fileID)
	if err != nil {
		log.Printf("onboarding: downloading logo for owner %d: %v", ownerID, err)
		return ""
	}
	defer body.Close()

	key, err := o.media.UploadLogo(ctx, ownerID, body, size)
	if err != nil {
		log.Printf("onboarding: storing logo for owner %d: %v", ownerID, err)
		return ""
	}
	return key
}

func (o *Onboarding) advance(ctx context.Context, ownerID int64, delta repositories.OwnerUpdate, next models.OnboardingStep) error {
	delta.OnboardingStep = &next
	if _, err := o.owners.Update(ctx, ownerID, delta); err != nil {
		return err
	}
	o.invalidate(ctx, ownerID)
	return nil
}

func (o *Onboarding) invalidate(ctx context.Context, ownerID int64) {
	if err := o.cache.DeleteOwner(ctx, ownerID); err != nil {
		log.Printf("onboarding: invalidating owner %d cache: %v", ownerID, err)
	}
}
