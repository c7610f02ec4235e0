package models

import (
	"time"
)

// OwnerMode selects how a business owner receives messages: through the
// shared front-door bot or through their own dedicated bot instance.
type OwnerMode string

const (
	ModeSharedFrontDoor  OwnerMode = "shared"
	ModeDedicatedChannel OwnerMode = "dedicated"
)

// OnboardingStep tracks how far an owner has progressed through setup.
type OnboardingStep string

const (
	StepName     OnboardingStep = "name"
	StepCategory OnboardingStep = "category"
	StepBio      OnboardingStep = "bio"
	StepLogo     OnboardingStep = "logo"
	StepToken    OnboardingStep = "token"
	StepDone     OnboardingStep = "done"
)

// Owner is a business owner (tenant). Soft-deleted via IsActive, never purged.
// Dedicated-mode owners carry a bot credential and a bounded trial window;
// shared-mode owners never have a trial window.
type Owner struct {
	TelegramID     int64          `json:"telegram_id" db:"telegram_id"`
	Username       *string        `json:"username" db:"username"`
	BusinessName   *string        `json:"business_name" db:"business_name"`
	Category       *string        `json:"category" db:"category"`
	Bio            *string        `json:"bio" db:"bio"`
	LogoFileID     *string        `json:"logo_file_id" db:"logo_file_id"`
	LogoObject     *string        `json:"logo_object" db:"logo_object"`
	Mode           OwnerMode      `json:"mode" db:"mode"`
	BotToken       *string        `json:"-" db:"bot_token"` // Never serialize in JSON
	BotUsername    *string        `json:"bot_username" db:"bot_username"`
	TrialStart     *time.Time     `json:"trial_start" db:"trial_start"`
	TrialExpired   bool           `json:"trial_expired" db:"trial_expired"`
	IsActive       bool           `json:"is_active" db:"is_active"`
	OnboardingStep OnboardingStep `json:"onboarding_step" db:"onboarding_step"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// Name returns the business name or a placeholder while onboarding is incomplete.
func (o *Owner) Name() string {
	if o.BusinessName != nil && *o.BusinessName != "" {
		return *o.BusinessName
	}
	return "this business"
}

// HasCredential reports whether a dedicated bot token has been provided.
func (o *Owner) HasCredential() bool {
	return o.BotToken != nil && *o.BotToken != ""
}
