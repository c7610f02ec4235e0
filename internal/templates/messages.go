package templates

import "fmt"

const IntroMessage = `👋 Welcome to ConnectsProBot!

Through this bot, you can safely connect and message channel or business owners.

1. If you came here via a channel link, your messages go directly to that owner.
2. The owner can reply to you privately, without sharing any personal info.

Business owner? Send /register to set up your own channel.`

const RegisterPrompt = `Choose your option:

/free — Start With This Bot. Use ConnectsProBot directly, free with limits (2 messages per user per day, active 9:00–23:50).

/pro — Start Your Own Bot. Your own branded bot, 4 months free trial, no limits.`

const TrialExpiredMessage = `⚠️ This bot's trial has ended.

Subscription Coming Soon.
Please wait for update.`

const (
	SentConfirmation     = "✅ Message sent! The owner will reply soon."
	ReplySentConfirmation = "✅ Reply sent!"
	DeliveryFailedText   = "❌ Failed to deliver message. Please try again."
	OwnerGoneText        = "❌ This business is no longer available."
	OwnerInactiveText    = "❌ This business is currently inactive."
	NoTargetText         = "👋 Welcome! Use /start to begin or use a channel's direct link."
)

// OutsideWindowText tells a user when the shared front door is open.
func OutsideWindowText(startHour, endHour, endMinute int) string {
	return fmt.Sprintf("⏰ Free mode is active only from %d:00 to %d:%02d.\n\nPlease try again during active hours!", startHour, endHour, endMinute)
}

// DailyLimitText tells a user the per-day cap is spent.
func DailyLimitText(limit int) string {
	return fmt.Sprintf("📫 You've reached your daily limit of %d messages.\n\nTry again tomorrow!", limit)
}

// ConnectedText greets a user who followed an owner's deep link.
func ConnectedText(businessName, bio string) string {
	if bio == "" {
		bio = "Send us a message!"
	}
	return fmt.Sprintf("👋 Welcome! You're connected to %s.\n\n%s\n\nSend your message below and the owner will reply soon!", businessName, bio)
}

// ForwardText formats a user message for the owner's inbox.
func ForwardText(displayName, username, body string) string {
	from := displayName
	if username != "" {
		from = fmt.Sprintf("%s (@%s)", displayName, username)
	}
	return fmt.Sprintf("📩 New Message\n\nFrom: %s\nMessage: %s\n\nReply to this message to respond", from, body)
}

// ReplyText formats an owner reply for the user.
func ReplyText(businessName, body string) string {
	return fmt.Sprintf("📬 Reply from %s:\n\n%s", businessName, body)
}
