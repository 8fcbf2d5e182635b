package keyboards

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data. Each maps onto the slash command of the same name.
const (
	SetAllergy  = "setallergy"
	MyAllergies = "myallergies"
	SetAPIKey   = "setapikey"
	Help        = "help"
	Cancel      = "cancel"
	Clear       = "clear"
)

// MainMenu creates the main menu keyboard
func MainMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🥜 Set allergies", SetAllergy),
			tgbotapi.NewInlineKeyboardButtonData("📋 My allergies", MyAllergies),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔑 Set API key", SetAPIKey),
			tgbotapi.NewInlineKeyboardButtonData("❓ Help", Help),
		),
	)
}

// PromptMenu is attached to the allergy and API key prompts.
func PromptMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑️ Clear", Clear),
			tgbotapi.NewInlineKeyboardButtonData("◀️ Cancel", Cancel),
		),
	)
}
