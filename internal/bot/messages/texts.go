// Package messages holds the chat texts shared by the Telegram and LINE
// adapters and renders analysis results for them.
package messages

import (
	"fmt"
	"strings"
)

const intro = `I'm the AllergyMenu Assistant. I help you check quickly whether the dishes on a restaurant menu contain your allergens.

✨ What I do:
• Read the text of a menu photo (OCR)
• Let AI work out which allergens each dish may contain
• Sort the dishes against your own allergies into:
✅ Safe to eat
❌ Not safe to eat
⚠️ Be careful

🔄 Your allergies can be updated at any time
🗂 Several allergies can be checked at once (peanut, dairy, seafood, egg...)`

const setupHint = `First set your allergies with /setallergy,
then set your Gemini API key with /setapikey so I can process your requests.`

// Welcome is sent on /start and when a LINE user follows the account.
func Welcome(name string) string {
	greeting := "Hello!"
	if name = strings.TrimSpace(name); name != "" {
		greeting = fmt.Sprintf("Hello, %s!", name)
	}
	return greeting + "\n\n" + intro + "\n\n" + setupHint
}

// Help lists the commands.
func Help() string {
	return intro + `

Commands:
/setallergy - set your allergies
/myallergies - show your allergies
/setapikey - set your Gemini API key
/clear - clear the value you are currently editing
/cancel - cancel the current step
/help - show this message

Your API key is stored encrypted, is only used for your own requests and can be cleared at any time.
Send me a photo of a menu to start.`
}

const (
	APIKeyPrompt       = "Please send your Gemini API key.\n\nSend /clear to remove the stored key\nSend /cancel to cancel"
	APIKeySaved        = "Your Gemini API key has been saved. I deleted your message so the key doesn't stay in the chat."
	APIKeySavedNoDel   = "Your Gemini API key has been saved. Please delete your message so the key doesn't stay in the chat."
	APIKeyCleared      = "Your Gemini API key has been removed."
	APIKeyRequired     = "Please set your Gemini API key first with /setapikey."
	AllergiesCleared   = "Your allergies have been cleared."
	Cancelled          = "Cancelled."
	NothingToCancel    = "There is nothing to cancel."
	NothingToClear     = "There is nothing to clear. Use /setallergy or /setapikey first."
	UnknownCommand     = "Unknown command. Use /help to see what I can do."
	SendPhotoHint      = "Send me a photo of a menu and I'll check it against your allergies. Use /help to see all commands."
	GenericError       = "Sorry, something went wrong. Please try again."
	BusyTryLater       = "I'm analysing too many menus right now. Please try again in a moment."
	ImageDownloadError = "I couldn't download your photo. Please send it again."
)

// AllergyPrompt asks for a comma separated allergy list and shows what is
// currently stored.
func AllergyPrompt(current []string) string {
	var b strings.Builder
	b.WriteString("Please tell me what you are allergic to, separated by commas (,)\n")
	if len(current) > 0 {
		fmt.Fprintf(&b, "Current allergies:\n%s\n", JoinAllergies(current))
	}
	b.WriteString("\nSend /cancel to cancel\nSend /clear to clear your allergies")
	return b.String()
}

// AllergyInputInvalid re-prompts after a blank allergy list.
func AllergyInputInvalid(current []string) string {
	return "Sorry, I couldn't read that.\n" + AllergyPrompt(current)
}

func AllergiesSaved(allergies []string) string {
	return fmt.Sprintf("Your allergies have been saved:\n%s", JoinAllergies(allergies))
}

func MyAllergies(allergies []string) string {
	if len(allergies) == 0 {
		return "You haven't set any allergies yet. Use /setallergy to set them."
	}
	return fmt.Sprintf("Your allergies:\n%s", JoinAllergies(allergies))
}

// Acknowledge is sent as soon as a photo arrives, before the analysis runs.
func Acknowledge(allergies []string) string {
	text := "Got it, please wait..."
	if len(allergies) > 0 {
		return text + fmt.Sprintf("\nI'll check the dishes against your allergies: (%s).", JoinAllergies(allergies))
	}
	return text + "\n(You haven't set any allergies yet, use /setallergy to set them.)"
}

func JoinAllergies(allergies []string) string {
	return strings.Join(allergies, ", ")
}
