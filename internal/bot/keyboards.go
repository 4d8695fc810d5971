package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/infraops/infrabot/internal/config"
)

// callbackPrefix namespaces router callbacks as "mt:<action>:<slug>".
const callbackPrefix = "mt"

// deviceKeyboard lists configured devices as buttons in rows of two. Pressing
// one fires "mt:<action>:<slug>".
func deviceKeyboard(action string, devices []config.Device) tgbotapi.InlineKeyboardMarkup {
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(devices))
	for _, d := range devices {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(
			d.Name, fmt.Sprintf("%s:%s:%s", callbackPrefix, action, d.Slug)))
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for len(buttons) > 0 {
		n := min(2, len(buttons))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons[:n]...))
		buttons = buttons[n:]
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// confirmationKeyboard offers Yes/Cancel for a destructive action on a device.
func confirmationKeyboard(action, slug string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("✅ Yes, %s", action),
				fmt.Sprintf("%s:%s_yes:%s", callbackPrefix, action, slug)),
			tgbotapi.NewInlineKeyboardButtonData(
				"❌ Cancel",
				fmt.Sprintf("%s:%s_no:%s", callbackPrefix, action, slug)),
		),
	)
}

// parseCallback splits "mt:<action>:<slug>" callback data.
func parseCallback(data string) (action, slug string, ok bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != callbackPrefix {
		return "", "", false
	}
	return parts[1], parts[2], true
}
