package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/infraops/infrabot/internal/mfa"
)

// codeShapeRegex matches anything a user might plausibly submit as an MFA
// code: a 6-digit TOTP value or an XXXX-XXXX backup code.
var codeShapeRegex = regexp.MustCompile(`^(\d{6}|\d{4}-\d{4})$`)

func enrollmentRequiredMessage(userID int64) string {
	return fmt.Sprintf("⚠️ *MFA Required*\n\n"+
		"This action requires Multi-Factor Authentication.\n\n"+
		"Please ask your infrastructure administrator to enroll you using:\n"+
		"`mfactl enroll %d`", userID)
}

// handleMFAStatus replies with the user's enrollment and session state.
func (b *Bot) handleMFAStatus(ctx context.Context, userID, chatID int64) {
	if b.store == nil {
		b.send(chatID, "⚠️ MFA is disabled in the bot configuration.")
		return
	}

	info, err := b.store.UserInfo(ctx, userID)
	if errors.Is(err, mfa.ErrNotEnrolled) || (err == nil && !info.Active) {
		b.sendMarkdown(chatID, fmt.Sprintf("❌ *MFA Not Enabled*\n\n"+
			"You are not enrolled in Multi-Factor Authentication.\n\n"+
			"Ask your infrastructure administrator to enroll you using:\n"+
			"`mfactl enroll %d`", userID))
		return
	}
	if err != nil {
		b.log.Error("mfa status lookup failed", "user_id", userID, "error", err)
		b.send(chatID, "An error occurred. Please try again later.")
		return
	}

	valid, err := b.sessions.Valid(ctx, userID)
	if err != nil {
		b.log.Error("session check failed", "user_id", userID, "error", err)
		b.send(chatID, "An error occurred. Please try again later.")
		return
	}

	statusIcon, sessionText, sessionDetails := "🔴", "No active session", ""
	if valid {
		statusIcon = "🟢"
		sessionText = fmt.Sprintf("Active (%d min)", int(b.sessions.TTL().Minutes()))
		if sess, err := b.sessions.Info(ctx, userID); err == nil {
			sessionDetails = fmt.Sprintf("Expires: %s UTC\n", sess.ExpiresAt.Format("2006-01-02 15:04:05"))
		}
	}

	lastUsed := "Never"
	if info.LastUsedAt != nil {
		lastUsed = info.LastUsedAt.Format("2006-01-02 15:04:05") + " UTC"
	}

	b.sendMarkdown(chatID, fmt.Sprintf("✅ *MFA Status*\n\n"+
		"%s *Session:* %s\n"+
		"%s"+
		"📅 *Enrolled:* %s UTC\n"+
		"🕐 *Last used:* %s\n\n"+
		"MFA protects critical commands like `/upgrade` and `/reboot`.",
		statusIcon, sessionText, sessionDetails,
		info.CreatedAt.Format("2006-01-02 15:04:05"), lastUsed))
}

// handleVerificationCode processes a plain-text message as an MFA code when
// the user has a pending challenge. Anything else is ignored.
func (b *Bot) handleVerificationCode(ctx context.Context, msg *tgbotapi.Message) {
	userID, chatID := msg.From.ID, msg.Chat.ID

	b.mu.Lock()
	_, hasPending := b.pending[userID]
	b.mu.Unlock()
	if !hasPending {
		return
	}

	code := strings.TrimSpace(msg.Text)
	if !codeShapeRegex.MatchString(code) {
		b.send(chatID, "❌ Invalid code format.\n\n"+
			"Please send a 6-digit number from your authenticator app.")
		return
	}

	result, err := b.verifier.Verify(ctx, userID, code)
	switch {
	case errors.Is(err, mfa.ErrNotEnrolled):
		b.takePending(userID)
		b.send(chatID, "❌ MFA not set up. Please contact your administrator.")
		return

	case errors.Is(err, mfa.ErrRateLimited):
		b.sendMarkdown(chatID, "⏸️ *Too Many Failed Attempts*\n\n"+
			"Please wait 15 minutes before trying again.\n\n"+
			"If you've lost access to your authenticator, contact your administrator.")
		return

	case errors.Is(err, mfa.ErrInvalidCode):
		var codeErr *mfa.CodeError
		attemptsText := ""
		if errors.As(err, &codeErr) && codeErr.AttemptsLeft > 0 {
			attemptsText = fmt.Sprintf("\n\n⚠️ %d attempts remaining.", codeErr.AttemptsLeft)
		}
		b.sendMarkdown(chatID, fmt.Sprintf("❌ *Invalid Authentication Code*\n\n"+
			"The code you entered is incorrect. Please try again.%s\n\n"+
			"Make sure your device time is synchronized.", attemptsText))
		return

	case err != nil:
		b.log.Error("verification failed", "user_id", userID, "error", err)
		b.send(chatID, "An error occurred. Please try again later.")
		return
	}

	suffix := ""
	if result.UsedBackupCode {
		suffix = "\n\n⚠️ You used a backup code. It cannot be used again."
	}
	b.sendMarkdown(chatID, fmt.Sprintf("✅ *Verification Successful!*\n\n"+
		"Your MFA session is active for %d minutes.%s\n\n"+
		"You can now run your command again.",
		int(b.sessions.TTL().Round(time.Minute).Minutes()), suffix))

	pending, _ := b.takePending(userID)
	switch {
	case pending.command != "":
		b.sendMarkdown(chatID, fmt.Sprintf("Please run your command again: `%s`", pending.command))
	case pending.callback != "":
		b.send(chatID, "Please click the button again to continue.")
	}
}
