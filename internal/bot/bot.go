package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/infraops/infrabot/internal/config"
	"github.com/infraops/infrabot/internal/mfa"
	"github.com/infraops/infrabot/internal/mikrotik"
)

const pollTimeout = 30 // seconds, long-poll

// pendingAuth remembers what a user was doing when the MFA challenge fired so
// the success message can point them back at it.
type pendingAuth struct {
	command  string // slash command, e.g. "/reboot"
	callback string // raw callback data of the interrupted button press
}

// Bot is the Telegram frontend. Every update passes the admin allow-list
// before any handler runs; destructive commands additionally pass the MFA
// session check.
type Bot struct {
	api      *tgbotapi.BotAPI
	cfg      *config.Config
	routers  *mikrotik.Manager
	store    *mfa.Store
	sessions *mfa.SessionManager
	verifier *mfa.Verifier
	log      *slog.Logger

	simple    map[string]simpleCommand
	sensitive map[string]sensitiveCommand
	help      string

	mu      sync.Mutex
	pending map[int64]pendingAuth
}

// New connects to the Telegram Bot API and assembles the command registry.
func New(
	cfg *config.Config,
	routers *mikrotik.Manager,
	store *mfa.Store,
	sessions *mfa.SessionManager,
	verifier *mfa.Verifier,
	log *slog.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("bot: connect to telegram: %w", err)
	}

	simpleList, sensitiveList := simpleCommands(), sensitiveCommands()
	b := &Bot{
		api:       api,
		cfg:       cfg,
		routers:   routers,
		store:     store,
		sessions:  sessions,
		verifier:  verifier,
		log:       log,
		simple:    make(map[string]simpleCommand, len(simpleList)),
		sensitive: make(map[string]sensitiveCommand, len(sensitiveList)),
		help:      helpText(simpleList, sensitiveList),
		pending:   make(map[int64]pendingAuth),
	}
	for _, cmd := range simpleList {
		b.simple[cmd.name] = cmd
	}
	for _, cmd := range sensitiveList {
		b.sensitive[cmd.name] = cmd
	}

	log.Info("connected to Telegram", "username", api.Self.UserName)
	return b, nil
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate dispatches one update. A panicking handler must not take the
// poll loop down with it.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic while handling update", "panic", r)
			if update.Message != nil {
				b.send(update.Message.Chat.ID, "An error occurred. Please try again later.")
			}
		}
	}()

	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		b.log.Warn("rejected message with no sender")
		return
	}
	if !b.cfg.IsAdmin(msg.From.ID) {
		b.log.Warn("unauthorized access denied", "user_id", msg.From.ID)
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.handleVerificationCode(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	name := msg.Command()
	userID, chatID := msg.From.ID, msg.Chat.ID

	switch name {
	case "start", "help":
		b.sendMarkdown(chatID, b.help)
		return
	case "mfa_status":
		b.handleMFAStatus(ctx, userID, chatID)
		return
	}

	if cmd, ok := b.simple[name]; ok {
		reply := tgbotapi.NewMessage(chatID,
			fmt.Sprintf("Select a device to view %s:", strings.ToLower(cmd.description)))
		reply.ReplyMarkup = deviceKeyboard(cmd.name, b.routers.Devices())
		b.deliver(reply)
		return
	}

	if cmd, ok := b.sensitive[name]; ok {
		if !b.requireMFA(ctx, userID, chatID, pendingAuth{command: "/" + cmd.name}) {
			return
		}
		reply := tgbotapi.NewMessage(chatID,
			fmt.Sprintf("Select a device to %s:", strings.ToLower(cmd.description)))
		reply.ReplyMarkup = deviceKeyboard(cmd.name+"_confirm", b.routers.Devices())
		b.deliver(reply)
	}
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.From == nil || query.Message == nil {
		b.log.Warn("rejected callback with no sender or message")
		return
	}
	userID := query.From.ID
	if !b.cfg.IsAdmin(userID) {
		b.log.Warn("unauthorized callback denied", "user_id", userID)
		b.answer(query.ID, "")
		return
	}

	action, slug, ok := parseCallback(query.Data)
	if !ok {
		b.answer(query.ID, "")
		return
	}
	b.answer(query.ID, "")

	chatID, messageID := query.Message.Chat.ID, query.Message.MessageID

	if cmd, ok := b.simple[action]; ok {
		b.runSimple(ctx, cmd, slug, chatID, messageID)
		return
	}

	switch {
	case strings.HasSuffix(action, "_confirm"):
		if cmd, ok := b.sensitive[strings.TrimSuffix(action, "_confirm")]; ok {
			b.showConfirmation(cmd, slug, chatID, messageID)
		}
	case strings.HasSuffix(action, "_yes"):
		if cmd, ok := b.sensitive[strings.TrimSuffix(action, "_yes")]; ok {
			b.runSensitive(ctx, cmd, slug, query, chatID, messageID)
		}
	case strings.HasSuffix(action, "_no"):
		if _, ok := b.sensitive[strings.TrimSuffix(action, "_no")]; ok {
			b.edit(chatID, messageID, "Operation cancelled.")
		}
	}
}

func (b *Bot) runSimple(ctx context.Context, cmd simpleCommand, slug string, chatID int64, messageID int) {
	client, err := b.routers.Client(slug)
	if err != nil {
		b.edit(chatID, messageID, fmt.Sprintf("Device not found: %s", slug))
		return
	}

	identity, err := client.Identity(ctx)
	if err == nil {
		var text string
		text, err = cmd.fetch(ctx, client, identity)
		if err == nil {
			b.editMarkdown(chatID, messageID, truncate(text))
			return
		}
	}

	b.log.Error("command failed", "command", cmd.name, "device", slug, "error", err)
	b.edit(chatID, messageID, fmt.Sprintf("Failed to get %s for %s",
		strings.ToLower(cmd.description), client.Device().Name))
}

func (b *Bot) showConfirmation(cmd sensitiveCommand, slug string, chatID int64, messageID int) {
	client, err := b.routers.Client(slug)
	if err != nil {
		b.edit(chatID, messageID, fmt.Sprintf("Device not found: %s", slug))
		return
	}

	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID,
		cmd.confirm(client.Device().Name), confirmationKeyboard(cmd.name, slug))
	edit.ParseMode = tgbotapi.ModeMarkdown
	b.deliver(edit)
}

// runSensitive executes a confirmed destructive action. The MFA session is
// rechecked here: it may have expired between confirmation and the click.
func (b *Bot) runSensitive(ctx context.Context, cmd sensitiveCommand, slug string, query *tgbotapi.CallbackQuery, chatID int64, messageID int) {
	if !b.recheckMFAForCallback(ctx, query, chatID, messageID) {
		return
	}

	client, err := b.routers.Client(slug)
	if err != nil {
		b.edit(chatID, messageID, fmt.Sprintf("Device not found: %s", slug))
		return
	}

	b.edit(chatID, messageID, fmt.Sprintf("⏳ Processing %s...", strings.ToLower(cmd.description)))

	if err := cmd.execute(ctx, client); err != nil {
		b.log.Error("sensitive command failed", "command", cmd.name, "device", slug, "error", err)
		b.edit(chatID, messageID, fmt.Sprintf("❌ Failed to %s %s",
			strings.ToLower(cmd.description), client.Device().Name))
		return
	}
	b.editMarkdown(chatID, messageID, cmd.success(client.Device().Name))
}

// requireMFA gates a sensitive command at command time. Returns true when the
// user may proceed; otherwise the enrollment hint or the code challenge has
// been sent and the original command stored for retry.
func (b *Bot) requireMFA(ctx context.Context, userID, chatID int64, pending pendingAuth) bool {
	// Fail closed: with MFA disabled there is no way to authorize destructive
	// commands.
	if b.store == nil {
		b.send(chatID, "⚠️ MFA is disabled. Sensitive commands are unavailable.")
		return false
	}

	enrolled, err := b.store.IsEnrolled(ctx, userID)
	if err != nil {
		b.log.Error("enrollment check failed", "user_id", userID, "error", err)
		b.send(chatID, "An error occurred. Please try again later.")
		return false
	}
	if !enrolled {
		b.sendMarkdown(chatID, enrollmentRequiredMessage(userID))
		return false
	}

	valid, err := b.sessions.Valid(ctx, userID)
	if err != nil {
		b.log.Error("session check failed", "user_id", userID, "error", err)
		b.send(chatID, "An error occurred. Please try again later.")
		return false
	}
	if valid {
		return true
	}

	b.setPending(userID, pending)
	b.sendMarkdown(chatID,
		"🔐 *MFA Verification Required*\n\nPlease enter your 6-digit authentication code:")
	return false
}

// recheckMFAForCallback gates the execution step of a confirmed action.
func (b *Bot) recheckMFAForCallback(ctx context.Context, query *tgbotapi.CallbackQuery, chatID int64, messageID int) bool {
	userID := query.From.ID

	if b.store == nil {
		b.edit(chatID, messageID, "⚠️ MFA is disabled. Sensitive commands are unavailable.")
		return false
	}

	enrolled, err := b.store.IsEnrolled(ctx, userID)
	if err != nil {
		b.log.Error("enrollment check failed", "user_id", userID, "error", err)
		b.edit(chatID, messageID, "An error occurred. Please try again later.")
		return false
	}
	if !enrolled {
		b.editMarkdown(chatID, messageID, enrollmentRequiredMessage(userID))
		return false
	}

	valid, err := b.sessions.Valid(ctx, userID)
	if err != nil {
		b.log.Error("session check failed", "user_id", userID, "error", err)
		b.edit(chatID, messageID, "An error occurred. Please try again later.")
		return false
	}
	if valid {
		return true
	}

	b.setPending(userID, pendingAuth{callback: query.Data})
	b.editMarkdown(chatID, messageID,
		"🔐 *MFA Verification Required*\n\nPlease enter your 6-digit authentication code in the chat:")
	return false
}

func (b *Bot) setPending(userID int64, pending pendingAuth) {
	b.mu.Lock()
	b.pending[userID] = pending
	b.mu.Unlock()
}

func (b *Bot) takePending(userID int64) (pendingAuth, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pending, ok := b.pending[userID]
	if ok {
		delete(b.pending, userID)
	}
	return pending, ok
}

// --- delivery helpers ---

func (b *Bot) send(chatID int64, text string) {
	b.deliver(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	b.deliver(msg)
}

func (b *Bot) edit(chatID int64, messageID int, text string) {
	b.deliver(tgbotapi.NewEditMessageText(chatID, messageID, text))
}

func (b *Bot) editMarkdown(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	b.deliver(edit)
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Error("callback answer failed", "error", err)
	}
}

func (b *Bot) deliver(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		// Editing a message into identical content is a Telegram error; don't
		// let it spam the log at error level.
		if strings.Contains(err.Error(), "message is not modified") {
			return
		}
		b.log.Error("telegram send failed", "error", err)
	}
}
