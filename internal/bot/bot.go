package bot

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"refgate-bot/internal/access"
	"refgate-bot/internal/delivery"
	"refgate-bot/internal/ledger"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/skip2/go-qrcode"
)

const (
	callbackGetVideo = "get_video"
	callbackHelp     = "show_help"
)

type Ledger interface {
	RegisterArrival(ctx context.Context, userID int64, referrerID *int64, username string) (ledger.Arrival, error)
	Users(ctx context.Context) ([]int64, error)
}

type Roles interface {
	Has(ctx context.Context, userID int64) (bool, error)
	Grant(ctx context.Context, userID, grantedBy int64) error
	Revoke(ctx context.Context, userID int64) (bool, error)
	List(ctx context.Context) ([]int64, error)
}

type Bans interface {
	IsBanned(ctx context.Context, userID int64) (bool, error)
	Ban(ctx context.Context, userID int64) error
	Unban(ctx context.Context, userID int64) error
}

type Vault interface {
	Add(ctx context.Context, ref int) error
}

type Ingester interface {
	Ingest(ctx context.Context, fromChat int64, messageID int) (int, error)
}

type Deliverer interface {
	Request(ctx context.Context, userID int64) delivery.Outcome
}

type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Membership is the force-join check. A nil Membership disables it.
type Membership interface {
	IsMember(ctx context.Context, userID int64) (bool, error)
	JoinLink() string
}

type Forwarder interface {
	Forward(ctx context.Context, recipient int64, fromChat string, messageID int) error
}

// Terms points at the post forwarded by /privacy.
type Terms struct {
	Chat      string
	MessageID int
}

type Bot struct {
	Instance  *telego.Bot
	Username  string
	OwnerID   int64
	Threshold int

	Ledger   Ledger
	Roles    Roles
	Bans     Bans
	Vault    Vault
	Ingester Ingester
	Delivery Deliverer
	Notifier Notifier

	Membership Membership
	Forwarder  Forwarder
	Terms      Terms
}

// Start long-polls until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.Instance.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.Instance, updates)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	handler.Handle(b.handleStart, th.CommandEqual("start"))
	handler.Handle(b.handleHelp, th.CommandEqual("help"))
	handler.Handle(b.handlePrivacy, th.CommandEqual("privacy"))
	handler.Handle(b.handleGetVideo, th.CallbackDataEqual(callbackGetVideo))
	handler.Handle(b.handleHelpCallback, th.CallbackDataEqual(callbackHelp))

	handler.Handle(b.handleBan, th.CommandEqual("ban"))
	handler.Handle(b.handleUnban, th.CommandEqual("unban"))
	handler.Handle(b.handleAddSudo, th.CommandEqual("addsudo"))
	handler.Handle(b.handleRemoveSudo, th.CommandEqual("rmsudo"))
	handler.Handle(b.handleExportUsers, th.CommandEqual("exportusers"))
	handler.Handle(b.handleListSudo, th.CommandEqual("sudolist"))

	handler.Handle(b.handleUpload, hasVideo)

	log.Printf("Bot @%s is polling for updates", b.Username)
	handler.Start()
	return nil
}

func hasVideo(_ context.Context, update telego.Update) bool {
	return update.Message != nil && update.Message.Video != nil
}

func (b *Bot) handleStart(ctx *th.Context, update telego.Update) error {
	message := update.Message
	if message.From == nil {
		return nil
	}
	user := message.From

	if banned, err := b.Bans.IsBanned(ctx.Context(), user.ID); err != nil {
		log.Printf("Failed to check ban for %d: %v", user.ID, err)
	} else if banned {
		b.reply(ctx, message.Chat.ID, textBanned)
		return nil
	}

	if !b.hasJoined(ctx.Context(), user.ID) {
		b.sendJoinPrompt(ctx, message.Chat.ID)
		return nil
	}

	arrival, err := b.Ledger.RegisterArrival(ctx.Context(), user.ID, parseStartArg(message.Text), user.Username)
	if err != nil {
		log.Printf("Failed to register arrival of %d: %v", user.ID, err)
		b.reply(ctx, message.Chat.ID, textFailed)
		return nil
	}

	if arrival.IsNewUser {
		b.notify(ctx.Context(), newUserLogLine(user))
	}
	if arrival.Linked {
		log.Printf("User %d invited by %d", user.ID, arrival.ReferrerID)
	}
	if arrival.ReferrerUnlocked {
		_, err := ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(arrival.ReferrerID), textReferrerUnlocked))
		if err != nil {
			log.Printf("Failed to notify referrer %d: %v", arrival.ReferrerID, err)
		}
	}

	keyboard := tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("📩 Get Random Video").WithCallbackData(callbackGetVideo),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("Help").WithCallbackData(callbackHelp),
		),
	)

	_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
		tu.ID(message.Chat.ID),
		welcomeText(user.FirstName),
	).WithReplyMarkup(keyboard))

	b.reply(ctx, message.Chat.ID, referralText(access.ReferralLink(b.Username, user.ID), b.threshold()))
	return nil
}

func (b *Bot) handleGetVideo(ctx *th.Context, update telego.Update) error {
	callback := update.CallbackQuery
	userID := callback.From.ID
	_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))

	if !b.hasJoined(ctx.Context(), userID) {
		b.sendJoinPrompt(ctx, userID)
		return nil
	}

	out := b.Delivery.Request(ctx.Context(), userID)

	if out.Stale > 0 && out.Kind == delivery.Delivered {
		b.reply(ctx, userID, textTryingAnother)
	}

	switch out.Kind {
	case delivery.Delivered:
		keyboard := tu.InlineKeyboard(
			tu.InlineKeyboardRow(
				tu.InlineKeyboardButton("📥 Get Another Video").WithCallbackData(callbackGetVideo),
			),
		)
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(userID), textWantAnother).WithReplyMarkup(keyboard))
	case delivery.Locked:
		b.sendLocked(ctx, userID, out.Locked)
	default:
		b.reply(ctx, userID, outcomeText(out, b.threshold()))
	}
	return nil
}

func (b *Bot) sendLocked(ctx *th.Context, chatID int64, state access.LockedState) {
	caption := lockedText(state.ReferralLink, b.threshold())

	png, err := qrcode.Encode(state.ReferralLink, qrcode.Medium, 256)
	if err != nil {
		log.Printf("Failed to render referral QR for %d: %v", chatID, err)
		b.reply(ctx, chatID, caption)
		return
	}

	photo := tu.Photo(tu.ID(chatID), tu.File(tu.NameReader(bytes.NewReader(png), "referral.png"))).
		WithCaption(caption)
	if _, err := ctx.Bot().SendPhoto(ctx.Context(), photo); err != nil {
		log.Printf("Failed to send referral QR to %d: %v", chatID, err)
		b.reply(ctx, chatID, caption)
	}
}

// hasJoined lets elevated users through and fails open when the channel
// cannot be queried.
func (b *Bot) hasJoined(ctx context.Context, userID int64) bool {
	if b.Membership == nil || b.isElevated(ctx, userID) {
		return true
	}
	ok, err := b.Membership.IsMember(ctx, userID)
	if err != nil {
		log.Printf("Failed to check channel membership of %d: %v", userID, err)
		return true
	}
	return ok
}

func (b *Bot) sendJoinPrompt(ctx *th.Context, chatID int64) {
	keyboard := tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("Join Channel").WithURL(b.Membership.JoinLink()),
		),
	)
	_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(chatID), textMustJoin).WithReplyMarkup(keyboard))
}

func (b *Bot) handlePrivacy(ctx *th.Context, update telego.Update) error {
	chatID := update.Message.Chat.ID
	if b.Forwarder == nil || b.Terms.Chat == "" || b.Terms.MessageID == 0 {
		b.reply(ctx, chatID, textPrivacyFailed)
		return nil
	}
	if err := b.Forwarder.Forward(ctx.Context(), chatID, b.Terms.Chat, b.Terms.MessageID); err != nil {
		log.Printf("Failed to forward terms to %d: %v", chatID, err)
		b.reply(ctx, chatID, textPrivacyFailed)
	}
	return nil
}

func (b *Bot) handleHelp(ctx *th.Context, update telego.Update) error {
	b.reply(ctx, update.Message.Chat.ID, textHelp)
	return nil
}

func (b *Bot) handleHelpCallback(ctx *th.Context, update telego.Update) error {
	callback := update.CallbackQuery
	b.reply(ctx, callback.From.ID, textHelp)
	_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
	return nil
}

// handleUpload copies a video from an elevated user into the vault channel.
func (b *Bot) handleUpload(ctx *th.Context, update telego.Update) error {
	message := update.Message
	if message.From == nil || !b.isElevated(ctx.Context(), message.From.ID) {
		return nil
	}

	ref, err := b.Ingester.Ingest(ctx.Context(), message.Chat.ID, message.MessageID)
	if err != nil {
		log.Printf("Failed to copy upload from %d into vault: %v", message.From.ID, err)
		b.reply(ctx, message.Chat.ID, "⚠️ Failed to upload.")
		return nil
	}
	if err := b.Vault.Add(ctx.Context(), ref); err != nil {
		log.Printf("Failed to save vault message %d: %v", ref, err)
		b.reply(ctx, message.Chat.ID, "⚠️ Failed to upload.")
		return nil
	}

	log.Printf("User %d added vault message %d", message.From.ID, ref)
	b.reply(ctx, message.Chat.ID, "✅ Video uploaded and saved to vault.")
	return nil
}

func (b *Bot) isElevated(ctx context.Context, userID int64) bool {
	if userID == b.OwnerID {
		return true
	}
	if b.Roles == nil {
		return false
	}
	ok, err := b.Roles.Has(ctx, userID)
	if err != nil {
		log.Printf("Failed to check role of %d: %v", userID, err)
		return false
	}
	return ok
}

func (b *Bot) reply(ctx *th.Context, chatID int64, text string) {
	if _, err := ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(chatID), text)); err != nil {
		log.Printf("Failed to send message to %d: %v", chatID, err)
	}
}

func (b *Bot) notify(ctx context.Context, text string) {
	if b.Notifier != nil {
		b.Notifier.Notify(ctx, text)
	}
}

func (b *Bot) threshold() int {
	if b.Threshold <= 0 {
		return 1
	}
	return b.Threshold
}

func newUserLogLine(user *telego.User) string {
	username := user.Username
	if username == "" {
		username = "N/A"
	}
	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}
	return fmt.Sprintf("📥 New User Started Bot\n\n👤 Name: %s\n🆔 ID: %d\n📛 Username: @%s\n🕒 %s",
		name, user.ID, username, time.Now().UTC().Format(time.RFC3339))
}
