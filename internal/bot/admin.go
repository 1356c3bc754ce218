package bot

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"time"

	"refgate-bot/internal/access"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Elevated users may ban and unban; only the owner manages roles and exports.

func (b *Bot) handleBan(ctx *th.Context, update telego.Update) error {
	message := update.Message
	if message.From == nil || !b.isElevated(ctx.Context(), message.From.ID) {
		return nil
	}
	target, err := parseTargetID(message.Text)
	if err != nil {
		b.reply(ctx, message.Chat.ID, "⚠️ "+err.Error())
		return nil
	}
	if target == b.OwnerID {
		b.reply(ctx, message.Chat.ID, "⚠️ The owner cannot be banned.")
		return nil
	}

	if err := b.Bans.Ban(ctx.Context(), target); err != nil {
		log.Printf("Failed to ban %d: %v", target, err)
		b.reply(ctx, message.Chat.ID, textFailed)
		return nil
	}
	log.Printf("User %d banned by %d", target, message.From.ID)
	b.notify(ctx.Context(), fmt.Sprintf("🚫 User %d banned by %d", target, message.From.ID))
	b.reply(ctx, message.Chat.ID, fmt.Sprintf("✅ User %d banned.", target))
	return nil
}

func (b *Bot) handleUnban(ctx *th.Context, update telego.Update) error {
	message := update.Message
	if message.From == nil || !b.isElevated(ctx.Context(), message.From.ID) {
		return nil
	}
	target, err := parseTargetID(message.Text)
	if err != nil {
		b.reply(ctx, message.Chat.ID, "⚠️ "+err.Error())
		return nil
	}

	switch err := b.Bans.Unban(ctx.Context(), target); {
	case errors.Is(err, access.ErrUnknownUser):
		b.reply(ctx, message.Chat.ID, fmt.Sprintf("⚠️ User %d has never started the bot.", target))
	case err != nil:
		log.Printf("Failed to unban %d: %v", target, err)
		b.reply(ctx, message.Chat.ID, textFailed)
	default:
		log.Printf("User %d unbanned by %d", target, message.From.ID)
		b.reply(ctx, message.Chat.ID, fmt.Sprintf("✅ User %d unbanned.", target))
	}
	return nil
}

func (b *Bot) handleAddSudo(ctx *th.Context, update telego.Update) error {
	message := update.Message
	if message.From == nil || message.From.ID != b.OwnerID {
		return nil
	}
	target, err := parseTargetID(message.Text)
	if err != nil {
		b.reply(ctx, message.Chat.ID, "⚠️ "+err.Error())
		return nil
	}
	if err := b.Roles.Grant(ctx.Context(), target, message.From.ID); err != nil {
		log.Printf("Failed to grant sudo to %d: %v", target, err)
		b.reply(ctx, message.Chat.ID, textFailed)
		return nil
	}
	log.Printf("Sudo granted to %d", target)
	b.reply(ctx, message.Chat.ID, fmt.Sprintf("✅ User %d is now sudo.", target))
	return nil
}

func (b *Bot) handleRemoveSudo(ctx *th.Context, update telego.Update) error {
	message := update.Message
	if message.From == nil || message.From.ID != b.OwnerID {
		return nil
	}
	target, err := parseTargetID(message.Text)
	if err != nil {
		b.reply(ctx, message.Chat.ID, "⚠️ "+err.Error())
		return nil
	}
	removed, err := b.Roles.Revoke(ctx.Context(), target)
	if err != nil {
		log.Printf("Failed to revoke sudo from %d: %v", target, err)
		b.reply(ctx, message.Chat.ID, textFailed)
		return nil
	}
	if !removed {
		b.reply(ctx, message.Chat.ID, fmt.Sprintf("ℹ️ User %d was not sudo.", target))
		return nil
	}
	log.Printf("Sudo revoked from %d", target)
	b.reply(ctx, message.Chat.ID, fmt.Sprintf("✅ User %d is no longer sudo.", target))
	return nil
}

func (b *Bot) handleListSudo(ctx *th.Context, update telego.Update) error {
	message := update.Message
	if message.From == nil || message.From.ID != b.OwnerID {
		return nil
	}
	ids, err := b.Roles.List(ctx.Context())
	if err != nil {
		log.Printf("Failed to list sudo users: %v", err)
		b.reply(ctx, message.Chat.ID, textFailed)
		return nil
	}
	b.reply(ctx, message.Chat.ID, sudoListText(ids))
	return nil
}

func (b *Bot) handleExportUsers(ctx *th.Context, update telego.Update) error {
	message := update.Message
	if message.From == nil || message.From.ID != b.OwnerID {
		return nil
	}

	ids, err := b.Ledger.Users(ctx.Context())
	if err != nil {
		log.Printf("Failed to list users: %v", err)
		b.reply(ctx, message.Chat.ID, textFailed)
		return nil
	}
	name, data, err := exportUsers(ids, time.Now())
	if err != nil {
		log.Printf("Failed to build user export: %v", err)
		b.reply(ctx, message.Chat.ID, textFailed)
		return nil
	}

	doc := tu.Document(tu.ID(message.Chat.ID), tu.File(tu.NameReader(bytes.NewReader(data), name))).
		WithCaption(fmt.Sprintf("👥 %d users", len(ids)))
	if _, err := ctx.Bot().SendDocument(ctx.Context(), doc); err != nil {
		log.Printf("Failed to send user export: %v", err)
	}
	return nil
}
