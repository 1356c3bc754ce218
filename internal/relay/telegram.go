package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"
)

// Telegram relays vault messages with telego. Outbound calls share one
// limiter so bursts stay under the Bot API's global send rate.
type Telegram struct {
	Bot         *telego.Bot
	VaultChatID int64
	Limiter     *rate.Limiter
	now         func() time.Time
}

func NewTelegram(bot *telego.Bot, vaultChatID int64, limiter *rate.Limiter) *Telegram {
	return &Telegram{Bot: bot, VaultChatID: vaultChatID, Limiter: limiter, now: time.Now}
}

// NewLimiter allows rps sends per second with a burst of one second's worth.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Relay copies vault message ref into recipient's chat. With protect set the
// recipient cannot forward or save it.
func (t *Telegram) Relay(ctx context.Context, ref int, recipient int64, protect bool) (Delivered, error) {
	if err := t.wait(ctx); err != nil {
		return Delivered{}, err
	}

	params := tu.CopyMessage(tu.ID(recipient), tu.ID(t.VaultChatID), ref)
	params.ProtectContent = protect

	sent, err := t.Bot.CopyMessage(ctx, params)
	if err != nil {
		return Delivered{}, fmt.Errorf("copy %d to %d: %w", ref, recipient, classify(err))
	}
	return Delivered{Recipient: recipient, MessageID: sent.MessageID, DeliveredAt: t.clock()}, nil
}

// Retract deletes a delivered copy.
func (t *Telegram) Retract(ctx context.Context, d Delivered) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.Bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(d.Recipient),
		MessageID: d.MessageID,
	})
}

// Ingest copies a message from a chat into the vault and returns its vault id.
func (t *Telegram) Ingest(ctx context.Context, fromChat int64, messageID int) (int, error) {
	if err := t.wait(ctx); err != nil {
		return 0, err
	}
	sent, err := t.Bot.CopyMessage(ctx, tu.CopyMessage(tu.ID(t.VaultChatID), tu.ID(fromChat), messageID))
	if err != nil {
		return 0, fmt.Errorf("copy to vault: %w", err)
	}
	return sent.MessageID, nil
}

// Forward forwards a message from a public chat, such as the terms post.
func (t *Telegram) Forward(ctx context.Context, recipient int64, fromChat string, messageID int) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	from := tu.Username("@" + strings.TrimPrefix(fromChat, "@"))
	if _, err := t.Bot.ForwardMessage(ctx, &telego.ForwardMessageParams{
		ChatID:     tu.ID(recipient),
		FromChatID: from,
		MessageID:  messageID,
	}); err != nil {
		return fmt.Errorf("forward %s/%d to %d: %w", fromChat, messageID, recipient, err)
	}
	return nil
}

func (t *Telegram) wait(ctx context.Context) error {
	if t.Limiter == nil {
		return nil
	}
	return t.Limiter.Wait(ctx)
}

func (t *Telegram) clock() time.Time {
	if t.now == nil {
		return time.Now()
	}
	return t.now()
}
