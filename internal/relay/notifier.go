package relay

import (
	"context"
	"log"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"
)

// ChannelNotifier posts operator messages to the log channel. Sends happen in
// the background and failures are only logged.
type ChannelNotifier struct {
	Bot     *telego.Bot
	ChatID  int64
	Limiter *rate.Limiter
}

func (n *ChannelNotifier) Notify(_ context.Context, text string) {
	if n == nil || n.Bot == nil || n.ChatID == 0 {
		log.Printf("notify: %s", text)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if n.Limiter != nil {
			if err := n.Limiter.Wait(ctx); err != nil {
				return
			}
		}
		if _, err := n.Bot.SendMessage(ctx, tu.Message(tu.ID(n.ChatID), text)); err != nil {
			log.Printf("Failed to post to log channel: %v", err)
		}
	}()
}
