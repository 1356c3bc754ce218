package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// ChannelMembership checks that a user has joined the public channel named by
// Channel (without the leading @).
type ChannelMembership struct {
	Bot     *telego.Bot
	Channel string
}

func NewChannelMembership(bot *telego.Bot, channel string) *ChannelMembership {
	return &ChannelMembership{Bot: bot, Channel: strings.TrimPrefix(channel, "@")}
}

func (m *ChannelMembership) IsMember(ctx context.Context, userID int64) (bool, error) {
	member, err := m.Bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: tu.Username("@" + m.Channel),
		UserID: userID,
	})
	if err != nil {
		return false, fmt.Errorf("get chat member: %w", err)
	}
	return IsJoinedStatus(member.MemberStatus()), nil
}

// JoinLink is the public link to the channel.
func (m *ChannelMembership) JoinLink() string {
	return "https://t.me/" + m.Channel
}

// IsJoinedStatus is false for users who left or were removed from the chat.
func IsJoinedStatus(status string) bool {
	switch status {
	case "left", "kicked", "":
		return false
	default:
		return true
	}
}
