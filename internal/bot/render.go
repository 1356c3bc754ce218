package bot

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"refgate-bot/internal/delivery"
)

const (
	textBanned           = "🛑 You are banned from using this bot."
	textFailed           = "⚠️ Something went wrong, please try again later."
	textTransient        = "⚠️ Telegram is busy right now, try again in a moment."
	textNoVideos         = "⚠️ No videos available."
	textTryingAnother    = "⚠️ That video was broken. Trying another..."
	textWantAnother      = "😈 Want another?"
	textMustJoin         = "🛑 You must join our channel to use this bot.\n\n✅ After joining, use /start"
	textPrivacyFailed    = "⚠️ Failed to fetch privacy message."
	textReferrerUnlocked = "🎉 Someone joined with your link! Videos are now unlocked, tap 📩 Get Random Video."
	textHelp             = "Tap 📩 Get Random Video to receive a video.\n" +
		"Share your referral link from /start to unlock access.\n" +
		"Videos are removed from your chat after a few hours.\n" +
		"/privacy shows the bot's terms and conditions.\n\n" +
		"If you need any help, contact the developer."
)

var errNoTarget = errors.New("usage: /<command> <telegram id>")

func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) <= 1 {
		return nil
	}
	return fields[1:]
}

// parseStartArg reads the referrer id from "/start <id>". Anything that is
// not a positive integer is treated as no referrer.
func parseStartArg(text string) *int64 {
	args := commandArgs(text)
	if len(args) == 0 {
		return nil
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

func parseTargetID(text string) (int64, error) {
	args := commandArgs(text)
	if len(args) == 0 {
		return 0, errNoTarget
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid telegram id %q", args[0])
	}
	return id, nil
}

func welcomeText(firstName string) string {
	if firstName == "" {
		firstName = "there"
	}
	return fmt.Sprintf("🥵 Welcome, %s!\nHere you will access the most unseen videos.\n👇 Tap below to explore:", firstName)
}

func referralText(link string, threshold int) string {
	return fmt.Sprintf("🔗 Your referral link:\n%s\n\n🎁 Refer at least %s to unlock the video!", link, users(threshold))
}

func lockedText(link string, threshold int) string {
	return fmt.Sprintf("🔒 Video locked!\nRefer %s to unlock it.\n\n🔗 %s", users(threshold), link)
}

func users(n int) string {
	if n == 1 {
		return "1 user"
	}
	return fmt.Sprintf("%d users", n)
}

// outcomeText renders every outcome that is answered with plain text.
func outcomeText(out delivery.Outcome, threshold int) string {
	switch out.Kind {
	case delivery.Banned:
		return textBanned
	case delivery.Locked:
		return lockedText(out.Locked.ReferralLink, threshold)
	case delivery.Throttled:
		return fmt.Sprintf("⏳ Please wait %d seconds.", max(out.WaitSeconds(), 1))
	case delivery.Exhausted:
		return textNoVideos
	case delivery.Transient:
		return textTransient
	case delivery.Delivered:
		return textWantAnother
	default:
		return textFailed
	}
}

func sudoListText(ids []int64) string {
	if len(ids) == 0 {
		return "ℹ️ No sudo users."
	}
	var sb strings.Builder
	sb.WriteString("👮 Sudo users:")
	for _, id := range ids {
		fmt.Fprintf(&sb, "\n• %d", id)
	}
	return sb.String()
}

// exportUsers packs the ids as an indented JSON array inside a zip archive.
func exportUsers(ids []int64, now time.Time) (string, []byte, error) {
	if ids == nil {
		ids = []int64{}
	}
	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("marshal user ids: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("user_ids.json")
	if err != nil {
		return "", nil, fmt.Errorf("create zip entry: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return "", nil, fmt.Errorf("write zip entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", nil, fmt.Errorf("close zip: %w", err)
	}

	name := fmt.Sprintf("user_ids_%s.zip", now.Format("20060102_150405"))
	return name, buf.Bytes(), nil
}
