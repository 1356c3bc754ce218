// Package relay copies vault messages to users through the Bot API and
// removes them again.
package relay

import (
	"errors"
	"strings"
	"time"

	"github.com/mymmrac/telego/telegoapi"
)

var (
	// ErrStaleReference means the vault message no longer exists.
	ErrStaleReference = errors.New("relay: stale reference")
	// ErrRateLimited means the Bot API asked us to slow down.
	ErrRateLimited = errors.New("relay: rate limited")
)

// Delivered identifies a copy sitting in a recipient's chat.
type Delivered struct {
	Recipient   int64
	MessageID   int
	DeliveredAt time.Time
}

var staleMarkers = []string{
	"message_id_invalid",
	"message to copy not found",
	"message not found",
	"message to forward not found",
}

// classify maps a Bot API error onto ErrStaleReference or ErrRateLimited,
// keeping the original error text. Anything else is returned as-is.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *telegoapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.ErrorCode == 429 {
			return errors.Join(ErrRateLimited, err)
		}
		if apiErr.ErrorCode == 400 && isStaleText(apiErr.Description) {
			return errors.Join(ErrStaleReference, err)
		}
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "too many requests") || strings.Contains(msg, "retry after"):
		return errors.Join(ErrRateLimited, err)
	case isStaleText(msg):
		return errors.Join(ErrStaleReference, err)
	}
	return err
}

func isStaleText(s string) bool {
	s = strings.ToLower(s)
	for _, m := range staleMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
