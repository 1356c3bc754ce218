// Package access decides whether a user may receive content.
package access

import (
	"context"
	"fmt"
)

// Counter is the part of the ledger the policy reads.
type Counter interface {
	ReferralCount(ctx context.Context, userID int64) (int, error)
}

// Elevation reports whether a user holds an elevated role.
type Elevation interface {
	Has(ctx context.Context, userID int64) (bool, error)
}

type Decision struct {
	Unlocked bool
	Elevated bool
}

// LockedState is what a locked user needs to unlock access.
type LockedState struct {
	ReferralLink string
}

// Policy evaluates the unlock predicate live on every call, so a referral
// that lands between two requests unlocks the second one.
type Policy struct {
	Ledger      Counter
	Roles       Elevation
	BotUsername string
	Threshold   int
}

func (p *Policy) Evaluate(ctx context.Context, userID int64) (Decision, error) {
	if p.Roles != nil {
		elevated, err := p.Roles.Has(ctx, userID)
		if err != nil {
			return Decision{}, fmt.Errorf("check role: %w", err)
		}
		if elevated {
			return Decision{Unlocked: true, Elevated: true}, nil
		}
	}

	count, err := p.Ledger.ReferralCount(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Unlocked: count >= p.threshold()}, nil
}

func (p *Policy) IsUnlocked(ctx context.Context, userID int64) (bool, error) {
	d, err := p.Evaluate(ctx, userID)
	if err != nil {
		return false, err
	}
	return d.Unlocked, nil
}

func (p *Policy) DescribeLockedState(userID int64) LockedState {
	return LockedState{ReferralLink: ReferralLink(p.BotUsername, userID)}
}

func (p *Policy) threshold() int {
	if p.Threshold <= 0 {
		return 1
	}
	return p.Threshold
}

// ReferralLink is the deep link that starts the bot with userID as referrer.
func ReferralLink(botUsername string, userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%d", botUsername, userID)
}
