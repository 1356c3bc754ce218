// Package delivery runs one content request from ban check to scheduled
// retraction.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"refgate-bot/internal/access"
	"refgate-bot/internal/relay"
	"refgate-bot/internal/stats"
	"refgate-bot/internal/throttle"
)

type Kind int

const (
	Failed Kind = iota
	Delivered
	Banned
	Locked
	Throttled
	Exhausted
	Transient
)

func (k Kind) String() string {
	switch k {
	case Delivered:
		return "delivered"
	case Banned:
		return "banned"
	case Locked:
		return "locked"
	case Throttled:
		return "throttled"
	case Exhausted:
		return "exhausted"
	case Transient:
		return "transient"
	default:
		return "failed"
	}
}

// Outcome is the terminal state of one request.
type Outcome struct {
	Kind Kind
	// Locked is set when Kind is Locked.
	Locked access.LockedState
	// Wait is set when Kind is Throttled.
	Wait time.Duration
	// Delivered is set when Kind is Delivered.
	Delivered relay.Delivered
	// Stale counts references evicted while serving this request.
	Stale int
	// Err carries the cause for Transient and Failed.
	Err error
}

// WaitSeconds is Wait rounded down to whole seconds.
func (o Outcome) WaitSeconds() int {
	return int(o.Wait / time.Second)
}

type BanChecker interface {
	IsBanned(ctx context.Context, userID int64) (bool, error)
}

type Policy interface {
	Evaluate(ctx context.Context, userID int64) (access.Decision, error)
	DescribeLockedState(userID int64) access.LockedState
}

type Vault interface {
	SampleOne(ctx context.Context) (ref int, ok bool, err error)
	Evict(ctx context.Context, ref int) error
}

type Relay interface {
	Relay(ctx context.Context, ref int, recipient int64, protect bool) (relay.Delivered, error)
}

type Scheduler interface {
	Schedule(ctx context.Context, d relay.Delivered, delay time.Duration) error
}

// Notifier is a fire-and-forget operator channel.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

type Coordinator struct {
	Bans      BanChecker
	Policy    Policy
	Throttle  throttle.Throttle
	Vault     Vault
	Relay     Relay
	Scheduler Scheduler
	Notifier  Notifier
	Stats     stats.Recorder

	CooldownWindow time.Duration
	ExposureWindow time.Duration
	// MaxAttempts bounds SELECT→RELAY rounds per request.
	MaxAttempts int
	// RetryDelay pauses between a stale reference and the next SELECT.
	RetryDelay time.Duration
}

// Request walks CHECK_BAN → CHECK_POLICY → CHECK_COOLDOWN → SELECT → RELAY.
// Only a stale reference loops back to SELECT; everything else ends the
// request with an Outcome. Request never panics on collaborator errors.
func (c *Coordinator) Request(ctx context.Context, userID int64) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Delivery for user %d panicked: %v", userID, r)
			out = Outcome{Kind: Failed, Err: fmt.Errorf("delivery panic: %v", r)}
		}
		c.record(ctx, userID, out)
	}()

	banned, err := c.Bans.IsBanned(ctx, userID)
	if err != nil {
		return failed(fmt.Errorf("check ban: %w", err))
	}
	if banned {
		return Outcome{Kind: Banned}
	}

	decision, err := c.Policy.Evaluate(ctx, userID)
	if err != nil {
		return failed(fmt.Errorf("evaluate policy: %w", err))
	}
	if !decision.Unlocked {
		return Outcome{Kind: Locked, Locked: c.Policy.DescribeLockedState(userID)}
	}

	if !decision.Elevated && c.Throttle != nil {
		res, err := c.Throttle.TryAcquire(ctx, userID, c.CooldownWindow)
		if err != nil {
			return failed(fmt.Errorf("cooldown: %w", err))
		}
		if !res.Granted {
			return Outcome{Kind: Throttled, Wait: res.Wait}
		}
	}

	return c.selectAndRelay(ctx, userID)
}

func (c *Coordinator) selectAndRelay(ctx context.Context, userID int64) Outcome {
	stale := 0
	for attempt := 0; attempt < c.maxAttempts(); attempt++ {
		ref, ok, err := c.Vault.SampleOne(ctx)
		if err != nil {
			return Outcome{Kind: Failed, Stale: stale, Err: fmt.Errorf("sample vault: %w", err)}
		}
		if !ok {
			return Outcome{Kind: Exhausted, Stale: stale}
		}

		delivered, err := c.Relay.Relay(ctx, ref, userID, true)
		switch {
		case err == nil:
			c.scheduleRetraction(ctx, delivered)
			return Outcome{Kind: Delivered, Delivered: delivered, Stale: stale}

		case errors.Is(err, relay.ErrStaleReference):
			if err := c.Vault.Evict(ctx, ref); err != nil {
				return Outcome{Kind: Failed, Stale: stale, Err: fmt.Errorf("evict stale %d: %w", ref, err)}
			}
			stale++
			log.Printf("Evicted stale vault message %d: %v", ref, err)
			c.notify(ctx, fmt.Sprintf("⚠️ Vault message %d no longer exists and was removed.", ref))

			if c.RetryDelay > 0 {
				select {
				case <-ctx.Done():
					return Outcome{Kind: Failed, Stale: stale, Err: ctx.Err()}
				case <-time.After(c.RetryDelay):
				}
			}

		case errors.Is(err, relay.ErrRateLimited):
			return Outcome{Kind: Transient, Stale: stale, Err: err}

		default:
			return Outcome{Kind: Failed, Stale: stale, Err: err}
		}
	}

	log.Printf("Gave up on user %d after %d stale references", userID, stale)
	return Outcome{Kind: Exhausted, Stale: stale}
}

func (c *Coordinator) scheduleRetraction(ctx context.Context, d relay.Delivered) {
	if c.Scheduler == nil {
		return
	}
	// The copy is already in the user's chat; a scheduling failure leaves it
	// there but does not undo the delivery.
	if err := c.Scheduler.Schedule(context.WithoutCancel(ctx), d, c.ExposureWindow); err != nil {
		log.Printf("Failed to schedule retraction of message %d for %d: %v", d.MessageID, d.Recipient, err)
	}
}

func (c *Coordinator) notify(ctx context.Context, text string) {
	if c.Notifier != nil {
		c.Notifier.Notify(ctx, text)
	}
}

func (c *Coordinator) record(ctx context.Context, userID int64, out Outcome) {
	if out.Kind == Failed && out.Err != nil {
		log.Printf("Delivery for user %d failed: %v", userID, out.Err)
	}
	if c.Stats == nil {
		return
	}
	ev := stats.Event{Outcome: out.Kind.String(), UserID: userID, At: time.Now()}
	if err := c.Stats.Record(context.WithoutCancel(ctx), ev); err != nil {
		log.Printf("Failed to record delivery stats: %v", err)
	}
	for i := 0; i < out.Stale; i++ {
		_ = c.Stats.Record(context.WithoutCancel(ctx), stats.Event{Outcome: "stale", UserID: userID, At: ev.At})
	}
}

func (c *Coordinator) maxAttempts() int {
	if c.MaxAttempts <= 0 {
		return 3
	}
	return c.MaxAttempts
}

func failed(err error) Outcome {
	return Outcome{Kind: Failed, Err: err}
}
